// Copyright 2026 The Ktrace Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ktrace-io/ktrace/pipeline"
	"github.com/ktrace-io/ktrace/tracefs"
)

// fakeGateway implements Gateway over in-memory state. Options listed
// in absent report as missing and unwritable; options listed in
// failWrite fail their writes with the given error.
type fakeGateway struct {
	values    map[tracefs.Option]string
	truncated []tracefs.Option
	failWrite map[tracefs.Option]error
	absent    map[tracefs.Option]bool
	bracketed map[tracefs.Option]string
	tracePath string
	opened    int
}

func newFakeGateway(t *testing.T, traceContents string) *fakeGateway {
	t.Helper()
	path := filepath.Join(t.TempDir(), "trace")
	if err := os.WriteFile(path, []byte(traceContents), 0o644); err != nil {
		t.Fatalf("write fake trace: %v", err)
	}
	return &fakeGateway{
		values:    make(map[tracefs.Option]string),
		failWrite: make(map[tracefs.Option]error),
		absent:    make(map[tracefs.Option]bool),
		bracketed: make(map[tracefs.Option]string),
		tracePath: path,
	}
}

func (g *fakeGateway) WriteOption(opt tracefs.Option, text string) error {
	if err := g.failWrite[opt]; err != nil {
		return err
	}
	g.values[opt] = text
	return nil
}

func (g *fakeGateway) WriteBool(opt tracefs.Option, on bool) error {
	if on {
		return g.WriteOption(opt, "1")
	}
	return g.WriteOption(opt, "0")
}

func (g *fakeGateway) ReadBracketedMode(opt tracefs.Option) (string, bool, error) {
	mode, ok := g.bracketed[opt]
	return mode, ok, nil
}

func (g *fakeGateway) Exists(opt tracefs.Option) bool   { return !g.absent[opt] }
func (g *fakeGateway) Writable(opt tracefs.Option) bool { return !g.absent[opt] }

func (g *fakeGateway) Truncate(opt tracefs.Option) error {
	g.truncated = append(g.truncated, opt)
	return nil
}

func (g *fakeGateway) Open(opt tracefs.Option) (*os.File, error) {
	g.opened++
	return os.Open(g.tracePath)
}

func (g *fakeGateway) truncateCount(opt tracefs.Option) int {
	count := 0
	for _, o := range g.truncated {
		if o == opt {
			count++
		}
	}
	return count
}

// newTestController wires a controller with an instant sleep and
// returns the slept durations for inspection.
func newTestController(t *testing.T, config Config, gw Gateway, abort *AbortFlag, out *bytes.Buffer) (*Controller, *[]time.Duration) {
	t.Helper()
	ctrl, err := New(config, gw, abort, out, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	var slept []time.Duration
	ctrl.sleep = func(d time.Duration) { slept = append(slept, d) }
	return ctrl, &slept
}

func syncConfig() Config {
	return Config{
		BufferSizeKB: 1024,
		Duration:     5 * time.Second,
		SchedEvents:  true,
		Format:       pipeline.FormatZlib,
	}
}

func TestPhaseDerivation(t *testing.T) {
	tests := []struct {
		name   string
		config Config
		want   Phases
	}{
		{"synchronous", Config{}, Phases{Begin: true, Stop: true, Dump: true}},
		{"begin async", Config{BeginAsync: true}, Phases{Begin: true, Async: true}},
		{"stop async", Config{StopAsync: true}, Phases{Stop: true, Dump: true, Async: true}},
		{"dump async", Config{DumpAsync: true}, Phases{Dump: true, Async: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.config.Phases(); got != tt.want {
				t.Errorf("Phases() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestEffectiveOverwrite(t *testing.T) {
	if (Config{Overwrite: false, BeginAsync: true}).EffectiveOverwrite() != true {
		t.Error("async begin must force overwrite on")
	}
	if (Config{Overwrite: false}).EffectiveOverwrite() != false {
		t.Error("synchronous session must keep the user's overwrite choice")
	}
	if (Config{Overwrite: true}).EffectiveOverwrite() != true {
		t.Error("explicit overwrite must be preserved")
	}
}

func TestValidateRejectsCombinedAsyncFlags(t *testing.T) {
	combos := []Config{
		{BufferSizeKB: 1, BeginAsync: true, StopAsync: true},
		{BufferSizeKB: 1, StopAsync: true, DumpAsync: true},
		{BufferSizeKB: 1, BeginAsync: true, DumpAsync: true},
		{BufferSizeKB: 1, BeginAsync: true, StopAsync: true, DumpAsync: true},
	}
	for i, config := range combos {
		if err := config.Validate(); err == nil {
			t.Errorf("combo %d: expected validation error for combined async flags", i)
		}
	}
}

func TestValidateRejectsDecompressWithCapture(t *testing.T) {
	config := Config{DecompressFile: "trace.z", BeginAsync: true}
	if err := config.Validate(); err == nil {
		t.Error("expected validation error for decompress + async")
	}
	config = Config{DecompressFile: "trace.z", Stream: true}
	if err := config.Validate(); err == nil {
		t.Error("expected validation error for decompress + stream")
	}
	config = Config{DecompressFile: "trace.z"}
	if err := config.Validate(); err != nil {
		t.Errorf("plain decompress config should validate, got %v", err)
	}
}

func TestValidateBufferSize(t *testing.T) {
	config := Config{BufferSizeKB: 0}
	if err := config.Validate(); err == nil {
		t.Error("expected validation error for zero buffer size")
	}
}

func TestSynchronousRun(t *testing.T) {
	gw := newFakeGateway(t, "trace records here")
	var out bytes.Buffer
	ctrl, slept := newTestController(t, syncConfig(), gw, nil, &out)

	if err := ctrl.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if out.String() != "trace records here" {
		t.Errorf("dumped %q, want the trace contents", out.String())
	}
	// The capture window was waited out.
	if len(*slept) != 1 || (*slept)[0] != 5*time.Second {
		t.Errorf("slept %v, want one 5s capture window", *slept)
	}
	// Mandatory options were applied.
	if gw.values[tracefs.BufferSizeKB] != "1024" {
		t.Errorf("buffer_size_kb = %q, want 1024", gw.values[tracefs.BufferSizeKB])
	}
	if gw.values[tracefs.TraceClock] != "global" {
		t.Errorf("trace_clock = %q, want global", gw.values[tracefs.TraceClock])
	}
	// Tracing was stopped and the teardown reset the buffer size.
	if gw.values[tracefs.TracingOn] != "0" {
		t.Errorf("tracing_on = %q at exit, want 0", gw.values[tracefs.TracingOn])
	}
	// Ring buffer cleared before capture and after dump; teardown
	// resets to defaults afterward. Cleanup runs after dump, so the
	// final buffer size is the 1 KB minimum.
	if got := gw.truncateCount(tracefs.Trace); got != 2 {
		t.Errorf("trace truncated %d times, want 2", got)
	}
	if gw.values[tracefs.RecordCmd] != "0" {
		t.Errorf("record-cmd = %q after cleanup, want 0", gw.values[tracefs.RecordCmd])
	}
	// Clock sync markers were written.
	if gw.values[tracefs.TraceMarker] == "" {
		t.Error("no clock sync marker written")
	}
}

func TestOptionalEventFailureKeepsSessionOK(t *testing.T) {
	gw := newFakeGateway(t, "records")
	gw.failWrite[tracefs.EventCPUIdle] = fmt.Errorf("permission denied")

	var out bytes.Buffer
	ctrl, _ := newTestController(t, syncConfig(), gw, nil, &out)

	if err := ctrl.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if gw.opened != 1 {
		t.Errorf("trace opened %d times, want 1 (dump must still run)", gw.opened)
	}
	if out.Len() == 0 {
		t.Error("optional event failure must not suppress the dump")
	}
}

func TestMandatoryFailureSkipsCaptureButCleansUp(t *testing.T) {
	gw := newFakeGateway(t, "records")
	gw.failWrite[tracefs.Overwrite] = fmt.Errorf("write refused")

	var out bytes.Buffer
	ctrl, slept := newTestController(t, syncConfig(), gw, nil, &out)

	if err := ctrl.Run(); err != nil {
		t.Fatalf("Run should absorb kernel option failures, got %v", err)
	}
	if gw.opened != 0 {
		t.Error("dump must not run when a mandatory option failed")
	}
	if out.Len() != 0 {
		t.Error("no trace bytes should be emitted when configuring failed")
	}
	if len(*slept) != 0 {
		t.Error("capture window must be skipped when configuring failed")
	}
	// Cleanup still executed: buffer size was reset even though the
	// overwrite restore keeps failing.
	if gw.values[tracefs.BufferSizeKB] != "1" {
		t.Errorf("buffer_size_kb = %q after cleanup, want 1", gw.values[tracefs.BufferSizeKB])
	}
}

func TestAbortSkipsDumpButCleansUp(t *testing.T) {
	gw := newFakeGateway(t, "records")
	abort := &AbortFlag{}
	abort.Set()

	var out bytes.Buffer
	ctrl, _ := newTestController(t, syncConfig(), gw, abort, &out)

	if err := ctrl.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if gw.opened != 0 {
		t.Error("aborted session must not dump")
	}
	if out.Len() != 0 {
		t.Error("aborted session must emit no trace bytes")
	}
	// The ring buffer is still cleared (once before capture, once in
	// the dump phase) and the teardown still runs.
	if got := gw.truncateCount(tracefs.Trace); got != 2 {
		t.Errorf("trace truncated %d times, want 2", got)
	}
	if gw.values[tracefs.BufferSizeKB] != "1" {
		t.Errorf("buffer_size_kb = %q after cleanup, want 1", gw.values[tracefs.BufferSizeKB])
	}
}

func TestClockWriteGuard(t *testing.T) {
	gw := newFakeGateway(t, "records")
	gw.bracketed[tracefs.TraceClock] = "global"

	var out bytes.Buffer
	config := syncConfig()
	ctrl, _ := newTestController(t, config, gw, nil, &out)

	if err := ctrl.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	// Cleanup switches to local; but the arming stage must not have
	// rewritten the already-active global clock. After the run the
	// only recorded clock write is cleanup's "local".
	if gw.values[tracefs.TraceClock] != "local" {
		t.Errorf("trace_clock = %q, want only cleanup's local write", gw.values[tracefs.TraceClock])
	}
}

func TestBeginAsyncLeavesTracingArmed(t *testing.T) {
	gw := newFakeGateway(t, "records")
	config := syncConfig()
	config.BeginAsync = true

	var out bytes.Buffer
	ctrl, slept := newTestController(t, config, gw, nil, &out)

	if err := ctrl.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if gw.values[tracefs.TracingOn] != "1" {
		t.Errorf("tracing_on = %q after async begin, want 1 (stays armed)", gw.values[tracefs.TracingOn])
	}
	if gw.values[tracefs.Overwrite] != "1" {
		t.Error("async begin must force overwrite on")
	}
	if len(*slept) != 0 {
		t.Error("async begin must not wait out a capture window")
	}
	if gw.opened != 0 {
		t.Error("async begin must not dump")
	}
	// No teardown: the session continues past this process.
	if gw.values[tracefs.BufferSizeKB] == "1" {
		t.Error("async begin must not reset the buffer size")
	}
}

func TestDumpAsyncDumpsWithoutReconfiguring(t *testing.T) {
	gw := newFakeGateway(t, "captured earlier")
	config := syncConfig()
	config.DumpAsync = true

	var out bytes.Buffer
	ctrl, _ := newTestController(t, config, gw, nil, &out)

	if err := ctrl.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.String() != "captured earlier" {
		t.Errorf("dumped %q, want the kernel-retained capture", out.String())
	}
	if _, wrote := gw.values[tracefs.BufferSizeKB]; wrote {
		t.Error("dump-only invocation must not reconfigure the kernel")
	}
	if _, wrote := gw.values[tracefs.TracingOn]; wrote {
		t.Error("dump-only invocation must not touch tracing_on")
	}
}

func TestStopAsyncStopsDumpsAndCleansUp(t *testing.T) {
	gw := newFakeGateway(t, "captured earlier")
	config := syncConfig()
	config.StopAsync = true

	var out bytes.Buffer
	ctrl, _ := newTestController(t, config, gw, nil, &out)

	if err := ctrl.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if gw.values[tracefs.TracingOn] != "0" {
		t.Errorf("tracing_on = %q, want 0", gw.values[tracefs.TracingOn])
	}
	if out.String() != "captured earlier" {
		t.Errorf("dumped %q, want the kernel-retained capture", out.String())
	}
	if gw.values[tracefs.BufferSizeKB] != "1" {
		t.Error("stop invocation owns teardown and must reset the buffer size")
	}
}

func TestCompressedDumpRoundTrips(t *testing.T) {
	gw := newFakeGateway(t, "compressible trace records")
	config := syncConfig()
	config.Compress = true

	var out bytes.Buffer
	ctrl, _ := newTestController(t, config, gw, nil, &out)
	if err := ctrl.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}

	var restored bytes.Buffer
	if err := pipeline.Decompress(&out, &restored, pipeline.FormatAuto); err != nil {
		t.Fatalf("Decompress: %v", err)
	}
	if restored.String() != "compressible trace records" {
		t.Errorf("round trip = %q", restored.String())
	}
}

func TestReplayShortCircuitsLifecycle(t *testing.T) {
	var compressed bytes.Buffer
	if err := pipeline.Compress(bytes.NewReader([]byte("stored trace")), &compressed, pipeline.FormatZlib); err != nil {
		t.Fatalf("Compress: %v", err)
	}
	path := filepath.Join(t.TempDir(), "trace.z")
	if err := os.WriteFile(path, compressed.Bytes(), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	gw := newFakeGateway(t, "live trace that must not be touched")
	var out bytes.Buffer
	ctrl, _ := newTestController(t, Config{DecompressFile: path}, gw, nil, &out)

	if err := ctrl.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.String() != "stored trace" {
		t.Errorf("replayed %q, want %q", out.String(), "stored trace")
	}
	if len(gw.values) != 0 || len(gw.truncated) != 0 || gw.opened != 0 {
		t.Error("replay must not touch the kernel gateway at all")
	}
}

func TestReplayFailureReturnsError(t *testing.T) {
	gw := newFakeGateway(t, "")
	var out bytes.Buffer
	ctrl, _ := newTestController(t, Config{DecompressFile: filepath.Join(t.TempDir(), "missing.z")}, gw, nil, &out)

	if err := ctrl.Run(); err == nil {
		t.Fatal("expected error replaying a missing file")
	}
}
