// Copyright 2026 The Ktrace Authors
// SPDX-License-Identifier: Apache-2.0

package tracefs

import "path/filepath"

// Option identifies a single ftrace control file by its path relative
// to the tracefs root. Options are resolved to absolute paths by
// [Option.Path] on every call; nothing is cached, because the files
// belong to the kernel and may appear or disappear between
// invocations (kernel builds vary in which options they expose).
type Option string

// The fixed control files this tool touches. No two options resolve
// to the same relative path (verified by tests).
const (
	// TracingOn is the master switch for recording into the ring
	// buffer. Writing "0" stops recording but leaves every other
	// setting in place, which is what makes split begin/stop/dump
	// invocations work.
	TracingOn Option = "tracing_on"

	// BufferSizeKB sets the per-CPU ring buffer size in kilobytes.
	BufferSizeKB Option = "buffer_size_kb"

	// Trace is the ring buffer contents. Truncating it clears the
	// buffer.
	Trace Option = "trace"

	// TraceClock selects the timestamp clock. The file lists all
	// clocks with the active one in brackets, e.g. "local [global]".
	// Writing the already-active clock still resets the buffer, so
	// callers must check before writing.
	TraceClock Option = "trace_clock"

	// TraceMarker accepts user-space marker records, used here for
	// the clock synchronization marker.
	TraceMarker Option = "trace_marker"

	// CurrentTracer selects the active tracer ("nop",
	// "function_graph", ...).
	CurrentTracer Option = "current_tracer"

	// FtraceFilter limits function tracing to the listed kernel
	// functions. Requires dynamic ftrace in the kernel config.
	FtraceFilter Option = "set_ftrace_filter"

	// Overwrite controls whether a full ring buffer discards the
	// oldest records ("1") or the newest ("0").
	Overwrite Option = "options/overwrite"

	// RecordCmd records the command name of scheduled-in tasks so
	// the report can show names instead of bare pids.
	RecordCmd Option = "options/record-cmd"

	// PrintTgid prints the thread group id alongside each record.
	// Only present on kernels carrying the tgid patch; absence is
	// not an error.
	PrintTgid Option = "options/print-tgid"

	// Function-graph output options, set when function filters are
	// active.
	FuncgraphAbstime Option = "options/funcgraph-abstime"
	FuncgraphCPU     Option = "options/funcgraph-cpu"
	FuncgraphProc    Option = "options/funcgraph-proc"
	FuncgraphFlat    Option = "options/funcgraph-flat"
)

// Trace event enable files for the fixed built-in event set.
const (
	EventSchedSwitch  Option = "events/sched/sched_switch/enable"
	EventSchedWakeup  Option = "events/sched/sched_wakeup/enable"
	EventWorkqueue    Option = "events/workqueue/enable"
	EventCPUFrequency Option = "events/power/cpu_frequency/enable"
	EventClockSetRate Option = "events/power/clock_set_rate/enable"
	EventCPUIdle      Option = "events/power/cpu_idle/enable"
)

// EventEnable returns the enable file for an arbitrary trace event
// group/name pair.
func EventEnable(group, event string) Option {
	return Option("events/" + group + "/" + event + "/enable")
}

// Path resolves the option to an absolute path under the given
// tracefs root.
func (o Option) Path(root string) string {
	return filepath.Join(root, string(o))
}

// String returns the relative control-file path.
func (o Option) String() string {
	return string(o)
}
