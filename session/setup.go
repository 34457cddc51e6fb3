// Copyright 2026 The Ktrace Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"os"
	"strconv"
	"strings"

	"github.com/ktrace-io/ktrace/tracefs"
)

// Gateway is the kernel option interface the controller drives. It is
// satisfied by tracefs.FS; tests substitute fakes.
type Gateway interface {
	WriteOption(opt tracefs.Option, text string) error
	WriteBool(opt tracefs.Option, on bool) error
	ReadBracketedMode(opt tracefs.Option) (mode string, ok bool, err error)
	Exists(opt tracefs.Option) bool
	Writable(opt tracefs.Option) bool
	Truncate(opt tracefs.Option) error
	Open(opt tracefs.Option) (*os.File, error)
}

var _ Gateway = (*tracefs.FS)(nil)

// StepOutcome records the result of one configuration step. Optional
// steps cover control files that not every kernel build exposes;
// their failures are reported but do not count against the session.
type StepOutcome struct {
	Option   tracefs.Option
	Err      error
	Optional bool
}

// SetupResult is the ordered list of configuration step outcomes for
// one invocation.
type SetupResult []StepOutcome

// OK reports whether every mandatory step succeeded.
func (r SetupResult) OK() bool {
	for _, step := range r {
		if step.Err != nil && !step.Optional {
			return false
		}
	}
	return true
}

// Failed returns the steps that reported an error, optional or not.
func (r SetupResult) Failed() []StepOutcome {
	var failed []StepOutcome
	for _, step := range r {
		if step.Err != nil {
			failed = append(failed, step)
		}
	}
	return failed
}

// configure applies the whole option batch that arms a session. Steps
// run in a fixed order and failures accumulate instead of aborting:
// the session proceeds best-effort and overall success is judged at
// the end.
func (c *Controller) configure() SetupResult {
	var result SetupResult
	record := func(opt tracefs.Option, optional bool, err error) {
		result = append(result, StepOutcome{Option: opt, Err: err, Optional: optional})
	}

	record(tracefs.Overwrite, false,
		c.gw.WriteBool(tracefs.Overwrite, c.config.EffectiveOverwrite()))
	record(tracefs.BufferSizeKB, false,
		c.gw.WriteOption(tracefs.BufferSizeKB, strconv.Itoa(c.config.BufferSizeKB)))
	record(tracefs.TraceClock, false, c.setClock("global"))

	result = append(result, c.configureFunctions()...)

	if c.config.PrintTgid {
		record(tracefs.PrintTgid, true, c.setTgid(true))
	}
	record(tracefs.RecordCmd, false, c.gw.WriteBool(tracefs.RecordCmd, true))

	result = append(result, c.configureEvents(c.config.SchedEvents)...)
	return result
}

// setClock selects the trace timestamp clock, but only after checking
// the currently active one: rewriting the active clock resets the
// ring buffer, so a redundant write is destructive, not free.
func (c *Controller) setClock(mode string) error {
	current, ok, err := c.gw.ReadBracketedMode(tracefs.TraceClock)
	if err == nil && ok && current == mode {
		return nil
	}
	return c.gw.WriteOption(tracefs.TraceClock, mode)
}

// setTgid toggles tgid printing. The option only exists on kernels
// carrying the tgid patch; its absence must not fail the session.
func (c *Controller) setTgid(on bool) error {
	if !c.gw.Exists(tracefs.PrintTgid) {
		return nil
	}
	return c.gw.WriteBool(tracefs.PrintTgid, on)
}

// configureFunctions selects the tracer. With no filter list the nop
// tracer is installed and any stale filter cleared. With a filter
// list the function_graph tracer is armed with its output options and
// the filter file is rewritten. Dynamic ftrace is a kernel config
// option, so the filter file may be absent entirely.
func (c *Controller) configureFunctions() SetupResult {
	var result SetupResult
	record := func(opt tracefs.Option, optional bool, err error) {
		result = append(result, StepOutcome{Option: opt, Err: err, Optional: optional})
	}

	functions := strings.TrimSpace(c.config.Functions)
	if functions == "" {
		if c.gw.Writable(tracefs.CurrentTracer) {
			record(tracefs.CurrentTracer, false,
				c.gw.WriteOption(tracefs.CurrentTracer, "nop"))
		}
		if c.gw.Writable(tracefs.FtraceFilter) {
			record(tracefs.FtraceFilter, true, c.gw.Truncate(tracefs.FtraceFilter))
		}
		return result
	}

	record(tracefs.CurrentTracer, false,
		c.gw.WriteOption(tracefs.CurrentTracer, "function_graph"))
	for _, opt := range []tracefs.Option{
		tracefs.FuncgraphAbstime,
		tracefs.FuncgraphCPU,
		tracefs.FuncgraphProc,
		tracefs.FuncgraphFlat,
	} {
		record(opt, false, c.gw.WriteBool(opt, true))
	}
	record(tracefs.FtraceFilter, false, c.gw.Truncate(tracefs.FtraceFilter))
	record(tracefs.FtraceFilter, false,
		c.gw.WriteOption(tracefs.FtraceFilter, strings.ReplaceAll(functions, ",", " ")))
	return result
}

// configureEvents applies the fixed built-in event set: scheduler
// events per the session config, workqueue events forced on for
// thread-name resolution, and the power events (frequency, clock
// rate, idle) forced off. Every step is optional -- event files vary
// by kernel build, and a missing or unwritable one is skipped without
// an outcome at all.
func (c *Controller) configureEvents(sched bool) SetupResult {
	steps := []struct {
		opt tracefs.Option
		on  bool
	}{
		{tracefs.EventSchedSwitch, sched},
		{tracefs.EventSchedWakeup, sched},
		{tracefs.EventWorkqueue, true},
		{tracefs.EventCPUFrequency, false},
		{tracefs.EventClockSetRate, false},
		{tracefs.EventCPUIdle, false},
	}

	var result SetupResult
	for _, step := range steps {
		if !c.gw.Writable(step.opt) {
			continue
		}
		result = append(result, StepOutcome{
			Option:   step.opt,
			Err:      c.gw.WriteBool(step.opt, step.on),
			Optional: true,
		})
	}
	return result
}

// cleanup reverses every configuring-stage option to its default. It
// runs unconditionally once this invocation owns the stop phase,
// independent of whether the dump succeeded. Failures are logged and
// otherwise ignored: there is nothing further to do with a kernel
// that refuses its own defaults.
func (c *Controller) cleanup() {
	c.configureEvents(false)

	steps := SetupResult{
		{Option: tracefs.RecordCmd, Err: c.gw.WriteBool(tracefs.RecordCmd, false)},
		{Option: tracefs.Overwrite, Err: c.gw.WriteBool(tracefs.Overwrite, true)},
		{Option: tracefs.BufferSizeKB, Err: c.gw.WriteOption(tracefs.BufferSizeKB, "1")},
		{Option: tracefs.TraceClock, Err: c.setClock("local")},
		{Option: tracefs.PrintTgid, Err: c.setTgid(false)},
	}
	if c.gw.Writable(tracefs.CurrentTracer) {
		steps = append(steps, StepOutcome{
			Option: tracefs.CurrentTracer,
			Err:    c.gw.WriteOption(tracefs.CurrentTracer, "nop"),
		})
	}
	if c.gw.Writable(tracefs.FtraceFilter) {
		steps = append(steps, StepOutcome{
			Option: tracefs.FtraceFilter,
			Err:    c.gw.Truncate(tracefs.FtraceFilter),
		})
	}

	for _, step := range steps.Failed() {
		c.logger.Warn("cleanup step failed", "option", step.Option.String(), "error", step.Err)
	}
}
