//go:build darwin

// Package supervisor implements the supervision loop state machine:
// a single-threaded, kqueue-driven controller that runs one
// supervised attempt end to end — launch, watch, throttle, and
// terminate — and returns the AttemptOutcome the retry orchestrator then
// interprets.
package supervisor

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/denispol/darwin-timeout/pkg/chrono"
	"github.com/denispol/darwin-timeout/pkg/outcome"
	"github.com/denispol/darwin-timeout/pkg/runconfig"
	"github.com/denispol/darwin-timeout/pkg/system/clock"
	"github.com/denispol/darwin-timeout/pkg/system/eventloop"
	"github.com/denispol/darwin-timeout/pkg/system/launcher"
	"github.com/denispol/darwin-timeout/pkg/system/memmonitor"
	"github.com/denispol/darwin-timeout/pkg/system/signalhub"
	"github.com/denispol/darwin-timeout/pkg/throttle"
	"github.com/denispol/darwin-timeout/pkg/types"
)

type state int

const (
	stateRunning state = iota
	stateGraceful
	stateHook
	stateEscalating
	stateReaped
	stateDone
)

// attempt carries everything the state machine mutates across one
// supervised run. It is deliberately loop-local: nothing here is shared
// mutable state beyond the signal self-pipe.
type attempt struct {
	cfg runconfig.Config
	hub *signalhub.Hub
	loop *eventloop.Loop
	h *launcher.Handle

	state state

	timeoutFired bool
	timeoutReason outcome.TimeoutReason
	pendingSignal int
	killed bool

	memExceeded bool
	memActualBytes uint64

	throttleState *throttle.State
	usagePoller *memmonitor.Poller

	stdinWatch *os.File
	stdinRelay *os.File

	hookResult *outcome.HookResult

	startWallNS uint64
	finalOutcome outcome.AttemptOutcome
}

// Run launches argv under cfg and drives it through the full state
// machine, returning the resulting AttemptOutcome. Apart from the
// on-timeout hook, which runs synchronously up to its own limit, it blocks
// only in the event multiplexer's wait call.
func Run(cfg runconfig.Config, argv []string, stdin, stdout, stderr *os.File) outcome.AttemptOutcome {
	h, err := launcher.Launch(launcher.Spec{
		Argv: argv,
		Foreground: cfg.Foreground,
		CPUTimeNS: cfg.CPUTimeNS,
		MemLimitByte: cfg.MemLimitBytes,
		StdinIdleNS: cfg.StdinIdleNS,
		StdinPassthrough: cfg.StdinPassthrough,
		Stdin: stdin,
		Stdout: stdout,
		Stderr: stderr,
	})
	if err != nil {
		return launchErrorOutcome(err)
	}

	hub, err := signalhub.Install()
	if err != nil {
		killAndWait(h)
		return errorOutcome(err)
	}
	defer hub.Teardown()

	loop, err := eventloop.New()
	if err != nil {
		killAndWait(h)
		return errorOutcome(err)
	}
	defer loop.Close()

	a := &attempt{
		cfg: cfg,
		hub: hub,
		loop: loop,
		h: h,
		state: stateRunning,
		startWallNS: clock.Now(cfg.ClockMode),
		stdinWatch: h.StdinWatch,
		stdinRelay: h.StdinRelay,
	}

	if cfg.CPUPercent != 0 {
		a.throttleState = throttle.New(cfg.CPUPercent)
		if cfg.CPUPercent < throttle.LowTargetWarningThreshold {
			slog.Warn("cpu-percent target is very low", slog.Uint64("percent", cfg.CPUPercent))
		}
	}
	if cfg.MemLimitBytes != 0 || cfg.CPUPercent != 0 {
		a.usagePoller = memmonitor.New(h.Cmd.Process.Pid)
	}

	if err := a.registerInitialSources(); err != nil {
		killAndWait(h)
		return errorOutcome(err)
	}

	return a.loopUntilDone()
}

func (a *attempt) registerInitialSources() error {
	if err := a.loop.RegisterChildExit(a.h.Cmd.Process.Pid); err != nil {
		return err
	}
	if err := a.loop.RegisterRead(eventloop.TagSignalPipe, a.hub.ReadFD()); err != nil {
		return err
	}
	if a.cfg.TimeoutNS > 0 {
		if err := a.loop.RegisterTimer(eventloop.TagWallDeadline, a.cfg.TimeoutNS); err != nil {
			return err
		}
	}
	if a.cfg.StdinIdleNS > 0 {
		if err := a.loop.RegisterTimer(eventloop.TagStdinIdle, a.cfg.StdinIdleNS); err != nil {
			return err
		}
		if a.stdinWatch != nil {
			if err := a.loop.RegisterRead(eventloop.TagStdinRead, int(a.stdinWatch.Fd())); err != nil {
				return err
			}
		}
	}
	if a.cfg.HeartbeatNS > 0 {
		if err := a.loop.RegisterTimer(eventloop.TagHeartbeat, a.cfg.HeartbeatNS); err != nil {
			return err
		}
	}
	if a.cfg.MemLimitBytes != 0 {
		if err := a.loop.RegisterTimer(eventloop.TagMemoryPoll, throttle.DefaultIntervalNS); err != nil {
			return err
		}
	}
	if a.throttleState != nil {
		if err := a.loop.RegisterTimer(eventloop.TagThrottlePoll, throttle.DefaultIntervalNS); err != nil {
			return err
		}
	}
	return nil
}

// loopUntilDone is the event dispatch loop proper. Every iteration blocks
// in Wait (zero CPU between events) and then handles the fired events in
// its fixed priority order, which eventloop.Loop.Wait already sorts by.
func (a *attempt) loopUntilDone() outcome.AttemptOutcome {
	for a.state != stateDone {
		events, err := a.loop.Wait(nil)
		if err != nil {
			killAndWait(a.h)
			return errorOutcome(err)
		}
		for _, ev := range events {
			if a.state == stateDone {
				break
			}
			a.handle(ev)
		}
	}
	return a.finalOutcome
}

func (a *attempt) handle(ev eventloop.Event) {
	switch ev.Tag {
	case eventloop.TagChildExit:
		a.onChildExit()
	case eventloop.TagMemoryPoll:
		a.onMemoryPoll()
	case eventloop.TagWallDeadline:
		a.onTimeout(outcome.ReasonWallClock)
	case eventloop.TagStdinIdle:
		a.onTimeout(outcome.ReasonStdinIdle)
	case eventloop.TagKillAfter:
		a.onKillAfter()
	case eventloop.TagHookLimit:
		a.onHookLimit()
	case eventloop.TagHeartbeat:
		a.onHeartbeat()
	case eventloop.TagThrottlePoll:
		a.onThrottlePoll()
	case eventloop.TagSignalPipe:
		a.onSignalPipe()
	case eventloop.TagStdinRead:
		a.onStdinRead()
	}
}

func (a *attempt) onChildExit() {
	ps, err := a.h.Cmd.Process.Wait()
	a.resumeIfSuspended()
	if a.throttleState != nil {
		a.throttleState.MarkExited()
	}

	if err != nil || ps == nil {
		a.finish(errorOutcome(err))
		return
	}

	metrics := metricsFromProcessState(a, ps)

	ws, _ := ps.Sys().(syscall.WaitStatus)
	switch {
	case a.memExceeded:
		sig := 0
		if ws.Signaled() {
			sig = int(ws.Signal())
		}
		a.finish(outcome.AttemptOutcome{
			Status: outcome.MemoryExceeded,
			LimitBytes: uint64(a.cfg.MemLimitBytes),
			ActualBytes: a.memActualBytes,
			Signal: sig,
			CommandExitCode: exitCodeFromWaitStatus(ws),
			Metrics: metrics,
			Hook: a.hookResult,
		})
	case a.timeoutFired:
		a.finish(outcome.AttemptOutcome{
			Status: outcome.TimedOut,
			TimeoutReason: a.timeoutReason,
			Signal: int(a.cfg.GracefulSignal),
			Killed: a.killed,
			CommandExitCode: exitCodeFromWaitStatus(ws),
			Metrics: metrics,
			Hook: a.hookResult,
		})
	case a.pendingSignal != 0 && ws.Signaled():
		a.finish(outcome.AttemptOutcome{
			Status: outcome.SignalForwarded,
			Signal: a.pendingSignal,
			CommandExitCode: exitCodeFromWaitStatus(ws),
			Metrics: metrics,
		})
	default:
		a.finish(outcome.AttemptOutcome{
			Status: outcome.Completed,
			ExitCode: ps.ExitCode(),
			Metrics: metrics,
		})
	}
}

func (a *attempt) onMemoryPoll() {
	if a.usagePoller == nil || a.state != stateRunning {
		return
	}
	sample, err := a.usagePoller.Sample()
	if err == nil && memmonitor.Exceeded(sample, a.cfg.MemLimitBytes) {
		a.memExceeded = true
		a.memActualBytes = uint64(sample.PhysFootprint)
		slog.Warn("memory limit exceeded",
			slog.String("limit", a.cfg.MemLimitBytes.Humanized()),
			slog.String("actual", types.Bytes(a.memActualBytes).Humanized()))
		a.enterGraceful()
		return
	}
	_ = a.loop.RegisterTimer(eventloop.TagMemoryPoll, throttle.DefaultIntervalNS)
}

func (a *attempt) onTimeout(reason outcome.TimeoutReason) {
	if a.state != stateRunning {
		return
	}
	a.timeoutFired = true
	a.timeoutReason = reason
	a.enterGraceful()
}

// enterGraceful implements the mandatory termination ordering:
// resume-if-suspended, then hook-if-configured, then the graceful
// signal, then (optionally) arm the kill-after escalation timer.
// Callers set timeoutFired/timeoutReason or memExceeded/memActualBytes
// before calling this so onChildExit can classify the eventual exit.
func (a *attempt) enterGraceful() {
	a.state = stateGraceful

	a.resumeIfSuspended()

	if a.cfg.OnTimeoutCmd != "" {
		a.runHook()
	}

	a.sendGracefulSignal()

	if a.cfg.KillAfterNS > 0 {
		a.state = stateEscalating
		_ = a.loop.RegisterTimer(eventloop.TagKillAfter, a.cfg.KillAfterNS)
	}
}

func (a *attempt) resumeIfSuspended() {
	if a.throttleState == nil {
		return
	}
	sig, needed := a.throttleState.ResumeBeforeKill()
	if needed && sig == throttle.Resume {
		a.sendToGroup(syscall.SIGCONT)
	}
}

func (a *attempt) runHook() {
	cmdline := ExpandHookCommand(a.cfg.OnTimeoutCmd, a.h.Cmd.Process.Pid)
	cmd := exec.Command("/bin/sh", "-c", cmdline)

	start := time.Now()
	done := make(chan error, 1)
	if err := cmd.Start(); err != nil {
		a.hookResult = &outcome.HookResult{Ran: false}
		return
	}
	go func() { done <- cmd.Wait() }()

	limit := a.cfg.OnTimeoutLimitNS
	if limit == 0 {
		limit = runconfig.DefaultOnTimeoutLimitNS
	}

	select {
	case err := <-done:
		code := 0
		if err != nil {
			if ee, ok := err.(*exec.ExitError); ok {
				code = ee.ExitCode()
			}
		}
		a.hookResult = &outcome.HookResult{
			Ran: true,
			ExitCode: code,
			TimedOut: false,
			ElapsedNS: uint64(time.Since(start).Nanoseconds()),
		}
	case <-time.After(time.Duration(limit)):
		_ = cmd.Process.Kill()
		<-done
		a.hookResult = &outcome.HookResult{
			Ran: true,
			TimedOut: true,
			ElapsedNS: uint64(time.Since(start).Nanoseconds()),
		}
	}
}

func (a *attempt) sendGracefulSignal() {
	a.sendToGroup(a.cfg.GracefulSignal.Syscall())
}

func (a *attempt) onKillAfter() {
	if a.state != stateEscalating {
		return
	}
	a.resumeIfSuspended()
	a.killed = true
	a.sendToGroup(syscall.SIGKILL)
}

func (a *attempt) onHookLimit() {
	// The hook runs synchronously inside enterGraceful/runHook; this tag
	// exists for the event multiplexer's registration symmetry but the
	// actual deadline is enforced by runHook's own select/time.After.
}

func (a *attempt) onHeartbeat() {
	elapsed, _ := elapsedSince(a.startWallNS, a.cfg.ClockMode)
	slog.Info("heartbeat", slog.Int("pid", a.h.Cmd.Process.Pid), slog.Uint64("elapsed_ns", elapsed))
	_ = a.loop.RegisterTimer(eventloop.TagHeartbeat, a.cfg.HeartbeatNS)
}

func (a *attempt) onThrottlePoll() {
	if a.throttleState == nil || a.state != stateRunning {
		return
	}
	wallNS, _ := elapsedSince(a.startWallNS, a.cfg.ClockMode)
	cpuNS := a.cumulativeChildCPUNS()

	switch a.throttleState.Observe(cpuNS, wallNS) {
	case throttle.Suspend:
		a.sendToGroup(syscall.SIGSTOP)
	case throttle.Resume:
		a.sendToGroup(syscall.SIGCONT)
	}
	_ = a.loop.RegisterTimer(eventloop.TagThrottlePoll, throttle.DefaultIntervalNS)
}

func (a *attempt) onSignalPipe() {
	sig := a.hub.Drain()
	if sig == 0 {
		return
	}
	a.pendingSignal = sig
	a.sendToGroup(syscall.Signal(sig))
}

// onStdinRead implements its stdin handling: a read end becoming
// ready resets the idle timer, relays bytes to the child in passthrough
// mode, and EOF removes the filter permanently so the wall deadline
// continues alone.
func (a *attempt) onStdinRead() {
	if a.stdinWatch == nil {
		return
	}
	buf := make([]byte, 4096)
	n, err := a.stdinWatch.Read(buf)
	if n > 0 {
		if a.cfg.StdinPassthrough && a.stdinRelay != nil {
			if werr := writeAll(a.stdinRelay, buf[:n]); werr != nil {
				a.stdinRelay.Close()
				a.stdinRelay = nil
			}
		}
		_ = a.loop.RegisterTimer(eventloop.TagStdinIdle, a.cfg.StdinIdleNS)
	}
	if err != nil {
		_ = a.loop.UnregisterRead(int(a.stdinWatch.Fd()))
		a.stdinWatch = nil
	}
}

func writeAll(f *os.File, buf []byte) error {
	for len(buf) > 0 {
		n, err := f.Write(buf)
		if err != nil {
			return err
		}
		buf = buf[n:]
	}
	return nil
}

func (a *attempt) sendToGroup(sig syscall.Signal) {
	target := a.h.Cmd.Process.Pid
	if !a.cfg.Foreground {
		target = -a.h.PGID
	}
	_ = syscall.Kill(target, sig)
}

func (a *attempt) cumulativeChildCPUNS() uint64 {
	if a.usagePoller == nil {
		return 0
	}
	sample, err := a.usagePoller.Sample()
	if err != nil {
		return 0
	}
	return sample.CPUTimeNS()
}

func (a *attempt) finish(o outcome.AttemptOutcome) {
	if a.stdinRelay != nil {
		a.stdinRelay.Close()
		a.stdinRelay = nil
	}
	a.finalOutcome = o
	a.state = stateDone
}

func killAndWait(h *launcher.Handle) {
	if h == nil {
		return
	}
	h.CloseStdinRelay()
	if h.Cmd.Process == nil {
		return
	}
	_ = syscall.Kill(-h.PGID, syscall.SIGCONT)
	_ = syscall.Kill(-h.PGID, syscall.SIGKILL)
	_, _ = h.Cmd.Process.Wait()
}

func errorOutcome(err error) outcome.AttemptOutcome {
	return outcome.AttemptOutcome{Status: outcome.Error, Err: err}
}

// launchErrorOutcome classifies a launcher failure into the command-not-
// found (127) / command-not-executable (126) exit codes a plain internal
// error does not distinguish.
func launchErrorOutcome(err error) outcome.AttemptOutcome {
	var lookupErr *launcher.LookupError
	if errors.As(err, &lookupErr) {
		code := 127
		if errors.Is(lookupErr.Err, fs.ErrPermission) {
			code = 126
		}
		return outcome.AttemptOutcome{Status: outcome.Error, Err: err, ExitCode: code}
	}
	return errorOutcome(err)
}

func exitCodeFromWaitStatus(ws syscall.WaitStatus) int {
	if ws.Signaled() {
		return 128 + int(ws.Signal())
	}
	return ws.ExitStatus()
}

func metricsFromProcessState(a *attempt, ps *os.ProcessState) outcome.Metrics {
	elapsed, _ := elapsedSince(a.startWallNS, a.cfg.ClockMode)
	m := outcome.Metrics{ElapsedNS: elapsed}
	if ru, ok := ps.SysUsage().(*syscall.Rusage); ok && ru != nil {
		m.UserNS = timevalToNS(ru.Utime)
		m.SystemNS = timevalToNS(ru.Stime)
		m.MaxRSSBytes = uint64(ru.Maxrss)
	}
	return m
}

func timevalToNS(tv syscall.Timeval) uint64 {
	return uint64(tv.Sec)*1_000_000_000 + uint64(tv.Usec)*1_000
}

func elapsedSince(startNS uint64, mode clock.Mode) (uint64, bool) {
	return chrono.Elapsed(startNS, clock.Now(mode))
}
