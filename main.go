// ════════════════════════════════════════════════════════════════════════════════════════════════
// RT Control Server - Main Entry Point
// ────────────────────────────────────────────────────────────────────────────────────────────────
// Component: Supervisory process of the real-time control core
//
// Description:
//   Phased bring-up of one control-core session with a clean, negotiated teardown.
//   Configure → Launch RT thread → Stabilize → Enable I/O → Supervise → Shutdown → Report
//
// Architecture:
//   - Phase 0: configuration (files, RTCORE_* env, flags) and structured logging
//   - Phase 1: memory lock and SCHED_FIFO RT thread running the 1 kHz control loop
//   - Phase 2: wait for the wake jitter to settle, print the latency window
//   - Phase 3: memory cleanup, then I/O enabled through the command channel
//   - Phase 4: supervision steps (ping, drain, metrics) until the run ends or a signal arrives
//   - Phase 5: RequestShutdown, join, JSON session report on stdout
//
// ════════════════════════════════════════════════════════════════════════════════════════════════

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	rtdebug "runtime/debug"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"rtcore/config"
	"rtcore/constants"
	"rtcore/debug"
	"rtcore/session"
)

// defaultConfigPaths are merged in order when --config is not given.
var defaultConfigPaths = []string{
	"/etc/rtcore/rtcore.yaml",
	"./rtcore.yaml",
}

func main() {
	os.Exit(run(os.Args))
}

// run returns the process exit code.
func run(args []string) int {
	// PHASE 0: configuration and logging
	fs := config.Flags(args[0])
	if err := fs.Parse(args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	log, level := debug.NewLogger("info")
	defer func() { _ = log.Sync() }()

	loader := config.NewLoader(log.Named("config"))
	if err := loader.BindFlags(fs); err != nil {
		debug.DropError(log, "config flags", err)
		return 2
	}
	paths, _ := fs.GetStringSlice("config")
	if len(paths) == 0 {
		paths = defaultConfigPaths
	}
	cfg, err := loader.Load(paths...)
	if err != nil {
		debug.DropError(log, "config", err)
		return 2
	}
	level.SetLevel(debug.ParseLevel(cfg.LogLevel))
	loader.Watch(func(c config.Config) {
		level.SetLevel(debug.ParseLevel(c.LogLevel))
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	sess, err := session.New(cfg, domainTask,
		session.WithLogger(log),
		session.WithRegistry(registry))
	if err != nil {
		debug.DropError(log, "session", err)
		return 2
	}

	// PHASE 1: RT thread launch
	if err := sess.Start(); err != nil {
		debug.DropError(log, "rt thread launch failed", err)
		return 1
	}

	// PHASE 2: stabilization
	stabErr := sess.WaitStable(ctx)
	logLatency(log, sess)
	if stabErr != nil {
		debug.DropError(log, "rt system failed to stabilize", stabErr)
		shutdown(log, sess, cfg, registry)
		return 1
	}

	// PHASE 3: I/O bring-up on a compacted heap
	initIO(log)
	enableCtx, cancelEnable := context.WithTimeout(ctx, constants.EnableIoTimeout)
	err = sess.EnableIO(enableCtx)
	cancelEnable()
	if err != nil {
		debug.DropError(log, "io enable failed", err)
		shutdown(log, sess, cfg, registry)
		return 1
	}
	debug.DropMessage(log, "READY", "rt system started and running")

	// PHASE 4: supervision
	supervise(ctx, log, sess, cfg, registry)

	// PHASE 5: shutdown and report
	if !shutdown(log, sess, cfg, registry) {
		return 1
	}
	return 0
}

// domainTask is the per-tick machine-control hook. The surrounding system
// supplies the real work; the server binary runs the core with an empty
// task.
func domainTask() {}

// initIO compacts the heap before I/O-dependent work starts so the RT
// thread does not share the machine with a large pending collection.
func initIO(log *zap.Logger) {
	debug.DropMessage(log, "IO", "initializing io")
	runtime.GC()
	runtime.GC()
	rtdebug.FreeOSMemory()
	debug.DropMessage(log, "IO", "io initialized")
}

// logLatency prints the published deviation window and its average.
func logLatency(log *zap.Logger, sess *session.Session) {
	r := sess.Report()
	log.Info("rt recent latency values",
		zap.Int32s("latency_ns", r.LatencyNs),
		zap.Int64("average_ns", r.MeanNs),
		zap.Int64("max_abs_ns", r.MaxAbsNs))
}

// supervise runs the non-RT work loop: one step per RunStep until RunFor
// elapses, a signal arrives or the RT thread exits on its own.
func supervise(ctx context.Context, log *zap.Logger, sess *session.Session, cfg config.Config, reg prometheus.Gatherer) {
	step := time.NewTicker(constants.RunStep)
	defer step.Stop()

	var deadline <-chan time.Time
	if cfg.RunFor > 0 {
		t := time.NewTimer(cfg.RunFor)
		defer t.Stop()
		deadline = t.C
	}

	for remaining := int(cfg.RunFor / constants.RunStep); ; remaining-- {
		select {
		case <-ctx.Done():
			debug.DropMessage(log, "SIGNAL", "interrupt received, shutting down")
			return
		case <-sess.Done():
			debug.DropError(log, "rt thread exited unexpectedly", nil)
			return
		case <-deadline:
			return
		case <-step.C:
		}

		if _, err := sess.Ping(); err != nil {
			debug.DropError(log, "ping", err)
		}
		sess.Poll()
		writeMetrics(log, cfg, reg)

		v := sess.View()
		log.Debug("supervisor step",
			zap.Int("remaining", remaining),
			zap.Uint64("ticks", v.Ticks()),
			zap.Uint64("hook_calls", v.HookCalls()),
			zap.Uint64("pongs", sess.Pongs()),
			zap.Int64("last_jitter_ns", v.LastJitter()))
	}
}

// shutdown negotiates termination, joins the RT thread and prints the
// session report. It reports whether the join succeeded.
func shutdown(log *zap.Logger, sess *session.Session, cfg config.Config, reg prometheus.Gatherer) bool {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer cancel()

	joined := true
	if err := sess.Shutdown(ctx); err != nil {
		debug.DropError(log, "rt shutdown", err)
		joined = false
	}
	writeMetrics(log, cfg, reg)

	report, err := sess.ReportJSON()
	if err != nil {
		debug.DropError(log, "session report", err)
		return false
	}
	fmt.Fprintln(os.Stdout, string(report))
	debug.DropMessage(log, "STOP", "rt system stopped")
	return joined
}

func writeMetrics(log *zap.Logger, cfg config.Config, reg prometheus.Gatherer) {
	if cfg.MetricsFile == "" {
		return
	}
	if err := prometheus.WriteToTextfile(cfg.MetricsFile, reg); err != nil {
		debug.DropError(log, "metrics file", err)
	}
}
