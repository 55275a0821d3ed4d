// control.go - per-tick state machine of the RT thread
// ============================================================================
// RT CONTROL LOOP
// ============================================================================
//
// The loop is the only code that runs on the RT thread after setup. Every
// step is non-blocking: one TryReceive, a bounded window scan in the
// stability monitor, a fixed number of atomic stores and at most a few
// TrySend calls.
//
// Per tick:
//   1. Measure the wake deviation and publish it (monitor + shared state)
//   2. Handle at most one inbound command
//   3. Shutdown requested → Done, the executor stops after this tick
//   4. I/O pending → stay in WaitingForIo
//   5. I/O ready → call the domain hook once
//
// Delivery:
//   • Outbound messages are best effort. A full response channel drops the
//     message and bumps the shared drop counter; nothing is retried.

package control

import (
	"strconv"

	"rtcore/protocol"
	"rtcore/rt"
	"rtcore/spsc"
	"rtcore/stability"
	"rtcore/state"
)

// ============================================================================
// PHASES
// ============================================================================

// Phase is the loop's lifecycle state. Done is terminal.
type Phase uint8

const (
	WaitingForIo Phase = iota
	Running
	Done
)

func (p Phase) String() string {
	switch p {
	case WaitingForIo:
		return "WaitingForIo"
	case Running:
		return "Running"
	case Done:
		return "Done"
	default:
		return "Phase(" + strconv.Itoa(int(p)) + ")"
	}
}

// ============================================================================
// LOOP
// ============================================================================

// Config wires a loop to its session. Commands, Responses and Shared are
// required. A nil Monitor gets the default stability settings and a nil
// Hook does nothing.
type Config struct {
	Commands  *spsc.Receiver[protocol.Command]
	Responses *spsc.Sender[protocol.Response]
	Shared    *state.Shared
	Monitor   *stability.Monitor
	Hook      func()
}

// Loop is owned by the RT thread once Run starts.
type Loop struct {
	commands  *spsc.Receiver[protocol.Command]
	responses *spsc.Sender[protocol.Response]
	shared    *state.Shared
	monitor   *stability.Monitor
	hook      func()

	phase    Phase
	snapshot state.LatencyStats
}

// New builds a loop in WaitingForIo.
//
// Panics:
//   - missing command channel, response channel or shared state
func New(cfg Config) *Loop {
	if cfg.Commands == nil || cfg.Responses == nil || cfg.Shared == nil {
		panic("control: loop needs command and response channels and shared state")
	}
	l := &Loop{
		commands:  cfg.Commands,
		responses: cfg.Responses,
		shared:    cfg.Shared,
		monitor:   cfg.Monitor,
		hook:      cfg.Hook,
	}
	if l.monitor == nil {
		l.monitor = stability.NewMonitor(stability.DefaultConfig())
	}
	if l.hook == nil {
		l.hook = func() {}
	}
	return l
}

// Phase returns the current lifecycle state. RT thread only.
func (l *Loop) Phase() Phase { return l.phase }

// Run drives the loop on ex until it reaches Done and returns the number of
// ticks executed.
func (l *Loop) Run(ex rt.Executor) uint64 {
	return ex.Run(l.Tick)
}

// Tick executes one period. It returns true once the loop is Done; further
// calls are no-ops that keep returning true.
func (l *Loop) Tick(scheduled, actual int64) bool {
	if l.phase == Done {
		return true
	}

	l.observe(scheduled, actual)

	if cmd, ok := l.commands.TryReceive(); ok {
		l.handle(cmd)
	}

	if l.shared.ShutdownRequested() {
		l.phase = Done
		l.log(protocol.LevelInfo, "shutdown requested; control loop done")
		return true
	}

	if l.shared.IoStatus() != state.Ready {
		return false
	}

	if l.phase == WaitingForIo {
		l.phase = Running
		l.log(protocol.LevelInfo, "io ready; control loop running")
	}
	l.hook()
	l.shared.RecordHookCall()
	return false
}

// ─────────────────────────── internals ─────────────────────────────────────

func (l *Loop) observe(scheduled, actual int64) {
	v := l.monitor.Observe(scheduled, actual)

	l.shared.RecordTick(actual - scheduled)
	n := l.monitor.Snapshot(l.snapshot[:])
	l.shared.PublishLatency(&l.snapshot, n)

	if v.Changed {
		l.shared.SetStabilized(v.Stable)
		s := protocol.Unstable
		if v.Stable {
			s = protocol.Stable
		}
		l.send(protocol.Response{Kind: protocol.StabilityChanged, Stability: s})
	}
}

func (l *Loop) handle(cmd protocol.Command) {
	switch cmd.Kind {
	case protocol.Ping:
		l.send(protocol.Response{Kind: protocol.Pong, Seq: cmd.Seq})

	case protocol.EnableIo:
		l.shared.SetIoStatus(state.Ready)
		l.send(protocol.Response{Kind: protocol.Ack, Seq: cmd.Seq})

	case protocol.RequestShutdown:
		l.shared.RequestShutdown()
		l.send(protocol.Response{Kind: protocol.Ack, Seq: cmd.Seq})

	case protocol.Log:
		l.send(protocol.Response{Kind: protocol.LogEntry, Seq: cmd.Seq, Log: cmd.Log})

	default:
		l.send(protocol.Response{Kind: protocol.Nack, Seq: cmd.Seq})
	}
}

func (l *Loop) log(level protocol.Level, text string) {
	l.send(protocol.Response{Kind: protocol.LogEntry, Log: protocol.NewLogRecord(level, text)})
}

func (l *Loop) send(r protocol.Response) {
	if !l.responses.TrySend(r) {
		l.shared.RecordDrop()
	}
}
