// ════════════════════════════════════════════════════════════════════════════════════════════════
// Supervisory Session
// ────────────────────────────────────────────────────────────────────────────────────────────────
// Component: supervisor side of the two-thread control core
//
// Description:
//   Owns every resource of one control-core session: both SPSC channels, the shared state block,
//   the control loop handed to the RT thread, and the RT thread handle. The supervisor talks to
//   the RT thread only through commands; it reads status through the shared state view.
//
// Lifecycle:
//   New → Start → WaitStable → EnableIO → (Ping / Poll while running) → Shutdown → Report
//
// Threading:
//   - A Session is driven by one supervisory goroutine. It holds the only command Sender and
//     the only response Receiver, so its methods are not safe for concurrent use.
//   - The shared state outlives the RT thread: it is dropped with the Session, after Shutdown
//     has joined the thread.
// ════════════════════════════════════════════════════════════════════════════════════════════════

package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"rtcore/config"
	"rtcore/constants"
	"rtcore/control"
	"rtcore/debug"
	"rtcore/metrics"
	"rtcore/protocol"
	"rtcore/rt"
	"rtcore/spsc"
	"rtcore/stability"
	"rtcore/state"
)

var (
	// ErrNotStable means the jitter did not settle within the poll budget.
	ErrNotStable = errors.New("session: rt system failed to stabilize")

	// ErrAlreadyStarted is returned by a second Start.
	ErrAlreadyStarted = errors.New("session: already started")

	// ErrNotStarted is returned by operations that need a running RT thread.
	ErrNotStarted = errors.New("session: not started")

	// ErrQueueFull means the command channel had no free slot.
	ErrQueueFull = errors.New("session: command queue full")

	// ErrRejected means the RT thread answered a command with Nack.
	ErrRejected = errors.New("session: command rejected")

	// ErrStopped means the RT thread exited while a reply was awaited.
	ErrStopped = errors.New("session: rt thread stopped")
)

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// OPTIONS
// ═══════════════════════════════════════════════════════════════════════════════════════════════

// Option customizes a Session.
type Option func(*Session)

// WithLogger sets the supervisory logger. Default: no logging.
func WithLogger(log *zap.Logger) Option {
	return func(s *Session) { s.log = log }
}

// WithRegistry registers the session metrics on reg. Default: unregistered.
func WithRegistry(reg prometheus.Registerer) Option {
	return func(s *Session) { s.registry = reg }
}

// WithClock replaces the RT clock, e.g. with an rt.SimClock.
func WithClock(c rt.Clock) Option {
	return func(s *Session) { s.clock = c }
}

// WithScheduler replaces the OS scheduler used to configure the RT thread.
func WithScheduler(sched rt.Scheduler) Option {
	return func(s *Session) { s.scheduler = sched }
}

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// SESSION
// ═══════════════════════════════════════════════════════════════════════════════════════════════

// Session is one supervised run of the RT control core.
type Session struct {
	id  uuid.UUID
	cfg config.Config
	log *zap.Logger

	registry  prometheus.Registerer
	clock     rt.Clock
	scheduler rt.Scheduler
	launcher  *rt.Launcher
	metrics   *metrics.Metrics

	shared    *state.Shared
	view      state.View
	commands  *spsc.Sender[protocol.Command]
	responses *spsc.Receiver[protocol.Response]
	loop      *control.Loop
	thread    *rt.Thread

	// written by the RT goroutine before the thread's done channel closes
	rtTicks uint64

	seq     uint32
	pending map[uint32]protocol.CommandKind
	replies map[uint32]protocol.ResponseKind
	pings   uint64
	pongs   uint64
	started time.Time
}

// New validates cfg and allocates every session resource. hook is the
// domain task called once per tick after I/O is enabled; nil does nothing.
func New(cfg config.Config, hook func(), opts ...Option) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}

	s := &Session{
		id:      uuid.New(),
		cfg:     cfg,
		pending: make(map[uint32]protocol.CommandKind),
		replies: make(map[uint32]protocol.ResponseKind),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	s.log = s.log.With(zap.String("session", s.id.String()))

	if s.clock == nil {
		s.clock = rt.MonotonicClock{}
	}
	if s.scheduler == nil {
		if cfg.Simulate {
			s.scheduler = rt.NoopScheduler{}
		} else {
			s.scheduler = rt.OSScheduler{}
		}
	}

	s.launcher = rt.NewLauncher(s.log.Named("rt"))
	s.launcher.Scheduler = s.scheduler
	s.launcher.CPU = cfg.CPU
	s.launcher.RequireMemoryLock = cfg.RequireMemoryLock

	s.shared = state.New()
	s.view = s.shared.View()
	s.metrics = metrics.New(s.registry, s.id.String(), s.view)

	cmdTx, cmdRx := spsc.New[protocol.Command](cfg.CommandQueueDepth).Split()
	respTx, respRx := spsc.New[protocol.Response](cfg.ResponseQueueDepth).Split()
	s.commands, s.responses = cmdTx, respRx

	s.loop = control.New(control.Config{
		Commands:  cmdRx,
		Responses: respTx,
		Shared:    s.shared,
		Monitor:   stability.NewMonitor(cfg.StabilityConfig()),
		Hook:      hook,
	})
	return s, nil
}

// ID returns the session id.
func (s *Session) ID() uuid.UUID { return s.id }

// View returns the read-only shared state handle.
func (s *Session) View() state.View { return s.view }

// Metrics returns the session collectors.
func (s *Session) Metrics() *metrics.Metrics { return s.metrics }

// Pongs returns how many Pong responses Poll has drained.
func (s *Session) Pongs() uint64 { return s.pongs }

// Start locks memory, spawns the RT thread and hands it the control loop.
func (s *Session) Start() error {
	if s.thread != nil {
		return ErrAlreadyStarted
	}

	ex := rt.Executor{Clock: s.clock, Period: s.cfg.Period}
	th, err := s.launcher.Spawn(s.cfg.Priority, func() error {
		s.rtTicks = s.loop.Run(ex)
		return nil
	})
	if err != nil {
		return fmt.Errorf("session: start rt thread: %w", err)
	}

	s.thread = th
	s.started = time.Now()
	s.log.Info("rt thread launched",
		zap.Int("priority", s.cfg.Priority),
		zap.Duration("period", s.cfg.Period),
		zap.Bool("simulate", s.cfg.Simulate))
	return nil
}

// Finished reports whether the RT thread has exited.
func (s *Session) Finished() bool {
	return s.thread != nil && s.thread.Finished()
}

// Done is closed when the RT thread exits. Nil before Start.
func (s *Session) Done() <-chan struct{} {
	if s.thread == nil {
		return nil
	}
	return s.thread.Done()
}

// ─────────────────────────── commands ──────────────────────────────────────

func (s *Session) send(kind protocol.CommandKind, rec protocol.LogRecord) (uint32, error) {
	if s.thread == nil {
		return 0, ErrNotStarted
	}
	s.seq++
	cmd := protocol.Command{Kind: kind, Seq: s.seq, Log: rec}
	if !s.commands.TrySend(cmd) {
		s.metrics.CommandsRejected.Inc()
		return 0, fmt.Errorf("%w: %s", ErrQueueFull, kind)
	}
	if kind == protocol.EnableIo {
		s.pending[cmd.Seq] = kind
	}
	return cmd.Seq, nil
}

// Ping sends a Ping and returns its sequence number. The Pong is counted
// by a later Poll.
func (s *Session) Ping() (uint32, error) {
	seq, err := s.send(protocol.Ping, protocol.LogRecord{})
	if err != nil {
		return 0, err
	}
	s.pings++
	s.metrics.PingsSent.Inc()
	return seq, nil
}

// Log hands a record to the RT thread, which relays it back through the
// response channel into the session logger.
func (s *Session) Log(level protocol.Level, text string) (uint32, error) {
	return s.send(protocol.Log, protocol.NewLogRecord(level, text))
}

// EnableIO asks the RT loop to flip the I/O status to Ready and waits for
// the acknowledgement. The Ack may be dropped on a full response channel,
// so a Ready status in the shared state also confirms the command.
func (s *Session) EnableIO(ctx context.Context) error {
	seq, err := s.send(protocol.EnableIo, protocol.LogRecord{})
	if err != nil {
		return err
	}
	ready := func() bool { return s.view.IoStatus() == state.Ready }
	if err := s.await(ctx, seq, ready); err != nil {
		return fmt.Errorf("session: enable io: %w", err)
	}
	debug.DropMessage(s.log, "IO", "io ready signal acknowledged")
	return nil
}

// await polls until the command seq has been answered or applied reports
// that the RT thread has already carried it out. The seq stops being
// tracked once await returns.
func (s *Session) await(ctx context.Context, seq uint32, applied func() bool) error {
	defer func() {
		delete(s.pending, seq)
		delete(s.replies, seq)
	}()

	ticker := time.NewTicker(constants.ReplyPoll)
	defer ticker.Stop()

	for {
		s.Poll()
		if kind, ok := s.replies[seq]; ok {
			if kind == protocol.Nack {
				return ErrRejected
			}
			return nil
		}
		if applied() {
			return nil
		}
		if s.thread.Finished() {
			s.Poll()
			if _, ok := s.replies[seq]; ok {
				continue
			}
			return ErrStopped
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// ─────────────────────────── responses ─────────────────────────────────────

// Poll drains every pending response, relays notifications to the logger,
// matches replies to their commands and refreshes the jitter metrics. It
// returns the number of responses drained.
func (s *Session) Poll() int {
	n := s.responses.Drain(s.dispatch)

	var stats state.LatencyStats
	samples := s.view.Latency(&stats)
	mean, maxAbs := summarize(stats[:samples])
	s.metrics.ObserveLatency(mean, maxAbs, s.view.LastJitter())
	return n
}

func (s *Session) dispatch(r protocol.Response) {
	s.metrics.Responses.WithLabelValues(r.Kind.String()).Inc()

	switch r.Kind {
	case protocol.Pong:
		s.pongs++
		s.metrics.PongsReceived.Inc()

	case protocol.Ack, protocol.Nack:
		if kind, ok := s.pending[r.Seq]; ok {
			delete(s.pending, r.Seq)
			s.replies[r.Seq] = r.Kind
			if r.Kind == protocol.Nack {
				s.log.Warn("command rejected", zap.Stringer("command", kind), zap.Uint32("seq", r.Seq))
			}
		}

	case protocol.StabilityChanged:
		s.log.Info("rt stability changed", zap.Stringer("stability", r.Stability))

	case protocol.LogEntry:
		s.relay(r)
	}
}

func (s *Session) relay(r protocol.Response) {
	fields := []zap.Field{zap.String("source", "rt")}
	if r.Seq != 0 {
		fields = append(fields, zap.Uint32("seq", r.Seq))
	}
	if r.Log.Truncated {
		fields = append(fields, zap.Bool("truncated", true))
	}

	text := r.Log.Text()
	switch r.Log.Level {
	case protocol.LevelDebug:
		s.log.Debug(text, fields...)
	case protocol.LevelWarn:
		s.log.Warn(text, fields...)
	case protocol.LevelError:
		s.log.Error(text, fields...)
	default:
		s.log.Info(text, fields...)
	}
}

// ─────────────────────────── lifecycle ─────────────────────────────────────

// WaitStable sleeps StabilizePoll between checks of the stabilized flag and
// gives up after StabilizeMaxPolls checks. It returns ErrNotStable when the
// budget runs out and ErrStopped if the RT thread exits first.
func (s *Session) WaitStable(ctx context.Context) error {
	if s.thread == nil {
		return ErrNotStarted
	}
	s.log.Info("waiting for rt system to stabilize",
		zap.Duration("poll", s.cfg.StabilizePoll),
		zap.Int("max_polls", s.cfg.StabilizeMaxPolls))

	timer := time.NewTimer(s.cfg.StabilizePoll)
	defer timer.Stop()

	for polls := 1; ; polls++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.thread.Done():
			return ErrStopped
		case <-timer.C:
		}

		s.Poll()
		if s.view.Stabilized() {
			s.log.Info("rt system stabilized", zap.Int("polls", polls))
			return nil
		}
		if polls >= s.cfg.StabilizeMaxPolls {
			return fmt.Errorf("%w after %d polls", ErrNotStable, polls)
		}
		timer.Reset(s.cfg.StabilizePoll)
	}
}

// Shutdown requests termination and joins the RT thread. It is safe to
// call more than once and before Start.
func (s *Session) Shutdown(ctx context.Context) error {
	if s.thread == nil {
		return nil
	}

	if err := s.requestShutdown(ctx); err != nil {
		return err
	}

	if err := s.thread.JoinContext(ctx); err != nil {
		return fmt.Errorf("session: join rt thread: %w", err)
	}
	s.Poll()

	s.log.Info("rt thread joined", zap.Uint64("ticks", s.rtTicks), zap.Uint64("pongs", s.pongs))
	return nil
}

// requestShutdown queues RequestShutdown, retrying while the command
// channel is full. An already exited thread needs no request.
func (s *Session) requestShutdown(ctx context.Context) error {
	ticker := time.NewTicker(constants.ReplyPoll)
	defer ticker.Stop()

	for !s.thread.Finished() {
		if _, err := s.send(protocol.RequestShutdown, protocol.LogRecord{}); err == nil {
			return nil
		}
		s.Poll()
		select {
		case <-ctx.Done():
			return fmt.Errorf("session: request shutdown: %w", ctx.Err())
		case <-s.thread.Done():
		case <-ticker.C:
		}
	}
	return nil
}
