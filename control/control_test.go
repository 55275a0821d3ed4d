// ════════════════════════════════════════════════════════════════════════════════════════════════
// 🧪 CONTROL LOOP TEST SUITE
// ────────────────────────────────────────────────────────────────────────────────────────────────
// Component: RT control loop
//
// Test Coverage:
//   - Command handling: Ping, EnableIo, RequestShutdown, Log relay, unknown kinds
//   - Phase transitions WaitingForIo → Running → Done
//   - Domain hook gating on the I/O status
//   - Stability notifications and latency publication
//   - Best-effort delivery with drop accounting
//   - Executor integration on a simulated clock
//
// ════════════════════════════════════════════════════════════════════════════════════════════════

package control

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rtcore/protocol"
	"rtcore/rt"
	"rtcore/spsc"
	"rtcore/stability"
	"rtcore/state"
)

// ============================================================================
// TEST HARNESS
// ============================================================================

type harness struct {
	loop      *Loop
	commands  *spsc.Sender[protocol.Command]
	responses *spsc.Receiver[protocol.Response]
	shared    *state.Shared
	hookCalls int
	now       int64
}

func newHarness(t *testing.T, respCap int, mon *stability.Monitor) *harness {
	t.Helper()
	cmdTx, cmdRx := spsc.New[protocol.Command](16).Split()
	respTx, respRx := spsc.New[protocol.Response](respCap).Split()
	h := &harness{commands: cmdTx, responses: respRx, shared: state.New()}
	h.loop = New(Config{
		Commands:  cmdRx,
		Responses: respTx,
		Shared:    h.shared,
		Monitor:   mon,
		Hook:      func() { h.hookCalls++ },
	})
	return h
}

// tick runs one on-time period.
func (h *harness) tick() bool {
	h.now += int64(time.Millisecond)
	return h.loop.Tick(h.now, h.now)
}

// tickLate runs one period woken late by d.
func (h *harness) tickLate(d time.Duration) bool {
	h.now += int64(time.Millisecond)
	return h.loop.Tick(h.now, h.now+int64(d))
}

func (h *harness) send(t *testing.T, c protocol.Command) {
	t.Helper()
	require.True(t, h.commands.TrySend(c))
}

func (h *harness) drain() []protocol.Response {
	var out []protocol.Response
	h.responses.Drain(func(r protocol.Response) { out = append(out, r) })
	return out
}

func ofKind(rs []protocol.Response, k protocol.ResponseKind) []protocol.Response {
	var out []protocol.Response
	for _, r := range rs {
		if r.Kind == k {
			out = append(out, r)
		}
	}
	return out
}

// ============================================================================
// CONSTRUCTION
// ============================================================================

func TestNewRequiresWiring(t *testing.T) {
	assert.Panics(t, func() { New(Config{}) })
}

func TestPhaseString(t *testing.T) {
	assert.Equal(t, "WaitingForIo", WaitingForIo.String())
	assert.Equal(t, "Running", Running.String())
	assert.Equal(t, "Done", Done.String())
	assert.Equal(t, "Phase(9)", Phase(9).String())
}

// ============================================================================
// COMMAND HANDLING
// ============================================================================

func TestPingAnsweredOnce(t *testing.T) {
	h := newHarness(t, 64, nil)
	h.send(t, protocol.Command{Kind: protocol.Ping, Seq: 7})

	for i := 0; i < 10; i++ {
		assert.False(t, h.tick())
	}

	pongs := ofKind(h.drain(), protocol.Pong)
	require.Len(t, pongs, 1)
	assert.Equal(t, uint32(7), pongs[0].Seq)
}

func TestOneCommandPerTick(t *testing.T) {
	h := newHarness(t, 64, nil)
	h.send(t, protocol.Command{Kind: protocol.Ping, Seq: 1})
	h.send(t, protocol.Command{Kind: protocol.Ping, Seq: 2})

	h.tick()
	assert.Len(t, ofKind(h.drain(), protocol.Pong), 1)
	h.tick()
	pongs := ofKind(h.drain(), protocol.Pong)
	require.Len(t, pongs, 1)
	assert.Equal(t, uint32(2), pongs[0].Seq)
}

func TestHookNeverCalledWithoutEnableIo(t *testing.T) {
	h := newHarness(t, 64, nil)
	for i := 0; i < 1000; i++ {
		h.send(t, protocol.Command{Kind: protocol.Ping, Seq: uint32(i)})
		assert.False(t, h.tick())
		h.drain()
	}
	assert.Zero(t, h.hookCalls)
	assert.Equal(t, WaitingForIo, h.loop.Phase())
	assert.Equal(t, uint64(0), h.shared.View().HookCalls())
	assert.Equal(t, state.Pending, h.shared.View().IoStatus())
}

func TestEnableIoStartsHook(t *testing.T) {
	h := newHarness(t, 64, nil)
	h.tick()
	h.drain()

	h.send(t, protocol.Command{Kind: protocol.EnableIo, Seq: 3})
	h.tick()

	rs := h.drain()
	acks := ofKind(rs, protocol.Ack)
	require.Len(t, acks, 1)
	assert.Equal(t, uint32(3), acks[0].Seq)

	logs := ofKind(rs, protocol.LogEntry)
	require.Len(t, logs, 1)
	assert.Equal(t, "io ready; control loop running", logs[0].Log.Text())

	assert.Equal(t, Running, h.loop.Phase())
	assert.Equal(t, 1, h.hookCalls)

	for i := 0; i < 5; i++ {
		h.tick()
	}
	assert.Equal(t, 6, h.hookCalls)
	assert.Equal(t, uint64(6), h.shared.View().HookCalls())
	assert.Equal(t, state.Ready, h.shared.View().IoStatus())
}

func TestEnableIoIdempotent(t *testing.T) {
	h := newHarness(t, 64, nil)
	h.send(t, protocol.Command{Kind: protocol.EnableIo, Seq: 1})
	h.send(t, protocol.Command{Kind: protocol.EnableIo, Seq: 2})
	h.tick()
	h.tick()

	rs := h.drain()
	assert.Len(t, ofKind(rs, protocol.Ack), 2)
	assert.Len(t, ofKind(rs, protocol.LogEntry), 1, "only one phase transition")
	assert.Equal(t, 2, h.hookCalls)
}

func TestRequestShutdownEndsLoop(t *testing.T) {
	h := newHarness(t, 64, nil)
	h.send(t, protocol.Command{Kind: protocol.EnableIo, Seq: 1})
	h.tick()

	h.send(t, protocol.Command{Kind: protocol.RequestShutdown, Seq: 2})
	assert.True(t, h.tick())
	assert.Equal(t, Done, h.loop.Phase())
	assert.True(t, h.shared.View().ShutdownRequested())

	calls := h.hookCalls
	assert.True(t, h.tick(), "Done is terminal")
	assert.Equal(t, calls, h.hookCalls, "no hook call after shutdown")

	rs := h.drain()
	acks := ofKind(rs, protocol.Ack)
	require.Len(t, acks, 2)
	assert.Equal(t, uint32(2), acks[1].Seq)

	logs := ofKind(rs, protocol.LogEntry)
	require.NotEmpty(t, logs)
	assert.Equal(t, "shutdown requested; control loop done", logs[len(logs)-1].Log.Text())
}

func TestShutdownFromWaitingForIo(t *testing.T) {
	h := newHarness(t, 64, nil)
	h.send(t, protocol.Command{Kind: protocol.RequestShutdown, Seq: 1})
	assert.True(t, h.tick())
	assert.Zero(t, h.hookCalls)
}

func TestLogRelayedWithSeq(t *testing.T) {
	h := newHarness(t, 64, nil)
	rec := protocol.NewLogRecord(protocol.LevelWarn, "vision offline")
	h.send(t, protocol.Command{Kind: protocol.Log, Seq: 11, Log: rec})
	h.tick()

	logs := ofKind(h.drain(), protocol.LogEntry)
	require.Len(t, logs, 1)
	assert.Equal(t, uint32(11), logs[0].Seq)
	assert.Equal(t, protocol.LevelWarn, logs[0].Log.Level)
	assert.Equal(t, "vision offline", logs[0].Log.Text())
}

func TestUnknownCommandNacked(t *testing.T) {
	h := newHarness(t, 64, nil)
	h.send(t, protocol.Command{Kind: protocol.CommandKind(200), Seq: 5})
	h.tick()

	nacks := ofKind(h.drain(), protocol.Nack)
	require.Len(t, nacks, 1)
	assert.Equal(t, uint32(5), nacks[0].Seq)
}

// ============================================================================
// STABILITY & LATENCY
// ============================================================================

func TestStabilityChangesNotified(t *testing.T) {
	mon := stability.NewMonitor(stability.Config{
		Window:              4,
		AcceptableDeviation: 200 * time.Microsecond,
		ThresholdPercent:    100,
	})
	h := newHarness(t, 64, mon)

	h.tick()
	rs := ofKind(h.drain(), protocol.StabilityChanged)
	require.Len(t, rs, 1)
	assert.Equal(t, protocol.Stable, rs[0].Stability)
	assert.True(t, h.shared.View().Stabilized())

	h.tick()
	assert.Empty(t, ofKind(h.drain(), protocol.StabilityChanged), "no repeat while unchanged")

	h.tickLate(time.Millisecond)
	rs = ofKind(h.drain(), protocol.StabilityChanged)
	require.Len(t, rs, 1)
	assert.Equal(t, protocol.Unstable, rs[0].Stability)
	assert.False(t, h.shared.View().Stabilized())
}

func TestLatencyPublished(t *testing.T) {
	h := newHarness(t, 64, nil)
	h.tickLate(10 * time.Microsecond)
	h.tickLate(20 * time.Microsecond)
	h.tick()

	var stats state.LatencyStats
	v := h.shared.View()
	n := v.Latency(&stats)
	require.Equal(t, 3, n)
	assert.Equal(t, int32(10_000), stats[0])
	assert.Equal(t, int32(20_000), stats[1])
	assert.Equal(t, int32(0), stats[2])
	assert.Equal(t, int32(0), stats[99])
	assert.Equal(t, uint64(3), v.Ticks())
	assert.Equal(t, int64(0), v.LastJitter())
}

func TestLatencyPublishesNewestWithWideWindow(t *testing.T) {
	cfg := stability.DefaultConfig()
	cfg.Window = 200
	h := newHarness(t, 1024, stability.NewMonitor(cfg))
	for i := 1; i <= 150; i++ {
		h.tickLate(time.Duration(i))
	}

	var stats state.LatencyStats
	v := h.shared.View()
	n := v.Latency(&stats)
	require.Equal(t, len(stats), n)
	assert.Equal(t, int32(51), stats[0])
	assert.Equal(t, int32(150), stats[n-1])
	assert.Equal(t, int64(150), v.LastJitter())
}

// ============================================================================
// DELIVERY POLICY
// ============================================================================

func TestFullResponseChannelDrops(t *testing.T) {
	h := newHarness(t, 1, nil)

	// First tick: StabilityChanged fills the only slot, the Pong is dropped.
	h.send(t, protocol.Command{Kind: protocol.Ping, Seq: 1})
	h.tick()
	assert.Equal(t, uint64(1), h.shared.View().Dropped())

	rs := h.drain()
	require.Len(t, rs, 1)
	assert.Equal(t, protocol.StabilityChanged, rs[0].Kind)

	h.send(t, protocol.Command{Kind: protocol.Ping, Seq: 2})
	h.tick()
	rs = h.drain()
	require.Len(t, rs, 1)
	assert.Equal(t, protocol.Pong, rs[0].Kind)
	assert.Equal(t, uint64(1), h.shared.View().Dropped())
}

// ============================================================================
// EXECUTOR INTEGRATION
// ============================================================================

func TestRunOnSimClock(t *testing.T) {
	cmdTx, cmdRx := spsc.New[protocol.Command](4).Split()
	respTx, respRx := spsc.New[protocol.Response](64).Split()
	shared := state.New()

	calls := 0
	loop := New(Config{
		Commands:  cmdRx,
		Responses: respTx,
		Shared:    shared,
		Hook: func() {
			calls++
			if calls == 10 {
				// Same goroutine as Run, so this stays single-producer.
				cmdTx.TrySend(protocol.Command{Kind: protocol.RequestShutdown, Seq: 2})
			}
		},
	})
	require.True(t, cmdTx.TrySend(protocol.Command{Kind: protocol.EnableIo, Seq: 1}))

	clock := rt.NewSimClock(0)
	ticks := loop.Run(rt.Executor{Clock: clock, Period: time.Millisecond})

	assert.Equal(t, uint64(11), ticks)
	assert.Equal(t, 10, calls)
	assert.Equal(t, Done, loop.Phase())
	assert.Equal(t, uint64(11), shared.View().Ticks())
	assert.Equal(t, int64(10*time.Millisecond), clock.Now())

	var acks int
	respRx.Drain(func(r protocol.Response) {
		if r.Kind == protocol.Ack {
			acks++
		}
	})
	assert.Equal(t, 2, acks)
}

// ============================================================================
// BENCHMARKS
// ============================================================================

func BenchmarkTickRunning(b *testing.B) {
	cmdTx, cmdRx := spsc.New[protocol.Command](4).Split()
	respTx, respRx := spsc.New[protocol.Response](64).Split()
	loop := New(Config{Commands: cmdRx, Responses: respTx, Shared: state.New()})
	cmdTx.TrySend(protocol.Command{Kind: protocol.EnableIo})

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		loop.Tick(int64(i), int64(i))
		respRx.Drain(func(protocol.Response) {})
	}
}
