package connection

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Calicanx/aitutor-stream/internal/auth"
)

// fakeTransport records frames and close calls.
type fakeTransport struct {
	mu           sync.Mutex
	sent         []Frame
	closed       bool
	closedNormal bool
	cb           Callbacks
}

func (t *fakeTransport) Send(f Frame) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrClosed
	}
	t.sent = append(t.sent, f)
	return nil
}

func (t *fakeTransport) Close(normal bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	t.closedNormal = normal
	return nil
}

func (t *fakeTransport) sentCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sent)
}

// reportClose simulates the transport reporting a close event.
func (t *fakeTransport) reportClose(err error, normal bool) {
	t.cb.OnClose(err, normal)
}

// fakeDialer produces fakeTransports, optionally failing or stalling.
type fakeDialer struct {
	mu         sync.Mutex
	transports []*fakeTransport
	dials      atomic.Int32
	failAfter  int32 // fail every dial once dials exceeds this (0 = never fail)
	delay      time.Duration
}

func (d *fakeDialer) dial(ctx context.Context, token string, cb Callbacks) (Transport, error) {
	n := d.dials.Add(1)
	if d.delay > 0 {
		time.Sleep(d.delay)
	}
	if d.failAfter > 0 && n > d.failAfter {
		return nil, errors.New("dial refused")
	}
	t := &fakeTransport{cb: cb}
	d.mu.Lock()
	d.transports = append(d.transports, t)
	d.mu.Unlock()
	return t, nil
}

func (d *fakeDialer) last() *fakeTransport {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.transports) == 0 {
		return nil
	}
	return d.transports[len(d.transports)-1]
}

func fastConfig() Config {
	return Config{
		BaseDelay:   2 * time.Millisecond,
		MaxDelay:    20 * time.Millisecond,
		MaxAttempts: 5,
	}
}

func newTestController(d *fakeDialer, cfg Config) *Controller {
	return NewController(cfg, d.dial, auth.Static("tok"), nil)
}

// statusRecorder collects state transitions.
type statusRecorder struct {
	mu     sync.Mutex
	states []State
}

func (r *statusRecorder) record(s State) {
	r.mu.Lock()
	r.states = append(r.states, s)
	r.mu.Unlock()
}

func (r *statusRecorder) snapshot() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]State, len(r.states))
	copy(out, r.states)
	return out
}

func TestController_Connect_MissingToken(t *testing.T) {
	d := &fakeDialer{}
	c := NewController(fastConfig(), d.dial, auth.Static(""), nil)

	err := c.Connect(context.Background())
	if !errors.Is(err, ErrMissingToken) {
		t.Fatalf("Connect error = %v, want ErrMissingToken", err)
	}
	if got := c.State(); got != StateError {
		t.Errorf("State = %v, want error", got)
	}
	if d.dials.Load() != 0 {
		t.Errorf("dials = %d, want 0 (no network attempt before credential check)", d.dials.Load())
	}
}

func TestController_Connect_Success(t *testing.T) {
	d := &fakeDialer{}
	c := newTestController(d, fastConfig())

	rec := &statusRecorder{}
	c.OnStatusChange(rec.record)

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	if got := c.State(); got != StateConnected {
		t.Errorf("State = %v, want connected", got)
	}
	if got := c.Attempts(); got != 0 {
		t.Errorf("Attempts = %d, want 0 after successful open", got)
	}

	states := rec.snapshot()
	if len(states) != 2 || states[0] != StateConnecting || states[1] != StateConnected {
		t.Errorf("status transitions = %v, want [connecting connected]", states)
	}
}

func TestController_Connect_Idempotent(t *testing.T) {
	d := &fakeDialer{delay: 30 * time.Millisecond}
	c := newTestController(d, fastConfig())

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Connect(context.Background())
		}()
	}
	wg.Wait()

	if got := d.dials.Load(); got != 1 {
		t.Errorf("dials = %d, want 1 (concurrent connects share one attempt)", got)
	}

	// Connecting again while connected is a no-op.
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect while connected failed: %v", err)
	}
	if got := d.dials.Load(); got != 1 {
		t.Errorf("dials after reconnect-while-connected = %d, want 1", got)
	}
}

func TestController_ConnectRacingRedial_SingleDial(t *testing.T) {
	d := &fakeDialer{delay: 40 * time.Millisecond}
	c := newTestController(d, fastConfig())

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	d.last().reportClose(errors.New("peer reset"), false)

	// Wait until the backoff redial's dial is in flight (it stalls in the
	// fake dialer), then race an embedder Connect against it.
	waitFor(t, time.Second, func() bool { return d.dials.Load() == 2 }, "redial in flight")
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect during redial failed: %v", err)
	}

	waitFor(t, time.Second, func() bool { return c.State() == StateConnected }, "reconnect")
	if got := d.dials.Load(); got != 2 {
		t.Errorf("dials = %d, want 2 (racing Connect must join the redial)", got)
	}

	// The installed transport is live: sends land and its close still
	// drives recovery rather than being ignored as stale.
	c.Send(Frame{Data: []byte("x")})
	if got := d.last().sentCount(); got != 1 {
		t.Errorf("sent frames = %d, want 1 on the surviving transport", got)
	}

	d.last().reportClose(errors.New("peer reset again"), false)
	waitFor(t, time.Second, func() bool {
		return c.State() == StateConnected && d.dials.Load() == 3
	}, "recovery after the shared dial's transport dies")
}

func TestController_ConnectWhileConnected_IgnoresLostToken(t *testing.T) {
	d := &fakeDialer{}
	var token atomic.Value
	token.Store("tok")
	c := NewController(fastConfig(), d.dial, auth.TokenFunc(func() string {
		return token.Load().(string)
	}), nil)

	rec := &statusRecorder{}
	c.OnStatusChange(rec.record)

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	// Token rotates away while the transport stays healthy. A redundant
	// Connect is a no-op, not a credential check.
	token.Store("")
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("redundant Connect = %v, want nil while connected", err)
	}
	if got := c.State(); got != StateConnected {
		t.Errorf("State = %v, want connected", got)
	}

	states := rec.snapshot()
	if len(states) != 2 || states[1] != StateConnected {
		t.Errorf("status transitions = %v, want [connecting connected] with no error blip", states)
	}

	c.Send(Frame{Data: []byte("still delivered")})
	if got := d.last().sentCount(); got != 1 {
		t.Errorf("sent frames = %d, want 1 (send path intact)", got)
	}
}

func TestController_UnintentionalClose_Reconnects(t *testing.T) {
	d := &fakeDialer{}
	c := newTestController(d, fastConfig())

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	d.last().reportClose(errors.New("peer reset"), false)

	waitFor(t, 500*time.Millisecond, func() bool {
		return c.State() == StateConnected && d.dials.Load() == 2
	}, "reconnect after unintentional close")

	if got := c.Attempts(); got != 0 {
		t.Errorf("Attempts = %d, want 0 after successful reconnect", got)
	}
}

func TestController_NormalClose_NoReconnect(t *testing.T) {
	d := &fakeDialer{}
	c := newTestController(d, fastConfig())

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	d.last().reportClose(errors.New("closed"), true)

	time.Sleep(60 * time.Millisecond)
	if got := d.dials.Load(); got != 1 {
		t.Errorf("dials = %d, want 1 (normal close must not reconnect)", got)
	}
	if got := c.State(); got != StateDisconnected {
		t.Errorf("State = %v, want disconnected", got)
	}
}

func TestController_BackoffCeiling(t *testing.T) {
	d := &fakeDialer{failAfter: 1}
	c := newTestController(d, fastConfig())

	var gaveUp atomic.Bool
	c.SetGiveUpHook(func() { gaveUp.Store(true) })

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	d.last().reportClose(errors.New("peer reset"), false)

	waitFor(t, time.Second, gaveUp.Load, "give-up after attempt ceiling")

	// 1 initial + MaxAttempts failed redials, then silence.
	if got := d.dials.Load(); got != 6 {
		t.Errorf("dials = %d, want 6 (initial + 5 retries)", got)
	}
	if c.HasPendingReconnect() {
		t.Error("reconnect timer still pending after exhaustion")
	}
	if got := c.State(); got != StateError {
		t.Errorf("State = %v, want error (requires manual reconnect)", got)
	}

	// Manual reconnect resumes.
	d.failAfter = 0
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("manual Connect after exhaustion failed: %v", err)
	}
	if got := c.State(); got != StateConnected {
		t.Errorf("State after manual reconnect = %v, want connected", got)
	}
}

func TestController_Disconnect_SuppressesReconnect(t *testing.T) {
	d := &fakeDialer{}
	c := newTestController(d, fastConfig())

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	transport := d.last()

	c.Disconnect()

	if got := c.State(); got != StateDisconnected {
		t.Errorf("State = %v, want disconnected", got)
	}
	transport.mu.Lock()
	closedNormal := transport.closedNormal
	transport.mu.Unlock()
	if !closedNormal {
		t.Error("transport not closed with normal-closure code")
	}

	// A late async close event must not trigger recovery.
	transport.reportClose(errors.New("late close"), false)
	time.Sleep(60 * time.Millisecond)
	if got := d.dials.Load(); got != 1 {
		t.Errorf("dials = %d, want 1 (intentional close suppresses reconnect)", got)
	}
	if c.HasPendingReconnect() {
		t.Error("reconnect timer pending after intentional disconnect")
	}
}

func TestController_Disconnect_MidBackoff(t *testing.T) {
	cfg := fastConfig()
	cfg.BaseDelay = 20 * time.Millisecond
	cfg.MaxDelay = 200 * time.Millisecond
	d := &fakeDialer{}
	c := newTestController(d, cfg)

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	d.last().reportClose(errors.New("peer reset"), false)
	if !c.HasPendingReconnect() {
		t.Fatal("expected a pending reconnect timer after unintentional close")
	}

	c.Disconnect()
	if c.HasPendingReconnect() {
		t.Error("reconnect timer survived Disconnect")
	}

	time.Sleep(120 * time.Millisecond)
	if got := d.dials.Load(); got != 1 {
		t.Errorf("dials = %d, want 1 (no reconnect after mid-backoff disconnect)", got)
	}
}

func TestController_Send(t *testing.T) {
	d := &fakeDialer{}
	c := newTestController(d, fastConfig())

	// Sending while disconnected is a silent no-op.
	c.Send(Frame{Data: []byte("dropped")})

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	c.Send(Frame{Binary: true, Data: []byte{1, 2, 3}})
	if got := d.last().sentCount(); got != 1 {
		t.Errorf("sent frames = %d, want 1", got)
	}

	c.Disconnect()
	c.Send(Frame{Data: []byte("dropped too")})
	if got := d.last().sentCount(); got != 1 {
		t.Errorf("sent frames after disconnect = %d, want 1", got)
	}
}

func TestController_ForceReconnect(t *testing.T) {
	d := &fakeDialer{}
	c := newTestController(d, fastConfig())

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	first := d.last()

	c.ForceReconnect()

	first.mu.Lock()
	closed, closedNormal := first.closed, first.closedNormal
	first.mu.Unlock()
	if !closed || closedNormal {
		t.Error("ForceReconnect should close the transport abnormally")
	}

	waitFor(t, 500*time.Millisecond, func() bool {
		return c.State() == StateConnected && d.dials.Load() == 2
	}, "redial after ForceReconnect")
}

func TestController_StatusObserver_NoDuplicates(t *testing.T) {
	d := &fakeDialer{}
	c := newTestController(d, fastConfig())

	rec := &statusRecorder{}
	c.OnStatusChange(rec.record)

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	c.Disconnect()
	c.Disconnect() // second disconnect must not re-notify

	states := rec.snapshot()
	want := []State{StateConnecting, StateConnected, StateDisconnected}
	if len(states) != len(want) {
		t.Fatalf("status transitions = %v, want %v", states, want)
	}
	for i := range want {
		if states[i] != want[i] {
			t.Errorf("transition %d = %v, want %v", i, states[i], want[i])
		}
	}
}

func TestController_ObserverUnregister(t *testing.T) {
	d := &fakeDialer{}
	c := newTestController(d, fastConfig())

	rec := &statusRecorder{}
	unregister := c.OnStatusChange(rec.record)
	unregister()
	unregister() // idempotent

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	if got := rec.snapshot(); len(got) != 0 {
		t.Errorf("unregistered observer received %v", got)
	}
}

func TestBackoffDelay(t *testing.T) {
	cfg := DefaultConfig()

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 16 * time.Second},
		{5, 30 * time.Second}, // capped
		{6, 30 * time.Second},
	}

	for _, tt := range tests {
		if got := backoffDelay(cfg, tt.attempt); got != tt.want {
			t.Errorf("backoffDelay(attempt=%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateDisconnected, "disconnected"},
		{StateConnecting, "connecting"},
		{StateConnected, "connected"},
		{StateError, "error"},
		{State(42), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
