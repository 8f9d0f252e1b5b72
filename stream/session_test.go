package stream

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go-attentionmap/hub"
	"go-attentionmap/types"
)

// fakeTransport records frames and can be told to start failing.
type fakeTransport struct {
	mu     sync.Mutex
	frames []string
	fail   error
}

func (t *fakeTransport) Send(event string, data any) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.fail != nil {
		return t.fail
	}
	t.frames = append(t.frames, event)
	return nil
}

func (t *fakeTransport) failWith(err error) {
	t.mu.Lock()
	t.fail = err
	t.mu.Unlock()
}

func (t *fakeTransport) snapshot() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.frames...)
}

func (t *fakeTransport) waitFor(tb testing.TB, frame string) {
	tb.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		for _, f := range t.snapshot() {
			if f == frame {
				return
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	tb.Fatalf("frame %q never sent; got %v", frame, t.snapshot())
}

func notif(id string) types.ChangeNotification {
	return types.ChangeNotification{
		Type:  types.EventCreated,
		Event: &types.EventPayload{ID: id},
	}
}

func TestSessionHandshakeThenStream(t *testing.T) {
	h := hub.New(8)
	transport := &fakeTransport{}
	session := NewSession(h, transport, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- session.Run(ctx) }()

	// Wait for the subscription to exist before broadcasting.
	waitForSubscribers(t, h, 1)
	transport.waitFor(t, FrameConnected)
	if session.State() != Streaming {
		t.Fatalf("state: got %s want streaming", session.State())
	}

	h.Broadcast(notif("e1"))
	transport.waitFor(t, string(types.EventCreated))

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}
	if session.State() != Closed {
		t.Fatalf("state after cancel: got %s want closed", session.State())
	}
	if h.Len() != 0 {
		t.Fatalf("subscription leaked: %d", h.Len())
	}
}

func TestSessionKeepAlive(t *testing.T) {
	h := hub.New(8)
	transport := &fakeTransport{}
	session := NewSession(h, transport, 20*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go session.Run(ctx)

	transport.waitFor(t, FrameKeepAlive)
}

func TestSessionResyncAfterMissedUpdates(t *testing.T) {
	h := hub.New(2)
	transport := &fakeTransport{}

	// Gate the handshake so the subscription buffer overflows before the
	// delivery loop starts draining it.
	started := make(chan struct{})
	blockingTransport := &gatedTransport{gate: started, inner: transport}
	session := NewSession(h, blockingTransport, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- session.Run(ctx) }()

	waitForSubscribers(t, h, 1)
	// The session is stuck in its handshake until the gate opens; fill the
	// buffer past capacity behind its back.
	for i := 0; i < 5; i++ {
		h.Broadcast(notif("y"))
	}
	close(started)

	transport.waitFor(t, FrameResync)

	// The resync frame must precede the next notification frame.
	frames := transport.snapshot()
	resyncAt, notifAt := -1, -1
	for i, f := range frames {
		if f == FrameResync && resyncAt == -1 {
			resyncAt = i
		}
		if f == string(types.EventCreated) && notifAt == -1 {
			notifAt = i
		}
	}
	if notifAt != -1 && notifAt < resyncAt {
		t.Fatalf("notification before resync: %v", frames)
	}

	cancel()
	<-done
}

func TestSessionTransportFailureTearsDownOnlyThatSession(t *testing.T) {
	h := hub.New(8)
	healthy := &fakeTransport{}
	failing := &fakeTransport{}

	s1 := NewSession(h, healthy, time.Minute)
	s2 := NewSession(h, failing, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done1 := make(chan error, 1)
	done2 := make(chan error, 1)
	go func() { done1 <- s1.Run(ctx) }()
	go func() { done2 <- s2.Run(ctx) }()

	waitForSubscribers(t, h, 2)
	failing.failWith(errors.New("broken pipe"))

	h.Broadcast(notif("e1"))

	if err := <-done2; err == nil {
		t.Fatal("failing session should return an error")
	}
	if s2.State() != Closed {
		t.Fatalf("failed session state: got %s want closed", s2.State())
	}

	// The healthy session keeps streaming.
	healthy.waitFor(t, string(types.EventCreated))
	waitForSubscribers(t, h, 1)

	cancel()
	if err := <-done1; err != nil {
		t.Fatalf("healthy session: %v", err)
	}
}

func TestSessionHandshakeFailure(t *testing.T) {
	h := hub.New(8)
	transport := &fakeTransport{}
	transport.failWith(errors.New("client went away"))

	session := NewSession(h, transport, time.Minute)
	if err := session.Run(context.Background()); err == nil {
		t.Fatal("expected handshake error")
	}
	if session.State() != Closed {
		t.Fatalf("state: got %s want closed", session.State())
	}
	if h.Len() != 0 {
		t.Fatalf("subscription leaked: %d", h.Len())
	}
}

// gatedTransport blocks the first Send until the gate closes, then delegates.
type gatedTransport struct {
	gate  <-chan struct{}
	once  sync.Once
	inner Transport
}

func (t *gatedTransport) Send(event string, data any) error {
	t.once.Do(func() { <-t.gate })
	return t.inner.Send(event, data)
}

func waitForSubscribers(tb testing.TB, h *hub.Hub, want int) {
	tb.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if h.Len() == want {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	tb.Fatalf("subscriber count never reached %d (have %d)", want, h.Len())
}
