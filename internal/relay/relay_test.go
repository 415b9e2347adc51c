package relay

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/harichselvamc/peertopeer/internal/store"
)

func startRelay(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(NewServer().Handler())
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func dial(t *testing.T, url string) *store.Client {
	t.Helper()
	c := store.NewClient(url)
	if err := c.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func recvEvent(t *testing.T, sub *store.Subscription) store.Event {
	t.Helper()
	select {
	case ev, ok := <-sub.C:
		if !ok {
			t.Fatal("subscription closed")
		}
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return store.Event{}
}

func TestHealthEndpoint(t *testing.T) {
	srv := httptest.NewServer(NewServer().Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
}

func TestSetVisibleAcrossConnections(t *testing.T) {
	ctx := context.Background()
	url := startRelay(t)

	writer := dial(t, url)
	reader := dial(t, url)

	if err := writer.Set(ctx, "rooms/r1/offer", map[string]string{"type": "offer", "sdp": "v"}); err != nil {
		t.Fatalf("Set: %v", err)
	}

	var got map[string]string
	ok, err := reader.Get(ctx, "rooms/r1/offer", &got)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok || got["sdp"] != "v" {
		t.Fatalf("Get = (%v, %v), want the written offer", ok, got)
	}

	if ok, _ := reader.Get(ctx, "rooms/r1/answer", nil); ok {
		t.Fatal("absent path reported as existing")
	}
}

func TestWatchStreamsRemoteWrites(t *testing.T) {
	ctx := context.Background()
	url := startRelay(t)

	writer := dial(t, url)
	watcher := dial(t, url)

	sub, err := watcher.Watch(ctx, "rooms/r1/answer")
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	defer sub.Cancel()

	// Initial snapshot of an empty slot.
	if ev := recvEvent(t, sub); len(ev.Data) != 0 && string(ev.Data) != "null" {
		t.Fatalf("initial event carries data: %s", ev.Data)
	}

	if err := writer.Set(ctx, "rooms/r1/answer", map[string]string{"type": "answer", "sdp": "a"}); err != nil {
		t.Fatalf("Set: %v", err)
	}

	ev := recvEvent(t, sub)
	if !strings.Contains(string(ev.Data), `"sdp":"a"`) {
		t.Fatalf("event data = %s, want the written answer", ev.Data)
	}
}

func TestChildWatchReplaysAndOrders(t *testing.T) {
	ctx := context.Background()
	url := startRelay(t)

	writer := dial(t, url)
	watcher := dial(t, url)

	path := "rooms/r1/callerCandidates"
	for _, v := range []string{"c1", "c2"} {
		if _, err := writer.Push(ctx, path, map[string]string{"candidate": v}); err != nil {
			t.Fatalf("Push %s: %v", v, err)
		}
	}

	sub, err := watcher.WatchChildren(ctx, path)
	if err != nil {
		t.Fatalf("WatchChildren: %v", err)
	}
	defer sub.Cancel()

	if _, err := writer.Push(ctx, path, map[string]string{"candidate": "c3"}); err != nil {
		t.Fatalf("Push c3: %v", err)
	}

	for i, want := range []string{"c1", "c2", "c3"} {
		ev := recvEvent(t, sub)
		if !strings.Contains(string(ev.Data), want) {
			t.Fatalf("child %d = %s, want %s", i, ev.Data, want)
		}
		if ev.Key == "" {
			t.Fatalf("child %d missing generated key", i)
		}
	}
}

func TestDisconnectHookFiresOnClose(t *testing.T) {
	ctx := context.Background()
	url := startRelay(t)

	member := dial(t, url)
	observer := dial(t, url)

	path := "rooms/r1/participants/p1"
	if err := member.OnDisconnect(ctx, path); err != nil {
		t.Fatalf("OnDisconnect: %v", err)
	}
	if err := member.Set(ctx, path, map[string]string{"id": "p1", "name": "alice"}); err != nil {
		t.Fatalf("Set: %v", err)
	}

	if ok, _ := observer.Get(ctx, path, nil); !ok {
		t.Fatal("participant record missing before disconnect")
	}

	if err := member.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// The relay tears the handle down when the socket drops; poll
	// until the hook's delete lands.
	deadline := time.Now().Add(2 * time.Second)
	for {
		ok, err := observer.Get(ctx, path, nil)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if !ok {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("participant record survived disconnect")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestSlowConsumerDisconnectedNotSkipped(t *testing.T) {
	ctx := context.Background()
	backend := store.NewBackend()

	c := &conn{
		handle: backend.Connect(),
		log:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		send:   make(chan *store.Frame, 2),
		done:   make(chan struct{}),
		subs:   make(map[uint64]*store.Subscription),
	}

	// Stall the consumer: one slot taken, nothing ever drained. The
	// watch ack below takes the last free slot.
	c.send <- &store.Frame{}

	c.dispatch(&store.Frame{ID: 1, Op: store.OpWatchChildren, Path: "rooms/r1/callerCandidates", Sub: 1})

	writer := backend.Connect()
	defer writer.Close()
	if _, err := writer.Push(ctx, "rooms/r1/callerCandidates", map[string]string{"candidate": "c1"}); err != nil {
		t.Fatalf("Push: %v", err)
	}

	// An undeliverable frame must end the connection, never leave it
	// up with a hole in its event stream.
	select {
	case <-c.done:
	case <-time.After(2 * time.Second):
		t.Fatal("connection stayed up after a frame could not be delivered")
	}
}

func TestDeleteRemovesSubtree(t *testing.T) {
	ctx := context.Background()
	url := startRelay(t)
	c := dial(t, url)

	if err := c.Set(ctx, "rooms/r1/offer", map[string]string{"sdp": "v"}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if _, err := c.Push(ctx, "rooms/r1/callerCandidates", map[string]string{"candidate": "c1"}); err != nil {
		t.Fatalf("Push: %v", err)
	}
	if err := c.Delete(ctx, "rooms/r1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if ok, _ := c.Get(ctx, "rooms/r1/offer", nil); ok {
		t.Fatal("offer survived subtree delete")
	}
}
