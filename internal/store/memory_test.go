package store

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"
)

func recvEvent(t *testing.T, sub *Subscription) Event {
	t.Helper()
	select {
	case ev, ok := <-sub.C:
		if !ok {
			t.Fatal("subscription channel closed unexpectedly")
		}
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for store event")
	}
	return Event{}
}

func TestSetAndGet(t *testing.T) {
	ctx := context.Background()
	h := NewBackend().Connect()
	defer h.Close()

	if err := h.Set(ctx, OfferPath("r1"), map[string]string{"type": "offer", "sdp": "A"}); err != nil {
		t.Fatalf("Set: %v", err)
	}

	var got map[string]string
	ok, err := h.Get(ctx, OfferPath("r1"), &got)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok {
		t.Fatal("expected offer to exist")
	}
	if got["sdp"] != "A" {
		t.Fatalf("got sdp %q, want %q", got["sdp"], "A")
	}

	ok, err = h.Get(ctx, OfferPath("r2"), nil)
	if err != nil {
		t.Fatalf("Get absent: %v", err)
	}
	if ok {
		t.Fatal("expected absent path to report not-exists")
	}
}

func TestWatchDeliversCurrentThenChanges(t *testing.T) {
	ctx := context.Background()
	h := NewBackend().Connect()
	defer h.Close()

	sub, err := h.Watch(ctx, AnswerPath("r1"))
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	defer sub.Cancel()

	// Absence marker first.
	if ev := recvEvent(t, sub); ev.Data != nil {
		t.Fatalf("initial event should carry nil data, got %s", ev.Data)
	}

	if err := h.Set(ctx, AnswerPath("r1"), map[string]string{"type": "answer", "sdp": "B"}); err != nil {
		t.Fatalf("Set: %v", err)
	}

	ev := recvEvent(t, sub)
	var doc map[string]string
	if err := json.Unmarshal(ev.Data, &doc); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if doc["sdp"] != "B" {
		t.Fatalf("got sdp %q, want %q", doc["sdp"], "B")
	}
}

func TestPushPreservesAppendOrder(t *testing.T) {
	ctx := context.Background()
	backend := NewBackend()
	writer := backend.Connect()
	defer writer.Close()

	path := CallerCandidatesPath("r1")
	const total = 20

	// Half before the watch exists, half after.
	for i := 0; i < total/2; i++ {
		if _, err := writer.Push(ctx, path, fmt.Sprintf("cand-%d", i)); err != nil {
			t.Fatalf("Push: %v", err)
		}
	}

	reader := backend.Connect()
	defer reader.Close()
	sub, err := reader.WatchChildren(ctx, path)
	if err != nil {
		t.Fatalf("WatchChildren: %v", err)
	}
	defer sub.Cancel()

	for i := total / 2; i < total; i++ {
		if _, err := writer.Push(ctx, path, fmt.Sprintf("cand-%d", i)); err != nil {
			t.Fatalf("Push: %v", err)
		}
	}

	for i := 0; i < total; i++ {
		ev := recvEvent(t, sub)
		var got string
		if err := json.Unmarshal(ev.Data, &got); err != nil {
			t.Fatalf("decode child: %v", err)
		}
		want := fmt.Sprintf("cand-%d", i)
		if got != want {
			t.Fatalf("child %d: got %q, want %q", i, got, want)
		}
	}
}

func TestParentWatchSnapshotsChildren(t *testing.T) {
	ctx := context.Background()
	h := NewBackend().Connect()
	defer h.Close()

	sub, err := h.Watch(ctx, ParticipantsPath("r1"))
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	defer sub.Cancel()
	recvEvent(t, sub) // initial absence

	if err := h.Set(ctx, ParticipantPath("r1", "alice"), map[string]any{"id": "alice"}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	ev := recvEvent(t, sub)
	var snap map[string]json.RawMessage
	if err := json.Unmarshal(ev.Data, &snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if len(snap) != 1 {
		t.Fatalf("got %d participants, want 1", len(snap))
	}

	if err := h.Set(ctx, ParticipantPath("r1", "bob"), map[string]any{"id": "bob"}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	ev = recvEvent(t, sub)
	snap = nil
	if err := json.Unmarshal(ev.Data, &snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if _, ok := snap["bob"]; !ok || len(snap) != 2 {
		t.Fatalf("snapshot missing bob: %v", snap)
	}

	if err := h.Delete(ctx, ParticipantPath("r1", "alice")); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	ev = recvEvent(t, sub)
	snap = nil
	if err := json.Unmarshal(ev.Data, &snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if _, ok := snap["alice"]; ok || len(snap) != 1 {
		t.Fatalf("snapshot should only hold bob: %v", snap)
	}
}

func TestDeleteRemovesSubtree(t *testing.T) {
	ctx := context.Background()
	h := NewBackend().Connect()
	defer h.Close()

	if err := h.Set(ctx, OfferPath("r1"), "offer"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if _, err := h.Push(ctx, CallerCandidatesPath("r1"), "cand"); err != nil {
		t.Fatalf("Push: %v", err)
	}

	if err := h.Delete(ctx, RoomPath("r1")); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	if ok, _ := h.Get(ctx, OfferPath("r1"), nil); ok {
		t.Fatal("offer survived room deletion")
	}
	if ok, _ := h.Get(ctx, CallerCandidatesPath("r1"), nil); ok {
		t.Fatal("candidates survived room deletion")
	}
}

func TestDisconnectHookFiresOnClose(t *testing.T) {
	ctx := context.Background()
	backend := NewBackend()

	flaky := backend.Connect()
	path := ParticipantPath("r1", "alice")
	if err := flaky.OnDisconnect(ctx, path); err != nil {
		t.Fatalf("OnDisconnect: %v", err)
	}
	if err := flaky.Set(ctx, path, map[string]string{"id": "alice"}); err != nil {
		t.Fatalf("Set: %v", err)
	}

	observer := backend.Connect()
	defer observer.Close()
	if ok, _ := observer.Get(ctx, path, nil); !ok {
		t.Fatal("participant should be registered before disconnect")
	}

	flaky.Close()

	if ok, _ := observer.Get(ctx, path, nil); ok {
		t.Fatal("participant should be removed by the disconnect hook")
	}
}

func TestClosedHandleRejectsOperations(t *testing.T) {
	ctx := context.Background()
	h := NewBackend().Connect()
	h.Close()
	if err := h.Close(); err != nil {
		t.Fatalf("second Close should be a no-op, got %v", err)
	}

	if err := h.Set(ctx, "x", "y"); err != ErrClosed {
		t.Fatalf("Set on closed handle: got %v, want ErrClosed", err)
	}
	if _, err := h.Push(ctx, "x", "y"); err != ErrClosed {
		t.Fatalf("Push on closed handle: got %v, want ErrClosed", err)
	}
	if _, err := h.Watch(ctx, "x"); err != ErrClosed {
		t.Fatalf("Watch on closed handle: got %v, want ErrClosed", err)
	}
}
