package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrWrite indicates a signaling write did not reach the store. A
	// lost offer, answer or candidate silently stalls negotiation, so
	// callers must surface this instead of swallowing it.
	ErrWrite = errors.New("store write failed")

	// ErrClosed is returned by operations on a closed store handle.
	ErrClosed = errors.New("store handle closed")

	// ErrUnreachable indicates the store could not be reached at all.
	ErrUnreachable = errors.New("store unreachable")
)

// Event is one notification delivered through a Subscription.
type Event struct {
	// Path is the subscribed path.
	Path string

	// Key is the child key for child-added events; empty for value events.
	Key string

	// Data is the JSON document at the path, or nil when absent/deleted.
	Data json.RawMessage
}

// Store is the narrow surface the negotiation core uses to reach the
// shared signaling store. One Store value represents one connection to
// the store; implementations must be safe for concurrent use by
// unrelated sessions.
type Store interface {
	// Set writes the value at path, replacing any previous value.
	Set(ctx context.Context, path string, value any) error

	// Push appends the value to the ordered collection at path and
	// returns the generated child key. Append order is preserved
	// end-to-end: children are always observed in push order.
	Push(ctx context.Context, path string, value any) (string, error)

	// Get performs a one-shot read. It reports whether a value exists
	// and, if dest is non-nil, unmarshals the value into it.
	Get(ctx context.Context, path string, dest any) (bool, error)

	// Watch subscribes to value changes at path. The current value (or
	// an absence marker with nil Data) is delivered first, then every
	// subsequent change. Intermediate values may be coalesced; the
	// latest value wins.
	Watch(ctx context.Context, path string) (*Subscription, error)

	// WatchChildren subscribes to child additions under path. Existing
	// children are delivered first, in append order, followed by new
	// additions as they happen.
	WatchChildren(ctx context.Context, path string) (*Subscription, error)

	// Delete removes the value at path and everything beneath it.
	Delete(ctx context.Context, path string) error

	// OnDisconnect registers a deferred delete of path, executed by the
	// store when this handle's connection drops for any reason. This is
	// how presence entries disappear after an abnormal disconnect
	// without a heartbeat protocol.
	OnDisconnect(ctx context.Context, path string) error

	// Close tears down the handle: cancels its subscriptions and fires
	// registered disconnect hooks. Close is idempotent.
	Close() error
}

// Signaling path schema, namespaced by room ID.
func RoomPath(roomID string) string   { return "rooms/" + roomID }
func OfferPath(roomID string) string  { return RoomPath(roomID) + "/offer" }
func AnswerPath(roomID string) string { return RoomPath(roomID) + "/answer" }

func CallerCandidatesPath(roomID string) string { return RoomPath(roomID) + "/callerCandidates" }
func CalleeCandidatesPath(roomID string) string { return RoomPath(roomID) + "/calleeCandidates" }

func ParticipantsPath(roomID string) string { return RoomPath(roomID) + "/participants" }
func ParticipantPath(roomID, participantID string) string {
	return ParticipantsPath(roomID) + "/" + participantID
}

// Subscription is a live feed of store events. Events arrive on C in
// order. Cancel releases the subscription and eventually closes C; it is
// safe to call from any goroutine, any number of times.
type Subscription struct {
	C <-chan Event

	mu       sync.Mutex
	queue    []Event
	notify   chan struct{}
	done     chan struct{}
	once     sync.Once
	onCancel func()
}

// newSubscription builds a subscription with its forwarding goroutine.
// onCancel, if non-nil, runs once when the subscription is cancelled.
func newSubscription(onCancel func()) *Subscription {
	ch := make(chan Event, 16)
	s := &Subscription{
		C:        ch,
		notify:   make(chan struct{}, 1),
		done:     make(chan struct{}),
		onCancel: onCancel,
	}
	go s.forward(ch)
	return s
}

// emit queues an event for delivery. It never blocks the caller, so a
// slow consumer cannot stall the store.
func (s *Subscription) emit(ev Event) {
	s.mu.Lock()
	s.queue = append(s.queue, ev)
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// forward drains the queue into the public channel, preserving order.
func (s *Subscription) forward(ch chan<- Event) {
	defer close(ch)
	for {
		select {
		case <-s.done:
			return
		case <-s.notify:
		}

		for {
			s.mu.Lock()
			if len(s.queue) == 0 {
				s.mu.Unlock()
				break
			}
			ev := s.queue[0]
			s.queue = s.queue[1:]
			s.mu.Unlock()

			select {
			case ch <- ev:
			case <-s.done:
				return
			}
		}
	}
}

// Cancel releases the subscription.
func (s *Subscription) Cancel() {
	s.once.Do(func() {
		close(s.done)
		if s.onCancel != nil {
			s.onCancel()
		}
	})
}

// marshalValue converts a value into its stored JSON form.
func marshalValue(value any) (json.RawMessage, error) {
	if raw, ok := value.(json.RawMessage); ok {
		return raw, nil
	}
	b, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("encode value: %w", err)
	}
	return b, nil
}
