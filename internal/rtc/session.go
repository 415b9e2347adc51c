package rtc

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	pion "github.com/pion/webrtc/v4"

	"github.com/harichselvamc/peertopeer/internal/logging"
	"github.com/harichselvamc/peertopeer/internal/store"
)

// Role identifies a session's side of the negotiation.
type Role string

const (
	// RoleCaller originates the offer.
	RoleCaller Role = "caller"

	// RoleCallee originates the answer.
	RoleCallee Role = "callee"
)

// State is the session's position in the negotiation lifecycle.
type State int

const (
	StateIdle State = iota
	StateNegotiating
	StateConnected
	StateClosed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateNegotiating:
		return "negotiating"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Descriptor is the offer/answer document as stored under
// rooms/{id}/offer and rooms/{id}/answer. Written exactly once by its
// producing side.
type Descriptor struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// channelLabel is the data channel both sides expect.
const channelLabel = "chat"

type eventKind int

const (
	evLocalCandidate eventKind = iota
	evRemoteDescriptor
	evRemoteCandidate
	evConnectionState
	evDataChannel
)

type event struct {
	kind      eventKind
	local     *pion.ICECandidate
	desc      Descriptor
	candidate pion.ICECandidateInit
	connState pion.PeerConnectionState
	channel   DataChannel
}

// Session drives one local connection through offer/answer/candidate
// exchange against the signaling store. All store subscriptions and
// connection callbacks funnel into a single event loop, so session
// state needs no locking beyond the state/callback registry.
type Session struct {
	role   Role
	roomID string
	st     store.Store
	pc     PeerConn
	log    *slog.Logger

	buffer *CandidateBuffer
	events chan event
	done   chan struct{}
	closer sync.Once

	// loop-owned
	remoteApplied bool
	localPath     string
	remotePath    string

	mu        sync.Mutex
	state     State
	subs      []*store.Subscription
	channel   DataChannel
	onState   func(State)
	onChannel func(DataChannel)
	onError   func(error)
}

// NewSession creates a negotiation session for one room. The peer
// connection must be freshly constructed and unused.
func NewSession(role Role, roomID string, st store.Store, pc PeerConn) *Session {
	s := &Session{
		role:   role,
		roomID: roomID,
		st:     st,
		pc:     pc,
		log:    logging.Component("session").With("room", roomID, "role", string(role)),
		events: make(chan event, 64),
		done:   make(chan struct{}),
		state:  StateIdle,
	}
	s.buffer = NewCandidateBuffer(pc.AddICECandidate, s.log)

	if role == RoleCaller {
		s.localPath = store.CallerCandidatesPath(roomID)
		s.remotePath = store.CalleeCandidatesPath(roomID)
	} else {
		s.localPath = store.CalleeCandidatesPath(roomID)
		s.remotePath = store.CallerCandidatesPath(roomID)
	}
	return s
}

func (s *Session) Role() Role     { return s.role }
func (s *Session) RoomID() string { return s.roomID }

// State returns the session's current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// OnStateChange registers the state observer callback. Register before
// Start.
func (s *Session) OnStateChange(f func(State)) {
	s.mu.Lock()
	s.onState = f
	s.mu.Unlock()
}

// OnDataChannel registers the callback receiving the session's data
// channel: the locally created one for the caller, the remotely
// announced one for the callee. Register before Start.
func (s *Session) OnDataChannel(f func(DataChannel)) {
	s.mu.Lock()
	s.onChannel = f
	s.mu.Unlock()
}

// OnError registers the callback for non-fatal and fatal negotiation
// errors, including store write failures. Register before Start.
func (s *Session) OnError(f func(error)) {
	s.mu.Lock()
	s.onError = f
	s.mu.Unlock()
}

// Start wires the connection callbacks, performs the role's opening
// moves and launches the event loop. The returned error covers only
// the opening moves; later failures arrive through OnError and
// StateFailed.
func (s *Session) Start(ctx context.Context) error {
	select {
	case <-s.done:
		return ErrSessionClosed
	default:
	}

	s.setState(StateNegotiating)

	s.pc.OnICECandidate(func(c *pion.ICECandidate) {
		if c == nil {
			return
		}
		s.post(event{kind: evLocalCandidate, local: c})
	})

	s.pc.OnConnectionStateChange(func(state pion.PeerConnectionState) {
		s.post(event{kind: evConnectionState, connState: state})
	})

	var err error
	if s.role == RoleCaller {
		err = s.startCaller(ctx)
	} else {
		err = s.startCallee(ctx)
	}
	if err != nil {
		s.fail(err)
		return err
	}

	go s.run(ctx)
	return nil
}

// startCaller creates the data channel, publishes the offer and
// subscribes to the answer slot and the callee's candidates.
func (s *Session) startCaller(ctx context.Context) error {
	dc, err := s.pc.CreateDataChannel(channelLabel)
	if err != nil {
		return err
	}
	s.deliverChannel(dc)

	offer, err := s.pc.CreateOffer()
	if err != nil {
		return err
	}

	desc := Descriptor{Type: offer.Type.String(), SDP: offer.SDP}
	if err := s.st.Set(ctx, store.OfferPath(s.roomID), desc); err != nil {
		return NewError("publish offer", err)
	}
	s.log.Debug("offer published")

	return s.subscribeRemote(ctx, store.AnswerPath(s.roomID))
}

// startCallee waits for the offer; the answer is produced inside the
// event loop once the offer arrives.
func (s *Session) startCallee(ctx context.Context) error {
	s.pc.OnDataChannel(func(dc DataChannel) {
		s.post(event{kind: evDataChannel, channel: dc})
	})

	return s.subscribeRemote(ctx, store.OfferPath(s.roomID))
}

// subscribeRemote watches the peer's descriptor slot and candidate
// collection, forwarding both streams into the event loop.
func (s *Session) subscribeRemote(ctx context.Context, descPath string) error {
	descSub, err := s.st.Watch(ctx, descPath)
	if err != nil {
		return NewError("watch remote descriptor", err)
	}

	candSub, err := s.st.WatchChildren(ctx, s.remotePath)
	if err != nil {
		descSub.Cancel()
		return NewError("watch remote candidates", err)
	}

	s.mu.Lock()
	s.subs = append(s.subs, descSub, candSub)
	s.mu.Unlock()

	go func() {
		for ev := range descSub.C {
			if len(ev.Data) == 0 {
				continue
			}
			var desc Descriptor
			if err := json.Unmarshal(ev.Data, &desc); err != nil {
				s.log.Warn("ignoring unreadable descriptor", "error", err)
				continue
			}
			s.post(event{kind: evRemoteDescriptor, desc: desc})
		}
	}()

	go func() {
		for ev := range candSub.C {
			if len(ev.Data) == 0 {
				continue
			}
			var candidate pion.ICECandidateInit
			if err := json.Unmarshal(ev.Data, &candidate); err != nil {
				s.log.Warn("ignoring unreadable candidate", "error", err)
				continue
			}
			s.post(event{kind: evRemoteCandidate, candidate: candidate})
		}
	}()

	return nil
}

// post hands an event to the loop without blocking past teardown.
func (s *Session) post(ev event) {
	select {
	case s.events <- ev:
	case <-s.done:
	}
}

// run is the session's single thread of control.
func (s *Session) run(ctx context.Context) {
	for {
		select {
		case <-s.done:
			return
		case <-ctx.Done():
			s.Close()
			return
		case ev := <-s.events:
			s.handle(ctx, ev)
		}
	}
}

// handle processes one event. Once the session has failed or closed,
// events are drained but no longer honored, so a stale store event can
// never resurrect a torn-down negotiation.
func (s *Session) handle(ctx context.Context, ev event) {
	if st := s.State(); st == StateClosed || st == StateFailed {
		return
	}

	switch ev.kind {

	case evLocalCandidate:
		s.publishCandidate(ctx, ev.local)

	case evRemoteDescriptor:
		s.applyRemoteDescriptor(ctx, ev.desc)

	case evRemoteCandidate:
		s.buffer.Offer(ev.candidate)

	case evConnectionState:
		s.handleConnectionState(ev.connState)

	case evDataChannel:
		s.deliverChannel(ev.channel)
	}
}

// publishCandidate appends a locally gathered candidate to this side's
// collection. A failed append is surfaced rather than swallowed: a
// silently lost candidate can stall negotiation with no other symptom.
func (s *Session) publishCandidate(ctx context.Context, c *pion.ICECandidate) {
	if _, err := s.st.Push(ctx, s.localPath, c.ToJSON()); err != nil {
		s.log.Error("failed to publish candidate", "error", err)
		s.reportError(NewError("publish candidate", err))
	}
}

// applyRemoteDescriptor applies the peer's offer/answer. The remote
// description is applied at most once per session; a late or duplicate
// write is ignored (first write wins).
func (s *Session) applyRemoteDescriptor(ctx context.Context, d Descriptor) {
	if s.remoteApplied {
		s.log.Debug("ignoring duplicate remote descriptor")
		return
	}
	if d.SDP == "" {
		return
	}

	desc := pion.SessionDescription{Type: pion.NewSDPType(d.Type), SDP: d.SDP}
	if err := s.pc.SetRemoteDescription(desc); err != nil {
		s.fail(WrapError("set remote description", ErrMalformedDescriptor, err.Error()))
		return
	}
	s.remoteApplied = true
	s.log.Debug("remote descriptor applied", "type", d.Type)

	if s.role == RoleCallee {
		answer, err := s.pc.CreateAnswer()
		if err != nil {
			s.fail(err)
			return
		}
		stored := Descriptor{Type: answer.Type.String(), SDP: answer.SDP}
		if err := s.st.Set(ctx, store.AnswerPath(s.roomID), stored); err != nil {
			s.fail(NewError("publish answer", err))
			return
		}
		s.log.Debug("answer published")
	}

	// Everything queued while the remote description was pending goes
	// to the transport now, in arrival order.
	s.buffer.Flush()
}

// handleConnectionState tracks the connection's own state transitions
// as the authoritative connectivity signal.
func (s *Session) handleConnectionState(state pion.PeerConnectionState) {
	s.log.Debug("connection state changed", "state", state.String())

	switch state {
	case pion.PeerConnectionStateConnected:
		s.setState(StateConnected)
	case pion.PeerConnectionStateFailed:
		s.fail(ErrConnectionFailed)
	}
}

// deliverChannel records and announces the session's data channel.
func (s *Session) deliverChannel(dc DataChannel) {
	s.mu.Lock()
	s.channel = dc
	cb := s.onChannel
	s.mu.Unlock()

	if cb != nil {
		cb(dc)
	}
}

// Channel returns the session's data channel, or nil before one exists.
func (s *Session) Channel() DataChannel {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.channel
}

// fail moves the session to its absorbing failure state and stops
// honoring store events.
func (s *Session) fail(err error) {
	s.log.Error("negotiation failed", "error", err)
	s.reportError(err)
	s.setState(StateFailed)
	s.cancelSubs()
}

func (s *Session) reportError(err error) {
	s.mu.Lock()
	cb := s.onError
	s.mu.Unlock()
	if cb != nil {
		cb(err)
	}
}

// setState records a transition and notifies the observer. Duplicate
// states are collapsed and StateFailed is sticky.
func (s *Session) setState(next State) {
	s.mu.Lock()
	if s.state == next || s.state == StateFailed || s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	s.state = next
	cb := s.onState
	s.mu.Unlock()

	if cb != nil {
		cb(next)
	}
}

func (s *Session) cancelSubs() {
	s.mu.Lock()
	subs := s.subs
	s.subs = nil
	s.mu.Unlock()
	for _, sub := range subs {
		sub.Cancel()
	}
}

// Close tears the session down from any state: cancels every store
// subscription and closes the connection. Safe to call repeatedly and
// from any goroutine; this is the only cancellation primitive.
func (s *Session) Close() error {
	s.closer.Do(func() {
		s.setState(StateClosed)
		close(s.done)
		s.cancelSubs()
		if err := s.pc.Close(); err != nil {
			s.log.Debug("closing peer connection", "error", err)
		}
	})
	return nil
}
