package room

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/harichselvamc/peertopeer/internal/chat"
	"github.com/harichselvamc/peertopeer/internal/config"
	"github.com/harichselvamc/peertopeer/internal/logging"
	"github.com/harichselvamc/peertopeer/internal/rtc"
	"github.com/harichselvamc/peertopeer/internal/store"
)

// Manager owns the identity and existence of one negotiation session:
// room creation or joining, caller/callee role assignment, and
// teardown. One Manager handles at most one room over its lifetime;
// identifiers are never reused.
type Manager struct {
	st  store.Store
	cfg *config.Config
	log *slog.Logger

	channel  *chat.Channel
	presence *Presence

	// ConnFactory builds the session's peer connection. Overridable so
	// protocol tests can negotiate without touching the network.
	ConnFactory func(cfg *config.Config) (rtc.PeerConn, error)

	mu             sync.Mutex
	started        bool
	left           bool
	roomID         string
	self           Participant
	session        *rtc.Session
	watch          *Watch
	onParticipants func(map[string]Participant)
	onState        func(rtc.State)
	onError        func(error)
	participants   map[string]Participant
}

// NewManager creates a manager bound to a store handle. The facade
// returned by Channel exists immediately, so the UI can register its
// handlers before any negotiation starts.
func NewManager(st store.Store, cfg *config.Config) *Manager {
	self := NewParticipant(uuid.NewString(), cfg.DisplayName)
	return &Manager{
		st:       st,
		cfg:      cfg,
		log:      logging.Component("room"),
		channel:  chat.NewChannel(self.ID),
		presence: NewPresence(st),
		self:     self,
		ConnFactory: func(cfg *config.Config) (rtc.PeerConn, error) {
			pc, err := rtc.NewPeerConnection(cfg)
			if err != nil {
				return nil, err
			}
			return rtc.Wrap(pc), nil
		},
	}
}

// Channel returns the session facade handed to the UI layer.
func (m *Manager) Channel() *chat.Channel {
	return m.channel
}

// Self returns the local participant record.
func (m *Manager) Self() Participant {
	return m.self
}

// OnParticipants registers the participant-snapshot handler. A handler
// registered after joining is immediately called with the latest
// snapshot.
func (m *Manager) OnParticipants(f func(map[string]Participant)) {
	m.mu.Lock()
	m.onParticipants = f
	last := m.participants
	m.mu.Unlock()
	if f != nil && last != nil {
		f(last)
	}
}

// OnStateChange registers the negotiation-state handler. Register
// before Create or Join.
func (m *Manager) OnStateChange(f func(rtc.State)) {
	m.mu.Lock()
	m.onState = f
	m.mu.Unlock()
}

// OnError registers the handler for negotiation and signaling errors.
func (m *Manager) OnError(f func(error)) {
	m.mu.Lock()
	m.onError = f
	m.mu.Unlock()
}

// Create generates a fresh room identifier, takes the caller role and
// starts negotiating.
func (m *Manager) Create(ctx context.Context) (string, error) {
	roomID := uuid.NewString()
	if err := m.start(ctx, roomID, rtc.RoleCaller); err != nil {
		return "", err
	}
	return roomID, nil
}

// Join enters an existing room. With no externally assigned role the
// side is auto-detected: no offer present means nobody has negotiated
// yet and the local side becomes caller; an offer present means callee.
// Two parties hitting a fresh room near-simultaneously can both read
// "no offer" and both become caller; the session's first-write-wins
// descriptor handling keeps that from corrupting an established peer,
// but the race itself is inherent to detection by read.
func (m *Manager) Join(ctx context.Context, roomID string) error {
	if roomID == "" {
		return ErrNoRoomID
	}

	hasOffer, err := m.st.Get(ctx, store.OfferPath(roomID), nil)
	if err != nil {
		return fmt.Errorf("room lookup: %w", err)
	}

	role := rtc.RoleCaller
	if hasOffer {
		role = rtc.RoleCallee
	}
	return m.start(ctx, roomID, role)
}

// JoinAs enters an existing room with an explicitly assigned role,
// sidestepping the detection race entirely.
func (m *Manager) JoinAs(ctx context.Context, roomID string, role rtc.Role) error {
	if roomID == "" {
		return ErrNoRoomID
	}
	return m.start(ctx, roomID, role)
}

// start registers presence, wires the facade and launches the state
// machine. Presence registration doubles as the fail-fast store
// connectivity check: nothing is constructed if the store is
// unreachable.
func (m *Manager) start(ctx context.Context, roomID string, role rtc.Role) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return ErrAlreadyJoined
	}
	m.started = true
	m.roomID = roomID
	m.mu.Unlock()

	if err := m.presence.Join(ctx, roomID, m.self); err != nil {
		return fmt.Errorf("register presence: %w", err)
	}

	watch, err := m.presence.Watch(ctx, roomID)
	if err != nil {
		return fmt.Errorf("watch participants: %w", err)
	}
	go func() {
		for snapshot := range watch.C {
			m.mu.Lock()
			m.participants = snapshot
			cb := m.onParticipants
			m.mu.Unlock()
			if cb != nil {
				cb(snapshot)
			}
		}
	}()

	pc, err := m.ConnFactory(m.cfg)
	if err != nil {
		watch.Cancel()
		return err
	}

	session := rtc.NewSession(role, roomID, m.st, pc)
	session.OnDataChannel(m.channel.Bind)

	m.mu.Lock()
	m.session = session
	m.watch = watch
	onState := m.onState
	onError := m.onError
	m.mu.Unlock()

	if onState != nil {
		session.OnStateChange(onState)
	}
	if onError != nil {
		session.OnError(onError)
	}

	m.log.Info("starting negotiation", "room", roomID, "role", string(role))
	return session.Start(ctx)
}

// Leave tears the room down: closes the session, deregisters local
// presence and, if the participant set is then observed empty, deletes
// the room's signaling data. Idempotent; leaving a never-opened room
// is a no-op. Deletion is advisory: a concurrent joiner racing the
// empty-set read just keeps the room alive.
func (m *Manager) Leave(ctx context.Context) error {
	m.mu.Lock()
	if !m.started || m.left {
		m.mu.Unlock()
		return nil
	}
	m.left = true
	roomID := m.roomID
	session := m.session
	watch := m.watch
	m.mu.Unlock()

	if session != nil {
		session.Close()
	}
	if watch != nil {
		watch.Cancel()
	}

	if err := m.presence.Leave(ctx, roomID, m.self.ID); err != nil {
		m.log.Warn("presence deregistration failed", "error", err)
	}

	var remaining map[string]Participant
	ok, err := m.st.Get(ctx, store.ParticipantsPath(roomID), &remaining)
	if err != nil {
		m.log.Warn("participant check failed, skipping room cleanup", "error", err)
		return nil
	}
	if !ok || len(remaining) == 0 {
		if err := m.st.Delete(ctx, store.RoomPath(roomID)); err != nil {
			m.log.Warn("room cleanup failed", "error", err)
		} else {
			m.log.Info("room deleted", "room", roomID)
		}
	}

	return nil
}

// State reports the current negotiation state, or StateIdle before any
// session exists.
func (m *Manager) State() rtc.State {
	m.mu.Lock()
	session := m.session
	m.mu.Unlock()
	if session == nil {
		return rtc.StateIdle
	}
	return session.State()
}

// Role reports the negotiated role, empty before any session exists.
func (m *Manager) Role() rtc.Role {
	m.mu.Lock()
	session := m.session
	m.mu.Unlock()
	if session == nil {
		return ""
	}
	return session.Role()
}

// RoomID returns the joined room's identifier, empty before joining.
func (m *Manager) RoomID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.roomID
}
