package room

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/harichselvamc/peertopeer/internal/logging"
	"github.com/harichselvamc/peertopeer/internal/store"
)

// Participant is one member of a room's participant set. The record is
// owned and written only by the participant itself, keyed by its own
// identifier, so self-removal is always well-defined.
type Participant struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	JoinedAt int64  `json:"joinedAt"`
}

// NewParticipant builds the local participant record.
func NewParticipant(id, name string) Participant {
	return Participant{
		ID:       id,
		Name:     name,
		JoinedAt: time.Now().UnixMilli(),
	}
}

// Presence maintains a room's participant set: self-registration with
// automatic deregistration on abnormal disconnect, and full-snapshot
// watching. It runs alongside negotiation, independent of its outcome.
type Presence struct {
	st  store.Store
	log *slog.Logger
}

func NewPresence(st store.Store) *Presence {
	return &Presence{
		st:  st,
		log: logging.Component("presence"),
	}
}

// Join writes the participant record and registers a deferred delete
// for that exact path, so an abrupt loss of connectivity still results
// in eventual removal without a heartbeat protocol. The hook is
// registered first: a crash between the two steps then leaves nothing
// behind.
func (p *Presence) Join(ctx context.Context, roomID string, part Participant) error {
	path := store.ParticipantPath(roomID, part.ID)

	if err := p.st.OnDisconnect(ctx, path); err != nil {
		return err
	}
	if err := p.st.Set(ctx, path, part); err != nil {
		return err
	}

	p.log.Debug("joined", "room", roomID, "participant", part.ID)
	return nil
}

// Watch streams the room's full participant mapping on every change.
// Consumers receive snapshots, not diffs; intermediate states may be
// coalesced.
type Watch struct {
	C      <-chan map[string]Participant
	cancel func()
}

func (w *Watch) Cancel() {
	w.cancel()
}

func (p *Presence) Watch(ctx context.Context, roomID string) (*Watch, error) {
	sub, err := p.st.Watch(ctx, store.ParticipantsPath(roomID))
	if err != nil {
		return nil, err
	}

	out := make(chan map[string]Participant, 16)
	go func() {
		defer close(out)
		for ev := range sub.C {
			snapshot := make(map[string]Participant)
			if len(ev.Data) > 0 {
				if err := json.Unmarshal(ev.Data, &snapshot); err != nil {
					p.log.Warn("unreadable participant snapshot", "error", err)
					continue
				}
			}
			// Latest value wins: if the consumer lags, displace
			// the oldest queued snapshot rather than block.
			for {
				select {
				case out <- snapshot:
				default:
					select {
					case <-out:
					default:
					}
					continue
				}
				break
			}
		}
	}()

	return &Watch{C: out, cancel: sub.Cancel}, nil
}

// Leave removes the participant record. Idempotent: removing an absent
// record is a no-op.
func (p *Presence) Leave(ctx context.Context, roomID, participantID string) error {
	return p.st.Delete(ctx, store.ParticipantPath(roomID, participantID))
}
