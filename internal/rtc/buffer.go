package rtc

import (
	"log/slog"

	pion "github.com/pion/webrtc/v4"
)

// CandidateBuffer absorbs the race between remote-description
// application and remote candidate arrival: the store delivers
// candidate-added events independent of the local connection's
// readiness. It is owned by the session event loop and is not safe for
// concurrent use.
type CandidateBuffer struct {
	apply func(pion.ICECandidateInit) error
	log   *slog.Logger
	queue []pion.ICECandidateInit
	live  bool
}

// NewCandidateBuffer creates a buffer that applies candidates through
// the given function once the remote description is in place.
func NewCandidateBuffer(apply func(pion.ICECandidateInit) error, log *slog.Logger) *CandidateBuffer {
	return &CandidateBuffer{apply: apply, log: log}
}

// Offer hands a remote candidate to the buffer. Before Flush the
// candidate is queued; afterwards it is applied immediately.
func (b *CandidateBuffer) Offer(candidate pion.ICECandidateInit) {
	if !b.live {
		b.queue = append(b.queue, candidate)
		return
	}
	b.applyOne(candidate)
}

// Flush applies every queued candidate in arrival order and switches
// the buffer to immediate-apply mode. Called exactly once, right after
// the remote description is applied.
func (b *CandidateBuffer) Flush() {
	b.live = true
	queued := b.queue
	b.queue = nil
	for _, candidate := range queued {
		b.applyOne(candidate)
	}
}

// Pending reports how many candidates are waiting for Flush.
func (b *CandidateBuffer) Pending() int {
	return len(b.queue)
}

// applyOne applies a single candidate. A failure is logged and the
// candidate skipped; one bad network-path hint must not abort
// negotiation.
func (b *CandidateBuffer) applyOne(candidate pion.ICECandidateInit) {
	if err := b.apply(candidate); err != nil {
		b.log.Warn("skipping ICE candidate", "error", err)
	}
}
