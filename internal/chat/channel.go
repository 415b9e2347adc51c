package chat

import (
	"fmt"
	"log/slog"
	"sync"

	pion "github.com/pion/webrtc/v4"

	"github.com/harichselvamc/peertopeer/internal/logging"
	"github.com/harichselvamc/peertopeer/internal/rtc"
)

// Status is the facade-level connection status surfaced to the UI.
type Status string

const (
	StatusConnected    Status = "connected"
	StatusDisconnected Status = "disconnected"
)

// Channel is the thin session facade handed to the UI layer: send,
// receive, and readiness notifications. It holds no protocol logic.
type Channel struct {
	self string
	log  *slog.Logger

	mu        sync.Mutex
	dc        rtc.DataChannel
	status    Status
	onMessage func(Message)
	onStatus  func(Status)
}

// NewChannel creates an unbound facade for the given local sender
// identity. Bind attaches the data channel once negotiation produces
// one; handlers registered before Bind never miss an event.
func NewChannel(self string) *Channel {
	return &Channel{
		self:   self,
		log:    logging.Component("channel"),
		status: StatusDisconnected,
	}
}

// OnMessage registers the inbound message handler. Messages are
// delivered in arrival order, exactly once.
func (c *Channel) OnMessage(f func(Message)) {
	c.mu.Lock()
	c.onMessage = f
	c.mu.Unlock()
}

// OnStatusChange registers the status handler. Duplicate identical
// statuses are collapsed.
func (c *Channel) OnStatusChange(f func(Status)) {
	c.mu.Lock()
	c.onStatus = f
	c.mu.Unlock()
}

// Bind attaches the negotiated data channel to the facade.
func (c *Channel) Bind(dc rtc.DataChannel) {
	c.mu.Lock()
	c.dc = dc
	c.mu.Unlock()

	dc.OnOpen(func() {
		c.setStatus(StatusConnected)
	})

	dc.OnClose(func() {
		c.setStatus(StatusDisconnected)
	})

	dc.OnMessage(func(msg pion.DataChannelMessage) {
		m, err := Decode(msg.Data)
		if err != nil {
			c.log.Warn("dropping undecodable payload", "error", err)
			return
		}
		c.mu.Lock()
		cb := c.onMessage
		c.mu.Unlock()
		if cb != nil {
			cb(m)
		}
	})

	if dc.ReadyState() == pion.DataChannelStateOpen {
		c.setStatus(StatusConnected)
	}
}

// Ready reports whether Send would currently be accepted.
func (c *Channel) Ready() bool {
	c.mu.Lock()
	dc := c.dc
	c.mu.Unlock()
	return dc != nil && dc.ReadyState() == pion.DataChannelStateOpen
}

// Send transmits a chat payload. It fails immediately with
// ErrChannelNotReady unless the underlying channel is open; callers
// must not assume queueing.
func (c *Channel) Send(body string) (Message, error) {
	c.mu.Lock()
	dc := c.dc
	c.mu.Unlock()

	if dc == nil || dc.ReadyState() != pion.DataChannelStateOpen {
		return Message{}, ErrChannelNotReady
	}

	m := NewMessage(c.self, body)
	data, err := Encode(m)
	if err != nil {
		return Message{}, NewError("encode message", err)
	}
	if err := dc.Send(data); err != nil {
		return Message{}, NewError("send message", fmt.Errorf("%w: %v", ErrSendFailed, err))
	}
	return m, nil
}

// Status returns the last surfaced status.
func (c *Channel) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// setStatus collapses duplicate transitions before notifying.
func (c *Channel) setStatus(next Status) {
	c.mu.Lock()
	if c.status == next {
		c.mu.Unlock()
		return
	}
	c.status = next
	cb := c.onStatus
	c.mu.Unlock()

	if cb != nil {
		cb(next)
	}
}
