package relay

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/harichselvamc/peertopeer/internal/store"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. Large enough for SDP
	// documents with room to spare.
	maxMessageSize = 256 * 1024
)

// conn is one connected store client. Each connection gets its own
// handle onto the shared backend; when the socket drops, closing the
// handle fires the disconnect hooks the client registered.
type conn struct {
	ws     *websocket.Conn
	handle *store.Memory
	log    *slog.Logger

	// send is a buffered channel for all outbound frames. Watch
	// forwarders and the request handler write to it; writePump drains
	// it onto the socket.
	send chan *store.Frame

	// done signals the pumps to shut the connection down. Closed when
	// the client stops draining its send buffer.
	done   chan struct{}
	closer sync.Once

	mu   sync.Mutex
	subs map[uint64]*store.Subscription
}

// readPump pumps frames from the websocket connection and executes the
// store operations they carry.
//
// The application runs readPump in a per-connection goroutine. All
// reads happen here, so there is at most one reader per connection.
func (c *conn) readPump() {
	defer func() {
		c.teardown()
		c.ws.Close()
	}()

	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var frame store.Frame
		if err := c.ws.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Debug("read error", "error", err)
			}
			return
		}

		c.dispatch(&frame)
	}
}

// writePump pumps frames from the send channel to the websocket
// connection and sends periodic pings.
func (c *conn) writePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteJSON(frame); err != nil {
				return
			}

		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			c.ws.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}

// dispatch executes one request frame and replies on the send channel.
func (c *conn) dispatch(frame *store.Frame) {
	ctx := context.Background()

	switch frame.Op {

	case store.OpSet:
		err := c.handle.Set(ctx, frame.Path, json.RawMessage(frame.Value))
		c.reply(&store.Frame{ID: frame.ID, Error: errString(err)})

	case store.OpPush:
		key, err := c.handle.Push(ctx, frame.Path, json.RawMessage(frame.Value))
		c.reply(&store.Frame{ID: frame.ID, Key: key, Error: errString(err)})

	case store.OpGet:
		var value json.RawMessage
		exists, err := c.handle.Get(ctx, frame.Path, &value)
		c.reply(&store.Frame{ID: frame.ID, Exists: exists, Value: value, Error: errString(err)})

	case store.OpDelete:
		err := c.handle.Delete(ctx, frame.Path)
		c.reply(&store.Frame{ID: frame.ID, Error: errString(err)})

	case store.OpOnDisconnect:
		err := c.handle.OnDisconnect(ctx, frame.Path)
		c.reply(&store.Frame{ID: frame.ID, Error: errString(err)})

	case store.OpWatch:
		sub, err := c.handle.Watch(ctx, frame.Path)
		c.startForwarder(frame, sub, err, store.EventValue)

	case store.OpWatchChildren:
		sub, err := c.handle.WatchChildren(ctx, frame.Path)
		c.startForwarder(frame, sub, err, store.EventChild)

	case store.OpUnwatch:
		c.mu.Lock()
		sub := c.subs[frame.Sub]
		delete(c.subs, frame.Sub)
		c.mu.Unlock()
		if sub != nil {
			sub.Cancel()
		}

	default:
		c.reply(&store.Frame{ID: frame.ID, Error: "unknown op: " + frame.Op})
	}
}

// startForwarder acknowledges a watch request and pipes its events to
// the client until the subscription is cancelled.
func (c *conn) startForwarder(frame *store.Frame, sub *store.Subscription, err error, kind string) {
	if err != nil {
		c.reply(&store.Frame{ID: frame.ID, Error: err.Error()})
		return
	}

	subID := frame.Sub
	c.mu.Lock()
	c.subs[subID] = sub
	c.mu.Unlock()

	c.reply(&store.Frame{ID: frame.ID})

	go func() {
		for ev := range sub.C {
			c.reply(&store.Frame{
				Sub:   subID,
				Event: kind,
				Path:  ev.Path,
				Key:   ev.Key,
				Value: ev.Data,
			})
		}
	}()
}

// reply queues an outbound frame. A consumer that stopped draining is
// disconnected rather than served a stream with a hole in it: a
// skipped watch event could stall the peer's negotiation with no other
// symptom, while a dropped connection fires the client's failure
// handling and the handle's disconnect hooks.
func (c *conn) reply(frame *store.Frame) {
	select {
	case c.send <- frame:
	case <-c.done:
	default:
		c.log.Warn("disconnecting slow consumer", "op", frame.Op)
		c.close()
	}
}

// close shuts the connection down exactly once. writePump sends the
// close message and releases the socket; readPump then fails and runs
// teardown.
func (c *conn) close() {
	c.closer.Do(func() {
		close(c.done)
	})
}

// teardown cancels the connection's subscriptions and closes its store
// handle, which fires the registered disconnect hooks.
func (c *conn) teardown() {
	c.mu.Lock()
	subs := c.subs
	c.subs = make(map[uint64]*store.Subscription)
	c.mu.Unlock()

	for _, sub := range subs {
		sub.Cancel()
	}
	c.handle.Close()
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
