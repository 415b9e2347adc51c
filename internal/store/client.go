package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/harichselvamc/peertopeer/internal/dns"
	"github.com/harichselvamc/peertopeer/internal/logging"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 256 * 1024

	requestTimeout = 10 * time.Second
)

// Client is a Store backed by a WebSocket connection to the relay.
type Client struct {
	conn      *websocket.Conn
	serverURL string
	log       *slog.Logger

	outgoing chan *Frame
	done     chan struct{}

	mu      sync.Mutex
	closed  bool
	nextID  uint64
	pending map[uint64]chan *Frame
	subs    map[uint64]*Subscription
}

var _ Store = (*Client)(nil)

// NewClient creates a store client for the given relay URL.
func NewClient(serverURL string) *Client {
	return &Client{
		serverURL: serverURL,
		log:       logging.Component("store"),
		outgoing:  make(chan *Frame, 16),
		done:      make(chan struct{}),
		pending:   make(map[uint64]chan *Frame),
		subs:      make(map[uint64]*Subscription),
	}
}

// Connect establishes the WebSocket connection to the relay.
func (c *Client) Connect() error {
	u, err := url.Parse(c.serverURL)
	if err != nil {
		return fmt.Errorf("invalid relay URL: %w", err)
	}

	// Custom dialer with resilient DNS lookup
	dialer := websocket.DefaultDialer
	dialer.NetDial = func(network, addr string) (net.Conn, error) {
		host, port, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, err
		}

		resolvedIP, err := dns.Lookup(host)
		if err != nil {
			return nil, fmt.Errorf("dns lookup failed: %w", err)
		}

		return net.Dial(network, net.JoinHostPort(resolvedIP, port))
	}

	conn, _, err := dialer.Dial(u.String(), nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}

	c.conn = conn

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go c.readPump()
	go c.writePump()

	return nil
}

// readPump reads frames from the connection and routes them to pending
// requests or live subscriptions.
func (c *Client) readPump() {
	defer func() {
		c.conn.Close()
		c.failAll()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))

	for {
		var frame Frame
		if err := c.conn.ReadJSON(&frame); err != nil {
			return
		}

		if frame.Event != "" {
			c.mu.Lock()
			sub := c.subs[frame.Sub]
			c.mu.Unlock()
			if sub != nil {
				sub.emit(Event{Path: frame.Path, Key: frame.Key, Data: frame.Value})
			}
			continue
		}

		c.mu.Lock()
		ch := c.pending[frame.ID]
		delete(c.pending, frame.ID)
		c.mu.Unlock()
		if ch != nil {
			ch <- &frame
		}
	}
}

// writePump writes frames to the connection and sends periodic pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame := <-c.outgoing:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(frame); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}

// request performs one request/response exchange with the relay.
func (c *Client) request(ctx context.Context, frame *Frame) (*Frame, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	c.nextID++
	frame.ID = c.nextID
	ch := make(chan *Frame, 1)
	c.pending[frame.ID] = ch
	c.mu.Unlock()

	select {
	case c.outgoing <- frame:
	case <-c.done:
		return nil, ErrClosed
	case <-ctx.Done():
		c.forget(frame.ID)
		return nil, ctx.Err()
	}

	timer := time.NewTimer(requestTimeout)
	defer timer.Stop()

	select {
	case resp := <-ch:
		if resp == nil {
			return nil, ErrClosed
		}
		return resp, nil
	case <-timer.C:
		c.forget(frame.ID)
		return nil, fmt.Errorf("%w: request timed out", ErrWrite)
	case <-c.done:
		return nil, ErrClosed
	case <-ctx.Done():
		c.forget(frame.ID)
		return nil, ctx.Err()
	}
}

func (c *Client) forget(id uint64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// failAll unblocks every pending request after the connection drops.
func (c *Client) failAll() {
	c.mu.Lock()
	pending := c.pending
	c.pending = make(map[uint64]chan *Frame)
	c.mu.Unlock()
	for _, ch := range pending {
		close(ch)
	}
}

func (c *Client) Set(ctx context.Context, path string, value any) error {
	data, err := marshalValue(value)
	if err != nil {
		return err
	}
	resp, err := c.request(ctx, &Frame{Op: OpSet, Path: path, Value: data})
	if err != nil {
		return err
	}
	if resp.Error != "" {
		return fmt.Errorf("%w: %s", ErrWrite, resp.Error)
	}
	return nil
}

func (c *Client) Push(ctx context.Context, path string, value any) (string, error) {
	data, err := marshalValue(value)
	if err != nil {
		return "", err
	}
	resp, err := c.request(ctx, &Frame{Op: OpPush, Path: path, Value: data})
	if err != nil {
		return "", err
	}
	if resp.Error != "" {
		return "", fmt.Errorf("%w: %s", ErrWrite, resp.Error)
	}
	return resp.Key, nil
}

func (c *Client) Get(ctx context.Context, path string, dest any) (bool, error) {
	resp, err := c.request(ctx, &Frame{Op: OpGet, Path: path})
	if err != nil {
		return false, err
	}
	if resp.Error != "" {
		return false, fmt.Errorf("read %s: %s", path, resp.Error)
	}
	if !resp.Exists {
		return false, nil
	}
	if dest != nil {
		if err := json.Unmarshal(resp.Value, dest); err != nil {
			return true, fmt.Errorf("decode value at %s: %w", path, err)
		}
	}
	return true, nil
}

func (c *Client) Watch(ctx context.Context, path string) (*Subscription, error) {
	return c.subscribe(ctx, OpWatch, path)
}

func (c *Client) WatchChildren(ctx context.Context, path string) (*Subscription, error) {
	return c.subscribe(ctx, OpWatchChildren, path)
}

// subscribe registers a subscription before the request goes out so
// that no event racing the response is lost; the subscription queue
// holds them until the consumer reads.
func (c *Client) subscribe(ctx context.Context, op, path string) (*Subscription, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	c.nextID++
	id := c.nextID
	ch := make(chan *Frame, 1)
	c.pending[id] = ch

	sub := newSubscription(func() { c.unwatch(id) })
	c.subs[id] = sub
	c.mu.Unlock()

	frame := &Frame{ID: id, Op: op, Path: path, Sub: id}

	select {
	case c.outgoing <- frame:
	case <-c.done:
		sub.Cancel()
		return nil, ErrClosed
	case <-ctx.Done():
		c.forget(id)
		sub.Cancel()
		return nil, ctx.Err()
	}

	timer := time.NewTimer(requestTimeout)
	defer timer.Stop()

	select {
	case resp := <-ch:
		if resp == nil {
			sub.Cancel()
			return nil, ErrClosed
		}
		if resp.Error != "" {
			sub.Cancel()
			return nil, fmt.Errorf("subscribe %s: %s", path, resp.Error)
		}
		return sub, nil
	case <-timer.C:
		c.forget(id)
		sub.Cancel()
		return nil, fmt.Errorf("subscribe %s: request timed out", path)
	case <-c.done:
		sub.Cancel()
		return nil, ErrClosed
	case <-ctx.Done():
		c.forget(id)
		sub.Cancel()
		return nil, ctx.Err()
	}
}

// unwatch tells the relay to drop a subscription. Best effort: the
// relay also drops everything when the connection closes.
func (c *Client) unwatch(id uint64) {
	c.mu.Lock()
	delete(c.subs, id)
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return
	}

	select {
	case c.outgoing <- &Frame{Op: OpUnwatch, Sub: id}:
	case <-c.done:
	default:
	}
}

func (c *Client) Delete(ctx context.Context, path string) error {
	resp, err := c.request(ctx, &Frame{Op: OpDelete, Path: path})
	if err != nil {
		return err
	}
	if resp.Error != "" {
		return fmt.Errorf("%w: %s", ErrWrite, resp.Error)
	}
	return nil
}

func (c *Client) OnDisconnect(ctx context.Context, path string) error {
	resp, err := c.request(ctx, &Frame{Op: OpOnDisconnect, Path: path})
	if err != nil {
		return err
	}
	if resp.Error != "" {
		return fmt.Errorf("%w: %s", ErrWrite, resp.Error)
	}
	return nil
}

// Close closes the WebSocket connection. The relay fires the handle's
// disconnect hooks server-side once the connection drops.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	subs := c.subs
	c.subs = make(map[uint64]*Subscription)
	c.mu.Unlock()

	for _, sub := range subs {
		sub.Cancel()
	}
	close(c.done)
	return nil
}
