package chat

import (
	"errors"
	"sync"
	"testing"

	pion "github.com/pion/webrtc/v4"
)

// fakeChannel implements rtc.DataChannel without a transport.
type fakeChannel struct {
	mu        sync.Mutex
	state     pion.DataChannelState
	onOpen    func()
	onClose   func()
	onMessage func(pion.DataChannelMessage)
	sent      [][]byte
	sendErr   error
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{state: pion.DataChannelStateConnecting}
}

func (c *fakeChannel) Label() string { return "chat" }

func (c *fakeChannel) ReadyState() pion.DataChannelState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *fakeChannel) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != pion.DataChannelStateOpen {
		return errors.New("not open")
	}
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, data)
	return nil
}

func (c *fakeChannel) OnOpen(f func())  { c.mu.Lock(); c.onOpen = f; c.mu.Unlock() }
func (c *fakeChannel) OnClose(f func()) { c.mu.Lock(); c.onClose = f; c.mu.Unlock() }
func (c *fakeChannel) OnMessage(f func(pion.DataChannelMessage)) {
	c.mu.Lock()
	c.onMessage = f
	c.mu.Unlock()
}

func (c *fakeChannel) Close() error {
	c.mu.Lock()
	c.state = pion.DataChannelStateClosed
	cb := c.onClose
	c.mu.Unlock()
	if cb != nil {
		cb()
	}
	return nil
}

func (c *fakeChannel) open() {
	c.mu.Lock()
	c.state = pion.DataChannelStateOpen
	cb := c.onOpen
	c.mu.Unlock()
	if cb != nil {
		cb()
	}
}

func (c *fakeChannel) deliver(data []byte) {
	c.mu.Lock()
	cb := c.onMessage
	c.mu.Unlock()
	if cb != nil {
		cb(pion.DataChannelMessage{IsString: false, Data: data})
	}
}

func TestSendBeforeBindRejected(t *testing.T) {
	ch := NewChannel("alice")
	if _, err := ch.Send("hello"); !errors.Is(err, ErrChannelNotReady) {
		t.Fatalf("Send on unbound channel: got %v, want ErrChannelNotReady", err)
	}
}

func TestSendBeforeOpenRejected(t *testing.T) {
	ch := NewChannel("alice")
	dc := newFakeChannel()
	ch.Bind(dc)

	if _, err := ch.Send("hello"); !errors.Is(err, ErrChannelNotReady) {
		t.Fatalf("Send before open: got %v, want ErrChannelNotReady", err)
	}
	if len(dc.sent) != 0 {
		t.Fatal("payload leaked onto a channel that was not open")
	}
}

func TestSendTransportFailureWrapsSentinel(t *testing.T) {
	ch := NewChannel("alice")
	dc := newFakeChannel()
	ch.Bind(dc)
	dc.open()
	dc.mu.Lock()
	dc.sendErr = errors.New("sctp stream reset")
	dc.mu.Unlock()

	_, err := ch.Send("hello")
	if !errors.Is(err, ErrSendFailed) {
		t.Fatalf("Send over broken transport: got %v, want ErrSendFailed", err)
	}

	var cerr *ChannelError
	if !errors.As(err, &cerr) || cerr.Op != "send message" {
		t.Fatalf("error lost its operation context: %v", err)
	}
}

func TestSendEncodesEnvelope(t *testing.T) {
	ch := NewChannel("alice")
	dc := newFakeChannel()
	ch.Bind(dc)
	dc.open()

	if !ch.Ready() {
		t.Fatal("channel should be ready after open")
	}

	sent, err := ch.Send("hello there")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if sent.From != "alice" || sent.Body != "hello there" || sent.ID == "" {
		t.Fatalf("unexpected outbound message: %+v", sent)
	}

	if len(dc.sent) != 1 {
		t.Fatalf("got %d wire payloads, want 1", len(dc.sent))
	}
	decoded, err := Decode(dc.sent[0])
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if decoded.ID != sent.ID || decoded.Body != sent.Body {
		t.Fatalf("wire payload %+v does not match %+v", decoded, sent)
	}
}

func TestInboundMessagesDeliveredInOrder(t *testing.T) {
	ch := NewChannel("alice")
	dc := newFakeChannel()

	var got []string
	ch.OnMessage(func(m Message) {
		got = append(got, m.Body)
	})
	ch.Bind(dc)
	dc.open()

	for _, body := range []string{"one", "two", "three"} {
		data, err := Encode(NewMessage("bob", body))
		if err != nil {
			t.Fatalf("Encode: %v", err)
		}
		dc.deliver(data)
	}

	if len(got) != 3 || got[0] != "one" || got[1] != "two" || got[2] != "three" {
		t.Fatalf("delivered %v, want [one two three]", got)
	}
}

func TestUndecodablePayloadDropped(t *testing.T) {
	ch := NewChannel("alice")
	dc := newFakeChannel()

	var got []Message
	ch.OnMessage(func(m Message) { got = append(got, m) })
	ch.Bind(dc)
	dc.open()

	dc.deliver([]byte{0xc1}) // reserved msgpack byte, never valid
	data, _ := Encode(NewMessage("bob", "still works"))
	dc.deliver(data)

	if len(got) != 1 || got[0].Body != "still works" {
		t.Fatalf("delivered %v, want just the valid message", got)
	}
}

func TestStatusTransitionsCollapseDuplicates(t *testing.T) {
	ch := NewChannel("alice")
	dc := newFakeChannel()

	var transitions []Status
	ch.OnStatusChange(func(s Status) { transitions = append(transitions, s) })
	ch.Bind(dc)

	dc.open()
	// pion can re-announce open on renegotiation; the facade collapses it.
	dc.mu.Lock()
	cb := dc.onOpen
	dc.mu.Unlock()
	cb()

	dc.Close()

	want := []Status{StatusConnected, StatusDisconnected}
	if len(transitions) != len(want) {
		t.Fatalf("transitions %v, want %v", transitions, want)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Fatalf("transitions %v, want %v", transitions, want)
		}
	}
	if ch.Status() != StatusDisconnected {
		t.Fatalf("status = %v, want disconnected", ch.Status())
	}
}
