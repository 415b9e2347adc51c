package chat

import (
	"time"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
)

// Message is one chat payload crossing the data channel.
type Message struct {
	ID     string `msgpack:"id"`
	From   string `msgpack:"from"`
	Body   string `msgpack:"body"`
	SentAt int64  `msgpack:"sentAt"`
}

// NewMessage builds an outbound message from the local sender.
func NewMessage(from, body string) Message {
	return Message{
		ID:     uuid.NewString(),
		From:   from,
		Body:   body,
		SentAt: time.Now().UnixMilli(),
	}
}

// Encode serializes a message for the wire.
func Encode(m Message) ([]byte, error) {
	return msgpack.Marshal(m)
}

// Decode parses a wire payload into a message.
func Decode(data []byte) (Message, error) {
	var m Message
	err := msgpack.Unmarshal(data, &m)
	return m, err
}
