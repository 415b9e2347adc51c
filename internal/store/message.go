package store

import "encoding/json"

// Operation constants for the relay wire protocol.
const (
	OpSet           = "set"
	OpPush          = "push"
	OpGet           = "get"
	OpDelete        = "delete"
	OpWatch         = "watch"
	OpWatchChildren = "watch_children"
	OpUnwatch       = "unwatch"
	OpOnDisconnect  = "on_disconnect"
)

// Event kinds carried in server-initiated frames.
const (
	EventValue = "value"
	EventChild = "child"
)

// Frame represents all WebSocket messages between a store client and the
// relay. Requests carry ID+Op; responses echo the ID; watch events carry
// Sub+Event and no ID.
type Frame struct {
	ID     uint64          `json:"id,omitempty"`
	Op     string          `json:"op,omitempty"`
	Path   string          `json:"path,omitempty"`
	Value  json.RawMessage `json:"value,omitempty"`
	Key    string          `json:"key,omitempty"`
	Exists bool            `json:"exists,omitempty"`
	Sub    uint64          `json:"sub,omitempty"`
	Event  string          `json:"event,omitempty"`
	Error  string          `json:"error,omitempty"`
}
