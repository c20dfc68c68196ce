// Package hub fans messages out to websocket clients through a single
// channel-driven loop.
package hub

// MessageType indicates the websocket message format.
type MessageType int

const (
	// JSONMessage is a JSON-encoded text message.
	JSONMessage MessageType = iota
	// BinaryMessage is raw binary data such as a JPEG frame.
	BinaryMessage
)

func (t MessageType) String() string {
	if t == BinaryMessage {
		return "binary"
	}
	return "json"
}

// Message is one broadcast payload.
type Message struct {
	Type MessageType
	Data []byte

	// Coalesce marks a message that supersedes whatever is still queued for
	// a lagging client. The hub replaces the oldest queued message instead of
	// dropping the client.
	Coalesce bool
}

// NewJSONMessage wraps pre-encoded JSON.
func NewJSONMessage(data []byte) Message {
	return Message{Type: JSONMessage, Data: data}
}

// NewBinaryMessage wraps binary data.
func NewBinaryMessage(data []byte) Message {
	return Message{Type: BinaryMessage, Data: data}
}

// NewFrameMessage wraps an encoded video frame. Only the newest frame matters
// to a viewer, so frame messages coalesce.
func NewFrameMessage(data []byte) Message {
	return Message{Type: BinaryMessage, Data: data, Coalesce: true}
}
