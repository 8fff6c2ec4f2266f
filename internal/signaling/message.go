package signaling

// messageType identifies the kind of signaling message.
type messageType string

const (
	msgTypeEndpoint messageType = "endpoint"
	msgTypeError    messageType = "error"
)

// message is the JSON structure exchanged over the WebSocket.
type message struct {
	Type     messageType `json:"type"`
	Endpoint string      `json:"endpoint,omitempty"` // "ip:port"
	Reason   string      `json:"reason,omitempty"`
}
