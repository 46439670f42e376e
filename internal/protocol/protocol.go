// Package protocol defines the wire format shared by the HTTP API and
// the live websocket feed. It has no dependencies on the server
// internals so client tooling can import it directly.
package protocol

import "encoding/json"

const Version = "1.0"

// Message types.
const (
	TypeWelcome   = "WELCOME"
	TypePlotEvent = "PLOT_EVENT"
	TypeError     = "ERROR"
	TypePing      = "PING"
	TypePong      = "PONG"
)

// BaseMessage lets us route unknown JSON messages by type.
type BaseMessage struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}
