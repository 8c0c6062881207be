package ws

type MessageType string

const (
	MsgSnapshot MessageType = "snapshot" // payload: session.Snapshot
	MsgHealth   MessageType = "health"   // payload: monitor.HealthReport
)

// WSMessage is the envelope of every frame sent to /ws clients. Seq is the
// store sequence number of a snapshot frame.
type WSMessage struct {
	Type    MessageType `json:"type"`
	Seq     uint64      `json:"seq,omitempty"`
	Payload interface{} `json:"payload"`
}

// errorResponse is the body of every failed API request.
type errorResponse struct {
	Error string `json:"error"`
}
