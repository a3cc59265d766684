package ws

import "encoding/json"

// Event is the envelope for every frame in both directions.
type Event struct {
	Op   string `json:"op"`
	Data any    `json:"d,omitempty"`
	Seq  int64  `json:"seq,omitempty"`
}

// inbound frames keep the payload raw until the op is known
type inEvent struct {
	Op   string          `json:"op"`
	Data json.RawMessage `json:"d,omitempty"`
}

// client -> server
const (
	OpHeartbeat = "heartbeat"
	OpSend      = "message"
	OpTyping    = "typing"
)

// server -> client
const (
	OpReady         = "ready"
	OpHeartbeatAck  = "heartbeat_ack"
	OpMessageCreate = "message_create"
	OpTypingStart   = "typing_start"
	OpMemberJoin    = "member_join"
	OpMemberLeave   = "member_leave"
	OpError         = "error"
)

type SendData struct {
	Message string `json:"message"`
}

type TypingData struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
}

type PresenceData struct {
	UserID   int64   `json:"user_id"`
	Username string  `json:"username"`
	Online   []int64 `json:"online"`
}

type ReadyData struct {
	Room   string  `json:"room"`
	Online []int64 `json:"online"`
}

type ErrorData struct {
	Message string `json:"message"`
}
