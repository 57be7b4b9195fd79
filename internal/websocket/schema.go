package websocket

import "github.com/stemsi/learntrack-backend/internal/model"

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionTelemetry Action = "telemetry"
	ActionFinalize  Action = "finalize"
	ActionPing      Action = "ping"
)

// RequestEnvelope is used to peek at the action before full parsing.
type RequestEnvelope struct {
	Action Action `json:"action"`
}

// TelemetryRequest carries an incremental telemetry report.
type TelemetryRequest struct {
	Action  Action               `json:"action"`
	Metrics model.TelemetryDelta `json:"metrics"`
}

// FinalizeRequest closes the session and asks for the verdict.
type FinalizeRequest struct {
	Action Action `json:"action"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventError  Event = "error"
	EventAck    Event = "ack"
	EventResult Event = "result"
	EventPong   Event = "pong"
)

type AckResponse struct {
	Event  Event  `json:"event"`
	Status string `json:"status"`
}

type ResultResponse struct {
	Event  Event                   `json:"event"`
	Result *model.ProctoringResult `json:"result"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
