package gateway

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// FrameType is the kind of update pushed over the websocket
type FrameType string

const (
	FrameVerification FrameType = "verification"
	FrameCountdown    FrameType = "countdown"
	FrameSession      FrameType = "session"
)

// Frame is the envelope for every websocket message
type Frame struct {
	ID        string          `json:"id"`
	FlowID    string          `json:"flow_id"`
	Type      FrameType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// CountdownPayload is the data of a countdown frame
type CountdownPayload struct {
	Timer            string `json:"timer"`
	TimerID          string `json:"timer_id"`
	RemainingSeconds int    `json:"remaining_seconds"`
	Elapsed          bool   `json:"elapsed"`
}

func newFrame(flowID uuid.UUID, frameType FrameType, at time.Time, data any) (*Frame, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &Frame{
		ID:        uuid.NewString(),
		FlowID:    flowID.String(),
		Type:      frameType,
		Timestamp: at.UTC(),
		Data:      raw,
	}, nil
}
