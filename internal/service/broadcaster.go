package service

import (
	"context"

	"jamsync/internal/model"
)

// Relay message types produced by the durable side.
const (
	EventQueueSnapshot = "queue_snapshot"
	EventQueueAdd      = "queue_add"
	EventPlaybackState = "playback_state"
	EventControlsMode  = "controls_mode"
)

// Broadcaster pushes canonical updates to the live relay. It is implemented
// in-process by the websocket hub and across processes by RelayClient.
type Broadcaster interface {
	Push(ctx context.Context, sessionID, msgType string, payload interface{}) error
}

type queueSnapshotEvent struct {
	Tracks  []model.QueueItem `json:"tracks"`
	Index   *int              `json:"index,omitempty"`
	Version int               `json:"version"`
}

type queueAddEvent struct {
	Items   []model.QueueItem `json:"items"`
	Version int               `json:"version"`
}

type controlsModeEvent struct {
	AllowControls bool `json:"allowControls"`
}
