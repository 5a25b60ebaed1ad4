package websocket

import (
	"time"

	"github.com/salvatore0626/PiZeroMetarMap/internal/metar"
)

// ConditionObserver bridges refresh notifications to WebSocket broadcasts
type ConditionObserver struct {
	server *Server
}

// NewConditionObserver creates an observer that pushes condition updates
// through the given hub.
func NewConditionObserver(server *Server) *ConditionObserver {
	return &ConditionObserver{server: server}
}

// ConditionsUpdated broadcasts the refreshed conditions to all clients
func (o *ConditionObserver) ConditionsUpdated(conditions map[string]metar.Condition, changed bool, duration time.Duration, generation uint64) {
	o.server.Broadcast(&Message{
		Type: MessageTypeConditionsUpdated,
		Data: map[string]any{
			"stations":    conditions,
			"changed":     changed,
			"duration_ms": duration.Milliseconds(),
			"generation":  generation,
		},
	})
}

// FetchFailed tells clients the last fetch attempt failed; the previous
// conditions remain in effect.
func (o *ConditionObserver) FetchFailed(err error, consecutiveFailures int) {
	o.server.Broadcast(&Message{
		Type: MessageTypeFetchFailed,
		Data: map[string]any{
			"error":                err.Error(),
			"consecutive_failures": consecutiveFailures,
		},
	})
}
