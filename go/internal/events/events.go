package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Event is the envelope for everything pushed to clients and to the event stream
type Event struct {
	ID        string          `json:"id"`        // Event UUID
	Type      EventType       `json:"type"`      // Event type
	Timestamp time.Time       `json:"timestamp"` // Event creation time
	Data      json.RawMessage `json:"data"`      // Event-specific payload
}

// EventType represents the type of event
type EventType string

const (
	EventTypeMoveMade         EventType = "move.made"
	EventTypeGameEnd          EventType = "game.end"
	EventTypeGameState        EventType = "game.state"
	EventTypeDrawOffered      EventType = "draw.offered"
	EventTypeDrawAccepted     EventType = "draw.accepted"
	EventTypeDrawDeclined     EventType = "draw.declined"
	EventTypeTakebackOffered  EventType = "takeback.offered"
	EventTypeTakebackAccepted EventType = "takeback.accepted"
	EventTypeTakebackDeclined EventType = "takeback.declined"

	EventTypeMatchFound   EventType = "match.found"
	EventTypeQueueTimeout EventType = "queue.timeout"

	EventTypeTournamentStarted      EventType = "tournament.started"
	EventTypeTournamentCountdown    EventType = "tournament.countdown"
	EventTypeTournamentEnded        EventType = "tournament.ended"
	EventTypeTournamentGameUnscored EventType = "tournament.game_unscored"

	EventTypeAck   EventType = "ack"
	EventTypeError EventType = "error"
)

// Stream subjects, appended to the configured prefix.
const (
	SubjectGameEnded          = "game.ended"
	SubjectTournamentFinished = "tournament.finished"
	SubjectAnalysisRequested  = "analysis.requested"
)

// New builds an event of the given type around payload.
func New(eventType EventType, payload any, now time.Time) (*Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
	}
	return &Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: now.UTC(),
		Data:      data,
	}, nil
}

// Decode unmarshals the event payload into out.
func (e *Event) Decode(out any) error {
	if err := json.Unmarshal(e.Data, out); err != nil {
		return fmt.Errorf("failed to unmarshal %s payload: %w", e.Type, err)
	}
	return nil
}
