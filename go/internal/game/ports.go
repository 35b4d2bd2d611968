package game

import (
	"context"

	"github.com/mcdev12/gambit/go/internal/events"
	"github.com/mcdev12/gambit/go/internal/models"
)

// Status is the rules engine's verdict on a position.
type Status struct {
	Over   bool
	Result models.Result
	Reason models.EndReason
}

// Validator is the rules engine. Moves are opaque strings to the session.
type Validator interface {
	IsLegal(moves []string, initialPosition, candidate string) bool
	Apply(moves []string, candidate string) []string
	TerminalStatus(moves []string, initialPosition string) Status
	SideToMove(initialPosition string) (models.Color, error)
}

// Transport delivers events to a user's live connections. Best effort.
type Transport interface {
	Send(userID string, event *events.Event)
}

// Archiver persists finished games.
type Archiver interface {
	PersistGame(ctx context.Context, rec models.GameRecord) error
}

// Publisher pushes domain events and analysis jobs to the event stream.
type Publisher interface {
	Publish(ctx context.Context, subject, msgID string, payload any) error
}

// Dispatcher runs fire-and-forget background work. Submit never blocks.
type Dispatcher interface {
	Submit(name string, fn func(ctx context.Context) error) bool
}

// ResultListener is told about every finished game. It must not block.
type ResultListener interface {
	GameEnded(rec models.GameRecord)
}
