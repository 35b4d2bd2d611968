package events

import (
	"time"

	"github.com/mcdev12/gambit/go/internal/models"
)

// Event payload types shared by the game, matchmaking, tournament and gateway packages

// TimeLeft is the remaining clock of both sides in milliseconds
type TimeLeft struct {
	White int64 `json:"white"`
	Black int64 `json:"black"`
}

// MoveMadePayload is the payload for a move.made event
type MoveMadePayload struct {
	GameID   string       `json:"gameId"`
	Move     string       `json:"move"`
	By       models.Color `json:"by"`
	ServerTs int64        `json:"serverTs"`
	Seq      int64        `json:"seq"`
	TimeLeft TimeLeft     `json:"timeLeft"`
}

// GameEndPayload is the payload for a game.end event
type GameEndPayload struct {
	GameID string           `json:"gameId"`
	Result models.Result    `json:"result"`
	Reason models.EndReason `json:"reason"`
}

// OfferPayload is the payload for draw.* and takeback.* events
type OfferPayload struct {
	GameID string       `json:"gameId"`
	By     models.Color `json:"by"`
}

// Offers lists the pending proposals in a snapshot
type Offers struct {
	Draw     models.Offer `json:"draw"`
	Takeback models.Offer `json:"takeback"`
}

// GameStatePayload is the payload for a game.state snapshot
type GameStatePayload struct {
	GameID          string           `json:"gameId"`
	White           string           `json:"white"`
	Black           string           `json:"black"`
	Moves           []string         `json:"moves"`
	TimeLeft        TimeLeft         `json:"timeLeft"`
	ToMove          models.Color     `json:"toMove"`
	Offers          Offers           `json:"offers"`
	InitialPosition string           `json:"initialPosition"`
	Ended           bool             `json:"ended"`
	Result          models.Result    `json:"result,omitempty"`
	Reason          models.EndReason `json:"reason,omitempty"`
}

// MatchFoundPayload is the payload for a match.found event
type MatchFoundPayload struct {
	GameID      string       `json:"gameId"`
	Color       models.Color `json:"color"`
	Opponent    string       `json:"opponent"`
	TimeControl string       `json:"timeControl"`
	Rated       bool         `json:"rated"`
}

// QueueTimeoutPayload is the payload for a queue.timeout event
type QueueTimeoutPayload struct {
	TimeControl string `json:"timeControl"`
	Rated       bool   `json:"rated"`
	WaitedMs    int64  `json:"waitedMs"`
}

// TournamentStartedPayload is the payload for a tournament.started event
type TournamentStartedPayload struct {
	TournamentID string    `json:"tournamentId"`
	Name         string    `json:"name"`
	StartedAt    time.Time `json:"startedAt"`
	EndsAt       time.Time `json:"endsAt"`
}

// TournamentCountdownPayload is the payload for a tournament.countdown event
type TournamentCountdownPayload struct {
	TournamentID string    `json:"tournamentId"`
	EndsAt       time.Time `json:"endsAt"`
	SecondsLeft  int       `json:"secondsLeft"`
}

// TournamentEndedPayload is the payload for a tournament.ended event
type TournamentEndedPayload struct {
	TournamentID  string                `json:"tournamentId"`
	WinnerID      string                `json:"winnerId,omitempty"`
	WinningTeam   string                `json:"winningTeam,omitempty"`
	Standings     []models.Standing     `json:"standings"`
	TeamStandings []models.TeamStanding `json:"teamStandings,omitempty"`
}

// GameUnscoredPayload tells a player their unfinished game will not count
type GameUnscoredPayload struct {
	TournamentID string `json:"tournamentId"`
	GameID       string `json:"gameId"`
}

// AckPayload acknowledges a client command
type AckPayload struct {
	Command string `json:"command"`
	Ref     string `json:"ref,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// ErrorPayload rejects a client command
type ErrorPayload struct {
	Command      string `json:"command"`
	Ref          string `json:"ref,omitempty"`
	Code         string `json:"code"`
	Message      string `json:"message"`
	RetryAfterMs int64  `json:"retryAfterMs,omitempty"`
}

// AnalysisRequestPayload is handed to the anti-cheat consumer when a game ends
type AnalysisRequestPayload struct {
	GameID          string           `json:"game_id"`
	WhiteID         string           `json:"white_id"`
	BlackID         string           `json:"black_id"`
	TimeControl     string           `json:"time_control"`
	InitialPosition string           `json:"initial_position"`
	Moves           []string         `json:"moves"`
	MoveTimesMs     []int64          `json:"move_times_ms"`
	Result          models.Result    `json:"result"`
	Reason          models.EndReason `json:"reason"`
}
