package models

import (
	"time"

	"github.com/google/uuid"
)

// TournamentStatus defines where a tournament is in its lifecycle.
type TournamentStatus string

const (
	TournamentStatusUpcoming TournamentStatus = "UPCOMING"
	TournamentStatusLive     TournamentStatus = "LIVE"
	TournamentStatusFinished TournamentStatus = "FINISHED"
)

// TournamentSettings describes a scheduled arena tournament.
type TournamentSettings struct {
	ID          uuid.UUID     `json:"id" yaml:"id"`
	Name        string        `json:"name" yaml:"name"`
	TimeControl string        `json:"time_control" yaml:"time_control"`
	Rated       bool          `json:"rated" yaml:"rated"`
	StartsAt    time.Time     `json:"starts_at" yaml:"starts_at"`
	Duration    time.Duration `json:"duration" yaml:"duration"`
	// Teams is empty for individual events.
	Teams []string `json:"teams,omitempty" yaml:"teams"`
	// TeamLeaders is how many top member scores count towards a team's score.
	TeamLeaders int `json:"team_leaders,omitempty" yaml:"team_leaders"`
}

// IsTeamBattle reports whether players compete for teams.
func (s TournamentSettings) IsTeamBattle() bool { return len(s.Teams) > 0 }

// Standing is one ranked row of a tournament leaderboard.
type Standing struct {
	Rank        int     `json:"rank"`
	UserID      string  `json:"user_id"`
	TeamID      string  `json:"team_id,omitempty"`
	Rating      int     `json:"rating"`
	Score       int     `json:"score"`
	Performance float64 `json:"performance"`
	Games       int     `json:"games"`
	Wins        int     `json:"wins"`
	Losses      int     `json:"losses"`
	Draws       int     `json:"draws"`
	Streak      int     `json:"streak"`
}

// TeamStanding is one ranked row of a team battle leaderboard.
type TeamStanding struct {
	Rank    int      `json:"rank"`
	TeamID  string   `json:"team_id"`
	Score   int      `json:"score"`
	Leaders []string `json:"leaders"`
}

// TournamentResult is the archived outcome of a finished tournament.
type TournamentResult struct {
	TournamentID  uuid.UUID      `json:"tournament_id"`
	Name          string         `json:"name"`
	WinnerID      string         `json:"winner_id,omitempty"`
	WinningTeam   string         `json:"winning_team,omitempty"`
	FinishedAt    time.Time      `json:"finished_at"`
	Standings     []Standing     `json:"standings"`
	TeamStandings []TeamStanding `json:"team_standings,omitempty"`
}
