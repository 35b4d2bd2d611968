// Package archive stores finished games and tournament results in Postgres.
package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/gambit/go/internal/apperr"
	"github.com/mcdev12/gambit/go/internal/archive/db"
	"github.com/mcdev12/gambit/go/internal/models"
	"github.com/mcdev12/gambit/go/internal/sqlutil"
)

var ErrGameNotArchived = apperr.NotFound("game_not_archived", "game is not in the archive")

// Querier defines what the repository needs from the database layer
type Querier interface {
	InsertGame(ctx context.Context, arg db.InsertGameParams) (int64, error)
	GetGame(ctx context.Context, id uuid.UUID) (db.Game, error)
	UpsertTournament(ctx context.Context, arg db.UpsertTournamentParams) error
	ListUnfinishedTournaments(ctx context.Context) ([]db.Tournament, error)
	SetTournamentStatus(ctx context.Context, arg db.SetTournamentStatusParams) (int64, error)
	InsertTournamentResult(ctx context.Context, arg db.InsertTournamentResultParams) error
}

// Repository implements archive data access operations
type Repository struct {
	queries Querier
	inTx    func(ctx context.Context, fn func(q Querier) error) error
}

// NewRepository creates a repository over database.
func NewRepository(database *sql.DB) *Repository {
	return &Repository{
		queries: db.New(database),
		inTx: func(ctx context.Context, fn func(q Querier) error) error {
			return sqlutil.Run(ctx, database, db.New, func(q *db.Queries) error { return fn(q) })
		},
	}
}

// PersistGame archives a finished game. Archiving the same game twice is a
// no-op.
func (r *Repository) PersistGame(ctx context.Context, rec models.GameRecord) error {
	rows, err := r.queries.InsertGame(ctx, db.InsertGameParams{
		ID:              rec.ID,
		WhiteID:         rec.WhiteID,
		BlackID:         rec.BlackID,
		TimeControl:     rec.TimeControl,
		Rated:           rec.Rated,
		TournamentID:    sqlutil.ToNullUUID(rec.TournamentID),
		InitialPosition: rec.InitialPosition,
		Moves:           nonNil(rec.Moves),
		MoveTimesMs:     nonNil(rec.MoveTimesMs),
		Result:          string(rec.Result),
		Reason:          string(rec.Reason),
		StartedAt:       rec.StartedAt,
		EndedAt:         rec.EndedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to insert game: %w", err)
	}
	if rows == 0 {
		log.Debug().Str("game_id", rec.ID.String()).Msg("game already archived")
	}
	return nil
}

// GetGame loads an archived game.
func (r *Repository) GetGame(ctx context.Context, id uuid.UUID) (models.GameRecord, error) {
	g, err := r.queries.GetGame(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.GameRecord{}, ErrGameNotArchived
		}
		return models.GameRecord{}, fmt.Errorf("failed to get game: %w", err)
	}
	return models.GameRecord{
		ID:              g.ID,
		WhiteID:         g.WhiteID,
		BlackID:         g.BlackID,
		TimeControl:     g.TimeControl,
		Rated:           g.Rated,
		TournamentID:    sqlutil.FromNullUUID(g.TournamentID),
		InitialPosition: g.InitialPosition,
		Moves:           nonNil(g.Moves),
		MoveTimesMs:     nonNil(g.MoveTimesMs),
		Result:          models.Result(g.Result),
		Reason:          models.EndReason(g.Reason),
		StartedAt:       g.StartedAt,
		EndedAt:         g.EndedAt,
	}, nil
}

// SaveTournament stores a scheduled tournament. Tournaments that already
// started keep their stored settings.
func (r *Repository) SaveTournament(ctx context.Context, s models.TournamentSettings) error {
	if err := r.queries.UpsertTournament(ctx, db.UpsertTournamentParams{
		ID:              s.ID,
		Name:            s.Name,
		TimeControl:     s.TimeControl,
		Rated:           s.Rated,
		StartsAt:        s.StartsAt,
		DurationSeconds: int32(s.Duration / time.Second),
		Teams:           nonNil(s.Teams),
		TeamLeaders:     int32(s.TeamLeaders),
		Status:          string(models.TournamentStatusUpcoming),
	}); err != nil {
		return fmt.Errorf("failed to save tournament: %w", err)
	}
	return nil
}

// ListUpcomingTournaments returns every stored tournament that has not
// finished, soonest first.
func (r *Repository) ListUpcomingTournaments(ctx context.Context) ([]models.TournamentSettings, error) {
	rows, err := r.queries.ListUnfinishedTournaments(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list tournaments: %w", err)
	}
	out := make([]models.TournamentSettings, 0, len(rows))
	for _, t := range rows {
		out = append(out, models.TournamentSettings{
			ID:          t.ID,
			Name:        t.Name,
			TimeControl: t.TimeControl,
			Rated:       t.Rated,
			StartsAt:    t.StartsAt,
			Duration:    time.Duration(t.DurationSeconds) * time.Second,
			Teams:       t.Teams,
			TeamLeaders: int(t.TeamLeaders),
		})
	}
	return out, nil
}

// RecordTournamentResult stores final standings and marks the tournament
// finished in one transaction.
func (r *Repository) RecordTournamentResult(ctx context.Context, result models.TournamentResult) error {
	standings, err := json.Marshal(nonNil(result.Standings))
	if err != nil {
		return fmt.Errorf("failed to marshal standings: %w", err)
	}
	teamStandings, err := sqlutil.ToNullJSON(result.TeamStandings)
	if err != nil {
		return err
	}

	return r.inTx(ctx, func(q Querier) error {
		if err := q.InsertTournamentResult(ctx, db.InsertTournamentResultParams{
			TournamentID:  result.TournamentID,
			WinnerID:      sqlutil.ToNullString(result.WinnerID),
			WinningTeam:   sqlutil.ToNullString(result.WinningTeam),
			Standings:     standings,
			TeamStandings: teamStandings,
			FinishedAt:    result.FinishedAt,
		}); err != nil {
			return fmt.Errorf("failed to insert tournament result: %w", err)
		}
		if _, err := q.SetTournamentStatus(ctx, db.SetTournamentStatusParams{
			ID:     result.TournamentID,
			Status: string(models.TournamentStatusFinished),
		}); err != nil {
			return fmt.Errorf("failed to mark tournament finished: %w", err)
		}
		return nil
	})
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
