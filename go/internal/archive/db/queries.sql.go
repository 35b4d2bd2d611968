package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/sqlc-dev/pqtype"
)

const insertGame = `
INSERT INTO games (
    id, white_id, black_id, time_control, rated, tournament_id, initial_position,
    moves, move_times_ms, result, reason, started_at, ended_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
ON CONFLICT (id) DO NOTHING
`

type InsertGameParams struct {
	ID              uuid.UUID
	WhiteID         string
	BlackID         string
	TimeControl     string
	Rated           bool
	TournamentID    uuid.NullUUID
	InitialPosition string
	Moves           []string
	MoveTimesMs     []int64
	Result          string
	Reason          string
	StartedAt       time.Time
	EndedAt         time.Time
}

// InsertGame reports the number of rows written; 0 means the game was
// already archived.
func (q *Queries) InsertGame(ctx context.Context, arg InsertGameParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, insertGame,
		arg.ID,
		arg.WhiteID,
		arg.BlackID,
		arg.TimeControl,
		arg.Rated,
		arg.TournamentID,
		arg.InitialPosition,
		pq.Array(arg.Moves),
		pq.Array(arg.MoveTimesMs),
		arg.Result,
		arg.Reason,
		arg.StartedAt,
		arg.EndedAt,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const getGame = `
SELECT id, white_id, black_id, time_control, rated, tournament_id, initial_position,
       moves, move_times_ms, result, reason, started_at, ended_at, created_at
FROM games
WHERE id = $1
`

func (q *Queries) GetGame(ctx context.Context, id uuid.UUID) (Game, error) {
	row := q.db.QueryRowContext(ctx, getGame, id)
	var i Game
	err := row.Scan(
		&i.ID,
		&i.WhiteID,
		&i.BlackID,
		&i.TimeControl,
		&i.Rated,
		&i.TournamentID,
		&i.InitialPosition,
		pq.Array(&i.Moves),
		pq.Array(&i.MoveTimesMs),
		&i.Result,
		&i.Reason,
		&i.StartedAt,
		&i.EndedAt,
		&i.CreatedAt,
	)
	return i, err
}

const upsertTournament = `
INSERT INTO tournaments (id, name, time_control, rated, starts_at, duration_seconds, teams, team_leaders, status)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (id) DO UPDATE SET
    name = EXCLUDED.name,
    time_control = EXCLUDED.time_control,
    rated = EXCLUDED.rated,
    starts_at = EXCLUDED.starts_at,
    duration_seconds = EXCLUDED.duration_seconds,
    teams = EXCLUDED.teams,
    team_leaders = EXCLUDED.team_leaders
WHERE tournaments.status = 'UPCOMING'
`

type UpsertTournamentParams struct {
	ID              uuid.UUID
	Name            string
	TimeControl     string
	Rated           bool
	StartsAt        time.Time
	DurationSeconds int32
	Teams           []string
	TeamLeaders     int32
	Status          string
}

func (q *Queries) UpsertTournament(ctx context.Context, arg UpsertTournamentParams) error {
	_, err := q.db.ExecContext(ctx, upsertTournament,
		arg.ID,
		arg.Name,
		arg.TimeControl,
		arg.Rated,
		arg.StartsAt,
		arg.DurationSeconds,
		pq.Array(arg.Teams),
		arg.TeamLeaders,
		arg.Status,
	)
	return err
}

const listUnfinishedTournaments = `
SELECT id, name, time_control, rated, starts_at, duration_seconds, teams, team_leaders, status, created_at
FROM tournaments
WHERE status <> 'FINISHED'
ORDER BY starts_at
`

func (q *Queries) ListUnfinishedTournaments(ctx context.Context) ([]Tournament, error) {
	rows, err := q.db.QueryContext(ctx, listUnfinishedTournaments)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Tournament
	for rows.Next() {
		var i Tournament
		if err := rows.Scan(
			&i.ID,
			&i.Name,
			&i.TimeControl,
			&i.Rated,
			&i.StartsAt,
			&i.DurationSeconds,
			pq.Array(&i.Teams),
			&i.TeamLeaders,
			&i.Status,
			&i.CreatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const setTournamentStatus = `
UPDATE tournaments SET status = $2 WHERE id = $1
`

type SetTournamentStatusParams struct {
	ID     uuid.UUID
	Status string
}

func (q *Queries) SetTournamentStatus(ctx context.Context, arg SetTournamentStatusParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, setTournamentStatus, arg.ID, arg.Status)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const insertTournamentResult = `
INSERT INTO tournament_results (tournament_id, winner_id, winning_team, standings, team_standings, finished_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (tournament_id) DO NOTHING
`

type InsertTournamentResultParams struct {
	TournamentID  uuid.UUID
	WinnerID      sql.NullString
	WinningTeam   sql.NullString
	Standings     []byte
	TeamStandings pqtype.NullRawMessage
	FinishedAt    time.Time
}

func (q *Queries) InsertTournamentResult(ctx context.Context, arg InsertTournamentResultParams) error {
	_, err := q.db.ExecContext(ctx, insertTournamentResult,
		arg.TournamentID,
		arg.WinnerID,
		arg.WinningTeam,
		arg.Standings,
		arg.TeamStandings,
		arg.FinishedAt,
	)
	return err
}
