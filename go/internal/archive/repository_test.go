package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/mcdev12/gambit/go/internal/archive/db"
	"github.com/mcdev12/gambit/go/internal/models"
)

type memoryQueries struct {
	games       map[uuid.UUID]db.Game
	tournaments map[uuid.UUID]db.Tournament
	results     []db.InsertTournamentResultParams
	failResult  error
}

func newMemoryQueries() *memoryQueries {
	return &memoryQueries{games: map[uuid.UUID]db.Game{}, tournaments: map[uuid.UUID]db.Tournament{}}
}

func (m *memoryQueries) InsertGame(_ context.Context, arg db.InsertGameParams) (int64, error) {
	if _, ok := m.games[arg.ID]; ok {
		return 0, nil
	}
	m.games[arg.ID] = db.Game{
		ID: arg.ID, WhiteID: arg.WhiteID, BlackID: arg.BlackID, TimeControl: arg.TimeControl,
		Rated: arg.Rated, TournamentID: arg.TournamentID, InitialPosition: arg.InitialPosition,
		Moves: arg.Moves, MoveTimesMs: arg.MoveTimesMs, Result: arg.Result, Reason: arg.Reason,
		StartedAt: arg.StartedAt, EndedAt: arg.EndedAt,
	}
	return 1, nil
}

func (m *memoryQueries) GetGame(_ context.Context, id uuid.UUID) (db.Game, error) {
	g, ok := m.games[id]
	if !ok {
		return db.Game{}, sql.ErrNoRows
	}
	return g, nil
}

func (m *memoryQueries) UpsertTournament(_ context.Context, arg db.UpsertTournamentParams) error {
	if t, ok := m.tournaments[arg.ID]; ok && t.Status != string(models.TournamentStatusUpcoming) {
		return nil
	}
	m.tournaments[arg.ID] = db.Tournament{
		ID: arg.ID, Name: arg.Name, TimeControl: arg.TimeControl, Rated: arg.Rated,
		StartsAt: arg.StartsAt, DurationSeconds: arg.DurationSeconds, Teams: arg.Teams,
		TeamLeaders: arg.TeamLeaders, Status: arg.Status,
	}
	return nil
}

func (m *memoryQueries) ListUnfinishedTournaments(context.Context) ([]db.Tournament, error) {
	var out []db.Tournament
	for _, t := range m.tournaments {
		if t.Status != string(models.TournamentStatusFinished) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *memoryQueries) SetTournamentStatus(_ context.Context, arg db.SetTournamentStatusParams) (int64, error) {
	t, ok := m.tournaments[arg.ID]
	if !ok {
		return 0, nil
	}
	t.Status = arg.Status
	m.tournaments[arg.ID] = t
	return 1, nil
}

func (m *memoryQueries) InsertTournamentResult(_ context.Context, arg db.InsertTournamentResultParams) error {
	if m.failResult != nil {
		return m.failResult
	}
	m.results = append(m.results, arg)
	return nil
}

func newTestRepository(q *memoryQueries) *Repository {
	return &Repository{
		queries: q,
		inTx: func(_ context.Context, fn func(Querier) error) error {
			return fn(q)
		},
	}
}

var testStart = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func TestPersistAndLoadGame(t *testing.T) {
	q := newMemoryQueries()
	repo := newTestRepository(q)
	ctx := context.Background()
	tid := uuid.New()
	rec := models.GameRecord{
		ID:           uuid.New(),
		WhiteID:      "alice",
		BlackID:      "bob",
		TimeControl:  "3+2",
		Rated:        true,
		TournamentID: &tid,
		Moves:        []string{"e2e4", "e7e5"},
		MoveTimesMs:  []int64{0, 800},
		Result:       models.ResultDraw,
		Reason:       models.ReasonDrawAgreement,
		StartedAt:    testStart,
		EndedAt:      testStart.Add(time.Minute),
	}

	if err := repo.PersistGame(ctx, rec); err != nil {
		t.Fatalf("PersistGame() error = %v", err)
	}
	if err := repo.PersistGame(ctx, rec); err != nil {
		t.Fatalf("second PersistGame() error = %v", err)
	}

	got, err := repo.GetGame(ctx, rec.ID)
	if err != nil {
		t.Fatalf("GetGame() error = %v", err)
	}
	if got.TournamentID == nil || *got.TournamentID != tid {
		t.Fatalf("tournament id = %v, want %s", got.TournamentID, tid)
	}
	if len(got.Moves) != 2 || got.MoveTimesMs[1] != 800 || got.Reason != models.ReasonDrawAgreement {
		t.Fatalf("loaded game = %+v", got)
	}
}

func TestPersistGameWithoutMoves(t *testing.T) {
	q := newMemoryQueries()
	repo := newTestRepository(q)
	rec := models.GameRecord{ID: uuid.New(), Result: models.ResultAborted, Reason: models.ReasonNoStart}
	if err := repo.PersistGame(context.Background(), rec); err != nil {
		t.Fatalf("PersistGame() error = %v", err)
	}
	if g := q.games[rec.ID]; g.Moves == nil || g.MoveTimesMs == nil || g.TournamentID.Valid {
		t.Fatalf("stored game = %+v, want empty arrays and NULL tournament", g)
	}
}

func TestGetGameNotArchived(t *testing.T) {
	repo := newTestRepository(newMemoryQueries())
	if _, err := repo.GetGame(context.Background(), uuid.New()); !errors.Is(err, ErrGameNotArchived) {
		t.Fatalf("GetGame() error = %v, want ErrGameNotArchived", err)
	}
}

func TestTournamentRoundTrip(t *testing.T) {
	q := newMemoryQueries()
	repo := newTestRepository(q)
	ctx := context.Background()
	settings := models.TournamentSettings{
		ID:          uuid.New(),
		Name:        "Team Battle",
		TimeControl: "5+0",
		Rated:       true,
		StartsAt:    testStart,
		Duration:    90 * time.Minute,
		Teams:       []string{"red", "blue"},
		TeamLeaders: 3,
	}
	if err := repo.SaveTournament(ctx, settings); err != nil {
		t.Fatalf("SaveTournament() error = %v", err)
	}

	list, err := repo.ListUpcomingTournaments(ctx)
	if err != nil || len(list) != 1 {
		t.Fatalf("ListUpcomingTournaments() = %v, %v", list, err)
	}
	if got := list[0]; got.Duration != 90*time.Minute || got.TeamLeaders != 3 || len(got.Teams) != 2 {
		t.Fatalf("restored settings = %+v", got)
	}

	result := models.TournamentResult{
		TournamentID: settings.ID,
		WinnerID:     "alice",
		WinningTeam:  "red",
		FinishedAt:   testStart.Add(90 * time.Minute),
		Standings:    []models.Standing{{Rank: 1, UserID: "alice", Score: 8}},
		TeamStandings: []models.TeamStanding{
			{Rank: 1, TeamID: "red", Score: 8, Leaders: []string{"alice"}},
		},
	}
	if err := repo.RecordTournamentResult(ctx, result); err != nil {
		t.Fatalf("RecordTournamentResult() error = %v", err)
	}
	if list, _ := repo.ListUpcomingTournaments(ctx); len(list) != 0 {
		t.Fatalf("finished tournament still listed: %+v", list)
	}

	stored := q.results[0]
	if !stored.WinnerID.Valid || stored.WinnerID.String != "alice" || !stored.TeamStandings.Valid {
		t.Fatalf("stored result = %+v", stored)
	}
	var standings []models.Standing
	if err := json.Unmarshal(stored.Standings, &standings); err != nil || standings[0].Score != 8 {
		t.Fatalf("standings column = %s, %v", stored.Standings, err)
	}
}

func TestRecordTournamentResultIndividualEvent(t *testing.T) {
	q := newMemoryQueries()
	repo := newTestRepository(q)
	if err := repo.RecordTournamentResult(context.Background(), models.TournamentResult{TournamentID: uuid.New()}); err != nil {
		t.Fatalf("RecordTournamentResult() error = %v", err)
	}
	stored := q.results[0]
	if stored.WinnerID.Valid || stored.TeamStandings.Valid || string(stored.Standings) != "[]" {
		t.Fatalf("stored result = %+v", stored)
	}
}

func TestRecordTournamentResultPropagatesFailure(t *testing.T) {
	q := newMemoryQueries()
	q.failResult = errors.New("connection reset")
	repo := newTestRepository(q)
	if err := repo.RecordTournamentResult(context.Background(), models.TournamentResult{TournamentID: uuid.New()}); err == nil {
		t.Fatalf("RecordTournamentResult() succeeded with a failing store")
	}
}
