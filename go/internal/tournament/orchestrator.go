// Package tournament runs arena tournaments: a lifecycle sweep starts and
// finishes events, idle players are paired continuously and finished games
// are scored with streak bonuses and loss delays.
package tournament

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/gambit/go/internal/events"
	"github.com/mcdev12/gambit/go/internal/game"
	"github.com/mcdev12/gambit/go/internal/models"
)

const (
	DefaultSweepInterval = time.Second
	DefaultTeamLeaders   = 5
)

// GameStarter creates tournament games.
type GameStarter interface {
	CreateGame(ctx context.Context, req game.CreateRequest) (*game.Session, error)
	InGame(userID string) bool
}

// ResultRecorder archives final standings.
type ResultRecorder interface {
	RecordTournamentResult(ctx context.Context, result models.TournamentResult) error
}

// UpcomingLoader lists tournaments that have not finished yet.
type UpcomingLoader interface {
	ListUpcomingTournaments(ctx context.Context) ([]models.TournamentSettings, error)
}

// Deps are the collaborators of an Orchestrator. Dispatcher, Recorder and
// Publisher may be nil.
type Deps struct {
	Clock         clockwork.Clock
	Games         GameStarter
	Transport     game.Transport
	Dispatcher    game.Dispatcher
	Recorder      ResultRecorder
	Publisher     game.Publisher
	SweepInterval time.Duration
}

// Orchestrator owns every tournament. Its own lock only guards the index;
// each tournament has a lock of its own.
type Orchestrator struct {
	clk        clockwork.Clock
	games      GameStarter
	transport  game.Transport
	dispatcher game.Dispatcher
	recorder   ResultRecorder
	publisher  game.Publisher
	interval   time.Duration

	mu          sync.RWMutex
	tournaments map[uuid.UUID]*Tournament

	recording sync.WaitGroup
}

// New creates an orchestrator.
func New(deps Deps) *Orchestrator {
	clk := deps.Clock
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	interval := deps.SweepInterval
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &Orchestrator{
		clk:         clk,
		games:       deps.Games,
		transport:   deps.Transport,
		dispatcher:  deps.Dispatcher,
		recorder:    deps.Recorder,
		publisher:   deps.Publisher,
		interval:    interval,
		tournaments: make(map[uuid.UUID]*Tournament),
	}
}

// Create schedules a tournament.
func (o *Orchestrator) Create(ctx context.Context, settings models.TournamentSettings) (models.TournamentSettings, error) {
	if settings.ID == uuid.Nil {
		settings.ID = uuid.New()
	}
	settings.Name = strings.TrimSpace(settings.Name)
	if settings.Name == "" {
		return settings, fmt.Errorf("%w: name is required", ErrInvalidSettings)
	}
	tc, err := models.ParseTimeControl(settings.TimeControl)
	if err != nil {
		return settings, fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}
	settings.TimeControl = tc.String()
	if settings.Duration <= 0 {
		return settings, fmt.Errorf("%w: duration must be positive", ErrInvalidSettings)
	}
	if settings.StartsAt.IsZero() {
		settings.StartsAt = o.clk.Now()
	}
	if settings.IsTeamBattle() {
		if len(settings.Teams) < 2 {
			return settings, fmt.Errorf("%w: a team battle needs at least two teams", ErrInvalidSettings)
		}
		seen := make(map[string]bool, len(settings.Teams))
		for _, team := range settings.Teams {
			if team == "" || seen[team] {
				return settings, fmt.Errorf("%w: team ids must be unique and non-empty", ErrInvalidSettings)
			}
			seen[team] = true
		}
		if settings.TeamLeaders <= 0 {
			settings.TeamLeaders = DefaultTeamLeaders
		}
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if _, exists := o.tournaments[settings.ID]; exists {
		return settings, fmt.Errorf("%w: tournament %s already exists", ErrInvalidSettings, settings.ID)
	}
	o.tournaments[settings.ID] = newTournament(settings, tc)

	log.Info().
		Str("tournament_id", settings.ID.String()).
		Str("name", settings.Name).
		Str("time_control", settings.TimeControl).
		Time("starts_at", settings.StartsAt).
		Dur("duration", settings.Duration).
		Int("teams", len(settings.Teams)).
		Msg("tournament scheduled")
	return settings, nil
}

// Restore schedules every unfinished tournament the loader knows about.
func (o *Orchestrator) Restore(ctx context.Context, loader UpcomingLoader) (int, error) {
	list, err := loader.ListUpcomingTournaments(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list upcoming tournaments: %w", err)
	}
	restored := 0
	for _, settings := range list {
		if _, err := o.Create(ctx, settings); err != nil {
			log.Warn().Err(err).Str("tournament_id", settings.ID.String()).Msg("skipping tournament on restore")
			continue
		}
		restored++
	}
	return restored, nil
}

func (o *Orchestrator) get(id uuid.UUID) (*Tournament, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	t, ok := o.tournaments[id]
	if !ok {
		return nil, ErrTournamentNotFound
	}
	return t, nil
}

func (o *Orchestrator) all() []*Tournament {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]*Tournament, 0, len(o.tournaments))
	for _, t := range o.tournaments {
		out = append(out, t)
	}
	return out
}

// JoinRequest is a user entering a tournament.
type JoinRequest struct {
	UserID         string
	Rating         int
	TeamID         string
	AllowTakebacks bool
}

// Join enters a user. A withdrawn user rejoins with the record they had.
func (o *Orchestrator) Join(ctx context.Context, id uuid.UUID, req JoinRequest) error {
	t, err := o.get(id)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.finalized {
		return ErrTournamentFinished
	}
	if p, ok := t.players[req.UserID]; ok {
		if !p.Withdrawn {
			return ErrAlreadyJoined
		}
		p.Withdrawn = false
		log.Info().Str("tournament_id", id.String()).Str("user_id", req.UserID).Msg("player rejoined tournament")
		return nil
	}

	var team *Team
	if t.settings.IsTeamBattle() {
		var ok bool
		if team, ok = t.teams[req.TeamID]; !ok {
			return ErrUnknownTeam
		}
	} else {
		req.TeamID = ""
	}
	if req.Rating <= 0 {
		req.Rating = models.DefaultRating
	}

	t.players[req.UserID] = &Player{
		UserID:         req.UserID,
		TeamID:         req.TeamID,
		Rating:         req.Rating,
		AllowTakebacks: req.AllowTakebacks,
		PairableAt:     o.clk.Now(),
	}
	if team != nil {
		team.Members = append(team.Members, req.UserID)
		t.recomputeTeam(team.ID)
	}
	log.Info().
		Str("tournament_id", id.String()).
		Str("user_id", req.UserID).
		Str("team_id", req.TeamID).
		Int("rating", req.Rating).
		Msg("player joined tournament")
	return nil
}

// Withdraw stops pairing a user. Their score and any running game stand.
func (o *Orchestrator) Withdraw(ctx context.Context, id uuid.UUID, userID string) error {
	t, err := o.get(id)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.players[userID]
	if !ok {
		return ErrNotJoined
	}
	p.Withdrawn = true
	log.Info().Str("tournament_id", id.String()).Str("user_id", userID).Msg("player withdrew from tournament")
	return nil
}

// Standings returns a snapshot of a tournament.
func (o *Orchestrator) Standings(id uuid.UUID) (Snapshot, error) {
	t, err := o.get(id)
	if err != nil {
		return Snapshot{}, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshot(), nil
}

// List returns a snapshot of every tournament, soonest start first.
func (o *Orchestrator) List() []Snapshot {
	var out []Snapshot
	for _, t := range o.all() {
		t.mu.Lock()
		out = append(out, t.snapshot())
		t.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Settings.StartsAt.Before(out[j].Settings.StartsAt) })
	return out
}

// Sweep runs one lifecycle and pairing pass over every tournament.
func (o *Orchestrator) Sweep(ctx context.Context) {
	for _, t := range o.all() {
		t.mu.Lock()
		t.sweep(ctx, o, o.clk.Now())
		t.mu.Unlock()
	}
}

// Finalize closes a tournament now. It reports false if it was already closed.
func (o *Orchestrator) Finalize(id uuid.UUID) (bool, error) {
	t, err := o.get(id)
	if err != nil {
		return false, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.finalize(o, o.clk.Now()), nil
}

// RunScheduler sweeps on a fixed interval until ctx is done.
func (o *Orchestrator) RunScheduler(ctx context.Context) error {
	ticker := o.clk.NewTicker(o.interval)
	defer ticker.Stop()
	log.Info().Dur("interval", o.interval).Msg("tournament scheduler started")
	for {
		select {
		case <-ctx.Done():
			o.recording.Wait()
			log.Info().Msg("tournament scheduler stopped")
			return nil
		case <-ticker.Chan():
			o.Sweep(ctx)
		}
	}
}

// GameEnded scores tournament games off the session's goroutine.
func (o *Orchestrator) GameEnded(rec models.GameRecord) {
	if rec.TournamentID == nil {
		return
	}
	o.recording.Add(1)
	go func() {
		defer o.recording.Done()
		o.RecordGame(rec)
	}()
}

// RecordGame applies a finished game to its tournament.
func (o *Orchestrator) RecordGame(rec models.GameRecord) {
	if rec.TournamentID == nil {
		return
	}
	t, err := o.get(*rec.TournamentID)
	if err != nil {
		log.Warn().Str("game_id", rec.ID.String()).Msg("finished game belongs to an unknown tournament")
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.recordGame(rec, o.clk.Now())
}

func (o *Orchestrator) handOff(result models.TournamentResult) {
	if o.dispatcher == nil {
		return
	}
	id := result.TournamentID.String()
	if o.recorder != nil {
		o.submit(id, "record_tournament_result", func(ctx context.Context) error {
			return o.recorder.RecordTournamentResult(ctx, result)
		})
	}
	if o.publisher != nil {
		o.submit(id, "publish_tournament_finished", func(ctx context.Context) error {
			return o.publisher.Publish(ctx, events.SubjectTournamentFinished, id+".finished", result)
		})
	}
}

func (o *Orchestrator) submit(tournamentID, name string, fn func(ctx context.Context) error) {
	if !o.dispatcher.Submit(name, fn) {
		log.Warn().Str("tournament_id", tournamentID).Str("task", name).Msg("hand-off queue full, dropping task")
	}
}
