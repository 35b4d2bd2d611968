package game

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/gambit/go/internal/events"
	"github.com/mcdev12/gambit/go/internal/models"
)

// ManagerDeps are the collaborators of a Manager. Archiver, Publisher and
// Dispatcher may be nil, in which case the matching hand-off is skipped.
type ManagerDeps struct {
	Clock            clockwork.Clock
	Registry         *Registry
	Validator        Validator
	Transport        Transport
	Dispatcher       Dispatcher
	Archiver         Archiver
	Publisher        Publisher
	FirstMoveTimeout time.Duration
}

// Manager creates sessions, routes users to them and reaps them.
type Manager struct {
	clk              clockwork.Clock
	registry         *Registry
	validator        Validator
	transport        Transport
	dispatcher       Dispatcher
	archiver         Archiver
	publisher        Publisher
	firstMoveTimeout time.Duration

	listenersMu sync.RWMutex
	listeners   []ResultListener
}

// NewManager creates a game manager.
func NewManager(deps ManagerDeps) *Manager {
	clk := deps.Clock
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	registry := deps.Registry
	if registry == nil {
		registry = NewRegistry()
	}
	return &Manager{
		clk:              clk,
		registry:         registry,
		validator:        deps.Validator,
		transport:        deps.Transport,
		dispatcher:       deps.Dispatcher,
		archiver:         deps.Archiver,
		publisher:        deps.Publisher,
		firstMoveTimeout: deps.FirstMoveTimeout,
	}
}

// AddListener registers l for every finished game.
func (m *Manager) AddListener(l ResultListener) {
	m.listenersMu.Lock()
	defer m.listenersMu.Unlock()
	m.listeners = append(m.listeners, l)
}

// CreateRequest describes a pairing to turn into a game.
type CreateRequest struct {
	White           Player
	Black           Player
	TimeControl     models.TimeControl
	Rated           bool
	TournamentID    *uuid.UUID
	InitialPosition string
}

// CreateGame starts a session for a pairing and notifies both players.
func (m *Manager) CreateGame(ctx context.Context, req CreateRequest) (*Session, error) {
	if req.White.UserID == req.Black.UserID {
		return nil, ErrSamePlayer
	}

	cfg := Config{
		ID:              uuid.New(),
		White:           req.White,
		Black:           req.Black,
		TimeControl:     req.TimeControl,
		Rated:           req.Rated,
		TournamentID:    req.TournamentID,
		InitialPosition: req.InitialPosition,
	}
	s, err := newSession(cfg, m.clk, m.validator, m.transport, m.firstMoveTimeout, m.sessionEnded)
	if err != nil {
		return nil, err
	}
	if err := m.registry.Add(s); err != nil {
		return nil, err
	}
	s.start()

	log.Info().
		Str("game_id", s.id.String()).
		Str("white", req.White.UserID).
		Str("black", req.Black.UserID).
		Str("time_control", req.TimeControl.String()).
		Bool("rated", req.Rated).
		Msg("game created")

	m.notifyMatch(s, models.White)
	m.notifyMatch(s, models.Black)
	return s, nil
}

func (m *Manager) notifyMatch(s *Session, color models.Color) {
	ev, err := events.New(events.EventTypeMatchFound, events.MatchFoundPayload{
		GameID:      s.id.String(),
		Color:       color,
		Opponent:    s.player(color.Opponent()).UserID,
		TimeControl: s.cfg.TimeControl.String(),
		Rated:       s.cfg.Rated,
	}, m.clk.Now())
	if err != nil {
		log.Error().Err(err).Str("game_id", s.id.String()).Msg("failed to build match.found")
		return
	}
	m.transport.Send(s.player(color).UserID, ev)
}

// Resolve finds a game and the side userID plays in it.
func (m *Manager) Resolve(gameID uuid.UUID, userID string) (*Session, models.Color, error) {
	s, ok := m.registry.Get(gameID)
	if !ok {
		return nil, 0, ErrGameNotFound
	}
	color, err := s.ColorOf(userID)
	if err != nil {
		return nil, 0, err
	}
	return s, color, nil
}

// Session returns a retained session by id.
func (m *Manager) Session(gameID uuid.UUID) (*Session, error) {
	s, ok := m.registry.Get(gameID)
	if !ok {
		return nil, ErrGameNotFound
	}
	return s, nil
}

// ActiveGame returns the running game of userID.
func (m *Manager) ActiveGame(userID string) (*Session, bool) {
	return m.registry.Active(userID)
}

// InGame reports whether userID is playing right now.
func (m *Manager) InGame(userID string) bool {
	_, ok := m.registry.Active(userID)
	return ok
}

// Connected marks userID as present in all of their games.
func (m *Manager) Connected(ctx context.Context, userID string) {
	for _, s := range m.registry.ForUser(userID) {
		color, err := s.ColorOf(userID)
		if err != nil {
			continue
		}
		if _, err := s.SetConnected(ctx, color, true); err != nil {
			log.Debug().Err(err).Str("game_id", s.id.String()).Msg("connect on closed session")
		}
	}
}

// Disconnected marks userID as gone and reaps finished games nobody watches.
func (m *Manager) Disconnected(ctx context.Context, userID string) {
	for _, s := range m.registry.ForUser(userID) {
		color, err := s.ColorOf(userID)
		if err != nil {
			continue
		}
		reapable, err := s.SetConnected(ctx, color, false)
		if err != nil {
			log.Debug().Err(err).Str("game_id", s.id.String()).Msg("disconnect on closed session")
			continue
		}
		if reapable {
			m.reap(s)
		}
	}
}

// Counts returns the number of running and retained sessions.
func (m *Manager) Counts() (active, retained int) {
	return m.registry.Counts()
}

// Close stops every session actor.
func (m *Manager) Close() {
	m.registry.mu.RLock()
	sessions := make([]*Session, 0, len(m.registry.sessions))
	for _, s := range m.registry.sessions {
		sessions = append(sessions, s)
	}
	m.registry.mu.RUnlock()

	for _, s := range sessions {
		s.stop()
	}
}

// sessionEnded runs on the session's actor right after it ends.
func (m *Manager) sessionEnded(s *Session, rec models.GameRecord) {
	m.registry.Retire(s.id)
	m.handOff(rec)

	m.listenersMu.RLock()
	listeners := m.listeners
	m.listenersMu.RUnlock()
	for _, l := range listeners {
		l.GameEnded(rec)
	}

	if s.reapable() {
		m.reap(s)
	}
}

func (m *Manager) handOff(rec models.GameRecord) {
	if m.dispatcher == nil {
		return
	}
	gameID := rec.ID.String()

	if m.archiver != nil {
		m.submit(gameID, "persist_game", func(ctx context.Context) error {
			return m.archiver.PersistGame(ctx, rec)
		})
	}
	if m.publisher == nil {
		return
	}
	m.submit(gameID, "publish_game_ended", func(ctx context.Context) error {
		return m.publisher.Publish(ctx, events.SubjectGameEnded, gameID+".ended", rec)
	})
	if rec.Result.Scoring() && len(rec.Moves) > 0 {
		job := events.AnalysisRequestPayload{
			GameID:          gameID,
			WhiteID:         rec.WhiteID,
			BlackID:         rec.BlackID,
			TimeControl:     rec.TimeControl,
			InitialPosition: rec.InitialPosition,
			Moves:           rec.Moves,
			MoveTimesMs:     rec.MoveTimesMs,
			Result:          rec.Result,
			Reason:          rec.Reason,
		}
		m.submit(gameID, "request_analysis", func(ctx context.Context) error {
			return m.publisher.Publish(ctx, events.SubjectAnalysisRequested, gameID+".analysis", job)
		})
	}
}

func (m *Manager) submit(gameID, name string, fn func(ctx context.Context) error) {
	if !m.dispatcher.Submit(name, fn) {
		log.Warn().Str("game_id", gameID).Str("task", name).Msg("hand-off queue full, dropping task")
	}
}

func (m *Manager) reap(s *Session) {
	m.registry.Remove(s.id)
	s.stop()
	log.Debug().Str("game_id", s.id.String()).Msg("session reaped")
}
