package game

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/gambit/go/internal/apperr"
	"github.com/mcdev12/gambit/go/internal/events"
	"github.com/mcdev12/gambit/go/internal/models"
)

// DefaultFirstMoveTimeout is how long a side may take over its first move
// before the game is aborted.
const DefaultFirstMoveTimeout = 30 * time.Second

const inboxSize = 64

// Player is one side of a game.
type Player struct {
	UserID         string
	Rating         int
	AllowTakebacks bool
}

// Config describes a game to start.
type Config struct {
	ID              uuid.UUID
	White           Player
	Black           Player
	TimeControl     models.TimeControl
	Rated           bool
	TournamentID    *uuid.UUID
	InitialPosition string
}

// MoveOutcome is the structured result of MakeMove.
type MoveOutcome struct {
	Accepted bool
	Move     string
	ServerTs int64
	TimeLeft events.TimeLeft
	Ended    bool
	Result   models.Result
	Reason   models.EndReason
}

type endHook func(s *Session, rec models.GameRecord)

// Session is one live game. All state below the mailbox is owned by the
// run goroutine; public methods submit closures to it and wait.
type Session struct {
	id        uuid.UUID
	cfg       Config
	clk       clockwork.Clock
	validator Validator
	transport Transport
	onEnd     endHook

	firstMoveTimeout time.Duration
	startedAt        time.Time

	inbox    chan func()
	quit     chan struct{}
	done     chan struct{}
	stopOnce sync.Once

	moves         []string
	moveTimes     []int64
	toMove        models.Color
	clock         *Clock
	drawOffer     models.Offer
	takebackOffer models.Offer
	ended         bool
	result        models.Result
	reason        models.EndReason
	endedAt       time.Time
	forfeit       *deadline
	deadlineGen   uint64
	connected     [2]bool
}

func newSession(cfg Config, clk clockwork.Clock, v Validator, t Transport, firstMoveTimeout time.Duration, onEnd endHook) (*Session, error) {
	toMove, err := v.SideToMove(cfg.InitialPosition)
	if err != nil {
		return nil, apperr.Wrap(ErrInvalidPosition, err)
	}
	if firstMoveTimeout <= 0 {
		firstMoveTimeout = DefaultFirstMoveTimeout
	}
	now := clk.Now()
	s := &Session{
		id:               cfg.ID,
		cfg:              cfg,
		clk:              clk,
		validator:        v,
		transport:        t,
		onEnd:            onEnd,
		firstMoveTimeout: firstMoveTimeout,
		startedAt:        now,
		inbox:            make(chan func(), inboxSize),
		quit:             make(chan struct{}),
		done:             make(chan struct{}),
		moves:            []string{},
		moveTimes:        []int64{},
		toMove:           toMove,
		clock:            NewClock(cfg.TimeControl, now),
		connected:        [2]bool{true, true},
	}
	return s, nil
}

// start launches the actor and arms the first deadline.
func (s *Session) start() {
	s.armDeadline(s.clk.Now())
	go s.run()
}

func (s *Session) run() {
	defer close(s.done)
	for {
		select {
		case fn := <-s.inbox:
			fn()
		case <-s.quit:
			return
		}
	}
}

// stop ends the actor. Pending calls fail with ErrSessionClosed.
func (s *Session) stop() {
	s.stopOnce.Do(func() { close(s.quit) })
}

// ID returns the game id.
func (s *Session) ID() uuid.UUID { return s.id }

// Config returns the settings the game was created with.
func (s *Session) Config() Config { return s.cfg }

// ColorOf returns the side played by userID.
func (s *Session) ColorOf(userID string) (models.Color, error) {
	switch userID {
	case s.cfg.White.UserID:
		return models.White, nil
	case s.cfg.Black.UserID:
		return models.Black, nil
	}
	return 0, ErrNotAParticipant
}

func (s *Session) player(c models.Color) Player {
	if c == models.White {
		return s.cfg.White
	}
	return s.cfg.Black
}

// do runs fn on the actor and waits for it to finish.
func (s *Session) do(ctx context.Context, fn func()) error {
	reply := make(chan struct{})
	select {
	case s.inbox <- func() { fn(); close(reply) }:
	case <-s.done:
		return ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-reply:
		return nil
	case <-s.done:
		select {
		case <-reply:
			return nil
		default:
			return ErrSessionClosed
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// post queues fn on the actor without waiting for it.
func (s *Session) post(fn func()) {
	select {
	case s.inbox <- fn:
	case <-s.done:
	}
}

// MakeMove applies move for side by. A move that arrives after the flag fell
// ends the game on time and is reported through the outcome, not an error.
func (s *Session) MakeMove(ctx context.Context, by models.Color, move string, clientTs, seq int64) (*MoveOutcome, error) {
	var (
		out *MoveOutcome
		err error
	)
	if derr := s.do(ctx, func() {
		out, err = s.makeMove(by, move, clientTs, seq)
		if errors.Is(err, ErrFlagFell) {
			s.end(models.WinFor(by.Opponent()), models.ReasonTimeForfeit)
			out, err = s.outcome(false, move), nil
		}
	}); derr != nil {
		return nil, derr
	}
	return out, err
}

func (s *Session) makeMove(by models.Color, move string, clientTs, seq int64) (*MoveOutcome, error) {
	if s.ended {
		return nil, ErrGameEnded
	}
	if by != s.toMove {
		return nil, ErrNotYourTurn
	}
	if !s.validator.IsLegal(s.moves, s.cfg.InitialPosition, move) {
		return nil, ErrIllegalMove
	}

	now := s.clk.Now()
	spent, ok := s.clock.AccountMove(by, now)
	if !ok {
		log.Info().
			Str("game_id", s.id.String()).
			Str("color", by.String()).
			Dur("spent", spent).
			Msg("move arrived after flag fell")
		return nil, ErrFlagFell
	}

	s.moves = s.validator.Apply(s.moves, move)
	s.moveTimes = append(s.moveTimes, spent.Milliseconds())
	s.toMove = by.Opponent()
	s.drawOffer = models.OfferNone
	s.takebackOffer = models.OfferNone

	serverTs := now.UnixMilli()
	if clientTs > 0 {
		log.Debug().
			Str("game_id", s.id.String()).
			Int64("lag_ms", serverTs-clientTs).
			Int64("seq", seq).
			Msg("move received")
	}
	s.broadcast(events.EventTypeMoveMade, events.MoveMadePayload{
		GameID:   s.id.String(),
		Move:     move,
		By:       by,
		ServerTs: serverTs,
		Seq:      seq,
		TimeLeft: s.timeLeft(now),
	})

	if status := s.validator.TerminalStatus(s.moves, s.cfg.InitialPosition); status.Over {
		s.end(status.Result, status.Reason)
	} else {
		s.armDeadline(now)
	}
	return s.outcome(true, move), nil
}

func (s *Session) outcome(accepted bool, move string) *MoveOutcome {
	now := s.clk.Now()
	return &MoveOutcome{
		Accepted: accepted,
		Move:     move,
		ServerTs: now.UnixMilli(),
		TimeLeft: s.timeLeft(now),
		Ended:    s.ended,
		Result:   s.result,
		Reason:   s.reason,
	}
}

// OfferDraw records a draw offer from by. An offer made while the opponent's
// offer is pending accepts it.
func (s *Session) OfferDraw(ctx context.Context, by models.Color) error {
	var err error
	if derr := s.do(ctx, func() {
		switch {
		case s.ended:
			err = ErrGameEnded
		case s.drawOffer == models.OfferBy(by):
			err = ErrDuplicateOffer
		case s.drawOffer == models.OfferBy(by.Opponent()):
			err = s.acceptDraw(by)
		default:
			s.drawOffer = models.OfferBy(by)
			s.broadcast(events.EventTypeDrawOffered, events.OfferPayload{GameID: s.id.String(), By: by})
		}
	}); derr != nil {
		return derr
	}
	return err
}

// AcceptDraw ends the game drawn if the opponent offered one.
func (s *Session) AcceptDraw(ctx context.Context, by models.Color) error {
	var err error
	if derr := s.do(ctx, func() { err = s.acceptDraw(by) }); derr != nil {
		return derr
	}
	return err
}

func (s *Session) acceptDraw(by models.Color) error {
	if s.ended {
		return ErrGameEnded
	}
	if s.drawOffer != models.OfferBy(by.Opponent()) {
		return ErrNoOffer
	}
	s.drawOffer = models.OfferNone
	s.broadcast(events.EventTypeDrawAccepted, events.OfferPayload{GameID: s.id.String(), By: by})
	s.end(models.ResultDraw, models.ReasonDrawAgreement)
	return nil
}

// DeclineDraw clears the opponent's draw offer.
func (s *Session) DeclineDraw(ctx context.Context, by models.Color) error {
	var err error
	if derr := s.do(ctx, func() {
		if s.ended {
			err = ErrGameEnded
			return
		}
		if s.drawOffer != models.OfferBy(by.Opponent()) {
			err = ErrNoOffer
			return
		}
		s.drawOffer = models.OfferNone
		s.broadcast(events.EventTypeDrawDeclined, events.OfferPayload{GameID: s.id.String(), By: by})
	}); derr != nil {
		return derr
	}
	return err
}

// OfferTakeback asks the opponent to undo the last move.
func (s *Session) OfferTakeback(ctx context.Context, by models.Color) error {
	var err error
	if derr := s.do(ctx, func() {
		switch {
		case s.ended:
			err = ErrGameEnded
		case len(s.moves) == 0:
			err = ErrNoMoves
		case s.takebackOffer == models.OfferBy(by):
			err = ErrDuplicateOffer
		case !s.player(by.Opponent()).AllowTakebacks:
			err = ErrTakebacksDisabled
		default:
			s.takebackOffer = models.OfferBy(by)
			s.broadcast(events.EventTypeTakebackOffered, events.OfferPayload{GameID: s.id.String(), By: by})
		}
	}); derr != nil {
		return derr
	}
	return err
}

// AcceptTakeback removes the last move and gives the turn back.
func (s *Session) AcceptTakeback(ctx context.Context, by models.Color) error {
	var err error
	if derr := s.do(ctx, func() {
		switch {
		case s.ended:
			err = ErrGameEnded
		case s.takebackOffer != models.OfferBy(by.Opponent()):
			err = ErrNoOffer
		case len(s.moves) == 0:
			s.takebackOffer = models.OfferNone
			err = ErrNoMoves
		default:
			now := s.clk.Now()
			last := len(s.moves) - 1
			s.moves = s.moves[:last:last]
			s.moveTimes = s.moveTimes[:last:last]
			s.clock.Undo(s.toMove.Opponent(), now)
			s.toMove = s.toMove.Opponent()
			s.takebackOffer = models.OfferNone
			s.drawOffer = models.OfferNone
			s.broadcast(events.EventTypeTakebackAccepted, events.OfferPayload{GameID: s.id.String(), By: by})
			s.armDeadline(now)
		}
	}); derr != nil {
		return derr
	}
	return err
}

// DeclineTakeback clears the opponent's takeback request.
func (s *Session) DeclineTakeback(ctx context.Context, by models.Color) error {
	var err error
	if derr := s.do(ctx, func() {
		if s.ended {
			err = ErrGameEnded
			return
		}
		if s.takebackOffer != models.OfferBy(by.Opponent()) {
			err = ErrNoOffer
			return
		}
		s.takebackOffer = models.OfferNone
		s.broadcast(events.EventTypeTakebackDeclined, events.OfferPayload{GameID: s.id.String(), By: by})
	}); derr != nil {
		return derr
	}
	return err
}

// Resign ends the game as a win for the opponent.
func (s *Session) Resign(ctx context.Context, by models.Color) error {
	var err error
	if derr := s.do(ctx, func() {
		if s.ended {
			err = ErrGameEnded
			return
		}
		s.end(models.WinFor(by.Opponent()), models.ReasonResignation)
	}); derr != nil {
		return derr
	}
	return err
}

// Abort cancels the game without a scoring result. Only allowed in the first two moves.
func (s *Session) Abort(ctx context.Context, by models.Color) error {
	var err error
	if derr := s.do(ctx, func() {
		if s.ended {
			err = ErrGameEnded
			return
		}
		if len(s.moves) > 2 {
			err = ErrAbortTooLate
			return
		}
		log.Info().Str("game_id", s.id.String()).Str("color", by.String()).Msg("game aborted")
		s.end(models.ResultAborted, models.ReasonAborted)
	}); derr != nil {
		return derr
	}
	return err
}

// End finishes the game. Calling it on an ended game is a no-op.
func (s *Session) End(ctx context.Context, result models.Result, reason models.EndReason) error {
	return s.do(ctx, func() { s.end(result, reason) })
}

// Reconnect marks color as connected again and sends it a game.state snapshot.
func (s *Session) Reconnect(ctx context.Context, color models.Color) (*events.GameStatePayload, error) {
	var snap *events.GameStatePayload
	if err := s.do(ctx, func() {
		s.connected[color] = true
		snap = s.snapshot(s.clk.Now())
		if ev, err := events.New(events.EventTypeGameState, snap, s.clk.Now()); err == nil {
			s.transport.Send(s.player(color).UserID, ev)
		}
	}); err != nil {
		return nil, err
	}
	return snap, nil
}

// Snapshot returns the live state without side effects.
func (s *Session) Snapshot(ctx context.Context) (*events.GameStatePayload, error) {
	var snap *events.GameStatePayload
	if err := s.do(ctx, func() { snap = s.snapshot(s.clk.Now()) }); err != nil {
		return nil, err
	}
	return snap, nil
}

// SetConnected records liveness of color and reports whether the game has
// ended with both sides gone.
func (s *Session) SetConnected(ctx context.Context, color models.Color, connected bool) (bool, error) {
	var reapable bool
	if err := s.do(ctx, func() {
		s.connected[color] = connected
		reapable = s.reapable()
	}); err != nil {
		return false, err
	}
	return reapable, nil
}

func (s *Session) reapable() bool {
	return s.ended && !s.connected[models.White] && !s.connected[models.Black]
}

func (s *Session) snapshot(now time.Time) *events.GameStatePayload {
	moves := make([]string, len(s.moves))
	copy(moves, s.moves)
	return &events.GameStatePayload{
		GameID:          s.id.String(),
		White:           s.cfg.White.UserID,
		Black:           s.cfg.Black.UserID,
		Moves:           moves,
		TimeLeft:        s.timeLeft(now),
		ToMove:          s.toMove,
		Offers:          events.Offers{Draw: s.drawOffer, Takeback: s.takebackOffer},
		InitialPosition: s.cfg.InitialPosition,
		Ended:           s.ended,
		Result:          s.result,
		Reason:          s.reason,
	}
}

func (s *Session) timeLeft(now time.Time) events.TimeLeft {
	var live [2]time.Duration
	if s.ended {
		live = [2]time.Duration{s.clock.Remaining(models.White), s.clock.Remaining(models.Black)}
	} else {
		live = s.clock.Live(s.toMove, now)
	}
	return events.TimeLeft{
		White: live[models.White].Milliseconds(),
		Black: live[models.Black].Milliseconds(),
	}
}

// armDeadline replaces the pending deadline with one for the side to move.
// Before the clock runs that is the first-move window, afterwards the flag.
func (s *Session) armDeadline(now time.Time) {
	s.forfeit.Cancel()
	s.deadlineGen++
	gen := s.deadlineGen

	var d time.Duration
	if s.clock.Running() {
		d = s.clock.UntilFlag(s.toMove, now) + ForfeitBuffer
	} else {
		d = s.firstMoveTimeout - now.Sub(s.clock.LastMoveAt())
	}
	s.forfeit = armDeadline(s.clk, d, func() {
		s.post(func() { s.checkDeadline(gen) })
	})
}

// checkDeadline re-validates a fired deadline against live time.
func (s *Session) checkDeadline(gen uint64) {
	if s.ended || gen != s.deadlineGen {
		return
	}
	now := s.clk.Now()
	if s.clock.Running() {
		if s.clock.Expired(s.toMove, now) {
			log.Info().
				Str("game_id", s.id.String()).
				Str("color", s.toMove.String()).
				Msg("flag fell")
			s.end(models.WinFor(s.toMove.Opponent()), models.ReasonTimeForfeit)
			return
		}
	} else if now.Sub(s.clock.LastMoveAt()) >= s.firstMoveTimeout {
		log.Info().
			Str("game_id", s.id.String()).
			Str("color", s.toMove.String()).
			Msg("first move not made in time")
		s.end(models.ResultAborted, models.ReasonNoStart)
		return
	}
	s.armDeadline(now)
}

// end is the single terminal transition.
func (s *Session) end(result models.Result, reason models.EndReason) {
	if s.ended {
		return
	}
	s.ended = true
	s.result = result
	s.reason = reason
	s.endedAt = s.clk.Now()
	s.forfeit.Cancel()
	s.deadlineGen++
	s.drawOffer = models.OfferNone
	s.takebackOffer = models.OfferNone

	log.Info().
		Str("game_id", s.id.String()).
		Str("result", string(result)).
		Str("reason", string(reason)).
		Int("moves", len(s.moves)).
		Msg("game ended")

	if s.onEnd != nil {
		s.onEnd(s, s.record())
	}
	s.broadcast(events.EventTypeGameEnd, events.GameEndPayload{
		GameID: s.id.String(),
		Result: result,
		Reason: reason,
	})
}

func (s *Session) record() models.GameRecord {
	moves := make([]string, len(s.moves))
	copy(moves, s.moves)
	times := make([]int64, len(s.moveTimes))
	copy(times, s.moveTimes)
	return models.GameRecord{
		ID:              s.id,
		WhiteID:         s.cfg.White.UserID,
		BlackID:         s.cfg.Black.UserID,
		TimeControl:     s.cfg.TimeControl.String(),
		Rated:           s.cfg.Rated,
		TournamentID:    s.cfg.TournamentID,
		InitialPosition: s.cfg.InitialPosition,
		Moves:           moves,
		MoveTimesMs:     times,
		Result:          s.result,
		Reason:          s.reason,
		StartedAt:       s.startedAt,
		EndedAt:         s.endedAt,
	}
}

// broadcast sends an event to both players.
func (s *Session) broadcast(eventType events.EventType, payload any) {
	ev, err := events.New(eventType, payload, s.clk.Now())
	if err != nil {
		log.Error().Err(err).Str("game_id", s.id.String()).Msg("failed to build event")
		return
	}
	s.transport.Send(s.cfg.White.UserID, ev)
	s.transport.Send(s.cfg.Black.UserID, ev)
}
