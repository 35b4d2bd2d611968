package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/gambit/go/internal/apperr"
	"github.com/mcdev12/gambit/go/internal/events"
	"github.com/mcdev12/gambit/go/internal/game"
	"github.com/mcdev12/gambit/go/internal/matchmaking"
	"github.com/mcdev12/gambit/go/internal/models"
	"github.com/mcdev12/gambit/go/internal/ratelimit"
	"github.com/mcdev12/gambit/go/internal/tournament"
)

// Client command types.
const (
	CommandMove               = "move"
	CommandDrawOffer          = "draw.offer"
	CommandDrawAccept         = "draw.accept"
	CommandDrawDecline        = "draw.decline"
	CommandTakebackOffer      = "takeback.offer"
	CommandTakebackAccept     = "takeback.accept"
	CommandTakebackDecline    = "takeback.decline"
	CommandResign             = "resign"
	CommandAbort              = "abort"
	CommandResync             = "resync"
	CommandQueueJoin          = "queue.join"
	CommandQueueLeave         = "queue.leave"
	CommandTournamentJoin     = "tournament.join"
	CommandTournamentWithdraw = "tournament.withdraw"
)

var known = map[string]bool{
	CommandMove: true, CommandDrawOffer: true, CommandDrawAccept: true, CommandDrawDecline: true,
	CommandTakebackOffer: true, CommandTakebackAccept: true, CommandTakebackDecline: true,
	CommandResign: true, CommandAbort: true, CommandResync: true,
	CommandQueueJoin: true, CommandQueueLeave: true,
	CommandTournamentJoin: true, CommandTournamentWithdraw: true,
}

var (
	ErrBadCommand     = apperr.Validation("bad_command", "message is not a valid command")
	ErrUnknownCommand = apperr.Validation("unknown_command", "unknown command type")
	ErrNoActiveGame   = apperr.NotFound("no_active_game", "no game to act on")
	ErrBadTournament  = apperr.Validation("bad_tournament_id", "tournament id is not valid")
)

// Command is a message sent by a client.
type Command struct {
	Type         string `json:"type"`
	Ref          string `json:"ref,omitempty"`
	GameID       string `json:"gameId,omitempty"`
	Move         string `json:"move,omitempty"`
	ClientTs     int64  `json:"clientTs,omitempty"`
	Seq          int64  `json:"seq,omitempty"`
	TimeControl  string `json:"timeControl,omitempty"`
	Rated        bool   `json:"rated,omitempty"`
	TournamentID string `json:"tournamentId,omitempty"`
	TeamID       string `json:"teamId,omitempty"`
}

// Games is the part of the game manager the router drives.
type Games interface {
	Resolve(gameID uuid.UUID, userID string) (*game.Session, models.Color, error)
	ActiveGame(userID string) (*game.Session, bool)
}

// Matchmaker is the part of the matchmaking queue the router drives.
type Matchmaker interface {
	Enqueue(ctx context.Context, e matchmaking.Entry) (time.Duration, error)
	Leave(userID string) error
}

// Tournaments is the part of the tournament orchestrator the router drives.
type Tournaments interface {
	Join(ctx context.Context, id uuid.UUID, req tournament.JoinRequest) error
	Withdraw(ctx context.Context, id uuid.UUID, userID string) error
}

// RouterDeps are the collaborators of a Router. Limiter may be nil.
type RouterDeps struct {
	Clock       clockwork.Clock
	Games       Games
	Matchmaker  Matchmaker
	Tournaments Tournaments
	Limiter     *ratelimit.Limiter
}

// Router dispatches client commands to the game, queue and tournament layers.
type Router struct {
	clk         clockwork.Clock
	games       Games
	matchmaker  Matchmaker
	tournaments Tournaments
	limiter     *ratelimit.Limiter
}

// NewRouter creates a command router.
func NewRouter(deps RouterDeps) *Router {
	clk := deps.Clock
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	return &Router{
		clk:         clk,
		games:       deps.Games,
		matchmaker:  deps.Matchmaker,
		tournaments: deps.Tournaments,
		limiter:     deps.Limiter,
	}
}

type moveAck struct {
	Accepted bool             `json:"accepted"`
	Move     string           `json:"move"`
	ServerTs int64            `json:"serverTs"`
	TimeLeft events.TimeLeft  `json:"timeLeft"`
	Ended    bool             `json:"ended"`
	Result   models.Result    `json:"result,omitempty"`
	Reason   models.EndReason `json:"reason,omitempty"`
}

type queueAck struct {
	Pool            string `json:"pool"`
	EstimatedWaitMs int64  `json:"estimatedWaitMs"`
}

// Handle decodes message, runs it and returns the ack or error to send back.
func (r *Router) Handle(ctx context.Context, client Client, message []byte) *events.Event {
	var cmd Command
	if err := json.Unmarshal(message, &cmd); err != nil || cmd.Type == "" {
		return r.fail(cmd, ErrBadCommand, 0)
	}
	if !known[cmd.Type] {
		return r.fail(cmd, ErrUnknownCommand, 0)
	}

	if r.limiter != nil {
		if d := r.limiter.Allow(ctx, cmd.Type, client.User.ID, client.IP); !d.Allowed {
			return r.fail(cmd, ratelimit.ErrRateLimited, d.RetryAfter)
		}
	}

	data, err := r.dispatch(ctx, client, cmd)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindInternal || apperr.KindOf(err) == apperr.KindTransient {
			log.Error().Err(err).Str("user_id", client.User.ID).Str("command", cmd.Type).Msg("command failed")
		}
		return r.fail(cmd, err, 0)
	}
	return r.event(events.EventTypeAck, events.AckPayload{Command: cmd.Type, Ref: cmd.Ref, Data: data})
}

func (r *Router) dispatch(ctx context.Context, client Client, cmd Command) (any, error) {
	user := client.User
	switch cmd.Type {
	case CommandQueueJoin:
		wait, err := r.matchmaker.Enqueue(ctx, matchmaking.Entry{
			UserID:          user.ID,
			TimeControl:     cmd.TimeControl,
			Rated:           cmd.Rated,
			Rating:          user.Rating,
			RatingDeviation: user.RatingDeviation,
			AllowTakebacks:  user.AllowTakebacks,
		})
		if err != nil {
			return nil, err
		}
		key := matchmaking.PoolKey{TimeControl: cmd.TimeControl, Rated: cmd.Rated}
		if tc, err := models.ParseTimeControl(cmd.TimeControl); err == nil {
			key.TimeControl = tc.String()
		}
		return queueAck{Pool: key.String(), EstimatedWaitMs: wait.Milliseconds()}, nil
	case CommandQueueLeave:
		return nil, r.matchmaker.Leave(user.ID)
	case CommandTournamentJoin, CommandTournamentWithdraw:
		id, err := uuid.Parse(cmd.TournamentID)
		if err != nil {
			return nil, ErrBadTournament
		}
		if cmd.Type == CommandTournamentWithdraw {
			return nil, r.tournaments.Withdraw(ctx, id, user.ID)
		}
		return nil, r.tournaments.Join(ctx, id, tournament.JoinRequest{
			UserID:         user.ID,
			Rating:         user.Rating,
			TeamID:         cmd.TeamID,
			AllowTakebacks: user.AllowTakebacks,
		})
	}

	s, color, err := r.session(user.ID, cmd.GameID)
	if err != nil {
		return nil, err
	}
	switch cmd.Type {
	case CommandMove:
		out, err := s.MakeMove(ctx, color, cmd.Move, cmd.ClientTs, cmd.Seq)
		if err != nil {
			return nil, err
		}
		return moveAck{
			Accepted: out.Accepted,
			Move:     out.Move,
			ServerTs: out.ServerTs,
			TimeLeft: out.TimeLeft,
			Ended:    out.Ended,
			Result:   out.Result,
			Reason:   out.Reason,
		}, nil
	case CommandDrawOffer:
		return nil, s.OfferDraw(ctx, color)
	case CommandDrawAccept:
		return nil, s.AcceptDraw(ctx, color)
	case CommandDrawDecline:
		return nil, s.DeclineDraw(ctx, color)
	case CommandTakebackOffer:
		return nil, s.OfferTakeback(ctx, color)
	case CommandTakebackAccept:
		return nil, s.AcceptTakeback(ctx, color)
	case CommandTakebackDecline:
		return nil, s.DeclineTakeback(ctx, color)
	case CommandResign:
		return nil, s.Resign(ctx, color)
	case CommandAbort:
		return nil, s.Abort(ctx, color)
	case CommandResync:
		_, err := s.Reconnect(ctx, color)
		return nil, err
	}
	return nil, ErrUnknownCommand
}

// session finds the game a command targets: the named one, else the user's
// running game.
func (r *Router) session(userID, gameID string) (*game.Session, models.Color, error) {
	if gameID == "" {
		s, ok := r.games.ActiveGame(userID)
		if !ok {
			return nil, 0, ErrNoActiveGame
		}
		color, err := s.ColorOf(userID)
		return s, color, err
	}
	id, err := uuid.Parse(gameID)
	if err != nil {
		return nil, 0, game.ErrGameNotFound
	}
	return r.games.Resolve(id, userID)
}

func (r *Router) fail(cmd Command, err error, retryAfter time.Duration) *events.Event {
	payload := events.ErrorPayload{
		Command:      cmd.Type,
		Ref:          cmd.Ref,
		Code:         apperr.CodeOf(err),
		Message:      "internal error",
		RetryAfterMs: retryAfter.Milliseconds(),
	}
	var ae *apperr.Error
	if errors.As(err, &ae) && ae.Kind != apperr.KindInternal && ae.Kind != apperr.KindTransient {
		payload.Message = ae.Message
	}
	return r.event(events.EventTypeError, payload)
}

func (r *Router) event(typ events.EventType, payload any) *events.Event {
	ev, err := events.New(typ, payload, r.clk.Now())
	if err != nil {
		log.Error().Err(err).Str("event_type", string(typ)).Msg("failed to build reply")
		return nil
	}
	return ev
}
