package game

import "github.com/mcdev12/gambit/go/internal/apperr"

var (
	ErrGameEnded         = apperr.Validation("game_ended", "game has already ended")
	ErrNotYourTurn       = apperr.Validation("not_your_turn", "it is not your turn")
	ErrIllegalMove       = apperr.Validation("illegal_move", "move is not legal in this position")
	ErrDuplicateOffer    = apperr.Validation("duplicate_offer", "offer already pending")
	ErrNoOffer           = apperr.Validation("no_offer", "no pending offer from the opponent")
	ErrNoMoves           = apperr.Validation("no_moves", "there is no move to take back")
	ErrTakebacksDisabled = apperr.Validation("takebacks_disabled", "opponent does not accept takebacks")
	ErrAbortTooLate      = apperr.Validation("abort_too_late", "game can no longer be aborted")
	ErrAlreadyPlaying    = apperr.Validation("already_playing", "player is already in a game")
	ErrSamePlayer        = apperr.Validation("same_player", "a player cannot play against themselves")
	ErrNotAParticipant   = apperr.Validation("not_a_participant", "user is not playing in this game")
	ErrInvalidPosition   = apperr.Validation("invalid_position", "initial position is not valid")
	ErrGameNotFound      = apperr.NotFound("game_not_found", "game not found")
	ErrSessionClosed     = apperr.NotFound("session_closed", "game session is closed")
	ErrFlagFell          = apperr.New(apperr.KindRaceLost, "time_forfeit", "clock ran out before the move arrived")
)
