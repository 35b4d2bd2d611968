package tournament

import "github.com/mcdev12/gambit/go/internal/apperr"

var (
	ErrTournamentNotFound = apperr.NotFound("tournament_not_found", "tournament not found")
	ErrNotJoined          = apperr.NotFound("not_joined", "user has not joined this tournament")
	ErrTournamentFinished = apperr.Validation("tournament_finished", "tournament has finished")
	ErrAlreadyJoined      = apperr.Validation("already_joined", "user already joined this tournament")
	ErrUnknownTeam        = apperr.Validation("unknown_team", "team is not part of this tournament")
	ErrSameTeam           = apperr.Validation("same_team", "players of the same team cannot be paired")
	ErrInvalidSettings    = apperr.Validation("invalid_settings", "tournament settings are not valid")
)
