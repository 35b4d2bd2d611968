// Package chessrules adapts github.com/corentings/chess/v2 to game.Validator.
// Moves are exchanged in UCI notation ("e2e4", "e7e8q").
package chessrules

import (
	"fmt"

	"github.com/corentings/chess/v2"

	"github.com/mcdev12/gambit/go/internal/game"
	"github.com/mcdev12/gambit/go/internal/models"
)

// StartPosition names the standard initial position. The empty string means
// the same thing.
const StartPosition = "startpos"

// Validator replays the move list on every call; sessions own the list.
type Validator struct{}

// New returns a rules adapter.
func New() Validator { return Validator{} }

var _ game.Validator = Validator{}

func (Validator) IsLegal(moves []string, initial, candidate string) bool {
	g, err := replay(initial, moves)
	if err != nil {
		return false
	}
	return g.PushNotationMove(candidate, chess.UCINotation{}, nil) == nil
}

func (Validator) Apply(moves []string, candidate string) []string {
	return append(moves, candidate)
}

func (Validator) TerminalStatus(moves []string, initial string) game.Status {
	g, err := replay(initial, moves)
	if err != nil {
		return game.Status{}
	}

	var result models.Result
	switch g.Outcome() {
	case chess.WhiteWon:
		result = models.ResultWhiteWins
	case chess.BlackWon:
		result = models.ResultBlackWins
	case chess.Draw:
		result = models.ResultDraw
	default:
		// The library only claims fivefold repetition and the 75-move rule
		// itself; the server has no claim command, so the threefold and
		// fifty-move draws end the game as soon as they are available.
		return claimableDraw(g)
	}
	return game.Status{Over: true, Result: result, Reason: reasonFor(g.Method())}
}

func claimableDraw(g *chess.Game) game.Status {
	for _, m := range g.EligibleDraws() {
		switch m {
		case chess.ThreefoldRepetition, chess.FiftyMoveRule:
			return game.Status{Over: true, Result: models.ResultDraw, Reason: reasonFor(m)}
		}
	}
	return game.Status{}
}

func (Validator) SideToMove(initial string) (models.Color, error) {
	g, err := replay(initial, nil)
	if err != nil {
		return 0, err
	}
	if g.Position().Turn() == chess.Black {
		return models.Black, nil
	}
	return models.White, nil
}

func reasonFor(m chess.Method) models.EndReason {
	switch m {
	case chess.Checkmate:
		return models.ReasonCheckmate
	case chess.Stalemate:
		return models.ReasonStalemate
	case chess.ThreefoldRepetition, chess.FivefoldRepetition:
		return models.ReasonRepetition
	case chess.FiftyMoveRule, chess.SeventyFiveMoveRule:
		return models.ReasonFiftyMoves
	case chess.InsufficientMaterial:
		return models.ReasonInsufficientMaterial
	}
	return models.ReasonDrawAgreement
}

func replay(initial string, moves []string) (*chess.Game, error) {
	var g *chess.Game
	if initial == "" || initial == StartPosition {
		g = chess.NewGame()
	} else {
		opt, err := chess.FEN(initial)
		if err != nil {
			return nil, fmt.Errorf("invalid initial position: %w", err)
		}
		g = chess.NewGame(opt)
	}
	for i, mv := range moves {
		if err := g.PushNotationMove(mv, chess.UCINotation{}, nil); err != nil {
			return nil, fmt.Errorf("replay move %d (%s): %w", i+1, mv, err)
		}
	}
	return g, nil
}
