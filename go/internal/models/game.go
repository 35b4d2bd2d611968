package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Color is a side of the board.
type Color int8

const (
	White Color = iota
	Black
)

// Opponent returns the other side.
func (c Color) Opponent() Color {
	if c == White {
		return Black
	}
	return White
}

func (c Color) String() string {
	if c == White {
		return "white"
	}
	return "black"
}

// MarshalText encodes the color as "white" or "black".
func (c Color) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText decodes "white" or "black".
func (c *Color) UnmarshalText(b []byte) error {
	switch string(b) {
	case "white":
		*c = White
	case "black":
		*c = Black
	default:
		return fmt.Errorf("invalid color %q", string(b))
	}
	return nil
}

// Offer records which side, if any, has a pending proposal.
type Offer int8

const (
	OfferNone Offer = iota
	OfferWhite
	OfferBlack
)

// OfferBy returns the offer made by c.
func OfferBy(c Color) Offer {
	if c == White {
		return OfferWhite
	}
	return OfferBlack
}

// Pending reports whether an offer is outstanding.
func (o Offer) Pending() bool { return o != OfferNone }

// By returns the side that made the offer. Only meaningful when Pending.
func (o Offer) By() Color {
	if o == OfferBlack {
		return Black
	}
	return White
}

func (o Offer) String() string {
	switch o {
	case OfferWhite:
		return "white"
	case OfferBlack:
		return "black"
	default:
		return "none"
	}
}

// MarshalText encodes the offer as "none", "white" or "black".
func (o Offer) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// Result is the final outcome of a game.
type Result string

const (
	ResultWhiteWins Result = "white"
	ResultBlackWins Result = "black"
	ResultDraw      Result = "draw"
	ResultAborted   Result = "aborted"
)

// WinFor returns the result in which c wins.
func WinFor(c Color) Result {
	if c == White {
		return ResultWhiteWins
	}
	return ResultBlackWins
}

// Scoring reports whether the result counts for ratings and tournaments.
func (r Result) Scoring() bool { return r != ResultAborted }

// EndReason explains how a game ended.
type EndReason string

const (
	ReasonCheckmate            EndReason = "checkmate"
	ReasonStalemate            EndReason = "stalemate"
	ReasonRepetition           EndReason = "repetition"
	ReasonInsufficientMaterial EndReason = "insufficient_material"
	ReasonFiftyMoves           EndReason = "fifty_moves"
	ReasonResignation          EndReason = "resignation"
	ReasonTimeForfeit          EndReason = "time_forfeit"
	ReasonDrawAgreement        EndReason = "draw_agreement"
	ReasonAborted              EndReason = "aborted"
	ReasonNoStart              EndReason = "no_start"
)

// TimeControl is an initial budget plus a per-move increment, written "5+3"
// (minutes + seconds).
type TimeControl struct {
	Initial   time.Duration
	Increment time.Duration
}

// ParseTimeControl parses "minutes+seconds", e.g. "3+2" or "1+0".
func ParseTimeControl(s string) (TimeControl, error) {
	mins, secs, ok := strings.Cut(strings.TrimSpace(s), "+")
	if !ok {
		return TimeControl{}, fmt.Errorf("invalid time control %q", s)
	}
	m, err := strconv.ParseFloat(mins, 64)
	if err != nil || m <= 0 {
		return TimeControl{}, fmt.Errorf("invalid initial time in %q", s)
	}
	inc, err := strconv.Atoi(secs)
	if err != nil || inc < 0 {
		return TimeControl{}, fmt.Errorf("invalid increment in %q", s)
	}
	return TimeControl{
		Initial:   time.Duration(m * float64(time.Minute)),
		Increment: time.Duration(inc) * time.Second,
	}, nil
}

func (tc TimeControl) String() string {
	return strconv.FormatFloat(tc.Initial.Minutes(), 'f', -1, 64) + "+" + strconv.Itoa(int(tc.Increment/time.Second))
}

// GameRecord is the archived form of a finished game.
type GameRecord struct {
	ID              uuid.UUID  `json:"id"`
	WhiteID         string     `json:"white_id"`
	BlackID         string     `json:"black_id"`
	TimeControl     string     `json:"time_control"`
	Rated           bool       `json:"rated"`
	TournamentID    *uuid.UUID `json:"tournament_id,omitempty"`
	InitialPosition string     `json:"initial_position"`
	Moves           []string   `json:"moves"`
	MoveTimesMs     []int64    `json:"move_times_ms"`
	Result          Result     `json:"result"`
	Reason          EndReason  `json:"reason"`
	StartedAt       time.Time  `json:"started_at"`
	EndedAt         time.Time  `json:"ended_at"`
}
