package tournament

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/gambit/go/internal/events"
	"github.com/mcdev12/gambit/go/internal/game"
	"github.com/mcdev12/gambit/go/internal/models"
)

// CountdownWindow is how close to the end the one-time countdown goes out.
const CountdownWindow = 60 * time.Second

type pairing struct {
	white, black string
}

// Tournament is one arena event. Every field below mu is guarded by it.
type Tournament struct {
	mu sync.Mutex

	settings      models.TournamentSettings
	timeControl   models.TimeControl
	status        models.TournamentStatus
	endsAt        time.Time
	countdownSent bool
	finalized     bool

	players map[string]*Player
	teams   map[string]*Team
	games   map[uuid.UUID]pairing
	result  *models.TournamentResult
}

// Snapshot is a read-only view of a tournament.
type Snapshot struct {
	Settings      models.TournamentSettings `json:"settings"`
	Status        models.TournamentStatus   `json:"status"`
	EndsAt        time.Time                 `json:"ends_at"`
	Standings     []models.Standing         `json:"standings"`
	TeamStandings []models.TeamStanding     `json:"team_standings,omitempty"`
	GamesInPlay   int                       `json:"games_in_play"`
}

func newTournament(settings models.TournamentSettings, tc models.TimeControl) *Tournament {
	t := &Tournament{
		settings:    settings,
		timeControl: tc,
		status:      models.TournamentStatusUpcoming,
		players:     make(map[string]*Player),
		teams:       make(map[string]*Team),
		games:       make(map[uuid.UUID]pairing),
	}
	for _, id := range settings.Teams {
		t.teams[id] = &Team{ID: id}
	}
	return t
}

func (t *Tournament) snapshot() Snapshot {
	return Snapshot{
		Settings:      t.settings,
		Status:        t.status,
		EndsAt:        t.endsAt,
		Standings:     t.standings(),
		TeamStandings: t.teamStandings(),
		GamesInPlay:   len(t.games),
	}
}

// sweep drives the lifecycle and pairs idle players. Caller holds t.mu.
func (t *Tournament) sweep(ctx context.Context, o *Orchestrator, now time.Time) {
	switch t.status {
	case models.TournamentStatusUpcoming:
		if now.Before(t.settings.StartsAt) {
			return
		}
		t.status = models.TournamentStatusLive
		t.endsAt = t.settings.StartsAt.Add(t.settings.Duration)
		log.Info().
			Str("tournament_id", t.settings.ID.String()).
			Time("ends_at", t.endsAt).
			Int("players", len(t.players)).
			Msg("tournament started")
		t.broadcast(o, events.EventTypeTournamentStarted, events.TournamentStartedPayload{
			TournamentID: t.settings.ID.String(),
			Name:         t.settings.Name,
			StartedAt:    now,
			EndsAt:       t.endsAt,
		}, now)
		fallthrough
	case models.TournamentStatusLive:
		if !now.Before(t.endsAt) {
			t.finalize(o, now)
			return
		}
		if left := t.endsAt.Sub(now); left <= CountdownWindow && !t.countdownSent {
			t.countdownSent = true
			t.broadcast(o, events.EventTypeTournamentCountdown, events.TournamentCountdownPayload{
				TournamentID: t.settings.ID.String(),
				EndsAt:       t.endsAt,
				SecondsLeft:  int(left / time.Second),
			}, now)
		}
		t.pair(ctx, o, now)
	}
}

// pair matches every eligible player with the closest-rated eligible
// opponent. Players idle longest choose first. Caller holds t.mu.
func (t *Tournament) pair(ctx context.Context, o *Orchestrator, now time.Time) {
	var pool []*Player
	for _, p := range t.players {
		if p.eligible(now) && !o.games.InGame(p.UserID) {
			pool = append(pool, p)
		}
	}
	slices.SortFunc(pool, func(a, b *Player) int {
		if c := a.PairableAt.Compare(b.PairableAt); c != 0 {
			return c
		}
		return cmp.Compare(a.UserID, b.UserID)
	})

	used := make(map[string]bool, len(pool))
	for _, p := range pool {
		if used[p.UserID] {
			continue
		}
		var best *Player
		for _, q := range pool {
			if q == p || used[q.UserID] {
				continue
			}
			if t.settings.IsTeamBattle() && q.TeamID == p.TeamID {
				continue
			}
			if best == nil || distance(p.Rating, q.Rating) < distance(p.Rating, best.Rating) {
				best = q
			}
		}
		if best == nil {
			continue
		}
		if err := t.startGame(ctx, o, p, best); err != nil {
			log.Warn().
				Err(err).
				Str("tournament_id", t.settings.ID.String()).
				Str("player", p.UserID).
				Str("opponent", best.UserID).
				Msg("tournament pairing rejected")
			continue
		}
		used[p.UserID], used[best.UserID] = true, true
	}
}

// startGame commits a pairing. Same-team pairs are refused here whatever the
// caller checked. Caller holds t.mu.
func (t *Tournament) startGame(ctx context.Context, o *Orchestrator, a, b *Player) error {
	if a.UserID == b.UserID {
		return game.ErrSamePlayer
	}
	if t.settings.IsTeamBattle() && a.TeamID == b.TeamID {
		return ErrSameTeam
	}

	white, black := a, b
	if b.WhiteGames < a.WhiteGames {
		white, black = b, a
	}
	id := t.settings.ID
	s, err := o.games.CreateGame(ctx, game.CreateRequest{
		White:        game.Player{UserID: white.UserID, Rating: white.Rating, AllowTakebacks: white.AllowTakebacks},
		Black:        game.Player{UserID: black.UserID, Rating: black.Rating, AllowTakebacks: black.AllowTakebacks},
		TimeControl:  t.timeControl,
		Rated:        t.settings.Rated,
		TournamentID: &id,
	})
	if err != nil {
		return err
	}

	white.WhiteGames++
	white.CurrentGame = s.ID()
	black.CurrentGame = s.ID()
	t.games[s.ID()] = pairing{white: white.UserID, black: black.UserID}
	log.Info().
		Str("tournament_id", t.settings.ID.String()).
		Str("game_id", s.ID().String()).
		Str("white", white.UserID).
		Str("black", black.UserID).
		Msg("tournament game started")
	return nil
}

// recordGame scores a finished game. Unknown or already scored games are
// ignored. Caller holds t.mu.
func (t *Tournament) recordGame(rec models.GameRecord, now time.Time) bool {
	if t.finalized {
		return false
	}
	pr, ok := t.games[rec.ID]
	if !ok {
		return false
	}
	delete(t.games, rec.ID)

	white, black := t.players[pr.white], t.players[pr.black]
	if white == nil || black == nil {
		return false
	}
	if !rec.Result.Scoring() {
		white.release(now)
		black.release(now)
		return true
	}

	var wo, bo Outcome
	switch rec.Result {
	case models.ResultWhiteWins:
		wo, bo = Win, Loss
	case models.ResultBlackWins:
		wo, bo = Loss, Win
	default:
		wo, bo = Draw, Draw
	}
	wRating, bRating := white.Rating, black.Rating
	wp := white.record(wo, bRating, now)
	bp := black.record(bo, wRating, now)

	if t.settings.IsTeamBattle() {
		t.recomputeTeam(white.TeamID)
		t.recomputeTeam(black.TeamID)
	}
	log.Info().
		Str("tournament_id", t.settings.ID.String()).
		Str("game_id", rec.ID.String()).
		Str("result", string(rec.Result)).
		Int("white_points", wp).
		Int("black_points", bp).
		Msg("tournament game scored")
	return true
}

// finalize ranks the field and closes the tournament once. Caller holds t.mu.
func (t *Tournament) finalize(o *Orchestrator, now time.Time) bool {
	if t.finalized {
		return false
	}
	t.finalized = true
	t.status = models.TournamentStatusFinished
	if t.endsAt.IsZero() {
		t.endsAt = now
	}

	for gameID, pr := range t.games {
		for _, uid := range []string{pr.white, pr.black} {
			if p := t.players[uid]; p != nil {
				p.CurrentGame = uuid.Nil
			}
			t.send(o, uid, events.EventTypeTournamentGameUnscored, events.GameUnscoredPayload{
				TournamentID: t.settings.ID.String(),
				GameID:       gameID.String(),
			}, now)
		}
		delete(t.games, gameID)
	}

	result := models.TournamentResult{
		TournamentID:  t.settings.ID,
		Name:          t.settings.Name,
		FinishedAt:    now,
		Standings:     t.standings(),
		TeamStandings: t.teamStandings(),
	}
	if len(result.Standings) > 0 {
		result.WinnerID = result.Standings[0].UserID
	}
	if len(result.TeamStandings) > 0 {
		result.WinningTeam = result.TeamStandings[0].TeamID
	}
	t.result = &result

	log.Info().
		Str("tournament_id", t.settings.ID.String()).
		Str("winner", result.WinnerID).
		Str("winning_team", result.WinningTeam).
		Int("players", len(result.Standings)).
		Msg("tournament finished")

	t.broadcast(o, events.EventTypeTournamentEnded, events.TournamentEndedPayload{
		TournamentID:  t.settings.ID.String(),
		WinnerID:      result.WinnerID,
		WinningTeam:   result.WinningTeam,
		Standings:     result.Standings,
		TeamStandings: result.TeamStandings,
	}, now)
	o.handOff(result)
	return true
}

func (t *Tournament) broadcast(o *Orchestrator, typ events.EventType, payload any, now time.Time) {
	ev, err := events.New(typ, payload, now)
	if err != nil {
		log.Error().Err(err).Str("tournament_id", t.settings.ID.String()).Msg("failed to build tournament event")
		return
	}
	for uid := range t.players {
		o.transport.Send(uid, ev)
	}
}

func (t *Tournament) send(o *Orchestrator, userID string, typ events.EventType, payload any, now time.Time) {
	ev, err := events.New(typ, payload, now)
	if err != nil {
		log.Error().Err(err).Str("tournament_id", t.settings.ID.String()).Msg("failed to build tournament event")
		return
	}
	o.transport.Send(userID, ev)
}

func distance(a, b int) int {
	if a > b {
		return a - b
	}
	return b - a
}
