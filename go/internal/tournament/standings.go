package tournament

import (
	"cmp"
	"slices"

	"github.com/mcdev12/gambit/go/internal/models"
)

// Team is one side of a team battle.
type Team struct {
	ID          string
	Members     []string
	Score       int
	Performance float64
	Leaders     []string
}

// standings ranks players by score, then performance. Caller holds t.mu.
func (t *Tournament) standings() []models.Standing {
	players := make([]*Player, 0, len(t.players))
	for _, p := range t.players {
		players = append(players, p)
	}
	slices.SortFunc(players, comparePlayers)

	out := make([]models.Standing, len(players))
	for i, p := range players {
		out[i] = models.Standing{
			Rank:        i + 1,
			UserID:      p.UserID,
			TeamID:      p.TeamID,
			Rating:      p.Rating,
			Score:       p.Score,
			Performance: p.Performance,
			Games:       p.Games,
			Wins:        p.Wins,
			Losses:      p.Losses,
			Draws:       p.Draws,
			Streak:      p.Streak,
		}
	}
	return out
}

func comparePlayers(a, b *Player) int {
	if c := cmp.Compare(b.Score, a.Score); c != 0 {
		return c
	}
	if c := cmp.Compare(b.Performance, a.Performance); c != 0 {
		return c
	}
	if c := cmp.Compare(b.Rating, a.Rating); c != 0 {
		return c
	}
	return cmp.Compare(a.UserID, b.UserID)
}

// recomputeTeam sums the top-K member scores of team id. Caller holds t.mu.
func (t *Tournament) recomputeTeam(id string) {
	team, ok := t.teams[id]
	if !ok {
		return
	}
	members := make([]*Player, 0, len(team.Members))
	for _, uid := range team.Members {
		if p, ok := t.players[uid]; ok {
			members = append(members, p)
		}
	}
	slices.SortFunc(members, comparePlayers)
	if k := t.settings.TeamLeaders; len(members) > k {
		members = members[:k]
	}

	team.Score = 0
	team.Performance = 0
	team.Leaders = team.Leaders[:0]
	for _, p := range members {
		team.Score += p.Score
		team.Performance += p.Performance
		team.Leaders = append(team.Leaders, p.UserID)
	}
	if len(members) > 0 {
		team.Performance /= float64(len(members))
	}
}

// teamStandings ranks teams by score, then leader performance. Caller holds t.mu.
func (t *Tournament) teamStandings() []models.TeamStanding {
	if !t.settings.IsTeamBattle() {
		return nil
	}
	teams := make([]*Team, 0, len(t.teams))
	for _, team := range t.teams {
		teams = append(teams, team)
	}
	slices.SortFunc(teams, func(a, b *Team) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		if c := cmp.Compare(b.Performance, a.Performance); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})

	out := make([]models.TeamStanding, len(teams))
	for i, team := range teams {
		out[i] = models.TeamStanding{
			Rank:    i + 1,
			TeamID:  team.ID,
			Score:   team.Score,
			Leaders: slices.Clone(team.Leaders),
		}
	}
	return out
}
