package models

// DefaultRating is assigned to players with no rating on record.
const DefaultRating = 1500

// User is an authenticated player as seen by the game server.
type User struct {
	ID              string  `json:"id"`
	DisplayName     string  `json:"display_name"`
	Rating          int     `json:"rating"`
	RatingDeviation float64 `json:"rating_deviation"`
	AllowTakebacks  bool    `json:"allow_takebacks"`
}
