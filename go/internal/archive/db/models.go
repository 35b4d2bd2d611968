package db

import (
	"time"

	"github.com/google/uuid"
)

type Game struct {
	ID              uuid.UUID
	WhiteID         string
	BlackID         string
	TimeControl     string
	Rated           bool
	TournamentID    uuid.NullUUID
	InitialPosition string
	Moves           []string
	MoveTimesMs     []int64
	Result          string
	Reason          string
	StartedAt       time.Time
	EndedAt         time.Time
	CreatedAt       time.Time
}

type Tournament struct {
	ID              uuid.UUID
	Name            string
	TimeControl     string
	Rated           bool
	StartsAt        time.Time
	DurationSeconds int32
	Teams           []string
	TeamLeaders     int32
	Status          string
	CreatedAt       time.Time
}
