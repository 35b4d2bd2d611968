package main

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/mcdev12/gambit/go/internal/models"
)

func TestStableID(t *testing.T) {
	start := time.Date(2025, 6, 1, 18, 0, 0, 0, time.UTC)
	a := models.TournamentSettings{Name: "Hourly Blitz", StartsAt: start}

	if got, want := stableID(a), stableID(a); got != want {
		t.Fatalf("stableID() = %v then %v, want equal", got, want)
	}
	b := a
	b.StartsAt = start.Add(time.Hour)
	if stableID(a) == stableID(b) {
		t.Fatalf("stableID() equal for different start times")
	}

	fixed := uuid.New()
	a.ID = fixed
	if got := stableID(a); got != fixed {
		t.Fatalf("stableID() = %v, want explicit id %v", got, fixed)
	}
}
