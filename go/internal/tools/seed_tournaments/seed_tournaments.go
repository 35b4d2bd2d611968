package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mcdev12/gambit/go/internal/config"
	"github.com/mcdev12/gambit/go/internal/dbconfig"
	"github.com/mcdev12/gambit/go/internal/models"
)

// scheduleNamespace derives stable ids for schedule entries that have none, so
// re-running the seed never duplicates a tournament.
var scheduleNamespace = uuid.MustParse("7f3c7d8e-5a0b-4c55-9d43-0c1f2b9a6e11")

func stableID(t models.TournamentSettings) uuid.UUID {
	if t.ID != uuid.Nil {
		return t.ID
	}
	return uuid.NewSHA1(scheduleNamespace, []byte(t.Name+"|"+t.StartsAt.UTC().Format(time.RFC3339)))
}

func main() {
	path := flag.String("config", "gambit.yaml", "YAML file with a tournaments.schedule section")
	flag.Parse()

	// 1) Load the schedule
	file, err := config.LoadFile(*path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	schedule := file.Tournaments.Schedule
	if len(schedule) == 0 {
		fmt.Println("no scheduled tournaments")
		return
	}

	// 2) Connect using shared dbconfig
	ctx := context.Background()
	cfg, err := dbconfig.NewConfigFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "db config: %v\n", err)
		os.Exit(1)
	}
	pool, err := pgxpool.New(ctx, cfg.DSN())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	// 3) Insert and count
	var (
		total    = len(schedule)
		inserted int
		skipped  int
		errs     int
	)

	for _, t := range schedule {
		tc, err := models.ParseTimeControl(t.TimeControl)
		if err != nil {
			fmt.Fprintf(os.Stderr, "skipping %q: %v\n", t.Name, err)
			errs++
			continue
		}
		startsAt := t.StartsAt
		if startsAt.IsZero() {
			startsAt = time.Now().UTC()
		}
		teams := t.Teams
		if teams == nil {
			teams = []string{}
		}

		cmdTag, err := pool.Exec(ctx, `
            INSERT INTO tournaments (
              id, name, time_control, rated, starts_at,
              duration_seconds, teams, team_leaders, status
            ) VALUES (
              $1,$2,$3,$4,$5,$6,$7,$8,'UPCOMING'
            )
            ON CONFLICT (id) DO NOTHING
        `,
			stableID(t).String(), t.Name, tc.String(), t.Rated, startsAt,
			int32(t.Duration/time.Second), teams, int32(t.TeamLeaders),
		)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error inserting tournament %q: %v\n", t.Name, err)
			errs++
			continue
		}
		if cmdTag.RowsAffected() == 1 {
			inserted++
		} else {
			skipped++
		}
	}

	// 4) Summary
	fmt.Printf("Seed complete: total=%d, inserted=%d, skipped=%d, errors=%d\n",
		total, inserted, skipped, errs)
}
