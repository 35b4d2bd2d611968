package main

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/gambit/go/internal/archive"
	"github.com/mcdev12/gambit/go/internal/chessrules"
	"github.com/mcdev12/gambit/go/internal/config"
	"github.com/mcdev12/gambit/go/internal/game"
	"github.com/mcdev12/gambit/go/internal/gateway"
	"github.com/mcdev12/gambit/go/internal/handoff"
	"github.com/mcdev12/gambit/go/internal/identity"
	"github.com/mcdev12/gambit/go/internal/matchmaking"
	"github.com/mcdev12/gambit/go/internal/ops"
	"github.com/mcdev12/gambit/go/internal/ratelimit"
	"github.com/mcdev12/gambit/go/internal/tournament"
)

type Services struct {
	Clock       clockwork.Clock
	Connections *gateway.ConnectionManager
	Verifier    *identity.Verifier
	Handoff     *handoff.Queue
	Games       *game.Manager
	Queue       *matchmaking.Queue
	Tournaments *tournament.Orchestrator
	Router      *gateway.Router
	Ops         *ops.Service
}

func setupServices(ctx context.Context, cfg *config.Config, res *Resources) (*Services, error) {
	// Wire up dependency injection chain
	// Resources → Storage ports → Game manager → Queue / Tournaments → Gateway
	clk := clockwork.NewRealClock()

	connCfg := gateway.DefaultConnectionConfig()
	trusted, err := gateway.ParseTrustedProxies(cfg.Env.TrustedProxies)
	if err != nil {
		return nil, err
	}
	connCfg.TrustedProxies = trusted
	connections := gateway.NewConnectionManager(connCfg, clk)
	verifier := identity.NewVerifier(cfg.Env.JWTSecret, cfg.Env.JWTIssuer, clk)
	handoffQueue := handoff.New(handoff.Config{
		Workers:    cfg.Env.HandoffWorkers,
		QueueSize:  cfg.Env.HandoffQueueSize,
		MaxTries:   cfg.Env.HandoffMaxTries,
		MaxElapsed: cfg.Env.HandoffMaxWait,
	})

	// Optional backends stay nil interfaces when disabled.
	var (
		repo      *archive.Repository
		archiver  game.Archiver
		recorder  tournament.ResultRecorder
		games     ops.GameArchive
		store     ops.TournamentStore
		publisher game.Publisher
	)
	if res.DB != nil {
		repo = archive.NewRepository(res.DB)
		archiver, recorder, games, store = repo, repo, repo, repo
	}
	if res.Publisher != nil {
		publisher = res.Publisher
	}

	// Games
	manager := game.NewManager(game.ManagerDeps{
		Clock:            clk,
		Validator:        chessrules.New(),
		Transport:        connections,
		Dispatcher:       handoffQueue,
		Archiver:         archiver,
		Publisher:        publisher,
		FirstMoveTimeout: cfg.Env.FirstMoveTimeout,
	})

	// Matchmaking
	queue := matchmaking.NewQueue(clk, manager, connections, matchmaking.Config{
		SweepInterval: cfg.File.Matchmaking.SweepInterval,
		EntryTimeout:  cfg.File.Matchmaking.EntryTimeout,
		TimeControls:  cfg.File.Matchmaking.TimeControls,
	})

	// Tournaments
	orchestrator := tournament.New(tournament.Deps{
		Clock:         clk,
		Games:         manager,
		Transport:     connections,
		Dispatcher:    handoffQueue,
		Recorder:      recorder,
		Publisher:     publisher,
		SweepInterval: cfg.File.Tournaments.SweepInterval,
	})
	manager.AddListener(orchestrator)

	if repo != nil {
		restored, err := orchestrator.Restore(ctx, repo)
		if err != nil {
			return nil, err
		}
		log.Info().Int("count", restored).Msg("restored tournaments")
	}
	scheduleTournaments(ctx, orchestrator, store, cfg)

	// Gateway
	router := gateway.NewRouter(gateway.RouterDeps{
		Clock:       clk,
		Games:       manager,
		Matchmaker:  queue,
		Tournaments: orchestrator,
		Limiter:     setupLimiter(cfg, res, clk),
	})
	connections.Use(&presence{games: manager, queue: queue}, router)

	// Ops
	opsService := ops.NewService(ops.Deps{
		Games:       manager,
		Archive:     games,
		Pools:       queue,
		Tournaments: orchestrator,
		Store:       store,
		Token:       cfg.Env.OpsToken,
	})

	return &Services{
		Clock:       clk,
		Connections: connections,
		Verifier:    verifier,
		Handoff:     handoffQueue,
		Games:       manager,
		Queue:       queue,
		Tournaments: orchestrator,
		Router:      router,
		Ops:         opsService,
	}, nil
}

// scheduleTournaments creates the tournaments listed in the config file.
// Entries with a fixed id are persisted so a restart restores rather than
// duplicates them.
func scheduleTournaments(ctx context.Context, orchestrator *tournament.Orchestrator, store ops.TournamentStore, cfg *config.Config) {
	for _, entry := range cfg.File.Tournaments.Schedule {
		settings, err := orchestrator.Create(ctx, entry)
		if err != nil {
			// Already restored from the archive.
			log.Debug().Err(err).Str("name", entry.Name).Msg("skipping scheduled tournament")
			continue
		}
		if store == nil || entry.ID == uuid.Nil {
			continue
		}
		if err := store.SaveTournament(ctx, settings); err != nil {
			log.Warn().Err(err).Str("tournament_id", settings.ID.String()).Msg("failed to persist scheduled tournament")
		}
	}
}

func setupLimiter(cfg *config.Config, res *Resources, clk clockwork.Clock) *ratelimit.Limiter {
	var store ratelimit.Store
	if res.Redis != nil {
		store = ratelimit.NewRedisStore(res.Redis, ratelimit.DefaultRedisPrefix)
	} else {
		log.Info().Msg("using in-process rate limit store")
		store = ratelimit.NewMemoryStore(clk)
	}
	return ratelimit.New(store, clk, cfg.File.RateLimits)
}

// presence forwards socket liveness to the game manager and drops users who
// go offline from the matchmaking queue.
type presence struct {
	games *game.Manager
	queue *matchmaking.Queue
}

func (p *presence) Connected(ctx context.Context, userID string) {
	p.games.Connected(ctx, userID)
}

func (p *presence) Disconnected(ctx context.Context, userID string) {
	p.games.Disconnected(ctx, userID)
	if err := p.queue.Leave(userID); err != nil && !errors.Is(err, matchmaking.ErrNotQueued) {
		log.Warn().Err(err).Str("user_id", userID).Msg("failed to remove offline user from queue")
	}
}
