// Package ops serves the operator API: read access to live games, queues
// and standings, and tournament scheduling. Messages are
// google.protobuf.Struct so no generated code is needed.
package ops

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"connectrpc.com/connect"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/mcdev12/gambit/go/internal/apperr"
	"github.com/mcdev12/gambit/go/internal/game"
	"github.com/mcdev12/gambit/go/internal/matchmaking"
	"github.com/mcdev12/gambit/go/internal/models"
	"github.com/mcdev12/gambit/go/internal/tournament"
)

const ServiceName = "gambit.ops.v1.OpsService"

const (
	GetGameProcedure          = "/" + ServiceName + "/GetGame"
	QueueStatsProcedure       = "/" + ServiceName + "/QueueStats"
	GetStandingsProcedure     = "/" + ServiceName + "/GetStandings"
	ListTournamentsProcedure  = "/" + ServiceName + "/ListTournaments"
	CreateTournamentProcedure = "/" + ServiceName + "/CreateTournament"
)

// LiveGames reads sessions still held in memory.
type LiveGames interface {
	Session(gameID uuid.UUID) (*game.Session, error)
	Counts() (active, retained int)
}

// GameArchive reads finished games.
type GameArchive interface {
	GetGame(ctx context.Context, id uuid.UUID) (models.GameRecord, error)
}

// Pools reports matchmaking pools.
type Pools interface {
	Stats() []matchmaking.PoolStats
}

// Tournaments is the part of the orchestrator the API exposes.
type Tournaments interface {
	Create(ctx context.Context, settings models.TournamentSettings) (models.TournamentSettings, error)
	Standings(id uuid.UUID) (tournament.Snapshot, error)
	List() []tournament.Snapshot
}

// TournamentStore persists scheduled tournaments.
type TournamentStore interface {
	SaveTournament(ctx context.Context, settings models.TournamentSettings) error
}

// Deps are the collaborators of a Service. Archive and Store may be nil.
type Deps struct {
	Games       LiveGames
	Archive     GameArchive
	Pools       Pools
	Tournaments Tournaments
	Store       TournamentStore
	// Token, when set, must be presented as a bearer token on every call.
	Token string
}

// Service implements the ops procedures.
type Service struct {
	games       LiveGames
	archive     GameArchive
	pools       Pools
	tournaments Tournaments
	store       TournamentStore
	token       string
}

// NewService creates the ops service.
func NewService(deps Deps) *Service {
	return &Service{
		games:       deps.Games,
		archive:     deps.Archive,
		pools:       deps.Pools,
		tournaments: deps.Tournaments,
		store:       deps.Store,
		token:       deps.Token,
	}
}

// NewHandler mounts every procedure under the service path.
func (s *Service) NewHandler(opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithInterceptors(s.authInterceptor())}, opts...)
	mux := http.NewServeMux()
	mux.Handle(GetGameProcedure, connect.NewUnaryHandler(GetGameProcedure, s.GetGame, opts...))
	mux.Handle(QueueStatsProcedure, connect.NewUnaryHandler(QueueStatsProcedure, s.QueueStats, opts...))
	mux.Handle(GetStandingsProcedure, connect.NewUnaryHandler(GetStandingsProcedure, s.GetStandings, opts...))
	mux.Handle(ListTournamentsProcedure, connect.NewUnaryHandler(ListTournamentsProcedure, s.ListTournaments, opts...))
	mux.Handle(CreateTournamentProcedure, connect.NewUnaryHandler(CreateTournamentProcedure, s.CreateTournament, opts...))
	return "/" + ServiceName + "/", mux
}

func (s *Service) authInterceptor() connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			if s.token == "" {
				return next(ctx, req)
			}
			got, _ := strings.CutPrefix(req.Header().Get("Authorization"), "Bearer ")
			if subtle.ConstantTimeCompare([]byte(got), []byte(s.token)) != 1 {
				return nil, connect.NewError(connect.CodeUnauthenticated, errors.New("invalid ops token"))
			}
			return next(ctx, req)
		}
	}
}

// GetGame returns the live state of a game in memory, else its archived
// record.
func (s *Service) GetGame(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	id, err := uuid.Parse(stringField(req.Msg, "id"))
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("invalid game id: %w", err))
	}

	if session, err := s.games.Session(id); err == nil {
		snap, err := session.Snapshot(ctx)
		if err == nil {
			return respond(map[string]any{"source": "live", "game": snap})
		}
		log.Debug().Err(err).Str("game_id", id.String()).Msg("session closed while reading, falling back to archive")
	}
	if s.archive == nil {
		return nil, toConnectError(game.ErrGameNotFound)
	}
	rec, err := s.archive.GetGame(ctx, id)
	if err != nil {
		return nil, toConnectError(err)
	}
	return respond(map[string]any{"source": "archive", "game": rec})
}

// QueueStats reports every matchmaking pool and the session counts.
func (s *Service) QueueStats(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	active, retained := s.games.Counts()
	return respond(map[string]any{
		"pools":          s.pools.Stats(),
		"active_games":   active,
		"retained_games": retained,
	})
}

// GetStandings returns the leaderboard of a tournament.
func (s *Service) GetStandings(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	id, err := uuid.Parse(stringField(req.Msg, "id"))
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("invalid tournament id: %w", err))
	}
	snap, err := s.tournaments.Standings(id)
	if err != nil {
		return nil, toConnectError(err)
	}
	return respond(snap)
}

// ListTournaments returns every tournament the server holds.
func (s *Service) ListTournaments(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	list := s.tournaments.List()
	if list == nil {
		list = []tournament.Snapshot{}
	}
	return respond(map[string]any{"tournaments": list})
}

type createTournamentRequest struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	TimeControl string    `json:"time_control"`
	Rated       *bool     `json:"rated"`
	StartsAt    time.Time `json:"starts_at"`
	Duration    string    `json:"duration"`
	Teams       []string  `json:"teams"`
	TeamLeaders int       `json:"team_leaders"`
}

// CreateTournament schedules a tournament and stores it so it survives a
// restart.
func (s *Service) CreateTournament(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	var in createTournamentRequest
	if err := decode(req.Msg, &in); err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}
	duration, err := time.ParseDuration(in.Duration)
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("invalid duration %q: %w", in.Duration, err))
	}
	settings := models.TournamentSettings{
		Name:        in.Name,
		TimeControl: in.TimeControl,
		Rated:       in.Rated == nil || *in.Rated,
		StartsAt:    in.StartsAt,
		Duration:    duration,
		Teams:       in.Teams,
		TeamLeaders: in.TeamLeaders,
	}
	if in.ID != "" {
		if settings.ID, err = uuid.Parse(in.ID); err != nil {
			return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("invalid tournament id: %w", err))
		}
	}

	created, err := s.tournaments.Create(ctx, settings)
	if err != nil {
		return nil, toConnectError(err)
	}
	if s.store != nil {
		if err := s.store.SaveTournament(ctx, created); err != nil {
			log.Error().Err(err).Str("tournament_id", created.ID.String()).Msg("failed to store tournament")
			return nil, connect.NewError(connect.CodeUnavailable, err)
		}
	}
	return respond(created)
}

func stringField(msg *structpb.Struct, key string) string {
	return msg.GetFields()[key].GetStringValue()
}

func decode(msg *structpb.Struct, out any) error {
	raw, err := json.Marshal(msg.AsMap())
	if err != nil {
		return fmt.Errorf("failed to read request: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("invalid request: %w", err)
	}
	return nil
}

// respond converts v to a Struct through its JSON form.
func respond(v any) (*connect.Response[structpb.Struct], error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, fmt.Errorf("failed to marshal response: %w", err))
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, connect.NewError(connect.CodeInternal, fmt.Errorf("failed to convert response: %w", err))
	}
	out, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, fmt.Errorf("failed to build response: %w", err))
	}
	return connect.NewResponse(out), nil
}

func toConnectError(err error) error {
	code := connect.CodeInternal
	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		code = connect.CodeInvalidArgument
	case apperr.KindNotFound:
		code = connect.CodeNotFound
	case apperr.KindRaceLost:
		code = connect.CodeFailedPrecondition
	case apperr.KindTransient:
		code = connect.CodeUnavailable
	}
	cerr := connect.NewError(code, err)
	cerr.Meta().Set("X-Error-Code", apperr.CodeOf(err))
	return cerr
}
