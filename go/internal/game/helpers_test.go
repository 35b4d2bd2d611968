package game

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/mcdev12/gambit/go/internal/events"
	"github.com/mcdev12/gambit/go/internal/models"
)

var testStart = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// fakeValidator accepts any move except "illegal"; "mate" ends the game for White.
// An initial position of "black" means Black moves first.
type fakeValidator struct{}

func (fakeValidator) IsLegal(_ []string, _ string, candidate string) bool {
	return candidate != "" && candidate != "illegal"
}

func (fakeValidator) Apply(moves []string, candidate string) []string {
	return append(moves, candidate)
}

func (fakeValidator) TerminalStatus(moves []string, _ string) Status {
	if len(moves) > 0 && moves[len(moves)-1] == "mate" {
		return Status{Over: true, Result: models.ResultWhiteWins, Reason: models.ReasonCheckmate}
	}
	return Status{}
}

func (fakeValidator) SideToMove(initial string) (models.Color, error) {
	switch initial {
	case "":
		return models.White, nil
	case "black":
		return models.Black, nil
	}
	return 0, errors.New("bad position")
}

type sentEvent struct {
	userID string
	event  *events.Event
}

type recordingTransport struct {
	mu   sync.Mutex
	sent []sentEvent
	ch   chan sentEvent
}

func newRecordingTransport() *recordingTransport {
	return &recordingTransport{ch: make(chan sentEvent, 1024)}
}

func (t *recordingTransport) Send(userID string, ev *events.Event) {
	t.mu.Lock()
	t.sent = append(t.sent, sentEvent{userID: userID, event: ev})
	t.mu.Unlock()
	select {
	case t.ch <- sentEvent{userID: userID, event: ev}:
	default:
	}
}

func (t *recordingTransport) count(userID string, typ events.EventType) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, s := range t.sent {
		if s.userID == userID && s.event.Type == typ {
			n++
		}
	}
	return n
}

// waitFor blocks until userID receives an event of type typ.
func (t *recordingTransport) waitFor(tb testing.TB, userID string, typ events.EventType) *events.Event {
	tb.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case s := <-t.ch:
			if s.userID == userID && s.event.Type == typ {
				return s.event
			}
		case <-timeout:
			tb.Fatalf("timed out waiting for %s to %s", typ, userID)
			return nil
		}
	}
}

type testSession struct {
	*Session
	clk       *clockwork.FakeClock
	transport *recordingTransport
	ends      *int
}

func newTestSession(t *testing.T, cfg Config) *testSession {
	t.Helper()
	if cfg.White.UserID == "" {
		cfg.White = Player{UserID: "alice", Rating: 1500, AllowTakebacks: true}
	}
	if cfg.Black.UserID == "" {
		cfg.Black = Player{UserID: "bob", Rating: 1500, AllowTakebacks: true}
	}
	if cfg.TimeControl.Initial == 0 {
		cfg.TimeControl = models.TimeControl{Initial: time.Minute}
	}

	clk := clockwork.NewFakeClockAt(testStart)
	transport := newRecordingTransport()
	ends := 0
	s, err := newSession(cfg, clk, fakeValidator{}, transport, 0, func(*Session, models.GameRecord) { ends++ })
	if err != nil {
		t.Fatalf("newSession() error = %v", err)
	}
	s.start()
	t.Cleanup(s.stop)
	return &testSession{Session: s, clk: clk, transport: transport, ends: &ends}
}

func (ts *testSession) mustMove(t *testing.T, by models.Color, move string) *MoveOutcome {
	t.Helper()
	out, err := ts.MakeMove(context.Background(), by, move, 0, 0)
	if err != nil {
		t.Fatalf("MakeMove(%s, %s) error = %v", by, move, err)
	}
	if !out.Accepted {
		t.Fatalf("MakeMove(%s, %s) not accepted: %+v", by, move, out)
	}
	return out
}

func (ts *testSession) snapshot(t *testing.T) *events.GameStatePayload {
	t.Helper()
	snap, err := ts.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	return snap
}
