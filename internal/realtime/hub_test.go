package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"nhooyr.io/websocket"

	"github.com/HammerMeetNail/chessticulate/internal/models"
	"github.com/HammerMeetNail/chessticulate/internal/services"
)

type fakeValidator struct {
	tokens map[string]uuid.UUID
}

func (v *fakeValidator) ValidateToken(_ context.Context, token string) (*services.TokenClaims, error) {
	id, ok := v.tokens[token]
	if !ok {
		return nil, services.ErrTokenInvalid
	}
	return &services.TokenClaims{UserID: id, TokenID: token}, nil
}

func startHub(t *testing.T, tokens map[string]uuid.UUID) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub(&fakeValidator{tokens: tokens})
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?token=" + token
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial websocket: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") })
	return conn
}

func waitFor(t *testing.T, timeout time.Duration, check func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if check() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("timeout waiting for condition")
}

func readEvent(t *testing.T, conn *websocket.Conn) models.Event {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read event: %v", err)
	}
	var event models.Event
	if err := json.Unmarshal(data, &event); err != nil {
		t.Fatalf("unmarshal event: %v", err)
	}
	return event
}

func TestHub_DeliversOnlyToRecipients(t *testing.T) {
	alice, bob := uuid.New(), uuid.New()
	hub, srv := startHub(t, map[string]uuid.UUID{"alice-token": alice, "bob-token": bob})

	aliceConn := dial(t, srv, "alice-token")
	bobConn := dial(t, srv, "bob-token")
	waitFor(t, time.Second, func() bool { return hub.ClientCount() == 2 })

	gameID := uuid.New()
	if err := hub.Deliver(context.Background(), models.Event{
		Type:       models.EventMoveApplied,
		Recipients: []uuid.UUID{bob},
		Game:       &models.Game{ID: gameID, Seq: 3},
	}); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if err := hub.Deliver(context.Background(), models.Event{
		Type:       models.EventGameEnded,
		Recipients: []uuid.UUID{alice, bob},
		Game:       &models.Game{ID: gameID, Seq: 4},
	}); err != nil {
		t.Fatalf("Deliver: %v", err)
	}

	first := readEvent(t, bobConn)
	if first.Type != models.EventMoveApplied || first.Game.ID != gameID {
		t.Errorf("bob first event = %+v", first)
	}
	if second := readEvent(t, bobConn); second.Type != models.EventGameEnded {
		t.Errorf("bob second event type = %s", second.Type)
	}
	if got := readEvent(t, aliceConn); got.Type != models.EventGameEnded {
		t.Errorf("alice should only see the game end, got %s", got.Type)
	}
}

func TestHub_RejectsMissingOrInvalidToken(t *testing.T) {
	_, srv := startHub(t, map[string]uuid.UUID{"good": uuid.New()})

	for _, query := range []string{"", "?token=bad"} {
		resp, err := http.Get(srv.URL + query)
		if err != nil {
			t.Fatalf("GET: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("query %q: expected 401, got %d", query, resp.StatusCode)
		}
	}
}

func TestHub_UnregistersOnDisconnect(t *testing.T) {
	hub, srv := startHub(t, map[string]uuid.UUID{"t": uuid.New()})

	conn := dial(t, srv, "t")
	waitFor(t, time.Second, func() bool { return hub.ClientCount() == 1 })

	_ = conn.Close(websocket.StatusNormalClosure, "leaving")
	waitFor(t, time.Second, func() bool { return hub.ClientCount() == 0 })
}

func TestHub_DeliverAfterStop(t *testing.T) {
	hub := NewHub(&fakeValidator{})
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()
	cancel()
	<-stopped

	// Fill the queue so Deliver has to wait on the stopped hub.
	for i := 0; i < cap(hub.deliveries); i++ {
		hub.deliveries <- delivery{}
	}
	err := hub.Deliver(context.Background(), models.Event{Type: models.EventGameEnded, Recipients: []uuid.UUID{uuid.New()}})
	if !errors.Is(err, ErrHubStopped) {
		t.Fatalf("expected ErrHubStopped, got %v", err)
	}
}

func TestHub_DeliverWithoutRecipientsIsNoop(t *testing.T) {
	hub := NewHub(&fakeValidator{})
	if err := hub.Deliver(context.Background(), models.Event{Type: models.EventGameEnded}); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}

func TestBearerToken(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/api/events?token=abc", nil)
	if got := bearerToken(r); got != "abc" {
		t.Errorf("query token = %q", got)
	}
	r = httptest.NewRequest(http.MethodGet, "/api/events", nil)
	r.Header.Set("Authorization", "Bearer xyz")
	if got := bearerToken(r); got != "xyz" {
		t.Errorf("header token = %q", got)
	}
	r.Header.Set("Authorization", "Basic xyz")
	if got := bearerToken(r); got != "" {
		t.Errorf("expected no token for basic auth, got %q", got)
	}
}
