// Package realtime pushes notification events to connected players over websockets.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"nhooyr.io/websocket"

	"github.com/HammerMeetNail/chessticulate/internal/logging"
	"github.com/HammerMeetNail/chessticulate/internal/models"
	"github.com/HammerMeetNail/chessticulate/internal/services"
)

const (
	sendBuffer   = 64
	writeTimeout = 5 * time.Second
)

var ErrHubStopped = errors.New("realtime hub is not running")

// TokenValidator authenticates the websocket handshake.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (*services.TokenClaims, error)
}

type delivery struct {
	recipients []uuid.UUID
	payload    []byte
}

// Hub tracks connected clients per user and fans events out to them. All
// client bookkeeping happens on the Run goroutine.
type Hub struct {
	register   chan *client
	unregister chan *client
	deliveries chan delivery
	done       chan struct{}
	stopOnce   sync.Once

	byUser    map[uuid.UUID]map[*client]struct{}
	validator TokenValidator
	count     atomic.Int64
}

func NewHub(validator TokenValidator) *Hub {
	return &Hub{
		register:   make(chan *client),
		unregister: make(chan *client),
		deliveries: make(chan delivery, 256),
		done:       make(chan struct{}),
		byUser:     make(map[uuid.UUID]map[*client]struct{}),
		validator:  validator,
	}
}

// Run processes registrations and deliveries until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	defer h.stopOnce.Do(func() { close(h.done) })

	for {
		select {
		case <-ctx.Done():
			for _, clients := range h.byUser {
				for c := range clients {
					c.close(websocket.StatusGoingAway, "server shutdown")
				}
			}
			h.byUser = make(map[uuid.UUID]map[*client]struct{})
			h.count.Store(0)
			return
		case c := <-h.register:
			if h.byUser[c.userID] == nil {
				h.byUser[c.userID] = make(map[*client]struct{})
			}
			h.byUser[c.userID][c] = struct{}{}
			h.count.Add(1)
		case c := <-h.unregister:
			h.remove(c, websocket.StatusNormalClosure, "bye")
		case d := <-h.deliveries:
			h.fanOut(d)
		}
	}
}

func (h *Hub) remove(c *client, status websocket.StatusCode, reason string) {
	clients := h.byUser[c.userID]
	if _, ok := clients[c]; !ok {
		return
	}
	delete(clients, c)
	if len(clients) == 0 {
		delete(h.byUser, c.userID)
	}
	h.count.Add(-1)
	c.close(status, reason)
}

func (h *Hub) fanOut(d delivery) {
	for _, id := range d.recipients {
		for c := range h.byUser[id] {
			if !c.enqueue(d.payload) {
				logging.Warn("Dropping slow websocket client", map[string]interface{}{"user_id": id.String()})
				h.remove(c, websocket.StatusPolicyViolation, "too slow")
			}
		}
	}
}

func (h *Hub) ClientCount() int64 {
	return h.count.Load()
}

// Deliver queues event for every connected client of its recipients.
func (h *Hub) Deliver(ctx context.Context, event models.Event) error {
	if len(event.Recipients) == 0 {
		return nil
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	select {
	case h.deliveries <- delivery{recipients: event.Recipients, payload: payload}:
		return nil
	case <-h.done:
		return ErrHubStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// HandleWS upgrades an authenticated request. The token comes from the
// token query parameter or a bearer Authorization header.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" || h.validator == nil {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}
	claims, err := h.validator.ValidateToken(r.Context(), token)
	if err != nil {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		logging.Warn("Websocket accept failed", map[string]interface{}{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	c := &client{
		conn:   conn,
		hub:    h,
		ctx:    ctx,
		cancel: cancel,
		send:   make(chan []byte, sendBuffer),
		userID: claims.UserID,
	}

	select {
	case h.register <- c:
	case <-h.done:
		_ = conn.Close(websocket.StatusTryAgainLater, "hub stopped")
		cancel()
		return
	}

	go c.writeLoop()
	c.readLoop()
}

func bearerToken(r *http.Request) string {
	if token := strings.TrimSpace(r.URL.Query().Get("token")); token != "" {
		return token
	}
	parts := strings.Fields(r.Header.Get("Authorization"))
	if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
		return parts[1]
	}
	return ""
}

type client struct {
	conn      *websocket.Conn
	hub       *Hub
	ctx       context.Context
	cancel    context.CancelFunc
	send      chan []byte
	closeOnce sync.Once
	userID    uuid.UUID
}

func (c *client) enqueue(msg []byte) bool {
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *client) leave() {
	select {
	case c.hub.unregister <- c:
	case <-c.hub.done:
		c.close(websocket.StatusGoingAway, "server shutdown")
	}
}

// readLoop only watches for the peer going away. Clients never send commands.
func (c *client) readLoop() {
	defer c.leave()
	for {
		if _, _, err := c.conn.Read(c.ctx); err != nil {
			return
		}
	}
}

func (c *client) writeLoop() {
	for {
		select {
		case <-c.ctx.Done():
			return
		case msg, ok := <-c.send:
			if !ok {
				return
			}
			ctx, cancel := context.WithTimeout(c.ctx, writeTimeout)
			err := c.conn.Write(ctx, websocket.MessageText, msg)
			cancel()
			if err != nil {
				c.leave()
				return
			}
		}
	}
}

func (c *client) close(status websocket.StatusCode, reason string) {
	c.closeOnce.Do(func() {
		c.cancel()
		close(c.send)
		_ = c.conn.Close(status, reason)
	})
}
