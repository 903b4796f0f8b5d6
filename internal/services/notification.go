package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/HammerMeetNail/chessticulate/internal/logging"
	"github.com/HammerMeetNail/chessticulate/internal/models"
)

const eventDeliveryTimeout = 10 * time.Second

// EventPublisher is the fire-and-forget side of notifications. Publish never fails.
type EventPublisher interface {
	Publish(ctx context.Context, event models.Event)
}

// EventSink delivers an event over one channel.
type EventSink interface {
	Deliver(ctx context.Context, event models.Event) error
}

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, models.Event) {}

// Notifier fans events out to every sink asynchronously.
type Notifier struct {
	sinks    []EventSink
	async    func(fn func())
	asyncCtx context.Context
	now      func() time.Time
}

func NewNotifier(sinks ...EventSink) *Notifier {
	return &Notifier{
		sinks: sinks,
		async: func(fn func()) {
			go fn()
		},
		asyncCtx: context.Background(),
		now:      time.Now,
	}
}

func (n *Notifier) SetAsync(fn func(fn func())) {
	n.async = fn
}

// SetAsyncContext sets the parent context of deliveries, so shutdown can cancel them.
func (n *Notifier) SetAsyncContext(ctx context.Context) {
	if ctx == nil {
		n.asyncCtx = context.Background()
		return
	}
	n.asyncCtx = ctx
}

func (n *Notifier) Publish(ctx context.Context, event models.Event) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = n.now()
	}
	for _, sink := range n.sinks {
		sink := sink
		n.async(func() {
			deliverCtx, cancel := context.WithTimeout(n.asyncCtx, eventDeliveryTimeout)
			defer cancel()
			if err := sink.Deliver(deliverCtx, event); err != nil {
				logging.Warn("Event delivery failed", map[string]interface{}{
					"type":  string(event.Type),
					"error": err.Error(),
				})
			}
		})
	}
}

func invitationEvent(t models.EventType, inv *models.Invitation) models.Event {
	return models.Event{
		Type:       t,
		Recipients: []uuid.UUID{inv.InviterID, inv.InviteeID},
		Invitation: inv,
	}
}

func gameEvent(t models.EventType, g *models.Game, m *models.Move) models.Event {
	return models.Event{
		Type:       t,
		Recipients: []uuid.UUID{g.WhiteID, g.BlackID},
		Game:       g,
		Move:       m,
	}
}
