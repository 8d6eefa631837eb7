package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/smsbridge/smsbridge/internal/models"
	"github.com/smsbridge/smsbridge/internal/storage"
)

// ErrUnknownEvent is returned when an event name outside the closed set of
// domain events is raised.
var ErrUnknownEvent = errors.New("delivery: unknown event name")

// Fanout turns a domain event into one delivery event per registered webhook.
// The payload is serialized exactly once here; every later delivery attempt
// posts those same bytes.
type Fanout struct {
	store storage.Storage
	log   zerolog.Logger
}

func NewFanout(store storage.Storage, log zerolog.Logger) *Fanout {
	return &Fanout{
		store: store,
		log:   log.With().Str("component", "fanout").Logger(),
	}
}

func (f *Fanout) AddEvent(ctx context.Context, name string, payload interface{}) error {
	if !models.KnownEvent(name) {
		return fmt.Errorf("%w: %q", ErrUnknownEvent, name)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("serialize event payload: %w", err)
	}

	hooks, err := f.store.ListWebhooksByEvent(ctx, name)
	if err != nil {
		return fmt.Errorf("list webhooks for event %q: %w", name, err)
	}

	now := time.Now().UTC()
	for _, wh := range hooks {
		evt := &models.DeliveryEvent{
			ID:              models.NewEventID(),
			Name:            name,
			Message:         body,
			Trys:            0,
			LastTry:         now,
			DateTimeCreated: now,
			WebhookID:       wh.ID,
		}
		if err := f.store.CreateDeliveryEvent(ctx, evt); err != nil {
			return fmt.Errorf("store delivery event for webhook %s: %w", wh.ID, err)
		}
		f.log.Debug().
			Str("event", name).
			Str("webhook_id", wh.ID).
			Str("delivery_event_id", evt.ID).
			Msg("delivery event created")
	}
	return nil
}
