package delivery

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/smsbridge/smsbridge/internal/config"
	"github.com/smsbridge/smsbridge/internal/storage"
)

// Engine drives webhook delivery. Each poll cycle selects the delivery events
// eligible under the backoff policy, posts each one concurrently, and either
// removes the event (success) or bumps its retry bookkeeping (any failure).
type Engine struct {
	store       storage.Storage
	sender      *Sender
	interval    time.Duration
	maxInFlight int
	log         zerolog.Logger
	stop        chan struct{}
	wg          sync.WaitGroup
	now         func() time.Time
}

func NewEngine(cfg config.DeliveryConfig, store storage.Storage, log zerolog.Logger) *Engine {
	return &Engine{
		store:       store,
		sender:      NewSender(cfg.Timeout),
		interval:    cfg.Interval,
		maxInFlight: cfg.MaxInFlight,
		log:         log.With().Str("component", "delivery").Logger(),
		stop:        make(chan struct{}),
		now:         time.Now,
	}
}

func (e *Engine) Start(ctx context.Context) {
	e.log.Info().Dur("interval", e.interval).Msg("starting webhook delivery engine")

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.pollLoop(ctx)
	}()
}

func (e *Engine) Stop() {
	close(e.stop)
	e.wg.Wait()
	e.log.Info().Msg("webhook delivery engine stopped")
}

func (e *Engine) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	sem := make(chan struct{}, e.maxInFlight)

	for {
		select {
		case <-e.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.runCycle(ctx, sem)
		}
	}
}

func (e *Engine) runCycle(ctx context.Context, sem chan struct{}) {
	// Select every non-abandoned candidate and filter here: eligibility depends
	// on trys, so a row-count cut before the filter would let a page of
	// backing-off rows starve an untried event behind them.
	due, err := e.store.DueDeliveryEvents(ctx, 0)
	if err != nil {
		e.log.Error().Err(err).Msg("failed to select delivery events")
		return
	}

	now := e.now().UTC()
	attempts := 0
	for _, d := range due {
		if attempts >= e.maxInFlight {
			break
		}
		if d.Event.Trys >= MaxTrys {
			// Retained for operators, never attempted again.
			if err := e.store.MarkAbandoned(ctx, d.Event.ID); err != nil {
				e.log.Error().Err(err).Str("delivery_event_id", d.Event.ID).Msg("failed to mark event abandoned")
				continue
			}
			e.log.Warn().
				Str("delivery_event_id", d.Event.ID).
				Int("trys", d.Event.Trys).
				Msg("delivery event abandoned after retry cap")
			continue
		}
		if !Eligible(d.Event.Trys, d.Event.LastTry, now) {
			continue
		}

		attempts++
		d := d
		sem <- struct{}{}
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			defer func() { <-sem }()
			e.attempt(ctx, d)
		}()
	}
}

func (e *Engine) attempt(ctx context.Context, d storage.DueDelivery) {
	result := e.sender.Send(ctx, d.URL, d.Secret, d.Event.Message)

	if result.Error == "" && result.StatusCode == http.StatusOK {
		if err := e.store.DeleteDeliveryEvent(ctx, d.Event.ID); err != nil {
			e.log.Error().Err(err).Str("delivery_event_id", d.Event.ID).Msg("failed to remove delivered event")
			return
		}
		e.log.Info().
			Str("delivery_event_id", d.Event.ID).
			Str("webhook_id", d.Event.WebhookID).
			Msg("webhook delivered")
		return
	}

	err := e.store.IncrementTrys(ctx, d.Event.ID, e.now().UTC())
	if errors.Is(err, storage.ErrNotFound) {
		// Removed by a concurrent successful attempt; nothing to do.
		e.log.Debug().Str("delivery_event_id", d.Event.ID).Msg("delivery event gone before retry bookkeeping")
		return
	}
	if err != nil {
		e.log.Error().Err(err).Str("delivery_event_id", d.Event.ID).Msg("failed to record delivery failure")
		return
	}

	e.log.Info().
		Str("delivery_event_id", d.Event.ID).
		Int("status_code", result.StatusCode).
		Str("error", result.Error).
		Int("trys", d.Event.Trys+1).
		Msg("webhook delivery failed, will retry")
}
