// Package dispatch drains the outbound message queue into the modem
// transport.
package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/smsbridge/smsbridge/internal/config"
	"github.com/smsbridge/smsbridge/internal/models"
	"github.com/smsbridge/smsbridge/internal/modem"
	"github.com/smsbridge/smsbridge/internal/storage"
)

// Dispatcher claims SCHEDULED messages and hands them to the transport. The
// claim moves a message to PROCESSING the instant it is picked up, so a cycle
// that starts before the previous one's sends finish can never double-send.
type Dispatcher struct {
	store       storage.Storage
	transport   modem.Transport
	interval    time.Duration
	sendTimeout time.Duration
	maxInFlight int
	log         zerolog.Logger
	stop        chan struct{}
	wg          sync.WaitGroup
}

func New(cfg config.DispatchConfig, store storage.Storage, transport modem.Transport, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		store:       store,
		transport:   transport,
		interval:    cfg.Interval,
		sendTimeout: cfg.SendTimeout,
		maxInFlight: cfg.MaxInFlight,
		log:         log.With().Str("component", "dispatch").Logger(),
		stop:        make(chan struct{}),
	}
}

func (d *Dispatcher) Start(ctx context.Context) {
	d.log.Info().Dur("interval", d.interval).Msg("starting outbound dispatcher")

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.pollLoop(ctx)
	}()
}

func (d *Dispatcher) Stop() {
	close(d.stop)
	d.wg.Wait()
	d.log.Info().Msg("outbound dispatcher stopped")
}

func (d *Dispatcher) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	sem := make(chan struct{}, d.maxInFlight)

	for {
		select {
		case <-d.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.runCycle(ctx, sem)
		}
	}
}

func (d *Dispatcher) runCycle(ctx context.Context, sem chan struct{}) {
	claimed, err := d.store.ClaimOutbound(ctx, models.StatusScheduled, models.StatusProcessing)
	if err != nil {
		d.log.Error().Err(err).Msg("failed to claim outbound messages")
		return
	}

	for _, msg := range claimed {
		msg := msg
		sem <- struct{}{}
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			defer func() { <-sem }()
			d.send(ctx, msg)
		}()
	}
}

func (d *Dispatcher) send(ctx context.Context, msg models.OutboundMessage) {
	sendCtx, cancel := context.WithTimeout(ctx, d.sendTimeout)
	err := d.transport.Send(sendCtx, msg.Receiver, msg.Text)
	cancel()

	status := models.StatusSent
	if err != nil {
		status = models.StatusFailed
		d.log.Error().Err(err).Str("message_id", msg.ID).Msg("transport send failed")
	}

	// Best effort: a failed write leaves the message PROCESSING for operator
	// reconciliation.
	if uerr := d.store.UpdateOutboundStatus(ctx, msg.ID, status); uerr != nil {
		d.log.Error().Err(uerr).
			Str("message_id", msg.ID).
			Str("status", string(status)).
			Msg("failed to record send outcome, message stays PROCESSING")
		return
	}

	if err == nil {
		d.log.Info().Str("message_id", msg.ID).Msg("message sent")
	}
}
