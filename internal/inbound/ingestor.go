// Package inbound polls the modem inbox and persists received messages under
// content-addressed identifiers.
package inbound

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/smsbridge/smsbridge/internal/config"
	"github.com/smsbridge/smsbridge/internal/delivery"
	"github.com/smsbridge/smsbridge/internal/models"
	"github.com/smsbridge/smsbridge/internal/modem"
	"github.com/smsbridge/smsbridge/internal/storage"
)

type Ingestor struct {
	store     storage.Storage
	transport modem.Transport
	fanout    *delivery.Fanout
	interval  time.Duration
	log       zerolog.Logger
	stop      chan struct{}
	wg        sync.WaitGroup
}

func New(cfg config.ModemConfig, store storage.Storage, transport modem.Transport, fanout *delivery.Fanout, log zerolog.Logger) *Ingestor {
	return &Ingestor{
		store:     store,
		transport: transport,
		fanout:    fanout,
		interval:  cfg.PollInterval,
		log:       log.With().Str("component", "inbound").Logger(),
		stop:      make(chan struct{}),
	}
}

func (i *Ingestor) Start(ctx context.Context) {
	i.log.Info().Dur("interval", i.interval).Msg("starting inbox poller")

	i.wg.Add(1)
	go func() {
		defer i.wg.Done()
		i.pollLoop(ctx)
	}()
}

func (i *Ingestor) Stop() {
	close(i.stop)
	i.wg.Wait()
	i.log.Info().Msg("inbox poller stopped")
}

func (i *Ingestor) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(i.interval)
	defer ticker.Stop()

	for {
		select {
		case <-i.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			i.pollOnce(ctx)
		}
	}
}

func (i *Ingestor) pollOnce(ctx context.Context) {
	received, err := i.transport.PollInbox(ctx)
	if err != nil {
		i.log.Error().Err(err).Msg("failed to poll inbox")
		return
	}

	for _, raw := range received {
		if err := i.ingest(ctx, raw); err != nil {
			i.log.Error().Err(err).Str("sender", raw.Sender).Msg("failed to ingest message")
		}
	}
}

// ingest stores one raw message under its content hash and raises the
// incomingMessage domain event. A duplicate hash means the transport
// re-delivered a message we already have; that is expected under
// at-least-once delivery and is not an error.
func (i *Ingestor) ingest(ctx context.Context, raw modem.ReceivedMessage) error {
	msg := &models.InboundMessage{
		ID:              models.ContentID(raw.Sender, raw.Text, raw.DateTimeSent),
		Sender:          raw.Sender,
		Text:            raw.Text,
		DateTimeSent:    raw.DateTimeSent.UTC(),
		DateTimeCreated: time.Now().UTC(),
	}

	err := i.store.StoreInbound(ctx, msg)
	if errors.Is(err, storage.ErrDuplicateContent) {
		i.log.Debug().Str("id", msg.ID).Msg("skipping duplicate inbound message")
		return nil
	}
	if err != nil {
		return err
	}

	i.log.Info().Str("id", msg.ID).Str("sender", msg.Sender).Msg("inbound message stored")

	event := *msg
	event.Sender = NormalizeSender(msg.Sender)
	return i.fanout.AddEvent(ctx, models.EventIncomingMessage, event)
}

// NormalizeSender brings transport-reported numbers into international form;
// some modems drop the leading plus.
func NormalizeSender(s string) string {
	s = strings.TrimSpace(s)
	switch {
	case s == "":
		return s
	case strings.HasPrefix(s, "+"):
		return s
	case strings.HasPrefix(s, "00"):
		return "+" + s[2:]
	default:
		return "+" + s
	}
}
