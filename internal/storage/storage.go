package storage

import (
	"context"
	"errors"
	"time"

	"github.com/smsbridge/smsbridge/internal/models"
)

var (
	// ErrDuplicateID is returned when enqueueing an outbound message whose ID
	// already exists.
	ErrDuplicateID = errors.New("storage: duplicate message id")

	// ErrDuplicateContent is returned when storing an inbound message whose
	// content hash already exists. Callers treat this as "already recorded".
	ErrDuplicateContent = errors.New("storage: duplicate message content")

	// ErrNotFound is returned when a targeted row does not exist. Inside the
	// delivery engine this is expected: the row may have been removed by a
	// concurrent successful delivery.
	ErrNotFound = errors.New("storage: not found")
)

// DueDelivery is a delivery event joined with its owning webhook's URL and
// secret, ready for a delivery attempt.
type DueDelivery struct {
	Event  models.DeliveryEvent
	URL    string
	Secret string
}

type Storage interface {
	// Outbound queue
	EnqueueOutbound(ctx context.Context, msg *models.OutboundMessage) error
	// ClaimOutbound atomically moves every message in status `from` to status
	// `to` and returns the pre-update rows. Two overlapping claims never both
	// see the same message in `from`; this is the dispatcher's sole
	// concurrency-safety primitive.
	ClaimOutbound(ctx context.Context, from, to models.MessageStatus) ([]models.OutboundMessage, error)
	UpdateOutboundStatus(ctx context.Context, id string, status models.MessageStatus) error
	GetOutbound(ctx context.Context, id string) (*models.OutboundMessage, error)

	// Inbound messages
	StoreInbound(ctx context.Context, msg *models.InboundMessage) error
	ListInbound(ctx context.Context, sender string) ([]models.InboundMessage, error)

	// Webhooks
	CreateWebhook(ctx context.Context, wh *models.Webhook) error
	GetWebhook(ctx context.Context, id string) (*models.Webhook, error)
	ListWebhooks(ctx context.Context) ([]models.Webhook, error)
	ListWebhooksByEvent(ctx context.Context, event string) ([]models.Webhook, error)
	DeleteWebhook(ctx context.Context, id string) error

	// Delivery events
	CreateDeliveryEvent(ctx context.Context, evt *models.DeliveryEvent) error
	GetDeliveryEvent(ctx context.Context, id string) (*models.DeliveryEvent, error)
	DeleteDeliveryEvent(ctx context.Context, id string) error
	IncrementTrys(ctx context.Context, id string, lastTry time.Time) error
	MarkAbandoned(ctx context.Context, id string) error
	// DueDeliveryEvents returns non-abandoned delivery events joined with
	// their webhooks, oldest first. Backoff eligibility is evaluated by the
	// caller; this only narrows the candidate set.
	DueDeliveryEvents(ctx context.Context, limit int) ([]DueDelivery, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
