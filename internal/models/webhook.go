package models

import "time"

type Webhook struct {
	ID     string `json:"id"`
	URL    string `json:"url"`
	Secret string `json:"secret,omitempty"`
	Event  string `json:"event"`
}

// DeliveryEvent is the durable, per-webhook unit of retryable delivery work.
// Message holds the serialized payload exactly as it will be posted; it is
// never re-serialized between storage and transmission so the signature stays
// verifiable against the literal bytes sent.
type DeliveryEvent struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Message         []byte    `json:"message"`
	Trys            int       `json:"trys"`
	LastTry         time.Time `json:"last_try"`
	DateTimeCreated time.Time `json:"created_at"`
	WebhookID       string    `json:"webhook_id"`
	Abandoned       bool      `json:"abandoned"`
}
