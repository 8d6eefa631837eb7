// Package modem abstracts the physical SMS transport. The gateway only needs
// two capabilities from it: send one message, and drain the inbox.
package modem

import (
	"context"
	"time"
)

type ReceivedMessage struct {
	Sender       string    `json:"sender"`
	Text         string    `json:"text"`
	DateTimeSent time.Time `json:"dateTimeSent"`
}

type Transport interface {
	Send(ctx context.Context, receiver, text string) error
	// PollInbox returns messages received since the previous poll. The
	// transport may deliver the same message more than once; callers
	// deduplicate by content.
	PollInbox(ctx context.Context) ([]ReceivedMessage, error)
}
