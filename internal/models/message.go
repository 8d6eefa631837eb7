package models

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

type MessageStatus string

const (
	StatusScheduled  MessageStatus = "SCHEDULED"
	StatusProcessing MessageStatus = "PROCESSING"
	StatusSent       MessageStatus = "SENT"
	StatusFailed     MessageStatus = "FAILED"
)

type OutboundMessage struct {
	ID        string        `json:"id"`
	Receiver  string        `json:"receiver"`
	Text      string        `json:"text"`
	Status    MessageStatus `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
}

// InboundMessage is identified by its content hash rather than a random ID,
// so a transport re-delivering the same physical message cannot create a
// second row.
type InboundMessage struct {
	ID              string    `json:"id"`
	Sender          string    `json:"sender"`
	Text            string    `json:"text"`
	DateTimeSent    time.Time `json:"dateTimeSent"`
	DateTimeCreated time.Time `json:"dateTimeCreated"`
}

// ContentID derives the deterministic identifier of an inbound message from
// sender, text and send time. The transport's slot index is intentionally
// left out: it changes when messages are deleted from the SIM.
func ContentID(sender, text string, sentAt time.Time) string {
	content := fmt.Sprintf("%s-%s-%s", sender, text, sentAt.UTC().Format(time.RFC3339))
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
