package models

import (
	"fmt"
	mrand "math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// NewID returns a prefixed, time-sortable identifier ("out_...", "wh_...").
func NewID(prefix string) string {
	t := time.Now()
	entropy := ulid.Monotonic(mrand.New(mrand.NewSource(t.UnixNano())), 0)
	id := ulid.MustNew(ulid.Timestamp(t), entropy)
	return fmt.Sprintf("%s_%s", prefix, id.String())
}

// NewEventID returns a fresh identifier for a delivery event. These rows are
// short-lived and high-churn, so they get plain UUIDs without a prefix.
func NewEventID() string {
	return uuid.NewString()
}
