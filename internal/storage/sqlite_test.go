package storage

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smsbridge/smsbridge/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStorage {
	t.Helper()
	store, err := NewSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.Migrate(context.Background()))
	return store
}

func enqueue(t *testing.T, store *SQLiteStorage, id string) {
	t.Helper()
	require.NoError(t, store.EnqueueOutbound(context.Background(), &models.OutboundMessage{
		ID:        id,
		Receiver:  "+491795345170",
		Text:      "test",
		Status:    models.StatusScheduled,
		CreatedAt: time.Now().UTC(),
	}))
}

func TestEnqueueOutboundRejectsDuplicateID(t *testing.T) {
	store := newTestStore(t)

	enqueue(t, store, "out_1")
	err := store.EnqueueOutbound(context.Background(), &models.OutboundMessage{
		ID:        "out_1",
		Receiver:  "+491795345170",
		Text:      "again",
		Status:    models.StatusScheduled,
		CreatedAt: time.Now().UTC(),
	})
	assert.ErrorIs(t, err, ErrDuplicateID)
}

func TestClaimOutboundIsDisjointAndComplete(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	ids := []string{"out_1", "out_2", "out_3", "out_4", "out_5"}
	for _, id := range ids {
		enqueue(t, store, id)
	}

	var mu sync.Mutex
	var claimed [][]models.OutboundMessage
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			msgs, err := store.ClaimOutbound(ctx, models.StatusScheduled, models.StatusProcessing)
			assert.NoError(t, err)
			mu.Lock()
			claimed = append(claimed, msgs)
			mu.Unlock()
		}()
	}
	wg.Wait()

	seen := map[string]int{}
	for _, batch := range claimed {
		for _, m := range batch {
			seen[m.ID]++
			assert.Equal(t, models.StatusScheduled, m.Status, "claim returns pre-update rows")
		}
	}

	require.Len(t, seen, len(ids), "every scheduled message is claimed exactly once")
	for _, id := range ids {
		assert.Equal(t, 1, seen[id], "message %s claimed by both cycles", id)
	}

	// Nothing is left to claim.
	rest, err := store.ClaimOutbound(ctx, models.StatusScheduled, models.StatusProcessing)
	require.NoError(t, err)
	assert.Empty(t, rest)
}

func TestUpdateOutboundStatusIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	enqueue(t, store, "out_1")
	require.NoError(t, store.UpdateOutboundStatus(ctx, "out_1", models.StatusSent))
	require.NoError(t, store.UpdateOutboundStatus(ctx, "out_1", models.StatusSent))

	msg, err := store.GetOutbound(ctx, "out_1")
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, models.StatusSent, msg.Status)
}

func TestStoreInboundDeduplicatesByContent(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	sentAt := time.Date(2020, 9, 3, 12, 47, 44, 0, time.UTC)
	msg := &models.InboundMessage{
		ID:              models.ContentID("491795345170", "hello", sentAt),
		Sender:          "491795345170",
		Text:            "hello",
		DateTimeSent:    sentAt,
		DateTimeCreated: time.Now().UTC(),
	}

	require.NoError(t, store.StoreInbound(ctx, msg))
	assert.ErrorIs(t, store.StoreInbound(ctx, msg), ErrDuplicateContent)

	msgs, err := store.ListInbound(ctx, "491795345170")
	require.NoError(t, err)
	assert.Len(t, msgs, 1, "identical content must persist exactly one row")
}

func TestListInboundKeepsInsertionOrder(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	base := time.Date(2020, 9, 3, 12, 0, 0, 0, time.UTC)
	for i, text := range []string{"first", "second", "third"} {
		sentAt := base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, store.StoreInbound(ctx, &models.InboundMessage{
			ID:              models.ContentID("491795345170", text, sentAt),
			Sender:          "491795345170",
			Text:            text,
			DateTimeSent:    sentAt,
			DateTimeCreated: time.Now().UTC(),
		}))
	}

	msgs, err := store.ListInbound(ctx, "491795345170")
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "first", msgs[0].Text)
	assert.Equal(t, "second", msgs[1].Text)
	assert.Equal(t, "third", msgs[2].Text)
}

func TestDeleteWebhookNotFound(t *testing.T) {
	store := newTestStore(t)
	assert.ErrorIs(t, store.DeleteWebhook(context.Background(), "wh_missing"), ErrNotFound)
}

func TestIncrementTrysOnMissingRow(t *testing.T) {
	store := newTestStore(t)
	err := store.IncrementTrys(context.Background(), "gone", time.Now().UTC())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDueDeliveryEventsJoinsWebhook(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.CreateWebhook(ctx, &models.Webhook{
		ID: "wh_1", URL: "https://example.com/hook", Secret: "aaaaaaaaaa", Event: models.EventIncomingMessage,
	}))
	now := time.Now().UTC()
	require.NoError(t, store.CreateDeliveryEvent(ctx, &models.DeliveryEvent{
		ID: "evt_1", Name: models.EventIncomingMessage, Message: []byte(`{}`),
		Trys: 0, LastTry: now, DateTimeCreated: now, WebhookID: "wh_1",
	}))

	due, err := store.DueDeliveryEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "https://example.com/hook", due[0].URL)
	assert.Equal(t, "aaaaaaaaaa", due[0].Secret)
	assert.Equal(t, "evt_1", due[0].Event.ID)

	require.NoError(t, store.MarkAbandoned(ctx, "evt_1"))
	due, err = store.DueDeliveryEvents(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestDueDeliveryEventsWithoutLimitReturnsAll(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.CreateWebhook(ctx, &models.Webhook{
		ID: "wh_1", URL: "https://example.com/hook", Secret: "aaaaaaaaaa", Event: models.EventIncomingMessage,
	}))
	now := time.Now().UTC()
	for i := 0; i < 60; i++ {
		require.NoError(t, store.CreateDeliveryEvent(ctx, &models.DeliveryEvent{
			ID: models.NewEventID(), Name: models.EventIncomingMessage, Message: []byte(`{}`),
			Trys: 0, LastTry: now, DateTimeCreated: now.Add(time.Duration(i) * time.Second), WebhookID: "wh_1",
		}))
	}

	due, err := store.DueDeliveryEvents(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, due, 60, "limit <= 0 must return every candidate")

	due, err = store.DueDeliveryEvents(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, due, 10)
}
