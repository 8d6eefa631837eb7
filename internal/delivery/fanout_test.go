package delivery

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smsbridge/smsbridge/internal/models"
	"github.com/smsbridge/smsbridge/internal/storage"
)

func newTestStore(t *testing.T) *storage.SQLiteStorage {
	t.Helper()
	store, err := storage.NewSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.Migrate(context.Background()))
	return store
}

func registerHook(t *testing.T, store storage.Storage, id, event string) {
	t.Helper()
	err := store.CreateWebhook(context.Background(), &models.Webhook{
		ID:     id,
		URL:    "http://example.com",
		Secret: "aaaaaaaaaa",
		Event:  event,
	})
	require.NoError(t, err)
}

func TestAddEventCreatesOneDeliveryEventPerMatchingWebhook(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	fanout := NewFanout(store, zerolog.Nop())

	registerHook(t, store, "wh_abc", models.EventIncomingMessage)
	registerHook(t, store, "wh_cba", "somethingElse")
	registerHook(t, store, "wh_def", models.EventIncomingMessage)

	err := fanout.AddEvent(ctx, models.EventIncomingMessage, map[string]string{"hello": "world"})
	require.NoError(t, err)

	due, err := store.DueDeliveryEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, due, 2)

	hookIDs := []string{due[0].Event.WebhookID, due[1].Event.WebhookID}
	assert.ElementsMatch(t, []string{"wh_abc", "wh_def"}, hookIDs)
	assert.NotEqual(t, due[0].Event.ID, due[1].Event.ID)

	for _, d := range due {
		assert.Equal(t, 0, d.Event.Trys)
		assert.JSONEq(t, `{"hello":"world"}`, string(d.Event.Message))
	}
}

func TestAddEventRejectsUnknownName(t *testing.T) {
	store := newTestStore(t)
	fanout := NewFanout(store, zerolog.Nop())

	err := fanout.AddEvent(context.Background(), "notAnEvent", nil)
	assert.ErrorIs(t, err, ErrUnknownEvent)
}

func TestAddEventWithoutWebhooksIsNoOp(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	fanout := NewFanout(store, zerolog.Nop())

	err := fanout.AddEvent(ctx, models.EventIncomingMessage, map[string]string{"hello": "world"})
	require.NoError(t, err)

	due, err := store.DueDeliveryEvents(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, due)
}
