package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smsbridge/smsbridge/internal/config"
	"github.com/smsbridge/smsbridge/internal/models"
	"github.com/smsbridge/smsbridge/internal/modem"
	"github.com/smsbridge/smsbridge/internal/storage"
)

type stubTransport struct {
	mu      sync.Mutex
	sent    []string
	sendErr error
}

func (s *stubTransport) Send(ctx context.Context, receiver, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendErr != nil {
		return s.sendErr
	}
	s.sent = append(s.sent, receiver)
	return nil
}

func (s *stubTransport) PollInbox(ctx context.Context) ([]modem.ReceivedMessage, error) {
	return nil, nil
}

func newTestStore(t *testing.T) *storage.SQLiteStorage {
	t.Helper()
	store, err := storage.NewSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.Migrate(context.Background()))
	return store
}

func newTestDispatcher(store storage.Storage, transport modem.Transport) *Dispatcher {
	return New(config.DispatchConfig{
		Interval:    time.Second,
		SendTimeout: 2 * time.Second,
		MaxInFlight: 4,
	}, store, transport, zerolog.Nop())
}

func (d *Dispatcher) runOnce(ctx context.Context) {
	d.runCycle(ctx, make(chan struct{}, d.maxInFlight))
	d.wg.Wait()
}

func enqueue(t *testing.T, store storage.Storage, id string) {
	t.Helper()
	require.NoError(t, store.EnqueueOutbound(context.Background(), &models.OutboundMessage{
		ID:        id,
		Receiver:  "+491795345170",
		Text:      "test",
		Status:    models.StatusScheduled,
		CreatedAt: time.Now().UTC(),
	}))
}

func TestDispatcherMarksSentOnSuccess(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	transport := &stubTransport{}

	enqueue(t, store, "out_1")

	d := newTestDispatcher(store, transport)
	d.runOnce(ctx)

	msg, err := store.GetOutbound(ctx, "out_1")
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, models.StatusSent, msg.Status)
	assert.Equal(t, []string{"+491795345170"}, transport.sent)
}

func TestDispatcherMarksFailedOnTransportError(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	transport := &stubTransport{sendErr: errors.New("modem unreachable")}

	enqueue(t, store, "out_1")

	d := newTestDispatcher(store, transport)
	d.runOnce(ctx)

	msg, err := store.GetOutbound(ctx, "out_1")
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, models.StatusFailed, msg.Status)
}

func TestDispatcherClaimHidesMessagesFromNextCycle(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	enqueue(t, store, "out_1")
	enqueue(t, store, "out_2")

	// First cycle claims everything; a second claim before the outcomes are
	// written must come back empty.
	claimed, err := store.ClaimOutbound(ctx, models.StatusScheduled, models.StatusProcessing)
	require.NoError(t, err)
	assert.Len(t, claimed, 2)

	transport := &stubTransport{}
	d := newTestDispatcher(store, transport)
	d.runOnce(ctx)

	assert.Empty(t, transport.sent, "a message in PROCESSING must not be sent again")
}
