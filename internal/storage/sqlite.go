package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/smsbridge/smsbridge/internal/models"
)

type SQLiteStorage struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, err
	}
	// A single writer connection keeps transactions serialized.
	db.SetMaxOpenConns(1)
	return &SQLiteStorage{db: db}, nil
}

func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS outgoing (
			id TEXT PRIMARY KEY,
			receiver TEXT NOT NULL,
			text TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'SCHEDULED',
			created_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS incoming (
			id TEXT PRIMARY KEY,
			sender TEXT NOT NULL,
			text TEXT NOT NULL,
			date_time_sent DATETIME NOT NULL,
			date_time_created DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS webhooks (
			id TEXT PRIMARY KEY,
			url TEXT NOT NULL,
			secret TEXT NOT NULL,
			event TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS events (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			message BLOB NOT NULL,
			trys INTEGER NOT NULL DEFAULT 0,
			last_try DATETIME NOT NULL,
			created_at DATETIME NOT NULL,
			webhook_id TEXT NOT NULL REFERENCES webhooks(id) ON DELETE CASCADE,
			abandoned INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_outgoing_status ON outgoing(status)`,
		`CREATE INDEX IF NOT EXISTS idx_incoming_sender ON incoming(sender)`,
		`CREATE INDEX IF NOT EXISTS idx_webhooks_event ON webhooks(event)`,
		`CREATE INDEX IF NOT EXISTS idx_events_pending ON events(abandoned, created_at)`,
	}

	for _, q := range queries {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

func isConstraintErr(err error) bool {
	var serr sqlite3.Error
	return errors.As(err, &serr) && serr.Code == sqlite3.ErrConstraint
}

// --- Outbound queue ---

func (s *SQLiteStorage) EnqueueOutbound(ctx context.Context, msg *models.OutboundMessage) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO outgoing (id, receiver, text, status, created_at) VALUES (?, ?, ?, ?, ?)`,
		msg.ID, msg.Receiver, msg.Text, msg.Status, msg.CreatedAt,
	)
	if isConstraintErr(err) {
		return ErrDuplicateID
	}
	return err
}

func (s *SQLiteStorage) ClaimOutbound(ctx context.Context, from, to models.MessageStatus) ([]models.OutboundMessage, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx,
		`SELECT id, receiver, text, status, created_at FROM outgoing WHERE status = ? ORDER BY created_at ASC`, from)
	if err != nil {
		return nil, err
	}

	var msgs []models.OutboundMessage
	for rows.Next() {
		var m models.OutboundMessage
		if err := rows.Scan(&m.ID, &m.Receiver, &m.Text, &m.Status, &m.CreatedAt); err != nil {
			rows.Close()
			return nil, err
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	if len(msgs) == 0 {
		return nil, tx.Commit()
	}

	if _, err := tx.ExecContext(ctx, `UPDATE outgoing SET status = ? WHERE status = ?`, to, from); err != nil {
		return nil, err
	}
	return msgs, tx.Commit()
}

func (s *SQLiteStorage) UpdateOutboundStatus(ctx context.Context, id string, status models.MessageStatus) error {
	_, err := s.db.ExecContext(ctx, `UPDATE outgoing SET status = ? WHERE id = ?`, status, id)
	return err
}

func (s *SQLiteStorage) GetOutbound(ctx context.Context, id string) (*models.OutboundMessage, error) {
	var m models.OutboundMessage
	err := s.db.QueryRowContext(ctx,
		`SELECT id, receiver, text, status, created_at FROM outgoing WHERE id = ?`, id,
	).Scan(&m.ID, &m.Receiver, &m.Text, &m.Status, &m.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return &m, err
}

// --- Inbound messages ---

func (s *SQLiteStorage) StoreInbound(ctx context.Context, msg *models.InboundMessage) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO incoming (id, sender, text, date_time_sent, date_time_created) VALUES (?, ?, ?, ?, ?)`,
		msg.ID, msg.Sender, msg.Text, msg.DateTimeSent, msg.DateTimeCreated,
	)
	if isConstraintErr(err) {
		return ErrDuplicateContent
	}
	return err
}

func (s *SQLiteStorage) ListInbound(ctx context.Context, sender string) ([]models.InboundMessage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, sender, text, date_time_sent, date_time_created FROM incoming WHERE sender = ? ORDER BY rowid ASC`, sender)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []models.InboundMessage
	for rows.Next() {
		var m models.InboundMessage
		if err := rows.Scan(&m.ID, &m.Sender, &m.Text, &m.DateTimeSent, &m.DateTimeCreated); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// --- Webhooks ---

func (s *SQLiteStorage) CreateWebhook(ctx context.Context, wh *models.Webhook) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO webhooks (id, url, secret, event) VALUES (?, ?, ?, ?)`,
		wh.ID, wh.URL, wh.Secret, wh.Event,
	)
	return err
}

func (s *SQLiteStorage) GetWebhook(ctx context.Context, id string) (*models.Webhook, error) {
	var wh models.Webhook
	err := s.db.QueryRowContext(ctx,
		`SELECT id, url, secret, event FROM webhooks WHERE id = ?`, id,
	).Scan(&wh.ID, &wh.URL, &wh.Secret, &wh.Event)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return &wh, err
}

func (s *SQLiteStorage) ListWebhooks(ctx context.Context) ([]models.Webhook, error) {
	return s.queryWebhooks(ctx, `SELECT id, url, secret, event FROM webhooks ORDER BY rowid ASC`)
}

func (s *SQLiteStorage) ListWebhooksByEvent(ctx context.Context, event string) ([]models.Webhook, error) {
	return s.queryWebhooks(ctx, `SELECT id, url, secret, event FROM webhooks WHERE event = ? ORDER BY rowid ASC`, event)
}

func (s *SQLiteStorage) queryWebhooks(ctx context.Context, query string, args ...interface{}) ([]models.Webhook, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hooks []models.Webhook
	for rows.Next() {
		var wh models.Webhook
		if err := rows.Scan(&wh.ID, &wh.URL, &wh.Secret, &wh.Event); err != nil {
			return nil, err
		}
		hooks = append(hooks, wh)
	}
	return hooks, rows.Err()
}

func (s *SQLiteStorage) DeleteWebhook(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM webhooks WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Delivery events ---

func (s *SQLiteStorage) CreateDeliveryEvent(ctx context.Context, evt *models.DeliveryEvent) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (id, name, message, trys, last_try, created_at, webhook_id, abandoned)
		 VALUES (?, ?, ?, ?, ?, ?, ?, 0)`,
		evt.ID, evt.Name, evt.Message, evt.Trys, evt.LastTry, evt.DateTimeCreated, evt.WebhookID,
	)
	return err
}

func (s *SQLiteStorage) GetDeliveryEvent(ctx context.Context, id string) (*models.DeliveryEvent, error) {
	var evt models.DeliveryEvent
	var abandoned int
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, message, trys, last_try, created_at, webhook_id, abandoned FROM events WHERE id = ?`, id,
	).Scan(&evt.ID, &evt.Name, &evt.Message, &evt.Trys, &evt.LastTry, &evt.DateTimeCreated, &evt.WebhookID, &abandoned)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	evt.Abandoned = abandoned == 1
	return &evt, err
}

func (s *SQLiteStorage) DeleteDeliveryEvent(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM events WHERE id = ?`, id)
	return err
}

func (s *SQLiteStorage) IncrementTrys(ctx context.Context, id string, lastTry time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE events SET trys = trys + 1, last_try = ? WHERE id = ?`, lastTry, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStorage) MarkAbandoned(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE events SET abandoned = 1 WHERE id = ?`, id)
	return err
}

func (s *SQLiteStorage) DueDeliveryEvents(ctx context.Context, limit int) ([]DueDelivery, error) {
	// Backoff eligibility is evaluated by the caller, so truncating here could
	// hide an eligible row behind backing-off ones. limit <= 0 means all.
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT e.id, e.name, e.message, e.trys, e.last_try, e.created_at, e.webhook_id, w.url, w.secret
		 FROM events e JOIN webhooks w ON e.webhook_id = w.id
		 WHERE e.abandoned = 0
		 ORDER BY e.created_at ASC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var due []DueDelivery
	for rows.Next() {
		var d DueDelivery
		if err := rows.Scan(&d.Event.ID, &d.Event.Name, &d.Event.Message, &d.Event.Trys,
			&d.Event.LastTry, &d.Event.DateTimeCreated, &d.Event.WebhookID, &d.URL, &d.Secret); err != nil {
			return nil, err
		}
		due = append(due, d)
	}
	return due, rows.Err()
}
