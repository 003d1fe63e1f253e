// internal/notification/repository.go

package notifications

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
)

// Migrations creates the contact and inbox tables if they are missing
var Migrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id BIGSERIAL PRIMARY KEY,
		email VARCHAR(255),
		phone VARCHAR(32),
		first_name VARCHAR(100),
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS push_tokens (
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL,
		platform VARCHAR(20) NOT NULL,
		token TEXT NOT NULL UNIQUE,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS notifications (
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL,
		kind VARCHAR(50) NOT NULL,
		title VARCHAR(200) NOT NULL,
		message TEXT NOT NULL,
		data JSONB NOT NULL DEFAULT '{}',
		is_read BOOLEAN NOT NULL DEFAULT FALSE,
		read_at TIMESTAMP WITH TIME ZONE,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_push_tokens_user ON push_tokens(user_id) WHERE is_active`,
	`CREATE INDEX IF NOT EXISTS idx_notifications_user ON notifications(user_id, created_at DESC)`,
}

// Repository looks up contacts and stores the in-app inbox
type Repository interface {
	// Contact returns how to reach userID. Missing users give ErrContactNotFound.
	Contact(ctx context.Context, userID int64) (*Contact, error)

	// Push tokens
	SavePushToken(ctx context.Context, userID int64, platform, token string) error
	DeactivatePushToken(ctx context.Context, userID int64, token string) error

	// Inbox
	CreateNotification(ctx context.Context, n *Notification) error
	GetUserNotifications(ctx context.Context, userID int64, limit, offset int, unreadOnly bool) ([]*Notification, error)
	UnreadCount(ctx context.Context, userID int64) (int, error)
	MarkAsRead(ctx context.Context, notificationID, userID int64) error
}

type postgresRepository struct {
	db *sqlx.DB
}

func NewPostgresRepository(db *sqlx.DB) Repository {
	return &postgresRepository{db: db}
}

func (r *postgresRepository) Contact(ctx context.Context, userID int64) (*Contact, error) {
	var c Contact
	err := r.db.GetContext(ctx, &c, `
		SELECT id, COALESCE(email, '') AS email, COALESCE(phone, '') AS phone,
		       COALESCE(first_name, '') AS first_name
		FROM users WHERE id = $1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: user %d", ErrContactNotFound, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load contact %d: %w", userID, err)
	}

	err = r.db.SelectContext(ctx, &c.PushTokens, `
		SELECT token FROM push_tokens
		WHERE user_id = $1 AND is_active = TRUE
		ORDER BY updated_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load push tokens for %d: %w", userID, err)
	}

	return &c, nil
}

func (r *postgresRepository) SavePushToken(ctx context.Context, userID int64, platform, token string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO push_tokens (user_id, platform, token, is_active)
		VALUES ($1, $2, $3, TRUE)
		ON CONFLICT (token) DO UPDATE
		SET user_id = EXCLUDED.user_id, platform = EXCLUDED.platform,
		    is_active = TRUE, updated_at = CURRENT_TIMESTAMP`,
		userID, platform, token)
	if err != nil {
		return fmt.Errorf("failed to save push token: %w", err)
	}
	return nil
}

func (r *postgresRepository) DeactivatePushToken(ctx context.Context, userID int64, token string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE push_tokens SET is_active = FALSE, updated_at = CURRENT_TIMESTAMP
		WHERE user_id = $1 AND token = $2`, userID, token)
	return err
}

func (r *postgresRepository) CreateNotification(ctx context.Context, n *Notification) error {
	rows, err := r.db.NamedQueryContext(ctx, `
		INSERT INTO notifications (user_id, kind, title, message, data, is_read)
		VALUES (:user_id, :kind, :title, :message, :data, FALSE)
		RETURNING id, created_at`, n)
	if err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	defer rows.Close()

	if rows.Next() {
		return rows.Scan(&n.ID, &n.CreatedAt)
	}
	return rows.Err()
}

func (r *postgresRepository) GetUserNotifications(ctx context.Context, userID int64, limit, offset int, unreadOnly bool) ([]*Notification, error) {
	var list []*Notification
	err := r.db.SelectContext(ctx, &list, `
		SELECT id, user_id, kind, title, message, data, is_read, read_at, created_at
		FROM notifications
		WHERE user_id = $1 AND (NOT $2 OR is_read = FALSE)
		ORDER BY created_at DESC, id DESC
		LIMIT $3 OFFSET $4`, userID, unreadOnly, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	return list, nil
}

func (r *postgresRepository) UnreadCount(ctx context.Context, userID int64) (int, error) {
	var n int
	err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND is_read = FALSE`, userID)
	return n, err
}

func (r *postgresRepository) MarkAsRead(ctx context.Context, notificationID, userID int64) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE notifications SET is_read = TRUE, read_at = CURRENT_TIMESTAMP
		WHERE id = $1 AND user_id = $2`, notificationID, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotificationNotFound
	}
	return nil
}

// MemoryRepository is an in-process Repository for tests and local runs
type MemoryRepository struct {
	mu       sync.Mutex
	contacts map[int64]*Contact
	inbox    []*Notification
	seq      int64
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{contacts: make(map[int64]*Contact)}
}

// AddContact registers or replaces a contact
func (m *MemoryRepository) AddContact(c Contact) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c.PushTokens = append([]string(nil), c.PushTokens...)
	m.contacts[c.UserID] = &c
}

func (m *MemoryRepository) Contact(ctx context.Context, userID int64) (*Contact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.contacts[userID]
	if !ok {
		return nil, fmt.Errorf("%w: user %d", ErrContactNotFound, userID)
	}
	cp := *c
	cp.PushTokens = append([]string(nil), c.PushTokens...)
	return &cp, nil
}

func (m *MemoryRepository) SavePushToken(ctx context.Context, userID int64, platform, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.contacts[userID]
	if !ok {
		c = &Contact{UserID: userID}
		m.contacts[userID] = c
	}
	for _, t := range c.PushTokens {
		if t == token {
			return nil
		}
	}
	c.PushTokens = append(c.PushTokens, token)
	return nil
}

func (m *MemoryRepository) DeactivatePushToken(ctx context.Context, userID int64, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.contacts[userID]
	if !ok {
		return nil
	}
	kept := c.PushTokens[:0]
	for _, t := range c.PushTokens {
		if t != token {
			kept = append(kept, t)
		}
	}
	c.PushTokens = kept
	return nil
}

func (m *MemoryRepository) CreateNotification(ctx context.Context, n *Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	n.ID = m.seq
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	cp := *n
	m.inbox = append(m.inbox, &cp)
	return nil
}

func (m *MemoryRepository) GetUserNotifications(ctx context.Context, userID int64, limit, offset int, unreadOnly bool) ([]*Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*Notification
	for i := len(m.inbox) - 1; i >= 0; i-- {
		n := m.inbox[i]
		if n.UserID != userID || (unreadOnly && n.IsRead) {
			continue
		}
		cp := *n
		out = append(out, &cp)
	}

	if offset >= len(out) {
		return []*Notification{}, nil
	}
	out = out[offset:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryRepository) UnreadCount(ctx context.Context, userID int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, n := range m.inbox {
		if n.UserID == userID && !n.IsRead {
			count++
		}
	}
	return count, nil
}

func (m *MemoryRepository) MarkAsRead(ctx context.Context, notificationID, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, n := range m.inbox {
		if n.ID == notificationID && n.UserID == userID {
			now := time.Now()
			n.IsRead = true
			n.ReadAt = &now
			return nil
		}
	}
	return ErrNotificationNotFound
}
