package sqlxrepos

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/zerlake/thesisai-philippines-sub009/core/notification"
)

// Postgres error codes of a source that cannot be read.
const (
	codeUndefinedTable        = "42P01"
	codeInsufficientPrivilege = "42501"
)

// messagesTable describes a table holding direct messages.
type messagesTable struct {
	name string
	body string // message column
	read string // read flag column
}

// messageTables in lookup order; the legacy table is only read when the first is missing.
var messageTables = []messagesTable{
	{name: notification.TableMessages, body: "message", read: "read_status"},
	{name: "messages", body: "content", read: "is_read"},
}

type (
	notificationRow struct {
		ID        string      `db:"id"`
		UserID    string      `db:"user_id"`
		Type      string      `db:"type"`
		Title     string      `db:"title"`
		Message   string      `db:"message"`
		Link      null.String `db:"link"`
		IsRead    bool        `db:"is_read"`
		CreatedAt time.Time   `db:"created_at"`
	}

	messageRow struct {
		ID          string      `db:"id"`
		SenderID    string      `db:"sender_id"`
		RecipientID string      `db:"recipient_id"`
		SenderName  null.String `db:"sender_name"`
		SenderRole  null.String `db:"sender_role"`
		Message     string      `db:"message"`
		ReadStatus  bool        `db:"read_status"`
		CreatedAt   time.Time   `db:"created_at"`
	}
)

func (r notificationRow) notification() notification.Notification {
	return notification.Notification{
		ID:        r.ID,
		UserID:    r.UserID,
		Type:      r.Type,
		Title:     r.Title,
		Message:   r.Message,
		Link:      r.Link.String,
		IsRead:    r.IsRead,
		CreatedAt: r.CreatedAt,
	}
}

func (r messageRow) message() notification.ChatMessage {
	return notification.ChatMessage{
		ID:          r.ID,
		SenderID:    r.SenderID,
		RecipientID: r.RecipientID,
		SenderName:  r.SenderName.String,
		SenderRole:  r.SenderRole.String,
		Message:     r.Message,
		ReadStatus:  r.ReadStatus,
		CreatedAt:   r.CreatedAt,
	}
}

type notificationRepository struct {
	db *sqlx.DB
}

var _ notification.Repository = (*notificationRepository)(nil) // interface compliance check

func NewNotificationRepository(db *sqlx.DB) notification.Repository {
	return &notificationRepository{db: db}
}

func (repo *notificationRepository) RecentNotifications(ctx context.Context, userID string, limit int) ([]notification.Notification, error) {
	rows := make([]notificationRow, 0, limit)
	q := `SELECT id, user_id, type, title, message, link, is_read, created_at
		FROM notifications WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`
	if err := repo.db.SelectContext(ctx, &rows, q, userID, limit); err != nil {
		return nil, errors.Wrap(err, "selecting notifications")
	}

	notifs := make([]notification.Notification, 0, len(rows))
	for _, r := range rows {
		notifs = append(notifs, r.notification())
	}
	return notifs, nil
}

func (repo *notificationRepository) CountUnreadNotifications(ctx context.Context, userID string) (int, error) {
	var count int
	q := `SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND NOT is_read`
	if err := repo.db.GetContext(ctx, &count, q, userID); err != nil {
		return 0, errors.Wrap(err, "counting notifications")
	}
	return count, nil
}

func (repo *notificationRepository) CreateNotification(ctx context.Context, n *notification.Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	q := `INSERT INTO notifications (id, user_id, type, title, message, link, is_read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := repo.db.ExecContext(ctx, q,
		n.ID, n.UserID, n.Type, n.Title, n.Message, null.NewString(n.Link, n.Link != ""), n.IsRead, n.CreatedAt)
	if err != nil {
		return errors.Wrap(err, "inserting notification")
	}
	return nil
}

func (repo *notificationRepository) MarkNotificationsRead(ctx context.Context, userID string) error {
	q := `UPDATE notifications SET is_read = true WHERE user_id = $1 AND NOT is_read`
	if _, err := repo.db.ExecContext(ctx, q, userID); err != nil {
		return errors.Wrap(err, "updating notifications")
	}
	return nil
}

func (repo *notificationRepository) UnreadMessages(ctx context.Context, userID string, limit int) ([]notification.ChatMessage, error) {
	var rows []messageRow
	err := eachMessagesTable(func(t messagesTable) error {
		rows = make([]messageRow, 0, limit)
		q := fmt.Sprintf(`SELECT id, sender_id, recipient_id, sender_name, sender_role, %s AS message, %s AS read_status, created_at
			FROM %s WHERE recipient_id = $1 AND NOT %s ORDER BY created_at DESC LIMIT $2`,
			t.body, t.read, t.name, t.read)
		return repo.db.SelectContext(ctx, &rows, q, userID, limit)
	})
	if err != nil {
		return nil, errors.Wrap(err, "selecting messages")
	}

	msgs := make([]notification.ChatMessage, 0, len(rows))
	for _, r := range rows {
		msgs = append(msgs, r.message())
	}
	return msgs, nil
}

func (repo *notificationRepository) CreateMessage(ctx context.Context, m *notification.ChatMessage) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	err := eachMessagesTable(func(t messagesTable) error {
		q := fmt.Sprintf(`INSERT INTO %s (id, sender_id, recipient_id, sender_name, sender_role, %s, %s, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`, t.name, t.body, t.read)
		_, err := repo.db.ExecContext(ctx, q,
			m.ID, m.SenderID, m.RecipientID,
			null.NewString(m.SenderName, m.SenderName != ""), null.NewString(m.SenderRole, m.SenderRole != ""),
			m.Message, m.ReadStatus, m.CreatedAt)
		return err
	})
	if err != nil {
		return errors.Wrap(err, "inserting message")
	}
	return nil
}

func (repo *notificationRepository) MarkMessagesRead(ctx context.Context, userID string) error {
	err := eachMessagesTable(func(t messagesTable) error {
		q := fmt.Sprintf(`UPDATE %s SET %s = true WHERE recipient_id = $1 AND NOT %s`, t.name, t.read, t.read)
		_, err := repo.db.ExecContext(ctx, q, userID)
		return err
	})
	if err != nil {
		return errors.Wrap(err, "updating messages")
	}
	return nil
}

// eachMessagesTable runs fn on the first messages table that exists.
func eachMessagesTable(fn func(t messagesTable) error) error {
	var err error
	for _, t := range messageTables {
		if err = fn(t); !hasCode(err, codeUndefinedTable) {
			break
		}
	}
	return sourceErr(err)
}

// sourceErr turns a missing or forbidden table into notification.ErrSourceUnavailable.
func sourceErr(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && (pqErr.Code == codeUndefinedTable || pqErr.Code == codeInsufficientPrivilege) {
		return errors.Wrap(notification.ErrSourceUnavailable, pqErr.Message)
	}
	return err
}

func hasCode(err error, code pq.ErrorCode) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == code
}
