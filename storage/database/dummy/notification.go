package dummydb

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/zerlake/thesisai-philippines-sub009/core/notification"
)

type notificationRepository struct {
	db *DB
}

var _ notification.Repository = (*notificationRepository)(nil) // interface compliance check

func NewNotificationRepository(db *DB) notification.Repository {
	return &notificationRepository{db: db}
}

func (repo *notificationRepository) notifications(userID string) []notification.Notification {
	notifs := make([]notification.Notification, 0)
	for _, n := range repo.db.notification.table {
		if n.UserID == userID {
			notifs = append(notifs, *n)
		}
	}
	sort.Slice(notifs, func(i, j int) bool { return notifs[i].CreatedAt.After(notifs[j].CreatedAt) })
	return notifs
}

func (repo *notificationRepository) RecentNotifications(_ context.Context, userID string, limit int) ([]notification.Notification, error) {
	repo.db.notification.RLock()
	defer repo.db.notification.RUnlock()

	notifs := repo.notifications(userID)
	if len(notifs) > limit {
		notifs = notifs[:limit]
	}
	return notifs, nil
}

func (repo *notificationRepository) CountUnreadNotifications(_ context.Context, userID string) (int, error) {
	repo.db.notification.RLock()
	defer repo.db.notification.RUnlock()

	count := 0
	for _, n := range repo.notifications(userID) {
		if !n.IsRead {
			count++
		}
	}
	return count, nil
}

func (repo *notificationRepository) CreateNotification(_ context.Context, n *notification.Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}

	repo.db.notification.Lock()
	row := *n
	repo.db.notification.table[n.ID] = &row
	repo.db.notification.Unlock()

	return repo.publish(notification.TableNotifications, n.UserID, map[string]interface{}{
		"id":         n.ID,
		"user_id":    n.UserID,
		"type":       n.Type,
		"title":      n.Title,
		"message":    n.Message,
		"link":       nullable(n.Link),
		"is_read":    n.IsRead,
		"created_at": n.CreatedAt,
	})
}

func (repo *notificationRepository) MarkNotificationsRead(_ context.Context, userID string) error {
	repo.db.notification.Lock()
	defer repo.db.notification.Unlock()

	for _, n := range repo.db.notification.table {
		if n.UserID == userID {
			n.IsRead = true
		}
	}
	return nil
}

func (repo *notificationRepository) UnreadMessages(_ context.Context, userID string, limit int) ([]notification.ChatMessage, error) {
	repo.db.message.RLock()
	defer repo.db.message.RUnlock()

	if repo.db.message.unavailable {
		return nil, notification.ErrSourceUnavailable
	}
	msgs := make([]notification.ChatMessage, 0)
	for _, m := range repo.db.message.table {
		if m.RecipientID == userID && !m.ReadStatus {
			msgs = append(msgs, *m)
		}
	}
	sort.Slice(msgs, func(i, j int) bool { return msgs[i].CreatedAt.After(msgs[j].CreatedAt) })
	if len(msgs) > limit {
		msgs = msgs[:limit]
	}
	return msgs, nil
}

func (repo *notificationRepository) CreateMessage(_ context.Context, m *notification.ChatMessage) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}

	repo.db.message.Lock()
	if repo.db.message.unavailable {
		repo.db.message.Unlock()
		return notification.ErrSourceUnavailable
	}
	row := *m
	repo.db.message.table[m.ID] = &row
	repo.db.message.Unlock()

	return repo.publish(notification.TableMessages, m.RecipientID, map[string]interface{}{
		"id":           m.ID,
		"sender_id":    m.SenderID,
		"recipient_id": m.RecipientID,
		"sender_name":  nullable(m.SenderName),
		"sender_role":  nullable(m.SenderRole),
		"message":      m.Message,
		"read_status":  m.ReadStatus,
		"created_at":   m.CreatedAt,
	})
}

func (repo *notificationRepository) MarkMessagesRead(_ context.Context, userID string) error {
	repo.db.message.Lock()
	defer repo.db.message.Unlock()

	if repo.db.message.unavailable {
		return notification.ErrSourceUnavailable
	}
	for _, m := range repo.db.message.table {
		if m.RecipientID == userID {
			m.ReadStatus = true
		}
	}
	return nil
}

// publish sends the row the way the realtime triggers do: with its column names.
func (repo *notificationRepository) publish(table, userID string, record map[string]interface{}) error {
	raw, err := json.Marshal(record)
	if err != nil {
		return errors.Wrap(err, "encoding "+table+" record")
	}
	repo.db.publish(notification.Event{Table: table, UserID: userID, Record: raw})
	return nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
