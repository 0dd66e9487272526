package notification

import (
	"context"

	"github.com/pkg/errors"
)

//go:generate mockgen -source=repository.go -destination=mocks/repository.go -package=mocks

// ErrSourceUnavailable is returned when a table is missing or not readable by the current role.
var ErrSourceUnavailable = errors.New("notification source unavailable")

// Repository reads and updates the bell's tables for one user.
type Repository interface {
	RecentNotifications(ctx context.Context, userID string, limit int) ([]Notification, error)
	CountUnreadNotifications(ctx context.Context, userID string) (int, error)
	CreateNotification(ctx context.Context, n *Notification) error
	MarkNotificationsRead(ctx context.Context, userID string) error

	UnreadMessages(ctx context.Context, userID string, limit int) ([]ChatMessage, error)
	CreateMessage(ctx context.Context, m *ChatMessage) error
	MarkMessagesRead(ctx context.Context, userID string) error
}

// Stream delivers the rows inserted in `table` for `userID`.
// fn may be called on any goroutine.
type Stream interface {
	Subscribe(ctx context.Context, table, userID string, fn func(Event)) (unsubscribe func(), err error)
}
