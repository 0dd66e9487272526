package widget

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
)

// SnapshotTTL is how long a server-side snapshot stays fresh.
const SnapshotTTL = time.Hour

// ErrNotFound is returned when a user has no snapshot or settings for a widget.
var ErrNotFound = errors.New("widget record not found")

// Snapshot is the payload of a widget cached server-side for one user.
type Snapshot struct {
	ID        string          `json:"id" db:"id"`
	UserID    string          `json:"userId" db:"user_id"`
	WidgetID  string          `json:"widgetId" db:"widget_id"`
	Data      json.RawMessage `json:"data" db:"data"`
	ExpiresAt *time.Time      `json:"expiresAt,omitempty" db:"expires_at"` // nil never expires
	UpdatedAt time.Time       `json:"updatedAt" db:"updated_at"`
}

// Fresh reports whether the snapshot can still be served at `now`.
func (s Snapshot) Fresh(now time.Time) bool {
	return s.ExpiresAt == nil || s.ExpiresAt.After(now)
}

// Settings are the per-user display settings of a widget.
type Settings struct {
	ID        string          `json:"id" db:"id"`
	UserID    string          `json:"userId" db:"user_id"`
	WidgetID  string          `json:"widgetId" db:"widget_id"`
	Settings  json.RawMessage `json:"settings" db:"settings"`
	UpdatedAt time.Time       `json:"updatedAt" db:"updated_at"`
}

// Store persists snapshots and settings, unique per (user, widget).
type Store interface {
	GetSnapshot(ctx context.Context, userID, widgetID string) (Snapshot, error)
	SaveSnapshot(ctx context.Context, s *Snapshot) error
	DeleteSnapshot(ctx context.Context, userID, widgetID string) error

	GetSettings(ctx context.Context, userID, widgetID string) (Settings, error)
	SaveSettings(ctx context.Context, s *Settings) error
}
