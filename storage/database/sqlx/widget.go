package sqlxrepos

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/zerlake/thesisai-philippines-sub009/core/widget"
)

type snapshotRow struct {
	ID        string    `db:"id"`
	UserID    string    `db:"user_id"`
	WidgetID  string    `db:"widget_id"`
	Data      []byte    `db:"data"`
	ExpiresAt null.Time `db:"expires_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (r snapshotRow) snapshot() widget.Snapshot {
	return widget.Snapshot{
		ID:        r.ID,
		UserID:    r.UserID,
		WidgetID:  r.WidgetID,
		Data:      json.RawMessage(r.Data),
		ExpiresAt: r.ExpiresAt.Ptr(),
		UpdatedAt: r.UpdatedAt,
	}
}

type settingsRow struct {
	ID        string    `db:"id"`
	UserID    string    `db:"user_id"`
	WidgetID  string    `db:"widget_id"`
	Settings  []byte    `db:"settings"`
	UpdatedAt time.Time `db:"updated_at"`
}

type widgetStore struct {
	db *sqlx.DB
}

var _ widget.Store = (*widgetStore)(nil) // interface compliance check

func NewWidgetStore(db *sqlx.DB) widget.Store {
	return &widgetStore{db: db}
}

func (store *widgetStore) GetSnapshot(ctx context.Context, userID, widgetID string) (widget.Snapshot, error) {
	var row snapshotRow
	q := `SELECT id, user_id, widget_id, data, expires_at, updated_at
		FROM widget_data_cache WHERE user_id = $1 AND widget_id = $2`
	if err := store.db.GetContext(ctx, &row, q, userID, widgetID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return widget.Snapshot{}, widget.ErrNotFound
		}
		return widget.Snapshot{}, errors.Wrap(err, "selecting snapshot")
	}
	return row.snapshot(), nil
}

func (store *widgetStore) SaveSnapshot(ctx context.Context, s *widget.Snapshot) error {
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = time.Now().UTC()
	}
	q := `INSERT INTO widget_data_cache (user_id, widget_id, data, expires_at, updated_at)
		VALUES ($1, $2, $3::jsonb, $4, $5)
		ON CONFLICT (user_id, widget_id) DO UPDATE
		SET data = EXCLUDED.data, expires_at = EXCLUDED.expires_at, updated_at = EXCLUDED.updated_at
		RETURNING id`
	err := store.db.QueryRowxContext(ctx, q,
		s.UserID, s.WidgetID, string(s.Data), null.TimeFromPtr(s.ExpiresAt), s.UpdatedAt,
	).Scan(&s.ID)
	if err != nil {
		return errors.Wrap(err, "upserting snapshot")
	}
	return nil
}

func (store *widgetStore) DeleteSnapshot(ctx context.Context, userID, widgetID string) error {
	q := `DELETE FROM widget_data_cache WHERE user_id = $1 AND widget_id = $2`
	if _, err := store.db.ExecContext(ctx, q, userID, widgetID); err != nil {
		return errors.Wrap(err, "deleting snapshot")
	}
	return nil
}

func (store *widgetStore) GetSettings(ctx context.Context, userID, widgetID string) (widget.Settings, error) {
	var row settingsRow
	q := `SELECT id, user_id, widget_id, settings, updated_at
		FROM widget_settings WHERE user_id = $1 AND widget_id = $2`
	if err := store.db.GetContext(ctx, &row, q, userID, widgetID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return widget.Settings{}, widget.ErrNotFound
		}
		return widget.Settings{}, errors.Wrap(err, "selecting settings")
	}
	return widget.Settings{
		ID:        row.ID,
		UserID:    row.UserID,
		WidgetID:  row.WidgetID,
		Settings:  json.RawMessage(row.Settings),
		UpdatedAt: row.UpdatedAt,
	}, nil
}

func (store *widgetStore) SaveSettings(ctx context.Context, s *widget.Settings) error {
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = time.Now().UTC()
	}
	q := `INSERT INTO widget_settings (user_id, widget_id, settings, updated_at)
		VALUES ($1, $2, $3::jsonb, $4)
		ON CONFLICT (user_id, widget_id) DO UPDATE
		SET settings = EXCLUDED.settings, updated_at = EXCLUDED.updated_at
		RETURNING id`
	err := store.db.QueryRowxContext(ctx, q, s.UserID, s.WidgetID, string(s.Settings), s.UpdatedAt).Scan(&s.ID)
	if err != nil {
		return errors.Wrap(err, "upserting settings")
	}
	return nil
}
