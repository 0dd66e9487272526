package dummydb

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/zerlake/thesisai-philippines-sub009/core/widget"
)

type widgetStore struct {
	db *DB
}

var _ widget.Store = (*widgetStore)(nil) // interface compliance check

func NewWidgetStore(db *DB) widget.Store {
	return &widgetStore{db: db}
}

func key(userID, widgetID string) string {
	return userID + "/" + widgetID
}

func (store *widgetStore) GetSnapshot(_ context.Context, userID, widgetID string) (widget.Snapshot, error) {
	store.db.snapshot.RLock()
	defer store.db.snapshot.RUnlock()

	if s, ok := store.db.snapshot.table[key(userID, widgetID)]; ok {
		return *s, nil
	}
	return widget.Snapshot{}, widget.ErrNotFound
}

func (store *widgetStore) SaveSnapshot(_ context.Context, s *widget.Snapshot) error {
	store.db.snapshot.Lock()
	defer store.db.snapshot.Unlock()

	k := key(s.UserID, s.WidgetID)
	if orig, ok := store.db.snapshot.table[k]; ok {
		s.ID = orig.ID
	} else {
		s.ID = uuid.NewString()
	}
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = time.Now().UTC()
	}
	row := *s
	store.db.snapshot.table[k] = &row
	return nil
}

func (store *widgetStore) DeleteSnapshot(_ context.Context, userID, widgetID string) error {
	store.db.snapshot.Lock()
	defer store.db.snapshot.Unlock()
	delete(store.db.snapshot.table, key(userID, widgetID))
	return nil
}

func (store *widgetStore) GetSettings(_ context.Context, userID, widgetID string) (widget.Settings, error) {
	store.db.settings.RLock()
	defer store.db.settings.RUnlock()

	if s, ok := store.db.settings.table[key(userID, widgetID)]; ok {
		return *s, nil
	}
	return widget.Settings{}, widget.ErrNotFound
}

func (store *widgetStore) SaveSettings(_ context.Context, s *widget.Settings) error {
	store.db.settings.Lock()
	defer store.db.settings.Unlock()

	k := key(s.UserID, s.WidgetID)
	if orig, ok := store.db.settings.table[k]; ok {
		s.ID = orig.ID
	} else {
		s.ID = uuid.NewString()
	}
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = time.Now().UTC()
	}
	row := *s
	store.db.settings.table[k] = &row
	return nil
}
