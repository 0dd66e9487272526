// Package dummydb keeps the app's tables in memory, for debug runs and tests.
package dummydb

import (
	"sync"

	"github.com/zerlake/thesisai-philippines-sub009/core/notification"
	"github.com/zerlake/thesisai-philippines-sub009/core/widget"
)

type (
	DB struct {
		notification *notificationTable
		message      *messageTable
		snapshot     *snapshotTable
		settings     *settingsTable

		// publish receives every inserted notification and message, like the realtime triggers.
		publish func(notification.Event)
	}

	notificationTable struct {
		sync.RWMutex
		table map[string]*notification.Notification
	}

	messageTable struct {
		sync.RWMutex
		table       map[string]*notification.ChatMessage
		unavailable bool
	}

	snapshotTable struct {
		sync.RWMutex
		table map[string]*widget.Snapshot // {userID/widgetID: snapshot}
	}

	settingsTable struct {
		sync.RWMutex
		table map[string]*widget.Settings // {userID/widgetID: settings}
	}
)

type Option func(db *DB)

// WithPublisher forwards inserted rows to publish.
func WithPublisher(publish func(notification.Event)) Option {
	return func(db *DB) { db.publish = publish }
}

// WithoutMessages makes the messages table behave as missing.
func WithoutMessages() Option {
	return func(db *DB) { db.message.unavailable = true }
}

func Open(opts ...Option) (*DB, error) {
	db := &DB{
		notification: &notificationTable{table: make(map[string]*notification.Notification)},
		message:      &messageTable{table: make(map[string]*notification.ChatMessage)},
		snapshot:     &snapshotTable{table: make(map[string]*widget.Snapshot)},
		settings:     &settingsTable{table: make(map[string]*widget.Settings)},
		publish:      func(notification.Event) {},
	}
	for _, opt := range opts {
		opt(db)
	}
	return db, nil
}
