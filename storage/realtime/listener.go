package realtime

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/zerlake/thesisai-philippines-sub009/core"
	"github.com/zerlake/thesisai-philippines-sub009/core/notification"
)

// ChannelPrefix prefixes the table name in the NOTIFY channel of its inserts.
const ChannelPrefix = "realtime_"

const (
	minReconnectInterval = 10 * time.Second
	maxReconnectInterval = time.Minute
	pingInterval         = 90 * time.Second
)

// Listener is a Hub fed by Postgres notifications on realtime_<table>.
type Listener struct {
	*Hub
	pql    *pq.Listener
	logger core.Logger

	mu        sync.Mutex
	listening map[string]bool
}

var _ notification.Stream = (*Listener)(nil) // interface compliance check

// NewListener connects to dsn lazily; call Run to start delivering events.
func NewListener(dsn string, logger core.Logger) *Listener {
	l := &Listener{
		Hub:       NewHub(logger),
		logger:    logger,
		listening: make(map[string]bool),
	}
	l.pql = pq.NewListener(dsn, minReconnectInterval, maxReconnectInterval, l.onEvent)
	return l
}

func (l *Listener) onEvent(ev pq.ListenerEventType, err error) {
	switch ev {
	case pq.ListenerEventConnectionAttemptFailed:
		l.logger.Warn("realtime: connection attempt failed", err)
	case pq.ListenerEventDisconnected:
		l.logger.Warn("realtime: disconnected", err)
	case pq.ListenerEventReconnected:
		l.logger.Info("realtime: reconnected; rows inserted while disconnected were not delivered")
	}
}

// Subscribe listens on the channel of table on first use, then registers fn.
func (l *Listener) Subscribe(ctx context.Context, table, userID string, fn func(notification.Event)) (func(), error) {
	if err := l.listen(table); err != nil {
		return nil, err
	}
	return l.Hub.Subscribe(ctx, table, userID, fn)
}

func (l *Listener) listen(table string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.listening[table] {
		return nil
	}
	if err := l.pql.Listen(ChannelPrefix + table); err != nil && !errors.Is(err, pq.ErrChannelAlreadyOpen) {
		return errors.Wrap(err, "listening to "+table)
	}
	l.listening[table] = true
	return nil
}

// Run delivers notifications until ctx is done.
func (l *Listener) Run(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case n := <-l.pql.Notify:
			if n == nil { // reconnected
				continue
			}
			l.dispatch(n.Channel, n.Extra)
		case <-ticker.C:
			go func() {
				if err := l.pql.Ping(); err != nil {
					l.logger.Warn("realtime: ping", err)
				}
			}()
		}
	}
}

// dispatch publishes a payload of the form {"user_id": ..., "record": {...}}.
func (l *Listener) dispatch(channel, payload string) {
	var e notification.Event
	if err := json.Unmarshal([]byte(payload), &e); err != nil {
		l.logger.Warn("realtime: decoding payload of "+channel, err)
		return
	}
	e.Table = strings.TrimPrefix(channel, ChannelPrefix)
	l.Publish(e)
}

func (l *Listener) Close() error {
	return errors.Wrap(l.pql.Close(), "closing listener")
}
