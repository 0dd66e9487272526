// Package notification merges a user's notifications and direct messages into
// one unread badge, kept current by realtime streams and polling.
package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/zerlake/thesisai-philippines-sub009/core"
)

var ErrNotMounted = errors.New("bell is not mounted")

type Options struct {
	// Limit caps each list; DefaultLimit when 0.
	Limit int
	Clock clockwork.Clock
}

// Snapshot is a copy of the bell's state.
type Snapshot struct {
	UserID              string         `json:"userId"`
	Notifications       []Notification `json:"notifications"`
	Messages            []ChatMessage  `json:"messages"`
	Items               []Item         `json:"items"` // newest first
	UnreadNotifications int            `json:"unreadNotifications"`
	UnreadMessages      int            `json:"unreadMessages"`
	Badge               int            `json:"badge"`
	BadgeLabel          string         `json:"badgeLabel"`
	MessagesAvailable   bool           `json:"messagesAvailable"`
}

// Bell is the unread badge of one user at a time.
// A nil Stream leaves the bell to Refresh and Poll.
type Bell struct {
	repo   Repository
	stream Stream
	logger core.Logger
	clock  clockwork.Clock
	limit  int

	mu                  sync.Mutex
	gen                 uint64 // bumped on every (re)mount and unmount; stale results are dropped
	mounted             bool
	userID              string
	notifications       []Notification
	messages            []ChatMessage
	unreadNotifications int
	unreadMessages      int
	messagesAvailable   bool
	unsubscribe         []func()
	listeners           map[int]func(Snapshot)
	nextListener        int
}

func NewBell(repo Repository, stream Stream, logger core.Logger, opts Options) *Bell {
	b := &Bell{
		repo:      repo,
		stream:    stream,
		logger:    logger,
		clock:     opts.Clock,
		limit:     opts.Limit,
		listeners: make(map[int]func(Snapshot)),
	}
	if b.clock == nil {
		b.clock = clockwork.NewRealClock()
	}
	if b.limit <= 0 {
		b.limit = DefaultLimit
	}
	return b
}

// Mount loads the state of `userID` and subscribes to its streams.
// Mounting another user unmounts the current one first; mounting the same user refreshes.
// Only a failure to load notifications is returned: the messages source is optional.
func (b *Bell) Mount(ctx context.Context, userID string) error {
	b.mu.Lock()
	if b.mounted && b.userID == userID {
		b.mu.Unlock()
		return b.Refresh(ctx)
	}
	unsubs := b.resetLocked()
	b.mounted = true
	b.userID = userID
	gen := b.gen
	b.mu.Unlock()

	for _, unsub := range unsubs {
		unsub()
	}

	err := b.load(ctx, gen, userID)
	b.subscribe(ctx, gen, userID)
	return err
}

// Unmount unsubscribes the streams and forgets the state. Pending results are dropped.
func (b *Bell) Unmount() {
	b.mu.Lock()
	unsubs := b.resetLocked()
	b.mounted = false
	b.userID = ""
	b.mu.Unlock()

	for _, unsub := range unsubs {
		unsub()
	}
}

func (b *Bell) resetLocked() []func() {
	b.gen++
	unsubs := b.unsubscribe
	b.unsubscribe = nil
	b.notifications = nil
	b.messages = nil
	b.unreadNotifications = 0
	b.unreadMessages = 0
	b.messagesAvailable = false
	return unsubs
}

// current returns the mounted user and generation.
func (b *Bell) current() (string, uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.mounted {
		return "", 0, ErrNotMounted
	}
	return b.userID, b.gen, nil
}

// Refresh reloads the state of the mounted user.
func (b *Bell) Refresh(ctx context.Context) error {
	userID, gen, err := b.current()
	if err != nil {
		return err
	}
	return b.load(ctx, gen, userID)
}

func (b *Bell) load(ctx context.Context, gen uint64, userID string) error {
	notifs, err := b.repo.RecentNotifications(ctx, userID, b.limit)
	if err != nil {
		return errors.Wrap(err, "loading notifications")
	}
	unread, err := b.repo.CountUnreadNotifications(ctx, userID)
	if err != nil {
		return errors.Wrap(err, "counting unread notifications")
	}

	available := true
	msgs, err := b.repo.UnreadMessages(ctx, userID, b.limit)
	if err != nil {
		available = false
		msgs = nil
		if errors.Is(err, ErrSourceUnavailable) {
			b.logger.Info("bell: messages unavailable, continuing with notifications only", err)
		} else {
			b.logger.Error("bell: loading messages", err)
		}
	}
	for i := range msgs {
		msgs[i] = normalizeMessage(msgs[i])
	}

	b.mu.Lock()
	if gen != b.gen {
		b.mu.Unlock()
		return nil
	}
	b.notifications = notifs
	b.unreadNotifications = unread
	b.messages = msgs
	b.unreadMessages = 0
	for _, m := range msgs {
		if !m.ReadStatus {
			b.unreadMessages++
		}
	}
	b.messagesAvailable = available
	b.mu.Unlock()

	b.emit()
	return nil
}

func (b *Bell) subscribe(ctx context.Context, gen uint64, userID string) {
	if b.stream == nil {
		return
	}
	for _, table := range []string{TableNotifications, TableMessages} {
		unsub, err := b.stream.Subscribe(ctx, table, userID, func(e Event) { b.handleEvent(gen, e) })
		if err != nil {
			if table == TableMessages && errors.Is(err, ErrSourceUnavailable) {
				b.logger.Info("bell: no realtime messages, continuing without them", err)
			} else {
				b.logger.Warn(fmt.Sprintf("bell: subscribing to %s, continuing without realtime updates", table), err)
			}
			continue
		}

		b.mu.Lock()
		if gen != b.gen {
			b.mu.Unlock()
			unsub()
			return
		}
		b.unsubscribe = append(b.unsubscribe, unsub)
		b.mu.Unlock()
	}
}

func (b *Bell) handleEvent(gen uint64, e Event) {
	var (
		n   notificationRecord
		m   messageRecord
		err error
	)
	switch e.Table {
	case TableNotifications:
		err = json.Unmarshal(e.Record, &n)
	case TableMessages:
		err = json.Unmarshal(e.Record, &m)
	default:
		return
	}
	if err != nil {
		b.logger.Warn("bell: decoding "+e.Table+" event", err)
		return
	}

	b.mu.Lock()
	if gen != b.gen || !b.mounted {
		b.mu.Unlock()
		return
	}
	if e.Table == TableNotifications {
		b.notifications = prepend(b.notifications, n.notification(), b.limit)
		b.unreadNotifications++
	} else {
		b.messages = prepend(b.messages, normalizeMessage(m.message()), b.limit)
		b.unreadMessages++
	}
	b.mu.Unlock()

	b.emit()
}

func prepend[T any](list []T, v T, limit int) []T {
	out := make([]T, 0, limit)
	out = append(out, v)
	for _, item := range list {
		if len(out) == limit {
			break
		}
		out = append(out, item)
	}
	return out
}

// MarkAllAsRead marks both sources read. Each source is attempted regardless of
// the other's failure; the local state of every source that succeeded is cleared.
func (b *Bell) MarkAllAsRead(ctx context.Context) error {
	userID, gen, err := b.current()
	if err != nil {
		return err
	}

	var errs error
	notifErr := b.repo.MarkNotificationsRead(ctx, userID)
	if notifErr != nil {
		b.logger.Error("bell: marking notifications as read", notifErr)
		errs = multierr.Append(errs, errors.Wrap(notifErr, "marking notifications as read"))
	}
	msgErr := b.repo.MarkMessagesRead(ctx, userID)
	if msgErr != nil {
		if errors.Is(msgErr, ErrSourceUnavailable) {
			b.logger.Info("bell: messages unavailable, nothing to mark", msgErr)
			msgErr = nil
		} else {
			b.logger.Error("bell: marking messages as read", msgErr)
			errs = multierr.Append(errs, errors.Wrap(msgErr, "marking messages as read"))
		}
	}

	b.mu.Lock()
	if gen == b.gen {
		if notifErr == nil {
			for i := range b.notifications {
				b.notifications[i].IsRead = true
			}
			b.unreadNotifications = 0
		}
		if msgErr == nil {
			b.messages = nil
			b.unreadMessages = 0
		}
	}
	b.mu.Unlock()

	b.emit()
	return errs
}

// Poll refreshes the bell every `interval` until ctx is done.
func (b *Bell) Poll(ctx context.Context, interval time.Duration) {
	ticker := b.clock.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if err := b.Refresh(ctx); err != nil && !errors.Is(err, ErrNotMounted) {
				b.logger.Warn("bell: refreshing", err)
			}
		}
	}
}

// OnChange registers fn to receive a Snapshot after every change.
// fn runs on the goroutine that caused the change.
func (b *Bell) OnChange(fn func(Snapshot)) (remove func()) {
	b.mu.Lock()
	b.nextListener++
	id := b.nextListener
	b.listeners[id] = fn
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.listeners, id)
		b.mu.Unlock()
	}
}

func (b *Bell) emit() {
	b.mu.Lock()
	if !b.mounted || len(b.listeners) == 0 {
		b.mu.Unlock()
		return
	}
	snap := b.snapshotLocked()
	ids := make([]int, 0, len(b.listeners))
	for id := range b.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(Snapshot), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, b.listeners[id])
	}
	b.mu.Unlock()

	for _, fn := range fns {
		b.call(fn, snap)
	}
}

func (b *Bell) call(fn func(Snapshot), snap Snapshot) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error(fmt.Sprintf("bell: listener panicked: %v", r))
		}
	}()
	fn(snap)
}

func (b *Bell) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snapshotLocked()
}

func (b *Bell) snapshotLocked() Snapshot {
	snap := Snapshot{
		UserID:              b.userID,
		Notifications:       append([]Notification{}, b.notifications...),
		Messages:            append([]ChatMessage{}, b.messages...),
		Items:               make([]Item, 0, len(b.notifications)+len(b.messages)),
		UnreadNotifications: b.unreadNotifications,
		UnreadMessages:      b.unreadMessages,
		Badge:               b.unreadNotifications + b.unreadMessages,
		MessagesAvailable:   b.messagesAvailable,
	}
	for _, n := range b.notifications {
		snap.Items = append(snap.Items, notificationItem(n))
	}
	for _, m := range b.messages {
		snap.Items = append(snap.Items, messageItem(b.userID, m))
	}
	sort.SliceStable(snap.Items, func(i, j int) bool {
		return snap.Items[i].CreatedAt.After(snap.Items[j].CreatedAt)
	})
	snap.BadgeLabel = BadgeLabel(snap.Badge)
	return snap
}

// BadgeLabel is the text shown on the badge: empty when 0 and "9+" above 9.
func BadgeLabel(count int) string {
	switch {
	case count <= 0:
		return ""
	case count > maxBadge:
		return strconv.Itoa(maxBadge) + "+"
	default:
		return strconv.Itoa(count)
	}
}
