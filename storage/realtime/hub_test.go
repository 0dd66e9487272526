package realtime

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zerlake/thesisai-philippines-sub009/core/notification"
	"github.com/zerlake/thesisai-philippines-sub009/tests"
)

func TestHub_Publish(t *testing.T) {
	hub := NewHub(testutil.NewLogger())
	ctx := context.Background()

	var got []string
	unsub, err := hub.Subscribe(ctx, notification.TableNotifications, "u1", func(e notification.Event) {
		got = append(got, e.Table+"/"+e.UserID)
	})
	require.NoError(t, err)
	_, err = hub.Subscribe(ctx, notification.TableMessages, "u2", func(notification.Event) {
		t.Error("subscriber of another topic called")
	})
	require.NoError(t, err)
	assert.Equal(t, 2, hub.Subscribers())

	hub.Publish(notification.Event{Table: notification.TableNotifications, UserID: "u1"})
	hub.Publish(notification.Event{Table: notification.TableNotifications, UserID: "u2"})
	assert.Equal(t, []string{"notifications/u1"}, got)

	unsub()
	unsub()
	assert.Equal(t, 1, hub.Subscribers())
	hub.Publish(notification.Event{Table: notification.TableNotifications, UserID: "u1"})
	assert.Len(t, got, 1)
}

func TestHub_SubscriberPanic(t *testing.T) {
	logger := testutil.NewLogger()
	hub := NewHub(logger)

	_, _ = hub.Subscribe(context.Background(), notification.TableNotifications, "u1", func(notification.Event) {
		panic("boom")
	})
	assert.NotPanics(t, func() {
		hub.Publish(notification.Event{Table: notification.TableNotifications, UserID: "u1"})
	})
	assert.Len(t, logger.Entries("error"), 1)
}

func TestListener_Dispatch(t *testing.T) {
	logger := testutil.NewLogger()
	l := &Listener{Hub: NewHub(logger), logger: logger, listening: make(map[string]bool)}

	var got notification.Event
	_, _ = l.Hub.Subscribe(context.Background(), notification.TableMessages, "u1", func(e notification.Event) { got = e })

	tests := []struct {
		name     string
		channel  string
		payload  string
		wantID   string
		wantWarn int
	}{
		{
			name:    "message insert",
			channel: "realtime_advisor_student_messages",
			payload: `{"user_id":"u1","record":{"id":"m1","sender_id":"s1"}}`,
			wantID:  "u1",
		},
		{name: "malformed", channel: "realtime_advisor_student_messages", payload: `{`, wantWarn: 1},
		{name: "other user", channel: "realtime_advisor_student_messages", payload: `{"user_id":"u2","record":{}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got = notification.Event{}
			before := len(logger.Entries("warn"))

			l.dispatch(tt.channel, tt.payload)

			if got.UserID != tt.wantID {
				t.Errorf("dispatch() delivered user %q; want %q", got.UserID, tt.wantID)
			}
			if tt.wantID != "" {
				assert.Equal(t, notification.TableMessages, got.Table)
				assert.JSONEq(t, `{"id":"m1","sender_id":"s1"}`, string(got.Record))
			}
			assert.Len(t, logger.Entries("warn"), before+tt.wantWarn)
		})
	}
}
