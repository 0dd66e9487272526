package notification

import (
	"encoding/json"
	"time"
)

// Tables feeding the bell.
const (
	TableNotifications = "notifications"
	TableMessages      = "advisor_student_messages"
)

const (
	DefaultLimit = 5
	defaultRole  = "user"
	maxBadge     = 9
)

type Notification struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Type      string    `json:"type"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Link      string    `json:"link,omitempty"`
	IsRead    bool      `json:"isRead"`
	CreatedAt time.Time `json:"createdAt"`
}

// ChatMessage is a direct message between an advisor and a student.
type ChatMessage struct {
	ID          string    `json:"id"`
	SenderID    string    `json:"senderId"`
	RecipientID string    `json:"recipientId"`
	SenderName  string    `json:"senderName,omitempty"`
	SenderRole  string    `json:"senderRole,omitempty"`
	Message     string    `json:"message"`
	ReadStatus  bool      `json:"readStatus"`
	CreatedAt   time.Time `json:"createdAt"`
}

type ItemKind string

const (
	KindNotification ItemKind = "notification"
	KindMessage      ItemKind = "message"
)

// Item is the display shape shared by notifications and messages.
type Item struct {
	ID             string    `json:"id"`
	Kind           ItemKind  `json:"kind"`
	Title          string    `json:"title"`
	Body           string    `json:"body"`
	Link           string    `json:"link,omitempty"`
	SenderID       string    `json:"senderId,omitempty"`
	SenderName     string    `json:"senderName,omitempty"`
	SenderRole     string    `json:"senderRole,omitempty"`
	ConversationID string    `json:"conversationId,omitempty"`
	Read           bool      `json:"read"`
	CreatedAt      time.Time `json:"createdAt"`
}

func notificationItem(n Notification) Item {
	return Item{
		ID:        n.ID,
		Kind:      KindNotification,
		Title:     n.Title,
		Body:      n.Message,
		Link:      n.Link,
		Read:      n.IsRead,
		CreatedAt: n.CreatedAt,
	}
}

func messageItem(userID string, m ChatMessage) Item {
	return Item{
		ID:             m.ID,
		Kind:           KindMessage,
		Title:          m.SenderName,
		Body:           m.Message,
		SenderID:       m.SenderID,
		SenderName:     m.SenderName,
		SenderRole:     m.SenderRole,
		ConversationID: userID + "-" + m.SenderID,
		Read:           m.ReadStatus,
		CreatedAt:      m.CreatedAt,
	}
}

// normalizeMessage fills the sender name and role when the source has none.
func normalizeMessage(m ChatMessage) ChatMessage {
	if m.SenderName == "" {
		short := m.SenderID
		if len(short) > 4 {
			short = short[:4]
		}
		m.SenderName = "User " + short
	}
	if m.SenderRole == "" {
		m.SenderRole = defaultRole
	}
	return m
}

// Event is a row inserted in one of the bell's tables.
type Event struct {
	Table  string          `json:"table"`
	UserID string          `json:"user_id"`
	Record json.RawMessage `json:"record"`
}

// Realtime records carry the column names of their table.
type (
	notificationRecord struct {
		ID        string    `json:"id"`
		UserID    string    `json:"user_id"`
		Type      string    `json:"type"`
		Title     string    `json:"title"`
		Message   string    `json:"message"`
		Link      *string   `json:"link"`
		IsRead    bool      `json:"is_read"`
		CreatedAt time.Time `json:"created_at"`
	}

	messageRecord struct {
		ID          string    `json:"id"`
		SenderID    string    `json:"sender_id"`
		RecipientID string    `json:"recipient_id"`
		SenderName  *string   `json:"sender_name"`
		SenderRole  *string   `json:"sender_role"`
		Message     string    `json:"message"`
		ReadStatus  bool      `json:"read_status"`
		CreatedAt   time.Time `json:"created_at"`
	}
)

func (r notificationRecord) notification() Notification {
	n := Notification{
		ID:        r.ID,
		UserID:    r.UserID,
		Type:      r.Type,
		Title:     r.Title,
		Message:   r.Message,
		IsRead:    r.IsRead,
		CreatedAt: r.CreatedAt,
	}
	if r.Link != nil {
		n.Link = *r.Link
	}
	return n
}

func (r messageRecord) message() ChatMessage {
	m := ChatMessage{
		ID:          r.ID,
		SenderID:    r.SenderID,
		RecipientID: r.RecipientID,
		Message:     r.Message,
		ReadStatus:  r.ReadStatus,
		CreatedAt:   r.CreatedAt,
	}
	if r.SenderName != nil {
		m.SenderName = *r.SenderName
	}
	if r.SenderRole != nil {
		m.SenderRole = *r.SenderRole
	}
	return m
}
