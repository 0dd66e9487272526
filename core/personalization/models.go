package personalization

import (
	"time"
)

type ThemePreferences struct {
	Mode        string `json:"mode,omitempty" validate:"omitempty,oneof=light dark"`
	FontSize    string `json:"fontSize,omitempty" validate:"omitempty,oneof=small medium large"`
	AccentColor string `json:"accentColor,omitempty" validate:"omitempty,hexcolor"`
}

type NotificationPreferences struct {
	Email      *bool    `json:"email,omitempty"`
	Push       *bool    `json:"push,omitempty"`
	InApp      *bool    `json:"inApp,omitempty"`
	Digest     string   `json:"digest,omitempty" validate:"omitempty,oneof=none daily weekly"`
	MutedTypes []string `json:"mutedTypes,omitempty" validate:"omitempty,dive,oneof=info success warning error urgent"`
}

type AccessibilityPreferences struct {
	ReducedMotion *bool `json:"reducedMotion,omitempty"`
	HighContrast  *bool `json:"highContrast,omitempty"`
	ScreenReader  *bool `json:"screenReader,omitempty"`
}

// Preferences are partial: absent sections are left untouched by an update.
type Preferences struct {
	Theme         *ThemePreferences         `json:"theme,omitempty"`
	Notifications *NotificationPreferences  `json:"notifications,omitempty"`
	Accessibility *AccessibilityPreferences `json:"accessibility,omitempty"`
	Language      string                    `json:"language,omitempty" validate:"omitempty,min=2,max=10"`
	Timezone      string                    `json:"timezone,omitempty" validate:"omitempty,max=64"`
}

// Device types
const (
	DeviceDesktop = "desktop"
	DeviceMobile  = "mobile"
	DeviceTablet  = "tablet"
)

type Device struct {
	ID         string     `json:"id,omitempty"`
	DeviceID   string     `json:"deviceId" validate:"required,max=255"`
	DeviceName string     `json:"deviceName" validate:"required,max=100"`
	DeviceType string     `json:"deviceType" validate:"required,oneof=desktop mobile tablet"`
	LastSeen   *time.Time `json:"lastSeen,omitempty"`
	IsTrusted  bool       `json:"isTrusted"`
	CreatedAt  *time.Time `json:"createdAt,omitempty"`
}

type DeviceUpdate struct {
	DeviceName *string `json:"deviceName,omitempty" validate:"omitempty,min=1,max=100"`
	IsTrusted  *bool   `json:"isTrusted,omitempty"`
}

// Sync change types
const (
	ChangeCreate = "create"
	ChangeUpdate = "update"
	ChangeDelete = "delete"
)

type SyncChange struct {
	ID         string                 `json:"id,omitempty"`
	DeviceID   string                 `json:"deviceId" validate:"required"`
	ChangeType string                 `json:"changeType" validate:"required,oneof=create update delete"`
	Section    string                 `json:"section" validate:"required,slug"`
	Data       map[string]interface{} `json:"data,omitempty"`
	IsSynced   bool                   `json:"isSynced"`
	CreatedAt  *time.Time             `json:"createdAt,omitempty"`
}

type Notification struct {
	ID               string     `json:"id,omitempty"`
	Title            string     `json:"title" validate:"required,max=200"`
	Message          string     `json:"message" validate:"required,max=2000"`
	NotificationType string     `json:"notificationType" validate:"required,oneof=info success warning error urgent"`
	Priority         int        `json:"priority" validate:"min=0,max=4"`
	ReadAt           *time.Time `json:"readAt,omitempty"`
	CreatedAt        *time.Time `json:"createdAt,omitempty"`
}

type NotificationAction string

const (
	ActionRead   NotificationAction = "read"
	ActionUnread NotificationAction = "unread"
	ActionDelete NotificationAction = "delete"
)

type NotificationUpdate struct {
	Success bool           `json:"success"`
	Action  string         `json:"action"`
	Updated []Notification `json:"updated,omitempty"`
}

type GridSize struct {
	Columns int `json:"columns" validate:"min=1,max=24"`
	Rows    int `json:"rows" validate:"min=1,max=100"`
}

// WidgetPlacement positions a widget on the dashboard grid.
type WidgetPlacement struct {
	WidgetID string                 `json:"widgetId" validate:"required,slug"`
	X        int                    `json:"x" validate:"min=0"`
	Y        int                    `json:"y" validate:"min=0"`
	W        int                    `json:"w" validate:"min=1"`
	H        int                    `json:"h" validate:"min=1"`
	Settings map[string]interface{} `json:"settings,omitempty"`
}

type DashboardLayout struct {
	ID         string            `json:"id,omitempty"`
	LayoutName string            `json:"layoutName" validate:"required,max=100"`
	Widgets    []WidgetPlacement `json:"widgets" validate:"dive"`
	GridSize   GridSize          `json:"gridSize"`
	IsDefault  bool              `json:"isDefault"`
}

type Layouts struct {
	Layouts []DashboardLayout `json:"layouts"`
	Default *DashboardLayout  `json:"default"`
}
