package apierr

import (
	"fmt"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/zerlake/thesisai-philippines-sub009/core"
)

const (
	defaultLogSize  = 50
	DefaultMaxDelay = 30 * time.Second
	baseDelay       = time.Second
	maxJitter       = time.Second
)

type MessageType string

const (
	TypeError   MessageType = "error"
	TypeWarning MessageType = "warning"
	TypeInfo    MessageType = "info"
)

// Action is a user-triggered side effect offered along with a message.
type Action struct {
	Label  string `json:"label"`
	Action func() `json:"-"`
}

type UserMessage struct {
	Title   string      `json:"title"`
	Message string      `json:"message"`
	Type    MessageType `json:"type"`
	Actions []Action    `json:"actions,omitempty"`
}

type RecoveryAction struct {
	Label       string `json:"label"`
	Description string `json:"description"`
	Action      func() `json:"-"`
}

// ActionFuncs are the side effects the invoker supplies for message actions.
// Nil funcs are no-ops.
type ActionFuncs struct {
	Retry      func()
	Login      func()
	Back       func()
	Reload     func()
	OpenStatus func()
}

type LogEntry struct {
	ID        uuid.UUID `json:"id"`
	Err       *AppError `json:"error"`
	Context   Context   `json:"context"`
	Timestamp time.Time `json:"timestamp"`
}

type Stats struct {
	Total    int            `json:"total"`
	ByKind   map[string]int `json:"byKind"`
	ByStatus map[int]int    `json:"byStatus"`
	Recent   []LogEntry     `json:"recent"`
}

type Option func(*Handler)

func WithActions(actions ActionFuncs) Option {
	return func(h *Handler) { h.actions = actions }
}

func WithClock(clock clockwork.Clock) Option {
	return func(h *Handler) { h.clock = clock }
}

// WithJitter replaces the source of retry jitter; fn returns a value in [0, 1).
func WithJitter(fn func() float64) Option {
	return func(h *Handler) { h.jitter = fn }
}

func WithLogSize(n int) Option {
	return func(h *Handler) {
		if n > 0 {
			h.logSize = n
		}
	}
}

// Handler turns errors into UserMessages and keeps the most recent ones for diagnostics.
type Handler struct {
	mu      sync.Mutex
	log     []LogEntry
	logSize int

	logger  core.Logger
	actions ActionFuncs
	clock   clockwork.Clock
	jitter  func() float64
}

func NewHandler(logger core.Logger, opts ...Option) *Handler {
	h := &Handler{
		logSize: defaultLogSize,
		logger:  logger,
		clock:   clockwork.NewRealClock(),
		jitter:  rand.Float64,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// HandleError classifies a failure by its HTTP status code (0 when no response was received).
func (h *Handler) HandleError(status int, err error, ctx ...Context) UserMessage {
	return h.Handle(FromStatus(status, err, ctx...))
}

// Handle logs appErr and returns the message to show for it.
func (h *Handler) Handle(appErr *AppError) UserMessage {
	h.logError(appErr)

	switch appErr.Kind {
	case KindNetwork:
		return UserMessage{
			Title:   "Connection Error",
			Message: "Unable to connect to the server. Please check your internet connection.",
			Type:    TypeError,
			Actions: []Action{{Label: "Retry", Action: h.action(h.actions.Retry)}},
		}
	case KindTimeout:
		return UserMessage{
			Title:   "Request Timeout",
			Message: "The server took too long to respond. Please try again.",
			Type:    TypeError,
			Actions: []Action{{Label: "Retry", Action: h.action(h.actions.Retry)}},
		}
	case KindValidation:
		return UserMessage{
			Title:   "Invalid Data",
			Message: "The server returned unexpected data:\n" + summarizeFields(appErr.Fields),
			Type:    TypeWarning,
		}
	case KindAuth:
		return UserMessage{
			Title:   "Authentication Failed",
			Message: "Your session has expired. Please log in again.",
			Type:    TypeError,
			Actions: []Action{{Label: "Log In", Action: h.action(h.actions.Login)}},
		}
	case KindAuthorization:
		return UserMessage{
			Title:   "Permission Denied",
			Message: "You do not have permission to access this resource.",
			Type:    TypeError,
		}
	case KindNotFound:
		return UserMessage{
			Title:   "Not Found",
			Message: "The requested resource could not be found.",
			Type:    TypeError,
			Actions: []Action{{Label: "Go Back", Action: h.action(h.actions.Back)}},
		}
	case KindRateLimit:
		wait := "a moment"
		if appErr.RetryAfter > 0 {
			wait = fmt.Sprintf("%ds", int(math.Ceil(appErr.RetryAfter.Seconds())))
		}
		return UserMessage{
			Title:   "Too Many Requests",
			Message: fmt.Sprintf("Please wait %s before trying again.", wait),
			Type:    TypeWarning,
		}
	case KindServer:
		return UserMessage{
			Title:   "Server Error",
			Message: "An unexpected server error occurred. Please try again later.",
			Type:    TypeError,
			Actions: []Action{
				{Label: "Retry", Action: h.action(h.actions.Retry)},
				{Label: "Report", Action: func() { h.ReportError(appErr) }},
			},
		}
	default:
		msg := appErr.Message
		if msg == "" {
			msg = "An unexpected error occurred."
		}
		return UserMessage{Title: "Error", Message: msg, Type: TypeError}
	}
}

func (h *Handler) action(fn func()) func() {
	if fn == nil {
		return func() {}
	}
	return fn
}

// summarizeFields lists the first 3 violations.
func summarizeFields(fields []string) string {
	if len(fields) == 0 {
		return "Data validation failed"
	}
	if len(fields) > 3 {
		return strings.Join(fields[:3], "\n") + "\n..."
	}
	return strings.Join(fields, "\n")
}

// SuggestedActions returns recovery actions for a failure with `status`.
func (h *Handler) SuggestedActions(status int) []RecoveryAction {
	var actions []RecoveryAction
	if status == 0 {
		actions = append(actions, RecoveryAction{
			Label:       "Check Connection",
			Description: "Verify your internet connection and try again",
			Action:      h.action(h.actions.Reload),
		})
	}
	if status == 401 {
		actions = append(actions, RecoveryAction{
			Label:       "Log In Again",
			Description: "Your session has expired",
			Action:      h.action(h.actions.Login),
		})
	}
	if status >= 500 {
		actions = append(actions,
			RecoveryAction{
				Label:       "Try Again",
				Description: "The server may be temporarily unavailable",
				Action:      h.action(h.actions.Reload),
			},
			RecoveryAction{
				Label:       "Check Status",
				Description: "View service status page",
				Action:      h.action(h.actions.OpenStatus),
			},
		)
	}
	if len(actions) == 0 {
		actions = append(actions, RecoveryAction{
			Label:       "Retry",
			Description: "Try the operation again",
			Action:      h.action(h.actions.Retry),
		})
	}
	return actions
}

func (h *Handler) IsRetryable(status int) bool {
	return IsRetryable(status)
}

// RetryDelay returns the backoff before retry number `attempt` (1-based):
// 1s * 2^(attempt-1) plus up to 1s of jitter, capped at maxDelay (DefaultMaxDelay when omitted).
func (h *Handler) RetryDelay(attempt int, maxDelay ...time.Duration) time.Duration {
	max := DefaultMaxDelay
	if len(maxDelay) > 0 && maxDelay[0] > 0 {
		max = maxDelay[0]
	}
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 32 {
		return max
	}

	delay := baseDelay*time.Duration(1<<uint(attempt-1)) + time.Duration(h.jitter()*float64(maxJitter))
	if delay > max || delay < 0 {
		return max
	}
	return delay
}

func (h *Handler) logError(appErr *AppError) {
	entry := LogEntry{
		ID:        uuid.New(),
		Err:       appErr,
		Context:   appErr.Context,
		Timestamp: h.clock.Now(),
	}
	if entry.Context.Time.IsZero() {
		entry.Context.Time = entry.Timestamp
	}

	h.mu.Lock()
	h.log = append(h.log, entry)
	if over := len(h.log) - h.logSize; over > 0 {
		h.log = append(h.log[:0:0], h.log[over:]...)
	}
	h.mu.Unlock()

	h.logger.Debug(fmt.Sprintf("api error [%s]: %v", appErr.Kind, appErr), entry.Context)
}

// ErrorLog returns a copy of the logged errors, oldest first.
func (h *Handler) ErrorLog() []LogEntry {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]LogEntry(nil), h.log...)
}

func (h *Handler) ClearErrorLog() {
	h.mu.Lock()
	h.log = nil
	h.mu.Unlock()
}

// ErrorStats counts the logged errors by kind and status and returns the last 10.
func (h *Handler) ErrorStats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()

	stats := Stats{
		Total:    len(h.log),
		ByKind:   make(map[string]int),
		ByStatus: make(map[int]int),
	}
	for _, entry := range h.log {
		stats.ByKind[entry.Err.Kind.String()]++
		stats.ByStatus[entry.Err.StatusCode]++
	}
	recent := h.log
	if len(recent) > 10 {
		recent = recent[len(recent)-10:]
	}
	stats.Recent = append([]LogEntry(nil), recent...)
	return stats
}

// ReportError ships appErr to the monitoring service behind the Logger.
func (h *Handler) ReportError(appErr *AppError) {
	h.logger.Error(
		fmt.Sprintf("reported error: %v", appErr),
		appErr,
		map[string]interface{}{
			"kind":     appErr.Kind.String(),
			"status":   appErr.StatusCode,
			"widgetId": appErr.Context.WidgetID,
			"endpoint": appErr.Context.Endpoint,
			"method":   appErr.Context.Method,
		},
	)
}
