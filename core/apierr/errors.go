// Package apierr classifies failed API calls into AppErrors and turns them into
// messages a user can act upon.
package apierr

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

type Kind int

const (
	KindUnknown Kind = iota
	KindNetwork
	KindTimeout
	KindValidation
	KindAuth
	KindAuthorization
	KindNotFound
	KindRateLimit
	KindServer
)

var kindNames = [...]string{
	KindUnknown:       "unknown",
	KindNetwork:       "network",
	KindTimeout:       "timeout",
	KindValidation:    "validation",
	KindAuth:          "auth",
	KindAuthorization: "authorization",
	KindNotFound:      "not_found",
	KindRateLimit:     "rate_limit",
	KindServer:        "server",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return kindNames[KindUnknown]
	}
	return kindNames[k]
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Context describes where an error happened.
type Context struct {
	WidgetID string    `json:"widgetId,omitempty"`
	Endpoint string    `json:"endpoint,omitempty"`
	Method   string    `json:"method,omitempty"`
	Time     time.Time `json:"timestamp,omitempty"`
}

// AppError is the single error shape of failed API calls.
//  - KindValidation carries Fields
//  - KindRateLimit carries RetryAfter
//  - KindUnknown carries Message
type AppError struct {
	Kind       Kind          `json:"kind"`
	StatusCode int           `json:"status"` // 0 when no response was received
	Message    string        `json:"message"`
	Fields     []string      `json:"fields,omitempty"`
	RetryAfter time.Duration `json:"retryAfter,omitempty"`
	Context    Context       `json:"context"`
	Err        error         `json:"-"`
}

func (e *AppError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if msg == "" {
		msg = e.Kind.String() + " error"
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s (HTTP %d)", msg, e.StatusCode)
	}
	return msg
}

func (e *AppError) Unwrap() error { return e.Err }

// Status returns the HTTP status matching the error.
func (e *AppError) Status() int {
	if e.StatusCode > 0 {
		return e.StatusCode
	}
	switch e.Kind {
	case KindTimeout:
		return http.StatusRequestTimeout
	case KindValidation:
		return http.StatusBadRequest
	case KindAuth:
		return http.StatusUnauthorized
	case KindAuthorization:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindRateLimit:
		return http.StatusTooManyRequests
	case KindNetwork:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Retryable reports whether retrying may succeed. Failures that never reached
// the network, such as malformed payloads, are not retried.
func (e *AppError) Retryable() bool {
	if e.Kind == KindUnknown && e.StatusCode == 0 {
		return false
	}
	return IsRetryable(e.Status())
}

// KindOf maps an HTTP status code to its Kind. 0 means no response.
func KindOf(status int) Kind {
	switch {
	case status == 0:
		return KindNetwork
	case status == http.StatusRequestTimeout:
		return KindTimeout
	case status == http.StatusBadRequest:
		return KindValidation
	case status == http.StatusUnauthorized:
		return KindAuth
	case status == http.StatusForbidden:
		return KindAuthorization
	case status == http.StatusNotFound:
		return KindNotFound
	case status == http.StatusTooManyRequests:
		return KindRateLimit
	case status >= 500:
		return KindServer
	default:
		return KindUnknown
	}
}

// IsRetryable reports whether a call that failed with `status` may be retried:
// network errors, 408, 429 and 5xx are; other 4xx are not.
func IsRetryable(status int) bool {
	if status == 0 {
		return true
	}
	if status >= 400 && status < 500 {
		return status == http.StatusRequestTimeout || status == http.StatusTooManyRequests
	}
	return status >= 500
}

func newAppError(kind Kind, status int, err error, ctx []Context) *AppError {
	appErr := &AppError{Kind: kind, StatusCode: status, Err: err}
	if err != nil {
		appErr.Message = err.Error()
	}
	if len(ctx) > 0 {
		appErr.Context = ctx[0]
	}
	return appErr
}

// FromStatus builds the AppError of a call that failed with `status`.
func FromStatus(status int, err error, ctx ...Context) *AppError {
	if appErr, ok := asAppError(err); ok && appErr.StatusCode == status {
		return appErr
	}
	return newAppError(KindOf(status), status, err, ctx)
}

// NewValidation builds a KindValidation error listing the violated fields.
func NewValidation(fields []string, ctx ...Context) *AppError {
	appErr := newAppError(KindValidation, 0, nil, ctx)
	appErr.Message = "validation failed"
	appErr.Fields = fields
	return appErr
}

// FromResponse builds the AppError of a non-2xx response.
// The message comes from the JSON body's "message" or "error" field when present.
func FromResponse(resp *http.Response, ctx ...Context) *AppError {
	msg := fmt.Sprintf("HTTP %d", resp.StatusCode)
	var body struct {
		Message string   `json:"message"`
		Error   string   `json:"error"`
		Errors  []string `json:"errors"`
	}
	if resp.Body != nil {
		if b, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20)); err == nil && json.Unmarshal(b, &body) == nil {
			if body.Message != "" {
				msg = body.Message
			} else if body.Error != "" {
				msg = body.Error
			}
		}
	}

	appErr := newAppError(KindOf(resp.StatusCode), resp.StatusCode, errors.New(msg), ctx)
	if appErr.Context.Endpoint == "" && resp.Request != nil && resp.Request.URL != nil {
		appErr.Context.Endpoint = resp.Request.URL.Path
		appErr.Context.Method = resp.Request.Method
	}
	switch appErr.Kind {
	case KindValidation:
		appErr.Fields = body.Errors
	case KindRateLimit:
		appErr.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"))
	}
	return appErr
}

// Wrap classifies any error raised while calling an API.
func Wrap(err error, ctx ...Context) *AppError {
	if err == nil {
		return nil
	}
	if appErr, ok := asAppError(err); ok {
		return appErr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return newAppError(KindTimeout, 0, err, ctx)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return newAppError(KindTimeout, 0, err, ctx)
		}
		return newAppError(KindNetwork, 0, err, ctx)
	}
	if errors.Is(err, context.Canceled) {
		return newAppError(KindNetwork, 0, err, ctx)
	}
	return newAppError(KindUnknown, 0, err, ctx)
}

func asAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if err != nil && errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// parseRetryAfter reads a Retry-After header in seconds or as an HTTP date.
func parseRetryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
