// Package personalization is a typed client of the personalization API:
// preferences, devices, sync changes, notifications and dashboard layouts.
package personalization

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/zerlake/thesisai-philippines-sub009/core"
)

const (
	DefaultBaseURL = "/api/personalization"
	DefaultTimeout = 30 * time.Second

	defaultNotificationLimit = 50
)

// APIError is returned for every non-2xx response.
type APIError struct {
	Status   int    `json:"status"`
	Endpoint string `json:"endpoint"`
	Message  string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s (HTTP %d)", e.Endpoint, e.Message, e.Status)
}

type ClientOption func(*Client)

func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.http = hc }
}

func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithHeader adds a header to every request, e.g. Authorization.
func WithHeader(key, value string) ClientOption {
	return func(c *Client) { c.header.Add(key, value) }
}

// WithValidator replaces the validator checking outgoing models.
// `validate` must have been set up by core.InitValidators.
func WithValidator(validate *validator.Validate, translator ut.Translator) ClientOption {
	return func(c *Client) { c.validate, c.translator = validate, translator }
}

type Client struct {
	baseURL    string
	http       *http.Client
	timeout    time.Duration
	header     http.Header
	validate   *validator.Validate
	translator ut.Translator
}

func NewClient(baseURL string, opts ...ClientOption) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    http.DefaultClient,
		timeout: DefaultTimeout,
		header:  make(http.Header),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.validate == nil {
		c.validate, c.translator = core.NewValidator()
	}
	InitValidators(c.validate, c.translator)
	return c
}

func (c *Client) newRequest(ctx context.Context, method, path string, body interface{}) (*http.Request, error) {
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, errors.Wrap(err, "encoding body")
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return nil, errors.Wrap(err, "building request")
	}
	for k, vs := range c.header {
		req.Header[k] = append([]string(nil), vs...)
	}
	if body != nil || method == http.MethodGet || method == http.MethodPost {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// do sends the request and decodes a 2xx JSON response into `out` (if not nil).
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, path)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return newAPIError(resp, "")
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err = json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
		return errors.Wrapf(err, "decoding %s %s", method, path)
	}
	return nil
}

// newAPIError reads the message from the body's "error" field unless `msg` is set.
func newAPIError(resp *http.Response, msg string) *APIError {
	if msg == "" {
		var body struct {
			Error string `json:"error"`
		}
		if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&body); err == nil {
			msg = body.Error
		}
	}
	if msg == "" {
		msg = "HTTP " + strconv.Itoa(resp.StatusCode)
	}
	return &APIError{Status: resp.StatusCode, Endpoint: resp.Request.URL.String(), Message: msg}
}

func (c *Client) validateModel(v interface{}) error {
	return core.ValidateStruct(c.validate, c.translator, v)
}

// preferences

func (c *Client) GetPreferences(ctx context.Context) (Preferences, error) {
	var prefs Preferences
	err := c.do(ctx, http.MethodGet, "/preferences", nil, &prefs)
	return prefs, err
}

func (c *Client) UpdatePreferences(ctx context.Context, prefs Preferences) (Preferences, error) {
	if err := c.validateModel(prefs); err != nil {
		return Preferences{}, err
	}
	var updated Preferences
	err := c.do(ctx, http.MethodPut, "/preferences", prefs, &updated)
	return updated, err
}

func (c *Client) GetPreferenceSection(ctx context.Context, section string) (map[string]interface{}, error) {
	var data map[string]interface{}
	err := c.do(ctx, http.MethodGet, "/preferences/"+url.PathEscape(section), nil, &data)
	return data, err
}

func (c *Client) UpdatePreferenceSection(ctx context.Context, section string, data map[string]interface{}) (map[string]interface{}, error) {
	var updated map[string]interface{}
	err := c.do(ctx, http.MethodPut, "/preferences/"+url.PathEscape(section), data, &updated)
	return updated, err
}

// devices

func (c *Client) GetDevices(ctx context.Context) ([]Device, error) {
	var resp struct {
		Devices []Device `json:"devices"`
	}
	err := c.do(ctx, http.MethodGet, "/devices", nil, &resp)
	return resp.Devices, err
}

func (c *Client) RegisterDevice(ctx context.Context, device Device) (Device, error) {
	if err := c.validateModel(device); err != nil {
		return Device{}, err
	}
	var registered Device
	err := c.do(ctx, http.MethodPost, "/devices", device, &registered)
	return registered, err
}

func (c *Client) UpdateDevice(ctx context.Context, deviceID string, update DeviceUpdate) (Device, error) {
	if err := c.validateModel(update); err != nil {
		return Device{}, err
	}
	var device Device
	err := c.do(ctx, http.MethodPatch, "/devices/"+url.PathEscape(deviceID), update, &device)
	return device, err
}

func (c *Client) RemoveDevice(ctx context.Context, deviceID string) error {
	return c.do(ctx, http.MethodDelete, "/devices/"+url.PathEscape(deviceID), nil, nil)
}

// sync

// GetSyncChanges lists the sync changes, only the unsynced ones if `unsynced`.
func (c *Client) GetSyncChanges(ctx context.Context, unsynced bool) ([]SyncChange, error) {
	path := "/sync"
	if unsynced {
		path += "?synced=false"
	}
	var resp struct {
		Changes []SyncChange `json:"changes"`
	}
	err := c.do(ctx, http.MethodGet, path, nil, &resp)
	return resp.Changes, err
}

func (c *Client) CreateSyncChange(ctx context.Context, change SyncChange) (SyncChange, error) {
	if err := c.validateModel(change); err != nil {
		return SyncChange{}, err
	}
	var created SyncChange
	err := c.do(ctx, http.MethodPost, "/sync", change, &created)
	return created, err
}

func (c *Client) MarkSynced(ctx context.Context, changeIDs []string) ([]SyncChange, error) {
	body := map[string][]string{"changeIds": changeIDs}
	var resp struct {
		Updated []SyncChange `json:"updated"`
	}
	err := c.do(ctx, http.MethodPatch, "/sync", body, &resp)
	return resp.Updated, err
}

// notifications

// GetNotifications lists up to `limit` notifications (50 when limit <= 0).
func (c *Client) GetNotifications(ctx context.Context, unread bool, limit int) ([]Notification, error) {
	if limit <= 0 {
		limit = defaultNotificationLimit
	}
	q := url.Values{}
	if unread {
		q.Set("unread", "true")
	}
	q.Set("limit", strconv.Itoa(limit))

	var resp struct {
		Notifications []Notification `json:"notifications"`
	}
	err := c.do(ctx, http.MethodGet, "/notifications?"+q.Encode(), nil, &resp)
	return resp.Notifications, err
}

func (c *Client) CreateNotification(ctx context.Context, n Notification) (Notification, error) {
	if err := c.validateModel(n); err != nil {
		return Notification{}, err
	}
	var created Notification
	err := c.do(ctx, http.MethodPost, "/notifications", n, &created)
	return created, err
}

func (c *Client) UpdateNotifications(ctx context.Context, ids []string, action NotificationAction) (NotificationUpdate, error) {
	switch action {
	case ActionRead, ActionUnread, ActionDelete:
	default:
		return NotificationUpdate{}, core.NewValidationError(nil, core.FieldError{Field: "action", Error: "must be one of [read unread delete]"})
	}
	body := struct {
		NotificationIDs []string           `json:"notificationIds"`
		Action          NotificationAction `json:"action"`
	}{ids, action}

	var update NotificationUpdate
	err := c.do(ctx, http.MethodPatch, "/notifications", body, &update)
	return update, err
}

// dashboard layouts

func (c *Client) GetDashboardLayouts(ctx context.Context, defaultOnly bool) (Layouts, error) {
	path := "/dashboard"
	if defaultOnly {
		path += "?default=true"
	}
	var layouts Layouts
	err := c.do(ctx, http.MethodGet, path, nil, &layouts)
	return layouts, err
}

func (c *Client) SaveDashboardLayout(ctx context.Context, layout DashboardLayout) (DashboardLayout, error) {
	if err := c.validateModel(layout); err != nil {
		return DashboardLayout{}, err
	}
	var saved DashboardLayout
	err := c.do(ctx, http.MethodPut, "/dashboard", layout, &saved)
	return saved, err
}

func (c *Client) DeleteDashboardLayout(ctx context.Context, layoutID string) error {
	return c.do(ctx, http.MethodDelete, "/dashboard?id="+url.QueryEscape(layoutID), nil, nil)
}

// data

// ExportUserData streams the user's data export. The caller must close the returned reader.
func (c *Client) ExportUserData(ctx context.Context) (data io.ReadCloser, contentType string, err error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	req, err := c.newRequest(ctx, http.MethodGet, "/export", nil)
	if err != nil {
		cancel()
		return nil, "", err
	}
	req.Header.Del("Content-Type")

	resp, err := c.http.Do(req)
	if err != nil {
		cancel()
		return nil, "", errors.Wrap(err, "GET /export")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer cancel()
		defer resp.Body.Close()
		return nil, "", newAPIError(resp, "failed to export data")
	}
	return &cancelReadCloser{ReadCloser: resp.Body, cancel: cancel}, resp.Header.Get("Content-Type"), nil
}

func (c *Client) DeleteUserData(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/delete", nil, nil)
}

// HealthCheck reports whether the API answers /health with a 2xx. It never fails.
func (c *Client) HealthCheck(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := c.newRequest(ctx, http.MethodGet, "/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

type cancelReadCloser struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (r *cancelReadCloser) Close() error {
	defer r.cancel()
	return r.ReadCloser.Close()
}
