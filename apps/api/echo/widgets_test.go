package echoapi_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/zerlake/thesisai-philippines-sub009/apps/api/echo"
	"github.com/zerlake/thesisai-philippines-sub009/core/dashboard"
	"github.com/zerlake/thesisai-philippines-sub009/core/widget"
	"github.com/zerlake/thesisai-philippines-sub009/tests"
)

type widgetBody struct {
	Success  bool                   `json:"success"`
	WidgetID string                 `json:"widgetId"`
	Data     map[string]interface{} `json:"data"`
	Settings map[string]interface{} `json:"settings"`
	Cached   bool                   `json:"cached"`
	Valid    *bool                  `json:"valid"`
	Errors   []string               `json:"errors"`
	Cleared  bool                   `json:"cleared"`
}

func TestWidgetAPI_Get(t *testing.T) {
	app := newTestApp(t)
	token := app.token(t, "u1")
	path := "/api/dashboard/widgets/" + widget.QuickStatsID

	type getTest struct {
		name       string
		path       string
		advance    time.Duration
		wantCached bool
	}

	// run in order: each step sees the snapshot left by the previous ones
	tests := []getTest{
		{name: "first call computes", path: path, wantCached: false},
		{name: "second call is cached", path: path, wantCached: true},
		{name: "refresh bypasses the cache", path: path + "?refresh=true", wantCached: false},
		{name: "cached again", path: path, advance: 30 * time.Minute, wantCached: true},
		{name: "expired after the ttl", path: path, advance: time.Hour, wantCached: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app.clock.Advance(tt.advance)
			rec := app.do(http.MethodGet, tt.path, token)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

			var body widgetBody
			decode(t, rec, &body)
			if body.Cached != tt.wantCached {
				t.Errorf("GET %s cached = %v; want %v", tt.path, body.Cached, tt.wantCached)
			}
			assert.True(t, body.Success)
			assert.Equal(t, widget.QuickStatsID, body.WidgetID)
			assert.EqualValues(t, 156, body.Data["totalPapers"])
			if !tt.wantCached {
				require.NotNil(t, body.Valid)
				assert.True(t, *body.Valid)
			}
		})
	}

	snap, err := app.store.GetSnapshot(context.Background(), "u1", widget.QuickStatsID)
	require.NoError(t, err)
	require.NotNil(t, snap.ExpiresAt)
	assert.True(t, app.clock.Now().Add(widget.SnapshotTTL).Equal(*snap.ExpiresAt))
}

func TestWidgetAPI_GetPerUser(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		papers := map[string]int{"u1": 4, "u2": 7}[r.Header.Get(dashboard.UserHeader)]
		_ = json.NewEncoder(w).Encode(map[string]int{"totalPapers": papers})
	}))
	defer upstream.Close()

	logger := testutil.NewLogger()
	registry, err := widget.NewRegistry(logger)
	require.NoError(t, err)
	manager := dashboard.NewManager(dashboard.Options{BaseURL: upstream.URL, Registry: registry, Logger: logger})
	app := newTestApp(t, func(deps *ServerDeps) {
		deps.WidgetSource = ManagerSource(manager)
	})

	type perUserTest struct {
		name       string
		userID     string
		wantPapers float64
	}

	tests := []perUserTest{
		{name: "first user", userID: "u1", wantPapers: 4},
		{name: "second user", userID: "u2", wantPapers: 7},
		{name: "first user again", userID: "u1", wantPapers: 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := app.do(http.MethodGet, "/api/dashboard/widgets/quick-stats?refresh=true", app.token(t, tt.userID))
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			var body widgetBody
			decode(t, rec, &body)
			if got := body.Data["totalPapers"]; got != tt.wantPapers {
				t.Errorf("GET quick-stats totalPapers = %v; want %v", got, tt.wantPapers)
			}
		})
	}
}

func TestWidgetAPI_GetUnknown(t *testing.T) {
	app := newTestApp(t)
	rec := app.do(http.MethodGet, "/api/dashboard/widgets/quick-stat", app.token(t, "u1"))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var body struct {
		Error   string            `json:"error"`
		Code    string            `json:"code"`
		Details map[string]string `json:"details"`
	}
	decode(t, rec, &body)
	assert.Equal(t, "Validation error", body.Error)
	assert.Equal(t, "VALIDATION_ERROR", body.Code)
	assert.Equal(t, "unknown", body.Details["widget"])
}

func TestWidgetAPI_GetInvalidSource(t *testing.T) {
	app := newTestApp(t, func(deps *ServerDeps) {
		deps.WidgetSource = func(context.Context, string, string) (interface{}, error) {
			return map[string]interface{}{"totalPapers": "many", "totalNotes": 4}, nil
		}
	})
	rec := app.do(http.MethodGet, "/api/dashboard/widgets/"+widget.QuickStatsID, app.token(t, "u1"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body widgetBody
	decode(t, rec, &body)
	require.NotNil(t, body.Valid)
	assert.False(t, *body.Valid)
	assert.NotEmpty(t, body.Errors)
	assert.EqualValues(t, 4, body.Data["totalNotes"], "coerced payload keeps the valid fields")
	assert.EqualValues(t, 0, body.Data["totalPapers"])
}

func TestWidgetAPI_GetSourceError(t *testing.T) {
	app := newTestApp(t, func(deps *ServerDeps) {
		deps.WidgetSource = func(context.Context, string, string) (interface{}, error) {
			return nil, errors.New("provider down")
		}
	})
	rec := app.do(http.MethodGet, "/api/dashboard/widgets/"+widget.QuickStatsID, app.token(t, "u1"))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("GET code = %v; want %v", rec.Code, http.StatusInternalServerError)
	}
	assert.Len(t, app.logger.Entries("error"), 1)
}

func TestWidgetAPI_Update(t *testing.T) {
	type updateTest struct {
		name       string
		body       interface{}
		wantCode   int
		wantErrors bool
		wantData   bool
	}

	tests := []updateTest{
		{
			name:     "valid data and settings",
			body:     map[string]interface{}{"data": map[string]interface{}{"totalNotes": 3}, "settings": map[string]interface{}{"recentCount": 2}},
			wantCode: http.StatusOK,
			wantData: true,
		},
		{
			name:     "settings only",
			body:     map[string]interface{}{"settings": map[string]interface{}{"recentCount": 2}},
			wantCode: http.StatusOK,
		},
		{
			name:       "invalid data",
			body:       map[string]interface{}{"data": map[string]interface{}{"totalNotes": "three"}},
			wantCode:   http.StatusBadRequest,
			wantErrors: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newTestApp(t)
			rec := app.do(http.MethodPost, "/api/dashboard/widgets/"+widget.NotesID, app.token(t, "u1"), tt.body)
			if rec.Code != tt.wantCode {
				t.Fatalf("POST code = %v; want %v (%s)", rec.Code, tt.wantCode, rec.Body.String())
			}

			var body widgetBody
			decode(t, rec, &body)
			if tt.wantErrors {
				assert.NotEmpty(t, body.Errors)
				return
			}

			assert.True(t, body.Success)
			assert.EqualValues(t, 2, body.Settings["recentCount"])
			settings, err := app.store.GetSettings(context.Background(), "u1", widget.NotesID)
			require.NoError(t, err)
			assert.JSONEq(t, `{"recentCount":2}`, string(settings.Settings))

			snap, err := app.store.GetSnapshot(context.Background(), "u1", widget.NotesID)
			if tt.wantData {
				require.NoError(t, err)
				var data map[string]interface{}
				require.NoError(t, json.Unmarshal(snap.Data, &data))
				assert.EqualValues(t, 3, data["totalNotes"])
				assert.EqualValues(t, 5, data["recentCount"], "defaults are filled")
				assert.EqualValues(t, 3, body.Data["totalNotes"])
			} else {
				assert.ErrorIs(t, err, widget.ErrNotFound)
			}
		})
	}
}

func TestWidgetAPI_Clear(t *testing.T) {
	app := newTestApp(t)
	token := app.token(t, "u1")
	path := "/api/dashboard/widgets/" + widget.CalendarID

	require.Equal(t, http.StatusOK, app.do(http.MethodGet, path, token).Code)
	_, err := app.store.GetSnapshot(context.Background(), "u1", widget.CalendarID)
	require.NoError(t, err)

	rec := app.do(http.MethodDelete, path, token)
	require.Equal(t, http.StatusOK, rec.Code)
	var body widgetBody
	decode(t, rec, &body)
	assert.True(t, body.Cleared)

	_, err = app.store.GetSnapshot(context.Background(), "u1", widget.CalendarID)
	assert.ErrorIs(t, err, widget.ErrNotFound)
}
