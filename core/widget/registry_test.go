package widget_test

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zerlake/thesisai-philippines-sub009/core/widget"
	"github.com/zerlake/thesisai-philippines-sub009/tests"
)

func newRegistry(t *testing.T) (*widget.Registry, *testutil.Logger) {
	logger := testutil.NewLogger()
	reg, err := widget.NewRegistry(logger)
	require.NoError(t, err)
	return reg, logger
}

func TestRegistry_IDs(t *testing.T) {
	reg, _ := newRegistry(t)
	want := []string{
		"calendar", "citations", "collaboration", "custom", "notes", "quick-stats",
		"recent-papers", "research-progress", "suggestions", "time-tracker", "trends", "writing-goals",
	}
	assert.Equal(t, want, reg.IDs())
}

func TestRegistry_MocksAreValid(t *testing.T) {
	reg, _ := newRegistry(t)
	for _, id := range reg.IDs() {
		t.Run(id, func(t *testing.T) {
			res := reg.Validate(id, reg.Mock(id))
			if !res.Valid {
				t.Errorf("Validate(%q, Mock()) errors = %v; want valid", id, res.Errors)
			}
			assert.NotNil(t, res.Data)
		})
	}
}

func TestRegistry_UnknownWidget(t *testing.T) {
	reg, logger := newRegistry(t)

	sch := reg.Schema("research-progres")
	assert.True(t, sch.Permissive)
	warns := logger.Entries("warn")
	require.Len(t, warns, 1)
	assert.Contains(t, warns[0].Msg, `did you mean "research-progress"`)

	tests := []struct {
		name string
		data interface{}
	}{
		{name: "object", data: map[string]interface{}{"anything": 1}},
		{name: "array", data: []int{1, 2}},
		{name: "nil", data: nil},
		{name: "raw", data: []byte(`"text"`)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := reg.Validate("no-such-widget", tt.data)
			assert.True(t, res.Valid)
			assert.Empty(t, res.Errors)
		})
	}

	assert.Equal(t, map[string]interface{}{}, reg.Mock("no-such-widget"))
	assert.JSONEq(t, `{}`, string(reg.MockJSON("no-such-widget")))
}

func TestRegistry_Validate(t *testing.T) {
	reg, _ := newRegistry(t)

	type validateTest struct {
		name       string
		id         string
		data       string
		wantValid  bool
		wantErrors []string // substrings
	}
	tests := []validateTest{
		{name: "empty object gets defaults", id: widget.ResearchProgressID, data: `{}`, wantValid: true},
		{
			name: "wrong type", id: widget.ResearchProgressID, data: `{"papersRead": "not-a-number"}`,
			wantErrors: []string{"papersRead: "},
		},
		{
			name: "all violations are collected", id: widget.ResearchProgressID,
			data:       `{"papersRead": "x", "researchAccuracy": 101, "period": "decade"}`,
			wantErrors: []string{"papersRead: ", "researchAccuracy: ", "period: "},
		},
		{
			name: "nested path", id: widget.RecentPapersID,
			data:       `{"papers": [{"id": "1", "title": "T", "authors": [], "status": "lost"}]}`,
			wantErrors: []string{"papers.0.status: "},
		},
		{
			name: "bad url format", id: widget.RecentPapersID,
			data:       `{"papers": [{"id": "1", "title": "T", "authors": [], "url": "not a url"}]}`,
			wantErrors: []string{"papers.0.url: "},
		},
		{name: "missing required", id: widget.CustomID, data: `{"html": "<p/>"}`, wantErrors: []string{"title: required"}},
		{name: "not an object", id: widget.NotesID, data: `[1, 2]`, wantErrors: []string{"(root): "}},
		{name: "malformed", id: widget.NotesID, data: `{"notes": `, wantErrors: []string{"(root): malformed JSON"}},
		{name: "string or number stat", id: widget.QuickStatsID, data: `{"stats": [{"label": "W", "value": "1K"}, {"label": "P", "value": 3}]}`, wantValid: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := reg.Validate(tt.id, []byte(tt.data))
			if res.Valid != tt.wantValid {
				t.Fatalf("Validate().Valid = %v; want %v (errors %v)", res.Valid, tt.wantValid, res.Errors)
			}
			if !tt.wantValid {
				assert.Nil(t, res.Data)
				require.Len(t, res.Errors, len(tt.wantErrors))
				joined := strings.Join(res.Errors, "\n")
				for _, want := range tt.wantErrors {
					assert.Contains(t, joined, want)
				}
			}
		})
	}
}

func TestRegistry_ValidateFillsDefaults(t *testing.T) {
	reg, _ := newRegistry(t)

	res := reg.Validate(widget.RecentPapersID, []byte(`{"papers": [{"id": "1", "title": "T", "authors": null}]}`))
	require.False(t, res.Valid, "null authors must be rejected")

	res = reg.Validate(widget.RecentPapersID, []byte(`{"papers": [{"id": "1", "title": "T", "authors": ["A"]}]}`))
	require.True(t, res.Valid, res.Errors)
	papers, ok := res.Data.(*widget.RecentPapers)
	require.True(t, ok)
	assert.Equal(t, 5, papers.Count)
	assert.Equal(t, "date", papers.SortBy)
	assert.Equal(t, "saved", papers.Papers[0].Status)

	res = reg.Validate(widget.ResearchProgressID, map[string]interface{}{"papersRead": 3})
	require.True(t, res.Valid, res.Errors)
	progress := res.Data.(*widget.ResearchProgress)
	assert.Equal(t, 3, progress.PapersRead)
	assert.Equal(t, "month", progress.Period)
	assert.Equal(t, "line", progress.ChartType)
	assert.NotNil(t, progress.WeeklyTrend)

	b, err := json.Marshal(progress)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"weeklyTrend":[]`)
}

func TestRegistry_Coerce(t *testing.T) {
	reg, _ := newRegistry(t)

	data := reg.Coerce(widget.ResearchProgressID, []byte(`{"papersRead": "not-a-number", "notesCreated": 4}`))
	progress, ok := data.(*widget.ResearchProgress)
	require.True(t, ok)
	assert.Equal(t, 0, progress.PapersRead)
	assert.Equal(t, 4, progress.NotesCreated)
	assert.Equal(t, "month", progress.Period)

	assert.Equal(t, map[string]interface{}{"a": 1.0}, reg.Coerce("unknown", []byte(`{"a": 1}`)))
}
