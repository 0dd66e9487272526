// Package widget holds the data contracts of the dashboard widgets: one JSON Schema
// per widget, the typed payloads they decode into and the mock payloads served
// when nothing better is available.
package widget

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/pmezard/go-difflib/difflib"
	"github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/santhosh-tekuri/jsonschema/v6/kind"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/zerlake/thesisai-philippines-sub009/core"
)

const schemaBaseURL = "https://thesisai.ph/schemas/widgets/"

var (
	//go:embed schemas/*.json
	schemaFS embed.FS

	//go:embed mocks/*.json
	mockFS embed.FS

	constructors = map[string]func() Data{
		ResearchProgressID: newResearchProgress,
		QuickStatsID:       newQuickStats,
		RecentPapersID:     newRecentPapers,
		WritingGoalsID:     newWritingGoals,
		CollaborationID:    newCollaboration,
		CalendarID:         newCalendar,
		TrendsID:           newTrends,
		NotesID:            newNotes,
		CitationsID:        newCitations,
		SuggestionsID:      newSuggestions,
		TimeTrackerID:      newTimeTracker,
		CustomID:           newCustom,
	}
)

// Schema is the contract of one widget's payload.
// A permissive Schema accepts any well-formed JSON value.
type Schema struct {
	ID         string
	Permissive bool

	compiled *jsonschema.Schema
	newData  func() Data
}

// Result is the outcome of Registry.Validate.
// Data is nil whenever Valid is false.
type Result struct {
	Valid  bool        `json:"valid"`
	Data   interface{} `json:"data"`
	Errors []string    `json:"errors,omitempty"`
}

type Registry struct {
	schemas    map[string]*Schema
	mocks      map[string][]byte
	ids        []string
	permissive *Schema
	printer    *message.Printer
	logger     core.Logger
}

// NewRegistry compiles the embedded widget schemas and loads their mocks.
func NewRegistry(logger core.Logger) (*Registry, error) {
	reg := &Registry{
		schemas:    make(map[string]*Schema, len(constructors)),
		mocks:      make(map[string][]byte, len(constructors)),
		ids:        make([]string, 0, len(constructors)),
		permissive: &Schema{Permissive: true},
		printer:    message.NewPrinter(language.English),
		logger:     logger,
	}

	c := jsonschema.NewCompiler()
	c.AssertFormat()
	for id := range constructors {
		b, err := schemaFS.ReadFile(path.Join("schemas", id+".json"))
		if err != nil {
			return nil, errors.Wrapf(err, "reading %s schema", id)
		}
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(b))
		if err != nil {
			return nil, errors.Wrapf(err, "parsing %s schema", id)
		}
		if err = c.AddResource(schemaBaseURL+id+".json", doc); err != nil {
			return nil, errors.Wrapf(err, "adding %s schema", id)
		}
	}

	for id, newData := range constructors {
		sch, err := c.Compile(schemaBaseURL + id + ".json")
		if err != nil {
			return nil, errors.Wrapf(err, "compiling %s schema", id)
		}
		mock, err := mockFS.ReadFile(path.Join("mocks", id+".json"))
		if err != nil {
			return nil, errors.Wrapf(err, "reading %s mock", id)
		}
		reg.schemas[id] = &Schema{ID: id, compiled: sch, newData: newData}
		reg.mocks[id] = mock
		reg.ids = append(reg.ids, id)
	}
	sort.Strings(reg.ids)
	return reg, nil
}

// IDs returns the known widget ids, sorted.
func (r *Registry) IDs() []string {
	ids := make([]string, len(r.ids))
	copy(ids, r.ids)
	return ids
}

func (r *Registry) Has(id string) bool {
	_, ok := r.schemas[id]
	return ok
}

// Schema returns the schema of widget `id`, or a permissive one for unknown ids.
func (r *Registry) Schema(id string) *Schema {
	if sch, ok := r.schemas[id]; ok {
		return sch
	}
	msg := fmt.Sprintf("no schema found for widget %q", id)
	if guess := r.closest(id); guess != "" {
		msg += fmt.Sprintf("; did you mean %q?", guess)
	}
	r.logger.Warn(msg)
	return r.permissive
}

// closest returns the known id most similar to `id`, if any is similar enough.
func (r *Registry) closest(id string) string {
	var (
		best      string
		bestRatio float64
	)
	a := strings.Split(strings.ToLower(id), "")
	for _, known := range r.ids {
		sm := difflib.NewMatcher(a, strings.Split(known, ""))
		if ratio := sm.Ratio(); ratio > bestRatio {
			best, bestRatio = known, ratio
		}
	}
	if bestRatio < 0.6 {
		return ""
	}
	return best
}

// Validate checks `data` (raw JSON bytes or any JSON-encodable value) against widget `id`.
// On success Data holds the typed payload with every default filled.
// On failure Errors holds one "path: message" per violation.
func (r *Registry) Validate(id string, data interface{}) Result {
	raw, err := toJSON(data)
	if err != nil {
		return invalid("(root): " + err.Error())
	}

	sch := r.Schema(id)
	if sch.Permissive {
		var v interface{}
		if err = json.Unmarshal(raw, &v); err != nil {
			return invalid("(root): malformed JSON")
		}
		return Result{Valid: true, Data: v}
	}

	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return invalid("(root): malformed JSON")
	}
	if err = sch.compiled.Validate(inst); err != nil {
		var ve *jsonschema.ValidationError
		if errors.As(err, &ve) {
			return Result{Errors: r.violations(ve, nil)}
		}
		return invalid("(root): " + err.Error())
	}

	d := sch.newData()
	if err = json.Unmarshal(raw, d); err != nil {
		return invalid("(root): " + err.Error())
	}
	d.setDefaults()
	return Result{Valid: true, Data: d}
}

// Coerce decodes whatever it can of `data` onto the defaults of widget `id`, ignoring mismatches.
// It is meant for payloads that failed validation but must still be displayed.
func (r *Registry) Coerce(id string, data interface{}) interface{} {
	raw, err := toJSON(data)
	sch, ok := r.schemas[id]
	if !ok {
		var v interface{}
		if err == nil {
			_ = json.Unmarshal(raw, &v)
		}
		return v
	}
	d := sch.newData()
	if err == nil {
		_ = json.Unmarshal(raw, d) // best effort: type mismatches are skipped
	}
	d.setDefaults()
	return d
}

// Mock returns a fresh copy of the mock payload of widget `id`,
// or an empty object for unknown ids.
func (r *Registry) Mock(id string) interface{} {
	v := make(map[string]interface{})
	if b, ok := r.mocks[id]; ok {
		_ = json.Unmarshal(b, &v)
	}
	return v
}

// MockJSON returns the raw mock payload of widget `id`.
func (r *Registry) MockJSON(id string) []byte {
	if b, ok := r.mocks[id]; ok {
		return append([]byte(nil), b...)
	}
	return []byte("{}")
}

func (r *Registry) violations(ve *jsonschema.ValidationError, out []string) []string {
	if len(ve.Causes) > 0 {
		for _, cause := range ve.Causes {
			out = r.violations(cause, out)
		}
		return out
	}
	if req, ok := ve.ErrorKind.(*kind.Required); ok {
		for _, prop := range req.Missing {
			loc := append(append([]string(nil), ve.InstanceLocation...), prop)
			out = append(out, joinPath(loc)+": required")
		}
		return out
	}
	return append(out, joinPath(ve.InstanceLocation)+": "+ve.ErrorKind.LocalizedString(r.printer))
}

func joinPath(loc []string) string {
	if len(loc) == 0 {
		return "(root)"
	}
	return strings.Join(loc, ".")
}

func invalid(errs ...string) Result {
	return Result{Errors: errs}
}

func toJSON(data interface{}) ([]byte, error) {
	switch v := data.(type) {
	case []byte:
		return v, nil
	case json.RawMessage:
		return v, nil
	default:
		return json.Marshal(v)
	}
}
