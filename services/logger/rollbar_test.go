package logsvc

import (
	"bytes"
	"log"
	"strings"
	"testing"

	gommonlog "github.com/labstack/gommon/log"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/zerlake/thesisai-philippines-sub009/core"
)

func newTestLogger(debug bool) (*RollbarLogger, *bytes.Buffer) {
	buf := new(bytes.Buffer)
	conf := &core.Config{Debug: debug, Env: "TEST", Build: "test"}
	l := NewRollbarLogger(log.New(buf, "", 0), conf)
	l.Enable(false)
	return l, buf
}

func TestRollbarLogger_Levels(t *testing.T) {
	type levelTest struct {
		name  string
		debug bool
		log   func(l *RollbarLogger)
		want  string
	}

	tests := []levelTest{
		{name: "debug shown in debug mode", debug: true, log: func(l *RollbarLogger) { l.Debug("cache miss") }, want: "DEBUG cache miss\n"},
		{name: "debug hidden otherwise", log: func(l *RollbarLogger) { l.Debug("cache miss") }, want: ""},
		{name: "info", log: func(l *RollbarLogger) { l.Info("bell mounted") }, want: "INFO bell mounted\n"},
		{
			name: "error with args",
			log: func(l *RollbarLogger) {
				l.Error("fetching widget", errors.New("timeout"), map[string]interface{}{"widget": "notes"})
			},
			want: "ERROR fetching widget\ntimeout\n", // followed by the stack trace and the map
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, buf := newTestLogger(tt.debug)
			tt.log(l)
			if got := buf.String(); !strings.HasPrefix(got, tt.want) || (tt.want == "" && got != "") {
				t.Errorf("output = %q; want %q", got, tt.want)
			}
		})
	}
}

func TestRollbarLogger_SetLevel(t *testing.T) {
	l, buf := newTestLogger(true)
	l.SetLevel(gommonlog.ERROR)

	l.Warn("retrying")
	assert.Empty(t, buf.String())
	l.Error("giving up")
	assert.Equal(t, "ERROR giving up\n", buf.String())
}

func TestRollbarLogger_Prepare(t *testing.T) {
	l, _ := newTestLogger(false)
	err := errors.New("boom")
	person := core.Person{ID: "u1", Name: "Ana"}

	args := l.prepare("msg", []interface{}{err, person, core.Person{ID: "u2"}})
	assert.Equal(t, []interface{}{"msg", err}, args)
}
