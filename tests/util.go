package testutil

import (
	"fmt"
	"sync"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/zerlake/thesisai-philippines-sub009/core"
)

type LogEntry struct {
	Level string
	Msg   string
	Args  []interface{}
}

// Logger is a core.Logger recording every entry in memory.
type Logger struct {
	mu      sync.Mutex
	entries []LogEntry
}

var _ core.Logger = (*Logger)(nil)

func NewLogger() *Logger {
	return new(Logger)
}

func (l *Logger) log(level, msg string, args []interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, LogEntry{Level: level, Msg: msg, Args: args})
}

func (l *Logger) Debug(msg string, args ...interface{}) { l.log("debug", msg, args) }
func (l *Logger) Info(msg string, args ...interface{})  { l.log("info", msg, args) }
func (l *Logger) Warn(msg string, args ...interface{})  { l.log("warn", msg, args) }
func (l *Logger) Error(msg string, args ...interface{}) { l.log("error", msg, args) }

func (l *Logger) Fatal(msg string, args ...interface{}) {
	l.log("fatal", msg, args)
	panic(fmt.Sprintf("fatal: %s", msg))
}

// Entries returns the recorded entries, optionally filtered by level.
func (l *Logger) Entries(level ...string) []LogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	entries := make([]LogEntry, 0, len(l.entries))
	for _, e := range l.entries {
		if len(level) == 0 || e.Level == level[0] {
			entries = append(entries, e)
		}
	}
	return entries
}

func NewTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}

// NewValidator returns a validator initialized with the app's tag names and translations.
func NewValidator() (*validator.Validate, ut.Translator) {
	return core.NewValidator()
}
