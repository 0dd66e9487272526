package logsvc

import (
	"log"

	gommonlog "github.com/labstack/gommon/log"
	"github.com/rollbar/rollbar-go"
	"github.com/rollbar/rollbar-go/errors"

	"github.com/zerlake/thesisai-philippines-sub009/core"
)

var levelNames = map[gommonlog.Lvl]string{
	gommonlog.DEBUG: "DEBUG",
	gommonlog.INFO:  "INFO",
	gommonlog.WARN:  "WARN",
	gommonlog.ERROR: "ERROR",
}

type RollbarLogger struct {
	std   *log.Logger
	level gommonlog.Lvl
}

var _ core.Logger = (*RollbarLogger)(nil)

func NewRollbarLogger(std *log.Logger, conf *core.Config) *RollbarLogger {
	rollbar.SetToken(conf.RollbarToken)
	rollbar.SetEnvironment(conf.Env)
	rollbar.SetServerHost(conf.Server.Host)
	rollbar.SetCodeVersion(conf.Build)
	rollbar.SetStackTracer(errors.StackTracer)

	level := gommonlog.INFO
	if conf.Debug {
		level = gommonlog.DEBUG
	}
	return &RollbarLogger{std: std, level: level}
}

func (l RollbarLogger) Enable(enabled bool) {
	rollbar.SetEnabled(enabled)
}

// SetLevel hides the entries below level from the std logger; rollbar still receives them.
func (l *RollbarLogger) SetLevel(level gommonlog.Lvl) {
	l.level = level
}

// expected fmt: msg | error, map[string]interface{}, core.Person
func (l RollbarLogger) prepare(msg string, args []interface{}) []interface{} {
	var personSet bool
	newArgs := make([]interface{}, 0, len(args)+1)
	newArgs = append(newArgs, msg)
	for _, arg := range args {
		if p, ok := arg.(core.Person); ok {
			if !personSet { // only set one Person
				rollbar.SetPerson(p.ID, p.Name, p.Email)
				personSet = true
			}
		} else {
			newArgs = append(newArgs, arg)
		}
	}
	if !personSet {
		rollbar.ClearPerson()
	}
	return newArgs
}

func (l RollbarLogger) print(level gommonlog.Lvl, msg string, args []interface{}) {
	if level < l.level {
		return
	}
	name, ok := levelNames[level]
	if !ok {
		name = "FATAL"
	}
	l.std.Println(name + " " + msg)
	for _, arg := range args {
		l.std.Printf("%+v\n", arg)
	}
}

func (l RollbarLogger) Debug(msg string, args ...interface{}) {
	rollbar.Debug(l.prepare(msg, args)...)
	l.print(gommonlog.DEBUG, msg, args)
}

func (l RollbarLogger) Info(msg string, args ...interface{}) {
	rollbar.Info(l.prepare(msg, args)...)
	l.print(gommonlog.INFO, msg, args)
}

func (l RollbarLogger) Warn(msg string, args ...interface{}) {
	rollbar.Warning(l.prepare(msg, args)...)
	l.print(gommonlog.WARN, msg, args)
}

func (l RollbarLogger) Error(msg string, args ...interface{}) {
	rollbar.Error(l.prepare(msg, args)...)
	l.print(gommonlog.ERROR, msg, args)
}

func (l RollbarLogger) Fatal(msg string, args ...interface{}) {
	rollbar.Critical(l.prepare(msg, args)...)
	l.print(gommonlog.OFF, msg, args)
	l.std.Fatal(msg)
}
