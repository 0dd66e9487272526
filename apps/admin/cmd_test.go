package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/mail"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zerlake/thesisai-philippines-sub009/core"
	"github.com/zerlake/thesisai-philippines-sub009/core/notification"
	"github.com/zerlake/thesisai-philippines-sub009/core/widget"
	emailsvc "github.com/zerlake/thesisai-philippines-sub009/services/email"
	dummydb "github.com/zerlake/thesisai-philippines-sub009/storage/database/dummy"
	"github.com/zerlake/thesisai-philippines-sub009/tests"
)

func setup(t *testing.T) (*commandLine, *bytes.Buffer) {
	t.Helper()
	logger := testutil.NewLogger()
	registry, err := widget.NewRegistry(logger)
	require.NoError(t, err)
	db, err := dummydb.Open()
	require.NoError(t, err)
	core.ParseEmailTemplates(notification.Templates, "templates", logger)

	conf := &core.Config{AppName: "ThesisAI"}
	conf.DefaultFromEmail = mail.Address{Name: "ThesisAI", Address: "noreply@thesisai.ph"}

	out := new(bytes.Buffer)
	return &commandLine{
		logger:      logger,
		out:         out,
		registry:    registry,
		repo:        dummydb.NewNotificationRepository(db),
		email:       emailsvc.NewConsoleServiceMock(conf, logger),
		migrateFunc: fakeMigrate,
		isTerminal:  func() bool { return false },
	}, out
}

func fakeMigrate(_ context.Context, command string, args ...string) error {
	switch command {
	case "up", "up-by-one", "down", "fix", "redo", "reset", "status", "version": // pass
	case "up-to", "down-to":
		if len(args) == 0 {
			return fmt.Errorf("%s must be of form: goose [OPTIONS] DRIVER DBSTRING %s VERSION", command, command)
		}
		if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
			return fmt.Errorf("version must be a number (got '%s')", args[0])
		}
	default:
		return fmt.Errorf("%q: no such command", command)
	}
	return nil
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
}

func runCLITests(t *testing.T, cli *commandLine, tests []cliTest) {
	t.Helper()
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			if err := cli.run(context.Background(), args); err != nil {
				if tt.wantErr != nil {
					if err != tt.wantErr {
						t.Errorf("cli.run() error = %v, wantErr %v", err, tt.wantErr)
					}
				} else if tt.wantErrStr != "" {
					if err.Error() != tt.wantErrStr {
						t.Errorf("cli.run() error.Error() = %s, wantErrStr %s", err.Error(), tt.wantErrStr)
					}
				} else {
					t.Errorf("cli.run() unexpected error = %v", err)
				}
			} else if tt.wantErr != nil || tt.wantErrStr != "" {
				t.Errorf("cli.run() error = nil, want an error")
			}
		})
	}
}

func Test_commandLine_usage(t *testing.T) {
	cli, _ := setup(t)
	runCLITests(t, cli, []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "widgets without base", args: []string{"widgets", "-ids", "notes"}, wantErr: errHelp},
		{name: "widgets bad flag", args: []string{"widgets", "-lol"}, wantErr: errHelp},
		{name: "bell without user", args: []string{"bell"}, wantErr: errHelp},
		{name: "digest without email", args: []string{"digest", "-user", "u1"}, wantErr: errHelp},
		{name: "digest bad email", args: []string{"digest", "-user", "u1", "-email", "nope"}, wantErrStr: "email: mail: missing '@' or angle-addr"},
	})
}

func Test_commandLine_migrate(t *testing.T) {
	cli, _ := setup(t)
	runCLITests(t, cli, []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "down-to: no args", args: []string{"migrate", "down-to"}, wantErrStr: "down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}},
		{name: "down", args: []string{"migrate", "down"}},
		{name: "down-to", args: []string{"migrate", "down-to", "1"}},
		{name: "redo", args: []string{"migrate", "redo"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "version", args: []string{"migrate", "version"}},
	})
}

func Test_commandLine_widgets(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/dashboard/widgets/" + widget.QuickStatsID:
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"totalPapers": 3, "totalNotes": 9}`))
		default:
			http.Error(w, "boom", http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	cli, out := setup(t)
	err := cli.run(context.Background(), []string{"admin", "widgets", "-base", srv.URL, "-ids", "quick-stats, notes"})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "WIDGET"))
	assert.True(t, strings.HasPrefix(lines[1], "notes "), lines[1])
	assert.Contains(t, lines[1], "mock")
	assert.True(t, strings.HasPrefix(lines[2], "quick-stats "), lines[2])
	assert.Contains(t, lines[2], "api")
}

func Test_commandLine_widgetsWatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"totalPapers": 3}`))
	}))
	defer srv.Close()

	cli, out := setup(t)
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	err := cli.run(ctx, []string{"admin", "widgets", "-base", srv.URL, "-ids", "quick-stats", "-watch", "-interval", "20ms"})
	require.NoError(t, err)
	assert.Greater(t, strings.Count(out.String(), "quick-stats"), 1, "refreshes are printed")
}

func seed(t *testing.T, repo notification.Repository) {
	t.Helper()
	require.NoError(t, repo.CreateNotification(context.Background(), &notification.Notification{
		UserID: "u1", Type: "review", Title: "Chapter 2 reviewed", Message: "See comments",
	}))
}

func Test_commandLine_bell(t *testing.T) {
	type bellTest struct {
		name     string
		args     []string
		terminal bool
		wantJSON bool
	}

	tests := []bellTest{
		{name: "piped output is JSON", args: []string{"bell", "-user", "u1"}, wantJSON: true},
		{name: "terminal output is a table", args: []string{"bell", "-user", "u1"}, terminal: true},
		{name: "forced JSON on a terminal", args: []string{"bell", "-user", "u1", "-json"}, terminal: true, wantJSON: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cli, out := setup(t)
			seed(t, cli.repo)
			cli.isTerminal = func() bool { return tt.terminal }

			require.NoError(t, cli.run(context.Background(), append([]string{"admin"}, tt.args...)))

			if tt.wantJSON {
				var snap notification.Snapshot
				require.NoError(t, json.Unmarshal(out.Bytes(), &snap))
				assert.Equal(t, 1, snap.Badge)
				return
			}
			assert.Contains(t, out.String(), `Unread: 1 (badge "1")`)
			assert.Contains(t, out.String(), "Chapter 2 reviewed")
		})
	}
}

func Test_commandLine_digest(t *testing.T) {
	type digestTest struct {
		name     string
		seed     bool
		wantSent int
		wantOut  string
	}

	tests := []digestTest{
		{name: "nothing unread", wantOut: "Nothing unread; no digest sent."},
		{name: "unread items", seed: true, wantSent: 1, wantOut: "Digest sent to <ana@example.com>"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			emailsvc.ClearSentMessages()
			cli, out := setup(t)
			if tt.seed {
				seed(t, cli.repo)
			}

			err := cli.run(context.Background(), []string{"admin", "digest", "-user", "u1", "-email", "ana@example.com"})
			require.NoError(t, err)

			assert.Contains(t, out.String(), tt.wantOut)
			if len(emailsvc.SentMessages) != tt.wantSent {
				t.Errorf("digest sent %v emails; want %v", len(emailsvc.SentMessages), tt.wantSent)
			}
		})
	}
}
