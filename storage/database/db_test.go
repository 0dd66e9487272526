package database

import (
	"io/fs"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zerlake/thesisai-philippines-sub009/core"
)

func TestDSN(t *testing.T) {
	conf := new(core.Config)
	conf.Database.Engine = "postgres"
	conf.Database.Host = "db"
	conf.Database.Port = "5432"
	conf.Database.User = "app"
	conf.Database.Password = "s3cret"
	conf.Database.AdminUser = "root"
	conf.Database.AdminPassword = "r00t"

	type dsnTest struct {
		name       string
		admin      bool
		disableTLS bool
		wantUser   string
		wantSSL    string
	}

	tests := []dsnTest{
		{name: "app user", wantUser: "app", wantSSL: "require"},
		{name: "admin user", admin: true, wantUser: "root", wantSSL: "require"},
		{name: "no tls", disableTLS: true, wantUser: "app", wantSSL: "disable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conf.Database.DisableTLS = tt.disableTLS
			u, err := url.Parse(DSN("thesisai", tt.admin, conf))
			require.NoError(t, err)

			assert.Equal(t, "postgres", u.Scheme)
			assert.Equal(t, "db:5432", u.Host)
			assert.Equal(t, "/thesisai", u.Path)
			if got := u.User.Username(); got != tt.wantUser {
				t.Errorf("DSN() user = %q; want %q", got, tt.wantUser)
			}
			assert.Equal(t, tt.wantSSL, u.Query().Get("sslmode"))
			assert.Equal(t, "utc", u.Query().Get("timezone"))
		})
	}
}

func TestMigrations(t *testing.T) {
	files, err := fs.Glob(migrations, "migrations/*.sql")
	require.NoError(t, err)
	require.Len(t, files, 3)

	for _, fp := range files {
		body, err := fs.ReadFile(migrations, fp)
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(string(body), "-- +goose Up"), fp)
		assert.Contains(t, string(body), "-- +goose Down", fp)
	}
}
