package core

import (
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Debug            bool
	TestMode         bool
	Env              string
	Build            string
	AppName          string
	SecretKey        string
	RollbarToken     string
	SendgridApiKey   string
	DefaultFromEmail mail.Address

	Server struct {
		Host               string
		DebugHost          string
		ShutdownTimeout    time.Duration
		JWTExpirationDelta time.Duration
	}

	Database struct {
		Engine        string
		Host          string
		Port          string
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
	}

	Dashboard struct {
		APIBaseURL    string
		ProviderURL   string // upstream of the server-side widget data; mocks when empty
		WidgetTimeout time.Duration
		DefaultTTL    time.Duration
		SnapshotTTL   time.Duration
	}

	Personalization struct {
		BaseURL string
		Timeout time.Duration
	}

	Bell struct {
		PollInterval time.Duration
	}
}

func (c *Config) setDefaults(v *viper.Viper) {
	v.SetTypeByDefaultValue(true)

	v.SetDefault("debug", true)
	v.SetDefault("build", "dev")
	v.SetDefault("appName", "ThesisAI")
	v.SetDefault("secretKey", "k3*7w(2m9x=q0!zt$8v@p_4he%6j1rn+d5&yb^cu)lsgfa")
	v.SetDefault("defaultFromEmail", "ThesisAI <noreply@localhost>")

	v.SetDefault("serverHost", "0.0.0.0:8000")
	v.SetDefault("serverDebugHost", "0.0.0.0:4000")
	v.SetDefault("serverShutdownTimeout", 5*time.Second)
	v.SetDefault("jwtExpirationDelta", 7*24*time.Hour)

	v.SetDefault("dbEngine", "postgres")
	v.SetDefault("dbHost", "localhost")
	v.SetDefault("dbPort", "5432")
	v.SetDefault("dbName", "thesisai")
	v.SetDefault("dbUser", "thesisai")
	v.SetDefault("dbDisableTLS", true)

	v.SetDefault("dashboardAPIBaseURL", "http://localhost:8000")
	v.SetDefault("dashboardWidgetTimeout", 10*time.Second)
	v.SetDefault("dashboardDefaultTTL", 5*time.Minute)
	v.SetDefault("dashboardSnapshotTTL", time.Hour)
	v.SetDefault("dashboardProviderURL", "")

	v.SetDefault("personalizationBaseURL", "http://localhost:3000/api/personalization")
	v.SetDefault("personalizationTimeout", 30*time.Second)

	v.SetDefault("bellPollInterval", 30*time.Second)
}

// NewConfig loads the configuration from the environment (prefixed with $ENV) and config/.env.<env>.
func NewConfig() *Config {
	v := viper.New()
	conf := new(Config)
	conf.setDefaults(v)

	env := strings.ToUpper(os.Getenv("ENV")) // DEV (local; default), TEST, QA, PROD
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		v.SetDefault("testMode", true)
	}
	v.SetEnvPrefix(env)

	// load .env if it exists (ignore if it does not)
	if wd, err := os.Getwd(); err == nil {
		dotEnvPath := filepath.Join(wd, "config", ".env."+strings.ToLower(env))
		if _, err := os.Stat(dotEnvPath); err == nil {
			if err := godotenv.Load(dotEnvPath); err != nil {
				log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
			}
		} else if !os.IsNotExist(err) {
			log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
		}
	}
	v.AutomaticEnv()

	conf.Debug = v.GetBool("debug")
	conf.TestMode = v.GetBool("testMode")
	conf.Env = env
	conf.Build = v.GetString("build")
	conf.AppName = v.GetString("appName")
	conf.SecretKey = v.GetString("secretKey")
	conf.RollbarToken = v.GetString("rollbarToken")
	conf.SendgridApiKey = v.GetString("sendgridApiKey")
	if addr, err := mail.ParseAddress(v.GetString("defaultFromEmail")); err == nil {
		conf.DefaultFromEmail = *addr
	} else {
		log.Fatalf("config.defaultFromEmail: %v", err)
	}

	conf.Server.Host = v.GetString("serverHost")
	conf.Server.DebugHost = v.GetString("serverDebugHost")
	conf.Server.ShutdownTimeout = v.GetDuration("serverShutdownTimeout")
	conf.Server.JWTExpirationDelta = v.GetDuration("jwtExpirationDelta")

	conf.Database.Engine = v.GetString("dbEngine")
	conf.Database.Host = v.GetString("dbHost")
	conf.Database.Port = v.GetString("dbPort")
	conf.Database.Name = v.GetString("dbName")
	conf.Database.User = v.GetString("dbUser")
	conf.Database.Password = v.GetString("dbPassword")
	conf.Database.AdminUser = v.GetString("dbAdminUser")
	conf.Database.AdminPassword = v.GetString("dbAdminPassword")
	conf.Database.DisableTLS = v.GetBool("dbDisableTLS")

	conf.Dashboard.APIBaseURL = v.GetString("dashboardAPIBaseURL")
	conf.Dashboard.WidgetTimeout = v.GetDuration("dashboardWidgetTimeout")
	conf.Dashboard.DefaultTTL = v.GetDuration("dashboardDefaultTTL")
	conf.Dashboard.SnapshotTTL = v.GetDuration("dashboardSnapshotTTL")
	conf.Dashboard.ProviderURL = v.GetString("dashboardProviderURL")

	conf.Personalization.BaseURL = v.GetString("personalizationBaseURL")
	conf.Personalization.Timeout = v.GetDuration("personalizationTimeout")

	conf.Bell.PollInterval = v.GetDuration("bellPollInterval")

	if conf.TestMode {
		conf.Database.Name = "test_" + conf.Database.Name
	}
	return conf
}

func (c *Config) DatabaseAddress() string {
	return net.JoinHostPort(c.Database.Host, c.Database.Port)
}
