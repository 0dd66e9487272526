package dashboard

import (
	"fmt"
	"time"

	"github.com/zerlake/thesisai-philippines-sub009/core/widget"
)

type Strategy string

const (
	CacheFirst   Strategy = "cache-first"
	NetworkFirst Strategy = "network-first"
	NetworkOnly  Strategy = "network-only"
	CacheOnly    Strategy = "cache-only"
)

func (s Strategy) Valid() bool {
	switch s {
	case CacheFirst, NetworkFirst, NetworkOnly, CacheOnly:
		return true
	}
	return false
}

// Config describes where and how a widget's data is fetched.
// Zero fields inherit from the next level: per-call override > per-widget > defaults.
// Realtime is a pointer so that an override can switch it off.
type Config struct {
	Endpoint string        `json:"endpoint,omitempty"`
	TTL      time.Duration `json:"ttl,omitempty"`
	Strategy Strategy      `json:"strategy,omitempty"`
	Realtime *bool         `json:"realtime,omitempty"`
	Timeout  time.Duration `json:"timeout,omitempty"`
}

// RealtimeEnabled reports whether the widget accepts realtime pushes.
func (c Config) RealtimeEnabled() bool {
	return c.Realtime != nil && *c.Realtime
}

// Bool returns a pointer to v, for Config.Realtime.
func Bool(v bool) *bool {
	return &v
}

const endpointFormat = "/api/dashboard/widgets/%s"

// DefaultConfig applies to every widget not configured otherwise.
var DefaultConfig = Config{
	TTL:      5 * time.Minute,
	Strategy: CacheFirst,
	Timeout:  10 * time.Second,
}

// DefaultConfigs returns the per-widget configuration of the built-in widgets.
func DefaultConfigs() map[string]Config {
	return map[string]Config{
		widget.ResearchProgressID: {TTL: 5 * time.Minute, Strategy: CacheFirst},
		widget.QuickStatsID:       {TTL: 3 * time.Minute, Strategy: CacheFirst},
		widget.RecentPapersID:     {TTL: 10 * time.Minute, Strategy: CacheFirst},
		widget.WritingGoalsID:     {TTL: 5 * time.Minute, Strategy: CacheFirst},
		widget.CollaborationID:    {TTL: 2 * time.Minute, Strategy: NetworkFirst, Realtime: Bool(true)},
		widget.CalendarID:         {TTL: 10 * time.Minute, Strategy: CacheFirst},
		widget.TrendsID:           {TTL: 15 * time.Minute, Strategy: CacheFirst},
		widget.NotesID:            {TTL: 5 * time.Minute, Strategy: CacheFirst},
		widget.CitationsID:        {TTL: 30 * time.Minute, Strategy: CacheFirst},
		widget.SuggestionsID:      {TTL: 10 * time.Minute, Strategy: NetworkFirst},
		widget.TimeTrackerID:      {TTL: 5 * time.Minute, Strategy: CacheFirst},
		widget.CustomID:           {TTL: 5 * time.Minute, Strategy: CacheFirst},
	}
}

// merge returns c with its zero fields taken from base.
func (c Config) merge(base Config) Config {
	if c.Endpoint == "" {
		c.Endpoint = base.Endpoint
	}
	if c.TTL <= 0 {
		c.TTL = base.TTL
	}
	if !c.Strategy.Valid() {
		c.Strategy = base.Strategy
	}
	if c.Realtime == nil {
		c.Realtime = base.Realtime
	}
	if c.Timeout <= 0 {
		c.Timeout = base.Timeout
	}
	return c
}

func (m *Manager) config(id string, override *Config) Config {
	cfg := m.defaults
	if cfg.Endpoint == "" {
		cfg.Endpoint = fmt.Sprintf(endpointFormat, id)
	}
	if wc, ok := m.configs[id]; ok {
		cfg = wc.merge(cfg)
	}
	if override != nil {
		cfg = override.merge(cfg)
	}
	return cfg
}
