// Package dashboard fetches the data of the dashboard widgets, caching it per
// widget and falling back to mock data whenever the API can't deliver.
package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/zerlake/thesisai-philippines-sub009/core"
	"github.com/zerlake/thesisai-philippines-sub009/core/apierr"
	"github.com/zerlake/thesisai-philippines-sub009/core/widget"
)

type Source string

const (
	SourceAPI      Source = "api"
	SourceCache    Source = "cache"
	SourceMock     Source = "mock"
	SourceRealtime Source = "realtime"
)

var ErrNoCachedData = errors.New("no cached data available")

// UserHeader carries the user a scoped fetch is made for.
const UserHeader = "X-User-ID"

type userKey struct{}

// WithUser scopes the fetches made with ctx to userID: their data is cached
// apart from every other user's and the requests carry UserHeader.
func WithUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userKey{}, userID)
}

func userFrom(ctx context.Context) string {
	userID, _ := ctx.Value(userKey{}).(string)
	return userID
}

func cacheKey(userID, id string) string {
	if userID == "" {
		return id
	}
	return userID + "/" + id
}

// WidgetData is what a fetch returns. When IsValid is false, Data still holds
// whatever could be decoded onto the widget's defaults.
type WidgetData struct {
	WidgetID         string      `json:"widgetId"`
	Data             interface{} `json:"data"`
	LastUpdated      time.Time   `json:"lastUpdated"`
	Source           Source      `json:"source"`
	IsValid          bool        `json:"isValid"`
	ValidationErrors []string    `json:"validationErrors,omitempty"`
}

type LoadingState struct {
	Loading  map[string]bool  `json:"loading"`
	Errors   map[string]error `json:"-"`
	Progress int              `json:"progress"` // 0-100
}

type EntryStats struct {
	WidgetID string        `json:"widgetId"`
	Age      time.Duration `json:"age"`
	TTL      time.Duration `json:"ttl"`
	Size     int           `json:"size"`
	Source   Source        `json:"source"`
}

type CacheStats struct {
	Size    int           `json:"size"`
	Keys    []string      `json:"keys"`
	Hits    int64         `json:"hits"`
	Misses  int64         `json:"misses"`
	MaxAge  time.Duration `json:"maxAge"`
	Entries []EntryStats  `json:"entries"`
}

type cacheEntry struct {
	WidgetID  string
	Data      interface{}
	Timestamp time.Time
	TTL       time.Duration
	Source    Source
	Valid     bool
	Errors    []string
}

type request struct {
	widgetID string
	cancel   context.CancelFunc
}

type Options struct {
	// BaseURL is prepended to relative endpoints.
	BaseURL    string
	HTTPClient *http.Client
	// Header is sent along with every request, e.g. Authorization.
	Header   http.Header
	Registry *widget.Registry
	Errors   *apierr.Handler
	Logger   core.Logger
	Clock    clockwork.Clock
	// Configs replaces DefaultConfigs() when not nil.
	Configs  map[string]Config
	Defaults Config
	Metrics  prometheus.Registerer
}

// Manager orchestrates the widget fetches. It is safe for concurrent use.
type Manager struct {
	baseURL  string
	client   *http.Client
	header   http.Header
	registry *widget.Registry
	errors   *apierr.Handler
	logger   core.Logger
	clock    clockwork.Clock
	configs  map[string]Config
	defaults Config
	metrics  *metrics
	group    singleflight.Group

	hits   int64
	misses int64

	mu          sync.RWMutex
	cache       map[string]*cacheEntry
	loading     map[string]bool
	errs        map[string]error
	inflight    map[string]*request
	subscribers map[string]map[int]func(WidgetData)
	nextSubID   int
}

func NewManager(opts Options) *Manager {
	m := &Manager{
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		client:      opts.HTTPClient,
		header:      opts.Header,
		registry:    opts.Registry,
		errors:      opts.Errors,
		logger:      opts.Logger,
		clock:       opts.Clock,
		configs:     opts.Configs,
		defaults:    opts.Defaults.merge(DefaultConfig),
		metrics:     newMetrics(opts.Metrics),
		cache:       make(map[string]*cacheEntry),
		loading:     make(map[string]bool),
		errs:        make(map[string]error),
		inflight:    make(map[string]*request),
		subscribers: make(map[string]map[int]func(WidgetData)),
	}
	if m.client == nil {
		m.client = &http.Client{}
	}
	if m.clock == nil {
		m.clock = clockwork.NewRealClock()
	}
	if m.configs == nil {
		m.configs = DefaultConfigs()
	}
	if m.errors == nil {
		m.errors = apierr.NewHandler(m.logger, apierr.WithClock(m.clock))
	}
	return m
}

// Fetch returns the data of widget `id`. It never fails: whenever the data
// can't be obtained, the error is recorded and the widget's mock data is returned.
// A ctx made by WithUser fetches and caches the data of that user only.
func (m *Manager) Fetch(ctx context.Context, id string, override *Config) WidgetData {
	cfg := m.config(id, override)
	key := cacheKey(userFrom(ctx), id)

	m.setLoading(id, true)
	defer m.setLoading(id, false)

	if cfg.Strategy == CacheFirst || cfg.Strategy == CacheOnly {
		if d, ok := m.cached(key, id); ok {
			return d
		}
		if cfg.Strategy == CacheOnly {
			m.setError(id, ErrNoCachedData)
			return m.fallback(id)
		}
	}

	d, err := m.fetchShared(ctx, key, id, cfg)
	if err == nil {
		return d
	}

	appErr := apierr.Wrap(err, apierr.Context{WidgetID: id, Endpoint: cfg.Endpoint, Method: http.MethodGet})
	m.setError(id, appErr)
	if cfg.Strategy == NetworkFirst {
		if d, ok := m.cached(key, id); ok {
			m.logger.Debug(fmt.Sprintf("serving cached %s after network failure: %v", id, err))
			return d
		}
	}

	m.errors.Handle(appErr)
	m.metrics.errors.WithLabelValues(id).Inc()
	return m.fallback(id)
}

// FetchMultiple fetches `ids` concurrently.
func (m *Manager) FetchMultiple(ctx context.Context, ids []string, override *Config) map[string]WidgetData {
	var (
		g   errgroup.Group
		mu  sync.Mutex
		out = make(map[string]WidgetData, len(ids))
	)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			d := m.Fetch(ctx, id, override)
			mu.Lock()
			out[id] = d
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// fetchShared lets concurrent fetches of the same widget share one request.
// The request outlives the caller that started it; a caller whose ctx is done
// stops waiting without affecting the others.
func (m *Manager) fetchShared(ctx context.Context, key, id string, cfg Config) (WidgetData, error) {
	ch := m.group.DoChan(key+" "+cfg.Endpoint, func() (interface{}, error) {
		return m.fetchFromAPI(context.WithoutCancel(ctx), key, id, cfg)
	})
	select {
	case <-ctx.Done():
		return WidgetData{}, errors.Wrapf(ctx.Err(), "fetching %s", id)
	case res := <-ch:
		if res.Err != nil {
			return WidgetData{}, res.Err
		}
		return res.Val.(WidgetData), nil
	}
}

func (m *Manager) fetchFromAPI(ctx context.Context, key, id string, cfg Config) (WidgetData, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	req := m.track(key, id, cancel)
	defer m.untrack(key, req)
	userID := userFrom(ctx)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, m.url(cfg.Endpoint), nil)
	if err != nil {
		return WidgetData{}, errors.Wrap(err, "building request")
	}
	for k, vs := range m.header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if userID != "" {
		httpReq.Header.Set(UserHeader, userID)
	}

	m.metrics.fetches.WithLabelValues(id).Inc()
	resp, err := m.client.Do(httpReq)
	if err != nil {
		return WidgetData{}, errors.Wrapf(err, "fetching %s", id)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return WidgetData{}, apierr.FromResponse(resp, apierr.Context{
			WidgetID: id,
			Endpoint: cfg.Endpoint,
			Method:   http.MethodGet,
		})
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return WidgetData{}, errors.Wrapf(err, "reading %s", id)
	}
	if !json.Valid(raw) {
		return WidgetData{}, errors.Errorf("malformed %s payload", id)
	}

	d := m.accept(key, id, raw, cfg.TTL, SourceAPI)
	m.setError(id, nil)
	if userID == "" {
		m.notify(id, d)
	}
	return d, nil
}

// accept validates raw and caches it under key.
func (m *Manager) accept(key, id string, raw []byte, ttl time.Duration, source Source) WidgetData {
	res := m.registry.Validate(id, raw)
	data := res.Data
	if !res.Valid {
		m.logger.Warn(fmt.Sprintf("validation failed for %s: %s", id, strings.Join(res.Errors, "; ")))
		data = m.registry.Coerce(id, raw)
	}

	now := m.clock.Now()
	m.mu.Lock()
	m.cache[key] = &cacheEntry{
		WidgetID:  id,
		Data:      data,
		Timestamp: now,
		TTL:       ttl,
		Source:    source,
		Valid:     res.Valid,
		Errors:    res.Errors,
	}
	m.mu.Unlock()

	return WidgetData{
		WidgetID:         id,
		Data:             data,
		LastUpdated:      now,
		Source:           source,
		IsValid:          res.Valid,
		ValidationErrors: res.Errors,
	}
}

// Push delivers realtime data for widget `id`: it is validated, cached and
// handed to the subscribers.
func (m *Manager) Push(id string, raw []byte) WidgetData {
	d := m.accept(id, id, raw, m.config(id, nil).TTL, SourceRealtime)
	m.setError(id, nil)
	m.notify(id, d)
	return d
}

func (m *Manager) url(endpoint string) string {
	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		return endpoint
	}
	return m.baseURL + endpoint
}

// cached returns the entry under key if it is still fresh, evicting it otherwise.
func (m *Manager) cached(key, id string) (WidgetData, bool) {
	m.mu.Lock()
	entry, ok := m.cache[key]
	if ok && m.clock.Since(entry.Timestamp) > entry.TTL {
		delete(m.cache, key)
		ok = false
	}
	m.mu.Unlock()

	if !ok {
		atomic.AddInt64(&m.misses, 1)
		m.metrics.misses.WithLabelValues(id).Inc()
		return WidgetData{}, false
	}
	atomic.AddInt64(&m.hits, 1)
	m.metrics.hits.WithLabelValues(id).Inc()
	return WidgetData{
		WidgetID:         id,
		Data:             entry.Data,
		LastUpdated:      entry.Timestamp,
		Source:           SourceCache,
		IsValid:          entry.Valid,
		ValidationErrors: entry.Errors,
	}, true
}

func (m *Manager) fallback(id string) WidgetData {
	res := m.registry.Validate(id, m.registry.MockJSON(id))
	data := res.Data
	if data == nil {
		data = m.registry.Mock(id)
	}
	return WidgetData{
		WidgetID:         id,
		Data:             data,
		LastUpdated:      m.clock.Now(),
		Source:           SourceMock,
		IsValid:          res.Valid,
		ValidationErrors: res.Errors,
	}
}

// Subscribe registers fn to receive every fresh data of widget `id`.
// Data fetched for a single user is not delivered. fn runs on the fetching goroutine and must not block.
func (m *Manager) Subscribe(id string, fn func(WidgetData)) (unsubscribe func()) {
	m.mu.Lock()
	subs, ok := m.subscribers[id]
	if !ok {
		subs = make(map[int]func(WidgetData))
		m.subscribers[id] = subs
	}
	m.nextSubID++
	subID := m.nextSubID
	subs[subID] = fn
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			if subs, ok := m.subscribers[id]; ok {
				delete(subs, subID)
				if len(subs) == 0 {
					delete(m.subscribers, id)
				}
			}
		})
	}
}

func (m *Manager) notify(id string, d WidgetData) {
	m.mu.RLock()
	ids := make([]int, 0, len(m.subscribers[id]))
	for subID := range m.subscribers[id] {
		ids = append(ids, subID)
	}
	sort.Ints(ids)
	fns := make([]func(WidgetData), 0, len(ids))
	for _, subID := range ids {
		fns = append(fns, m.subscribers[id][subID])
	}
	m.mu.RUnlock()

	for _, fn := range fns {
		m.call(id, fn, d)
	}
}

func (m *Manager) call(id string, fn func(WidgetData), d WidgetData) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error(fmt.Sprintf("subscriber of %s panicked: %v", id, r))
		}
	}()
	fn(d)
}

func (m *Manager) track(key, id string, cancel context.CancelFunc) *request {
	req := &request{widgetID: id, cancel: cancel}
	m.mu.Lock()
	m.inflight[key] = req
	m.mu.Unlock()
	return req
}

func (m *Manager) untrack(key string, req *request) {
	m.mu.Lock()
	if m.inflight[key] == req {
		delete(m.inflight, key)
	}
	m.mu.Unlock()
}

func idSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

// CancelRequests cancels the in-flight request of the given widgets, or of every widget.
func (m *Manager) CancelRequests(ids ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	set := idSet(ids)
	for key, req := range m.inflight {
		if len(ids) == 0 || set[req.widgetID] {
			req.cancel()
			delete(m.inflight, key)
		}
	}
}

// InvalidateCache drops the cache of the given widgets for every user, or the whole cache.
func (m *Manager) InvalidateCache(ids ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(ids) == 0 {
		m.cache = make(map[string]*cacheEntry)
		return
	}
	set := idSet(ids)
	for key, entry := range m.cache {
		if set[entry.WidgetID] {
			delete(m.cache, key)
		}
	}
}

func (m *Manager) setLoading(id string, loading bool) {
	m.mu.Lock()
	m.loading[id] = loading
	m.mu.Unlock()
}

func (m *Manager) setError(id string, err error) {
	m.mu.Lock()
	if err == nil {
		delete(m.errs, id)
	} else {
		m.errs[id] = err
	}
	m.mu.Unlock()
}

// LoadingState returns a copy of the current loading state.
func (m *Manager) LoadingState() LoadingState {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state := LoadingState{
		Loading: make(map[string]bool, len(m.loading)),
		Errors:  make(map[string]error, len(m.errs)),
	}
	loaded := 0
	for id, l := range m.loading {
		state.Loading[id] = l
		if !l {
			loaded++
		}
	}
	for id, err := range m.errs {
		state.Errors[id] = err
	}
	if len(m.loading) > 0 {
		state.Progress = int(math.Round(float64(loaded) / float64(len(m.loading)) * 100))
	}
	return state
}

func (m *Manager) CacheStats() CacheStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := CacheStats{
		Size:    len(m.cache),
		Keys:    make([]string, 0, len(m.cache)),
		Hits:    atomic.LoadInt64(&m.hits),
		Misses:  atomic.LoadInt64(&m.misses),
		Entries: make([]EntryStats, 0, len(m.cache)),
	}
	for key := range m.cache {
		stats.Keys = append(stats.Keys, key)
	}
	sort.Strings(stats.Keys)
	for _, key := range stats.Keys {
		entry := m.cache[key]
		age := m.clock.Since(entry.Timestamp)
		if age > stats.MaxAge {
			stats.MaxAge = age
		}
		size := 0
		if b, err := json.Marshal(entry.Data); err == nil {
			size = len(b)
		}
		stats.Entries = append(stats.Entries, EntryStats{
			WidgetID: entry.WidgetID,
			Age:      age,
			TTL:      entry.TTL,
			Size:     size,
			Source:   entry.Source,
		})
	}
	return stats
}

// Clear cancels every request and resets the cache, the subscribers and the loading state.
func (m *Manager) Clear() {
	m.CancelRequests()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache = make(map[string]*cacheEntry)
	m.loading = make(map[string]bool)
	m.errs = make(map[string]error)
	m.subscribers = make(map[string]map[int]func(WidgetData))
}
