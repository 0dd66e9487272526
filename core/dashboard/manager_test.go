package dashboard_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zerlake/thesisai-philippines-sub009/core/apierr"
	"github.com/zerlake/thesisai-philippines-sub009/core/dashboard"
	"github.com/zerlake/thesisai-philippines-sub009/core/widget"
	"github.com/zerlake/thesisai-philippines-sub009/tests"
)

type fixture struct {
	srv      *httptest.Server
	calls    map[string]*int64
	manager  *dashboard.Manager
	clock    clockwork.FakeClock
	errors   *apierr.Handler
	logger   *testutil.Logger
	registry *prometheus.Registry
}

// newFixture serves `payloads` at /api/dashboard/widgets/{id}; a handler may replace the default one.
func newFixture(t *testing.T, payloads map[string]string, handler http.HandlerFunc) *fixture {
	t.Helper()
	f := &fixture{
		calls:    make(map[string]*int64),
		clock:    clockwork.NewFakeClock(),
		logger:   testutil.NewLogger(),
		registry: prometheus.NewRegistry(),
	}
	for id := range payloads {
		f.calls[id] = new(int64)
	}

	if handler == nil {
		handler = func(w http.ResponseWriter, r *http.Request) {
			id := strings.TrimPrefix(r.URL.Path, "/api/dashboard/widgets/")
			body, ok := payloads[id]
			if !ok {
				http.NotFound(w, r)
				return
			}
			atomic.AddInt64(f.calls[id], 1)
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(body))
		}
	}
	f.srv = httptest.NewServer(handler)
	t.Cleanup(f.srv.Close)

	reg, err := widget.NewRegistry(f.logger)
	require.NoError(t, err)
	f.errors = apierr.NewHandler(f.logger, apierr.WithClock(f.clock))
	f.manager = dashboard.NewManager(dashboard.Options{
		BaseURL:  f.srv.URL,
		Registry: reg,
		Errors:   f.errors,
		Logger:   f.logger,
		Clock:    f.clock,
		Metrics:  f.registry,
	})
	return f
}

func (f *fixture) callCount(id string) int64 {
	return atomic.LoadInt64(f.calls[id])
}

func TestManager_FetchValid(t *testing.T) {
	f := newFixture(t, map[string]string{
		widget.ResearchProgressID: `{"papersRead": 12, "notesCreated": 4, "researchAccuracy": 88}`,
	}, nil)

	d := f.manager.Fetch(context.Background(), widget.ResearchProgressID, nil)
	assert.Equal(t, dashboard.SourceAPI, d.Source)
	assert.True(t, d.IsValid)
	assert.Empty(t, d.ValidationErrors)
	progress, ok := d.Data.(*widget.ResearchProgress)
	require.True(t, ok)
	assert.Equal(t, 12, progress.PapersRead)
	assert.Equal(t, "month", progress.Period)
	assert.Empty(t, f.errors.ErrorLog())
	assert.Equal(t, f.clock.Now(), d.LastUpdated)
}

func TestManager_FetchInvalid(t *testing.T) {
	f := newFixture(t, map[string]string{
		widget.ResearchProgressID: `{"papersRead": "not-a-number", "notesCreated": 2}`,
	}, nil)

	d := f.manager.Fetch(context.Background(), widget.ResearchProgressID, nil)
	assert.Equal(t, dashboard.SourceAPI, d.Source)
	assert.False(t, d.IsValid)
	require.NotEmpty(t, d.ValidationErrors)
	assert.Contains(t, strings.Join(d.ValidationErrors, "\n"), "papersRead")
	require.NotNil(t, d.Data)
	assert.Equal(t, 2, d.Data.(*widget.ResearchProgress).NotesCreated)
	assert.NotEmpty(t, f.logger.Entries("warn"))
}

func TestManager_FetchTimeout(t *testing.T) {
	f := newFixture(t, nil, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	})

	d := f.manager.Fetch(context.Background(), widget.NotesID, &dashboard.Config{Timeout: 20 * time.Millisecond})
	assert.Equal(t, dashboard.SourceMock, d.Source)
	assert.True(t, d.IsValid)
	assert.NotNil(t, d.Data)

	log := f.errors.ErrorLog()
	require.NotEmpty(t, log)
	assert.Equal(t, apierr.KindTimeout, log[0].Err.Kind)
	assert.Equal(t, widget.NotesID, log[0].Context.WidgetID)
	assert.Error(t, f.manager.LoadingState().Errors[widget.NotesID])
	assert.Equal(t, 1.0, counterValue(t, f.registry, "dashboard_widget_errors_total"))
}

func TestManager_FetchHTTPError(t *testing.T) {
	f := newFixture(t, nil, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	d := f.manager.Fetch(context.Background(), widget.CalendarID, nil)
	assert.Equal(t, dashboard.SourceMock, d.Source)
	log := f.errors.ErrorLog()
	require.Len(t, log, 1)
	assert.Equal(t, apierr.KindServer, log[0].Err.Kind)
	assert.Equal(t, http.StatusServiceUnavailable, log[0].Err.StatusCode)
}

func TestManager_CacheWithinTTL(t *testing.T) {
	f := newFixture(t, map[string]string{
		widget.QuickStatsID: `{"stats": [{"label": "Words", "value": "1K"}]}`,
	}, nil)

	first := f.manager.Fetch(context.Background(), widget.QuickStatsID, nil)
	second := f.manager.Fetch(context.Background(), widget.QuickStatsID, nil)
	assert.Equal(t, dashboard.SourceAPI, first.Source)
	assert.Equal(t, dashboard.SourceCache, second.Source)
	assert.Equal(t, int64(1), f.callCount(widget.QuickStatsID))

	stats := f.manager.CacheStats()
	assert.Equal(t, 1, stats.Size)
	assert.Equal(t, []string{widget.QuickStatsID}, stats.Keys)
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
}

func TestManager_CacheTTLBoundary(t *testing.T) {
	f := newFixture(t, map[string]string{widget.NotesID: `{"notes": []}`}, nil)
	ctx := context.Background()
	ttl := time.Minute
	cfg := &dashboard.Config{TTL: ttl}

	f.manager.Fetch(ctx, widget.NotesID, cfg)
	f.clock.Advance(ttl)
	assert.Equal(t, dashboard.SourceCache, f.manager.Fetch(ctx, widget.NotesID, cfg).Source, "read at T+D")
	assert.Equal(t, int64(1), f.callCount(widget.NotesID))

	f.clock.Advance(time.Millisecond)
	assert.Equal(t, dashboard.SourceAPI, f.manager.Fetch(ctx, widget.NotesID, cfg).Source, "read at T+D+ε")
	assert.Equal(t, int64(2), f.callCount(widget.NotesID))
}

func TestManager_InvalidateCache(t *testing.T) {
	f := newFixture(t, map[string]string{
		widget.NotesID:  `{"notes": []}`,
		widget.TrendsID: `{"trends": []}`,
	}, nil)
	ctx := context.Background()

	f.manager.FetchMultiple(ctx, []string{widget.NotesID, widget.TrendsID}, nil)
	f.manager.InvalidateCache(widget.NotesID)
	assert.NotEqual(t, dashboard.SourceCache, f.manager.Fetch(ctx, widget.NotesID, nil).Source)
	assert.Equal(t, dashboard.SourceCache, f.manager.Fetch(ctx, widget.TrendsID, nil).Source)

	f.manager.InvalidateCache()
	assert.Equal(t, 0, f.manager.CacheStats().Size)
	assert.NotEqual(t, dashboard.SourceCache, f.manager.Fetch(ctx, widget.TrendsID, nil).Source)
}

func TestManager_Strategies(t *testing.T) {
	var fail int32
	f := newFixture(t, nil, func(w http.ResponseWriter, r *http.Request) {
		if atomic.LoadInt32(&fail) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(`{"suggestions": []}`))
	})
	ctx := context.Background()

	d := f.manager.Fetch(ctx, widget.NotesID, &dashboard.Config{Strategy: dashboard.CacheOnly})
	assert.Equal(t, dashboard.SourceMock, d.Source, "cache-only without cache")
	assert.Empty(t, f.errors.ErrorLog())
	assert.Equal(t, dashboard.ErrNoCachedData, f.manager.LoadingState().Errors[widget.NotesID])

	// suggestions is network-first
	d = f.manager.Fetch(ctx, widget.SuggestionsID, nil)
	assert.Equal(t, dashboard.SourceAPI, d.Source)
	d = f.manager.Fetch(ctx, widget.SuggestionsID, nil)
	assert.Equal(t, dashboard.SourceAPI, d.Source, "network-first skips a fresh cache")

	atomic.StoreInt32(&fail, 1)
	d = f.manager.Fetch(ctx, widget.SuggestionsID, nil)
	assert.Equal(t, dashboard.SourceCache, d.Source, "network-first falls back to cache")
	assert.Empty(t, f.errors.ErrorLog())

	d = f.manager.Fetch(ctx, widget.SuggestionsID, &dashboard.Config{Strategy: dashboard.NetworkOnly})
	assert.Equal(t, dashboard.SourceMock, d.Source)
	assert.Len(t, f.errors.ErrorLog(), 1)

	d = f.manager.Fetch(ctx, widget.SuggestionsID, &dashboard.Config{Strategy: dashboard.CacheOnly})
	assert.Equal(t, dashboard.SourceCache, d.Source)
}

func TestManager_Deduplication(t *testing.T) {
	var calls int64
	release := make(chan struct{})
	f := newFixture(t, nil, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&calls, 1)
		<-release
		_, _ = w.Write([]byte(`{"goals": []}`))
	})

	const n = 8
	var wg sync.WaitGroup
	results := make([]dashboard.WidgetData, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = f.manager.Fetch(context.Background(), widget.WritingGoalsID, &dashboard.Config{Strategy: dashboard.NetworkOnly})
		}(i)
	}

	require.Eventually(t, func() bool { return atomic.LoadInt64(&calls) == 1 }, time.Second, time.Millisecond)
	// let the other callers join the in-flight request
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int64(1), atomic.LoadInt64(&calls))
	for _, d := range results {
		assert.Equal(t, dashboard.SourceAPI, d.Source)
	}
}

func TestManager_DeduplicationCallerCancel(t *testing.T) {
	var calls int64
	release := make(chan struct{})
	f := newFixture(t, nil, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&calls, 1)
		<-release
		_, _ = w.Write([]byte(`{"goals": []}`))
	})
	networkOnly := &dashboard.Config{Strategy: dashboard.NetworkOnly}

	ctxA, cancelA := context.WithCancel(context.Background())
	defer cancelA()
	gotA := make(chan dashboard.WidgetData)
	go func() { gotA <- f.manager.Fetch(ctxA, widget.WritingGoalsID, networkOnly) }()
	require.Eventually(t, func() bool { return atomic.LoadInt64(&calls) == 1 }, time.Second, time.Millisecond)

	gotB := make(chan dashboard.WidgetData)
	go func() { gotB <- f.manager.Fetch(context.Background(), widget.WritingGoalsID, networkOnly) }()
	// let the second caller join the in-flight request
	time.Sleep(50 * time.Millisecond)

	cancelA()
	select {
	case d := <-gotA:
		assert.Equal(t, dashboard.SourceMock, d.Source, "the cancelled caller falls back")
	case <-time.After(2 * time.Second):
		t.Fatal("Fetch() did not return after its context was cancelled")
	}

	close(release)
	select {
	case d := <-gotB:
		if d.Source != dashboard.SourceAPI {
			t.Errorf("Fetch() source = %v; want %v", d.Source, dashboard.SourceAPI)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Fetch() of the second caller did not return")
	}
	assert.Equal(t, int64(1), atomic.LoadInt64(&calls))
	assert.Len(t, f.errors.ErrorLog(), 1)
}

func TestManager_UserScope(t *testing.T) {
	f := newFixture(t, nil, func(w http.ResponseWriter, r *http.Request) {
		switch r.Header.Get(dashboard.UserHeader) {
		case "u1":
			_, _ = w.Write([]byte(`{"totalPapers": 1}`))
		case "u2":
			_, _ = w.Write([]byte(`{"totalPapers": 2}`))
		default:
			_, _ = w.Write([]byte(`{"totalPapers": 0}`))
		}
	})

	var notified int64
	f.manager.Subscribe(widget.QuickStatsID, func(dashboard.WidgetData) { atomic.AddInt64(&notified, 1) })

	type scopeTest struct {
		name       string
		userID     string
		wantPapers int
	}

	tests := []scopeTest{
		{name: "first user", userID: "u1", wantPapers: 1},
		{name: "second user", userID: "u2", wantPapers: 2},
		{name: "unscoped", wantPapers: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			if tt.userID != "" {
				ctx = dashboard.WithUser(ctx, tt.userID)
			}
			for _, wantSource := range []dashboard.Source{dashboard.SourceAPI, dashboard.SourceCache} {
				d := f.manager.Fetch(ctx, widget.QuickStatsID, nil)
				require.Equal(t, wantSource, d.Source)
				if got := d.Data.(*widget.QuickStats).TotalPapers; got != tt.wantPapers {
					t.Errorf("Fetch() totalPapers = %v; want %v", got, tt.wantPapers)
				}
			}
		})
	}

	assert.Equal(t, int64(1), atomic.LoadInt64(&notified), "only unscoped data reaches subscribers")
	assert.Equal(t, 3, f.manager.CacheStats().Size)
	f.manager.InvalidateCache(widget.QuickStatsID)
	assert.Equal(t, 0, f.manager.CacheStats().Size)
}

func TestManager_CancelRequests(t *testing.T) {
	started := make(chan struct{})
	f := newFixture(t, nil, func(w http.ResponseWriter, r *http.Request) {
		close(started)
		<-r.Context().Done()
	})

	done := make(chan dashboard.WidgetData)
	go func() {
		done <- f.manager.Fetch(context.Background(), widget.CitationsID, nil)
	}()
	<-started
	assert.True(t, f.manager.LoadingState().Loading[widget.CitationsID])
	f.manager.CancelRequests(widget.CitationsID)

	select {
	case d := <-done:
		assert.Equal(t, dashboard.SourceMock, d.Source)
	case <-time.After(2 * time.Second):
		t.Fatal("Fetch() did not return after CancelRequests()")
	}
	state := f.manager.LoadingState()
	assert.False(t, state.Loading[widget.CitationsID])
	assert.Equal(t, 100, state.Progress)
}

func TestManager_Subscribe(t *testing.T) {
	f := newFixture(t, map[string]string{widget.CollaborationID: `{"teamMembers": []}`}, nil)

	var (
		mu  sync.Mutex
		got []dashboard.Source
	)
	unsubscribe := f.manager.Subscribe(widget.CollaborationID, func(d dashboard.WidgetData) {
		mu.Lock()
		got = append(got, d.Source)
		mu.Unlock()
	})
	f.manager.Subscribe(widget.CollaborationID, func(dashboard.WidgetData) { panic("bad subscriber") })

	f.manager.Fetch(context.Background(), widget.CollaborationID, nil)
	pushed := f.manager.Push(widget.CollaborationID, []byte(`{"activeNow": 2}`))
	assert.Equal(t, dashboard.SourceRealtime, pushed.Source)
	assert.True(t, pushed.IsValid)
	assert.Len(t, f.logger.Entries("error"), 2)

	unsubscribe()
	unsubscribe()
	f.manager.Push(widget.CollaborationID, []byte(`{"activeNow": 3}`))

	mu.Lock()
	assert.Equal(t, []dashboard.Source{dashboard.SourceAPI, dashboard.SourceRealtime}, got)
	mu.Unlock()

	cached := f.manager.Fetch(context.Background(), widget.CollaborationID, &dashboard.Config{Strategy: dashboard.CacheOnly})
	assert.Equal(t, 3, cached.Data.(*widget.Collaboration).ActiveNow)
}

func TestManager_Clear(t *testing.T) {
	f := newFixture(t, map[string]string{widget.TimeTrackerID: `{}`}, nil)
	calls := 0
	f.manager.Subscribe(widget.TimeTrackerID, func(dashboard.WidgetData) { calls++ })
	f.manager.Fetch(context.Background(), widget.TimeTrackerID, nil)
	require.Equal(t, 1, calls)

	f.manager.Clear()
	assert.Equal(t, 0, f.manager.CacheStats().Size)
	assert.Empty(t, f.manager.LoadingState().Loading)
	assert.Equal(t, 0, f.manager.LoadingState().Progress)

	f.manager.Fetch(context.Background(), widget.TimeTrackerID, nil)
	assert.Equal(t, 1, calls)
	assert.Equal(t, int64(2), f.callCount(widget.TimeTrackerID))
}

func TestManager_UnknownWidget(t *testing.T) {
	f := newFixture(t, map[string]string{}, nil)
	d := f.manager.Fetch(context.Background(), "nope", nil)
	assert.Equal(t, dashboard.SourceMock, d.Source)
	assert.True(t, d.IsValid)
	assert.Equal(t, map[string]interface{}{}, d.Data)
}

func counterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	mfs, err := reg.Gather()
	require.NoError(t, err)
	var total float64
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.GetMetric() {
			total += metric.GetCounter().GetValue()
		}
	}
	return total
}
