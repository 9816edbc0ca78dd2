package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mr1hm/go-dam-alerts/internal/cache"
	"github.com/mr1hm/go-dam-alerts/internal/feed"
	"github.com/mr1hm/go-dam-alerts/internal/models"
	"github.com/mr1hm/go-dam-alerts/internal/query"
	"github.com/mr1hm/go-dam-alerts/internal/repository"
	"github.com/mr1hm/go-dam-alerts/internal/stream"
)

// stubFetcher serves a fixed set of dams, or fails with err.
type stubFetcher struct {
	mu   sync.Mutex
	dams []models.Dam
	err  error
}

func (f *stubFetcher) Fetch(ctx context.Context) (*models.FeedSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return models.NewFeedSnapshot(f.dams, "test", time.Now()), nil
}

// mockAlertRepo implements repository.AlertRepository for testing
type mockAlertRepo struct {
	alerts     []models.Alert
	lastFilter repository.Filter
}

func (m *mockAlertRepo) AddAlert(ctx context.Context, a *models.Alert) error {
	m.alerts = append(m.alerts, *a)
	return nil
}

func (m *mockAlertRepo) LatestForDam(ctx context.Context, damID string) (*models.Alert, error) {
	return nil, nil
}

func (m *mockAlertRepo) ListAlerts(ctx context.Context, opts repository.Filter) ([]models.Alert, error) {
	m.lastFilter = opts
	results := m.alerts
	if opts.MinSeverity != nil {
		var filtered []models.Alert
		for _, a := range results {
			if a.Severity >= *opts.MinSeverity {
				filtered = append(filtered, a)
			}
		}
		results = filtered
	}
	if opts.Limit > 0 && len(results) > opts.Limit {
		results = results[:opts.Limit]
	}
	return results, nil
}

func testDams() []models.Dam {
	return []models.Dam{
		{
			ID:           "idukki",
			Name:         "Idukki",
			OfficialName: "Idukki Reservoir",
			FRL:          "2403.0",
			BlueLevel:    "2396.0",
			OrangeLevel:  "2400.0",
			RedLevel:     "2403.0",
			Readings:     []models.Reading{{Date: "2024-07-31", WaterLevel: "2401.2", StoragePercentage: "71.2"}},
		},
		{
			ID:          "mullaperiyar",
			Name:        "Mullaperiyar",
			RedLevel:    "N/A",
			OrangeLevel: "N/A",
			BlueLevel:   "N/A",
			Readings:    []models.Reading{{Date: "2024-07-31", WaterLevel: "136.0", StoragePercentage: "N/A"}},
		},
	}
}

type testEnv struct {
	router      *gin.Engine
	fetcher     *stubFetcher
	alerts      *mockAlertRepo
	broadcaster *stream.Broadcaster
}

func setupTestRouter(t *testing.T) *testEnv {
	gin.SetMode(gin.TestMode)

	fetcher := &stubFetcher{dams: testDams()}
	c := cache.New(fetcher, cache.Options{MaxAge: time.Minute, Timeout: time.Second})
	queries := query.NewService(repository.NewDamRepository(c))
	alerts := &mockAlertRepo{}
	broadcaster := stream.NewBroadcaster()
	t.Cleanup(broadcaster.Close)

	router := gin.New()
	NewHandler(c, queries, alerts, broadcaster).RegisterRoutes(router)

	return &testEnv{router: router, fetcher: fetcher, alerts: alerts, broadcaster: broadcaster}
}

func (e *testEnv) get(path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", path, nil)
	e.router.ServeHTTP(w, req)
	return w
}

func TestListDams_ReturnsFeedShape(t *testing.T) {
	env := setupTestRouter(t)

	w := env.get("/api/dams")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	var doc struct {
		Dams []struct {
			ID   string `json:"id"`
			Data []struct {
				WaterLevel string `json:"waterLevel"`
			} `json:"data"`
		} `json:"dams"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &doc); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(doc.Dams) != 2 {
		t.Fatalf("expected 2 dams, got %d", len(doc.Dams))
	}
	if doc.Dams[0].ID != "idukki" || doc.Dams[0].Data[0].WaterLevel != "2401.2" {
		t.Errorf("unexpected first dam: %+v", doc.Dams[0])
	}
}

func TestGetDam(t *testing.T) {
	env := setupTestRouter(t)

	w := env.get("/api/dams/mullaperiyar")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	var d models.Dam
	if err := json.Unmarshal(w.Body.Bytes(), &d); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if d.Name != "Mullaperiyar" || len(d.Readings) != 1 {
		t.Errorf("unexpected dam: %+v", d)
	}

	w = env.get("/api/dams/nonexistent")
	if w.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", w.Code)
	}
}

func TestQueryEndpoints(t *testing.T) {
	env := setupTestRouter(t)

	tests := []struct {
		path   string
		status int
		want   string
	}{
		{"/api/query/list", http.StatusOK, "• Idukki (idukki): 2401.2m (71.2% full)"},
		{"/api/query/dams/idukki", http.StatusOK, "**WARNING**"},
		{"/api/query/dams/nope", http.StatusNotFound, "No data found for dam ID: nope"},
		{"/api/query/alerts", http.StatusOK, "Idukki is at ORANGE alert level"},
		{"/api/query/compare?dam_id=idukki&second_dam_id=mullaperiyar&metric=storagePercentage", http.StatusOK, "Unable to calculate numerical difference"},
		{"/api/query/compare?dam_id=idukki&metric=inflow", http.StatusBadRequest, "second_dam_id"},
		{"/api/query/compare?dam_id=idukki&second_dam_id=nope&metric=inflow", http.StatusNotFound, "nope"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w := env.get(tt.path)
			if w.Code != tt.status {
				t.Errorf("expected status %d, got %d", tt.status, w.Code)
			}
			if !strings.Contains(w.Body.String(), tt.want) {
				t.Errorf("expected %q in body, got %q", tt.want, w.Body.String())
			}
		})
	}
}

func TestQuery_FeedUnavailable(t *testing.T) {
	env := setupTestRouter(t)
	env.fetcher.err = &feed.FetchError{Kind: feed.KindNetwork, Err: errors.New("connection refused")}

	w := env.get("/api/query/list")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "dam feed unavailable") {
		t.Errorf("expected descriptive message, got %q", w.Body.String())
	}
}

func TestAlertHistory(t *testing.T) {
	env := setupTestRouter(t)
	env.alerts.alerts = []models.Alert{
		{ID: "1", DamID: "idukki", Severity: models.SeverityRed, PreviousSeverity: models.SeverityOrange},
		{ID: "2", DamID: "kakki", Severity: models.SeverityBlue},
	}

	w := env.get("/api/alerts/history?min_severity=orange&dam_id=idukki&limit=5")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	var resp struct {
		Alerts []alertDocument `json:"alerts"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(resp.Alerts) != 1 || resp.Alerts[0].Severity != "red" || resp.Alerts[0].PreviousSeverity != "orange" {
		t.Errorf("unexpected alerts: %+v", resp.Alerts)
	}
	if env.alerts.lastFilter.DamID != "idukki" || env.alerts.lastFilter.Limit != 5 {
		t.Errorf("unexpected filter: %+v", env.alerts.lastFilter)
	}

	w = env.get("/api/alerts/history?min_severity=purple")
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400 for unknown severity, got %d", w.Code)
	}

	w = env.get("/api/alerts/history?since=2024-07-30")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if since := env.alerts.lastFilter.Since; since == nil || !since.Equal(time.Date(2024, 7, 30, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected since filter: %v", since)
	}

	w = env.get("/api/alerts/history?since=yesterday")
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400 for malformed since, got %d", w.Code)
	}
}

// closeNotifyingRecorder adds http.CloseNotifier, which gin's Stream requires.
type closeNotifyingRecorder struct {
	*httptest.ResponseRecorder
	closed chan bool
}

func (r *closeNotifyingRecorder) CloseNotify() <-chan bool {
	return r.closed
}

func TestAlertStream(t *testing.T) {
	env := setupTestRouter(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w := &closeNotifyingRecorder{ResponseRecorder: httptest.NewRecorder(), closed: make(chan bool, 1)}
	req, _ := http.NewRequestWithContext(ctx, "GET", "/api/alerts/stream", nil)

	done := make(chan struct{})
	go func() {
		env.router.ServeHTTP(w, req)
		close(done)
	}()

	// Wait for the handler to subscribe before broadcasting.
	deadline := time.Now().Add(time.Second)
	for env.broadcaster.SubscriberCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	env.broadcaster.Broadcast(&models.Alert{ID: "a1", DamID: "idukki", Severity: models.SeverityRed})

	// Closing the broadcaster ends the stream.
	time.Sleep(20 * time.Millisecond)
	env.broadcaster.Close()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("stream did not end after broadcaster closed")
	}

	body := w.Body.String()
	if !strings.Contains(body, "event:alert") || !strings.Contains(body, `"dam_id":"idukki"`) {
		t.Errorf("unexpected stream body: %q", body)
	}
}

func TestHealth(t *testing.T) {
	env := setupTestRouter(t)

	// Populate the cache first.
	env.get("/api/dams")

	w := env.get("/health")
	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}

	var resp struct {
		Status string         `json:"status"`
		Feed   map[string]any `json:"feed"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)

	if resp.Status != "ok" {
		t.Errorf("expected status ok, got %s", resp.Status)
	}
	if resp.Feed["dams"] != float64(2) {
		t.Errorf("expected 2 dams in feed status, got %v", resp.Feed["dams"])
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RateLimitMiddleware(1, "/health"))
	router.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/api/dams", func(c *gin.Context) { c.Status(http.StatusOK) })

	do := func(path string) int {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", path, nil)
		router.ServeHTTP(w, req)
		return w.Code
	}

	if code := do("/api/dams"); code != http.StatusOK {
		t.Errorf("expected first request allowed, got %d", code)
	}
	if code := do("/api/dams"); code != http.StatusTooManyRequests {
		t.Errorf("expected second request limited, got %d", code)
	}
	for i := 0; i < 3; i++ {
		if code := do("/health"); code != http.StatusOK {
			t.Errorf("expected exempt path allowed, got %d", code)
		}
	}
}
