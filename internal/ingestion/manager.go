package ingestion

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mr1hm/go-dam-alerts/internal/alerting"
	"github.com/mr1hm/go-dam-alerts/internal/config"
	"github.com/mr1hm/go-dam-alerts/internal/models"
	"github.com/mr1hm/go-dam-alerts/internal/repository"
	"github.com/mr1hm/go-dam-alerts/internal/stream"
	"github.com/mr1hm/go-dam-alerts/internal/worker"
)

// Refresher is satisfied by *cache.Cache.
type Refresher interface {
	Refresh(ctx context.Context) (*models.FeedSnapshot, error)
}

// Manager keeps the snapshot cache warm and records alert level changes
// for every new snapshot.
type Manager struct {
	cfg         *config.Config
	cache       Refresher
	repo        repository.AlertRepository
	broadcaster *stream.Broadcaster
	pool        *worker.WorkerPool[*models.Dam]
	wg          sync.WaitGroup
	now         func() time.Time

	// only touched by the poller goroutine
	lastFetchedAt time.Time
}

func NewManager(cfg *config.Config, cache Refresher, repo repository.AlertRepository, broadcaster *stream.Broadcaster) *Manager {
	return &Manager{
		cfg:         cfg,
		cache:       cache,
		repo:        repo,
		broadcaster: broadcaster,
		now:         time.Now,
	}
}

func (m *Manager) Start(ctx context.Context) {
	m.pool = worker.NewWorkerPool("alert-evaluator", m.cfg.Worker.Count, m.cfg.Worker.BufferSize, m.evaluate)
	m.pool.Start(ctx)

	if m.cfg.Feed.PollEnabled {
		m.wg.Add(1)
		go m.runPoller(ctx, m.cfg.Feed.PollInterval)
	}
}

func (m *Manager) runPoller(ctx context.Context, interval time.Duration) {
	defer m.wg.Done()
	slog.Info("starting poller", "interval", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Initial poll
	m.poll(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("poller shutting down")
			return
		case <-ticker.C:
			m.poll(ctx)
		}
	}
}

func (m *Manager) poll(ctx context.Context) {
	slog.Debug("polling feed")

	snap, err := m.cache.Refresh(ctx)
	if err != nil {
		slog.Error("poll failed", "error", err)
		return
	}
	if snap.FetchedAt.Equal(m.lastFetchedAt) {
		// The cache served its previous snapshot; it was already evaluated.
		slog.Debug("snapshot unchanged, skipping evaluation", "fetched_at", snap.FetchedAt)
		return
	}
	m.lastFetchedAt = snap.FetchedAt

	for i := range snap.Dams {
		if !m.pool.Submit(ctx, &snap.Dams[i]) {
			return
		}
	}

	slog.Debug("poll complete", "dams", snap.Len())
}

// evaluate classifies one dam and records a new alert when its severity
// differs from the last recorded one.
func (m *Manager) evaluate(ctx context.Context, d *models.Dam) error {
	r, ok := d.Latest()
	if !ok {
		return nil
	}
	severity := alerting.Classify(d)

	prev, err := m.repo.LatestForDam(ctx, d.ID)
	if err != nil {
		return err
	}
	previous := models.SeverityNone
	if prev != nil {
		previous = prev.Severity
	}
	if severity == previous {
		return nil
	}

	alert := &models.Alert{
		ID:               uuid.NewString(),
		DamID:            d.ID,
		DamName:          d.Name,
		Severity:         severity,
		PreviousSeverity: previous,
		WaterLevel:       r.WaterLevel,
		ReadingDate:      r.Date,
		CreatedAt:        m.now(),
	}
	if err := m.repo.AddAlert(ctx, alert); err != nil {
		return err
	}

	if m.broadcaster != nil && shouldBroadcast(alert) {
		m.broadcaster.Broadcast(alert)
	}

	slog.Info("alert level changed",
		"dam", d.ID,
		"from", previous.String(),
		"to", severity.String(),
		"water_level", r.WaterLevel,
	)
	return nil
}

func (m *Manager) Stop() {
	m.wg.Wait()
	if m.pool != nil {
		m.pool.Stop()
	}
	slog.Info("ingestion manager stopped")
}

// shouldBroadcast returns true for escalations to orange or red.
func shouldBroadcast(a *models.Alert) bool {
	return a.Severity >= models.SeverityOrange && a.Escalated()
}
