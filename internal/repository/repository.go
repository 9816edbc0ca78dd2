package repository

import (
	"context"
	"errors"
	"time"

	"github.com/mr1hm/go-dam-alerts/internal/models"
)

var ErrNotFound = errors.New("not found")

// Filter narrows alert history queries. Zero values mean "no constraint".
type Filter struct {
	Limit       int
	Offset      int
	DamID       string
	Since       *time.Time
	MinSeverity *models.Severity // >= this level (e.g., ORANGE includes ORANGE and RED)
}

// AlertRepository stores severity transitions produced by the poller.
type AlertRepository interface {
	AddAlert(ctx context.Context, a *models.Alert) error
	// LatestForDam returns nil, nil when the dam has no recorded alert.
	LatestForDam(ctx context.Context, damID string) (*models.Alert, error)
	ListAlerts(ctx context.Context, opts Filter) ([]models.Alert, error)
}
