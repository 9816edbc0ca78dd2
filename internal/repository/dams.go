package repository

import (
	"context"
	"fmt"

	"github.com/mr1hm/go-dam-alerts/internal/models"
)

// SnapshotSource is satisfied by *cache.Cache.
type SnapshotSource interface {
	Get(ctx context.Context) (*models.FeedSnapshot, error)
}

// DamRepository resolves dams against the current feed snapshot.
type DamRepository struct {
	source SnapshotSource
}

func NewDamRepository(source SnapshotSource) *DamRepository {
	return &DamRepository{source: source}
}

// All returns every dam in feed order. The slice belongs to the snapshot
// and must not be modified.
func (r *DamRepository) All(ctx context.Context) ([]models.Dam, error) {
	snap, err := r.source.Get(ctx)
	if err != nil {
		return nil, err
	}
	return snap.Dams, nil
}

func (r *DamRepository) ByID(ctx context.Context, id string) (*models.Dam, error) {
	snap, err := r.source.Get(ctx)
	if err != nil {
		return nil, err
	}
	d, ok := snap.Lookup(id)
	if !ok {
		return nil, fmt.Errorf("dam %q: %w", id, ErrNotFound)
	}
	return d, nil
}

func (r *DamRepository) Latest(d *models.Dam) (models.Reading, bool) {
	return d.Latest()
}
