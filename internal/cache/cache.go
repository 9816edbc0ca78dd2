package cache

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/sync/singleflight"

	"github.com/mr1hm/go-dam-alerts/internal/feed"
	"github.com/mr1hm/go-dam-alerts/internal/models"
)

// Fetcher retrieves a fresh copy of the feed.
type Fetcher interface {
	Fetch(ctx context.Context) (*models.FeedSnapshot, error)
}

type Options struct {
	MaxAge time.Duration
	// Timeout bounds a shared refresh, which runs detached from the
	// caller that started it.
	Timeout         time.Duration
	BreakerFailures uint32
	BreakerCooldown time.Duration
	Now             func() time.Time
}

// Cache holds the latest feed snapshot and refreshes it once it is older
// than the staleness window. When a refresh fails the previous snapshot
// keeps being served.
type Cache struct {
	fetcher Fetcher
	opts    Options
	breaker *gobreaker.CircuitBreaker
	group   singleflight.Group

	current  atomic.Pointer[models.FeedSnapshot]
	degraded atomic.Bool

	mu      sync.Mutex
	lastErr error
}

func New(fetcher Fetcher, opts Options) *Cache {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.BreakerFailures == 0 {
		opts.BreakerFailures = 5
	}

	c := &Cache{
		fetcher: fetcher,
		opts:    opts,
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "dam-feed",
		MaxRequests: 1,
		Timeout:     opts.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= opts.BreakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("feed circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
		},
	})
	return c
}

func (c *Cache) Get(ctx context.Context) (*models.FeedSnapshot, error) {
	return c.GetWithMaxAge(ctx, c.opts.MaxAge)
}

// GetWithMaxAge returns the cached snapshot if it is at most maxAge old,
// refreshing it otherwise.
func (c *Cache) GetWithMaxAge(ctx context.Context, maxAge time.Duration) (*models.FeedSnapshot, error) {
	if snap := c.fresh(maxAge); snap != nil {
		return snap, nil
	}
	return c.refresh(ctx, maxAge, false)
}

// Refresh fetches regardless of the snapshot's age.
func (c *Cache) Refresh(ctx context.Context) (*models.FeedSnapshot, error) {
	return c.refresh(ctx, 0, true)
}

func (c *Cache) fresh(maxAge time.Duration) *models.FeedSnapshot {
	if snap := c.current.Load(); snap != nil && c.opts.Now().Sub(snap.FetchedAt) <= maxAge {
		return snap
	}
	return nil
}

func (c *Cache) refresh(ctx context.Context, maxAge time.Duration, force bool) (*models.FeedSnapshot, error) {
	ch := c.group.DoChan("feed", func() (interface{}, error) {
		// A flight that finished after this caller saw a stale snapshot
		// may already have stored a fresh one.
		if !force {
			if snap := c.fresh(maxAge); snap != nil {
				return snap, nil
			}
		}
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.opts.Timeout)
		defer cancel()
		return c.fetch(fetchCtx)
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		if prev := c.current.Load(); prev != nil {
			return prev, nil
		}
		kind := feed.KindNetwork
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			kind = feed.KindTimeout
		}
		return nil, &feed.FetchError{Kind: kind, Err: ctx.Err()}
	}

	if res.Err == nil {
		return res.Val.(*models.FeedSnapshot), nil
	}
	if prev := c.current.Load(); prev != nil {
		return prev, nil
	}
	return nil, res.Err
}

// fetch runs at most once at a time through the singleflight group.
func (c *Cache) fetch(ctx context.Context) (*models.FeedSnapshot, error) {
	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.fetcher.Fetch(ctx)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			err = &feed.FetchError{Kind: feed.KindNetwork, Err: err}
		}
		c.setErr(err)
		if prev := c.current.Load(); prev != nil {
			c.degraded.Store(true)
			slog.Warn("feed refresh failed, serving stale snapshot",
				"error", err,
				"fetched_at", prev.FetchedAt,
				"age", c.opts.Now().Sub(prev.FetchedAt).Round(time.Second).String(),
			)
		} else {
			slog.Error("feed refresh failed, no snapshot available", "error", err)
		}
		return nil, err
	}

	snap := result.(*models.FeedSnapshot)
	c.current.Store(snap)
	c.degraded.Store(false)
	c.setErr(nil)
	slog.Info("feed snapshot refreshed", "dams", snap.Len(), "fetched_at", snap.FetchedAt)
	return snap, nil
}

func (c *Cache) setErr(err error) {
	c.mu.Lock()
	c.lastErr = err
	c.mu.Unlock()
}

type Status struct {
	FetchedAt    time.Time
	Age          time.Duration
	DamCount     int
	Degraded     bool
	LastError    string
	BreakerState string
}

func (c *Cache) Status() Status {
	st := Status{
		Degraded:     c.degraded.Load(),
		BreakerState: c.breaker.State().String(),
	}
	if snap := c.current.Load(); snap != nil {
		st.FetchedAt = snap.FetchedAt
		st.Age = c.opts.Now().Sub(snap.FetchedAt)
		st.DamCount = snap.Len()
	}
	c.mu.Lock()
	if c.lastErr != nil {
		st.LastError = c.lastErr.Error()
	}
	c.mu.Unlock()
	return st
}
