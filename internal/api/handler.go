package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mr1hm/go-dam-alerts/internal/cache"
	"github.com/mr1hm/go-dam-alerts/internal/feed"
	"github.com/mr1hm/go-dam-alerts/internal/models"
	"github.com/mr1hm/go-dam-alerts/internal/query"
	"github.com/mr1hm/go-dam-alerts/internal/repository"
	"github.com/mr1hm/go-dam-alerts/internal/stream"
)

// SnapshotReader is satisfied by *cache.Cache.
type SnapshotReader interface {
	Get(ctx context.Context) (*models.FeedSnapshot, error)
	Status() cache.Status
}

type Handler struct {
	snapshots   SnapshotReader
	queries     *query.Service
	alerts      repository.AlertRepository
	broadcaster *stream.Broadcaster
}

func NewHandler(snapshots SnapshotReader, queries *query.Service, alerts repository.AlertRepository, broadcaster *stream.Broadcaster) *Handler {
	return &Handler{
		snapshots:   snapshots,
		queries:     queries,
		alerts:      alerts,
		broadcaster: broadcaster,
	}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.health)

	api := r.Group("/api")
	api.GET("/dams", h.listDams)
	api.GET("/dams/:id", h.getDam)

	api.GET("/query/list", h.queryList)
	api.GET("/query/dams/:id", h.queryDam)
	api.GET("/query/alerts", h.queryAlerts)
	api.GET("/query/compare", h.queryCompare)

	api.GET("/alerts/history", h.alertHistory)
	api.GET("/alerts/stream", h.alertStream)
}

func (h *Handler) listDams(c *gin.Context) {
	snap, err := h.snapshots.Get(c.Request.Context())
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, damsDocument{Dams: snap.Dams, FetchedAt: snap.FetchedAt})
}

func (h *Handler) getDam(c *gin.Context) {
	snap, err := h.snapshots.Get(c.Request.Context())
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	id := c.Param("id")
	d, ok := snap.Lookup(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": (&query.NotFoundError{ID: id}).Error()})
		return
	}
	c.JSON(http.StatusOK, d)
}

func (h *Handler) queryList(c *gin.Context) {
	h.text(c)(h.queries.ListAll(c.Request.Context()))
}

func (h *Handler) queryDam(c *gin.Context) {
	h.text(c)(h.queries.GetDam(c.Request.Context(), c.Param("id")))
}

func (h *Handler) queryAlerts(c *gin.Context) {
	h.text(c)(h.queries.CheckAlerts(c.Request.Context()))
}

func (h *Handler) queryCompare(c *gin.Context) {
	h.text(c)(h.queries.Compare(c.Request.Context(), c.Query("dam_id"), c.Query("second_dam_id"), c.Query("metric")))
}

// text writes a rendered query result, or its error as a plain message.
func (h *Handler) text(c *gin.Context) func(string, error) {
	return func(out string, err error) {
		if err != nil {
			c.String(statusFor(err), err.Error())
			return
		}
		c.String(http.StatusOK, out)
	}
}

func (h *Handler) alertHistory(c *gin.Context) {
	filter := repository.Filter{
		Limit: 20, // Default to 20 alerts if limit param not supplied
		DamID: c.Query("dam_id"),
	}

	if s := c.Query("min_severity"); s != "" {
		sev, err := models.ParseSeverity(s)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		filter.MinSeverity = &sev
	}
	if s := c.Query("since"); s != "" {
		t, err := time.Parse("2006-01-02", s)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "since must be a date in YYYY-MM-DD format"})
			return
		}
		filter.Since = &t
	}
	if l := c.Query("limit"); l != "" {
		if lim, err := strconv.Atoi(l); err == nil && lim > 0 && lim <= 500 {
			filter.Limit = lim
		}
	}

	alerts, err := h.alerts.ListAlerts(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "failed to fetch alerts",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"alerts": toAlertDocuments(alerts)})
}

func (h *Handler) alertStream(c *gin.Context) {
	id, ch := h.broadcaster.Subscribe()
	defer h.broadcaster.Unsubscribe(id)

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case a, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent("alert", toAlertDocument(a))
			return true
		}
	})
}

func (h *Handler) health(c *gin.Context) {
	st := h.snapshots.Status()

	status := "ok"
	if st.Degraded {
		status = "degraded"
	}

	feedStatus := gin.H{
		"dams":          st.DamCount,
		"degraded":      st.Degraded,
		"breaker_state": st.BreakerState,
	}
	if !st.FetchedAt.IsZero() {
		feedStatus["fetched_at"] = st.FetchedAt
		feedStatus["age_seconds"] = int(st.Age.Seconds())
	}
	if st.LastError != "" {
		feedStatus["last_error"] = st.LastError
	}

	c.JSON(http.StatusOK, gin.H{"status": status, "feed": feedStatus})
}

func statusFor(err error) int {
	var fe *feed.FetchError
	switch {
	case errors.Is(err, query.ErrNotFound), errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, query.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.As(err, &fe):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
