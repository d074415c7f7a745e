package api

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/okian/dashboard-api/internal/domain/analytics"
	"github.com/okian/dashboard-api/internal/domain/model"
)

type recentSignupsResponse struct {
	Signups []analytics.RecentSignup `json:"signups"`
}

type dailyResponse struct {
	EventType model.EventType        `json:"event_type"`
	Days      []analytics.DailyCount `json:"days"`
}

// AnalyticsHandler serves per-deployment dashboard queries.
type AnalyticsHandler struct {
	deps           Dependencies
	maxRecentLimit int
}

// NewAnalyticsHandler creates a new analytics handler.
func NewAnalyticsHandler(deps Dependencies, maxRecentLimit int) *AnalyticsHandler {
	if maxRecentLimit <= 0 {
		maxRecentLimit = defaultMaxRecentLimit
	}
	return &AnalyticsHandler{deps: deps, maxRecentLimit: maxRecentLimit}
}

// HandleStats handles GET /deployments/{deployment_id}/analytics/stats.
func (h *AnalyticsHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	const op = "api.deployment_stats"

	id, err := deploymentID(r)
	if err != nil {
		writeError(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	rng, err := h.queryRange(r.URL.Query())
	if err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	st, err := h.deps.Stats(r.Context(), id, rng)
	if err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// HandleRecentSignups handles GET /deployments/{deployment_id}/analytics/recent-signups.
func (h *AnalyticsHandler) HandleRecentSignups(w http.ResponseWriter, r *http.Request) {
	const op = "api.recent_signups"

	id, err := deploymentID(r)
	if err != nil {
		writeError(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	limit := min(defaultRecentLimit, h.maxRecentLimit)
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > h.maxRecentLimit {
			writeError(w, WrapKind(op, ErrBadRequest, fmt.Errorf("limit must be an integer between 1 and %d", h.maxRecentLimit)))
			return
		}
	}
	signups, err := h.deps.RecentSignups(r.Context(), id, limit)
	if err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, recentSignupsResponse{Signups: signups})
}

// HandleDaily handles GET /deployments/{deployment_id}/analytics/daily.
func (h *AnalyticsHandler) HandleDaily(w http.ResponseWriter, r *http.Request) {
	const op = "api.daily"

	id, err := deploymentID(r)
	if err != nil {
		writeError(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	q := r.URL.Query()
	typ := model.EventSignup
	if raw := q.Get("event_type"); raw != "" {
		if typ, err = model.ParseEventType(raw); err != nil {
			writeError(w, WrapKind(op, ErrBadRequest, err))
			return
		}
	}
	rng, err := h.queryRange(q)
	if err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	days, err := h.deps.DailyCounts(r.Context(), id, typ, rng)
	if err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, dailyResponse{EventType: typ, Days: days})
}

func deploymentID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "deployment_id")
	if raw == "" || strings.TrimLeft(raw, "0123456789") != "" {
		return 0, fmt.Errorf("deployment_id must be a positive integer, got %q", raw)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("deployment_id must be a positive integer, got %q", raw)
	}
	return id, nil
}

func (h *AnalyticsHandler) queryRange(q url.Values) (analytics.Range, error) {
	from, err := parseTime(q, "from", false)
	if err != nil {
		return analytics.Range{}, err
	}
	to, err := parseTime(q, "to", true)
	if err != nil {
		return analytics.Range{}, err
	}
	return h.deps.ResolveRange(from, to)
}

// parseTime accepts RFC3339 timestamps or bare YYYY-MM-DD dates. A bare date
// is the start of that UTC day, or its last instant when endOfDay is set, so
// "to=2026-01-03" includes events on the 3rd.
func parseTime(q url.Values, key string, endOfDay bool) (time.Time, error) {
	raw := q.Get(key)
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t, nil
	}
	if t, err := time.Parse(analytics.DateLayout, raw); err == nil {
		if endOfDay {
			t = t.AddDate(0, 0, 1).Add(-time.Nanosecond)
		}
		return t, nil
	}
	return time.Time{}, WrapKind("api.query", ErrBadRequest, errors.New(key+" must be RFC3339 or YYYY-MM-DD"))
}
