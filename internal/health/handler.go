package health

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"lv-marginledger/internal/httputil"
)

const checkTimeout = time.Second

// Check reports whether one dependency is reachable.
type Check func(ctx context.Context) error

type Handler struct {
	startedAt time.Time
	checks    map[string]Check
}

func NewHandler(startedAt time.Time, checks map[string]Check) *Handler {
	start := startedAt.UTC()
	if start.IsZero() {
		start = time.Now().UTC()
	}
	if checks == nil {
		checks = map[string]Check{}
	}
	return &Handler{startedAt: start, checks: checks}
}

type liveResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	UptimeSec int64  `json:"uptime_sec"`
	Uptime    string `json:"uptime"`
}

type dependencyStat struct {
	Name      string `json:"name"`
	Reachable bool   `json:"reachable"`
	PingMs    int64  `json:"ping_ms"`
	Error     string `json:"error,omitempty"`
}

type readinessResponse struct {
	liveResponse
	Dependencies []dependencyStat `json:"dependencies"`
}

func (h *Handler) uptime(now time.Time) time.Duration {
	uptime := now.Sub(h.startedAt)
	if uptime < 0 {
		return 0
	}
	return uptime
}

func (h *Handler) live(now time.Time, status string) liveResponse {
	uptime := h.uptime(now)
	return liveResponse{
		Status:    status,
		Timestamp: now.Format(time.RFC3339),
		UptimeSec: int64(uptime.Seconds()),
		Uptime:    uptime.String(),
	}
}

// Live is a lightweight liveness endpoint and does not check dependencies.
func (h *Handler) Live(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, h.live(time.Now().UTC(), "ok"))
}

// Ready runs every check concurrently and returns 503 when any fails.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	stats := make([]dependencyStat, 0, len(h.checks))
	var mu sync.Mutex
	var wg sync.WaitGroup
	for name, check := range h.checks {
		wg.Add(1)
		go func(name string, check Check) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
			defer cancel()
			start := time.Now()
			err := check(ctx)
			stat := dependencyStat{Name: name, Reachable: err == nil, PingMs: time.Since(start).Milliseconds()}
			if err != nil {
				stat.Error = err.Error()
			}
			mu.Lock()
			stats = append(stats, stat)
			mu.Unlock()
		}(name, check)
	}
	wg.Wait()
	sort.Slice(stats, func(i, j int) bool { return stats[i].Name < stats[j].Name })

	status, httpStatus := "ok", http.StatusOK
	for _, s := range stats {
		if !s.Reachable {
			status, httpStatus = "degraded", http.StatusServiceUnavailable
			break
		}
	}
	httputil.WriteJSON(w, httpStatus, readinessResponse{
		liveResponse: h.live(time.Now().UTC(), status),
		Dependencies: stats,
	})
}
