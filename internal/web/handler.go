package web

import (
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/eore-labs/eore-cli/internal/history"
	"github.com/eore-labs/eore-cli/internal/metrics"
)

// StatusData holds the miner's dashboard state.
type StatusData struct {
	Authority       string            `json:"authority"`
	Proof           string            `json:"proof"`
	Cores           int               `json:"cores"`
	Round           uint64            `json:"round"`
	Phase           string            `json:"phase"`
	Challenge       string            `json:"challenge"`
	MinDifficulty   uint32            `json:"min_difficulty"`
	LastDifficulty  uint32            `json:"last_difficulty"`
	BestDifficulty  uint32            `json:"best_difficulty"`
	PriorityFee     uint64            `json:"priority_fee"`
	Balance         string            `json:"balance"`
	RoundsConfirmed uint64            `json:"rounds_confirmed"`
	RoundsFailed    uint64            `json:"rounds_failed"`
	TotalRewards    string            `json:"total_rewards"`
	Uptime          int64             `json:"uptime_secs"`
	Recent          []history.Outcome `json:"recent"`
}

// HistoryFunc returns up to limit outcomes, newest first. limit <= 0 means all.
type HistoryFunc func(limit int) ([]history.Outcome, error)

// statusCache holds a cached JSON response so polling clients do not take
// the miner's locks on every request.
type statusCache struct {
	mu      sync.Mutex
	data    []byte
	expires time.Time
}

const statusCacheTTL = 2 * time.Second

func (c *statusCache) get(dataFunc func() *StatusData) []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	if time.Now().Before(c.expires) {
		return c.data
	}
	buf, _ := json.Marshal(dataFunc())
	c.data = buf
	c.expires = time.Now().Add(statusCacheTTL)
	return c.data
}

// NewHandler creates an HTTP handler serving the dashboard, the JSON API
// and Prometheus metrics.
func NewHandler(dataFunc func() *StatusData, historyFunc HistoryFunc) http.Handler {
	mux := http.NewServeMux()
	cache := &statusCache{}

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Content-Security-Policy",
			"default-src 'none'; script-src 'unsafe-inline'; style-src 'unsafe-inline'; connect-src 'self'")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Write([]byte(dashboardHTML))
	})

	mux.HandleFunc("/api/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Write(cache.get(dataFunc))
	})

	mux.HandleFunc("/api/history", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Content-Type-Options", "nosniff")

		limit := 0
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				w.WriteHeader(http.StatusBadRequest)
				json.NewEncoder(w).Encode(map[string]string{"error": "invalid limit"})
				return
			}
			limit = n
		}

		outcomes, err := historyFunc(limit)
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
			return
		}
		if outcomes == nil {
			outcomes = []history.Outcome{}
		}
		json.NewEncoder(w).Encode(outcomes)
	})

	mux.Handle("/metrics", metrics.Handler())

	return mux
}
