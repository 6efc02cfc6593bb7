// Package httpstatus exposes the bot's read-only operator surface: a
// liveness probe backed by the scheduler's heartbeat, and the current
// open-positions snapshot.
package httpstatus

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"bithumbot/internal/position"
)

// Heartbeat is the freshest end-of-cycle liveness record an external
// supervisor polls to decide whether the process is still making progress.
type Heartbeat struct {
	CycleID        string    `json:"cycle_id"`
	Timestamp      time.Time `json:"timestamp"`
	CoinsProcessed int       `json:"coins_processed"`
	CoinsSkipped   int       `json:"coins_skipped"`
}

// Recorder holds the most recent Heartbeat, updated by the Scheduler on
// every cycle completion.
type Recorder struct {
	mu   sync.RWMutex
	last Heartbeat
}

// NewRecorder builds an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Record stores hb as the latest heartbeat.
func (r *Recorder) Record(hb Heartbeat) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.last = hb
}

// Last returns the most recently recorded heartbeat.
func (r *Recorder) Last() Heartbeat {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.last
}

// NewRouter builds the gin router: GET /healthz (heartbeat freshness) and
// GET /positions (current Position Store snapshot).
func NewRouter(recorder *Recorder, store *position.Store, staleAfter time.Duration) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	corsCfg := cors.DefaultConfig()
	corsCfg.AllowAllOrigins = true
	corsCfg.AllowMethods = []string{http.MethodGet}
	r.Use(cors.New(corsCfg))

	r.GET("/healthz", func(c *gin.Context) {
		hb := recorder.Last()
		stale := hb.Timestamp.IsZero() || time.Since(hb.Timestamp) > staleAfter
		status := http.StatusOK
		if stale {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{
			"healthy":   !stale,
			"heartbeat": hb,
		})
	})

	r.GET("/positions", func(c *gin.Context) {
		c.JSON(http.StatusOK, store.Snapshot())
	})

	return r
}
