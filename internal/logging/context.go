package logging

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"time"
)

type contextKey string

const loggerKey contextKey = "logger"

// GenerateTraceID generates a random identifier suitable for a cycle or
// request trace.
func GenerateTraceID() string {
	b := make([]byte, 16)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// FromContext retrieves the logger stashed in ctx, falling back to Default.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerKey).(*Logger); ok {
		return l
	}
	return Default()
}

// NewContext returns a context carrying l.
func NewContext(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// CycleContext creates a logger scoped to one scheduler cycle.
func CycleContext(cycleID string) *Logger {
	return Default().WithCycleID(cycleID).WithComponent("scheduler")
}

// CoinContext creates a logger scoped to pipeline work for one coin.
func CoinContext(component, coin string) *Logger {
	return Default().WithComponent(component).WithField("coin", coin)
}

// PositionContext creates a logger scoped to position mutations.
func PositionContext(coin string, size, avgEntryPrice float64) *Logger {
	return Default().WithFields(map[string]interface{}{
		"coin":            coin,
		"size":            size,
		"avg_entry_price": avgEntryPrice,
	}).WithComponent("position")
}

// OrderContext creates a logger scoped to exchange order calls.
func OrderContext(coin, side string, qty float64) *Logger {
	return Default().WithFields(map[string]interface{}{
		"coin": coin,
		"side": side,
		"qty":  qty,
	}).WithComponent("bithumb")
}

// RiskContext creates a logger scoped to portfolio/risk decisions.
func RiskContext(coin string, reason string) *Logger {
	return Default().WithFields(map[string]interface{}{
		"coin":   coin,
		"reason": reason,
	}).WithComponent("risk")
}

// NotificationContext creates a logger scoped to one notification sink.
func NotificationContext(sink string) *Logger {
	return Default().WithField("sink", sink).WithComponent("notify")
}

// HTTPMiddleware logs each request served by the status/health surface.
func HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		traceID := r.Header.Get("X-Trace-ID")
		if traceID == "" {
			traceID = GenerateTraceID()
		}

		l := Default().WithCycleID(traceID).WithFields(map[string]interface{}{
			"method":      r.Method,
			"path":        r.URL.Path,
			"remote_addr": r.RemoteAddr,
		}).WithComponent("http")

		ctx := NewContext(r.Context(), l)
		r = r.WithContext(ctx)

		wrapped := &responseWriter{ResponseWriter: w, statusCode: 200}
		next.ServeHTTP(wrapped, r)

		l.WithField("duration", time.Since(start).String()).
			WithField("status_code", wrapped.statusCode).
			Info("request completed")
	})
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
