package log

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const headerRequestID = "X-Request-ID"

// Probe endpoints are scraped every few seconds; they log at debug.
var quietPaths = map[string]bool{
	"/health":  true,
	"/metrics": true,
}

// requestLogger derives the per-request logger, reusing the caller's
// X-Request-ID when present.
func requestLogger(logger zerolog.Logger, r *http.Request, ip string) (zerolog.Logger, string) {
	reqID := r.Header.Get(headerRequestID)
	if reqID == "" {
		reqID = uuid.New().String()
	}
	child := logger.With().
		Str(FieldRequestID, reqID).
		Str(FieldMethod, r.Method).
		Str(FieldPath, r.URL.Path).
		Str(FieldClientIP, ip).
		Logger()
	return child, reqID
}

// completed picks the level from the status: 5xx error, 4xx warn, else info.
func completed(l *zerolog.Logger, path string, status int, start time.Time) *zerolog.Event {
	var evt *zerolog.Event
	switch {
	case status >= http.StatusInternalServerError:
		evt = l.Error()
	case status >= http.StatusBadRequest:
		evt = l.Warn()
	case quietPaths[path]:
		evt = l.Debug()
	default:
		evt = l.Info()
	}
	return evt.
		Int(FieldStatus, status).
		Float64(FieldLatency, float64(time.Since(start).Microseconds())/1000)
}

// clientIP extracts the client IP from X-Forwarded-For, X-Real-IP, or RemoteAddr.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
