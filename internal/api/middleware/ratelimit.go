package middleware

import (
	"net/http"

	"github.com/d9705996/granthub/internal/api/jsonapi"
	"github.com/d9705996/granthub/internal/audit"
	"github.com/d9705996/granthub/internal/model"
	"github.com/d9705996/granthub/internal/ratelimit"
)

// LoginRateLimit rejects login attempts beyond the per-IP budget with 429
// and records a login_blocked security event for each rejection.
func LoginRateLimit(limiter *ratelimit.Limiter, rec *audit.Recorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := ratelimit.ClientIP(r)
			if !limiter.Allow(ip) {
				rec.SecurityEvent(r.Context(), &model.SecurityEvent{
					EventType:   model.SecurityLoginBlocked,
					Severity:    model.SeverityWarning,
					Description: "login attempts rate limited",
					IPAddress:   ip,
					UserAgent:   r.UserAgent(),
					RequestPath: r.URL.Path,
				})
				jsonapi.RenderError(w, http.StatusTooManyRequests,
					"rate_limited", "Too Many Requests",
					"too many login attempts; try again later")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
