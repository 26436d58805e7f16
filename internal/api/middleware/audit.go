package middleware

import (
	"net/http"
	"strings"

	"github.com/d9705996/granthub/internal/audit"
	"github.com/d9705996/granthub/internal/model"
	"github.com/d9705996/granthub/internal/ratelimit"
	"github.com/google/uuid"
)

// statusRecorder captures the response status for post-request logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

var methodActions = map[string]string{
	http.MethodPost:   model.ActionCreate,
	http.MethodPut:    model.ActionUpdate,
	http.MethodPatch:  model.ActionUpdate,
	http.MethodDelete: model.ActionDelete,
}

// Audit records request-level audit and security events. Mutating requests
// get an audit log row; successful reads get a data access log row;
// requests matching attack patterns and rejected (401/403) requests get
// security events. Recording happens after the handler runs and never
// alters the response.
func Audit(rec *audit.Recorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sr := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			ip := ratelimit.ClientIP(r)

			if audit.LooksSuspicious(r.URL.Path, r.URL.RawQuery) {
				rec.SecurityEvent(r.Context(), &model.SecurityEvent{
					EventType:   model.SecuritySuspiciousActivity,
					Severity:    model.SeverityWarning,
					Description: "request matched a known attack pattern",
					IPAddress:   ip,
					UserAgent:   r.UserAgent(),
					RequestPath: r.URL.Path,
				})
			}

			next.ServeHTTP(sr, r)

			ctx := r.Context()
			var userID *string
			if claims := ClaimsFromContext(ctx); claims != nil {
				userID = &claims.UserID
			}

			if r.Method == http.MethodGet && sr.status < 300 {
				rec.DataAccess(ctx, userID, accessTypeFromPath(r.URL.Path),
					resourceFromPath(r.URL.Path), audit.QueryParams(r),
					0, ip, r.UserAgent())
			}

			if action, ok := methodActions[r.Method]; ok {
				rec.Record(ctx, audit.Entry{
					UserID:        userID,
					Action:        action,
					ResourceType:  resourceFromPath(r.URL.Path),
					IPAddress:     ip,
					UserAgent:     r.UserAgent(),
					RequestMethod: r.Method,
					RequestPath:   r.URL.Path,
					Success:       sr.status < 400,
				})
			}

			switch sr.status {
			case http.StatusUnauthorized:
				rec.SecurityEvent(ctx, &model.SecurityEvent{
					UserID:         userID,
					EventType:      model.SecurityUnauthorizedAccess,
					Severity:       model.SeverityWarning,
					Description:    "unauthorized request",
					IPAddress:      ip,
					UserAgent:      r.UserAgent(),
					RequestPath:    r.URL.Path,
					ResponseStatus: &sr.status,
				})
			case http.StatusForbidden:
				rec.SecurityEvent(ctx, &model.SecurityEvent{
					UserID:         userID,
					EventType:      model.SecurityPermissionDenied,
					Severity:       model.SeverityWarning,
					Description:    "permission denied",
					IPAddress:      ip,
					UserAgent:      r.UserAgent(),
					RequestPath:    r.URL.Path,
					ResponseStatus: &sr.status,
				})
			}
		})
	}
}

// accessTypeFromPath classifies a read as a single-record view when the
// final path segment is a resource ID, otherwise a list.
func accessTypeFromPath(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) == 0 {
		return model.AccessList
	}
	if _, err := uuid.Parse(parts[len(parts)-1]); err == nil {
		return model.AccessView
	}
	return model.AccessList
}

// resourceFromPath extracts the resource segment from /api/v1/<resource>/...
func resourceFromPath(path string) string {
	parts := strings.Split(strings.TrimPrefix(path, "/"), "/")
	if len(parts) >= 3 && parts[0] == "api" {
		return parts[2]
	}
	if len(parts) > 0 {
		return parts[0]
	}
	return "unknown"
}
