// Package api wires all API routes onto the provided ServeMux.
package api

import (
	"net/http"

	"github.com/d9705996/granthub/internal/api/handler"
	"github.com/d9705996/granthub/internal/api/middleware"
	"github.com/d9705996/granthub/internal/audit"
	"github.com/d9705996/granthub/internal/health"
	"github.com/d9705996/granthub/internal/model"
	"github.com/d9705996/granthub/internal/ratelimit"
)

// Deps bundles everything RegisterRoutes needs.
type Deps struct {
	Health        *health.Handler
	Account       *handler.AccountHandler
	Applications  *handler.ApplicationHandler
	Documents     *handler.DocumentHandler
	Assessments   *handler.AssessmentHandler
	Communication *handler.CommunicationHandler
	Notifications *handler.NotificationHandler
	Audit         *handler.AuditHandler
	Recorder      *audit.Recorder
	LoginLimiter  *ratelimit.Limiter
	JWTSecret     string
}

// RegisterRoutes registers all application routes on mux.
func RegisterRoutes(mux *http.ServeMux, d Deps) {
	audited := middleware.Audit(d.Recorder)

	// Authenticated routes run the audit middleware after token parsing so
	// the recorded rows carry the caller's user ID. Admin routes place the
	// role check inside the audit wrapper so denials are recorded too.
	protected := func(h http.HandlerFunc) http.Handler {
		return middleware.RequireAuth(d.JWTSecret)(audited(h))
	}
	admin := func(h http.HandlerFunc) http.Handler {
		return middleware.RequireAuth(d.JWTSecret)(audited(
			middleware.RequireRole(model.RoleAdministrator)(h)))
	}

	// Public health endpoints (no auth required)
	mux.HandleFunc("GET /api/v1/health", d.Health.ServeHealth)
	mux.HandleFunc("GET /api/v1/ready", d.Health.ServeReady)

	// Auth endpoints (no auth required)
	mux.Handle("POST /api/v1/auth/register", audited(http.HandlerFunc(d.Account.RegisterOrganization)))
	mux.Handle("POST /api/v1/auth/login",
		middleware.LoginRateLimit(d.LoginLimiter, d.Recorder)(audited(http.HandlerFunc(d.Account.Login))))
	mux.Handle("POST /api/v1/auth/refresh", audited(http.HandlerFunc(d.Account.Refresh)))
	mux.Handle("POST /api/v1/auth/verify-email", audited(http.HandlerFunc(d.Account.VerifyEmail)))
	mux.Handle("POST /api/v1/auth/password-reset", audited(http.HandlerFunc(d.Account.RequestPasswordReset)))
	mux.Handle("POST /api/v1/auth/password-reset/confirm", audited(http.HandlerFunc(d.Account.ConfirmPasswordReset)))

	// Session and profile
	mux.Handle("POST /api/v1/auth/logout", protected(d.Account.Logout))
	mux.Handle("GET /api/v1/auth/me", protected(d.Account.Me))
	mux.Handle("PATCH /api/v1/auth/me", protected(d.Account.UpdateMe))
	mux.Handle("POST /api/v1/auth/register-admin", admin(d.Account.RegisterAdministrator))
	mux.Handle("GET /api/v1/organizations/me", protected(d.Account.GetProfile))
	mux.Handle("PATCH /api/v1/organizations/me", protected(d.Account.UpdateProfile))

	// Applications
	mux.Handle("GET /api/v1/applications", protected(d.Applications.List))
	mux.Handle("POST /api/v1/applications", protected(d.Applications.Create))
	mux.Handle("GET /api/v1/applications/{id}", protected(d.Applications.Get))
	mux.Handle("PATCH /api/v1/applications/{id}", protected(d.Applications.Update))
	mux.Handle("POST /api/v1/applications/{id}/submit", protected(d.Applications.Submit))
	mux.Handle("PATCH /api/v1/applications/{id}/status", admin(d.Applications.UpdateStatus))
	mux.Handle("GET /api/v1/applications/{id}/history", protected(d.Applications.History))

	// Application documents
	mux.Handle("POST /api/v1/applications/{id}/documents", protected(d.Documents.Upload))
	mux.Handle("GET /api/v1/applications/{id}/documents", protected(d.Documents.List))
	mux.Handle("GET /api/v1/applications/{id}/documents/{docID}", protected(d.Documents.Download))
	mux.Handle("DELETE /api/v1/applications/{id}/documents/{docID}", protected(d.Documents.Delete))

	// Assessments (administrator only)
	mux.Handle("POST /api/v1/assessments", admin(d.Assessments.Create))
	mux.Handle("GET /api/v1/assessments/mine", admin(d.Assessments.Mine))
	mux.Handle("GET /api/v1/assessments/pending-reviews", admin(d.Assessments.PendingReviews))
	mux.Handle("GET /api/v1/assessments/statistics", admin(d.Assessments.Statistics))
	mux.Handle("GET /api/v1/assessments/{id}", admin(d.Assessments.Get))
	mux.Handle("PATCH /api/v1/assessments/{id}", admin(d.Assessments.Update))
	mux.Handle("POST /api/v1/assessments/{id}/reviews", admin(d.Assessments.CreateReview))
	mux.Handle("GET /api/v1/applications/{id}/assessments", admin(d.Assessments.ForApplication))
	mux.Handle("GET /api/v1/applications/{id}/assessments/summary", admin(d.Assessments.Summary))

	// Assessment templates (administrator only)
	mux.Handle("POST /api/v1/assessment-templates", admin(d.Assessments.CreateTemplate))
	mux.Handle("GET /api/v1/assessment-templates", admin(d.Assessments.ListTemplates))
	mux.Handle("GET /api/v1/assessment-templates/{id}", admin(d.Assessments.GetTemplate))
	mux.Handle("PATCH /api/v1/assessment-templates/{id}", admin(d.Assessments.SetTemplateActive))
	mux.Handle("POST /api/v1/assessment-templates/{id}/apply", admin(d.Assessments.ApplyTemplate))

	// Messages
	mux.Handle("POST /api/v1/messages", protected(d.Communication.Send))
	mux.Handle("GET /api/v1/messages", protected(d.Communication.List))
	mux.Handle("GET /api/v1/messages/unread-count", protected(d.Communication.UnreadCount))
	mux.Handle("GET /api/v1/messages/{id}", protected(d.Communication.Get))
	mux.Handle("POST /api/v1/messages/{id}/read", protected(d.Communication.MarkRead))

	// Threads
	mux.Handle("POST /api/v1/threads", protected(d.Communication.CreateThread))
	mux.Handle("GET /api/v1/threads", protected(d.Communication.ListThreads))
	mux.Handle("GET /api/v1/threads/{id}", protected(d.Communication.GetThread))
	mux.Handle("POST /api/v1/threads/{id}/messages", protected(d.Communication.AddThreadMessage))
	mux.Handle("POST /api/v1/threads/{id}/close", admin(d.Communication.CloseThread))
	mux.Handle("POST /api/v1/threads/{id}/reopen", admin(d.Communication.ReopenThread))

	// Portal notifications and preferences
	mux.Handle("GET /api/v1/notifications", protected(d.Notifications.List))
	mux.Handle("GET /api/v1/notifications/unread-count", protected(d.Notifications.UnreadCount))
	mux.Handle("POST /api/v1/notifications/read-all", protected(d.Notifications.MarkAllRead))
	mux.Handle("POST /api/v1/notifications/{id}/read", protected(d.Notifications.MarkRead))
	mux.Handle("GET /api/v1/notification-preferences", protected(d.Notifications.ListPreferences))
	mux.Handle("PUT /api/v1/notification-preferences", protected(d.Notifications.SetPreference))
	mux.Handle("POST /api/v1/notification-preferences/defaults", protected(d.Notifications.SetDefaultPreferences))

	// Email templates (administrator only)
	mux.Handle("POST /api/v1/email-templates", admin(d.Notifications.CreateEmailTemplate))
	mux.Handle("GET /api/v1/email-templates", admin(d.Notifications.ListEmailTemplates))
	mux.Handle("GET /api/v1/email-templates/{id}", admin(d.Notifications.GetEmailTemplate))
	mux.Handle("PATCH /api/v1/email-templates/{id}", admin(d.Notifications.UpdateEmailTemplate))
	mux.Handle("DELETE /api/v1/email-templates/{id}", admin(d.Notifications.DeleteEmailTemplate))
	mux.Handle("POST /api/v1/email-templates/{id}/preview", admin(d.Notifications.PreviewEmailTemplate))

	// Audit trail (administrator only)
	mux.Handle("GET /api/v1/audit/logs", admin(d.Audit.ListLogs))
	mux.Handle("GET /api/v1/audit/logs/{id}/verify", admin(d.Audit.VerifyLog))
	mux.Handle("GET /api/v1/audit/security-events", admin(d.Audit.ListSecurityEvents))
	mux.Handle("PATCH /api/v1/audit/security-events/{id}", admin(d.Audit.InvestigateSecurityEvent))
	mux.Handle("GET /api/v1/audit/data-access", admin(d.Audit.ListDataAccess))
	mux.Handle("GET /api/v1/audit/health-logs", admin(d.Audit.ListHealthLogs))

	// Catch-all 404
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
}
