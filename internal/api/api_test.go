package api_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	granthubapi "github.com/d9705996/granthub/internal/api"
	"github.com/d9705996/granthub/internal/api/handler"
	"github.com/d9705996/granthub/internal/assess"
	"github.com/d9705996/granthub/internal/audit"
	"github.com/d9705996/granthub/internal/auth"
	"github.com/d9705996/granthub/internal/comms"
	"github.com/d9705996/granthub/internal/db"
	"github.com/d9705996/granthub/internal/grant"
	"github.com/d9705996/granthub/internal/health"
	"github.com/d9705996/granthub/internal/model"
	"github.com/d9705996/granthub/internal/notify"
	"github.com/d9705996/granthub/internal/ratelimit"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testSecret = "integration-test-secret-32-bytes!"

func newTestServer(t *testing.T) (*httptest.Server, *gorm.DB) {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, gdb.AutoMigrate(
		&model.User{}, &model.Organization{}, &model.RefreshToken{},
		&model.GrantApplication{}, &model.ApplicationDocument{}, &model.ApplicationStatusHistory{},
		&model.Assessment{}, &model.AssessmentCriteria{},
		&model.AssessmentTemplate{}, &model.AssessmentTemplateCriteria{}, &model.AssessmentReview{},
		&model.Communication{}, &model.CommunicationThread{}, &model.ThreadParticipant{}, &model.ThreadMessage{},
		&model.NotificationPreference{}, &model.PortalNotification{}, &model.EmailTemplate{},
		&model.AuditLog{}, &model.SecurityEvent{}, &model.DataAccessLog{}, &model.SystemHealthLog{},
	))

	log := slog.Default()
	mailer := notify.NewLogMailer(log)
	notifier := notify.New(gdb, mailer, log, "http://frontend.test")
	grants := grant.NewService(gdb, notifier)
	assessments := assess.NewService(gdb, grants, notifier)
	messaging := comms.NewService(gdb, notifier)
	recorder := audit.NewRecorder(gdb, log)
	refresh := auth.NewRefreshStore(gdb, 24*time.Hour)
	documents := grant.NewDocumentStore(gdb, t.TempDir(), 1<<20)

	accountHandler := handler.NewAccountHandler(gdb, refresh, mailer, recorder,
		testSecret, time.Minute, "http://frontend.test")
	applicationHandler := handler.NewApplicationHandler(gdb, grants, recorder)

	mux := http.NewServeMux()
	granthubapi.RegisterRoutes(mux, granthubapi.Deps{
		Health:        health.New(db.NewPinger(gdb)),
		Account:       accountHandler,
		Applications:  applicationHandler,
		Documents:     handler.NewDocumentHandler(gdb, applicationHandler, documents, recorder),
		Assessments:   handler.NewAssessmentHandler(gdb, assessments, applicationHandler),
		Communication: handler.NewCommunicationHandler(gdb, messaging),
		Notifications: handler.NewNotificationHandler(gdb, notifier),
		Audit:         handler.NewAuditHandler(gdb, recorder),
		Recorder:      recorder,
		LoginLimiter:  ratelimit.New(100, time.Minute),
		JWTSecret:     testSecret,
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, gdb
}

func doJSON(t *testing.T, srv *httptest.Server, method, path, token string, body any) (int, map[string]any) {
	t.Helper()
	var buf io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		buf = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, srv.URL+path, buf)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	// Non-JSON bodies (the catch-all 404 writes plain text) yield a nil map.
	var out map[string]any
	if len(raw) > 0 && json.Unmarshal(raw, &out) != nil {
		out = nil
	}
	return resp.StatusCode, out
}

func attrs(t *testing.T, doc map[string]any) map[string]any {
	t.Helper()
	data, ok := doc["data"].(map[string]any)
	require.True(t, ok, "document has no data object: %v", doc)
	a, _ := data["attributes"].(map[string]any)
	return a
}

func resourceID(t *testing.T, doc map[string]any) string {
	t.Helper()
	data, ok := doc["data"].(map[string]any)
	require.True(t, ok)
	id, _ := data["id"].(string)
	return id
}

// registerAndLogin creates a verified organization account over HTTP and
// returns its access token.
func registerAndLogin(t *testing.T, srv *httptest.Server, gdb *gorm.DB, email string) string {
	t.Helper()
	status, _ := doJSON(t, srv, http.MethodPost, "/api/v1/auth/register", "", map[string]any{
		"email":             email,
		"password":          "Sunflower9!",
		"organization_name": "Test Collective",
		"contact_person":    "Pat Doe",
	})
	require.Equal(t, http.StatusCreated, status)

	var u model.User
	require.NoError(t, gdb.First(&u, "email = ?", email).Error)
	status, _ = doJSON(t, srv, http.MethodPost, "/api/v1/auth/verify-email", "", map[string]any{
		"token": u.EmailVerificationToken,
	})
	require.Equal(t, http.StatusOK, status)

	status, doc := doJSON(t, srv, http.MethodPost, "/api/v1/auth/login", "", map[string]any{
		"email":    email,
		"password": "Sunflower9!",
	})
	require.Equal(t, http.StatusOK, status)
	token, _ := attrs(t, doc)["access_token"].(string)
	require.NotEmpty(t, token)
	return token
}

// seedAdmin inserts a verified administrator directly and logs in over HTTP.
func seedAdmin(t *testing.T, srv *httptest.Server, gdb *gorm.DB, email string) string {
	t.Helper()
	hash, err := auth.HashPassword("Sunflower9!")
	require.NoError(t, err)
	require.NoError(t, gdb.Create(&model.User{
		Email:         email,
		PasswordHash:  hash,
		Role:          model.RoleAdministrator,
		EmailVerified: true,
	}).Error)

	status, doc := doJSON(t, srv, http.MethodPost, "/api/v1/auth/login", "", map[string]any{
		"email":    email,
		"password": "Sunflower9!",
	})
	require.Equal(t, http.StatusOK, status)
	token, _ := attrs(t, doc)["access_token"].(string)
	require.NotEmpty(t, token)
	return token
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	status, doc := doJSON(t, srv, http.MethodGet, "/api/v1/health", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.NotNil(t, doc["data"])
}

func TestRegisterVerifyLoginFlow(t *testing.T) {
	srv, gdb := newTestServer(t)

	status, _ := doJSON(t, srv, http.MethodPost, "/api/v1/auth/register", "", map[string]any{
		"email":             "org@example.com",
		"password":          "Sunflower9!",
		"organization_name": "Garden Trust",
		"contact_person":    "Sam Lee",
	})
	require.Equal(t, http.StatusCreated, status)

	// Unverified accounts cannot log in.
	status, _ = doJSON(t, srv, http.MethodPost, "/api/v1/auth/login", "", map[string]any{
		"email":    "org@example.com",
		"password": "Sunflower9!",
	})
	assert.Equal(t, http.StatusForbidden, status)

	var u model.User
	require.NoError(t, gdb.First(&u, "email = ?", "org@example.com").Error)
	status, _ = doJSON(t, srv, http.MethodPost, "/api/v1/auth/verify-email", "", map[string]any{
		"token": u.EmailVerificationToken,
	})
	require.Equal(t, http.StatusOK, status)

	// The verification token was rotated; the old link is dead.
	status, _ = doJSON(t, srv, http.MethodPost, "/api/v1/auth/verify-email", "", map[string]any{
		"token": u.EmailVerificationToken,
	})
	assert.Equal(t, http.StatusNotFound, status)

	status, doc := doJSON(t, srv, http.MethodPost, "/api/v1/auth/login", "", map[string]any{
		"email":    "org@example.com",
		"password": "Sunflower9!",
	})
	require.Equal(t, http.StatusOK, status)
	a := attrs(t, doc)
	assert.NotEmpty(t, a["access_token"])
	assert.NotEmpty(t, a["refresh_token"])
	assert.Equal(t, "Bearer", a["token_type"])

	// Refresh rotates the token pair.
	refreshToken, _ := a["refresh_token"].(string)
	status, doc = doJSON(t, srv, http.MethodPost, "/api/v1/auth/refresh", "", map[string]any{
		"refresh_token": refreshToken,
	})
	require.Equal(t, http.StatusOK, status)
	rotated := attrs(t, doc)
	assert.NotEmpty(t, rotated["refresh_token"])
	assert.NotEqual(t, refreshToken, rotated["refresh_token"])

	// The old refresh token is dead after rotation.
	status, _ = doJSON(t, srv, http.MethodPost, "/api/v1/auth/refresh", "", map[string]any{
		"refresh_token": refreshToken,
	})
	assert.Equal(t, http.StatusUnauthorized, status)

	// Me works with the access token.
	access, _ := attrs(t, doc)["access_token"].(string)
	status, doc = doJSON(t, srv, http.MethodGet, "/api/v1/auth/me", access, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "org@example.com", attrs(t, doc)["email"])
}

func TestLoginFailureRecordsSecurityEvent(t *testing.T) {
	srv, gdb := newTestServer(t)
	registerAndLogin(t, srv, gdb, "org@example.com")

	status, _ := doJSON(t, srv, http.MethodPost, "/api/v1/auth/login", "", map[string]any{
		"email":    "org@example.com",
		"password": "WrongPass1!",
	})
	assert.Equal(t, http.StatusUnauthorized, status)

	var evs []model.SecurityEvent
	require.NoError(t, gdb.Where("event_type = ?", model.SecurityLoginFailure).Find(&evs).Error)
	assert.NotEmpty(t, evs)
}

func TestProfileUpdatesOverHTTP(t *testing.T) {
	srv, gdb := newTestServer(t)

	// Registration rejects malformed phone numbers.
	status, _ := doJSON(t, srv, http.MethodPost, "/api/v1/auth/register", "", map[string]any{
		"email":             "badphone@example.com",
		"password":          "Sunflower9!",
		"organization_name": "Bad Phone Org",
		"contact_person":    "Pat Doe",
		"phone":             "not-a-number",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, status)

	orgToken := registerAndLogin(t, srv, gdb, "org@example.com")

	status, _ = doJSON(t, srv, http.MethodPatch, "/api/v1/organizations/me", orgToken, map[string]any{
		"phone": "12ab34",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, status)

	status, doc := doJSON(t, srv, http.MethodPatch, "/api/v1/organizations/me", orgToken, map[string]any{
		"phone":          "+14155550101",
		"contact_person": "Lee Chen",
	})
	require.Equal(t, http.StatusOK, status)
	a := attrs(t, doc)
	assert.Equal(t, "+14155550101", a["phone"])
	assert.Equal(t, "Lee Chen", a["contact_person"])

	// The account's own email can change too.
	status, doc = doJSON(t, srv, http.MethodPatch, "/api/v1/auth/me", orgToken, map[string]any{
		"email": "renamed@example.com",
	})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "renamed@example.com", attrs(t, doc)["email"])
	status, doc = doJSON(t, srv, http.MethodGet, "/api/v1/auth/me", orgToken, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "renamed@example.com", attrs(t, doc)["email"])
}

func TestApplicationLifecycleOverHTTP(t *testing.T) {
	srv, gdb := newTestServer(t)
	orgToken := registerAndLogin(t, srv, gdb, "org@example.com")
	adminToken := seedAdmin(t, srv, gdb, "admin@example.com")

	// Create a draft.
	status, doc := doJSON(t, srv, http.MethodPost, "/api/v1/applications", orgToken, map[string]any{
		"title":            "Community Garden",
		"description":      "Neighborhood food program",
		"requested_amount": 25000.0,
	})
	require.Equal(t, http.StatusCreated, status)
	appID := resourceID(t, doc)
	assert.Equal(t, model.StatusDraft, attrs(t, doc)["status"])

	// Submission fails while dates are missing.
	status, _ = doJSON(t, srv, http.MethodPost, "/api/v1/applications/"+appID+"/submit", orgToken, map[string]any{})
	assert.Equal(t, http.StatusUnprocessableEntity, status)

	// Fill in the dates and submit.
	status, _ = doJSON(t, srv, http.MethodPatch, "/api/v1/applications/"+appID, orgToken, map[string]any{
		"project_start_date": "2027-03-01",
		"project_end_date":   "2027-09-30",
	})
	require.Equal(t, http.StatusOK, status)

	status, doc = doJSON(t, srv, http.MethodPost, "/api/v1/applications/"+appID+"/submit", orgToken, map[string]any{})
	require.Equal(t, http.StatusOK, status)
	a := attrs(t, doc)
	assert.Equal(t, model.StatusSubmitted, a["status"])
	ref, _ := a["reference_number"].(string)
	assert.Regexp(t, regexp.MustCompile(`^GA-\d{4}-[0-9A-Z]{6}$`), ref)

	// Organizations cannot change status directly.
	status, _ = doJSON(t, srv, http.MethodPatch, "/api/v1/applications/"+appID+"/status", orgToken, map[string]any{
		"status": model.StatusUnderReview,
	})
	assert.Equal(t, http.StatusForbidden, status)

	// The admin moves it through review to approval.
	status, _ = doJSON(t, srv, http.MethodPatch, "/api/v1/applications/"+appID+"/status", adminToken, map[string]any{
		"status": model.StatusUnderReview,
		"reason": "assigned for review",
	})
	require.Equal(t, http.StatusOK, status)

	status, doc = doJSON(t, srv, http.MethodPatch, "/api/v1/applications/"+appID+"/status", adminToken, map[string]any{
		"status": model.StatusApproved,
		"reason": "strong proposal",
	})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, model.StatusApproved, attrs(t, doc)["status"])

	// Approved applications are frozen.
	status, _ = doJSON(t, srv, http.MethodPatch, "/api/v1/applications/"+appID, orgToken, map[string]any{
		"title": "Changed",
	})
	assert.Equal(t, http.StatusConflict, status)

	// History shows every transition, oldest first.
	status, listDoc := doJSON(t, srv, http.MethodGet, "/api/v1/applications/"+appID+"/history", orgToken, nil)
	require.Equal(t, http.StatusOK, status)
	rows, _ := listDoc["data"].([]any)
	require.Len(t, rows, 3)

	// The owner got portal notifications for the status changes.
	var count int64
	require.NoError(t, gdb.Model(&model.PortalNotification{}).Count(&count).Error)
	assert.NotZero(t, count)
}

func TestApplicationTenantIsolation(t *testing.T) {
	srv, gdb := newTestServer(t)
	tokenA := registerAndLogin(t, srv, gdb, "a@example.com")
	tokenB := registerAndLogin(t, srv, gdb, "b@example.com")

	status, doc := doJSON(t, srv, http.MethodPost, "/api/v1/applications", tokenA, map[string]any{
		"title": "Only mine",
	})
	require.Equal(t, http.StatusCreated, status)
	appID := resourceID(t, doc)

	// Another organization cannot see or edit it.
	status, _ = doJSON(t, srv, http.MethodGet, "/api/v1/applications/"+appID, tokenB, nil)
	assert.Equal(t, http.StatusNotFound, status)
	status, _ = doJSON(t, srv, http.MethodPatch, "/api/v1/applications/"+appID, tokenB, map[string]any{
		"title": "Hijacked",
	})
	assert.Equal(t, http.StatusNotFound, status)

	// Its list shows nothing.
	status, listDoc := doJSON(t, srv, http.MethodGet, "/api/v1/applications", tokenB, nil)
	require.Equal(t, http.StatusOK, status)
	rows, _ := listDoc["data"].([]any)
	assert.Empty(t, rows)
}

func TestDocumentDownloadEscapesFilename(t *testing.T) {
	srv, gdb := newTestServer(t)
	orgToken := registerAndLogin(t, srv, gdb, "org@example.com")

	status, doc := doJSON(t, srv, http.MethodPost, "/api/v1/applications", orgToken, map[string]any{
		"title": "Budget attachments",
	})
	require.Equal(t, http.StatusCreated, status)
	appID := resourceID(t, doc)

	// The name carries a quote; a naive quoted-string header would let it
	// terminate the filename parameter early.
	name := `budget "final" v2.pdf`
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = part.Write([]byte("%PDF-1.4 test"))
	require.NoError(t, err)
	require.NoError(t, mw.WriteField("document_type", model.DocumentBudget))
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/v1/applications/"+appID+"/documents", &buf)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+orgToken)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	var uploaded map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&uploaded))
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	docID := resourceID(t, uploaded)

	req, err = http.NewRequest(http.MethodGet, srv.URL+"/api/v1/applications/"+appID+"/documents/"+docID, nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+orgToken)
	resp, err = srv.Client().Do(req)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "%PDF-1.4 test", string(body))

	disposition, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition"))
	require.NoError(t, err)
	assert.Equal(t, "attachment", disposition)
	assert.Equal(t, name, params["filename"])
}

func TestAdminOnlyRoutes(t *testing.T) {
	srv, gdb := newTestServer(t)
	orgToken := registerAndLogin(t, srv, gdb, "org@example.com")
	adminToken := seedAdmin(t, srv, gdb, "admin@example.com")

	status, _ := doJSON(t, srv, http.MethodGet, "/api/v1/audit/logs", orgToken, nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = doJSON(t, srv, http.MethodGet, "/api/v1/audit/logs", adminToken, nil)
	assert.Equal(t, http.StatusOK, status)

	// The denied request left a security event behind.
	var evs []model.SecurityEvent
	require.NoError(t, gdb.Where("event_type = ?", model.SecurityPermissionDenied).Find(&evs).Error)
	assert.NotEmpty(t, evs)
}

func TestAssessmentOverHTTP(t *testing.T) {
	srv, gdb := newTestServer(t)
	orgToken := registerAndLogin(t, srv, gdb, "org@example.com")
	adminToken := seedAdmin(t, srv, gdb, "admin@example.com")

	status, doc := doJSON(t, srv, http.MethodPost, "/api/v1/applications", orgToken, map[string]any{
		"title":              "Riverbank Cleanup",
		"description":        "Monthly volunteer events",
		"requested_amount":   8000.0,
		"project_start_date": "2027-05-01",
		"project_end_date":   "2027-12-01",
	})
	require.Equal(t, http.StatusCreated, status)
	appID := resourceID(t, doc)
	status, _ = doJSON(t, srv, http.MethodPost, "/api/v1/applications/"+appID+"/submit", orgToken, map[string]any{})
	require.Equal(t, http.StatusOK, status)

	status, doc = doJSON(t, srv, http.MethodPost, "/api/v1/assessments", adminToken, map[string]any{
		"application_id": appID,
		"score":          8,
		"recommendation": "approve",
		"criteria": []map[string]any{
			{"criteria_type": "impact", "score": 8, "weight": 2.0},
			{"criteria_type": "budget", "score": 6, "weight": 1.0},
		},
	})
	require.Equal(t, http.StatusCreated, status)
	a := attrs(t, doc)
	assert.InDelta(t, 7.33, a["aggregate_score"].(float64), 0.001)

	// The first assessment advanced the application.
	var app model.GrantApplication
	require.NoError(t, gdb.First(&app, "id = ?", appID).Error)
	assert.Equal(t, model.StatusUnderReview, app.Status)

	// One assessment per administrator.
	status, _ = doJSON(t, srv, http.MethodPost, "/api/v1/assessments", adminToken, map[string]any{
		"application_id": appID,
		"score":          5,
		"recommendation": "reject",
	})
	assert.Equal(t, http.StatusConflict, status)

	// A second admin reviews; self-review is rejected.
	assessmentID := resourceID(t, doc)
	status, _ = doJSON(t, srv, http.MethodPost, "/api/v1/assessments/"+assessmentID+"/reviews", adminToken, map[string]any{
		"status": "approved",
	})
	assert.Equal(t, http.StatusForbidden, status)

	admin2Token := seedAdmin(t, srv, gdb, "admin2@example.com")
	status, _ = doJSON(t, srv, http.MethodPost, "/api/v1/assessments/"+assessmentID+"/reviews", admin2Token, map[string]any{
		"status":   "approved",
		"comments": "agreed",
	})
	assert.Equal(t, http.StatusCreated, status)

	// Only the assessor may revise; revisions replace the criteria.
	status, _ = doJSON(t, srv, http.MethodPatch, "/api/v1/assessments/"+assessmentID, admin2Token, map[string]any{
		"score": 9,
	})
	assert.Equal(t, http.StatusForbidden, status)

	status, doc = doJSON(t, srv, http.MethodPatch, "/api/v1/assessments/"+assessmentID, adminToken, map[string]any{
		"score": 9,
		"criteria": []map[string]any{
			{"criteria_type": "impact", "score": 9, "weight": 1.0},
		},
	})
	require.Equal(t, http.StatusOK, status)
	a = attrs(t, doc)
	assert.Equal(t, float64(9), a["score"])
	assert.InDelta(t, 9.0, a["aggregate_score"].(float64), 0.001)
	criteria, _ := a["criteria"].([]any)
	assert.Len(t, criteria, 1)
}

func TestMessagingOverHTTP(t *testing.T) {
	srv, gdb := newTestServer(t)
	orgToken := registerAndLogin(t, srv, gdb, "org@example.com")
	adminToken := seedAdmin(t, srv, gdb, "admin@example.com")

	status, doc := doJSON(t, srv, http.MethodPost, "/api/v1/applications", orgToken, map[string]any{
		"title": "Correspondence test",
	})
	require.Equal(t, http.StatusCreated, status)
	appID := resourceID(t, doc)

	var admin model.User
	require.NoError(t, gdb.First(&admin, "email = ?", "admin@example.com").Error)

	status, doc = doJSON(t, srv, http.MethodPost, "/api/v1/messages", orgToken, map[string]any{
		"application_id": appID,
		"recipient_id":   admin.ID,
		"subject":        "Question about budget",
		"message":        "Can equipment be included?",
	})
	require.Equal(t, http.StatusCreated, status)
	msgID := resourceID(t, doc)

	// Only the recipient can mark it read.
	status, _ = doJSON(t, srv, http.MethodPost, "/api/v1/messages/"+msgID+"/read", orgToken, nil)
	assert.Equal(t, http.StatusForbidden, status)
	status, _ = doJSON(t, srv, http.MethodPost, "/api/v1/messages/"+msgID+"/read", adminToken, nil)
	assert.Equal(t, http.StatusOK, status)

	status, doc = doJSON(t, srv, http.MethodGet, "/api/v1/messages/unread-count", adminToken, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(0), attrs(t, doc)["unread"])
}

func TestNotificationPreferencesOverHTTP(t *testing.T) {
	srv, gdb := newTestServer(t)
	orgToken := registerAndLogin(t, srv, gdb, "org@example.com")

	status, doc := doJSON(t, srv, http.MethodPut, "/api/v1/notification-preferences", orgToken, map[string]any{
		"event_type":          model.EventStatusUpdate,
		"notification_method": model.NotifyPortal,
	})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, model.NotifyPortal, attrs(t, doc)["notification_method"])

	status, _ = doJSON(t, srv, http.MethodPut, "/api/v1/notification-preferences", orgToken, map[string]any{
		"event_type":          "unknown_event",
		"notification_method": model.NotifyPortal,
	})
	assert.Equal(t, http.StatusUnprocessableEntity, status)

	status, listDoc := doJSON(t, srv, http.MethodPost, "/api/v1/notification-preferences/defaults", orgToken, nil)
	require.Equal(t, http.StatusOK, status)
	rows, _ := listDoc["data"].([]any)
	assert.Len(t, rows, len(model.EventTypes))
}

func TestUnknownRouteReturns404(t *testing.T) {
	srv, _ := newTestServer(t)
	status, _ := doJSON(t, srv, http.MethodGet, "/api/v1/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, status)
}
