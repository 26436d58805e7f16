package middleware_test

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/d9705996/granthub/internal/api/middleware"
	"github.com/d9705996/granthub/internal/audit"
	"github.com/d9705996/granthub/internal/auth"
	"github.com/d9705996/granthub/internal/model"
	"github.com/d9705996/granthub/internal/ratelimit"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testSecret = "test-secret-at-least-32-bytes-long"

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.AuditLog{}, &model.SecurityEvent{}, &model.DataAccessLog{}))
	return db
}

func TestRequireAuth(t *testing.T) {
	h := middleware.RequireAuth(testSecret)(okHandler())

	// No header.
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Garbage token.
	w = httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer not.a.jwt")
	h.ServeHTTP(w, r)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Valid token.
	token, err := auth.IssueAccessToken("user-1", "user@example.com", model.RoleOrganization, "org-1", testSecret, time.Minute)
	require.NoError(t, err)
	w = httptest.NewRecorder()
	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	h.ServeHTTP(w, r)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequireRole(t *testing.T) {
	chain := middleware.RequireAuth(testSecret)(
		middleware.RequireRole(model.RoleAdministrator)(okHandler()))

	orgToken, err := auth.IssueAccessToken("user-1", "org@example.com", model.RoleOrganization, "org-1", testSecret, time.Minute)
	require.NoError(t, err)
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer "+orgToken)
	chain.ServeHTTP(w, r)
	assert.Equal(t, http.StatusForbidden, w.Code)

	adminToken, err := auth.IssueAccessToken("user-2", "admin@example.com", model.RoleAdministrator, "", testSecret, time.Minute)
	require.NoError(t, err)
	w = httptest.NewRecorder()
	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer "+adminToken)
	chain.ServeHTTP(w, r)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAudit_RecordsMutations(t *testing.T) {
	db := openTestDB(t)
	rec := audit.NewRecorder(db, slog.Default())
	h := middleware.Audit(rec)(okHandler())

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/applications", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	var rows []model.AuditLog
	require.NoError(t, db.Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, model.ActionCreate, rows[0].Action)
	assert.Equal(t, "applications", rows[0].ResourceType)
	assert.True(t, rows[0].Success)
	assert.NotEmpty(t, rows[0].Checksum)

	// GET requests produce a data access row instead of an audit row.
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/applications?status=draft", nil))
	require.NoError(t, db.Find(&rows).Error)
	assert.Len(t, rows, 1)

	var access []model.DataAccessLog
	require.NoError(t, db.Find(&access).Error)
	require.Len(t, access, 1)
	assert.Equal(t, model.AccessList, access[0].AccessType)
	assert.Equal(t, "applications", access[0].ResourceType)
}

func TestAudit_FlagsSuspiciousRequests(t *testing.T) {
	db := openTestDB(t)
	rec := audit.NewRecorder(db, slog.Default())
	h := middleware.Audit(rec)(okHandler())

	r := httptest.NewRequest(http.MethodGet, "/api/v1/applications?q=union+select+1", nil)
	h.ServeHTTP(httptest.NewRecorder(), r)

	var evs []model.SecurityEvent
	require.NoError(t, db.Find(&evs).Error)
	require.Len(t, evs, 1)
	assert.Equal(t, model.SecuritySuspiciousActivity, evs[0].EventType)
}

func TestAudit_RecordsDeniedRequests(t *testing.T) {
	db := openTestDB(t)
	rec := audit.NewRecorder(db, slog.Default())
	denied := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})
	h := middleware.Audit(rec)(denied)

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/audit/logs", nil))

	var evs []model.SecurityEvent
	require.NoError(t, db.Find(&evs).Error)
	require.Len(t, evs, 1)
	assert.Equal(t, model.SecurityPermissionDenied, evs[0].EventType)
	require.NotNil(t, evs[0].ResponseStatus)
	assert.Equal(t, http.StatusForbidden, *evs[0].ResponseStatus)
}

func TestLoginRateLimit(t *testing.T) {
	db := openTestDB(t)
	rec := audit.NewRecorder(db, slog.Default())
	limiter := ratelimit.New(2, time.Minute)
	h := middleware.LoginRateLimit(limiter, rec)(okHandler())

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil)
		r.RemoteAddr = "203.0.113.9:1000"
		h.ServeHTTP(w, r)
		assert.Equal(t, http.StatusOK, w.Code)
	}

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil)
	r.RemoteAddr = "203.0.113.9:1000"
	h.ServeHTTP(w, r)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	var evs []model.SecurityEvent
	require.NoError(t, db.Find(&evs).Error)
	require.Len(t, evs, 1)
	assert.Equal(t, model.SecurityLoginBlocked, evs[0].EventType)

	// A different IP is unaffected.
	w = httptest.NewRecorder()
	r = httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil)
	r.RemoteAddr = "198.51.100.7:1000"
	h.ServeHTTP(w, r)
	assert.Equal(t, http.StatusOK, w.Code)
}
