package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/d9705996/granthub/internal/model"
	"gorm.io/gorm"
)

// Entry is the caller-supplied portion of an audit log row.
type Entry struct {
	UserID        *string
	Action        string
	ResourceType  string
	ResourceID    string
	OldValues     model.JSONMap
	NewValues     model.JSONMap
	IPAddress     string
	UserAgent     string
	RequestMethod string
	RequestPath   string
	Description   string
	RiskLevel     string
	Success       bool
	ErrorMessage  string
}

// Recorder persists audit rows. A failed write must never fail the request
// that produced it, so every Record method logs the error and returns.
type Recorder struct {
	db  *gorm.DB
	log *slog.Logger
}

// NewRecorder creates a Recorder writing through the given GORM DB.
func NewRecorder(db *gorm.DB, log *slog.Logger) *Recorder {
	return &Recorder{db: db, log: log}
}

// Record writes one audit log row with its checksum.
func (r *Recorder) Record(ctx context.Context, e Entry) {
	if e.RiskLevel == "" {
		e.RiskLevel = model.RiskLow
	}
	row := &model.AuditLog{
		UserID:        e.UserID,
		Action:        e.Action,
		ResourceType:  e.ResourceType,
		ResourceID:    e.ResourceID,
		OldValues:     e.OldValues,
		NewValues:     e.NewValues,
		IPAddress:     e.IPAddress,
		UserAgent:     e.UserAgent,
		RequestMethod: e.RequestMethod,
		RequestPath:   e.RequestPath,
		Description:   e.Description,
		RiskLevel:     e.RiskLevel,
		Success:       e.Success,
		ErrorMessage:  e.ErrorMessage,
		// Microsecond precision survives a PostgreSQL round-trip, so
		// Verify can recompute the same digest from the stored row.
		Timestamp: time.Now().UTC().Truncate(time.Microsecond),
	}
	row.Checksum = Checksum(row)
	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		r.log.WarnContext(ctx, "audit log write failed", "action", e.Action, "error", err)
	}
}

// SecurityEvent writes one security event row.
func (r *Recorder) SecurityEvent(ctx context.Context, ev *model.SecurityEvent) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	if err := r.db.WithContext(ctx).Create(ev).Error; err != nil {
		r.log.WarnContext(ctx, "security event write failed", "event_type", ev.EventType, "error", err)
	}
}

// DataAccess writes one data access log row.
func (r *Recorder) DataAccess(ctx context.Context, userID *string, accessType, resourceType string, params model.JSONMap, resultCount int, ip, userAgent string) {
	row := &model.DataAccessLog{
		UserID:       userID,
		AccessType:   accessType,
		ResourceType: resourceType,
		QueryParams:  params,
		ResultCount:  resultCount,
		IPAddress:    ip,
		UserAgent:    userAgent,
		Timestamp:    time.Now().UTC(),
	}
	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		r.log.WarnContext(ctx, "data access log write failed", "resource_type", resourceType, "error", err)
	}
}

// Verify recomputes the checksum of one stored audit log row.
func (r *Recorder) Verify(ctx context.Context, logID string) (bool, error) {
	var row model.AuditLog
	if err := r.db.WithContext(ctx).First(&row, "id = ?", logID).Error; err != nil {
		return false, err
	}
	return VerifyChecksum(&row), nil
}
