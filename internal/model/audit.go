package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Audit log action types.
const (
	ActionCreate         = "create"
	ActionRead           = "read"
	ActionUpdate         = "update"
	ActionDelete         = "delete"
	ActionLogin          = "login"
	ActionLogout         = "logout"
	ActionLoginFailed    = "login_failed"
	ActionPasswordChange = "password_change"
	ActionEmailVerify    = "email_verify"
	ActionStatusChange   = "status_change"
	ActionFileUpload     = "file_upload"
)

// Risk levels attached to audit records.
const (
	RiskLow      = "low"
	RiskMedium   = "medium"
	RiskHigh     = "high"
	RiskCritical = "critical"
)

// Security event types.
const (
	SecurityLoginSuccess       = "login_success"
	SecurityLoginFailure       = "login_failure"
	SecurityLoginBlocked       = "login_blocked"
	SecurityPasswordChange     = "password_change"
	SecurityPasswordReset      = "password_reset"
	SecurityPermissionDenied   = "permission_denied"
	SecurityUnauthorizedAccess = "unauthorized_access"
	SecuritySuspiciousActivity = "suspicious_activity"
)

// Security event severities.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Data access types.
const (
	AccessView     = "view"
	AccessList     = "list"
	AccessDownload = "download"
)

// AuditLog records one API action. Rows are append-only: no update or
// delete route exists for them. Checksum is a SHA-256 over a canonical
// serialization of the identifying fields; see package audit.
type AuditLog struct {
	ID            string    `gorm:"type:text;primaryKey"`
	UserID        *string   `gorm:"type:text;index:idx_audit_user_ts"`
	Action        string    `gorm:"type:text;not null;index:idx_audit_action_ts"`
	ResourceType  string    `gorm:"type:text;not null;index:idx_audit_resource_ts"`
	ResourceID    string    `gorm:"type:text;not null;default:''"`
	OldValues     JSONMap   `gorm:"type:text;serializer:json"`
	NewValues     JSONMap   `gorm:"type:text;serializer:json"`
	IPAddress     string    `gorm:"type:text;not null;default:''"`
	UserAgent     string    `gorm:"type:text;not null;default:''"`
	RequestMethod string    `gorm:"type:text;not null;default:''"`
	RequestPath   string    `gorm:"type:text;not null;default:''"`
	Description   string    `gorm:"type:text;not null;default:''"`
	RiskLevel     string    `gorm:"type:text;not null;default:'low'"`
	Success       bool      `gorm:"not null;default:true"`
	ErrorMessage  string    `gorm:"type:text;not null;default:''"`
	Checksum      string    `gorm:"type:text;not null;default:''"`
	Timestamp     time.Time `gorm:"not null;index:idx_audit_user_ts;index:idx_audit_action_ts;index:idx_audit_resource_ts"`
}

// BeforeCreate generates a UUID primary key if not set.
func (l *AuditLog) BeforeCreate(_ *gorm.DB) error {
	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	return nil
}

// SecurityEvent records a security-relevant occurrence such as a failed
// login or a request matching an attack pattern.
type SecurityEvent struct {
	ID                 string    `gorm:"type:text;primaryKey"`
	UserID             *string   `gorm:"type:text"`
	EventType          string    `gorm:"type:text;not null;index"`
	Severity           string    `gorm:"type:text;not null;index"`
	Description        string    `gorm:"type:text;not null"`
	AdditionalData     JSONMap   `gorm:"type:text;serializer:json"`
	IPAddress          string    `gorm:"type:text;not null;default:'';index"`
	UserAgent          string    `gorm:"type:text;not null;default:''"`
	RequestPath        string    `gorm:"type:text;not null;default:''"`
	ResponseStatus     *int
	Investigated       bool      `gorm:"not null;default:false;index"`
	InvestigatedByID   *string   `gorm:"type:text"`
	InvestigationNotes string    `gorm:"type:text;not null;default:''"`
	Timestamp          time.Time `gorm:"not null;index"`
}

// BeforeCreate generates a UUID primary key if not set.
func (e *SecurityEvent) BeforeCreate(_ *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	return nil
}

// DataAccessLog records read access to listable resources.
type DataAccessLog struct {
	ID           string    `gorm:"type:text;primaryKey"`
	UserID       *string   `gorm:"type:text;index"`
	AccessType   string    `gorm:"type:text;not null"`
	ResourceType string    `gorm:"type:text;not null;index"`
	QueryParams  JSONMap   `gorm:"type:text;serializer:json"`
	ResultCount  int       `gorm:"not null;default:0"`
	IPAddress    string    `gorm:"type:text;not null;default:''"`
	UserAgent    string    `gorm:"type:text;not null;default:''"`
	Timestamp    time.Time `gorm:"not null;index"`
}

// BeforeCreate generates a UUID primary key if not set.
func (l *DataAccessLog) BeforeCreate(_ *gorm.DB) error {
	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	return nil
}

// SystemHealthLog stores metric samples written by the health snapshot job.
type SystemHealthLog struct {
	ID         string    `gorm:"type:text;primaryKey"`
	MetricType string    `gorm:"type:text;not null;index"`
	Value      float64   `gorm:"not null"`
	Unit       string    `gorm:"type:text;not null;default:''"`
	IsHealthy  bool      `gorm:"not null;default:true;index"`
	Metadata   JSONMap   `gorm:"type:text;serializer:json"`
	Timestamp  time.Time `gorm:"not null;index"`
}

// BeforeCreate generates a UUID primary key if not set.
func (l *SystemHealthLog) BeforeCreate(_ *gorm.DB) error {
	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	return nil
}
