package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Message types for point-to-point communications.
const (
	MessageGeneral      = "message"
	MessageRequestInfo  = "request_info"
	MessageStatusUpdate = "status_update"
	MessageSystem       = "system"
)

// Message priorities.
const (
	PriorityLow    = "low"
	PriorityNormal = "normal"
	PriorityHigh   = "high"
)

// Notification delivery methods.
const (
	NotifyEmail  = "email"
	NotifyPortal = "portal"
	NotifyBoth   = "both"
	NotifyNone   = "none"
)

// Notification event types.
const (
	EventStatusUpdate       = "status_update"
	EventNewMessage         = "new_message"
	EventAssessmentComplete = "assessment_complete"
	EventDocumentRequest    = "document_request"
	EventDeadlineReminder   = "deadline_reminder"
)

// EventTypes lists every valid notification event type.
var EventTypes = []string{
	EventStatusUpdate,
	EventNewMessage,
	EventAssessmentComplete,
	EventDocumentRequest,
	EventDeadlineReminder,
}

// Portal notification severities.
const (
	PortalInfo    = "info"
	PortalSuccess = "success"
	PortalWarning = "warning"
	PortalError   = "error"
)

// Communication is a point-to-point message scoped to one application.
// Organizations may not message other organizations; messages between two
// administrators are internal and hidden from organizations.
type Communication struct {
	ID            string           `gorm:"type:text;primaryKey"`
	ApplicationID string           `gorm:"type:text;not null;index"`
	Application   GrantApplication `gorm:"foreignKey:ApplicationID"`
	SenderID      string           `gorm:"type:text;not null;index"`
	Sender        User             `gorm:"foreignKey:SenderID"`
	RecipientID   string           `gorm:"type:text;not null;index"`
	Recipient     User             `gorm:"foreignKey:RecipientID"`
	MessageType   string           `gorm:"type:text;not null;default:'message'"`
	Subject       string           `gorm:"type:text;not null"`
	Message       string           `gorm:"type:text;not null"`
	IsInternal    bool             `gorm:"not null;default:false"`
	Priority      string           `gorm:"type:text;not null;default:'normal'"`
	SentAt        time.Time        `gorm:"not null;autoCreateTime"`
	ReadAt        *time.Time
}

// BeforeCreate generates a UUID primary key if not set.
func (c *Communication) BeforeCreate(_ *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	return nil
}

// IsRead reports whether the recipient has read the message.
func (c *Communication) IsRead() bool { return c.ReadAt != nil }

// CommunicationThread groups related messages about one application.
type CommunicationThread struct {
	ID            string              `gorm:"type:text;primaryKey"`
	ApplicationID string              `gorm:"type:text;not null;index"`
	Application   GrantApplication    `gorm:"foreignKey:ApplicationID"`
	Subject       string              `gorm:"type:text;not null"`
	IsClosed      bool                `gorm:"not null;default:false"`
	ClosedByID    *string             `gorm:"type:text"`
	ClosedAt      *time.Time
	Participants  []ThreadParticipant `gorm:"foreignKey:ThreadID"`
	Messages      []ThreadMessage     `gorm:"foreignKey:ThreadID"`
	CreatedAt     time.Time           `gorm:"not null"`
	UpdatedAt     time.Time           `gorm:"not null"`
}

// BeforeCreate generates a UUID primary key if not set.
func (t *CommunicationThread) BeforeCreate(_ *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	return nil
}

// ThreadParticipant joins users to the threads they take part in.
type ThreadParticipant struct {
	ID       string `gorm:"type:text;primaryKey"`
	ThreadID string `gorm:"type:text;not null;uniqueIndex:idx_thread_participant"`
	UserID   string `gorm:"type:text;not null;uniqueIndex:idx_thread_participant"`
	User     User   `gorm:"foreignKey:UserID"`
}

// BeforeCreate generates a UUID primary key if not set.
func (p *ThreadParticipant) BeforeCreate(_ *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	return nil
}

// ThreadMessage is one message inside a thread.
type ThreadMessage struct {
	ID         string    `gorm:"type:text;primaryKey"`
	ThreadID   string    `gorm:"type:text;not null;index"`
	SenderID   string    `gorm:"type:text;not null"`
	Sender     User      `gorm:"foreignKey:SenderID"`
	Message    string    `gorm:"type:text;not null"`
	IsInternal bool      `gorm:"not null;default:false"`
	SentAt     time.Time `gorm:"not null;autoCreateTime"`
}

// BeforeCreate generates a UUID primary key if not set.
func (m *ThreadMessage) BeforeCreate(_ *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	return nil
}

// NotificationPreference selects delivery channels per (user, event type).
// Absent rows mean both channels enabled.
type NotificationPreference struct {
	ID                 string `gorm:"type:text;primaryKey"`
	UserID             string `gorm:"type:text;not null;uniqueIndex:idx_pref_user_event"`
	EventType          string `gorm:"type:text;not null;uniqueIndex:idx_pref_user_event"`
	NotificationMethod string `gorm:"type:text;not null;default:'both'"`
	IsEnabled          bool   `gorm:"not null;default:true"`
}

// BeforeCreate generates a UUID primary key if not set.
func (p *NotificationPreference) BeforeCreate(_ *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	return nil
}

// PortalNotification is an in-app notification record.
type PortalNotification struct {
	ID               string  `gorm:"type:text;primaryKey"`
	UserID           string  `gorm:"type:text;not null;index"`
	Title            string  `gorm:"type:text;not null"`
	Message          string  `gorm:"type:text;not null"`
	NotificationType string  `gorm:"type:text;not null;default:'info'"`
	ApplicationID    *string `gorm:"type:text"`
	CommunicationID  *string `gorm:"type:text"`
	IsRead           bool    `gorm:"not null;default:false"`
	ReadAt           *time.Time
	CreatedAt        time.Time `gorm:"not null"`
}

// BeforeCreate generates a UUID primary key if not set.
func (n *PortalNotification) BeforeCreate(_ *gorm.DB) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	return nil
}

// EmailTemplate holds a named subject/body pair with {{variable}}
// placeholders, selected by event type during notification fan-out.
type EmailTemplate struct {
	ID           string    `gorm:"type:text;primaryKey"`
	Name         string    `gorm:"type:text;not null"`
	TemplateType string    `gorm:"type:text;not null;index"`
	Subject      string    `gorm:"type:text;not null"`
	Body         string    `gorm:"type:text;not null"`
	IsActive     bool      `gorm:"not null;default:true"`
	CreatedByID  *string   `gorm:"type:text"`
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time `gorm:"not null"`
}

// BeforeCreate generates a UUID primary key if not set.
func (t *EmailTemplate) BeforeCreate(_ *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	return nil
}
