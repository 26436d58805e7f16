package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Grant application statuses. Transitions between them are governed by the
// table in package grant.
const (
	StatusDraft       = "draft"
	StatusSubmitted   = "submitted"
	StatusUnderReview = "under_review"
	StatusApproved    = "approved"
	StatusRejected    = "rejected"
)

// Document types accepted as application attachments.
const (
	DocumentProposal  = "proposal"
	DocumentBudget    = "budget"
	DocumentFinancial = "financial"
	DocumentLegal     = "legal"
	DocumentOther     = "other"
)

// GrantApplication is a grant application owned by one organization.
// ReferenceNumber is assigned exactly once, at the draft→submitted
// transition, and is immutable afterwards.
type GrantApplication struct {
	ID               string       `gorm:"type:text;primaryKey"`
	OrganizationID   string       `gorm:"type:text;not null;index"`
	Organization     Organization `gorm:"foreignKey:OrganizationID"`
	ReferenceNumber  *string      `gorm:"type:text;uniqueIndex"`
	Title            string       `gorm:"type:text;not null;default:''"`
	Description      string       `gorm:"type:text;not null;default:''"`
	RequestedAmount  float64      `gorm:"not null;default:0"`
	ProjectStartDate *time.Time
	ProjectEndDate   *time.Time
	Status           string `gorm:"type:text;not null;default:'draft';index"`
	SubmittedAt      *time.Time
	CreatedAt        time.Time `gorm:"not null"`
	UpdatedAt        time.Time `gorm:"not null"`
}

// BeforeCreate generates a UUID primary key if not set.
func (a *GrantApplication) BeforeCreate(_ *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	return nil
}

// CanBeEdited reports whether the application accepts field or document
// changes in its current status.
func (a *GrantApplication) CanBeEdited() bool {
	return a.Status == StatusDraft || a.Status == StatusUnderReview
}

// IsComplete reports whether every required field is populated.
func (a *GrantApplication) IsComplete() bool {
	return len(a.MissingFields()) == 0
}

// MissingFields returns the names of required fields that are still empty.
func (a *GrantApplication) MissingFields() []string {
	var missing []string
	if a.Title == "" {
		missing = append(missing, "title")
	}
	if a.Description == "" {
		missing = append(missing, "description")
	}
	if a.RequestedAmount <= 0 {
		missing = append(missing, "requested_amount")
	}
	if a.ProjectStartDate == nil {
		missing = append(missing, "project_start_date")
	}
	if a.ProjectEndDate == nil {
		missing = append(missing, "project_end_date")
	}
	return missing
}

// CanBeSubmitted reports whether the application is a complete draft.
func (a *GrantApplication) CanBeSubmitted() bool {
	return a.Status == StatusDraft && a.IsComplete()
}

// ApplicationDocument is a file attached to an application. The file body
// lives on disk under the media directory; the row records its size.
type ApplicationDocument struct {
	ID            string           `gorm:"type:text;primaryKey"`
	ApplicationID string           `gorm:"type:text;not null;index"`
	Application   GrantApplication `gorm:"foreignKey:ApplicationID"`
	DocumentType  string           `gorm:"type:text;not null"`
	Name          string           `gorm:"type:text;not null"`
	FilePath      string           `gorm:"type:text;not null"`
	FileSize      int64            `gorm:"not null"`
	UploadedAt    time.Time        `gorm:"not null;autoCreateTime"`
}

// BeforeCreate generates a UUID primary key if not set.
func (d *ApplicationDocument) BeforeCreate(_ *gorm.DB) error {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	return nil
}

// ApplicationStatusHistory is the append-only log of status transitions.
// Rows are never updated or deleted.
type ApplicationStatusHistory struct {
	ID             string    `gorm:"type:text;primaryKey"`
	ApplicationID  string    `gorm:"type:text;not null;index"`
	PreviousStatus *string   `gorm:"type:text"`
	NewStatus      string    `gorm:"type:text;not null"`
	ChangedByID    *string   `gorm:"type:text"`
	Reason         string    `gorm:"type:text;not null;default:''"`
	Timestamp      time.Time `gorm:"not null;autoCreateTime"`
}

// BeforeCreate generates a UUID primary key if not set.
func (h *ApplicationStatusHistory) BeforeCreate(_ *gorm.DB) error {
	if h.ID == "" {
		h.ID = uuid.New().String()
	}
	return nil
}
