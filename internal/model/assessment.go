package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Assessment recommendations.
const (
	RecommendApprove     = "approve"
	RecommendReject      = "reject"
	RecommendRequestInfo = "request_info"
)

// Criteria types used by assessments and templates.
const (
	CriteriaProjectQuality       = "project_quality"
	CriteriaFeasibility          = "feasibility"
	CriteriaBudget               = "budget"
	CriteriaImpact               = "impact"
	CriteriaOrganizationCapacity = "organization_capacity"
	CriteriaInnovation           = "innovation"
	CriteriaSustainability       = "sustainability"
)

// CriteriaTypes lists every valid criteria type.
var CriteriaTypes = []string{
	CriteriaProjectQuality,
	CriteriaFeasibility,
	CriteriaBudget,
	CriteriaImpact,
	CriteriaOrganizationCapacity,
	CriteriaInnovation,
	CriteriaSustainability,
}

// Review statuses for AssessmentReview.
const (
	ReviewPending       = "pending"
	ReviewApproved      = "approved"
	ReviewRejected      = "rejected"
	ReviewNeedsRevision = "needs_revision"
)

// Assessment is one administrator's scoring of one application. At most one
// per (application, administrator) pair.
type Assessment struct {
	ID              string               `gorm:"type:text;primaryKey"`
	ApplicationID   string               `gorm:"type:text;not null;uniqueIndex:idx_assessment_app_admin"`
	Application     GrantApplication     `gorm:"foreignKey:ApplicationID"`
	AdministratorID string               `gorm:"type:text;not null;uniqueIndex:idx_assessment_app_admin"`
	Administrator   User                 `gorm:"foreignKey:AdministratorID"`
	Score           int                  `gorm:"not null"`
	Comments        string               `gorm:"type:text;not null;default:''"`
	Recommendation  string               `gorm:"type:text;not null"`
	Criteria        []AssessmentCriteria `gorm:"foreignKey:AssessmentID"`
	CreatedAt       time.Time            `gorm:"not null"`
	UpdatedAt       time.Time            `gorm:"not null"`
}

// BeforeCreate generates a UUID primary key if not set.
func (a *Assessment) BeforeCreate(_ *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	return nil
}

// AssessmentCriteria is one weighted sub-score of an assessment, unique per
// (assessment, criteria type).
type AssessmentCriteria struct {
	ID           string  `gorm:"type:text;primaryKey"`
	AssessmentID string  `gorm:"type:text;not null;uniqueIndex:idx_criteria_assessment_type"`
	CriteriaType string  `gorm:"type:text;not null;uniqueIndex:idx_criteria_assessment_type"`
	Score        int     `gorm:"not null"`
	Comments     string  `gorm:"type:text;not null;default:''"`
	Weight       float64 `gorm:"not null;default:1.0"`
}

// BeforeCreate generates a UUID primary key if not set.
func (c *AssessmentCriteria) BeforeCreate(_ *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	return nil
}

// WeightedScore is the criterion's contribution to the assessment aggregate.
func (c *AssessmentCriteria) WeightedScore() float64 {
	return float64(c.Score) * c.Weight
}

// AssessmentTemplate is a reusable set of pre-weighted criteria.
type AssessmentTemplate struct {
	ID          string                       `gorm:"type:text;primaryKey"`
	Name        string                       `gorm:"type:text;not null"`
	Description string                       `gorm:"type:text;not null;default:''"`
	IsActive    bool                         `gorm:"not null;default:true"`
	CreatedByID string                       `gorm:"type:text;not null"`
	Criteria    []AssessmentTemplateCriteria `gorm:"foreignKey:TemplateID"`
	CreatedAt   time.Time                    `gorm:"not null"`
	UpdatedAt   time.Time                    `gorm:"not null"`
}

// BeforeCreate generates a UUID primary key if not set.
func (t *AssessmentTemplate) BeforeCreate(_ *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	return nil
}

// AssessmentTemplateCriteria is one criterion definition inside a template,
// unique per (template, criteria type).
type AssessmentTemplateCriteria struct {
	ID           string  `gorm:"type:text;primaryKey"`
	TemplateID   string  `gorm:"type:text;not null;uniqueIndex:idx_tpl_criteria_type"`
	CriteriaType string  `gorm:"type:text;not null;uniqueIndex:idx_tpl_criteria_type"`
	Weight       float64 `gorm:"not null;default:1.0"`
	IsRequired   bool    `gorm:"not null;default:true"`
	Description  string  `gorm:"type:text;not null;default:''"`
}

// BeforeCreate generates a UUID primary key if not set.
func (c *AssessmentTemplateCriteria) BeforeCreate(_ *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	return nil
}

// AssessmentReview is a second administrator's verdict on an assessment.
// The reviewer must differ from the assessment's administrator.
type AssessmentReview struct {
	ID           string     `gorm:"type:text;primaryKey"`
	AssessmentID string     `gorm:"type:text;not null;uniqueIndex:idx_review_assessment_reviewer"`
	Assessment   Assessment `gorm:"foreignKey:AssessmentID"`
	ReviewerID   string     `gorm:"type:text;not null;uniqueIndex:idx_review_assessment_reviewer"`
	Reviewer     User       `gorm:"foreignKey:ReviewerID"`
	Status       string     `gorm:"type:text;not null;default:'pending'"`
	Comments     string     `gorm:"type:text;not null;default:''"`
	ReviewedAt   time.Time  `gorm:"not null;autoCreateTime"`
}

// BeforeCreate generates a UUID primary key if not set.
func (r *AssessmentReview) BeforeCreate(_ *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	return nil
}
