package assess

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/d9705996/granthub/internal/grant"
	"github.com/d9705996/granthub/internal/model"
	"gorm.io/gorm"
)

// Errors returned by the assessment operations.
var (
	ErrNotAssessable     = errors.New("application is not open for assessment")
	ErrDuplicateEntry    = errors.New("administrator has already assessed this application")
	ErrScoreRange        = errors.New("score must be between 1 and 10")
	ErrWeightRange       = errors.New("weight must be between 0.1 and 2.0")
	ErrBadCriteriaType   = errors.New("unknown criteria type")
	ErrDuplicateCriteria = errors.New("duplicate criteria type in assessment")
	ErrBadRecommendation = errors.New("unknown recommendation")
	ErrSelfReview        = errors.New("reviewer must differ from the assessor")
	ErrDuplicateReview   = errors.New("reviewer has already reviewed this assessment")
	ErrBadReviewStatus   = errors.New("unknown review status")
	ErrNotAssessor       = errors.New("only the original assessor may change an assessment")
)

// Notifier receives assessment events for fan-out.
type Notifier interface {
	AssessmentCompleted(ctx context.Context, app *model.GrantApplication, a *model.Assessment) error
	AssessmentReviewed(ctx context.Context, review *model.AssessmentReview) error
}

// Service performs assessment mutations inside transactions.
type Service struct {
	db       *gorm.DB
	grants   *grant.Service
	notifier Notifier
}

// NewService creates a Service. notifier may be nil.
func NewService(db *gorm.DB, grants *grant.Service, notifier Notifier) *Service {
	return &Service{db: db, grants: grants, notifier: notifier}
}

// CriteriaInput is one weighted sub-score in a create request.
type CriteriaInput struct {
	CriteriaType string
	Score        int
	Comments     string
	Weight       float64
}

// CreateInput is a create-with-criteria request.
type CreateInput struct {
	ApplicationID  string
	Score          int
	Comments       string
	Recommendation string
	Criteria       []CriteriaInput
}

func validateScore(score int) error {
	if score < 1 || score > 10 {
		return ErrScoreRange
	}
	return nil
}

func validateCriteria(criteria []CriteriaInput) error {
	seen := map[string]bool{}
	for _, c := range criteria {
		if !slices.Contains(model.CriteriaTypes, c.CriteriaType) {
			return fmt.Errorf("%w: %s", ErrBadCriteriaType, c.CriteriaType)
		}
		if seen[c.CriteriaType] {
			return fmt.Errorf("%w: %s", ErrDuplicateCriteria, c.CriteriaType)
		}
		seen[c.CriteriaType] = true
		if err := validateScore(c.Score); err != nil {
			return err
		}
		if c.Weight < 0.1 || c.Weight > 2.0 {
			return ErrWeightRange
		}
	}
	return nil
}

// Create records an administrator's assessment with its criteria in one
// transaction. The first assessment on a submitted application advances it
// to under_review.
func (s *Service) Create(ctx context.Context, admin *model.User, in CreateInput) (*model.Assessment, error) {
	if err := validateScore(in.Score); err != nil {
		return nil, err
	}
	if !slices.Contains([]string{model.RecommendApprove, model.RecommendReject, model.RecommendRequestInfo}, in.Recommendation) {
		return nil, ErrBadRecommendation
	}
	if err := validateCriteria(in.Criteria); err != nil {
		return nil, err
	}

	var assessment *model.Assessment
	var app model.GrantApplication
	var advance bool

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&app, "id = ?", in.ApplicationID).Error; err != nil {
			return fmt.Errorf("load application: %w", err)
		}
		if app.Status != model.StatusSubmitted && app.Status != model.StatusUnderReview {
			return ErrNotAssessable
		}

		var count int64
		if err := tx.Model(&model.Assessment{}).
			Where("application_id = ? AND administrator_id = ?", in.ApplicationID, admin.ID).
			Count(&count).Error; err != nil {
			return fmt.Errorf("check existing assessment: %w", err)
		}
		if count > 0 {
			return ErrDuplicateEntry
		}

		assessment = &model.Assessment{
			ApplicationID:   in.ApplicationID,
			AdministratorID: admin.ID,
			Score:           in.Score,
			Comments:        in.Comments,
			Recommendation:  in.Recommendation,
		}
		if err := tx.Create(assessment).Error; err != nil {
			return fmt.Errorf("create assessment: %w", err)
		}
		for _, c := range in.Criteria {
			row := &model.AssessmentCriteria{
				AssessmentID: assessment.ID,
				CriteriaType: c.CriteriaType,
				Score:        c.Score,
				Comments:     c.Comments,
				Weight:       c.Weight,
			}
			if err := tx.Create(row).Error; err != nil {
				return fmt.Errorf("create assessment criteria: %w", err)
			}
			assessment.Criteria = append(assessment.Criteria, *row)
		}

		advance = app.Status == model.StatusSubmitted
		return nil
	})
	if err != nil {
		return nil, err
	}

	if advance {
		if _, err := s.grants.Transition(ctx, app.ID, admin, model.StatusUnderReview, "first assessment received"); err != nil {
			return assessment, fmt.Errorf("advance to under_review: %w", err)
		}
	}
	if s.notifier != nil {
		if err := s.notifier.AssessmentCompleted(ctx, &app, assessment); err != nil {
			return assessment, fmt.Errorf("notify assessment: %w", err)
		}
	}
	return assessment, nil
}

// UpdateInput carries the mutable assessment fields. Nil fields are left
// unchanged; a non-nil Criteria slice replaces the existing criteria.
type UpdateInput struct {
	Score          *int
	Comments       *string
	Recommendation *string
	Criteria       []CriteriaInput
}

// Update rewrites an assessment and, when criteria are given, replaces its
// criteria set in the same transaction. Only the original assessor may
// update, and only while the application is still open for assessment.
func (s *Service) Update(ctx context.Context, admin *model.User, id string, in UpdateInput) (*model.Assessment, error) {
	if in.Score != nil {
		if err := validateScore(*in.Score); err != nil {
			return nil, err
		}
	}
	if in.Recommendation != nil &&
		!slices.Contains([]string{model.RecommendApprove, model.RecommendReject, model.RecommendRequestInfo}, *in.Recommendation) {
		return nil, ErrBadRecommendation
	}
	if err := validateCriteria(in.Criteria); err != nil {
		return nil, err
	}

	var a model.Assessment
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&a, "id = ?", id).Error; err != nil {
			return err
		}
		if a.AdministratorID != admin.ID {
			return ErrNotAssessor
		}
		var app model.GrantApplication
		if err := tx.First(&app, "id = ?", a.ApplicationID).Error; err != nil {
			return fmt.Errorf("load application: %w", err)
		}
		if app.Status != model.StatusSubmitted && app.Status != model.StatusUnderReview {
			return ErrNotAssessable
		}

		updates := map[string]any{}
		if in.Score != nil {
			updates["score"] = *in.Score
			a.Score = *in.Score
		}
		if in.Comments != nil {
			updates["comments"] = *in.Comments
			a.Comments = *in.Comments
		}
		if in.Recommendation != nil {
			updates["recommendation"] = *in.Recommendation
			a.Recommendation = *in.Recommendation
		}
		if len(updates) > 0 {
			if err := tx.Model(&a).Updates(updates).Error; err != nil {
				return fmt.Errorf("update assessment: %w", err)
			}
		}

		if in.Criteria != nil {
			if err := tx.Where("assessment_id = ?", a.ID).
				Delete(&model.AssessmentCriteria{}).Error; err != nil {
				return fmt.Errorf("clear assessment criteria: %w", err)
			}
			a.Criteria = nil
			for _, c := range in.Criteria {
				row := &model.AssessmentCriteria{
					AssessmentID: a.ID,
					CriteriaType: c.CriteriaType,
					Score:        c.Score,
					Comments:     c.Comments,
					Weight:       c.Weight,
				}
				if err := tx.Create(row).Error; err != nil {
					return fmt.Errorf("create assessment criteria: %w", err)
				}
				a.Criteria = append(a.Criteria, *row)
			}
			return nil
		}
		return tx.Where("assessment_id = ?", a.ID).
			Order("criteria_type ASC").Find(&a.Criteria).Error
	})
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// Get loads one assessment with its criteria.
func (s *Service) Get(ctx context.Context, id string) (*model.Assessment, error) {
	var a model.Assessment
	if err := s.db.WithContext(ctx).Preload("Criteria").First(&a, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

// ForApplication lists the application's assessments with criteria.
func (s *Service) ForApplication(ctx context.Context, applicationID string) ([]model.Assessment, error) {
	var rows []model.Assessment
	err := s.db.WithContext(ctx).
		Preload("Criteria").
		Where("application_id = ?", applicationID).
		Order("created_at ASC").
		Find(&rows).Error
	return rows, err
}

// ForAdministrator lists assessments written by one administrator.
func (s *Service) ForAdministrator(ctx context.Context, adminID string) ([]model.Assessment, error) {
	var rows []model.Assessment
	err := s.db.WithContext(ctx).
		Preload("Criteria").
		Where("administrator_id = ?", adminID).
		Order("created_at DESC").
		Find(&rows).Error
	return rows, err
}

// Summary describes an application's combined assessment picture.
type Summary struct {
	ApplicationID   string   `json:"application_id"`
	AssessmentCount int      `json:"assessment_count"`
	AverageScore    *float64 `json:"average_score"`
	Aggregates      []struct {
		AssessmentID string   `json:"assessment_id"`
		Aggregate    *float64 `json:"aggregate"`
	} `json:"aggregates"`
	Recommendations map[string]int `json:"recommendations"`
}

// Summarize computes the per-assessment aggregates and recommendation tally
// for one application.
func (s *Service) Summarize(ctx context.Context, applicationID string) (*Summary, error) {
	rows, err := s.ForApplication(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	sum := &Summary{
		ApplicationID:   applicationID,
		AssessmentCount: len(rows),
		Recommendations: map[string]int{},
	}
	var total int
	for _, a := range rows {
		sum.Recommendations[a.Recommendation]++
		total += a.Score
		sum.Aggregates = append(sum.Aggregates, struct {
			AssessmentID string   `json:"assessment_id"`
			Aggregate    *float64 `json:"aggregate"`
		}{a.ID, Aggregate(a.Criteria)})
	}
	if len(rows) > 0 {
		avg := float64(total) / float64(len(rows))
		sum.AverageScore = &avg
	}
	return sum, nil
}

// Stats aggregates workload counts across all assessments.
type Stats struct {
	Total           int64          `json:"total"`
	Recommendations map[string]int `json:"recommendations"`
	ByAdministrator map[string]int `json:"by_administrator"`
	ReviewsPending  int64          `json:"reviews_pending"`
}

// Statistics returns overall assessment workload counts.
func (s *Service) Statistics(ctx context.Context) (*Stats, error) {
	st := &Stats{Recommendations: map[string]int{}, ByAdministrator: map[string]int{}}
	if err := s.db.WithContext(ctx).Model(&model.Assessment{}).Count(&st.Total).Error; err != nil {
		return nil, err
	}
	type recCount struct {
		Recommendation string
		N              int
	}
	var recs []recCount
	if err := s.db.WithContext(ctx).Model(&model.Assessment{}).
		Select("recommendation, COUNT(*) AS n").
		Group("recommendation").
		Scan(&recs).Error; err != nil {
		return nil, err
	}
	for _, r := range recs {
		st.Recommendations[r.Recommendation] = r.N
	}
	type adminCount struct {
		Email string
		N     int
	}
	var admins []adminCount
	if err := s.db.WithContext(ctx).Model(&model.Assessment{}).
		Select("users.email AS email, COUNT(*) AS n").
		Joins("JOIN users ON users.id = assessments.administrator_id").
		Group("users.email").
		Scan(&admins).Error; err != nil {
		return nil, err
	}
	for _, a := range admins {
		st.ByAdministrator[a.Email] = a.N
	}
	if err := s.db.WithContext(ctx).Model(&model.AssessmentReview{}).
		Where("status = ?", model.ReviewPending).
		Count(&st.ReviewsPending).Error; err != nil {
		return nil, err
	}
	return st, nil
}
