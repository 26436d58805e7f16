package assess

import (
	"context"
	"fmt"
	"slices"

	"github.com/d9705996/granthub/internal/model"
	"gorm.io/gorm"
)

// CreateReview records a second administrator's verdict on an assessment.
// The reviewer must differ from the assessor, and at most one review per
// (assessment, reviewer) pair exists.
func (s *Service) CreateReview(ctx context.Context, reviewer *model.User, assessmentID, status, comments string) (*model.AssessmentReview, error) {
	if !slices.Contains([]string{model.ReviewPending, model.ReviewApproved, model.ReviewRejected, model.ReviewNeedsRevision}, status) {
		return nil, ErrBadReviewStatus
	}

	var review *model.AssessmentReview
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var a model.Assessment
		if err := tx.First(&a, "id = ?", assessmentID).Error; err != nil {
			return fmt.Errorf("load assessment: %w", err)
		}
		if a.AdministratorID == reviewer.ID {
			return ErrSelfReview
		}

		var count int64
		if err := tx.Model(&model.AssessmentReview{}).
			Where("assessment_id = ? AND reviewer_id = ?", assessmentID, reviewer.ID).
			Count(&count).Error; err != nil {
			return fmt.Errorf("check existing review: %w", err)
		}
		if count > 0 {
			return ErrDuplicateReview
		}

		review = &model.AssessmentReview{
			AssessmentID: assessmentID,
			ReviewerID:   reviewer.ID,
			Status:       status,
			Comments:     comments,
		}
		return tx.Create(review).Error
	})
	if err != nil {
		return nil, err
	}

	if s.notifier != nil {
		if err := s.notifier.AssessmentReviewed(ctx, review); err != nil {
			return review, fmt.Errorf("notify review: %w", err)
		}
	}
	return review, nil
}

// PendingReviews lists reviews awaiting a verdict, excluding the given
// administrator's own assessments.
func (s *Service) PendingReviews(ctx context.Context, adminID string) ([]model.Assessment, error) {
	var rows []model.Assessment
	err := s.db.WithContext(ctx).
		Preload("Criteria").
		Where("administrator_id <> ?", adminID).
		Where("id NOT IN (?)", s.db.Model(&model.AssessmentReview{}).
			Select("assessment_id").
			Where("reviewer_id = ?", adminID)).
		Order("created_at ASC").
		Find(&rows).Error
	return rows, err
}
