package assess

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/d9705996/granthub/internal/model"
	"gorm.io/gorm"
)

// ErrTemplateInactive is returned when applying a deactivated template.
var ErrTemplateInactive = errors.New("assessment template is not active")

// ErrMissingRequiredScore is returned when a template apply omits a score
// for a required criterion.
var ErrMissingRequiredScore = errors.New("missing score for required template criterion")

// TemplateCriteriaInput is one criterion definition in a template request.
type TemplateCriteriaInput struct {
	CriteriaType string
	Weight       float64
	IsRequired   bool
	Description  string
}

// CreateTemplate stores a named, reusable criteria set in one transaction.
func (s *Service) CreateTemplate(ctx context.Context, creator *model.User, name, description string, criteria []TemplateCriteriaInput) (*model.AssessmentTemplate, error) {
	seen := map[string]bool{}
	for _, c := range criteria {
		if !slices.Contains(model.CriteriaTypes, c.CriteriaType) {
			return nil, fmt.Errorf("%w: %s", ErrBadCriteriaType, c.CriteriaType)
		}
		if seen[c.CriteriaType] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateCriteria, c.CriteriaType)
		}
		seen[c.CriteriaType] = true
		if c.Weight < 0.1 || c.Weight > 2.0 {
			return nil, ErrWeightRange
		}
	}

	tpl := &model.AssessmentTemplate{
		Name:        name,
		Description: description,
		IsActive:    true,
		CreatedByID: creator.ID,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(tpl).Error; err != nil {
			return fmt.Errorf("create template: %w", err)
		}
		for _, c := range criteria {
			row := &model.AssessmentTemplateCriteria{
				TemplateID:   tpl.ID,
				CriteriaType: c.CriteriaType,
				Weight:       c.Weight,
				IsRequired:   c.IsRequired,
				Description:  c.Description,
			}
			if err := tx.Create(row).Error; err != nil {
				return fmt.Errorf("create template criteria: %w", err)
			}
			tpl.Criteria = append(tpl.Criteria, *row)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tpl, nil
}

// GetTemplate loads one template with its criteria.
func (s *Service) GetTemplate(ctx context.Context, id string) (*model.AssessmentTemplate, error) {
	var tpl model.AssessmentTemplate
	if err := s.db.WithContext(ctx).Preload("Criteria").First(&tpl, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &tpl, nil
}

// ListTemplates returns templates, optionally only active ones.
func (s *Service) ListTemplates(ctx context.Context, activeOnly bool) ([]model.AssessmentTemplate, error) {
	q := s.db.WithContext(ctx).Preload("Criteria").Order("created_at DESC")
	if activeOnly {
		q = q.Where("is_active = ?", true)
	}
	var rows []model.AssessmentTemplate
	err := q.Find(&rows).Error
	return rows, err
}

// SetTemplateActive toggles a template's availability.
func (s *Service) SetTemplateActive(ctx context.Context, id string, active bool) error {
	res := s.db.WithContext(ctx).Model(&model.AssessmentTemplate{}).
		Where("id = ?", id).
		Update("is_active", active)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// TemplateScore is one scored criterion in an ApplyTemplate request.
type TemplateScore struct {
	Score    int
	Comments string
}

// ApplyTemplate creates an assessment whose criteria weights come from the
// template; the caller supplies per-criterion scores keyed by criteria type.
// Required template criteria must all be scored.
func (s *Service) ApplyTemplate(ctx context.Context, admin *model.User, templateID string, in CreateInput, scores map[string]TemplateScore) (*model.Assessment, error) {
	tpl, err := s.GetTemplate(ctx, templateID)
	if err != nil {
		return nil, err
	}
	if !tpl.IsActive {
		return nil, ErrTemplateInactive
	}

	in.Criteria = in.Criteria[:0]
	for _, c := range tpl.Criteria {
		score, ok := scores[c.CriteriaType]
		if !ok {
			if c.IsRequired {
				return nil, fmt.Errorf("%w: %s", ErrMissingRequiredScore, c.CriteriaType)
			}
			continue
		}
		in.Criteria = append(in.Criteria, CriteriaInput{
			CriteriaType: c.CriteriaType,
			Score:        score.Score,
			Comments:     score.Comments,
			Weight:       c.Weight,
		})
	}
	return s.Create(ctx, admin, in)
}
