// Package grant implements the grant application lifecycle: the status
// transition table, reference number assignment, and the append-only
// status history.
package grant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/d9705996/granthub/internal/model"
	"gorm.io/gorm"
)

// Errors returned by Transition and the edit helpers.
var (
	ErrInvalidTransition = errors.New("status transition not allowed")
	ErrNotEditable       = errors.New("application cannot be edited in its current status")
	ErrIncomplete        = errors.New("application is missing required fields")
	ErrNotOwner          = errors.New("only the owning organization may submit")
	ErrAdminOnly         = errors.New("only administrators may perform this transition")
	ErrInvalidDates      = errors.New("project start date must not be after end date")
)

// transitions is the full set of allowed status transitions. Anything not
// listed here is rejected, including self-transitions.
var transitions = map[string][]string{
	model.StatusDraft:       {model.StatusSubmitted},
	model.StatusSubmitted:   {model.StatusUnderReview, model.StatusRejected},
	model.StatusUnderReview: {model.StatusApproved, model.StatusRejected},
	model.StatusApproved:    {},
	model.StatusRejected:    {},
}

// CanTransition reports whether from→to appears in the transition table.
func CanTransition(from, to string) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// AllowedTransitions returns the statuses reachable from the given one.
func AllowedTransitions(from string) []string {
	return transitions[from]
}

// ValidateProjectDates rejects a start date after the end date. Nil dates
// pass; completeness is checked separately at submission.
func ValidateProjectDates(start, end *time.Time) error {
	if start != nil && end != nil && start.After(*end) {
		return ErrInvalidDates
	}
	return nil
}

// Notifier receives lifecycle events for fan-out to email and the portal.
type Notifier interface {
	ApplicationStatusChanged(ctx context.Context, app *model.GrantApplication, previous, reason string) error
}

// Service performs application status transitions inside transactions.
type Service struct {
	db       *gorm.DB
	notifier Notifier
}

// NewService creates a Service. notifier may be nil, in which case
// transitions are recorded without fan-out.
func NewService(db *gorm.DB, notifier Notifier) *Service {
	return &Service{db: db, notifier: notifier}
}

// Transition moves the application to newStatus on behalf of actor.
//
// The draft→submitted transition may only be made by the owning
// organization's user and requires a complete application; it assigns the
// reference number and submission time. Every other transition requires an
// administrator. The status update and the history row commit in one
// transaction; notification fan-out runs after commit so a delivery failure
// never rolls back the transition.
func (s *Service) Transition(ctx context.Context, applicationID string, actor *model.User, newStatus, reason string) (*model.GrantApplication, error) {
	var app model.GrantApplication
	var previous string

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&app, "id = ?", applicationID).Error; err != nil {
			return fmt.Errorf("load application: %w", err)
		}
		previous = app.Status
		if !CanTransition(previous, newStatus) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, previous, newStatus)
		}

		if newStatus == model.StatusSubmitted {
			var org model.Organization
			if err := tx.First(&org, "id = ?", app.OrganizationID).Error; err != nil {
				return fmt.Errorf("load organization: %w", err)
			}
			if actor == nil || actor.ID != org.UserID {
				return ErrNotOwner
			}
			if !app.IsComplete() {
				return fmt.Errorf("%w: %s", ErrIncomplete, strings.Join(app.MissingFields(), ", "))
			}
			ref, err := assignReference(tx, app.CreatedAt.Year())
			if err != nil {
				return err
			}
			now := time.Now()
			app.ReferenceNumber = &ref
			app.SubmittedAt = &now
		} else if actor == nil || !actor.IsAdministrator() {
			return ErrAdminOnly
		}

		app.Status = newStatus
		if err := tx.Save(&app).Error; err != nil {
			return fmt.Errorf("update application: %w", err)
		}

		hist := &model.ApplicationStatusHistory{
			ApplicationID:  app.ID,
			PreviousStatus: &previous,
			NewStatus:      newStatus,
			Reason:         reason,
		}
		if actor != nil {
			hist.ChangedByID = &actor.ID
		}
		if err := tx.Create(hist).Error; err != nil {
			return fmt.Errorf("record status history: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.notifier != nil {
		if err := s.notifier.ApplicationStatusChanged(ctx, &app, previous, reason); err != nil {
			return &app, fmt.Errorf("notify status change: %w", err)
		}
	}
	return &app, nil
}

// History returns the application's status history, oldest first.
func (s *Service) History(ctx context.Context, applicationID string) ([]model.ApplicationStatusHistory, error) {
	var rows []model.ApplicationStatusHistory
	err := s.db.WithContext(ctx).
		Where("application_id = ?", applicationID).
		Order("timestamp ASC").
		Find(&rows).Error
	return rows, err
}
