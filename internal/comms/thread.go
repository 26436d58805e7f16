package comms

import (
	"context"
	"fmt"
	"time"

	"github.com/d9705996/granthub/internal/model"
	"gorm.io/gorm"
)

// CreateThread opens a thread about one application with the given
// participants. The creator is always a participant.
func (s *Service) CreateThread(ctx context.Context, creator *model.User, applicationID, subject string, participantIDs []string) (*model.CommunicationThread, error) {
	var app model.GrantApplication
	if err := s.db.WithContext(ctx).First(&app, "id = ?", applicationID).Error; err != nil {
		return nil, fmt.Errorf("load application: %w", err)
	}
	if creator.IsOrganization() {
		owns, err := s.ownsApplication(ctx, creator.ID, &app)
		if err != nil {
			return nil, err
		}
		if !owns {
			return nil, ErrNotOwnApplication
		}
	}

	thread := &model.CommunicationThread{
		ApplicationID: applicationID,
		Subject:       subject,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(thread).Error; err != nil {
			return fmt.Errorf("create thread: %w", err)
		}
		ids := append([]string{creator.ID}, participantIDs...)
		seen := map[string]bool{}
		for _, id := range ids {
			if seen[id] {
				continue
			}
			seen[id] = true
			p := &model.ThreadParticipant{ThreadID: thread.ID, UserID: id}
			if err := tx.Create(p).Error; err != nil {
				return fmt.Errorf("add participant: %w", err)
			}
			thread.Participants = append(thread.Participants, *p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return thread, nil
}

// GetThread loads a thread with participants and messages if the user takes
// part in it. Administrators may read any thread; internal messages are
// filtered out for organizations.
func (s *Service) GetThread(ctx context.Context, user *model.User, threadID string) (*model.CommunicationThread, error) {
	var thread model.CommunicationThread
	err := s.db.WithContext(ctx).
		Preload("Participants").
		Preload("Messages", func(db *gorm.DB) *gorm.DB { return db.Order("sent_at ASC") }).
		First(&thread, "id = ?", threadID).Error
	if err != nil {
		return nil, err
	}
	if !user.IsAdministrator() && !isParticipant(&thread, user.ID) {
		return nil, ErrNotParticipant
	}
	if user.IsOrganization() {
		visible := thread.Messages[:0]
		for _, m := range thread.Messages {
			if !m.IsInternal {
				visible = append(visible, m)
			}
		}
		thread.Messages = visible
	}
	return &thread, nil
}

// ListThreads returns the threads the user participates in, or every thread
// for administrators, newest activity first.
func (s *Service) ListThreads(ctx context.Context, user *model.User, applicationID string) ([]model.CommunicationThread, error) {
	q := s.db.WithContext(ctx).
		Preload("Participants").
		Order("updated_at DESC")
	if applicationID != "" {
		q = q.Where("application_id = ?", applicationID)
	}
	if !user.IsAdministrator() {
		q = q.Where("id IN (?)", s.db.Model(&model.ThreadParticipant{}).
			Select("thread_id").
			Where("user_id = ?", user.ID))
	}
	var rows []model.CommunicationThread
	err := q.Find(&rows).Error
	return rows, err
}

// AddMessage appends a message to an open thread. The sender must be a
// participant; organizations cannot post internal messages.
func (s *Service) AddMessage(ctx context.Context, sender *model.User, threadID, message string, isInternal bool) (*model.ThreadMessage, error) {
	var thread model.CommunicationThread
	if err := s.db.WithContext(ctx).Preload("Participants").First(&thread, "id = ?", threadID).Error; err != nil {
		return nil, err
	}
	if thread.IsClosed {
		return nil, ErrThreadClosed
	}
	if !isParticipant(&thread, sender.ID) {
		return nil, ErrNotParticipant
	}
	if sender.IsOrganization() {
		isInternal = false
	}

	msg := &model.ThreadMessage{
		ThreadID:   threadID,
		SenderID:   sender.ID,
		Message:    message,
		IsInternal: isInternal,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(msg).Error; err != nil {
			return fmt.Errorf("create thread message: %w", err)
		}
		return tx.Model(&thread).Update("updated_at", time.Now()).Error
	})
	if err != nil {
		return nil, err
	}
	if s.notifier != nil {
		if err := s.notifier.ThreadMessagePosted(ctx, &thread, msg); err != nil {
			return msg, fmt.Errorf("notify participants: %w", err)
		}
	}
	return msg, nil
}

// CloseThread marks a thread closed. Administrators only.
func (s *Service) CloseThread(ctx context.Context, admin *model.User, threadID string) error {
	res := s.db.WithContext(ctx).Model(&model.CommunicationThread{}).
		Where("id = ?", threadID).
		Updates(map[string]any{
			"is_closed":    true,
			"closed_by_id": admin.ID,
			"closed_at":    time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ReopenThread clears the closed state. Administrators only.
func (s *Service) ReopenThread(ctx context.Context, threadID string) error {
	res := s.db.WithContext(ctx).Model(&model.CommunicationThread{}).
		Where("id = ?", threadID).
		Updates(map[string]any{
			"is_closed":    false,
			"closed_by_id": nil,
			"closed_at":    nil,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func isParticipant(thread *model.CommunicationThread, userID string) bool {
	for _, p := range thread.Participants {
		if p.UserID == userID {
			return true
		}
	}
	return false
}
