// Package comms implements application-scoped messaging between
// organizations and administrators, and message threads.
package comms

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/d9705996/granthub/internal/model"
	"gorm.io/gorm"
)

// Errors returned by the messaging operations.
var (
	ErrOrgToOrg          = errors.New("organizations cannot message other organizations")
	ErrNotOwnApplication = errors.New("organizations may only message about their own applications")
	ErrNotRecipient      = errors.New("only the recipient may mark a message read")
	ErrBadMessageType    = errors.New("unknown message type")
	ErrBadPriority       = errors.New("unknown message priority")
	ErrNotParticipant    = errors.New("user is not a participant in this thread")
	ErrThreadClosed      = errors.New("thread is closed")
)

// Notifier receives new-message events for fan-out.
type Notifier interface {
	NewMessage(ctx context.Context, comm *model.Communication) error
	ThreadMessagePosted(ctx context.Context, thread *model.CommunicationThread, msg *model.ThreadMessage) error
}

// Service performs messaging mutations.
type Service struct {
	db       *gorm.DB
	notifier Notifier
}

// NewService creates a Service. notifier may be nil.
func NewService(db *gorm.DB, notifier Notifier) *Service {
	return &Service{db: db, notifier: notifier}
}

// MessageInput is a create-message request.
type MessageInput struct {
	ApplicationID string
	RecipientID   string
	MessageType   string
	Subject       string
	Message       string
	IsInternal    bool
	Priority      string
}

// Send creates one communication. Organization→organization messages are
// forbidden; a message between two administrators is always internal and
// hidden from organizations. The recipient is notified after the row
// commits.
func (s *Service) Send(ctx context.Context, sender *model.User, in MessageInput) (*model.Communication, error) {
	if in.MessageType == "" {
		in.MessageType = model.MessageGeneral
	}
	if in.Priority == "" {
		in.Priority = model.PriorityNormal
	}
	if !slices.Contains([]string{model.MessageGeneral, model.MessageRequestInfo, model.MessageStatusUpdate, model.MessageSystem}, in.MessageType) {
		return nil, ErrBadMessageType
	}
	if !slices.Contains([]string{model.PriorityLow, model.PriorityNormal, model.PriorityHigh}, in.Priority) {
		return nil, ErrBadPriority
	}

	var recipient model.User
	if err := s.db.WithContext(ctx).First(&recipient, "id = ?", in.RecipientID).Error; err != nil {
		return nil, fmt.Errorf("load recipient: %w", err)
	}
	if sender.IsOrganization() && recipient.IsOrganization() {
		return nil, ErrOrgToOrg
	}

	var app model.GrantApplication
	if err := s.db.WithContext(ctx).First(&app, "id = ?", in.ApplicationID).Error; err != nil {
		return nil, fmt.Errorf("load application: %w", err)
	}
	if sender.IsOrganization() {
		owns, err := s.ownsApplication(ctx, sender.ID, &app)
		if err != nil {
			return nil, err
		}
		if !owns {
			return nil, ErrNotOwnApplication
		}
	}

	isInternal := in.IsInternal
	if sender.IsAdministrator() && recipient.IsAdministrator() {
		isInternal = true
	}

	comm := &model.Communication{
		ApplicationID: in.ApplicationID,
		SenderID:      sender.ID,
		RecipientID:   in.RecipientID,
		MessageType:   in.MessageType,
		Subject:       in.Subject,
		Message:       in.Message,
		IsInternal:    isInternal,
		Priority:      in.Priority,
	}
	if err := s.db.WithContext(ctx).Create(comm).Error; err != nil {
		return nil, fmt.Errorf("create communication: %w", err)
	}

	if s.notifier != nil {
		if err := s.notifier.NewMessage(ctx, comm); err != nil {
			return comm, fmt.Errorf("notify recipient: %w", err)
		}
	}
	return comm, nil
}

func (s *Service) ownsApplication(ctx context.Context, userID string, app *model.GrantApplication) (bool, error) {
	var org model.Organization
	if err := s.db.WithContext(ctx).First(&org, "id = ?", app.OrganizationID).Error; err != nil {
		return false, fmt.Errorf("load organization: %w", err)
	}
	return org.UserID == userID, nil
}

// List returns the messages visible to the user, optionally scoped to one
// application. Organizations never see internal messages and only their own
// correspondence; administrators see everything.
func (s *Service) List(ctx context.Context, user *model.User, applicationID string) ([]model.Communication, error) {
	q := s.db.WithContext(ctx).Order("sent_at DESC")
	if applicationID != "" {
		q = q.Where("application_id = ?", applicationID)
	}
	if user.IsOrganization() {
		q = q.Where("is_internal = ?", false).
			Where("sender_id = ? OR recipient_id = ?", user.ID, user.ID)
	}
	var rows []model.Communication
	err := q.Find(&rows).Error
	return rows, err
}

// Get returns one message if the user may see it.
func (s *Service) Get(ctx context.Context, user *model.User, id string) (*model.Communication, error) {
	var comm model.Communication
	if err := s.db.WithContext(ctx).First(&comm, "id = ?", id).Error; err != nil {
		return nil, err
	}
	if user.IsOrganization() {
		if comm.IsInternal || (comm.SenderID != user.ID && comm.RecipientID != user.ID) {
			return nil, gorm.ErrRecordNotFound
		}
	}
	return &comm, nil
}

// MarkRead stamps the read time. Only the recipient may do this.
func (s *Service) MarkRead(ctx context.Context, user *model.User, id string) (*model.Communication, error) {
	var comm model.Communication
	if err := s.db.WithContext(ctx).First(&comm, "id = ?", id).Error; err != nil {
		return nil, err
	}
	if comm.RecipientID != user.ID {
		return nil, ErrNotRecipient
	}
	if comm.ReadAt == nil {
		now := time.Now()
		if err := s.db.WithContext(ctx).Model(&comm).Update("read_at", now).Error; err != nil {
			return nil, err
		}
		comm.ReadAt = &now
	}
	return &comm, nil
}

// UnreadCount returns the user's unread message count. Internal messages
// are excluded for organizations, though none should ever address one.
func (s *Service) UnreadCount(ctx context.Context, user *model.User) (int64, error) {
	q := s.db.WithContext(ctx).Model(&model.Communication{}).
		Where("recipient_id = ? AND read_at IS NULL", user.ID)
	if user.IsOrganization() {
		q = q.Where("is_internal = ?", false)
	}
	var count int64
	err := q.Count(&count).Error
	return count, err
}
