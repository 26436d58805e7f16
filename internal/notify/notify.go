package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/d9705996/granthub/internal/model"
	"gorm.io/gorm"
)

// Notifier fans lifecycle events out to email and portal notifications.
// It satisfies the Notifier interfaces of the grant and assess packages.
type Notifier struct {
	db          *gorm.DB
	mailer      Mailer
	log         *slog.Logger
	frontendURL string
}

// New creates a Notifier.
func New(db *gorm.DB, mailer Mailer, log *slog.Logger, frontendURL string) *Notifier {
	return &Notifier{db: db, mailer: mailer, log: log, frontendURL: frontendURL}
}

// channels resolves the user's delivery channels for the event type.
// An absent preference row means both channels; a disabled row means none.
func (n *Notifier) channels(ctx context.Context, userID, eventType string) (email, portal bool, err error) {
	var pref model.NotificationPreference
	lookupErr := n.db.WithContext(ctx).
		Where("user_id = ? AND event_type = ?", userID, eventType).
		First(&pref).Error
	if errors.Is(lookupErr, gorm.ErrRecordNotFound) {
		return true, true, nil
	}
	if lookupErr != nil {
		return false, false, fmt.Errorf("load notification preference: %w", lookupErr)
	}
	if !pref.IsEnabled {
		return false, false, nil
	}
	switch pref.NotificationMethod {
	case model.NotifyEmail:
		return true, false, nil
	case model.NotifyPortal:
		return false, true, nil
	case model.NotifyNone:
		return false, false, nil
	default:
		return true, true, nil
	}
}

// deliver sends the event to one user over their chosen channels. Email and
// portal-row failures propagate: the caller's request fails rather than a
// notification silently disappearing.
func (n *Notifier) deliver(ctx context.Context, user *model.User, eventType string, vars map[string]string, portal *model.PortalNotification) error {
	email, portalOn, err := n.channels(ctx, user.ID, eventType)
	if err != nil {
		return err
	}
	if email {
		tpl := n.templateFor(ctx, eventType, vars)
		if err := n.mailer.Send(ctx, user.Email, vars["recipient_name"], tpl.Subject, tpl.Body); err != nil {
			return err
		}
	}
	if portalOn && portal != nil {
		portal.UserID = user.ID
		if err := n.db.WithContext(ctx).Create(portal).Error; err != nil {
			return fmt.Errorf("create portal notification: %w", err)
		}
	}
	return nil
}

// applicationOwner loads the owning organization and its login user.
func (n *Notifier) applicationOwner(ctx context.Context, app *model.GrantApplication) (*model.User, *model.Organization, error) {
	var org model.Organization
	if err := n.db.WithContext(ctx).Preload("User").First(&org, "id = ?", app.OrganizationID).Error; err != nil {
		return nil, nil, fmt.Errorf("load owning organization: %w", err)
	}
	return &org.User, &org, nil
}

func (n *Notifier) applicationVars(app *model.GrantApplication, recipientName string) map[string]string {
	ref := ""
	if app.ReferenceNumber != nil {
		ref = *app.ReferenceNumber
	}
	return map[string]string{
		"recipient_name":   recipientName,
		"title":            app.Title,
		"reference_number": ref,
		"application_id":   app.ID,
		"frontend_url":     n.frontendURL,
	}
}

// ApplicationStatusChanged notifies the owning organization of a status
// transition.
func (n *Notifier) ApplicationStatusChanged(ctx context.Context, app *model.GrantApplication, previous, reason string) error {
	owner, org, err := n.applicationOwner(ctx, app)
	if err != nil {
		return err
	}
	vars := n.applicationVars(app, org.Name)
	vars["previous_status"] = previous
	vars["new_status"] = app.Status
	vars["reason"] = reason

	portalType := model.PortalInfo
	switch app.Status {
	case model.StatusApproved:
		portalType = model.PortalSuccess
	case model.StatusRejected:
		portalType = model.PortalError
	}
	return n.deliver(ctx, owner, model.EventStatusUpdate, vars, &model.PortalNotification{
		Title:            fmt.Sprintf("Application status: %s", app.Status),
		Message:          fmt.Sprintf("Your application %q is now %s.", app.Title, app.Status),
		NotificationType: portalType,
		ApplicationID:    &app.ID,
	})
}

// AssessmentCompleted notifies the owning organization that an assessment
// was recorded.
func (n *Notifier) AssessmentCompleted(ctx context.Context, app *model.GrantApplication, _ *model.Assessment) error {
	owner, org, err := n.applicationOwner(ctx, app)
	if err != nil {
		return err
	}
	vars := n.applicationVars(app, org.Name)
	return n.deliver(ctx, owner, model.EventAssessmentComplete, vars, &model.PortalNotification{
		Title:            "Assessment completed",
		Message:          fmt.Sprintf("An assessment of your application %q has been completed.", app.Title),
		NotificationType: model.PortalInfo,
		ApplicationID:    &app.ID,
	})
}

// AssessmentReviewed notifies the original assessor of a countersign
// verdict.
func (n *Notifier) AssessmentReviewed(ctx context.Context, review *model.AssessmentReview) error {
	var a model.Assessment
	if err := n.db.WithContext(ctx).Preload("Administrator").First(&a, "id = ?", review.AssessmentID).Error; err != nil {
		return fmt.Errorf("load assessment: %w", err)
	}
	var app model.GrantApplication
	if err := n.db.WithContext(ctx).First(&app, "id = ?", a.ApplicationID).Error; err != nil {
		return fmt.Errorf("load application: %w", err)
	}
	vars := n.applicationVars(&app, a.Administrator.Email)
	return n.deliver(ctx, &a.Administrator, model.EventAssessmentComplete, vars, &model.PortalNotification{
		Title:            fmt.Sprintf("Assessment review: %s", review.Status),
		Message:          fmt.Sprintf("Your assessment of %q was reviewed: %s.", app.Title, review.Status),
		NotificationType: model.PortalInfo,
		ApplicationID:    &app.ID,
	})
}

// NewMessage notifies the recipient of a communication. request_info
// messages use the document-request event so organizations can tune that
// channel separately.
func (n *Notifier) NewMessage(ctx context.Context, comm *model.Communication) error {
	var recipient, sender model.User
	if err := n.db.WithContext(ctx).First(&recipient, "id = ?", comm.RecipientID).Error; err != nil {
		return fmt.Errorf("load recipient: %w", err)
	}
	if err := n.db.WithContext(ctx).First(&sender, "id = ?", comm.SenderID).Error; err != nil {
		return fmt.Errorf("load sender: %w", err)
	}
	var app model.GrantApplication
	if err := n.db.WithContext(ctx).First(&app, "id = ?", comm.ApplicationID).Error; err != nil {
		return fmt.Errorf("load application: %w", err)
	}

	recipientName := recipient.Email
	if recipient.IsOrganization() {
		var org model.Organization
		if err := n.db.WithContext(ctx).First(&org, "user_id = ?", recipient.ID).Error; err == nil {
			recipientName = org.Name
		}
	}

	vars := n.applicationVars(&app, recipientName)
	vars["sender_name"] = sender.Email
	vars["message_subject"] = comm.Subject
	vars["message_body"] = comm.Message

	eventType := model.EventNewMessage
	title := "New message"
	if comm.MessageType == model.MessageRequestInfo {
		eventType = model.EventDocumentRequest
		title = "Information requested"
	}
	return n.deliver(ctx, &recipient, eventType, vars, &model.PortalNotification{
		Title:            title,
		Message:          fmt.Sprintf("%s: %s", sender.Email, comm.Subject),
		NotificationType: model.PortalInfo,
		ApplicationID:    &app.ID,
		CommunicationID:  &comm.ID,
	})
}

// ThreadMessagePosted writes a portal notification for every thread
// participant other than the sender. Internal messages skip organization
// participants.
func (n *Notifier) ThreadMessagePosted(ctx context.Context, thread *model.CommunicationThread, msg *model.ThreadMessage) error {
	var sender model.User
	if err := n.db.WithContext(ctx).First(&sender, "id = ?", msg.SenderID).Error; err != nil {
		return fmt.Errorf("load sender: %w", err)
	}
	for _, p := range thread.Participants {
		if p.UserID == msg.SenderID {
			continue
		}
		var u model.User
		if err := n.db.WithContext(ctx).First(&u, "id = ?", p.UserID).Error; err != nil {
			return fmt.Errorf("load participant: %w", err)
		}
		if msg.IsInternal && u.IsOrganization() {
			continue
		}
		row := &model.PortalNotification{
			UserID:           u.ID,
			Title:            fmt.Sprintf("New message in %q", thread.Subject),
			Message:          fmt.Sprintf("%s replied in the thread.", sender.Email),
			NotificationType: model.PortalInfo,
			ApplicationID:    &thread.ApplicationID,
		}
		if err := n.db.WithContext(ctx).Create(row).Error; err != nil {
			return fmt.Errorf("create portal notification: %w", err)
		}
	}
	return nil
}

// DeadlineReminder notifies the owner that the project start date is near.
// Called by the periodic reminder job.
func (n *Notifier) DeadlineReminder(ctx context.Context, app *model.GrantApplication) error {
	owner, org, err := n.applicationOwner(ctx, app)
	if err != nil {
		return err
	}
	vars := n.applicationVars(app, org.Name)
	if app.ProjectStartDate != nil {
		vars["start_date"] = app.ProjectStartDate.Format("2006-01-02")
	}
	return n.deliver(ctx, owner, model.EventDeadlineReminder, vars, &model.PortalNotification{
		Title:            "Project start approaching",
		Message:          fmt.Sprintf("The project for application %q starts soon.", app.Title),
		NotificationType: model.PortalWarning,
		ApplicationID:    &app.ID,
	})
}
