package notify

import (
	"context"
	"errors"
	"regexp"

	"github.com/d9705996/granthub/internal/model"
	"gorm.io/gorm"
)

var placeholderRe = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_]+)\s*\}\}`)

// RenderTemplate substitutes {{variable}} placeholders with their values.
// Unknown placeholders are left as-is so a typo is visible in the output
// rather than silently blanked.
func RenderTemplate(s string, vars map[string]string) string {
	return placeholderRe.ReplaceAllStringFunc(s, func(match string) string {
		name := placeholderRe.FindStringSubmatch(match)[1]
		if v, ok := vars[name]; ok {
			return v
		}
		return match
	})
}

// renderedTemplate is a subject/body pair after substitution.
type renderedTemplate struct {
	Subject string
	Body    string
}

// defaultTemplates are used when no active EmailTemplate row exists for the
// event type.
var defaultTemplates = map[string]renderedTemplate{
	model.EventStatusUpdate: {
		Subject: "Application {{reference_number}}: status changed to {{new_status}}",
		Body: "Dear {{recipient_name}},\n\n" +
			"The status of your grant application \"{{title}}\" ({{reference_number}}) has changed from {{previous_status}} to {{new_status}}.\n" +
			"{{reason}}\n\n" +
			"You can view the application at {{frontend_url}}/applications/{{application_id}}.\n",
	},
	model.EventNewMessage: {
		Subject: "New message about application {{reference_number}}",
		Body: "Dear {{recipient_name}},\n\n" +
			"{{sender_name}} sent you a message about application \"{{title}}\":\n\n" +
			"Subject: {{message_subject}}\n\n{{message_body}}\n\n" +
			"Reply at {{frontend_url}}/applications/{{application_id}}/messages.\n",
	},
	model.EventAssessmentComplete: {
		Subject: "Assessment completed for application {{reference_number}}",
		Body: "Dear {{recipient_name}},\n\n" +
			"An assessment of your grant application \"{{title}}\" ({{reference_number}}) has been completed.\n" +
			"You will be informed once a decision is made.\n",
	},
	model.EventDocumentRequest: {
		Subject: "Documents requested for application {{reference_number}}",
		Body: "Dear {{recipient_name}},\n\n" +
			"Additional documents have been requested for your grant application \"{{title}}\" ({{reference_number}}):\n\n" +
			"{{message_body}}\n\n" +
			"Upload them at {{frontend_url}}/applications/{{application_id}}/documents.\n",
	},
	model.EventDeadlineReminder: {
		Subject: "Project start approaching for application {{reference_number}}",
		Body: "Dear {{recipient_name}},\n\n" +
			"The project for your grant application \"{{title}}\" ({{reference_number}}) is scheduled to start on {{start_date}}.\n",
	},
}

// templateFor returns the active stored template for the event type, or the
// built-in default, rendered with vars.
func (n *Notifier) templateFor(ctx context.Context, eventType string, vars map[string]string) renderedTemplate {
	tpl := defaultTemplates[eventType]

	var stored model.EmailTemplate
	err := n.db.WithContext(ctx).
		Where("template_type = ? AND is_active = ?", eventType, true).
		Order("updated_at DESC").
		First(&stored).Error
	if err == nil {
		tpl = renderedTemplate{Subject: stored.Subject, Body: stored.Body}
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		n.log.WarnContext(ctx, "email template lookup failed", "event_type", eventType, "error", err)
	}

	return renderedTemplate{
		Subject: RenderTemplate(tpl.Subject, vars),
		Body:    RenderTemplate(tpl.Body, vars),
	}
}
