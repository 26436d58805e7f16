package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/d9705996/granthub/internal/api/jsonapi"
	"github.com/d9705996/granthub/internal/model"
	"github.com/d9705996/granthub/internal/notify"
	"gorm.io/gorm"
)

// NotificationHandler handles portal notifications, notification
// preferences, and email template routes.
type NotificationHandler struct {
	db       *gorm.DB
	notifier *notify.Notifier
}

// NewNotificationHandler creates a NotificationHandler.
func NewNotificationHandler(db *gorm.DB, notifier *notify.Notifier) *NotificationHandler {
	return &NotificationHandler{db: db, notifier: notifier}
}

// portalAttrs is the JSON:API attributes payload for portal notifications.
type portalAttrs struct {
	Title            string     `json:"title"`
	Message          string     `json:"message"`
	NotificationType string     `json:"notification_type"`
	ApplicationID    *string    `json:"application_id,omitempty"`
	CommunicationID  *string    `json:"communication_id,omitempty"`
	IsRead           bool       `json:"is_read"`
	ReadAt           *time.Time `json:"read_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

func portalResource(n *model.PortalNotification) jsonapi.ResourceObject {
	return jsonapi.ResourceObject{
		Type: "notifications",
		ID:   n.ID,
		Attributes: portalAttrs{
			Title:            n.Title,
			Message:          n.Message,
			NotificationType: n.NotificationType,
			ApplicationID:    n.ApplicationID,
			CommunicationID:  n.CommunicationID,
			IsRead:           n.IsRead,
			ReadAt:           n.ReadAt,
			CreatedAt:        n.CreatedAt,
		},
	}
}

// List handles GET /api/v1/notifications. ?unread=true restricts to unread.
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	claims := tokenClaims(r)
	if claims == nil {
		jsonapi.RenderError(w, http.StatusUnauthorized,
			"missing_token", "Unauthorized", "authentication required")
		return
	}
	unreadOnly := r.URL.Query().Get("unread") == "true"
	rows, err := h.notifier.ListNotifications(r.Context(), claims.UserID, unreadOnly)
	if err != nil {
		jsonapi.RenderError(w, http.StatusInternalServerError,
			"internal_error", "Internal Server Error", "failed to list notifications")
		return
	}
	data := make([]any, 0, len(rows))
	for i := range rows {
		data = append(data, portalResource(&rows[i]))
	}
	jsonapi.RenderList(w, http.StatusOK, data, nil)
}

// UnreadCount handles GET /api/v1/notifications/unread-count.
func (h *NotificationHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	claims := tokenClaims(r)
	if claims == nil {
		jsonapi.RenderError(w, http.StatusUnauthorized,
			"missing_token", "Unauthorized", "authentication required")
		return
	}
	count, err := h.notifier.UnreadCount(r.Context(), claims.UserID)
	if err != nil {
		jsonapi.RenderError(w, http.StatusInternalServerError,
			"internal_error", "Internal Server Error", "failed to count notifications")
		return
	}
	jsonapi.RenderOne(w, http.StatusOK, jsonapi.ResourceObject{
		Type:       "unread_counts",
		ID:         claims.UserID,
		Attributes: map[string]int64{"unread": count},
	})
}

// MarkRead handles POST /api/v1/notifications/{id}/read.
func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	claims := tokenClaims(r)
	if claims == nil {
		jsonapi.RenderError(w, http.StatusUnauthorized,
			"missing_token", "Unauthorized", "authentication required")
		return
	}
	if err := h.notifier.MarkRead(r.Context(), claims.UserID, r.PathValue("id")); err != nil {
		renderLookupError(w, err, "notification")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// MarkAllRead handles POST /api/v1/notifications/read-all.
func (h *NotificationHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	claims := tokenClaims(r)
	if claims == nil {
		jsonapi.RenderError(w, http.StatusUnauthorized,
			"missing_token", "Unauthorized", "authentication required")
		return
	}
	affected, err := h.notifier.MarkAllRead(r.Context(), claims.UserID)
	if err != nil {
		jsonapi.RenderError(w, http.StatusInternalServerError,
			"internal_error", "Internal Server Error", "failed to mark notifications read")
		return
	}
	jsonapi.RenderOne(w, http.StatusOK, jsonapi.ResourceObject{
		Type:       "read_receipts",
		ID:         claims.UserID,
		Attributes: map[string]int64{"marked_read": affected},
	})
}

// preferenceAttrs is the JSON:API attributes payload for preferences.
type preferenceAttrs struct {
	EventType          string `json:"event_type"`
	NotificationMethod string `json:"notification_method"`
	IsEnabled          bool   `json:"is_enabled"`
}

func preferenceResource(p *model.NotificationPreference) jsonapi.ResourceObject {
	return jsonapi.ResourceObject{
		Type: "notification_preferences",
		ID:   p.ID,
		Attributes: preferenceAttrs{
			EventType:          p.EventType,
			NotificationMethod: p.NotificationMethod,
			IsEnabled:          p.IsEnabled,
		},
	}
}

// ListPreferences handles GET /api/v1/notification-preferences.
func (h *NotificationHandler) ListPreferences(w http.ResponseWriter, r *http.Request) {
	claims := tokenClaims(r)
	if claims == nil {
		jsonapi.RenderError(w, http.StatusUnauthorized,
			"missing_token", "Unauthorized", "authentication required")
		return
	}
	rows, err := h.notifier.ListPreferences(r.Context(), claims.UserID)
	if err != nil {
		jsonapi.RenderError(w, http.StatusInternalServerError,
			"internal_error", "Internal Server Error", "failed to list preferences")
		return
	}
	data := make([]any, 0, len(rows))
	for i := range rows {
		data = append(data, preferenceResource(&rows[i]))
	}
	jsonapi.RenderList(w, http.StatusOK, data, nil)
}

// SetPreference handles PUT /api/v1/notification-preferences.
func (h *NotificationHandler) SetPreference(w http.ResponseWriter, r *http.Request) {
	claims := tokenClaims(r)
	if claims == nil {
		jsonapi.RenderError(w, http.StatusUnauthorized,
			"missing_token", "Unauthorized", "authentication required")
		return
	}
	var req struct {
		EventType          string `json:"event_type"`
		NotificationMethod string `json:"notification_method"`
		IsEnabled          *bool  `json:"is_enabled"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	enabled := true
	if req.IsEnabled != nil {
		enabled = *req.IsEnabled
	}

	p, err := h.notifier.SetPreference(r.Context(), claims.UserID, req.EventType, req.NotificationMethod, enabled)
	if err != nil {
		if errors.Is(err, notify.ErrBadEventType) || errors.Is(err, notify.ErrBadMethod) {
			jsonapi.RenderError(w, http.StatusUnprocessableEntity,
				"invalid_preference", "Unprocessable Entity", err.Error())
			return
		}
		jsonapi.RenderError(w, http.StatusInternalServerError,
			"internal_error", "Internal Server Error", "failed to save the preference")
		return
	}
	jsonapi.RenderOne(w, http.StatusOK, preferenceResource(p))
}

// SetDefaultPreferences handles POST /api/v1/notification-preferences/defaults.
func (h *NotificationHandler) SetDefaultPreferences(w http.ResponseWriter, r *http.Request) {
	claims := tokenClaims(r)
	if claims == nil {
		jsonapi.RenderError(w, http.StatusUnauthorized,
			"missing_token", "Unauthorized", "authentication required")
		return
	}
	rows, err := h.notifier.SetDefaultPreferences(r.Context(), claims.UserID)
	if err != nil {
		jsonapi.RenderError(w, http.StatusInternalServerError,
			"internal_error", "Internal Server Error", "failed to reset preferences")
		return
	}
	data := make([]any, 0, len(rows))
	for i := range rows {
		data = append(data, preferenceResource(&rows[i]))
	}
	jsonapi.RenderList(w, http.StatusOK, data, nil)
}

// emailTemplateAttrs is the JSON:API attributes payload for email templates.
type emailTemplateAttrs struct {
	Name         string    `json:"name"`
	TemplateType string    `json:"template_type"`
	Subject      string    `json:"subject"`
	Body         string    `json:"body"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func emailTemplateResource(t *model.EmailTemplate) jsonapi.ResourceObject {
	return jsonapi.ResourceObject{
		Type: "email_templates",
		ID:   t.ID,
		Attributes: emailTemplateAttrs{
			Name:         t.Name,
			TemplateType: t.TemplateType,
			Subject:      t.Subject,
			Body:         t.Body,
			IsActive:     t.IsActive,
			CreatedAt:    t.CreatedAt,
			UpdatedAt:    t.UpdatedAt,
		},
	}
}

// isEventType reports whether s names a notification event type.
func isEventType(s string) bool {
	for _, e := range model.EventTypes {
		if e == s {
			return true
		}
	}
	return false
}

// CreateEmailTemplate handles POST /api/v1/email-templates.
// Administrator only.
func (h *NotificationHandler) CreateEmailTemplate(w http.ResponseWriter, r *http.Request) {
	claims := tokenClaims(r)
	if claims == nil {
		jsonapi.RenderError(w, http.StatusUnauthorized,
			"missing_token", "Unauthorized", "authentication required")
		return
	}
	var req struct {
		Name         string `json:"name"`
		TemplateType string `json:"template_type"`
		Subject      string `json:"subject"`
		Body         string `json:"body"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Name == "" || req.Subject == "" || req.Body == "" {
		jsonapi.RenderError(w, http.StatusUnprocessableEntity,
			"missing_field", "Unprocessable Entity", "name, subject, and body are required")
		return
	}
	if !isEventType(req.TemplateType) {
		jsonapi.RenderError(w, http.StatusUnprocessableEntity,
			"invalid_template_type", "Unprocessable Entity", "unknown template_type")
		return
	}

	tpl := &model.EmailTemplate{
		Name:         req.Name,
		TemplateType: req.TemplateType,
		Subject:      req.Subject,
		Body:         req.Body,
		IsActive:     true,
		CreatedByID:  &claims.UserID,
	}
	if err := h.db.WithContext(r.Context()).Create(tpl).Error; err != nil {
		jsonapi.RenderError(w, http.StatusInternalServerError,
			"internal_error", "Internal Server Error", "failed to create the template")
		return
	}
	jsonapi.RenderOne(w, http.StatusCreated, emailTemplateResource(tpl))
}

// ListEmailTemplates handles GET /api/v1/email-templates.
func (h *NotificationHandler) ListEmailTemplates(w http.ResponseWriter, r *http.Request) {
	q := h.db.WithContext(r.Context()).Order("updated_at DESC")
	if tt := r.URL.Query().Get("template_type"); tt != "" {
		q = q.Where("template_type = ?", tt)
	}
	var rows []model.EmailTemplate
	if err := q.Find(&rows).Error; err != nil {
		jsonapi.RenderError(w, http.StatusInternalServerError,
			"internal_error", "Internal Server Error", "failed to list templates")
		return
	}
	data := make([]any, 0, len(rows))
	for i := range rows {
		data = append(data, emailTemplateResource(&rows[i]))
	}
	jsonapi.RenderList(w, http.StatusOK, data, nil)
}

// GetEmailTemplate handles GET /api/v1/email-templates/{id}.
func (h *NotificationHandler) GetEmailTemplate(w http.ResponseWriter, r *http.Request) {
	var tpl model.EmailTemplate
	if err := h.db.WithContext(r.Context()).First(&tpl, "id = ?", r.PathValue("id")).Error; err != nil {
		renderLookupError(w, err, "email template")
		return
	}
	jsonapi.RenderOne(w, http.StatusOK, emailTemplateResource(&tpl))
}

// UpdateEmailTemplate handles PATCH /api/v1/email-templates/{id}.
func (h *NotificationHandler) UpdateEmailTemplate(w http.ResponseWriter, r *http.Request) {
	var tpl model.EmailTemplate
	if err := h.db.WithContext(r.Context()).First(&tpl, "id = ?", r.PathValue("id")).Error; err != nil {
		renderLookupError(w, err, "email template")
		return
	}
	var req struct {
		Name     *string `json:"name"`
		Subject  *string `json:"subject"`
		Body     *string `json:"body"`
		IsActive *bool   `json:"is_active"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	updates := map[string]any{}
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.Subject != nil {
		updates["subject"] = *req.Subject
	}
	if req.Body != nil {
		updates["body"] = *req.Body
	}
	if req.IsActive != nil {
		updates["is_active"] = *req.IsActive
	}
	if len(updates) > 0 {
		if err := h.db.WithContext(r.Context()).Model(&tpl).Updates(updates).Error; err != nil {
			jsonapi.RenderError(w, http.StatusInternalServerError,
				"internal_error", "Internal Server Error", "failed to update the template")
			return
		}
	}
	jsonapi.RenderOne(w, http.StatusOK, emailTemplateResource(&tpl))
}

// DeleteEmailTemplate handles DELETE /api/v1/email-templates/{id}.
func (h *NotificationHandler) DeleteEmailTemplate(w http.ResponseWriter, r *http.Request) {
	res := h.db.WithContext(r.Context()).Delete(&model.EmailTemplate{}, "id = ?", r.PathValue("id"))
	if res.Error != nil {
		jsonapi.RenderError(w, http.StatusInternalServerError,
			"internal_error", "Internal Server Error", "failed to delete the template")
		return
	}
	if res.RowsAffected == 0 {
		jsonapi.RenderError(w, http.StatusNotFound,
			"not_found", "Not Found", "email template does not exist")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PreviewEmailTemplate handles POST /api/v1/email-templates/{id}/preview:
// renders the stored template against caller-supplied variables.
func (h *NotificationHandler) PreviewEmailTemplate(w http.ResponseWriter, r *http.Request) {
	var tpl model.EmailTemplate
	if err := h.db.WithContext(r.Context()).First(&tpl, "id = ?", r.PathValue("id")).Error; err != nil {
		renderLookupError(w, err, "email template")
		return
	}
	var req struct {
		Variables map[string]string `json:"variables"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	jsonapi.RenderOne(w, http.StatusOK, jsonapi.ResourceObject{
		Type: "email_previews",
		ID:   tpl.ID,
		Attributes: map[string]string{
			"subject": notify.RenderTemplate(tpl.Subject, req.Variables),
			"body":    notify.RenderTemplate(tpl.Body, req.Variables),
		},
	})
}
