package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/d9705996/granthub/internal/api/jsonapi"
	"github.com/d9705996/granthub/internal/comms"
	"github.com/d9705996/granthub/internal/model"
	"gorm.io/gorm"
)

// CommunicationHandler handles message and thread routes.
type CommunicationHandler struct {
	db    *gorm.DB
	comms *comms.Service
}

// NewCommunicationHandler creates a CommunicationHandler.
func NewCommunicationHandler(db *gorm.DB, svc *comms.Service) *CommunicationHandler {
	return &CommunicationHandler{db: db, comms: svc}
}

// messageAttrs is the JSON:API attributes payload for communications.
type messageAttrs struct {
	MessageType string     `json:"message_type"`
	Subject     string     `json:"subject"`
	Message     string     `json:"message"`
	IsInternal  bool       `json:"is_internal"`
	Priority    string     `json:"priority"`
	SentAt      time.Time  `json:"sent_at"`
	ReadAt      *time.Time `json:"read_at"`
}

func messageResource(c *model.Communication) jsonapi.ResourceObject {
	return jsonapi.ResourceObject{
		Type: "messages",
		ID:   c.ID,
		Attributes: messageAttrs{
			MessageType: c.MessageType,
			Subject:     c.Subject,
			Message:     c.Message,
			IsInternal:  c.IsInternal,
			Priority:    c.Priority,
			SentAt:      c.SentAt,
			ReadAt:      c.ReadAt,
		},
		Relationships: map[string]jsonapi.Relationship{
			"application": {Data: map[string]string{"type": "applications", "id": c.ApplicationID}},
			"sender":      {Data: map[string]string{"type": "users", "id": c.SenderID}},
			"recipient":   {Data: map[string]string{"type": "users", "id": c.RecipientID}},
		},
	}
}

func renderCommsError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		jsonapi.RenderError(w, http.StatusNotFound,
			"not_found", "Not Found", "resource does not exist")
	case errors.Is(err, comms.ErrOrgToOrg),
		errors.Is(err, comms.ErrNotOwnApplication),
		errors.Is(err, comms.ErrNotRecipient),
		errors.Is(err, comms.ErrNotParticipant):
		jsonapi.RenderError(w, http.StatusForbidden,
			"forbidden", "Forbidden", err.Error())
	case errors.Is(err, comms.ErrBadMessageType), errors.Is(err, comms.ErrBadPriority):
		jsonapi.RenderError(w, http.StatusUnprocessableEntity,
			"invalid_message", "Unprocessable Entity", err.Error())
	case errors.Is(err, comms.ErrThreadClosed):
		jsonapi.RenderError(w, http.StatusConflict,
			"thread_closed", "Conflict", err.Error())
	default:
		jsonapi.RenderError(w, http.StatusInternalServerError,
			"internal_error", "Internal Server Error", "messaging operation failed")
	}
}

// Send handles POST /api/v1/messages.
func (h *CommunicationHandler) Send(w http.ResponseWriter, r *http.Request) {
	u := currentUser(w, r, h.db)
	if u == nil {
		return
	}
	var req struct {
		ApplicationID string `json:"application_id"`
		RecipientID   string `json:"recipient_id"`
		MessageType   string `json:"message_type"`
		Subject       string `json:"subject"`
		Message       string `json:"message"`
		IsInternal    bool   `json:"is_internal"`
		Priority      string `json:"priority"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.ApplicationID == "" || req.RecipientID == "" || req.Subject == "" || req.Message == "" {
		jsonapi.RenderError(w, http.StatusUnprocessableEntity,
			"missing_field", "Unprocessable Entity",
			"application_id, recipient_id, subject, and message are required")
		return
	}

	comm, err := h.comms.Send(r.Context(), u, comms.MessageInput{
		ApplicationID: req.ApplicationID,
		RecipientID:   req.RecipientID,
		MessageType:   req.MessageType,
		Subject:       req.Subject,
		Message:       req.Message,
		IsInternal:    req.IsInternal,
		Priority:      req.Priority,
	})
	if err != nil {
		renderCommsError(w, err)
		return
	}
	jsonapi.RenderOne(w, http.StatusCreated, messageResource(comm))
}

// List handles GET /api/v1/messages, optionally filtered by application_id.
func (h *CommunicationHandler) List(w http.ResponseWriter, r *http.Request) {
	u := currentUser(w, r, h.db)
	if u == nil {
		return
	}
	rows, err := h.comms.List(r.Context(), u, r.URL.Query().Get("application_id"))
	if err != nil {
		jsonapi.RenderError(w, http.StatusInternalServerError,
			"internal_error", "Internal Server Error", "failed to list messages")
		return
	}
	data := make([]any, 0, len(rows))
	for i := range rows {
		data = append(data, messageResource(&rows[i]))
	}
	jsonapi.RenderList(w, http.StatusOK, data, nil)
}

// Get handles GET /api/v1/messages/{id}.
func (h *CommunicationHandler) Get(w http.ResponseWriter, r *http.Request) {
	u := currentUser(w, r, h.db)
	if u == nil {
		return
	}
	comm, err := h.comms.Get(r.Context(), u, r.PathValue("id"))
	if err != nil {
		renderCommsError(w, err)
		return
	}
	jsonapi.RenderOne(w, http.StatusOK, messageResource(comm))
}

// MarkRead handles POST /api/v1/messages/{id}/read.
func (h *CommunicationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	u := currentUser(w, r, h.db)
	if u == nil {
		return
	}
	comm, err := h.comms.MarkRead(r.Context(), u, r.PathValue("id"))
	if err != nil {
		renderCommsError(w, err)
		return
	}
	jsonapi.RenderOne(w, http.StatusOK, messageResource(comm))
}

// UnreadCount handles GET /api/v1/messages/unread-count.
func (h *CommunicationHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	u := currentUser(w, r, h.db)
	if u == nil {
		return
	}
	count, err := h.comms.UnreadCount(r.Context(), u)
	if err != nil {
		jsonapi.RenderError(w, http.StatusInternalServerError,
			"internal_error", "Internal Server Error", "failed to count unread messages")
		return
	}
	jsonapi.RenderOne(w, http.StatusOK, jsonapi.ResourceObject{
		Type:       "unread_counts",
		ID:         u.ID,
		Attributes: map[string]int64{"unread": count},
	})
}

// threadAttrs is the JSON:API attributes payload for threads.
type threadAttrs struct {
	Subject      string     `json:"subject"`
	IsClosed     bool       `json:"is_closed"`
	ClosedAt     *time.Time `json:"closed_at,omitempty"`
	Participants []string   `json:"participant_ids"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// threadMessageAttrs is one message inside a thread payload.
type threadMessageAttrs struct {
	SenderID   string    `json:"sender_id"`
	Message    string    `json:"message"`
	IsInternal bool      `json:"is_internal"`
	SentAt     time.Time `json:"sent_at"`
}

func threadResource(t *model.CommunicationThread, includeMessages bool) jsonapi.ResourceObject {
	participants := make([]string, 0, len(t.Participants))
	for _, p := range t.Participants {
		participants = append(participants, p.UserID)
	}
	res := jsonapi.ResourceObject{
		Type: "threads",
		ID:   t.ID,
		Attributes: threadAttrs{
			Subject:      t.Subject,
			IsClosed:     t.IsClosed,
			ClosedAt:     t.ClosedAt,
			Participants: participants,
			CreatedAt:    t.CreatedAt,
			UpdatedAt:    t.UpdatedAt,
		},
		Relationships: map[string]jsonapi.Relationship{
			"application": {Data: map[string]string{"type": "applications", "id": t.ApplicationID}},
		},
	}
	if includeMessages {
		msgs := make([]jsonapi.ResourceObject, 0, len(t.Messages))
		for _, m := range t.Messages {
			msgs = append(msgs, jsonapi.ResourceObject{
				Type: "thread_messages",
				ID:   m.ID,
				Attributes: threadMessageAttrs{
					SenderID:   m.SenderID,
					Message:    m.Message,
					IsInternal: m.IsInternal,
					SentAt:     m.SentAt,
				},
			})
		}
		res.Meta = jsonapi.Meta{"messages": msgs}
	}
	return res
}

// CreateThread handles POST /api/v1/threads.
func (h *CommunicationHandler) CreateThread(w http.ResponseWriter, r *http.Request) {
	u := currentUser(w, r, h.db)
	if u == nil {
		return
	}
	var req struct {
		ApplicationID  string   `json:"application_id"`
		Subject        string   `json:"subject"`
		ParticipantIDs []string `json:"participant_ids"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.ApplicationID == "" || req.Subject == "" {
		jsonapi.RenderError(w, http.StatusUnprocessableEntity,
			"missing_field", "Unprocessable Entity", "application_id and subject are required")
		return
	}

	thread, err := h.comms.CreateThread(r.Context(), u, req.ApplicationID, req.Subject, req.ParticipantIDs)
	if err != nil {
		renderCommsError(w, err)
		return
	}
	jsonapi.RenderOne(w, http.StatusCreated, threadResource(thread, false))
}

// GetThread handles GET /api/v1/threads/{id}.
func (h *CommunicationHandler) GetThread(w http.ResponseWriter, r *http.Request) {
	u := currentUser(w, r, h.db)
	if u == nil {
		return
	}
	thread, err := h.comms.GetThread(r.Context(), u, r.PathValue("id"))
	if err != nil {
		renderCommsError(w, err)
		return
	}
	jsonapi.RenderOne(w, http.StatusOK, threadResource(thread, true))
}

// ListThreads handles GET /api/v1/threads, optionally filtered by
// application_id.
func (h *CommunicationHandler) ListThreads(w http.ResponseWriter, r *http.Request) {
	u := currentUser(w, r, h.db)
	if u == nil {
		return
	}
	rows, err := h.comms.ListThreads(r.Context(), u, r.URL.Query().Get("application_id"))
	if err != nil {
		jsonapi.RenderError(w, http.StatusInternalServerError,
			"internal_error", "Internal Server Error", "failed to list threads")
		return
	}
	data := make([]any, 0, len(rows))
	for i := range rows {
		data = append(data, threadResource(&rows[i], false))
	}
	jsonapi.RenderList(w, http.StatusOK, data, nil)
}

// AddThreadMessage handles POST /api/v1/threads/{id}/messages.
func (h *CommunicationHandler) AddThreadMessage(w http.ResponseWriter, r *http.Request) {
	u := currentUser(w, r, h.db)
	if u == nil {
		return
	}
	var req struct {
		Message    string `json:"message"`
		IsInternal bool   `json:"is_internal"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Message == "" {
		jsonapi.RenderError(w, http.StatusUnprocessableEntity,
			"missing_field", "Unprocessable Entity", "message is required")
		return
	}

	msg, err := h.comms.AddMessage(r.Context(), u, r.PathValue("id"), req.Message, req.IsInternal)
	if err != nil {
		renderCommsError(w, err)
		return
	}
	jsonapi.RenderOne(w, http.StatusCreated, jsonapi.ResourceObject{
		Type: "thread_messages",
		ID:   msg.ID,
		Attributes: threadMessageAttrs{
			SenderID:   msg.SenderID,
			Message:    msg.Message,
			IsInternal: msg.IsInternal,
			SentAt:     msg.SentAt,
		},
	})
}

// CloseThread handles POST /api/v1/threads/{id}/close. Administrator only.
func (h *CommunicationHandler) CloseThread(w http.ResponseWriter, r *http.Request) {
	u := currentUser(w, r, h.db)
	if u == nil {
		return
	}
	if err := h.comms.CloseThread(r.Context(), u, r.PathValue("id")); err != nil {
		renderCommsError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ReopenThread handles POST /api/v1/threads/{id}/reopen. Administrator only.
func (h *CommunicationHandler) ReopenThread(w http.ResponseWriter, r *http.Request) {
	if err := h.comms.ReopenThread(r.Context(), r.PathValue("id")); err != nil {
		renderCommsError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
