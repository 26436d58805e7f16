package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/d9705996/granthub/internal/api/jsonapi"
	"github.com/d9705996/granthub/internal/audit"
	"github.com/d9705996/granthub/internal/grant"
	"github.com/d9705996/granthub/internal/model"
	"github.com/d9705996/granthub/internal/ratelimit"
	"gorm.io/gorm"
)

// ApplicationHandler handles /api/v1/applications routes.
type ApplicationHandler struct {
	db     *gorm.DB
	grants *grant.Service
	rec    *audit.Recorder
}

// NewApplicationHandler creates an ApplicationHandler.
func NewApplicationHandler(db *gorm.DB, grants *grant.Service, rec *audit.Recorder) *ApplicationHandler {
	return &ApplicationHandler{db: db, grants: grants, rec: rec}
}

// applicationAttrs is the JSON:API attributes payload for applications.
type applicationAttrs struct {
	ReferenceNumber  *string    `json:"reference_number"`
	Title            string     `json:"title"`
	Description      string     `json:"description"`
	RequestedAmount  float64    `json:"requested_amount"`
	ProjectStartDate *string    `json:"project_start_date"`
	ProjectEndDate   *string    `json:"project_end_date"`
	Status           string     `json:"status"`
	SubmittedAt      *time.Time `json:"submitted_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

func dateString(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.DateOnly)
	return &s
}

func applicationResource(a *model.GrantApplication) jsonapi.ResourceObject {
	return jsonapi.ResourceObject{
		Type: "applications",
		ID:   a.ID,
		Attributes: applicationAttrs{
			ReferenceNumber:  a.ReferenceNumber,
			Title:            a.Title,
			Description:      a.Description,
			RequestedAmount:  a.RequestedAmount,
			ProjectStartDate: dateString(a.ProjectStartDate),
			ProjectEndDate:   dateString(a.ProjectEndDate),
			Status:           a.Status,
			SubmittedAt:      a.SubmittedAt,
			CreatedAt:        a.CreatedAt,
			UpdatedAt:        a.UpdatedAt,
		},
		Relationships: map[string]jsonapi.Relationship{
			"organization": {Data: map[string]string{"type": "organizations", "id": a.OrganizationID}},
		},
	}
}

// applicationInput is the request body for create and update.
type applicationInput struct {
	Title            *string  `json:"title"`
	Description      *string  `json:"description"`
	RequestedAmount  *float64 `json:"requested_amount"`
	ProjectStartDate *string  `json:"project_start_date"`
	ProjectEndDate   *string  `json:"project_end_date"`
}

// dates parses the YYYY-MM-DD date strings, leaving absent ones nil.
func (in *applicationInput) dates() (start, end *time.Time, err error) {
	if in.ProjectStartDate != nil {
		t, perr := time.Parse(time.DateOnly, *in.ProjectStartDate)
		if perr != nil {
			return nil, nil, perr
		}
		start = &t
	}
	if in.ProjectEndDate != nil {
		t, perr := time.Parse(time.DateOnly, *in.ProjectEndDate)
		if perr != nil {
			return nil, nil, perr
		}
		end = &t
	}
	return start, end, nil
}

// renderGrantError maps lifecycle errors to HTTP statuses.
func renderGrantError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		jsonapi.RenderError(w, http.StatusNotFound,
			"not_found", "Not Found", "application does not exist")
	case errors.Is(err, grant.ErrNotOwner), errors.Is(err, grant.ErrAdminOnly):
		jsonapi.RenderError(w, http.StatusForbidden,
			"forbidden", "Forbidden", err.Error())
	case errors.Is(err, grant.ErrIncomplete), errors.Is(err, grant.ErrInvalidDates):
		jsonapi.RenderError(w, http.StatusUnprocessableEntity,
			"invalid_application", "Unprocessable Entity", err.Error())
	case errors.Is(err, grant.ErrInvalidTransition), errors.Is(err, grant.ErrNotEditable):
		jsonapi.RenderError(w, http.StatusConflict,
			"invalid_state", "Conflict", err.Error())
	default:
		jsonapi.RenderError(w, http.StatusInternalServerError,
			"internal_error", "Internal Server Error", "application operation failed")
	}
}

// loadScoped loads the application and enforces ownership for organization
// users. Administrators see every application.
func (h *ApplicationHandler) loadScoped(w http.ResponseWriter, r *http.Request, id string) *model.GrantApplication {
	var app model.GrantApplication
	if err := h.db.WithContext(r.Context()).First(&app, "id = ?", id).Error; err != nil {
		renderLookupError(w, err, "application")
		return nil
	}
	if orgID := claimsOrg(r); orgID != "" && app.OrganizationID != orgID {
		// Hide other tenants' applications entirely.
		jsonapi.RenderError(w, http.StatusNotFound,
			"not_found", "Not Found", "application does not exist")
		return nil
	}
	return &app
}

// List handles GET /api/v1/applications. Organizations see their own
// applications; administrators see all, optionally filtered by status.
func (h *ApplicationHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := h.db.WithContext(ctx).Model(&model.GrantApplication{})
	if orgID := claimsOrg(r); orgID != "" {
		q = q.Where("organization_id = ?", orgID)
	}
	if status := r.URL.Query().Get("status"); status != "" {
		q = q.Where("status = ?", status)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		jsonapi.RenderError(w, http.StatusInternalServerError,
			"internal_error", "Internal Server Error", "failed to list applications")
		return
	}

	page, size := pageParams(r)
	var apps []model.GrantApplication
	if err := paginate(q.Order("created_at DESC"), page, size).Find(&apps).Error; err != nil {
		jsonapi.RenderError(w, http.StatusInternalServerError,
			"internal_error", "Internal Server Error", "failed to list applications")
		return
	}

	data := make([]any, 0, len(apps))
	for i := range apps {
		data = append(data, applicationResource(&apps[i]))
	}
	jsonapi.RenderList(w, http.StatusOK, data, &jsonapi.Pagination{Page: page, PageSize: size, Total: total})
}

// Create handles POST /api/v1/applications. Organization users only; the
// new application starts in draft.
func (h *ApplicationHandler) Create(w http.ResponseWriter, r *http.Request) {
	orgID := claimsOrg(r)
	if orgID == "" {
		jsonapi.RenderError(w, http.StatusForbidden,
			"forbidden", "Forbidden", "only organizations may create applications")
		return
	}

	var in applicationInput
	if !decodeBody(w, r, &in) {
		return
	}
	start, end, err := in.dates()
	if err != nil {
		jsonapi.RenderError(w, http.StatusUnprocessableEntity,
			"invalid_date", "Unprocessable Entity", "dates must be YYYY-MM-DD")
		return
	}
	if err := grant.ValidateProjectDates(start, end); err != nil {
		renderGrantError(w, err)
		return
	}

	app := model.GrantApplication{
		OrganizationID:   orgID,
		Status:           model.StatusDraft,
		ProjectStartDate: start,
		ProjectEndDate:   end,
	}
	if in.Title != nil {
		app.Title = *in.Title
	}
	if in.Description != nil {
		app.Description = *in.Description
	}
	if in.RequestedAmount != nil {
		app.RequestedAmount = *in.RequestedAmount
	}

	if err := h.db.WithContext(r.Context()).Create(&app).Error; err != nil {
		jsonapi.RenderError(w, http.StatusInternalServerError,
			"internal_error", "Internal Server Error", "failed to create the application")
		return
	}
	jsonapi.RenderOne(w, http.StatusCreated, applicationResource(&app))
}

// Get handles GET /api/v1/applications/{id}.
func (h *ApplicationHandler) Get(w http.ResponseWriter, r *http.Request) {
	app := h.loadScoped(w, r, r.PathValue("id"))
	if app == nil {
		return
	}
	jsonapi.RenderOne(w, http.StatusOK, applicationResource(app))
}

// Update handles PATCH /api/v1/applications/{id}. Only the owning
// organization may update, and only while the application is editable.
func (h *ApplicationHandler) Update(w http.ResponseWriter, r *http.Request) {
	if claimsOrg(r) == "" {
		jsonapi.RenderError(w, http.StatusForbidden,
			"forbidden", "Forbidden", "only the owning organization may update an application")
		return
	}
	app := h.loadScoped(w, r, r.PathValue("id"))
	if app == nil {
		return
	}
	if !app.CanBeEdited() {
		renderGrantError(w, grant.ErrNotEditable)
		return
	}

	var in applicationInput
	if !decodeBody(w, r, &in) {
		return
	}
	start, end, err := in.dates()
	if err != nil {
		jsonapi.RenderError(w, http.StatusUnprocessableEntity,
			"invalid_date", "Unprocessable Entity", "dates must be YYYY-MM-DD")
		return
	}

	old := model.JSONMap{
		"title":            app.Title,
		"description":      app.Description,
		"requested_amount": app.RequestedAmount,
	}

	if in.Title != nil {
		app.Title = *in.Title
	}
	if in.Description != nil {
		app.Description = *in.Description
	}
	if in.RequestedAmount != nil {
		app.RequestedAmount = *in.RequestedAmount
	}
	if start != nil {
		app.ProjectStartDate = start
	}
	if end != nil {
		app.ProjectEndDate = end
	}
	if err := grant.ValidateProjectDates(app.ProjectStartDate, app.ProjectEndDate); err != nil {
		renderGrantError(w, err)
		return
	}

	if err := h.db.WithContext(r.Context()).Save(app).Error; err != nil {
		jsonapi.RenderError(w, http.StatusInternalServerError,
			"internal_error", "Internal Server Error", "failed to update the application")
		return
	}

	if claims := tokenClaims(r); claims != nil {
		h.rec.Record(r.Context(), audit.Entry{
			UserID:       &claims.UserID,
			Action:       model.ActionUpdate,
			ResourceType: "application",
			ResourceID:   app.ID,
			OldValues:    old,
			NewValues: model.JSONMap{
				"title":            app.Title,
				"description":      app.Description,
				"requested_amount": app.RequestedAmount,
			},
			IPAddress: ratelimit.ClientIP(r),
			UserAgent: r.UserAgent(),
			Success:   true,
		})
	}
	jsonapi.RenderOne(w, http.StatusOK, applicationResource(app))
}

// Submit handles POST /api/v1/applications/{id}/submit.
func (h *ApplicationHandler) Submit(w http.ResponseWriter, r *http.Request) {
	u := currentUser(w, r, h.db)
	if u == nil {
		return
	}
	app := h.loadScoped(w, r, r.PathValue("id"))
	if app == nil {
		return
	}

	updated, err := h.grants.Transition(r.Context(), app.ID, u, model.StatusSubmitted, "submitted by applicant")
	if err != nil {
		renderGrantError(w, err)
		return
	}

	h.rec.Record(r.Context(), audit.Entry{
		UserID:       &u.ID,
		Action:       model.ActionStatusChange,
		ResourceType: "application",
		ResourceID:   updated.ID,
		OldValues:    model.JSONMap{"status": model.StatusDraft},
		NewValues:    model.JSONMap{"status": updated.Status, "reference_number": updated.ReferenceNumber},
		IPAddress:    ratelimit.ClientIP(r),
		UserAgent:    r.UserAgent(),
		Success:      true,
	})
	jsonapi.RenderOne(w, http.StatusOK, applicationResource(updated))
}

// statusChangeRequest is the body for administrator status updates.
type statusChangeRequest struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

// UpdateStatus handles PATCH /api/v1/applications/{id}/status.
// Administrator only (enforced by routing).
func (h *ApplicationHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	u := currentUser(w, r, h.db)
	if u == nil {
		return
	}
	var req statusChangeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Status == "" {
		jsonapi.RenderError(w, http.StatusUnprocessableEntity,
			"missing_field", "Unprocessable Entity", "status is required")
		return
	}

	app := h.loadScoped(w, r, r.PathValue("id"))
	if app == nil {
		return
	}
	previous := app.Status

	updated, err := h.grants.Transition(r.Context(), app.ID, u, req.Status, req.Reason)
	if err != nil {
		renderGrantError(w, err)
		return
	}

	h.rec.Record(r.Context(), audit.Entry{
		UserID:       &u.ID,
		Action:       model.ActionStatusChange,
		ResourceType: "application",
		ResourceID:   updated.ID,
		OldValues:    model.JSONMap{"status": previous},
		NewValues:    model.JSONMap{"status": updated.Status, "reason": req.Reason},
		IPAddress:    ratelimit.ClientIP(r),
		UserAgent:    r.UserAgent(),
		Success:      true,
	})
	jsonapi.RenderOne(w, http.StatusOK, applicationResource(updated))
}

// historyAttrs is the JSON:API attributes payload for status history rows.
type historyAttrs struct {
	PreviousStatus *string   `json:"previous_status"`
	NewStatus      string    `json:"new_status"`
	ChangedByID    *string   `json:"changed_by_id"`
	Reason         string    `json:"reason"`
	Timestamp      time.Time `json:"timestamp"`
}

// History handles GET /api/v1/applications/{id}/history.
func (h *ApplicationHandler) History(w http.ResponseWriter, r *http.Request) {
	app := h.loadScoped(w, r, r.PathValue("id"))
	if app == nil {
		return
	}
	rows, err := h.grants.History(r.Context(), app.ID)
	if err != nil {
		jsonapi.RenderError(w, http.StatusInternalServerError,
			"internal_error", "Internal Server Error", "failed to load history")
		return
	}
	data := make([]any, 0, len(rows))
	for i := range rows {
		data = append(data, jsonapi.ResourceObject{
			Type: "status_history",
			ID:   rows[i].ID,
			Attributes: historyAttrs{
				PreviousStatus: rows[i].PreviousStatus,
				NewStatus:      rows[i].NewStatus,
				ChangedByID:    rows[i].ChangedByID,
				Reason:         rows[i].Reason,
				Timestamp:      rows[i].Timestamp,
			},
		})
	}
	jsonapi.RenderList(w, http.StatusOK, data, nil)
}
