package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/d9705996/granthub/internal/api/jsonapi"
	"github.com/d9705996/granthub/internal/assess"
	"github.com/d9705996/granthub/internal/grant"
	"github.com/d9705996/granthub/internal/model"
	"gorm.io/gorm"
)

// AssessmentHandler handles assessment, template, and review routes. All of
// them are administrator-only; the router enforces the role.
type AssessmentHandler struct {
	db     *gorm.DB
	assess *assess.Service
	apps   *ApplicationHandler
}

// NewAssessmentHandler creates an AssessmentHandler.
func NewAssessmentHandler(db *gorm.DB, svc *assess.Service, apps *ApplicationHandler) *AssessmentHandler {
	return &AssessmentHandler{db: db, assess: svc, apps: apps}
}

// criteriaAttrs is one weighted sub-score in an assessment payload.
type criteriaAttrs struct {
	CriteriaType string  `json:"criteria_type"`
	Score        int     `json:"score"`
	Comments     string  `json:"comments,omitempty"`
	Weight       float64 `json:"weight"`
}

// assessmentAttrs is the JSON:API attributes payload for assessments.
type assessmentAttrs struct {
	Score          int             `json:"score"`
	Comments       string          `json:"comments,omitempty"`
	Recommendation string          `json:"recommendation"`
	Aggregate      *float64        `json:"aggregate_score"`
	Criteria       []criteriaAttrs `json:"criteria"`
	CreatedAt      time.Time       `json:"created_at"`
}

func assessmentResource(a *model.Assessment) jsonapi.ResourceObject {
	criteria := make([]criteriaAttrs, 0, len(a.Criteria))
	for _, c := range a.Criteria {
		criteria = append(criteria, criteriaAttrs{
			CriteriaType: c.CriteriaType,
			Score:        c.Score,
			Comments:     c.Comments,
			Weight:       c.Weight,
		})
	}
	return jsonapi.ResourceObject{
		Type: "assessments",
		ID:   a.ID,
		Attributes: assessmentAttrs{
			Score:          a.Score,
			Comments:       a.Comments,
			Recommendation: a.Recommendation,
			Aggregate:      assess.Aggregate(a.Criteria),
			Criteria:       criteria,
			CreatedAt:      a.CreatedAt,
		},
		Relationships: map[string]jsonapi.Relationship{
			"application":   {Data: map[string]string{"type": "applications", "id": a.ApplicationID}},
			"administrator": {Data: map[string]string{"type": "users", "id": a.AdministratorID}},
		},
	}
}

func renderAssessError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		jsonapi.RenderError(w, http.StatusNotFound,
			"not_found", "Not Found", "resource does not exist")
	case errors.Is(err, assess.ErrDuplicateEntry),
		errors.Is(err, assess.ErrDuplicateReview),
		errors.Is(err, assess.ErrNotAssessable),
		errors.Is(err, assess.ErrTemplateInactive):
		jsonapi.RenderError(w, http.StatusConflict,
			"invalid_state", "Conflict", err.Error())
	case errors.Is(err, assess.ErrSelfReview),
		errors.Is(err, assess.ErrNotAssessor):
		jsonapi.RenderError(w, http.StatusForbidden,
			"forbidden", "Forbidden", err.Error())
	case errors.Is(err, assess.ErrScoreRange),
		errors.Is(err, assess.ErrWeightRange),
		errors.Is(err, assess.ErrBadCriteriaType),
		errors.Is(err, assess.ErrDuplicateCriteria),
		errors.Is(err, assess.ErrBadRecommendation),
		errors.Is(err, assess.ErrBadReviewStatus),
		errors.Is(err, assess.ErrMissingRequiredScore):
		jsonapi.RenderError(w, http.StatusUnprocessableEntity,
			"invalid_assessment", "Unprocessable Entity", err.Error())
	case errors.Is(err, grant.ErrInvalidTransition):
		jsonapi.RenderError(w, http.StatusConflict,
			"invalid_state", "Conflict", err.Error())
	default:
		jsonapi.RenderError(w, http.StatusInternalServerError,
			"internal_error", "Internal Server Error", "assessment operation failed")
	}
}

// criteriaInput mirrors assess.CriteriaInput in the request body.
type criteriaInput struct {
	CriteriaType string  `json:"criteria_type"`
	Score        int     `json:"score"`
	Comments     string  `json:"comments"`
	Weight       float64 `json:"weight"`
}

func toCriteriaInputs(in []criteriaInput) []assess.CriteriaInput {
	out := make([]assess.CriteriaInput, 0, len(in))
	for _, c := range in {
		out = append(out, assess.CriteriaInput{
			CriteriaType: c.CriteriaType,
			Score:        c.Score,
			Comments:     c.Comments,
			Weight:       c.Weight,
		})
	}
	return out
}

// Create handles POST /api/v1/assessments.
func (h *AssessmentHandler) Create(w http.ResponseWriter, r *http.Request) {
	u := currentUser(w, r, h.db)
	if u == nil {
		return
	}
	var req struct {
		ApplicationID  string          `json:"application_id"`
		Score          int             `json:"score"`
		Comments       string          `json:"comments"`
		Recommendation string          `json:"recommendation"`
		Criteria       []criteriaInput `json:"criteria"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.ApplicationID == "" {
		jsonapi.RenderError(w, http.StatusUnprocessableEntity,
			"missing_field", "Unprocessable Entity", "application_id is required")
		return
	}

	a, err := h.assess.Create(r.Context(), u, assess.CreateInput{
		ApplicationID:  req.ApplicationID,
		Score:          req.Score,
		Comments:       req.Comments,
		Recommendation: req.Recommendation,
		Criteria:       toCriteriaInputs(req.Criteria),
	})
	if err != nil {
		renderAssessError(w, err)
		return
	}
	jsonapi.RenderOne(w, http.StatusCreated, assessmentResource(a))
}

// Update handles PATCH /api/v1/assessments/{id}. A criteria list in the
// body replaces the assessment's criteria set.
func (h *AssessmentHandler) Update(w http.ResponseWriter, r *http.Request) {
	u := currentUser(w, r, h.db)
	if u == nil {
		return
	}
	var req struct {
		Score          *int            `json:"score"`
		Comments       *string         `json:"comments"`
		Recommendation *string         `json:"recommendation"`
		Criteria       []criteriaInput `json:"criteria"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	in := assess.UpdateInput{
		Score:          req.Score,
		Comments:       req.Comments,
		Recommendation: req.Recommendation,
	}
	if req.Criteria != nil {
		in.Criteria = toCriteriaInputs(req.Criteria)
	}
	a, err := h.assess.Update(r.Context(), u, r.PathValue("id"), in)
	if err != nil {
		renderAssessError(w, err)
		return
	}
	jsonapi.RenderOne(w, http.StatusOK, assessmentResource(a))
}

// Get handles GET /api/v1/assessments/{id}.
func (h *AssessmentHandler) Get(w http.ResponseWriter, r *http.Request) {
	a, err := h.assess.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		renderLookupError(w, err, "assessment")
		return
	}
	jsonapi.RenderOne(w, http.StatusOK, assessmentResource(a))
}

// Mine handles GET /api/v1/assessments/mine.
func (h *AssessmentHandler) Mine(w http.ResponseWriter, r *http.Request) {
	claims := tokenClaims(r)
	if claims == nil {
		jsonapi.RenderError(w, http.StatusUnauthorized,
			"missing_token", "Unauthorized", "authentication required")
		return
	}
	rows, err := h.assess.ForAdministrator(r.Context(), claims.UserID)
	if err != nil {
		jsonapi.RenderError(w, http.StatusInternalServerError,
			"internal_error", "Internal Server Error", "failed to list assessments")
		return
	}
	data := make([]any, 0, len(rows))
	for i := range rows {
		data = append(data, assessmentResource(&rows[i]))
	}
	jsonapi.RenderList(w, http.StatusOK, data, nil)
}

// ForApplication handles GET /api/v1/applications/{id}/assessments.
func (h *AssessmentHandler) ForApplication(w http.ResponseWriter, r *http.Request) {
	app := h.apps.loadScoped(w, r, r.PathValue("id"))
	if app == nil {
		return
	}
	rows, err := h.assess.ForApplication(r.Context(), app.ID)
	if err != nil {
		jsonapi.RenderError(w, http.StatusInternalServerError,
			"internal_error", "Internal Server Error", "failed to list assessments")
		return
	}
	data := make([]any, 0, len(rows))
	for i := range rows {
		data = append(data, assessmentResource(&rows[i]))
	}
	jsonapi.RenderList(w, http.StatusOK, data, nil)
}

// Summary handles GET /api/v1/applications/{id}/assessments/summary.
func (h *AssessmentHandler) Summary(w http.ResponseWriter, r *http.Request) {
	app := h.apps.loadScoped(w, r, r.PathValue("id"))
	if app == nil {
		return
	}
	sum, err := h.assess.Summarize(r.Context(), app.ID)
	if err != nil {
		jsonapi.RenderError(w, http.StatusInternalServerError,
			"internal_error", "Internal Server Error", "failed to summarize assessments")
		return
	}
	jsonapi.RenderOne(w, http.StatusOK, jsonapi.ResourceObject{
		Type:       "assessment_summaries",
		ID:         app.ID,
		Attributes: sum,
	})
}

// Statistics handles GET /api/v1/assessments/statistics.
func (h *AssessmentHandler) Statistics(w http.ResponseWriter, r *http.Request) {
	st, err := h.assess.Statistics(r.Context())
	if err != nil {
		jsonapi.RenderError(w, http.StatusInternalServerError,
			"internal_error", "Internal Server Error", "failed to compute statistics")
		return
	}
	jsonapi.RenderOne(w, http.StatusOK, jsonapi.ResourceObject{
		Type:       "assessment_statistics",
		ID:         "current",
		Attributes: st,
	})
}

// reviewAttrs is the JSON:API attributes payload for assessment reviews.
type reviewAttrs struct {
	Status     string    `json:"status"`
	Comments   string    `json:"comments,omitempty"`
	ReviewedAt time.Time `json:"reviewed_at"`
}

func reviewResource(rv *model.AssessmentReview) jsonapi.ResourceObject {
	return jsonapi.ResourceObject{
		Type: "assessment_reviews",
		ID:   rv.ID,
		Attributes: reviewAttrs{
			Status:     rv.Status,
			Comments:   rv.Comments,
			ReviewedAt: rv.ReviewedAt,
		},
		Relationships: map[string]jsonapi.Relationship{
			"assessment": {Data: map[string]string{"type": "assessments", "id": rv.AssessmentID}},
			"reviewer":   {Data: map[string]string{"type": "users", "id": rv.ReviewerID}},
		},
	}
}

// CreateReview handles POST /api/v1/assessments/{id}/reviews.
func (h *AssessmentHandler) CreateReview(w http.ResponseWriter, r *http.Request) {
	u := currentUser(w, r, h.db)
	if u == nil {
		return
	}
	var req struct {
		Status   string `json:"status"`
		Comments string `json:"comments"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	rv, err := h.assess.CreateReview(r.Context(), u, r.PathValue("id"), req.Status, req.Comments)
	if err != nil {
		renderAssessError(w, err)
		return
	}
	jsonapi.RenderOne(w, http.StatusCreated, reviewResource(rv))
}

// PendingReviews handles GET /api/v1/assessments/pending-reviews: other
// administrators' assessments the caller has not yet reviewed.
func (h *AssessmentHandler) PendingReviews(w http.ResponseWriter, r *http.Request) {
	claims := tokenClaims(r)
	if claims == nil {
		jsonapi.RenderError(w, http.StatusUnauthorized,
			"missing_token", "Unauthorized", "authentication required")
		return
	}
	rows, err := h.assess.PendingReviews(r.Context(), claims.UserID)
	if err != nil {
		jsonapi.RenderError(w, http.StatusInternalServerError,
			"internal_error", "Internal Server Error", "failed to list pending reviews")
		return
	}
	data := make([]any, 0, len(rows))
	for i := range rows {
		data = append(data, assessmentResource(&rows[i]))
	}
	jsonapi.RenderList(w, http.StatusOK, data, nil)
}

// templateCriteriaAttrs is one criterion definition in a template payload.
type templateCriteriaAttrs struct {
	CriteriaType string  `json:"criteria_type"`
	Weight       float64 `json:"weight"`
	IsRequired   bool    `json:"is_required"`
	Description  string  `json:"description,omitempty"`
}

// templateAttrs is the JSON:API attributes payload for templates.
type templateAttrs struct {
	Name        string                  `json:"name"`
	Description string                  `json:"description,omitempty"`
	IsActive    bool                    `json:"is_active"`
	Criteria    []templateCriteriaAttrs `json:"criteria"`
	CreatedAt   time.Time               `json:"created_at"`
}

func templateResource(t *model.AssessmentTemplate) jsonapi.ResourceObject {
	criteria := make([]templateCriteriaAttrs, 0, len(t.Criteria))
	for _, c := range t.Criteria {
		criteria = append(criteria, templateCriteriaAttrs{
			CriteriaType: c.CriteriaType,
			Weight:       c.Weight,
			IsRequired:   c.IsRequired,
			Description:  c.Description,
		})
	}
	return jsonapi.ResourceObject{
		Type: "assessment_templates",
		ID:   t.ID,
		Attributes: templateAttrs{
			Name:        t.Name,
			Description: t.Description,
			IsActive:    t.IsActive,
			Criteria:    criteria,
			CreatedAt:   t.CreatedAt,
		},
	}
}

// CreateTemplate handles POST /api/v1/assessment-templates.
func (h *AssessmentHandler) CreateTemplate(w http.ResponseWriter, r *http.Request) {
	u := currentUser(w, r, h.db)
	if u == nil {
		return
	}
	var req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		Criteria    []struct {
			CriteriaType string  `json:"criteria_type"`
			Weight       float64 `json:"weight"`
			IsRequired   bool    `json:"is_required"`
			Description  string  `json:"description"`
		} `json:"criteria"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Name == "" || len(req.Criteria) == 0 {
		jsonapi.RenderError(w, http.StatusUnprocessableEntity,
			"missing_field", "Unprocessable Entity", "name and at least one criterion are required")
		return
	}

	criteria := make([]assess.TemplateCriteriaInput, 0, len(req.Criteria))
	for _, c := range req.Criteria {
		criteria = append(criteria, assess.TemplateCriteriaInput{
			CriteriaType: c.CriteriaType,
			Weight:       c.Weight,
			IsRequired:   c.IsRequired,
			Description:  c.Description,
		})
	}
	tpl, err := h.assess.CreateTemplate(r.Context(), u, req.Name, req.Description, criteria)
	if err != nil {
		renderAssessError(w, err)
		return
	}
	jsonapi.RenderOne(w, http.StatusCreated, templateResource(tpl))
}

// GetTemplate handles GET /api/v1/assessment-templates/{id}.
func (h *AssessmentHandler) GetTemplate(w http.ResponseWriter, r *http.Request) {
	tpl, err := h.assess.GetTemplate(r.Context(), r.PathValue("id"))
	if err != nil {
		renderLookupError(w, err, "assessment template")
		return
	}
	jsonapi.RenderOne(w, http.StatusOK, templateResource(tpl))
}

// ListTemplates handles GET /api/v1/assessment-templates. ?active=true
// restricts to active templates.
func (h *AssessmentHandler) ListTemplates(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") == "true"
	rows, err := h.assess.ListTemplates(r.Context(), activeOnly)
	if err != nil {
		jsonapi.RenderError(w, http.StatusInternalServerError,
			"internal_error", "Internal Server Error", "failed to list templates")
		return
	}
	data := make([]any, 0, len(rows))
	for i := range rows {
		data = append(data, templateResource(&rows[i]))
	}
	jsonapi.RenderList(w, http.StatusOK, data, nil)
}

// SetTemplateActive handles PATCH /api/v1/assessment-templates/{id}.
func (h *AssessmentHandler) SetTemplateActive(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IsActive *bool `json:"is_active"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.IsActive == nil {
		jsonapi.RenderError(w, http.StatusUnprocessableEntity,
			"missing_field", "Unprocessable Entity", "is_active is required")
		return
	}
	id := r.PathValue("id")
	if err := h.assess.SetTemplateActive(r.Context(), id, *req.IsActive); err != nil {
		renderLookupError(w, err, "assessment template")
		return
	}
	tpl, err := h.assess.GetTemplate(r.Context(), id)
	if err != nil {
		renderLookupError(w, err, "assessment template")
		return
	}
	jsonapi.RenderOne(w, http.StatusOK, templateResource(tpl))
}

// ApplyTemplate handles POST /api/v1/assessment-templates/{id}/apply.
// Scores are keyed by criteria type; the weights come from the template.
func (h *AssessmentHandler) ApplyTemplate(w http.ResponseWriter, r *http.Request) {
	u := currentUser(w, r, h.db)
	if u == nil {
		return
	}
	var req struct {
		ApplicationID  string `json:"application_id"`
		Score          int    `json:"score"`
		Comments       string `json:"comments"`
		Recommendation string `json:"recommendation"`
		Scores         map[string]struct {
			Score    int    `json:"score"`
			Comments string `json:"comments"`
		} `json:"scores"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.ApplicationID == "" {
		jsonapi.RenderError(w, http.StatusUnprocessableEntity,
			"missing_field", "Unprocessable Entity", "application_id is required")
		return
	}

	scores := make(map[string]assess.TemplateScore, len(req.Scores))
	for k, v := range req.Scores {
		scores[k] = assess.TemplateScore{Score: v.Score, Comments: v.Comments}
	}
	a, err := h.assess.ApplyTemplate(r.Context(), u, r.PathValue("id"), assess.CreateInput{
		ApplicationID:  req.ApplicationID,
		Score:          req.Score,
		Comments:       req.Comments,
		Recommendation: req.Recommendation,
	}, scores)
	if err != nil {
		renderAssessError(w, err)
		return
	}
	jsonapi.RenderOne(w, http.StatusCreated, assessmentResource(a))
}
