package handler

import (
	"net/http"
	"time"

	"github.com/d9705996/granthub/internal/api/jsonapi"
	"github.com/d9705996/granthub/internal/audit"
	"github.com/d9705996/granthub/internal/model"
	"gorm.io/gorm"
)

// AuditHandler exposes the audit trail to administrators. Every route is
// read-only except security event investigation; audit rows themselves are
// append-only.
type AuditHandler struct {
	db  *gorm.DB
	rec *audit.Recorder
}

// NewAuditHandler creates an AuditHandler.
func NewAuditHandler(db *gorm.DB, rec *audit.Recorder) *AuditHandler {
	return &AuditHandler{db: db, rec: rec}
}

// parseTimeFilter accepts RFC 3339 timestamps or bare dates.
func parseTimeFilter(s string) (time.Time, bool) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, true
	}
	return time.Time{}, false
}

// auditLogAttrs is the JSON:API attributes payload for audit log rows.
type auditLogAttrs struct {
	UserID        *string       `json:"user_id"`
	Action        string        `json:"action"`
	ResourceType  string        `json:"resource_type"`
	ResourceID    string        `json:"resource_id,omitempty"`
	OldValues     model.JSONMap `json:"old_values,omitempty"`
	NewValues     model.JSONMap `json:"new_values,omitempty"`
	IPAddress     string        `json:"ip_address,omitempty"`
	RequestMethod string        `json:"request_method,omitempty"`
	RequestPath   string        `json:"request_path,omitempty"`
	Description   string        `json:"description,omitempty"`
	RiskLevel     string        `json:"risk_level"`
	Success       bool          `json:"success"`
	ErrorMessage  string        `json:"error_message,omitempty"`
	Timestamp     time.Time     `json:"timestamp"`
}

func auditLogResource(l *model.AuditLog) jsonapi.ResourceObject {
	return jsonapi.ResourceObject{
		Type: "audit_logs",
		ID:   l.ID,
		Attributes: auditLogAttrs{
			UserID:        l.UserID,
			Action:        l.Action,
			ResourceType:  l.ResourceType,
			ResourceID:    l.ResourceID,
			OldValues:     l.OldValues,
			NewValues:     l.NewValues,
			IPAddress:     l.IPAddress,
			RequestMethod: l.RequestMethod,
			RequestPath:   l.RequestPath,
			Description:   l.Description,
			RiskLevel:     l.RiskLevel,
			Success:       l.Success,
			ErrorMessage:  l.ErrorMessage,
			Timestamp:     l.Timestamp,
		},
	}
}

// ListLogs handles GET /api/v1/audit/logs with user_id, action,
// resource_type, risk_level, from, and to filters.
func (h *AuditHandler) ListLogs(w http.ResponseWriter, r *http.Request) {
	q := h.db.WithContext(r.Context()).Model(&model.AuditLog{})
	query := r.URL.Query()
	if v := query.Get("user_id"); v != "" {
		q = q.Where("user_id = ?", v)
	}
	if v := query.Get("action"); v != "" {
		q = q.Where("action = ?", v)
	}
	if v := query.Get("resource_type"); v != "" {
		q = q.Where("resource_type = ?", v)
	}
	if v := query.Get("risk_level"); v != "" {
		q = q.Where("risk_level = ?", v)
	}
	if v := query.Get("from"); v != "" {
		if t, ok := parseTimeFilter(v); ok {
			q = q.Where("timestamp >= ?", t)
		}
	}
	if v := query.Get("to"); v != "" {
		if t, ok := parseTimeFilter(v); ok {
			q = q.Where("timestamp <= ?", t)
		}
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		jsonapi.RenderError(w, http.StatusInternalServerError,
			"internal_error", "Internal Server Error", "failed to list audit logs")
		return
	}
	page, size := pageParams(r)
	var rows []model.AuditLog
	if err := paginate(q.Order("timestamp DESC"), page, size).Find(&rows).Error; err != nil {
		jsonapi.RenderError(w, http.StatusInternalServerError,
			"internal_error", "Internal Server Error", "failed to list audit logs")
		return
	}
	data := make([]any, 0, len(rows))
	for i := range rows {
		data = append(data, auditLogResource(&rows[i]))
	}
	jsonapi.RenderList(w, http.StatusOK, data, &jsonapi.Pagination{Page: page, PageSize: size, Total: total})
}

// VerifyLog handles GET /api/v1/audit/logs/{id}/verify: recomputes the
// stored row's checksum and reports whether it still matches.
func (h *AuditHandler) VerifyLog(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	ok, err := h.rec.Verify(r.Context(), id)
	if err != nil {
		renderLookupError(w, err, "audit log")
		return
	}
	jsonapi.RenderOne(w, http.StatusOK, jsonapi.ResourceObject{
		Type:       "audit_verifications",
		ID:         id,
		Attributes: map[string]bool{"checksum_valid": ok},
	})
}

// securityEventAttrs is the JSON:API attributes payload for security events.
type securityEventAttrs struct {
	UserID             *string       `json:"user_id"`
	EventType          string        `json:"event_type"`
	Severity           string        `json:"severity"`
	Description        string        `json:"description"`
	AdditionalData     model.JSONMap `json:"additional_data,omitempty"`
	IPAddress          string        `json:"ip_address,omitempty"`
	RequestPath        string        `json:"request_path,omitempty"`
	ResponseStatus     *int          `json:"response_status,omitempty"`
	Investigated       bool          `json:"investigated"`
	InvestigatedByID   *string       `json:"investigated_by_id,omitempty"`
	InvestigationNotes string        `json:"investigation_notes,omitempty"`
	Timestamp          time.Time     `json:"timestamp"`
}

func securityEventResource(e *model.SecurityEvent) jsonapi.ResourceObject {
	return jsonapi.ResourceObject{
		Type: "security_events",
		ID:   e.ID,
		Attributes: securityEventAttrs{
			UserID:             e.UserID,
			EventType:          e.EventType,
			Severity:           e.Severity,
			Description:        e.Description,
			AdditionalData:     e.AdditionalData,
			IPAddress:          e.IPAddress,
			RequestPath:        e.RequestPath,
			ResponseStatus:     e.ResponseStatus,
			Investigated:       e.Investigated,
			InvestigatedByID:   e.InvestigatedByID,
			InvestigationNotes: e.InvestigationNotes,
			Timestamp:          e.Timestamp,
		},
	}
}

// ListSecurityEvents handles GET /api/v1/audit/security-events with
// event_type, severity, and investigated filters.
func (h *AuditHandler) ListSecurityEvents(w http.ResponseWriter, r *http.Request) {
	q := h.db.WithContext(r.Context()).Model(&model.SecurityEvent{})
	query := r.URL.Query()
	if v := query.Get("event_type"); v != "" {
		q = q.Where("event_type = ?", v)
	}
	if v := query.Get("severity"); v != "" {
		q = q.Where("severity = ?", v)
	}
	if v := query.Get("investigated"); v != "" {
		q = q.Where("investigated = ?", v == "true")
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		jsonapi.RenderError(w, http.StatusInternalServerError,
			"internal_error", "Internal Server Error", "failed to list security events")
		return
	}
	page, size := pageParams(r)
	var rows []model.SecurityEvent
	if err := paginate(q.Order("timestamp DESC"), page, size).Find(&rows).Error; err != nil {
		jsonapi.RenderError(w, http.StatusInternalServerError,
			"internal_error", "Internal Server Error", "failed to list security events")
		return
	}
	data := make([]any, 0, len(rows))
	for i := range rows {
		data = append(data, securityEventResource(&rows[i]))
	}
	jsonapi.RenderList(w, http.StatusOK, data, &jsonapi.Pagination{Page: page, PageSize: size, Total: total})
}

// InvestigateSecurityEvent handles PATCH /api/v1/audit/security-events/{id}:
// marks the event investigated with the caller's notes.
func (h *AuditHandler) InvestigateSecurityEvent(w http.ResponseWriter, r *http.Request) {
	claims := tokenClaims(r)
	if claims == nil {
		jsonapi.RenderError(w, http.StatusUnauthorized,
			"missing_token", "Unauthorized", "authentication required")
		return
	}
	var req struct {
		Notes string `json:"notes"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	var ev model.SecurityEvent
	if err := h.db.WithContext(r.Context()).First(&ev, "id = ?", r.PathValue("id")).Error; err != nil {
		renderLookupError(w, err, "security event")
		return
	}
	err := h.db.WithContext(r.Context()).Model(&ev).Updates(map[string]any{
		"investigated":        true,
		"investigated_by_id":  claims.UserID,
		"investigation_notes": req.Notes,
	}).Error
	if err != nil {
		jsonapi.RenderError(w, http.StatusInternalServerError,
			"internal_error", "Internal Server Error", "failed to update the event")
		return
	}
	ev.Investigated = true
	ev.InvestigatedByID = &claims.UserID
	ev.InvestigationNotes = req.Notes
	jsonapi.RenderOne(w, http.StatusOK, securityEventResource(&ev))
}

// dataAccessAttrs is the JSON:API attributes payload for data access rows.
type dataAccessAttrs struct {
	UserID       *string       `json:"user_id"`
	AccessType   string        `json:"access_type"`
	ResourceType string        `json:"resource_type"`
	QueryParams  model.JSONMap `json:"query_params,omitempty"`
	ResultCount  int           `json:"result_count"`
	IPAddress    string        `json:"ip_address,omitempty"`
	Timestamp    time.Time     `json:"timestamp"`
}

// ListDataAccess handles GET /api/v1/audit/data-access.
func (h *AuditHandler) ListDataAccess(w http.ResponseWriter, r *http.Request) {
	q := h.db.WithContext(r.Context()).Model(&model.DataAccessLog{})
	if v := r.URL.Query().Get("resource_type"); v != "" {
		q = q.Where("resource_type = ?", v)
	}
	if v := r.URL.Query().Get("user_id"); v != "" {
		q = q.Where("user_id = ?", v)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		jsonapi.RenderError(w, http.StatusInternalServerError,
			"internal_error", "Internal Server Error", "failed to list data access logs")
		return
	}
	page, size := pageParams(r)
	var rows []model.DataAccessLog
	if err := paginate(q.Order("timestamp DESC"), page, size).Find(&rows).Error; err != nil {
		jsonapi.RenderError(w, http.StatusInternalServerError,
			"internal_error", "Internal Server Error", "failed to list data access logs")
		return
	}
	data := make([]any, 0, len(rows))
	for i := range rows {
		data = append(data, jsonapi.ResourceObject{
			Type: "data_access_logs",
			ID:   rows[i].ID,
			Attributes: dataAccessAttrs{
				UserID:       rows[i].UserID,
				AccessType:   rows[i].AccessType,
				ResourceType: rows[i].ResourceType,
				QueryParams:  rows[i].QueryParams,
				ResultCount:  rows[i].ResultCount,
				IPAddress:    rows[i].IPAddress,
				Timestamp:    rows[i].Timestamp,
			},
		})
	}
	jsonapi.RenderList(w, http.StatusOK, data, &jsonapi.Pagination{Page: page, PageSize: size, Total: total})
}

// healthLogAttrs is the JSON:API attributes payload for health samples.
type healthLogAttrs struct {
	MetricType string        `json:"metric_type"`
	Value      float64       `json:"value"`
	Unit       string        `json:"unit,omitempty"`
	IsHealthy  bool          `json:"is_healthy"`
	Metadata   model.JSONMap `json:"metadata,omitempty"`
	Timestamp  time.Time     `json:"timestamp"`
}

// ListHealthLogs handles GET /api/v1/audit/health-logs: metric samples
// written by the periodic snapshot job.
func (h *AuditHandler) ListHealthLogs(w http.ResponseWriter, r *http.Request) {
	q := h.db.WithContext(r.Context()).Model(&model.SystemHealthLog{})
	if v := r.URL.Query().Get("metric_type"); v != "" {
		q = q.Where("metric_type = ?", v)
	}
	if r.URL.Query().Get("unhealthy") == "true" {
		q = q.Where("is_healthy = ?", false)
	}

	page, size := pageParams(r)
	var rows []model.SystemHealthLog
	if err := paginate(q.Order("timestamp DESC"), page, size).Find(&rows).Error; err != nil {
		jsonapi.RenderError(w, http.StatusInternalServerError,
			"internal_error", "Internal Server Error", "failed to list health logs")
		return
	}
	data := make([]any, 0, len(rows))
	for i := range rows {
		data = append(data, jsonapi.ResourceObject{
			Type: "system_health_logs",
			ID:   rows[i].ID,
			Attributes: healthLogAttrs{
				MetricType: rows[i].MetricType,
				Value:      rows[i].Value,
				Unit:       rows[i].Unit,
				IsHealthy:  rows[i].IsHealthy,
				Metadata:   rows[i].Metadata,
				Timestamp:  rows[i].Timestamp,
			},
		})
	}
	jsonapi.RenderList(w, http.StatusOK, data, nil)
}
