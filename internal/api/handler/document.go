package handler

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/d9705996/granthub/internal/api/jsonapi"
	"github.com/d9705996/granthub/internal/audit"
	"github.com/d9705996/granthub/internal/grant"
	"github.com/d9705996/granthub/internal/model"
	"github.com/d9705996/granthub/internal/ratelimit"
	"gorm.io/gorm"
)

// DocumentHandler handles application attachment routes.
type DocumentHandler struct {
	db    *gorm.DB
	apps  *ApplicationHandler
	store *grant.DocumentStore
	rec   *audit.Recorder
}

// NewDocumentHandler creates a DocumentHandler.
func NewDocumentHandler(db *gorm.DB, apps *ApplicationHandler, store *grant.DocumentStore, rec *audit.Recorder) *DocumentHandler {
	return &DocumentHandler{db: db, apps: apps, store: store, rec: rec}
}

// documentAttrs is the JSON:API attributes payload for documents.
type documentAttrs struct {
	DocumentType string    `json:"document_type"`
	Name         string    `json:"name"`
	FileSize     int64     `json:"file_size"`
	UploadedAt   time.Time `json:"uploaded_at"`
}

func documentResource(d *model.ApplicationDocument) jsonapi.ResourceObject {
	return jsonapi.ResourceObject{
		Type: "documents",
		ID:   d.ID,
		Attributes: documentAttrs{
			DocumentType: d.DocumentType,
			Name:         d.Name,
			FileSize:     d.FileSize,
			UploadedAt:   d.UploadedAt,
		},
		Relationships: map[string]jsonapi.Relationship{
			"application": {Data: map[string]string{"type": "applications", "id": d.ApplicationID}},
		},
	}
}

func renderDocumentError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		jsonapi.RenderError(w, http.StatusNotFound,
			"not_found", "Not Found", "document does not exist")
	case errors.Is(err, grant.ErrNotEditable):
		jsonapi.RenderError(w, http.StatusConflict,
			"invalid_state", "Conflict", err.Error())
	case errors.Is(err, grant.ErrBadFileType):
		jsonapi.RenderError(w, http.StatusUnprocessableEntity,
			"bad_file_type", "Unprocessable Entity", err.Error())
	case errors.Is(err, grant.ErrFileTooLarge):
		jsonapi.RenderError(w, http.StatusRequestEntityTooLarge,
			"file_too_large", "Request Entity Too Large", err.Error())
	default:
		jsonapi.RenderError(w, http.StatusInternalServerError,
			"internal_error", "Internal Server Error", "document operation failed")
	}
}

// Upload handles POST /api/v1/applications/{id}/documents as a multipart
// form with a "file" part and a "document_type" field.
func (h *DocumentHandler) Upload(w http.ResponseWriter, r *http.Request) {
	app := h.apps.loadScoped(w, r, r.PathValue("id"))
	if app == nil {
		return
	}
	if claimsOrg(r) == "" {
		jsonapi.RenderError(w, http.StatusForbidden,
			"forbidden", "Forbidden", "only the owning organization may upload documents")
		return
	}

	// Small in-memory threshold; larger parts spill to temp files.
	if err := r.ParseMultipartForm(4 << 20); err != nil {
		jsonapi.RenderError(w, http.StatusBadRequest,
			"invalid_body", "Bad Request", "request must be multipart/form-data with a file part")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		jsonapi.RenderError(w, http.StatusBadRequest,
			"missing_file", "Bad Request", "a \"file\" part is required")
		return
	}
	defer file.Close()

	docType := r.FormValue("document_type")
	if docType == "" {
		docType = model.DocumentOther
	}

	doc, err := h.store.Save(r.Context(), app, docType, header.Filename, file, header.Size)
	if err != nil {
		renderDocumentError(w, err)
		return
	}

	if claims := tokenClaims(r); claims != nil {
		h.rec.Record(r.Context(), audit.Entry{
			UserID:       &claims.UserID,
			Action:       model.ActionFileUpload,
			ResourceType: "document",
			ResourceID:   doc.ID,
			NewValues:    model.JSONMap{"name": doc.Name, "size": doc.FileSize, "document_type": doc.DocumentType},
			IPAddress:    ratelimit.ClientIP(r),
			UserAgent:    r.UserAgent(),
			Success:      true,
		})
	}
	jsonapi.RenderOne(w, http.StatusCreated, documentResource(doc))
}

// List handles GET /api/v1/applications/{id}/documents.
func (h *DocumentHandler) List(w http.ResponseWriter, r *http.Request) {
	app := h.apps.loadScoped(w, r, r.PathValue("id"))
	if app == nil {
		return
	}
	docs, err := h.store.List(r.Context(), app.ID)
	if err != nil {
		jsonapi.RenderError(w, http.StatusInternalServerError,
			"internal_error", "Internal Server Error", "failed to list documents")
		return
	}
	data := make([]any, 0, len(docs))
	for i := range docs {
		data = append(data, documentResource(&docs[i]))
	}
	jsonapi.RenderList(w, http.StatusOK, data, nil)
}

// Download handles GET /api/v1/applications/{id}/documents/{docID}.
// Streams the stored file body with its original name.
func (h *DocumentHandler) Download(w http.ResponseWriter, r *http.Request) {
	app := h.apps.loadScoped(w, r, r.PathValue("id"))
	if app == nil {
		return
	}
	var doc model.ApplicationDocument
	err := h.db.WithContext(r.Context()).
		First(&doc, "id = ? AND application_id = ?", r.PathValue("docID"), app.ID).Error
	if err != nil {
		renderDocumentError(w, err)
		return
	}

	body, err := h.store.Open(&doc)
	if err != nil {
		jsonapi.RenderError(w, http.StatusInternalServerError,
			"internal_error", "Internal Server Error", "failed to open the stored file")
		return
	}
	defer body.Close()

	if claims := tokenClaims(r); claims != nil {
		h.rec.DataAccess(r.Context(), &claims.UserID, model.AccessDownload, "document",
			model.JSONMap{"id": doc.ID}, 1, ratelimit.ClientIP(r), r.UserAgent())
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.FormatInt(doc.FileSize, 10))
	// FormatMediaType escapes quotes and backslashes in the stored name.
	w.Header().Set("Content-Disposition",
		mime.FormatMediaType("attachment", map[string]string{"filename": doc.Name}))
	_, _ = io.Copy(w, body)
}

// Delete handles DELETE /api/v1/applications/{id}/documents/{docID}.
func (h *DocumentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	app := h.apps.loadScoped(w, r, r.PathValue("id"))
	if app == nil {
		return
	}
	if claimsOrg(r) == "" {
		jsonapi.RenderError(w, http.StatusForbidden,
			"forbidden", "Forbidden", "only the owning organization may delete documents")
		return
	}

	docID := r.PathValue("docID")
	if err := h.store.Delete(r.Context(), app, docID); err != nil {
		renderDocumentError(w, err)
		return
	}

	if claims := tokenClaims(r); claims != nil {
		h.rec.Record(r.Context(), audit.Entry{
			UserID:       &claims.UserID,
			Action:       model.ActionDelete,
			ResourceType: "document",
			ResourceID:   docID,
			IPAddress:    ratelimit.ClientIP(r),
			UserAgent:    r.UserAgent(),
			Success:      true,
		})
	}
	w.WriteHeader(http.StatusNoContent)
}
