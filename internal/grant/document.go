package grant

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/d9705996/granthub/internal/model"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Errors returned by the document store.
var (
	ErrBadFileType  = errors.New("file type not allowed")
	ErrFileTooLarge = errors.New("file exceeds the upload size limit")
)

// allowedExtensions is the upload allow-list.
var allowedExtensions = map[string]bool{
	".pdf": true, ".doc": true, ".docx": true,
	".xls": true, ".xlsx": true, ".txt": true,
	".jpg": true, ".jpeg": true, ".png": true,
}

// DocumentStore writes uploaded attachment bodies to the media directory
// and records them in the database.
type DocumentStore struct {
	db       *gorm.DB
	dir      string
	maxBytes int64
}

// NewDocumentStore creates a DocumentStore rooted at dir with the given
// per-file size limit.
func NewDocumentStore(db *gorm.DB, dir string, maxBytes int64) *DocumentStore {
	return &DocumentStore{db: db, dir: dir, maxBytes: maxBytes}
}

// Save validates and stores one uploaded file for an editable application.
// The body is streamed to disk under <dir>/<application id>/ with a
// generated name; the original name is kept on the row.
func (d *DocumentStore) Save(ctx context.Context, app *model.GrantApplication, docType, filename string, body io.Reader, size int64) (*model.ApplicationDocument, error) {
	if !app.CanBeEdited() {
		return nil, ErrNotEditable
	}
	ext := strings.ToLower(filepath.Ext(filename))
	if !allowedExtensions[ext] {
		return nil, fmt.Errorf("%w: %s", ErrBadFileType, ext)
	}
	if size > d.maxBytes {
		return nil, ErrFileTooLarge
	}

	appDir := filepath.Join(d.dir, app.ID)
	if err := os.MkdirAll(appDir, 0o755); err != nil {
		return nil, fmt.Errorf("create media directory: %w", err)
	}
	storedName := uuid.New().String() + ext
	fullPath := filepath.Join(appDir, storedName)

	f, err := os.Create(fullPath)
	if err != nil {
		return nil, fmt.Errorf("create file: %w", err)
	}
	// LimitReader catches bodies whose declared size was wrong.
	written, err := io.Copy(f, io.LimitReader(body, d.maxBytes+1))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(fullPath)
		return nil, fmt.Errorf("write file: %w", err)
	}
	if written > d.maxBytes {
		_ = os.Remove(fullPath)
		return nil, ErrFileTooLarge
	}

	doc := &model.ApplicationDocument{
		ApplicationID: app.ID,
		DocumentType:  docType,
		Name:          filepath.Base(filename),
		FilePath:      filepath.Join(app.ID, storedName),
		FileSize:      written,
	}
	if err := d.db.WithContext(ctx).Create(doc).Error; err != nil {
		_ = os.Remove(fullPath)
		return nil, fmt.Errorf("record document: %w", err)
	}
	return doc, nil
}

// List returns the application's documents, newest first.
func (d *DocumentStore) List(ctx context.Context, applicationID string) ([]model.ApplicationDocument, error) {
	var rows []model.ApplicationDocument
	err := d.db.WithContext(ctx).
		Where("application_id = ?", applicationID).
		Order("uploaded_at DESC").
		Find(&rows).Error
	return rows, err
}

// Open returns a reader over the stored file body. The caller closes it.
func (d *DocumentStore) Open(doc *model.ApplicationDocument) (io.ReadCloser, error) {
	return os.Open(filepath.Join(d.dir, doc.FilePath))
}

// Delete removes a document row and its file. The application must still
// be editable.
func (d *DocumentStore) Delete(ctx context.Context, app *model.GrantApplication, documentID string) error {
	if !app.CanBeEdited() {
		return ErrNotEditable
	}
	var doc model.ApplicationDocument
	if err := d.db.WithContext(ctx).
		First(&doc, "id = ? AND application_id = ?", documentID, app.ID).Error; err != nil {
		return err
	}
	if err := d.db.WithContext(ctx).Delete(&doc).Error; err != nil {
		return fmt.Errorf("delete document row: %w", err)
	}
	if err := os.Remove(filepath.Join(d.dir, doc.FilePath)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete document file: %w", err)
	}
	return nil
}
