package grant_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/d9705996/granthub/internal/grant"
	"github.com/d9705996/granthub/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDocStore(t *testing.T) (*grant.DocumentStore, string) {
	t.Helper()
	db := openTestDB(t)
	require.NoError(t, db.AutoMigrate(&model.ApplicationDocument{}))
	dir := t.TempDir()
	return grant.NewDocumentStore(db, dir, 1024), dir
}

func draftApp() *model.GrantApplication {
	return &model.GrantApplication{ID: "app-1", Status: model.StatusDraft}
}

func TestDocumentSaveAndList(t *testing.T) {
	store, dir := newDocStore(t)
	app := draftApp()

	doc, err := store.Save(context.Background(), app, model.DocumentBudget, "budget.pdf",
		strings.NewReader("pdf bytes"), 9)
	require.NoError(t, err)
	assert.Equal(t, "budget.pdf", doc.Name)
	assert.Equal(t, int64(9), doc.FileSize)

	// The body landed under the application's directory.
	b, err := os.ReadFile(filepath.Join(dir, doc.FilePath))
	require.NoError(t, err)
	assert.Equal(t, "pdf bytes", string(b))

	docs, err := store.List(context.Background(), app.ID)
	require.NoError(t, err)
	require.Len(t, docs, 1)

	r, err := store.Open(&docs[0])
	require.NoError(t, err)
	require.NoError(t, r.Close())
}

func TestDocumentSave_ExtensionAllowList(t *testing.T) {
	store, _ := newDocStore(t)
	app := draftApp()

	_, err := store.Save(context.Background(), app, model.DocumentOther, "malware.exe",
		strings.NewReader("nope"), 4)
	require.ErrorIs(t, err, grant.ErrBadFileType)

	_, err = store.Save(context.Background(), app, model.DocumentOther, "noext",
		strings.NewReader("nope"), 4)
	require.ErrorIs(t, err, grant.ErrBadFileType)
}

func TestDocumentSave_SizeLimit(t *testing.T) {
	store, _ := newDocStore(t)
	app := draftApp()

	_, err := store.Save(context.Background(), app, model.DocumentOther, "big.txt",
		strings.NewReader("x"), 2048)
	require.ErrorIs(t, err, grant.ErrFileTooLarge)

	// Declared size lies; the actual body is over the limit.
	_, err = store.Save(context.Background(), app, model.DocumentOther, "sneaky.txt",
		strings.NewReader(strings.Repeat("x", 2048)), 10)
	require.ErrorIs(t, err, grant.ErrFileTooLarge)
}

func TestDocumentSave_BlockedWhenNotEditable(t *testing.T) {
	store, _ := newDocStore(t)
	app := &model.GrantApplication{ID: "app-2", Status: model.StatusSubmitted}

	_, err := store.Save(context.Background(), app, model.DocumentOther, "late.pdf",
		strings.NewReader("too late"), 8)
	require.ErrorIs(t, err, grant.ErrNotEditable)
}

func TestDocumentDelete(t *testing.T) {
	store, dir := newDocStore(t)
	app := draftApp()

	doc, err := store.Save(context.Background(), app, model.DocumentOther, "notes.txt",
		strings.NewReader("notes"), 5)
	require.NoError(t, err)

	require.NoError(t, store.Delete(context.Background(), app, doc.ID))
	_, err = os.Stat(filepath.Join(dir, doc.FilePath))
	assert.True(t, os.IsNotExist(err))

	app.Status = model.StatusApproved
	err = store.Delete(context.Background(), app, doc.ID)
	require.ErrorIs(t, err, grant.ErrNotEditable)
}
