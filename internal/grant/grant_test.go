package grant_test

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/d9705996/granthub/internal/grant"
	"github.com/d9705996/granthub/internal/model"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&model.User{},
		&model.Organization{},
		&model.GrantApplication{},
		&model.ApplicationStatusHistory{},
	))
	return db
}

func seedApplication(t *testing.T, db *gorm.DB, complete bool) (*model.User, *model.GrantApplication) {
	t.Helper()
	owner := &model.User{Email: uuid.New().String() + "@example.com", Role: model.RoleOrganization}
	require.NoError(t, db.Create(owner).Error)
	org := &model.Organization{UserID: owner.ID, Name: "Helping Hands", ContactPerson: "Jo Bloggs"}
	require.NoError(t, db.Create(org).Error)

	app := &model.GrantApplication{OrganizationID: org.ID, Status: model.StatusDraft}
	if complete {
		start := time.Now().AddDate(0, 1, 0)
		end := start.AddDate(0, 6, 0)
		app.Title = "Community Garden"
		app.Description = "A garden for the community"
		app.RequestedAmount = 12000
		app.ProjectStartDate = &start
		app.ProjectEndDate = &end
	}
	require.NoError(t, db.Create(app).Error)
	return owner, app
}

func seedAdmin(t *testing.T, db *gorm.DB, email string) *model.User {
	t.Helper()
	admin := &model.User{Email: email, Role: model.RoleAdministrator}
	require.NoError(t, db.Create(admin).Error)
	return admin
}

func TestCanTransition(t *testing.T) {
	assert.True(t, grant.CanTransition(model.StatusDraft, model.StatusSubmitted))
	assert.True(t, grant.CanTransition(model.StatusSubmitted, model.StatusUnderReview))
	assert.True(t, grant.CanTransition(model.StatusSubmitted, model.StatusRejected))
	assert.True(t, grant.CanTransition(model.StatusUnderReview, model.StatusApproved))
	assert.True(t, grant.CanTransition(model.StatusUnderReview, model.StatusRejected))

	assert.False(t, grant.CanTransition(model.StatusDraft, model.StatusApproved))
	assert.False(t, grant.CanTransition(model.StatusDraft, model.StatusDraft))
	assert.False(t, grant.CanTransition(model.StatusApproved, model.StatusRejected))
	assert.False(t, grant.CanTransition(model.StatusRejected, model.StatusDraft))
	assert.False(t, grant.CanTransition(model.StatusSubmitted, model.StatusApproved))
}

func TestSubmit_AssignsReferenceAndHistory(t *testing.T) {
	db := openTestDB(t)
	owner, app := seedApplication(t, db, true)
	svc := grant.NewService(db, nil)

	got, err := svc.Transition(context.Background(), app.ID, owner, model.StatusSubmitted, "")
	require.NoError(t, err)
	assert.Equal(t, model.StatusSubmitted, got.Status)
	require.NotNil(t, got.ReferenceNumber)
	require.NotNil(t, got.SubmittedAt)

	pattern := regexp.MustCompile(`^GA-\d{4}-[0-9A-Z]{6}$`)
	assert.Regexp(t, pattern, *got.ReferenceNumber)

	hist, err := svc.History(context.Background(), app.ID)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, model.StatusDraft, *hist[0].PreviousStatus)
	assert.Equal(t, model.StatusSubmitted, hist[0].NewStatus)
	assert.Equal(t, owner.ID, *hist[0].ChangedByID)
}

func TestSubmit_IncompleteDraftRejected(t *testing.T) {
	db := openTestDB(t)
	owner, app := seedApplication(t, db, false)
	svc := grant.NewService(db, nil)

	_, err := svc.Transition(context.Background(), app.ID, owner, model.StatusSubmitted, "")
	require.ErrorIs(t, err, grant.ErrIncomplete)

	// The failed attempt leaves no trace.
	var reloaded model.GrantApplication
	require.NoError(t, db.First(&reloaded, "id = ?", app.ID).Error)
	assert.Equal(t, model.StatusDraft, reloaded.Status)
	assert.Nil(t, reloaded.ReferenceNumber)

	hist, err := svc.History(context.Background(), app.ID)
	require.NoError(t, err)
	assert.Empty(t, hist)
}

func TestSubmit_OnlyOwnerMaySubmit(t *testing.T) {
	db := openTestDB(t)
	_, app := seedApplication(t, db, true)
	admin := seedAdmin(t, db, "admin@example.com")
	svc := grant.NewService(db, nil)

	_, err := svc.Transition(context.Background(), app.ID, admin, model.StatusSubmitted, "")
	require.ErrorIs(t, err, grant.ErrNotOwner)
}

func TestTransition_AdminOnlyPastSubmission(t *testing.T) {
	db := openTestDB(t)
	owner, app := seedApplication(t, db, true)
	admin := seedAdmin(t, db, "admin@example.com")
	svc := grant.NewService(db, nil)

	_, err := svc.Transition(context.Background(), app.ID, owner, model.StatusSubmitted, "")
	require.NoError(t, err)

	// The owner cannot move it further.
	_, err = svc.Transition(context.Background(), app.ID, owner, model.StatusUnderReview, "")
	require.ErrorIs(t, err, grant.ErrAdminOnly)

	_, err = svc.Transition(context.Background(), app.ID, admin, model.StatusUnderReview, "starting review")
	require.NoError(t, err)
	got, err := svc.Transition(context.Background(), app.ID, admin, model.StatusApproved, "looks good")
	require.NoError(t, err)
	assert.Equal(t, model.StatusApproved, got.Status)

	hist, err := svc.History(context.Background(), app.ID)
	require.NoError(t, err)
	require.Len(t, hist, 3)
	assert.Equal(t, model.StatusApproved, hist[2].NewStatus)
	assert.Equal(t, "looks good", hist[2].Reason)
}

func TestTransition_InvalidTransitionRejected(t *testing.T) {
	db := openTestDB(t)
	_, app := seedApplication(t, db, true)
	admin := seedAdmin(t, db, "admin@example.com")
	svc := grant.NewService(db, nil)

	// draft -> approved skips submission.
	_, err := svc.Transition(context.Background(), app.ID, admin, model.StatusApproved, "")
	require.ErrorIs(t, err, grant.ErrInvalidTransition)
}

func TestSubmit_ReferenceAssignedOnce(t *testing.T) {
	db := openTestDB(t)
	owner, app := seedApplication(t, db, true)
	admin := seedAdmin(t, db, "admin@example.com")
	svc := grant.NewService(db, nil)

	got, err := svc.Transition(context.Background(), app.ID, owner, model.StatusSubmitted, "")
	require.NoError(t, err)
	ref := *got.ReferenceNumber

	_, err = svc.Transition(context.Background(), app.ID, admin, model.StatusUnderReview, "")
	require.NoError(t, err)
	_, err = svc.Transition(context.Background(), app.ID, admin, model.StatusApproved, "")
	require.NoError(t, err)

	var reloaded model.GrantApplication
	require.NoError(t, db.First(&reloaded, "id = ?", app.ID).Error)
	require.NotNil(t, reloaded.ReferenceNumber)
	assert.Equal(t, ref, *reloaded.ReferenceNumber)
}

func TestSubmit_ReferencesAreUnique(t *testing.T) {
	db := openTestDB(t)
	svc := grant.NewService(db, nil)
	seen := map[string]bool{}

	for range 20 {
		owner, app := seedApplication(t, db, true)
		got, err := svc.Transition(context.Background(), app.ID, owner, model.StatusSubmitted, "")
		require.NoError(t, err)
		require.NotNil(t, got.ReferenceNumber)
		assert.False(t, seen[*got.ReferenceNumber])
		seen[*got.ReferenceNumber] = true
	}
}

func TestValidateProjectDates(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	require.ErrorIs(t, grant.ValidateProjectDates(&start, &end), grant.ErrInvalidDates)
	require.NoError(t, grant.ValidateProjectDates(&end, &start))
	require.NoError(t, grant.ValidateProjectDates(nil, &end))
	require.NoError(t, grant.ValidateProjectDates(&start, nil))
	require.NoError(t, grant.ValidateProjectDates(&start, &start))
}
