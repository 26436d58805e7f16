package comms_test

import (
	"context"
	"testing"

	"github.com/d9705996/granthub/internal/comms"
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
		&model.Communication{},
		&model.CommunicationThread{},
		&model.ThreadParticipant{},
		&model.ThreadMessage{},
	))
	return db
}

func seedOrgUser(t *testing.T, db *gorm.DB) (*model.User, *model.Organization) {
	t.Helper()
	user := &model.User{Email: uuid.New().String() + "@example.com", Role: model.RoleOrganization}
	require.NoError(t, db.Create(user).Error)
	org := &model.Organization{UserID: user.ID, Name: "Org " + uuid.New().String()[:8], ContactPerson: "Jo"}
	require.NoError(t, db.Create(org).Error)
	return user, org
}

func seedAdmin(t *testing.T, db *gorm.DB) *model.User {
	t.Helper()
	admin := &model.User{Email: uuid.New().String() + "@example.com", Role: model.RoleAdministrator}
	require.NoError(t, db.Create(admin).Error)
	return admin
}

func seedApp(t *testing.T, db *gorm.DB, org *model.Organization) *model.GrantApplication {
	t.Helper()
	app := &model.GrantApplication{
		OrganizationID:  org.ID,
		Title:           "Community Garden",
		Description:     "A garden",
		RequestedAmount: 1000,
		Status:          model.StatusSubmitted,
	}
	require.NoError(t, db.Create(app).Error)
	return app
}

func TestSend_OrgToOrgForbidden(t *testing.T) {
	db := openTestDB(t)
	svc := comms.NewService(db, nil)
	orgUserA, orgA := seedOrgUser(t, db)
	orgUserB, _ := seedOrgUser(t, db)
	app := seedApp(t, db, orgA)

	_, err := svc.Send(context.Background(), orgUserA, comms.MessageInput{
		ApplicationID: app.ID,
		RecipientID:   orgUserB.ID,
		Subject:       "hi",
		Message:       "hello",
	})
	require.ErrorIs(t, err, comms.ErrOrgToOrg)
}

func TestSend_AdminToAdminForcedInternal(t *testing.T) {
	db := openTestDB(t)
	svc := comms.NewService(db, nil)
	_, org := seedOrgUser(t, db)
	app := seedApp(t, db, org)
	a1 := seedAdmin(t, db)
	a2 := seedAdmin(t, db)

	comm, err := svc.Send(context.Background(), a1, comms.MessageInput{
		ApplicationID: app.ID,
		RecipientID:   a2.ID,
		Subject:       "internal note",
		Message:       "between us",
		IsInternal:    false,
	})
	require.NoError(t, err)
	assert.True(t, comm.IsInternal)
}

func TestSend_OrgOnlyOwnApplication(t *testing.T) {
	db := openTestDB(t)
	svc := comms.NewService(db, nil)
	orgUserA, _ := seedOrgUser(t, db)
	_, orgB := seedOrgUser(t, db)
	appB := seedApp(t, db, orgB)
	admin := seedAdmin(t, db)

	_, err := svc.Send(context.Background(), orgUserA, comms.MessageInput{
		ApplicationID: appB.ID,
		RecipientID:   admin.ID,
		Subject:       "hi",
		Message:       "about someone else's application",
	})
	require.ErrorIs(t, err, comms.ErrNotOwnApplication)
}

func TestList_OrganizationNeverSeesInternal(t *testing.T) {
	db := openTestDB(t)
	svc := comms.NewService(db, nil)
	orgUser, org := seedOrgUser(t, db)
	app := seedApp(t, db, org)
	a1 := seedAdmin(t, db)
	a2 := seedAdmin(t, db)

	_, err := svc.Send(context.Background(), a1, comms.MessageInput{
		ApplicationID: app.ID, RecipientID: orgUser.ID, Subject: "visible", Message: "m",
	})
	require.NoError(t, err)
	_, err = svc.Send(context.Background(), a1, comms.MessageInput{
		ApplicationID: app.ID, RecipientID: a2.ID, Subject: "hidden", Message: "m",
	})
	require.NoError(t, err)

	orgView, err := svc.List(context.Background(), orgUser, app.ID)
	require.NoError(t, err)
	require.Len(t, orgView, 1)
	assert.Equal(t, "visible", orgView[0].Subject)

	adminView, err := svc.List(context.Background(), a2, app.ID)
	require.NoError(t, err)
	assert.Len(t, adminView, 2)
}

func TestMarkRead_RecipientOnly(t *testing.T) {
	db := openTestDB(t)
	svc := comms.NewService(db, nil)
	orgUser, org := seedOrgUser(t, db)
	app := seedApp(t, db, org)
	admin := seedAdmin(t, db)

	comm, err := svc.Send(context.Background(), admin, comms.MessageInput{
		ApplicationID: app.ID, RecipientID: orgUser.ID, Subject: "s", Message: "m",
	})
	require.NoError(t, err)

	_, err = svc.MarkRead(context.Background(), admin, comm.ID)
	require.ErrorIs(t, err, comms.ErrNotRecipient)

	count, err := svc.UnreadCount(context.Background(), orgUser)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	read, err := svc.MarkRead(context.Background(), orgUser, comm.ID)
	require.NoError(t, err)
	assert.True(t, read.IsRead())

	count, err = svc.UnreadCount(context.Background(), orgUser)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestThreadLifecycle(t *testing.T) {
	db := openTestDB(t)
	svc := comms.NewService(db, nil)
	orgUser, org := seedOrgUser(t, db)
	app := seedApp(t, db, org)
	admin := seedAdmin(t, db)
	outsider := seedAdmin(t, db)

	thread, err := svc.CreateThread(context.Background(), admin, app.ID, "clarifications", []string{orgUser.ID})
	require.NoError(t, err)
	require.Len(t, thread.Participants, 2)

	_, err = svc.AddMessage(context.Background(), admin, thread.ID, "please clarify the budget", false)
	require.NoError(t, err)
	_, err = svc.AddMessage(context.Background(), admin, thread.ID, "note to self", true)
	require.NoError(t, err)
	_, err = svc.AddMessage(context.Background(), orgUser, thread.ID, "budget attached", false)
	require.NoError(t, err)

	_, err = svc.AddMessage(context.Background(), outsider, thread.ID, "let me in", false)
	require.ErrorIs(t, err, comms.ErrNotParticipant)

	// Organizations see the thread without internal messages.
	got, err := svc.GetThread(context.Background(), orgUser, thread.ID)
	require.NoError(t, err)
	assert.Len(t, got.Messages, 2)

	adminGot, err := svc.GetThread(context.Background(), admin, thread.ID)
	require.NoError(t, err)
	assert.Len(t, adminGot.Messages, 3)

	require.NoError(t, svc.CloseThread(context.Background(), admin, thread.ID))
	_, err = svc.AddMessage(context.Background(), orgUser, thread.ID, "one more thing", false)
	require.ErrorIs(t, err, comms.ErrThreadClosed)

	require.NoError(t, svc.ReopenThread(context.Background(), thread.ID))
	_, err = svc.AddMessage(context.Background(), orgUser, thread.ID, "one more thing", false)
	require.NoError(t, err)

	threads, err := svc.ListThreads(context.Background(), orgUser, "")
	require.NoError(t, err)
	assert.Len(t, threads, 1)
}
