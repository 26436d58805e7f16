// Package worker bootstraps the River job queue. Only inherently periodic
// work runs here — deadline reminders and health snapshots; everything on
// the request path stays synchronous.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/d9705996/granthub/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
	"gorm.io/gorm"
)

// reminderWindow is how far ahead the deadline reminder job looks for
// applications whose project is about to start.
const reminderWindow = 7 * 24 * time.Hour

// Reminder delivers a deadline reminder for one application.
type Reminder interface {
	DeadlineReminder(ctx context.Context, app *model.GrantApplication) error
}

// DeadlineReminderArgs triggers a scan for applications whose project
// start date falls inside the reminder window.
type DeadlineReminderArgs struct{}

// Kind returns the unique job type identifier for reminder jobs.
func (DeadlineReminderArgs) Kind() string { return "deadline_reminder" }

type deadlineReminderWorker struct {
	river.WorkerDefaults[DeadlineReminderArgs]
	db       *gorm.DB
	reminder Reminder
	log      *slog.Logger
}

func (w *deadlineReminderWorker) Work(ctx context.Context, _ *river.Job[DeadlineReminderArgs]) error {
	now := time.Now()
	var apps []model.GrantApplication
	err := w.db.WithContext(ctx).
		Where("status IN ?", []string{model.StatusApproved, model.StatusUnderReview}).
		Where("project_start_date BETWEEN ? AND ?", now, now.Add(reminderWindow)).
		Find(&apps).Error
	if err != nil {
		return fmt.Errorf("find upcoming projects: %w", err)
	}
	for i := range apps {
		if err := w.reminder.DeadlineReminder(ctx, &apps[i]); err != nil {
			w.log.WarnContext(ctx, "deadline reminder failed",
				"application_id", apps[i].ID, "error", err)
		}
	}
	w.log.DebugContext(ctx, "deadline reminder sweep complete", "applications", len(apps))
	return nil
}

// HealthSnapshotArgs triggers one system health metric sample.
type HealthSnapshotArgs struct{}

// Kind returns the unique job type identifier for snapshot jobs.
func (HealthSnapshotArgs) Kind() string { return "health_snapshot" }

type healthSnapshotWorker struct {
	river.WorkerDefaults[HealthSnapshotArgs]
	db  *gorm.DB
	log *slog.Logger
}

func (w *healthSnapshotWorker) Work(ctx context.Context, _ *river.Job[HealthSnapshotArgs]) error {
	start := time.Now()
	var users, active, applications, pending, failedLogins int64
	if err := w.db.WithContext(ctx).Model(&model.User{}).Count(&users).Error; err != nil {
		return fmt.Errorf("count users: %w", err)
	}
	if err := w.db.WithContext(ctx).Model(&model.User{}).
		Where("last_login > ?", start.Add(-24*time.Hour)).
		Count(&active).Error; err != nil {
		return fmt.Errorf("count active users: %w", err)
	}
	if err := w.db.WithContext(ctx).Model(&model.GrantApplication{}).Count(&applications).Error; err != nil {
		return fmt.Errorf("count applications: %w", err)
	}
	if err := w.db.WithContext(ctx).Model(&model.GrantApplication{}).
		Where("status IN ?", []string{model.StatusSubmitted, model.StatusUnderReview}).
		Count(&pending).Error; err != nil {
		return fmt.Errorf("count pending applications: %w", err)
	}
	if err := w.db.WithContext(ctx).Model(&model.SecurityEvent{}).
		Where("event_type = ? AND timestamp > ?", model.SecurityLoginFailure, start.Add(-time.Hour)).
		Count(&failedLogins).Error; err != nil {
		return fmt.Errorf("count failed logins: %w", err)
	}
	latency := time.Since(start)

	rows := []model.SystemHealthLog{
		{MetricType: "users_total", Value: float64(users), Unit: "count", IsHealthy: true},
		{MetricType: "users_active_24h", Value: float64(active), Unit: "count", IsHealthy: true},
		{MetricType: "applications_total", Value: float64(applications), Unit: "count", IsHealthy: true},
		{MetricType: "applications_pending", Value: float64(pending), Unit: "count", IsHealthy: true},
		{MetricType: "failed_logins_1h", Value: float64(failedLogins), Unit: "count",
			IsHealthy: failedLogins < 25},
		{MetricType: "db_query_latency", Value: float64(latency.Milliseconds()), Unit: "ms",
			IsHealthy: latency < time.Second},
	}
	now := time.Now().UTC()
	for i := range rows {
		rows[i].Timestamp = now
		if err := w.db.WithContext(ctx).Create(&rows[i]).Error; err != nil {
			return fmt.Errorf("write health snapshot: %w", err)
		}
	}
	return nil
}

// Queue is the interface exposed by both the real River client and noopQueue.
type Queue interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Client wraps river.Client and exposes a Start/Stop lifecycle.
type Client struct {
	client *river.Client[pgx.Tx]
	log    *slog.Logger
}

// Start begins processing queued jobs.
func (c *Client) Start(ctx context.Context) error { return c.client.Start(ctx) }

// Stop gracefully shuts down the worker client.
func (c *Client) Stop(ctx context.Context) error { return c.client.Stop(ctx) }

// noopQueue is used when River is unavailable (e.g. DB_DRIVER=sqlite).
type noopQueue struct{ log *slog.Logger }

func (n *noopQueue) Start(_ context.Context) error {
	n.log.Info("worker queue disabled (sqlite driver — River requires postgres)")
	return nil
}
func (n *noopQueue) Stop(_ context.Context) error { return nil }

// New creates a queue implementation appropriate for the given driver.
//   - "postgres": returns a River client with the periodic reminder and
//     snapshot jobs registered.
//   - anything else: returns a no-op queue that logs a startup notice.
//
// pool may be nil when driver != "postgres".
func New(ctx context.Context, pool *pgxpool.Pool, driver string, concurrency int, db *gorm.DB, reminder Reminder, log *slog.Logger) (Queue, error) {
	if driver != "postgres" {
		return &noopQueue{log: log}, nil
	}
	workers := river.NewWorkers()
	river.AddWorker(workers, &deadlineReminderWorker{db: db, reminder: reminder, log: log})
	river.AddWorker(workers, &healthSnapshotWorker{db: db, log: log})

	client, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: concurrency},
		},
		Workers: workers,
		Logger:  log,
		PeriodicJobs: []*river.PeriodicJob{
			river.NewPeriodicJob(
				river.PeriodicInterval(24*time.Hour),
				func() (river.JobArgs, *river.InsertOpts) {
					return DeadlineReminderArgs{}, nil
				},
				&river.PeriodicJobOpts{RunOnStart: true},
			),
			river.NewPeriodicJob(
				river.PeriodicInterval(5*time.Minute),
				func() (river.JobArgs, *river.InsertOpts) {
					return HealthSnapshotArgs{}, nil
				},
				&river.PeriodicJobOpts{RunOnStart: true},
			),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create river client: %w", err)
	}
	return &Client{client: client, log: log}, nil
}

// MigrateRiver runs River's built-in schema migrations against the given pool.
// Only call this when DB_DRIVER=postgres.
func MigrateRiver(ctx context.Context, db *pgxpool.Pool) error {
	migrator, err := rivermigrate.New(riverpgxv5.New(db), nil)
	if err != nil {
		return fmt.Errorf("create river migrator: %w", err)
	}
	if _, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil); err != nil {
		return fmt.Errorf("run river migrations: %w", err)
	}
	return nil
}
