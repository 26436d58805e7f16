package notify

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/d9705996/granthub/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Errors returned by the preference operations.
var (
	ErrBadEventType = errors.New("unknown notification event type")
	ErrBadMethod    = errors.New("unknown notification method")
)

// ListPreferences returns the user's stored preference rows. Event types
// without a row fall back to both channels at delivery time.
func (n *Notifier) ListPreferences(ctx context.Context, userID string) ([]model.NotificationPreference, error) {
	var rows []model.NotificationPreference
	err := n.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("event_type ASC").
		Find(&rows).Error
	return rows, err
}

// SetPreference upserts one (user, event type) preference.
func (n *Notifier) SetPreference(ctx context.Context, userID, eventType, method string, enabled bool) (*model.NotificationPreference, error) {
	if !slices.Contains(model.EventTypes, eventType) {
		return nil, fmt.Errorf("%w: %s", ErrBadEventType, eventType)
	}
	if !slices.Contains([]string{model.NotifyEmail, model.NotifyPortal, model.NotifyBoth, model.NotifyNone}, method) {
		return nil, fmt.Errorf("%w: %s", ErrBadMethod, method)
	}

	pref := &model.NotificationPreference{
		UserID:             userID,
		EventType:          eventType,
		NotificationMethod: method,
		IsEnabled:          enabled,
	}
	err := n.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "event_type"}},
		DoUpdates: clause.AssignmentColumns([]string{"notification_method", "is_enabled"}),
	}).Create(pref).Error
	if err != nil {
		return nil, fmt.Errorf("save notification preference: %w", err)
	}

	var stored model.NotificationPreference
	if err := n.db.WithContext(ctx).
		Where("user_id = ? AND event_type = ?", userID, eventType).
		First(&stored).Error; err != nil {
		return nil, err
	}
	return &stored, nil
}

// SetDefaultPreferences writes an explicit both-channels row for every
// event type, replacing whatever the user had configured.
func (n *Notifier) SetDefaultPreferences(ctx context.Context, userID string) ([]model.NotificationPreference, error) {
	err := n.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, eventType := range model.EventTypes {
			pref := &model.NotificationPreference{
				UserID:             userID,
				EventType:          eventType,
				NotificationMethod: model.NotifyBoth,
				IsEnabled:          true,
			}
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "user_id"}, {Name: "event_type"}},
				DoUpdates: clause.AssignmentColumns([]string{"notification_method", "is_enabled"}),
			}).Create(pref).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("set default preferences: %w", err)
	}
	return n.ListPreferences(ctx, userID)
}
