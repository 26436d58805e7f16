package notify

import (
	"context"
	"time"

	"github.com/d9705996/granthub/internal/model"
	"gorm.io/gorm"
)

// ListNotifications returns the user's portal notifications, newest first.
// unreadOnly restricts the list to unread rows.
func (n *Notifier) ListNotifications(ctx context.Context, userID string, unreadOnly bool) ([]model.PortalNotification, error) {
	q := n.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC")
	if unreadOnly {
		q = q.Where("is_read = ?", false)
	}
	var rows []model.PortalNotification
	err := q.Find(&rows).Error
	return rows, err
}

// UnreadCount returns the number of unread portal notifications.
func (n *Notifier) UnreadCount(ctx context.Context, userID string) (int64, error) {
	var count int64
	err := n.db.WithContext(ctx).Model(&model.PortalNotification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Count(&count).Error
	return count, err
}

// MarkRead marks one of the user's notifications as read. Scoping by user
// keeps one user from marking another's notifications.
func (n *Notifier) MarkRead(ctx context.Context, userID, notificationID string) error {
	res := n.db.WithContext(ctx).Model(&model.PortalNotification{}).
		Where("id = ? AND user_id = ?", notificationID, userID).
		Updates(map[string]any{"is_read": true, "read_at": time.Now()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// MarkAllRead marks every unread notification of the user as read and
// returns how many were affected.
func (n *Notifier) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	res := n.db.WithContext(ctx).Model(&model.PortalNotification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Updates(map[string]any{"is_read": true, "read_at": time.Now()})
	return res.RowsAffected, res.Error
}
