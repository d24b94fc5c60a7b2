package service

import (
	"context"

	"helpmatch/internal/models"
	"helpmatch/internal/repository"
)

// NotificationService is the read side of the notification fan-out.
type NotificationService struct {
	notifications repository.NotificationRepository
}

// NewNotificationService returns a new NotificationService.
func NewNotificationService(notifications repository.NotificationRepository) *NotificationService {
	return &NotificationService{notifications: notifications}
}

// ListNotifications returns userID's notifications, newest first.
func (s *NotificationService) ListNotifications(ctx context.Context, userID uint, filter repository.NotificationFilter) ([]models.NotificationEvent, error) {
	if filter.Kind != "" && !models.NotificationKind(filter.Kind).Valid() {
		return nil, models.NewValidationError("unknown notification kind " + filter.Kind)
	}
	return s.notifications.ListByUser(ctx, userID, filter)
}

// UnreadCount returns how many of userID's notifications are unread.
func (s *NotificationService) UnreadCount(ctx context.Context, userID uint) (int64, error) {
	return s.notifications.CountUnread(ctx, userID)
}

// MarkRead flags one notification as read. Only its recipient may do so.
func (s *NotificationService) MarkRead(ctx context.Context, notificationID, userID uint) (*models.NotificationEvent, error) {
	return s.notifications.MarkRead(ctx, notificationID, userID)
}

// MarkAllRead flags every unread notification of userID and returns the count.
func (s *NotificationService) MarkAllRead(ctx context.Context, userID uint) (int64, error) {
	return s.notifications.MarkAllRead(ctx, userID)
}
