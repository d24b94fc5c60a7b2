package repository

import (
	"context"
	"time"

	"helpmatch/internal/models"
	"helpmatch/internal/observability"

	"gorm.io/gorm"
)

// NotificationFilter narrows ListByUser.
type NotificationFilter struct {
	UnreadOnly bool
	Kind       string
	RequestID  uint
	Limit      int
	Offset     int
}

// NotificationRepository persists per-user notification events.
type NotificationRepository interface {
	Create(ctx context.Context, event *models.NotificationEvent) error
	ListByUser(ctx context.Context, userID uint, filter NotificationFilter) ([]models.NotificationEvent, error)
	CountUnread(ctx context.Context, userID uint) (int64, error)
	// MarkRead flags one event as read. Only the recipient may do so; marking
	// an already read event again is a no-op.
	MarkRead(ctx context.Context, id, userID uint) (*models.NotificationEvent, error)
	MarkAllRead(ctx context.Context, userID uint) (int64, error)
}

type notificationRepository struct {
	db  *gorm.DB
	log *observability.RepoLogger
}

// NewNotificationRepository returns a new NotificationRepository implementation.
func NewNotificationRepository(db *gorm.DB) NotificationRepository {
	return &notificationRepository{db: db, log: observability.NewRepoLogger("notification_events")}
}

func (r *notificationRepository) Create(ctx context.Context, event *models.NotificationEvent) error {
	event.ID = 0
	event.Read = false
	event.ReadAt = nil
	if err := r.db.WithContext(ctx).Create(event).Error; err != nil {
		r.log.LogError(ctx, err, "create")
		return models.NewInternalError(err)
	}
	return nil
}

func (r *notificationRepository) ListByUser(ctx context.Context, userID uint, filter NotificationFilter) ([]models.NotificationEvent, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	q := r.db.WithContext(ctx).Where("user_id = ?", userID)
	if filter.UnreadOnly {
		q = q.Where("read = ?", false)
	}
	if filter.Kind != "" {
		q = q.Where("kind = ?", filter.Kind)
	}
	if filter.RequestID != 0 {
		q = q.Where("request_id = ?", filter.RequestID)
	}

	var events []models.NotificationEvent
	err := q.Order("created_at DESC").Order("id DESC").
		Limit(limit).
		Offset(filter.Offset).
		Find(&events).Error
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return events, nil
}

func (r *notificationRepository) CountUnread(ctx context.Context, userID uint) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.NotificationEvent{}).
		Where("user_id = ? AND read = ?", userID, false).
		Count(&n).Error
	if err != nil {
		return 0, models.NewInternalError(err)
	}
	return n, nil
}

func (r *notificationRepository) MarkRead(ctx context.Context, id, userID uint) (*models.NotificationEvent, error) {
	var event models.NotificationEvent
	if err := r.db.WithContext(ctx).First(&event, id).Error; err != nil {
		return nil, mapError(err, "Notification", id)
	}
	if event.UserID != userID {
		return nil, models.NewForbiddenError("notification belongs to another user")
	}
	if event.Read {
		return &event, nil
	}

	now := time.Now().UTC()
	err := r.db.WithContext(ctx).Model(&models.NotificationEvent{}).
		Where("id = ? AND read = ?", id, false).
		Updates(map[string]interface{}{"read": true, "read_at": &now}).Error
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	event.Read = true
	event.ReadAt = &now
	return &event, nil
}

func (r *notificationRepository) MarkAllRead(ctx context.Context, userID uint) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.NotificationEvent{}).
		Where("user_id = ? AND read = ?", userID, false).
		Updates(map[string]interface{}{"read": true, "read_at": time.Now().UTC()})
	if res.Error != nil {
		return 0, models.NewInternalError(res.Error)
	}
	return res.RowsAffected, nil
}
