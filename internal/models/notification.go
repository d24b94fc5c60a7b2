package models

import "time"

// NotificationKind identifies what happened.
type NotificationKind string

const (
	NotificationRequestClaimed   NotificationKind = "request_claimed"
	NotificationRequestStarted   NotificationKind = "request_started"
	NotificationRequestCompleted NotificationKind = "request_completed"
	NotificationRequestCancelled NotificationKind = "request_cancelled"
	NotificationRequestExpired   NotificationKind = "request_expired"
	NotificationPhotoSubmitted   NotificationKind = "photo_submitted"
	NotificationPhotoReviewed    NotificationKind = "photo_reviewed"
	NotificationRatingReceived   NotificationKind = "rating_received"
)

// Valid reports whether k is a known kind.
func (k NotificationKind) Valid() bool {
	switch k {
	case NotificationRequestClaimed, NotificationRequestStarted, NotificationRequestCompleted,
		NotificationRequestCancelled, NotificationRequestExpired, NotificationPhotoSubmitted,
		NotificationPhotoReviewed, NotificationRatingReceived:
		return true
	}
	return false
}

// Subject types referenced by a notification.
const (
	SubjectRequest = "request"
	SubjectPhoto   = "photo"
	SubjectRating  = "rating"
)

// NotificationEvent tells a user about a change on one of their requests.
type NotificationEvent struct {
	ID          uint             `gorm:"primaryKey" json:"id"`
	UserID      uint             `gorm:"not null;index:idx_notifications_user_created" json:"user_id"`
	Kind        NotificationKind `gorm:"type:varchar(40);not null" json:"kind"`
	RequestID   uint             `gorm:"not null" json:"request_id"`
	SubjectType string           `gorm:"size:20;not null" json:"subject_type"`
	SubjectID   uint             `gorm:"not null" json:"subject_id"`
	ActorID     uint             `json:"actor_id,omitempty"`
	Read        bool             `gorm:"not null;default:false" json:"read"`
	ReadAt      *time.Time       `json:"read_at,omitempty"`
	CreatedAt   time.Time        `gorm:"index:idx_notifications_user_created" json:"created_at"`
}

// TableName specifies the table name for GORM
func (NotificationEvent) TableName() string {
	return "notification_events"
}
