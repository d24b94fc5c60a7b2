package models

import "time"

// Score bounds for a Rating.
const (
	MinRatingScore = 1
	MaxRatingScore = 5
)

// Rating is one party's score of the other after a request is done.
// At most one exists per (request, rater, rated user).
type Rating struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	RequestID   uint      `gorm:"not null;uniqueIndex:idx_ratings_triple" json:"request_id"`
	RaterID     uint      `gorm:"not null;uniqueIndex:idx_ratings_triple" json:"rater_id"`
	RatedUserID uint      `gorm:"not null;uniqueIndex:idx_ratings_triple;index" json:"rated_user_id"`
	Score       int       `gorm:"not null" json:"score"`
	Category    string    `gorm:"size:50" json:"category"`
	Comment     string    `gorm:"type:text" json:"comment"`
	CreatedAt   time.Time `json:"created_at"`
}

// TableName specifies the table name for GORM
func (Rating) TableName() string {
	return "ratings"
}

// RunningAverage folds score into an average of oldCount samples without
// revisiting the history.
func RunningAverage(oldAverage float64, oldCount int, score int) float64 {
	// The product is rounded before the add, so every platform gets the same bits.
	total := float64(oldAverage*float64(oldCount)) + float64(score)
	return total / float64(oldCount+1)
}

// ApplyRating updates the user's aggregate with one more score.
func (u *User) ApplyRating(score int) {
	u.RatingAverage = RunningAverage(u.RatingAverage, u.RatingCount, score)
	u.RatingCount++
}
