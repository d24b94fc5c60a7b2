package models

import "time"

// PhotoDecision is the reviewer's verdict on a proof-of-work photo.
type PhotoDecision string

const (
	// PhotoPending is awaiting review.
	PhotoPending PhotoDecision = "pending"
	// PhotoApproved was accepted by the requester.
	PhotoApproved PhotoDecision = "approved"
	// PhotoRejected was refused by the requester.
	PhotoRejected PhotoDecision = "rejected"
)

// IsFinal reports whether the decision can no longer change.
func (d PhotoDecision) IsFinal() bool {
	return d == PhotoApproved || d == PhotoRejected
}

// PhotoSubmission is proof-of-work evidence submitted by the claimant. The payload
// reference is opaque; blob storage lives elsewhere.
type PhotoSubmission struct {
	ID           uint          `gorm:"primaryKey" json:"id"`
	RequestID    uint          `gorm:"not null;index:idx_photos_request_submitted" json:"request_id"`
	SubmitterID  uint          `gorm:"not null;index" json:"submitter_id"`
	PayloadRef   string        `gorm:"size:512;not null" json:"payload_ref"`
	Decision     PhotoDecision `gorm:"type:varchar(20);not null;default:'pending'" json:"decision"`
	ReviewerID   *uint         `json:"reviewer_id,omitempty"`
	ReviewerNote string        `gorm:"type:text" json:"reviewer_note,omitempty"`
	SubmittedAt  time.Time     `gorm:"not null;index:idx_photos_request_submitted" json:"submitted_at"`
	DecidedAt    *time.Time    `json:"decided_at,omitempty"`
}

// TableName specifies the table name for GORM
func (PhotoSubmission) TableName() string {
	return "photo_submissions"
}
