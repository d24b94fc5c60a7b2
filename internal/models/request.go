package models

import (
	"fmt"
	"time"
)

// RequestStatus is the lifecycle state of a Request.
type RequestStatus string

const (
	// RequestStatusOpen is waiting for a helper.
	RequestStatusOpen RequestStatus = "open"
	// RequestStatusClaimed has exactly one claimant who has not started yet.
	RequestStatusClaimed RequestStatus = "claimed"
	// RequestStatusInProgress is being worked on.
	RequestStatusInProgress RequestStatus = "in_progress"
	// RequestStatusDone is the terminal success state.
	RequestStatusDone RequestStatus = "done"
	// RequestStatusCancelled is the terminal abandon state.
	RequestStatusCancelled RequestStatus = "cancelled"
)

// RequestStatuses lists every status in lifecycle order.
var RequestStatuses = []RequestStatus{
	RequestStatusOpen,
	RequestStatusClaimed,
	RequestStatusInProgress,
	RequestStatusDone,
	RequestStatusCancelled,
}

// Valid reports whether s is one of the known statuses.
func (s RequestStatus) Valid() bool {
	switch s {
	case RequestStatusOpen, RequestStatusClaimed, RequestStatusInProgress, RequestStatusDone, RequestStatusCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether no further transitions are possible from s.
func (s RequestStatus) IsTerminal() bool {
	return s == RequestStatusDone || s == RequestStatusCancelled
}

// ParseRequestStatus converts raw input into a RequestStatus.
func ParseRequestStatus(raw string) (RequestStatus, error) {
	s := RequestStatus(raw)
	if !s.Valid() {
		return "", NewValidationError(fmt.Sprintf("unknown status %q", raw))
	}
	return s, nil
}

// Request is a unit of requested assistance. It is never deleted; every change
// goes through a version-checked swap.
type Request struct {
	ID             uint          `gorm:"primaryKey" json:"id"`
	RequesterID    uint          `gorm:"not null;index" json:"requester_id"`
	ClaimantID     *uint         `gorm:"index" json:"claimant_id,omitempty"`
	Status         RequestStatus `gorm:"type:varchar(20);not null;default:'open';index:idx_requests_status_created" json:"status"`
	Title          string        `gorm:"size:200;not null" json:"title"`
	Category       string        `gorm:"size:50;not null;index" json:"category"`
	Location       string        `gorm:"size:120" json:"location"`
	Requirements   string        `gorm:"type:text" json:"requirements"`
	ScheduledAt    time.Time     `gorm:"not null" json:"scheduled_at"`
	EstimatedHours float64       `gorm:"not null" json:"estimated_hours"`
	Version        int64         `gorm:"not null;default:0" json:"version"`
	ClaimedAt      *time.Time    `json:"claimed_at,omitempty"`
	StartedAt      *time.Time    `json:"started_at,omitempty"`
	CompletedAt    *time.Time    `json:"completed_at,omitempty"`
	CancelledAt    *time.Time    `json:"cancelled_at,omitempty"`
	CancelReason   string        `gorm:"size:500" json:"cancel_reason,omitempty"`
	CreatedAt      time.Time     `gorm:"index:idx_requests_status_created" json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// TableName specifies the table name for GORM
func (Request) TableName() string {
	return "requests"
}

// HasClaimant reports whether the request has been claimed.
func (r *Request) HasClaimant() bool {
	return r.ClaimantID != nil
}

// IsClaimant reports whether userID is the request's claimant.
func (r *Request) IsClaimant(userID uint) bool {
	return r.ClaimantID != nil && *r.ClaimantID == userID
}

// IsParticipant reports whether userID is the requester or the claimant.
func (r *Request) IsParticipant(userID uint) bool {
	return r.RequesterID == userID || r.IsClaimant(userID)
}

// Counterpart returns the other party of the request for userID, or 0 when
// there is none.
func (r *Request) Counterpart(userID uint) uint {
	switch {
	case r.RequesterID == userID && r.ClaimantID != nil:
		return *r.ClaimantID
	case r.IsClaimant(userID):
		return r.RequesterID
	}
	return 0
}

// Clone returns a copy that shares no pointers with r.
func (r *Request) Clone() *Request {
	cp := *r
	cp.ClaimantID = cloneUint(r.ClaimantID)
	cp.ClaimedAt = cloneTime(r.ClaimedAt)
	cp.StartedAt = cloneTime(r.StartedAt)
	cp.CompletedAt = cloneTime(r.CompletedAt)
	cp.CancelledAt = cloneTime(r.CancelledAt)
	return &cp
}

func cloneUint(v *uint) *uint {
	if v == nil {
		return nil
	}
	x := *v
	return &x
}

func cloneTime(v *time.Time) *time.Time {
	if v == nil {
		return nil
	}
	x := *v
	return &x
}
