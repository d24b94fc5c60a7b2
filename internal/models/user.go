// Package models contains data structures for the application's domain models.
package models

import "time"

// UserRole is the role a user usually acts in. A user may still act as either
// party on a given request.
type UserRole string

const (
	// RoleRequester asks for assistance.
	RoleRequester UserRole = "requester"
	// RoleHelper performs assistance.
	RoleHelper UserRole = "helper"
)

// Valid reports whether r is a known role.
func (r UserRole) Valid() bool {
	return r == RoleRequester || r == RoleHelper
}

// User is a participant on either side of a request. Users are deactivated, never deleted.
type User struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	Username       string    `gorm:"size:50;uniqueIndex;not null" json:"username"`
	Email          string    `gorm:"size:255;uniqueIndex;not null" json:"email"`
	Role           UserRole  `gorm:"type:varchar(20);not null;default:'requester'" json:"role"`
	RatingAverage  float64   `gorm:"not null;default:0" json:"rating_average"`
	RatingCount    int       `gorm:"not null;default:0" json:"rating_count"`
	CompletedCount int       `gorm:"not null;default:0" json:"completed_count"`
	HoursAccrued   float64   `gorm:"not null;default:0" json:"hours_accrued"`
	IsActive       bool      `gorm:"not null;default:true" json:"is_active"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// TableName specifies the table name for GORM
func (User) TableName() string {
	return "users"
}
