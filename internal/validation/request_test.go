package validation

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestValidateSchedule(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		at      time.Time
		wantErr bool
	}{
		{"Future", now.Add(time.Hour), false},
		{"Exactly Now", now, false},
		{"Past", now.Add(-time.Minute), true},
		{"Zero", time.Time{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSchedule(tt.at, now)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

type requestFields struct {
	Title    string  `json:"title" validate:"required,max=200"`
	Category string  `json:"category" validate:"required,category"`
	Hours    float64 `json:"estimated_hours" validate:"gt=0,max=24"`
	Comment  string  `json:"comment" validate:"max=1000"`
}

type ratingFields struct {
	Score    int    `json:"score" validate:"min=1,max=5"`
	Category string `json:"category" validate:"omitempty,rating_category"`
}

type accountFields struct {
	Username string `json:"username" validate:"username"`
	Email    string `json:"email" validate:"required,email"`
	Role     string `json:"role" validate:"oneof=requester helper"`
}

func TestStruct(t *testing.T) {
	t.Parallel()
	okRequest := requestFields{Title: "Carry a sofa", Category: "moving", Hours: 1.5}
	okAccount := accountFields{Username: "ana.helper", Email: "ana@example.com", Role: "helper"}

	tests := []struct {
		name    string
		input   any
		wantMsg string
	}{
		{"Request", okRequest, ""},
		{"Blank Title", requestFields{Category: "moving", Hours: 1}, "title is required"},
		{"Long Title", requestFields{Title: strings.Repeat("a", MaxTitleLength+1), Category: "moving", Hours: 1}, "title must be at most 200 characters"},
		{"Unknown Category", requestFields{Title: "x", Category: "astrology", Hours: 1}, "category must be one of errands"},
		{"Zero Hours", requestFields{Title: "x", Category: "moving"}, "estimated_hours must be greater than 0"},
		{"Too Many Hours", requestFields{Title: "x", Category: "moving", Hours: MaxEstimatedHours + 1}, "estimated_hours must be at most 24"},
		{"Comment Limit", requestFields{Title: "x", Category: "moving", Hours: 1, Comment: strings.Repeat("é", MaxCommentLength)}, ""},
		{"Comment Too Long", requestFields{Title: "x", Category: "moving", Hours: 1, Comment: strings.Repeat("é", MaxCommentLength+1)}, "comment must be at most 1000 characters"},
		{"Score Ok", ratingFields{Score: 5}, ""},
		{"Score Low", ratingFields{Score: 0}, "score must be at least 1"},
		{"Score High", ratingFields{Score: 6}, "score must be at most 5"},
		{"Rating Category", ratingFields{Score: 3, Category: "punctuality"}, ""},
		{"Unknown Rating Category", ratingFields{Score: 3, Category: "speed"}, "category must be one of general"},
		{"Account", okAccount, ""},
		{"Short Username", accountFields{Username: "ab", Email: "ab@example.com", Role: "helper"}, "username must be 3-50 characters"},
		{"Named Email", accountFields{Username: "ana", Email: "Ana <ana@example.com>", Role: "helper"}, "email is not a valid address"},
		{"Unknown Role", accountFields{Username: "ana", Email: "ana@example.com", Role: "admin"}, "role must be one of requester, helper"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Struct(tt.input)
			if tt.wantMsg == "" {
				assert.NoError(t, err)
				return
			}
			if assert.Error(t, err) {
				assert.Contains(t, err.Error(), tt.wantMsg)
			}
		})
	}
}
