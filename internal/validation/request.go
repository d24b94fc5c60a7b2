// Package validation holds input rules shared by services and handlers.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Field limits. Struct tags repeat these values; the constants are for callers
// that size inputs or build fixtures.
const (
	MaxTitleLength        = 200
	MaxRequirementsLength = 4000
	MaxLocationLength     = 120
	MaxCancelReasonLength = 500
	MaxReviewNoteLength   = 1000
	MaxCommentLength      = 1000
	MaxPayloadRefLength   = 512
	MaxEstimatedHours     = 24
)

// Categories are the kinds of assistance a request can ask for.
var Categories = []string{
	"errands",
	"groceries",
	"moving",
	"yardwork",
	"repairs",
	"tech_help",
	"transport",
	"companionship",
	"other",
}

// RatingCategories tag what a rating is mostly about.
var RatingCategories = []string{
	"general",
	"punctuality",
	"communication",
	"quality",
	"friendliness",
}

var usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9_.-]{3,50}$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	mustRegister(v, "category", func(fl validator.FieldLevel) bool {
		return slices.Contains(Categories, fl.Field().String())
	})
	mustRegister(v, "rating_category", func(fl validator.FieldLevel) bool {
		return slices.Contains(RatingCategories, fl.Field().String())
	})
	mustRegister(v, "username", func(fl validator.FieldLevel) bool {
		return usernameRegex.MatchString(fl.Field().String())
	})
	return v
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(err)
	}
}

// Struct checks s against its validate tags and reports the first failing
// field in plain words.
func Struct(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var fields validator.ValidationErrors
	if !errors.As(err, &fields) || len(fields) == 0 {
		return err
	}
	return errors.New(describe(fields[0]))
}

func describe(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of %s", field, strings.Join(strings.Fields(fe.Param()), ", "))
	case "category":
		return fmt.Sprintf("%s must be one of %s", field, strings.Join(Categories, ", "))
	case "rating_category":
		return fmt.Sprintf("%s must be one of %s", field, strings.Join(RatingCategories, ", "))
	case "email":
		return field + " is not a valid address"
	case "username":
		return field + " must be 3-50 characters of letters, digits, '.', '-' or '_'"
	}
	return fmt.Sprintf("%s failed the %s rule", field, fe.Tag())
}

// ValidateSchedule rejects a scheduled time before now.
func ValidateSchedule(scheduledAt, now time.Time) error {
	if scheduledAt.IsZero() {
		return fmt.Errorf("scheduled_at is required")
	}
	if scheduledAt.Before(now) {
		return fmt.Errorf("scheduled_at must not be in the past")
	}
	return nil
}
