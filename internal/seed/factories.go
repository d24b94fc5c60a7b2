// Package seed provides helpers to create demo data for the application
// database. These helpers are intended for development and testing only.
package seed

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"strings"
	"time"

	"helpmatch/internal/models"
	"helpmatch/internal/repository"
	"helpmatch/internal/validation"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
)

// SeedOptions tune the factory.
type SeedOptions struct {
	DryRun  bool
	MaxDays int
}

// Factory builds domain entities and persists them through the repositories.
type Factory struct {
	users    repository.UserRepository
	requests repository.RequestRepository
	photos   repository.PhotoRepository
	opts     SeedOptions
	rng      *rand.Rand
	// synthetic ID counter when running in DryRun mode
	nextID uint
}

// NewFactory creates a new Factory.
func NewFactory(users repository.UserRepository, requests repository.RequestRepository, photos repository.PhotoRepository, opts SeedOptions) *Factory {
	gofakeit.Seed(time.Now().UnixNano())
	return &Factory{
		users:    users,
		requests: requests,
		photos:   photos,
		opts:     opts,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		nextID:   1000,
	}
}

// BuildUser returns an unsaved user with fake identity fields.
func (f *Factory) BuildUser(overrides ...func(*models.User)) *models.User {
	role := models.RoleRequester
	if f.rng.Intn(2) == 0 {
		role = models.RoleHelper
	}
	user := &models.User{
		Username: strings.ToLower(gofakeit.Username()) + fmt.Sprintf("%d", gofakeit.Number(100, 999)),
		Email:    gofakeit.Email(),
		Role:     role,
		IsActive: true,
	}
	for _, override := range overrides {
		override(user)
	}
	return user
}

// CreateUser persists a fake user.
func (f *Factory) CreateUser(ctx context.Context, overrides ...func(*models.User)) (*models.User, error) {
	user := f.BuildUser(overrides...)
	if f.opts.DryRun {
		f.nextID++
		user.ID = f.nextID
		log.Printf("[dry-run] CreateUser: %s", user.Username)
		return user, nil
	}
	if err := f.users.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// BuildRequest returns an unsaved open request for requester, scheduled
// within the next MaxDays.
func (f *Factory) BuildRequest(requester *models.User, overrides ...func(*models.Request)) *models.Request {
	maxDays := f.opts.MaxDays
	if maxDays <= 0 {
		maxDays = 14
	}
	category := validation.Categories[f.rng.Intn(len(validation.Categories))]
	req := &models.Request{
		RequesterID:    requester.ID,
		Title:          titleFor(category),
		Category:       category,
		Location:       gofakeit.City(),
		Requirements:   gofakeit.Sentence(12),
		ScheduledAt:    time.Now().UTC().Add(time.Duration(1+f.rng.Intn(maxDays*24)) * time.Hour),
		EstimatedHours: float64(1+f.rng.Intn(8)) / 2,
	}
	for _, override := range overrides {
		override(req)
	}
	return req
}

// CreateRequest persists a fake open request.
func (f *Factory) CreateRequest(ctx context.Context, requester *models.User, overrides ...func(*models.Request)) (*models.Request, error) {
	req := f.BuildRequest(requester, overrides...)
	if f.opts.DryRun {
		f.nextID++
		req.ID = f.nextID
		req.Status = models.RequestStatusOpen
		log.Printf("[dry-run] CreateRequest: %s", req.Title)
		return req, nil
	}
	if err := f.requests.Create(ctx, req); err != nil {
		return nil, err
	}
	return req, nil
}

// CreatePhoto stores a pending proof photo with a synthetic payload reference.
func (f *Factory) CreatePhoto(ctx context.Context, req *models.Request, submitterID uint) (*models.PhotoSubmission, error) {
	photo := &models.PhotoSubmission{
		RequestID:   req.ID,
		SubmitterID: submitterID,
		PayloadRef:  "seed://photos/" + uuid.NewString() + ".jpg",
	}
	if f.opts.DryRun {
		f.nextID++
		photo.ID = f.nextID
		return photo, nil
	}
	if err := f.photos.Create(ctx, photo); err != nil {
		return nil, err
	}
	return photo, nil
}

func titleFor(category string) string {
	verbs := map[string]string{
		"errands":       "Run errands",
		"groceries":     "Pick up groceries",
		"moving":        "Help moving",
		"yardwork":      "Yard work",
		"repairs":       "Fix",
		"tech_help":     "Set up",
		"transport":     "Drive to",
		"companionship": "Company for",
	}
	verb, ok := verbs[category]
	if !ok {
		verb = "Help with"
	}
	return verb + " " + strings.ToLower(gofakeit.Noun())
}
