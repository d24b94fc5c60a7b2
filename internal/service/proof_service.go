package service

import (
	"context"
	"strings"

	"helpmatch/internal/models"
	"helpmatch/internal/observability"
	"helpmatch/internal/repository"
	"helpmatch/internal/validation"
)

// ProofService handles proof-of-work photo submission and review.
type ProofService struct {
	requests repository.RequestRepository
	photos   repository.PhotoRepository
	emitter  Emitter
}

// NewProofService returns a new ProofService. emitter may be nil.
func NewProofService(requests repository.RequestRepository, photos repository.PhotoRepository, emitter Emitter) *ProofService {
	return &ProofService{requests: requests, photos: photos, emitter: emitterOrNoop(emitter)}
}

type photoInput struct {
	PayloadRef string `json:"payload_ref" validate:"required,max=512"`
}

type reviewInput struct {
	Decision models.PhotoDecision `json:"decision" validate:"oneof=approved rejected"`
	Note     string               `json:"note" validate:"max=1000"`
}

// SubmitPhoto records a pending submission by the current claimant of a
// claimed or in-progress request. The request itself is not modified.
func (s *ProofService) SubmitPhoto(ctx context.Context, requestID, submitterID uint, payloadRef string) (*models.PhotoSubmission, error) {
	payloadRef = strings.TrimSpace(payloadRef)
	if err := validation.Struct(photoInput{PayloadRef: payloadRef}); err != nil {
		return nil, models.NewValidationError(err.Error())
	}

	photo := &models.PhotoSubmission{
		RequestID:   requestID,
		SubmitterID: submitterID,
		PayloadRef:  payloadRef,
	}
	var req models.Request
	err := s.photos.CreateForRequest(ctx, photo, func(current *models.Request) error {
		if current.Status != models.RequestStatusClaimed && current.Status != models.RequestStatusInProgress {
			return models.NewStateErrorf("photos can only be submitted while a request is claimed or in progress, request is %s", current.Status)
		}
		if !current.IsClaimant(submitterID) {
			return models.NewForbiddenError("only the claimant can submit proof photos")
		}
		req = *current
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.emitter.Emit(ctx, models.NotificationEvent{
		UserID:      req.RequesterID,
		Kind:        models.NotificationPhotoSubmitted,
		RequestID:   req.ID,
		SubjectType: models.SubjectPhoto,
		SubjectID:   photo.ID,
		ActorID:     submitterID,
	})
	return photo, nil
}

// ReviewPhoto writes the requester's verdict on a pending photo. The verdict is
// write-once; a second review is a StateError.
func (s *ProofService) ReviewPhoto(ctx context.Context, photoID, reviewerID uint, decision models.PhotoDecision, note string) (*models.PhotoSubmission, error) {
	note = strings.TrimSpace(note)
	if err := validation.Struct(reviewInput{Decision: decision, Note: note}); err != nil {
		return nil, models.NewValidationError(err.Error())
	}

	photo, err := s.photos.GetByID(ctx, photoID)
	if err != nil {
		return nil, err
	}
	req, err := s.requests.Load(ctx, photo.RequestID)
	if err != nil {
		return nil, err
	}
	if req.RequesterID != reviewerID {
		return nil, models.NewForbiddenError("only the requester can review proof photos")
	}
	if photo.Decision.IsFinal() {
		return nil, models.NewStateErrorf("photo %d was already %s", photo.ID, photo.Decision)
	}

	decided, err := s.photos.Decide(ctx, photoID, repository.PhotoDecisionInput{
		Decision:   decision,
		ReviewerID: reviewerID,
		Note:       note,
	})
	if err != nil {
		return nil, err
	}

	observability.PhotoReviews.WithLabelValues(string(decided.Decision)).Inc()
	s.emitter.Emit(ctx, models.NotificationEvent{
		UserID:      decided.SubmitterID,
		Kind:        models.NotificationPhotoReviewed,
		RequestID:   decided.RequestID,
		SubjectType: models.SubjectPhoto,
		SubjectID:   decided.ID,
		ActorID:     reviewerID,
	})
	return decided, nil
}

// ListPhotos returns every submission for a request in submission order.
func (s *ProofService) ListPhotos(ctx context.Context, requestID uint) ([]models.PhotoSubmission, error) {
	if _, err := s.requests.GetByID(ctx, requestID); err != nil {
		return nil, err
	}
	return s.photos.ListByRequest(ctx, requestID)
}

// PhotoPartition groups submissions by decision, keeping their order.
type PhotoPartition struct {
	Pending  []models.PhotoSubmission `json:"pending"`
	Approved []models.PhotoSubmission `json:"approved"`
	Rejected []models.PhotoSubmission `json:"rejected"`
}

// PartitionPhotos splits photos by decision.
func PartitionPhotos(photos []models.PhotoSubmission) PhotoPartition {
	p := PhotoPartition{
		Pending:  []models.PhotoSubmission{},
		Approved: []models.PhotoSubmission{},
		Rejected: []models.PhotoSubmission{},
	}
	for _, photo := range photos {
		switch photo.Decision {
		case models.PhotoApproved:
			p.Approved = append(p.Approved, photo)
		case models.PhotoRejected:
			p.Rejected = append(p.Rejected, photo)
		default:
			p.Pending = append(p.Pending, photo)
		}
	}
	return p
}
