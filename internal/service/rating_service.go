package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"helpmatch/internal/models"
	"helpmatch/internal/observability"
	"helpmatch/internal/repository"
	"helpmatch/internal/validation"
)

// SubmitRatingInput is one party's score of the other on a done request.
type SubmitRatingInput struct {
	RequestID   uint   `json:"request_id"`
	RaterID     uint   `json:"rater_id"`
	RatedUserID uint   `json:"rated_user_id"`
	Score       int    `json:"score" validate:"min=1,max=5"`
	Category    string `json:"category" validate:"omitempty,rating_category"`
	Comment     string `json:"comment" validate:"max=1000"`
}

// RatingResult is the stored rating and the rated user's new aggregate.
type RatingResult struct {
	Rating    *models.Rating `json:"rating"`
	RatedUser *models.User   `json:"rated_user"`
}

// RatingService accepts post-completion ratings and maintains running averages.
type RatingService struct {
	requests repository.RequestRepository
	ratings  repository.RatingRepository
	emitter  Emitter
}

// NewRatingService returns a new RatingService. emitter may be nil.
func NewRatingService(requests repository.RequestRepository, ratings repository.RatingRepository, emitter Emitter) *RatingService {
	return &RatingService{requests: requests, ratings: ratings, emitter: emitterOrNoop(emitter)}
}

// SubmitRating stores a rating and folds it into the rated user's average.
// Only the requester/claimant pair of a done request may rate each other, once
// per direction.
func (s *RatingService) SubmitRating(ctx context.Context, in SubmitRatingInput) (*RatingResult, error) {
	in.Category = strings.ToLower(strings.TrimSpace(in.Category))
	in.Comment = strings.TrimSpace(in.Comment)
	if err := validateRating(in); err != nil {
		return nil, models.NewValidationError(err.Error())
	}

	req, err := s.requests.Load(ctx, in.RequestID)
	if err != nil {
		return nil, err
	}
	if req.Status != models.RequestStatusDone {
		return nil, models.NewStateErrorf("ratings open once a request is done, request is %s", req.Status)
	}
	if !req.IsParticipant(in.RaterID) || req.Counterpart(in.RaterID) != in.RatedUserID {
		return nil, models.NewForbiddenError("only the requester and claimant of a request can rate each other")
	}

	exists, err := s.ratings.Exists(ctx, in.RequestID, in.RaterID, in.RatedUserID)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, models.NewConflictError(fmt.Sprintf("user %d already rated user %d on request %d", in.RaterID, in.RatedUserID, in.RequestID))
	}

	rating := &models.Rating{
		RequestID:   in.RequestID,
		RaterID:     in.RaterID,
		RatedUserID: in.RatedUserID,
		Score:       in.Score,
		Category:    in.Category,
		Comment:     in.Comment,
	}
	rated, err := s.ratings.Record(ctx, rating, func(u *models.User) { u.ApplyRating(in.Score) })
	if err != nil {
		return nil, err
	}

	observability.RatingsSubmitted.WithLabelValues(strconv.Itoa(in.Score)).Inc()
	s.emitter.Emit(ctx, models.NotificationEvent{
		UserID:      in.RatedUserID,
		Kind:        models.NotificationRatingReceived,
		RequestID:   in.RequestID,
		SubjectType: models.SubjectRating,
		SubjectID:   rating.ID,
		ActorID:     in.RaterID,
	})
	return &RatingResult{Rating: rating, RatedUser: rated}, nil
}

func validateRating(in SubmitRatingInput) error {
	if in.RaterID == in.RatedUserID {
		return fmt.Errorf("users cannot rate themselves")
	}
	return validation.Struct(in)
}

// ListRatings returns the ratings left on a request.
func (s *RatingService) ListRatings(ctx context.Context, requestID uint) ([]models.Rating, error) {
	if _, err := s.requests.GetByID(ctx, requestID); err != nil {
		return nil, err
	}
	return s.ratings.ListByRequest(ctx, requestID)
}

// ListUserRatings returns the newest ratings a user has received.
func (s *RatingService) ListUserRatings(ctx context.Context, userID uint, limit int) ([]models.Rating, error) {
	return s.ratings.ListByRatedUser(ctx, userID, limit)
}
