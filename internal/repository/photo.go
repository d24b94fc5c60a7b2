package repository

import (
	"context"
	"fmt"
	"time"

	"helpmatch/internal/models"
	"helpmatch/internal/observability"

	"gorm.io/gorm"
)

// PhotoDecisionInput is a reviewer's verdict on one submission.
type PhotoDecisionInput struct {
	Decision   models.PhotoDecision
	ReviewerID uint
	Note       string
}

// PhotoRepository persists proof-of-work submissions.
type PhotoRepository interface {
	Create(ctx context.Context, photo *models.PhotoSubmission) error
	// CreateForRequest locks the photo's request, runs check against it and
	// inserts the photo in the same transaction. An error from check aborts the
	// insert and is returned unchanged.
	CreateForRequest(ctx context.Context, photo *models.PhotoSubmission, check func(*models.Request) error) error
	GetByID(ctx context.Context, id uint) (*models.PhotoSubmission, error)
	ListByRequest(ctx context.Context, requestID uint) ([]models.PhotoSubmission, error)
	CountByDecision(ctx context.Context, requestID uint, decision models.PhotoDecision) (int64, error)
	// Decide records a verdict on a pending submission. A submission that
	// already carries a verdict is a StateError.
	Decide(ctx context.Context, id uint, input PhotoDecisionInput) (*models.PhotoSubmission, error)
	// ApprovedProofGate is a swap hook that fails with a StateError unless the
	// request has at least one approved submission.
	ApprovedProofGate() Hook
}

type photoRepository struct {
	db  *gorm.DB
	log *observability.RepoLogger
}

// NewPhotoRepository returns a new PhotoRepository implementation.
func NewPhotoRepository(db *gorm.DB) PhotoRepository {
	return &photoRepository{db: db, log: observability.NewRepoLogger("photo_submissions")}
}

func resetPhoto(photo *models.PhotoSubmission) {
	photo.ID = 0
	photo.Decision = models.PhotoPending
	photo.ReviewerID = nil
	photo.ReviewerNote = ""
	photo.DecidedAt = nil
	if photo.SubmittedAt.IsZero() {
		photo.SubmittedAt = time.Now().UTC()
	}
}

func (r *photoRepository) Create(ctx context.Context, photo *models.PhotoSubmission) error {
	resetPhoto(photo)
	if err := r.db.WithContext(ctx).Create(photo).Error; err != nil {
		r.log.LogError(ctx, err, "create")
		return models.NewInternalError(err)
	}
	r.log.LogCreate(ctx, map[string]interface{}{"id": photo.ID, "request_id": photo.RequestID})
	return nil
}

func (r *photoRepository) CreateForRequest(ctx context.Context, photo *models.PhotoSubmission, check func(*models.Request) error) error {
	resetPhoto(photo)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var req models.Request
		if err := forUpdate(tx).First(&req, photo.RequestID).Error; err != nil {
			return mapError(err, "Request", photo.RequestID)
		}
		if err := check(&req); err != nil {
			return err
		}
		return tx.Create(photo).Error
	})
	if err != nil {
		if models.ErrorCode(err) == "" {
			r.log.LogError(ctx, err, "create")
			return models.NewInternalError(err)
		}
		return err
	}
	r.log.LogCreate(ctx, map[string]interface{}{"id": photo.ID, "request_id": photo.RequestID})
	return nil
}

func (r *photoRepository) GetByID(ctx context.Context, id uint) (*models.PhotoSubmission, error) {
	var photo models.PhotoSubmission
	if err := r.db.WithContext(ctx).First(&photo, id).Error; err != nil {
		return nil, mapError(err, "Photo", id)
	}
	return &photo, nil
}

func (r *photoRepository) ListByRequest(ctx context.Context, requestID uint) ([]models.PhotoSubmission, error) {
	var photos []models.PhotoSubmission
	err := r.db.WithContext(ctx).
		Where("request_id = ?", requestID).
		Order("submitted_at ASC").
		Order("id ASC").
		Find(&photos).Error
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return photos, nil
}

func (r *photoRepository) CountByDecision(ctx context.Context, requestID uint, decision models.PhotoDecision) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.PhotoSubmission{}).
		Where("request_id = ? AND decision = ?", requestID, decision).
		Count(&n).Error
	if err != nil {
		return 0, models.NewInternalError(err)
	}
	return n, nil
}

func (r *photoRepository) Decide(ctx context.Context, id uint, input PhotoDecisionInput) (*models.PhotoSubmission, error) {
	if !input.Decision.IsFinal() {
		return nil, models.NewValidationError(fmt.Sprintf("decision must be approved or rejected, got %q", input.Decision))
	}

	now := time.Now().UTC()
	reviewer := input.ReviewerID
	res := r.db.WithContext(ctx).Model(&models.PhotoSubmission{}).
		Where("id = ? AND decision = ?", id, models.PhotoPending).
		Updates(map[string]interface{}{
			"decision":      input.Decision,
			"reviewer_id":   &reviewer,
			"reviewer_note": input.Note,
			"decided_at":    &now,
		})
	if res.Error != nil {
		r.log.LogError(ctx, res.Error, "decide")
		return nil, models.NewInternalError(res.Error)
	}

	photo, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if res.RowsAffected == 0 {
		return nil, models.NewStateErrorf("photo %d was already %s", id, photo.Decision)
	}
	r.log.LogUpdate(ctx, map[string]interface{}{"id": id, "decision": photo.Decision})
	return photo, nil
}

func (r *photoRepository) ApprovedProofGate() Hook {
	return func(tx *gorm.DB, updated *models.Request) error {
		var n int64
		err := tx.Model(&models.PhotoSubmission{}).
			Where("request_id = ? AND decision = ?", updated.ID, models.PhotoApproved).
			Count(&n).Error
		if err != nil {
			return models.NewInternalError(err)
		}
		if n == 0 {
			return models.NewStateErrorf("request %d has no approved proof photo", updated.ID)
		}
		return nil
	}
}
