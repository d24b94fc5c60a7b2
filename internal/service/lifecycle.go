package service

import (
	"context"
	"strings"
	"time"

	"helpmatch/internal/featureflags"
	"helpmatch/internal/models"
	"helpmatch/internal/observability"
	"helpmatch/internal/repository"
	"helpmatch/internal/validation"

	"go.opentelemetry.io/otel/attribute"
)

// SystemActorID is the actor recorded for transitions nobody asked for, such as
// expired claims.
const SystemActorID uint = 0

// ExpiredClaimReason is the cancel reason written by ExpireClaim.
const ExpiredClaimReason = "claim expired"

type party int

const (
	partyRequester party = 1 << iota
	partyClaimant
	partyOutsider
)

// allowedTransitions maps from -> to -> the parties allowed to make the move.
// Anything missing is a StateError.
var allowedTransitions = map[models.RequestStatus]map[models.RequestStatus]party{
	models.RequestStatusOpen: {
		models.RequestStatusClaimed:   partyOutsider,
		models.RequestStatusCancelled: partyRequester,
	},
	models.RequestStatusClaimed: {
		models.RequestStatusInProgress: partyRequester | partyClaimant,
		models.RequestStatusCancelled:  partyRequester | partyClaimant,
	},
	models.RequestStatusInProgress: {
		models.RequestStatusDone:      partyRequester,
		models.RequestStatusCancelled: partyRequester,
	},
}

// IsLegalTransition reports whether from -> to appears in the transition table.
func IsLegalTransition(from, to models.RequestStatus) bool {
	_, ok := allowedTransitions[from][to]
	return ok
}

func partyOf(req *models.Request, actorID uint) party {
	switch {
	case req.RequesterID == actorID:
		return partyRequester
	case req.IsClaimant(actorID):
		return partyClaimant
	}
	return partyOutsider
}

// checkTransition validates legality first and the actor second, so an illegal
// move is a StateError whoever asks for it.
func checkTransition(req *models.Request, to models.RequestStatus, actorID uint) error {
	allowed, ok := allowedTransitions[req.Status][to]
	if !ok {
		return models.NewStateError(string(req.Status), string(to))
	}
	if allowed&partyOf(req, actorID) == 0 {
		return models.NewForbiddenError("user may not move request from " + string(req.Status) + " to " + string(to))
	}
	return nil
}

// AdvanceInput is a status change requested by an actor.
type AdvanceInput struct {
	RequestID       uint                 `json:"request_id"`
	ActorID         uint                 `json:"actor_id"`
	Target          models.RequestStatus `json:"target"`
	ExpectedVersion int64                `json:"expected_version"`
	Reason          string               `json:"reason" validate:"max=500"`
}

// LifecycleService is the claim/state machine. It never writes a request
// directly; each move is one compare-and-swap.
type LifecycleService struct {
	requests repository.RequestRepository
	users    repository.UserRepository
	photos   repository.PhotoRepository
	flags    FlagSource
	emitter  Emitter
	now      func() time.Time
}

// NewLifecycleService returns a new LifecycleService. flags and emitter may be nil.
func NewLifecycleService(
	requests repository.RequestRepository,
	users repository.UserRepository,
	photos repository.PhotoRepository,
	flags FlagSource,
	emitter Emitter,
) *LifecycleService {
	return &LifecycleService{
		requests: requests,
		users:    users,
		photos:   photos,
		flags:    flagsOrNone(flags),
		emitter:  emitterOrNoop(emitter),
		now:      utcNow,
	}
}

// ClaimRequest makes helperID the single claimant of an open request. Under
// concurrent claims on the same version exactly one caller succeeds; the rest
// get a ConflictError and must re-read.
func (s *LifecycleService) ClaimRequest(ctx context.Context, requestID, helperID uint, expectedVersion int64) (*models.Request, error) {
	span, ctx := observability.StartSpan(ctx, "lifecycle", "ClaimRequest",
		attribute.Int64("request.id", int64(requestID)),
		attribute.Int64("request.expected_version", expectedVersion),
	)
	defer span.End()

	if _, err := activeUser(ctx, s.users, helperID); err != nil {
		span.SetError(err)
		return nil, err
	}

	updated, err := s.requests.CompareAndSwap(ctx, requestID, expectedVersion, func(r *models.Request) error {
		if err := checkTransition(r, models.RequestStatusClaimed, helperID); err != nil {
			if r.RequesterID == helperID && models.IsForbidden(err) {
				return models.NewForbiddenError("requesters cannot claim their own request")
			}
			return err
		}
		if r.HasClaimant() {
			return models.NewConflictError("request already has a claimant")
		}
		now := s.now()
		r.Status = models.RequestStatusClaimed
		r.ClaimantID = &helperID
		r.ClaimedAt = &now
		return nil
	})
	if err != nil {
		observability.ClaimAttempts.WithLabelValues(claimOutcome(err)).Inc()
		span.SetError(err)
		return nil, err
	}

	observability.ClaimAttempts.WithLabelValues("claimed").Inc()
	observability.StatusTransitions.WithLabelValues(string(models.RequestStatusOpen), string(models.RequestStatusClaimed)).Inc()
	s.emitter.Emit(ctx, requestEvent(updated.RequesterID, models.NotificationRequestClaimed, updated, helperID))
	return updated, nil
}

func claimOutcome(err error) string {
	switch {
	case models.IsConflict(err):
		return "conflict"
	case models.IsStateError(err), models.IsForbidden(err):
		return "rejected"
	}
	return "error"
}

// AdvanceStatus moves a request to in.Target. A claim requested through here is
// handled by ClaimRequest.
func (s *LifecycleService) AdvanceStatus(ctx context.Context, in AdvanceInput) (*models.Request, error) {
	if !in.Target.Valid() {
		return nil, models.NewValidationError("unknown target status " + string(in.Target))
	}
	in.Reason = strings.TrimSpace(in.Reason)
	if err := validation.Struct(in); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	if in.Target == models.RequestStatusClaimed {
		return s.ClaimRequest(ctx, in.RequestID, in.ActorID, in.ExpectedVersion)
	}

	span, ctx := observability.StartSpan(ctx, "lifecycle", "AdvanceStatus",
		attribute.Int64("request.id", int64(in.RequestID)),
		attribute.String("request.target", string(in.Target)),
	)
	defer span.End()

	var hooks []repository.Hook
	if in.Target == models.RequestStatusDone {
		if s.flags.Global(featureflags.RequireApprovedPhoto) {
			hooks = append(hooks, s.photos.ApprovedProofGate())
		}
		hooks = append(hooks, s.users.CreditClaimant())
	}

	var from models.RequestStatus
	updated, err := s.requests.CompareAndSwap(ctx, in.RequestID, in.ExpectedVersion, func(r *models.Request) error {
		if err := checkTransition(r, in.Target, in.ActorID); err != nil {
			return err
		}
		from = r.Status
		applyTransition(r, in.Target, in.Reason, s.now())
		return nil
	}, hooks...)
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	observability.StatusTransitions.WithLabelValues(string(from), string(updated.Status)).Inc()
	s.emitter.Emit(ctx, transitionEvents(updated, in.ActorID)...)
	return updated, nil
}

// ExpireClaim cancels a claim that was taken before cutoff and never started.
// The caller passes the version it read; a concurrent human move wins.
func (s *LifecycleService) ExpireClaim(ctx context.Context, requestID uint, expectedVersion int64, cutoff time.Time) (*models.Request, error) {
	updated, err := s.requests.CompareAndSwap(ctx, requestID, expectedVersion, func(r *models.Request) error {
		if r.Status != models.RequestStatusClaimed {
			return models.NewStateError(string(r.Status), string(models.RequestStatusCancelled))
		}
		if r.ClaimedAt == nil || !r.ClaimedAt.Before(cutoff) {
			return models.NewStateErrorf("claim on request %d has not expired", r.ID)
		}
		applyTransition(r, models.RequestStatusCancelled, ExpiredClaimReason, s.now())
		return nil
	})
	if err != nil {
		return nil, err
	}

	observability.ExpiredClaims.Inc()
	observability.StatusTransitions.WithLabelValues(string(models.RequestStatusClaimed), string(models.RequestStatusCancelled)).Inc()
	events := []models.NotificationEvent{
		requestEvent(updated.RequesterID, models.NotificationRequestExpired, updated, SystemActorID),
	}
	if updated.ClaimantID != nil {
		events = append(events, requestEvent(*updated.ClaimantID, models.NotificationRequestExpired, updated, SystemActorID))
	}
	s.emitter.Emit(ctx, events...)
	return updated, nil
}

func applyTransition(r *models.Request, to models.RequestStatus, reason string, now time.Time) {
	r.Status = to
	switch to {
	case models.RequestStatusInProgress:
		r.StartedAt = &now
	case models.RequestStatusDone:
		r.CompletedAt = &now
	case models.RequestStatusCancelled:
		r.CancelledAt = &now
		r.CancelReason = reason
	}
}

func transitionEvents(updated *models.Request, actorID uint) []models.NotificationEvent {
	var kind models.NotificationKind
	switch updated.Status {
	case models.RequestStatusInProgress:
		kind = models.NotificationRequestStarted
	case models.RequestStatusDone:
		kind = models.NotificationRequestCompleted
	case models.RequestStatusCancelled:
		kind = models.NotificationRequestCancelled
	default:
		return nil
	}
	target := updated.Counterpart(actorID)
	if target == 0 {
		return nil
	}
	return []models.NotificationEvent{requestEvent(target, kind, updated, actorID)}
}
