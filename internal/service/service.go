// Package service holds the business rules of the request lifecycle. Storage
// stays in repository; every request write goes through CompareAndSwap.
package service

import (
	"context"
	"time"

	"helpmatch/internal/models"
	"helpmatch/internal/repository"
)

// Emitter receives notification events after a mutation has been accepted.
// Implementations must not block and must not report delivery failures.
type Emitter interface {
	Emit(ctx context.Context, events ...models.NotificationEvent)
}

// FlagSource reports global feature flags.
type FlagSource interface {
	Global(name string) bool
}

type noopEmitter struct{}

func (noopEmitter) Emit(context.Context, ...models.NotificationEvent) {}

type noFlags struct{}

func (noFlags) Global(string) bool { return false }

func emitterOrNoop(e Emitter) Emitter {
	if e == nil {
		return noopEmitter{}
	}
	return e
}

func flagsOrNone(f FlagSource) FlagSource {
	if f == nil {
		return noFlags{}
	}
	return f
}

func utcNow() time.Time {
	return time.Now().UTC()
}

func requestEvent(userID uint, kind models.NotificationKind, req *models.Request, actorID uint) models.NotificationEvent {
	return models.NotificationEvent{
		UserID:      userID,
		Kind:        kind,
		RequestID:   req.ID,
		SubjectType: models.SubjectRequest,
		SubjectID:   req.ID,
		ActorID:     actorID,
	}
}

// activeUser loads a user and rejects deactivated accounts.
func activeUser(ctx context.Context, users repository.UserRepository, id uint) (*models.User, error) {
	u, err := users.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !u.IsActive {
		return nil, models.NewForbiddenError("user account is deactivated")
	}
	return u, nil
}
