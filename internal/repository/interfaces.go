package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/ckd-api/internal/model"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("record already exists")
)

// All repository interfaces in one file
type (
	NotificationRepository interface {
		Create(ctx context.Context, n *model.Notification) error
		// GetForUser only returns the notification if it belongs to userID.
		GetForUser(ctx context.Context, id, userID uuid.UUID) (*model.Notification, error)
		List(ctx context.Context, filter model.NotificationFilter) ([]*model.Notification, int, error)
		// MarkRead flips read to true and reports whether a row changed.
		MarkRead(ctx context.Context, id, userID uuid.UUID) (bool, error)
	}

	AlertRepository interface {
		Get(ctx context.Context, id uuid.UUID) (*model.Alert, error)
		ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*model.Alert, error)
		// Resolve flips is_resolved inside a transaction and reports whether a row changed.
		Resolve(ctx context.Context, id uuid.UUID) (bool, error)
	}

	PatientRepository interface {
		GetMedicalInfo(ctx context.Context, patientID uuid.UUID) (*model.MedicalInfo, error)
		UpdateMedicalInfo(ctx context.Context, info *model.MedicalInfo) error
		// ListUpdatedSince skips rows whose current snapshot was already evaluated.
		ListUpdatedSince(ctx context.Context, since time.Time, limit, offset int) ([]*model.MedicalInfo, error)
		// MarkEvaluated records that the snapshot stamped updatedAt went through the rules.
		MarkEvaluated(ctx context.Context, patientID uuid.UUID, updatedAt time.Time) error
	}

	UserRepository interface {
		Create(ctx context.Context, user *model.User) error
		GetByID(ctx context.Context, id uuid.UUID) (*model.User, error)
		GetByEmail(ctx context.Context, email string) (*model.User, error)
		UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error
		MarkEmailVerified(ctx context.Context, id uuid.UUID) error
		UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error
	}

	TokenRepository interface {
		Store(ctx context.Context, token *model.UserToken) error
		// Consume marks an unexpired, unused token as used and returns its owner.
		Consume(ctx context.Context, token string, tokenType model.TokenType) (uuid.UUID, error)
	}
)
