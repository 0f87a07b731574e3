package alert

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jwalitptl/ckd-api/internal/model"
	"github.com/jwalitptl/ckd-api/internal/repository"
	"github.com/jwalitptl/ckd-api/pkg/auth"
	apperrors "github.com/jwalitptl/ckd-api/pkg/errors"
)

type Service interface {
	Get(ctx context.Context, id uuid.UUID) (*model.Alert, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*model.Alert, error)
	Resolve(ctx context.Context, id uuid.UUID) (*model.Alert, error)
}

type service struct {
	repo     repository.AlertRepository
	patients repository.PatientRepository
	logger   zerolog.Logger
}

func NewService(repo repository.AlertRepository, patients repository.PatientRepository, logger zerolog.Logger) Service {
	return &service{
		repo:     repo,
		patients: patients,
		logger:   logger.With().Str("component", "alert").Logger(),
	}
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*model.Alert, error) {
	alert, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, notFoundOr(err)
	}
	return alert, nil
}

// ListByPatient returns the alert history of a patient to its treating
// clinician or an admin.
func (s *service) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*model.Alert, error) {
	claims, err := auth.ClaimsFromContext(ctx)
	if err != nil {
		return nil, apperrors.Unauthorized(err)
	}

	info, err := s.patients.GetMedicalInfo(ctx, patientID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NotFound("patient", err)
		}
		return nil, apperrors.Internal(err)
	}
	if claims.Role != model.UserRoleAdmin && claims.UserID != info.OwnerID {
		return nil, apperrors.Forbidden(nil)
	}

	alerts, err := s.repo.ListByPatient(ctx, patientID)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	return alerts, nil
}

// Resolve moves an alert from open to resolved. An already resolved alert is
// returned unchanged without touching the store, even for anonymous callers;
// any real transition requires an authenticated session.
func (s *service) Resolve(ctx context.Context, id uuid.UUID) (*model.Alert, error) {
	alert, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, notFoundOr(err)
	}
	if alert.IsResolved {
		return alert, nil
	}

	claims, err := auth.ClaimsFromContext(ctx)
	if err != nil {
		return nil, apperrors.Unauthorized(err)
	}

	changed, err := s.repo.Resolve(ctx, id)
	if err != nil {
		return nil, apperrors.Internal(fmt.Errorf("failed to resolve alert: %w", err))
	}

	resolved, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, notFoundOr(err)
	}

	if changed {
		s.logger.Info().
			Str("alert_id", id.String()).
			Str("resolved_by", claims.UserID.String()).
			Msg("alert resolved")
	}
	return resolved, nil
}

func notFoundOr(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperrors.NotFound("alert", err)
	}
	return apperrors.Internal(err)
}
