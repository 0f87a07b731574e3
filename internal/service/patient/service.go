package patient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jwalitptl/ckd-api/internal/model"
	"github.com/jwalitptl/ckd-api/internal/repository"
	"github.com/jwalitptl/ckd-api/internal/service/rules"
	"github.com/jwalitptl/ckd-api/pkg/auth"
	"github.com/jwalitptl/ckd-api/pkg/cache"
	apperrors "github.com/jwalitptl/ckd-api/pkg/errors"
)

type PatientService interface {
	GetMedicalInfo(ctx context.Context, patientID uuid.UUID) (*model.MedicalInfo, error)
	UpdateMetrics(ctx context.Context, patientID uuid.UUID, req model.UpdateMedicalInfoRequest) (*UpdateResult, error)
	Evaluate(ctx context.Context, patientID uuid.UUID) ([]rules.Outcome, error)
}

// UpdateResult is the persisted snapshot plus the rules it triggered
type UpdateResult struct {
	MedicalInfo *model.MedicalInfo
	Outcomes    []rules.Outcome
}

type Service struct {
	repo      repository.PatientRepository
	cache     *cache.Cache
	evaluator *rules.Evaluator
	sessions  *rules.SessionRegistry
	logger    zerolog.Logger
	ttl       time.Duration
}

func NewService(
	repo repository.PatientRepository,
	c *cache.Cache,
	evaluator *rules.Evaluator,
	sessions *rules.SessionRegistry,
	logger zerolog.Logger,
	ttl time.Duration,
) *Service {
	if ttl <= 0 {
		ttl = cache.DefaultTTL
	}
	return &Service{
		repo:      repo,
		cache:     c,
		evaluator: evaluator,
		sessions:  sessions,
		logger:    logger.With().Str("component", "patient").Logger(),
		ttl:       ttl,
	}
}

func MedicalInfoKey(patientID uuid.UUID) string {
	return fmt.Sprintf("patient:%s:medical-info", patientID)
}

func (s *Service) GetMedicalInfo(ctx context.Context, patientID uuid.UUID) (*model.MedicalInfo, error) {
	info, err := cache.WithCache(ctx, s.cache, MedicalInfoKey(patientID), s.ttl, func(ctx context.Context) (*model.MedicalInfo, error) {
		return s.load(ctx, patientID)
	})
	if err != nil {
		return nil, err
	}
	if err := authorize(ctx, info); err != nil {
		return nil, err
	}
	return info, nil
}

// UpdateMetrics applies new values, snapshotting the current DFG and
// proteinuria into their previous fields first, then runs the rules.
func (s *Service) UpdateMetrics(ctx context.Context, patientID uuid.UUID, req model.UpdateMedicalInfoRequest) (*UpdateResult, error) {
	if req.Empty() {
		return nil, apperrors.Validation("validation failed",
			apperrors.FieldError{Field: "body", Message: "at least one of status, dfg, proteinurie is required"})
	}

	info, err := s.load(ctx, patientID)
	if err != nil {
		return nil, err
	}
	if err := authorize(ctx, info); err != nil {
		return nil, err
	}

	applyUpdate(info, req)

	if err := s.repo.UpdateMedicalInfo(ctx, info); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NotFound("patient", err)
		}
		return nil, apperrors.Internal(fmt.Errorf("failed to update medical info: %w", err))
	}
	s.cache.Delete(ctx, MedicalInfoKey(patientID))

	outcomes := s.evaluator.Evaluate(ctx, info, s.sessions.For(patientID))
	if err := s.repo.MarkEvaluated(ctx, patientID, info.UpdatedAt); err != nil {
		// the sweep will evaluate the row again in its own session
		s.logger.Warn().Err(err).Str("patient_id", patientID.String()).Msg("failed to mark medical info evaluated")
	}
	return &UpdateResult{MedicalInfo: info, Outcomes: outcomes}, nil
}

// Evaluate re-runs the rules against the stored snapshot.
func (s *Service) Evaluate(ctx context.Context, patientID uuid.UUID) ([]rules.Outcome, error) {
	info, err := s.load(ctx, patientID)
	if err != nil {
		return nil, err
	}
	if err := authorize(ctx, info); err != nil {
		return nil, err
	}
	return s.evaluator.Evaluate(ctx, info, s.sessions.For(patientID)), nil
}

func (s *Service) load(ctx context.Context, patientID uuid.UUID) (*model.MedicalInfo, error) {
	info, err := s.repo.GetMedicalInfo(ctx, patientID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NotFound("patient", err)
		}
		return nil, apperrors.Internal(err)
	}
	return info, nil
}

func applyUpdate(info *model.MedicalInfo, req model.UpdateMedicalInfoRequest) {
	if req.Status != nil {
		info.Status = *req.Status
	}
	if req.DFG != nil {
		prev := info.DFG
		info.PreviousDFG = &prev
		info.DFG = *req.DFG
	}
	if req.Proteinurie != nil {
		prev := info.Proteinurie
		info.PreviousProteinurie = &prev
		info.Proteinurie = *req.Proteinurie
	}
}

// authorize lets the treating clinician and admins through. Calls without a
// session (the sweep worker) are trusted.
func authorize(ctx context.Context, info *model.MedicalInfo) error {
	claims, err := auth.ClaimsFromContext(ctx)
	if err != nil {
		return nil
	}
	if claims.Role == model.UserRoleAdmin || claims.UserID == info.OwnerID {
		return nil
	}
	return apperrors.Forbidden(nil)
}
