package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/jwalitptl/ckd-api/internal/email"
	"github.com/jwalitptl/ckd-api/internal/model"
	"github.com/jwalitptl/ckd-api/internal/repository"
	"github.com/jwalitptl/ckd-api/pkg/auth"
	apperrors "github.com/jwalitptl/ckd-api/pkg/errors"
	"github.com/jwalitptl/ckd-api/pkg/security"
)

const (
	resetTokenExpiry  = 1 * time.Hour
	verifyTokenExpiry = 48 * time.Hour
	tokenBytes        = 32
)

type Service struct {
	userRepo  repository.UserRepository
	tokenRepo repository.TokenRepository
	jwtSvc    auth.JWTService
	hasher    security.PasswordHasher
	emailSvc  email.Service
	logger    zerolog.Logger
	jwtExpiry time.Duration
	now       func() time.Time
}

func NewService(
	userRepo repository.UserRepository,
	tokenRepo repository.TokenRepository,
	jwtSvc auth.JWTService,
	hasher security.PasswordHasher,
	emailSvc email.Service,
	logger zerolog.Logger,
	jwtExpiry time.Duration,
) *Service {
	return &Service{
		userRepo:  userRepo,
		tokenRepo: tokenRepo,
		jwtSvc:    jwtSvc,
		hasher:    hasher,
		emailSvc:  emailSvc,
		logger:    logger.With().Str("component", "auth").Logger(),
		jwtExpiry: jwtExpiry,
		now:       time.Now,
	}
}

// Register creates an unverified clinician account and emails a
// verification link. Email failures do not fail registration.
func (s *Service) Register(ctx context.Context, req *model.RegisterRequest) (*model.User, error) {
	existing, err := s.userRepo.GetByEmail(ctx, req.Email)
	if err == nil && existing != nil {
		return nil, apperrors.Conflict("email already registered", nil)
	}
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.Internal(err)
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		if errors.Is(err, security.ErrPasswordTooShort) {
			return nil, apperrors.Validation("validation failed",
				apperrors.FieldError{Field: "password", Message: "value is too short"})
		}
		return nil, apperrors.Internal(err)
	}

	user := &model.User{
		Email:        req.Email,
		Name:         req.Name,
		PasswordHash: hash,
		Role:         model.UserRoleClinician,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperrors.Conflict("email already registered", err)
		}
		return nil, apperrors.Internal(fmt.Errorf("failed to create user: %w", err))
	}

	token, err := s.issueToken(ctx, user, model.TokenTypeVerification, verifyTokenExpiry)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	if err := s.emailSvc.SendVerification(ctx, user.Email, user.Name, token); err != nil {
		s.logger.Error().Err(err).Str("user_id", user.ID.String()).Msg("failed to send verification email")
	}

	return user, nil
}

func (s *Service) VerifyEmail(ctx context.Context, token string) error {
	userID, err := s.tokenRepo.Consume(ctx, token, model.TokenTypeVerification)
	if err != nil {
		return tokenError(err)
	}
	if err := s.userRepo.MarkEmailVerified(ctx, userID); err != nil {
		return apperrors.Internal(err)
	}
	return nil
}

func (s *Service) Login(ctx context.Context, req *model.LoginRequest) (*model.TokenResponse, error) {
	user, err := s.userRepo.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.Unauthorized(model.ErrInvalidCredentials)
		}
		return nil, apperrors.Internal(err)
	}

	if err := s.hasher.Compare(user.PasswordHash, req.Password); err != nil {
		return nil, apperrors.Unauthorized(model.ErrInvalidCredentials)
	}
	if !user.EmailVerified {
		return nil, &apperrors.AppError{
			Kind:    apperrors.KindForbidden,
			Message: "email not verified",
			Err:     model.ErrEmailNotVerified,
		}
	}

	now := s.now()
	if err := s.userRepo.UpdateLastLogin(ctx, user.ID, now); err != nil {
		s.logger.Warn().Err(err).Str("user_id", user.ID.String()).Msg("failed to record login")
	}
	user.LastLoginAt = &now

	access, err := s.jwtSvc.GenerateAccessToken(user.ID, user.Email, user.Role)
	if err != nil {
		return nil, apperrors.Internal(err)
	}

	return &model.TokenResponse{
		AccessToken: access,
		TokenType:   "Bearer",
		ExpiresAt:   now.Add(s.jwtExpiry),
		User:        user,
	}, nil
}

// ForgotPassword always succeeds for well-formed input so callers cannot probe
// which addresses are registered.
func (s *Service) ForgotPassword(ctx context.Context, address string) error {
	user, err := s.userRepo.GetByEmail(ctx, address)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			s.logger.Error().Err(err).Msg("failed to look up user for password reset")
		}
		return nil
	}

	token, err := s.issueToken(ctx, user, model.TokenTypeReset, resetTokenExpiry)
	if err != nil {
		return apperrors.Internal(err)
	}
	if err := s.emailSvc.SendPasswordReset(ctx, user.Email, user.Name, token); err != nil {
		s.logger.Error().Err(err).Str("user_id", user.ID.String()).Msg("failed to send password reset email")
	}
	return nil
}

func (s *Service) ResetPassword(ctx context.Context, req *model.ResetPasswordRequest) error {
	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		if errors.Is(err, security.ErrPasswordTooShort) {
			return apperrors.Validation("validation failed",
				apperrors.FieldError{Field: "password", Message: "value is too short"})
		}
		return apperrors.Internal(err)
	}

	userID, err := s.tokenRepo.Consume(ctx, req.Token, model.TokenTypeReset)
	if err != nil {
		return tokenError(err)
	}
	if err := s.userRepo.UpdatePassword(ctx, userID, hash); err != nil {
		return apperrors.Internal(err)
	}

	s.logger.Info().Str("user_id", userID.String()).Msg("password reset")
	return nil
}

func (s *Service) issueToken(ctx context.Context, user *model.User, typ model.TokenType, ttl time.Duration) (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	token := hex.EncodeToString(buf)

	if err := s.tokenRepo.Store(ctx, &model.UserToken{
		UserID:    user.ID,
		Token:     token,
		Type:      typ,
		ExpiresAt: s.now().Add(ttl),
	}); err != nil {
		return "", fmt.Errorf("failed to store %s token: %w", typ, err)
	}
	return token, nil
}

func tokenError(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperrors.BadRequest(model.ErrInvalidToken.Error(), err)
	}
	return apperrors.Internal(err)
}
