package notification

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jwalitptl/ckd-api/internal/model"
	"github.com/jwalitptl/ckd-api/internal/repository"
	"github.com/jwalitptl/ckd-api/pkg/cache"
	apperrors "github.com/jwalitptl/ckd-api/pkg/errors"
	"github.com/jwalitptl/ckd-api/pkg/messaging"
	"github.com/jwalitptl/ckd-api/pkg/metrics"
	"github.com/jwalitptl/ckd-api/pkg/validator"
)

const EventCreated = "notification.created"

type Service interface {
	Create(ctx context.Context, input model.CreateNotificationInput) (*model.Notification, error)
	List(ctx context.Context, filter model.NotificationFilter) (*model.NotificationPage, error)
	MarkRead(ctx context.Context, id, ownerID uuid.UUID) (*model.Notification, error)
}

type service struct {
	repo      repository.NotificationRepository
	cache     *cache.Cache
	broker    messaging.Broker
	validator *validator.Validator
	metrics   *metrics.Metrics
	logger    zerolog.Logger
	listTTL   time.Duration
}

// NewService wires the inbox. cache and broker may be nil.
func NewService(
	repo repository.NotificationRepository,
	c *cache.Cache,
	broker messaging.Broker,
	m *metrics.Metrics,
	logger zerolog.Logger,
	listTTL time.Duration,
) Service {
	if listTTL <= 0 {
		listTTL = cache.DefaultTTL
	}
	return &service{
		repo:      repo,
		cache:     c,
		broker:    broker,
		validator: validator.New(),
		metrics:   m,
		logger:    logger.With().Str("component", "notification").Logger(),
		listTTL:   listTTL,
	}
}

func (s *service) Create(ctx context.Context, input model.CreateNotificationInput) (*model.Notification, error) {
	if err := s.validator.Validate(&input); err != nil {
		return nil, err
	}
	if input.UserID == uuid.Nil {
		return nil, apperrors.Validation("validation failed",
			apperrors.FieldError{Field: "userId", Message: "field is required"})
	}

	n := &model.Notification{
		UserID:         input.UserID,
		PatientID:      input.PatientID,
		Title:          input.Title,
		Message:        input.Message,
		Type:           input.Type,
		Category:       input.Category,
		Priority:       input.Priority,
		Status:         input.Status,
		ActionRequired: input.ActionRequired,
		ActionType:     input.ActionType,
		ActionURL:      input.ActionURL,
		ScheduledFor:   input.ScheduledFor,
		ExpiresAt:      input.ExpiresAt,
		Metadata:       input.Metadata,
	}
	if n.Priority == "" {
		n.Priority = model.NotificationPriorityNormal
	}
	if n.Status == "" {
		n.Status = model.NotificationStatusPending
	}

	if err := s.repo.Create(ctx, n); err != nil {
		return nil, apperrors.Internal(fmt.Errorf("failed to create notification: %w", err))
	}

	s.invalidate(ctx, n.UserID)
	s.publish(ctx, n)
	if s.metrics != nil {
		s.metrics.NotificationsCreated.WithLabelValues(n.Category).Inc()
	}

	return n, nil
}

func (s *service) List(ctx context.Context, filter model.NotificationFilter) (*model.NotificationPage, error) {
	if filter.UserID == uuid.Nil {
		return nil, apperrors.Unauthorized(nil)
	}
	if err := s.validator.Validate(&filter); err != nil {
		return nil, err
	}
	filter.Normalize()

	key, err := listKey(filter)
	if err != nil {
		return nil, apperrors.Internal(err)
	}

	return cache.WithCache(ctx, s.cache, key, s.listTTL, func(ctx context.Context) (*model.NotificationPage, error) {
		items, total, err := s.repo.List(ctx, filter)
		if err != nil {
			return nil, apperrors.Internal(fmt.Errorf("failed to list notifications: %w", err))
		}
		return &model.NotificationPage{
			Items:      items,
			Total:      total,
			Page:       filter.Page,
			Limit:      filter.Limit,
			TotalPages: (total + filter.Limit - 1) / filter.Limit,
		}, nil
	})
}

// MarkRead is idempotent. A notification owned by someone else is reported
// as not found so its existence does not leak.
func (s *service) MarkRead(ctx context.Context, id, ownerID uuid.UUID) (*model.Notification, error) {
	n, err := s.repo.GetForUser(ctx, id, ownerID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NotFound("notification", err)
		}
		return nil, apperrors.Internal(err)
	}
	if n.Read {
		return n, nil
	}

	changed, err := s.repo.MarkRead(ctx, id, ownerID)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	if changed {
		s.invalidate(ctx, ownerID)
	}

	// a concurrent caller may have flipped it first; either way it is read now
	return s.reload(ctx, id, ownerID, n)
}

func (s *service) reload(ctx context.Context, id, ownerID uuid.UUID, fallback *model.Notification) (*model.Notification, error) {
	n, err := s.repo.GetForUser(ctx, id, ownerID)
	if err != nil {
		s.logger.Warn().Err(err).Str("notification_id", id.String()).Msg("failed to reload notification")
		fallback.Read = true
		return fallback, nil
	}
	return n, nil
}

func (s *service) invalidate(ctx context.Context, ownerID uuid.UUID) {
	s.cache.DeleteByPattern(ctx, OwnerPattern(ownerID))
}

func (s *service) publish(ctx context.Context, n *model.Notification) {
	if s.broker == nil {
		return
	}
	if err := s.broker.Publish(ctx, messaging.ChannelNotifications, messaging.NewEvent(EventCreated, n)); err != nil {
		s.logger.Warn().Err(err).Str("notification_id", n.ID.String()).Msg("failed to publish notification event")
	}
}

// OwnerPattern matches every cached inbox page of ownerID.
func OwnerPattern(ownerID uuid.UUID) string {
	return fmt.Sprintf("notifications:%s:*", ownerID)
}

func listKey(filter model.NotificationFilter) (string, error) {
	raw, err := json.Marshal(filter)
	if err != nil {
		return "", fmt.Errorf("failed to encode filter: %w", err)
	}
	sum := sha256.Sum256(raw)
	return fmt.Sprintf("notifications:%s:list:%s", filter.UserID, hex.EncodeToString(sum[:8])), nil
}
