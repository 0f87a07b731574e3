package email

import (
	"context"
	"fmt"
	"net/url"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
	"gopkg.in/gomail.v2"

	"github.com/jwalitptl/ckd-api/internal/config"
	"github.com/jwalitptl/ckd-api/pkg/metrics"
)

// Service sends auth lifecycle emails. Clinical notifications are in-app only.
type Service interface {
	SendVerification(ctx context.Context, to, name, token string) error
	SendPasswordReset(ctx context.Context, to, name, token string) error
}

// dialer is the subset of gomail.Dialer used here
type dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

type smtpService struct {
	dialer    dialer
	from      string
	publicURL string
	limiter   *rate.Limiter
	metrics   *metrics.Metrics
	logger    zerolog.Logger
}

// NewService returns an SMTP sender, or a logging no-op sender when SMTP is
// not configured.
func NewService(cfg config.SMTPConfig, publicURL string, m *metrics.Metrics, logger zerolog.Logger) Service {
	logger = logger.With().Str("component", "email").Logger()
	if !cfg.Enabled() {
		logger.Warn().Msg("smtp not configured, emails will be logged only")
		return &nopService{logger: logger}
	}

	limit := rate.Limit(cfg.RateLimit)
	if cfg.RateLimit <= 0 {
		limit = rate.Inf
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	return &smtpService{
		dialer:    gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:      cfg.From,
		publicURL: publicURL,
		limiter:   rate.NewLimiter(limit, burst),
		metrics:   m,
		logger:    logger,
	}
}

func (s *smtpService) SendVerification(ctx context.Context, to, name, token string) error {
	link := s.link("/verify-email", token)
	return s.send(ctx, "verification", to, "Confirm your email address",
		fmt.Sprintf("Hello %s,\n\nPlease confirm your email address by opening the link below:\n\n%s\n\nThe link expires in 48 hours.\n", name, link))
}

func (s *smtpService) SendPasswordReset(ctx context.Context, to, name, token string) error {
	link := s.link("/reset-password", token)
	return s.send(ctx, "password_reset", to, "Reset your password",
		fmt.Sprintf("Hello %s,\n\nA password reset was requested for your account. Open the link below to choose a new password:\n\n%s\n\nThe link expires in 1 hour. Ignore this email if you did not request it.\n", name, link))
}

func (s *smtpService) send(ctx context.Context, template, to, subject, body string) error {
	if err := s.limiter.Wait(ctx); err != nil {
		s.observe(template, "throttled")
		return fmt.Errorf("email throttled: %w", err)
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)

	if err := s.dialer.DialAndSend(m); err != nil {
		s.observe(template, "failed")
		return fmt.Errorf("failed to send %s email: %w", template, err)
	}

	s.observe(template, "sent")
	s.logger.Debug().Str("template", template).Msg("email sent")
	return nil
}

func (s *smtpService) link(path, token string) string {
	return fmt.Sprintf("%s%s?token=%s", s.publicURL, path, url.QueryEscape(token))
}

func (s *smtpService) observe(template, status string) {
	if s.metrics != nil {
		s.metrics.EmailsSent.WithLabelValues(template, status).Inc()
	}
}

type nopService struct {
	logger zerolog.Logger
}

func (n *nopService) SendVerification(_ context.Context, to, _, _ string) error {
	n.logger.Info().Str("to", to).Msg("verification email skipped")
	return nil
}

func (n *nopService) SendPasswordReset(_ context.Context, to, _, _ string) error {
	n.logger.Info().Str("to", to).Msg("password reset email skipped")
	return nil
}
