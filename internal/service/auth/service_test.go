package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/jwalitptl/ckd-api/internal/model"
	"github.com/jwalitptl/ckd-api/internal/repository"
	"github.com/jwalitptl/ckd-api/pkg/auth"
	apperrors "github.com/jwalitptl/ckd-api/pkg/errors"
	"github.com/jwalitptl/ckd-api/pkg/security"
)

type memUsers struct {
	mu    sync.Mutex
	users map[uuid.UUID]*model.User
}

func (r *memUsers) Create(_ context.Context, u *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return repository.ErrDuplicate
		}
	}
	u.ID = uuid.New()
	cp := *u
	r.users[u.ID] = &cp
	return nil
}

func (r *memUsers) GetByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *memUsers) GetByEmail(_ context.Context, email string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *memUsers) UpdatePassword(_ context.Context, id uuid.UUID, hash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[id].PasswordHash = hash
	return nil
}

func (r *memUsers) MarkEmailVerified(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[id].EmailVerified = true
	return nil
}

func (r *memUsers) UpdateLastLogin(_ context.Context, id uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[id].LastLoginAt = &at
	return nil
}

type memTokens struct {
	mu     sync.Mutex
	tokens map[string]*model.UserToken
}

func (r *memTokens) Store(_ context.Context, t *model.UserToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *t
	r.tokens[t.Token] = &cp
	return nil
}

func (r *memTokens) Consume(_ context.Context, token string, typ model.TokenType) (uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tokens[token]
	if !ok || t.Type != typ || t.UsedAt != nil || time.Now().After(t.ExpiresAt) {
		return uuid.Nil, repository.ErrNotFound
	}
	now := time.Now()
	t.UsedAt = &now
	return t.UserID, nil
}

type fakeMailer struct {
	mu     sync.Mutex
	verify map[string]string
	reset  map[string]string
	err    error
}

func (m *fakeMailer) SendVerification(_ context.Context, to, _, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.verify[to] = token
	return m.err
}

func (m *fakeMailer) SendPasswordReset(_ context.Context, to, _, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reset[to] = token
	return m.err
}

type fixture struct {
	users  *memUsers
	mailer *fakeMailer
	jwt    auth.JWTService
	svc    *Service
}

func newFixture() *fixture {
	f := &fixture{
		users:  &memUsers{users: map[uuid.UUID]*model.User{}},
		mailer: &fakeMailer{verify: map[string]string{}, reset: map[string]string{}},
		jwt:    auth.NewJWTService("secret", "ckd-api", time.Hour),
	}
	f.svc = NewService(f.users, &memTokens{tokens: map[string]*model.UserToken{}}, f.jwt,
		security.NewBcryptHasher(bcrypt.MinCost), f.mailer, zerolog.Nop(), time.Hour)
	return f
}

func register(t *testing.T, f *fixture) *model.User {
	t.Helper()
	user, err := f.svc.Register(context.Background(), &model.RegisterRequest{
		Email: "dr@example.com", Password: "correct-horse", Name: "Dr Example",
	})
	require.NoError(t, err)
	return user
}

func TestRegisterVerifyLogin(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	user := register(t, f)
	assert.Equal(t, model.UserRoleClinician, user.Role)
	assert.NotEqual(t, "correct-horse", user.PasswordHash)

	_, err := f.svc.Login(ctx, &model.LoginRequest{Email: "dr@example.com", Password: "correct-horse"})
	assert.True(t, apperrors.Is(err, apperrors.KindForbidden), "unverified accounts cannot log in")

	token := f.mailer.verify["dr@example.com"]
	require.NotEmpty(t, token)
	require.NoError(t, f.svc.VerifyEmail(ctx, token))

	err = f.svc.VerifyEmail(ctx, token)
	assert.True(t, apperrors.Is(err, apperrors.KindValidation), "tokens are single use")

	resp, err := f.svc.Login(ctx, &model.LoginRequest{Email: "DR@example.com", Password: "correct-horse"})
	require.NoError(t, err)
	assert.Equal(t, "Bearer", resp.TokenType)

	claims, err := f.jwt.ValidateToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
}

func TestRegisterDuplicate(t *testing.T) {
	f := newFixture()
	register(t, f)

	_, err := f.svc.Register(context.Background(), &model.RegisterRequest{
		Email: "dr@example.com", Password: "another-pass", Name: "Other",
	})
	assert.True(t, apperrors.Is(err, apperrors.KindConflict))
}

func TestRegisterSurvivesEmailFailure(t *testing.T) {
	f := newFixture()
	f.mailer.err = errors.New("smtp down")
	register(t, f)
}

func TestLoginWrongPassword(t *testing.T) {
	f := newFixture()
	register(t, f)

	_, err := f.svc.Login(context.Background(), &model.LoginRequest{Email: "dr@example.com", Password: "wrong-password"})
	assert.True(t, apperrors.Is(err, apperrors.KindUnauthorized))

	_, err = f.svc.Login(context.Background(), &model.LoginRequest{Email: "nobody@example.com", Password: "whatever1"})
	assert.True(t, apperrors.Is(err, apperrors.KindUnauthorized))
}

func TestForgotAndResetPassword(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	user := register(t, f)
	require.NoError(t, f.svc.VerifyEmail(ctx, f.mailer.verify[user.Email]))

	require.NoError(t, f.svc.ForgotPassword(ctx, "unknown@example.com"))
	assert.Empty(t, f.mailer.reset)

	require.NoError(t, f.svc.ForgotPassword(ctx, user.Email))
	token := f.mailer.reset[user.Email]
	require.NotEmpty(t, token)

	require.NoError(t, f.svc.ResetPassword(ctx, &model.ResetPasswordRequest{Token: token, Password: "brand-new-pass"}))

	_, err := f.svc.Login(ctx, &model.LoginRequest{Email: user.Email, Password: "correct-horse"})
	assert.True(t, apperrors.Is(err, apperrors.KindUnauthorized))
	_, err = f.svc.Login(ctx, &model.LoginRequest{Email: user.Email, Password: "brand-new-pass"})
	assert.NoError(t, err)

	err = f.svc.ResetPassword(ctx, &model.ResetPasswordRequest{Token: token, Password: "third-password"})
	assert.True(t, apperrors.Is(err, apperrors.KindValidation))
}
