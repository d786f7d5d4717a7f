package auth

import (
	"context"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	testSecret   = "test-secret"
	goodPassword = "Secr3tPass"
)

type recordingMailer struct {
	sent []RecoveryMessage
}

func (m *recordingMailer) SendRecovery(_ context.Context, msg RecoveryMessage) error {
	m.sent = append(m.sent, msg)
	return nil
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// Every pooled connection to :memory: would otherwise get its own database.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

type fixture struct {
	service *Service
	users   *UserRepository
	store   *MemoryTokenStore
	mailer  *recordingMailer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	users := NewUserRepository(newTestDB(t))
	require.NoError(t, users.Migrate(context.Background()))

	f := &fixture{
		users:  users,
		store:  NewMemoryTokenStore(),
		mailer: &recordingMailer{},
	}
	f.service = NewService(
		users,
		NewPasswordHasher(bcrypt.MinCost),
		NewTokenManager(TokenConfig{Secret: testSecret, TTL: time.Hour}),
		f.store,
		f.mailer,
		ServiceConfig{ResetURL: "https://tasks.example.com/reset-password"},
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
	return f
}

func TestValidatePassword(t *testing.T) {
	tests := []struct {
		name     string
		password string
		want     error
	}{
		{"valid", "Secr3tPass", nil},
		{"too short", "Ab1", ErrWeakPassword},
		{"missing upper", "secr3tpass", ErrWeakPassword},
		{"missing lower", "SECR3TPASS", ErrWeakPassword},
		{"missing digit", "SecretPass", ErrWeakPassword},
		{"exactly eight", "Abcdefg1", nil},
		{"too long", "Aa1" + strings.Repeat("x", 70), ErrPasswordTooLong},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePassword(tt.password)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestPasswordHasher(t *testing.T) {
	h := NewPasswordHasher(bcrypt.MinCost)

	hash, err := h.Hash(goodPassword)
	require.NoError(t, err)
	assert.NotEqual(t, goodPassword, hash)
	assert.True(t, h.Verify(goodPassword, hash))
	assert.False(t, h.Verify("Wr0ngPass", hash))
}

func TestTokenManager(t *testing.T) {
	m := NewTokenManager(TokenConfig{Secret: testSecret, TTL: time.Hour})

	token, expires, err := m.Generate("user-1", "session-1")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expires, time.Minute)

	claims, err := m.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "session-1", claims.SessionID)

	t.Run("wrong secret", func(t *testing.T) {
		other := NewTokenManager(TokenConfig{Secret: "other", TTL: time.Hour})
		_, err := other.Validate(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := m.Validate("not-a-token")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("expired", func(t *testing.T) {
		old := NewTokenManager(TokenConfig{Secret: testSecret, TTL: time.Hour})
		old.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
		stale, _, err := old.Generate("user-1", "session-1")
		require.NoError(t, err)

		_, err = m.Validate(stale)
		assert.ErrorIs(t, err, ErrExpiredToken)
	})
}

func TestMemoryTokenStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryTokenStore()
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	require.NoError(t, s.Set(ctx, "k", "v", time.Minute))
	got, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)

	now = now.Add(time.Minute)
	_, err = s.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrSecretNotFound)

	require.NoError(t, s.Set(ctx, "k", "v", 0))
	require.NoError(t, s.Delete(ctx, "k"))
	_, err = s.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrSecretNotFound)
}

func TestService_SignUp(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	session, err := f.service.SignUp(ctx, "  Ada@Example.com ", goodPassword, " Ada ")
	require.NoError(t, err)
	assert.NotEmpty(t, session.Token)
	assert.Equal(t, "ada@example.com", session.User.Email)
	assert.Equal(t, "Ada", session.User.Name)

	principal, err := f.service.Authenticate(ctx, session.Token)
	require.NoError(t, err)
	assert.Equal(t, session.User.ID, principal.User.ID)

	_, err = f.service.SignUp(ctx, "ada@example.com", goodPassword, "Ada Again")
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestService_SignUpValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name                  string
		email, password, user string
		want                  error
	}{
		{"bad email", "not-an-email", goodPassword, "Ada", ErrInvalidEmail},
		{"short name", "ada@example.com", goodPassword, " A ", ErrInvalidName},
		{"weak password", "ada@example.com", "password", "Ada", ErrWeakPassword},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.service.SignUp(ctx, tt.email, tt.password, tt.user)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	exists, err := f.users.EmailExists(ctx, "ada@example.com")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestService_SignInHidesWhichPartWasWrong(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.service.SignUp(ctx, "ada@example.com", goodPassword, "Ada")
	require.NoError(t, err)

	_, wrongPassword := f.service.SignIn(ctx, "ada@example.com", "Wr0ngPass")
	_, unknownEmail := f.service.SignIn(ctx, "bob@example.com", goodPassword)

	assert.ErrorIs(t, wrongPassword, ErrInvalidCredentials)
	assert.Equal(t, wrongPassword, unknownEmail)

	session, err := f.service.SignIn(ctx, "ADA@example.com", goodPassword)
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", session.User.Email)
}

func TestService_SignOutRevokesToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.service.SignUp(ctx, "ada@example.com", goodPassword, "Ada")
	require.NoError(t, err)

	first, err := f.service.SignIn(ctx, "ada@example.com", goodPassword)
	require.NoError(t, err)
	second, err := f.service.SignIn(ctx, "ada@example.com", goodPassword)
	require.NoError(t, err)

	principal, err := f.service.Authenticate(ctx, first.Token)
	require.NoError(t, err)
	require.NoError(t, f.service.SignOut(ctx, principal.SessionID))

	_, err = f.service.Authenticate(ctx, first.Token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = f.service.Authenticate(ctx, second.Token)
	assert.NoError(t, err)
}

func TestService_PasswordRecovery(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	signup, err := f.service.SignUp(ctx, "ada@example.com", goodPassword, "Ada")
	require.NoError(t, err)

	require.NoError(t, f.service.RequestPasswordReset(ctx, "nobody@example.com"))
	assert.Empty(t, f.mailer.sent)

	require.NoError(t, f.service.RequestPasswordReset(ctx, "ada@example.com"))
	require.Len(t, f.mailer.sent, 1)
	msg := f.mailer.sent[0]
	assert.Equal(t, signup.User.ID, msg.UserID)

	link, err := url.Parse(msg.Link)
	require.NoError(t, err)
	assert.Equal(t, "tasks.example.com", link.Host)
	assert.Equal(t, msg.Secret, link.Query().Get("secret"))
	assert.Equal(t, msg.UserID, link.Query().Get("userId"))

	const newPassword = "N3wPassword"
	assert.ErrorIs(t, f.service.CompletePasswordReset(ctx, msg.UserID, "wrong", newPassword), ErrInvalidRecovery)
	assert.ErrorIs(t, f.service.CompletePasswordReset(ctx, msg.UserID, msg.Secret, "weak"), ErrWeakPassword)
	require.NoError(t, f.service.CompletePasswordReset(ctx, msg.UserID, msg.Secret, newPassword))

	_, err = f.service.SignIn(ctx, "ada@example.com", goodPassword)
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = f.service.SignIn(ctx, "ada@example.com", newPassword)
	assert.NoError(t, err)

	assert.ErrorIs(t, f.service.CompletePasswordReset(ctx, msg.UserID, msg.Secret, "An0therOne"), ErrInvalidRecovery)
}

func TestUserRepository_DuplicateEmail(t *testing.T) {
	repo := NewUserRepository(newTestDB(t))
	ctx := context.Background()
	require.NoError(t, repo.Migrate(ctx))

	require.NoError(t, repo.Create(ctx, &Account{ID: "1", Email: "a@example.com", Name: "Ann", PasswordHash: "x"}))
	err := repo.Create(ctx, &Account{ID: "2", Email: "a@example.com", Name: "Ann", PasswordHash: "y"})
	assert.ErrorIs(t, err, ErrEmailTaken)

	_, err = repo.FindByID(ctx, "missing")
	assert.ErrorIs(t, err, ErrUserNotFound)
	assert.ErrorIs(t, repo.UpdatePassword(ctx, "missing", "z"), ErrUserNotFound)
}
