// Package auth manages accounts, session tokens and password recovery.
package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"taskd/app/models"
)

const (
	// MinNameLength is the shortest accepted display name.
	MinNameLength = 2
	// DefaultRecoveryTTL is how long a recovery secret stays usable.
	DefaultRecoveryTTL = time.Hour

	sessionKeyPrefix  = "session:"
	recoveryKeyPrefix = "recovery:"
)

var (
	// ErrInvalidCredentials is returned when sign-in credentials are invalid.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrInvalidEmail is returned when the email is malformed.
	ErrInvalidEmail = errors.New("please enter a valid email address")
	// ErrInvalidName is returned when the display name is too short.
	ErrInvalidName = errors.New("name must be at least 2 characters")
	// ErrInvalidRecovery is returned when a recovery secret is unknown, expired
	// or belongs to another account.
	ErrInvalidRecovery = errors.New("invalid or expired recovery link")
)

// Session is a signed-in user with their session token.
type Session struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expiresAt"`
	User      *models.User `json:"user"`
}

// Principal is the caller identified by a valid session token.
type Principal struct {
	User      *models.User
	SessionID string
}

// ServiceConfig holds recovery settings.
type ServiceConfig struct {
	RecoveryTTL time.Duration
	// ResetURL is the page that completes a password reset. The user id and
	// secret are appended as query parameters.
	ResetURL string
}

// Service handles sign-up, sign-in, sign-out and password recovery.
type Service struct {
	users  *UserRepository
	hasher *PasswordHasher
	tokens *TokenManager
	store  TokenStore
	mailer Mailer
	config ServiceConfig
	logger *slog.Logger
	now    func() time.Time
}

// NewService creates a Service.
func NewService(
	users *UserRepository,
	hasher *PasswordHasher,
	tokens *TokenManager,
	store TokenStore,
	mailer Mailer,
	config ServiceConfig,
	logger *slog.Logger,
) *Service {
	if config.RecoveryTTL <= 0 {
		config.RecoveryTTL = DefaultRecoveryTTL
	}
	return &Service{
		users:  users,
		hasher: hasher,
		tokens: tokens,
		store:  store,
		mailer: mailer,
		config: config,
		logger: logger,
		now:    time.Now,
	}
}

// SignUp creates an account and signs it in.
func (s *Service) SignUp(ctx context.Context, email, password, name string) (*Session, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if utf8.RuneCountInString(name) < MinNameLength {
		return nil, ErrInvalidName
	}
	if err := ValidatePassword(password); err != nil {
		return nil, err
	}

	exists, err := s.users.EmailExists(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to check email existence: %w", err)
	}
	if exists {
		return nil, ErrEmailTaken
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := s.now().UTC()
	account := &Account{
		ID:           uuid.NewString(),
		Email:        email,
		Name:         name,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, account); err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.logger.InfoContext(ctx, "account created", "user_id", account.ID)
	return s.startSession(ctx, account)
}

// SignIn verifies credentials and starts a new session. Unknown emails and
// wrong passwords return the same error.
func (s *Service) SignIn(ctx context.Context, email, password string) (*Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	account, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	if !s.hasher.Verify(password, account.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	return s.startSession(ctx, account)
}

// SignOut revokes a session. Tokens for it are rejected from then on.
func (s *Service) SignOut(ctx context.Context, sessionID string) error {
	if err := s.store.Delete(ctx, sessionKeyPrefix+sessionID); err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	return nil
}

// Authenticate resolves a session token to the signed-in user.
func (s *Service) Authenticate(ctx context.Context, token string) (*Principal, error) {
	claims, err := s.tokens.Validate(token)
	if err != nil {
		return nil, err
	}

	owner, err := s.store.Get(ctx, sessionKeyPrefix+claims.SessionID)
	if err != nil {
		if errors.Is(err, ErrSecretNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("failed to look up session: %w", err)
	}
	if owner != claims.UserID {
		return nil, ErrInvalidToken
	}

	account, err := s.users.FindByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return &Principal{User: account.User(), SessionID: claims.SessionID}, nil
}

// RequestPasswordReset sends a recovery link when the email belongs to an
// account. It reports success either way.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	account, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			s.logger.DebugContext(ctx, "password recovery for unknown email")
			return nil
		}
		return fmt.Errorf("failed to find user: %w", err)
	}

	secret := uuid.NewString()
	if err := s.store.Set(ctx, recoveryKeyPrefix+account.ID, secret, s.config.RecoveryTTL); err != nil {
		return fmt.Errorf("failed to store recovery secret: %w", err)
	}

	msg := RecoveryMessage{
		UserID: account.ID,
		Email:  account.Email,
		Secret: secret,
		Link:   s.recoveryLink(account.ID, secret),
	}
	if err := s.mailer.SendRecovery(ctx, msg); err != nil {
		return fmt.Errorf("failed to send recovery message: %w", err)
	}
	return nil
}

// CompletePasswordReset sets a new password using a recovery secret. The
// secret is single use.
func (s *Service) CompletePasswordReset(ctx context.Context, userID, secret, password string) error {
	if err := ValidatePassword(password); err != nil {
		return err
	}

	key := recoveryKeyPrefix + userID
	stored, err := s.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, ErrSecretNotFound) {
			return ErrInvalidRecovery
		}
		return fmt.Errorf("failed to look up recovery secret: %w", err)
	}
	if subtle.ConstantTimeCompare([]byte(stored), []byte(secret)) != 1 {
		return ErrInvalidRecovery
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	if err := s.users.UpdatePassword(ctx, userID, hash); err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return ErrInvalidRecovery
		}
		return fmt.Errorf("failed to update password: %w", err)
	}

	if err := s.store.Delete(ctx, key); err != nil {
		s.logger.WarnContext(ctx, "recovery secret not consumed", "user_id", userID, "error", err)
	}
	s.logger.InfoContext(ctx, "password reset", "user_id", userID)
	return nil
}

func (s *Service) startSession(ctx context.Context, account *Account) (*Session, error) {
	sessionID := uuid.NewString()
	token, expires, err := s.tokens.Generate(account.ID, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}
	if err := s.store.Set(ctx, sessionKeyPrefix+sessionID, account.ID, s.tokens.TTL()); err != nil {
		return nil, fmt.Errorf("failed to store session: %w", err)
	}
	return &Session{Token: token, ExpiresAt: expires, User: account.User()}, nil
}

func (s *Service) recoveryLink(userID, secret string) string {
	q := url.Values{"userId": {userID}, "secret": {secret}}
	if s.config.ResetURL == "" {
		return "?" + q.Encode()
	}
	sep := "?"
	if strings.Contains(s.config.ResetURL, "?") {
		sep = "&"
	}
	return s.config.ResetURL + sep + q.Encode()
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", ErrInvalidEmail
	}
	return email, nil
}
