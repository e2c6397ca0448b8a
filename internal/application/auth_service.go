package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/example/training-attendance/internal/persistence"
)

// TrainerDirectory exposes the trainer account lookups required by the auth service.
type TrainerDirectory interface {
	GetTrainerCredentialsByUsername(ctx context.Context, username string) (TrainerCredentials, error)
	CreateTrainer(ctx context.Context, creds TrainerCredentials) error
}

// PasswordVerifier compares a stored hash with a candidate password.
type PasswordVerifier func(hashedPassword, password string) error

// AuthService authenticates trainers and tracks the tokens it has issued.
// Tokens live in process memory only; restarting the server invalidates them.
type AuthService struct {
	trainers       TrainerDirectory
	verifyPassword PasswordVerifier
	tokenGenerator func() string
	idGenerator    func() string
	now            func() time.Time
	tokens         *tokenCache
	logger         *slog.Logger
}

// NewAuthService constructs an AuthService with the provided dependencies.
func NewAuthService(trainers TrainerDirectory, verify PasswordVerifier, tokenGenerator, idGenerator func() string, now func() time.Time, tokenTTL time.Duration) *AuthService {
	return NewAuthServiceWithLogger(trainers, verify, tokenGenerator, idGenerator, now, tokenTTL, nil)
}

// NewAuthServiceWithLogger constructs an AuthService with a specified logger.
func NewAuthServiceWithLogger(trainers TrainerDirectory, verify PasswordVerifier, tokenGenerator, idGenerator func() string, now func() time.Time, tokenTTL time.Duration, logger *slog.Logger) *AuthService {
	if verify == nil {
		verify = VerifyPassword
	}
	if tokenGenerator == nil {
		tokenGenerator = func() string { return "" }
	}
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &AuthService{
		trainers:       trainers,
		verifyPassword: verify,
		tokenGenerator: tokenGenerator,
		idGenerator:    idGenerator,
		now:            now,
		tokens:         newTokenCache(tokenTTL, 0, now),
		logger:         defaultLogger(logger),
	}
}

func (s *AuthService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "AuthService", operation, attrs...)
}

// Login validates credentials and issues a bearer token for the trainer.
func (s *AuthService) Login(ctx context.Context, params LoginParams) (result LoginResult, err error) {
	if s == nil {
		err = fmt.Errorf("AuthService is nil")
		return
	}
	if s.trainers == nil {
		err = fmt.Errorf("trainer directory not configured")
		return
	}

	username := strings.TrimSpace(strings.ToLower(params.Username))

	logger := s.loggerWith(ctx, "Login",
		"username", username,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "login failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("trainer_id", result.Trainer.ID).InfoContext(ctx, "login succeeded")
	}()

	if username == "" || params.Password == "" {
		err = ErrInvalidCredentials
		return
	}

	var creds TrainerCredentials
	creds, err = s.trainers.GetTrainerCredentialsByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) || errors.Is(err, ErrNotFound) {
			err = ErrInvalidCredentials
		}
		return
	}

	if err = s.verifyPassword(creds.PasswordHash, params.Password); err != nil {
		err = ErrInvalidCredentials
		return
	}

	token := s.tokenGenerator()
	if token == "" {
		err = fmt.Errorf("token generator returned an empty token")
		return
	}

	expiresAt := s.tokens.Store(token, Principal{
		TrainerID: creds.Trainer.ID,
		Username:  creds.Trainer.Username,
	})

	result = LoginResult{Trainer: creds.Trainer, Token: token, ExpiresAt: expiresAt}
	return
}

// Logout discards a previously issued token. Unknown tokens are ignored.
func (s *AuthService) Logout(ctx context.Context, token string) {
	if s == nil {
		return
	}
	s.tokens.Remove(token)
	s.loggerWith(ctx, "Logout").InfoContext(ctx, "token discarded")
}

// ValidateToken resolves a bearer token to the trainer it was issued to.
func (s *AuthService) ValidateToken(ctx context.Context, token string) (Principal, error) {
	if s == nil {
		return Principal{}, fmt.Errorf("AuthService is nil")
	}
	principal, ok := s.tokens.Get(strings.TrimSpace(token))
	if !ok {
		return Principal{}, ErrUnauthorized
	}
	return principal, nil
}

// EnsureTrainer creates a trainer account when none exists for the username.
// It is used at startup to seed the bootstrap account and is idempotent.
func (s *AuthService) EnsureTrainer(ctx context.Context, username, password, displayName string) (err error) {
	if s == nil || s.trainers == nil {
		return fmt.Errorf("trainer directory not configured")
	}

	username = strings.TrimSpace(strings.ToLower(username))

	logger := s.loggerWith(ctx, "EnsureTrainer",
		"username", username,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to ensure trainer", "error", err, "error_kind", ErrorKind(err))
		}
	}()

	if username == "" || password == "" {
		vErr := &ValidationError{}
		if username == "" {
			vErr.add("username", "username is required")
		}
		if password == "" {
			vErr.add("password", "password is required")
		}
		err = vErr
		return
	}

	if _, lookupErr := s.trainers.GetTrainerCredentialsByUsername(ctx, username); lookupErr == nil {
		return nil
	} else if !errors.Is(lookupErr, persistence.ErrNotFound) && !errors.Is(lookupErr, ErrNotFound) {
		err = lookupErr
		return
	}

	hash, hashErr := hashPassword(password, defaultHashParams)
	if hashErr != nil {
		err = hashErr
		return
	}

	if displayName == "" {
		displayName = username
	}

	err = s.trainers.CreateTrainer(ctx, TrainerCredentials{
		Trainer: Trainer{
			ID:          s.idGenerator(),
			Username:    username,
			DisplayName: displayName,
			CreatedAt:   s.now(),
		},
		PasswordHash: hash,
	})
	if errors.Is(err, persistence.ErrDuplicate) {
		// Concurrent bootstrap created the account first.
		err = nil
	}
	if err == nil {
		logger.InfoContext(ctx, "trainer ensured")
	}
	return
}
