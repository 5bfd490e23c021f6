// Package auth registers users, verifies their credentials and issues
// expiring bearer sessions.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/uniplaces/carbon"

	"flipbook-app/config"
	"flipbook-app/internal/helpers"
	"flipbook-app/internal/logging"
	"flipbook-app/internal/store"
)

// TokenLength is the length of a session token.
const TokenLength = 43

var (
	ErrMissingCredentials = errors.New("email and password are required")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidSession     = errors.New("invalid session")
	ErrSessionExpired     = errors.New("session expired")
)

// Store is the persistence auth needs.
type Store interface {
	CreateUser(ctx context.Context, email, passwordHash string) (store.User, error)
	FindUserByEmail(ctx context.Context, email string) (store.User, error)
	FindUserByID(ctx context.Context, id string) (store.User, error)
	UpdatePasswordHash(ctx context.Context, id, passwordHash string) error
	CreateSession(ctx context.Context, session store.Session) error
	FindSession(ctx context.Context, id string) (store.Session, error)
	DeleteSession(ctx context.Context, id string) error
	DeleteExpiredSessions(ctx context.Context, t time.Time) (int64, error)
}

type Service struct {
	store    Store
	verifier *CredentialVerifier
	ttl      time.Duration
	log      logrus.FieldLogger
	now      func() time.Time
}

func NewService(s Store, cfg config.AuthConfig, logger logrus.FieldLogger) *Service {
	if logger == nil {
		logger = logging.Discard()
	}
	ttl := cfg.SessionTTL
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &Service{
		store:    s,
		verifier: NewCredentialVerifier(cfg.BcryptCost),
		ttl:      ttl,
		log:      logger,
		now:      func() time.Time { return carbon.Now().UTC() },
	}
}

func (s *Service) Register(ctx context.Context, email, password string) (store.User, error) {
	email = store.NormalizeEmail(email)
	if email == "" || password == "" {
		return store.User{}, ErrMissingCredentials
	}
	hash, err := s.verifier.Hash(password)
	if err != nil {
		return store.User{}, fmt.Errorf("auth: hashing password: %w", err)
	}
	user, err := s.store.CreateUser(ctx, email, hash)
	if errors.Is(err, store.ErrDuplicate) {
		return store.User{}, ErrEmailTaken
	}
	if err != nil {
		return store.User{}, fmt.Errorf("auth: creating user: %w", err)
	}
	s.log.WithField("user", user.ID).Info("user registered")
	return user, nil
}

// Login verifies the credentials and opens a new session. A legacy plaintext
// credential is replaced by a bcrypt hash on the way.
func (s *Service) Login(ctx context.Context, email, password string) (store.User, store.Session, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return store.User{}, store.Session{}, ErrMissingCredentials
	}
	user, err := s.store.FindUserByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return store.User{}, store.Session{}, ErrInvalidCredentials
	}
	if err != nil {
		return store.User{}, store.Session{}, fmt.Errorf("auth: finding user: %w", err)
	}

	res := s.verifier.Verify(user.PasswordHash, password)
	if !res.Valid {
		return store.User{}, store.Session{}, ErrInvalidCredentials
	}
	if res.NeedsUpgrade {
		if err := s.upgrade(ctx, &user, password); err != nil {
			// The login itself is still valid.
			s.log.WithField("user", user.ID).WithError(err).Error("could not upgrade legacy password")
		}
	}

	session, err := s.openSession(ctx, user.ID)
	if err != nil {
		return store.User{}, store.Session{}, err
	}
	return user, session, nil
}

func (s *Service) upgrade(ctx context.Context, user *store.User, password string) error {
	hash, err := s.verifier.Hash(password)
	if err != nil {
		return err
	}
	if err := s.store.UpdatePasswordHash(ctx, user.ID, hash); err != nil {
		return err
	}
	user.PasswordHash = hash
	s.log.WithField("user", user.ID).Info("legacy password upgraded to bcrypt")
	return nil
}

func (s *Service) openSession(ctx context.Context, userID string) (store.Session, error) {
	created := s.now().Truncate(time.Millisecond)
	session := store.Session{
		ID:        helpers.GenerateRandomString(TokenLength),
		UserID:    userID,
		CreatedAt: created,
		ExpiresAt: created.Add(s.ttl),
	}
	if len(session.ID) != TokenLength {
		return store.Session{}, errors.New("auth: could not generate session token")
	}
	if err := s.store.CreateSession(ctx, session); err != nil {
		return store.Session{}, fmt.Errorf("auth: creating session: %w", err)
	}
	s.log.WithFields(logrus.Fields{"user": userID, "session": helpers.MaskSecret(session.ID)}).Debug("session opened")
	return session, nil
}

// Authenticate resolves a bearer token to its user. Expired sessions are
// removed.
func (s *Service) Authenticate(ctx context.Context, token string) (store.User, store.Session, error) {
	if token == "" {
		return store.User{}, store.Session{}, ErrInvalidSession
	}
	session, err := s.store.FindSession(ctx, token)
	if errors.Is(err, store.ErrNotFound) {
		return store.User{}, store.Session{}, ErrInvalidSession
	}
	if err != nil {
		return store.User{}, store.Session{}, fmt.Errorf("auth: finding session: %w", err)
	}
	if session.Expired(s.now()) {
		if err := s.store.DeleteSession(ctx, session.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
			s.log.WithField("session", helpers.MaskSecret(session.ID)).WithError(err).Warn("could not delete expired session")
		}
		return store.User{}, store.Session{}, ErrSessionExpired
	}
	user, err := s.store.FindUserByID(ctx, session.UserID)
	if errors.Is(err, store.ErrNotFound) {
		return store.User{}, store.Session{}, ErrInvalidSession
	}
	if err != nil {
		return store.User{}, store.Session{}, fmt.Errorf("auth: finding user: %w", err)
	}
	return user, session, nil
}

func (s *Service) Logout(ctx context.Context, token string) error {
	err := s.store.DeleteSession(ctx, token)
	if errors.Is(err, store.ErrNotFound) {
		return ErrInvalidSession
	}
	return err
}

// PruneSessions deletes every expired session.
func (s *Service) PruneSessions(ctx context.Context) (int64, error) {
	return s.store.DeleteExpiredSessions(ctx, s.now())
}
