package service

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/Stewz00/apisecure/internal/interfaces"
	"github.com/Stewz00/apisecure/internal/metrics"
	"github.com/Stewz00/apisecure/internal/model"
	"github.com/Stewz00/apisecure/internal/notify"
	"github.com/Stewz00/apisecure/internal/password"
	"github.com/Stewz00/apisecure/internal/ratelimit"
	"github.com/Stewz00/apisecure/internal/repository"
	"github.com/Stewz00/apisecure/internal/token"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Deps are the collaborators of an AccountService.
type Deps struct {
	Store    interfaces.CredentialStore
	Tokens   *token.Service
	Policy   *password.Policy
	Hasher   password.Hasher
	Limiter  ratelimit.Limiter
	Notifier notify.Notifier
	Logger   logrus.FieldLogger
	Metrics  *metrics.Metrics

	// ResetURLBase is prefixed to the recovery token in recovery e-mails.
	ResetURLBase string
	// Now defaults to time.Now.
	Now func() time.Time
}

// AccountService runs the account flows: register, login, recovery, reset,
// profile and password changes.
type AccountService struct {
	store        interfaces.CredentialStore
	tokens       *token.Service
	policy       *password.Policy
	hasher       password.Hasher
	limiter      ratelimit.Limiter
	notifier     notify.Notifier
	logger       logrus.FieldLogger
	metrics      *metrics.Metrics
	resetURLBase string
	now          func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

// LoginResult is returned by a successful login.
type LoginResult struct {
	UID   string
	Token string
}

// ProfileResult is returned by a profile update. The token is re-derived
// because the previous one was bound to the old e-mail.
type ProfileResult struct {
	Identity model.Identity
	Token    string
}

// LoginHistory summarizes recent sign-in activity of an account.
type LoginHistory struct {
	LastIP          string
	LastLogin       *time.Time
	LoginAttempts   int
	LastFailedLogin *time.Time
}

// NewAccountService creates a new account service
func NewAccountService(deps Deps) *AccountService {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &AccountService{
		store:        deps.Store,
		tokens:       deps.Tokens,
		policy:       deps.Policy,
		hasher:       deps.Hasher,
		limiter:      deps.Limiter,
		notifier:     deps.Notifier,
		logger:       deps.Logger,
		metrics:      deps.Metrics,
		resetURLBase: deps.ResetURLBase,
		now:          deps.Now,
	}
}

// Register creates a new account with the user role and returns its uid
func (s *AccountService) Register(ctx context.Context, client, email, pass string) (string, error) {
	if err := s.allow(ctx, client, ratelimit.ActionRegister); err != nil {
		return "", err
	}

	if strings.TrimSpace(email) == "" || pass == "" {
		return "", invalid("email and password are required")
	}
	email, err := normalizeEmail(email)
	if err != nil {
		return "", err
	}
	if err := s.checkStrength(pass); err != nil {
		return "", err
	}

	switch _, err := s.store.FindByEmail(ctx, email); {
	case err == nil:
		return "", ErrEmailTaken
	case !errors.Is(err, repository.ErrUserNotFound):
		return "", err
	}

	hash, err := s.hasher.Hash(pass)
	if err != nil {
		return "", err
	}

	now := s.now()
	user := &model.User{
		UID:           newUID(),
		Email:         email,
		PasswordHash:  hash,
		Role:          model.RoleUser,
		LastIP:        client,
		LoginAttempts: 0,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.store.Insert(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return "", ErrEmailTaken
		}
		return "", err
	}

	s.notifier.Notify(notify.KindWelcome, user.Email, notify.Payload{"uid": user.UID})
	s.metrics.Registered()
	s.logger.WithFields(logrus.Fields{"uid": user.UID, "ip": client}).Info("user registered")

	return user.UID, nil
}

// Login checks the credentials, records the attempt and issues the account token
func (s *AccountService) Login(ctx context.Context, client, email, pass string) (*LoginResult, error) {
	if err := s.allow(ctx, client, ratelimit.ActionLogin); err != nil {
		return nil, err
	}

	if strings.TrimSpace(email) == "" || pass == "" {
		return nil, invalid("email and password are required")
	}

	user, err := s.store.FindByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			// spend the same hashing time as for a known account
			_ = s.hasher.Compare(s.dummy(), pass)
			s.metrics.Login("invalid_credentials")
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	now := s.now()
	if err := s.hasher.Compare(user.PasswordHash, pass); err != nil {
		if !errors.Is(err, password.ErrMismatch) {
			return nil, err
		}
		if err := s.store.RecordFailedLogin(ctx, user.UID, now); err != nil {
			return nil, err
		}
		s.metrics.Login("invalid_credentials")
		s.logger.WithFields(logrus.Fields{"uid": user.UID, "ip": client}).Warn("login failed")
		return nil, ErrInvalidCredentials
	}

	if err := s.store.RecordSuccessfulLogin(ctx, user.UID, client, now); err != nil {
		return nil, err
	}

	tok := s.tokens.Derive(token.AttributesOf(user))

	s.notifier.Notify(notify.KindRecentAccess, user.Email, notify.Payload{
		"uid":  user.UID,
		"ip":   client,
		"time": formatTime(now),
	})
	s.metrics.Login("success")
	s.logger.WithFields(logrus.Fields{"uid": user.UID, "ip": client}).Info("login succeeded")

	return &LoginResult{UID: user.UID, Token: tok}, nil
}

// RequestRecovery issues a recovery token and e-mails the reset link. An
// unknown e-mail succeeds silently so callers cannot probe for accounts.
func (s *AccountService) RequestRecovery(ctx context.Context, client, email string) error {
	if err := s.allow(ctx, client, ratelimit.ActionRecovery); err != nil {
		return err
	}

	email = strings.TrimSpace(email)
	if email == "" {
		return invalid("email is required")
	}

	user, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			s.logger.WithField("ip", client).Info("recovery requested for unknown email")
			return nil
		}
		return err
	}

	tok, expires, err := s.tokens.NewRecoveryToken(s.now())
	if err != nil {
		return err
	}
	if err := s.store.SetRecoveryToken(ctx, user.UID, tok, expires); err != nil {
		return err
	}

	s.notifier.Notify(notify.KindRecovery, user.Email, notify.Payload{
		"reset_url": s.resetURLBase + tok,
		"expires":   formatTime(expires),
	})
	s.logger.WithFields(logrus.Fields{"uid": user.UID, "ip": client}).Info("recovery requested")

	return nil
}

// ResetPassword redeems a recovery token and sets the new password
func (s *AccountService) ResetPassword(ctx context.Context, recoveryToken, newPassword string) error {
	if newPassword == "" {
		return invalid("new password is required")
	}
	if err := s.checkStrength(newPassword); err != nil {
		return err
	}
	if recoveryToken == "" {
		return ErrInvalidOrExpiredToken
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return err
	}

	user, err := s.store.ConsumeRecoveryToken(ctx, recoveryToken, hash, s.now())
	if err != nil {
		if errors.Is(err, repository.ErrTokenNotFound) {
			return ErrInvalidOrExpiredToken
		}
		return err
	}

	s.logger.WithField("uid", user.UID).Info("password reset")
	return nil
}

// Me returns the current record of uid
func (s *AccountService) Me(ctx context.Context, uid string) (*model.User, error) {
	user, err := s.store.FindByUID(ctx, uid)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

// LoginHistory returns the sign-in bookkeeping of uid
func (s *AccountService) LoginHistory(ctx context.Context, uid string) (*LoginHistory, error) {
	user, err := s.Me(ctx, uid)
	if err != nil {
		return nil, err
	}
	return &LoginHistory{
		LastIP:          user.LastIP,
		LastLogin:       user.LastLogin,
		LoginAttempts:   user.LoginAttempts,
		LastFailedLogin: user.LastFailedLogin,
	}, nil
}

// UpdateProfile changes the e-mail of the caller
func (s *AccountService) UpdateProfile(ctx context.Context, id model.Identity, email string) (*ProfileResult, error) {
	if strings.TrimSpace(email) == "" {
		return nil, invalid("no fields to update")
	}
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}

	if strings.EqualFold(email, id.Email) {
		return &ProfileResult{
			Identity: id,
			Token:    s.tokens.Derive(token.Attributes{UID: id.UID, Email: id.Email}),
		}, nil
	}

	switch other, err := s.store.FindByEmail(ctx, email); {
	case err == nil && other.UID != id.UID:
		return nil, ErrEmailTaken
	case err != nil && !errors.Is(err, repository.ErrUserNotFound):
		return nil, err
	}

	if err := s.store.UpdateFields(ctx, id.UID, model.UserUpdate{Email: &email}); err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicateEmail):
			return nil, ErrEmailTaken
		case errors.Is(err, repository.ErrUserNotFound):
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	payload := notify.Payload{
		"new_email": email,
		"old_email": id.Email,
		"time":      formatTime(s.now()),
	}
	s.notifier.Notify(notify.KindProfileUpdate, email, payload)
	s.notifier.Notify(notify.KindProfileUpdate, id.Email, payload)
	s.logger.WithField("uid", id.UID).Info("profile updated")

	updated := model.Identity{UID: id.UID, Email: email, Role: id.Role}
	return &ProfileResult{
		Identity: updated,
		Token:    s.tokens.Derive(token.Attributes{UID: updated.UID, Email: updated.Email}),
	}, nil
}

// ChangePassword replaces the password of the caller after checking the current one
func (s *AccountService) ChangePassword(ctx context.Context, id model.Identity, current, next string) error {
	if current == "" || next == "" {
		return invalid("current and new password are required")
	}

	user, err := s.Me(ctx, id.UID)
	if err != nil {
		return err
	}

	if err := s.hasher.Compare(user.PasswordHash, current); err != nil {
		if errors.Is(err, password.ErrMismatch) {
			return ErrInvalidCredentials
		}
		return err
	}

	if err := s.checkStrength(next); err != nil {
		return err
	}

	hash, err := s.hasher.Hash(next)
	if err != nil {
		return err
	}
	zero := 0
	if err := s.store.UpdateFields(ctx, id.UID, model.UserUpdate{PasswordHash: &hash, LoginAttempts: &zero, ClearRecovery: true}); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return ErrUserNotFound
		}
		return err
	}

	s.notifier.Notify(notify.KindPasswordChange, user.Email, notify.Payload{"time": formatTime(s.now())})
	s.logger.WithField("uid", id.UID).Info("password changed")

	return nil
}

func (s *AccountService) allow(ctx context.Context, client, action string) error {
	if s.limiter.Allow(ctx, ratelimit.Key(client, action)) {
		return nil
	}
	s.metrics.Limited(action)
	s.logger.WithFields(logrus.Fields{"ip": client, "action": action}).Warn("rate limited")
	return ErrRateLimited
}

func (s *AccountService) checkStrength(pass string) error {
	if result := s.policy.Validate(pass); !result.Valid {
		return &ValidationError{Message: "password too weak", Issues: result.Violations}
	}
	return nil
}

func (s *AccountService) dummy() string {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = s.hasher.Hash(uuid.NewString())
	})
	return s.dummyHash
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if !emailPattern.MatchString(email) {
		return "", invalid("invalid email address")
	}
	return email, nil
}

func newUID() string {
	return "user_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC1123)
}
