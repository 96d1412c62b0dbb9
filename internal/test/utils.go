package test

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/Stewz00/apisecure/internal/interfaces"
	"github.com/Stewz00/apisecure/internal/model"
	"github.com/Stewz00/apisecure/internal/repository"
)

// MockDB is an in-memory user table keyed by uid
type MockDB struct {
	mu    sync.Mutex
	users map[string]*model.User
}

func NewMockDB() *MockDB {
	return &MockDB{
		users: make(map[string]*model.User),
	}
}

// MockUserRepository implements the interfaces.CredentialStore interface in memory.
// Setting Err makes every call fail with it, simulating an unreachable store.
type MockUserRepository struct {
	db  *MockDB
	Err error
}

// Verify that MockUserRepository implements CredentialStore interface
var _ interfaces.CredentialStore = (*MockUserRepository)(nil)

func NewMockUserRepository() *MockUserRepository {
	return &MockUserRepository{
		db: NewMockDB(),
	}
}

// Seed stores a copy of user as-is, bypassing uniqueness checks.
func (r *MockUserRepository) Seed(user *model.User) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	cp := *user
	r.db.users[user.UID] = &cp
}

// Get returns a copy of the stored user, or nil.
func (r *MockUserRepository) Get(uid string) *model.User {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	user, ok := r.db.users[uid]
	if !ok {
		return nil
	}
	cp := *user
	return &cp
}

// FindByUID mocks retrieving a user by uid
func (r *MockUserRepository) FindByUID(ctx context.Context, uid string) (*model.User, error) {
	if r.Err != nil {
		return nil, r.Err
	}
	user := r.Get(uid)
	if user == nil {
		return nil, repository.ErrUserNotFound
	}
	return user, nil
}

// FindByEmail mocks retrieving a user by email
func (r *MockUserRepository) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	if r.Err != nil {
		return nil, r.Err
	}
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if user := r.byEmailLocked(email); user != nil {
		cp := *user
		return &cp, nil
	}
	return nil, repository.ErrUserNotFound
}

// Insert mocks creating a new user
func (r *MockUserRepository) Insert(ctx context.Context, user *model.User) error {
	if r.Err != nil {
		return r.Err
	}
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if r.byEmailLocked(user.Email) != nil {
		return repository.ErrDuplicateEmail
	}
	cp := *user
	r.db.users[user.UID] = &cp
	return nil
}

// UpdateFields mocks a partial update
func (r *MockUserRepository) UpdateFields(ctx context.Context, uid string, update model.UserUpdate) error {
	if r.Err != nil {
		return r.Err
	}
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	user, ok := r.db.users[uid]
	if !ok {
		return repository.ErrUserNotFound
	}
	if update.Email != nil {
		if other := r.byEmailLocked(*update.Email); other != nil && other.UID != uid {
			return repository.ErrDuplicateEmail
		}
		user.Email = *update.Email
	}
	if update.PasswordHash != nil {
		user.PasswordHash = *update.PasswordHash
	}
	if update.LoginAttempts != nil {
		user.LoginAttempts = *update.LoginAttempts
	}
	if update.ClearRecovery {
		user.RecoveryToken = nil
		user.RecoveryExpires = nil
	}
	user.UpdatedAt = time.Now()
	return nil
}

// RecordFailedLogin mocks incrementing failed login attempts
func (r *MockUserRepository) RecordFailedLogin(ctx context.Context, uid string, at time.Time) error {
	return r.mutate(uid, func(user *model.User) {
		user.LoginAttempts++
		user.LastFailedLogin = &at
		user.UpdatedAt = at
	})
}

// RecordSuccessfulLogin mocks updating the last login data
func (r *MockUserRepository) RecordSuccessfulLogin(ctx context.Context, uid, ip string, at time.Time) error {
	return r.mutate(uid, func(user *model.User) {
		user.LoginAttempts = 0
		user.LastFailedLogin = nil
		user.LastLogin = &at
		user.LastIP = ip
		user.UpdatedAt = at
	})
}

// SetRecoveryToken mocks storing a recovery token
func (r *MockUserRepository) SetRecoveryToken(ctx context.Context, uid, token string, expires time.Time) error {
	return r.mutate(uid, func(user *model.User) {
		user.RecoveryToken = &token
		user.RecoveryExpires = &expires
	})
}

// ConsumeRecoveryToken mocks redeeming a recovery token
func (r *MockUserRepository) ConsumeRecoveryToken(ctx context.Context, token, passwordHash string, now time.Time) (*model.User, error) {
	if r.Err != nil {
		return nil, r.Err
	}
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, user := range r.db.users {
		if user.RecoveryToken != nil && *user.RecoveryToken == token && user.HasRecovery(now) {
			user.PasswordHash = passwordHash
			user.RecoveryToken = nil
			user.RecoveryExpires = nil
			user.UpdatedAt = now
			cp := *user
			return &cp, nil
		}
	}
	return nil, repository.ErrTokenNotFound
}

func (r *MockUserRepository) mutate(uid string, fn func(*model.User)) error {
	if r.Err != nil {
		return r.Err
	}
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	user, ok := r.db.users[uid]
	if !ok {
		return repository.ErrUserNotFound
	}
	fn(user)
	return nil
}

func (r *MockUserRepository) byEmailLocked(email string) *model.User {
	email = strings.ToLower(strings.TrimSpace(email))
	for _, user := range r.db.users {
		if strings.ToLower(user.Email) == email {
			return user
		}
	}
	return nil
}
