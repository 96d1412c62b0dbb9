package interfaces

import (
	"context"
	"time"

	"github.com/Stewz00/apisecure/internal/model"
)

// CredentialStore defines the user record operations the account flows rely on.
// Every method is atomic for a single record.
type CredentialStore interface {
	FindByUID(ctx context.Context, uid string) (*model.User, error)
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	Insert(ctx context.Context, user *model.User) error
	UpdateFields(ctx context.Context, uid string, update model.UserUpdate) error

	// RecordFailedLogin increments login_attempts in place and stamps last_failed_login.
	RecordFailedLogin(ctx context.Context, uid string, at time.Time) error
	// RecordSuccessfulLogin resets the failure counters and stores last_login/last_ip.
	RecordSuccessfulLogin(ctx context.Context, uid, ip string, at time.Time) error

	SetRecoveryToken(ctx context.Context, uid, token string, expires time.Time) error
	// ConsumeRecoveryToken replaces the password of the user holding an unexpired
	// token and clears the token in the same statement. It returns the affected user.
	ConsumeRecoveryToken(ctx context.Context, token, passwordHash string, now time.Time) (*model.User, error)
}
