package model

import "time"

// Role is the coarse authorization tier of an account.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

type User struct {
	UID             string
	Email           string
	PasswordHash    string `json:"-"`
	Role            Role
	LastLogin       *time.Time
	LastIP          string
	LoginAttempts   int
	LastFailedLogin *time.Time
	RecoveryToken   *string    `json:"-"`
	RecoveryExpires *time.Time `json:"-"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Identity is the authenticated caller attached to a request context.
type Identity struct {
	UID   string
	Email string
	Role  Role
}

// Identity returns the public identity of the user.
func (u *User) Identity() Identity {
	return Identity{UID: u.UID, Email: u.Email, Role: u.Role}
}

// HasRecovery reports whether an unexpired recovery token is pending at now.
func (u *User) HasRecovery(now time.Time) bool {
	return u.RecoveryToken != nil && u.RecoveryExpires != nil && u.RecoveryExpires.After(now)
}

// UserUpdate is a partial update of a user record. Nil fields are left untouched.
type UserUpdate struct {
	Email         *string
	PasswordHash  *string
	LoginAttempts *int
	// ClearRecovery drops the recovery token and its expiry together.
	ClearRecovery bool
}

// Empty reports whether the update changes nothing.
func (u UserUpdate) Empty() bool {
	return u.Email == nil && u.PasswordHash == nil && u.LoginAttempts == nil && !u.ClearRecovery
}
