// Package token derives and verifies the deterministic account token and
// issues random recovery tokens.
//
// The account token is HMAC-SHA256(secret, hex(HMAC-SHA512(secret, attrs)))
// where attrs is the canonical JSON of {app, email, uid, v} with sorted keys.
// It carries no nonce: any holder of the secret can re-derive it from the
// current account state, which is what makes verification stateless.
package token

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/Stewz00/apisecure/internal/model"
	"github.com/Stewz00/apisecure/internal/repository"
)

const (
	// Length is the length of an account token in hex characters.
	Length = 64

	DefaultApp         = "APISECURE2026"
	DefaultVersion     = "v3"
	DefaultRecoveryTTL = time.Hour

	recoveryTokenBytes = 32
)

var ErrEmptySecret = errors.New("token secret must not be empty")

// UserFinder loads a user record by uid.
type UserFinder interface {
	FindByUID(ctx context.Context, uid string) (*model.User, error)
}

// Attributes are the account fields bound into a token.
type Attributes struct {
	UID   string
	Email string
}

// AttributesOf returns the token attributes of a user record.
func AttributesOf(u *model.User) Attributes {
	return Attributes{UID: u.UID, Email: u.Email}
}

// Config configures a Service.
type Config struct {
	Secret      string
	App         string
	Version     string
	RecoveryTTL time.Duration
}

// Service derives and verifies account tokens.
type Service struct {
	secret      []byte
	app         string
	version     string
	recoveryTTL time.Duration
	users       UserFinder
}

// NewService creates a token service. users is only needed by Verify.
func NewService(cfg Config, users UserFinder) (*Service, error) {
	if cfg.Secret == "" {
		return nil, ErrEmptySecret
	}
	if cfg.App == "" {
		cfg.App = DefaultApp
	}
	if cfg.Version == "" {
		cfg.Version = DefaultVersion
	}
	if cfg.RecoveryTTL <= 0 {
		cfg.RecoveryTTL = DefaultRecoveryTTL
	}
	return &Service{
		secret:      []byte(cfg.Secret),
		app:         cfg.App,
		version:     cfg.Version,
		recoveryTTL: cfg.RecoveryTTL,
		users:       users,
	}, nil
}

// canonical mirrors the signed payload; encoding/json emits struct fields in
// declaration order, which is kept alphabetical here.
type canonical struct {
	App   string `json:"app"`
	Email string `json:"email"`
	UID   string `json:"uid"`
	V     string `json:"v"`
}

// Payload returns the exact bytes that get signed for attrs. HTML escaping is
// off so characters like '&' in an email are signed verbatim.
func (s *Service) Payload(attrs Attributes) []byte {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	// a struct of plain strings always encodes
	_ = enc.Encode(canonical{
		App:   s.app,
		Email: strings.ToLower(strings.TrimSpace(attrs.Email)),
		UID:   strings.TrimSpace(attrs.UID),
		V:     s.version,
	})
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n"))
}

// Derive returns the 64 hex character token for attrs.
func (s *Service) Derive(attrs Attributes) string {
	inner := hmac.New(sha512.New, s.secret)
	inner.Write(s.Payload(attrs))

	outer := hmac.New(sha256.New, s.secret)
	outer.Write([]byte(hex.EncodeToString(inner.Sum(nil))))
	return hex.EncodeToString(outer.Sum(nil))
}

// Verify reports whether presented is the current token of uid.
// A missing user is not an error; store failures are.
func (s *Service) Verify(ctx context.Context, uid, presented string) (bool, error) {
	uid = strings.TrimSpace(uid)
	if uid == "" || presented == "" || len(presented) != Length {
		return false, nil
	}

	user, err := s.users.FindByUID(ctx, uid)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return false, nil
		}
		return false, err
	}

	return Equal(s.Derive(AttributesOf(user)), presented), nil
}

// Equal compares two hex tokens in constant time with respect to their content.
func Equal(expected, presented string) bool {
	a, err := hex.DecodeString(expected)
	if err != nil {
		return false
	}
	b, err := hex.DecodeString(presented)
	if err != nil {
		return false
	}
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare(a, b) == 1
}

// NewRecoveryToken returns a random single-use recovery token and its expiry.
func (s *Service) NewRecoveryToken(now time.Time) (string, time.Time, error) {
	buf := make([]byte, recoveryTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", time.Time{}, err
	}
	return hex.EncodeToString(buf), now.Add(s.recoveryTTL), nil
}
