package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/Stewz00/apisecure/internal/metrics"
	"github.com/Stewz00/apisecure/internal/model"
	"github.com/Stewz00/apisecure/internal/repository"
	"github.com/sirupsen/logrus"
)

// Request headers carrying the caller's credentials.
const (
	HeaderUID   = "X-UID"
	HeaderToken = "X-TOKEN"
)

// Verifier checks a presented token against the current record of uid.
type Verifier interface {
	Verify(ctx context.Context, uid, presented string) (bool, error)
}

// UserFinder loads the record behind a verified uid.
type UserFinder interface {
	FindByUID(ctx context.Context, uid string) (*model.User, error)
}

type identityKey struct{}

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id model.Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext returns the identity attached by AuthGate.
func IdentityFromContext(ctx context.Context) (model.Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(model.Identity)
	return id, ok
}

// AuthGate admits requests whose X-UID and X-TOKEN headers verify against
// the stored record and attaches the caller's identity to the context.
func AuthGate(verifier Verifier, users UserFinder, logger logrus.FieldLogger, m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			uid := strings.TrimSpace(r.Header.Get(HeaderUID))
			presented := strings.TrimSpace(r.Header.Get(HeaderToken))
			if uid == "" || presented == "" {
				m.Verification("missing")
				writeError(w, http.StatusUnauthorized, "missing authentication headers")
				return
			}

			log := logger.WithFields(logrus.Fields{"uid": uid, "path": r.URL.Path})

			ok, err := verifier.Verify(r.Context(), uid, presented)
			if err != nil {
				m.Verification("error")
				log.WithError(err).Error("token verification failed")
				writeError(w, http.StatusInternalServerError, "internal server error")
				return
			}
			if !ok {
				m.Verification("invalid")
				log.Warn("invalid token")
				writeError(w, http.StatusUnauthorized, "invalid token")
				return
			}

			user, err := users.FindByUID(r.Context(), uid)
			if err != nil {
				if errors.Is(err, repository.ErrUserNotFound) {
					m.Verification("invalid")
					writeError(w, http.StatusUnauthorized, "invalid token")
					return
				}
				m.Verification("error")
				log.WithError(err).Error("loading authenticated user failed")
				writeError(w, http.StatusInternalServerError, "internal server error")
				return
			}

			m.Verification("valid")
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), user.Identity())))
		})
	}
}

// RequireRole rejects callers whose role is not role. It must run after AuthGate.
func RequireRole(role model.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := IdentityFromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "missing authentication headers")
				return
			}
			if id.Role != role {
				writeError(w, http.StatusForbidden, "forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
