package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Stewz00/apisecure/internal/metrics"
	"github.com/Stewz00/apisecure/internal/middleware"
	"github.com/Stewz00/apisecure/internal/model"
	"github.com/Stewz00/apisecure/internal/notify"
	"github.com/Stewz00/apisecure/internal/password"
	"github.com/Stewz00/apisecure/internal/ratelimit"
	"github.com/Stewz00/apisecure/internal/service"
	"github.com/Stewz00/apisecure/internal/test"
	"github.com/Stewz00/apisecure/internal/token"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type nopNotifier struct{}

func (nopNotifier) Notify(notify.Kind, string, notify.Payload) {}

func newTestRouter(t *testing.T, health func(context.Context) error) (http.Handler, *test.MockUserRepository, *token.Service) {
	t.Helper()

	repo := test.NewMockUserRepository()
	tokens, err := token.NewService(token.Config{Secret: "test-secret"}, repo)
	require.NoError(t, err)
	logger, _ := logtest.NewNullLogger()
	reg, m := metrics.NewRegistry()

	accounts := service.NewAccountService(service.Deps{
		Store:    repo,
		Tokens:   tokens,
		Policy:   password.NewPolicy(password.DefaultWeakWord),
		Hasher:   password.NewBcrypt(bcrypt.MinCost),
		Limiter:  ratelimit.NewMemory(ratelimit.DefaultLimit, ratelimit.DefaultWindow),
		Notifier: nopNotifier{},
		Logger:   logger,
		Metrics:  m,
	})

	router := NewRouter(Deps{
		Accounts: accounts,
		Verifier: tokens,
		Users:    repo,
		Logger:   logger,
		Metrics:  m,
		Gatherer: reg,
		Health:   health,
		Version:  "1.0.0",
	})
	return router, repo, tokens
}

func serve(h http.Handler, method, path string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	req.RemoteAddr = "192.0.2.10:1234"
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestRouter_RoleGating(t *testing.T) {
	router, repo, tokens := newTestRouter(t, nil)
	repo.Seed(&model.User{UID: "user_1", Email: "user@b.com", Role: model.RoleUser, CreatedAt: time.Now()})
	repo.Seed(&model.User{UID: "user_2", Email: "admin@b.com", Role: model.RoleAdmin, CreatedAt: time.Now()})

	auth := func(uid, email string) map[string]string {
		return map[string]string{
			middleware.HeaderUID:   uid,
			middleware.HeaderToken: tokens.Derive(token.Attributes{UID: uid, Email: email}),
		}
	}

	tests := []struct {
		name       string
		path       string
		headers    map[string]string
		wantStatus int
	}{
		{name: "user on user route", path: "/user/me", headers: auth("user_1", "user@b.com"), wantStatus: http.StatusOK},
		{name: "user on admin route", path: "/admin/me", headers: auth("user_1", "user@b.com"), wantStatus: http.StatusForbidden},
		{name: "admin on admin route", path: "/admin/login-history", headers: auth("user_2", "admin@b.com"), wantStatus: http.StatusOK},
		{name: "admin on user route", path: "/user/me", headers: auth("user_2", "admin@b.com"), wantStatus: http.StatusOK},
		{name: "anonymous on admin route", path: "/admin/me", wantStatus: http.StatusUnauthorized},
		{name: "public route", path: "/public/ping", wantStatus: http.StatusOK},
		{name: "unknown route", path: "/nope", wantStatus: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(router, http.MethodGet, tt.path, tt.headers)
			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}
}

func TestRouter_Health(t *testing.T) {
	router, _, _ := newTestRouter(t, nil)
	w := serve(router, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "OK", w.Body.String())

	down, _, _ := newTestRouter(t, func(context.Context) error { return errors.New("db down") })
	w = serve(down, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestRouter_Metrics(t *testing.T) {
	router, _, _ := newTestRouter(t, nil)

	serve(router, http.MethodGet, "/user/me", nil)

	w := serve(router, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `apisecure_token_verifications_total{result="missing"} 1`)
	assert.True(t, strings.Contains(body, "go_goroutines"))
}

func TestRouter_GlobalThrottle(t *testing.T) {
	router, _, _ := newTestRouter(t, nil)

	var last int
	for i := 0; i <= ThrottleRequests; i++ {
		last = serve(router, http.MethodGet, "/public/ping", nil).Code
	}
	assert.Equal(t, http.StatusTooManyRequests, last)
}
