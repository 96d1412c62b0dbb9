package handler

import (
	"net/http"
	"time"

	"github.com/Stewz00/apisecure/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
)

// AuthHandler serves the public routes: ping, login, registration and
// password recovery.
type AuthHandler struct {
	accounts *service.AccountService
	version  string
	logger   logrus.FieldLogger
	now      func() time.Time
}

func NewAuthHandler(accounts *service.AccountService, version string, logger logrus.FieldLogger) *AuthHandler {
	return &AuthHandler{
		accounts: accounts,
		version:  version,
		logger:   logger,
		now:      time.Now,
	}
}

type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RecoveryRequest struct {
	Email string `json:"email"`
}

type ResetPasswordRequest struct {
	Password string `json:"password"`
}

type PingResponse struct {
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
}

type LoginResponse struct {
	Success bool   `json:"success"`
	UID     string `json:"uid"`
	Token   string `json:"token"`
	Message string `json:"message"`
}

type RegisterResponse struct {
	Success bool   `json:"success"`
	UID     string `json:"uid"`
	Message string `json:"message"`
}

// Ping reports that the API is up
func (h *AuthHandler) Ping(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, PingResponse{
		Message:   "pong",
		Timestamp: h.now().UTC(),
		Version:   h.version,
	})
}

// Register handles user registration
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !decode(w, r, &req) {
		return
	}

	uid, err := h.accounts.Register(r.Context(), clientIP(r), req.Email, req.Password)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, RegisterResponse{
		Success: true,
		UID:     uid,
		Message: "user registered successfully",
	})
}

// Login handles user authentication and returns the account token
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decode(w, r, &req) {
		return
	}

	res, err := h.accounts.Login(r.Context(), clientIP(r), req.Email, req.Password)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, LoginResponse{
		Success: true,
		UID:     res.UID,
		Token:   res.Token,
		Message: "login successful",
	})
}

// Recovery starts password recovery. The answer is the same whether or not
// the e-mail belongs to an account.
func (h *AuthHandler) Recovery(w http.ResponseWriter, r *http.Request) {
	var req RecoveryRequest
	if !decode(w, r, &req) {
		return
	}

	if err := h.accounts.RequestRecovery(r.Context(), clientIP(r), req.Email); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{
		Success: true,
		Message: "if the email is registered, a recovery link has been sent",
	})
}

// ResetPassword redeems the recovery token in the path
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	if !decode(w, r, &req) {
		return
	}

	if err := h.accounts.ResetPassword(r.Context(), chi.URLParam(r, "token"), req.Password); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{Success: true, Message: "password reset successfully"})
}
