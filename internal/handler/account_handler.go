package handler

import (
	"net/http"
	"time"

	"github.com/Stewz00/apisecure/internal/middleware"
	"github.com/Stewz00/apisecure/internal/model"
	"github.com/Stewz00/apisecure/internal/service"
	"github.com/sirupsen/logrus"
)

// AccountHandler serves the routes behind AuthGate. The same handler is
// mounted for users and for admins.
type AccountHandler struct {
	accounts *service.AccountService
	logger   logrus.FieldLogger
}

func NewAccountHandler(accounts *service.AccountService, logger logrus.FieldLogger) *AccountHandler {
	return &AccountHandler{accounts: accounts, logger: logger}
}

type UpdateProfileRequest struct {
	Email string `json:"email"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// UserView is the public profile of an account.
type UserView struct {
	UID           string     `json:"uid"`
	Email         string     `json:"email"`
	Role          model.Role `json:"role"`
	IsAdmin       bool       `json:"is_admin"`
	LastIP        string     `json:"last_ip"`
	LastLogin     *time.Time `json:"last_login"`
	LoginAttempts int        `json:"login_attempts"`
	CreatedAt     time.Time  `json:"created_at"`
}

type MeResponse struct {
	Success bool     `json:"success"`
	User    UserView `json:"user"`
}

type ProfileResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	UID     string `json:"uid"`
	Email   string `json:"email"`
	Token   string `json:"token"`
}

// LoginHistoryView is the sign-in bookkeeping of an account.
type LoginHistoryView struct {
	LastIP          string     `json:"last_ip"`
	LastLogin       *time.Time `json:"last_login"`
	LoginAttempts   int        `json:"login_attempts"`
	LastFailedLogin *time.Time `json:"last_failed_login"`
}

type LoginHistoryResponse struct {
	Success bool             `json:"success"`
	History LoginHistoryView `json:"history"`
}

// Me returns the caller's profile
func (h *AccountHandler) Me(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}

	user, err := h.accounts.Me(r.Context(), id.UID)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, MeResponse{
		Success: true,
		User: UserView{
			UID:           user.UID,
			Email:         user.Email,
			Role:          user.Role,
			IsAdmin:       user.Role == model.RoleAdmin,
			LastIP:        user.LastIP,
			LastLogin:     user.LastLogin,
			LoginAttempts: user.LoginAttempts,
			CreatedAt:     user.CreatedAt,
		},
	})
}

// UpdateProfile changes the caller's e-mail and returns the new token
func (h *AccountHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	var req UpdateProfileRequest
	if !decode(w, r, &req) {
		return
	}

	res, err := h.accounts.UpdateProfile(r.Context(), id, req.Email)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, ProfileResponse{
		Success: true,
		Message: "profile updated successfully",
		UID:     res.Identity.UID,
		Email:   res.Identity.Email,
		Token:   res.Token,
	})
}

// ChangePassword replaces the caller's password
func (h *AccountHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	var req ChangePasswordRequest
	if !decode(w, r, &req) {
		return
	}

	if err := h.accounts.ChangePassword(r.Context(), id, req.CurrentPassword, req.NewPassword); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{Success: true, Message: "password changed successfully"})
}

// LoginHistory returns the caller's sign-in bookkeeping
func (h *AccountHandler) LoginHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}

	history, err := h.accounts.LoginHistory(r.Context(), id.UID)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, LoginHistoryResponse{
		Success: true,
		History: LoginHistoryView{
			LastIP:          history.LastIP,
			LastLogin:       history.LastLogin,
			LoginAttempts:   history.LoginAttempts,
			LastFailedLogin: history.LastFailedLogin,
		},
	})
}

func identity(w http.ResponseWriter, r *http.Request) (model.Identity, bool) {
	id, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		sendJSONError(w, "missing authentication headers", http.StatusUnauthorized)
	}
	return id, ok
}
