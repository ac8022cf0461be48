package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/jefjesuswt/accounts-server/internal/crypto"
	"github.com/jefjesuswt/accounts-server/internal/model"
	"github.com/jefjesuswt/accounts-server/internal/repository"
)

// Fixed responses for the flows that must not reveal whether an account
// exists. Both branches of each handler return the exact same body.
const (
	msgRegistered       = "Account registered. Check your inbox to confirm your email address."
	msgConfirmationSent = "If an account exists for that email, a confirmation link has been sent."
	msgResetCodeSent    = "If an account exists for that email, a reset code has been sent."
	msgPasswordUpdated  = "Password updated successfully."
)

const minPasswordLength = 6

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	email := normalizeEmail(req.Email)
	if email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	user, err := s.store.GetUserByEmail(r.Context(), email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Burn the same bcrypt cost as a real comparison.
			_ = crypto.CheckPassword(s.dummyHash, req.Password)
			writeError(w, http.StatusUnauthorized, "invalid_credentials")
			return
		}
		s.logger.Error("login lookup failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	if err := crypto.CheckPassword(user.PasswordHash, req.Password); err != nil {
		writeError(w, http.StatusUnauthorized, "invalid_credentials")
		return
	}

	if !user.EmailConfirmed {
		writeError(w, http.StatusUnauthorized, "account_not_confirmed")
		return
	}

	token, err := s.issueToken(user)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	writeJSON(w, http.StatusOK, authResponse{Token: token, Account: accountFromUser(user)})
}

type registerRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	Name        string `json:"name"`
	PhoneNumber string `json:"phoneNumber"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	email := normalizeEmail(req.Email)
	if !isValidEmail(email) || len(req.Password) < minPasswordLength || req.Name == "" {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	existing, err := s.store.GetUserByEmail(r.Context(), email)
	switch {
	case err == nil && existing.EmailConfirmed:
		writeError(w, http.StatusBadRequest, "email_already_registered")
		return
	case err == nil:
		// Unconfirmed account registered again: supersede the pending
		// token and resend, answering exactly like a fresh signup.
		if err := s.sendConfirmation(r.Context(), existing.ID, existing.Email); err != nil {
			writeError(w, http.StatusInternalServerError, "server_error")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": msgRegistered})
		return
	case !errors.Is(err, pgx.ErrNoRows):
		s.logger.Error("register lookup failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	hash, err := crypto.HashPassword(req.Password)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	now := time.Now().UTC()
	user := model.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		Name:         req.Name,
		PhoneNumber:  req.PhoneNumber,
		Role:         model.RoleUser,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.store.CreateUser(r.Context(), user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			writeError(w, http.StatusBadRequest, "email_already_registered")
			return
		}
		s.logger.Error("register insert failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	if err := s.sendConfirmation(r.Context(), user.ID, user.Email); err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": msgRegistered})
}

// sendConfirmation mints a confirmation token, stores it (dropping any
// previous one for the user) and hands the email off for delivery.
func (s *Server) sendConfirmation(ctx context.Context, userID, email string) error {
	token, err := crypto.NewConfirmationToken()
	if err != nil {
		return err
	}
	if err := s.codes.SaveConfirmationToken(ctx, userID, token); err != nil {
		return err
	}
	s.dispatch("confirmation", email, func(ctx context.Context) error {
		return s.mailer.SendConfirmation(ctx, email, token)
	})
	return nil
}

func (s *Server) handleCheckToken(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())

	user, err := s.store.GetUserByID(r.Context(), claims.UserID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusNotFound, "account_not_found")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	// Re-issue so the client leaves with a token reflecting the current
	// role, not the one minted at login.
	token, err := s.issueToken(user)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	writeJSON(w, http.StatusOK, authResponse{Token: token, Account: accountFromUser(user)})
}

func (s *Server) handleConfirmEmail(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		writeError(w, http.StatusBadRequest, "invalid_or_expired_token")
		return
	}

	userID, ok, err := s.codes.ConsumeConfirmationToken(r.Context(), token)
	if err != nil {
		s.logger.Error("confirmation token lookup failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_or_expired_token")
		return
	}

	user, err := s.store.ConfirmEmail(r.Context(), userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusBadRequest, "invalid_or_expired_token")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	sessionToken, err := s.issueToken(user)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	writeJSON(w, http.StatusOK, authResponse{Token: sessionToken, Account: accountFromUser(user)})
}

type emailRequest struct {
	Email string `json:"email"`
}

func (s *Server) handleResendConfirmation(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	email := normalizeEmail(req.Email)
	if email == "" {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	user, err := s.store.GetUserByEmail(r.Context(), email)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		s.logger.Error("resend confirmation lookup failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	if err == nil && !user.EmailConfirmed {
		if err := s.sendConfirmation(r.Context(), user.ID, user.Email); err != nil {
			writeError(w, http.StatusInternalServerError, "server_error")
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": msgConfirmationSent})
}

func (s *Server) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	email := normalizeEmail(req.Email)
	if email == "" {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	_, err := s.store.GetUserByEmail(r.Context(), email)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		s.logger.Error("forgot password lookup failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	if err == nil {
		code, err := crypto.NewResetCode()
		if err != nil {
			writeError(w, http.StatusInternalServerError, "server_error")
			return
		}
		if err := s.codes.SaveResetCode(r.Context(), email, code); err != nil {
			writeError(w, http.StatusInternalServerError, "server_error")
			return
		}
		s.dispatch("password_reset", email, func(ctx context.Context) error {
			return s.mailer.SendPasswordReset(ctx, email, code)
		})
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": msgResetCodeSent})
}

type verifyResetCodeRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

func (s *Server) handleVerifyResetCode(w http.ResponseWriter, r *http.Request) {
	var req verifyResetCodeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	email := normalizeEmail(req.Email)
	if email == "" || !isValidResetCode(req.Code) {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	valid, err := s.codes.CheckResetCode(r.Context(), email, req.Code)
	if err != nil {
		s.logger.Error("reset code check failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"valid": valid})
}

type resetPasswordRequest struct {
	Email       string `json:"email"`
	Code        string `json:"code"`
	NewPassword string `json:"newPassword"`
}

func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	email := normalizeEmail(req.Email)
	if email == "" || !isValidResetCode(req.Code) || len(req.NewPassword) < minPasswordLength {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	ok, err := s.codes.ConsumeResetCode(r.Context(), email, req.Code)
	if err != nil {
		s.logger.Error("reset code consume failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_or_expired_code")
		return
	}

	hash, err := crypto.HashPassword(req.NewPassword)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	updated, err := s.store.UpdatePassword(r.Context(), email, hash)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	if !updated {
		writeError(w, http.StatusBadRequest, "invalid_or_expired_code")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": msgPasswordUpdated})
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())

	var req changePasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if req.CurrentPassword == "" || len(req.NewPassword) < minPasswordLength {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	user, err := s.store.GetUserByID(r.Context(), claims.UserID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusNotFound, "account_not_found")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	if err := crypto.CheckPassword(user.PasswordHash, req.CurrentPassword); err != nil {
		writeError(w, http.StatusUnauthorized, "invalid_credentials")
		return
	}

	hash, err := crypto.HashPassword(req.NewPassword)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	updated, err := s.store.UpdatePassword(r.Context(), user.Email, hash)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	if !updated {
		writeError(w, http.StatusNotFound, "account_not_found")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": msgPasswordUpdated})
}
