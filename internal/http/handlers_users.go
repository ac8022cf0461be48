package http

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/jefjesuswt/accounts-server/internal/crypto"
	"github.com/jefjesuswt/accounts-server/internal/model"
	"github.com/jefjesuswt/accounts-server/internal/repository"
)

const (
	maxProfilePictureBytes = 5 << 20
	defaultListLimit       = 100
	maxListLimit           = 500
)

var allowedPictureTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/webp": true,
	"image/gif":  true,
}

type createUserRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	Name        string `json:"name"`
	PhoneNumber string `json:"phoneNumber"`
	Role        string `json:"role"`
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())

	var req createUserRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	email := normalizeEmail(req.Email)
	if !isValidEmail(email) || len(req.Password) < minPasswordLength || req.Name == "" {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	role := req.Role
	if role == "" {
		role = model.RoleUser
	}
	if !model.IsValidRole(role) {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if role == model.RoleSuperAdmin && claims.Role != model.RoleSuperAdmin {
		writeError(w, http.StatusForbidden, "forbidden")
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
		Role:         role,
		// Provisioned accounts skip the confirmation flow.
		EmailConfirmed: true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.store.CreateUser(r.Context(), user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			writeError(w, http.StatusBadRequest, "email_already_registered")
			return
		}
		s.logger.Error("create user failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	writeJSON(w, http.StatusCreated, accountFromUser(user))
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > maxListLimit {
			writeError(w, http.StatusBadRequest, "invalid_request")
			return
		}
		limit = parsed
	}

	users, err := s.store.ListUsers(r.Context(), limit)
	if err != nil {
		s.logger.Error("list users failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	accounts := make([]accountResponse, 0, len(users))
	for _, user := range users {
		accounts = append(accounts, accountFromUser(user))
	}
	writeJSON(w, http.StatusOK, accounts)
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	user, err := s.store.GetUserByID(r.Context(), userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusNotFound, "not_found")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	writeJSON(w, http.StatusOK, accountFromUser(user))
}

type updateMeRequest struct {
	Name        *string `json:"name"`
	PhoneNumber *string `json:"phoneNumber"`
}

func (s *Server) handleUpdateMe(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())

	var req updateMeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if req.Name == nil && req.PhoneNumber == nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if req.Name != nil && *req.Name == "" {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	user, err := s.store.UpdateUser(r.Context(), claims.UserID, repository.UserUpdate{
		Name:        req.Name,
		PhoneNumber: req.PhoneNumber,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusNotFound, "account_not_found")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	writeJSON(w, http.StatusOK, accountFromUser(user))
}

type superUpdateUserRequest struct {
	Email       *string `json:"email"`
	Name        *string `json:"name"`
	PhoneNumber *string `json:"phoneNumber"`
	Role        *string `json:"role"`
	Password    *string `json:"password"`
}

func (s *Server) handleSuperUpdateUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	var req superUpdateUserRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if req.Email == nil && req.Name == nil && req.PhoneNumber == nil && req.Role == nil && req.Password == nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	update := repository.UserUpdate{
		Name:        req.Name,
		PhoneNumber: req.PhoneNumber,
	}

	if req.Email != nil {
		email := normalizeEmail(*req.Email)
		if !isValidEmail(email) {
			writeError(w, http.StatusBadRequest, "invalid_request")
			return
		}
		update.Email = &email
	}
	if req.Name != nil && *req.Name == "" {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if req.Role != nil {
		if !model.IsValidRole(*req.Role) {
			writeError(w, http.StatusBadRequest, "invalid_request")
			return
		}
		update.Role = req.Role
	}
	if req.Password != nil {
		if len(*req.Password) < minPasswordLength {
			writeError(w, http.StatusBadRequest, "invalid_request")
			return
		}
		hash, err := crypto.HashPassword(*req.Password)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "server_error")
			return
		}
		update.PasswordHash = &hash
	}

	user, err := s.store.UpdateUser(r.Context(), userID, update)
	if err != nil {
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			writeError(w, http.StatusNotFound, "not_found")
		case errors.Is(err, repository.ErrDuplicateEmail):
			writeError(w, http.StatusBadRequest, "email_already_registered")
		default:
			s.logger.Error("update user failed", zap.String("user_id", userID), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "server_error")
		}
		return
	}

	writeJSON(w, http.StatusOK, accountFromUser(user))
}

func (s *Server) handleSuperDeleteUser(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	userID := chi.URLParam(r, "userID")

	if userID == claims.UserID {
		writeError(w, http.StatusBadRequest, "cannot_delete_self")
		return
	}

	deleted, err := s.store.DeleteUser(r.Context(), userID)
	if err != nil {
		s.logger.Error("delete user failed", zap.String("user_id", userID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "not_found")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleUploadPicture(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())

	if s.storage == nil {
		writeError(w, http.StatusServiceUnavailable, "storage_not_configured")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxProfilePictureBytes+4096)
	if err := r.ParseMultipartForm(maxProfilePictureBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	file, header, err := r.FormFile("profileImage")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing_file")
		return
	}
	defer file.Close()

	if header.Size > maxProfilePictureBytes {
		writeError(w, http.StatusBadRequest, "file_too_large")
		return
	}

	data, err := io.ReadAll(io.LimitReader(file, maxProfilePictureBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if len(data) > maxProfilePictureBytes {
		writeError(w, http.StatusBadRequest, "file_too_large")
		return
	}

	// Sniff the content type rather than trusting the multipart header.
	contentType := http.DetectContentType(data)
	if !allowedPictureTypes[contentType] {
		writeError(w, http.StatusBadRequest, "unsupported_file_type")
		return
	}

	url, err := s.storage.UploadProfilePicture(r.Context(), claims.UserID, contentType, data)
	if err != nil {
		s.logger.Error("profile picture upload failed", zap.String("user_id", claims.UserID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	user, err := s.store.UpdateUser(r.Context(), claims.UserID, repository.UserUpdate{
		ProfilePictureURL: &url,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusNotFound, "account_not_found")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	writeJSON(w, http.StatusOK, accountFromUser(user))
}
