package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/jefjesuswt/accounts-server/internal/auth"
	"github.com/jefjesuswt/accounts-server/internal/config"
	"github.com/jefjesuswt/accounts-server/internal/crypto"
	"github.com/jefjesuswt/accounts-server/internal/mailer"
	"github.com/jefjesuswt/accounts-server/internal/model"
	"github.com/jefjesuswt/accounts-server/internal/repository"
)

// Store is the account persistence surface the handlers depend on.
type Store interface {
	CreateUser(ctx context.Context, user model.User) error
	GetUserByEmail(ctx context.Context, email string) (model.User, error)
	GetUserByID(ctx context.Context, userID string) (model.User, error)
	ListUsers(ctx context.Context, limit int) ([]model.User, error)
	UpdateUser(ctx context.Context, userID string, update repository.UserUpdate) (model.User, error)
	UpdatePassword(ctx context.Context, email, passwordHash string) (bool, error)
	ConfirmEmail(ctx context.Context, userID string) (model.User, error)
	DeleteUser(ctx context.Context, userID string) (bool, error)
}

// CodeStore holds the single-use confirmation tokens and reset codes.
type CodeStore interface {
	SaveConfirmationToken(ctx context.Context, userID, token string) error
	ConsumeConfirmationToken(ctx context.Context, token string) (string, bool, error)
	SaveResetCode(ctx context.Context, email, code string) error
	CheckResetCode(ctx context.Context, email, code string) (bool, error)
	ConsumeResetCode(ctx context.Context, email, code string) (bool, error)
}

// ObjectStorage persists profile pictures and returns their public URL.
type ObjectStorage interface {
	UploadProfilePicture(ctx context.Context, userID, contentType string, data []byte) (string, error)
}

type Server struct {
	cfg     config.Config
	store   Store
	codes   CodeStore
	mailer  mailer.Mailer
	storage ObjectStorage
	logger  *zap.Logger

	// dummyHash is compared against when the email is unknown, so login
	// latency does not reveal whether an account exists.
	dummyHash string
}

func NewServer(cfg config.Config, store Store, codes CodeStore, m mailer.Mailer, storage ObjectStorage, logger *zap.Logger) (*Server, error) {
	filler, err := crypto.NewConfirmationToken()
	if err != nil {
		return nil, err
	}
	dummyHash, err := crypto.HashPassword(filler)
	if err != nil {
		return nil, err
	}
	return &Server{
		cfg:       cfg,
		store:     store,
		codes:     codes,
		mailer:    m,
		storage:   storage,
		logger:    logger,
		dummyHash: dummyHash,
	}, nil
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/auth/login", s.handleLogin)
	r.Post("/auth/register", s.handleRegister)
	r.Get("/auth/confirm-email", s.handleConfirmEmail)
	r.Post("/auth/resend-confirmation", s.handleResendConfirmation)
	r.Post("/auth/forgot-password", s.handleForgotPassword)
	r.Post("/auth/verify-reset-code", s.handleVerifyResetCode)
	r.Post("/auth/reset-password", s.handleResetPassword)
	r.With(s.authMiddleware).Get("/auth/checkToken", s.handleCheckToken)
	r.With(s.authMiddleware).Post("/auth/change-password", s.handleChangePassword)

	r.Route("/users", func(r chi.Router) {
		r.With(s.authMiddleware, s.requireRoles(model.RoleAdmin, model.RoleSuperAdmin)).Post("/create", s.handleCreateUser)
		r.With(s.authMiddleware, s.requireRoles(model.RoleAdmin, model.RoleSuperAdmin)).Get("/", s.handleListUsers)
		r.With(s.authMiddleware).Patch("/me", s.handleUpdateMe)
		r.With(s.authMiddleware).Put("/me/picture", s.handleUploadPicture)
		r.With(s.authMiddleware, s.requireRoles(model.RoleSuperAdmin)).Patch("/superadmin/{userID}", s.handleSuperUpdateUser)
		r.With(s.authMiddleware, s.requireRoles(model.RoleSuperAdmin)).Delete("/superadmin/{userID}", s.handleSuperDeleteUser)
		r.With(s.authMiddleware, s.requireRoles(model.RoleAdmin, model.RoleSuperAdmin)).Get("/{userID}", s.handleGetUser)
	})

	return r
}

type accountResponse struct {
	ID                string    `json:"id"`
	Email             string    `json:"email"`
	Name              string    `json:"name"`
	PhoneNumber       string    `json:"phoneNumber"`
	Role              string    `json:"role"`
	EmailConfirmed    bool      `json:"emailConfirmed"`
	ProfilePictureURL *string   `json:"profilePictureUrl,omitempty"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

type authResponse struct {
	Token   string          `json:"token"`
	Account accountResponse `json:"account"`
}

func accountFromUser(user model.User) accountResponse {
	return accountResponse{
		ID:                user.ID,
		Email:             user.Email,
		Name:              user.Name,
		PhoneNumber:       user.PhoneNumber,
		Role:              user.Role,
		EmailConfirmed:    user.EmailConfirmed,
		ProfilePictureURL: user.ProfilePictureURL,
		CreatedAt:         user.CreatedAt,
		UpdatedAt:         user.UpdatedAt,
	}
}

func (s *Server) issueToken(user model.User) (string, error) {
	return auth.NewAccessToken(s.cfg.JWTSecret, s.cfg.JWTIssuer, s.cfg.AccessTokenTTL, auth.Claims{
		UserID: user.ID,
		Email:  user.Email,
		Role:   user.Role,
	})
}

// dispatch runs an email send off the request goroutine. Delivery failures
// are logged and never fail the request that triggered them.
func (s *Server) dispatch(kind, to string, send func(ctx context.Context) error) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := send(ctx); err != nil {
			s.logger.Warn("email dispatch failed",
				zap.String("kind", kind),
				zap.String("email", to),
				zap.Error(err))
		}
	}()
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r.Header.Get("Authorization"))
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing_token")
			return
		}

		claims, err := auth.ParseToken(s.cfg.JWTSecret, token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid_token")
			return
		}

		ctx := context.WithValue(r.Context(), claimsKey{}, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) requireRoles(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := claimsFromContext(r.Context())
			if claims == nil || !contains(roles, claims.Role) {
				writeError(w, http.StatusForbidden, "forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type claimsKey struct{}

func claimsFromContext(ctx context.Context) *auth.Claims {
	value := ctx.Value(claimsKey{})
	claims, _ := value.(*auth.Claims)
	return claims
}

func contains(values []string, target string) bool {
	for _, value := range values {
		if value == target {
			return true
		}
	}
	return false
}

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func isValidEmail(email string) bool {
	if email == "" {
		return false
	}
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}

// Reset codes are exactly six digits.
func isValidResetCode(code string) bool {
	if len(code) != 6 {
		return false
	}
	for _, c := range code {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func decodeJSON(r *http.Request, out interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(out)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}
