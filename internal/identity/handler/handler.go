package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"reyu/internal/identity/models"
	"reyu/internal/identity/service"
	id "reyu/pkg/domain"
	dErrors "reyu/pkg/domain-errors"
	"reyu/pkg/platform/httputil"
	"reyu/pkg/requestcontext"
)

// Service defines the identity operations exposed over HTTP.
type Service interface {
	GetUser(ctx context.Context, userID id.UserID) (*models.User, error)
	RegisterUser(ctx context.Context, cmd service.RegisterUserCommand) (*models.User, error)
	ReviewKYC(ctx context.Context, userID id.UserID, status models.KYCStatus) (*models.User, error)
	SetUserStatus(ctx context.Context, userID id.UserID, status models.UserStatus) (*models.User, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(svc Service, logger *slog.Logger) *Handler {
	return &Handler{service: svc, logger: logger}
}

// Register mounts routes available to any authenticated user.
func (h *Handler) Register(r chi.Router) {
	r.Get("/me", h.handleMe)
}

// RegisterAdmin mounts routes that sit behind the admin role check.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Post("/admin/users", h.handleRegisterUser)
	r.Post("/admin/users/{id}/kyc", h.handleReviewKYC)
	r.Post("/admin/users/{id}/status", h.handleSetStatus)
}

type registerUserRequest struct {
	UserID      string      `json:"user_id"`
	Email       string      `json:"email"`
	DisplayName string      `json:"display_name"`
	Role        models.Role `json:"role"`
}

type kycRequest struct {
	Status models.KYCStatus `json:"status"`
}

type statusRequest struct {
	Status models.UserStatus `json:"status"`
}

// userResponse decorates the user with the derived eligibility flag.
type userResponse struct {
	*models.User
	CanTrade bool `json:"can_trade"`
}

func toResponse(u *models.User) userResponse {
	return userResponse{User: u, CanTrade: models.CanTrade(u)}
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user, err := h.service.GetUser(ctx, requestcontext.UserID(ctx))
	if err != nil {
		h.fail(ctx, w, "failed to load current user", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toResponse(user))
}

func (h *Handler) handleRegisterUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req registerUserRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.fail(ctx, w, "invalid register request", err)
		return
	}
	cmd := service.RegisterUserCommand{Email: req.Email, DisplayName: req.DisplayName, Role: req.Role}
	if req.UserID != "" {
		userID, err := id.ParseUserID(req.UserID)
		if err != nil {
			h.fail(ctx, w, "invalid user id", err)
			return
		}
		cmd.UserID = userID
	}
	user, err := h.service.RegisterUser(ctx, cmd)
	if err != nil {
		h.fail(ctx, w, "failed to register user", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toResponse(user))
}

func (h *Handler) handleReviewKYC(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, err := id.ParseUserID(chi.URLParam(r, "id"))
	if err != nil {
		h.fail(ctx, w, "invalid user id", err)
		return
	}
	var req kycRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.fail(ctx, w, "invalid kyc request", err)
		return
	}
	user, err := h.service.ReviewKYC(ctx, userID, req.Status)
	if err != nil {
		h.fail(ctx, w, "failed to review kyc", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toResponse(user))
}

func (h *Handler) handleSetStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, err := id.ParseUserID(chi.URLParam(r, "id"))
	if err != nil {
		h.fail(ctx, w, "invalid user id", err)
		return
	}
	var req statusRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.fail(ctx, w, "invalid status request", err)
		return
	}
	user, err := h.service.SetUserStatus(ctx, userID, req.Status)
	if err != nil {
		h.fail(ctx, w, "failed to set user status", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toResponse(user))
}

func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, msg, "error", err, "request_id", requestcontext.RequestID(ctx))
	} else {
		h.logger.WarnContext(ctx, msg, "error", err, "request_id", requestcontext.RequestID(ctx))
	}
	httputil.WriteError(w, err)
}
