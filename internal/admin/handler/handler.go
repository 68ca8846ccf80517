package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"reyu/internal/admin"
	"reyu/internal/admin/service"
	"reyu/internal/admin/types"
	dErrors "reyu/pkg/domain-errors"
	"reyu/pkg/platform/httputil"
	"reyu/pkg/requestcontext"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks

// Service defines the admin queries exposed over HTTP.
type Service interface {
	ListUsers(ctx context.Context, kycStatus, userStatus string) ([]*types.AdminUser, error)
	ListDeals(ctx context.Context, status string) ([]*types.AdminDeal, error)
	Overview(ctx context.Context) (*types.Overview, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(svc Service, logger *slog.Logger) *Handler {
	return &Handler{service: svc, logger: logger}
}

// Register mounts nothing; every admin route sits behind the role check.
func (h *Handler) Register(chi.Router) {}

func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Get("/admin/users", h.handleListUsers)
	r.Get("/admin/deals", h.handleListDeals)
	r.Get("/admin/overview", h.handleOverview)
}

func (h *Handler) handleListUsers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	users, err := h.service.ListUsers(ctx, q.Get("kyc_status"), q.Get("user_status"))
	if err != nil {
		h.fail(ctx, w, "failed to list users", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, admin.NewUsersListResponse(users))
}

func (h *Handler) handleListDeals(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	status := r.URL.Query().Get("status")
	if status == "" {
		status = service.DefaultDealStatus
	}
	deals, err := h.service.ListDeals(ctx, status)
	if err != nil {
		h.fail(ctx, w, "failed to list deals", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, admin.NewDealsListResponse(status, deals))
}

func (h *Handler) handleOverview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	overview, err := h.service.Overview(ctx)
	if err != nil {
		h.fail(ctx, w, "failed to build admin overview", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, admin.NewOverviewResponse(overview))
}

func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, msg, "error", err, "request_id", requestcontext.RequestID(ctx))
	} else {
		h.logger.WarnContext(ctx, msg, "error", err, "request_id", requestcontext.RequestID(ctx))
	}
	httputil.WriteError(w, err)
}
