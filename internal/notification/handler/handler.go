package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"reyu/internal/notification/models"
	id "reyu/pkg/domain"
	dErrors "reyu/pkg/domain-errors"
	"reyu/pkg/platform/httputil"
	"reyu/pkg/requestcontext"
)

type Service interface {
	List(ctx context.Context, userID id.UserID, unreadOnly bool) ([]*models.Notification, error)
	MarkRead(ctx context.Context, userID id.UserID, notificationID id.NotificationID) (*models.Notification, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(svc Service, logger *slog.Logger) *Handler {
	return &Handler{service: svc, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/notifications", h.handleList)
	r.Post("/notifications/{id}/read", h.handleMarkRead)
}

type listResponse struct {
	Notifications []*models.Notification `json:"notifications"`
	Unread        int                    `json:"unread"`
}

// handleList serves the caller's inbox. ?unread=true hides read entries.
func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	unreadOnly := false
	if raw := r.URL.Query().Get("unread"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			h.fail(ctx, w, "invalid unread filter", dErrors.New(dErrors.CodeValidation, "unread must be a boolean"))
			return
		}
		unreadOnly = v
	}
	list, err := h.service.List(ctx, requestcontext.UserID(ctx), unreadOnly)
	if err != nil {
		h.fail(ctx, w, "failed to list notifications", err)
		return
	}
	unread := 0
	for _, n := range list {
		if !n.IsRead {
			unread++
		}
	}
	httputil.WriteJSON(w, http.StatusOK, listResponse{Notifications: list, Unread: unread})
}

func (h *Handler) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	notificationID, err := id.ParseNotificationID(chi.URLParam(r, "id"))
	if err != nil {
		h.fail(ctx, w, "invalid notification id", err)
		return
	}
	n, err := h.service.MarkRead(ctx, requestcontext.UserID(ctx), notificationID)
	if err != nil {
		h.fail(ctx, w, "failed to mark notification read", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, n)
}

func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, msg, "error", err, "request_id", requestcontext.RequestID(ctx))
	} else {
		h.logger.WarnContext(ctx, msg, "error", err, "request_id", requestcontext.RequestID(ctx))
	}
	httputil.WriteError(w, err)
}
