package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"reyu/internal/market/models"
	id "reyu/pkg/domain"
	"reyu/pkg/platform/httputil"
	"reyu/pkg/requestcontext"
)

// dealAction runs one deal operation for the authenticated actor.
type dealAction func(r *http.Request, actor models.Actor, dealID id.DealID) (*models.Deal, error)

// dealRoute parses the deal id, runs action and renders the resulting deal.
func (h *Handler) dealRoute(msg string, action dealAction) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		dealID, err := id.ParseDealID(chi.URLParam(r, "id"))
		if err != nil {
			h.fail(ctx, w, "invalid deal id", err)
			return
		}
		deal, err := action(r, actorFrom(ctx), dealID)
		if err != nil {
			h.fail(ctx, w, msg, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, deal)
	}
}

func (h *Handler) getDeal(r *http.Request, actor models.Actor, dealID id.DealID) (*models.Deal, error) {
	return h.service.GetDeal(r.Context(), actor, dealID)
}

func (h *Handler) initiatePayment(r *http.Request, actor models.Actor, dealID id.DealID) (*models.Deal, error) {
	return h.service.InitiatePayment(r.Context(), actor, dealID)
}

func (h *Handler) capturePayment(r *http.Request, actor models.Actor, dealID id.DealID) (*models.Deal, error) {
	return h.service.CapturePayment(r.Context(), actor, dealID)
}

func (h *Handler) confirmDelivery(r *http.Request, actor models.Actor, dealID id.DealID) (*models.Deal, error) {
	return h.service.ConfirmDelivery(r.Context(), actor, dealID)
}

func (h *Handler) completeDeal(r *http.Request, actor models.Actor, dealID id.DealID) (*models.Deal, error) {
	return h.service.CompleteDeal(r.Context(), actor, dealID)
}

func (h *Handler) shipDeal(r *http.Request, actor models.Actor, dealID id.DealID) (*models.Deal, error) {
	var req shipRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		return nil, err
	}
	return h.service.ShipDeal(r.Context(), actor, dealID, models.ShippingInfo{
		Carrier:           req.Carrier,
		TrackingNumber:    req.TrackingNumber,
		EstimatedDelivery: req.EstimatedDelivery,
	})
}

func (h *Handler) raiseDispute(r *http.Request, actor models.Actor, dealID id.DealID) (*models.Deal, error) {
	var req disputeRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		return nil, err
	}
	return h.service.RaiseDispute(r.Context(), actor, dealID, req.Reason, req.Description)
}

// cancelDeal takes an optional body carrying the reason.
func (h *Handler) cancelDeal(r *http.Request, actor models.Actor, dealID id.DealID) (*models.Deal, error) {
	var req cancelRequest
	if err := decodeOptional(r, &req); err != nil {
		return nil, err
	}
	return h.service.CancelDeal(r.Context(), actor, dealID, req.Reason)
}

func (h *Handler) resolveDispute(r *http.Request, actor models.Actor, dealID id.DealID) (*models.Deal, error) {
	var req resolveRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		return nil, err
	}
	return h.service.ResolveDispute(r.Context(), actor, dealID, req.Outcome, req.Resolution)
}

func (h *Handler) handleListDeals(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	deals, err := h.service.ListDealsForUser(ctx, requestcontext.UserID(ctx))
	if err != nil {
		h.fail(ctx, w, "failed to list deals", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, dealsResponse{Deals: deals})
}

func (h *Handler) handleTimeline(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	dealID, err := id.ParseDealID(chi.URLParam(r, "id"))
	if err != nil {
		h.fail(ctx, w, "invalid deal id", err)
		return
	}
	events, err := h.service.Timeline(ctx, actorFrom(ctx), dealID)
	if err != nil {
		h.fail(ctx, w, "failed to load timeline", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, timelineResponse{DealID: dealID, Events: events})
}

func (h *Handler) handleSettlement(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	dealID, err := id.ParseDealID(chi.URLParam(r, "id"))
	if err != nil {
		h.fail(ctx, w, "invalid deal id", err)
		return
	}
	st, err := h.service.Settlement(ctx, actorFrom(ctx), dealID)
	if err != nil {
		h.fail(ctx, w, "failed to load settlement", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, st)
}

func (h *Handler) handleRateDeal(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	dealID, err := id.ParseDealID(chi.URLParam(r, "id"))
	if err != nil {
		h.fail(ctx, w, "invalid deal id", err)
		return
	}
	var req rateRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.fail(ctx, w, "invalid rating request", err)
		return
	}
	rating, err := h.service.RateDeal(ctx, requestcontext.UserID(ctx), dealID, req.Score, req.Feedback)
	if err != nil {
		h.fail(ctx, w, "failed to rate deal", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, rating)
}

func (h *Handler) handleListRatings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	dealID, err := id.ParseDealID(chi.URLParam(r, "id"))
	if err != nil {
		h.fail(ctx, w, "invalid deal id", err)
		return
	}
	ratings, err := h.service.ListRatings(ctx, actorFrom(ctx), dealID)
	if err != nil {
		h.fail(ctx, w, "failed to list ratings", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ratingsResponse{Ratings: ratings})
}
