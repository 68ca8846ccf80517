package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"reyu/internal/market/service"
	id "reyu/pkg/domain"
	"reyu/pkg/platform/httputil"
	"reyu/pkg/requestcontext"
)

func (h *Handler) handlePlaceBid(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	listingID, err := id.ParseListingID(chi.URLParam(r, "id"))
	if err != nil {
		h.fail(ctx, w, "invalid listing id", err)
		return
	}
	var req placeBidRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.fail(ctx, w, "invalid bid request", err)
		return
	}
	cmd := service.PlaceBidCommand{Amount: req.Amount, Currency: req.Currency, Note: req.Note}
	if req.ExpiresAt != nil {
		cmd.ExpiresAt = *req.ExpiresAt
	}
	bid, err := h.service.PlaceBid(ctx, requestcontext.UserID(ctx), listingID, cmd)
	if err != nil {
		h.fail(ctx, w, "failed to place bid", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, bid)
}

func (h *Handler) handleListListingBids(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	listingID, err := id.ParseListingID(chi.URLParam(r, "id"))
	if err != nil {
		h.fail(ctx, w, "invalid listing id", err)
		return
	}
	bids, err := h.service.ListBidsForListing(ctx, requestcontext.UserID(ctx), listingID)
	if err != nil {
		h.fail(ctx, w, "failed to list bids", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, bidsResponse{Bids: bids})
}

func (h *Handler) handleListMyBids(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	bids, err := h.service.ListBidsByBidder(ctx, requestcontext.UserID(ctx))
	if err != nil {
		h.fail(ctx, w, "failed to list bids", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, bidsResponse{Bids: bids})
}

func (h *Handler) handleAcceptBid(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	bidID, err := id.ParseBidID(chi.URLParam(r, "id"))
	if err != nil {
		h.fail(ctx, w, "invalid bid id", err)
		return
	}
	deal, err := h.service.AcceptBid(ctx, requestcontext.UserID(ctx), bidID)
	if err != nil {
		h.fail(ctx, w, "failed to accept bid", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, deal)
}

func (h *Handler) handleRejectBid(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	bidID, err := id.ParseBidID(chi.URLParam(r, "id"))
	if err != nil {
		h.fail(ctx, w, "invalid bid id", err)
		return
	}
	if err := h.service.RejectBid(ctx, requestcontext.UserID(ctx), bidID); err != nil {
		h.fail(ctx, w, "failed to reject bid", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleCancelBid(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	bidID, err := id.ParseBidID(chi.URLParam(r, "id"))
	if err != nil {
		h.fail(ctx, w, "invalid bid id", err)
		return
	}
	if err := h.service.CancelBid(ctx, requestcontext.UserID(ctx), bidID); err != nil {
		h.fail(ctx, w, "failed to cancel bid", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
