package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"reyu/internal/market/models"
	"reyu/internal/market/service"
	id "reyu/pkg/domain"
	"reyu/pkg/platform/httputil"
	"reyu/pkg/requestcontext"
)

func (h *Handler) handleRegisterDiamond(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var spec models.DiamondSpec
	if err := httputil.DecodeJSON(r, &spec); err != nil {
		h.fail(ctx, w, "invalid diamond request", err)
		return
	}
	diamond, err := h.service.RegisterDiamond(ctx, requestcontext.UserID(ctx), spec)
	if err != nil {
		h.fail(ctx, w, "failed to register diamond", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, diamond)
}

func (h *Handler) handleListDiamonds(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	diamonds, err := h.service.ListDiamonds(ctx, requestcontext.UserID(ctx))
	if err != nil {
		h.fail(ctx, w, "failed to list diamonds", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, diamondsResponse{Diamonds: diamonds})
}

func (h *Handler) handleCreateListing(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req createListingRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.fail(ctx, w, "invalid listing request", err)
		return
	}
	diamondID, err := id.ParseDiamondID(req.DiamondID)
	if err != nil {
		h.fail(ctx, w, "invalid diamond id", err)
		return
	}
	listing, err := h.service.CreateListing(ctx, requestcontext.UserID(ctx), service.CreateListingCommand{
		DiamondID:   diamondID,
		AskingPrice: req.AskingPrice,
		Currency:    req.Currency,
		Description: req.Description,
		ExpiresAt:   req.ExpiresAt,
	})
	if err != nil {
		h.fail(ctx, w, "failed to create listing", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, listing)
}

func (h *Handler) handleListListings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	listings, err := h.service.ListActiveListings(ctx)
	if err != nil {
		h.fail(ctx, w, "failed to list listings", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, listingsResponse{Listings: listings})
}

func (h *Handler) handleGetListing(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	listingID, err := id.ParseListingID(chi.URLParam(r, "id"))
	if err != nil {
		h.fail(ctx, w, "invalid listing id", err)
		return
	}
	listing, err := h.service.GetListing(ctx, listingID)
	if err != nil {
		h.fail(ctx, w, "failed to load listing", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, listing)
}

func (h *Handler) handleCancelListing(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	listingID, err := id.ParseListingID(chi.URLParam(r, "id"))
	if err != nil {
		h.fail(ctx, w, "invalid listing id", err)
		return
	}
	if err := h.service.CancelListing(ctx, requestcontext.UserID(ctx), listingID); err != nil {
		h.fail(ctx, w, "failed to cancel listing", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleRecordView(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	listingID, err := id.ParseListingID(chi.URLParam(r, "id"))
	if err != nil {
		h.fail(ctx, w, "invalid listing id", err)
		return
	}
	n, err := h.service.RecordView(ctx, listingID)
	if err != nil {
		h.fail(ctx, w, "failed to record view", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, viewResponse{ListingID: listingID, ViewCount: n})
}
