// Package handler exposes the market over JSON HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"reyu/internal/market/models"
	"reyu/internal/market/service"
	id "reyu/pkg/domain"
	dErrors "reyu/pkg/domain-errors"
	"reyu/pkg/platform/httputil"
	"reyu/pkg/requestcontext"
)

// Service is the market surface the handlers drive.
type Service interface {
	RegisterDiamond(ctx context.Context, owner id.UserID, spec models.DiamondSpec) (*models.Diamond, error)
	ListDiamonds(ctx context.Context, owner id.UserID) ([]*models.Diamond, error)

	CreateListing(ctx context.Context, seller id.UserID, cmd service.CreateListingCommand) (*models.Listing, error)
	CancelListing(ctx context.Context, actor id.UserID, listingID id.ListingID) error
	GetListing(ctx context.Context, listingID id.ListingID) (*models.Listing, error)
	ListActiveListings(ctx context.Context) ([]*models.Listing, error)
	RecordView(ctx context.Context, listingID id.ListingID) (int64, error)

	PlaceBid(ctx context.Context, bidder id.UserID, listingID id.ListingID, cmd service.PlaceBidCommand) (*models.Bid, error)
	AcceptBid(ctx context.Context, actor id.UserID, bidID id.BidID) (*models.Deal, error)
	RejectBid(ctx context.Context, actor id.UserID, bidID id.BidID) error
	CancelBid(ctx context.Context, actor id.UserID, bidID id.BidID) error
	ListBidsForListing(ctx context.Context, actor id.UserID, listingID id.ListingID) ([]*models.Bid, error)
	ListBidsByBidder(ctx context.Context, bidder id.UserID) ([]*models.Bid, error)

	GetDeal(ctx context.Context, actor models.Actor, dealID id.DealID) (*models.Deal, error)
	ListDealsForUser(ctx context.Context, user id.UserID) ([]*models.Deal, error)
	Timeline(ctx context.Context, actor models.Actor, dealID id.DealID) ([]models.TimelineEvent, error)
	Settlement(ctx context.Context, actor models.Actor, dealID id.DealID) (*models.Settlement, error)
	InitiatePayment(ctx context.Context, actor models.Actor, dealID id.DealID) (*models.Deal, error)
	CapturePayment(ctx context.Context, actor models.Actor, dealID id.DealID) (*models.Deal, error)
	ShipDeal(ctx context.Context, actor models.Actor, dealID id.DealID, info models.ShippingInfo) (*models.Deal, error)
	ConfirmDelivery(ctx context.Context, actor models.Actor, dealID id.DealID) (*models.Deal, error)
	CompleteDeal(ctx context.Context, actor models.Actor, dealID id.DealID) (*models.Deal, error)
	RaiseDispute(ctx context.Context, actor models.Actor, dealID id.DealID, reason, description string) (*models.Deal, error)
	ResolveDispute(ctx context.Context, actor models.Actor, dealID id.DealID, outcome models.DealStatus, resolution string) (*models.Deal, error)
	CancelDeal(ctx context.Context, actor models.Actor, dealID id.DealID, reason string) (*models.Deal, error)

	RateDeal(ctx context.Context, rater id.UserID, dealID id.DealID, score int, feedback string) (*models.Rating, error)
	ListRatings(ctx context.Context, actor models.Actor, dealID id.DealID) ([]*models.Rating, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(svc Service, logger *slog.Logger) *Handler {
	return &Handler{service: svc, logger: logger}
}

// Register mounts the routes available to any authenticated caller.
func (h *Handler) Register(r chi.Router) {
	r.Post("/diamonds", h.handleRegisterDiamond)
	r.Get("/diamonds", h.handleListDiamonds)

	r.Post("/listings", h.handleCreateListing)
	r.Get("/listings", h.handleListListings)
	r.Get("/listings/{id}", h.handleGetListing)
	r.Delete("/listings/{id}", h.handleCancelListing)
	r.Post("/listings/{id}/views", h.handleRecordView)
	r.Get("/listings/{id}/bids", h.handleListListingBids)
	r.Post("/listings/{id}/bids", h.handlePlaceBid)

	r.Get("/bids", h.handleListMyBids)
	r.Post("/bids/{id}/accept", h.handleAcceptBid)
	r.Post("/bids/{id}/reject", h.handleRejectBid)
	r.Post("/bids/{id}/cancel", h.handleCancelBid)

	r.Get("/deals", h.handleListDeals)
	r.Get("/deals/{id}", h.dealRoute("failed to load deal", h.getDeal))
	r.Get("/deals/{id}/timeline", h.handleTimeline)
	r.Get("/deals/{id}/settlement", h.handleSettlement)
	r.Post("/deals/{id}/payment", h.dealRoute("failed to initiate payment", h.initiatePayment))
	r.Post("/deals/{id}/payment/capture", h.dealRoute("failed to capture payment", h.capturePayment))
	r.Post("/deals/{id}/ship", h.dealRoute("failed to ship deal", h.shipDeal))
	r.Post("/deals/{id}/deliver", h.dealRoute("failed to confirm delivery", h.confirmDelivery))
	r.Post("/deals/{id}/complete", h.dealRoute("failed to complete deal", h.completeDeal))
	r.Post("/deals/{id}/dispute", h.dealRoute("failed to raise dispute", h.raiseDispute))
	r.Post("/deals/{id}/cancel", h.dealRoute("failed to cancel deal", h.cancelDeal))
	r.Get("/deals/{id}/ratings", h.handleListRatings)
	r.Post("/deals/{id}/ratings", h.handleRateDeal)
}

// RegisterAdmin mounts routes that sit behind the admin role check.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Post("/admin/deals/{id}/resolve", h.dealRoute("failed to resolve dispute", h.resolveDispute))
}

// actorFrom builds the deal actor from the authenticated caller.
// actorFrom maps the authenticated caller. HTTP callers are never the system
// actor; that one belongs to the sweeper.
func actorFrom(ctx context.Context) models.Actor {
	return models.Actor{
		ID:    requestcontext.UserID(ctx),
		Admin: requestcontext.ActorRole(ctx) == requestcontext.RoleAdmin,
	}
}

type createListingRequest struct {
	DiamondID   string          `json:"diamond_id"`
	AskingPrice decimal.Decimal `json:"asking_price"`
	Currency    string          `json:"currency"`
	Description string          `json:"description"`
	ExpiresAt   *time.Time      `json:"expires_at"`
}

type placeBidRequest struct {
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
	Note      string          `json:"note"`
	ExpiresAt *time.Time      `json:"expires_at"`
}

type shipRequest struct {
	Carrier           string     `json:"carrier"`
	TrackingNumber    string     `json:"tracking_number"`
	EstimatedDelivery *time.Time `json:"estimated_delivery"`
}

type disputeRequest struct {
	Reason      string `json:"reason"`
	Description string `json:"description"`
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

type rateRequest struct {
	Score    int    `json:"score"`
	Feedback string `json:"feedback"`
}

type resolveRequest struct {
	Outcome    models.DealStatus `json:"outcome"`
	Resolution string            `json:"resolution"`
}

type diamondsResponse struct {
	Diamonds []*models.Diamond `json:"diamonds"`
}

type listingsResponse struct {
	Listings []*models.Listing `json:"listings"`
}

type bidsResponse struct {
	Bids []*models.Bid `json:"bids"`
}

type dealsResponse struct {
	Deals []*models.Deal `json:"deals"`
}

type timelineResponse struct {
	DealID id.DealID              `json:"deal_id"`
	Events []models.TimelineEvent `json:"events"`
}

type ratingsResponse struct {
	Ratings []*models.Rating `json:"ratings"`
}

type viewResponse struct {
	ListingID id.ListingID `json:"listing_id"`
	ViewCount int64        `json:"view_count"`
}

func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, msg, "error", err, "request_id", requestcontext.RequestID(ctx))
	} else {
		h.logger.WarnContext(ctx, msg, "error", err, "request_id", requestcontext.RequestID(ctx))
	}
	httputil.WriteError(w, err)
}

// decodeOptional decodes a JSON body when one was sent.
func decodeOptional(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	return httputil.DecodeJSON(r, v)
}
