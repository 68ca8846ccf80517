package admin

import (
	"time"

	"github.com/shopspring/decimal"

	"reyu/internal/admin/types"
)

// UserInfoResponse is the HTTP response DTO for one user row.
type UserInfoResponse struct {
	ID             string    `json:"id"`
	Email          string    `json:"email"`
	DisplayName    string    `json:"display_name"`
	Role           string    `json:"role"`
	KYCStatus      string    `json:"kyc_status"`
	UserStatus     string    `json:"user_status"`
	CanTrade       bool      `json:"can_trade"`
	CompletedDeals int       `json:"completed_deals"`
	AverageRating  float64   `json:"average_rating"`
	CreatedAt      time.Time `json:"created_at"`
}

// UsersListResponse wraps the list of users for HTTP response.
type UsersListResponse struct {
	Users []*UserInfoResponse `json:"users"`
	Total int                 `json:"total"`
}

type DealInfoResponse struct {
	ID            string          `json:"id"`
	ListingID     string          `json:"listing_id"`
	BuyerID       string          `json:"buyer_id"`
	SellerID      string          `json:"seller_id"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	Status        string          `json:"status"`
	PaymentStatus string          `json:"payment_status"`
	DisputeReason string          `json:"dispute_reason,omitempty"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

type DealsListResponse struct {
	Status string              `json:"status"`
	Deals  []*DealInfoResponse `json:"deals"`
	Total  int                 `json:"total"`
}

type OverviewResponse struct {
	Users struct {
		Total    int            `json:"total"`
		ByKYC    map[string]int `json:"by_kyc_status"`
		ByStatus map[string]int `json:"by_user_status"`
	} `json:"users"`
	Deals struct {
		Total           int                        `json:"total"`
		ByStatus        map[string]int             `json:"by_status"`
		CompletedVolume map[string]decimal.Decimal `json:"completed_volume"`
	} `json:"deals"`
	ActiveListings     int       `json:"active_listings"`
	PendingSettlements int       `json:"pending_settlements"`
	GeneratedAt        time.Time `json:"generated_at"`
}

func NewUsersListResponse(users []*types.AdminUser) *UsersListResponse {
	out := &UsersListResponse{Users: make([]*UserInfoResponse, 0, len(users)), Total: len(users)}
	for _, u := range users {
		out.Users = append(out.Users, &UserInfoResponse{
			ID:             u.ID.String(),
			Email:          u.Email,
			DisplayName:    u.DisplayName,
			Role:           u.Role,
			KYCStatus:      u.KYCStatus,
			UserStatus:     u.UserStatus,
			CanTrade:       u.CanTrade,
			CompletedDeals: u.CompletedDeals,
			AverageRating:  u.AverageRating,
			CreatedAt:      u.CreatedAt,
		})
	}
	return out
}

func NewDealsListResponse(status string, deals []*types.AdminDeal) *DealsListResponse {
	out := &DealsListResponse{Status: status, Deals: make([]*DealInfoResponse, 0, len(deals)), Total: len(deals)}
	for _, d := range deals {
		out.Deals = append(out.Deals, &DealInfoResponse{
			ID:            d.ID.String(),
			ListingID:     d.ListingID.String(),
			BuyerID:       d.BuyerID.String(),
			SellerID:      d.SellerID.String(),
			Amount:        d.Amount,
			Currency:      d.Currency,
			Status:        d.Status,
			PaymentStatus: d.PaymentStatus,
			DisputeReason: d.DisputeReason,
			UpdatedAt:     d.UpdatedAt,
		})
	}
	return out
}

func NewOverviewResponse(o *types.Overview) *OverviewResponse {
	out := &OverviewResponse{
		ActiveListings:     o.ActiveListings,
		PendingSettlements: o.PendingSettlements,
		GeneratedAt:        o.GeneratedAt,
	}
	out.Users.Total = o.Users.Total
	out.Users.ByKYC = o.Users.ByKYC
	out.Users.ByStatus = o.Users.ByStatus
	out.Deals.Total = o.Deals.Total
	out.Deals.ByStatus = o.Deals.ByStatus
	out.Deals.CompletedVolume = o.Deals.CompletedVolume
	return out
}
