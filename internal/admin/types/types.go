// Package types holds the admin module's read models. Adapters map the
// identity and market records onto them so the admin service never imports
// another module's models.
package types

import (
	"time"

	"github.com/shopspring/decimal"

	id "reyu/pkg/domain"
)

type AdminUser struct {
	ID             id.UserID
	Email          string
	DisplayName    string
	Role           string
	KYCStatus      string
	UserStatus     string
	CanTrade       bool
	CompletedDeals int
	AverageRating  float64
	CreatedAt      time.Time
}

type AdminDeal struct {
	ID            id.DealID
	ListingID     id.ListingID
	BuyerID       id.UserID
	SellerID      id.UserID
	Amount        decimal.Decimal
	Currency      string
	Status        string
	PaymentStatus string
	DisputeReason string
	UpdatedAt     time.Time
}

// UserCounts tallies users per KYC and account status.
type UserCounts struct {
	Total    int
	ByKYC    map[string]int
	ByStatus map[string]int
}

// DealCounts tallies deals per status plus completed volume per currency.
type DealCounts struct {
	Total           int
	ByStatus        map[string]int
	CompletedVolume map[string]decimal.Decimal
}

// Overview is the platform dashboard.
type Overview struct {
	Users              UserCounts
	Deals              DealCounts
	ActiveListings     int
	PendingSettlements int
	GeneratedAt        time.Time
}
