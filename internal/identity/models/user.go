package models

import (
	"math"
	"time"

	id "reyu/pkg/domain"
	dErrors "reyu/pkg/domain-errors"
)

type KYCStatus string

const (
	KYCPending     KYCStatus = "pending"
	KYCUnderReview KYCStatus = "under_review"
	KYCApproved    KYCStatus = "approved"
	KYCRejected    KYCStatus = "rejected"
)

var AllKYCStatuses = []KYCStatus{KYCPending, KYCUnderReview, KYCApproved, KYCRejected}

func (s KYCStatus) IsValid() bool {
	switch s {
	case KYCPending, KYCUnderReview, KYCApproved, KYCRejected:
		return true
	}
	return false
}

type UserStatus string

const (
	UserActive              UserStatus = "active"
	UserSuspended           UserStatus = "suspended"
	UserPendingVerification UserStatus = "pending_verification"
)

var AllUserStatuses = []UserStatus{UserActive, UserSuspended, UserPendingVerification}

func (s UserStatus) IsValid() bool {
	switch s {
	case UserActive, UserSuspended, UserPendingVerification:
		return true
	}
	return false
}

type Role string

const (
	RoleTrader Role = "trader"
	RoleAdmin  Role = "admin"
)

// User is owned by the external identity provider; this service keeps a
// read model plus the reputation counters it computes.
type User struct {
	ID              id.UserID  `json:"id"`
	Email           string     `json:"email"`
	DisplayName     string     `json:"display_name"`
	Role            Role       `json:"role"`
	KYCStatus       KYCStatus  `json:"kyc_status"`
	UserStatus      UserStatus `json:"user_status"`
	ReputationScore float64    `json:"reputation_score"`
	CompletedDeals  int        `json:"completed_deals"`
	AverageRating   float64    `json:"average_rating"`
	TotalRatings    int        `json:"total_ratings"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// CanTrade is true iff KYC is approved and the account is active.
func CanTrade(u *User) bool {
	return u != nil && u.KYCStatus == KYCApproved && u.UserStatus == UserActive
}

// EnsureCanTrade returns not_eligible when the user may not list, bid or accept.
func EnsureCanTrade(u *User) error {
	if CanTrade(u) {
		return nil
	}
	if u == nil {
		return dErrors.New(dErrors.CodeNotEligible, "user is not eligible to trade")
	}
	if u.KYCStatus != KYCApproved {
		return dErrors.New(dErrors.CodeNotEligible, "KYC verification is not approved")
	}
	return dErrors.New(dErrors.CodeNotEligible, "account is not active")
}

func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

func NewUser(userID id.UserID, email, displayName string, role Role, now time.Time) (*User, error) {
	if email == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "email is required")
	}
	if role == "" {
		role = RoleTrader
	}
	if role != RoleTrader && role != RoleAdmin {
		return nil, dErrors.New(dErrors.CodeValidation, "unknown role")
	}
	return &User{
		ID:          userID,
		Email:       email,
		DisplayName: displayName,
		Role:        role,
		KYCStatus:   KYCPending,
		UserStatus:  UserPendingVerification,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// ApplyKYCDecision records a review outcome. An approved review activates an
// account still pending verification; a suspended account stays suspended.
func (u *User) ApplyKYCDecision(status KYCStatus, now time.Time) {
	u.KYCStatus = status
	if status == KYCApproved && u.UserStatus == UserPendingVerification {
		u.UserStatus = UserActive
	}
	u.UpdatedAt = now
}

func (u *User) ApplyStatus(status UserStatus, now time.Time) {
	u.UserStatus = status
	u.UpdatedAt = now
}

// ApplyRating folds a 1..5 score into the running average. Reputation is the
// average expressed on a 0..100 scale.
func (u *User) ApplyRating(score int, now time.Time) {
	total := u.AverageRating*float64(u.TotalRatings) + float64(score)
	u.TotalRatings++
	u.AverageRating = math.Round(total/float64(u.TotalRatings)*100) / 100
	u.ReputationScore = math.Round(u.AverageRating * 20)
	u.UpdatedAt = now
}

func (u *User) ApplyCompletedDeal(now time.Time) {
	u.CompletedDeals++
	u.UpdatedAt = now
}
