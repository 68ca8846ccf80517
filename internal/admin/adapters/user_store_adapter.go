package adapters

import (
	"context"

	"reyu/internal/admin/types"
	identityModels "reyu/internal/identity/models"
)

// IdentityUserStore is the directory query surface the identity stores
// implement.
type IdentityUserStore interface {
	List(ctx context.Context, f identityModels.UserFilter) ([]*identityModels.User, error)
	Stats(ctx context.Context) (identityModels.UserStats, error)
}

// UserStoreAdapter adapts an identity user store to admin's UserStore interface.
type UserStoreAdapter struct {
	store IdentityUserStore
}

func NewUserStoreAdapter(store IdentityUserStore) *UserStoreAdapter {
	return &UserStoreAdapter{store: store}
}

// ListUsers returns the users matching the given statuses. Empty values match
// everything.
func (a *UserStoreAdapter) ListUsers(ctx context.Context, kycStatus, userStatus string) ([]*types.AdminUser, error) {
	users, err := a.store.List(ctx, identityModels.UserFilter{
		KYCStatus:  identityModels.KYCStatus(kycStatus),
		UserStatus: identityModels.UserStatus(userStatus),
	})
	if err != nil {
		return nil, err
	}
	out := make([]*types.AdminUser, 0, len(users))
	for _, u := range users {
		out = append(out, mapUser(u))
	}
	return out, nil
}

func (a *UserStoreAdapter) UserCounts(ctx context.Context) (types.UserCounts, error) {
	stats, err := a.store.Stats(ctx)
	if err != nil {
		return types.UserCounts{}, err
	}
	counts := types.UserCounts{
		Total:    stats.Total,
		ByKYC:    make(map[string]int, len(stats.ByKYC)),
		ByStatus: make(map[string]int, len(stats.ByStatus)),
	}
	for k, n := range stats.ByKYC {
		counts.ByKYC[string(k)] = n
	}
	for st, n := range stats.ByStatus {
		counts.ByStatus[string(st)] = n
	}
	return counts, nil
}

// ValidKYCStatus and ValidUserStatus let the admin service check filters
// without importing identity models.
func (a *UserStoreAdapter) ValidKYCStatus(s string) bool {
	return identityModels.KYCStatus(s).IsValid()
}

func (a *UserStoreAdapter) ValidUserStatus(s string) bool {
	return identityModels.UserStatus(s).IsValid()
}

func mapUser(u *identityModels.User) *types.AdminUser {
	return &types.AdminUser{
		ID:             u.ID,
		Email:          u.Email,
		DisplayName:    u.DisplayName,
		Role:           string(u.Role),
		KYCStatus:      string(u.KYCStatus),
		UserStatus:     string(u.UserStatus),
		CanTrade:       identityModels.CanTrade(u),
		CompletedDeals: u.CompletedDeals,
		AverageRating:  u.AverageRating,
		CreatedAt:      u.CreatedAt,
	}
}
