package adapters

import (
	"context"

	"github.com/shopspring/decimal"

	"reyu/internal/admin/types"
	marketModels "reyu/internal/market/models"
)

// MarketDealStore is the slice of the market deal store the admin reads.
type MarketDealStore interface {
	ListByStatus(ctx context.Context, status marketModels.DealStatus) ([]*marketModels.Deal, error)
	Stats(ctx context.Context) (marketModels.DealStats, error)
}

type MarketListingStore interface {
	ListActive(ctx context.Context) ([]*marketModels.Listing, error)
}

type MarketSettlementStore interface {
	ListPending(ctx context.Context) ([]*marketModels.Settlement, error)
}

// DealStoreAdapter adapts the market stores to admin's DealStore interface.
type DealStoreAdapter struct {
	deals       MarketDealStore
	listings    MarketListingStore
	settlements MarketSettlementStore
}

func NewDealStoreAdapter(deals MarketDealStore, listings MarketListingStore, settlements MarketSettlementStore) *DealStoreAdapter {
	return &DealStoreAdapter{deals: deals, listings: listings, settlements: settlements}
}

func (a *DealStoreAdapter) ListDeals(ctx context.Context, status string) ([]*types.AdminDeal, error) {
	deals, err := a.deals.ListByStatus(ctx, marketModels.DealStatus(status))
	if err != nil {
		return nil, err
	}
	out := make([]*types.AdminDeal, 0, len(deals))
	for _, d := range deals {
		out = append(out, mapDeal(d))
	}
	return out, nil
}

func (a *DealStoreAdapter) DealCounts(ctx context.Context) (types.DealCounts, error) {
	stats, err := a.deals.Stats(ctx)
	if err != nil {
		return types.DealCounts{}, err
	}
	counts := types.DealCounts{
		Total:           stats.Total,
		ByStatus:        make(map[string]int, len(stats.ByStatus)),
		CompletedVolume: make(map[string]decimal.Decimal, len(stats.CompletedVolume)),
	}
	for st, n := range stats.ByStatus {
		counts.ByStatus[string(st)] = n
	}
	for c, v := range stats.CompletedVolume {
		counts.CompletedVolume[string(c)] = v
	}
	return counts, nil
}

func (a *DealStoreAdapter) ActiveListings(ctx context.Context) (int, error) {
	listings, err := a.listings.ListActive(ctx)
	if err != nil {
		return 0, err
	}
	return len(listings), nil
}

func (a *DealStoreAdapter) PendingSettlements(ctx context.Context) (int, error) {
	pending, err := a.settlements.ListPending(ctx)
	if err != nil {
		return 0, err
	}
	return len(pending), nil
}

func (a *DealStoreAdapter) ValidDealStatus(s string) bool {
	return marketModels.DealStatus(s).IsValid()
}

func mapDeal(d *marketModels.Deal) *types.AdminDeal {
	out := &types.AdminDeal{
		ID:            d.ID,
		ListingID:     d.ListingID,
		BuyerID:       d.BuyerID,
		SellerID:      d.SellerID,
		Amount:        d.FinalAmount,
		Currency:      string(d.Currency),
		Status:        string(d.Status),
		PaymentStatus: string(d.PaymentStatus),
		UpdatedAt:     d.UpdatedAt,
	}
	if d.Dispute != nil {
		out.DisputeReason = d.Dispute.Reason
	}
	return out
}
