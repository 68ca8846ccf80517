package models

import "github.com/shopspring/decimal"

// DealStats is the admin overview of deal activity. CompletedVolume sums the
// final amounts of completed deals per currency.
type DealStats struct {
	Total           int                          `json:"total"`
	ByStatus        map[DealStatus]int           `json:"by_status"`
	CompletedVolume map[Currency]decimal.Decimal `json:"completed_volume"`
}

func NewDealStats() DealStats {
	byStatus := make(map[DealStatus]int, len(AllDealStatuses))
	for _, st := range AllDealStatuses {
		byStatus[st] = 0
	}
	return DealStats{
		ByStatus:        byStatus,
		CompletedVolume: make(map[Currency]decimal.Decimal),
	}
}

// Add counts one deal.
func (s *DealStats) Add(d *Deal) {
	s.AddCount(d.Status, 1)
	if d.Status == DealCompleted {
		s.AddVolume(d.Currency, d.FinalAmount)
	}
}

func (s *DealStats) AddCount(status DealStatus, n int) {
	s.Total += n
	s.ByStatus[status] += n
}

func (s *DealStats) AddVolume(c Currency, amount decimal.Decimal) {
	s.CompletedVolume[c] = s.CompletedVolume[c].Add(amount)
}
