package store

import (
	"context"
	"database/sql"
	"fmt"

	"reyu/internal/market/models"
	id "reyu/pkg/domain"
	txcontext "reyu/pkg/platform/tx"
)

type SettlementPostgres struct {
	db *sql.DB
}

func NewSettlementPostgres(db *sql.DB) *SettlementPostgres {
	return &SettlementPostgres{db: db}
}

const settlementColumns = `deal_id, payment_ref, action, attempts, last_error, created_at, settled_at`

func (s *SettlementPostgres) Create(ctx context.Context, st *models.Settlement) error {
	_, err := txcontext.Exec(ctx, s.db).ExecContext(ctx, `
		INSERT INTO settlements (`+settlementColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		st.DealID.String(), st.PaymentRef, string(st.Action), st.Attempts, st.LastError,
		st.CreatedAt, nullTime(st.SettledAt),
	)
	if err != nil {
		return mapInsertErr(err, "settlement")
	}
	return nil
}

func (s *SettlementPostgres) FindByDeal(ctx context.Context, dealID id.DealID) (*models.Settlement, error) {
	row := txcontext.Exec(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+settlementColumns+` FROM settlements WHERE deal_id = $1`, dealID.String())
	return scanSettlement(row)
}

func (s *SettlementPostgres) ListPending(ctx context.Context) ([]*models.Settlement, error) {
	rows, err := txcontext.Exec(ctx, s.db).QueryContext(ctx,
		`SELECT `+settlementColumns+` FROM settlements WHERE settled_at IS NULL ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list settlements: %w", err)
	}
	defer rows.Close()

	out := make([]*models.Settlement, 0)
	for rows.Next() {
		st, err := scanSettlement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// Save writes back attempt bookkeeping. Settled rows are left alone.
func (s *SettlementPostgres) Save(ctx context.Context, st *models.Settlement) error {
	_, err := txcontext.Exec(ctx, s.db).ExecContext(ctx, `
		UPDATE settlements SET attempts = $2, last_error = $3, settled_at = $4
		WHERE deal_id = $1 AND settled_at IS NULL`,
		st.DealID.String(), st.Attempts, st.LastError, nullTime(st.SettledAt),
	)
	if err != nil {
		return fmt.Errorf("update settlement: %w", err)
	}
	return nil
}

func scanSettlement(row scanner) (*models.Settlement, error) {
	var (
		st        models.Settlement
		rawDeal   string
		action    string
		settledAt sql.NullTime
	)
	if err := row.Scan(&rawDeal, &st.PaymentRef, &action, &st.Attempts, &st.LastError, &st.CreatedAt, &settledAt); err != nil {
		return nil, mapScanErr(err, "settlement")
	}
	ids, err := parseUUIDs(&rawDeal)
	if err != nil {
		return nil, err
	}
	st.DealID = id.DealID(ids[0])
	st.Action = models.SettlementAction(action)
	st.SettledAt = timePtr(settledAt)
	return &st, nil
}
