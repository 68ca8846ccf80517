package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"reyu/internal/market/models"
	id "reyu/pkg/domain"
	txcontext "reyu/pkg/platform/tx"
)

type BidPostgres struct {
	db *sql.DB
}

func NewBidPostgres(db *sql.DB) *BidPostgres {
	return &BidPostgres{db: db}
}

const bidColumns = `id, listing_id, bidder_id, amount, currency, note, status, created_at, updated_at, expires_at`

func (s *BidPostgres) Create(ctx context.Context, b *models.Bid) error {
	_, err := txcontext.Exec(ctx, s.db).ExecContext(ctx, `
		INSERT INTO bids (`+bidColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		b.ID.String(), b.ListingID.String(), b.BidderID.String(), b.Amount, b.Currency, b.Note,
		b.Status, b.CreatedAt, b.UpdatedAt, b.ExpiresAt,
	)
	if err != nil {
		return mapInsertErr(err, "bid")
	}
	return nil
}

func (s *BidPostgres) FindByID(ctx context.Context, bidID id.BidID) (*models.Bid, error) {
	row := txcontext.Exec(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+bidColumns+` FROM bids WHERE id = $1`, bidID.String())
	return scanBid(row)
}

func (s *BidPostgres) ListByListing(ctx context.Context, listingID id.ListingID) ([]*models.Bid, error) {
	return s.query(ctx, `SELECT `+bidColumns+` FROM bids WHERE listing_id = $1 ORDER BY created_at`, listingID.String())
}

func (s *BidPostgres) ListByBidder(ctx context.Context, bidder id.UserID) ([]*models.Bid, error) {
	return s.query(ctx, `SELECT `+bidColumns+` FROM bids WHERE bidder_id = $1 ORDER BY created_at`, bidder.String())
}

func (s *BidPostgres) ListExpired(ctx context.Context, now time.Time) ([]*models.Bid, error) {
	return s.query(ctx, `SELECT `+bidColumns+` FROM bids WHERE status = $1 AND expires_at <= $2 ORDER BY created_at`,
		models.BidPending, now)
}

func (s *BidPostgres) UpdateStatus(ctx context.Context, bidID id.BidID, from, to models.BidStatus, now time.Time) error {
	res, err := txcontext.Exec(ctx, s.db).ExecContext(ctx,
		`UPDATE bids SET status = $3, updated_at = $4 WHERE id = $1 AND status = $2`,
		bidID.String(), from, to, now)
	return casResult(res, err, "bid")
}

func (s *BidPostgres) query(ctx context.Context, query string, args ...any) ([]*models.Bid, error) {
	rows, err := txcontext.Exec(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list bids: %w", err)
	}
	defer rows.Close()

	out := make([]*models.Bid, 0)
	for rows.Next() {
		b, err := scanBid(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func scanBid(row scanner) (*models.Bid, error) {
	var (
		b                              models.Bid
		rawID, rawListing, rawBidderID string
	)
	err := row.Scan(&rawID, &rawListing, &rawBidderID, &b.Amount, &b.Currency, &b.Note,
		&b.Status, &b.CreatedAt, &b.UpdatedAt, &b.ExpiresAt)
	if err != nil {
		return nil, mapScanErr(err, "bid")
	}
	ids, err := parseUUIDs(&rawID, &rawListing, &rawBidderID)
	if err != nil {
		return nil, err
	}
	b.ID, b.ListingID, b.BidderID = id.BidID(ids[0]), id.ListingID(ids[1]), id.UserID(ids[2])
	return &b, nil
}
