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

type ListingPostgres struct {
	db *sql.DB
}

func NewListingPostgres(db *sql.DB) *ListingPostgres {
	return &ListingPostgres{db: db}
}

const listingColumns = `id, diamond_id, seller_id, asking_price, currency, description, status,
	view_count, bid_count, expires_at, created_at, updated_at`

// Create relies on listings_open_diamond_idx for the one-open-listing rule.
func (s *ListingPostgres) Create(ctx context.Context, l *models.Listing) error {
	_, err := txcontext.Exec(ctx, s.db).ExecContext(ctx, `
		INSERT INTO listings (`+listingColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		l.ID.String(), l.DiamondID.String(), l.SellerID.String(), l.AskingPrice, l.Currency,
		l.Description, l.Status, l.ViewCount, l.BidCount, l.ExpiresAt, l.CreatedAt, l.UpdatedAt,
	)
	if err != nil {
		return mapInsertErr(err, "listing")
	}
	return nil
}

func (s *ListingPostgres) FindByID(ctx context.Context, listingID id.ListingID) (*models.Listing, error) {
	row := txcontext.Exec(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+listingColumns+` FROM listings WHERE id = $1`, listingID.String())
	return scanListing(row)
}

func (s *ListingPostgres) ListActive(ctx context.Context) ([]*models.Listing, error) {
	rows, err := txcontext.Exec(ctx, s.db).QueryContext(ctx,
		`SELECT `+listingColumns+` FROM listings WHERE status = $1 ORDER BY created_at DESC`,
		models.ListingActive)
	if err != nil {
		return nil, fmt.Errorf("list listings: %w", err)
	}
	defer rows.Close()

	out := make([]*models.Listing, 0)
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *ListingPostgres) UpdateStatus(ctx context.Context, listingID id.ListingID, from, to models.ListingStatus, now time.Time) error {
	res, err := txcontext.Exec(ctx, s.db).ExecContext(ctx,
		`UPDATE listings SET status = $3, updated_at = $4 WHERE id = $1 AND status = $2`,
		listingID.String(), from, to, now)
	return casResult(res, err, "listing")
}

func (s *ListingPostgres) IncrementBidCount(ctx context.Context, listingID id.ListingID, now time.Time) error {
	res, err := txcontext.Exec(ctx, s.db).ExecContext(ctx,
		`UPDATE listings SET bid_count = bid_count + 1, updated_at = $2 WHERE id = $1`,
		listingID.String(), now)
	return casResult(res, err, "listing bid count")
}

func scanListing(row scanner) (*models.Listing, error) {
	var (
		l                         models.Listing
		rawID, rawDiamond, rawSel string
		expiresAt                 sql.NullTime
	)
	err := row.Scan(&rawID, &rawDiamond, &rawSel, &l.AskingPrice, &l.Currency, &l.Description,
		&l.Status, &l.ViewCount, &l.BidCount, &expiresAt, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return nil, mapScanErr(err, "listing")
	}
	ids, err := parseUUIDs(&rawID, &rawDiamond, &rawSel)
	if err != nil {
		return nil, err
	}
	l.ID, l.DiamondID, l.SellerID = id.ListingID(ids[0]), id.DiamondID(ids[1]), id.UserID(ids[2])
	if expiresAt.Valid {
		exp := expiresAt.Time
		l.ExpiresAt = &exp
	}
	return &l, nil
}
