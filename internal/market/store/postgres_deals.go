package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"reyu/internal/market/models"
	id "reyu/pkg/domain"
	txcontext "reyu/pkg/platform/tx"
)

type DealPostgres struct {
	db *sql.DB
}

func NewDealPostgres(db *sql.DB) *DealPostgres {
	return &DealPostgres{db: db}
}

const dealColumns = `id, listing_id, diamond_id, bid_id, buyer_id, seller_id, final_amount, currency,
	status, payment_status, payment_ref,
	shipping_carrier, shipping_tracking, shipping_estimated_at, shipped_at, delivered_at,
	dispute_raised_by, dispute_reason, dispute_description, dispute_status, dispute_resolution,
	dispute_resolved_by, dispute_raised_at, dispute_resolved_at,
	version, created_at, updated_at, completed_at`

// dealRow flattens the optional shipping and dispute blocks into nullable
// columns.
type dealRow struct {
	carrier, tracking                   sql.NullString
	estimated, shipped, delivered       sql.NullTime
	raisedBy, reason, description       sql.NullString
	disputeStatus, resolution, resolver sql.NullString
	raisedAt, resolvedAt, completedAt   sql.NullTime
}

func flattenDeal(d *models.Deal) dealRow {
	var r dealRow
	if sh := d.Shipping; sh != nil {
		r.carrier = nullString(sh.Carrier)
		r.tracking = nullString(sh.TrackingNumber)
		r.estimated = nullTime(sh.EstimatedDelivery)
		r.shipped = sql.NullTime{Time: sh.ShippedAt, Valid: !sh.ShippedAt.IsZero()}
		r.delivered = nullTime(sh.DeliveredAt)
	}
	if dis := d.Dispute; dis != nil {
		r.raisedBy = nullString(string(dis.RaisedBy))
		r.reason = nullString(dis.Reason)
		r.description = nullString(dis.Description)
		r.disputeStatus = nullString(string(dis.Status))
		r.resolution = nullString(dis.Resolution)
		if dis.ResolvedBy != nil {
			r.resolver = nullString(dis.ResolvedBy.String())
		}
		r.raisedAt = sql.NullTime{Time: dis.RaisedAt, Valid: true}
		r.resolvedAt = nullTime(dis.ResolvedAt)
	}
	r.completedAt = nullTime(d.CompletedAt)
	return r
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func (s *DealPostgres) Create(ctx context.Context, d *models.Deal) error {
	r := flattenDeal(d)
	_, err := txcontext.Exec(ctx, s.db).ExecContext(ctx, `
		INSERT INTO deals (`+dealColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16,
			$17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28)`,
		d.ID.String(), d.ListingID.String(), d.DiamondID.String(), d.BidID.String(),
		d.BuyerID.String(), d.SellerID.String(), d.FinalAmount, d.Currency,
		d.Status, d.PaymentStatus, d.PaymentRef,
		r.carrier, r.tracking, r.estimated, r.shipped, r.delivered,
		r.raisedBy, r.reason, r.description, r.disputeStatus, r.resolution,
		r.resolver, r.raisedAt, r.resolvedAt,
		d.Version, d.CreatedAt, d.UpdatedAt, r.completedAt,
	)
	if err != nil {
		return mapInsertErr(err, "deal")
	}
	return nil
}

func (s *DealPostgres) FindByID(ctx context.Context, dealID id.DealID) (*models.Deal, error) {
	row := txcontext.Exec(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+dealColumns+` FROM deals WHERE id = $1`, dealID.String())
	return scanDeal(row)
}

func (s *DealPostgres) ListByUser(ctx context.Context, user id.UserID) ([]*models.Deal, error) {
	return s.query(ctx, `SELECT `+dealColumns+` FROM deals
		WHERE buyer_id = $1 OR seller_id = $1 ORDER BY created_at DESC`, user.String())
}

func (s *DealPostgres) ListAwaitingPayment(ctx context.Context, cutoff time.Time) ([]*models.Deal, error) {
	return s.query(ctx, `SELECT `+dealColumns+` FROM deals
		WHERE status IN ($1, $2) AND created_at < $3 ORDER BY created_at`,
		models.DealCreated, models.DealPaymentPending, cutoff)
}

func (s *DealPostgres) ListByStatus(ctx context.Context, status models.DealStatus) ([]*models.Deal, error) {
	return s.query(ctx, `SELECT `+dealColumns+` FROM deals
		WHERE status = $1 ORDER BY updated_at`, status)
}

func (s *DealPostgres) Stats(ctx context.Context) (models.DealStats, error) {
	stats := models.NewDealStats()
	rows, err := txcontext.Exec(ctx, s.db).QueryContext(ctx, `
		SELECT status, currency, COUNT(*), COALESCE(SUM(final_amount), 0)
		FROM deals GROUP BY status, currency`)
	if err != nil {
		return stats, fmt.Errorf("deal stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			status, currency string
			n                int
			volume           decimal.Decimal
		)
		if err := rows.Scan(&status, &currency, &n, &volume); err != nil {
			return stats, fmt.Errorf("scan deal stats: %w", err)
		}
		stats.AddCount(models.DealStatus(status), n)
		if models.DealStatus(status) == models.DealCompleted {
			stats.AddVolume(models.Currency(currency), volume)
		}
	}
	return stats, rows.Err()
}

// Update writes d back only if the row is still at fromStatus/fromVersion.
func (s *DealPostgres) Update(ctx context.Context, d *models.Deal, fromStatus models.DealStatus, fromVersion int) error {
	r := flattenDeal(d)
	res, err := txcontext.Exec(ctx, s.db).ExecContext(ctx, `
		UPDATE deals SET status = $4, payment_status = $5, payment_ref = $6,
			shipping_carrier = $7, shipping_tracking = $8, shipping_estimated_at = $9,
			shipped_at = $10, delivered_at = $11,
			dispute_raised_by = $12, dispute_reason = $13, dispute_description = $14,
			dispute_status = $15, dispute_resolution = $16, dispute_resolved_by = $17,
			dispute_raised_at = $18, dispute_resolved_at = $19,
			version = $20, updated_at = $21, completed_at = $22
		WHERE id = $1 AND status = $2 AND version = $3`,
		d.ID.String(), fromStatus, fromVersion,
		d.Status, d.PaymentStatus, d.PaymentRef,
		r.carrier, r.tracking, r.estimated, r.shipped, r.delivered,
		r.raisedBy, r.reason, r.description, r.disputeStatus, r.resolution, r.resolver,
		r.raisedAt, r.resolvedAt,
		d.Version, d.UpdatedAt, r.completedAt,
	)
	return casResult(res, err, "deal")
}

// AppendTimeline numbers the event after the deal's current last entry. The
// caller holds the diamond lock, so concurrent appends for a deal cannot
// interleave; the unique (deal_id, sequence) index backs that up.
func (s *DealPostgres) AppendTimeline(ctx context.Context, e models.TimelineEvent) (models.TimelineEvent, error) {
	err := txcontext.Exec(ctx, s.db).QueryRowContext(ctx, `
		INSERT INTO deal_timeline (id, deal_id, sequence, event, status, description, actor_id, occurred_at)
		SELECT $1, $2, COALESCE(MAX(sequence), 0) + 1, $3, $4, $5, $6, $7
		FROM deal_timeline WHERE deal_id = $2
		RETURNING sequence`,
		e.ID.String(), e.DealID.String(), e.Event, e.Status, e.Description, e.ActorID.String(), e.Timestamp,
	).Scan(&e.Sequence)
	if err != nil {
		return models.TimelineEvent{}, mapInsertErr(err, "timeline event")
	}
	return e, nil
}

func (s *DealPostgres) Timeline(ctx context.Context, dealID id.DealID) ([]models.TimelineEvent, error) {
	if _, err := s.FindByID(ctx, dealID); err != nil {
		return nil, err
	}
	rows, err := txcontext.Exec(ctx, s.db).QueryContext(ctx, `
		SELECT id, deal_id, sequence, event, status, description, actor_id, occurred_at
		FROM deal_timeline WHERE deal_id = $1 ORDER BY sequence`, dealID.String())
	if err != nil {
		return nil, fmt.Errorf("list timeline: %w", err)
	}
	defer rows.Close()

	out := make([]models.TimelineEvent, 0)
	for rows.Next() {
		var (
			e                        models.TimelineEvent
			rawID, rawDeal, rawActor string
		)
		if err := rows.Scan(&rawID, &rawDeal, &e.Sequence, &e.Event, &e.Status, &e.Description,
			&rawActor, &e.Timestamp); err != nil {
			return nil, mapScanErr(err, "timeline event")
		}
		ids, err := parseUUIDs(&rawID, &rawDeal, &rawActor)
		if err != nil {
			return nil, err
		}
		e.ID, e.DealID, e.ActorID = id.TimelineID(ids[0]), id.DealID(ids[1]), id.UserID(ids[2])
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *DealPostgres) query(ctx context.Context, query string, args ...any) ([]*models.Deal, error) {
	rows, err := txcontext.Exec(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list deals: %w", err)
	}
	defer rows.Close()

	out := make([]*models.Deal, 0)
	for rows.Next() {
		d, err := scanDeal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func scanDeal(row scanner) (*models.Deal, error) {
	var (
		d                                     models.Deal
		r                                     dealRow
		rawID, rawListing, rawDiamond, rawBid string
		rawBuyer, rawSeller                   string
	)
	err := row.Scan(&rawID, &rawListing, &rawDiamond, &rawBid, &rawBuyer, &rawSeller,
		&d.FinalAmount, &d.Currency, &d.Status, &d.PaymentStatus, &d.PaymentRef,
		&r.carrier, &r.tracking, &r.estimated, &r.shipped, &r.delivered,
		&r.raisedBy, &r.reason, &r.description, &r.disputeStatus, &r.resolution,
		&r.resolver, &r.raisedAt, &r.resolvedAt,
		&d.Version, &d.CreatedAt, &d.UpdatedAt, &r.completedAt)
	if err != nil {
		return nil, mapScanErr(err, "deal")
	}
	ids, err := parseUUIDs(&rawID, &rawListing, &rawDiamond, &rawBid, &rawBuyer, &rawSeller)
	if err != nil {
		return nil, err
	}
	d.ID, d.ListingID, d.DiamondID = id.DealID(ids[0]), id.ListingID(ids[1]), id.DiamondID(ids[2])
	d.BidID, d.BuyerID, d.SellerID = id.BidID(ids[3]), id.UserID(ids[4]), id.UserID(ids[5])

	if r.carrier.Valid {
		d.Shipping = &models.ShippingInfo{
			Carrier:           r.carrier.String,
			TrackingNumber:    r.tracking.String,
			EstimatedDelivery: timePtr(r.estimated),
			ShippedAt:         r.shipped.Time,
			DeliveredAt:       timePtr(r.delivered),
		}
	}
	if r.raisedBy.Valid {
		d.Dispute = &models.DisputeInfo{
			RaisedBy:    models.Party(r.raisedBy.String),
			Reason:      r.reason.String,
			Description: r.description.String,
			Status:      models.DisputeStatus(r.disputeStatus.String),
			Resolution:  r.resolution.String,
			RaisedAt:    r.raisedAt.Time,
			ResolvedAt:  timePtr(r.resolvedAt),
		}
		if r.resolver.Valid {
			u, err := uuid.Parse(r.resolver.String)
			if err != nil {
				return nil, fmt.Errorf("parse resolver id: %w", err)
			}
			resolver := id.UserID(u)
			d.Dispute.ResolvedBy = &resolver
		}
	}
	d.CompletedAt = timePtr(r.completedAt)
	return &d, nil
}

