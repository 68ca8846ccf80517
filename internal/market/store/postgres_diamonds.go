package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"reyu/internal/market/models"
	id "reyu/pkg/domain"
	txcontext "reyu/pkg/platform/tx"
)

type DiamondPostgres struct {
	db *sql.DB
}

func NewDiamondPostgres(db *sql.DB) *DiamondPostgres {
	return &DiamondPostgres{db: db}
}

const diamondColumns = `id, owner_id, shape, carat_weight, color, clarity, cut, polish, symmetry,
	fluorescence, measurements, lab, certificate_number, image_urls, status, created_at, updated_at`

func (s *DiamondPostgres) Create(ctx context.Context, d *models.Diamond) error {
	urls := d.ImageURLs
	if urls == nil {
		urls = []string{}
	}
	_, err := txcontext.Exec(ctx, s.db).ExecContext(ctx, `
		INSERT INTO diamonds (`+diamondColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		d.ID.String(), d.OwnerID.String(), d.Shape, d.CaratWeight, d.Color, d.Clarity, d.Cut,
		d.Polish, d.Symmetry, d.Fluorescence, d.Measurements, d.Lab, d.CertificateNumber,
		pq.Array(urls), d.Status, d.CreatedAt, d.UpdatedAt,
	)
	if err != nil {
		return mapInsertErr(err, "diamond")
	}
	return nil
}

func (s *DiamondPostgres) FindByID(ctx context.Context, diamondID id.DiamondID) (*models.Diamond, error) {
	row := txcontext.Exec(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+diamondColumns+` FROM diamonds WHERE id = $1`, diamondID.String())
	return scanDiamond(row)
}

func (s *DiamondPostgres) ListByOwner(ctx context.Context, owner id.UserID) ([]*models.Diamond, error) {
	rows, err := txcontext.Exec(ctx, s.db).QueryContext(ctx,
		`SELECT `+diamondColumns+` FROM diamonds WHERE owner_id = $1 ORDER BY created_at`, owner.String())
	if err != nil {
		return nil, fmt.Errorf("list diamonds: %w", err)
	}
	defer rows.Close()

	out := make([]*models.Diamond, 0)
	for rows.Next() {
		d, err := scanDiamond(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *DiamondPostgres) UpdateStatus(ctx context.Context, diamondID id.DiamondID, from, to models.DiamondStatus, now time.Time) error {
	res, err := txcontext.Exec(ctx, s.db).ExecContext(ctx,
		`UPDATE diamonds SET status = $3, updated_at = $4 WHERE id = $1 AND status = $2`,
		diamondID.String(), from, to, now)
	return casResult(res, err, "diamond")
}

func scanDiamond(row scanner) (*models.Diamond, error) {
	var (
		d              models.Diamond
		rawID, rawUser string
		urls           []string
	)
	err := row.Scan(&rawID, &rawUser, &d.Shape, &d.CaratWeight, &d.Color, &d.Clarity, &d.Cut,
		&d.Polish, &d.Symmetry, &d.Fluorescence, &d.Measurements, &d.Lab, &d.CertificateNumber,
		pq.Array(&urls), &d.Status, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, mapScanErr(err, "diamond")
	}
	ids, err := parseUUIDs(&rawID, &rawUser)
	if err != nil {
		return nil, err
	}
	d.ID, d.OwnerID = id.DiamondID(ids[0]), id.UserID(ids[1])
	if len(urls) > 0 {
		d.ImageURLs = urls
	}
	return &d, nil
}
