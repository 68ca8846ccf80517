package store

import (
	"context"
	"database/sql"
	"fmt"

	"reyu/internal/market/models"
	id "reyu/pkg/domain"
	txcontext "reyu/pkg/platform/tx"
)

type RatingPostgres struct {
	db *sql.DB
}

func NewRatingPostgres(db *sql.DB) *RatingPostgres {
	return &RatingPostgres{db: db}
}

func (s *RatingPostgres) Create(ctx context.Context, r *models.Rating) error {
	_, err := txcontext.Exec(ctx, s.db).ExecContext(ctx, `
		INSERT INTO ratings (id, deal_id, rater_id, rated_user_id, score, feedback, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		r.ID.String(), r.DealID.String(), r.RaterID.String(), r.RatedUserID.String(),
		r.Score, r.Feedback, r.CreatedAt,
	)
	if err != nil {
		return mapInsertErr(err, "rating")
	}
	return nil
}

func (s *RatingPostgres) ListByDeal(ctx context.Context, dealID id.DealID) ([]*models.Rating, error) {
	rows, err := txcontext.Exec(ctx, s.db).QueryContext(ctx, `
		SELECT id, deal_id, rater_id, rated_user_id, score, feedback, created_at
		FROM ratings WHERE deal_id = $1 ORDER BY created_at`, dealID.String())
	if err != nil {
		return nil, fmt.Errorf("list ratings: %w", err)
	}
	defer rows.Close()

	out := make([]*models.Rating, 0, 2)
	for rows.Next() {
		var (
			r                                  models.Rating
			rawID, rawDeal, rawRater, rawRated string
		)
		if err := rows.Scan(&rawID, &rawDeal, &rawRater, &rawRated, &r.Score, &r.Feedback, &r.CreatedAt); err != nil {
			return nil, mapScanErr(err, "rating")
		}
		ids, err := parseUUIDs(&rawID, &rawDeal, &rawRater, &rawRated)
		if err != nil {
			return nil, err
		}
		r.ID, r.DealID = id.RatingID(ids[0]), id.DealID(ids[1])
		r.RaterID, r.RatedUserID = id.UserID(ids[2]), id.UserID(ids[3])
		out = append(out, &r)
	}
	return out, rows.Err()
}
