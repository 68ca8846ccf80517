package service

import (
	"context"
	"errors"

	"reyu/internal/market/models"
	id "reyu/pkg/domain"
	dErrors "reyu/pkg/domain-errors"
	"reyu/pkg/platform/sentinel"
	"reyu/pkg/requestcontext"
)

// RateDeal records one party's score of the counterparty on a completed deal
// and folds it into the counterparty's reputation.
func (s *Service) RateDeal(ctx context.Context, rater id.UserID, dealID id.DealID, score int, feedback string) (*models.Rating, error) {
	deal, err := s.deals.FindByID(ctx, dealID)
	if err != nil {
		return nil, translate(err, "deal")
	}
	rating, err := models.NewRating(deal, rater, score, feedback, requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}
	if err := s.ratings.Create(ctx, rating); err != nil {
		if errors.Is(err, sentinel.ErrDuplicate) {
			return nil, dErrors.New(dErrors.CodeConflict, "deal already rated")
		}
		return nil, translate(err, "rating")
	}
	if err := s.users.RecordRating(ctx, rating.RatedUserID, score); err != nil {
		s.logger.WarnContext(ctx, "failed to update reputation",
			"deal_id", dealID.String(),
			"user_id", rating.RatedUserID.String(),
			"error", err,
		)
	}
	return rating, nil
}

func (s *Service) ListRatings(ctx context.Context, actor models.Actor, dealID id.DealID) ([]*models.Rating, error) {
	if _, err := s.GetDeal(ctx, actor, dealID); err != nil {
		return nil, err
	}
	out, err := s.ratings.ListByDeal(ctx, dealID)
	if err != nil {
		return nil, translate(err, "rating")
	}
	return out, nil
}
