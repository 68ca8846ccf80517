package models

import (
	"strings"
	"time"

	id "reyu/pkg/domain"
	dErrors "reyu/pkg/domain-errors"
)

// Rating is one party's 1..5 score of the counterparty on a completed deal.
type Rating struct {
	ID          id.RatingID `json:"id"`
	DealID      id.DealID   `json:"deal_id"`
	RaterID     id.UserID   `json:"rater_id"`
	RatedUserID id.UserID   `json:"rated_user_id"`
	Score       int         `json:"score"`
	Feedback    string      `json:"feedback,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
}

func NewRating(deal *Deal, rater id.UserID, score int, feedback string, now time.Time) (*Rating, error) {
	var rated id.UserID
	switch deal.PartyOf(rater) {
	case PartyBuyer:
		rated = deal.SellerID
	case PartySeller:
		rated = deal.BuyerID
	default:
		return nil, dErrors.New(dErrors.CodeUnauthorized, "only deal parties can rate")
	}
	if deal.Status != DealCompleted {
		return nil, dErrors.New(dErrors.CodeInvalidState, "only completed deals can be rated")
	}
	if score < 1 || score > 5 {
		return nil, dErrors.New(dErrors.CodeValidation, "score must be between 1 and 5")
	}
	feedback = strings.TrimSpace(feedback)
	if len(feedback) > maxNoteLength {
		return nil, dErrors.New(dErrors.CodeValidation, "feedback is too long")
	}
	return &Rating{
		ID:          id.NewRatingID(),
		DealID:      deal.ID,
		RaterID:     rater,
		RatedUserID: rated,
		Score:       score,
		Feedback:    feedback,
		CreatedAt:   now,
	}, nil
}
