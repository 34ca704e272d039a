package dto

import (
	"time"

	"github.com/radieske/prediction-market-poc/pkg/amount"
	"github.com/radieske/prediction-market-poc/pkg/contracts/events"
)

type CreateMarketRequest struct {
	Question        string `json:"question"`
	DurationSeconds uint64 `json:"duration_seconds"`
}

type CreateMarketResponse struct {
	MarketID  string    `json:"market_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

type PlaceBetRequest struct {
	Side   *bool         `json:"side"` // true = sim, false = não
	Amount amount.Amount `json:"amount"`
}

type PlaceBetResponse struct {
	MarketID         string        `json:"market_id"`
	Side             bool          `json:"side"`
	CumulativeAmount amount.Amount `json:"cumulative_amount"`
	YesPool          amount.Amount `json:"yes_pool"`
	NoPool           amount.Amount `json:"no_pool"`
}

type ResolveRequest struct {
	Outcome *bool `json:"outcome"`
}

type Payout struct {
	TransferID string        `json:"transfer_id"`
	Owner      string        `json:"owner"`
	Amount     amount.Amount `json:"amount"`
}

type ResolveResponse struct {
	Market    Market        `json:"market"`
	Payouts   []Payout      `json:"payouts"`
	Disbursed amount.Amount `json:"disbursed"`
	Dust      amount.Amount `json:"dust"`
}

// Market é a visão pública de um mercado
type Market struct {
	ID         string        `json:"market_id"`
	Question   string        `json:"question"`
	YesPool    amount.Amount `json:"yes_pool"`
	NoPool     amount.Amount `json:"no_pool"`
	TotalPool  amount.Amount `json:"total_pool"`
	Status     string        `json:"status"`
	Creator    string        `json:"creator"`
	Resolution *bool         `json:"resolution,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
	ExpiresAt  time.Time     `json:"expires_at"`
}

func FromSnapshot(s events.MarketSnapshot) Market {
	return Market{
		ID:         s.ID,
		Question:   s.Question,
		YesPool:    s.YesPool,
		NoPool:     s.NoPool,
		TotalPool:  s.YesPool.SaturatingAdd(s.NoPool),
		Status:     s.Status,
		Creator:    s.Creator,
		Resolution: s.Resolution,
		CreatedAt:  s.CreatedAt,
		ExpiresAt:  s.ExpiresAt,
	}
}

type ErrorResponse struct {
	Error string `json:"error"`
}
