package events

import (
	"time"

	"github.com/radieske/prediction-market-poc/pkg/amount"
)

// MarketSnapshot é a réplica de um mercado enviada para outros contextos
type MarketSnapshot struct {
	ID         string        `json:"id"`
	Question   string        `json:"question"`
	YesPool    amount.Amount `json:"yes_pool"`
	NoPool     amount.Amount `json:"no_pool"`
	Status     string        `json:"status"` // OPEN | CLOSED | RESOLVED
	Creator    string        `json:"creator"`
	Resolution *bool         `json:"resolution,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
	ExpiresAt  time.Time     `json:"expires_at"`
}

// Evento publicado no canal "market_updates" após cada mutação aceita
type MarketSynced struct {
	Market MarketSnapshot `json:"market"`
	Reason string         `json:"reason"` // created | wager | closed | resolved
	Ts     time.Time      `json:"ts"`
}
