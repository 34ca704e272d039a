package engine

import (
	"time"

	"github.com/radieske/prediction-market-poc/pkg/amount"
)

// WagerKey identifica uma entrada do ledger: no máximo uma por (mercado, dono, lado)
type WagerKey struct {
	MarketID string
	Owner    string
	Side     bool
}

// Wager guarda o total acumulado apostado por um dono em um lado de um mercado.
// Apostas repetidas somam na mesma entrada, nunca sobrescrevem.
type Wager struct {
	WagerKey
	Amount        amount.Amount
	LastTimestamp time.Time
}

// Accumulate retorna a entrada com a nova aposta somada
func (w Wager) Accumulate(a amount.Amount, at time.Time) Wager {
	w.Amount = w.Amount.SaturatingAdd(a)
	w.LastTimestamp = at
	return w
}
