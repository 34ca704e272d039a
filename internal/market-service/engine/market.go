package engine

import (
	"time"

	"github.com/radieske/prediction-market-poc/pkg/amount"
	"github.com/radieske/prediction-market-poc/pkg/contracts/events"
)

// Market é um mercado binário (sim/não) com dois pools de apostas
type Market struct {
	ID         string
	Question   string
	YesPool    amount.Amount
	NoPool     amount.Amount
	Status     Status
	Creator    string
	Resolution *bool // preenchido se e somente se Status == StatusResolved
	CreatedAt  time.Time
	ExpiresAt  time.Time
}

// Pool retorna o pool do lado informado (true = sim)
func (m Market) Pool(side bool) amount.Amount {
	if side {
		return m.YesPool
	}
	return m.NoPool
}

// TotalPool soma os dois pools (saturando)
func (m Market) TotalPool() amount.Amount {
	return m.YesPool.SaturatingAdd(m.NoPool)
}

// Expired indica se o prazo de apostas terminou em now
func (m Market) Expired(now time.Time) bool {
	return !now.Before(m.ExpiresAt)
}

func (m *Market) addToPool(side bool, a amount.Amount) {
	if side {
		m.YesPool = m.YesPool.SaturatingAdd(a)
	} else {
		m.NoPool = m.NoPool.SaturatingAdd(a)
	}
}

// Snapshot converte o mercado para o contrato de replicação
func (m Market) Snapshot() events.MarketSnapshot {
	var res *bool
	if m.Resolution != nil {
		r := *m.Resolution
		res = &r
	}
	return events.MarketSnapshot{
		ID:         m.ID,
		Question:   m.Question,
		YesPool:    m.YesPool,
		NoPool:     m.NoPool,
		Status:     m.Status.String(),
		Creator:    m.Creator,
		Resolution: res,
		CreatedAt:  m.CreatedAt,
		ExpiresAt:  m.ExpiresAt,
	}
}
