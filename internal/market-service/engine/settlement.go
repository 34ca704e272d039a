package engine

import (
	"github.com/radieske/prediction-market-poc/pkg/amount"
)

// TransferIntent é uma instrução de pagamento para um vencedor, entregue ao gateway externo.
// ID é único por (mercado, dono) e serve de chave de idempotência na entrega.
type TransferIntent struct {
	ID        string
	MarketID  string
	Recipient string
	Amount    amount.Amount
}

// Settlement é o resultado da resolução de um mercado
type Settlement struct {
	Market     Market
	Outcome    bool
	TotalPool  amount.Amount
	WinnerPool amount.Amount
	Transfers  []TransferIntent
	Disbursed  amount.Amount
	Dust       amount.Amount // resto do arredondamento, fica retido no mercado
}

// TransferID monta o identificador do pagamento de owner no mercado marketID
func TransferID(marketID, owner string) string {
	return marketID + ":" + owner
}

// Settle calcula os pagamentos proporcionais de um mercado resolvido com outcome.
// Cada vencedor recebe floor(aposta * total / pool_vencedor). Entradas do lado perdedor
// ou de outros mercados são ignoradas. Sem apostas no lado vencedor não há pagamentos.
func Settle(m Market, outcome bool, wagers []Wager) Settlement {
	s := Settlement{
		Market:     m,
		Outcome:    outcome,
		TotalPool:  m.TotalPool(),
		WinnerPool: m.Pool(outcome),
	}
	if s.WinnerPool.IsZero() || s.TotalPool.IsZero() {
		s.Dust = s.TotalPool
		return s
	}

	for _, w := range wagers {
		if w.MarketID != m.ID || w.Side != outcome || w.Amount.IsZero() {
			continue
		}
		payout := w.Amount.MulDiv(s.TotalPool, s.WinnerPool)
		if payout.IsZero() {
			continue
		}
		s.Transfers = append(s.Transfers, TransferIntent{
			ID:        TransferID(m.ID, w.Owner),
			MarketID:  m.ID,
			Recipient: w.Owner,
			Amount:    payout,
		})
		s.Disbursed = s.Disbursed.SaturatingAdd(payout)
	}
	s.Dust = s.TotalPool.SaturatingSub(s.Disbursed)
	return s
}
