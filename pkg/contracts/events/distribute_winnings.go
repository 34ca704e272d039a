package events

import (
	"time"

	"github.com/radieske/prediction-market-poc/pkg/amount"
)

// Evento publicado no tópico "market_payouts" para cada vencedor de um mercado resolvido.
// TransferID identifica o pagamento de forma única e é usado como external_ref no crédito da carteira.
type DistributeWinnings struct {
	TransferID string        `json:"transfer_id"`
	MarketID   string        `json:"market_id"`
	Owner      string        `json:"owner"`
	Amount     amount.Amount `json:"amount"`
	Ts         time.Time     `json:"ts"`
}
