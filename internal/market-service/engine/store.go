package engine

import (
	"context"
	"time"

	"github.com/radieske/prediction-market-poc/pkg/amount"
)

// Store executa unidades de trabalho atômicas sobre o estado dos mercados.
// Se fn retornar erro nada é persistido.
type Store interface {
	Atomic(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	GetMarket(ctx context.Context, id string) (Market, error)
}

// Tx é a visão transacional usada pelas operações do engine.
// LockMarket serializa operações concorrentes sobre o mesmo mercado.
type Tx interface {
	NextMarketSeq(ctx context.Context) (uint64, error)
	InsertMarket(ctx context.Context, m Market) error
	LockMarket(ctx context.Context, id string) (Market, error) // ErrNotFound se não existir
	UpdateMarket(ctx context.Context, m Market) error
	// AddWager soma a ao total acumulado da entrada, criando se ausente
	AddWager(ctx context.Context, key WagerKey, a amount.Amount, at time.Time) (Wager, error)
	Wagers(ctx context.Context, marketID string, side bool) ([]Wager, error)
	EnqueueTransfers(ctx context.Context, transfers []TransferIntent) error
}

// Gateway entrega intents de transferência para o serviço de ativos.
// Aceitar significa apenas que o intent foi repassado, não que foi creditado.
type Gateway interface {
	Submit(ctx context.Context, t TransferIntent) error
}
