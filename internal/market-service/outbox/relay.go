package outbox

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/prediction-market-poc/internal/market-service/engine"
)

// Source é o outbox transacional onde o Resolve grava os intents de pagamento
type Source interface {
	PendingTransfers(ctx context.Context, limit int) ([]engine.TransferIntent, error)
	MarkDispatched(ctx context.Context, ids []string) error
}

// Relay repassa os intents pendentes do outbox para o gateway.
// Entrega pelo menos uma vez: se MarkDispatched falhar o intent é reenviado,
// e o destino deduplica pelo TransferIntent.ID.
type Relay struct {
	Log      *zap.Logger
	Source   Source
	Gateway  engine.Gateway
	Interval time.Duration
	Batch    int

	OnDispatched func()       // métricas
	OnError      func(string) // métricas por fase

	wake chan struct{}
}

func NewRelay(log *zap.Logger, src Source, gw engine.Gateway, interval time.Duration) *Relay {
	if interval <= 0 {
		interval = time.Second
	}
	return &Relay{
		Log:      log,
		Source:   src,
		Gateway:  gw,
		Interval: interval,
		Batch:    100,
		wake:     make(chan struct{}, 1),
	}
}

// Notify acorda o relay antes do próximo tick (chamado após um Resolve)
func (r *Relay) Notify() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// Run executa o loop até o contexto ser cancelado
func (r *Relay) Run(ctx context.Context) error {
	t := time.NewTicker(r.Interval)
	defer t.Stop()
	for {
		if _, err := r.Flush(ctx); err != nil && ctx.Err() == nil {
			r.Log.Warn("outbox flush failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		case <-r.wake:
		}
	}
}

// Flush repassa lotes até esvaziar o outbox ou o gateway falhar; retorna quantos foram entregues
func (r *Relay) Flush(ctx context.Context) (int, error) {
	total := 0
	for {
		batch, err := r.Source.PendingTransfers(ctx, r.Batch)
		if err != nil {
			r.fail("load")
			return total, err
		}
		if len(batch) == 0 {
			return total, nil
		}

		sent := make([]string, 0, len(batch))
		var submitErr error
		for _, t := range batch {
			if err := r.Gateway.Submit(ctx, t); err != nil {
				r.fail("submit")
				r.Log.Warn("transfer submit failed",
					zap.String("transfer_id", t.ID),
					zap.String("market_id", t.MarketID),
					zap.Error(err),
				)
				submitErr = err
				break
			}
			sent = append(sent, t.ID)
			if r.OnDispatched != nil {
				r.OnDispatched()
			}
		}

		if len(sent) > 0 {
			if err := r.Source.MarkDispatched(ctx, sent); err != nil {
				r.fail("mark")
				return total, err
			}
			total += len(sent)
		}
		if submitErr != nil {
			return total, submitErr
		}
		if len(batch) < r.Batch {
			return total, nil
		}
	}
}

func (r *Relay) fail(phase string) {
	if r.OnError != nil {
		r.OnError(phase)
	}
}
