package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/radieske/prediction-market-poc/internal/payout-worker/wallet"
	"github.com/radieske/prediction-market-poc/pkg/amount"
	"github.com/radieske/prediction-market-poc/pkg/contracts/events"
)

type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Crediter aplica o prêmio na carteira; deve ser idempotente pelo external_ref
type Crediter interface {
	Credit(ctx context.Context, owner string, a amount.Amount, externalRef string) (bool, error)
}

// Processor consome DistributeWinnings do Kafka e credita a carteira do vencedor.
// Falhas após as tentativas vão para a DLQ; o offset só é confirmado depois disso.
type Processor struct {
	Log    *zap.Logger
	Reader MessageReader
	Wallet Crediter
	DLQ    MessageWriter // sem DLQ, falhas não são confirmadas e voltam a ser processadas

	Retries   int                             // tentativas extras após a primeira falha
	Backoff   func(attempt int) time.Duration // espera antes da tentativa n (1..Retries)
	RetryWait time.Duration                   // espera antes de reprocessar uma mensagem não confirmada

	OnConsumed func()               // métricas (counter++)
	OnCredited func(duplicate bool) // métricas
	OnDLQ      func()               // métricas
	OnError    func(phase string)   // métricas por fase
}

func NewProcessor(log *zap.Logger, r MessageReader, w Crediter, dlq MessageWriter) *Processor {
	return &Processor{
		Log:       log,
		Reader:    r,
		Wallet:    w,
		DLQ:       dlq,
		Retries:   3,
		Backoff:   func(attempt int) time.Duration { return time.Duration(300*attempt) * time.Millisecond },
		RetryWait: time.Second,
	}
}

// Run inicia o loop principal; retorna quando o contexto é cancelado
func (p *Processor) Run(ctx context.Context) error {
	for {
		m, err := p.Reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.Log.Warn("kafka fetch failed", zap.Error(err))
			p.fail("read")
			if !sleep(ctx, 500*time.Millisecond) {
				return ctx.Err()
			}
			continue
		}
		p.consumed()

		// mensagem só sai da fila quando foi creditada ou registrada na DLQ
		for {
			err := p.Handle(ctx, m)
			if err == nil {
				break
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.Log.Error("payout not handled, retrying", zap.ByteString("key", m.Key), zap.Error(err))
			if !sleep(ctx, p.RetryWait) {
				return ctx.Err()
			}
		}

		if err := p.Reader.CommitMessages(ctx, m); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.Log.Warn("kafka commit failed", zap.Error(err))
			p.fail("commit")
		}
	}
}

// Handle processa uma mensagem. Retorna erro apenas quando nem o crédito nem a DLQ
// tiveram sucesso, caso em que a mensagem deve ser reprocessada.
func (p *Processor) Handle(ctx context.Context, m kafka.Message) error {
	var ev events.DistributeWinnings
	if err := json.Unmarshal(m.Value, &ev); err != nil {
		p.Log.Warn("invalid payout message", zap.Error(err))
		p.fail("decode")
		return p.deadLetter(ctx, m, err)
	}
	if ev.TransferID == "" || ev.Owner == "" || ev.Amount.IsZero() {
		err := errors.New("incomplete payout")
		p.Log.Warn("invalid payout message", zap.String("transfer_id", ev.TransferID), zap.Error(err))
		p.fail("decode")
		return p.deadLetter(ctx, m, err)
	}

	dup, err := p.credit(ctx, ev)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err() // shutdown: a mensagem volta a ser entregue
		}
		p.Log.Error("wallet credit failed",
			zap.String("transfer_id", ev.TransferID),
			zap.String("owner", ev.Owner),
			zap.Error(err),
		)
		p.fail("credit")
		return p.deadLetter(ctx, m, err)
	}

	p.Log.Info("payout credited",
		zap.String("transfer_id", ev.TransferID),
		zap.String("market_id", ev.MarketID),
		zap.String("owner", ev.Owner),
		zap.String("amount", ev.Amount.String()),
		zap.Bool("duplicate", dup),
	)
	if p.OnCredited != nil {
		p.OnCredited(dup)
	}
	return nil
}

// credit tenta a primeira vez e repete até Retries vezes; erro permanente interrompe
func (p *Processor) credit(ctx context.Context, ev events.DistributeWinnings) (bool, error) {
	dup, err := p.Wallet.Credit(ctx, ev.Owner, ev.Amount, ev.TransferID)
	for i := 1; err != nil && i <= p.Retries; i++ {
		if errors.Is(err, wallet.ErrPermanent) {
			return false, err
		}
		var wait time.Duration
		if p.Backoff != nil {
			wait = p.Backoff(i)
		}
		if !sleep(ctx, wait) {
			return false, ctx.Err()
		}
		dup, err = p.Wallet.Credit(ctx, ev.Owner, ev.Amount, ev.TransferID)
	}
	return dup, err
}

func (p *Processor) deadLetter(ctx context.Context, m kafka.Message, cause error) error {
	if p.DLQ == nil {
		// sem DLQ a mensagem não pode sair da fila: o Run reprocessa até o crédito passar
		return fmt.Errorf("no dlq configured: %w", cause)
	}
	dlq := kafka.Message{
		Key:   m.Key,
		Value: m.Value,
		Time:  time.Now(),
		Headers: []kafka.Header{
			{Key: "error", Value: []byte(cause.Error())},
		},
	}
	if err := p.DLQ.WriteMessages(ctx, dlq); err != nil {
		p.fail("dlq")
		return err
	}
	if p.OnDLQ != nil {
		p.OnDLQ()
	}
	return nil
}

func (p *Processor) consumed() {
	if p.OnConsumed != nil {
		p.OnConsumed()
	}
}

func (p *Processor) fail(phase string) {
	if p.OnError != nil {
		p.OnError(phase)
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
