package producer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/radieske/prediction-market-poc/internal/market-service/engine"
	"github.com/radieske/prediction-market-poc/pkg/contracts/events"
)

// MessageWriter é o subconjunto de *kafka.Writer usado aqui (permite fake em testes)
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// KafkaGateway entrega TransferIntents como DistributeWinnings no tópico de pagamentos.
// Aceitar significa que a mensagem foi gravada no Kafka; o crédito acontece no payout-worker.
type KafkaGateway struct {
	Writer MessageWriter
	now    func() time.Time
}

func NewKafkaGateway(w MessageWriter) *KafkaGateway {
	return &KafkaGateway{Writer: w, now: time.Now}
}

func (g *KafkaGateway) Submit(ctx context.Context, t engine.TransferIntent) error {
	e := events.DistributeWinnings{
		TransferID: t.ID,
		MarketID:   t.MarketID,
		Owner:      t.Recipient,
		Amount:     t.Amount,
		Ts:         g.now().UTC(),
	}
	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal distribute winnings: %w", err)
	}
	return g.Writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(t.MarketID),
		Value: b,
		Time:  e.Ts,
	})
}
