package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/prediction-market-poc/pkg/amount"
)

// Engine implementa as operações do mercado (create, place, close, resolve)
// sobre um Store transacional. Cada operação é atômica: erro de domínio aborta sem escrita.
type Engine struct {
	store Store
	admin string
	now   func() time.Time
	log   *zap.Logger
}

type Option func(*Engine)

// WithAdmin configura o principal que pode fechar/resolver qualquer mercado
func WithAdmin(admin string) Option { return func(e *Engine) { e.admin = admin } }

// WithClock substitui a fonte de tempo (testes)
func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

func WithLogger(l *zap.Logger) Option { return func(e *Engine) { e.log = l } }

func New(store Store, opts ...Option) *Engine {
	e := &Engine{
		store: store,
		now:   time.Now,
		log:   zap.NewNop(),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Admin retorna o admin configurado (vazio se nenhum)
func (e *Engine) Admin() string { return e.admin }

// MaxDurationSeconds é a maior duração em segundos que cabe em time.Duration
const MaxDurationSeconds = uint64(math.MaxInt64 / int64(time.Second))

// DurationFromSeconds converte duration_seconds sem estourar time.Duration
func DurationFromSeconds(secs uint64) (time.Duration, error) {
	if secs > MaxDurationSeconds {
		return 0, ErrInvalidDuration
	}
	return time.Duration(secs) * time.Second, nil
}

// Create registra um novo mercado Open com pools zerados e retorna o mercado criado
func (e *Engine) Create(ctx context.Context, caller, question string, duration time.Duration) (Market, error) {
	if caller == "" {
		return Market{}, ErrUnauthorized
	}
	if duration < 0 {
		return Market{}, ErrInvalidDuration
	}

	var created Market
	err := e.store.Atomic(ctx, func(ctx context.Context, tx Tx) error {
		seq, err := tx.NextMarketSeq(ctx)
		if err != nil {
			return fmt.Errorf("next market seq: %w", err)
		}
		now := e.now().UTC()
		m := Market{
			ID:        MarketID(seq),
			Question:  question,
			Status:    StatusOpen,
			Creator:   caller,
			CreatedAt: now,
			ExpiresAt: now.Add(duration),
		}
		if err := tx.InsertMarket(ctx, m); err != nil {
			return fmt.Errorf("insert market: %w", err)
		}
		created = m
		return nil
	})
	if err != nil {
		return Market{}, err
	}

	e.log.Info("market created",
		zap.String("market_id", created.ID),
		zap.String("creator", caller),
		zap.Time("expires_at", created.ExpiresAt),
	)
	return created, nil
}

// MarketID formata o identificador a partir do contador do registro
func MarketID(seq uint64) string {
	return fmt.Sprintf("mkt-%d", seq)
}

// Place registra uma aposta de owner no lado side: soma no pool e acumula no ledger
func (e *Engine) Place(ctx context.Context, marketID, owner string, side bool, a amount.Amount) (Market, Wager, error) {
	if a.IsZero() {
		return Market{}, Wager{}, ErrInvalidAmount
	}
	if owner == "" {
		return Market{}, Wager{}, ErrUnauthorized
	}

	var (
		market Market
		wager  Wager
	)
	err := e.store.Atomic(ctx, func(ctx context.Context, tx Tx) error {
		m, err := tx.LockMarket(ctx, marketID)
		if err != nil {
			return err
		}
		if m.Status != StatusOpen {
			return ErrMarketNotOpen
		}
		now := e.now().UTC()
		if m.Expired(now) {
			return ErrMarketExpired
		}

		m.addToPool(side, a)
		if err := tx.UpdateMarket(ctx, m); err != nil {
			return fmt.Errorf("update market: %w", err)
		}
		w, err := tx.AddWager(ctx, WagerKey{MarketID: marketID, Owner: owner, Side: side}, a, now)
		if err != nil {
			return fmt.Errorf("add wager: %w", err)
		}
		market, wager = m, w
		return nil
	})
	if err != nil {
		return Market{}, Wager{}, err
	}

	e.log.Debug("wager placed",
		zap.String("market_id", marketID),
		zap.String("owner", owner),
		zap.Bool("side", side),
		zap.Stringer("amount", a),
		zap.Stringer("cumulative", wager.Amount),
	)
	return market, wager, nil
}

// Close encerra a aceitação de apostas (Open -> Closed). Só criador ou admin.
func (e *Engine) Close(ctx context.Context, marketID, caller string) (Market, error) {
	var closed Market
	err := e.store.Atomic(ctx, func(ctx context.Context, tx Tx) error {
		m, err := tx.LockMarket(ctx, marketID)
		if err != nil {
			return err
		}
		if !CanManage(m, caller, e.admin) {
			return ErrUnauthorized
		}
		if err := m.Status.checkClose(); err != nil {
			return err
		}
		m.Status = StatusClosed
		if err := tx.UpdateMarket(ctx, m); err != nil {
			return fmt.Errorf("update market: %w", err)
		}
		closed = m
		return nil
	})
	if err != nil {
		return Market{}, err
	}
	e.log.Info("market closed", zap.String("market_id", marketID), zap.String("caller", caller))
	return closed, nil
}

// Resolve fixa o resultado (Closed -> Resolved) e enfileira um intent de pagamento por vencedor,
// tudo na mesma transação. Sem apostas no lado vencedor o mercado resolve sem pagamentos.
func (e *Engine) Resolve(ctx context.Context, marketID, caller string, outcome bool) (Settlement, error) {
	var settlement Settlement
	err := e.store.Atomic(ctx, func(ctx context.Context, tx Tx) error {
		m, err := tx.LockMarket(ctx, marketID)
		if err != nil {
			return err
		}
		if !CanManage(m, caller, e.admin) {
			return ErrUnauthorized
		}
		if err := m.Status.checkResolve(); err != nil {
			return err
		}

		var winners []Wager
		if !m.Pool(outcome).IsZero() {
			if winners, err = tx.Wagers(ctx, marketID, outcome); err != nil {
				return fmt.Errorf("load wagers: %w", err)
			}
		}

		m.Status = StatusResolved
		m.Resolution = &outcome
		s := Settle(m, outcome, winners)

		if err := tx.UpdateMarket(ctx, m); err != nil {
			return fmt.Errorf("update market: %w", err)
		}
		if len(s.Transfers) > 0 {
			if err := tx.EnqueueTransfers(ctx, s.Transfers); err != nil {
				return fmt.Errorf("enqueue transfers: %w", err)
			}
		}
		settlement = s
		return nil
	})
	if err != nil {
		return Settlement{}, err
	}

	e.log.Info("market resolved",
		zap.String("market_id", marketID),
		zap.Bool("outcome", outcome),
		zap.Stringer("total_pool", settlement.TotalPool),
		zap.Int("payouts", len(settlement.Transfers)),
		zap.Stringer("dust", settlement.Dust),
	)
	return settlement, nil
}

// Market lê o estado atual de um mercado sem travar
func (e *Engine) Market(ctx context.Context, marketID string) (Market, error) {
	m, err := e.store.GetMarket(ctx, marketID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return Market{}, fmt.Errorf("get market: %w", err)
	}
	return m, err
}
