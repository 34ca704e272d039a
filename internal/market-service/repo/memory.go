package repo

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/radieske/prediction-market-poc/internal/market-service/engine"
	"github.com/radieske/prediction-market-poc/pkg/amount"
)

// Memory implementa engine.Store em memória.
// Todas as transações são serializadas por um único mutex e só são aplicadas se fn não falhar.
type Memory struct {
	mu      sync.Mutex
	seq     uint64
	markets map[string]engine.Market
	wagers  map[engine.WagerKey]engine.Wager
	outbox  []outboxRow
}

type outboxRow struct {
	intent     engine.TransferIntent
	dispatched bool
}

func NewMemory() *Memory {
	return &Memory{
		markets: make(map[string]engine.Market),
		wagers:  make(map[engine.WagerKey]engine.Wager),
	}
}

// Atomic executa fn sobre uma cópia de trabalho e aplica as mudanças apenas em caso de sucesso
func (s *Memory) Atomic(ctx context.Context, fn func(ctx context.Context, tx engine.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{
		parent:  s,
		seq:     s.seq,
		markets: make(map[string]engine.Market),
		wagers:  make(map[engine.WagerKey]engine.Wager),
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}

	s.seq = tx.seq
	for id, m := range tx.markets {
		s.markets[id] = m
	}
	for k, w := range tx.wagers {
		s.wagers[k] = w
	}
	for _, t := range tx.outbox {
		s.outbox = append(s.outbox, outboxRow{intent: t})
	}
	return nil
}

func (s *Memory) GetMarket(_ context.Context, id string) (engine.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.markets[id]
	if !ok {
		return engine.Market{}, engine.ErrNotFound
	}
	return m, nil
}

// LedgerEntries retorna todas as entradas do ledger de um mercado
func (s *Memory) LedgerEntries(marketID string) []engine.Wager {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []engine.Wager
	for k, w := range s.wagers {
		if k.MarketID == marketID {
			out = append(out, w)
		}
	}
	sortWagers(out)
	return out
}

// PendingTransfers retorna até limit intents ainda não repassados ao gateway
func (s *Memory) PendingTransfers(_ context.Context, limit int) ([]engine.TransferIntent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []engine.TransferIntent
	for _, r := range s.outbox {
		if r.dispatched {
			continue
		}
		out = append(out, r.intent)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *Memory) MarkDispatched(_ context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	for i := range s.outbox {
		if _, ok := set[s.outbox[i].intent.ID]; ok {
			s.outbox[i].dispatched = true
		}
	}
	return nil
}

// memTx acumula as escritas de uma transação sobre o estado do pai
type memTx struct {
	parent  *Memory
	seq     uint64
	markets map[string]engine.Market
	wagers  map[engine.WagerKey]engine.Wager
	outbox  []engine.TransferIntent
}

func (t *memTx) NextMarketSeq(context.Context) (uint64, error) {
	t.seq++
	return t.seq, nil
}

func (t *memTx) InsertMarket(_ context.Context, m engine.Market) error {
	t.markets[m.ID] = m
	return nil
}

func (t *memTx) LockMarket(_ context.Context, id string) (engine.Market, error) {
	if m, ok := t.markets[id]; ok {
		return m, nil
	}
	m, ok := t.parent.markets[id]
	if !ok {
		return engine.Market{}, engine.ErrNotFound
	}
	return m, nil
}

func (t *memTx) UpdateMarket(_ context.Context, m engine.Market) error {
	t.markets[m.ID] = m
	return nil
}

func (t *memTx) AddWager(_ context.Context, key engine.WagerKey, a amount.Amount, at time.Time) (engine.Wager, error) {
	w, ok := t.wagers[key]
	if !ok {
		w, ok = t.parent.wagers[key]
	}
	if !ok {
		w = engine.Wager{WagerKey: key}
	}
	w = w.Accumulate(a, at)
	t.wagers[key] = w
	return w, nil
}

func (t *memTx) Wagers(_ context.Context, marketID string, side bool) ([]engine.Wager, error) {
	merged := make(map[engine.WagerKey]engine.Wager)
	for k, w := range t.parent.wagers {
		if k.MarketID == marketID && k.Side == side {
			merged[k] = w
		}
	}
	for k, w := range t.wagers {
		if k.MarketID == marketID && k.Side == side {
			merged[k] = w
		}
	}
	out := make([]engine.Wager, 0, len(merged))
	for _, w := range merged {
		out = append(out, w)
	}
	sortWagers(out)
	return out, nil
}

func (t *memTx) EnqueueTransfers(_ context.Context, transfers []engine.TransferIntent) error {
	t.outbox = append(t.outbox, transfers...)
	return nil
}

func sortWagers(ws []engine.Wager) {
	sort.Slice(ws, func(i, j int) bool {
		if ws[i].Owner != ws[j].Owner {
			return ws[i].Owner < ws[j].Owner
		}
		return !ws[i].Side && ws[j].Side
	})
}
