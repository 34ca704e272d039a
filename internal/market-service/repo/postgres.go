package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/radieske/prediction-market-poc/internal/market-service/engine"
	"github.com/radieske/prediction-market-poc/pkg/amount"
)

// Postgres implementa engine.Store em banco Postgres.
// Cada Atomic é uma transação; LockMarket usa FOR UPDATE para serializar operações por mercado.
type Postgres struct{ db *sql.DB }

// NewPostgres retorna uma instância do repositório de mercados
func NewPostgres(db *sql.DB) *Postgres { return &Postgres{db: db} }

// Atomic abre a transação, executa fn e faz commit; qualquer erro desfaz tudo
func (p *Postgres) Atomic(ctx context.Context, fn func(ctx context.Context, tx engine.Tx) error) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(ctx, &pgTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

const marketColumns = `id, question, yes_pool, no_pool, status, creator, resolution, created_at, expires_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMarket(row rowScanner) (engine.Market, error) {
	var (
		m      engine.Market
		status string
		res    sql.NullBool
	)
	if err := row.Scan(&m.ID, &m.Question, &m.YesPool, &m.NoPool, &status, &m.Creator, &res, &m.CreatedAt, &m.ExpiresAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return engine.Market{}, engine.ErrNotFound
		}
		return engine.Market{}, err
	}
	st, err := engine.ParseStatus(status)
	if err != nil {
		return engine.Market{}, err
	}
	m.Status = st
	if res.Valid {
		r := res.Bool
		m.Resolution = &r
	}
	m.CreatedAt = m.CreatedAt.UTC()
	m.ExpiresAt = m.ExpiresAt.UTC()
	return m, nil
}

// GetMarket lê um mercado sem lock
func (p *Postgres) GetMarket(ctx context.Context, id string) (engine.Market, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+marketColumns+` FROM markets WHERE id=$1`, id)
	return scanMarket(row)
}

// PendingTransfers retorna intents do outbox ainda não repassados ao gateway
func (p *Postgres) PendingTransfers(ctx context.Context, limit int) ([]engine.TransferIntent, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, market_id, recipient, amount
		FROM transfer_outbox
		WHERE status='PENDING'
		ORDER BY created_at, id
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []engine.TransferIntent
	for rows.Next() {
		var t engine.TransferIntent
		if err := rows.Scan(&t.ID, &t.MarketID, &t.Recipient, &t.Amount); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// MarkDispatched marca os intents como repassados (idempotente)
func (p *Postgres) MarkDispatched(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := p.db.ExecContext(ctx, `
		UPDATE transfer_outbox SET status='DISPATCHED', dispatched_at=NOW()
		WHERE id = ANY($1) AND status='PENDING'`, pq.Array(ids))
	return err
}

// Ping valida a conexão (healthz)
func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

type pgTx struct{ tx *sql.Tx }

// NextMarketSeq incrementa o contador do registro dentro da mesma transação
func (t *pgTx) NextMarketSeq(ctx context.Context) (uint64, error) {
	var n int64
	err := t.tx.QueryRowContext(ctx, `UPDATE market_registry SET counter = counter + 1 WHERE id = 1 RETURNING counter`).Scan(&n)
	if err != nil {
		return 0, err
	}
	return uint64(n), nil
}

func (t *pgTx) InsertMarket(ctx context.Context, m engine.Market) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO markets (`+marketColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		m.ID, m.Question, m.YesPool, m.NoPool, m.Status.String(), m.Creator, m.Resolution, m.CreatedAt, m.ExpiresAt,
	)
	return err
}

func (t *pgTx) LockMarket(ctx context.Context, id string) (engine.Market, error) {
	row := t.tx.QueryRowContext(ctx, `SELECT `+marketColumns+` FROM markets WHERE id=$1 FOR UPDATE`, id)
	return scanMarket(row)
}

func (t *pgTx) UpdateMarket(ctx context.Context, m engine.Market) error {
	_, err := t.tx.ExecContext(ctx, `
		UPDATE markets
		SET yes_pool=$2, no_pool=$3, status=$4, resolution=$5, updated_at=NOW()
		WHERE id=$1`,
		m.ID, m.YesPool, m.NoPool, m.Status.String(), m.Resolution,
	)
	return err
}

// AddWager acumula na entrada (market_id, owner, side); nunca sobrescreve o total
func (t *pgTx) AddWager(ctx context.Context, key engine.WagerKey, a amount.Amount, at time.Time) (engine.Wager, error) {
	w := engine.Wager{WagerKey: key}
	err := t.tx.QueryRowContext(ctx, `
		INSERT INTO wagers (market_id, owner, side, amount, last_at)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (market_id, owner, side) DO UPDATE SET
		  amount  = LEAST(wagers.amount + EXCLUDED.amount, $6::numeric),
		  last_at = EXCLUDED.last_at
		RETURNING amount, last_at`,
		key.MarketID, key.Owner, key.Side, a, at, amount.Max,
	).Scan(&w.Amount, &w.LastTimestamp)
	if err != nil {
		return engine.Wager{}, err
	}
	w.LastTimestamp = w.LastTimestamp.UTC()
	return w, nil
}

func (t *pgTx) Wagers(ctx context.Context, marketID string, side bool) ([]engine.Wager, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT owner, amount, last_at
		FROM wagers
		WHERE market_id=$1 AND side=$2
		ORDER BY owner`, marketID, side)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []engine.Wager
	for rows.Next() {
		w := engine.Wager{WagerKey: engine.WagerKey{MarketID: marketID, Side: side}}
		if err := rows.Scan(&w.Owner, &w.Amount, &w.LastTimestamp); err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func (t *pgTx) EnqueueTransfers(ctx context.Context, transfers []engine.TransferIntent) error {
	stmt, err := t.tx.PrepareContext(ctx, `
		INSERT INTO transfer_outbox (id, market_id, recipient, amount, status)
		VALUES ($1,$2,$3,$4,'PENDING')`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, tr := range transfers {
		if _, err := stmt.ExecContext(ctx, tr.ID, tr.MarketID, tr.Recipient, tr.Amount); err != nil {
			return fmt.Errorf("outbox %s: %w", tr.ID, err)
		}
	}
	return nil
}
