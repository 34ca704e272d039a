package repo

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"github.com/radieske/prediction-market-poc/pkg/amount"
)

// Postgres implementa operações de carteira em banco.
// Saldos são NUMERIC(39,0) em attos.
type Postgres struct{ db *sql.DB }

func NewPostgres(db *sql.DB) *Postgres { return &Postgres{db: db} }

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrNotFound          = errors.New("not found")
)

// Ping valida a conexão (healthz)
func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

// GetOrCreateWallet retorna o walletId e saldo de um dono, criando a carteira se não existir
func (p *Postgres) GetOrCreateWallet(ctx context.Context, owner string) (walletID string, balance amount.Amount, err error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return "", amount.Zero, err
	}
	defer tx.Rollback()

	id, bal, err := lockOrCreate(ctx, tx, owner)
	if err != nil {
		return "", amount.Zero, err
	}
	if err = tx.Commit(); err != nil {
		return "", amount.Zero, err
	}
	return id, bal, nil
}

// lockOrCreate trava a carteira do dono (FOR UPDATE), criando com saldo zero se ausente
func lockOrCreate(ctx context.Context, tx *sql.Tx, owner string) (string, amount.Amount, error) {
	var (
		id  string
		bal amount.Amount
	)
	err := tx.QueryRowContext(ctx, `SELECT id, balance FROM wallets WHERE owner=$1 FOR UPDATE`, owner).Scan(&id, &bal)
	if errors.Is(err, sql.ErrNoRows) {
		id = uuid.New().String()
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO wallets(id, owner, balance, version) VALUES($1,$2,0,1)`,
			id, owner); err != nil {
			return "", amount.Zero, err
		}
		return id, amount.Zero, nil
	}
	if err != nil {
		return "", amount.Zero, err
	}
	return id, bal, nil
}

// Deposit incrementa o saldo da carteira e registra a operação no ledger
func (p *Postgres) Deposit(ctx context.Context, owner string, a amount.Amount, externalRef string) (walletID string, newBalance amount.Amount, err error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return "", amount.Zero, err
	}
	defer tx.Rollback()

	id, bal, err := lockOrCreate(ctx, tx, owner)
	if err != nil {
		return "", amount.Zero, err
	}
	newBalance = bal.SaturatingAdd(a)

	if err = addBalance(ctx, tx, id, newBalance); err != nil {
		return "", amount.Zero, err
	}
	if _, err = tx.ExecContext(ctx, `INSERT INTO wallet_ledger(wallet_id, operation_type, amount, description) VALUES($1,'CREDIT',$2,$3)`,
		id, a, "deposit:"+externalRef); err != nil {
		return "", amount.Zero, err
	}

	if err = tx.Commit(); err != nil {
		return "", amount.Zero, err
	}
	return id, newBalance, nil
}

func addBalance(ctx context.Context, tx *sql.Tx, walletID string, balance amount.Amount) error {
	_, err := tx.ExecContext(ctx, `UPDATE wallets SET balance = $1, version = version + 1 WHERE id=$2`, balance, walletID)
	return err
}

// Reserve cria uma reserva PENDING e debita saldo (bloqueio).
// Idempotente por (wallet_id, external_ref).
func (p *Postgres) Reserve(ctx context.Context, owner string, a amount.Amount, externalRef string) (reservationID string, err error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	var (
		walletID string
		balance  amount.Amount
	)
	if err = tx.QueryRowContext(ctx, `SELECT id, balance FROM wallets WHERE owner=$1 FOR UPDATE`, owner).Scan(&walletID, &balance); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", err
	}

	var exists string
	err = tx.QueryRowContext(ctx, `SELECT id FROM wallet_reservations WHERE wallet_id=$1 AND external_ref=$2`, walletID, externalRef).Scan(&exists)
	if err == nil {
		return exists, nil // já existe
	} else if !errors.Is(err, sql.ErrNoRows) {
		return "", err
	}

	if balance.Cmp(a) < 0 {
		return "", ErrInsufficientFunds
	}
	if err = addBalance(ctx, tx, walletID, balance.SaturatingSub(a)); err != nil {
		return "", err
	}

	reservationID = uuid.New().String()
	if _, err = tx.ExecContext(ctx, `INSERT INTO wallet_reservations(id, wallet_id, external_ref, amount, status) VALUES($1,$2,$3,$4,'PENDING')`,
		reservationID, walletID, externalRef, a); err != nil {
		return "", err
	}
	if _, err = tx.ExecContext(ctx, `INSERT INTO wallet_ledger(wallet_id, operation_type, amount, description)
		VALUES($1,'RESERVE',$2,$3)`,
		walletID, a, "reserve:"+externalRef); err != nil {
		return "", err
	}

	if err = tx.Commit(); err != nil {
		return "", err
	}
	return reservationID, nil
}

type reservation struct {
	id       string
	walletID string
	amount   amount.Amount
	status   string
}

func lockReservation(ctx context.Context, tx *sql.Tx, owner, externalRef string) (reservation, error) {
	var r reservation
	err := tx.QueryRowContext(ctx, `
		SELECT wr.id, wr.wallet_id, wr.amount, wr.status
		FROM wallet_reservations wr
		JOIN wallets w ON w.id = wr.wallet_id
		WHERE w.owner=$1 AND wr.external_ref=$2
		FOR UPDATE`, owner, externalRef).Scan(&r.id, &r.walletID, &r.amount, &r.status)
	if errors.Is(err, sql.ErrNoRows) {
		return r, ErrNotFound
	}
	return r, err
}

// Commit efetiva uma reserva (COMMITTED) e registra o débito no ledger.
// Idempotente: reserva já tratada não faz nada.
func (p *Postgres) Commit(ctx context.Context, owner, externalRef string) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	r, err := lockReservation(ctx, tx, owner, externalRef)
	if err != nil {
		return err
	}
	if r.status != "PENDING" {
		return nil
	}

	if _, err = tx.ExecContext(ctx, `UPDATE wallet_reservations SET status='COMMITTED' WHERE id=$1`, r.id); err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, `INSERT INTO wallet_ledger(wallet_id, operation_type, amount, description)
		VALUES($1,'DEBIT',$2,$3)`, r.walletID, r.amount, "commit:"+externalRef); err != nil {
		return err
	}
	return tx.Commit()
}

// Refund desfaz uma reserva PENDING devolvendo o saldo.
// Idempotente: reserva já tratada não faz nada.
func (p *Postgres) Refund(ctx context.Context, owner, externalRef string) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	r, err := lockReservation(ctx, tx, owner, externalRef)
	if err != nil {
		return err
	}
	if r.status != "PENDING" {
		return nil
	}

	if _, err = tx.ExecContext(ctx, `UPDATE wallets SET balance = balance + $1, version = version + 1 WHERE id=$2`, r.amount, r.walletID); err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, `UPDATE wallet_reservations SET status='REFUNDED' WHERE id=$1`, r.id); err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, `INSERT INTO wallet_ledger(wallet_id, operation_type, amount, description)
		VALUES($1,'REFUND',$2,$3)`, r.walletID, r.amount, "refund:"+externalRef); err != nil {
		return err
	}
	return tx.Commit()
}

// Credit credita um prêmio uma única vez por external_ref.
// Retorna credited=false quando o external_ref já foi processado.
func (p *Postgres) Credit(ctx context.Context, owner string, a amount.Amount, externalRef string) (newBalance amount.Amount, credited bool, err error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return amount.Zero, false, err
	}
	defer tx.Rollback()

	id, bal, err := lockOrCreate(ctx, tx, owner)
	if err != nil {
		return amount.Zero, false, err
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO wallet_credits(external_ref, wallet_id, amount)
		VALUES($1,$2,$3)
		ON CONFLICT (external_ref) DO NOTHING`, externalRef, id, a)
	if err != nil {
		return amount.Zero, false, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return bal, false, tx.Commit()
	}

	newBalance = bal.SaturatingAdd(a)
	if err = addBalance(ctx, tx, id, newBalance); err != nil {
		return amount.Zero, false, err
	}
	if _, err = tx.ExecContext(ctx, `INSERT INTO wallet_ledger(wallet_id, operation_type, amount, description)
		VALUES($1,'PAYOUT',$2,$3)`, id, a, "payout:"+externalRef); err != nil {
		return amount.Zero, false, err
	}

	if err = tx.Commit(); err != nil {
		return amount.Zero, false, err
	}
	return newBalance, true, nil
}
