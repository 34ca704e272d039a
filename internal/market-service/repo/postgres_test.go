package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/radieske/prediction-market-poc/internal/market-service/engine"
	"github.com/radieske/prediction-market-poc/pkg/amount"
)

// upsert que acumula: qualquer regressão para "amount = EXCLUDED.amount" deixa de casar
const accumulateUpsert = `INSERT INTO wagers \(market_id, owner, side, amount, last_at\)\s+` +
	`VALUES \(\$1,\$2,\$3,\$4,\$5\)\s+` +
	`ON CONFLICT \(market_id, owner, side\) DO UPDATE SET\s+` +
	`amount\s+= LEAST\(wagers\.amount \+ EXCLUDED\.amount, \$6::numeric\)`

func newMockStore(t *testing.T) (*Postgres, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return NewPostgres(db), mock
}

func TestPostgresAddWager_AccumulatesOnConflict(t *testing.T) {
	store, mock := newMockStore(t)
	at := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	stake := amount.FromTokens(10)
	key := engine.WagerKey{MarketID: "mkt-1", Owner: "alice", Side: true}

	mock.ExpectBegin()
	mock.ExpectQuery(accumulateUpsert).
		WithArgs("mkt-1", "alice", true, stake, at, amount.Max).
		WillReturnRows(sqlmock.NewRows([]string{"amount", "last_at"}).
			AddRow(amount.FromTokens(20).Attos(), at))
	mock.ExpectCommit()

	var got engine.Wager
	err := store.Atomic(context.Background(), func(ctx context.Context, tx engine.Tx) error {
		w, err := tx.AddWager(ctx, key, stake, at)
		got = w
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
	if !got.Amount.Equal(amount.FromTokens(20)) {
		t.Errorf("expected cumulative 20, got %s", got.Amount)
	}
	if got.WagerKey != key || !got.LastTimestamp.Equal(at) {
		t.Errorf("unexpected wager %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestPostgresAddWager_FailureRollsBack(t *testing.T) {
	store, mock := newMockStore(t)
	at := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	dbErr := errors.New("connection reset")

	mock.ExpectBegin()
	mock.ExpectQuery(accumulateUpsert).WillReturnError(dbErr)
	mock.ExpectRollback()

	err := store.Atomic(context.Background(), func(ctx context.Context, tx engine.Tx) error {
		_, err := tx.AddWager(ctx, engine.WagerKey{MarketID: "mkt-1", Owner: "bob", Side: false}, amount.FromTokens(1), at)
		return err
	})
	if !errors.Is(err, dbErr) {
		t.Errorf("expected storage error, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}
