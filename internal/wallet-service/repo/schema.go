package repo

import (
	"context"
	"database/sql"
	"fmt"
)

const schema = `
CREATE TABLE IF NOT EXISTS wallets (
	id      TEXT          PRIMARY KEY,
	owner   TEXT          NOT NULL UNIQUE,
	balance NUMERIC(39,0) NOT NULL DEFAULT 0 CHECK (balance >= 0),
	version BIGINT        NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS wallet_reservations (
	id           TEXT          PRIMARY KEY,
	wallet_id    TEXT          NOT NULL REFERENCES wallets(id),
	external_ref TEXT          NOT NULL,
	amount       NUMERIC(39,0) NOT NULL,
	status       TEXT          NOT NULL,
	created_at   TIMESTAMPTZ   NOT NULL DEFAULT NOW(),
	UNIQUE (wallet_id, external_ref)
);

CREATE TABLE IF NOT EXISTS wallet_credits (
	external_ref TEXT          PRIMARY KEY,
	wallet_id    TEXT          NOT NULL REFERENCES wallets(id),
	amount       NUMERIC(39,0) NOT NULL,
	created_at   TIMESTAMPTZ   NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS wallet_ledger (
	id             BIGSERIAL     PRIMARY KEY,
	wallet_id      TEXT          NOT NULL REFERENCES wallets(id),
	operation_type TEXT          NOT NULL,
	amount         NUMERIC(39,0) NOT NULL,
	description    TEXT,
	created_at     TIMESTAMPTZ   NOT NULL DEFAULT NOW()
);
`

// Migrate aplica o schema da carteira
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate wallet schema: %w", err)
	}
	return nil
}
