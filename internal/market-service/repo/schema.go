package repo

import (
	"context"
	"database/sql"
	"fmt"
)

// schema cria as tabelas do serviço de mercados (idempotente)
const schema = `
CREATE TABLE IF NOT EXISTS market_registry (
	id      SMALLINT PRIMARY KEY,
	counter BIGINT   NOT NULL
);
INSERT INTO market_registry (id, counter) VALUES (1, 0) ON CONFLICT (id) DO NOTHING;

CREATE TABLE IF NOT EXISTS markets (
	id         TEXT          PRIMARY KEY,
	question   TEXT          NOT NULL,
	yes_pool   NUMERIC(39,0) NOT NULL DEFAULT 0 CHECK (yes_pool >= 0),
	no_pool    NUMERIC(39,0) NOT NULL DEFAULT 0 CHECK (no_pool >= 0),
	status     TEXT          NOT NULL,
	creator    TEXT          NOT NULL,
	resolution BOOLEAN,
	created_at TIMESTAMPTZ   NOT NULL,
	expires_at TIMESTAMPTZ   NOT NULL,
	updated_at TIMESTAMPTZ   NOT NULL DEFAULT NOW(),
	CHECK (expires_at >= created_at),
	CHECK ((resolution IS NOT NULL) = (status = 'RESOLVED'))
);

CREATE TABLE IF NOT EXISTS wagers (
	market_id TEXT          NOT NULL REFERENCES markets(id),
	owner     TEXT          NOT NULL,
	side      BOOLEAN       NOT NULL,
	amount    NUMERIC(39,0) NOT NULL CHECK (amount > 0),
	last_at   TIMESTAMPTZ   NOT NULL,
	PRIMARY KEY (market_id, owner, side)
);

CREATE TABLE IF NOT EXISTS transfer_outbox (
	id            TEXT          PRIMARY KEY,
	market_id     TEXT          NOT NULL REFERENCES markets(id),
	recipient     TEXT          NOT NULL,
	amount        NUMERIC(39,0) NOT NULL,
	status        TEXT          NOT NULL DEFAULT 'PENDING',
	created_at    TIMESTAMPTZ   NOT NULL DEFAULT NOW(),
	dispatched_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS transfer_outbox_pending ON transfer_outbox (created_at) WHERE status = 'PENDING';
`

// Migrate aplica o schema no banco
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate markets schema: %w", err)
	}
	return nil
}
