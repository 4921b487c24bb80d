package service

import (
	"context"

	"github.com/jackc/pgx/v5"
	pkgerrors "github.com/pkg/errors"

	"github.com/xentristech/tradingpro-sub001/internal/models"
	"github.com/xentristech/tradingpro-sub001/pkg/db"

	"github.com/bytedance/sonic"
)

const journalSchema = `
CREATE TABLE IF NOT EXISTS journal_entries (
    id      BIGSERIAL PRIMARY KEY,
    kind    TEXT        NOT NULL,
    at      TIMESTAMPTZ NOT NULL,
    symbol  TEXT        NOT NULL DEFAULT '',
    payload JSONB       NOT NULL
);
CREATE INDEX IF NOT EXISTS journal_entries_at_idx ON journal_entries (at);
CREATE INDEX IF NOT EXISTS journal_entries_symbol_idx ON journal_entries (symbol, at);
`

// PGStore — журнал в postgres, только INSERT.
type PGStore struct {
	txm db.TxManager
}

func NewPGStore(ctx context.Context, txm db.TxManager) (*PGStore, error) {
	s := &PGStore{txm: txm}
	err := txm.RunMaster(ctx, func(ctxTx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctxTx, journalSchema)
		return err
	})
	if err != nil {
		return nil, pkgerrors.Wrap(err, "journal ensure schema")
	}
	return s, nil
}

func (s *PGStore) Append(ctx context.Context, e models.JournalEntry) error {
	payload, err := sonic.Marshal(e)
	if err != nil {
		return pkgerrors.Wrap(err, "journal marshal")
	}
	err = s.txm.RunMaster(ctx, func(ctxTx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctxTx,
			`INSERT INTO journal_entries (kind, at, symbol, payload) VALUES ($1, $2, $3, $4)`,
			string(e.Kind), e.At, e.Symbol, payload,
		)
		return err
	})
	if err != nil {
		return pkgerrors.Wrap(err, "journal insert")
	}
	return nil
}

// Close не трогает пул: им владеет модуль postgres.
func (s *PGStore) Close() error { return nil }
