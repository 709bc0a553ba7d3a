package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/abelt/coinflip-services/internal/flipsvc/models"
)

type BalanceStore struct {
	db *pgxpool.Pool
}

func NewBalanceStore(db *pgxpool.Pool) *BalanceStore {
	return &BalanceStore{db: db}
}

func (c *BalanceStore) GetBalanceByAccount(ctx context.Context, account string) (decimal.Decimal, error) {
	var totalDr, totalCr decimal.Decimal

	err := querier(ctx, c.db).QueryRow(ctx, `
        SELECT
            COALESCE(SUM(dr), 0),
            COALESCE(SUM(cr), 0)
        FROM balances
        WHERE account = $1 AND status = 'completed'
    `, account).Scan(&totalDr, &totalCr)

	if err != nil {
		return decimal.Zero, err
	}

	balance := totalDr.Sub(totalCr)
	return balance, nil
}

// Insert writes one completed ledger row.
func (c *BalanceStore) Insert(ctx context.Context, b *models.Balance) error {
	query := `
		INSERT INTO balances (account, ttype, dr, cr, tref, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 'completed', $6, $6)
	`

	_, err := querier(ctx, c.db).Exec(ctx, query,
		b.Account,
		b.TType,
		b.Dr,
		b.Cr,
		b.TRef,
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert balance row: %w", err)
	}

	return nil
}
