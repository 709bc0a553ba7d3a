package service

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/abelt/coinflip-services/internal/flipsvc/models"
	"github.com/abelt/coinflip-services/internal/flipsvc/store"
)

type LedgerService struct {
	balanceStore *store.BalanceStore
}

func NewLedgerService(balanceStore *store.BalanceStore) *LedgerService {
	return &LedgerService{balanceStore: balanceStore}
}

func (s *LedgerService) Balance(ctx context.Context, account string) (decimal.Decimal, error) {
	return s.balanceStore.GetBalanceByAccount(ctx, account)
}

// Charge moves amount out of an account (a Cr row). The caller is
// responsible for having checked funds first; the state machine is the
// single writer, so check-then-charge is not racy.
func (s *LedgerService) Charge(ctx context.Context, account, ttype string, amount int64, ref string) error {
	return s.balanceStore.Insert(ctx, &models.Balance{
		Account: account,
		TType:   ttype,
		Cr:      decimal.NewFromInt(amount),
		Dr:      decimal.Zero,
		TRef:    ref,
	})
}

// Pay moves amount into an account (a Dr row).
func (s *LedgerService) Pay(ctx context.Context, account, ttype string, amount int64, ref string) error {
	return s.balanceStore.Insert(ctx, &models.Balance{
		Account: account,
		TType:   ttype,
		Dr:      decimal.NewFromInt(amount),
		Cr:      decimal.Zero,
		TRef:    ref,
	})
}

// Deposit credits an account from outside the protocol (admin funding).
func (s *LedgerService) Deposit(ctx context.Context, account string, amount decimal.Decimal, ref string) error {
	return s.balanceStore.Insert(ctx, &models.Balance{
		Account: account,
		TType:   models.TTypeDeposit,
		Dr:      amount,
		Cr:      decimal.Zero,
		TRef:    ref,
	})
}
