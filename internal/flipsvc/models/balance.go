package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Balance is one row of the double-entry escrow ledger. Dr credits an
// account, Cr debits it; an account balance is sum(dr) - sum(cr) over
// completed rows. TRef ties ledger movements to a match or fee.
type Balance struct {
	ID        int64           `json:"id"`
	Account   string          `json:"account"`
	TType     string          `json:"ttype"`
	Dr        decimal.Decimal `json:"dr"`
	Cr        decimal.Decimal `json:"cr"`
	TRef      string          `json:"tref"`
	Status    string          `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Ledger transaction types.
const (
	TTypeDeposit = "deposit"
	TTypeEscrow  = "escrow"
	TTypePayout  = "payout"
	TTypeRefund  = "refund"
	TTypeGas     = "gas"
)
