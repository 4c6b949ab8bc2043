package invoice

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	StatusIssued        = "ISSUED"
	StatusPartiallyPaid = "PARTIALLY_PAID"
	StatusPaid          = "PAID"
	StatusCancelled     = "CANCELLED"
)

// Invoice maps to the invoices table. The ledger engine is the only writer
// of PaidAmount, BalanceAmount and the promotion to PARTIALLY_PAID / PAID.
type Invoice struct {
	ID            uuid.UUID       `db:"id" json:"id"`
	PatientID     uuid.UUID       `db:"patient_id" json:"patient_id"`
	TotalAmount   decimal.Decimal `db:"total_amount" json:"total_amount"`
	PaidAmount    decimal.Decimal `db:"paid_amount" json:"paid_amount"`
	BalanceAmount decimal.Decimal `db:"balance_amount" json:"balance_amount"`
	Currency      string          `db:"currency" json:"currency"`
	Status        string          `db:"status" json:"status"`
	Note          *string         `db:"note" json:"note,omitempty"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at" json:"updated_at"`
}

// Payable reports whether the invoice can still receive payments.
func (inv *Invoice) Payable() bool {
	return inv.Status != StatusPaid && inv.Status != StatusCancelled
}

// ApplyPayment is the single mutation allowed on an invoice's monetary
// fields. Deposit allocation and credit note application both go through
// it. Status is a projection of the balance: PAID exactly when the balance
// reaches zero, PARTIALLY_PAID while some amount has been paid.
func (inv *Invoice) ApplyPayment(amount decimal.Decimal) error {
	if !inv.Payable() {
		return fmt.Errorf("invoice %s is %s and cannot receive payments", inv.ID, inv.Status)
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("payment amount must be positive, got %s", amount)
	}
	if amount.GreaterThan(inv.BalanceAmount) {
		return fmt.Errorf("payment %s exceeds outstanding balance %s", amount, inv.BalanceAmount)
	}
	inv.PaidAmount = inv.PaidAmount.Add(amount)
	inv.BalanceAmount = inv.TotalAmount.Sub(inv.PaidAmount)
	if inv.BalanceAmount.IsZero() {
		inv.Status = StatusPaid
	} else if inv.PaidAmount.GreaterThan(decimal.Zero) {
		inv.Status = StatusPartiallyPaid
	}
	return nil
}
