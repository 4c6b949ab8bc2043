package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Deposit statuses. The status is a projection of the balance, recomputed
// on every write: ACTIVE while funds remain, UTILIZED or REFUNDED when the
// balance reached zero, named after the kind of entry that zeroed it.
const (
	DepositActive   = "ACTIVE"
	DepositUtilized = "UTILIZED"
	DepositRefunded = "REFUNDED"
)

// Ledger entry types.
const (
	EntryDeposit     = "DEPOSIT"
	EntryUtilization = "UTILIZATION"
	EntryRefund      = "REFUND"
)

// Credit note statuses.
const (
	CreditNoteIssued  = "ISSUED"
	CreditNoteApplied = "APPLIED"
)

// Refund statuses.
const (
	RefundRequested = "REQUESTED"
	RefundApproved  = "APPROVED"
	RefundProcessed = "PROCESSED"
	RefundRejected  = "REJECTED"
)

// Deposit is a pool of prepaid patient funds. Rows are never deleted;
// zero-balance deposits remain for audit.
type Deposit struct {
	ID               uuid.UUID       `db:"id" json:"id"`
	PatientID        uuid.UUID       `db:"patient_id" json:"patient_id"`
	Amount           decimal.Decimal `db:"amount" json:"amount"`
	Currency         string          `db:"currency" json:"currency"`
	RemainingBalance decimal.Decimal `db:"remaining_balance" json:"remaining_balance"`
	PaymentMethod    string          `db:"payment_method" json:"payment_method"`
	ReferenceNumber  *string         `db:"reference_number" json:"reference_number,omitempty"`
	Reason           *string         `db:"reason" json:"reason,omitempty"`
	Status           string          `db:"status" json:"status"`
	CreatedBy        string          `db:"created_by" json:"created_by"`
	CreatedAt        time.Time       `db:"created_at" json:"created_at"`
}

// consume deducts amount from the deposit and reprojects its status. The
// zeroed status depends on what drained it: UTILIZATION entries leave a
// UTILIZED deposit, REFUND entries a REFUNDED one.
func (d *Deposit) consume(amount decimal.Decimal, entryType string) {
	d.RemainingBalance = d.RemainingBalance.Sub(amount)
	if d.RemainingBalance.LessThan(decimal.Zero) {
		d.RemainingBalance = decimal.Zero
	}
	if d.RemainingBalance.IsZero() {
		switch entryType {
		case EntryRefund:
			d.Status = DepositRefunded
		default:
			d.Status = DepositUtilized
		}
	}
}

// Entry is an immutable fact describing one balance change on a deposit.
type Entry struct {
	ID          uuid.UUID       `db:"id" json:"id"`
	DepositID   uuid.UUID       `db:"deposit_id" json:"deposit_id"`
	Type        string          `db:"type" json:"type"`
	Amount      decimal.Decimal `db:"amount" json:"amount"`
	InvoiceID   *uuid.UUID      `db:"invoice_id" json:"invoice_id,omitempty"`
	Description *string         `db:"description" json:"description,omitempty"`
	CreatedBy   string          `db:"created_by" json:"created_by"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
}

// CreditNote is a non-deposit monetary instrument issued to offset an
// invoice. One-shot: ISSUED transitions once to APPLIED, never back.
type CreditNote struct {
	ID                 uuid.UUID       `db:"id" json:"id"`
	PatientID          uuid.UUID       `db:"patient_id" json:"patient_id"`
	Amount             decimal.Decimal `db:"amount" json:"amount"`
	Currency           string          `db:"currency" json:"currency"`
	Reason             string          `db:"reason" json:"reason"`
	SourceInvoiceID    *uuid.UUID      `db:"source_invoice_id" json:"source_invoice_id,omitempty"`
	Status             string          `db:"status" json:"status"`
	AppliedToInvoiceID *uuid.UUID      `db:"applied_to_invoice_id" json:"applied_to_invoice_id,omitempty"`
	CreatedBy          string          `db:"created_by" json:"created_by"`
	CreatedAt          time.Time       `db:"created_at" json:"created_at"`
	AppliedAt          *time.Time      `db:"applied_at" json:"applied_at,omitempty"`
}

// Refund tracks money returned to a patient. The linked deposit's balance
// is only touched at process time, not at request or approval.
type Refund struct {
	ID              uuid.UUID       `db:"id" json:"id"`
	PatientID       uuid.UUID       `db:"patient_id" json:"patient_id"`
	Amount          decimal.Decimal `db:"amount" json:"amount"`
	RefundMethod    string          `db:"refund_method" json:"refund_method"`
	RequestReason   string          `db:"request_reason" json:"request_reason"`
	DepositID       *uuid.UUID      `db:"deposit_id" json:"deposit_id,omitempty"`
	CreditNoteID    *uuid.UUID      `db:"credit_note_id" json:"credit_note_id,omitempty"`
	PaymentID       *uuid.UUID      `db:"payment_id" json:"payment_id,omitempty"`
	BankDetails     *string         `db:"bank_details" json:"bank_details,omitempty"`
	Notes           *string         `db:"notes" json:"notes,omitempty"`
	Status          string          `db:"status" json:"status"`
	RejectionReason *string         `db:"rejection_reason" json:"rejection_reason,omitempty"`
	RejectedBy      *string         `db:"rejected_by" json:"rejected_by,omitempty"`
	RequestedBy     string          `db:"requested_by" json:"requested_by"`
	ApprovedBy      *string         `db:"approved_by" json:"approved_by,omitempty"`
	ProcessedBy     *string         `db:"processed_by" json:"processed_by,omitempty"`
	ProcessedAt     *time.Time      `db:"processed_at" json:"processed_at,omitempty"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updated_at"`
}

// Balance is the summary returned by getBalance.
type Balance struct {
	PatientID          uuid.UUID       `json:"patient_id"`
	TotalBalance       decimal.Decimal `json:"total_balance"`
	ActiveDepositCount int             `json:"active_deposit_count"`
}

// AppliedDeposit describes one deposit's share of an allocation.
type AppliedDeposit struct {
	DepositID        uuid.UUID       `json:"deposit_id"`
	AmountApplied    decimal.Decimal `json:"amount_applied"`
	RemainingBalance decimal.Decimal `json:"remaining_balance"`
	Status           string          `json:"status"`
}

// ApplicationResult is what ApplyToInvoice and AutoApply return.
type ApplicationResult struct {
	Invoice         *InvoiceSnapshot `json:"invoice"`
	AppliedDeposits []AppliedDeposit `json:"applied_deposits"`
	TotalApplied    decimal.Decimal  `json:"total_applied"`
}

// InvoiceSnapshot mirrors the invoice fields callers care about after an
// application, decoupled from the invoice package's own type.
type InvoiceSnapshot struct {
	ID            uuid.UUID       `json:"id"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	PaidAmount    decimal.Decimal `json:"paid_amount"`
	BalanceAmount decimal.Decimal `json:"balance_amount"`
	Status        string          `json:"status"`
}
