package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DepositFilter narrows ListDeposits.
type DepositFilter struct {
	PatientID *uuid.UUID
	Status    *string
	From      *time.Time
	To        *time.Time
}

type DepositRepository interface {
	Create(ctx context.Context, d *Deposit) error
	GetByID(ctx context.Context, id uuid.UUID) (*Deposit, error)
	// GetByIDForUpdate locks the deposit row for the surrounding transaction.
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*Deposit, error)
	// ListActiveForUpdate returns the patient's ACTIVE deposits with funds
	// remaining, oldest first, each locked for the surrounding transaction.
	// Lock order follows creation order so concurrent allocations for the
	// same patient queue instead of deadlocking.
	ListActiveForUpdate(ctx context.Context, patientID uuid.UUID) ([]*Deposit, error)
	// UpdateBalance persists RemainingBalance and Status.
	UpdateBalance(ctx context.Context, d *Deposit) error
	SumActiveBalance(ctx context.Context, patientID uuid.UUID) (decimal.Decimal, int, error)
	List(ctx context.Context, f DepositFilter, limit, offset int) ([]*Deposit, int, error)
}

type EntryRepository interface {
	Create(ctx context.Context, e *Entry) error
	ListByDeposit(ctx context.Context, depositID uuid.UUID) ([]*Entry, error)
	CountByDeposit(ctx context.Context, depositID uuid.UUID) (int, error)
}

type CreditNoteRepository interface {
	Create(ctx context.Context, cn *CreditNote) error
	GetByID(ctx context.Context, id uuid.UUID) (*CreditNote, error)
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*CreditNote, error)
	// MarkApplied records the one-shot ISSUED to APPLIED transition.
	MarkApplied(ctx context.Context, cn *CreditNote) error
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*CreditNote, int, error)
}

// RefundFilter narrows ListRefunds.
type RefundFilter struct {
	PatientID *uuid.UUID
	Status    *string
}

type RefundRepository interface {
	Create(ctx context.Context, r *Refund) error
	GetByID(ctx context.Context, id uuid.UUID) (*Refund, error)
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*Refund, error)
	// UpdateStatus persists the state machine fields.
	UpdateStatus(ctx context.Context, r *Refund) error
	List(ctx context.Context, f RefundFilter, limit, offset int) ([]*Refund, int, error)
}
