package ledger

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/ehr/ledger/internal/domain/invoice"
	"github.com/ehr/ledger/internal/domain/patient"
	"github.com/ehr/ledger/internal/platform/db"
)

// Events emitted after balance-affecting commits.
const (
	EventDepositRecorded   = "ledger.deposit.recorded"
	EventDepositApplied    = "ledger.deposit.applied"
	EventCreditNoteApplied = "ledger.credit_note.applied"
	EventRefundProcessed   = "ledger.refund.processed"
)

// EventPublisher is the slice of the kafka publisher the service needs.
// Nil disables event publishing.
type EventPublisher interface {
	Publish(ctx context.Context, event string, payload interface{}) error
}

// BalanceCache is the slice of the redis cache the service needs. Nil
// disables caching.
type BalanceCache interface {
	Get(ctx context.Context, patientID string) (decimal.Decimal, int, bool)
	Set(ctx context.Context, patientID string, total decimal.Decimal, activeDeposits int)
	Invalidate(ctx context.Context, patientID string)
}

// Service implements the deposit ledger: deposits and their entries, FIFO
// allocation against invoices, credit notes and the refund workflow. It
// holds no mutable state of its own; everything lives in the stores.
type Service struct {
	deposits    DepositRepository
	entries     EntryRepository
	creditNotes CreditNoteRepository
	refunds     RefundRepository
	invoices    invoice.Repository
	patients    patient.Repository
	runner      db.Runner
	publisher   EventPublisher
	cache       BalanceCache
	maxRetries  int
}

func NewService(
	deposits DepositRepository,
	entries EntryRepository,
	creditNotes CreditNoteRepository,
	refunds RefundRepository,
	invoices invoice.Repository,
	patients patient.Repository,
	runner db.Runner,
	maxRetries int,
) *Service {
	if maxRetries < 1 {
		maxRetries = 1
	}
	return &Service{
		deposits:    deposits,
		entries:     entries,
		creditNotes: creditNotes,
		refunds:     refunds,
		invoices:    invoices,
		patients:    patients,
		runner:      runner,
		maxRetries:  maxRetries,
	}
}

// WithPublisher attaches a post-commit event publisher.
func (s *Service) WithPublisher(p EventPublisher) *Service {
	s.publisher = p
	return s
}

// WithCache attaches a balance read cache.
func (s *Service) WithCache(c BalanceCache) *Service {
	s.cache = c
	return s
}

// inTxWithRetry runs fn in a transaction, retrying bounded times on
// transient write conflicts. A conflict that survives every attempt is
// surfaced as a ConcurrencyError.
func (s *Service) inTxWithRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	var err error
	for attempt := 0; attempt < s.maxRetries; attempt++ {
		err = s.runner.InTx(ctx, fn)
		if err == nil || !db.IsRetryableTxError(err) {
			return err
		}
	}
	return &ConcurrencyError{Err: err}
}

func (s *Service) publish(ctx context.Context, event string, payload interface{}) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, event, payload); err != nil {
		log.Warn().Err(err).Str("event", event).Msg("ledger event publish failed")
	}
}

func (s *Service) invalidateBalance(ctx context.Context, patientID uuid.UUID) {
	if s.cache != nil {
		s.cache.Invalidate(ctx, patientID.String())
	}
}

// RecordDeposit creates a deposit and its DEPOSIT ledger entry in one
// transaction.
func (s *Service) RecordDeposit(ctx context.Context, d *Deposit) (*Deposit, error) {
	if d.Amount.LessThanOrEqual(decimal.Zero) {
		return nil, validationf("deposit amount must be positive, got %s", d.Amount)
	}
	if d.PaymentMethod == "" {
		return nil, validationf("payment_method is required")
	}
	exists, err := s.patients.Exists(ctx, d.PatientID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, notFound("patient", d.PatientID.String())
	}

	d.RemainingBalance = d.Amount
	d.Status = DepositActive
	if d.Currency == "" {
		d.Currency = "INR"
	}

	err = s.inTxWithRetry(ctx, func(ctx context.Context) error {
		if err := s.deposits.Create(ctx, d); err != nil {
			return err
		}
		return s.entries.Create(ctx, &Entry{
			DepositID:   d.ID,
			Type:        EntryDeposit,
			Amount:      d.Amount,
			Description: d.Reason,
			CreatedBy:   d.CreatedBy,
		})
	})
	if err != nil {
		return nil, err
	}

	s.invalidateBalance(ctx, d.PatientID)
	s.publish(ctx, EventDepositRecorded, d)
	return d, nil
}

// GetBalance sums the remaining balance over the patient's ACTIVE deposits.
// Served from cache when possible; the cache is invalidated on every
// balance-affecting commit, so staleness is bounded by the TTL.
func (s *Service) GetBalance(ctx context.Context, patientID uuid.UUID) (*Balance, error) {
	if s.cache != nil {
		if total, count, ok := s.cache.Get(ctx, patientID.String()); ok {
			return &Balance{PatientID: patientID, TotalBalance: total, ActiveDepositCount: count}, nil
		}
	}

	total, count, err := s.deposits.SumActiveBalance(ctx, patientID)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		s.cache.Set(ctx, patientID.String(), total, count)
	}
	return &Balance{PatientID: patientID, TotalBalance: total, ActiveDepositCount: count}, nil
}

// ListDeposits is a filtered, paginated read.
func (s *Service) ListDeposits(ctx context.Context, f DepositFilter, limit, offset int) ([]*Deposit, int, error) {
	return s.deposits.List(ctx, f, limit, offset)
}

// GetLedger returns a deposit's entries, oldest first.
func (s *Service) GetLedger(ctx context.Context, depositID uuid.UUID) ([]*Entry, error) {
	if _, err := s.deposits.GetByID(ctx, depositID); err != nil {
		return nil, notFound("deposit", depositID.String())
	}
	return s.entries.ListByDeposit(ctx, depositID)
}

// ApplyToInvoice allocates amount from the patient's ACTIVE deposits to the
// invoice, consuming deposits oldest first. Every deposit mutation, ledger
// entry and the invoice update commit in one transaction or not at all.
func (s *Service) ApplyToInvoice(ctx context.Context, patientID, invoiceID uuid.UUID, amount decimal.Decimal, appliedBy string) (*ApplicationResult, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, validationf("application amount must be positive, got %s", amount)
	}

	var result *ApplicationResult
	err := s.inTxWithRetry(ctx, func(ctx context.Context) error {
		var err error
		result, err = s.applyLocked(ctx, patientID, invoiceID, amount, appliedBy)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.invalidateBalance(ctx, patientID)
	s.publish(ctx, EventDepositApplied, result)
	return result, nil
}

// applyLocked runs inside a transaction with the invoice and all candidate
// deposit rows locked.
func (s *Service) applyLocked(ctx context.Context, patientID, invoiceID uuid.UUID, amount decimal.Decimal, appliedBy string) (*ApplicationResult, error) {
	inv, err := s.invoices.GetByIDForUpdate(ctx, invoiceID)
	if err != nil {
		return nil, notFound("invoice", invoiceID.String())
	}
	if inv.PatientID != patientID {
		return nil, conflictf("invoice %s does not belong to patient %s", invoiceID, patientID)
	}
	if !inv.Payable() {
		return nil, conflictf("invoice %s is %s and cannot receive payments", invoiceID, inv.Status)
	}
	if amount.GreaterThan(inv.BalanceAmount) {
		return nil, conflictf("application %s exceeds invoice outstanding balance %s", amount, inv.BalanceAmount)
	}

	// Lock candidate deposits oldest first. Checking sufficiency against
	// the locked rows (not a separate unlocked sum) closes the window where
	// a concurrent allocation drains a deposit between check and use.
	deposits, err := s.deposits.ListActiveForUpdate(ctx, patientID)
	if err != nil {
		return nil, err
	}
	available := decimal.Zero
	for _, d := range deposits {
		available = available.Add(d.RemainingBalance)
	}
	if available.LessThan(amount) {
		return nil, &InsufficientBalanceError{Available: available, Requested: amount}
	}

	remaining := amount
	var applied []AppliedDeposit
	for _, d := range deposits {
		if remaining.IsZero() {
			break
		}
		take := decimal.Min(remaining, d.RemainingBalance)
		d.consume(take, EntryUtilization)
		if err := s.deposits.UpdateBalance(ctx, d); err != nil {
			return nil, err
		}
		desc := "applied to invoice"
		if err := s.entries.Create(ctx, &Entry{
			DepositID:   d.ID,
			Type:        EntryUtilization,
			Amount:      take,
			InvoiceID:   &invoiceID,
			Description: &desc,
			CreatedBy:   appliedBy,
		}); err != nil {
			return nil, err
		}
		applied = append(applied, AppliedDeposit{
			DepositID:        d.ID,
			AmountApplied:    take,
			RemainingBalance: d.RemainingBalance,
			Status:           d.Status,
		})
		remaining = remaining.Sub(take)
	}

	if err := inv.ApplyPayment(amount); err != nil {
		return nil, conflictf("%s", err)
	}
	if err := s.invoices.UpdatePayment(ctx, inv); err != nil {
		return nil, err
	}

	return &ApplicationResult{
		Invoice: &InvoiceSnapshot{
			ID:            inv.ID,
			TotalAmount:   inv.TotalAmount,
			PaidAmount:    inv.PaidAmount,
			BalanceAmount: inv.BalanceAmount,
			Status:        inv.Status,
		},
		AppliedDeposits: applied,
		TotalApplied:    amount,
	}, nil
}

// AutoApply settles as much of the invoice as the patient's balance covers:
// amount = min(invoice balance, available deposit balance).
func (s *Service) AutoApply(ctx context.Context, patientID, invoiceID uuid.UUID, appliedBy string) (*ApplicationResult, error) {
	inv, err := s.invoices.GetByID(ctx, invoiceID)
	if err != nil {
		return nil, notFound("invoice", invoiceID.String())
	}
	if inv.PatientID != patientID {
		return nil, conflictf("invoice %s does not belong to patient %s", invoiceID, patientID)
	}
	if !inv.Payable() {
		return nil, conflictf("invoice %s is %s and cannot receive payments", invoiceID, inv.Status)
	}
	if inv.BalanceAmount.LessThanOrEqual(decimal.Zero) {
		return nil, validationf("invoice %s has no outstanding balance", invoiceID)
	}

	available, _, err := s.deposits.SumActiveBalance(ctx, patientID)
	if err != nil {
		return nil, err
	}
	if available.LessThanOrEqual(decimal.Zero) {
		return nil, validationf("patient %s has no deposit balance", patientID)
	}

	amount := decimal.Min(inv.BalanceAmount, available)
	return s.ApplyToInvoice(ctx, patientID, invoiceID, amount, appliedBy)
}
