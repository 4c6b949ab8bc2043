package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CreditNoteApplication is what ApplyCreditNote returns.
type CreditNoteApplication struct {
	CreditNote *CreditNote      `json:"credit_note"`
	Invoice    *InvoiceSnapshot `json:"invoice"`
}

// IssueCreditNote creates a credit note in ISSUED state.
func (s *Service) IssueCreditNote(ctx context.Context, cn *CreditNote) (*CreditNote, error) {
	if cn.Amount.LessThanOrEqual(decimal.Zero) {
		return nil, validationf("credit note amount must be positive, got %s", cn.Amount)
	}
	if cn.Reason == "" {
		return nil, validationf("reason is required")
	}
	exists, err := s.patients.Exists(ctx, cn.PatientID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, notFound("patient", cn.PatientID.String())
	}
	if cn.SourceInvoiceID != nil {
		if _, err := s.invoices.GetByID(ctx, *cn.SourceInvoiceID); err != nil {
			return nil, notFound("invoice", cn.SourceInvoiceID.String())
		}
	}

	cn.Status = CreditNoteIssued
	if cn.Currency == "" {
		cn.Currency = "INR"
	}
	if err := s.creditNotes.Create(ctx, cn); err != nil {
		return nil, err
	}
	return cn, nil
}

// ApplyCreditNote marks the note APPLIED and pays the invoice down by the
// note's amount in one transaction. Credit notes are a separate instrument
// from deposits: no deposit balance or ledger entry is touched.
func (s *Service) ApplyCreditNote(ctx context.Context, creditNoteID, invoiceID uuid.UUID) (*CreditNoteApplication, error) {
	var result *CreditNoteApplication
	err := s.inTxWithRetry(ctx, func(ctx context.Context) error {
		cn, err := s.creditNotes.GetByIDForUpdate(ctx, creditNoteID)
		if err != nil {
			return notFound("credit note", creditNoteID.String())
		}
		if cn.Status != CreditNoteIssued {
			return conflictf("credit note %s is %s and cannot be applied again", creditNoteID, cn.Status)
		}

		inv, err := s.invoices.GetByIDForUpdate(ctx, invoiceID)
		if err != nil {
			return notFound("invoice", invoiceID.String())
		}
		if inv.PatientID != cn.PatientID {
			return conflictf("invoice %s does not belong to patient %s", invoiceID, cn.PatientID)
		}
		if err := inv.ApplyPayment(cn.Amount); err != nil {
			return conflictf("%s", err)
		}

		now := time.Now().UTC()
		cn.Status = CreditNoteApplied
		cn.AppliedToInvoiceID = &invoiceID
		cn.AppliedAt = &now
		if err := s.creditNotes.MarkApplied(ctx, cn); err != nil {
			return err
		}
		if err := s.invoices.UpdatePayment(ctx, inv); err != nil {
			return err
		}

		result = &CreditNoteApplication{
			CreditNote: cn,
			Invoice: &InvoiceSnapshot{
				ID:            inv.ID,
				TotalAmount:   inv.TotalAmount,
				PaidAmount:    inv.PaidAmount,
				BalanceAmount: inv.BalanceAmount,
				Status:        inv.Status,
			},
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, EventCreditNoteApplied, result)
	return result, nil
}

// ListCreditNotes is a paginated read of a patient's credit notes.
func (s *Service) ListCreditNotes(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*CreditNote, int, error) {
	return s.creditNotes.ListByPatient(ctx, patientID, limit, offset)
}
