package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RequestRefund creates a refund in REQUESTED state. A linked deposit is
// checked for ownership and sufficiency, but its balance is not deducted
// yet: funds only leave the account at process time.
func (s *Service) RequestRefund(ctx context.Context, r *Refund) (*Refund, error) {
	if r.Amount.LessThanOrEqual(decimal.Zero) {
		return nil, validationf("refund amount must be positive, got %s", r.Amount)
	}
	if r.RefundMethod == "" {
		return nil, validationf("refund_method is required")
	}
	if r.RequestReason == "" {
		return nil, validationf("request_reason is required")
	}
	exists, err := s.patients.Exists(ctx, r.PatientID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, notFound("patient", r.PatientID.String())
	}
	if r.DepositID != nil {
		d, err := s.deposits.GetByID(ctx, *r.DepositID)
		if err != nil {
			return nil, notFound("deposit", r.DepositID.String())
		}
		if d.PatientID != r.PatientID {
			return nil, conflictf("deposit %s does not belong to patient %s", d.ID, r.PatientID)
		}
		if d.RemainingBalance.LessThan(r.Amount) {
			return nil, conflictf("refund %s exceeds deposit balance %s", r.Amount, d.RemainingBalance)
		}
	}
	if r.CreditNoteID != nil {
		cn, err := s.creditNotes.GetByID(ctx, *r.CreditNoteID)
		if err != nil {
			return nil, notFound("credit note", r.CreditNoteID.String())
		}
		if cn.PatientID != r.PatientID {
			return nil, conflictf("credit note %s does not belong to patient %s", cn.ID, r.PatientID)
		}
	}

	r.Status = RefundRequested
	if err := s.refunds.Create(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

// ApproveRefund moves REQUESTED to APPROVED. No balance effect.
func (s *Service) ApproveRefund(ctx context.Context, refundID uuid.UUID, approvedBy string) (*Refund, error) {
	var refund *Refund
	err := s.inTxWithRetry(ctx, func(ctx context.Context) error {
		r, err := s.refunds.GetByIDForUpdate(ctx, refundID)
		if err != nil {
			return notFound("refund", refundID.String())
		}
		if r.Status != RefundRequested {
			return conflictf("refund %s is %s, only REQUESTED refunds can be approved", refundID, r.Status)
		}
		r.Status = RefundApproved
		r.ApprovedBy = &approvedBy
		if err := s.refunds.UpdateStatus(ctx, r); err != nil {
			return err
		}
		refund = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return refund, nil
}

// ProcessRefund moves APPROVED to PROCESSED. This is where the money
// actually leaves the account: the linked deposit, if any, is re-locked,
// its sufficiency re-validated against the current balance, and the
// deduction plus REFUND ledger entry committed atomically. A deposit
// drained since approval fails the whole operation with no writes.
func (s *Service) ProcessRefund(ctx context.Context, refundID uuid.UUID, processedBy string) (*Refund, error) {
	var refund *Refund
	err := s.inTxWithRetry(ctx, func(ctx context.Context) error {
		r, err := s.refunds.GetByIDForUpdate(ctx, refundID)
		if err != nil {
			return notFound("refund", refundID.String())
		}
		if r.Status != RefundApproved {
			return conflictf("refund %s is %s, only APPROVED refunds can be processed", refundID, r.Status)
		}

		if r.DepositID != nil {
			d, err := s.deposits.GetByIDForUpdate(ctx, *r.DepositID)
			if err != nil {
				return notFound("deposit", r.DepositID.String())
			}
			if d.RemainingBalance.LessThan(r.Amount) {
				return conflictf("deposit %s balance %s dropped below refund amount %s",
					d.ID, d.RemainingBalance, r.Amount)
			}
			d.consume(r.Amount, EntryRefund)
			if err := s.deposits.UpdateBalance(ctx, d); err != nil {
				return err
			}
			if err := s.entries.Create(ctx, &Entry{
				DepositID:   d.ID,
				Type:        EntryRefund,
				Amount:      r.Amount,
				Description: &r.RequestReason,
				CreatedBy:   processedBy,
			}); err != nil {
				return err
			}
		}

		now := time.Now().UTC()
		r.Status = RefundProcessed
		r.ProcessedBy = &processedBy
		r.ProcessedAt = &now
		if err := s.refunds.UpdateStatus(ctx, r); err != nil {
			return err
		}
		refund = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidateBalance(ctx, refund.PatientID)
	s.publish(ctx, EventRefundProcessed, refund)
	return refund, nil
}

// RejectRefund moves REQUESTED or APPROVED to REJECTED. No balance effect.
func (s *Service) RejectRefund(ctx context.Context, refundID uuid.UUID, reason, rejectedBy string) (*Refund, error) {
	if reason == "" {
		return nil, validationf("rejection reason is required")
	}
	var refund *Refund
	err := s.inTxWithRetry(ctx, func(ctx context.Context) error {
		r, err := s.refunds.GetByIDForUpdate(ctx, refundID)
		if err != nil {
			return notFound("refund", refundID.String())
		}
		if r.Status != RefundRequested && r.Status != RefundApproved {
			return conflictf("refund %s is %s and cannot be rejected", refundID, r.Status)
		}
		r.Status = RefundRejected
		r.RejectionReason = &reason
		r.RejectedBy = &rejectedBy
		if err := s.refunds.UpdateStatus(ctx, r); err != nil {
			return err
		}
		refund = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return refund, nil
}

// ListRefunds is a filtered, paginated read.
func (s *Service) ListRefunds(ctx context.Context, f RefundFilter, limit, offset int) ([]*Refund, int, error) {
	return s.refunds.List(ctx, f, limit, offset)
}
