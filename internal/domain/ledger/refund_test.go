package ledger

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func (f *fixture) requestRefund(t *testing.T, patientID uuid.UUID, depositID *uuid.UUID, amount string) *Refund {
	t.Helper()
	r, err := f.svc.RequestRefund(context.Background(), &Refund{
		PatientID:     patientID,
		Amount:        decimal.RequireFromString(amount),
		RefundMethod:  "BANK_TRANSFER",
		RequestReason: "discharge settlement",
		DepositID:     depositID,
		RequestedBy:   "tester",
	})
	if err != nil {
		t.Fatalf("RequestRefund: %v", err)
	}
	return r
}

func TestRequestRefund(t *testing.T) {
	f := newFixture()
	patientID := f.addPatient(t)
	d := f.addDeposit(t, patientID, "200")

	r := f.requestRefund(t, patientID, &d.ID, "150")
	if r.Status != RefundRequested {
		t.Errorf("status = %s, want %s", r.Status, RefundRequested)
	}
	// Eligibility check only: no deduction at request time.
	if !d.RemainingBalance.Equal(decimal.NewFromInt(200)) {
		t.Errorf("deposit remaining = %s, want 200", d.RemainingBalance)
	}
}

func TestRequestRefundValidation(t *testing.T) {
	f := newFixture()
	patientID := f.addPatient(t)
	d := f.addDeposit(t, patientID, "100")

	_, err := f.svc.RequestRefund(context.Background(), &Refund{
		PatientID:     patientID,
		Amount:        decimal.Zero,
		RefundMethod:  "CASH",
		RequestReason: "x",
	})
	var ve *ValidationError
	if !asErr(err, &ve) {
		t.Errorf("zero amount: expected ValidationError, got %v", err)
	}

	// Amount above the linked deposit's balance is rejected outright.
	_, err = f.svc.RequestRefund(context.Background(), &Refund{
		PatientID:     patientID,
		Amount:        decimal.NewFromInt(150),
		RefundMethod:  "CASH",
		RequestReason: "x",
		DepositID:     &d.ID,
	})
	var ce *ConflictError
	if !asErr(err, &ce) {
		t.Errorf("excess amount: expected ConflictError, got %v", err)
	}
}

func TestRequestRefundWrongDepositOwner(t *testing.T) {
	f := newFixture()
	patientA := f.addPatient(t)
	patientB := f.addPatient(t)
	d := f.addDeposit(t, patientA, "100")

	_, err := f.svc.RequestRefund(context.Background(), &Refund{
		PatientID:     patientB,
		Amount:        decimal.NewFromInt(50),
		RefundMethod:  "CASH",
		RequestReason: "x",
		DepositID:     &d.ID,
	})
	var ce *ConflictError
	if !asErr(err, &ce) {
		t.Errorf("expected ConflictError, got %v", err)
	}
}

func TestRefundLifecycle(t *testing.T) {
	f := newFixture()
	patientID := f.addPatient(t)
	d := f.addDeposit(t, patientID, "200")
	r := f.requestRefund(t, patientID, &d.ID, "150")

	// REQUESTED cannot be processed directly.
	_, err := f.svc.ProcessRefund(context.Background(), r.ID, "finance")
	var ce *ConflictError
	if !asErr(err, &ce) {
		t.Fatalf("expected ConflictError processing REQUESTED refund, got %v", err)
	}
	if r.Status != RefundRequested {
		t.Errorf("refund status = %s, want %s", r.Status, RefundRequested)
	}
	if !d.RemainingBalance.Equal(decimal.NewFromInt(200)) {
		t.Errorf("deposit touched by failed process: remaining = %s", d.RemainingBalance)
	}

	// Approval records the approver but has no balance effect.
	r, err = f.svc.ApproveRefund(context.Background(), r.ID, "supervisor")
	if err != nil {
		t.Fatalf("ApproveRefund: %v", err)
	}
	if r.Status != RefundApproved || r.ApprovedBy == nil || *r.ApprovedBy != "supervisor" {
		t.Errorf("after approve: status=%s approved_by=%v", r.Status, r.ApprovedBy)
	}
	if !d.RemainingBalance.Equal(decimal.NewFromInt(200)) {
		t.Errorf("approval must not change the deposit, remaining = %s", d.RemainingBalance)
	}

	// Processing deducts the balance and writes the REFUND entry.
	r, err = f.svc.ProcessRefund(context.Background(), r.ID, "finance")
	if err != nil {
		t.Fatalf("ProcessRefund: %v", err)
	}
	if r.Status != RefundProcessed || r.ProcessedAt == nil {
		t.Errorf("after process: status=%s processed_at=%v", r.Status, r.ProcessedAt)
	}
	if !d.RemainingBalance.Equal(decimal.NewFromInt(50)) {
		t.Errorf("deposit remaining = %s, want 50", d.RemainingBalance)
	}
	if d.Status != DepositActive {
		t.Errorf("deposit status = %s, want %s", d.Status, DepositActive)
	}
	if !f.entries.sum(d.ID, EntryRefund).Equal(decimal.NewFromInt(150)) {
		t.Errorf("refund entries sum = %s, want 150", f.entries.sum(d.ID, EntryRefund))
	}
	f.checkDepositInvariant(t, d.ID)
}

func TestProcessRefundDrainsDeposit(t *testing.T) {
	f := newFixture()
	patientID := f.addPatient(t)
	d := f.addDeposit(t, patientID, "100")
	r := f.requestRefund(t, patientID, &d.ID, "100")

	if _, err := f.svc.ApproveRefund(context.Background(), r.ID, "supervisor"); err != nil {
		t.Fatalf("ApproveRefund: %v", err)
	}
	if _, err := f.svc.ProcessRefund(context.Background(), r.ID, "finance"); err != nil {
		t.Fatalf("ProcessRefund: %v", err)
	}

	if d.Status != DepositRefunded {
		t.Errorf("deposit status = %s, want %s", d.Status, DepositRefunded)
	}
	if !d.RemainingBalance.IsZero() {
		t.Errorf("deposit remaining = %s, want 0", d.RemainingBalance)
	}
}

func TestProcessRefundRevalidatesBalance(t *testing.T) {
	f := newFixture()
	patientID := f.addPatient(t)
	d := f.addDeposit(t, patientID, "100")
	r := f.requestRefund(t, patientID, &d.ID, "80")

	if _, err := f.svc.ApproveRefund(context.Background(), r.ID, "supervisor"); err != nil {
		t.Fatalf("ApproveRefund: %v", err)
	}

	// The deposit is drained between approval and processing.
	inv := f.addInvoice(t, patientID, "70")
	if _, err := f.svc.ApplyToInvoice(context.Background(), patientID, inv.ID,
		decimal.NewFromInt(70), "tester"); err != nil {
		t.Fatalf("ApplyToInvoice: %v", err)
	}

	entriesBefore := len(f.entries.entries)
	_, err := f.svc.ProcessRefund(context.Background(), r.ID, "finance")
	var ce *ConflictError
	if !asErr(err, &ce) {
		t.Fatalf("expected ConflictError for drained deposit, got %v", err)
	}
	if len(f.entries.entries) != entriesBefore {
		t.Error("failed process must not write ledger entries")
	}
	if !d.RemainingBalance.Equal(decimal.NewFromInt(30)) {
		t.Errorf("deposit remaining = %s, want 30", d.RemainingBalance)
	}
	got, _ := f.refunds.GetByID(context.Background(), r.ID)
	if got.Status != RefundApproved {
		t.Errorf("refund status = %s, want %s", got.Status, RefundApproved)
	}
}

func TestRejectRefund(t *testing.T) {
	f := newFixture()
	patientID := f.addPatient(t)
	d := f.addDeposit(t, patientID, "200")

	// Rejection from REQUESTED.
	r1 := f.requestRefund(t, patientID, &d.ID, "50")
	r1, err := f.svc.RejectRefund(context.Background(), r1.ID, "duplicate request", "supervisor")
	if err != nil {
		t.Fatalf("RejectRefund: %v", err)
	}
	if r1.Status != RefundRejected || r1.RejectionReason == nil {
		t.Errorf("after reject: status=%s reason=%v", r1.Status, r1.RejectionReason)
	}

	// Rejection from APPROVED.
	r2 := f.requestRefund(t, patientID, &d.ID, "50")
	if _, err := f.svc.ApproveRefund(context.Background(), r2.ID, "supervisor"); err != nil {
		t.Fatalf("ApproveRefund: %v", err)
	}
	if _, err := f.svc.RejectRefund(context.Background(), r2.ID, "changed mind", "supervisor"); err != nil {
		t.Fatalf("RejectRefund approved: %v", err)
	}

	if !d.RemainingBalance.Equal(decimal.NewFromInt(200)) {
		t.Errorf("rejections must not change the deposit, remaining = %s", d.RemainingBalance)
	}
}

func TestRefundTerminalStates(t *testing.T) {
	f := newFixture()
	patientID := f.addPatient(t)
	d := f.addDeposit(t, patientID, "200")

	r := f.requestRefund(t, patientID, &d.ID, "50")
	if _, err := f.svc.RejectRefund(context.Background(), r.ID, "no", "supervisor"); err != nil {
		t.Fatalf("RejectRefund: %v", err)
	}

	// No transition out of REJECTED.
	if _, err := f.svc.ApproveRefund(context.Background(), r.ID, "supervisor"); err == nil {
		t.Error("expected error approving a REJECTED refund")
	}
	if _, err := f.svc.RejectRefund(context.Background(), r.ID, "again", "supervisor"); err == nil {
		t.Error("expected error rejecting a REJECTED refund")
	}

	// No transition out of PROCESSED.
	r2 := f.requestRefund(t, patientID, &d.ID, "50")
	if _, err := f.svc.ApproveRefund(context.Background(), r2.ID, "supervisor"); err != nil {
		t.Fatalf("ApproveRefund: %v", err)
	}
	if _, err := f.svc.ProcessRefund(context.Background(), r2.ID, "finance"); err != nil {
		t.Fatalf("ProcessRefund: %v", err)
	}
	if _, err := f.svc.ProcessRefund(context.Background(), r2.ID, "finance"); err == nil {
		t.Error("expected error processing a PROCESSED refund")
	}
}

func TestListRefundsFilter(t *testing.T) {
	f := newFixture()
	patientID := f.addPatient(t)
	d := f.addDeposit(t, patientID, "200")
	f.requestRefund(t, patientID, &d.ID, "50")
	r2 := f.requestRefund(t, patientID, &d.ID, "60")
	if _, err := f.svc.ApproveRefund(context.Background(), r2.ID, "supervisor"); err != nil {
		t.Fatalf("ApproveRefund: %v", err)
	}

	status := RefundApproved
	refunds, total, err := f.svc.ListRefunds(context.Background(),
		RefundFilter{PatientID: &patientID, Status: &status}, 20, 0)
	if err != nil {
		t.Fatalf("ListRefunds: %v", err)
	}
	if total != 1 || refunds[0].ID != r2.ID {
		t.Errorf("expected only the approved refund, got %d", total)
	}
}
