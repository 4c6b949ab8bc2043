package invoice

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ehr/ledger/internal/domain/patient"
)

type Service struct {
	invoices Repository
	patients patient.Repository
}

func NewService(invoices Repository, patients patient.Repository) *Service {
	return &Service{invoices: invoices, patients: patients}
}

// Create registers an invoice with a caller-supplied total. Pricing and
// line items are computed upstream; this service only tracks how the total
// gets paid down.
func (s *Service) Create(ctx context.Context, inv *Invoice) error {
	if inv.TotalAmount.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("total_amount must be positive")
	}
	exists, err := s.patients.Exists(ctx, inv.PatientID)
	if err != nil {
		return fmt.Errorf("check patient: %w", err)
	}
	if !exists {
		return fmt.Errorf("patient %s not found", inv.PatientID)
	}
	if inv.Currency == "" {
		inv.Currency = "INR"
	}
	inv.PaidAmount = decimal.Zero
	inv.BalanceAmount = inv.TotalAmount
	inv.Status = StatusIssued
	return s.invoices.Create(ctx, inv)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Invoice, error) {
	return s.invoices.GetByID(ctx, id)
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Invoice, int, error) {
	return s.invoices.ListByPatient(ctx, patientID, limit, offset)
}
