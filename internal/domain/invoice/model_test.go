package invoice

import (
	"testing"

	"github.com/shopspring/decimal"
)

func newInvoice(total string) *Invoice {
	t := decimal.RequireFromString(total)
	return &Invoice{
		TotalAmount:   t,
		PaidAmount:    decimal.Zero,
		BalanceAmount: t,
		Status:        StatusIssued,
	}
}

func TestApplyPaymentPartial(t *testing.T) {
	inv := newInvoice("300")
	if err := inv.ApplyPayment(decimal.RequireFromString("100")); err != nil {
		t.Fatalf("ApplyPayment: %v", err)
	}
	if inv.Status != StatusPartiallyPaid {
		t.Errorf("status = %s, want %s", inv.Status, StatusPartiallyPaid)
	}
	if !inv.PaidAmount.Equal(decimal.RequireFromString("100")) {
		t.Errorf("paid = %s, want 100", inv.PaidAmount)
	}
	if !inv.BalanceAmount.Equal(decimal.RequireFromString("200")) {
		t.Errorf("balance = %s, want 200", inv.BalanceAmount)
	}
}

func TestApplyPaymentToPaid(t *testing.T) {
	inv := newInvoice("300")
	if err := inv.ApplyPayment(decimal.RequireFromString("300")); err != nil {
		t.Fatalf("ApplyPayment: %v", err)
	}
	if inv.Status != StatusPaid {
		t.Errorf("status = %s, want %s", inv.Status, StatusPaid)
	}
	if !inv.BalanceAmount.IsZero() {
		t.Errorf("balance = %s, want 0", inv.BalanceAmount)
	}

	// Further payments must be rejected.
	if err := inv.ApplyPayment(decimal.RequireFromString("1")); err == nil {
		t.Error("expected error paying a PAID invoice")
	}
}

func TestApplyPaymentRejections(t *testing.T) {
	tests := []struct {
		name   string
		inv    *Invoice
		amount string
	}{
		{"zero amount", newInvoice("300"), "0"},
		{"negative amount", newInvoice("300"), "-10"},
		{"exceeds balance", newInvoice("300"), "300.01"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := tt.inv.PaidAmount
			if err := tt.inv.ApplyPayment(decimal.RequireFromString(tt.amount)); err == nil {
				t.Fatal("expected error")
			}
			if !tt.inv.PaidAmount.Equal(before) {
				t.Error("rejected payment must not mutate the invoice")
			}
		})
	}
}

func TestApplyPaymentCancelled(t *testing.T) {
	inv := newInvoice("300")
	inv.Status = StatusCancelled
	if err := inv.ApplyPayment(decimal.RequireFromString("50")); err == nil {
		t.Error("expected error paying a CANCELLED invoice")
	}
}

func TestBalanceEqualsTotalMinusPaid(t *testing.T) {
	inv := newInvoice("250.75")
	for _, amt := range []string{"100", "75.25", "75.50"} {
		if err := inv.ApplyPayment(decimal.RequireFromString(amt)); err != nil {
			t.Fatalf("ApplyPayment(%s): %v", amt, err)
		}
		want := inv.TotalAmount.Sub(inv.PaidAmount)
		if !inv.BalanceAmount.Equal(want) {
			t.Fatalf("balance = %s, want total-paid = %s", inv.BalanceAmount, want)
		}
	}
	if inv.Status != StatusPaid {
		t.Errorf("status = %s, want %s", inv.Status, StatusPaid)
	}
}
