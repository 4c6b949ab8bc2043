package ledger

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
)

func newTestHandler(t *testing.T) (*Handler, *fixture, *echo.Echo) {
	t.Helper()
	f := newFixture()
	return NewHandler(f.svc), f, echo.New()
}

func TestHandler_RecordDeposit(t *testing.T) {
	h, f, e := newTestHandler(t)
	patientID := f.addPatient(t)

	body := fmt.Sprintf(`{"patient_id":%q,"amount":"500","payment_method":"CASH"}`, patientID)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/deposits", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.RecordDeposit(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}

	var d Deposit
	json.Unmarshal(rec.Body.Bytes(), &d)
	if d.Status != DepositActive {
		t.Errorf("status = %s, want %s", d.Status, DepositActive)
	}
}

func TestHandler_RecordDeposit_BadRequest(t *testing.T) {
	h, f, e := newTestHandler(t)
	patientID := f.addPatient(t)

	body := fmt.Sprintf(`{"patient_id":%q,"amount":"-5","payment_method":"CASH"}`, patientID)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/deposits", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := h.RecordDeposit(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %v", err)
	}
}

func TestHandler_GetBalance(t *testing.T) {
	h, f, e := newTestHandler(t)
	patientID := f.addPatient(t)
	f.addDeposit(t, patientID, "150")

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(patientID.String())

	if err := h.GetBalance(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}

	var b Balance
	json.Unmarshal(rec.Body.Bytes(), &b)
	if !b.TotalBalance.Equal(decimal.NewFromInt(150)) {
		t.Errorf("total = %s, want 150", b.TotalBalance)
	}
}

func TestHandler_ApplyToInvoice_InsufficientBalance(t *testing.T) {
	h, f, e := newTestHandler(t)
	patientID := f.addPatient(t)
	f.addDeposit(t, patientID, "40")
	inv := f.addInvoice(t, patientID, "100")

	body := fmt.Sprintf(`{"patient_id":%q,"amount":"50"}`, patientID)
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(inv.ID.String())

	if err := h.ApplyToInvoice(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d", rec.Code)
	}

	var payload map[string]interface{}
	json.Unmarshal(rec.Body.Bytes(), &payload)
	if payload["available"] == nil || payload["requested"] == nil {
		t.Errorf("shortfall details missing from response: %s", rec.Body.String())
	}
}

func TestHandler_ApplyToInvoice_NotFound(t *testing.T) {
	h, f, e := newTestHandler(t)
	patientID := f.addPatient(t)
	f.addDeposit(t, patientID, "100")

	body := fmt.Sprintf(`{"patient_id":%q,"amount":"50"}`, patientID)
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(uuid.NewString())

	err := h.ApplyToInvoice(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %v", err)
	}
}

func TestHandler_AutoApply(t *testing.T) {
	h, f, e := newTestHandler(t)
	patientID := f.addPatient(t)
	f.addDeposit(t, patientID, "500")
	inv := f.addInvoice(t, patientID, "300")

	body := fmt.Sprintf(`{"patient_id":%q}`, patientID)
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(inv.ID.String())

	if err := h.AutoApply(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}

	var result ApplicationResult
	json.Unmarshal(rec.Body.Bytes(), &result)
	if result.Invoice.Status != "PAID" {
		t.Errorf("invoice status = %s, want PAID", result.Invoice.Status)
	}
	if !result.TotalApplied.Equal(decimal.NewFromInt(300)) {
		t.Errorf("applied = %s, want 300", result.TotalApplied)
	}
}

func TestHandler_RejectRefund_InvalidTransition(t *testing.T) {
	h, f, e := newTestHandler(t)
	patientID := f.addPatient(t)
	d := f.addDeposit(t, patientID, "200")
	r := f.requestRefund(t, patientID, &d.ID, "50")
	if _, err := f.svc.RejectRefund(nil, r.ID, "no", "supervisor"); err != nil {
		t.Fatalf("RejectRefund: %v", err)
	}

	body := `{"reason":"again"}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(r.ID.String())

	err := h.RejectRefund(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusConflict {
		t.Errorf("expected 409, got %v", err)
	}
}

func TestHandler_GetLedger(t *testing.T) {
	h, f, e := newTestHandler(t)
	patientID := f.addPatient(t)
	d := f.addDeposit(t, patientID, "100")

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(d.ID.String())

	if err := h.GetLedger(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var entries []*Entry
	json.Unmarshal(rec.Body.Bytes(), &entries)
	if len(entries) != 1 || entries[0].Type != EntryDeposit {
		t.Errorf("expected one DEPOSIT entry, got %d", len(entries))
	}
}
