package ledger

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/ehr/ledger/internal/platform/auth"
	"github.com/ehr/ledger/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("", auth.RequireRole("admin", "billing"))

	g.POST("/deposits", h.RecordDeposit)
	g.GET("/deposits", h.ListDeposits)
	g.GET("/deposits/:id/ledger", h.GetLedger)
	g.GET("/patients/:id/balance", h.GetBalance)

	g.POST("/invoices/:id/apply", h.ApplyToInvoice)
	g.POST("/invoices/:id/auto-apply", h.AutoApply)

	g.POST("/credit-notes", h.IssueCreditNote)
	g.POST("/credit-notes/:id/apply", h.ApplyCreditNote)
	g.GET("/patients/:id/credit-notes", h.ListCreditNotes)

	g.POST("/refunds", h.RequestRefund)
	g.GET("/refunds", h.ListRefunds)
	g.POST("/refunds/:id/approve", h.ApproveRefund)
	g.POST("/refunds/:id/process", h.ProcessRefund)
	g.POST("/refunds/:id/reject", h.RejectRefund)
}

// respondError maps the ledger error taxonomy onto HTTP statuses. Transient
// conflicts get a Retry-After hint so well-behaved clients back off.
func respondError(c echo.Context, err error) error {
	var (
		ve *ValidationError
		nf *NotFoundError
		ce *ConflictError
		ib *InsufficientBalanceError
		cc *ConcurrencyError
	)
	switch {
	case errors.As(err, &ve):
		return echo.NewHTTPError(http.StatusBadRequest, ve.Msg)
	case errors.As(err, &nf):
		return echo.NewHTTPError(http.StatusNotFound, nf.Error())
	case errors.As(err, &ib):
		return c.JSON(http.StatusConflict, map[string]interface{}{
			"message":   ib.Error(),
			"available": ib.Available,
			"requested": ib.Requested,
		})
	case errors.As(err, &ce):
		return echo.NewHTTPError(http.StatusConflict, ce.Msg)
	case errors.As(err, &cc):
		c.Response().Header().Set("Retry-After", "1")
		return echo.NewHTTPError(http.StatusServiceUnavailable, cc.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

// -- Deposits --

type recordDepositRequest struct {
	PatientID       uuid.UUID       `json:"patient_id"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
	PaymentMethod   string          `json:"payment_method"`
	ReferenceNumber *string         `json:"reference_number,omitempty"`
	Reason          *string         `json:"reason,omitempty"`
}

func (h *Handler) RecordDeposit(c echo.Context) error {
	var req recordDepositRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	d := &Deposit{
		PatientID:       req.PatientID,
		Amount:          req.Amount,
		Currency:        req.Currency,
		PaymentMethod:   req.PaymentMethod,
		ReferenceNumber: req.ReferenceNumber,
		Reason:          req.Reason,
		CreatedBy:       auth.UserIDFromContext(c.Request().Context()),
	}
	d, err := h.svc.RecordDeposit(c.Request().Context(), d)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, d)
}

func (h *Handler) GetBalance(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	b, err := h.svc.GetBalance(c.Request().Context(), patientID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, b)
}

func (h *Handler) ListDeposits(c echo.Context) error {
	var f DepositFilter
	if v := c.QueryParam("patient_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
		}
		f.PatientID = &id
	}
	if v := c.QueryParam("status"); v != "" {
		f.Status = &v
	}
	if v := c.QueryParam("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid from date")
		}
		f.From = &t
	}
	if v := c.QueryParam("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid to date")
		}
		f.To = &t
	}

	pg := pagination.FromContext(c)
	deposits, total, err := h.svc.ListDeposits(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(deposits, total, pg.Limit, pg.Offset))
}

func (h *Handler) GetLedger(c echo.Context) error {
	depositID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	entries, err := h.svc.GetLedger(c.Request().Context(), depositID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, entries)
}

// -- Allocation --

type applyRequest struct {
	PatientID uuid.UUID       `json:"patient_id"`
	Amount    decimal.Decimal `json:"amount"`
}

func (h *Handler) ApplyToInvoice(c echo.Context) error {
	invoiceID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req applyRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	result, err := h.svc.ApplyToInvoice(c.Request().Context(), req.PatientID, invoiceID,
		req.Amount, auth.UserIDFromContext(c.Request().Context()))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

type autoApplyRequest struct {
	PatientID uuid.UUID `json:"patient_id"`
}

func (h *Handler) AutoApply(c echo.Context) error {
	invoiceID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req autoApplyRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	result, err := h.svc.AutoApply(c.Request().Context(), req.PatientID, invoiceID,
		auth.UserIDFromContext(c.Request().Context()))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

// -- Credit notes --

type issueCreditNoteRequest struct {
	PatientID       uuid.UUID       `json:"patient_id"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
	Reason          string          `json:"reason"`
	SourceInvoiceID *uuid.UUID      `json:"source_invoice_id,omitempty"`
}

func (h *Handler) IssueCreditNote(c echo.Context) error {
	var req issueCreditNoteRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	cn := &CreditNote{
		PatientID:       req.PatientID,
		Amount:          req.Amount,
		Currency:        req.Currency,
		Reason:          req.Reason,
		SourceInvoiceID: req.SourceInvoiceID,
		CreatedBy:       auth.UserIDFromContext(c.Request().Context()),
	}
	cn, err := h.svc.IssueCreditNote(c.Request().Context(), cn)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, cn)
}

type applyCreditNoteRequest struct {
	InvoiceID uuid.UUID `json:"invoice_id"`
}

func (h *Handler) ApplyCreditNote(c echo.Context) error {
	creditNoteID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req applyCreditNoteRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	result, err := h.svc.ApplyCreditNote(c.Request().Context(), creditNoteID, req.InvoiceID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

func (h *Handler) ListCreditNotes(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	pg := pagination.FromContext(c)
	notes, total, err := h.svc.ListCreditNotes(c.Request().Context(), patientID, pg.Limit, pg.Offset)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(notes, total, pg.Limit, pg.Offset))
}

// -- Refunds --

type requestRefundRequest struct {
	PatientID     uuid.UUID       `json:"patient_id"`
	Amount        decimal.Decimal `json:"amount"`
	RefundMethod  string          `json:"refund_method"`
	RequestReason string          `json:"request_reason"`
	DepositID     *uuid.UUID      `json:"deposit_id,omitempty"`
	CreditNoteID  *uuid.UUID      `json:"credit_note_id,omitempty"`
	PaymentID     *uuid.UUID      `json:"payment_id,omitempty"`
	BankDetails   *string         `json:"bank_details,omitempty"`
	Notes         *string         `json:"notes,omitempty"`
}

func (h *Handler) RequestRefund(c echo.Context) error {
	var req requestRefundRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	r := &Refund{
		PatientID:     req.PatientID,
		Amount:        req.Amount,
		RefundMethod:  req.RefundMethod,
		RequestReason: req.RequestReason,
		DepositID:     req.DepositID,
		CreditNoteID:  req.CreditNoteID,
		PaymentID:     req.PaymentID,
		BankDetails:   req.BankDetails,
		Notes:         req.Notes,
		RequestedBy:   auth.UserIDFromContext(c.Request().Context()),
	}
	r, err := h.svc.RequestRefund(c.Request().Context(), r)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, r)
}

func (h *Handler) ApproveRefund(c echo.Context) error {
	refundID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	r, err := h.svc.ApproveRefund(c.Request().Context(), refundID,
		auth.UserIDFromContext(c.Request().Context()))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, r)
}

func (h *Handler) ProcessRefund(c echo.Context) error {
	refundID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	r, err := h.svc.ProcessRefund(c.Request().Context(), refundID,
		auth.UserIDFromContext(c.Request().Context()))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, r)
}

type rejectRefundRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) RejectRefund(c echo.Context) error {
	refundID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req rejectRefundRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	r, err := h.svc.RejectRefund(c.Request().Context(), refundID, req.Reason,
		auth.UserIDFromContext(c.Request().Context()))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, r)
}

func (h *Handler) ListRefunds(c echo.Context) error {
	var f RefundFilter
	if v := c.QueryParam("patient_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
		}
		f.PatientID = &id
	}
	if v := c.QueryParam("status"); v != "" {
		f.Status = &v
	}
	pg := pagination.FromContext(c)
	refunds, total, err := h.svc.ListRefunds(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(refunds, total, pg.Limit, pg.Offset))
}
