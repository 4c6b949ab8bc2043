package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/ehr/ledger/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

func connFor(ctx context.Context, pool *pgxpool.Pool) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return pool
}

// -- Deposits --

type depositRepoPG struct{ pool *pgxpool.Pool }

func NewDepositRepoPG(pool *pgxpool.Pool) DepositRepository { return &depositRepoPG{pool: pool} }

const depositCols = `id, patient_id, amount, currency, remaining_balance,
	payment_method, reference_number, reason, status, created_by, created_at`

func scanDeposit(row pgx.Row) (*Deposit, error) {
	var d Deposit
	err := row.Scan(&d.ID, &d.PatientID, &d.Amount, &d.Currency, &d.RemainingBalance,
		&d.PaymentMethod, &d.ReferenceNumber, &d.Reason, &d.Status, &d.CreatedBy, &d.CreatedAt)
	return &d, err
}

func (r *depositRepoPG) Create(ctx context.Context, d *Deposit) error {
	d.ID = uuid.New()
	_, err := connFor(ctx, r.pool).Exec(ctx, `
		INSERT INTO deposits (id, patient_id, amount, currency, remaining_balance,
			payment_method, reference_number, reason, status, created_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		d.ID, d.PatientID, d.Amount, d.Currency, d.RemainingBalance,
		d.PaymentMethod, d.ReferenceNumber, d.Reason, d.Status, d.CreatedBy)
	return err
}

func (r *depositRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Deposit, error) {
	return scanDeposit(connFor(ctx, r.pool).QueryRow(ctx,
		`SELECT `+depositCols+` FROM deposits WHERE id = $1`, id))
}

func (r *depositRepoPG) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*Deposit, error) {
	return scanDeposit(connFor(ctx, r.pool).QueryRow(ctx,
		`SELECT `+depositCols+` FROM deposits WHERE id = $1 FOR UPDATE`, id))
}

func (r *depositRepoPG) ListActiveForUpdate(ctx context.Context, patientID uuid.UUID) ([]*Deposit, error) {
	rows, err := connFor(ctx, r.pool).Query(ctx, `
		SELECT `+depositCols+` FROM deposits
		WHERE patient_id = $1 AND status = $2 AND remaining_balance > 0
		ORDER BY created_at, id
		FOR UPDATE`, patientID, DepositActive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var deposits []*Deposit
	for rows.Next() {
		d, err := scanDeposit(rows)
		if err != nil {
			return nil, err
		}
		deposits = append(deposits, d)
	}
	return deposits, rows.Err()
}

func (r *depositRepoPG) UpdateBalance(ctx context.Context, d *Deposit) error {
	_, err := connFor(ctx, r.pool).Exec(ctx, `
		UPDATE deposits SET remaining_balance = $2, status = $3 WHERE id = $1`,
		d.ID, d.RemainingBalance, d.Status)
	return err
}

func (r *depositRepoPG) SumActiveBalance(ctx context.Context, patientID uuid.UUID) (decimal.Decimal, int, error) {
	var total decimal.Decimal
	var count int
	err := connFor(ctx, r.pool).QueryRow(ctx, `
		SELECT COALESCE(SUM(remaining_balance), 0), COUNT(*)
		FROM deposits WHERE patient_id = $1 AND status = $2`,
		patientID, DepositActive).Scan(&total, &count)
	return total, count, err
}

func (r *depositRepoPG) List(ctx context.Context, f DepositFilter, limit, offset int) ([]*Deposit, int, error) {
	where := "1=1"
	args := []interface{}{}
	idx := 1
	if f.PatientID != nil {
		where += fmt.Sprintf(" AND patient_id = $%d", idx)
		args = append(args, *f.PatientID)
		idx++
	}
	if f.Status != nil {
		where += fmt.Sprintf(" AND status = $%d", idx)
		args = append(args, *f.Status)
		idx++
	}
	if f.From != nil {
		where += fmt.Sprintf(" AND created_at >= $%d", idx)
		args = append(args, *f.From)
		idx++
	}
	if f.To != nil {
		where += fmt.Sprintf(" AND created_at <= $%d", idx)
		args = append(args, *f.To)
		idx++
	}

	var total int
	if err := connFor(ctx, r.pool).QueryRow(ctx,
		`SELECT COUNT(*) FROM deposits WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT %s FROM deposits WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		depositCols, where, idx, idx+1)
	args = append(args, limit, offset)
	rows, err := connFor(ctx, r.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var deposits []*Deposit
	for rows.Next() {
		d, err := scanDeposit(rows)
		if err != nil {
			return nil, 0, err
		}
		deposits = append(deposits, d)
	}
	return deposits, total, rows.Err()
}

// -- Ledger entries --

type entryRepoPG struct{ pool *pgxpool.Pool }

func NewEntryRepoPG(pool *pgxpool.Pool) EntryRepository { return &entryRepoPG{pool: pool} }

const entryCols = `id, deposit_id, type, amount, invoice_id, description, created_by, created_at`

func scanEntry(row pgx.Row) (*Entry, error) {
	var e Entry
	err := row.Scan(&e.ID, &e.DepositID, &e.Type, &e.Amount, &e.InvoiceID,
		&e.Description, &e.CreatedBy, &e.CreatedAt)
	return &e, err
}

func (r *entryRepoPG) Create(ctx context.Context, e *Entry) error {
	e.ID = uuid.New()
	_, err := connFor(ctx, r.pool).Exec(ctx, `
		INSERT INTO ledger_entries (id, deposit_id, type, amount, invoice_id, description, created_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		e.ID, e.DepositID, e.Type, e.Amount, e.InvoiceID, e.Description, e.CreatedBy)
	return err
}

func (r *entryRepoPG) ListByDeposit(ctx context.Context, depositID uuid.UUID) ([]*Entry, error) {
	rows, err := connFor(ctx, r.pool).Query(ctx,
		`SELECT `+entryCols+` FROM ledger_entries WHERE deposit_id = $1 ORDER BY created_at, id`,
		depositID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []*Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *entryRepoPG) CountByDeposit(ctx context.Context, depositID uuid.UUID) (int, error) {
	var count int
	err := connFor(ctx, r.pool).QueryRow(ctx,
		`SELECT COUNT(*) FROM ledger_entries WHERE deposit_id = $1`, depositID).Scan(&count)
	return count, err
}

// -- Credit notes --

type creditNoteRepoPG struct{ pool *pgxpool.Pool }

func NewCreditNoteRepoPG(pool *pgxpool.Pool) CreditNoteRepository {
	return &creditNoteRepoPG{pool: pool}
}

const creditNoteCols = `id, patient_id, amount, currency, reason, source_invoice_id,
	status, applied_to_invoice_id, created_by, created_at, applied_at`

func scanCreditNote(row pgx.Row) (*CreditNote, error) {
	var cn CreditNote
	err := row.Scan(&cn.ID, &cn.PatientID, &cn.Amount, &cn.Currency, &cn.Reason,
		&cn.SourceInvoiceID, &cn.Status, &cn.AppliedToInvoiceID, &cn.CreatedBy,
		&cn.CreatedAt, &cn.AppliedAt)
	return &cn, err
}

func (r *creditNoteRepoPG) Create(ctx context.Context, cn *CreditNote) error {
	cn.ID = uuid.New()
	_, err := connFor(ctx, r.pool).Exec(ctx, `
		INSERT INTO credit_notes (id, patient_id, amount, currency, reason,
			source_invoice_id, status, created_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		cn.ID, cn.PatientID, cn.Amount, cn.Currency, cn.Reason,
		cn.SourceInvoiceID, cn.Status, cn.CreatedBy)
	return err
}

func (r *creditNoteRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*CreditNote, error) {
	return scanCreditNote(connFor(ctx, r.pool).QueryRow(ctx,
		`SELECT `+creditNoteCols+` FROM credit_notes WHERE id = $1`, id))
}

func (r *creditNoteRepoPG) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*CreditNote, error) {
	return scanCreditNote(connFor(ctx, r.pool).QueryRow(ctx,
		`SELECT `+creditNoteCols+` FROM credit_notes WHERE id = $1 FOR UPDATE`, id))
}

func (r *creditNoteRepoPG) MarkApplied(ctx context.Context, cn *CreditNote) error {
	_, err := connFor(ctx, r.pool).Exec(ctx, `
		UPDATE credit_notes
		SET status = $2, applied_to_invoice_id = $3, applied_at = $4
		WHERE id = $1`,
		cn.ID, cn.Status, cn.AppliedToInvoiceID, cn.AppliedAt)
	return err
}

func (r *creditNoteRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*CreditNote, int, error) {
	var total int
	if err := connFor(ctx, r.pool).QueryRow(ctx,
		`SELECT COUNT(*) FROM credit_notes WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := connFor(ctx, r.pool).Query(ctx,
		`SELECT `+creditNoteCols+` FROM credit_notes WHERE patient_id = $1
		 ORDER BY created_at DESC LIMIT $2 OFFSET $3`, patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var notes []*CreditNote
	for rows.Next() {
		cn, err := scanCreditNote(rows)
		if err != nil {
			return nil, 0, err
		}
		notes = append(notes, cn)
	}
	return notes, total, rows.Err()
}

// -- Refunds --

type refundRepoPG struct{ pool *pgxpool.Pool }

func NewRefundRepoPG(pool *pgxpool.Pool) RefundRepository { return &refundRepoPG{pool: pool} }

const refundCols = `id, patient_id, amount, refund_method, request_reason,
	deposit_id, credit_note_id, payment_id, bank_details, notes, status,
	rejection_reason, rejected_by, requested_by, approved_by, processed_by,
	processed_at, created_at, updated_at`

func scanRefund(row pgx.Row) (*Refund, error) {
	var rf Refund
	err := row.Scan(&rf.ID, &rf.PatientID, &rf.Amount, &rf.RefundMethod, &rf.RequestReason,
		&rf.DepositID, &rf.CreditNoteID, &rf.PaymentID, &rf.BankDetails, &rf.Notes,
		&rf.Status, &rf.RejectionReason, &rf.RejectedBy, &rf.RequestedBy, &rf.ApprovedBy,
		&rf.ProcessedBy, &rf.ProcessedAt, &rf.CreatedAt, &rf.UpdatedAt)
	return &rf, err
}

func (r *refundRepoPG) Create(ctx context.Context, rf *Refund) error {
	rf.ID = uuid.New()
	_, err := connFor(ctx, r.pool).Exec(ctx, `
		INSERT INTO refunds (id, patient_id, amount, refund_method, request_reason,
			deposit_id, credit_note_id, payment_id, bank_details, notes, status, requested_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		rf.ID, rf.PatientID, rf.Amount, rf.RefundMethod, rf.RequestReason,
		rf.DepositID, rf.CreditNoteID, rf.PaymentID, rf.BankDetails, rf.Notes,
		rf.Status, rf.RequestedBy)
	return err
}

func (r *refundRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Refund, error) {
	return scanRefund(connFor(ctx, r.pool).QueryRow(ctx,
		`SELECT `+refundCols+` FROM refunds WHERE id = $1`, id))
}

func (r *refundRepoPG) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*Refund, error) {
	return scanRefund(connFor(ctx, r.pool).QueryRow(ctx,
		`SELECT `+refundCols+` FROM refunds WHERE id = $1 FOR UPDATE`, id))
}

func (r *refundRepoPG) UpdateStatus(ctx context.Context, rf *Refund) error {
	_, err := connFor(ctx, r.pool).Exec(ctx, `
		UPDATE refunds
		SET status = $2, rejection_reason = $3, rejected_by = $4, approved_by = $5,
			processed_by = $6, processed_at = $7, updated_at = now()
		WHERE id = $1`,
		rf.ID, rf.Status, rf.RejectionReason, rf.RejectedBy, rf.ApprovedBy,
		rf.ProcessedBy, rf.ProcessedAt)
	return err
}

func (r *refundRepoPG) List(ctx context.Context, f RefundFilter, limit, offset int) ([]*Refund, int, error) {
	where := "1=1"
	args := []interface{}{}
	idx := 1
	if f.PatientID != nil {
		where += fmt.Sprintf(" AND patient_id = $%d", idx)
		args = append(args, *f.PatientID)
		idx++
	}
	if f.Status != nil {
		where += fmt.Sprintf(" AND status = $%d", idx)
		args = append(args, *f.Status)
		idx++
	}

	var total int
	if err := connFor(ctx, r.pool).QueryRow(ctx,
		`SELECT COUNT(*) FROM refunds WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT %s FROM refunds WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		refundCols, where, idx, idx+1)
	args = append(args, limit, offset)
	rows, err := connFor(ctx, r.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var refunds []*Refund
	for rows.Next() {
		rf, err := scanRefund(rows)
		if err != nil {
			return nil, 0, err
		}
		refunds = append(refunds, rf)
	}
	return refunds, total, rows.Err()
}
