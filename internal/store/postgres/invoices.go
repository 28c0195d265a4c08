package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"tokosera/backend/internal/domain"
	"tokosera/backend/internal/store"
	"tokosera/backend/internal/xid"
)

// effectiveInvoiceStatus surfaces overdue lazily: a sent or partially
// paid invoice past its due date reads as overdue without a row update.
const effectiveInvoiceStatus = `
	CASE WHEN status IN ('sent','partially_paid') AND due_date < now() AND amount_due_cents > 0
		THEN 'overdue' ELSE status END`

func (s *Store) CreateInvoice(ctx context.Context, invoice domain.Invoice) (*domain.Invoice, error) {
	if len(invoice.Items) == 0 {
		return nil, store.ErrInvalidInput
	}
	if invoice.ID == "" {
		invoice.ID = xid.New("inv")
	}
	if invoice.CreatedAt.IsZero() {
		invoice.CreatedAt = time.Now().UTC()
	}
	if invoice.IssueDate.IsZero() {
		invoice.IssueDate = invoice.CreatedAt
	}
	if invoice.Status == "" {
		invoice.Status = domain.InvoiceStatusDraft
	}

	totalCents := int64(0)
	for _, item := range invoice.Items {
		if item.Qty < 1 || item.UnitPriceCents < 0 {
			return nil, store.ErrInvalidInput
		}
		totalCents += item.UnitPriceCents * int64(item.Qty)
	}
	invoice.TotalCents = totalCents
	invoice.AmountDue = totalCents

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO invoices (id, number, customer_id, status, issue_date, due_date, total_cents, amount_due_cents, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, invoice.ID, invoice.Number, invoice.CustomerID, invoice.Status, invoice.IssueDate,
		invoice.DueDate, invoice.TotalCents, invoice.AmountDue, invoice.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}

	for idx, item := range invoice.Items {
		_, err := pgTx.ExecContext(ctx, `
			INSERT INTO invoice_items (invoice_id, line_no, description, product_id, qty, unit_price_cents)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, invoice.ID, idx+1, item.Description, nullIfEmpty(item.ProductID), item.Qty, item.UnitPriceCents)
		if err != nil {
			return nil, err
		}
	}

	// The customer owes the invoice from the moment it exists; cancelling
	// reverses whatever is still unpaid.
	result, err := pgTx.ExecContext(ctx, `
		UPDATE customers
		SET balance_cents = balance_cents + $2
		WHERE id = $1 AND active = true
	`, invoice.CustomerID, invoice.TotalCents)
	if err != nil {
		return nil, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrInvalidInput
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}

	created := invoice
	return &created, nil
}

func (s *Store) GetInvoice(ctx context.Context, id string) (*domain.Invoice, error) {
	var invoice domain.Invoice
	err := s.db.QueryRowContext(ctx, `
		SELECT id, number, customer_id, `+effectiveInvoiceStatus+`, issue_date, due_date,
			total_cents, amount_due_cents, created_at
		FROM invoices
		WHERE id = $1 OR number = $1
	`, id).Scan(&invoice.ID, &invoice.Number, &invoice.CustomerID, &invoice.Status, &invoice.IssueDate,
		&invoice.DueDate, &invoice.TotalCents, &invoice.AmountDue, &invoice.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	invoice.IssueDate = invoice.IssueDate.UTC()
	invoice.DueDate = invoice.DueDate.UTC()
	invoice.CreatedAt = invoice.CreatedAt.UTC()

	itemRows, err := s.db.QueryContext(ctx, `
		SELECT description, COALESCE(product_id, ''), qty, unit_price_cents
		FROM invoice_items
		WHERE invoice_id = $1
		ORDER BY line_no
	`, invoice.ID)
	if err != nil {
		return nil, err
	}
	for itemRows.Next() {
		var item domain.InvoiceItem
		if err := itemRows.Scan(&item.Description, &item.ProductID, &item.Qty, &item.UnitPriceCents); err != nil {
			_ = itemRows.Close()
			return nil, err
		}
		invoice.Items = append(invoice.Items, item)
	}
	if err := itemRows.Err(); err != nil {
		_ = itemRows.Close()
		return nil, err
	}
	_ = itemRows.Close()

	paymentRows, err := s.db.QueryContext(ctx, `
		SELECT id, invoice_id, amount_cents, method, COALESCE(reference, ''), paid_at
		FROM invoice_payments
		WHERE invoice_id = $1
		ORDER BY paid_at ASC
	`, invoice.ID)
	if err != nil {
		return nil, err
	}
	defer paymentRows.Close()

	for paymentRows.Next() {
		var payment domain.InvoicePayment
		if err := paymentRows.Scan(&payment.ID, &payment.InvoiceID, &payment.AmountCents, &payment.Method, &payment.Reference, &payment.PaidAt); err != nil {
			return nil, err
		}
		payment.PaidAt = payment.PaidAt.UTC()
		invoice.Payments = append(invoice.Payments, payment)
	}
	if err := paymentRows.Err(); err != nil {
		return nil, err
	}
	return &invoice, nil
}

func (s *Store) ListInvoices(ctx context.Context, status string, limit int) ([]domain.Invoice, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, number, customer_id, `+effectiveInvoiceStatus+` AS eff_status, issue_date, due_date,
			total_cents, amount_due_cents, created_at
		FROM invoices
		WHERE ($1 = '' OR `+effectiveInvoiceStatus+` = $1)
		ORDER BY created_at DESC
		LIMIT $2
	`, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	invoices := make([]domain.Invoice, 0, limit)
	for rows.Next() {
		var invoice domain.Invoice
		if err := rows.Scan(&invoice.ID, &invoice.Number, &invoice.CustomerID, &invoice.Status, &invoice.IssueDate,
			&invoice.DueDate, &invoice.TotalCents, &invoice.AmountDue, &invoice.CreatedAt); err != nil {
			return nil, err
		}
		invoice.IssueDate = invoice.IssueDate.UTC()
		invoice.DueDate = invoice.DueDate.UTC()
		invoice.CreatedAt = invoice.CreatedAt.UTC()
		invoices = append(invoices, invoice)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return invoices, nil
}

func (s *Store) MarkInvoiceSent(ctx context.Context, id string) (*domain.Invoice, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE invoices
		SET status = $2
		WHERE (id = $1 OR number = $1) AND status = $3
	`, id, domain.InvoiceStatusSent, domain.InvoiceStatusDraft)
	if err != nil {
		return nil, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		if _, getErr := s.GetInvoice(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, store.ErrConflict
	}
	return s.GetInvoice(ctx, id)
}

func (s *Store) CancelInvoice(ctx context.Context, id string) (*domain.Invoice, error) {
	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	var invoiceID, customerID, status string
	var amountDue int64
	err = pgTx.QueryRowContext(ctx, `
		SELECT id, customer_id, status, amount_due_cents
		FROM invoices
		WHERE id = $1 OR number = $1
		FOR UPDATE
	`, id).Scan(&invoiceID, &customerID, &status, &amountDue)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if status == domain.InvoiceStatusPaid || status == domain.InvoiceStatusCancelled {
		return nil, store.ErrConflict
	}

	_, err = pgTx.ExecContext(ctx, `
		UPDATE invoices
		SET status = $2, amount_due_cents = 0
		WHERE id = $1
	`, invoiceID, domain.InvoiceStatusCancelled)
	if err != nil {
		return nil, err
	}

	_, err = pgTx.ExecContext(ctx, `
		UPDATE customers
		SET balance_cents = balance_cents - $2
		WHERE id = $1
	`, customerID, amountDue)
	if err != nil {
		return nil, err
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}
	return s.GetInvoice(ctx, invoiceID)
}

func (s *Store) AddInvoicePayment(ctx context.Context, payment domain.InvoicePayment) (*domain.Invoice, error) {
	if payment.AmountCents < 1 {
		return nil, store.ErrInvalidInput
	}
	if payment.ID == "" {
		payment.ID = xid.New("pay")
	}
	if payment.PaidAt.IsZero() {
		payment.PaidAt = time.Now().UTC()
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	var invoiceID, customerID, status string
	var amountDue int64
	err = pgTx.QueryRowContext(ctx, `
		SELECT id, customer_id, status, amount_due_cents
		FROM invoices
		WHERE id = $1 OR number = $1
		FOR UPDATE
	`, payment.InvoiceID).Scan(&invoiceID, &customerID, &status, &amountDue)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	switch status {
	case domain.InvoiceStatusSent, domain.InvoiceStatusPartiallyPaid, domain.InvoiceStatusOverdue:
	default:
		return nil, store.ErrConflict
	}
	if payment.AmountCents > amountDue {
		return nil, store.ErrInvalidInput
	}

	payment.InvoiceID = invoiceID
	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO invoice_payments (id, invoice_id, amount_cents, method, reference, paid_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, payment.ID, payment.InvoiceID, payment.AmountCents, payment.Method, nullIfEmpty(payment.Reference), payment.PaidAt)
	if err != nil {
		return nil, err
	}

	newDue := amountDue - payment.AmountCents
	newStatus := domain.InvoiceStatusPartiallyPaid
	if newDue == 0 {
		newStatus = domain.InvoiceStatusPaid
	}
	_, err = pgTx.ExecContext(ctx, `
		UPDATE invoices
		SET amount_due_cents = $2, status = $3
		WHERE id = $1
	`, invoiceID, newDue, newStatus)
	if err != nil {
		return nil, err
	}

	_, err = pgTx.ExecContext(ctx, `
		UPDATE customers
		SET balance_cents = balance_cents - $2
		WHERE id = $1
	`, customerID, payment.AmountCents)
	if err != nil {
		return nil, err
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}
	return s.GetInvoice(ctx, invoiceID)
}

func (s *Store) CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	return s.createCounterparty(ctx, "customers", "cust", customer)
}

func (s *Store) GetCustomer(ctx context.Context, id string) (*domain.Customer, error) {
	return s.getCounterparty(ctx, "customers", id)
}

func (s *Store) ListCustomers(ctx context.Context, includeInactive bool, limit int) ([]domain.Customer, error) {
	return s.listCounterparties(ctx, "customers", includeInactive, limit)
}

func (s *Store) UpdateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	return s.updateCounterparty(ctx, "customers", customer)
}

func (s *Store) CreateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	created, err := s.createCounterparty(ctx, "suppliers", "sup", domain.Customer(supplier))
	if err != nil {
		return nil, err
	}
	result := domain.Supplier(*created)
	return &result, nil
}

func (s *Store) GetSupplier(ctx context.Context, id string) (*domain.Supplier, error) {
	found, err := s.getCounterparty(ctx, "suppliers", id)
	if err != nil {
		return nil, err
	}
	result := domain.Supplier(*found)
	return &result, nil
}

func (s *Store) ListSuppliers(ctx context.Context, includeInactive bool, limit int) ([]domain.Supplier, error) {
	customers, err := s.listCounterparties(ctx, "suppliers", includeInactive, limit)
	if err != nil {
		return nil, err
	}
	suppliers := make([]domain.Supplier, 0, len(customers))
	for _, c := range customers {
		suppliers = append(suppliers, domain.Supplier(c))
	}
	return suppliers, nil
}

func (s *Store) UpdateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	updated, err := s.updateCounterparty(ctx, "suppliers", domain.Customer(supplier))
	if err != nil {
		return nil, err
	}
	result := domain.Supplier(*updated)
	return &result, nil
}

// Customers and suppliers share a shape; the table name is the only
// difference. It is interpolated from a fixed set, never from input.
func (s *Store) createCounterparty(ctx context.Context, table string, prefix string, c domain.Customer) (*domain.Customer, error) {
	if c.ID == "" {
		c.ID = xid.New(prefix)
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	c.Active = true

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO `+table+` (id, name, phone, email, balance_cents, active, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, c.ID, c.Name, nullIfEmpty(c.Phone), nullIfEmpty(c.Email), c.BalanceCents, c.Active, c.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}

	created := c
	return &created, nil
}

func (s *Store) getCounterparty(ctx context.Context, table string, id string) (*domain.Customer, error) {
	var c domain.Customer
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, COALESCE(phone, ''), COALESCE(email, ''), balance_cents, active, created_at
		FROM `+table+`
		WHERE id = $1
	`, id).Scan(&c.ID, &c.Name, &c.Phone, &c.Email, &c.BalanceCents, &c.Active, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	c.CreatedAt = c.CreatedAt.UTC()
	return &c, nil
}

func (s *Store) listCounterparties(ctx context.Context, table string, includeInactive bool, limit int) ([]domain.Customer, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, COALESCE(phone, ''), COALESCE(email, ''), balance_cents, active, created_at
		FROM `+table+`
		WHERE ($1 OR active = true)
		ORDER BY name
		LIMIT $2
	`, includeInactive, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	list := make([]domain.Customer, 0, limit)
	for rows.Next() {
		var c domain.Customer
		if err := rows.Scan(&c.ID, &c.Name, &c.Phone, &c.Email, &c.BalanceCents, &c.Active, &c.CreatedAt); err != nil {
			return nil, err
		}
		c.CreatedAt = c.CreatedAt.UTC()
		list = append(list, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return list, nil
}

func (s *Store) updateCounterparty(ctx context.Context, table string, c domain.Customer) (*domain.Customer, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE `+table+`
		SET name = $2, phone = $3, email = $4, active = $5
		WHERE id = $1
	`, c.ID, c.Name, nullIfEmpty(c.Phone), nullIfEmpty(c.Email), c.Active)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}
	return s.getCounterparty(ctx, table, c.ID)
}

// GetCustomerStatement builds the invoice/payment ledger for a customer
// with a windowed cumulative balance, ordered by transaction date then
// creation time.
func (s *Store) GetCustomerStatement(ctx context.Context, customerID string) (*domain.CustomerStatement, error) {
	customer, err := s.getCounterparty(ctx, "customers", customerID)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT date, kind, reference, amount_cents,
			SUM(amount_cents) OVER (ORDER BY date ASC, created_at ASC) AS running_balance
		FROM (
			SELECT issue_date AS date, 'invoice' AS kind, number AS reference,
				total_cents AS amount_cents, created_at
			FROM invoices
			WHERE customer_id = $1 AND status <> 'cancelled'
			UNION ALL
			SELECT p.paid_at AS date, 'payment' AS kind, i.number AS reference,
				-p.amount_cents AS amount_cents, p.paid_at AS created_at
			FROM invoice_payments p
			JOIN invoices i ON i.id = p.invoice_id
			WHERE i.customer_id = $1
		) ledger
		ORDER BY date ASC, created_at ASC
	`, customerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	statement := domain.CustomerStatement{
		CustomerID:   customer.ID,
		CustomerName: customer.Name,
		BalanceCents: customer.BalanceCents,
		Lines:        make([]domain.StatementLine, 0, 32),
	}
	for rows.Next() {
		var line domain.StatementLine
		if err := rows.Scan(&line.Date, &line.Kind, &line.Reference, &line.AmountCents, &line.RunningBalance); err != nil {
			return nil, err
		}
		line.Date = line.Date.UTC()
		statement.Lines = append(statement.Lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &statement, nil
}

func (s *Store) CreateExpense(ctx context.Context, expense domain.Expense) (*domain.Expense, error) {
	if expense.ID == "" {
		expense.ID = xid.New("exp")
	}
	if expense.CreatedAt.IsZero() {
		expense.CreatedAt = time.Now().UTC()
	}
	if expense.IncurredAt.IsZero() {
		expense.IncurredAt = expense.CreatedAt
	}
	expense.Active = true

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO expenses (id, category, amount_cents, note, incurred_at, recorded_by, active, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, expense.ID, expense.Category, expense.AmountCents, nullIfEmpty(expense.Note),
		expense.IncurredAt, expense.RecordedBy, expense.Active, expense.CreatedAt)
	if err != nil {
		return nil, err
	}

	created := expense
	return &created, nil
}

func (s *Store) GetExpense(ctx context.Context, id string) (*domain.Expense, error) {
	var expense domain.Expense
	err := s.db.QueryRowContext(ctx, `
		SELECT id, category, amount_cents, COALESCE(note, ''), incurred_at, recorded_by, active, created_at
		FROM expenses
		WHERE id = $1
	`, id).Scan(&expense.ID, &expense.Category, &expense.AmountCents, &expense.Note,
		&expense.IncurredAt, &expense.RecordedBy, &expense.Active, &expense.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	expense.IncurredAt = expense.IncurredAt.UTC()
	expense.CreatedAt = expense.CreatedAt.UTC()
	return &expense, nil
}

func (s *Store) ListExpenses(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.Expense, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, category, amount_cents, COALESCE(note, ''), incurred_at, recorded_by, active, created_at
		FROM expenses
		WHERE active = true AND incurred_at >= $1 AND incurred_at < $2
		ORDER BY incurred_at DESC
		LIMIT $3
	`, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	expenses := make([]domain.Expense, 0, limit)
	for rows.Next() {
		var expense domain.Expense
		if err := rows.Scan(&expense.ID, &expense.Category, &expense.AmountCents, &expense.Note,
			&expense.IncurredAt, &expense.RecordedBy, &expense.Active, &expense.CreatedAt); err != nil {
			return nil, err
		}
		expense.IncurredAt = expense.IncurredAt.UTC()
		expense.CreatedAt = expense.CreatedAt.UTC()
		expenses = append(expenses, expense)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return expenses, nil
}

func (s *Store) UpdateExpense(ctx context.Context, expense domain.Expense) (*domain.Expense, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE expenses
		SET category = $2, amount_cents = $3, note = $4, incurred_at = $5, active = $6
		WHERE id = $1
	`, expense.ID, expense.Category, expense.AmountCents, nullIfEmpty(expense.Note), expense.IncurredAt, expense.Active)
	if err != nil {
		return nil, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}
	return s.GetExpense(ctx, expense.ID)
}
