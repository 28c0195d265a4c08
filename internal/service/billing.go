package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"tokosera/backend/internal/domain"
	"tokosera/backend/internal/store"
)

func (s *Service) CreateInvoice(ctx context.Context, req domain.InvoiceCreateRequest) (domain.Invoice, error) {
	if err := requireRole(ctx, domain.RoleCashier); err != nil {
		return domain.Invoice{}, err
	}

	req.CustomerID = strings.TrimSpace(req.CustomerID)
	if req.CustomerID == "" || len(req.Items) == 0 {
		return domain.Invoice{}, store.ErrInvalidInput
	}

	customer, err := s.repo.GetCustomer(ctx, req.CustomerID)
	if err != nil {
		return domain.Invoice{}, fmt.Errorf("%w: unknown customer %s", store.ErrInvalidInput, req.CustomerID)
	}
	if !customer.Active {
		return domain.Invoice{}, fmt.Errorf("%w: customer %s is inactive", store.ErrInvalidInput, customer.ID)
	}

	dueDate, err := time.Parse("2006-01-02", req.DueDate)
	if err != nil {
		return domain.Invoice{}, fmt.Errorf("%w: invalid due date %q", store.ErrInvalidInput, req.DueDate)
	}

	now := time.Now().UTC()
	if dueDate.Before(now.Truncate(24 * time.Hour)) {
		return domain.Invoice{}, fmt.Errorf("%w: due date is in the past", store.ErrInvalidInput)
	}

	for idx := range req.Items {
		item := &req.Items[idx]
		item.Description = strings.TrimSpace(item.Description)
		if item.Qty < 1 || item.UnitPriceCents < 0 {
			return domain.Invoice{}, store.ErrInvalidInput
		}
		if item.ProductID != "" {
			product, err := s.repo.GetProduct(ctx, item.ProductID)
			if err != nil {
				return domain.Invoice{}, fmt.Errorf("%w: unknown product %s", store.ErrInvalidInput, item.ProductID)
			}
			item.ProductID = product.ID
			if item.Description == "" {
				item.Description = product.Name
			}
		}
		if item.Description == "" {
			return domain.Invoice{}, store.ErrInvalidInput
		}
	}

	number, err := s.nextNumber(ctx, "invoice", "INV", now)
	if err != nil {
		return domain.Invoice{}, err
	}

	created, err := s.repo.CreateInvoice(ctx, domain.Invoice{
		Number:     number,
		CustomerID: customer.ID,
		Status:     domain.InvoiceStatusDraft,
		IssueDate:  now,
		DueDate:    dueDate.UTC(),
		CreatedAt:  now,
		Items:      req.Items,
	})
	if err != nil {
		return domain.Invoice{}, err
	}

	s.logAudit(ctx, "invoice_create", "invoice", created.Number, fmt.Sprintf("customer=%s,total=%d", customer.ID, created.TotalCents))
	return *created, nil
}

func (s *Service) GetInvoice(ctx context.Context, id string) (domain.Invoice, error) {
	invoice, err := s.repo.GetInvoice(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Invoice{}, err
	}
	return *invoice, nil
}

func (s *Service) ListInvoices(ctx context.Context, status string, limit int) ([]domain.Invoice, error) {
	return s.repo.ListInvoices(ctx, status, limit)
}

func (s *Service) MarkInvoiceSent(ctx context.Context, id string) (domain.Invoice, error) {
	if err := requireRole(ctx, domain.RoleCashier); err != nil {
		return domain.Invoice{}, err
	}

	sent, err := s.repo.MarkInvoiceSent(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Invoice{}, err
	}

	s.logAudit(ctx, "invoice_send", "invoice", sent.Number, "")
	return *sent, nil
}

func (s *Service) CancelInvoice(ctx context.Context, id string) (domain.Invoice, error) {
	if err := requireRole(ctx, domain.RoleManager); err != nil {
		return domain.Invoice{}, err
	}

	cancelled, err := s.repo.CancelInvoice(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Invoice{}, err
	}

	s.logAudit(ctx, "invoice_cancel", "invoice", cancelled.Number, "")
	return *cancelled, nil
}

func (s *Service) AddInvoicePayment(ctx context.Context, invoiceID string, req domain.InvoicePaymentRequest) (domain.Invoice, error) {
	if err := requireRole(ctx, domain.RoleCashier); err != nil {
		return domain.Invoice{}, err
	}

	if req.AmountCents < 1 {
		return domain.Invoice{}, store.ErrInvalidInput
	}
	if req.Method == "" {
		req.Method = "cash"
	}
	if !isSupportedPaymentMethod(req.Method) {
		return domain.Invoice{}, fmt.Errorf("%w: unsupported payment method %q", store.ErrInvalidInput, req.Method)
	}

	updated, err := s.repo.AddInvoicePayment(ctx, domain.InvoicePayment{
		InvoiceID:   strings.TrimSpace(invoiceID),
		AmountCents: req.AmountCents,
		Method:      req.Method,
		Reference:   strings.TrimSpace(req.Reference),
		PaidAt:      time.Now().UTC(),
	})
	if err != nil {
		return domain.Invoice{}, err
	}

	s.logAudit(ctx, "invoice_payment", "invoice", updated.Number, fmt.Sprintf("amount=%d,method=%s", req.AmountCents, req.Method))
	return *updated, nil
}

func validateCounterparty(req domain.CounterpartyRequest) (domain.CounterpartyRequest, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Phone = strings.TrimSpace(req.Phone)
	req.Email = strings.TrimSpace(req.Email)
	if req.Name == "" {
		return req, store.ErrInvalidInput
	}
	if req.Email != "" && !strings.Contains(req.Email, "@") {
		return req, fmt.Errorf("%w: invalid email", store.ErrInvalidInput)
	}
	return req, nil
}

func (s *Service) CreateCustomer(ctx context.Context, req domain.CounterpartyRequest) (domain.Customer, error) {
	if err := requireRole(ctx, domain.RoleCashier); err != nil {
		return domain.Customer{}, err
	}

	req, err := validateCounterparty(req)
	if err != nil {
		return domain.Customer{}, err
	}

	created, err := s.repo.CreateCustomer(ctx, domain.Customer{
		Name:      req.Name,
		Phone:     req.Phone,
		Email:     req.Email,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return domain.Customer{}, err
	}

	s.logAudit(ctx, "customer_create", "customer", created.ID, "name="+created.Name)
	return *created, nil
}

func (s *Service) GetCustomer(ctx context.Context, id string) (domain.Customer, error) {
	customer, err := s.repo.GetCustomer(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Customer{}, err
	}
	return *customer, nil
}

func (s *Service) ListCustomers(ctx context.Context, includeInactive bool, limit int) ([]domain.Customer, error) {
	return s.repo.ListCustomers(ctx, includeInactive, limit)
}

func (s *Service) UpdateCustomer(ctx context.Context, id string, req domain.CounterpartyUpdateRequest) (domain.Customer, error) {
	if err := requireRole(ctx, domain.RoleCashier); err != nil {
		return domain.Customer{}, err
	}

	existing, err := s.repo.GetCustomer(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Customer{}, err
	}

	updated := *existing
	if err := applyCounterpartyUpdate(&updated.Name, &updated.Phone, &updated.Email, &updated.Active, req); err != nil {
		return domain.Customer{}, err
	}

	result, err := s.repo.UpdateCustomer(ctx, updated)
	if err != nil {
		return domain.Customer{}, err
	}

	s.logAudit(ctx, "customer_update", "customer", result.ID, fmt.Sprintf("active=%t", result.Active))
	return *result, nil
}

func applyCounterpartyUpdate(name *string, phone *string, email *string, active *bool, req domain.CounterpartyUpdateRequest) error {
	if req.Name != nil {
		trimmed := strings.TrimSpace(*req.Name)
		if trimmed == "" {
			return store.ErrInvalidInput
		}
		*name = trimmed
	}
	if req.Phone != nil {
		*phone = strings.TrimSpace(*req.Phone)
	}
	if req.Email != nil {
		trimmed := strings.TrimSpace(*req.Email)
		if trimmed != "" && !strings.Contains(trimmed, "@") {
			return fmt.Errorf("%w: invalid email", store.ErrInvalidInput)
		}
		*email = trimmed
	}
	if req.Active != nil {
		*active = *req.Active
	}
	return nil
}

func (s *Service) GetCustomerStatement(ctx context.Context, customerID string) (domain.CustomerStatement, error) {
	statement, err := s.repo.GetCustomerStatement(ctx, strings.TrimSpace(customerID))
	if err != nil {
		return domain.CustomerStatement{}, err
	}
	return *statement, nil
}

func (s *Service) CreateSupplier(ctx context.Context, req domain.CounterpartyRequest) (domain.Supplier, error) {
	if err := requireRole(ctx, domain.RoleManager); err != nil {
		return domain.Supplier{}, err
	}

	req, err := validateCounterparty(req)
	if err != nil {
		return domain.Supplier{}, err
	}

	created, err := s.repo.CreateSupplier(ctx, domain.Supplier{
		Name:      req.Name,
		Phone:     req.Phone,
		Email:     req.Email,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return domain.Supplier{}, err
	}

	s.logAudit(ctx, "supplier_create", "supplier", created.ID, "name="+created.Name)
	return *created, nil
}

func (s *Service) GetSupplier(ctx context.Context, id string) (domain.Supplier, error) {
	supplier, err := s.repo.GetSupplier(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Supplier{}, err
	}
	return *supplier, nil
}

func (s *Service) ListSuppliers(ctx context.Context, includeInactive bool, limit int) ([]domain.Supplier, error) {
	return s.repo.ListSuppliers(ctx, includeInactive, limit)
}

func (s *Service) UpdateSupplier(ctx context.Context, id string, req domain.CounterpartyUpdateRequest) (domain.Supplier, error) {
	if err := requireRole(ctx, domain.RoleManager); err != nil {
		return domain.Supplier{}, err
	}

	existing, err := s.repo.GetSupplier(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Supplier{}, err
	}

	updated := *existing
	if err := applyCounterpartyUpdate(&updated.Name, &updated.Phone, &updated.Email, &updated.Active, req); err != nil {
		return domain.Supplier{}, err
	}

	result, err := s.repo.UpdateSupplier(ctx, updated)
	if err != nil {
		return domain.Supplier{}, err
	}

	s.logAudit(ctx, "supplier_update", "supplier", result.ID, fmt.Sprintf("active=%t", result.Active))
	return *result, nil
}

func (s *Service) CreateExpense(ctx context.Context, req domain.ExpenseRequest) (domain.Expense, error) {
	if err := requireRole(ctx, domain.RoleCashier); err != nil {
		return domain.Expense{}, err
	}

	req.Category = strings.TrimSpace(req.Category)
	if req.Category == "" || req.AmountCents < 1 {
		return domain.Expense{}, store.ErrInvalidInput
	}

	now := time.Now().UTC()
	incurredAt := now
	if req.IncurredAt != "" {
		parsed, err := time.Parse("2006-01-02", req.IncurredAt)
		if err != nil {
			return domain.Expense{}, fmt.Errorf("%w: invalid date %q", store.ErrInvalidInput, req.IncurredAt)
		}
		incurredAt = parsed.UTC()
	}

	actor, _ := ActorFromContext(ctx)
	created, err := s.repo.CreateExpense(ctx, domain.Expense{
		Category:    req.Category,
		AmountCents: req.AmountCents,
		Note:        strings.TrimSpace(req.Note),
		IncurredAt:  incurredAt,
		RecordedBy:  actor.Username,
		Active:      true,
		CreatedAt:   now,
	})
	if err != nil {
		return domain.Expense{}, err
	}

	s.logAudit(ctx, "expense_create", "expense", created.ID, fmt.Sprintf("category=%s,amount=%d", created.Category, created.AmountCents))
	return *created, nil
}

func (s *Service) ListExpenses(ctx context.Context, date string, limit int) ([]domain.Expense, error) {
	from, to, err := dayRange(date)
	if err != nil {
		return nil, err
	}
	return s.repo.ListExpenses(ctx, from, to, limit)
}

func (s *Service) UpdateExpense(ctx context.Context, id string, req domain.ExpenseRequest) (domain.Expense, error) {
	if err := requireRole(ctx, domain.RoleManager); err != nil {
		return domain.Expense{}, err
	}

	existing, err := s.repo.GetExpense(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Expense{}, err
	}

	updated := *existing
	if req.Category != "" {
		updated.Category = strings.TrimSpace(req.Category)
	}
	if req.AmountCents > 0 {
		updated.AmountCents = req.AmountCents
	}
	if req.Note != "" {
		updated.Note = strings.TrimSpace(req.Note)
	}
	if req.IncurredAt != "" {
		parsed, err := time.Parse("2006-01-02", req.IncurredAt)
		if err != nil {
			return domain.Expense{}, fmt.Errorf("%w: invalid date %q", store.ErrInvalidInput, req.IncurredAt)
		}
		updated.IncurredAt = parsed.UTC()
	}

	result, err := s.repo.UpdateExpense(ctx, updated)
	if err != nil {
		return domain.Expense{}, err
	}

	s.logAudit(ctx, "expense_update", "expense", result.ID, "")
	return *result, nil
}

// RemoveExpense is the soft delete behind DELETE /api/expenses/{id}.
func (s *Service) RemoveExpense(ctx context.Context, id string) error {
	if err := requireRole(ctx, domain.RoleManager); err != nil {
		return err
	}

	existing, err := s.repo.GetExpense(ctx, strings.TrimSpace(id))
	if err != nil {
		return err
	}

	existing.Active = false
	if _, err := s.repo.UpdateExpense(ctx, *existing); err != nil {
		return err
	}

	s.logAudit(ctx, "expense_remove", "expense", existing.ID, "")
	return nil
}
