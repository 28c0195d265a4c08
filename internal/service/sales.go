package service

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"tokosera/backend/internal/domain"
	"tokosera/backend/internal/store"
)

func isSupportedPaymentMethod(method string) bool {
	switch method {
	case "cash", "card", "qris", "transfer":
		return true
	default:
		return false
	}
}

func (s *Service) CreateSale(ctx context.Context, req domain.SaleCreateRequest) (domain.Sale, error) {
	if err := requireRole(ctx, domain.RoleCashier); err != nil {
		return domain.Sale{}, err
	}

	if req.PaymentMethod == "" {
		req.PaymentMethod = "cash"
	}
	if !isSupportedPaymentMethod(req.PaymentMethod) {
		return domain.Sale{}, fmt.Errorf("%w: unsupported payment method %q", store.ErrInvalidInput, req.PaymentMethod)
	}
	if req.DiscountCents < 0 {
		return domain.Sale{}, store.ErrInvalidInput
	}
	if req.TaxRatePct < 0 || req.TaxRatePct > 100 {
		return domain.Sale{}, store.ErrInvalidInput
	}
	if len(req.Items) == 0 {
		return domain.Sale{}, store.ErrInvalidInput
	}

	if req.CustomerID != "" {
		customer, err := s.repo.GetCustomer(ctx, req.CustomerID)
		if err != nil {
			return domain.Sale{}, fmt.Errorf("%w: unknown customer %s", store.ErrInvalidInput, req.CustomerID)
		}
		req.CustomerID = customer.ID
	}

	// Collapse duplicate lines before pricing.
	qtyByProduct := make(map[string]int, len(req.Items))
	order := make([]string, 0, len(req.Items))
	for _, line := range req.Items {
		if line.Qty < 1 {
			return domain.Sale{}, store.ErrInvalidInput
		}
		if _, seen := qtyByProduct[line.ProductID]; !seen {
			order = append(order, line.ProductID)
		}
		qtyByProduct[line.ProductID] += line.Qty
	}

	products, err := s.repo.GetProductsByIDs(ctx, order)
	if err != nil {
		return domain.Sale{}, err
	}

	subtotal := int64(0)
	items := make([]domain.SaleItem, 0, len(order))
	for _, productID := range order {
		product, exists := products[productID]
		if !exists || !product.Active {
			return domain.Sale{}, fmt.Errorf("%w: product %s unavailable", store.ErrInvalidInput, productID)
		}
		qty := qtyByProduct[productID]
		items = append(items, domain.SaleItem{
			ProductID:      product.ID,
			SKU:            product.SKU,
			Name:           product.Name,
			Qty:            qty,
			UnitPriceCents: product.PriceCents,
		})
		subtotal += product.PriceCents * int64(qty)
	}

	if req.DiscountCents > subtotal {
		return domain.Sale{}, fmt.Errorf("%w: discount exceeds subtotal", store.ErrInvalidInput)
	}

	taxRate := req.TaxRatePct
	if taxRate == 0 {
		if settings, err := s.repo.GetSettings(ctx); err == nil {
			taxRate = settings.DefaultTaxRatePct
		}
	}
	taxBase := subtotal - req.DiscountCents
	taxCents := int64(math.Round(float64(taxBase) * taxRate / 100))

	now := time.Now().UTC()
	number, err := s.nextNumber(ctx, "sale", "SAL", now)
	if err != nil {
		return domain.Sale{}, err
	}

	actor, _ := ActorFromContext(ctx)
	created, err := s.repo.CreateSale(ctx, domain.Sale{
		Number:        number,
		CustomerID:    req.CustomerID,
		Cashier:       actor.Username,
		SubtotalCents: subtotal,
		DiscountCents: req.DiscountCents,
		TaxCents:      taxCents,
		TotalCents:    taxBase + taxCents,
		PaymentMethod: req.PaymentMethod,
		Status:        domain.SaleStatusCompleted,
		CreatedAt:     now,
		Items:         items,
	})
	if err != nil {
		return domain.Sale{}, err
	}

	s.invalidateReports(ctx)
	s.logAudit(ctx, "sale_create", "sale", created.Number, fmt.Sprintf("total=%d,payment=%s", created.TotalCents, created.PaymentMethod))
	return *created, nil
}

func (s *Service) GetSale(ctx context.Context, id string) (domain.Sale, error) {
	sale, err := s.repo.GetSale(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Sale{}, err
	}
	return *sale, nil
}

func (s *Service) ListSales(ctx context.Context, date string, status string, limit int) ([]domain.Sale, error) {
	from, to, err := dayRange(date)
	if err != nil {
		return nil, err
	}
	return s.repo.ListSales(ctx, from, to, status, limit)
}

func (s *Service) VoidSale(ctx context.Context, id string, req domain.SaleVoidRequest) (domain.Sale, error) {
	if err := requirePermission(ctx, domain.PermSalesVoid); err != nil {
		return domain.Sale{}, err
	}

	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		return domain.Sale{}, fmt.Errorf("%w: void reason required", store.ErrInvalidInput)
	}

	voided, err := s.repo.VoidSale(ctx, strings.TrimSpace(id), reason, time.Now().UTC())
	if err != nil {
		return domain.Sale{}, err
	}

	s.invalidateReports(ctx)
	s.logAudit(ctx, "sale_void", "sale", voided.Number, "reason="+reason)
	return *voided, nil
}

func (s *Service) RefundSale(ctx context.Context, id string, req domain.SaleRefundRequest) (domain.SaleRefundResponse, error) {
	if err := requirePermission(ctx, domain.PermSalesRefund); err != nil {
		return domain.SaleRefundResponse{}, err
	}

	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		return domain.SaleRefundResponse{}, fmt.Errorf("%w: refund reason required", store.ErrInvalidInput)
	}

	refunded, err := s.repo.RefundSale(ctx, strings.TrimSpace(id), req.Items, reason, time.Now().UTC())
	if err != nil {
		return domain.SaleRefundResponse{}, err
	}

	s.invalidateReports(ctx)
	s.logAudit(ctx, "sale_refund", "sale", refunded.SaleID, fmt.Sprintf("amount=%d,restocked=%d", refunded.AmountCents, refunded.RestockedQty))
	return *refunded, nil
}

func (s *Service) HoldOrder(ctx context.Context, req domain.HoldCreateRequest) (domain.HeldOrder, error) {
	if err := requireRole(ctx, domain.RoleCashier); err != nil {
		return domain.HeldOrder{}, err
	}

	if len(req.Items) == 0 {
		return domain.HeldOrder{}, store.ErrInvalidInput
	}
	for _, item := range req.Items {
		if item.Qty < 1 {
			return domain.HeldOrder{}, store.ErrInvalidInput
		}
		if _, err := s.repo.GetProduct(ctx, item.ProductID); err != nil {
			return domain.HeldOrder{}, fmt.Errorf("%w: unknown product %s", store.ErrInvalidInput, item.ProductID)
		}
	}

	now := time.Now().UTC()
	expiresAt := now.Add(domain.DefaultHoldTTL)
	if req.ExpiresInMinutes > 0 {
		expiresAt = now.Add(time.Duration(req.ExpiresInMinutes) * time.Minute)
	}

	actor, _ := ActorFromContext(ctx)
	created, err := s.repo.CreateHeldOrder(ctx, domain.HeldOrder{
		CustomerID: strings.TrimSpace(req.CustomerID),
		Cashier:    actor.Username,
		Note:       strings.TrimSpace(req.Note),
		Status:     domain.HoldStatusActive,
		Items:      req.Items,
		ExpiresAt:  expiresAt,
		CreatedAt:  now,
	})
	if err != nil {
		return domain.HeldOrder{}, err
	}

	s.logAudit(ctx, "hold_create", "held_order", created.ID, fmt.Sprintf("items=%d,expires=%s", len(created.Items), created.ExpiresAt.Format(time.RFC3339)))
	return *created, nil
}

func (s *Service) GetHeldOrder(ctx context.Context, id string) (domain.HeldOrder, error) {
	hold, err := s.repo.GetHeldOrder(ctx, strings.TrimSpace(id), time.Now().UTC())
	if err != nil {
		return domain.HeldOrder{}, err
	}
	return *hold, nil
}

func (s *Service) ListHeldOrders(ctx context.Context, limit int) ([]domain.HeldOrder, error) {
	return s.repo.ListHeldOrders(ctx, time.Now().UTC(), limit)
}

func (s *Service) ResumeHeldOrder(ctx context.Context, id string) (domain.HeldOrder, error) {
	if err := requireRole(ctx, domain.RoleCashier); err != nil {
		return domain.HeldOrder{}, err
	}

	resumed, err := s.repo.ResumeHeldOrder(ctx, strings.TrimSpace(id), time.Now().UTC())
	if err != nil {
		return domain.HeldOrder{}, err
	}

	s.logAudit(ctx, "hold_resume", "held_order", resumed.ID, "")
	return *resumed, nil
}

func (s *Service) DiscardHeldOrder(ctx context.Context, id string) error {
	if err := requireRole(ctx, domain.RoleCashier); err != nil {
		return err
	}

	if err := s.repo.DiscardHeldOrder(ctx, strings.TrimSpace(id), time.Now().UTC()); err != nil {
		return err
	}

	s.logAudit(ctx, "hold_discard", "held_order", id, "")
	return nil
}
