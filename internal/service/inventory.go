package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"tokosera/backend/internal/domain"
	"tokosera/backend/internal/store"
)

// movementSign maps adjustment types to the sign applied to the
// requested quantity. Sale and purchase_receipt movements are written by
// their own flows, never through a manual adjustment.
func movementSign(movementType string) (int, error) {
	switch movementType {
	case domain.MovementAdjustmentIn, domain.MovementReturn:
		return 1, nil
	case domain.MovementAdjustmentOut, domain.MovementDamage, domain.MovementExpiry:
		return -1, nil
	default:
		return 0, fmt.Errorf("%w: unknown adjustment type %q", store.ErrInvalidInput, movementType)
	}
}

func (s *Service) AdjustStock(ctx context.Context, req domain.StockAdjustmentRequest) (domain.StockAdjustmentResponse, error) {
	if err := requireRole(ctx, domain.RoleManager); err != nil {
		return domain.StockAdjustmentResponse{}, err
	}

	req.ProductID = strings.TrimSpace(req.ProductID)
	if req.ProductID == "" || req.Qty < 1 {
		return domain.StockAdjustmentResponse{}, store.ErrInvalidInput
	}
	sign, err := movementSign(req.Type)
	if err != nil {
		return domain.StockAdjustmentResponse{}, err
	}
	if sign > 0 && req.UnitCostCents < 0 {
		return domain.StockAdjustmentResponse{}, store.ErrInvalidInput
	}

	product, err := s.repo.GetProduct(ctx, req.ProductID)
	if err != nil {
		return domain.StockAdjustmentResponse{}, err
	}

	now := time.Now().UTC()
	reference, err := s.nextNumber(ctx, "adjustment", "ADJ", now)
	if err != nil {
		return domain.StockAdjustmentResponse{}, err
	}

	actor, _ := ActorFromContext(ctx)
	unitCost := req.UnitCostCents
	if sign > 0 && unitCost == 0 {
		unitCost = product.CostCents
	}

	movement, qtyOnHand, err := s.repo.ApplyStockAdjustment(ctx, domain.StockMovement{
		ProductID: product.ID,
		Type:      req.Type,
		Qty:       sign * req.Qty,
		Reference: reference,
		Note:      strings.TrimSpace(req.Note),
		Actor:     actor.Username,
		CreatedAt: now,
	}, unitCost)
	if err != nil {
		return domain.StockAdjustmentResponse{}, err
	}

	s.invalidateReports(ctx)
	s.logAudit(ctx, "stock_adjust", "product", product.SKU, fmt.Sprintf("type=%s,qty=%d,ref=%s", req.Type, movement.Qty, reference))

	return domain.StockAdjustmentResponse{
		Reference: reference,
		Movement:  *movement,
		QtyOnHand: qtyOnHand,
	}, nil
}

func (s *Service) ListBatches(ctx context.Context, productID string, activeOnly bool) ([]domain.InventoryBatch, error) {
	product, err := s.repo.GetProduct(ctx, strings.TrimSpace(productID))
	if err != nil {
		return nil, err
	}
	return s.repo.ListBatches(ctx, product.ID, activeOnly)
}

func (s *Service) ListMovements(ctx context.Context, productID string, limit int) ([]domain.LedgerEntry, error) {
	product, err := s.repo.GetProduct(ctx, strings.TrimSpace(productID))
	if err != nil {
		return nil, err
	}
	return s.repo.ListMovements(ctx, product.ID, limit)
}

func (s *Service) CreateGoodsReceipt(ctx context.Context, req domain.GoodsReceiptCreateRequest) (domain.GoodsReceipt, error) {
	if err := requireRole(ctx, domain.RoleManager); err != nil {
		return domain.GoodsReceipt{}, err
	}

	req.SupplierID = strings.TrimSpace(req.SupplierID)
	if req.SupplierID == "" || len(req.Items) == 0 {
		return domain.GoodsReceipt{}, store.ErrInvalidInput
	}

	supplier, err := s.repo.GetSupplier(ctx, req.SupplierID)
	if err != nil {
		return domain.GoodsReceipt{}, err
	}
	if !supplier.Active {
		return domain.GoodsReceipt{}, fmt.Errorf("%w: supplier %s is inactive", store.ErrInvalidInput, supplier.ID)
	}

	totalCents := int64(0)
	for _, item := range req.Items {
		if item.Qty < 1 || item.UnitCostCents < 0 {
			return domain.GoodsReceipt{}, store.ErrInvalidInput
		}
		if _, err := s.repo.GetProduct(ctx, item.ProductID); err != nil {
			return domain.GoodsReceipt{}, fmt.Errorf("%w: unknown product %s", store.ErrInvalidInput, item.ProductID)
		}
		totalCents += item.UnitCostCents * int64(item.Qty)
	}

	now := time.Now().UTC()
	number, err := s.nextNumber(ctx, "goods_receipt", "GRN", now)
	if err != nil {
		return domain.GoodsReceipt{}, err
	}

	actor, _ := ActorFromContext(ctx)
	created, err := s.repo.CreateGoodsReceipt(ctx, domain.GoodsReceipt{
		Number:     number,
		SupplierID: supplier.ID,
		Status:     domain.ReceiptStatusDraft,
		Note:       strings.TrimSpace(req.Note),
		TotalCents: totalCents,
		CreatedBy:  actor.Username,
		CreatedAt:  now,
		Items:      req.Items,
	})
	if err != nil {
		return domain.GoodsReceipt{}, err
	}

	s.logAudit(ctx, "goods_receipt_create", "goods_receipt", created.Number, fmt.Sprintf("supplier=%s,total=%d", supplier.ID, totalCents))
	return *created, nil
}

func (s *Service) GetGoodsReceipt(ctx context.Context, id string) (domain.GoodsReceipt, error) {
	receipt, err := s.repo.GetGoodsReceipt(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.GoodsReceipt{}, err
	}
	return *receipt, nil
}

func (s *Service) ListGoodsReceipts(ctx context.Context, status string, limit int) ([]domain.GoodsReceipt, error) {
	return s.repo.ListGoodsReceipts(ctx, status, limit)
}

func (s *Service) FinalizeGoodsReceipt(ctx context.Context, id string) (domain.GoodsReceipt, error) {
	if err := requirePermission(ctx, domain.PermGoodsReceiptFinalize); err != nil {
		return domain.GoodsReceipt{}, err
	}

	finalized, err := s.repo.FinalizeGoodsReceipt(ctx, strings.TrimSpace(id), time.Now().UTC())
	if err != nil {
		return domain.GoodsReceipt{}, err
	}

	s.invalidateReports(ctx)
	s.logAudit(ctx, "goods_receipt_finalize", "goods_receipt", finalized.Number, fmt.Sprintf("total=%d", finalized.TotalCents))
	return *finalized, nil
}

func (s *Service) CancelGoodsReceipt(ctx context.Context, id string) (domain.GoodsReceipt, error) {
	if err := requireRole(ctx, domain.RoleManager); err != nil {
		return domain.GoodsReceipt{}, err
	}

	cancelled, err := s.repo.CancelGoodsReceipt(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.GoodsReceipt{}, err
	}

	s.logAudit(ctx, "goods_receipt_cancel", "goods_receipt", cancelled.Number, "")
	return *cancelled, nil
}
