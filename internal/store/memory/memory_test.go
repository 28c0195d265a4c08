package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"tokosera/backend/internal/domain"
	"tokosera/backend/internal/store"
)

func seedProduct(t *testing.T, s *Store, costing string) domain.Product {
	t.Helper()

	product, err := s.CreateProduct(context.Background(), domain.Product{
		SKU:           "PRD-00001",
		Name:          "Susu UHT 1L",
		Category:      "dairy",
		PriceCents:    18900,
		CostCents:     13600,
		CostingMethod: costing,
		Active:        true,
		CreatedAt:     time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("seed product: %v", err)
	}
	return *product
}

func adjustInAt(t *testing.T, s *Store, productID string, qty int, unitCost int64, at time.Time) {
	t.Helper()

	_, _, err := s.ApplyStockAdjustment(context.Background(), domain.StockMovement{
		ProductID: productID,
		Type:      domain.MovementAdjustmentIn,
		Qty:       qty,
		Reference: "ADJ-TEST",
		Actor:     "tester",
		CreatedAt: at,
	}, unitCost)
	if err != nil {
		t.Fatalf("adjust in: %v", err)
	}
}

func TestSaleSplitsAcrossBatchesInFIFOOrder(t *testing.T) {
	s := New()
	product := seedProduct(t, s, domain.CostingFIFO)
	base := time.Now().UTC().Add(-time.Hour)

	adjustInAt(t, s, product.ID, 3, 1000, base)
	adjustInAt(t, s, product.ID, 5, 2000, base.Add(time.Minute))

	sale, err := s.CreateSale(context.Background(), domain.Sale{
		Number:        "SAL-2026-0001",
		Cashier:       "kasir",
		PaymentMethod: "cash",
		Items: []domain.SaleItem{
			{ProductID: product.ID, Qty: 5, UnitPriceCents: 18900},
		},
	})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}

	// 3 units from the 1000-cost batch, 2 from the 2000-cost batch:
	// weighted cost (3*1000 + 2*2000) / 5 = 1400.
	if sale.Items[0].UnitCostCents != 1400 {
		t.Fatalf("expected weighted FIFO cost 1400, got %d", sale.Items[0].UnitCostCents)
	}

	entries, err := s.ListMovements(context.Background(), product.ID, 50)
	if err != nil {
		t.Fatalf("list movements: %v", err)
	}
	// Two in-adjustments plus one sale portion per depleted batch.
	if len(entries) != 4 {
		t.Fatalf("expected 4 movements, got %d", len(entries))
	}
	if entries[2].Qty != -3 || entries[3].Qty != -2 {
		t.Fatalf("expected sale portions -3 then -2, got %d and %d", entries[2].Qty, entries[3].Qty)
	}
	if entries[3].RunningQty != 3 {
		t.Fatalf("expected running qty 3 after sale, got %d", entries[3].RunningQty)
	}

	batches, err := s.ListBatches(context.Background(), product.ID, true)
	if err != nil {
		t.Fatalf("list batches: %v", err)
	}
	if len(batches) != 1 || batches[0].QtyRemaining != 3 {
		t.Fatalf("expected one active batch with 3 remaining, got %+v", batches)
	}
}

func TestSaleUsesProductCostForNonFIFOMethods(t *testing.T) {
	s := New()
	product := seedProduct(t, s, domain.CostingStandard)
	adjustInAt(t, s, product.ID, 10, 9999, time.Now().UTC().Add(-time.Hour))

	sale, err := s.CreateSale(context.Background(), domain.Sale{
		Number:        "SAL-2026-0001",
		Cashier:       "kasir",
		PaymentMethod: "cash",
		Items: []domain.SaleItem{
			{ProductID: product.ID, Qty: 2, UnitPriceCents: 18900},
		},
	})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}
	if sale.Items[0].UnitCostCents != product.CostCents {
		t.Fatalf("expected standard cost %d, got %d", product.CostCents, sale.Items[0].UnitCostCents)
	}
}

func TestOutAdjustmentNeverSplitsBatches(t *testing.T) {
	s := New()
	product := seedProduct(t, s, domain.CostingFIFO)
	base := time.Now().UTC().Add(-time.Hour)

	adjustInAt(t, s, product.ID, 6, 1000, base)
	adjustInAt(t, s, product.ID, 10, 2000, base.Add(time.Minute))

	_, _, err := s.ApplyStockAdjustment(context.Background(), domain.StockMovement{
		ProductID: product.ID,
		Type:      domain.MovementAdjustmentOut,
		Qty:       -8,
		Reference: "ADJ-TEST-OUT",
		Actor:     "tester",
		CreatedAt: time.Now().UTC(),
	}, 0)
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock when oldest batch holds 6, got %v", err)
	}

	// Nothing moved.
	batches, err := s.ListBatches(context.Background(), product.ID, true)
	if err != nil {
		t.Fatalf("list batches: %v", err)
	}
	if batches[0].QtyRemaining != 6 || batches[1].QtyRemaining != 10 {
		t.Fatalf("expected batches untouched, got %+v", batches)
	}
}

func TestFinalizeReceiptValidatesAllLinesBeforeMutating(t *testing.T) {
	s := New()
	product := seedProduct(t, s, domain.CostingFIFO)

	supplier, err := s.CreateSupplier(context.Background(), domain.Supplier{
		Name:      "CV Sumber Pangan",
		Active:    true,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("create supplier: %v", err)
	}

	receipt, err := s.CreateGoodsReceipt(context.Background(), domain.GoodsReceipt{
		Number:     "GRN-2026-0001",
		SupplierID: supplier.ID,
		Status:     domain.ReceiptStatusDraft,
		CreatedBy:  "manajer",
		Items: []domain.GoodsReceiptItem{
			{ProductID: product.ID, Qty: 10, UnitCostCents: 13000},
			{ProductID: product.ID, Qty: 0, UnitCostCents: 13000},
		},
	})
	if err != nil {
		t.Fatalf("create receipt: %v", err)
	}

	if _, err := s.FinalizeGoodsReceipt(context.Background(), receipt.ID, time.Now().UTC()); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for zero-qty line, got %v", err)
	}

	// The valid first line must not have been applied.
	after, err := s.GetProduct(context.Background(), product.ID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if after.QtyOnHand != 0 {
		t.Fatalf("expected no inventory applied, got qty %d", after.QtyOnHand)
	}
	batches, err := s.ListBatches(context.Background(), product.ID, false)
	if err != nil {
		t.Fatalf("list batches: %v", err)
	}
	if len(batches) != 0 {
		t.Fatalf("expected no batches created, got %d", len(batches))
	}

	reread, err := s.GetGoodsReceipt(context.Background(), receipt.ID)
	if err != nil {
		t.Fatalf("get receipt: %v", err)
	}
	if reread.Status != domain.ReceiptStatusDraft {
		t.Fatalf("expected receipt still draft, got %q", reread.Status)
	}
}

func TestHeldOrderExpiryIsDistinctFromNotFound(t *testing.T) {
	s := New()
	product := seedProduct(t, s, domain.CostingFIFO)
	now := time.Now().UTC()

	hold, err := s.CreateHeldOrder(context.Background(), domain.HeldOrder{
		Cashier:   "kasir",
		Status:    domain.HoldStatusActive,
		Items:     []domain.HeldOrderItem{{ProductID: product.ID, Qty: 1}},
		ExpiresAt: now.Add(domain.DefaultHoldTTL),
		CreatedAt: now,
	})
	if err != nil {
		t.Fatalf("create hold: %v", err)
	}

	if _, err := s.GetHeldOrder(context.Background(), hold.ID, now); err != nil {
		t.Fatalf("expected active hold readable, got %v", err)
	}
	if _, err := s.GetHeldOrder(context.Background(), hold.ID, now.Add(25*time.Hour)); !errors.Is(err, store.ErrHoldExpired) {
		t.Fatalf("expected ErrHoldExpired, got %v", err)
	}
	if _, err := s.GetHeldOrder(context.Background(), "hold-nope", now); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	// Expired holds never show in the active list and cannot resume.
	holds, err := s.ListHeldOrders(context.Background(), now.Add(25*time.Hour), 50)
	if err != nil {
		t.Fatalf("list holds: %v", err)
	}
	if len(holds) != 0 {
		t.Fatalf("expected no active holds after expiry, got %d", len(holds))
	}
	if _, err := s.ResumeHeldOrder(context.Background(), hold.ID, now.Add(25*time.Hour)); err == nil {
		t.Fatalf("expected resume of expired hold to fail")
	}
}

func TestNextDocumentNumberIsMonotonic(t *testing.T) {
	s := New()
	ctx := context.Background()

	first, err := s.NextDocumentNumber(ctx, "sale", 2026)
	if err != nil {
		t.Fatalf("next number: %v", err)
	}
	second, err := s.NextDocumentNumber(ctx, "sale", 2026)
	if err != nil {
		t.Fatalf("next number: %v", err)
	}
	if first != 1 || second != 2 {
		t.Fatalf("expected 1 then 2, got %d then %d", first, second)
	}

	// Independent sequences per document type and year.
	other, err := s.NextDocumentNumber(ctx, "invoice", 2026)
	if err != nil {
		t.Fatalf("next number: %v", err)
	}
	if other != 1 {
		t.Fatalf("expected independent counter to start at 1, got %d", other)
	}
}
