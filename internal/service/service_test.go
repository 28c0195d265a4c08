package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"tokosera/backend/internal/domain"
	"tokosera/backend/internal/store"
	"tokosera/backend/internal/store/memory"
)

func newTestService(t *testing.T) (*Service, *memory.Store) {
	t.Helper()

	repo := memory.New()
	svc := New(repo, nil, time.Second, zerolog.Nop())
	return svc, repo
}

func asAdmin() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "admin", Role: domain.RoleAdmin})
}

func asManager() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "manajer", Role: domain.RoleManager})
}

func asCashier() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "kasir", Role: domain.RoleCashier})
}

func asStaff() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "magang", Role: domain.RoleStaff})
}

func mustCreateProduct(t *testing.T, svc *Service, name string, price, cost int64) domain.Product {
	t.Helper()

	product, err := svc.CreateProduct(asManager(), domain.ProductCreateRequest{
		Name:       name,
		Category:   "grocery",
		PriceCents: price,
		CostCents:  cost,
	})
	if err != nil {
		t.Fatalf("create product %s: %v", name, err)
	}
	return product
}

func mustAdjustIn(t *testing.T, svc *Service, productID string, qty int, unitCost int64) domain.StockAdjustmentResponse {
	t.Helper()

	resp, err := svc.AdjustStock(asManager(), domain.StockAdjustmentRequest{
		ProductID:     productID,
		Type:          domain.MovementAdjustmentIn,
		Qty:           qty,
		UnitCostCents: unitCost,
		Note:          "restock",
	})
	if err != nil {
		t.Fatalf("adjust in: %v", err)
	}
	return resp
}

func TestCreateProductGeneratesSequentialSKUs(t *testing.T) {
	svc, _ := newTestService(t)

	first := mustCreateProduct(t, svc, "Beras 5kg", 68500, 61000)
	second := mustCreateProduct(t, svc, "Minyak Goreng 1L", 18600, 15900)

	if first.SKU != "PRD-00001" {
		t.Fatalf("expected PRD-00001, got %q", first.SKU)
	}
	if second.SKU != "PRD-00002" {
		t.Fatalf("expected PRD-00002, got %q", second.SKU)
	}
}

func TestCreateProductRejectsDuplicateName(t *testing.T) {
	svc, _ := newTestService(t)
	mustCreateProduct(t, svc, "Beras 5kg", 68500, 61000)

	_, err := svc.CreateProduct(asManager(), domain.ProductCreateRequest{
		Name:       "Beras 5kg",
		Category:   "grocery",
		PriceCents: 68500,
		CostCents:  61000,
	})
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict for duplicate name, got %v", err)
	}
}

func TestCreateProductRejectsDuplicateBarcode(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.CreateProduct(asManager(), domain.ProductCreateRequest{
		Name:       "Beras 5kg",
		Barcode:    "8991002100015",
		Category:   "grocery",
		PriceCents: 68500,
		CostCents:  61000,
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}

	_, err = svc.CreateProduct(asManager(), domain.ProductCreateRequest{
		Name:       "Beras 10kg",
		Barcode:    "8991002100015",
		Category:   "grocery",
		PriceCents: 132000,
		CostCents:  118000,
	})
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict for duplicate barcode, got %v", err)
	}
}

func TestDeactivatedProductFreesItsIdentifiers(t *testing.T) {
	svc, _ := newTestService(t)
	product := mustCreateProduct(t, svc, "Beras 5kg", 68500, 61000)

	if _, err := svc.DeactivateProduct(asManager(), product.ID); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	// Collision checks only consider active products.
	if _, err := svc.CreateProduct(asManager(), domain.ProductCreateRequest{
		Name:       "Beras 5kg",
		Category:   "grocery",
		PriceCents: 68500,
		CostCents:  61000,
	}); err != nil {
		t.Fatalf("expected name reuse after deactivation, got %v", err)
	}
}

func TestCashierCannotCreateProduct(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.CreateProduct(asCashier(), domain.ProductCreateRequest{
		Name:       "Beras 5kg",
		Category:   "grocery",
		PriceCents: 68500,
		CostCents:  61000,
	})
	if err == nil {
		t.Fatalf("expected cashier product create to be rejected")
	}
}

func TestAdjustStockDepletesOldestBatchExactly(t *testing.T) {
	svc, repo := newTestService(t)
	product := mustCreateProduct(t, svc, "Susu UHT 1L", 18900, 13600)

	mustAdjustIn(t, svc, product.ID, 10, 13000)
	mustAdjustIn(t, svc, product.ID, 5, 13600)

	resp, err := svc.AdjustStock(asManager(), domain.StockAdjustmentRequest{
		ProductID: product.ID,
		Type:      domain.MovementDamage,
		Qty:       4,
		Note:      "dropped pallet",
	})
	if err != nil {
		t.Fatalf("damage adjustment: %v", err)
	}
	if resp.QtyOnHand != 11 {
		t.Fatalf("expected 11 on hand, got %d", resp.QtyOnHand)
	}
	if resp.Movement.Qty != -4 {
		t.Fatalf("expected signed qty -4, got %d", resp.Movement.Qty)
	}

	batches, err := repo.ListBatches(context.Background(), product.ID, true)
	if err != nil {
		t.Fatalf("list batches: %v", err)
	}
	if len(batches) != 2 {
		t.Fatalf("expected 2 active batches, got %d", len(batches))
	}
	// Oldest batch absorbs the whole depletion; the newer one is untouched.
	if batches[0].QtyRemaining != 6 {
		t.Fatalf("expected oldest batch at 6, got %d", batches[0].QtyRemaining)
	}
	if batches[1].QtyRemaining != 5 {
		t.Fatalf("expected newest batch untouched at 5, got %d", batches[1].QtyRemaining)
	}
}

func TestAdjustStockFailsWhenOldestBatchCannotCover(t *testing.T) {
	svc, _ := newTestService(t)
	product := mustCreateProduct(t, svc, "Susu UHT 1L", 18900, 13600)

	mustAdjustIn(t, svc, product.ID, 6, 13000)
	mustAdjustIn(t, svc, product.ID, 10, 13600)

	// 8 > 6: the oldest batch cannot cover it and depletion never splits.
	_, err := svc.AdjustStock(asManager(), domain.StockAdjustmentRequest{
		ProductID: product.ID,
		Type:      domain.MovementAdjustmentOut,
		Qty:       8,
		Note:      "shrinkage",
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
}

func TestMovementLedgerCarriesRunningBalance(t *testing.T) {
	svc, _ := newTestService(t)
	product := mustCreateProduct(t, svc, "Kopi Sachet", 2600, 1700)

	mustAdjustIn(t, svc, product.ID, 10, 1700)
	if _, err := svc.AdjustStock(asManager(), domain.StockAdjustmentRequest{
		ProductID: product.ID,
		Type:      domain.MovementDamage,
		Qty:       3,
		Note:      "water damage",
	}); err != nil {
		t.Fatalf("damage: %v", err)
	}

	entries, err := svc.ListMovements(asManager(), product.ID, 50)
	if err != nil {
		t.Fatalf("list movements: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 ledger entries, got %d", len(entries))
	}
	if entries[0].RunningQty != 10 || entries[1].RunningQty != 7 {
		t.Fatalf("unexpected running balances: %d then %d", entries[0].RunningQty, entries[1].RunningQty)
	}
}

func TestCreateSaleAppliesDefaultTaxRate(t *testing.T) {
	svc, _ := newTestService(t)
	product := mustCreateProduct(t, svc, "Roti Tawar", 17800, 12400)
	mustAdjustIn(t, svc, product.ID, 20, 12400)

	sale, err := svc.CreateSale(asCashier(), domain.SaleCreateRequest{
		PaymentMethod: "qris",
		Items:         []domain.SaleLineRequest{{ProductID: product.ID, Qty: 2}},
	})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}

	if sale.SubtotalCents != 35600 {
		t.Fatalf("expected subtotal 35600, got %d", sale.SubtotalCents)
	}
	// Default store tax rate is 11%.
	if sale.TaxCents != 3916 {
		t.Fatalf("expected tax 3916, got %d", sale.TaxCents)
	}
	if sale.TotalCents != 39516 {
		t.Fatalf("expected total 39516, got %d", sale.TotalCents)
	}
	if sale.Status != domain.SaleStatusCompleted {
		t.Fatalf("expected completed, got %q", sale.Status)
	}
}

func TestCreateSaleCollapsesDuplicateLines(t *testing.T) {
	svc, _ := newTestService(t)
	product := mustCreateProduct(t, svc, "Roti Tawar", 17800, 12400)
	mustAdjustIn(t, svc, product.ID, 20, 12400)

	sale, err := svc.CreateSale(asCashier(), domain.SaleCreateRequest{
		PaymentMethod: "cash",
		Items: []domain.SaleLineRequest{
			{ProductID: product.ID, Qty: 1},
			{ProductID: product.ID, Qty: 2},
		},
	})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}
	if len(sale.Items) != 1 {
		t.Fatalf("expected collapsed single line, got %d", len(sale.Items))
	}
	if sale.Items[0].Qty != 3 {
		t.Fatalf("expected qty 3, got %d", sale.Items[0].Qty)
	}
}

func TestCreateSaleRejectsInsufficientStock(t *testing.T) {
	svc, _ := newTestService(t)
	product := mustCreateProduct(t, svc, "Roti Tawar", 17800, 12400)
	mustAdjustIn(t, svc, product.ID, 2, 12400)

	_, err := svc.CreateSale(asCashier(), domain.SaleCreateRequest{
		PaymentMethod: "cash",
		Items:         []domain.SaleLineRequest{{ProductID: product.ID, Qty: 5}},
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
}

func TestSaleDocumentNumbersAreSequential(t *testing.T) {
	svc, _ := newTestService(t)
	product := mustCreateProduct(t, svc, "Roti Tawar", 17800, 12400)
	mustAdjustIn(t, svc, product.ID, 20, 12400)

	year := time.Now().UTC().Year()
	for i := 1; i <= 2; i++ {
		sale, err := svc.CreateSale(asCashier(), domain.SaleCreateRequest{
			PaymentMethod: "cash",
			Items:         []domain.SaleLineRequest{{ProductID: product.ID, Qty: 1}},
		})
		if err != nil {
			t.Fatalf("create sale %d: %v", i, err)
		}
		want := fmt.Sprintf("SAL-%d-%04d", year, i)
		if sale.Number != want {
			t.Fatalf("expected number %s, got %s", want, sale.Number)
		}
	}
}

func TestVoidSaleLifecycle(t *testing.T) {
	svc, _ := newTestService(t)
	product := mustCreateProduct(t, svc, "Roti Tawar", 17800, 12400)
	mustAdjustIn(t, svc, product.ID, 20, 12400)

	sale, err := svc.CreateSale(asCashier(), domain.SaleCreateRequest{
		PaymentMethod: "cash",
		Items:         []domain.SaleLineRequest{{ProductID: product.ID, Qty: 3}},
	})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}

	voided, err := svc.VoidSale(asManager(), sale.ID, domain.SaleVoidRequest{Reason: "customer cancelled"})
	if err != nil {
		t.Fatalf("void sale: %v", err)
	}
	if voided.Status != domain.SaleStatusVoided {
		t.Fatalf("expected voided, got %q", voided.Status)
	}

	// Voided stock comes back as a return batch.
	restocked, err := svc.GetProduct(asCashier(), product.ID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if restocked.QtyOnHand != 20 {
		t.Fatalf("expected qty restored to 20, got %d", restocked.QtyOnHand)
	}

	// A sale can only be voided from completed.
	if _, err := svc.VoidSale(asManager(), sale.ID, domain.SaleVoidRequest{Reason: "again"}); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict on double void, got %v", err)
	}
}

func TestVoidSaleRequiresManager(t *testing.T) {
	svc, _ := newTestService(t)
	product := mustCreateProduct(t, svc, "Roti Tawar", 17800, 12400)
	mustAdjustIn(t, svc, product.ID, 20, 12400)

	sale, err := svc.CreateSale(asCashier(), domain.SaleCreateRequest{
		PaymentMethod: "cash",
		Items:         []domain.SaleLineRequest{{ProductID: product.ID, Qty: 1}},
	})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}

	if _, err := svc.VoidSale(asCashier(), sale.ID, domain.SaleVoidRequest{Reason: "oops"}); err == nil {
		t.Fatalf("expected cashier void to be rejected")
	}
}

func TestRefundSaleTracksCumulativeQuantities(t *testing.T) {
	svc, _ := newTestService(t)
	product := mustCreateProduct(t, svc, "Roti Tawar", 17800, 12400)
	mustAdjustIn(t, svc, product.ID, 20, 12400)

	sale, err := svc.CreateSale(asCashier(), domain.SaleCreateRequest{
		PaymentMethod: "cash",
		Items:         []domain.SaleLineRequest{{ProductID: product.ID, Qty: 3}},
	})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}

	partial, err := svc.RefundSale(asManager(), sale.ID, domain.SaleRefundRequest{
		Reason: "one loaf moldy",
		Items:  []domain.SaleRefundLine{{ProductID: product.ID, Qty: 1}},
	})
	if err != nil {
		t.Fatalf("partial refund: %v", err)
	}
	if partial.Status != domain.SaleStatusCompleted {
		t.Fatalf("partial refund must not flip status, got %q", partial.Status)
	}
	if partial.RestockedQty != 1 {
		t.Fatalf("expected 1 restocked, got %d", partial.RestockedQty)
	}

	// Refunding more than remains sold is rejected.
	if _, err := svc.RefundSale(asManager(), sale.ID, domain.SaleRefundRequest{
		Reason: "too many",
		Items:  []domain.SaleRefundLine{{ProductID: product.ID, Qty: 3}},
	}); err == nil {
		t.Fatalf("expected over-refund to be rejected")
	}

	rest, err := svc.RefundSale(asManager(), sale.ID, domain.SaleRefundRequest{
		Reason: "remaining loaves",
		Items:  []domain.SaleRefundLine{{ProductID: product.ID, Qty: 2}},
	})
	if err != nil {
		t.Fatalf("final refund: %v", err)
	}
	if rest.Status != domain.SaleStatusRefunded {
		t.Fatalf("expected refunded after full return, got %q", rest.Status)
	}
}

func TestVoidRejectedAfterPartialRefund(t *testing.T) {
	svc, _ := newTestService(t)
	product := mustCreateProduct(t, svc, "Roti Tawar", 17800, 12400)
	mustAdjustIn(t, svc, product.ID, 10, 12400)

	sale, err := svc.CreateSale(asCashier(), domain.SaleCreateRequest{
		PaymentMethod: "cash",
		Items:         []domain.SaleLineRequest{{ProductID: product.ID, Qty: 4}},
	})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}

	if _, err := svc.RefundSale(asManager(), sale.ID, domain.SaleRefundRequest{
		Reason: "two loaves returned",
		Items:  []domain.SaleRefundLine{{ProductID: product.ID, Qty: 2}},
	}); err != nil {
		t.Fatalf("partial refund: %v", err)
	}

	// The refunded units are already back in stock; voiding now would
	// restock them a second time.
	if _, err := svc.VoidSale(asManager(), sale.ID, domain.SaleVoidRequest{Reason: "changed mind"}); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict voiding a partially refunded sale, got %v", err)
	}

	after, err := svc.GetProduct(asCashier(), product.ID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if after.QtyOnHand != 8 {
		t.Fatalf("expected qty on hand 8 after sale of 4 and refund of 2, got %d", after.QtyOnHand)
	}
}

func TestHoldOrderDefaultsTo24HourExpiry(t *testing.T) {
	svc, repo := newTestService(t)
	product := mustCreateProduct(t, svc, "Roti Tawar", 17800, 12400)

	hold, err := svc.HoldOrder(asCashier(), domain.HoldCreateRequest{
		Note:  "waiting for transfer",
		Items: []domain.HeldOrderItem{{ProductID: product.ID, Qty: 2}},
	})
	if err != nil {
		t.Fatalf("hold order: %v", err)
	}

	ttl := time.Until(hold.ExpiresAt)
	if ttl < 23*time.Hour || ttl > 25*time.Hour {
		t.Fatalf("expected ~24h expiry, got %s", ttl)
	}

	// After the expiry the hold is reported as expired, not missing.
	_, err = repo.GetHeldOrder(context.Background(), hold.ID, time.Now().UTC().Add(25*time.Hour))
	if !errors.Is(err, store.ErrHoldExpired) {
		t.Fatalf("expected ErrHoldExpired, got %v", err)
	}
	_, err = repo.GetHeldOrder(context.Background(), "hold-missing", time.Now().UTC())
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown hold, got %v", err)
	}
}

func TestGoodsReceiptFinalizeFlow(t *testing.T) {
	svc, _ := newTestService(t)
	product := mustCreateProduct(t, svc, "Telur 10 Butir", 26500, 23000)

	supplier, err := svc.CreateSupplier(asManager(), domain.CounterpartyRequest{Name: "CV Sumber Pangan"})
	if err != nil {
		t.Fatalf("create supplier: %v", err)
	}

	receipt, err := svc.CreateGoodsReceipt(asManager(), domain.GoodsReceiptCreateRequest{
		SupplierID: supplier.ID,
		Items:      []domain.GoodsReceiptItem{{ProductID: product.ID, Qty: 30, UnitCostCents: 22500}},
	})
	if err != nil {
		t.Fatalf("create receipt: %v", err)
	}
	if receipt.Status != domain.ReceiptStatusDraft {
		t.Fatalf("expected draft, got %q", receipt.Status)
	}

	// Draft receipts do not touch inventory.
	before, err := svc.GetProduct(asManager(), product.ID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if before.QtyOnHand != 0 {
		t.Fatalf("expected 0 on hand before finalize, got %d", before.QtyOnHand)
	}

	finalized, err := svc.FinalizeGoodsReceipt(asManager(), receipt.ID)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if finalized.Status != domain.ReceiptStatusCompleted {
		t.Fatalf("expected completed, got %q", finalized.Status)
	}

	after, err := svc.GetProduct(asManager(), product.ID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if after.QtyOnHand != 30 {
		t.Fatalf("expected 30 on hand, got %d", after.QtyOnHand)
	}

	// Supplier balance grows by the receipt total.
	supplierAfter, err := svc.GetSupplier(asManager(), supplier.ID)
	if err != nil {
		t.Fatalf("get supplier: %v", err)
	}
	if supplierAfter.BalanceCents != 30*22500 {
		t.Fatalf("expected supplier balance %d, got %d", 30*22500, supplierAfter.BalanceCents)
	}

	// Finalize is draft-only.
	if _, err := svc.FinalizeGoodsReceipt(asManager(), receipt.ID); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict on double finalize, got %v", err)
	}
}

func TestGoodsReceiptCancelIsDraftOnly(t *testing.T) {
	svc, _ := newTestService(t)
	product := mustCreateProduct(t, svc, "Telur 10 Butir", 26500, 23000)

	supplier, err := svc.CreateSupplier(asManager(), domain.CounterpartyRequest{Name: "CV Sumber Pangan"})
	if err != nil {
		t.Fatalf("create supplier: %v", err)
	}

	receipt, err := svc.CreateGoodsReceipt(asManager(), domain.GoodsReceiptCreateRequest{
		SupplierID: supplier.ID,
		Items:      []domain.GoodsReceiptItem{{ProductID: product.ID, Qty: 10, UnitCostCents: 22500}},
	})
	if err != nil {
		t.Fatalf("create receipt: %v", err)
	}

	if _, err := svc.FinalizeGoodsReceipt(asManager(), receipt.ID); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if _, err := svc.CancelGoodsReceipt(asManager(), receipt.ID); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict cancelling completed receipt, got %v", err)
	}
}

func TestAvcoRecomputedOnReceiptFinalize(t *testing.T) {
	svc, _ := newTestService(t)

	product, err := svc.CreateProduct(asManager(), domain.ProductCreateRequest{
		Name:          "Gula 1kg",
		Category:      "grocery",
		PriceCents:    17400,
		CostCents:     15000,
		CostingMethod: domain.CostingAVCO,
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	mustAdjustIn(t, svc, product.ID, 10, 15000)

	supplier, err := svc.CreateSupplier(asManager(), domain.CounterpartyRequest{Name: "CV Sumber Pangan"})
	if err != nil {
		t.Fatalf("create supplier: %v", err)
	}
	receipt, err := svc.CreateGoodsReceipt(asManager(), domain.GoodsReceiptCreateRequest{
		SupplierID: supplier.ID,
		Items:      []domain.GoodsReceiptItem{{ProductID: product.ID, Qty: 10, UnitCostCents: 17000}},
	})
	if err != nil {
		t.Fatalf("create receipt: %v", err)
	}
	if _, err := svc.FinalizeGoodsReceipt(asManager(), receipt.ID); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	updated, err := svc.GetProduct(asManager(), product.ID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	// (10*15000 + 10*17000) / 20 = 16000
	if updated.CostCents != 16000 {
		t.Fatalf("expected AVCO cost 16000, got %d", updated.CostCents)
	}
}

func TestInvoicePaymentsDriveStatusAndCustomerBalance(t *testing.T) {
	svc, _ := newTestService(t)

	customer, err := svc.CreateCustomer(asCashier(), domain.CounterpartyRequest{Name: "Ibu Ratna"})
	if err != nil {
		t.Fatalf("create customer: %v", err)
	}

	due := time.Now().UTC().Add(14 * 24 * time.Hour).Format("2006-01-02")
	invoice, err := svc.CreateInvoice(asCashier(), domain.InvoiceCreateRequest{
		CustomerID: customer.ID,
		DueDate:    due,
		Items:      []domain.InvoiceItem{{Description: "Catering", Qty: 1, UnitPriceCents: 250000}},
	})
	if err != nil {
		t.Fatalf("create invoice: %v", err)
	}
	if invoice.Status != domain.InvoiceStatusDraft || invoice.AmountDue != 250000 {
		t.Fatalf("unexpected invoice %+v", invoice)
	}

	// The customer owes the full amount from creation.
	balCustomer, err := svc.GetCustomer(asCashier(), customer.ID)
	if err != nil {
		t.Fatalf("get customer: %v", err)
	}
	if balCustomer.BalanceCents != 250000 {
		t.Fatalf("expected balance 250000, got %d", balCustomer.BalanceCents)
	}

	// Payments are only accepted once the invoice is sent.
	if _, err := svc.AddInvoicePayment(asCashier(), invoice.ID, domain.InvoicePaymentRequest{
		AmountCents: 100000,
		Method:      "transfer",
	}); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict paying a draft, got %v", err)
	}

	if _, err := svc.MarkInvoiceSent(asCashier(), invoice.ID); err != nil {
		t.Fatalf("send invoice: %v", err)
	}

	partial, err := svc.AddInvoicePayment(asCashier(), invoice.ID, domain.InvoicePaymentRequest{
		AmountCents: 100000,
		Method:      "transfer",
	})
	if err != nil {
		t.Fatalf("partial payment: %v", err)
	}
	if partial.Status != domain.InvoiceStatusPartiallyPaid || partial.AmountDue != 150000 {
		t.Fatalf("unexpected invoice after partial payment %+v", partial)
	}

	// Overpayment is rejected.
	if _, err := svc.AddInvoicePayment(asCashier(), invoice.ID, domain.InvoicePaymentRequest{
		AmountCents: 200000,
		Method:      "cash",
	}); err == nil {
		t.Fatalf("expected overpayment to be rejected")
	}

	paid, err := svc.AddInvoicePayment(asCashier(), invoice.ID, domain.InvoicePaymentRequest{
		AmountCents: 150000,
		Method:      "cash",
	})
	if err != nil {
		t.Fatalf("final payment: %v", err)
	}
	if paid.Status != domain.InvoiceStatusPaid || paid.AmountDue != 0 {
		t.Fatalf("unexpected invoice after final payment %+v", paid)
	}

	settled, err := svc.GetCustomer(asCashier(), customer.ID)
	if err != nil {
		t.Fatalf("get customer: %v", err)
	}
	if settled.BalanceCents != 0 {
		t.Fatalf("expected settled balance, got %d", settled.BalanceCents)
	}
}

func TestOverdueInvoiceStatusIsComputedLazily(t *testing.T) {
	svc, repo := newTestService(t)

	customer, err := svc.CreateCustomer(asCashier(), domain.CounterpartyRequest{Name: "Ibu Ratna"})
	if err != nil {
		t.Fatalf("create customer: %v", err)
	}

	// Seed a sent invoice whose due date already passed through the
	// repository; no background job runs, the overdue status must appear
	// on read.
	stored, err := repo.CreateInvoice(context.Background(), domain.Invoice{
		Number:     "INV-2026-9999",
		CustomerID: customer.ID,
		Status:     domain.InvoiceStatusSent,
		DueDate:    time.Now().UTC().Add(-48 * time.Hour),
		Items:      []domain.InvoiceItem{{Description: "Catering", Qty: 1, UnitPriceCents: 90000}},
	})
	if err != nil {
		t.Fatalf("seed invoice: %v", err)
	}

	reread, err := svc.GetInvoice(asCashier(), stored.ID)
	if err != nil {
		t.Fatalf("reread invoice: %v", err)
	}
	if reread.Status != domain.InvoiceStatusOverdue {
		t.Fatalf("expected overdue on read, got %q", reread.Status)
	}
}

func TestCustomerStatementRunningBalance(t *testing.T) {
	svc, _ := newTestService(t)

	customer, err := svc.CreateCustomer(asCashier(), domain.CounterpartyRequest{Name: "Ibu Ratna"})
	if err != nil {
		t.Fatalf("create customer: %v", err)
	}

	due := time.Now().UTC().Add(14 * 24 * time.Hour).Format("2006-01-02")
	invoice, err := svc.CreateInvoice(asCashier(), domain.InvoiceCreateRequest{
		CustomerID: customer.ID,
		DueDate:    due,
		Items:      []domain.InvoiceItem{{Description: "Catering", Qty: 2, UnitPriceCents: 50000}},
	})
	if err != nil {
		t.Fatalf("create invoice: %v", err)
	}
	if _, err := svc.MarkInvoiceSent(asCashier(), invoice.ID); err != nil {
		t.Fatalf("send: %v", err)
	}
	if _, err := svc.AddInvoicePayment(asCashier(), invoice.ID, domain.InvoicePaymentRequest{
		AmountCents: 40000,
		Method:      "cash",
	}); err != nil {
		t.Fatalf("payment: %v", err)
	}

	statement, err := svc.GetCustomerStatement(asCashier(), customer.ID)
	if err != nil {
		t.Fatalf("statement: %v", err)
	}
	if len(statement.Lines) != 2 {
		t.Fatalf("expected 2 statement lines, got %d", len(statement.Lines))
	}
	if statement.Lines[0].RunningBalance != 100000 {
		t.Fatalf("expected running balance 100000 after invoice, got %d", statement.Lines[0].RunningBalance)
	}
	if statement.Lines[1].RunningBalance != 60000 {
		t.Fatalf("expected running balance 60000 after payment, got %d", statement.Lines[1].RunningBalance)
	}
}

func TestStaffCannotRecordExpenses(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.CreateExpense(asStaff(), domain.ExpenseRequest{
		Category:    "utilities",
		AmountCents: 125000,
	})
	if err == nil {
		t.Fatalf("expected staff expense create to be rejected")
	}
}

func TestUpdateSettingsRequiresAdmin(t *testing.T) {
	svc, _ := newTestService(t)

	settings, err := svc.GetSettings(asStaff())
	if err != nil {
		t.Fatalf("get settings: %v", err)
	}
	settings.DefaultTaxRatePct = 12

	if _, err := svc.UpdateSettings(asManager(), settings); err == nil {
		t.Fatalf("expected manager settings update to be rejected")
	}
	if _, err := svc.UpdateSettings(asAdmin(), settings); err != nil {
		t.Fatalf("admin settings update failed: %v", err)
	}
}

type stubReportCache struct {
	entries map[string][]byte
}

func newStubReportCache() *stubReportCache {
	return &stubReportCache{entries: map[string][]byte{}}
}

func (c *stubReportCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	payload, ok := c.entries[key]
	return payload, ok, nil
}

func (c *stubReportCache) Set(_ context.Context, key string, payload []byte, _ time.Duration) error {
	c.entries[key] = payload
	return nil
}

func (c *stubReportCache) Invalidate(_ context.Context, prefix string) error {
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
		}
	}
	return nil
}

func TestSettingsReadThroughCacheInvalidatedOnWrite(t *testing.T) {
	repo := memory.New()
	rc := newStubReportCache()
	svc := New(repo, rc, time.Minute, zerolog.Nop())

	first, err := svc.GetSettings(asStaff())
	if err != nil {
		t.Fatalf("get settings: %v", err)
	}
	if _, ok := rc.entries["settings:v1"]; !ok {
		t.Fatalf("expected settings read to populate the cache")
	}

	// A repository change invisible to the service must not surface
	// while the cached payload is live.
	behind := first
	behind.DefaultTaxRatePct = 99
	if _, err := repo.UpdateSettings(context.Background(), behind); err != nil {
		t.Fatalf("seed repo change: %v", err)
	}
	cached, err := svc.GetSettings(asStaff())
	if err != nil {
		t.Fatalf("cached read: %v", err)
	}
	if cached.DefaultTaxRatePct != first.DefaultTaxRatePct {
		t.Fatalf("expected cached settings, got tax rate %v", cached.DefaultTaxRatePct)
	}

	// Writes through the service invalidate the key.
	updated := first
	updated.DefaultTaxRatePct = 12
	if _, err := svc.UpdateSettings(asAdmin(), updated); err != nil {
		t.Fatalf("update settings: %v", err)
	}
	if _, ok := rc.entries["settings:v1"]; ok {
		t.Fatalf("expected settings key invalidated after update")
	}
	fresh, err := svc.GetSettings(asStaff())
	if err != nil {
		t.Fatalf("fresh read: %v", err)
	}
	if fresh.DefaultTaxRatePct != 12 {
		t.Fatalf("expected tax rate 12 after update, got %v", fresh.DefaultTaxRatePct)
	}
}

func TestSalesSummaryExcludesVoidedSales(t *testing.T) {
	svc, _ := newTestService(t)
	product := mustCreateProduct(t, svc, "Roti Tawar", 17800, 12400)
	mustAdjustIn(t, svc, product.ID, 20, 12400)

	kept, err := svc.CreateSale(asCashier(), domain.SaleCreateRequest{
		PaymentMethod: "cash",
		Items:         []domain.SaleLineRequest{{ProductID: product.ID, Qty: 1}},
	})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}
	voided, err := svc.CreateSale(asCashier(), domain.SaleCreateRequest{
		PaymentMethod: "cash",
		Items:         []domain.SaleLineRequest{{ProductID: product.ID, Qty: 5}},
	})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}
	if _, err := svc.VoidSale(asManager(), voided.ID, domain.SaleVoidRequest{Reason: "test"}); err != nil {
		t.Fatalf("void: %v", err)
	}

	today := time.Now().UTC().Format("2006-01-02")
	summary, err := svc.SalesSummary(asManager(), today, today)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if summary.Sales != 1 {
		t.Fatalf("expected 1 counted sale, got %d", summary.Sales)
	}
	if summary.GrossCents != kept.TotalCents {
		t.Fatalf("expected gross %d, got %d", kept.TotalCents, summary.GrossCents)
	}
}
