package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"tokosera/backend/internal/domain"
	"tokosera/backend/internal/store"
)

func TestStockAdjustmentDepletesOldestBatch(t *testing.T) {
	databaseURL := os.Getenv("TOKOSERA_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set TOKOSERA_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})

	stamp := time.Now().UnixNano()
	productID := fmt.Sprintf("prd-adj-it-%d", stamp)
	sku := fmt.Sprintf("PRD-IT-%d", stamp)
	oldBatch := fmt.Sprintf("batch-old-it-%d", stamp)
	newBatch := fmt.Sprintf("batch-new-it-%d", stamp)

	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM stock_movements WHERE product_id = $1`, productID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM inventory_batches WHERE product_id = $1`, productID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, productID)
	})

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, sku, name, category, price_cents, cost_cents, costing_method, qty_on_hand, reorder_level, active, created_at)
		VALUES ($1, $2, 'Adjustment IT Product', 'test', 5000, 3000, 'fifo', 15, 0, true, now())
	`, productID, sku); err != nil {
		t.Fatalf("insert product: %v", err)
	}

	older := time.Now().UTC().Add(-48 * time.Hour)
	newer := time.Now().UTC().Add(-1 * time.Hour)
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO inventory_batches (id, product_id, batch_number, qty_received, qty_remaining, unit_cost_cents, status, received_at, created_at)
		VALUES ($1, $3, 'OLD', 10, 10, 3000, 'active', $4, $4),
			($2, $3, 'NEW', 5, 5, 3500, 'active', $5, $5)
	`, oldBatch, newBatch, productID, older, newer); err != nil {
		t.Fatalf("seed batches: %v", err)
	}

	movement, qtyOnHand, err := s.ApplyStockAdjustment(ctx, domain.StockMovement{
		ProductID: productID,
		Type:      domain.MovementDamage,
		Qty:       -4,
		Reference: "ADJ-IT",
		Actor:     "tester",
	}, 0)
	if err != nil {
		t.Fatalf("apply adjustment: %v", err)
	}
	if movement.BatchID != oldBatch {
		t.Fatalf("expected oldest batch %s depleted, got %s", oldBatch, movement.BatchID)
	}
	if qtyOnHand != 11 {
		t.Fatalf("expected qty on hand 11, got %d", qtyOnHand)
	}

	var remaining int
	if err := s.db.QueryRowContext(ctx, `
		SELECT qty_remaining FROM inventory_batches WHERE id = $1
	`, oldBatch).Scan(&remaining); err != nil {
		t.Fatalf("query batch: %v", err)
	}
	if remaining != 6 {
		t.Fatalf("expected 6 remaining in oldest batch, got %d", remaining)
	}

	var movementCount int
	if err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM stock_movements WHERE product_id = $1
	`, productID).Scan(&movementCount); err != nil {
		t.Fatalf("count movements: %v", err)
	}
	if movementCount != 1 {
		t.Fatalf("expected exactly one movement row, got %d", movementCount)
	}

	// A request the oldest batch cannot cover fails instead of splitting
	// or silently skipping the batch.
	_, _, err = s.ApplyStockAdjustment(ctx, domain.StockMovement{
		ProductID: productID,
		Type:      domain.MovementAdjustmentOut,
		Qty:       -8,
		Reference: "ADJ-IT-2",
		Actor:     "tester",
	}, 0)
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
}
