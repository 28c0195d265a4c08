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

func (s *Store) CreateBatch(ctx context.Context, batch domain.InventoryBatch) (*domain.InventoryBatch, error) {
	if batch.ID == "" {
		batch.ID = xid.New("batch")
	}
	if batch.CreatedAt.IsZero() {
		batch.CreatedAt = time.Now().UTC()
	}
	if batch.ReceivedAt.IsZero() {
		batch.ReceivedAt = batch.CreatedAt
	}
	if batch.Status == "" {
		batch.Status = domain.BatchStatusActive
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO inventory_batches (
			id, product_id, batch_number, qty_received, qty_remaining,
			unit_cost_cents, status, received_at, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, batch.ID, batch.ProductID, batch.BatchNumber, batch.QtyReceived, batch.QtyRemaining,
		batch.UnitCostCents, batch.Status, batch.ReceivedAt, batch.CreatedAt)
	if err != nil {
		return nil, err
	}

	created := batch
	return &created, nil
}

func (s *Store) ListBatches(ctx context.Context, productID string, activeOnly bool) ([]domain.InventoryBatch, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, product_id, batch_number, qty_received, qty_remaining,
			unit_cost_cents, status, received_at, created_at
		FROM inventory_batches
		WHERE product_id = $1
			AND (NOT $2 OR status = $3)
		ORDER BY received_at ASC, created_at ASC
	`, productID, activeOnly, domain.BatchStatusActive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	batches := make([]domain.InventoryBatch, 0, 16)
	for rows.Next() {
		var b domain.InventoryBatch
		if err := rows.Scan(&b.ID, &b.ProductID, &b.BatchNumber, &b.QtyReceived, &b.QtyRemaining,
			&b.UnitCostCents, &b.Status, &b.ReceivedAt, &b.CreatedAt); err != nil {
			return nil, err
		}
		b.ReceivedAt = b.ReceivedAt.UTC()
		b.CreatedAt = b.CreatedAt.UTC()
		batches = append(batches, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return batches, nil
}

// ApplyStockAdjustment runs one typed adjustment transactionally. In-type
// adjustments open a fresh batch at the given unit cost. Out-type
// adjustments decrement the oldest active batch by exactly the requested
// quantity; when no batch can cover it the whole operation fails with
// ErrInsufficientStock rather than desynchronizing movements from batches.
func (s *Store) ApplyStockAdjustment(ctx context.Context, movement domain.StockMovement, unitCostCents int64) (*domain.StockMovement, int, error) {
	if movement.Qty == 0 {
		return nil, 0, store.ErrInvalidInput
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, 0, err
	}
	defer func() { _ = pgTx.Rollback() }()

	var qtyOnHand int
	err = pgTx.QueryRowContext(ctx, `
		SELECT qty_on_hand
		FROM products
		WHERE id = $1 AND active = true
		FOR UPDATE
	`, movement.ProductID).Scan(&qtyOnHand)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, 0, store.ErrNotFound
		}
		return nil, 0, err
	}

	if movement.CreatedAt.IsZero() {
		movement.CreatedAt = time.Now().UTC()
	}

	if movement.Qty > 0 {
		batch := domain.InventoryBatch{
			ID:            xid.New("batch"),
			ProductID:     movement.ProductID,
			BatchNumber:   movement.Reference,
			QtyReceived:   movement.Qty,
			QtyRemaining:  movement.Qty,
			UnitCostCents: unitCostCents,
			Status:        domain.BatchStatusActive,
			ReceivedAt:    movement.CreatedAt,
			CreatedAt:     movement.CreatedAt,
		}
		_, err = pgTx.ExecContext(ctx, `
			INSERT INTO inventory_batches (
				id, product_id, batch_number, qty_received, qty_remaining,
				unit_cost_cents, status, received_at, created_at
			)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		`, batch.ID, batch.ProductID, batch.BatchNumber, batch.QtyReceived, batch.QtyRemaining,
			batch.UnitCostCents, batch.Status, batch.ReceivedAt, batch.CreatedAt)
		if err != nil {
			return nil, 0, err
		}
		movement.BatchID = batch.ID
	} else {
		needed := -movement.Qty

		var batchID string
		var remaining int
		err = pgTx.QueryRowContext(ctx, `
			SELECT id, qty_remaining
			FROM inventory_batches
			WHERE product_id = $1 AND status = $2 AND qty_remaining > 0
			ORDER BY received_at ASC, created_at ASC
			LIMIT 1
			FOR UPDATE
		`, movement.ProductID, domain.BatchStatusActive).Scan(&batchID, &remaining)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, 0, store.ErrInsufficientStock
			}
			return nil, 0, err
		}
		// The adjustment never splits across batches.
		if remaining < needed {
			return nil, 0, store.ErrInsufficientStock
		}

		newStatus := domain.BatchStatusActive
		if remaining == needed {
			newStatus = domain.BatchStatusDepleted
		}
		_, err = pgTx.ExecContext(ctx, `
			UPDATE inventory_batches
			SET qty_remaining = qty_remaining - $2, status = $3
			WHERE id = $1
		`, batchID, needed, newStatus)
		if err != nil {
			return nil, 0, err
		}
		movement.BatchID = batchID
	}

	qtyOnHand += movement.Qty
	_, err = pgTx.ExecContext(ctx, `
		UPDATE products
		SET qty_on_hand = $2
		WHERE id = $1
	`, movement.ProductID, qtyOnHand)
	if err != nil {
		return nil, 0, err
	}

	if err := insertMovement(ctx, pgTx, &movement); err != nil {
		return nil, 0, err
	}

	if err := pgTx.Commit(); err != nil {
		return nil, 0, err
	}

	return &movement, qtyOnHand, nil
}

func insertMovement(ctx context.Context, pgTx *sql.Tx, movement *domain.StockMovement) error {
	if movement.ID == "" {
		movement.ID = xid.New("mv")
	}
	if movement.CreatedAt.IsZero() {
		movement.CreatedAt = time.Now().UTC()
	}

	_, err := pgTx.ExecContext(ctx, `
		INSERT INTO stock_movements (id, product_id, batch_id, type, qty, reference, note, actor, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, movement.ID, movement.ProductID, nullIfEmpty(movement.BatchID), movement.Type, movement.Qty,
		nullIfEmpty(movement.Reference), nullIfEmpty(movement.Note), movement.Actor, movement.CreatedAt)
	return err
}

// ListMovements returns the most recent movements for a product in
// ascending order, each carrying the running balance after it applied.
// The window sum covers the full history so the balances stay correct
// even when the limit cuts off earlier rows.
func (s *Store) ListMovements(ctx context.Context, productID string, limit int) ([]domain.LedgerEntry, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, product_id, batch_id, type, qty, reference, note, actor, created_at, running_qty
		FROM (
			SELECT id, product_id, COALESCE(batch_id, '') AS batch_id, type, qty,
				COALESCE(reference, '') AS reference, COALESCE(note, '') AS note, actor, created_at,
				SUM(qty) OVER (ORDER BY created_at ASC, id ASC) AS running_qty
			FROM stock_movements
			WHERE product_id = $1
			ORDER BY created_at DESC, id DESC
			LIMIT $2
		) recent
		ORDER BY created_at ASC, id ASC
	`, productID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]domain.LedgerEntry, 0, limit)
	for rows.Next() {
		var e domain.LedgerEntry
		if err := rows.Scan(&e.ID, &e.ProductID, &e.BatchID, &e.Type, &e.Qty, &e.Reference, &e.Note, &e.Actor, &e.CreatedAt, &e.RunningQty); err != nil {
			return nil, err
		}
		e.CreatedAt = e.CreatedAt.UTC()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *Store) CreateGoodsReceipt(ctx context.Context, receipt domain.GoodsReceipt) (*domain.GoodsReceipt, error) {
	if receipt.ID == "" {
		receipt.ID = xid.New("gr")
	}
	if receipt.CreatedAt.IsZero() {
		receipt.CreatedAt = time.Now().UTC()
	}
	if receipt.Status == "" {
		receipt.Status = domain.ReceiptStatusDraft
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO goods_receipts (id, number, supplier_id, status, note, total_cents, created_by, created_at, completed_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, receipt.ID, receipt.Number, receipt.SupplierID, receipt.Status, nullIfEmpty(receipt.Note),
		receipt.TotalCents, receipt.CreatedBy, receipt.CreatedAt, nullTime(receipt.CompletedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}

	for idx, item := range receipt.Items {
		_, err := pgTx.ExecContext(ctx, `
			INSERT INTO goods_receipt_items (receipt_id, line_no, product_id, qty, unit_cost_cents)
			VALUES ($1,$2,$3,$4,$5)
		`, receipt.ID, idx+1, item.ProductID, item.Qty, item.UnitCostCents)
		if err != nil {
			return nil, err
		}
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}

	created := receipt
	return &created, nil
}

func (s *Store) GetGoodsReceipt(ctx context.Context, id string) (*domain.GoodsReceipt, error) {
	var receipt domain.GoodsReceipt
	var completedAt sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT id, number, supplier_id, status, COALESCE(note, ''), total_cents, created_by, created_at, completed_at
		FROM goods_receipts
		WHERE id = $1 OR number = $1
	`, id).Scan(&receipt.ID, &receipt.Number, &receipt.SupplierID, &receipt.Status, &receipt.Note,
		&receipt.TotalCents, &receipt.CreatedBy, &receipt.CreatedAt, &completedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	receipt.CreatedAt = receipt.CreatedAt.UTC()
	if completedAt.Valid {
		t := completedAt.Time.UTC()
		receipt.CompletedAt = &t
	}

	items, err := s.listReceiptItems(ctx, receipt.ID)
	if err != nil {
		return nil, err
	}
	receipt.Items = items
	return &receipt, nil
}

func (s *Store) listReceiptItems(ctx context.Context, receiptID string) ([]domain.GoodsReceiptItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT product_id, qty, unit_cost_cents
		FROM goods_receipt_items
		WHERE receipt_id = $1
		ORDER BY line_no
	`, receiptID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.GoodsReceiptItem, 0, 8)
	for rows.Next() {
		var item domain.GoodsReceiptItem
		if err := rows.Scan(&item.ProductID, &item.Qty, &item.UnitCostCents); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ListGoodsReceipts(ctx context.Context, status string, limit int) ([]domain.GoodsReceipt, error) {
	if limit < 1 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, number, supplier_id, status, COALESCE(note, ''), total_cents, created_by, created_at, completed_at
		FROM goods_receipts
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC
		LIMIT $2
	`, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	receipts := make([]domain.GoodsReceipt, 0, limit)
	for rows.Next() {
		var receipt domain.GoodsReceipt
		var completedAt sql.NullTime
		if err := rows.Scan(&receipt.ID, &receipt.Number, &receipt.SupplierID, &receipt.Status, &receipt.Note,
			&receipt.TotalCents, &receipt.CreatedBy, &receipt.CreatedAt, &completedAt); err != nil {
			return nil, err
		}
		receipt.CreatedAt = receipt.CreatedAt.UTC()
		if completedAt.Valid {
			t := completedAt.Time.UTC()
			receipt.CompletedAt = &t
		}
		receipts = append(receipts, receipt)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return receipts, nil
}

// FinalizeGoodsReceipt validates every line before touching inventory,
// then opens one batch and appends one purchase movement per line,
// recomputes average cost for AVCO products, and credits the supplier
// balance with the receipt total.
func (s *Store) FinalizeGoodsReceipt(ctx context.Context, id string, at time.Time) (*domain.GoodsReceipt, error) {
	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	var receipt domain.GoodsReceipt
	err = pgTx.QueryRowContext(ctx, `
		SELECT id, number, supplier_id, status, COALESCE(note, ''), total_cents, created_by, created_at
		FROM goods_receipts
		WHERE id = $1
		FOR UPDATE
	`, id).Scan(&receipt.ID, &receipt.Number, &receipt.SupplierID, &receipt.Status, &receipt.Note,
		&receipt.TotalCents, &receipt.CreatedBy, &receipt.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if receipt.Status != domain.ReceiptStatusDraft {
		return nil, store.ErrConflict
	}

	itemRows, err := pgTx.QueryContext(ctx, `
		SELECT line_no, product_id, qty, unit_cost_cents
		FROM goods_receipt_items
		WHERE receipt_id = $1
		ORDER BY line_no
	`, id)
	if err != nil {
		return nil, err
	}
	type receiptLine struct {
		lineNo int
		item   domain.GoodsReceiptItem
	}
	lines := make([]receiptLine, 0, 8)
	for itemRows.Next() {
		var line receiptLine
		if err := itemRows.Scan(&line.lineNo, &line.item.ProductID, &line.item.Qty, &line.item.UnitCostCents); err != nil {
			_ = itemRows.Close()
			return nil, err
		}
		lines = append(lines, line)
	}
	if err := itemRows.Err(); err != nil {
		_ = itemRows.Close()
		return nil, err
	}
	_ = itemRows.Close()

	if len(lines) == 0 {
		return nil, store.ErrInvalidInput
	}
	// Validation completes before the first inventory mutation.
	for _, line := range lines {
		if line.item.Qty < 1 || line.item.UnitCostCents < 0 {
			return nil, store.ErrInvalidInput
		}
	}

	totalCents := int64(0)
	for _, line := range lines {
		item := line.item

		var qtyOnHand int
		var costCents int64
		var costingMethod string
		err = pgTx.QueryRowContext(ctx, `
			SELECT qty_on_hand, cost_cents, costing_method
			FROM products
			WHERE id = $1 AND active = true
			FOR UPDATE
		`, item.ProductID).Scan(&qtyOnHand, &costCents, &costingMethod)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, store.ErrInvalidInput
			}
			return nil, err
		}

		batchID := xid.New("batch")
		_, err = pgTx.ExecContext(ctx, `
			INSERT INTO inventory_batches (
				id, product_id, batch_number, qty_received, qty_remaining,
				unit_cost_cents, status, received_at, created_at
			)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		`, batchID, item.ProductID, receipt.Number, item.Qty, item.Qty,
			item.UnitCostCents, domain.BatchStatusActive, at, at)
		if err != nil {
			return nil, err
		}

		movement := domain.StockMovement{
			ProductID: item.ProductID,
			BatchID:   batchID,
			Type:      domain.MovementPurchaseReceipt,
			Qty:       item.Qty,
			Reference: receipt.Number,
			Actor:     receipt.CreatedBy,
			CreatedAt: at,
		}
		if err := insertMovement(ctx, pgTx, &movement); err != nil {
			return nil, err
		}

		newQty := qtyOnHand + item.Qty
		newCost := costCents
		if costingMethod == domain.CostingAVCO && newQty > 0 {
			newCost = (costCents*int64(qtyOnHand) + item.UnitCostCents*int64(item.Qty)) / int64(newQty)
		}
		_, err = pgTx.ExecContext(ctx, `
			UPDATE products
			SET qty_on_hand = $2, cost_cents = $3
			WHERE id = $1
		`, item.ProductID, newQty, newCost)
		if err != nil {
			return nil, err
		}

		totalCents += item.UnitCostCents * int64(item.Qty)
		receipt.Items = append(receipt.Items, item)
	}

	_, err = pgTx.ExecContext(ctx, `
		UPDATE suppliers
		SET balance_cents = balance_cents + $2
		WHERE id = $1
	`, receipt.SupplierID, totalCents)
	if err != nil {
		return nil, err
	}

	_, err = pgTx.ExecContext(ctx, `
		UPDATE goods_receipts
		SET status = $2, total_cents = $3, completed_at = $4
		WHERE id = $1
	`, id, domain.ReceiptStatusCompleted, totalCents, at)
	if err != nil {
		return nil, err
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}

	receipt.Status = domain.ReceiptStatusCompleted
	receipt.TotalCents = totalCents
	receipt.CompletedAt = &at
	receipt.CreatedAt = receipt.CreatedAt.UTC()
	return &receipt, nil
}

func (s *Store) CancelGoodsReceipt(ctx context.Context, id string) (*domain.GoodsReceipt, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE goods_receipts
		SET status = $2
		WHERE id = $1 AND status = $3
	`, id, domain.ReceiptStatusCancelled, domain.ReceiptStatusDraft)
	if err != nil {
		return nil, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		// Either missing or already finalized; disambiguate for the caller.
		if _, getErr := s.GetGoodsReceipt(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, store.ErrConflict
	}
	return s.GetGoodsReceipt(ctx, id)
}
