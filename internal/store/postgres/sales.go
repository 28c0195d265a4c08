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

// CreateSale persists a completed sale and depletes inventory batches
// oldest-first. A sale line may span several batches; each depleted
// portion gets its own sale movement so the ledger reconciles against
// batch quantities. FIFO products capture the weighted cost of the
// depleted portions; AVCO and standard products capture the product's
// current cost.
func (s *Store) CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error) {
	if len(sale.Items) == 0 {
		return nil, store.ErrInvalidInput
	}
	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}
	if sale.Status == "" {
		sale.Status = domain.SaleStatusCompleted
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	for idx := range sale.Items {
		item := &sale.Items[idx]
		if item.Qty < 1 {
			return nil, store.ErrInvalidInput
		}

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
				return nil, store.ErrNotFound
			}
			return nil, err
		}
		if qtyOnHand < item.Qty {
			return nil, store.ErrInsufficientStock
		}

		batchRows, err := pgTx.QueryContext(ctx, `
			SELECT id, qty_remaining, unit_cost_cents
			FROM inventory_batches
			WHERE product_id = $1 AND status = $2 AND qty_remaining > 0
			ORDER BY received_at ASC, created_at ASC
			FOR UPDATE
		`, item.ProductID, domain.BatchStatusActive)
		if err != nil {
			return nil, err
		}
		type batchState struct {
			id        string
			remaining int
			costCents int64
		}
		batches := make([]batchState, 0, 8)
		for batchRows.Next() {
			var b batchState
			if err := batchRows.Scan(&b.id, &b.remaining, &b.costCents); err != nil {
				_ = batchRows.Close()
				return nil, err
			}
			batches = append(batches, b)
		}
		if err := batchRows.Err(); err != nil {
			_ = batchRows.Close()
			return nil, err
		}
		_ = batchRows.Close()

		available := 0
		for _, b := range batches {
			available += b.remaining
		}
		if available < item.Qty {
			return nil, store.ErrInsufficientStock
		}

		remaining := item.Qty
		fifoCostTotal := int64(0)
		for _, b := range batches {
			if remaining == 0 {
				break
			}
			used := remaining
			if used > b.remaining {
				used = b.remaining
			}
			newStatus := domain.BatchStatusActive
			if used == b.remaining {
				newStatus = domain.BatchStatusDepleted
			}
			_, err = pgTx.ExecContext(ctx, `
				UPDATE inventory_batches
				SET qty_remaining = qty_remaining - $2, status = $3
				WHERE id = $1
			`, b.id, used, newStatus)
			if err != nil {
				return nil, err
			}

			movement := domain.StockMovement{
				ProductID: item.ProductID,
				BatchID:   b.id,
				Type:      domain.MovementSale,
				Qty:       -used,
				Reference: sale.Number,
				Actor:     sale.Cashier,
				CreatedAt: sale.CreatedAt,
			}
			if err := insertMovement(ctx, pgTx, &movement); err != nil {
				return nil, err
			}

			fifoCostTotal += b.costCents * int64(used)
			remaining -= used
		}

		if costingMethod == domain.CostingFIFO {
			item.UnitCostCents = fifoCostTotal / int64(item.Qty)
		} else {
			item.UnitCostCents = costCents
		}

		_, err = pgTx.ExecContext(ctx, `
			UPDATE products
			SET qty_on_hand = qty_on_hand - $2
			WHERE id = $1
		`, item.ProductID, item.Qty)
		if err != nil {
			return nil, err
		}
	}

	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO sales (
			id, number, customer_id, cashier, subtotal_cents, discount_cents,
			tax_cents, total_cents, payment_method, status, void_reason, voided_at, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	`, sale.ID, sale.Number, nullIfEmpty(sale.CustomerID), sale.Cashier, sale.SubtotalCents,
		sale.DiscountCents, sale.TaxCents, sale.TotalCents, sale.PaymentMethod, sale.Status,
		nullIfEmpty(sale.VoidReason), nullTime(sale.VoidedAt), sale.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}

	for _, item := range sale.Items {
		_, err := pgTx.ExecContext(ctx, `
			INSERT INTO sale_items (sale_id, product_id, sku, name, qty, unit_price_cents, unit_cost_cents)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
		`, sale.ID, item.ProductID, item.SKU, item.Name, item.Qty, item.UnitPriceCents, item.UnitCostCents)
		if err != nil {
			return nil, err
		}
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}

	created := sale
	return &created, nil
}

func (s *Store) GetSale(ctx context.Context, id string) (*domain.Sale, error) {
	var sale domain.Sale
	var voidedAt sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT id, number, COALESCE(customer_id, ''), cashier, subtotal_cents, discount_cents,
			tax_cents, total_cents, payment_method, status, COALESCE(void_reason, ''), voided_at, created_at
		FROM sales
		WHERE id = $1 OR number = $1
	`, id).Scan(&sale.ID, &sale.Number, &sale.CustomerID, &sale.Cashier, &sale.SubtotalCents,
		&sale.DiscountCents, &sale.TaxCents, &sale.TotalCents, &sale.PaymentMethod, &sale.Status,
		&sale.VoidReason, &voidedAt, &sale.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	sale.CreatedAt = sale.CreatedAt.UTC()
	if voidedAt.Valid {
		t := voidedAt.Time.UTC()
		sale.VoidedAt = &t
	}

	items, err := s.listSaleItems(ctx, sale.ID)
	if err != nil {
		return nil, err
	}
	sale.Items = items
	return &sale, nil
}

func (s *Store) listSaleItems(ctx context.Context, saleID string) ([]domain.SaleItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT product_id, sku, name, qty, unit_price_cents, unit_cost_cents
		FROM sale_items
		WHERE sale_id = $1
		ORDER BY sku
	`, saleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.SaleItem, 0, 8)
	for rows.Next() {
		var item domain.SaleItem
		if err := rows.Scan(&item.ProductID, &item.SKU, &item.Name, &item.Qty, &item.UnitPriceCents, &item.UnitCostCents); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ListSales(ctx context.Context, from time.Time, to time.Time, status string, limit int) ([]domain.Sale, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, number, COALESCE(customer_id, ''), cashier, subtotal_cents, discount_cents,
			tax_cents, total_cents, payment_method, status, COALESCE(void_reason, ''), voided_at, created_at
		FROM sales
		WHERE created_at >= $1 AND created_at < $2
			AND ($3 = '' OR status = $3)
		ORDER BY created_at DESC
		LIMIT $4
	`, from, to, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0, limit)
	for rows.Next() {
		var sale domain.Sale
		var voidedAt sql.NullTime
		if err := rows.Scan(&sale.ID, &sale.Number, &sale.CustomerID, &sale.Cashier, &sale.SubtotalCents,
			&sale.DiscountCents, &sale.TaxCents, &sale.TotalCents, &sale.PaymentMethod, &sale.Status,
			&sale.VoidReason, &voidedAt, &sale.CreatedAt); err != nil {
			return nil, err
		}
		sale.CreatedAt = sale.CreatedAt.UTC()
		if voidedAt.Valid {
			t := voidedAt.Time.UTC()
			sale.VoidedAt = &t
		}
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sales, nil
}

// VoidSale reverses a completed sale with no recorded refunds. Sold
// quantities come back as fresh batches at the captured unit cost, with
// a return movement per line.
func (s *Store) VoidSale(ctx context.Context, id string, reason string, at time.Time) (*domain.Sale, error) {
	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	var saleID, number, status, cashier string
	err = pgTx.QueryRowContext(ctx, `
		SELECT id, number, status, cashier
		FROM sales
		WHERE id = $1 OR number = $1
		FOR UPDATE
	`, id).Scan(&saleID, &number, &status, &cashier)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if status != domain.SaleStatusCompleted {
		return nil, store.ErrConflict
	}

	// Refunded lines have already been restocked; a partially refunded
	// sale can only continue through further refunds.
	var refunds int
	err = pgTx.QueryRowContext(ctx, `
		SELECT COUNT(1)
		FROM sale_refund_items
		WHERE sale_id = $1
	`, saleID).Scan(&refunds)
	if err != nil {
		return nil, err
	}
	if refunds > 0 {
		return nil, store.ErrConflict
	}

	items, err := s.listSaleItems(ctx, saleID)
	if err != nil {
		return nil, err
	}

	for _, item := range items {
		if err := restockLine(ctx, pgTx, item.ProductID, item.Qty, item.UnitCostCents, number, cashier, at); err != nil {
			return nil, err
		}
	}

	_, err = pgTx.ExecContext(ctx, `
		UPDATE sales
		SET status = $2, void_reason = $3, voided_at = $4
		WHERE id = $1
	`, saleID, domain.SaleStatusVoided, reason, at)
	if err != nil {
		return nil, err
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}

	return s.GetSale(ctx, saleID)
}

// restockLine opens a new batch for a returned quantity and appends the
// matching return movement.
func restockLine(ctx context.Context, pgTx *sql.Tx, productID string, qty int, unitCostCents int64, reference string, actor string, at time.Time) error {
	batchID := xid.New("batch")
	_, err := pgTx.ExecContext(ctx, `
		INSERT INTO inventory_batches (
			id, product_id, batch_number, qty_received, qty_remaining,
			unit_cost_cents, status, received_at, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, batchID, productID, "RET-"+reference, qty, qty, unitCostCents, domain.BatchStatusActive, at, at)
	if err != nil {
		return err
	}

	movement := domain.StockMovement{
		ProductID: productID,
		BatchID:   batchID,
		Type:      domain.MovementReturn,
		Qty:       qty,
		Reference: reference,
		Actor:     actor,
		CreatedAt: at,
	}
	if err := insertMovement(ctx, pgTx, &movement); err != nil {
		return err
	}

	_, err = pgTx.ExecContext(ctx, `
		UPDATE products
		SET qty_on_hand = qty_on_hand + $2
		WHERE id = $1
	`, productID, qty)
	return err
}

// RefundSale restocks the requested lines. Cumulative refunded quantity
// per product can never exceed the sold quantity; the sale flips to
// refunded once every sold unit has come back.
func (s *Store) RefundSale(ctx context.Context, id string, lines []domain.SaleRefundLine, reason string, at time.Time) (*domain.SaleRefundResponse, error) {
	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	var saleID, number, status, cashier string
	err = pgTx.QueryRowContext(ctx, `
		SELECT id, number, status, cashier
		FROM sales
		WHERE id = $1 OR number = $1
		FOR UPDATE
	`, id).Scan(&saleID, &number, &status, &cashier)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if status != domain.SaleStatusCompleted {
		return nil, store.ErrConflict
	}

	items, err := s.listSaleItems(ctx, saleID)
	if err != nil {
		return nil, err
	}
	itemMap := make(map[string]domain.SaleItem, len(items))
	for _, item := range items {
		itemMap[item.ProductID] = item
	}

	// Full refund when no lines are specified.
	if len(lines) == 0 {
		for _, item := range items {
			lines = append(lines, domain.SaleRefundLine{ProductID: item.ProductID, Qty: item.Qty})
		}
	}

	refundedMap := make(map[string]int, len(items))
	refundRows, err := pgTx.QueryContext(ctx, `
		SELECT product_id, COALESCE(SUM(qty),0)
		FROM sale_refund_items
		WHERE sale_id = $1
		GROUP BY product_id
	`, saleID)
	if err != nil {
		return nil, err
	}
	for refundRows.Next() {
		var productID string
		var qty int
		if err := refundRows.Scan(&productID, &qty); err != nil {
			_ = refundRows.Close()
			return nil, err
		}
		refundedMap[productID] = qty
	}
	if err := refundRows.Err(); err != nil {
		_ = refundRows.Close()
		return nil, err
	}
	_ = refundRows.Close()

	amountCents := int64(0)
	restockedQty := 0
	for _, line := range lines {
		if line.Qty < 1 {
			return nil, store.ErrInvalidInput
		}
		item, exists := itemMap[line.ProductID]
		if !exists {
			return nil, store.ErrInvalidInput
		}
		if refundedMap[line.ProductID]+line.Qty > item.Qty {
			return nil, store.ErrInvalidInput
		}

		if err := restockLine(ctx, pgTx, line.ProductID, line.Qty, item.UnitCostCents, number, cashier, at); err != nil {
			return nil, err
		}

		_, err = pgTx.ExecContext(ctx, `
			INSERT INTO sale_refund_items (id, sale_id, product_id, qty, amount_cents, reason, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
		`, xid.New("refund"), saleID, line.ProductID, line.Qty,
			item.UnitPriceCents*int64(line.Qty), nullIfEmpty(reason), at)
		if err != nil {
			return nil, err
		}

		refundedMap[line.ProductID] += line.Qty
		amountCents += item.UnitPriceCents * int64(line.Qty)
		restockedQty += line.Qty
	}

	fullyRefunded := true
	for _, item := range items {
		if refundedMap[item.ProductID] < item.Qty {
			fullyRefunded = false
			break
		}
	}

	finalStatus := status
	if fullyRefunded {
		finalStatus = domain.SaleStatusRefunded
		_, err = pgTx.ExecContext(ctx, `
			UPDATE sales
			SET status = $2
			WHERE id = $1
		`, saleID, domain.SaleStatusRefunded)
		if err != nil {
			return nil, err
		}
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}

	return &domain.SaleRefundResponse{
		SaleID:       saleID,
		Status:       finalStatus,
		AmountCents:  amountCents,
		RestockedQty: restockedQty,
	}, nil
}

func (s *Store) CreateHeldOrder(ctx context.Context, hold domain.HeldOrder) (*domain.HeldOrder, error) {
	if len(hold.Items) == 0 {
		return nil, store.ErrInvalidInput
	}
	if hold.ID == "" {
		hold.ID = xid.New("hold")
	}
	if hold.CreatedAt.IsZero() {
		hold.CreatedAt = time.Now().UTC()
	}
	if hold.ExpiresAt.IsZero() {
		hold.ExpiresAt = hold.CreatedAt.Add(domain.DefaultHoldTTL)
	}
	if hold.Status == "" {
		hold.Status = domain.HoldStatusActive
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO held_orders (id, customer_id, cashier, note, status, expires_at, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, hold.ID, nullIfEmpty(hold.CustomerID), hold.Cashier, nullIfEmpty(hold.Note),
		hold.Status, hold.ExpiresAt, hold.CreatedAt)
	if err != nil {
		return nil, err
	}

	for idx, item := range hold.Items {
		_, err := pgTx.ExecContext(ctx, `
			INSERT INTO held_order_items (hold_id, line_no, product_id, qty)
			VALUES ($1,$2,$3,$4)
		`, hold.ID, idx+1, item.ProductID, item.Qty)
		if err != nil {
			return nil, err
		}
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}

	created := hold
	return &created, nil
}

func (s *Store) getHeldOrderRow(ctx context.Context, id string) (*domain.HeldOrder, error) {
	var hold domain.HeldOrder
	err := s.db.QueryRowContext(ctx, `
		SELECT id, COALESCE(customer_id, ''), cashier, COALESCE(note, ''), status, expires_at, created_at
		FROM held_orders
		WHERE id = $1
	`, id).Scan(&hold.ID, &hold.CustomerID, &hold.Cashier, &hold.Note, &hold.Status, &hold.ExpiresAt, &hold.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	hold.ExpiresAt = hold.ExpiresAt.UTC()
	hold.CreatedAt = hold.CreatedAt.UTC()

	itemRows, err := s.db.QueryContext(ctx, `
		SELECT product_id, qty
		FROM held_order_items
		WHERE hold_id = $1
		ORDER BY line_no
	`, id)
	if err != nil {
		return nil, err
	}
	defer itemRows.Close()

	for itemRows.Next() {
		var item domain.HeldOrderItem
		if err := itemRows.Scan(&item.ProductID, &item.Qty); err != nil {
			return nil, err
		}
		hold.Items = append(hold.Items, item)
	}
	if err := itemRows.Err(); err != nil {
		return nil, err
	}
	return &hold, nil
}

// GetHeldOrder distinguishes an expired hold from a missing one.
func (s *Store) GetHeldOrder(ctx context.Context, id string, at time.Time) (*domain.HeldOrder, error) {
	hold, err := s.getHeldOrderRow(ctx, id)
	if err != nil {
		return nil, err
	}
	if hold.Status == domain.HoldStatusExpired || (hold.Status == domain.HoldStatusActive && !at.Before(hold.ExpiresAt)) {
		return nil, store.ErrHoldExpired
	}
	return hold, nil
}

func (s *Store) ListHeldOrders(ctx context.Context, at time.Time, limit int) ([]domain.HeldOrder, error) {
	if limit < 1 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id
		FROM held_orders
		WHERE status = $1 AND expires_at > $2
		ORDER BY created_at DESC
		LIMIT $3
	`, domain.HoldStatusActive, at, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make([]string, 0, limit)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	holds := make([]domain.HeldOrder, 0, len(ids))
	for _, id := range ids {
		hold, err := s.getHeldOrderRow(ctx, id)
		if err != nil {
			return nil, err
		}
		holds = append(holds, *hold)
	}
	return holds, nil
}

func (s *Store) ResumeHeldOrder(ctx context.Context, id string, at time.Time) (*domain.HeldOrder, error) {
	hold, err := s.GetHeldOrder(ctx, id, at)
	if err != nil {
		return nil, err
	}
	if hold.Status != domain.HoldStatusActive {
		return nil, store.ErrConflict
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE held_orders
		SET status = $2
		WHERE id = $1 AND status = $3 AND expires_at > $4
	`, id, domain.HoldStatusResumed, domain.HoldStatusActive, at)
	if err != nil {
		return nil, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrConflict
	}

	hold.Status = domain.HoldStatusResumed
	return hold, nil
}

func (s *Store) DiscardHeldOrder(ctx context.Context, id string, at time.Time) error {
	hold, err := s.getHeldOrderRow(ctx, id)
	if err != nil {
		return err
	}
	if hold.Status != domain.HoldStatusActive {
		return store.ErrConflict
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE held_orders
		SET status = $2
		WHERE id = $1
	`, id, domain.HoldStatusExpired)
	return err
}
