package postgres

import (
	"context"
	"time"

	"tokosera/backend/internal/domain"
)

func (s *Store) GetSalesSummary(ctx context.Context, from time.Time, to time.Time) (domain.SalesSummary, error) {
	summary := domain.SalesSummary{
		From:      from.UTC().Format("2006-01-02"),
		To:        to.UTC().Format("2006-01-02"),
		ByDay:     make([]domain.SalesSummaryDay, 0, 31),
		ByPayment: make([]domain.SalesSummaryPayment, 0, 4),
	}

	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*)::bigint,
			COALESCE(SUM(subtotal_cents),0)::bigint,
			COALESCE(SUM(discount_cents),0)::bigint,
			COALESCE(SUM(tax_cents),0)::bigint,
			COALESCE(SUM(total_cents),0)::bigint
		FROM sales
		WHERE created_at >= $1 AND created_at < $2 AND status <> $3
	`, from, to, domain.SaleStatusVoided).Scan(
		&summary.Sales,
		&summary.GrossCents,
		&summary.DiscountCents,
		&summary.TaxCents,
		&summary.NetCents,
	)
	if err != nil {
		return summary, err
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM((si.unit_price_cents - si.unit_cost_cents) * si.qty),0)::bigint
		FROM sale_items si
		JOIN sales s ON s.id = si.sale_id
		WHERE s.created_at >= $1 AND s.created_at < $2 AND s.status <> $3
	`, from, to, domain.SaleStatusVoided).Scan(&summary.MarginCents)
	if err != nil {
		return summary, err
	}

	dayRows, err := s.db.QueryContext(ctx, `
		SELECT to_char(created_at AT TIME ZONE 'UTC', 'YYYY-MM-DD') AS day,
			COUNT(*)::bigint,
			COALESCE(SUM(total_cents),0)::bigint
		FROM sales
		WHERE created_at >= $1 AND created_at < $2 AND status <> $3
		GROUP BY day
		ORDER BY day
	`, from, to, domain.SaleStatusVoided)
	if err != nil {
		return summary, err
	}
	for dayRows.Next() {
		var row domain.SalesSummaryDay
		if err := dayRows.Scan(&row.Date, &row.Sales, &row.GrossCents); err != nil {
			_ = dayRows.Close()
			return summary, err
		}
		summary.ByDay = append(summary.ByDay, row)
	}
	if err := dayRows.Err(); err != nil {
		_ = dayRows.Close()
		return summary, err
	}
	_ = dayRows.Close()

	// Per-day margin uses the captured unit costs, same as the headline.
	marginRows, err := s.db.QueryContext(ctx, `
		SELECT to_char(s.created_at AT TIME ZONE 'UTC', 'YYYY-MM-DD') AS day,
			COALESCE(SUM((si.unit_price_cents - si.unit_cost_cents) * si.qty),0)::bigint
		FROM sale_items si
		JOIN sales s ON s.id = si.sale_id
		WHERE s.created_at >= $1 AND s.created_at < $2 AND s.status <> $3
		GROUP BY day
		ORDER BY day
	`, from, to, domain.SaleStatusVoided)
	if err != nil {
		return summary, err
	}
	marginByDay := make(map[string]int64, len(summary.ByDay))
	for marginRows.Next() {
		var day string
		var margin int64
		if err := marginRows.Scan(&day, &margin); err != nil {
			_ = marginRows.Close()
			return summary, err
		}
		marginByDay[day] = margin
	}
	if err := marginRows.Err(); err != nil {
		_ = marginRows.Close()
		return summary, err
	}
	_ = marginRows.Close()
	for idx := range summary.ByDay {
		summary.ByDay[idx].MarginCents = marginByDay[summary.ByDay[idx].Date]
	}

	paymentRows, err := s.db.QueryContext(ctx, `
		SELECT payment_method, COUNT(*)::bigint, COALESCE(SUM(total_cents),0)::bigint
		FROM sales
		WHERE created_at >= $1 AND created_at < $2 AND status <> $3
		GROUP BY payment_method
		ORDER BY payment_method
	`, from, to, domain.SaleStatusVoided)
	if err != nil {
		return summary, err
	}
	for paymentRows.Next() {
		var row domain.SalesSummaryPayment
		if err := paymentRows.Scan(&row.PaymentMethod, &row.Sales, &row.TotalCents); err != nil {
			_ = paymentRows.Close()
			return summary, err
		}
		summary.ByPayment = append(summary.ByPayment, row)
	}
	if err := paymentRows.Err(); err != nil {
		_ = paymentRows.Close()
		return summary, err
	}
	_ = paymentRows.Close()

	return summary, nil
}

// GetInventoryValuation values remaining batch quantities at their
// received cost, which matches FIFO and stays a reasonable approximation
// for AVCO and standard products.
func (s *Store) GetInventoryValuation(ctx context.Context) (domain.InventoryValuation, error) {
	valuation := domain.InventoryValuation{
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		Lines:       make([]domain.ValuationLine, 0, 128),
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT p.id, p.sku, p.name, p.qty_on_hand,
			COALESCE(SUM(b.qty_remaining * b.unit_cost_cents),0)::bigint AS value_cents
		FROM products p
		LEFT JOIN inventory_batches b ON b.product_id = p.id AND b.status = $1
		WHERE p.active = true
		GROUP BY p.id, p.sku, p.name, p.qty_on_hand
		ORDER BY p.sku
	`, domain.BatchStatusActive)
	if err != nil {
		return valuation, err
	}
	defer rows.Close()

	for rows.Next() {
		var line domain.ValuationLine
		if err := rows.Scan(&line.ProductID, &line.SKU, &line.Name, &line.QtyOnHand, &line.ValueCents); err != nil {
			return valuation, err
		}
		valuation.TotalCents += line.ValueCents
		valuation.Lines = append(valuation.Lines, line)
	}
	if err := rows.Err(); err != nil {
		return valuation, err
	}
	return valuation, nil
}

func (s *Store) ListLowStock(ctx context.Context, fallbackThreshold int) ([]domain.LowStockLine, error) {
	if fallbackThreshold < 0 {
		fallbackThreshold = 0
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sku, name, qty_on_hand, reorder_level
		FROM products
		WHERE active = true
			AND qty_on_hand <= CASE WHEN reorder_level > 0 THEN reorder_level ELSE $1 END
		ORDER BY qty_on_hand ASC, sku
	`, fallbackThreshold)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	lines := make([]domain.LowStockLine, 0, 32)
	for rows.Next() {
		var line domain.LowStockLine
		if err := rows.Scan(&line.ProductID, &line.SKU, &line.Name, &line.QtyOnHand, &line.ReorderLevel); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}
