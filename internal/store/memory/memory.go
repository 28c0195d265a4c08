// Package memory implements the Repository on maps behind a mutex. It
// backs unit tests and dev mode; semantics mirror the postgres store.
package memory

import (
	"context"
	"fmt"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"tokosera/backend/internal/domain"
	"tokosera/backend/internal/store"
	"tokosera/backend/internal/xid"
)

type Store struct {
	mu             sync.RWMutex
	counters       map[string]int
	usersByID      map[string]domain.UserAccount
	products       map[string]domain.Product
	batchesByID    map[string]domain.InventoryBatch
	movements      map[string][]domain.StockMovement
	salesByID      map[string]*domain.Sale
	refundedBySale map[string]map[string]int
	invoicesByID   map[string]*domain.Invoice
	customersByID  map[string]domain.Customer
	suppliersByID  map[string]domain.Supplier
	receiptsByID   map[string]*domain.GoodsReceipt
	holdsByID      map[string]*domain.HeldOrder
	expensesByID   map[string]domain.Expense
	settings       domain.SystemSettings
	auditLogs      []domain.AuditLog
}

func New() *Store {
	return &Store{
		counters:       make(map[string]int),
		usersByID:      make(map[string]domain.UserAccount),
		products:       make(map[string]domain.Product),
		batchesByID:    make(map[string]domain.InventoryBatch),
		movements:      make(map[string][]domain.StockMovement),
		salesByID:      make(map[string]*domain.Sale),
		refundedBySale: make(map[string]map[string]int),
		invoicesByID:   make(map[string]*domain.Invoice),
		customersByID:  make(map[string]domain.Customer),
		suppliersByID:  make(map[string]domain.Supplier),
		receiptsByID:   make(map[string]*domain.GoodsReceipt),
		holdsByID:      make(map[string]*domain.HeldOrder),
		expensesByID:   make(map[string]domain.Expense),
		settings: domain.SystemSettings{
			StoreName:         "Toko Sera",
			CurrencyCode:      "IDR",
			DefaultTaxRatePct: 11,
			LowStockThreshold: 5,
		},
		auditLogs: make([]domain.AuditLog, 0, 128),
	}
}

// NewSeeded builds a store preloaded with dev users and a small catalog.
// Seed credentials come from SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD;
// hardcoded defaults are used with a warning when unset. The seeded store
// is never used when DATABASE_URL points at postgres.
func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC()

	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD to override.")
	}

	for _, u := range []struct {
		username string
		password string
		fullName string
		role     string
	}{
		{"admin", adminPwd, "Administrator", domain.RoleAdmin},
		{"cashier", cashierPwd, "Kasir Utama", domain.RoleCashier},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		account := domain.UserAccount{
			ID:           xid.New("usr"),
			Username:     u.username,
			PasswordHash: string(hash),
			FullName:     u.fullName,
			Role:         u.role,
			Active:       true,
			CreatedAt:    now,
		}
		s.usersByID[account.ID] = account
	}

	seedProducts := []struct {
		name     string
		category string
		price    int64
		cost     int64
		costing  string
		qty      int
	}{
		{"Mie Goreng Instan", "grocery", 3500, 2700, domain.CostingFIFO, 120},
		{"Telur 10 Butir", "grocery", 26500, 23000, domain.CostingAVCO, 60},
		{"Susu UHT 1L", "dairy", 18900, 13600, domain.CostingFIFO, 48},
		{"Roti Tawar", "bakery", 17800, 12400, domain.CostingFIFO, 30},
		{"Kopi Sachet", "beverage", 2600, 1700, domain.CostingStandard, 200},
		{"Gula 1kg", "grocery", 17400, 15300, domain.CostingAVCO, 80},
	}
	for idx, sp := range seedProducts {
		product := domain.Product{
			ID:            xid.New("prd"),
			SKU:           fmt.Sprintf("PRD-%05d", idx+1),
			Name:          sp.name,
			Category:      sp.category,
			PriceCents:    sp.price,
			CostCents:     sp.cost,
			CostingMethod: sp.costing,
			QtyOnHand:     sp.qty,
			ReorderLevel:  10,
			Active:        true,
			CreatedAt:     now,
		}
		s.products[product.ID] = product
		s.counters["sku-0"] = idx + 1

		batch := domain.InventoryBatch{
			ID:            xid.New("batch"),
			ProductID:     product.ID,
			BatchNumber:   "SEED-" + product.SKU,
			QtyReceived:   sp.qty,
			QtyRemaining:  sp.qty,
			UnitCostCents: sp.cost,
			Status:        domain.BatchStatusActive,
			ReceivedAt:    now,
			CreatedAt:     now,
		}
		s.batchesByID[batch.ID] = batch
	}

	return s
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func (s *Store) NextDocumentNumber(_ context.Context, docType string, year int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := fmt.Sprintf("%s-%d", docType, year)
	s.counters[key]++
	return s.counters[key], nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) (*domain.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.usersByID {
		if existing.Username == user.Username {
			return nil, store.ErrConflict
		}
	}
	if user.ID == "" {
		user.ID = xid.New("usr")
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	s.usersByID[user.ID] = user
	created := user
	return &created, nil
}

func (s *Store) GetUserByUsername(_ context.Context, username string) (*domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, user := range s.usersByID {
		if user.Username == username {
			found := user
			return &found, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByID))
	for _, user := range s.usersByID {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return strings.Compare(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUser(_ context.Context, user domain.UserAccount) (*domain.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.usersByID[user.ID]
	if !exists {
		return nil, store.ErrNotFound
	}
	user.Username = existing.Username
	user.CreatedAt = existing.CreatedAt
	s.usersByID[user.ID] = user
	updated := user
	return &updated, nil
}

// productCollision reports whether another active product already claims
// the SKU, barcode, or name.
func (s *Store) productCollision(candidate domain.Product) bool {
	for _, p := range s.products {
		if p.ID == candidate.ID || !p.Active {
			continue
		}
		if p.SKU == candidate.SKU || p.Name == candidate.Name {
			return true
		}
		if candidate.Barcode != "" && p.Barcode == candidate.Barcode {
			return true
		}
	}
	return false
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.productCollision(product) {
		return nil, store.ErrConflict
	}
	if product.ID == "" {
		product.ID = xid.New("prd")
	}
	if product.CreatedAt.IsZero() {
		product.CreatedAt = time.Now().UTC()
	}
	product.Active = true
	s.products[product.ID] = product
	created := product
	return &created, nil
}

func (s *Store) findProduct(key string) (domain.Product, bool) {
	if p, ok := s.products[key]; ok {
		return p, true
	}
	for _, p := range s.products {
		if p.SKU == key || (key != "" && p.Barcode == key) {
			return p, true
		}
	}
	return domain.Product{}, false
}

func (s *Store) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, exists := s.findProduct(id)
	if !exists {
		return nil, store.ErrNotFound
	}
	found := product
	return &found, nil
}

func (s *Store) GetProductsByIDs(_ context.Context, ids []string) (map[string]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]domain.Product, len(ids))
	for _, id := range ids {
		if p, ok := s.products[id]; ok {
			result[id] = p
		}
	}
	return result, nil
}

func (s *Store) ListProducts(_ context.Context, search string, includeInactive bool, limit int) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit < 1 {
		limit = 100
	}
	needle := strings.ToLower(strings.TrimSpace(search))

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if !includeInactive && !p.Active {
			continue
		}
		if needle != "" &&
			!strings.Contains(strings.ToLower(p.Name), needle) &&
			!strings.Contains(strings.ToLower(p.SKU), needle) &&
			p.Barcode != search {
			continue
		}
		products = append(products, p)
	}
	slices.SortFunc(products, func(a, b domain.Product) int {
		if a.Category == b.Category {
			return strings.Compare(a.Name, b.Name)
		}
		return strings.Compare(a.Category, b.Category)
	})
	if len(products) > limit {
		products = products[:limit]
	}
	return products, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.products[product.ID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if s.productCollision(product) {
		return nil, store.ErrConflict
	}
	product.SKU = existing.SKU
	product.QtyOnHand = existing.QtyOnHand
	product.CreatedAt = existing.CreatedAt
	s.products[product.ID] = product
	updated := product
	return &updated, nil
}

func (s *Store) CreateBatch(_ context.Context, batch domain.InventoryBatch) (*domain.InventoryBatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

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
	s.batchesByID[batch.ID] = batch
	created := batch
	return &created, nil
}

// sortedBatches returns the product's batches in FIFO depletion order.
func (s *Store) sortedBatches(productID string, activeOnly bool) []domain.InventoryBatch {
	batches := make([]domain.InventoryBatch, 0, 8)
	for _, b := range s.batchesByID {
		if b.ProductID != productID {
			continue
		}
		if activeOnly && (b.Status != domain.BatchStatusActive || b.QtyRemaining < 1) {
			continue
		}
		batches = append(batches, b)
	}
	slices.SortFunc(batches, func(a, b domain.InventoryBatch) int {
		if !a.ReceivedAt.Equal(b.ReceivedAt) {
			if a.ReceivedAt.Before(b.ReceivedAt) {
				return -1
			}
			return 1
		}
		if a.CreatedAt.Equal(b.CreatedAt) {
			return strings.Compare(a.ID, b.ID)
		}
		if a.CreatedAt.Before(b.CreatedAt) {
			return -1
		}
		return 1
	})
	return batches
}

func (s *Store) ListBatches(_ context.Context, productID string, activeOnly bool) ([]domain.InventoryBatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sortedBatches(productID, activeOnly), nil
}

func (s *Store) appendMovement(movement *domain.StockMovement) {
	if movement.ID == "" {
		movement.ID = xid.New("mv")
	}
	if movement.CreatedAt.IsZero() {
		movement.CreatedAt = time.Now().UTC()
	}
	s.movements[movement.ProductID] = append(s.movements[movement.ProductID], *movement)
}

func (s *Store) ApplyStockAdjustment(_ context.Context, movement domain.StockMovement, unitCostCents int64) (*domain.StockMovement, int, error) {
	if movement.Qty == 0 {
		return nil, 0, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	product, exists := s.products[movement.ProductID]
	if !exists || !product.Active {
		return nil, 0, store.ErrNotFound
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
		s.batchesByID[batch.ID] = batch
		movement.BatchID = batch.ID
	} else {
		needed := -movement.Qty
		batches := s.sortedBatches(movement.ProductID, true)
		if len(batches) == 0 {
			return nil, 0, store.ErrInsufficientStock
		}
		oldest := batches[0]
		// Out-adjustments never split across batches.
		if oldest.QtyRemaining < needed {
			return nil, 0, store.ErrInsufficientStock
		}
		oldest.QtyRemaining -= needed
		if oldest.QtyRemaining == 0 {
			oldest.Status = domain.BatchStatusDepleted
		}
		s.batchesByID[oldest.ID] = oldest
		movement.BatchID = oldest.ID
	}

	product.QtyOnHand += movement.Qty
	s.products[product.ID] = product
	s.appendMovement(&movement)
	return &movement, product.QtyOnHand, nil
}

func (s *Store) ListMovements(_ context.Context, productID string, limit int) ([]domain.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit < 1 {
		limit = 100
	}

	history := s.movements[productID]
	entries := make([]domain.LedgerEntry, 0, len(history))
	running := 0
	for _, m := range history {
		running += m.Qty
		entries = append(entries, domain.LedgerEntry{StockMovement: m, RunningQty: running})
	}
	if len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	return entries, nil
}

func (s *Store) CreateSale(_ context.Context, sale domain.Sale) (*domain.Sale, error) {
	if len(sale.Items) == 0 {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}
	if sale.Status == "" {
		sale.Status = domain.SaleStatusCompleted
	}

	// Check availability before the first mutation.
	for _, item := range sale.Items {
		if item.Qty < 1 {
			return nil, store.ErrInvalidInput
		}
		product, exists := s.products[item.ProductID]
		if !exists || !product.Active {
			return nil, store.ErrNotFound
		}
		available := 0
		for _, b := range s.sortedBatches(item.ProductID, true) {
			available += b.QtyRemaining
		}
		if available < item.Qty || product.QtyOnHand < item.Qty {
			return nil, store.ErrInsufficientStock
		}
	}

	for idx := range sale.Items {
		item := &sale.Items[idx]
		product := s.products[item.ProductID]

		remaining := item.Qty
		fifoCostTotal := int64(0)
		for _, b := range s.sortedBatches(item.ProductID, true) {
			if remaining == 0 {
				break
			}
			used := remaining
			if used > b.QtyRemaining {
				used = b.QtyRemaining
			}
			b.QtyRemaining -= used
			if b.QtyRemaining == 0 {
				b.Status = domain.BatchStatusDepleted
			}
			s.batchesByID[b.ID] = b

			movement := domain.StockMovement{
				ProductID: item.ProductID,
				BatchID:   b.ID,
				Type:      domain.MovementSale,
				Qty:       -used,
				Reference: sale.Number,
				Actor:     sale.Cashier,
				CreatedAt: sale.CreatedAt,
			}
			s.appendMovement(&movement)

			fifoCostTotal += b.UnitCostCents * int64(used)
			remaining -= used
		}

		if product.CostingMethod == domain.CostingFIFO {
			item.UnitCostCents = fifoCostTotal / int64(item.Qty)
		} else {
			item.UnitCostCents = product.CostCents
		}

		product.QtyOnHand -= item.Qty
		s.products[product.ID] = product
	}

	stored := sale
	s.salesByID[sale.ID] = &stored
	created := sale
	return &created, nil
}

func (s *Store) lookupSale(key string) (*domain.Sale, bool) {
	if sale, ok := s.salesByID[key]; ok {
		return sale, true
	}
	for _, sale := range s.salesByID {
		if sale.Number == key {
			return sale, true
		}
	}
	return nil, false
}

func (s *Store) GetSale(_ context.Context, id string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, exists := s.lookupSale(id)
	if !exists {
		return nil, store.ErrNotFound
	}
	found := *sale
	found.Items = slices.Clone(sale.Items)
	return &found, nil
}

func (s *Store) ListSales(_ context.Context, from time.Time, to time.Time, status string, limit int) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit < 1 {
		limit = 100
	}

	sales := make([]domain.Sale, 0, len(s.salesByID))
	for _, sale := range s.salesByID {
		if sale.CreatedAt.Before(from) || !sale.CreatedAt.Before(to) {
			continue
		}
		if status != "" && sale.Status != status {
			continue
		}
		copied := *sale
		copied.Items = slices.Clone(sale.Items)
		sales = append(sales, copied)
	}
	slices.SortFunc(sales, func(a, b domain.Sale) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return strings.Compare(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if len(sales) > limit {
		sales = sales[:limit]
	}
	return sales, nil
}

// restockLine opens a return batch for a reversed quantity, mirroring
// the postgres store.
func (s *Store) restockLine(productID string, qty int, unitCostCents int64, reference string, actor string, at time.Time) {
	batch := domain.InventoryBatch{
		ID:            xid.New("batch"),
		ProductID:     productID,
		BatchNumber:   "RET-" + reference,
		QtyReceived:   qty,
		QtyRemaining:  qty,
		UnitCostCents: unitCostCents,
		Status:        domain.BatchStatusActive,
		ReceivedAt:    at,
		CreatedAt:     at,
	}
	s.batchesByID[batch.ID] = batch

	movement := domain.StockMovement{
		ProductID: productID,
		BatchID:   batch.ID,
		Type:      domain.MovementReturn,
		Qty:       qty,
		Reference: reference,
		Actor:     actor,
		CreatedAt: at,
	}
	s.appendMovement(&movement)

	product := s.products[productID]
	product.QtyOnHand += qty
	s.products[productID] = product
}

func (s *Store) VoidSale(_ context.Context, id string, reason string, at time.Time) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sale, exists := s.lookupSale(id)
	if !exists {
		return nil, store.ErrNotFound
	}
	if sale.Status != domain.SaleStatusCompleted {
		return nil, store.ErrConflict
	}
	// Refunded lines have already been restocked; a partially refunded
	// sale can only continue through further refunds.
	if len(s.refundedBySale[sale.ID]) > 0 {
		return nil, store.ErrConflict
	}

	for _, item := range sale.Items {
		s.restockLine(item.ProductID, item.Qty, item.UnitCostCents, sale.Number, sale.Cashier, at)
	}

	sale.Status = domain.SaleStatusVoided
	sale.VoidReason = reason
	voidedAt := at
	sale.VoidedAt = &voidedAt

	voided := *sale
	voided.Items = slices.Clone(sale.Items)
	return &voided, nil
}

func (s *Store) RefundSale(_ context.Context, id string, lines []domain.SaleRefundLine, reason string, at time.Time) (*domain.SaleRefundResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sale, exists := s.lookupSale(id)
	if !exists {
		return nil, store.ErrNotFound
	}
	if sale.Status != domain.SaleStatusCompleted {
		return nil, store.ErrConflict
	}

	itemMap := make(map[string]domain.SaleItem, len(sale.Items))
	for _, item := range sale.Items {
		itemMap[item.ProductID] = item
	}
	if len(lines) == 0 {
		for _, item := range sale.Items {
			lines = append(lines, domain.SaleRefundLine{ProductID: item.ProductID, Qty: item.Qty})
		}
	}

	refunded := s.refundedBySale[sale.ID]
	if refunded == nil {
		refunded = make(map[string]int)
		s.refundedBySale[sale.ID] = refunded
	}

	for _, line := range lines {
		if line.Qty < 1 {
			return nil, store.ErrInvalidInput
		}
		item, ok := itemMap[line.ProductID]
		if !ok {
			return nil, store.ErrInvalidInput
		}
		if refunded[line.ProductID]+line.Qty > item.Qty {
			return nil, store.ErrInvalidInput
		}
	}

	amountCents := int64(0)
	restockedQty := 0
	for _, line := range lines {
		item := itemMap[line.ProductID]
		s.restockLine(line.ProductID, line.Qty, item.UnitCostCents, sale.Number, sale.Cashier, at)
		refunded[line.ProductID] += line.Qty
		amountCents += item.UnitPriceCents * int64(line.Qty)
		restockedQty += line.Qty
	}

	fullyRefunded := true
	for _, item := range sale.Items {
		if refunded[item.ProductID] < item.Qty {
			fullyRefunded = false
			break
		}
	}
	if fullyRefunded {
		sale.Status = domain.SaleStatusRefunded
	}

	return &domain.SaleRefundResponse{
		SaleID:       sale.ID,
		Status:       sale.Status,
		AmountCents:  amountCents,
		RestockedQty: restockedQty,
	}, nil
}

func (s *Store) CreateInvoice(_ context.Context, invoice domain.Invoice) (*domain.Invoice, error) {
	if len(invoice.Items) == 0 {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	customer, exists := s.customersByID[invoice.CustomerID]
	if !exists || !customer.Active {
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

	customer.BalanceCents += totalCents
	s.customersByID[customer.ID] = customer

	stored := invoice
	stored.Items = slices.Clone(invoice.Items)
	s.invoicesByID[invoice.ID] = &stored
	created := invoice
	return &created, nil
}

func (s *Store) lookupInvoice(key string) (*domain.Invoice, bool) {
	if invoice, ok := s.invoicesByID[key]; ok {
		return invoice, true
	}
	for _, invoice := range s.invoicesByID {
		if invoice.Number == key {
			return invoice, true
		}
	}
	return nil, false
}

// effectiveStatus surfaces overdue lazily, same as the postgres store.
func effectiveStatus(invoice *domain.Invoice, at time.Time) string {
	if (invoice.Status == domain.InvoiceStatusSent || invoice.Status == domain.InvoiceStatusPartiallyPaid) &&
		invoice.AmountDue > 0 && invoice.DueDate.Before(at) {
		return domain.InvoiceStatusOverdue
	}
	return invoice.Status
}

func (s *Store) copyInvoice(invoice *domain.Invoice) *domain.Invoice {
	copied := *invoice
	copied.Status = effectiveStatus(invoice, time.Now().UTC())
	copied.Items = slices.Clone(invoice.Items)
	copied.Payments = slices.Clone(invoice.Payments)
	return &copied
}

func (s *Store) GetInvoice(_ context.Context, id string) (*domain.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	invoice, exists := s.lookupInvoice(id)
	if !exists {
		return nil, store.ErrNotFound
	}
	return s.copyInvoice(invoice), nil
}

func (s *Store) ListInvoices(_ context.Context, status string, limit int) ([]domain.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit < 1 {
		limit = 100
	}

	invoices := make([]domain.Invoice, 0, len(s.invoicesByID))
	for _, invoice := range s.invoicesByID {
		copied := s.copyInvoice(invoice)
		if status != "" && copied.Status != status {
			continue
		}
		invoices = append(invoices, *copied)
	}
	slices.SortFunc(invoices, func(a, b domain.Invoice) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return strings.Compare(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if len(invoices) > limit {
		invoices = invoices[:limit]
	}
	return invoices, nil
}

func (s *Store) MarkInvoiceSent(_ context.Context, id string) (*domain.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	invoice, exists := s.lookupInvoice(id)
	if !exists {
		return nil, store.ErrNotFound
	}
	if invoice.Status != domain.InvoiceStatusDraft {
		return nil, store.ErrConflict
	}
	invoice.Status = domain.InvoiceStatusSent
	return s.copyInvoice(invoice), nil
}

func (s *Store) CancelInvoice(_ context.Context, id string) (*domain.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	invoice, exists := s.lookupInvoice(id)
	if !exists {
		return nil, store.ErrNotFound
	}
	if invoice.Status == domain.InvoiceStatusPaid || invoice.Status == domain.InvoiceStatusCancelled {
		return nil, store.ErrConflict
	}

	customer := s.customersByID[invoice.CustomerID]
	customer.BalanceCents -= invoice.AmountDue
	s.customersByID[customer.ID] = customer

	invoice.Status = domain.InvoiceStatusCancelled
	invoice.AmountDue = 0
	return s.copyInvoice(invoice), nil
}

func (s *Store) AddInvoicePayment(_ context.Context, payment domain.InvoicePayment) (*domain.Invoice, error) {
	if payment.AmountCents < 1 {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	invoice, exists := s.lookupInvoice(payment.InvoiceID)
	if !exists {
		return nil, store.ErrNotFound
	}
	switch effectiveStatus(invoice, time.Now().UTC()) {
	case domain.InvoiceStatusSent, domain.InvoiceStatusPartiallyPaid, domain.InvoiceStatusOverdue:
	default:
		return nil, store.ErrConflict
	}
	if payment.AmountCents > invoice.AmountDue {
		return nil, store.ErrInvalidInput
	}

	if payment.ID == "" {
		payment.ID = xid.New("pay")
	}
	if payment.PaidAt.IsZero() {
		payment.PaidAt = time.Now().UTC()
	}
	payment.InvoiceID = invoice.ID
	invoice.Payments = append(invoice.Payments, payment)
	invoice.AmountDue -= payment.AmountCents
	if invoice.AmountDue == 0 {
		invoice.Status = domain.InvoiceStatusPaid
	} else {
		invoice.Status = domain.InvoiceStatusPartiallyPaid
	}

	customer := s.customersByID[invoice.CustomerID]
	customer.BalanceCents -= payment.AmountCents
	s.customersByID[customer.ID] = customer

	return s.copyInvoice(invoice), nil
}

func (s *Store) CreateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if customer.ID == "" {
		customer.ID = xid.New("cust")
	}
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = time.Now().UTC()
	}
	customer.Active = true
	s.customersByID[customer.ID] = customer
	created := customer
	return &created, nil
}

func (s *Store) GetCustomer(_ context.Context, id string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customer, exists := s.customersByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	found := customer
	return &found, nil
}

func (s *Store) ListCustomers(_ context.Context, includeInactive bool, limit int) ([]domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit < 1 {
		limit = 100
	}
	customers := make([]domain.Customer, 0, len(s.customersByID))
	for _, c := range s.customersByID {
		if !includeInactive && !c.Active {
			continue
		}
		customers = append(customers, c)
	}
	slices.SortFunc(customers, func(a, b domain.Customer) int {
		return strings.Compare(a.Name, b.Name)
	})
	if len(customers) > limit {
		customers = customers[:limit]
	}
	return customers, nil
}

func (s *Store) UpdateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.customersByID[customer.ID]
	if !exists {
		return nil, store.ErrNotFound
	}
	customer.BalanceCents = existing.BalanceCents
	customer.CreatedAt = existing.CreatedAt
	s.customersByID[customer.ID] = customer
	updated := customer
	return &updated, nil
}

func (s *Store) GetCustomerStatement(_ context.Context, customerID string) (*domain.CustomerStatement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customer, exists := s.customersByID[customerID]
	if !exists {
		return nil, store.ErrNotFound
	}

	type event struct {
		line      domain.StatementLine
		createdAt time.Time
	}
	events := make([]event, 0, 32)
	for _, invoice := range s.invoicesByID {
		if invoice.CustomerID != customerID || invoice.Status == domain.InvoiceStatusCancelled {
			continue
		}
		events = append(events, event{
			line: domain.StatementLine{
				Date:        invoice.IssueDate,
				Kind:        "invoice",
				Reference:   invoice.Number,
				AmountCents: invoice.TotalCents,
			},
			createdAt: invoice.CreatedAt,
		})
		for _, payment := range invoice.Payments {
			events = append(events, event{
				line: domain.StatementLine{
					Date:        payment.PaidAt,
					Kind:        "payment",
					Reference:   invoice.Number,
					AmountCents: -payment.AmountCents,
				},
				createdAt: payment.PaidAt,
			})
		}
	}
	slices.SortFunc(events, func(a, b event) int {
		if !a.line.Date.Equal(b.line.Date) {
			if a.line.Date.Before(b.line.Date) {
				return -1
			}
			return 1
		}
		if a.createdAt.Equal(b.createdAt) {
			return 0
		}
		if a.createdAt.Before(b.createdAt) {
			return -1
		}
		return 1
	})

	statement := domain.CustomerStatement{
		CustomerID:   customer.ID,
		CustomerName: customer.Name,
		BalanceCents: customer.BalanceCents,
		Lines:        make([]domain.StatementLine, 0, len(events)),
	}
	running := int64(0)
	for _, e := range events {
		running += e.line.AmountCents
		e.line.RunningBalance = running
		statement.Lines = append(statement.Lines, e.line)
	}
	return &statement, nil
}

func (s *Store) CreateSupplier(_ context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if supplier.ID == "" {
		supplier.ID = xid.New("sup")
	}
	if supplier.CreatedAt.IsZero() {
		supplier.CreatedAt = time.Now().UTC()
	}
	supplier.Active = true
	s.suppliersByID[supplier.ID] = supplier
	created := supplier
	return &created, nil
}

func (s *Store) GetSupplier(_ context.Context, id string) (*domain.Supplier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	supplier, exists := s.suppliersByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	found := supplier
	return &found, nil
}

func (s *Store) ListSuppliers(_ context.Context, includeInactive bool, limit int) ([]domain.Supplier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit < 1 {
		limit = 100
	}
	suppliers := make([]domain.Supplier, 0, len(s.suppliersByID))
	for _, sup := range s.suppliersByID {
		if !includeInactive && !sup.Active {
			continue
		}
		suppliers = append(suppliers, sup)
	}
	slices.SortFunc(suppliers, func(a, b domain.Supplier) int {
		return strings.Compare(a.Name, b.Name)
	})
	if len(suppliers) > limit {
		suppliers = suppliers[:limit]
	}
	return suppliers, nil
}

func (s *Store) UpdateSupplier(_ context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.suppliersByID[supplier.ID]
	if !exists {
		return nil, store.ErrNotFound
	}
	supplier.BalanceCents = existing.BalanceCents
	supplier.CreatedAt = existing.CreatedAt
	s.suppliersByID[supplier.ID] = supplier
	updated := supplier
	return &updated, nil
}

func (s *Store) CreateGoodsReceipt(_ context.Context, receipt domain.GoodsReceipt) (*domain.GoodsReceipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if receipt.ID == "" {
		receipt.ID = xid.New("gr")
	}
	if receipt.CreatedAt.IsZero() {
		receipt.CreatedAt = time.Now().UTC()
	}
	if receipt.Status == "" {
		receipt.Status = domain.ReceiptStatusDraft
	}

	stored := receipt
	stored.Items = slices.Clone(receipt.Items)
	s.receiptsByID[receipt.ID] = &stored
	created := receipt
	return &created, nil
}

func (s *Store) lookupReceipt(key string) (*domain.GoodsReceipt, bool) {
	if receipt, ok := s.receiptsByID[key]; ok {
		return receipt, true
	}
	for _, receipt := range s.receiptsByID {
		if receipt.Number == key {
			return receipt, true
		}
	}
	return nil, false
}

func (s *Store) GetGoodsReceipt(_ context.Context, id string) (*domain.GoodsReceipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	receipt, exists := s.lookupReceipt(id)
	if !exists {
		return nil, store.ErrNotFound
	}
	found := *receipt
	found.Items = slices.Clone(receipt.Items)
	return &found, nil
}

func (s *Store) ListGoodsReceipts(_ context.Context, status string, limit int) ([]domain.GoodsReceipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit < 1 {
		limit = 50
	}
	receipts := make([]domain.GoodsReceipt, 0, len(s.receiptsByID))
	for _, receipt := range s.receiptsByID {
		if status != "" && receipt.Status != status {
			continue
		}
		copied := *receipt
		copied.Items = slices.Clone(receipt.Items)
		receipts = append(receipts, copied)
	}
	slices.SortFunc(receipts, func(a, b domain.GoodsReceipt) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return strings.Compare(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if len(receipts) > limit {
		receipts = receipts[:limit]
	}
	return receipts, nil
}

func (s *Store) FinalizeGoodsReceipt(_ context.Context, id string, at time.Time) (*domain.GoodsReceipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	receipt, exists := s.lookupReceipt(id)
	if !exists {
		return nil, store.ErrNotFound
	}
	if receipt.Status != domain.ReceiptStatusDraft {
		return nil, store.ErrConflict
	}
	if len(receipt.Items) == 0 {
		return nil, store.ErrInvalidInput
	}

	// Validation completes before the first mutation.
	for _, item := range receipt.Items {
		if item.Qty < 1 || item.UnitCostCents < 0 {
			return nil, store.ErrInvalidInput
		}
		product, ok := s.products[item.ProductID]
		if !ok || !product.Active {
			return nil, store.ErrInvalidInput
		}
	}

	totalCents := int64(0)
	for _, item := range receipt.Items {
		product := s.products[item.ProductID]

		batch := domain.InventoryBatch{
			ID:            xid.New("batch"),
			ProductID:     item.ProductID,
			BatchNumber:   receipt.Number,
			QtyReceived:   item.Qty,
			QtyRemaining:  item.Qty,
			UnitCostCents: item.UnitCostCents,
			Status:        domain.BatchStatusActive,
			ReceivedAt:    at,
			CreatedAt:     at,
		}
		s.batchesByID[batch.ID] = batch

		movement := domain.StockMovement{
			ProductID: item.ProductID,
			BatchID:   batch.ID,
			Type:      domain.MovementPurchaseReceipt,
			Qty:       item.Qty,
			Reference: receipt.Number,
			Actor:     receipt.CreatedBy,
			CreatedAt: at,
		}
		s.appendMovement(&movement)

		newQty := product.QtyOnHand + item.Qty
		if product.CostingMethod == domain.CostingAVCO && newQty > 0 {
			product.CostCents = (product.CostCents*int64(product.QtyOnHand) + item.UnitCostCents*int64(item.Qty)) / int64(newQty)
		}
		product.QtyOnHand = newQty
		s.products[product.ID] = product

		totalCents += item.UnitCostCents * int64(item.Qty)
	}

	supplier := s.suppliersByID[receipt.SupplierID]
	supplier.BalanceCents += totalCents
	s.suppliersByID[supplier.ID] = supplier

	receipt.Status = domain.ReceiptStatusCompleted
	receipt.TotalCents = totalCents
	completedAt := at
	receipt.CompletedAt = &completedAt

	finalized := *receipt
	finalized.Items = slices.Clone(receipt.Items)
	return &finalized, nil
}

func (s *Store) CancelGoodsReceipt(_ context.Context, id string) (*domain.GoodsReceipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	receipt, exists := s.lookupReceipt(id)
	if !exists {
		return nil, store.ErrNotFound
	}
	if receipt.Status != domain.ReceiptStatusDraft {
		return nil, store.ErrConflict
	}
	receipt.Status = domain.ReceiptStatusCancelled
	cancelled := *receipt
	cancelled.Items = slices.Clone(receipt.Items)
	return &cancelled, nil
}

func (s *Store) CreateHeldOrder(_ context.Context, hold domain.HeldOrder) (*domain.HeldOrder, error) {
	if len(hold.Items) == 0 {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

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

	stored := hold
	stored.Items = slices.Clone(hold.Items)
	s.holdsByID[hold.ID] = &stored
	created := hold
	return &created, nil
}

func (s *Store) GetHeldOrder(_ context.Context, id string, at time.Time) (*domain.HeldOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	hold, exists := s.holdsByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	if hold.Status == domain.HoldStatusExpired || (hold.Status == domain.HoldStatusActive && !at.Before(hold.ExpiresAt)) {
		return nil, store.ErrHoldExpired
	}
	found := *hold
	found.Items = slices.Clone(hold.Items)
	return &found, nil
}

func (s *Store) ListHeldOrders(_ context.Context, at time.Time, limit int) ([]domain.HeldOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit < 1 {
		limit = 50
	}
	holds := make([]domain.HeldOrder, 0, len(s.holdsByID))
	for _, hold := range s.holdsByID {
		if hold.Status != domain.HoldStatusActive || !at.Before(hold.ExpiresAt) {
			continue
		}
		copied := *hold
		copied.Items = slices.Clone(hold.Items)
		holds = append(holds, copied)
	}
	slices.SortFunc(holds, func(a, b domain.HeldOrder) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return strings.Compare(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if len(holds) > limit {
		holds = holds[:limit]
	}
	return holds, nil
}

func (s *Store) ResumeHeldOrder(_ context.Context, id string, at time.Time) (*domain.HeldOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	hold, exists := s.holdsByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	if hold.Status == domain.HoldStatusExpired || (hold.Status == domain.HoldStatusActive && !at.Before(hold.ExpiresAt)) {
		return nil, store.ErrHoldExpired
	}
	if hold.Status != domain.HoldStatusActive {
		return nil, store.ErrConflict
	}

	hold.Status = domain.HoldStatusResumed
	resumed := *hold
	resumed.Items = slices.Clone(hold.Items)
	return &resumed, nil
}

func (s *Store) DiscardHeldOrder(_ context.Context, id string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	hold, exists := s.holdsByID[id]
	if !exists {
		return store.ErrNotFound
	}
	if hold.Status != domain.HoldStatusActive {
		return store.ErrConflict
	}
	hold.Status = domain.HoldStatusExpired
	return nil
}

func (s *Store) CreateExpense(_ context.Context, expense domain.Expense) (*domain.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

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
	s.expensesByID[expense.ID] = expense
	created := expense
	return &created, nil
}

func (s *Store) GetExpense(_ context.Context, id string) (*domain.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	expense, exists := s.expensesByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	found := expense
	return &found, nil
}

func (s *Store) ListExpenses(_ context.Context, from time.Time, to time.Time, limit int) ([]domain.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit < 1 {
		limit = 100
	}
	expenses := make([]domain.Expense, 0, len(s.expensesByID))
	for _, expense := range s.expensesByID {
		if !expense.Active {
			continue
		}
		if expense.IncurredAt.Before(from) || !expense.IncurredAt.Before(to) {
			continue
		}
		expenses = append(expenses, expense)
	}
	slices.SortFunc(expenses, func(a, b domain.Expense) int {
		if a.IncurredAt.Equal(b.IncurredAt) {
			return strings.Compare(b.ID, a.ID)
		}
		if a.IncurredAt.After(b.IncurredAt) {
			return -1
		}
		return 1
	})
	if len(expenses) > limit {
		expenses = expenses[:limit]
	}
	return expenses, nil
}

func (s *Store) UpdateExpense(_ context.Context, expense domain.Expense) (*domain.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.expensesByID[expense.ID]
	if !exists {
		return nil, store.ErrNotFound
	}
	expense.RecordedBy = existing.RecordedBy
	expense.CreatedAt = existing.CreatedAt
	s.expensesByID[expense.ID] = expense
	updated := expense
	return &updated, nil
}

func (s *Store) GetSettings(_ context.Context) (*domain.SystemSettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	settings := s.settings
	return &settings, nil
}

func (s *Store) UpdateSettings(_ context.Context, settings domain.SystemSettings) (*domain.SystemSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.settings = settings
	updated := settings
	return &updated, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit < 1 {
		limit = 100
	}
	logs := make([]domain.AuditLog, 0, limit)
	for _, entry := range s.auditLogs {
		if entry.CreatedAt.Before(from) || !entry.CreatedAt.Before(to) {
			continue
		}
		logs = append(logs, entry)
	}
	slices.SortFunc(logs, func(a, b domain.AuditLog) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return strings.Compare(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if len(logs) > limit {
		logs = logs[:limit]
	}
	return logs, nil
}

func (s *Store) GetSalesSummary(_ context.Context, from time.Time, to time.Time) (domain.SalesSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summary := domain.SalesSummary{
		From:      from.UTC().Format("2006-01-02"),
		To:        to.UTC().Format("2006-01-02"),
		ByDay:     make([]domain.SalesSummaryDay, 0, 31),
		ByPayment: make([]domain.SalesSummaryPayment, 0, 4),
	}

	dayMap := make(map[string]*domain.SalesSummaryDay)
	paymentMap := make(map[string]*domain.SalesSummaryPayment)
	for _, sale := range s.salesByID {
		if sale.Status == domain.SaleStatusVoided {
			continue
		}
		if sale.CreatedAt.Before(from) || !sale.CreatedAt.Before(to) {
			continue
		}

		summary.Sales++
		summary.GrossCents += sale.SubtotalCents
		summary.DiscountCents += sale.DiscountCents
		summary.TaxCents += sale.TaxCents
		summary.NetCents += sale.TotalCents

		margin := int64(0)
		for _, item := range sale.Items {
			margin += (item.UnitPriceCents - item.UnitCostCents) * int64(item.Qty)
		}
		summary.MarginCents += margin

		day := sale.CreatedAt.UTC().Format("2006-01-02")
		if dayMap[day] == nil {
			dayMap[day] = &domain.SalesSummaryDay{Date: day}
		}
		dayMap[day].Sales++
		dayMap[day].GrossCents += sale.TotalCents
		dayMap[day].MarginCents += margin

		if paymentMap[sale.PaymentMethod] == nil {
			paymentMap[sale.PaymentMethod] = &domain.SalesSummaryPayment{PaymentMethod: sale.PaymentMethod}
		}
		paymentMap[sale.PaymentMethod].Sales++
		paymentMap[sale.PaymentMethod].TotalCents += sale.TotalCents
	}

	for _, day := range dayMap {
		summary.ByDay = append(summary.ByDay, *day)
	}
	slices.SortFunc(summary.ByDay, func(a, b domain.SalesSummaryDay) int {
		return strings.Compare(a.Date, b.Date)
	})
	for _, payment := range paymentMap {
		summary.ByPayment = append(summary.ByPayment, *payment)
	}
	slices.SortFunc(summary.ByPayment, func(a, b domain.SalesSummaryPayment) int {
		return strings.Compare(a.PaymentMethod, b.PaymentMethod)
	})

	return summary, nil
}

func (s *Store) GetInventoryValuation(_ context.Context) (domain.InventoryValuation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	valuation := domain.InventoryValuation{
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		Lines:       make([]domain.ValuationLine, 0, len(s.products)),
	}

	for _, product := range s.products {
		if !product.Active {
			continue
		}
		line := domain.ValuationLine{
			ProductID: product.ID,
			SKU:       product.SKU,
			Name:      product.Name,
			QtyOnHand: product.QtyOnHand,
		}
		for _, b := range s.batchesByID {
			if b.ProductID == product.ID && b.Status == domain.BatchStatusActive {
				line.ValueCents += int64(b.QtyRemaining) * b.UnitCostCents
			}
		}
		valuation.TotalCents += line.ValueCents
		valuation.Lines = append(valuation.Lines, line)
	}
	slices.SortFunc(valuation.Lines, func(a, b domain.ValuationLine) int {
		return strings.Compare(a.SKU, b.SKU)
	})

	return valuation, nil
}

func (s *Store) ListLowStock(_ context.Context, fallbackThreshold int) ([]domain.LowStockLine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if fallbackThreshold < 0 {
		fallbackThreshold = 0
	}

	lines := make([]domain.LowStockLine, 0, 32)
	for _, product := range s.products {
		if !product.Active {
			continue
		}
		threshold := product.ReorderLevel
		if threshold == 0 {
			threshold = fallbackThreshold
		}
		if product.QtyOnHand > threshold {
			continue
		}
		lines = append(lines, domain.LowStockLine{
			ProductID:    product.ID,
			SKU:          product.SKU,
			Name:         product.Name,
			QtyOnHand:    product.QtyOnHand,
			ReorderLevel: product.ReorderLevel,
		})
	}
	slices.SortFunc(lines, func(a, b domain.LowStockLine) int {
		if a.QtyOnHand == b.QtyOnHand {
			return strings.Compare(a.SKU, b.SKU)
		}
		return a.QtyOnHand - b.QtyOnHand
	})
	return lines, nil
}
