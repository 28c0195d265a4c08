package store

import (
	"context"
	"errors"
	"time"

	"tokosera/backend/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrInvalidInput      = errors.New("invalid input")
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrHoldExpired is returned when a held order exists but its expiry
	// has passed. Distinct from ErrNotFound so callers can report it.
	ErrHoldExpired = errors.New("held order expired")
)

// Repository is the persistence boundary. The postgres implementation is
// authoritative; the memory implementation backs tests and dev mode.
type Repository interface {
	// Document numbering. Allocation is atomic per (docType, year) so
	// concurrent writers never observe the same value.
	NextDocumentNumber(ctx context.Context, docType string, year int) (int, error)

	CreateUser(ctx context.Context, user domain.UserAccount) (*domain.UserAccount, error)
	GetUserByUsername(ctx context.Context, username string) (*domain.UserAccount, error)
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUser(ctx context.Context, user domain.UserAccount) (*domain.UserAccount, error)

	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	GetProductsByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error)
	ListProducts(ctx context.Context, search string, includeInactive bool, limit int) ([]domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)

	CreateBatch(ctx context.Context, batch domain.InventoryBatch) (*domain.InventoryBatch, error)
	ListBatches(ctx context.Context, productID string, activeOnly bool) ([]domain.InventoryBatch, error)
	// ApplyStockAdjustment performs a typed adjustment in one database
	// transaction: in-types create a batch, out-types deplete the oldest
	// active batch, and exactly one movement row is appended. Returns the
	// movement and the quantity on hand afterwards.
	ApplyStockAdjustment(ctx context.Context, movement domain.StockMovement, unitCostCents int64) (*domain.StockMovement, int, error)
	ListMovements(ctx context.Context, productID string, limit int) ([]domain.LedgerEntry, error)

	CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error)
	GetSale(ctx context.Context, id string) (*domain.Sale, error)
	ListSales(ctx context.Context, from time.Time, to time.Time, status string, limit int) ([]domain.Sale, error)
	VoidSale(ctx context.Context, id string, reason string, at time.Time) (*domain.Sale, error)
	RefundSale(ctx context.Context, id string, lines []domain.SaleRefundLine, reason string, at time.Time) (*domain.SaleRefundResponse, error)

	CreateInvoice(ctx context.Context, invoice domain.Invoice) (*domain.Invoice, error)
	GetInvoice(ctx context.Context, id string) (*domain.Invoice, error)
	ListInvoices(ctx context.Context, status string, limit int) ([]domain.Invoice, error)
	MarkInvoiceSent(ctx context.Context, id string) (*domain.Invoice, error)
	CancelInvoice(ctx context.Context, id string) (*domain.Invoice, error)
	AddInvoicePayment(ctx context.Context, payment domain.InvoicePayment) (*domain.Invoice, error)

	CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)
	GetCustomer(ctx context.Context, id string) (*domain.Customer, error)
	ListCustomers(ctx context.Context, includeInactive bool, limit int) ([]domain.Customer, error)
	UpdateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)
	GetCustomerStatement(ctx context.Context, customerID string) (*domain.CustomerStatement, error)

	CreateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error)
	GetSupplier(ctx context.Context, id string) (*domain.Supplier, error)
	ListSuppliers(ctx context.Context, includeInactive bool, limit int) ([]domain.Supplier, error)
	UpdateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error)

	CreateGoodsReceipt(ctx context.Context, receipt domain.GoodsReceipt) (*domain.GoodsReceipt, error)
	GetGoodsReceipt(ctx context.Context, id string) (*domain.GoodsReceipt, error)
	ListGoodsReceipts(ctx context.Context, status string, limit int) ([]domain.GoodsReceipt, error)
	// FinalizeGoodsReceipt validates every line before mutating anything,
	// then creates one batch and one purchase_receipt movement per line,
	// recomputes AVCO unit cost, and bumps the supplier balance.
	FinalizeGoodsReceipt(ctx context.Context, id string, at time.Time) (*domain.GoodsReceipt, error)
	CancelGoodsReceipt(ctx context.Context, id string) (*domain.GoodsReceipt, error)

	CreateHeldOrder(ctx context.Context, hold domain.HeldOrder) (*domain.HeldOrder, error)
	GetHeldOrder(ctx context.Context, id string, at time.Time) (*domain.HeldOrder, error)
	ListHeldOrders(ctx context.Context, at time.Time, limit int) ([]domain.HeldOrder, error)
	ResumeHeldOrder(ctx context.Context, id string, at time.Time) (*domain.HeldOrder, error)
	DiscardHeldOrder(ctx context.Context, id string, at time.Time) error

	CreateExpense(ctx context.Context, expense domain.Expense) (*domain.Expense, error)
	ListExpenses(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.Expense, error)
	UpdateExpense(ctx context.Context, expense domain.Expense) (*domain.Expense, error)
	GetExpense(ctx context.Context, id string) (*domain.Expense, error)

	GetSettings(ctx context.Context) (*domain.SystemSettings, error)
	UpdateSettings(ctx context.Context, settings domain.SystemSettings) (*domain.SystemSettings, error)

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)

	GetSalesSummary(ctx context.Context, from time.Time, to time.Time) (domain.SalesSummary, error)
	GetInventoryValuation(ctx context.Context) (domain.InventoryValuation, error)
	ListLowStock(ctx context.Context, fallbackThreshold int) ([]domain.LowStockLine, error)
}
