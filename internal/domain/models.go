package domain

import "time"

const (
	RoleAdmin   = "admin"
	RoleManager = "manager"
	RoleCashier = "cashier"
	RoleStaff   = "staff"
)

// RoleLevel maps roles to their rank in the hierarchy. A higher level
// implies every permission of the levels below it.
func RoleLevel(role string) int {
	switch role {
	case RoleAdmin:
		return 4
	case RoleManager:
		return 3
	case RoleCashier:
		return 2
	case RoleStaff:
		return 1
	default:
		return 0
	}
}

// Permission keys for operations gated more tightly than the role
// hierarchy alone expresses.
const (
	PermUsersManage          = "users.manage"
	PermSalesVoid            = "sales.void"
	PermSalesRefund          = "sales.refund"
	PermGoodsReceiptFinalize = "goods_receipts.finalize"
	PermSettingsWrite        = "settings.write"
)

var rolePermissions = map[string]map[string]bool{
	RoleAdmin: {
		PermUsersManage:          true,
		PermSalesVoid:            true,
		PermSalesRefund:          true,
		PermGoodsReceiptFinalize: true,
		PermSettingsWrite:        true,
	},
	RoleManager: {
		PermSalesVoid:            true,
		PermSalesRefund:          true,
		PermGoodsReceiptFinalize: true,
	},
}

// HasPermission reports whether role carries the given permission key.
func HasPermission(role, key string) bool {
	return rolePermissions[role][key]
}

const (
	CostingFIFO     = "fifo"
	CostingAVCO     = "avco"
	CostingStandard = "standard"
)

const (
	MovementAdjustmentIn    = "adjustment_in"
	MovementAdjustmentOut   = "adjustment_out"
	MovementDamage          = "damage"
	MovementExpiry          = "expiry"
	MovementReturn          = "return"
	MovementSale            = "sale"
	MovementPurchaseReceipt = "purchase_receipt"
)

const (
	BatchStatusActive   = "active"
	BatchStatusDepleted = "depleted"
)

const (
	SaleStatusCompleted = "completed"
	SaleStatusVoided    = "voided"
	SaleStatusRefunded  = "refunded"
)

const (
	InvoiceStatusDraft         = "draft"
	InvoiceStatusSent          = "sent"
	InvoiceStatusPartiallyPaid = "partially_paid"
	InvoiceStatusPaid          = "paid"
	InvoiceStatusOverdue       = "overdue"
	InvoiceStatusCancelled     = "cancelled"
)

const (
	ReceiptStatusDraft     = "draft"
	ReceiptStatusCompleted = "completed"
	ReceiptStatusCancelled = "cancelled"
)

const (
	HoldStatusActive  = "active"
	HoldStatusResumed = "resumed"
	HoldStatusExpired = "expired"
)

// DefaultHoldTTL is applied when a held order is created without an
// explicit expiry.
const DefaultHoldTTL = 24 * time.Hour

type Actor struct {
	Username string
	Role     string
}

// UserAccount is the internal persistence model for auth credentials.
type UserAccount struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	FullName     string    `json:"full_name"`
	Role         string    `json:"role"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
}

type UserCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
	Role     string `json:"role"`
}

type UserUpdateRequest struct {
	FullName *string `json:"full_name,omitempty"`
	Role     *string `json:"role,omitempty"`
	Active   *bool   `json:"active,omitempty"`
	Password *string `json:"password,omitempty"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Product struct {
	ID            string    `json:"id"`
	SKU           string    `json:"sku"`
	Barcode       string    `json:"barcode,omitempty"`
	Name          string    `json:"name"`
	Category      string    `json:"category"`
	PriceCents    int64     `json:"price_cents"`
	CostCents     int64     `json:"cost_cents"`
	CostingMethod string    `json:"costing_method"`
	QtyOnHand     int       `json:"qty_on_hand"`
	ReorderLevel  int       `json:"reorder_level"`
	Active        bool      `json:"active"`
	CreatedAt     time.Time `json:"created_at"`
}

type ProductCreateRequest struct {
	Barcode       string `json:"barcode"`
	Name          string `json:"name"`
	Category      string `json:"category"`
	PriceCents    int64  `json:"price_cents"`
	CostCents     int64  `json:"cost_cents"`
	CostingMethod string `json:"costing_method"`
	ReorderLevel  int    `json:"reorder_level"`
}

type ProductUpdateRequest struct {
	Barcode       *string `json:"barcode,omitempty"`
	Name          *string `json:"name,omitempty"`
	Category      *string `json:"category,omitempty"`
	PriceCents    *int64  `json:"price_cents,omitempty"`
	CostCents     *int64  `json:"cost_cents,omitempty"`
	CostingMethod *string `json:"costing_method,omitempty"`
	ReorderLevel  *int    `json:"reorder_level,omitempty"`
	Active        *bool   `json:"active,omitempty"`
}

type InventoryBatch struct {
	ID            string    `json:"id"`
	ProductID     string    `json:"product_id"`
	BatchNumber   string    `json:"batch_number"`
	QtyReceived   int       `json:"qty_received"`
	QtyRemaining  int       `json:"qty_remaining"`
	UnitCostCents int64     `json:"unit_cost_cents"`
	Status        string    `json:"status"`
	ReceivedAt    time.Time `json:"received_at"`
	CreatedAt     time.Time `json:"created_at"`
}

type StockMovement struct {
	ID        string    `json:"id"`
	ProductID string    `json:"product_id"`
	BatchID   string    `json:"batch_id,omitempty"`
	Type      string    `json:"type"`
	Qty       int       `json:"qty"`
	Reference string    `json:"reference,omitempty"`
	Note      string    `json:"note,omitempty"`
	Actor     string    `json:"actor"`
	CreatedAt time.Time `json:"created_at"`
}

// LedgerEntry is a stock movement with the running balance after it was
// applied, ordered by creation time ascending.
type LedgerEntry struct {
	StockMovement
	RunningQty int `json:"running_qty"`
}

type StockAdjustmentRequest struct {
	ProductID string `json:"product_id"`
	Type      string `json:"type"`
	Qty       int    `json:"qty"`
	// UnitCostCents applies to in-type adjustments only; the resulting
	// batch is received at this cost.
	UnitCostCents int64  `json:"unit_cost_cents,omitempty"`
	Note          string `json:"note"`
}

type StockAdjustmentResponse struct {
	Reference string        `json:"reference"`
	Movement  StockMovement `json:"movement"`
	QtyOnHand int           `json:"qty_on_hand"`
}

type SaleItem struct {
	ProductID      string `json:"product_id"`
	SKU            string `json:"sku"`
	Name           string `json:"name,omitempty"`
	Qty            int    `json:"qty"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	UnitCostCents  int64  `json:"unit_cost_cents"`
}

type Sale struct {
	ID            string     `json:"id"`
	Number        string     `json:"number"`
	CustomerID    string     `json:"customer_id,omitempty"`
	Cashier       string     `json:"cashier"`
	SubtotalCents int64      `json:"subtotal_cents"`
	DiscountCents int64      `json:"discount_cents"`
	TaxCents      int64      `json:"tax_cents"`
	TotalCents    int64      `json:"total_cents"`
	PaymentMethod string     `json:"payment_method"`
	Status        string     `json:"status"`
	VoidReason    string     `json:"void_reason,omitempty"`
	VoidedAt      *time.Time `json:"voided_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	Items         []SaleItem `json:"items"`
}

type SaleLineRequest struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
}

type SaleCreateRequest struct {
	CustomerID    string            `json:"customer_id,omitempty"`
	DiscountCents int64             `json:"discount_cents"`
	TaxRatePct    float64           `json:"tax_rate_percent"`
	PaymentMethod string            `json:"payment_method"`
	Items         []SaleLineRequest `json:"items"`
}

type SaleVoidRequest struct {
	Reason string `json:"reason"`
}

type SaleRefundLine struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
}

type SaleRefundRequest struct {
	Reason string           `json:"reason"`
	Items  []SaleRefundLine `json:"items,omitempty"`
}

type SaleRefundResponse struct {
	SaleID       string `json:"sale_id"`
	Status       string `json:"status"`
	AmountCents  int64  `json:"amount_cents"`
	RestockedQty int    `json:"restocked_qty"`
}

type InvoiceItem struct {
	Description    string `json:"description"`
	ProductID      string `json:"product_id,omitempty"`
	Qty            int    `json:"qty"`
	UnitPriceCents int64  `json:"unit_price_cents"`
}

type Invoice struct {
	ID         string           `json:"id"`
	Number     string           `json:"number"`
	CustomerID string           `json:"customer_id"`
	Status     string           `json:"status"`
	IssueDate  time.Time        `json:"issue_date"`
	DueDate    time.Time        `json:"due_date"`
	TotalCents int64            `json:"total_cents"`
	AmountDue  int64            `json:"amount_due_cents"`
	CreatedAt  time.Time        `json:"created_at"`
	Items      []InvoiceItem    `json:"items"`
	Payments   []InvoicePayment `json:"payments,omitempty"`
}

type InvoicePayment struct {
	ID          string    `json:"id"`
	InvoiceID   string    `json:"invoice_id"`
	AmountCents int64     `json:"amount_cents"`
	Method      string    `json:"method"`
	Reference   string    `json:"reference,omitempty"`
	PaidAt      time.Time `json:"paid_at"`
}

type InvoiceCreateRequest struct {
	CustomerID string        `json:"customer_id"`
	DueDate    string        `json:"due_date"`
	Items      []InvoiceItem `json:"items"`
}

type InvoicePaymentRequest struct {
	AmountCents int64  `json:"amount_cents"`
	Method      string `json:"method"`
	Reference   string `json:"reference"`
}

type Customer struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Phone        string    `json:"phone,omitempty"`
	Email        string    `json:"email,omitempty"`
	BalanceCents int64     `json:"balance_cents"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
}

type Supplier struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Phone        string    `json:"phone,omitempty"`
	Email        string    `json:"email,omitempty"`
	BalanceCents int64     `json:"balance_cents"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
}

type CounterpartyRequest struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email"`
}

type CounterpartyUpdateRequest struct {
	Name   *string `json:"name,omitempty"`
	Phone  *string `json:"phone,omitempty"`
	Email  *string `json:"email,omitempty"`
	Active *bool   `json:"active,omitempty"`
}

// StatementLine is one row of a customer statement: the signed amount of
// the event plus the cumulative balance after it, ordered by transaction
// date then creation time.
type StatementLine struct {
	Date           time.Time `json:"date"`
	Kind           string    `json:"kind"`
	Reference      string    `json:"reference"`
	AmountCents    int64     `json:"amount_cents"`
	RunningBalance int64     `json:"running_balance_cents"`
}

type CustomerStatement struct {
	CustomerID   string          `json:"customer_id"`
	CustomerName string          `json:"customer_name"`
	BalanceCents int64           `json:"balance_cents"`
	Lines        []StatementLine `json:"lines"`
}

type GoodsReceiptItem struct {
	ProductID     string `json:"product_id"`
	Qty           int    `json:"qty"`
	UnitCostCents int64  `json:"unit_cost_cents"`
}

type GoodsReceipt struct {
	ID          string             `json:"id"`
	Number      string             `json:"number"`
	SupplierID  string             `json:"supplier_id"`
	Status      string             `json:"status"`
	Note        string             `json:"note,omitempty"`
	TotalCents  int64              `json:"total_cents"`
	CreatedBy   string             `json:"created_by"`
	CreatedAt   time.Time          `json:"created_at"`
	CompletedAt *time.Time         `json:"completed_at,omitempty"`
	Items       []GoodsReceiptItem `json:"items"`
}

type GoodsReceiptCreateRequest struct {
	SupplierID string             `json:"supplier_id"`
	Note       string             `json:"note"`
	Items      []GoodsReceiptItem `json:"items"`
}

type HeldOrderItem struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
}

type HeldOrder struct {
	ID         string          `json:"id"`
	CustomerID string          `json:"customer_id,omitempty"`
	Cashier    string          `json:"cashier"`
	Note       string          `json:"note,omitempty"`
	Status     string          `json:"status"`
	Items      []HeldOrderItem `json:"items"`
	ExpiresAt  time.Time       `json:"expires_at"`
	CreatedAt  time.Time       `json:"created_at"`
}

type HoldCreateRequest struct {
	CustomerID string          `json:"customer_id,omitempty"`
	Note       string          `json:"note"`
	Items      []HeldOrderItem `json:"items"`
	// ExpiresInMinutes overrides the default 24-hour expiry when positive.
	ExpiresInMinutes int `json:"expires_in_minutes,omitempty"`
}

type Expense struct {
	ID          string    `json:"id"`
	Category    string    `json:"category"`
	AmountCents int64     `json:"amount_cents"`
	Note        string    `json:"note,omitempty"`
	IncurredAt  time.Time `json:"incurred_at"`
	RecordedBy  string    `json:"recorded_by"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
}

type ExpenseRequest struct {
	Category    string `json:"category"`
	AmountCents int64  `json:"amount_cents"`
	Note        string `json:"note"`
	IncurredAt  string `json:"incurred_at,omitempty"`
}

type SystemSettings struct {
	StoreName         string  `json:"store_name"`
	CurrencyCode      string  `json:"currency_code"`
	DefaultTaxRatePct float64 `json:"default_tax_rate_percent"`
	ReceiptFooter     string  `json:"receipt_footer"`
	LowStockThreshold int     `json:"low_stock_threshold"`
}

type AuditLog struct {
	ID            string    `json:"id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}

type SalesSummaryDay struct {
	Date        string `json:"date"`
	Sales       int64  `json:"sales"`
	GrossCents  int64  `json:"gross_cents"`
	MarginCents int64  `json:"margin_cents"`
}

type SalesSummaryPayment struct {
	PaymentMethod string `json:"payment_method"`
	Sales         int64  `json:"sales"`
	TotalCents    int64  `json:"total_cents"`
}

type SalesSummary struct {
	From          string                `json:"from"`
	To            string                `json:"to"`
	Sales         int64                 `json:"sales"`
	GrossCents    int64                 `json:"gross_cents"`
	DiscountCents int64                 `json:"discount_cents"`
	TaxCents      int64                 `json:"tax_cents"`
	NetCents      int64                 `json:"net_cents"`
	MarginCents   int64                 `json:"margin_cents"`
	ByDay         []SalesSummaryDay     `json:"by_day"`
	ByPayment     []SalesSummaryPayment `json:"by_payment"`
}

type ValuationLine struct {
	ProductID  string `json:"product_id"`
	SKU        string `json:"sku"`
	Name       string `json:"name"`
	QtyOnHand  int    `json:"qty_on_hand"`
	ValueCents int64  `json:"value_cents"`
}

type InventoryValuation struct {
	GeneratedAt string          `json:"generated_at"`
	TotalCents  int64           `json:"total_cents"`
	Lines       []ValuationLine `json:"lines"`
}

// DashboardReport bundles the day-to-day management views into one
// response assembled from parallel queries.
type DashboardReport struct {
	Summary       SalesSummary       `json:"summary"`
	Valuation     InventoryValuation `json:"valuation"`
	LowStock      []LowStockLine     `json:"low_stock"`
	ExpensesCents int64              `json:"expenses_cents"`
}

type LowStockLine struct {
	ProductID    string `json:"product_id"`
	SKU          string `json:"sku"`
	Name         string `json:"name"`
	QtyOnHand    int    `json:"qty_on_hand"`
	ReorderLevel int    `json:"reorder_level"`
}
