package domain

import "time"

type Product struct {
	ID               string     `json:"id"`
	SKU              string     `json:"sku"`
	Name             string     `json:"name"`
	Category         string     `json:"category"`
	PriceCents       int64      `json:"price_cents"`
	BuyingPriceCents *int64     `json:"buying_price_cents,omitempty"`
	Stock            int        `json:"stock"`
	MinStock         int        `json:"min_stock"`
	StoreID          string     `json:"store_id,omitempty"`
	Deleted          bool       `json:"deleted"`
	DeletedAt        *time.Time `json:"deleted_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

type ProductCreateRequest struct {
	StoreID          string `json:"store_id"`
	SKU              string `json:"sku"`
	Name             string `json:"name"`
	Category         string `json:"category"`
	PriceCents       int64  `json:"price_cents"`
	BuyingPriceCents *int64 `json:"buying_price_cents,omitempty"`
	InitialStock     int    `json:"initial_stock"`
	MinStock         int    `json:"min_stock"`
}

// SaleItem is a normalized line row. Quantity, price, name and sku are
// captured at time of sale and never re-joined against the product.
type SaleItem struct {
	ID         string    `json:"id"`
	SaleID     string    `json:"sale_id"`
	ProductID  string    `json:"product_id"`
	Quantity   int       `json:"quantity"`
	PriceCents int64     `json:"price_cents"`
	Name       string    `json:"name"`
	SKU        string    `json:"sku"`
	CreatedAt  time.Time `json:"created_at"`
}

type Sale struct {
	ID            string     `json:"id"`
	StoreID       string     `json:"store_id"`
	UserID        string     `json:"user_id,omitempty"`
	CustomerID    string     `json:"customer_id,omitempty"`
	CustomerName  string     `json:"customer_name"`
	Items         []SaleItem `json:"items"`
	SubtotalCents int64      `json:"subtotal_cents"`
	TaxPercent    float64    `json:"tax_percent"`
	TaxCents      int64      `json:"tax_cents"`
	DiscountType  string     `json:"discount_type,omitempty"`
	DiscountValue float64    `json:"discount_value"`
	DiscountCents int64      `json:"discount_cents"`
	TotalCents    int64      `json:"total_cents"`
	PaymentMethod string     `json:"payment_method"`
	InvoiceNumber string     `json:"invoice_number"`
	OrderSource   string     `json:"order_source"`
	Deleted       bool       `json:"deleted"`
	DeletedAt     *time.Time `json:"deleted_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

type SaleLineInput struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type SaleCreateRequest struct {
	StoreID       string          `json:"store_id"`
	CustomerID    string          `json:"customer_id,omitempty"`
	CustomerName  string          `json:"customer_name,omitempty"`
	Items         []SaleLineInput `json:"items"`
	DiscountType  string          `json:"discount_type,omitempty"`
	DiscountValue float64         `json:"discount_value"`
	TaxPercent    float64         `json:"tax_percent"`
	PaymentMethod string          `json:"payment_method,omitempty"`
}

type SaleResponse struct {
	Sale Sale `json:"sale"`
}

// StockMovement is one entry in the append-only stock ledger. Quantity is
// signed: negative for deductions, positive for additions.
type StockMovement struct {
	ID        string    `json:"id"`
	ProductID string    `json:"product_id"`
	UserID    string    `json:"user_id,omitempty"`
	Type      string    `json:"type"`
	Quantity  int       `json:"quantity"`
	Reason    string    `json:"reason"`
	RefTable  string    `json:"ref_table,omitempty"`
	RefID     string    `json:"ref_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// StockAdjustmentRequest is a manual inventory correction. Quantity is a
// signed delta, same convention as the ledger.
type StockAdjustmentRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	Reason    string `json:"reason"`
}

type SalesReturn struct {
	ID         string            `json:"id"`
	SaleID     string            `json:"sale_id"`
	CustomerID string            `json:"customer_id,omitempty"`
	Reason     string            `json:"reason,omitempty"`
	Items      []SalesReturnItem `json:"items"`
	CreatedAt  time.Time         `json:"created_at"`
}

type SalesReturnItem struct {
	ID            string    `json:"id"`
	SalesReturnID string    `json:"sales_return_id"`
	SaleItemID    string    `json:"sale_item_id"`
	ProductID     string    `json:"product_id"`
	Quantity      int       `json:"quantity"`
	RefundCents   *int64    `json:"refund_cents,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

type ReturnLineInput struct {
	ProductID   string `json:"product_id"`
	Quantity    int    `json:"quantity"`
	RefundCents *int64 `json:"refund_cents,omitempty"`
}

type ReturnRequest struct {
	SaleID     string            `json:"sale_id"`
	Items      []ReturnLineInput `json:"items"`
	Reason     string            `json:"reason,omitempty"`
	CustomerID string            `json:"customer_id,omitempty"`
}

type ReturnResponse struct {
	Return SalesReturn `json:"return"`
	Sale   Sale        `json:"sale"`
}

type OrderItem struct {
	ID         string    `json:"id"`
	OrderID    string    `json:"order_id"`
	ProductID  string    `json:"product_id"`
	Quantity   int       `json:"quantity"`
	PriceCents int64     `json:"price_cents"`
	Name       string    `json:"name"`
	SKU        string    `json:"sku"`
	CreatedAt  time.Time `json:"created_at"`
}

// Order is an online pre-sale. It is never hard-deleted: after delivery it is
// retained for payment and audit traceability alongside the materialized Sale.
type Order struct {
	ID              string      `json:"id"`
	StoreID         string      `json:"store_id"`
	CustomerID      string      `json:"customer_id,omitempty"`
	CustomerName    string      `json:"customer_name"`
	CustomerPhone   string      `json:"customer_phone,omitempty"`
	Items           []OrderItem `json:"items"`
	SubtotalCents   int64       `json:"subtotal_cents"`
	TaxPercent      float64     `json:"tax_percent"`
	TaxCents        int64       `json:"tax_cents"`
	DiscountType    string      `json:"discount_type,omitempty"`
	DiscountValue   float64     `json:"discount_value"`
	DiscountCents   int64       `json:"discount_cents"`
	TotalCents      int64       `json:"total_cents"`
	PaymentMethod   string      `json:"payment_method"`
	PaymentProvider string      `json:"payment_provider,omitempty"`
	PaymentStatus   string      `json:"payment_status"`
	Status          string      `json:"status"`
	MovedToSaleID   string      `json:"moved_to_sale_id,omitempty"`
	ProcessedAt     *time.Time  `json:"processed_at,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

type OrderCreateRequest struct {
	StoreID         string          `json:"store_id"`
	CustomerID      string          `json:"customer_id,omitempty"`
	CustomerName    string          `json:"customer_name"`
	CustomerPhone   string          `json:"customer_phone,omitempty"`
	Items           []SaleLineInput `json:"items"`
	DiscountType    string          `json:"discount_type,omitempty"`
	DiscountValue   float64         `json:"discount_value"`
	TaxPercent      float64         `json:"tax_percent"`
	PaymentMethod   string          `json:"payment_method,omitempty"`
	PaymentProvider string          `json:"payment_provider,omitempty"`
}

type OrderResponse struct {
	Order Order `json:"order"`
}

type OrderStatusUpdateRequest struct {
	Status string `json:"status"`
}

type OrderStatusResponse struct {
	Order         Order  `json:"order"`
	MovedToSaleID string `json:"moved_to_sale_id,omitempty"`
}

type Payment struct {
	ID                string    `json:"id"`
	SaleID            string    `json:"sale_id,omitempty"`
	OrderID           string    `json:"order_id,omitempty"`
	StoreID           string    `json:"store_id,omitempty"`
	Provider          string    `json:"provider"`
	ProviderOrderID   string    `json:"provider_order_id,omitempty"`
	ProviderPaymentID string    `json:"provider_payment_id,omitempty"`
	Status            string    `json:"status"`
	AmountCents       int64     `json:"amount_cents"`
	Method            string    `json:"method,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

type PaymentRecordRequest struct {
	SaleID          string `json:"sale_id,omitempty"`
	OrderID         string `json:"order_id,omitempty"`
	StoreID         string `json:"store_id,omitempty"`
	Provider        string `json:"provider"`
	ProviderOrderID string `json:"provider_order_id,omitempty"`
	AmountCents     int64  `json:"amount_cents"`
	Method          string `json:"method,omitempty"`
}

type PaymentStatusUpdateRequest struct {
	Status            string `json:"status"`
	ProviderPaymentID string `json:"provider_payment_id,omitempty"`
}

type PaymentResponse struct {
	Payment Payment `json:"payment"`
}

type PurchaseOrderItem struct {
	ID        string `json:"id"`
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	CostCents int64  `json:"cost_cents"`
}

type PurchaseOrder struct {
	ID           string              `json:"id"`
	StoreID      string              `json:"store_id"`
	SupplierName string              `json:"supplier_name"`
	Status       string              `json:"status"`
	Items        []PurchaseOrderItem `json:"items"`
	ReceivedBy   string              `json:"received_by,omitempty"`
	ReceivedAt   *time.Time          `json:"received_at,omitempty"`
	CreatedAt    time.Time           `json:"created_at"`
}

type PurchaseOrderCreateRequest struct {
	StoreID      string              `json:"store_id"`
	SupplierName string              `json:"supplier_name"`
	Items        []PurchaseOrderItem `json:"items"`
}

type PurchaseOrderResponse struct {
	PurchaseOrder PurchaseOrder `json:"purchase_order"`
}

type LowStockItem struct {
	ProductID string `json:"product_id"`
	SKU       string `json:"sku"`
	Name      string `json:"name"`
	Stock     int    `json:"stock"`
	MinStock  int    `json:"min_stock"`
}

type LowStockReport struct {
	StoreID     string         `json:"store_id"`
	GeneratedAt string         `json:"generated_at"`
	Items       []LowStockItem `json:"items"`
}

type DailySalesReport struct {
	StoreID         string `json:"store_id"`
	Date            string `json:"date"`
	Sales           int64  `json:"sales"`
	GrossSalesCents int64  `json:"gross_sales_cents"`
	DiscountCents   int64  `json:"discount_cents"`
	TaxCents        int64  `json:"tax_cents"`
	NetSalesCents   int64  `json:"net_sales_cents"`
	ReturnedUnits   int64  `json:"returned_units"`
}

type AuditLog struct {
	ID            string    `json:"id"`
	StoreID       string    `json:"store_id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
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

type Actor struct {
	Username string
	Role     string
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

const (
	DiscountNone       = ""
	DiscountPercentage = "percentage"
	DiscountFixed      = "fixed"
)

const (
	OrderStatusCreated   = "created"
	OrderStatusPacked    = "packed"
	OrderStatusShipped   = "shipped"
	OrderStatusDelivered = "delivered"
	OrderStatusCancelled = "cancelled"
)

const (
	OrderSourcePOS    = "pos"
	OrderSourceOnline = "online"
)

const (
	MovementSaleOut    = "sale_out"
	MovementReturnIn   = "return_in"
	MovementPOReceipt  = "po_receipt"
	MovementAdjustment = "adjustment"
)

const (
	PaymentStatusPending  = "pending"
	PaymentStatusPaid     = "paid"
	PaymentStatusFailed   = "failed"
	PaymentStatusRefunded = "refunded"
)

const (
	PurchaseOrderStatusDraft    = "draft"
	PurchaseOrderStatusReceived = "received"
)
