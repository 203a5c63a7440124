package store

import (
	"context"
	"errors"
	"time"

	"github.com/arpitthekumar/clothinv-e-com-sub000/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrInvalidStatus     = errors.New("invalid status transition")
	ErrInvalidReturn     = errors.New("invalid return")
	ErrInvalidInput      = errors.New("invalid input")
	ErrInsufficientStock = errors.New("insufficient stock")
)

// Repository is the single datastore surface shared by all write components.
// Every multi-row method commits as one transaction: either the whole logical
// operation lands (counter, ledger, rows) or none of it does.
type Repository interface {
	// CreateProduct inserts the product row and, when initial is non-nil,
	// applies the opening stock movement in the same transaction, so a
	// product never persists without its opening ledger entry.
	CreateProduct(ctx context.Context, product domain.Product, initial *domain.StockMovement) (*domain.Product, error)
	GetProductByID(ctx context.Context, id string) (*domain.Product, error)
	GetProductsByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error)
	ListProducts(ctx context.Context, storeID string) ([]domain.Product, error)

	// AdjustStock applies movement.Quantity as a signed delta to the product's
	// stock counter and appends exactly one ledger row, atomically. It fails
	// with ErrNotFound for an unknown product and ErrInsufficientStock when
	// the delta would take the counter negative; neither failure writes.
	AdjustStock(ctx context.Context, movement domain.StockMovement) error
	ListStockMovements(ctx context.Context, productID string, limit int) ([]domain.StockMovement, error)

	// CreateSale inserts the sale row, its normalized item rows, and applies
	// the given deduction movements. Duplicate invoice numbers surface as
	// ErrConflict.
	CreateSale(ctx context.Context, sale domain.Sale, movements []domain.StockMovement) (*domain.Sale, error)
	GetSaleByID(ctx context.Context, id string) (*domain.Sale, error)
	SetSaleDeleted(ctx context.Context, id string, deleted bool, at time.Time) (*domain.Sale, error)

	// ApplySalesReturn inserts the return header and item rows, applies the
	// restock movements, decrements the referenced sale_items rows (dropping
	// rows that reach zero), and recomputes the sale's totals from the
	// post-decrement rows using the sale's stored discount policy and tax
	// percent. Everything commits in one transaction; a decrement past the
	// remaining quantity aborts the whole return with ErrInvalidReturn.
	// Deriving totals from the live rows keeps concurrent returns against
	// the same sale from writing stale financials.
	ApplySalesReturn(ctx context.Context, ret domain.SalesReturn, movements []domain.StockMovement) (*domain.SalesReturn, error)

	CreateOrder(ctx context.Context, order domain.Order) (*domain.Order, error)
	GetOrderByID(ctx context.Context, id string) (*domain.Order, error)
	// UpdateOrderStatus writes the new status only if the order still holds
	// the expected current status (compare-and-set), and refuses to touch an
	// order whose delivery was already materialized unless the target is
	// delivered itself. A lost race surfaces as ErrInvalidStatus.
	UpdateOrderStatus(ctx context.Context, id string, expected string, status string, at time.Time) (*domain.Order, error)

	// MarkOrderDelivered flips the order to delivered and, iff processedAt was
	// unset, stamps it, records movedToSaleID and materializes the given sale
	// with its deduction movements — all in one transaction. When processedAt
	// was already set it only updates the status and returns the order as-is,
	// so retries never create a second sale. The expected status is checked
	// in the same write; a concurrent transition surfaces as ErrInvalidStatus.
	MarkOrderDelivered(ctx context.Context, id string, expected string, at time.Time, sale domain.Sale, movements []domain.StockMovement) (*domain.Order, error)

	CreatePayment(ctx context.Context, payment domain.Payment) (*domain.Payment, error)
	GetPaymentByID(ctx context.Context, id string) (*domain.Payment, error)
	// UpdatePaymentStatus also mirrors the status onto the linked order's
	// payment_status, when the payment is order-linked.
	UpdatePaymentStatus(ctx context.Context, id string, status string, providerPaymentID string) (*domain.Payment, error)

	CreatePurchaseOrder(ctx context.Context, po domain.PurchaseOrder) (*domain.PurchaseOrder, error)
	GetPurchaseOrderByID(ctx context.Context, id string) (*domain.PurchaseOrder, error)
	ReceivePurchaseOrder(ctx context.Context, id string, receivedBy string, at time.Time, movements []domain.StockMovement) (*domain.PurchaseOrder, error)

	GetDailySalesReport(ctx context.Context, storeID string, from time.Time, to time.Time) (domain.DailySalesReport, error)
	ListLowStockProducts(ctx context.Context, storeID string, limit int) ([]domain.LowStockItem, error)

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, storeID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
