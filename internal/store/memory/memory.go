// Package memory provides an in-memory store.Repository used in dev/demo
// mode and in tests. All operations are serialized under one mutex, so the
// multi-row methods are trivially atomic.
package memory

import (
	"context"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/arpitthekumar/clothinv-e-com-sub000/internal/domain"
	"github.com/arpitthekumar/clothinv-e-com-sub000/internal/pricing"
	"github.com/arpitthekumar/clothinv-e-com-sub000/internal/store"
	"github.com/arpitthekumar/clothinv-e-com-sub000/internal/xid"
)

type Store struct {
	mu              sync.RWMutex
	products        map[string]domain.Product
	movements       map[string][]domain.StockMovement
	salesByID       map[string]*domain.Sale
	salesByInvoice  map[string]string
	returnsByID     map[string]domain.SalesReturn
	ordersByID      map[string]*domain.Order
	paymentsByID    map[string]domain.Payment
	purchaseOrders  map[string]domain.PurchaseOrder
	auditLogs       []domain.AuditLog
	usersByUsername map[string]domain.UserAccount
}

func New() *Store {
	return &Store{
		products:        map[string]domain.Product{},
		movements:       map[string][]domain.StockMovement{},
		salesByID:       map[string]*domain.Sale{},
		salesByInvoice:  map[string]string{},
		returnsByID:     map[string]domain.SalesReturn{},
		ordersByID:      map[string]*domain.Order{},
		paymentsByID:    map[string]domain.Payment{},
		purchaseOrders:  map[string]domain.PurchaseOrder{},
		usersByUsername: map[string]domain.UserAccount{},
	}
}

// NewSeeded returns a store preloaded with demo products and dev users.
func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC()

	seed := []domain.Product{
		{SKU: "TSHIRT-BLK-M", Name: "Classic T-Shirt Black M", Category: "tops", PriceCents: 149900, Stock: 40, MinStock: 10},
		{SKU: "TSHIRT-WHT-L", Name: "Classic T-Shirt White L", Category: "tops", PriceCents: 149900, Stock: 35, MinStock: 10},
		{SKU: "JEANS-SLIM-32", Name: "Slim Fit Jeans 32", Category: "bottoms", PriceCents: 499900, Stock: 18, MinStock: 5},
		{SKU: "HOODIE-GRY-M", Name: "Fleece Hoodie Grey M", Category: "outerwear", PriceCents: 389900, Stock: 12, MinStock: 4},
		{SKU: "DRESS-FLRL-S", Name: "Floral Summer Dress S", Category: "dresses", PriceCents: 329900, Stock: 9, MinStock: 3},
		{SKU: "SOCKS-3PK", Name: "Crew Socks 3-Pack", Category: "accessories", PriceCents: 59900, Stock: 80, MinStock: 20},
		{SKU: "CAP-NVY", Name: "Baseball Cap Navy", Category: "accessories", PriceCents: 89900, Stock: 25, MinStock: 8},
		{SKU: "JACKET-DNM-L", Name: "Denim Jacket L", Category: "outerwear", PriceCents: 649900, Stock: 6, MinStock: 3},
	}
	for _, p := range seed {
		p.ID = xid.New("prod")
		p.StoreID = "main-store"
		p.CreatedAt = now
		p.UpdatedAt = now
		s.products[p.ID] = p
	}

	s.usersByUsername = seedUsers()
	return s
}

// seedUsers builds the initial in-memory user accounts for dev/demo mode.
// Credentials come from SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD; if
// unset, hardcoded dev defaults are used with a warning. These credentials
// are never used in production (the backend uses PostgreSQL when
// DATABASE_URL is set).
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, "admin"},
		{"cashier", cashierPwd, "cashier"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product, initial *domain.StockMovement) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.products {
		if existing.StoreID == product.StoreID && strings.EqualFold(existing.SKU, product.SKU) && !existing.Deleted {
			return nil, fmt.Errorf("sku %s: %w", product.SKU, store.ErrConflict)
		}
	}
	s.products[product.ID] = product
	if initial != nil {
		if err := s.applyMovementLocked(*initial); err != nil {
			delete(s.products, product.ID)
			return nil, err
		}
	}
	copied := s.products[product.ID]
	return &copied, nil
}

func (s *Store) GetProductByID(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, ok := s.products[id]
	if !ok || product.Deleted {
		return nil, store.ErrNotFound
	}
	copied := product
	return &copied, nil
}

func (s *Store) GetProductsByIDs(_ context.Context, ids []string) (map[string]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]domain.Product, len(ids))
	for _, id := range ids {
		if product, ok := s.products[id]; ok && !product.Deleted {
			result[id] = product
		}
	}
	return result, nil
}

func (s *Store) ListProducts(_ context.Context, storeID string) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Product, 0, len(s.products))
	for _, product := range s.products {
		if product.StoreID == storeID && !product.Deleted {
			result = append(result, product)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].SKU < result[j].SKU })
	return result, nil
}

func (s *Store) AdjustStock(_ context.Context, movement domain.StockMovement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applyMovementLocked(movement)
}

// applyMovementLocked mutates the stock counter and appends the ledger row.
// Callers hold s.mu.
func (s *Store) applyMovementLocked(movement domain.StockMovement) error {
	product, ok := s.products[movement.ProductID]
	if !ok {
		return fmt.Errorf("product %s: %w", movement.ProductID, store.ErrNotFound)
	}
	if product.Stock+movement.Quantity < 0 {
		return fmt.Errorf("product %s stock %d delta %d: %w", product.SKU, product.Stock, movement.Quantity, store.ErrInsufficientStock)
	}
	product.Stock += movement.Quantity
	product.UpdatedAt = time.Now().UTC()
	s.products[movement.ProductID] = product
	s.movements[movement.ProductID] = append(s.movements[movement.ProductID], movement)
	return nil
}

func (s *Store) ListStockMovements(_ context.Context, productID string, limit int) ([]domain.StockMovement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.movements[productID]
	result := make([]domain.StockMovement, 0, limit)
	for i := len(all) - 1; i >= 0 && len(result) < limit; i-- {
		result = append(result, all[i])
	}
	return result, nil
}

func (s *Store) CreateSale(_ context.Context, sale domain.Sale, movements []domain.StockMovement) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.salesByInvoice[sale.InvoiceNumber]; exists {
		return nil, fmt.Errorf("invoice %s: %w", sale.InvoiceNumber, store.ErrConflict)
	}

	// Validate every movement before touching state so a failure leaves
	// nothing half-applied.
	for _, movement := range movements {
		product, ok := s.products[movement.ProductID]
		if !ok {
			return nil, fmt.Errorf("product %s: %w", movement.ProductID, store.ErrNotFound)
		}
		if product.Stock+movement.Quantity < 0 {
			return nil, fmt.Errorf("product %s: %w", product.SKU, store.ErrInsufficientStock)
		}
	}
	for _, movement := range movements {
		if err := s.applyMovementLocked(movement); err != nil {
			return nil, err
		}
	}

	copied := cloneSale(sale)
	s.salesByID[sale.ID] = &copied
	s.salesByInvoice[sale.InvoiceNumber] = sale.ID

	out := cloneSale(copied)
	return &out, nil
}

func (s *Store) GetSaleByID(_ context.Context, id string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, ok := s.salesByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := cloneSale(*sale)
	return &copied, nil
}

func (s *Store) SetSaleDeleted(_ context.Context, id string, deleted bool, at time.Time) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sale, ok := s.salesByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	sale.Deleted = deleted
	if deleted {
		stamp := at
		sale.DeletedAt = &stamp
	} else {
		sale.DeletedAt = nil
	}
	copied := cloneSale(*sale)
	return &copied, nil
}

func (s *Store) ApplySalesReturn(_ context.Context, ret domain.SalesReturn, movements []domain.StockMovement) (*domain.SalesReturn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sale, ok := s.salesByID[ret.SaleID]
	if !ok {
		return nil, store.ErrNotFound
	}

	// Validate decrements against the live rows before any mutation.
	itemIdx := make(map[string]int, len(sale.Items))
	for i, item := range sale.Items {
		itemIdx[item.ID] = i
	}
	for _, line := range ret.Items {
		idx, exists := itemIdx[line.SaleItemID]
		if !exists {
			return nil, fmt.Errorf("sale item %s: %w", line.SaleItemID, store.ErrInvalidReturn)
		}
		if line.Quantity > sale.Items[idx].Quantity {
			return nil, fmt.Errorf("sale item %s: %w", line.SaleItemID, store.ErrInvalidReturn)
		}
	}
	for _, movement := range movements {
		product, ok := s.products[movement.ProductID]
		if !ok {
			return nil, fmt.Errorf("product %s: %w", movement.ProductID, store.ErrNotFound)
		}
		if product.Stock+movement.Quantity < 0 {
			return nil, fmt.Errorf("product %s: %w", product.SKU, store.ErrInsufficientStock)
		}
	}

	for _, line := range ret.Items {
		idx := itemIdx[line.SaleItemID]
		sale.Items[idx].Quantity -= line.Quantity
	}
	remaining := sale.Items[:0]
	for _, item := range sale.Items {
		if item.Quantity > 0 {
			remaining = append(remaining, item)
		}
	}
	sale.Items = remaining

	for _, movement := range movements {
		if err := s.applyMovementLocked(movement); err != nil {
			return nil, err
		}
	}

	// Recompute from the rows just decremented; a caller-side figure could
	// be stale if another return landed in between.
	totals := pricing.Compute(pricing.LinesFromSaleItems(sale.Items), sale.DiscountType, sale.DiscountValue, sale.TaxPercent)
	sale.SubtotalCents = totals.SubtotalCents
	sale.DiscountCents = totals.DiscountCents
	sale.TaxCents = totals.TaxCents
	sale.TotalCents = totals.TotalCents

	s.returnsByID[ret.ID] = cloneReturn(ret)
	copied := cloneReturn(ret)
	return &copied, nil
}

func (s *Store) CreateOrder(_ context.Context, order domain.Order) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := cloneOrder(order)
	s.ordersByID[order.ID] = &copied
	out := cloneOrder(copied)
	return &out, nil
}

func (s *Store) GetOrderByID(_ context.Context, id string) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	order, ok := s.ordersByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := cloneOrder(*order)
	return &copied, nil
}

func (s *Store) UpdateOrderStatus(_ context.Context, id string, expected string, status string, at time.Time) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.ordersByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	// Compare-and-set against the live row: a transition that raced with
	// another writer is rejected instead of overwriting the newer state.
	if order.Status != expected {
		return nil, fmt.Errorf("%s -> %s: %w", expected, status, store.ErrInvalidStatus)
	}
	if order.ProcessedAt != nil && status != domain.OrderStatusDelivered {
		return nil, fmt.Errorf("%s -> %s: %w", expected, status, store.ErrInvalidStatus)
	}
	order.Status = status
	order.UpdatedAt = at
	copied := cloneOrder(*order)
	return &copied, nil
}

func (s *Store) MarkOrderDelivered(_ context.Context, id string, expected string, at time.Time, sale domain.Sale, movements []domain.StockMovement) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.ordersByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}

	if order.ProcessedAt != nil {
		order.Status = domain.OrderStatusDelivered
		order.UpdatedAt = at
		copied := cloneOrder(*order)
		return &copied, nil
	}
	if order.Status != expected {
		return nil, fmt.Errorf("%s -> %s: %w", expected, domain.OrderStatusDelivered, store.ErrInvalidStatus)
	}

	if _, exists := s.salesByInvoice[sale.InvoiceNumber]; exists {
		return nil, fmt.Errorf("invoice %s: %w", sale.InvoiceNumber, store.ErrConflict)
	}
	for _, movement := range movements {
		product, ok := s.products[movement.ProductID]
		if !ok {
			return nil, fmt.Errorf("product %s: %w", movement.ProductID, store.ErrNotFound)
		}
		if product.Stock+movement.Quantity < 0 {
			return nil, fmt.Errorf("product %s: %w", product.SKU, store.ErrInsufficientStock)
		}
	}
	for _, movement := range movements {
		if err := s.applyMovementLocked(movement); err != nil {
			return nil, err
		}
	}

	saleCopy := cloneSale(sale)
	s.salesByID[sale.ID] = &saleCopy
	s.salesByInvoice[sale.InvoiceNumber] = sale.ID

	stamp := at
	order.Status = domain.OrderStatusDelivered
	order.ProcessedAt = &stamp
	order.MovedToSaleID = sale.ID
	order.UpdatedAt = at

	copied := cloneOrder(*order)
	return &copied, nil
}

func (s *Store) CreatePayment(_ context.Context, payment domain.Payment) (*domain.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if payment.OrderID != "" {
		if _, ok := s.ordersByID[payment.OrderID]; !ok {
			return nil, fmt.Errorf("order %s: %w", payment.OrderID, store.ErrNotFound)
		}
	}
	if payment.SaleID != "" {
		if _, ok := s.salesByID[payment.SaleID]; !ok {
			return nil, fmt.Errorf("sale %s: %w", payment.SaleID, store.ErrNotFound)
		}
	}

	s.paymentsByID[payment.ID] = payment
	copied := payment
	return &copied, nil
}

func (s *Store) GetPaymentByID(_ context.Context, id string) (*domain.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	payment, ok := s.paymentsByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := payment
	return &copied, nil
}

func (s *Store) UpdatePaymentStatus(_ context.Context, id string, status string, providerPaymentID string) (*domain.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	payment, ok := s.paymentsByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	payment.Status = status
	if providerPaymentID != "" {
		payment.ProviderPaymentID = providerPaymentID
	}
	s.paymentsByID[id] = payment

	if payment.OrderID != "" {
		if order, exists := s.ordersByID[payment.OrderID]; exists {
			order.PaymentStatus = status
			order.UpdatedAt = time.Now().UTC()
		}
	}

	copied := payment
	return &copied, nil
}

func (s *Store) CreatePurchaseOrder(_ context.Context, po domain.PurchaseOrder) (*domain.PurchaseOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := clonePurchaseOrder(po)
	s.purchaseOrders[po.ID] = copied
	out := clonePurchaseOrder(copied)
	return &out, nil
}

func (s *Store) GetPurchaseOrderByID(_ context.Context, id string) (*domain.PurchaseOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	po, ok := s.purchaseOrders[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := clonePurchaseOrder(po)
	return &copied, nil
}

func (s *Store) ReceivePurchaseOrder(_ context.Context, id string, receivedBy string, at time.Time, movements []domain.StockMovement) (*domain.PurchaseOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	po, ok := s.purchaseOrders[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if po.Status == domain.PurchaseOrderStatusReceived {
		return nil, fmt.Errorf("purchase order %s: %w", id, store.ErrInvalidStatus)
	}

	for _, movement := range movements {
		if _, exists := s.products[movement.ProductID]; !exists {
			return nil, fmt.Errorf("product %s: %w", movement.ProductID, store.ErrNotFound)
		}
	}
	for _, movement := range movements {
		if err := s.applyMovementLocked(movement); err != nil {
			return nil, err
		}
	}

	stamp := at
	po.Status = domain.PurchaseOrderStatusReceived
	po.ReceivedBy = receivedBy
	po.ReceivedAt = &stamp
	s.purchaseOrders[id] = po

	copied := clonePurchaseOrder(po)
	return &copied, nil
}

func (s *Store) GetDailySalesReport(_ context.Context, storeID string, from time.Time, to time.Time) (domain.DailySalesReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var report domain.DailySalesReport
	for _, sale := range s.salesByID {
		if sale.StoreID != storeID || sale.Deleted {
			continue
		}
		if sale.CreatedAt.Before(from) || !sale.CreatedAt.Before(to) {
			continue
		}
		report.Sales++
		report.GrossSalesCents += sale.SubtotalCents
		report.DiscountCents += sale.DiscountCents
		report.TaxCents += sale.TaxCents
		report.NetSalesCents += sale.TotalCents
	}
	for _, ret := range s.returnsByID {
		if ret.CreatedAt.Before(from) || !ret.CreatedAt.Before(to) {
			continue
		}
		for _, item := range ret.Items {
			report.ReturnedUnits += int64(item.Quantity)
		}
	}
	return report, nil
}

func (s *Store) ListLowStockProducts(_ context.Context, storeID string, limit int) ([]domain.LowStockItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.LowStockItem, 0)
	for _, product := range s.products {
		if product.StoreID != storeID || product.Deleted {
			continue
		}
		if product.Stock <= product.MinStock {
			result = append(result, domain.LowStockItem{
				ProductID: product.ID,
				SKU:       product.SKU,
				Name:      product.Name,
				Stock:     product.Stock,
				MinStock:  product.MinStock,
			})
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Stock < result[j].Stock })
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, storeID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.AuditLog, 0, limit)
	for i := len(s.auditLogs) - 1; i >= 0 && len(result) < limit; i-- {
		entry := s.auditLogs[i]
		if entry.StoreID != storeID {
			continue
		}
		if entry.CreatedAt.Before(from) || !entry.CreatedAt.Before(to) {
			continue
		}
		result = append(result, entry)
	}
	return result, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.usersByUsername[user.Username]; exists {
		return fmt.Errorf("user %s: %w", user.Username, store.ErrConflict)
	}
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		result = append(result, user)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Username < result[j].Username })
	return result, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

func cloneSale(sale domain.Sale) domain.Sale {
	copied := sale
	copied.Items = append([]domain.SaleItem(nil), sale.Items...)
	return copied
}

func cloneOrder(order domain.Order) domain.Order {
	copied := order
	copied.Items = append([]domain.OrderItem(nil), order.Items...)
	return copied
}

func cloneReturn(ret domain.SalesReturn) domain.SalesReturn {
	copied := ret
	copied.Items = append([]domain.SalesReturnItem(nil), ret.Items...)
	return copied
}

func clonePurchaseOrder(po domain.PurchaseOrder) domain.PurchaseOrder {
	copied := po
	copied.Items = append([]domain.PurchaseOrderItem(nil), po.Items...)
	return copied
}
