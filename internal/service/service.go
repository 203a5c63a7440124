package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/arpitthekumar/clothinv-e-com-sub000/internal/cache"
	"github.com/arpitthekumar/clothinv-e-com-sub000/internal/domain"
	"github.com/arpitthekumar/clothinv-e-com-sub000/internal/invoice"
	"github.com/arpitthekumar/clothinv-e-com-sub000/internal/pricing"
	"github.com/arpitthekumar/clothinv-e-com-sub000/internal/store"
	"github.com/arpitthekumar/clothinv-e-com-sub000/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

const walkInCustomer = "Walk-in Customer"

type Service struct {
	repo           store.Repository
	reports        cache.ReportCache
	reportTTL      time.Duration
	defaultStoreID string
}

func New(repo store.Repository, reports cache.ReportCache, defaultStoreID string, reportTTL time.Duration) *Service {
	if defaultStoreID == "" {
		defaultStoreID = "main-store"
	}
	if reports == nil {
		reports = cache.NoopReportCache{}
	}
	if reportTTL <= 0 {
		reportTTL = 30 * time.Second
	}

	return &Service{
		repo:           repo,
		reports:        reports,
		reportTTL:      reportTTL,
		defaultStoreID: defaultStoreID,
	}
}

func (s *Service) ListProducts(ctx context.Context, storeID string) ([]domain.Product, error) {
	if storeID == "" {
		storeID = s.defaultStoreID
	}
	return s.repo.ListProducts(ctx, storeID)
}

func (s *Service) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	product, err := s.repo.GetProductByID(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Product{}, err
	}
	return *product, nil
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.Product{}, fmt.Errorf("admin role required")
	}

	if req.StoreID == "" {
		req.StoreID = s.defaultStoreID
	}
	req.SKU = strings.ToUpper(strings.TrimSpace(req.SKU))
	req.Name = strings.TrimSpace(req.Name)
	req.Category = strings.TrimSpace(req.Category)

	if req.SKU == "" || req.Name == "" {
		return domain.Product{}, store.ErrInvalidInput
	}
	if req.PriceCents < 1 || req.InitialStock < 0 || req.MinStock < 0 {
		return domain.Product{}, store.ErrInvalidInput
	}
	if req.BuyingPriceCents != nil && *req.BuyingPriceCents < 0 {
		return domain.Product{}, store.ErrInvalidInput
	}

	now := time.Now().UTC()
	product := domain.Product{
		ID:               xid.New("prod"),
		SKU:              req.SKU,
		Name:             req.Name,
		Category:         req.Category,
		PriceCents:       req.PriceCents,
		BuyingPriceCents: req.BuyingPriceCents,
		Stock:            0,
		MinStock:         req.MinStock,
		StoreID:          req.StoreID,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	// The opening movement travels with the insert so the product and its
	// ledger entry land in one transaction.
	var initial *domain.StockMovement
	if req.InitialStock > 0 {
		initial = &domain.StockMovement{
			ID:        xid.New("mov"),
			ProductID: product.ID,
			UserID:    actor.Username,
			Type:      domain.MovementPOReceipt,
			Quantity:  req.InitialStock,
			Reason:    "Initial stock on product creation",
			RefTable:  "products",
			RefID:     product.ID,
			CreatedAt: now,
		}
	}

	created, err := s.repo.CreateProduct(ctx, product, initial)
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, req.StoreID, "product_create", "product", created.ID, fmt.Sprintf("sku=%s,price=%d,stock=%d", created.SKU, created.PriceCents, req.InitialStock))
	return *created, nil
}

// CreateSale is the POS checkout path: snapshot current product name/sku/price
// into normalized line rows, compute totals, then land the sale, its items and
// one sale_out ledger entry per line in a single datastore transaction.
func (s *Service) CreateSale(ctx context.Context, req domain.SaleCreateRequest) (domain.SaleResponse, error) {
	actor, _ := ActorFromContext(ctx)

	if req.StoreID == "" {
		req.StoreID = s.defaultStoreID
	}
	req.CustomerName = strings.TrimSpace(req.CustomerName)
	if req.CustomerName == "" {
		req.CustomerName = walkInCustomer
	}
	req.PaymentMethod = strings.TrimSpace(req.PaymentMethod)
	if req.PaymentMethod == "" {
		req.PaymentMethod = "cash"
	}

	if err := validateDiscount(req.DiscountType, req.DiscountValue); err != nil {
		return domain.SaleResponse{}, err
	}
	if req.TaxPercent < 0 || req.TaxPercent > 100 {
		return domain.SaleResponse{}, store.ErrInvalidInput
	}

	lines := normalizeLines(req.Items)
	if len(lines) == 0 {
		return domain.SaleResponse{}, store.ErrInvalidInput
	}

	sale, movements, err := s.buildSale(ctx, saleDraft{
		storeID:       req.StoreID,
		userID:        actor.Username,
		customerID:    req.CustomerID,
		customerName:  req.CustomerName,
		lines:         lines,
		discountType:  req.DiscountType,
		discountValue: req.DiscountValue,
		taxPercent:    req.TaxPercent,
		paymentMethod: req.PaymentMethod,
		orderSource:   domain.OrderSourcePOS,
	})
	if err != nil {
		return domain.SaleResponse{}, err
	}

	created, err := s.repo.CreateSale(ctx, sale, movements)
	if err != nil {
		return domain.SaleResponse{}, err
	}

	s.logAudit(ctx, req.StoreID, "sale_create", "sale", created.ID, fmt.Sprintf("invoice=%s,total=%d,items=%d", created.InvoiceNumber, created.TotalCents, len(created.Items)))
	return domain.SaleResponse{Sale: *created}, nil
}

type saleDraft struct {
	storeID       string
	userID        string
	customerID    string
	customerName  string
	lines         []domain.SaleLineInput
	discountType  string
	discountValue float64
	taxPercent    float64
	paymentMethod string
	orderSource   string
}

// buildSale resolves products, snapshots line items and prepares the
// deduction movements. No writes happen here.
func (s *Service) buildSale(ctx context.Context, draft saleDraft) (domain.Sale, []domain.StockMovement, error) {
	ids := make([]string, 0, len(draft.lines))
	for _, line := range draft.lines {
		ids = append(ids, line.ProductID)
	}
	products, err := s.repo.GetProductsByIDs(ctx, ids)
	if err != nil {
		return domain.Sale{}, nil, err
	}

	now := time.Now().UTC()
	saleID := xid.New("sale")
	items := make([]domain.SaleItem, 0, len(draft.lines))
	priceLines := make([]pricing.Line, 0, len(draft.lines))
	for _, line := range draft.lines {
		product, exists := products[line.ProductID]
		if !exists {
			return domain.Sale{}, nil, fmt.Errorf("product %s: %w", line.ProductID, store.ErrNotFound)
		}
		if product.Stock < line.Quantity {
			return domain.Sale{}, nil, fmt.Errorf("product %s: %w", product.SKU, store.ErrInsufficientStock)
		}
		items = append(items, domain.SaleItem{
			ID:         xid.New("sitem"),
			SaleID:     saleID,
			ProductID:  product.ID,
			Quantity:   line.Quantity,
			PriceCents: product.PriceCents,
			Name:       product.Name,
			SKU:        product.SKU,
			CreatedAt:  now,
		})
		priceLines = append(priceLines, pricing.Line{Quantity: line.Quantity, PriceCents: product.PriceCents})
	}

	totals := pricing.Compute(priceLines, draft.discountType, draft.discountValue, draft.taxPercent)
	invoiceNumber := invoice.Next(now)

	sale := domain.Sale{
		ID:            saleID,
		StoreID:       draft.storeID,
		UserID:        draft.userID,
		CustomerID:    draft.customerID,
		CustomerName:  draft.customerName,
		Items:         items,
		SubtotalCents: totals.SubtotalCents,
		TaxPercent:    draft.taxPercent,
		TaxCents:      totals.TaxCents,
		DiscountType:  draft.discountType,
		DiscountValue: draft.discountValue,
		DiscountCents: totals.DiscountCents,
		TotalCents:    totals.TotalCents,
		PaymentMethod: draft.paymentMethod,
		InvoiceNumber: invoiceNumber,
		OrderSource:   draft.orderSource,
		CreatedAt:     now,
	}

	reason := fmt.Sprintf("POS sale %s", invoiceNumber)
	if draft.orderSource == domain.OrderSourceOnline {
		reason = fmt.Sprintf("Online order %s", invoiceNumber)
	}
	movements := make([]domain.StockMovement, 0, len(items))
	for _, item := range items {
		movements = append(movements, domain.StockMovement{
			ID:        xid.New("mov"),
			ProductID: item.ProductID,
			UserID:    draft.userID,
			Type:      domain.MovementSaleOut,
			Quantity:  -item.Quantity,
			Reason:    reason,
			RefTable:  "sale_items",
			RefID:     saleID,
			CreatedAt: now,
		})
	}

	return sale, movements, nil
}

func (s *Service) GetSale(ctx context.Context, id string) (domain.SaleResponse, error) {
	sale, err := s.repo.GetSaleByID(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.SaleResponse{}, err
	}
	return domain.SaleResponse{Sale: *sale}, nil
}

// SoftDeleteSale hides the sale from listings. Its stock and ledger effects
// are intentionally left in place; reversing inventory requires an explicit
// return.
func (s *Service) SoftDeleteSale(ctx context.Context, id string) (domain.SaleResponse, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.SaleResponse{}, fmt.Errorf("admin role required")
	}

	sale, err := s.repo.SetSaleDeleted(ctx, strings.TrimSpace(id), true, time.Now().UTC())
	if err != nil {
		return domain.SaleResponse{}, err
	}
	s.logAudit(ctx, sale.StoreID, "sale_soft_delete", "sale", sale.ID, sale.InvoiceNumber)
	return domain.SaleResponse{Sale: *sale}, nil
}

func (s *Service) RestoreSale(ctx context.Context, id string) (domain.SaleResponse, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.SaleResponse{}, fmt.Errorf("admin role required")
	}

	sale, err := s.repo.SetSaleDeleted(ctx, strings.TrimSpace(id), false, time.Now().UTC())
	if err != nil {
		return domain.SaleResponse{}, err
	}
	s.logAudit(ctx, sale.StoreID, "sale_restore", "sale", sale.ID, sale.InvoiceNumber)
	return domain.SaleResponse{Sale: *sale}, nil
}

// ProcessReturn restocks the returned quantities and recomputes the parent
// sale's financial fields from its reduced item list, reapplying the sale's
// original discount policy against the new subtotal. All validation happens
// before any write; the datastore applies the whole return atomically.
func (s *Service) ProcessReturn(ctx context.Context, req domain.ReturnRequest) (domain.ReturnResponse, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.ReturnResponse{}, fmt.Errorf("admin role required")
	}

	req.SaleID = strings.TrimSpace(req.SaleID)
	if req.SaleID == "" || len(req.Items) == 0 {
		return domain.ReturnResponse{}, store.ErrInvalidInput
	}

	sale, err := s.repo.GetSaleByID(ctx, req.SaleID)
	if err != nil {
		return domain.ReturnResponse{}, err
	}

	itemByProduct := make(map[string]domain.SaleItem, len(sale.Items))
	for _, item := range sale.Items {
		itemByProduct[item.ProductID] = item
	}

	returnQty := make(map[string]int, len(req.Items))
	refundByProduct := make(map[string]*int64, len(req.Items))
	for _, line := range req.Items {
		line.ProductID = strings.TrimSpace(line.ProductID)
		if line.ProductID == "" || line.Quantity < 1 {
			return domain.ReturnResponse{}, store.ErrInvalidInput
		}
		returnQty[line.ProductID] += line.Quantity
		if line.RefundCents != nil {
			refundByProduct[line.ProductID] = line.RefundCents
		}
	}

	// Reject over-returns and unknown products before writing anything.
	for productID, qty := range returnQty {
		item, exists := itemByProduct[productID]
		if !exists {
			return domain.ReturnResponse{}, fmt.Errorf("product %s not part of sale %s: %w", productID, sale.ID, store.ErrInvalidReturn)
		}
		if qty > item.Quantity {
			return domain.ReturnResponse{}, fmt.Errorf("return of %d exceeds remaining %d for product %s: %w", qty, item.Quantity, productID, store.ErrInvalidReturn)
		}
	}

	now := time.Now().UTC()
	returnID := xid.New("sret")
	retItems := make([]domain.SalesReturnItem, 0, len(returnQty))
	movements := make([]domain.StockMovement, 0, len(returnQty))
	for _, item := range sale.Items {
		qty := returnQty[item.ProductID]
		if qty > 0 {
			retItems = append(retItems, domain.SalesReturnItem{
				ID:            xid.New("sritem"),
				SalesReturnID: returnID,
				SaleItemID:    item.ID,
				ProductID:     item.ProductID,
				Quantity:      qty,
				RefundCents:   refundByProduct[item.ProductID],
				CreatedAt:     now,
			})
			movements = append(movements, domain.StockMovement{
				ID:        xid.New("mov"),
				ProductID: item.ProductID,
				UserID:    actor.Username,
				Type:      domain.MovementReturnIn,
				Quantity:  qty,
				Reason:    fmt.Sprintf("Sales return for sale %s", sale.ID),
				RefTable:  "sales_return_items",
				RefID:     returnID,
				CreatedAt: now,
			})
		}
	}

	ret := domain.SalesReturn{
		ID:         returnID,
		SaleID:     sale.ID,
		CustomerID: strings.TrimSpace(req.CustomerID),
		Reason:     strings.TrimSpace(req.Reason),
		Items:      retItems,
		CreatedAt:  now,
	}

	// The datastore recomputes the sale's totals from the decremented rows
	// inside the same transaction, so an interleaved return cannot leave
	// stale financials behind.
	applied, err := s.repo.ApplySalesReturn(ctx, ret, movements)
	if err != nil {
		return domain.ReturnResponse{}, err
	}

	updated, err := s.repo.GetSaleByID(ctx, sale.ID)
	if err != nil {
		return domain.ReturnResponse{}, err
	}

	s.logAudit(ctx, sale.StoreID, "sales_return", "sales_return", applied.ID, fmt.Sprintf("sale=%s,items=%d,new_total=%d", sale.ID, len(applied.Items), updated.TotalCents))
	return domain.ReturnResponse{Return: *applied, Sale: *updated}, nil
}

// CreateOrder is the e-commerce checkout path. Stock is only reserved
// logically (validated against the current counter); the deduction happens on
// delivery, when the order is materialized as a sale.
func (s *Service) CreateOrder(ctx context.Context, req domain.OrderCreateRequest) (domain.OrderResponse, error) {
	if req.StoreID == "" {
		req.StoreID = s.defaultStoreID
	}
	req.CustomerName = strings.TrimSpace(req.CustomerName)
	if req.CustomerName == "" {
		return domain.OrderResponse{}, store.ErrInvalidInput
	}
	req.PaymentMethod = strings.TrimSpace(req.PaymentMethod)
	if req.PaymentMethod == "" {
		req.PaymentMethod = "cash"
	}
	if err := validateDiscount(req.DiscountType, req.DiscountValue); err != nil {
		return domain.OrderResponse{}, err
	}
	if req.TaxPercent < 0 || req.TaxPercent > 100 {
		return domain.OrderResponse{}, store.ErrInvalidInput
	}

	lines := normalizeLines(req.Items)
	if len(lines) == 0 {
		return domain.OrderResponse{}, store.ErrInvalidInput
	}

	ids := make([]string, 0, len(lines))
	for _, line := range lines {
		ids = append(ids, line.ProductID)
	}
	products, err := s.repo.GetProductsByIDs(ctx, ids)
	if err != nil {
		return domain.OrderResponse{}, err
	}

	now := time.Now().UTC()
	orderID := xid.New("order")
	items := make([]domain.OrderItem, 0, len(lines))
	for _, line := range lines {
		product, exists := products[line.ProductID]
		if !exists {
			return domain.OrderResponse{}, fmt.Errorf("product %s: %w", line.ProductID, store.ErrNotFound)
		}
		if product.Stock < line.Quantity {
			return domain.OrderResponse{}, fmt.Errorf("product %s: %w", product.SKU, store.ErrInsufficientStock)
		}
		items = append(items, domain.OrderItem{
			ID:         xid.New("oitem"),
			OrderID:    orderID,
			ProductID:  product.ID,
			Quantity:   line.Quantity,
			PriceCents: product.PriceCents,
			Name:       product.Name,
			SKU:        product.SKU,
			CreatedAt:  now,
		})
	}

	totals := pricing.Compute(pricing.LinesFromOrderItems(items), req.DiscountType, req.DiscountValue, req.TaxPercent)

	order := domain.Order{
		ID:              orderID,
		StoreID:         req.StoreID,
		CustomerID:      strings.TrimSpace(req.CustomerID),
		CustomerName:    req.CustomerName,
		CustomerPhone:   strings.TrimSpace(req.CustomerPhone),
		Items:           items,
		SubtotalCents:   totals.SubtotalCents,
		TaxPercent:      req.TaxPercent,
		TaxCents:        totals.TaxCents,
		DiscountType:    req.DiscountType,
		DiscountValue:   req.DiscountValue,
		DiscountCents:   totals.DiscountCents,
		TotalCents:      totals.TotalCents,
		PaymentMethod:   req.PaymentMethod,
		PaymentProvider: strings.TrimSpace(req.PaymentProvider),
		PaymentStatus:   domain.PaymentStatusPending,
		Status:          domain.OrderStatusCreated,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	created, err := s.repo.CreateOrder(ctx, order)
	if err != nil {
		return domain.OrderResponse{}, err
	}

	s.logAudit(ctx, req.StoreID, "order_create", "order", created.ID, fmt.Sprintf("total=%d,items=%d", created.TotalCents, len(created.Items)))
	return domain.OrderResponse{Order: *created}, nil
}

func (s *Service) GetOrder(ctx context.Context, id string) (domain.OrderResponse, error) {
	order, err := s.repo.GetOrderByID(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.OrderResponse{}, err
	}
	return domain.OrderResponse{Order: *order}, nil
}

// allowedTransitions enumerates the fulfillment state machine. delivered and
// cancelled are terminal; delivered accepts itself so duplicate delivery
// webhooks stay harmless.
var allowedTransitions = map[string][]string{
	domain.OrderStatusCreated:   {domain.OrderStatusPacked, domain.OrderStatusCancelled},
	domain.OrderStatusPacked:    {domain.OrderStatusShipped, domain.OrderStatusCancelled},
	domain.OrderStatusShipped:   {domain.OrderStatusDelivered, domain.OrderStatusCancelled},
	domain.OrderStatusDelivered: {domain.OrderStatusDelivered},
	domain.OrderStatusCancelled: {},
}

func transitionAllowed(from string, to string) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// UpdateOrderStatus drives the fulfillment state machine. The first
// transition into delivered materializes the order as a sale exactly once:
// the sale, its items, the stock deductions and the processedAt stamp commit
// together, and any retry sees processedAt set and only refreshes the status.
func (s *Service) UpdateOrderStatus(ctx context.Context, orderID string, newStatus string) (domain.OrderStatusResponse, error) {
	actor, _ := ActorFromContext(ctx)

	orderID = strings.TrimSpace(orderID)
	newStatus = strings.ToLower(strings.TrimSpace(newStatus))
	if orderID == "" {
		return domain.OrderStatusResponse{}, store.ErrInvalidInput
	}
	switch newStatus {
	case domain.OrderStatusCreated, domain.OrderStatusPacked, domain.OrderStatusShipped,
		domain.OrderStatusDelivered, domain.OrderStatusCancelled:
	default:
		return domain.OrderStatusResponse{}, fmt.Errorf("status %q: %w", newStatus, store.ErrInvalidStatus)
	}

	order, err := s.repo.GetOrderByID(ctx, orderID)
	if err != nil {
		return domain.OrderStatusResponse{}, err
	}
	if !transitionAllowed(order.Status, newStatus) {
		return domain.OrderStatusResponse{}, fmt.Errorf("%s -> %s: %w", order.Status, newStatus, store.ErrInvalidStatus)
	}

	now := time.Now().UTC()

	if newStatus != domain.OrderStatusDelivered {
		updated, err := s.repo.UpdateOrderStatus(ctx, orderID, order.Status, newStatus, now)
		if err != nil {
			return domain.OrderStatusResponse{}, err
		}
		s.logAudit(ctx, order.StoreID, "order_status", "order", orderID, fmt.Sprintf("%s->%s", order.Status, newStatus))
		return domain.OrderStatusResponse{Order: *updated}, nil
	}

	// Duplicate delivery: the materialization already happened, only the
	// status is refreshed.
	if order.ProcessedAt != nil {
		updated, err := s.repo.UpdateOrderStatus(ctx, orderID, order.Status, domain.OrderStatusDelivered, now)
		if err != nil {
			return domain.OrderStatusResponse{}, err
		}
		return domain.OrderStatusResponse{Order: *updated, MovedToSaleID: updated.MovedToSaleID}, nil
	}

	sale, movements := s.materializeSale(*order, actor.Username, now)

	updated, err := s.repo.MarkOrderDelivered(ctx, orderID, order.Status, now, sale, movements)
	if err != nil {
		return domain.OrderStatusResponse{}, err
	}

	s.logAudit(ctx, order.StoreID, "order_delivered", "order", orderID, fmt.Sprintf("sale=%s,invoice=%s", updated.MovedToSaleID, sale.InvoiceNumber))
	return domain.OrderStatusResponse{Order: *updated, MovedToSaleID: updated.MovedToSaleID}, nil
}

// materializeSale synthesizes the immutable sale record for a delivered
// order. Totals are carried over from the order, not recomputed: the customer
// paid against the order's quote.
func (s *Service) materializeSale(order domain.Order, actorUsername string, now time.Time) (domain.Sale, []domain.StockMovement) {
	saleID := xid.New("sale")
	invoiceNumber := invoice.Next(now)

	items := make([]domain.SaleItem, 0, len(order.Items))
	movements := make([]domain.StockMovement, 0, len(order.Items))
	for _, line := range order.Items {
		items = append(items, domain.SaleItem{
			ID:         xid.New("sitem"),
			SaleID:     saleID,
			ProductID:  line.ProductID,
			Quantity:   line.Quantity,
			PriceCents: line.PriceCents,
			Name:       line.Name,
			SKU:        line.SKU,
			CreatedAt:  now,
		})
		movements = append(movements, domain.StockMovement{
			ID:        xid.New("mov"),
			ProductID: line.ProductID,
			UserID:    actorUsername,
			Type:      domain.MovementSaleOut,
			Quantity:  -line.Quantity,
			Reason:    fmt.Sprintf("Online order %s", invoiceNumber),
			RefTable:  "sale_items",
			RefID:     saleID,
			CreatedAt: now,
		})
	}

	customerName := order.CustomerName
	if strings.TrimSpace(customerName) == "" {
		customerName = walkInCustomer
	}

	return domain.Sale{
		ID:            saleID,
		StoreID:       order.StoreID,
		CustomerID:    order.CustomerID,
		CustomerName:  customerName,
		Items:         items,
		SubtotalCents: order.SubtotalCents,
		TaxPercent:    order.TaxPercent,
		TaxCents:      order.TaxCents,
		DiscountType:  order.DiscountType,
		DiscountValue: order.DiscountValue,
		DiscountCents: order.DiscountCents,
		TotalCents:    order.TotalCents,
		PaymentMethod: order.PaymentMethod,
		InvoiceNumber: invoiceNumber,
		OrderSource:   domain.OrderSourceOnline,
		CreatedAt:     now,
	}, movements
}

// RecordPayment persists a payment attempt handed over by the payment
// boundary. It computes nothing; amounts and references are taken as given.
func (s *Service) RecordPayment(ctx context.Context, req domain.PaymentRecordRequest) (domain.PaymentResponse, error) {
	req.Provider = strings.TrimSpace(req.Provider)
	if req.Provider == "" || req.AmountCents < 1 {
		return domain.PaymentResponse{}, store.ErrInvalidInput
	}
	req.SaleID = strings.TrimSpace(req.SaleID)
	req.OrderID = strings.TrimSpace(req.OrderID)
	if req.SaleID != "" && req.OrderID != "" {
		return domain.PaymentResponse{}, store.ErrInvalidInput
	}
	if req.StoreID == "" {
		req.StoreID = s.defaultStoreID
	}

	payment := domain.Payment{
		ID:              xid.New("pay"),
		SaleID:          req.SaleID,
		OrderID:         req.OrderID,
		StoreID:         req.StoreID,
		Provider:        req.Provider,
		ProviderOrderID: strings.TrimSpace(req.ProviderOrderID),
		Status:          domain.PaymentStatusPending,
		AmountCents:     req.AmountCents,
		Method:          strings.TrimSpace(req.Method),
		CreatedAt:       time.Now().UTC(),
	}

	created, err := s.repo.CreatePayment(ctx, payment)
	if err != nil {
		return domain.PaymentResponse{}, err
	}

	s.logAudit(ctx, req.StoreID, "payment_record", "payment", created.ID, fmt.Sprintf("provider=%s,amount=%d", created.Provider, created.AmountCents))
	return domain.PaymentResponse{Payment: *created}, nil
}

// UpdatePaymentStatus reflects a capture or failure reported by the provider.
// Order-linked payments mirror the status onto the order's payment_status.
// GetPayment looks up a recorded attempt, typically during provider webhook
// reconciliation.
func (s *Service) GetPayment(ctx context.Context, id string) (domain.PaymentResponse, error) {
	payment, err := s.repo.GetPaymentByID(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.PaymentResponse{}, err
	}
	return domain.PaymentResponse{Payment: *payment}, nil
}

func (s *Service) UpdatePaymentStatus(ctx context.Context, paymentID string, req domain.PaymentStatusUpdateRequest) (domain.PaymentResponse, error) {
	paymentID = strings.TrimSpace(paymentID)
	status := strings.ToLower(strings.TrimSpace(req.Status))
	if paymentID == "" {
		return domain.PaymentResponse{}, store.ErrInvalidInput
	}
	switch status {
	case domain.PaymentStatusPending, domain.PaymentStatusPaid, domain.PaymentStatusFailed, domain.PaymentStatusRefunded:
	default:
		return domain.PaymentResponse{}, fmt.Errorf("payment status %q: %w", status, store.ErrInvalidStatus)
	}

	updated, err := s.repo.UpdatePaymentStatus(ctx, paymentID, status, strings.TrimSpace(req.ProviderPaymentID))
	if err != nil {
		return domain.PaymentResponse{}, err
	}

	s.logAudit(ctx, updated.StoreID, "payment_status", "payment", updated.ID, status)
	return domain.PaymentResponse{Payment: *updated}, nil
}

func (s *Service) CreatePurchaseOrder(ctx context.Context, req domain.PurchaseOrderCreateRequest) (domain.PurchaseOrderResponse, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.PurchaseOrderResponse{}, fmt.Errorf("admin role required")
	}

	if req.StoreID == "" {
		req.StoreID = s.defaultStoreID
	}
	req.SupplierName = strings.TrimSpace(req.SupplierName)
	if req.SupplierName == "" || len(req.Items) == 0 {
		return domain.PurchaseOrderResponse{}, store.ErrInvalidInput
	}

	items := make([]domain.PurchaseOrderItem, 0, len(req.Items))
	for _, item := range req.Items {
		item.ProductID = strings.TrimSpace(item.ProductID)
		if item.ProductID == "" || item.Quantity < 1 || item.CostCents < 0 {
			return domain.PurchaseOrderResponse{}, store.ErrInvalidInput
		}
		item.ID = xid.New("poitem")
		items = append(items, item)
	}

	po := domain.PurchaseOrder{
		ID:           xid.New("po"),
		StoreID:      req.StoreID,
		SupplierName: req.SupplierName,
		Status:       domain.PurchaseOrderStatusDraft,
		Items:        items,
		CreatedAt:    time.Now().UTC(),
	}

	created, err := s.repo.CreatePurchaseOrder(ctx, po)
	if err != nil {
		return domain.PurchaseOrderResponse{}, err
	}
	s.logAudit(ctx, req.StoreID, "purchase_order_create", "purchase_order", created.ID, fmt.Sprintf("items=%d", len(created.Items)))
	return domain.PurchaseOrderResponse{PurchaseOrder: *created}, nil
}

// ReceivePurchaseOrder restocks every line and records one po_receipt ledger
// entry per item, traceable back to the purchase order line.
func (s *Service) ReceivePurchaseOrder(ctx context.Context, poID string) (domain.PurchaseOrderResponse, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.PurchaseOrderResponse{}, fmt.Errorf("admin role required")
	}

	poID = strings.TrimSpace(poID)
	if poID == "" {
		return domain.PurchaseOrderResponse{}, store.ErrInvalidInput
	}

	po, err := s.repo.GetPurchaseOrderByID(ctx, poID)
	if err != nil {
		return domain.PurchaseOrderResponse{}, err
	}
	if po.Status == domain.PurchaseOrderStatusReceived {
		return domain.PurchaseOrderResponse{}, fmt.Errorf("purchase order already received: %w", store.ErrInvalidStatus)
	}

	now := time.Now().UTC()
	movements := make([]domain.StockMovement, 0, len(po.Items))
	for _, item := range po.Items {
		movements = append(movements, domain.StockMovement{
			ID:        xid.New("mov"),
			ProductID: item.ProductID,
			UserID:    actor.Username,
			Type:      domain.MovementPOReceipt,
			Quantity:  item.Quantity,
			Reason:    fmt.Sprintf("PO receipt %s", po.ID),
			RefTable:  "purchase_order_items",
			RefID:     item.ID,
			CreatedAt: now,
		})
	}

	received, err := s.repo.ReceivePurchaseOrder(ctx, poID, actor.Username, now, movements)
	if err != nil {
		return domain.PurchaseOrderResponse{}, err
	}

	s.logAudit(ctx, received.StoreID, "purchase_order_receive", "purchase_order", received.ID, fmt.Sprintf("received_by=%s", actor.Username))
	return domain.PurchaseOrderResponse{PurchaseOrder: *received}, nil
}

// AdjustStock records a manual inventory correction: a signed delta applied
// to the counter with its ledger entry, in one transaction.
func (s *Service) AdjustStock(ctx context.Context, req domain.StockAdjustmentRequest) (domain.StockMovement, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.StockMovement{}, fmt.Errorf("admin role required")
	}

	req.ProductID = strings.TrimSpace(req.ProductID)
	req.Reason = strings.TrimSpace(req.Reason)
	if req.ProductID == "" || req.Quantity == 0 || req.Reason == "" {
		return domain.StockMovement{}, store.ErrInvalidInput
	}

	movement := domain.StockMovement{
		ID:        xid.New("mov"),
		ProductID: req.ProductID,
		UserID:    actor.Username,
		Type:      domain.MovementAdjustment,
		Quantity:  req.Quantity,
		Reason:    req.Reason,
		RefTable:  "products",
		RefID:     req.ProductID,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.repo.AdjustStock(ctx, movement); err != nil {
		return domain.StockMovement{}, err
	}

	s.logAudit(ctx, s.defaultStoreID, "stock_adjust", "product", req.ProductID, fmt.Sprintf("delta=%d,reason=%s", req.Quantity, req.Reason))
	return movement, nil
}

func (s *Service) ListStockMovements(ctx context.Context, productID string, limit int) ([]domain.StockMovement, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return nil, store.ErrInvalidInput
	}
	if limit < 1 {
		limit = 100
	}
	return s.repo.ListStockMovements(ctx, productID, limit)
}

func (s *Service) LowStockReport(ctx context.Context, storeID string, limit int) (domain.LowStockReport, error) {
	if storeID == "" {
		storeID = s.defaultStoreID
	}
	if limit < 1 {
		limit = 100
	}
	items, err := s.repo.ListLowStockProducts(ctx, storeID, limit)
	if err != nil {
		return domain.LowStockReport{}, err
	}
	return domain.LowStockReport{
		StoreID:     storeID,
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		Items:       items,
	}, nil
}

// DailySalesReport aggregates committed sale rows for one day. The result is
// cached briefly; a stale read here is harmless because the report is a
// read model, never an input to writes.
func (s *Service) DailySalesReport(ctx context.Context, storeID string, date string) (domain.DailySalesReport, error) {
	if storeID == "" {
		storeID = s.defaultStoreID
	}

	var day time.Time
	if strings.TrimSpace(date) == "" {
		now := time.Now().UTC()
		day = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	} else {
		parsed, err := time.Parse("2006-01-02", date)
		if err != nil {
			return domain.DailySalesReport{}, store.ErrInvalidInput
		}
		day = parsed.UTC()
	}
	from := day
	to := from.Add(24 * time.Hour)

	cacheKey := fmt.Sprintf("report:daily:%s:%s", storeID, from.Format("2006-01-02"))
	if cached, found, err := s.reports.Get(ctx, cacheKey); err == nil && found {
		return *cached, nil
	} else if err != nil {
		log.Printf("[service] WARN: report cache get failed: %v", err)
	}

	report, err := s.repo.GetDailySalesReport(ctx, storeID, from, to)
	if err != nil {
		return domain.DailySalesReport{}, err
	}
	report.StoreID = storeID
	report.Date = from.Format("2006-01-02")

	if err := s.reports.Set(ctx, cacheKey, &report, s.reportTTL); err != nil {
		log.Printf("[service] WARN: report cache set failed: %v", err)
	}
	return report, nil
}

func (s *Service) ListAuditLogs(ctx context.Context, storeID string, date string, limit int) ([]domain.AuditLog, error) {
	if storeID == "" {
		storeID = s.defaultStoreID
	}
	if limit < 1 {
		limit = 100
	}

	var from time.Time
	if strings.TrimSpace(date) == "" {
		from = time.Now().UTC().Add(-24 * time.Hour)
	} else {
		parsed, err := time.Parse("2006-01-02", date)
		if err != nil {
			return nil, store.ErrInvalidInput
		}
		from = parsed.UTC()
	}
	to := from.Add(24 * time.Hour)

	return s.repo.ListAuditLogs(ctx, storeID, from, to, limit)
}

func (s *Service) logAudit(ctx context.Context, storeID string, action string, entityType string, entityID string, detail string) {
	actor, _ := ActorFromContext(ctx)
	entry := domain.AuditLog{
		ID:            xid.New("audit"),
		StoreID:       storeID,
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.repo.CreateAuditLog(ctx, entry); err != nil {
		log.Printf("[service] WARN: failed to write audit log action=%s: %v", action, err)
	}
}

func validateDiscount(discountType string, discountValue float64) error {
	switch discountType {
	case domain.DiscountNone, domain.DiscountPercentage, domain.DiscountFixed:
	default:
		return store.ErrInvalidInput
	}
	if discountValue < 0 {
		return store.ErrInvalidInput
	}
	if discountType == domain.DiscountPercentage && discountValue > 100 {
		return store.ErrInvalidInput
	}
	return nil
}

// normalizeLines merges duplicate product lines and drops empty ones.
func normalizeLines(lines []domain.SaleLineInput) []domain.SaleLineInput {
	merged := make(map[string]int, len(lines))
	order := make([]string, 0, len(lines))
	for _, line := range lines {
		id := strings.TrimSpace(line.ProductID)
		if id == "" || line.Quantity < 1 {
			continue
		}
		if _, seen := merged[id]; !seen {
			order = append(order, id)
		}
		merged[id] += line.Quantity
	}

	normalized := make([]domain.SaleLineInput, 0, len(order))
	for _, id := range order {
		normalized = append(normalized, domain.SaleLineInput{ProductID: id, Quantity: merged[id]})
	}
	return normalized
}
