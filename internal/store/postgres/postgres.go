// Package postgres implements store.Repository on PostgreSQL. Multi-row
// operations run inside serializable transactions; stock counter updates are
// conditional so a concurrent writer aborts instead of driving stock
// negative.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/arpitthekumar/clothinv-e-com-sub000/internal/domain"
	"github.com/arpitthekumar/clothinv-e-com-sub000/internal/pricing"
	"github.com/arpitthekumar/clothinv-e-com-sub000/internal/store"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product, initial *domain.StockMovement) (*domain.Product, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO products (id, sku, name, category, price_cents, buying_price_cents, stock, min_stock, store_id, deleted, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,false,$10,$10)
	`, product.ID, product.SKU, product.Name, product.Category, product.PriceCents, product.BuyingPriceCents,
		product.Stock, product.MinStock, product.StoreID, product.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("sku %s: %w", product.SKU, store.ErrConflict)
		}
		return nil, err
	}

	created := product
	if initial != nil {
		if err := applyMovements(ctx, tx, []domain.StockMovement{*initial}); err != nil {
			return nil, err
		}
		created.Stock += initial.Quantity
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &created, nil
}

const productColumns = `id, sku, name, category, price_cents, buying_price_cents, stock, min_stock, store_id, deleted, deleted_at, created_at, updated_at`

func scanProduct(row interface{ Scan(...any) error }) (domain.Product, error) {
	var p domain.Product
	var buying sql.NullInt64
	var deletedAt sql.NullTime
	err := row.Scan(&p.ID, &p.SKU, &p.Name, &p.Category, &p.PriceCents, &buying,
		&p.Stock, &p.MinStock, &p.StoreID, &p.Deleted, &deletedAt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return domain.Product{}, err
	}
	if buying.Valid {
		v := buying.Int64
		p.BuyingPriceCents = &v
	}
	if deletedAt.Valid {
		t := deletedAt.Time.UTC()
		p.DeletedAt = &t
	}
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return p, nil
}

func (s *Store) GetProductByID(ctx context.Context, id string) (*domain.Product, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE id = $1 AND deleted = false
	`, id)
	product, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &product, nil
}

func (s *Store) GetProductsByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	if len(ids) == 0 {
		return map[string]domain.Product{}, nil
	}

	placeholders := make([]string, 0, len(ids))
	args := make([]any, 0, len(ids))
	for i, id := range ids {
		placeholders = append(placeholders, fmt.Sprintf("$%d", i+1))
		args = append(args, id)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE id IN (`+strings.Join(placeholders, ",")+`) AND deleted = false
	`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[string]domain.Product, len(ids))
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		result[product.ID] = product
	}
	return result, rows.Err()
}

func (s *Store) ListProducts(ctx context.Context, storeID string) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE store_id = $1 AND deleted = false
		ORDER BY sku
	`, storeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 128)
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, product)
	}
	return products, rows.Err()
}

func (s *Store) AdjustStock(ctx context.Context, movement domain.StockMovement) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := applyMovements(ctx, tx, []domain.StockMovement{movement}); err != nil {
		return err
	}
	return tx.Commit()
}

// applyMovements performs the conditional counter update and the ledger
// insert for each movement inside the caller's transaction. A delta that
// would drive stock negative updates zero rows, which we distinguish from an
// unknown product before reporting ErrInsufficientStock.
func applyMovements(ctx context.Context, tx *sql.Tx, movements []domain.StockMovement) error {
	for _, movement := range movements {
		res, err := tx.ExecContext(ctx, `
			UPDATE products
			SET stock = stock + $2, updated_at = now()
			WHERE id = $1 AND deleted = false AND stock + $2 >= 0
		`, movement.ProductID, movement.Quantity)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			var exists bool
			if err := tx.QueryRowContext(ctx, `
				SELECT EXISTS (SELECT 1 FROM products WHERE id = $1 AND deleted = false)
			`, movement.ProductID).Scan(&exists); err != nil {
				return err
			}
			if !exists {
				return fmt.Errorf("product %s: %w", movement.ProductID, store.ErrNotFound)
			}
			return fmt.Errorf("product %s delta %d: %w", movement.ProductID, movement.Quantity, store.ErrInsufficientStock)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO stock_movements (id, product_id, user_id, type, quantity, reason, ref_table, ref_id, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		`, movement.ID, movement.ProductID, nullString(movement.UserID), movement.Type, movement.Quantity,
			movement.Reason, nullString(movement.RefTable), nullString(movement.RefID), movement.CreatedAt)
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) ListStockMovements(ctx context.Context, productID string, limit int) ([]domain.StockMovement, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, product_id, COALESCE(user_id, ''), type, quantity, reason, COALESCE(ref_table, ''), COALESCE(ref_id, ''), created_at
		FROM stock_movements
		WHERE product_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, productID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	movements := make([]domain.StockMovement, 0, limit)
	for rows.Next() {
		var m domain.StockMovement
		if err := rows.Scan(&m.ID, &m.ProductID, &m.UserID, &m.Type, &m.Quantity, &m.Reason, &m.RefTable, &m.RefID, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.CreatedAt = m.CreatedAt.UTC()
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

func (s *Store) CreateSale(ctx context.Context, sale domain.Sale, movements []domain.StockMovement) (*domain.Sale, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	if err := insertSale(ctx, tx, sale); err != nil {
		return nil, err
	}
	if err := applyMovements(ctx, tx, movements); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	created := sale
	return &created, nil
}

func insertSale(ctx context.Context, tx *sql.Tx, sale domain.Sale) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO sales (id, store_id, user_id, customer_id, customer_name, subtotal_cents, tax_percent, tax_cents,
			discount_type, discount_value, discount_cents, total_cents, payment_method, invoice_number, order_source,
			deleted, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,false,$16)
	`, sale.ID, sale.StoreID, nullString(sale.UserID), nullString(sale.CustomerID), sale.CustomerName,
		sale.SubtotalCents, sale.TaxPercent, sale.TaxCents, nullString(sale.DiscountType), sale.DiscountValue,
		sale.DiscountCents, sale.TotalCents, sale.PaymentMethod, sale.InvoiceNumber, sale.OrderSource, sale.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("invoice %s: %w", sale.InvoiceNumber, store.ErrConflict)
		}
		return err
	}

	for _, item := range sale.Items {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO sale_items (id, sale_id, product_id, quantity, price_cents, name, sku, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		`, item.ID, item.SaleID, item.ProductID, item.Quantity, item.PriceCents, item.Name, item.SKU, item.CreatedAt)
		if err != nil {
			return err
		}
	}
	return nil
}

const saleColumns = `id, store_id, COALESCE(user_id, ''), COALESCE(customer_id, ''), customer_name, subtotal_cents,
	tax_percent, tax_cents, COALESCE(discount_type, ''), discount_value, discount_cents, total_cents,
	payment_method, invoice_number, order_source, deleted, deleted_at, created_at`

func scanSale(row interface{ Scan(...any) error }) (domain.Sale, error) {
	var sale domain.Sale
	var deletedAt sql.NullTime
	err := row.Scan(&sale.ID, &sale.StoreID, &sale.UserID, &sale.CustomerID, &sale.CustomerName, &sale.SubtotalCents,
		&sale.TaxPercent, &sale.TaxCents, &sale.DiscountType, &sale.DiscountValue, &sale.DiscountCents, &sale.TotalCents,
		&sale.PaymentMethod, &sale.InvoiceNumber, &sale.OrderSource, &sale.Deleted, &deletedAt, &sale.CreatedAt)
	if err != nil {
		return domain.Sale{}, err
	}
	if deletedAt.Valid {
		t := deletedAt.Time.UTC()
		sale.DeletedAt = &t
	}
	sale.CreatedAt = sale.CreatedAt.UTC()
	return sale, nil
}

func (s *Store) GetSaleByID(ctx context.Context, id string) (*domain.Sale, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+saleColumns+` FROM sales WHERE id = $1`, id)
	sale, err := scanSale(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	items, err := s.listSaleItems(ctx, id)
	if err != nil {
		return nil, err
	}
	sale.Items = items
	return &sale, nil
}

func (s *Store) listSaleItems(ctx context.Context, saleID string) ([]domain.SaleItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sale_id, product_id, quantity, price_cents, name, sku, created_at
		FROM sale_items
		WHERE sale_id = $1
		ORDER BY created_at, id
	`, saleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.SaleItem, 0, 8)
	for rows.Next() {
		var item domain.SaleItem
		if err := rows.Scan(&item.ID, &item.SaleID, &item.ProductID, &item.Quantity, &item.PriceCents, &item.Name, &item.SKU, &item.CreatedAt); err != nil {
			return nil, err
		}
		item.CreatedAt = item.CreatedAt.UTC()
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *Store) SetSaleDeleted(ctx context.Context, id string, deleted bool, at time.Time) (*domain.Sale, error) {
	var deletedAt any
	if deleted {
		deletedAt = at
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE sales SET deleted = $2, deleted_at = $3 WHERE id = $1
	`, id, deleted, deletedAt)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}
	return s.GetSaleByID(ctx, id)
}

func (s *Store) ApplySalesReturn(ctx context.Context, ret domain.SalesReturn, movements []domain.StockMovement) (*domain.SalesReturn, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sales_returns (id, sale_id, customer_id, reason, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, ret.ID, ret.SaleID, nullString(ret.CustomerID), nullString(ret.Reason), ret.CreatedAt)
	if err != nil {
		return nil, err
	}

	for _, item := range ret.Items {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO sales_return_items (id, sales_return_id, sale_item_id, product_id, quantity, refund_cents, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
		`, item.ID, item.SalesReturnID, item.SaleItemID, item.ProductID, item.Quantity, item.RefundCents, item.CreatedAt)
		if err != nil {
			return nil, err
		}

		// Conditional decrement: returning more than the row holds updates
		// zero rows and aborts the whole return.
		res, err := tx.ExecContext(ctx, `
			UPDATE sale_items
			SET quantity = quantity - $2
			WHERE id = $1 AND quantity >= $2
		`, item.SaleItemID, item.Quantity)
		if err != nil {
			return nil, err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, err
		}
		if affected == 0 {
			return nil, fmt.Errorf("sale item %s: %w", item.SaleItemID, store.ErrInvalidReturn)
		}
	}

	_, err = tx.ExecContext(ctx, `DELETE FROM sale_items WHERE sale_id = $1 AND quantity = 0`, ret.SaleID)
	if err != nil {
		return nil, err
	}

	if err := applyMovements(ctx, tx, movements); err != nil {
		return nil, err
	}

	// Totals come from the rows this transaction just decremented, not from
	// whatever the caller read before it started.
	var discountType string
	var discountValue, taxPercent float64
	err = tx.QueryRowContext(ctx, `
		SELECT COALESCE(discount_type, ''), discount_value, tax_percent FROM sales WHERE id = $1
	`, ret.SaleID).Scan(&discountType, &discountValue, &taxPercent)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	rows, err := tx.QueryContext(ctx, `SELECT quantity, price_cents FROM sale_items WHERE sale_id = $1`, ret.SaleID)
	if err != nil {
		return nil, err
	}
	lines := make([]pricing.Line, 0, 8)
	for rows.Next() {
		var line pricing.Line
		if err := rows.Scan(&line.Quantity, &line.PriceCents); err != nil {
			rows.Close()
			return nil, err
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	totals := pricing.Compute(lines, discountType, discountValue, taxPercent)
	_, err = tx.ExecContext(ctx, `
		UPDATE sales
		SET subtotal_cents = $2, discount_cents = $3, tax_cents = $4, total_cents = $5
		WHERE id = $1
	`, ret.SaleID, totals.SubtotalCents, totals.DiscountCents, totals.TaxCents, totals.TotalCents)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	applied := ret
	return &applied, nil
}

func (s *Store) CreateOrder(ctx context.Context, order domain.Order) (*domain.Order, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (id, store_id, customer_id, customer_name, customer_phone, subtotal_cents, tax_percent,
			tax_cents, discount_type, discount_value, discount_cents, total_cents, payment_method, payment_provider,
			payment_status, status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$17)
	`, order.ID, order.StoreID, nullString(order.CustomerID), order.CustomerName, nullString(order.CustomerPhone),
		order.SubtotalCents, order.TaxPercent, order.TaxCents, nullString(order.DiscountType), order.DiscountValue,
		order.DiscountCents, order.TotalCents, order.PaymentMethod, nullString(order.PaymentProvider),
		order.PaymentStatus, order.Status, order.CreatedAt)
	if err != nil {
		return nil, err
	}

	for _, item := range order.Items {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO order_items (id, order_id, product_id, quantity, price_cents, name, sku, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		`, item.ID, item.OrderID, item.ProductID, item.Quantity, item.PriceCents, item.Name, item.SKU, item.CreatedAt)
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	created := order
	return &created, nil
}

const orderColumns = `id, store_id, COALESCE(customer_id, ''), customer_name, COALESCE(customer_phone, ''),
	subtotal_cents, tax_percent, tax_cents, COALESCE(discount_type, ''), discount_value, discount_cents, total_cents,
	payment_method, COALESCE(payment_provider, ''), payment_status, status, COALESCE(moved_to_sale_id, ''),
	processed_at, created_at, updated_at`

func scanOrder(row interface{ Scan(...any) error }) (domain.Order, error) {
	var order domain.Order
	var processedAt sql.NullTime
	err := row.Scan(&order.ID, &order.StoreID, &order.CustomerID, &order.CustomerName, &order.CustomerPhone,
		&order.SubtotalCents, &order.TaxPercent, &order.TaxCents, &order.DiscountType, &order.DiscountValue,
		&order.DiscountCents, &order.TotalCents, &order.PaymentMethod, &order.PaymentProvider, &order.PaymentStatus,
		&order.Status, &order.MovedToSaleID, &processedAt, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return domain.Order{}, err
	}
	if processedAt.Valid {
		t := processedAt.Time.UTC()
		order.ProcessedAt = &t
	}
	order.CreatedAt = order.CreatedAt.UTC()
	order.UpdatedAt = order.UpdatedAt.UTC()
	return order, nil
}

func (s *Store) GetOrderByID(ctx context.Context, id string) (*domain.Order, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	order, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	items, err := s.listOrderItems(ctx, id)
	if err != nil {
		return nil, err
	}
	order.Items = items
	return &order, nil
}

func (s *Store) listOrderItems(ctx context.Context, orderID string) ([]domain.OrderItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, order_id, product_id, quantity, price_cents, name, sku, created_at
		FROM order_items
		WHERE order_id = $1
		ORDER BY created_at, id
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.OrderItem, 0, 8)
	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.Quantity, &item.PriceCents, &item.Name, &item.SKU, &item.CreatedAt); err != nil {
			return nil, err
		}
		item.CreatedAt = item.CreatedAt.UTC()
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *Store) UpdateOrderStatus(ctx context.Context, id string, expected string, status string, at time.Time) (*domain.Order, error) {
	// Compare-and-set: a write that lost a race with another transition
	// matches zero rows instead of clobbering the newer status. Orders whose
	// delivery was already materialized only accept a delivered refresh.
	res, err := s.db.ExecContext(ctx, `
		UPDATE orders SET status = $3, updated_at = $4
		WHERE id = $1 AND status = $2 AND (processed_at IS NULL OR $3 = 'delivered')
	`, id, expected, status, at)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		var exists bool
		if err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, id).Scan(&exists); err != nil {
			return nil, err
		}
		if !exists {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("%s -> %s: %w", expected, status, store.ErrInvalidStatus)
	}
	return s.GetOrderByID(ctx, id)
}

func (s *Store) MarkOrderDelivered(ctx context.Context, id string, expected string, at time.Time, sale domain.Sale, movements []domain.StockMovement) (*domain.Order, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	// The processed_at guard makes materialization exactly-once, and the
	// status check keeps a delivery that lost a race with another
	// transition (a concurrent cancel) from materializing anyway.
	res, err := tx.ExecContext(ctx, `
		UPDATE orders
		SET status = $3, processed_at = $4, moved_to_sale_id = $5, updated_at = $4
		WHERE id = $1 AND status = $2 AND processed_at IS NULL
	`, id, expected, domain.OrderStatusDelivered, at, sale.ID)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}

	if affected == 0 {
		var processed bool
		err := tx.QueryRowContext(ctx, `SELECT processed_at IS NOT NULL FROM orders WHERE id = $1`, id).Scan(&processed)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		if err != nil {
			return nil, err
		}
		if !processed {
			return nil, fmt.Errorf("%s -> %s: %w", expected, domain.OrderStatusDelivered, store.ErrInvalidStatus)
		}
		// Already materialized: refresh the status only.
		_, err = tx.ExecContext(ctx, `
			UPDATE orders SET status = $2, updated_at = $3 WHERE id = $1
		`, id, domain.OrderStatusDelivered, at)
		if err != nil {
			return nil, err
		}
		if err := tx.Commit(); err != nil {
			return nil, err
		}
		return s.GetOrderByID(ctx, id)
	}

	if err := insertSale(ctx, tx, sale); err != nil {
		return nil, err
	}
	if err := applyMovements(ctx, tx, movements); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return s.GetOrderByID(ctx, id)
}

func (s *Store) CreatePayment(ctx context.Context, payment domain.Payment) (*domain.Payment, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO payments (id, sale_id, order_id, store_id, provider, provider_order_id, provider_payment_id,
			status, amount_cents, method, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, payment.ID, nullString(payment.SaleID), nullString(payment.OrderID), payment.StoreID, payment.Provider,
		nullString(payment.ProviderOrderID), nullString(payment.ProviderPaymentID), payment.Status,
		payment.AmountCents, nullString(payment.Method), payment.CreatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, fmt.Errorf("payment reference: %w", store.ErrNotFound)
		}
		return nil, err
	}
	created := payment
	return &created, nil
}

const paymentColumns = `id, COALESCE(sale_id, ''), COALESCE(order_id, ''), store_id, provider,
	COALESCE(provider_order_id, ''), COALESCE(provider_payment_id, ''), status, amount_cents, COALESCE(method, ''), created_at`

func scanPayment(row interface{ Scan(...any) error }) (domain.Payment, error) {
	var p domain.Payment
	err := row.Scan(&p.ID, &p.SaleID, &p.OrderID, &p.StoreID, &p.Provider, &p.ProviderOrderID, &p.ProviderPaymentID,
		&p.Status, &p.AmountCents, &p.Method, &p.CreatedAt)
	if err != nil {
		return domain.Payment{}, err
	}
	p.CreatedAt = p.CreatedAt.UTC()
	return p, nil
}

func (s *Store) GetPaymentByID(ctx context.Context, id string) (*domain.Payment, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id)
	payment, err := scanPayment(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &payment, nil
}

func (s *Store) UpdatePaymentStatus(ctx context.Context, id string, status string, providerPaymentID string) (*domain.Payment, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `
		UPDATE payments
		SET status = $2, provider_payment_id = COALESCE(NULLIF($3, ''), provider_payment_id)
		WHERE id = $1
		RETURNING `+paymentColumns+`
	`, id, status, providerPaymentID)
	payment, err := scanPayment(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	if payment.OrderID != "" {
		_, err := tx.ExecContext(ctx, `
			UPDATE orders SET payment_status = $2, updated_at = now() WHERE id = $1
		`, payment.OrderID, status)
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &payment, nil
}

func (s *Store) CreatePurchaseOrder(ctx context.Context, po domain.PurchaseOrder) (*domain.PurchaseOrder, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO purchase_orders (id, store_id, supplier_name, status, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, po.ID, po.StoreID, po.SupplierName, po.Status, po.CreatedAt)
	if err != nil {
		return nil, err
	}

	for _, item := range po.Items {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO purchase_order_items (id, purchase_order_id, product_id, quantity, cost_cents)
			VALUES ($1,$2,$3,$4,$5)
		`, item.ID, po.ID, item.ProductID, item.Quantity, item.CostCents)
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	created := po
	return &created, nil
}

func (s *Store) GetPurchaseOrderByID(ctx context.Context, id string) (*domain.PurchaseOrder, error) {
	var po domain.PurchaseOrder
	var receivedBy sql.NullString
	var receivedAt sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT id, store_id, supplier_name, status, received_by, received_at, created_at
		FROM purchase_orders
		WHERE id = $1
	`, id).Scan(&po.ID, &po.StoreID, &po.SupplierName, &po.Status, &receivedBy, &receivedAt, &po.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if receivedBy.Valid {
		po.ReceivedBy = receivedBy.String
	}
	if receivedAt.Valid {
		t := receivedAt.Time.UTC()
		po.ReceivedAt = &t
	}
	po.CreatedAt = po.CreatedAt.UTC()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, product_id, quantity, cost_cents
		FROM purchase_order_items
		WHERE purchase_order_id = $1
		ORDER BY id
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var item domain.PurchaseOrderItem
		if err := rows.Scan(&item.ID, &item.ProductID, &item.Quantity, &item.CostCents); err != nil {
			return nil, err
		}
		po.Items = append(po.Items, item)
	}
	return &po, rows.Err()
}

func (s *Store) ReceivePurchaseOrder(ctx context.Context, id string, receivedBy string, at time.Time, movements []domain.StockMovement) (*domain.PurchaseOrder, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		UPDATE purchase_orders
		SET status = $2, received_by = $3, received_at = $4
		WHERE id = $1 AND status <> $2
	`, id, domain.PurchaseOrderStatusReceived, receivedBy, at)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		var exists bool
		if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM purchase_orders WHERE id = $1)`, id).Scan(&exists); err != nil {
			return nil, err
		}
		if !exists {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("purchase order %s: %w", id, store.ErrInvalidStatus)
	}

	if err := applyMovements(ctx, tx, movements); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return s.GetPurchaseOrderByID(ctx, id)
}

func (s *Store) GetDailySalesReport(ctx context.Context, storeID string, from time.Time, to time.Time) (domain.DailySalesReport, error) {
	var report domain.DailySalesReport
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(subtotal_cents), 0), COALESCE(SUM(discount_cents), 0),
			COALESCE(SUM(tax_cents), 0), COALESCE(SUM(total_cents), 0)
		FROM sales
		WHERE store_id = $1 AND deleted = false AND created_at >= $2 AND created_at < $3
	`, storeID, from, to).Scan(&report.Sales, &report.GrossSalesCents, &report.DiscountCents, &report.TaxCents, &report.NetSalesCents)
	if err != nil {
		return domain.DailySalesReport{}, err
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(sri.quantity), 0)
		FROM sales_return_items sri
		JOIN sales_returns sr ON sr.id = sri.sales_return_id
		WHERE sr.created_at >= $1 AND sr.created_at < $2
	`, from, to).Scan(&report.ReturnedUnits)
	if err != nil {
		return domain.DailySalesReport{}, err
	}
	return report, nil
}

func (s *Store) ListLowStockProducts(ctx context.Context, storeID string, limit int) ([]domain.LowStockItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sku, name, stock, min_stock
		FROM products
		WHERE store_id = $1 AND deleted = false AND stock <= min_stock
		ORDER BY stock, sku
		LIMIT $2
	`, storeID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.LowStockItem, 0, limit)
	for rows.Next() {
		var item domain.LowStockItem
		if err := rows.Scan(&item.ProductID, &item.SKU, &item.Name, &item.Stock, &item.MinStock); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, store_id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, entry.ID, entry.StoreID, nullString(entry.ActorUsername), nullString(entry.ActorRole), entry.Action,
		entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, storeID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, store_id, COALESCE(actor_username, ''), COALESCE(actor_role, ''), action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE store_id = $1 AND created_at >= $2 AND created_at < $3
		ORDER BY created_at DESC
		LIMIT $4
	`, storeID, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.StoreID, &entry.ActorUsername, &entry.ActorRole, &entry.Action,
			&entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, password, role, active, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil && isUniqueViolation(err) {
		return fmt.Errorf("user %s: %w", user.Username, store.ErrConflict)
	}
	return err
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM users
		ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 8)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	return users, rows.Err()
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET password = $2 WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func nullString(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503"
	}
	return false
}
