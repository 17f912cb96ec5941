// Package postgres implements the store Repository on database/sql with the
// pgx driver. The expected tables are in schema.sql next to this file.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"

	"shopmaster/backend/internal/domain"
	"shopmaster/backend/internal/invoice"
	"shopmaster/backend/internal/store"
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

func (s *Store) ListProducts(ctx context.Context, shopID string) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sku, name, unit, price, cost_price, stock, category, is_auto_created
		FROM products
		WHERE shop_id = $1
		ORDER BY created_at ASC
	`, shopID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 128)
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.SKU, &p.Name, &p.Unit, &p.Price, &p.CostPrice, &p.Stock, &p.Category, &p.IsAutoCreated); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) GetProduct(ctx context.Context, shopID string, productID string) (*domain.Product, error) {
	var p domain.Product
	err := s.db.QueryRowContext(ctx, `
		SELECT id, sku, name, unit, price, cost_price, stock, category, is_auto_created
		FROM products
		WHERE shop_id = $1 AND id = $2
	`, shopID, productID).Scan(&p.ID, &p.SKU, &p.Name, &p.Unit, &p.Price, &p.CostPrice, &p.Stock, &p.Category, &p.IsAutoCreated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *Store) CreateProduct(ctx context.Context, shopID string, product domain.Product) (*domain.Product, error) {
	product.Name = strings.TrimSpace(product.Name)
	product.Unit = strings.TrimSpace(product.Unit)
	if product.Name == "" || product.Unit == "" {
		return nil, store.ErrInvalidInput
	}
	if product.Price.Sign() < 0 || product.CostPrice.Sign() < 0 || product.Stock.Sign() < 0 {
		return nil, store.ErrInvalidInput
	}
	if product.ID == "" {
		product.ID = invoice.ProductID()
	}
	if product.SKU == "" {
		product.SKU = invoice.SKU()
	}
	if product.Category == "" {
		product.Category = "General"
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (shop_id, id, sku, name, unit, price, cost_price, stock, category, is_auto_created, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,now(),now())
	`, shopID, product.ID, product.SKU, product.Name, product.Unit, product.Price, product.CostPrice, product.Stock, product.Category, product.IsAutoCreated)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidInput
		}
		return nil, err
	}

	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(ctx context.Context, shopID string, productID string, name *string, price *decimal.Decimal) (*domain.Product, error) {
	if name != nil && strings.TrimSpace(*name) == "" {
		return nil, store.ErrInvalidInput
	}
	if price != nil && price.Sign() <= 0 {
		return nil, store.ErrInvalidInput
	}

	var p domain.Product
	err := s.db.QueryRowContext(ctx, `
		UPDATE products
		SET name = COALESCE($3, name), price = COALESCE($4, price), updated_at = now()
		WHERE shop_id = $1 AND id = $2
		RETURNING id, sku, name, unit, price, cost_price, stock, category, is_auto_created
	`, shopID, productID, trimmedOrNil(name), decimalOrNil(price)).Scan(
		&p.ID, &p.SKU, &p.Name, &p.Unit, &p.Price, &p.CostPrice, &p.Stock, &p.Category, &p.IsAutoCreated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *Store) DeleteProduct(ctx context.Context, shopID string, productID string) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM products
		WHERE shop_id = $1 AND id = $2
	`, shopID, productID)
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

func (s *Store) ListCustomers(ctx context.Context, shopID string) ([]domain.Customer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, phone, email, address, created_at
		FROM customers
		WHERE shop_id = $1
		ORDER BY created_at ASC
	`, shopID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	customers := make([]domain.Customer, 0, 64)
	for rows.Next() {
		var c domain.Customer
		if err := rows.Scan(&c.ID, &c.Name, &c.Phone, &c.Email, &c.Address, &c.CreatedAt); err != nil {
			return nil, err
		}
		c.CreatedAt = c.CreatedAt.UTC()
		c.TotalSpent = decimal.Zero
		customers = append(customers, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return customers, nil
}

func (s *Store) GetCustomer(ctx context.Context, shopID string, customerID string) (*domain.Customer, error) {
	return s.findCustomer(ctx, shopID, "id", customerID)
}

func (s *Store) FindCustomerByPhone(ctx context.Context, shopID string, phone string) (*domain.Customer, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return nil, store.ErrNotFound
	}
	return s.findCustomer(ctx, shopID, "phone", phone)
}

func (s *Store) findCustomer(ctx context.Context, shopID string, column string, value string) (*domain.Customer, error) {
	if column != "id" && column != "phone" {
		return nil, store.ErrInvalidInput
	}

	var c domain.Customer
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, phone, email, address, created_at
		FROM customers
		WHERE shop_id = $1 AND `+column+` = $2
	`, shopID, value).Scan(&c.ID, &c.Name, &c.Phone, &c.Email, &c.Address, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	c.CreatedAt = c.CreatedAt.UTC()
	c.TotalSpent = decimal.Zero
	return &c, nil
}

// RegisterCustomer deduplicates on exact phone match inside one transaction:
// a non-empty phone that already exists returns the existing record unchanged.
func (s *Store) RegisterCustomer(ctx context.Context, shopID string, req domain.CustomerRequest) (*domain.Customer, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	phone := strings.TrimSpace(req.Phone)
	if phone != "" {
		var existing domain.Customer
		err := tx.QueryRowContext(ctx, `
			SELECT id, name, phone, email, address, created_at
			FROM customers
			WHERE shop_id = $1 AND phone = $2
		`, shopID, phone).Scan(&existing.ID, &existing.Name, &existing.Phone, &existing.Email, &existing.Address, &existing.CreatedAt)
		if err == nil {
			existing.CreatedAt = existing.CreatedAt.UTC()
			existing.TotalSpent = decimal.Zero
			return &existing, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
	}

	var seq int
	if err := tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM customers WHERE shop_id = $1
	`, shopID).Scan(&seq); err != nil {
		return nil, err
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = "Anonymous"
	}
	customer := domain.Customer{
		ID:         invoice.CustomerID(seq + 1),
		Name:       name,
		Phone:      phone,
		Email:      strings.TrimSpace(req.Email),
		Address:    strings.TrimSpace(req.Address),
		CreatedAt:  time.Now().UTC(),
		TotalSpent: decimal.Zero,
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO customers (shop_id, id, name, phone, email, address, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, shopID, customer.ID, customer.Name, customer.Phone, customer.Email, customer.Address, customer.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &customer, nil
}

func (s *Store) ListSales(ctx context.Context, shopID string) ([]domain.SaleRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, ts, total_amount, status, customer_id, customer_name, customer_phone, cashier_id
		FROM sales
		WHERE shop_id = $1
		ORDER BY ts ASC, id ASC
	`, shopID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]domain.SaleRecord, 0, 64)
	index := make(map[string]int, 64)
	for rows.Next() {
		var sale domain.SaleRecord
		if err := rows.Scan(&sale.ID, &sale.Timestamp, &sale.TotalAmount, &sale.Status,
			&sale.Customer.ID, &sale.Customer.Name, &sale.Customer.Phone, &sale.CashierID); err != nil {
			return nil, err
		}
		sale.Timestamp = sale.Timestamp.UTC()
		sale.Items = make([]domain.SaleItem, 0, 4)
		index[sale.ID] = len(sales)
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	itemRows, err := s.db.QueryContext(ctx, `
		SELECT sale_id, product_id, name, quantity, returned_quantity, price, total, unit
		FROM sale_items
		WHERE shop_id = $1
		ORDER BY sale_id ASC, line_no ASC
	`, shopID)
	if err != nil {
		return nil, err
	}
	defer itemRows.Close()

	for itemRows.Next() {
		var saleID string
		var item domain.SaleItem
		if err := itemRows.Scan(&saleID, &item.ProductID, &item.Name, &item.Quantity, &item.ReturnedQuantity, &item.Price, &item.Total, &item.Unit); err != nil {
			return nil, err
		}
		if i, ok := index[saleID]; ok {
			sales[i].Items = append(sales[i].Items, item)
		}
	}
	if err := itemRows.Err(); err != nil {
		return nil, err
	}
	return sales, nil
}

func (s *Store) GetSale(ctx context.Context, shopID string, saleID string) (*domain.SaleRecord, error) {
	return scanSale(ctx, s.db, shopID, saleID)
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func scanSale(ctx context.Context, q querier, shopID string, saleID string) (*domain.SaleRecord, error) {
	var sale domain.SaleRecord
	err := q.QueryRowContext(ctx, `
		SELECT id, ts, total_amount, status, customer_id, customer_name, customer_phone, cashier_id
		FROM sales
		WHERE shop_id = $1 AND id = $2
	`, shopID, saleID).Scan(&sale.ID, &sale.Timestamp, &sale.TotalAmount, &sale.Status,
		&sale.Customer.ID, &sale.Customer.Name, &sale.Customer.Phone, &sale.CashierID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	sale.Timestamp = sale.Timestamp.UTC()

	rows, err := q.QueryContext(ctx, `
		SELECT product_id, name, quantity, returned_quantity, price, total, unit
		FROM sale_items
		WHERE shop_id = $1 AND sale_id = $2
		ORDER BY line_no ASC
	`, shopID, saleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.SaleItem, 0, 8)
	for rows.Next() {
		var item domain.SaleItem
		if err := rows.Scan(&item.ProductID, &item.Name, &item.Quantity, &item.ReturnedQuantity, &item.Price, &item.Total, &item.Unit); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sale.Items = items
	return &sale, nil
}

// CreateSale validates every line against the catalog, rejects oversell,
// decrements stock and appends the record in one serializable transaction.
func (s *Store) CreateSale(ctx context.Context, shopID string, sale domain.SaleRecord) (*domain.SaleRecord, error) {
	if len(sale.Items) == 0 {
		return nil, store.ErrInvalidInput
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	total := decimal.Zero
	items := make([]domain.SaleItem, 0, len(sale.Items))
	for _, item := range sale.Items {
		if item.Quantity.Sign() <= 0 || item.Price.Sign() < 0 {
			return nil, store.ErrInvalidInput
		}

		var name, unit string
		var stock decimal.Decimal
		err := tx.QueryRowContext(ctx, `
			SELECT name, unit, stock
			FROM products
			WHERE shop_id = $1 AND id = $2
			FOR UPDATE
		`, shopID, item.ProductID).Scan(&name, &unit, &stock)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, store.ErrNotFound
			}
			return nil, err
		}
		if stock.Cmp(item.Quantity) < 0 {
			return nil, store.ErrInsufficientStock
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE products
			SET stock = stock - $3, updated_at = now()
			WHERE shop_id = $1 AND id = $2
		`, shopID, item.ProductID, item.Quantity)
		if err != nil {
			return nil, err
		}

		line := domain.SaleItem{
			ProductID:        item.ProductID,
			Name:             name,
			Quantity:         item.Quantity,
			ReturnedQuantity: decimal.Zero,
			Price:            item.Price,
			Total:            item.Price.Mul(item.Quantity),
			Unit:             unit,
		}
		items = append(items, line)
		total = total.Add(line.Total)
	}

	now := time.Now().UTC()
	if sale.ID == "" {
		var seq int
		if err := tx.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM sales WHERE shop_id = $1
		`, shopID).Scan(&seq); err != nil {
			return nil, err
		}
		sale.ID = invoice.SaleID(now, seq+1)
	}
	if sale.Timestamp.IsZero() {
		sale.Timestamp = now
	}
	sale.Items = items
	sale.TotalAmount = total
	sale.Status = domain.SaleStatusCompleted

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sales (shop_id, id, ts, total_amount, status, customer_id, customer_name, customer_phone, cashier_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, shopID, sale.ID, sale.Timestamp, sale.TotalAmount, sale.Status,
		sale.Customer.ID, sale.Customer.Name, sale.Customer.Phone, sale.CashierID)
	if err != nil {
		return nil, err
	}
	for i, item := range sale.Items {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO sale_items (shop_id, sale_id, line_no, product_id, name, quantity, returned_quantity, price, total, unit)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		`, shopID, sale.ID, i+1, item.ProductID, item.Name, item.Quantity, item.ReturnedQuantity, item.Price, item.Total, item.Unit)
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	created := sale
	return &created, nil
}

func (s *Store) ListPurchases(ctx context.Context, shopID string) ([]domain.PurchaseRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, ts, product_id, product_name, quantity, unit, total_cost, source
		FROM purchases
		WHERE shop_id = $1
		ORDER BY ts ASC, id ASC
	`, shopID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	purchases := make([]domain.PurchaseRecord, 0, 64)
	for rows.Next() {
		var p domain.PurchaseRecord
		if err := rows.Scan(&p.ID, &p.Timestamp, &p.ProductID, &p.ProductName, &p.Quantity, &p.Unit, &p.TotalCost, &p.Source); err != nil {
			return nil, err
		}
		p.Timestamp = p.Timestamp.UTC()
		purchases = append(purchases, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return purchases, nil
}

// CreatePurchase restocks an existing product or creates a new catalog entry
// for an unrecognized one. The unit cost always overwrites the product's cost
// price (latest-cost, not weighted average).
func (s *Store) CreatePurchase(ctx context.Context, shopID string, req domain.PurchaseRequest) (*domain.PurchaseRecord, *domain.Product, error) {
	if req.Quantity.Sign() <= 0 || req.TotalCost.Sign() <= 0 {
		return nil, nil, store.ErrInvalidInput
	}
	if req.Price != nil && req.Price.Sign() <= 0 {
		return nil, nil, store.ErrInvalidInput
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = tx.Rollback() }()

	unitCost := req.TotalCost.Div(req.Quantity)

	var product domain.Product
	found := false
	if req.ProductID != "" {
		err := tx.QueryRowContext(ctx, `
			SELECT id, sku, name, unit, price, cost_price, stock, category, is_auto_created
			FROM products
			WHERE shop_id = $1 AND id = $2
			FOR UPDATE
		`, shopID, req.ProductID).Scan(&product.ID, &product.SKU, &product.Name, &product.Unit,
			&product.Price, &product.CostPrice, &product.Stock, &product.Category, &product.IsAutoCreated)
		if err == nil {
			found = true
		} else if !errors.Is(err, sql.ErrNoRows) {
			return nil, nil, err
		}
	}

	if !found {
		if req.NewProduct == nil {
			return nil, nil, store.ErrNotFound
		}
		name := strings.TrimSpace(req.NewProduct.Name)
		unit := strings.TrimSpace(req.NewProduct.Unit)
		if name == "" || unit == "" {
			return nil, nil, store.ErrInvalidInput
		}
		price := unitCost.Mul(decimal.NewFromFloat(1.2))
		if req.NewProduct.Price != nil && req.NewProduct.Price.Sign() > 0 {
			price = *req.NewProduct.Price
		}
		product = domain.Product{
			ID:            invoice.ProductID(),
			SKU:           invoice.SKU(),
			Name:          name,
			Unit:          unit,
			Price:         price,
			CostPrice:     unitCost,
			Stock:         req.Quantity,
			Category:      "General",
			IsAutoCreated: true,
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO products (shop_id, id, sku, name, unit, price, cost_price, stock, category, is_auto_created, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,now(),now())
		`, shopID, product.ID, product.SKU, product.Name, product.Unit, product.Price, product.CostPrice, product.Stock, product.Category, product.IsAutoCreated)
		if err != nil {
			return nil, nil, err
		}
	} else {
		product.Stock = product.Stock.Add(req.Quantity)
		product.CostPrice = unitCost
		if req.Price != nil {
			product.Price = *req.Price
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE products
			SET stock = $3, cost_price = $4, price = $5, updated_at = now()
			WHERE shop_id = $1 AND id = $2
		`, shopID, product.ID, product.Stock, product.CostPrice, product.Price)
		if err != nil {
			return nil, nil, err
		}
	}

	var seq int
	if err := tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM purchases WHERE shop_id = $1
	`, shopID).Scan(&seq); err != nil {
		return nil, nil, err
	}

	now := time.Now().UTC()
	purchase := domain.PurchaseRecord{
		ID:          invoice.PurchaseID(now, seq+1),
		Timestamp:   now,
		ProductID:   product.ID,
		ProductName: product.Name,
		Quantity:    req.Quantity,
		Unit:        product.Unit,
		TotalCost:   req.TotalCost,
		Source:      strings.TrimSpace(req.Source),
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO purchases (shop_id, id, ts, product_id, product_name, quantity, unit, total_cost, source)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, shopID, purchase.ID, purchase.Timestamp, purchase.ProductID, purchase.ProductName, purchase.Quantity, purchase.Unit, purchase.TotalCost, purchase.Source)
	if err != nil {
		return nil, nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, err
	}
	createdPurchase := purchase
	createdProduct := product
	return &createdPurchase, &createdProduct, nil
}

func (s *Store) ListReturns(ctx context.Context, shopID string) ([]domain.ReturnRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sale_id, customer_id, ts, refund_amount
		FROM returns
		WHERE shop_id = $1
		ORDER BY ts ASC, id ASC
	`, shopID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	returns := make([]domain.ReturnRecord, 0, 32)
	index := make(map[string]int, 32)
	for rows.Next() {
		var ret domain.ReturnRecord
		if err := rows.Scan(&ret.ID, &ret.SaleID, &ret.CustomerID, &ret.Timestamp, &ret.RefundAmount); err != nil {
			return nil, err
		}
		ret.Timestamp = ret.Timestamp.UTC()
		ret.Items = make([]domain.SaleItem, 0, 4)
		index[ret.ID] = len(returns)
		returns = append(returns, ret)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	itemRows, err := s.db.QueryContext(ctx, `
		SELECT return_id, product_id, name, quantity, price, total, unit
		FROM return_items
		WHERE shop_id = $1
		ORDER BY return_id ASC, line_no ASC
	`, shopID)
	if err != nil {
		return nil, err
	}
	defer itemRows.Close()

	for itemRows.Next() {
		var returnID string
		var item domain.SaleItem
		if err := itemRows.Scan(&returnID, &item.ProductID, &item.Name, &item.Quantity, &item.Price, &item.Total, &item.Unit); err != nil {
			return nil, err
		}
		if i, ok := index[returnID]; ok {
			returns[i].Items = append(returns[i].Items, item)
		}
	}
	if err := itemRows.Err(); err != nil {
		return nil, err
	}
	return returns, nil
}

// CreateReturn refunds at the original sale price, bumps the sale items'
// returned quantities, restocks inventory and appends the return record.
// The sale status becomes PARTIAL_RETURN even when everything was returned.
func (s *Store) CreateReturn(ctx context.Context, shopID string, req domain.ReturnRequest) (*domain.ReturnRecord, *domain.SaleRecord, error) {
	if strings.TrimSpace(req.SaleID) == "" || len(req.Items) == 0 {
		return nil, nil, store.ErrInvalidInput
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var saleCustomerID string
	err = tx.QueryRowContext(ctx, `
		SELECT customer_id
		FROM sales
		WHERE shop_id = $1 AND id = $2
		FOR UPDATE
	`, shopID, req.SaleID).Scan(&saleCustomerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, store.ErrNotFound
		}
		return nil, nil, err
	}

	type saleLine struct {
		lineNo   int
		name     string
		unit     string
		quantity decimal.Decimal
		returned decimal.Decimal
		price    decimal.Decimal
	}
	lineRows, err := tx.QueryContext(ctx, `
		SELECT line_no, product_id, name, unit, quantity, returned_quantity, price
		FROM sale_items
		WHERE shop_id = $1 AND sale_id = $2
		FOR UPDATE
	`, shopID, req.SaleID)
	if err != nil {
		return nil, nil, err
	}
	lines := make(map[string]saleLine, 8)
	for lineRows.Next() {
		var line saleLine
		var productID string
		if err := lineRows.Scan(&line.lineNo, &productID, &line.name, &line.unit, &line.quantity, &line.returned, &line.price); err != nil {
			_ = lineRows.Close()
			return nil, nil, err
		}
		lines[productID] = line
	}
	if err := lineRows.Err(); err != nil {
		_ = lineRows.Close()
		return nil, nil, err
	}
	_ = lineRows.Close()

	qtyByProduct := make(map[string]decimal.Decimal, len(req.Items))
	orderedProducts := make([]string, 0, len(req.Items))
	for _, item := range req.Items {
		if item.Quantity.Sign() <= 0 {
			return nil, nil, store.ErrInvalidInput
		}
		if _, seen := qtyByProduct[item.ProductID]; !seen {
			orderedProducts = append(orderedProducts, item.ProductID)
		}
		qtyByProduct[item.ProductID] = qtyByProduct[item.ProductID].Add(item.Quantity)
	}

	refund := decimal.Zero
	returnItems := make([]domain.SaleItem, 0, len(orderedProducts))
	for _, productID := range orderedProducts {
		qty := qtyByProduct[productID]
		line, exists := lines[productID]
		if !exists {
			return nil, nil, store.ErrNotFound
		}
		remaining := line.quantity.Sub(line.returned)
		if qty.Cmp(remaining) > 0 {
			return nil, nil, store.ErrOverReturn
		}
		returnItems = append(returnItems, domain.SaleItem{
			ProductID: productID,
			Name:      line.name,
			Quantity:  qty,
			Price:     line.price,
			Total:     line.price.Mul(qty),
			Unit:      line.unit,
		})
		refund = refund.Add(line.price.Mul(qty))
	}

	// All checks passed; apply the mutation.
	for _, productID := range orderedProducts {
		qty := qtyByProduct[productID]
		line := lines[productID]
		_, err = tx.ExecContext(ctx, `
			UPDATE sale_items
			SET returned_quantity = returned_quantity + $4
			WHERE shop_id = $1 AND sale_id = $2 AND line_no = $3
		`, shopID, req.SaleID, line.lineNo, qty)
		if err != nil {
			return nil, nil, err
		}
		// Restocks only while the product still exists in the catalog;
		// a delisted product's refund is honored without it.
		_, err = tx.ExecContext(ctx, `
			UPDATE products
			SET stock = stock + $3, updated_at = now()
			WHERE shop_id = $1 AND id = $2
		`, shopID, productID, qty)
		if err != nil {
			return nil, nil, err
		}
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE sales
		SET status = $3
		WHERE shop_id = $1 AND id = $2
	`, shopID, req.SaleID, domain.SaleStatusPartialReturn)
	if err != nil {
		return nil, nil, err
	}

	var seq int
	if err := tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM returns WHERE shop_id = $1
	`, shopID).Scan(&seq); err != nil {
		return nil, nil, err
	}

	now := time.Now().UTC()
	ret := domain.ReturnRecord{
		ID:           invoice.ReturnID(now, seq+1),
		SaleID:       req.SaleID,
		CustomerID:   saleCustomerID,
		Timestamp:    now,
		Items:        returnItems,
		RefundAmount: refund,
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO returns (shop_id, id, sale_id, customer_id, ts, refund_amount)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, shopID, ret.ID, ret.SaleID, ret.CustomerID, ret.Timestamp, ret.RefundAmount)
	if err != nil {
		return nil, nil, err
	}
	for i, item := range ret.Items {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO return_items (shop_id, return_id, line_no, product_id, name, quantity, price, total, unit)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		`, shopID, ret.ID, i+1, item.ProductID, item.Name, item.Quantity, item.Price, item.Total, item.Unit)
		if err != nil {
			return nil, nil, err
		}
	}

	updatedSale, err := scanSale(ctx, tx, shopID, req.SaleID)
	if err != nil {
		return nil, nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, err
	}
	created := ret
	return &created, updatedSale, nil
}

func (s *Store) OpenCashSession(ctx context.Context, shopID string, openingCash decimal.Decimal) (*domain.CashSession, error) {
	if openingCash.Sign() < 0 {
		return nil, store.ErrInvalidInput
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var open int
	if err := tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM cash_sessions WHERE shop_id = $1 AND status = $2
	`, shopID, domain.SessionStatusOpen).Scan(&open); err != nil {
		return nil, err
	}
	if open > 0 {
		return nil, store.ErrInvalidInput
	}

	session := domain.CashSession{
		ID:          invoice.SessionID(),
		StartTime:   time.Now().UTC(),
		OpeningCash: openingCash,
		Status:      domain.SessionStatusOpen,
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO cash_sessions (shop_id, id, start_time, opening_cash, status)
		VALUES ($1,$2,$3,$4,$5)
	`, shopID, session.ID, session.StartTime, session.OpeningCash, session.Status)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	opened := session
	return &opened, nil
}

func (s *Store) CloseCashSession(ctx context.Context, shopID string, closingCash decimal.Decimal, closedAt time.Time) (*domain.CashSession, error) {
	if closedAt.IsZero() {
		closedAt = time.Now().UTC()
	}

	var session domain.CashSession
	var endTime sql.NullTime
	var closing decimal.NullDecimal
	err := s.db.QueryRowContext(ctx, `
		UPDATE cash_sessions
		SET status = $3, end_time = $4, closing_cash = $5
		WHERE shop_id = $1 AND status = $2
		RETURNING id, start_time, end_time, opening_cash, closing_cash, status
	`, shopID, domain.SessionStatusOpen, domain.SessionStatusClosed, closedAt, closingCash).Scan(
		&session.ID, &session.StartTime, &endTime, &session.OpeningCash, &closing, &session.Status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	session.StartTime = session.StartTime.UTC()
	if endTime.Valid {
		at := endTime.Time.UTC()
		session.EndTime = &at
	}
	if closing.Valid {
		amount := closing.Decimal
		session.ClosingCash = &amount
	}
	return &session, nil
}

func (s *Store) GetActiveCashSession(ctx context.Context, shopID string) (*domain.CashSession, error) {
	var session domain.CashSession
	err := s.db.QueryRowContext(ctx, `
		SELECT id, start_time, opening_cash, status
		FROM cash_sessions
		WHERE shop_id = $1 AND status = $2
		ORDER BY start_time DESC
		LIMIT 1
	`, shopID, domain.SessionStatusOpen).Scan(&session.ID, &session.StartTime, &session.OpeningCash, &session.Status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	session.StartTime = session.StartTime.UTC()
	return &session, nil
}

func (s *Store) GetLedgerTotals(ctx context.Context, shopID string) (domain.LedgerTotals, error) {
	totals := domain.LedgerTotals{
		Sales:     decimal.Zero,
		Purchases: decimal.Zero,
		Refunds:   decimal.Zero,
	}

	err := s.db.QueryRowContext(ctx, `
		SELECT
			COALESCE((SELECT SUM(total_amount) FROM sales WHERE shop_id = $1), 0),
			COALESCE((SELECT SUM(total_cost) FROM purchases WHERE shop_id = $1), 0),
			COALESCE((SELECT SUM(refund_amount) FROM returns WHERE shop_id = $1), 0)
	`, shopID).Scan(&totals.Sales, &totals.Purchases, &totals.Refunds)
	if err != nil {
		return totals, err
	}
	return totals, nil
}

func (s *Store) CreateClient(ctx context.Context, client domain.Client) (*domain.Client, error) {
	client.OwnerName = strings.TrimSpace(client.OwnerName)
	client.ShopName = strings.TrimSpace(client.ShopName)
	client.Phone = strings.TrimSpace(client.Phone)
	if client.OwnerName == "" || client.ShopName == "" || client.Phone == "" {
		return nil, store.ErrInvalidInput
	}
	if client.ID == "" {
		client.ID = invoice.Ref("client")
	}
	if client.CreatedAt.IsZero() {
		client.CreatedAt = time.Now().UTC()
	}
	if client.Billing.PaymentStatus == "" {
		client.Billing.PaymentStatus = domain.PaymentStatusUnpaid
	}
	if client.Billing.History == nil {
		client.Billing.History = []domain.BillingPayment{}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO clients (
			id, owner_name, shop_name, shop_serial_number, market_name, phone, password,
			division, district, thana, rent_amount, billing_date, due_date, payment_status, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
	`, client.ID, client.OwnerName, client.ShopName, client.ShopSerialNumber, client.MarketName,
		client.Phone, client.Password, client.Division, client.District, client.Thana,
		client.Billing.RentAmount, client.Billing.BillingDate, client.Billing.DueDate,
		client.Billing.PaymentStatus, client.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidInput
		}
		return nil, err
	}
	created := client
	return &created, nil
}

func (s *Store) UpdateClient(ctx context.Context, clientID string, req domain.ClientUpdateRequest) (*domain.Client, error) {
	if req.Phone != nil && strings.TrimSpace(*req.Phone) == "" {
		return nil, store.ErrInvalidInput
	}
	if req.RentAmount != nil && req.RentAmount.Sign() < 0 {
		return nil, store.ErrInvalidInput
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE clients
		SET owner_name = COALESCE($2, owner_name),
			shop_name = COALESCE($3, shop_name),
			market_name = COALESCE($4, market_name),
			phone = COALESCE($5, phone),
			password = COALESCE($6, password),
			division = COALESCE($7, division),
			district = COALESCE($8, district),
			thana = COALESCE($9, thana),
			rent_amount = COALESCE($10, rent_amount),
			due_date = COALESCE($11, due_date)
		WHERE id = $1
	`, clientID, trimmedOrNil(req.OwnerName), trimmedOrNil(req.ShopName), trimmedOrNil(req.MarketName),
		trimmedOrNil(req.Phone), stringOrNil(req.Password), trimmedOrNil(req.Division), trimmedOrNil(req.District),
		trimmedOrNil(req.Thana), decimalOrNil(req.RentAmount), trimmedOrNil(req.DueDate))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidInput
		}
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}
	return s.GetClient(ctx, clientID)
}

func (s *Store) GetClient(ctx context.Context, clientID string) (*domain.Client, error) {
	return s.findClient(ctx, "id", clientID)
}

func (s *Store) FindClientByPhone(ctx context.Context, phone string) (*domain.Client, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return nil, store.ErrNotFound
	}
	return s.findClient(ctx, "phone", phone)
}

func (s *Store) findClient(ctx context.Context, column string, value string) (*domain.Client, error) {
	if column != "id" && column != "phone" {
		return nil, store.ErrInvalidInput
	}

	var client domain.Client
	err := s.db.QueryRowContext(ctx, `
		SELECT id, owner_name, shop_name, shop_serial_number, market_name, phone, password,
			division, district, thana, rent_amount, billing_date, due_date, payment_status, created_at
		FROM clients
		WHERE `+column+` = $1
	`, value).Scan(&client.ID, &client.OwnerName, &client.ShopName, &client.ShopSerialNumber,
		&client.MarketName, &client.Phone, &client.Password, &client.Division, &client.District,
		&client.Thana, &client.Billing.RentAmount, &client.Billing.BillingDate, &client.Billing.DueDate,
		&client.Billing.PaymentStatus, &client.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	client.CreatedAt = client.CreatedAt.UTC()

	history, err := s.listClientPayments(ctx, client.ID)
	if err != nil {
		return nil, err
	}
	client.Billing.History = history
	return &client, nil
}

func (s *Store) listClientPayments(ctx context.Context, clientID string) ([]domain.BillingPayment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT paid_at, amount, status, invoice_id
		FROM client_payments
		WHERE client_id = $1
		ORDER BY paid_at ASC, invoice_id ASC
	`, clientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	history := make([]domain.BillingPayment, 0, 8)
	for rows.Next() {
		var payment domain.BillingPayment
		if err := rows.Scan(&payment.Date, &payment.Amount, &payment.Status, &payment.InvoiceID); err != nil {
			return nil, err
		}
		payment.Date = payment.Date.UTC()
		history = append(history, payment)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return history, nil
}

func (s *Store) ListClients(ctx context.Context) ([]domain.Client, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id
		FROM clients
		ORDER BY created_at ASC, id ASC
	`)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, 32)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			_ = rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	clients := make([]domain.Client, 0, len(ids))
	for _, id := range ids {
		client, err := s.GetClient(ctx, id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			return nil, err
		}
		clients = append(clients, *client)
	}
	return clients, nil
}

// RecordClientPayment appends to the billing history (append-only, no void)
// and flips paymentStatus to PAID only when this single payment covers the
// full rent amount. Partial payments leave the prior status untouched.
func (s *Store) RecordClientPayment(ctx context.Context, clientID string, payment domain.BillingPayment) (*domain.Client, error) {
	if payment.Amount.Sign() <= 0 {
		return nil, store.ErrInvalidInput
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var rentAmount decimal.Decimal
	err = tx.QueryRowContext(ctx, `
		SELECT rent_amount
		FROM clients
		WHERE id = $1
		FOR UPDATE
	`, clientID).Scan(&rentAmount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	if payment.Date.IsZero() {
		payment.Date = time.Now().UTC()
	}
	if payment.InvoiceID == "" {
		payment.InvoiceID = invoice.PaymentID()
	}
	payment.Status = domain.PaymentStatusPaid

	_, err = tx.ExecContext(ctx, `
		INSERT INTO client_payments (client_id, invoice_id, amount, status, paid_at)
		VALUES ($1,$2,$3,$4,$5)
	`, clientID, payment.InvoiceID, payment.Amount, payment.Status, payment.Date)
	if err != nil {
		return nil, err
	}

	if payment.Amount.Cmp(rentAmount) >= 0 {
		_, err = tx.ExecContext(ctx, `
			UPDATE clients
			SET payment_status = $2
			WHERE id = $1
		`, clientID, domain.PaymentStatusPaid)
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return s.GetClient(ctx, clientID)
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = invoice.Ref("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (
			id, shop_id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, entry.ID, entry.ShopID, entry.ActorUsername, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, shopID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, shop_id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE ($1 = '' OR shop_id = $1)
			AND created_at >= $2
			AND created_at < $3
		ORDER BY created_at DESC
		LIMIT $4
	`, shopID, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.ShopID, &entry.ActorUsername, &entry.ActorRole, &entry.Action, &entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return logs, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidInput
	}
	if user.Role == "" {
		user.Role = "admin"
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_users (username, password, role, active, created_at, updated_at)
		VALUES ($1,$2,$3,true,$4,now())
	`, username, user.Password, user.Role, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrInvalidInput
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM app_users
		ORDER BY username ASC
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
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidInput
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE app_users
		SET password = $2, updated_at = now()
		WHERE username = $1
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

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func trimmedOrNil(v *string) any {
	if v == nil {
		return nil
	}
	return strings.TrimSpace(*v)
}

func stringOrNil(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

func decimalOrNil(v *decimal.Decimal) any {
	if v == nil {
		return nil
	}
	return *v
}
