package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rl1809/checkout-engine/internal/core/domain"
	"github.com/rl1809/checkout-engine/internal/port"
)

var ErrOptimisticLock = errors.New("optimistic lock conflict")

var schema = []string{
	`CREATE TABLE IF NOT EXISTS products (
		id BIGINT PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		unit_price DECIMAL(12,2) NOT NULL,
		quantity INT NOT NULL,
		brand_id BIGINT NOT NULL DEFAULT 0,
		category_id BIGINT NOT NULL DEFAULT 0,
		version INT NOT NULL DEFAULT 0,
		created_at DATETIME(6) NOT NULL,
		updated_at DATETIME(6) NOT NULL,
		CHECK (quantity >= 0)
	)`,
	`CREATE TABLE IF NOT EXISTS customers (
		id BIGINT PRIMARY KEY,
		username VARCHAR(255) NOT NULL,
		email VARCHAR(255) NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS addresses (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		street VARCHAR(255) NOT NULL,
		zip VARCHAR(32) NOT NULL,
		country VARCHAR(64) NOT NULL,
		province VARCHAR(64) NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS basket_lines (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		customer_id BIGINT NOT NULL,
		product_id BIGINT NOT NULL,
		quantity INT NOT NULL,
		created_at DATETIME(6) NOT NULL,
		updated_at DATETIME(6) NOT NULL,
		UNIQUE KEY uq_basket_customer_product (customer_id, product_id)
	)`,
	`CREATE TABLE IF NOT EXISTS orders (
		id CHAR(36) PRIMARY KEY,
		customer_id BIGINT NULL,
		guest_email VARCHAR(255) NOT NULL DEFAULT '',
		address_id BIGINT NOT NULL,
		status VARCHAR(16) NOT NULL,
		total DECIMAL(12,2) NOT NULL,
		created_at DATETIME(6) NOT NULL,
		updated_at DATETIME(6) NOT NULL,
		KEY idx_orders_customer (customer_id, created_at),
		KEY idx_orders_status (status)
	)`,
	`CREATE TABLE IF NOT EXISTS order_lines (
		order_id CHAR(36) NOT NULL,
		product_id BIGINT NOT NULL,
		product_name VARCHAR(255) NOT NULL,
		quantity INT NOT NULL,
		unit_price DECIMAL(12,2) NOT NULL,
		PRIMARY KEY (order_id, product_id)
	)`,
}

// EnsureSchema creates the tables used by MySQLAdapter if they are missing.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

var (
	_ port.Catalog           = (*MySQLAdapter)(nil)
	_ port.CustomerDirectory = (*MySQLAdapter)(nil)
	_ port.AddressRepository = (*MySQLAdapter)(nil)
	_ port.StockLedger       = (*MySQLAdapter)(nil)
	_ port.BasketRepository  = (*MySQLAdapter)(nil)
	_ port.OrderRepository   = (*MySQLAdapter)(nil)
	_ port.Transactor        = (*MySQLAdapter)(nil)
)

// MySQLAdapter is the authoritative store. Every port method joins the
// transaction started by WithinTx when one is present in ctx.
type MySQLAdapter struct {
	db  *sql.DB
	now func() time.Time
}

func NewMySQLAdapter(db *sql.DB) *MySQLAdapter {
	return &MySQLAdapter{db: db, now: time.Now}
}

type txKey struct{}

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (m *MySQLAdapter) conn(ctx context.Context) queryer {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return tx
	}
	return m.db
}

func (m *MySQLAdapter) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return fn(ctx)
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// --- catalog ---

const productColumns = `id, name, unit_price, quantity, brand_id, category_id, version, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanProduct(row scanner) (domain.Product, error) {
	var p domain.Product
	err := row.Scan(&p.ID, &p.Name, &p.UnitPrice, &p.Quantity, &p.BrandID, &p.CategoryID,
		&p.Version, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (m *MySQLAdapter) GetProduct(ctx context.Context, id int64) (domain.Product, error) {
	p, err := scanProduct(m.conn(ctx).QueryRowContext(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Product{}, domain.NewNotFound("product", id)
	}
	if err != nil {
		return domain.Product{}, fmt.Errorf("query product: %w", err)
	}
	return p, nil
}

func (m *MySQLAdapter) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := m.conn(ctx).QueryContext(ctx, `SELECT `+productColumns+` FROM products ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	var out []domain.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// PutProduct inserts or replaces a product, including its quantity.
func (m *MySQLAdapter) PutProduct(ctx context.Context, p domain.Product) error {
	now := m.now()
	_, err := m.conn(ctx).ExecContext(ctx, `
		INSERT INTO products (id, name, unit_price, quantity, brand_id, category_id, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?)
		ON DUPLICATE KEY UPDATE name = VALUES(name), unit_price = VALUES(unit_price),
			quantity = VALUES(quantity), brand_id = VALUES(brand_id), category_id = VALUES(category_id),
			version = version + 1, updated_at = VALUES(updated_at)`,
		p.ID, p.Name, p.UnitPrice, p.Quantity, p.BrandID, p.CategoryID, now, now,
	)
	if err != nil {
		return fmt.Errorf("upsert product: %w", err)
	}
	return nil
}

// SaveProduct updates descriptive fields. Quantity is owned by the stock
// ledger and is not written here.
func (m *MySQLAdapter) SaveProduct(ctx context.Context, p domain.Product) error {
	result, err := m.conn(ctx).ExecContext(ctx, `
		UPDATE products
		SET name = ?, unit_price = ?, brand_id = ?, category_id = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`,
		p.Name, p.UnitPrice, p.BrandID, p.CategoryID, m.now(), p.ID, p.Version,
	)
	if err != nil {
		return fmt.Errorf("update product: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update product: %w", err)
	}
	if rows == 0 {
		if _, err := m.GetProduct(ctx, p.ID); err != nil {
			return err
		}
		return ErrOptimisticLock
	}

	return nil
}

func (m *MySQLAdapter) PutCustomer(ctx context.Context, c domain.Customer) error {
	_, err := m.conn(ctx).ExecContext(ctx, `
		INSERT INTO customers (id, username, email) VALUES (?, ?, ?)
		ON DUPLICATE KEY UPDATE username = VALUES(username), email = VALUES(email)`,
		c.ID, c.Username, c.Email,
	)
	if err != nil {
		return fmt.Errorf("upsert customer: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) GetCustomer(ctx context.Context, id int64) (domain.Customer, error) {
	var c domain.Customer
	err := m.conn(ctx).QueryRowContext(ctx,
		`SELECT id, username, email FROM customers WHERE id = ?`, id,
	).Scan(&c.ID, &c.Username, &c.Email)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Customer{}, domain.NewNotFound("customer", id)
	}
	if err != nil {
		return domain.Customer{}, fmt.Errorf("query customer: %w", err)
	}
	return c, nil
}

func (m *MySQLAdapter) SaveAddress(ctx context.Context, a domain.Address) (domain.Address, error) {
	result, err := m.conn(ctx).ExecContext(ctx, `
		INSERT INTO addresses (street, zip, country, province) VALUES (?, ?, ?, ?)`,
		a.Street, a.Zip, a.Country, a.Province,
	)
	if err != nil {
		return domain.Address{}, fmt.Errorf("insert address: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return domain.Address{}, fmt.Errorf("address id: %w", err)
	}
	a.ID = id
	return a, nil
}

// --- stock ledger ---

func (m *MySQLAdapter) Get(ctx context.Context, productID int64) (domain.Product, error) {
	return m.GetProduct(ctx, productID)
}

func (m *MySQLAdapter) CheckAndReserve(ctx context.Context, productID int64, quantity int) (domain.Product, error) {
	products, err := m.ReserveAll(ctx, []domain.Reservation{{ProductID: productID, Quantity: quantity}})
	if err != nil {
		return domain.Product{}, err
	}
	return products[productID], nil
}

// ReserveAll decrements every line with a conditional update, in ascending
// product order. The first line that cannot be served aborts the transaction.
func (m *MySQLAdapter) ReserveAll(ctx context.Context, reservations []domain.Reservation) (map[int64]domain.Product, error) {
	reservations = domain.NormalizeReservations(reservations)
	out := make(map[int64]domain.Product, len(reservations))

	err := m.WithinTx(ctx, func(ctx context.Context) error {
		q := m.conn(ctx)
		now := m.now()

		for _, r := range reservations {
			if r.Quantity <= 0 {
				return domain.ErrInvalidQuantity
			}

			result, err := q.ExecContext(ctx, `
				UPDATE products
				SET quantity = quantity - ?, updated_at = ?
				WHERE id = ? AND quantity >= ?`,
				r.Quantity, now, r.ProductID, r.Quantity,
			)
			if err != nil {
				return fmt.Errorf("update stock: %w", err)
			}

			rows, err := result.RowsAffected()
			if err != nil {
				return fmt.Errorf("update stock: %w", err)
			}
			if rows == 0 {
				p, err := m.GetProduct(ctx, r.ProductID)
				if err != nil {
					return err
				}
				return &domain.InsufficientStockError{ProductID: r.ProductID, Available: p.Quantity, Requested: r.Quantity}
			}
		}

		for _, r := range reservations {
			p, err := m.GetProduct(ctx, r.ProductID)
			if err != nil {
				return err
			}
			out[r.ProductID] = p
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (m *MySQLAdapter) Restore(ctx context.Context, productID int64, quantity int) error {
	result, err := m.conn(ctx).ExecContext(ctx, `
		UPDATE products
		SET quantity = LEAST(quantity + ?, 2147483647), updated_at = ?
		WHERE id = ?`,
		quantity, m.now(), productID,
	)
	if err != nil {
		return fmt.Errorf("restore stock: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("restore stock: %w", err)
	}
	if rows == 0 {
		_, err := m.GetProduct(ctx, productID)
		return err
	}
	return nil
}

// --- basket ---

const lineColumns = `id, customer_id, product_id, quantity, created_at, updated_at`

func scanLine(row scanner) (domain.BasketLine, error) {
	var l domain.BasketLine
	err := row.Scan(&l.ID, &l.CustomerID, &l.ProductID, &l.Quantity, &l.CreatedAt, &l.UpdatedAt)
	return l, err
}

// UpsertLine locks the (customer, product) row, creating a zero placeholder
// when it is missing, and stores the quantity returned by fn.
func (m *MySQLAdapter) UpsertLine(ctx context.Context, customerID, productID int64, fn func(current int) (int, error)) (domain.BasketLine, error) {
	var line domain.BasketLine

	err := m.WithinTx(ctx, func(ctx context.Context) error {
		q := m.conn(ctx)
		now := m.now()

		_, err := q.ExecContext(ctx, `
			INSERT INTO basket_lines (customer_id, product_id, quantity, created_at, updated_at)
			VALUES (?, ?, 0, ?, ?)
			ON DUPLICATE KEY UPDATE id = id`,
			customerID, productID, now, now,
		)
		if err != nil {
			return fmt.Errorf("insert basket line: %w", err)
		}

		line, err = scanLine(q.QueryRowContext(ctx, `
			SELECT `+lineColumns+` FROM basket_lines
			WHERE customer_id = ? AND product_id = ? FOR UPDATE`,
			customerID, productID,
		))
		if err != nil {
			return fmt.Errorf("lock basket line: %w", err)
		}

		// a rejected fn rolls the placeholder back with the tx
		qty, err := fn(line.Quantity)
		if err != nil {
			return err
		}

		if _, err := q.ExecContext(ctx,
			`UPDATE basket_lines SET quantity = ?, updated_at = ? WHERE id = ?`, qty, now, line.ID,
		); err != nil {
			return fmt.Errorf("update basket line: %w", err)
		}
		line.Quantity = qty
		line.UpdatedAt = now
		return nil
	})
	if err != nil {
		return domain.BasketLine{}, err
	}
	return line, nil
}

func (m *MySQLAdapter) UpdateLine(ctx context.Context, lineID int64, fn func(line domain.BasketLine) (int, error)) (domain.BasketLine, error) {
	var line domain.BasketLine

	err := m.WithinTx(ctx, func(ctx context.Context) error {
		q := m.conn(ctx)

		var err error
		line, err = scanLine(q.QueryRowContext(ctx,
			`SELECT `+lineColumns+` FROM basket_lines WHERE id = ? AND quantity > 0 FOR UPDATE`, lineID))
		if errors.Is(err, sql.ErrNoRows) {
			return domain.NewNotFound("basket line", lineID)
		}
		if err != nil {
			return fmt.Errorf("lock basket line: %w", err)
		}

		qty, err := fn(line)
		if err != nil {
			return err
		}

		now := m.now()
		if _, err := q.ExecContext(ctx,
			`UPDATE basket_lines SET quantity = ?, updated_at = ? WHERE id = ?`, qty, now, lineID,
		); err != nil {
			return fmt.Errorf("update basket line: %w", err)
		}
		line.Quantity = qty
		line.UpdatedAt = now
		return nil
	})
	if err != nil {
		return domain.BasketLine{}, err
	}
	return line, nil
}

func (m *MySQLAdapter) ListLines(ctx context.Context, customerID int64) ([]domain.BasketLine, error) {
	return m.queryLines(ctx, `
		SELECT `+lineColumns+` FROM basket_lines
		WHERE customer_id = ? AND quantity > 0 ORDER BY id`, customerID)
}

// LockLines takes row locks on the customer's lines. A merge from another
// connection waits until the caller's transaction ends.
func (m *MySQLAdapter) LockLines(ctx context.Context, customerID int64) ([]domain.BasketLine, error) {
	return m.queryLines(ctx, `
		SELECT `+lineColumns+` FROM basket_lines
		WHERE customer_id = ? AND quantity > 0 ORDER BY id FOR UPDATE`, customerID)
}

func (m *MySQLAdapter) queryLines(ctx context.Context, query string, args ...any) ([]domain.BasketLine, error) {
	rows, err := m.conn(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query basket: %w", err)
	}
	defer rows.Close()

	var out []domain.BasketLine
	for rows.Next() {
		l, err := scanLine(rows)
		if err != nil {
			return nil, fmt.Errorf("scan basket line: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (m *MySQLAdapter) CountLines(ctx context.Context, customerID int64) (int, error) {
	var n int
	err := m.conn(ctx).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM basket_lines WHERE customer_id = ? AND quantity > 0`, customerID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count basket: %w", err)
	}
	return n, nil
}

// ConsumeLines deletes before decrementing, so a decremented remainder is
// never compared against the consumed quantity.
func (m *MySQLAdapter) ConsumeLines(ctx context.Context, consumed []domain.BasketLine) error {
	return m.WithinTx(ctx, func(ctx context.Context) error {
		q := m.conn(ctx)
		now := m.now()

		for _, c := range consumed {
			if _, err := q.ExecContext(ctx,
				`DELETE FROM basket_lines WHERE id = ? AND quantity <= ?`, c.ID, c.Quantity,
			); err != nil {
				return fmt.Errorf("delete basket line: %w", err)
			}
			if _, err := q.ExecContext(ctx, `
				UPDATE basket_lines SET quantity = quantity - ?, updated_at = ?
				WHERE id = ? AND quantity > ?`,
				c.Quantity, now, c.ID, c.Quantity,
			); err != nil {
				return fmt.Errorf("consume basket line: %w", err)
			}
		}
		return nil
	})
}

func (m *MySQLAdapter) DeleteLines(ctx context.Context, lineIDs ...int64) error {
	if len(lineIDs) == 0 {
		return nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(lineIDs)), ",")
	args := make([]any, len(lineIDs))
	for i, id := range lineIDs {
		args[i] = id
	}

	if _, err := m.conn(ctx).ExecContext(ctx,
		`DELETE FROM basket_lines WHERE id IN (`+placeholders+`)`, args...,
	); err != nil {
		return fmt.Errorf("delete basket lines: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) ClearBasket(ctx context.Context, customerID int64) error {
	if _, err := m.conn(ctx).ExecContext(ctx,
		`DELETE FROM basket_lines WHERE customer_id = ?`, customerID,
	); err != nil {
		return fmt.Errorf("clear basket: %w", err)
	}
	return nil
}

// --- orders ---

func (m *MySQLAdapter) CreateOrder(ctx context.Context, order domain.Order) error {
	return m.WithinTx(ctx, func(ctx context.Context) error {
		q := m.conn(ctx)

		_, err := q.ExecContext(ctx, `
			INSERT INTO orders (id, customer_id, guest_email, address_id, status, total, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			order.ID, order.CustomerID, order.GuestEmail, order.Address.ID, order.Status, order.Total,
			order.CreatedAt, order.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert order: %w", err)
		}

		for _, l := range order.Lines {
			_, err := q.ExecContext(ctx, `
				INSERT INTO order_lines (order_id, product_id, product_name, quantity, unit_price)
				VALUES (?, ?, ?, ?, ?)`,
				order.ID, l.ProductID, l.ProductName, l.Quantity, l.UnitPrice,
			)
			if err != nil {
				return fmt.Errorf("insert order line: %w", err)
			}
		}
		return nil
	})
}

const orderSelect = `
	SELECT o.id, o.customer_id, o.guest_email, o.status, o.total, o.created_at, o.updated_at,
		a.id, a.street, a.zip, a.country, a.province
	FROM orders o JOIN addresses a ON a.id = o.address_id`

func scanOrder(row scanner) (domain.Order, error) {
	var (
		o          domain.Order
		customerID sql.NullInt64
	)
	err := row.Scan(&o.ID, &customerID, &o.GuestEmail, &o.Status, &o.Total, &o.CreatedAt, &o.UpdatedAt,
		&o.Address.ID, &o.Address.Street, &o.Address.Zip, &o.Address.Country, &o.Address.Province)
	if customerID.Valid {
		id := customerID.Int64
		o.CustomerID = &id
	}
	return o, err
}

func (m *MySQLAdapter) loadLines(ctx context.Context, order *domain.Order) error {
	rows, err := m.conn(ctx).QueryContext(ctx, `
		SELECT product_id, product_name, quantity, unit_price
		FROM order_lines WHERE order_id = ? ORDER BY product_id`, order.ID)
	if err != nil {
		return fmt.Errorf("query order lines: %w", err)
	}
	defer rows.Close()

	order.Lines = nil
	for rows.Next() {
		var l domain.OrderLine
		if err := rows.Scan(&l.ProductID, &l.ProductName, &l.Quantity, &l.UnitPrice); err != nil {
			return fmt.Errorf("scan order line: %w", err)
		}
		order.Lines = append(order.Lines, l)
	}
	return rows.Err()
}

func (m *MySQLAdapter) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	o, err := scanOrder(m.conn(ctx).QueryRowContext(ctx, orderSelect+` WHERE o.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Order{}, domain.NewNotFound("order", id)
	}
	if err != nil {
		return domain.Order{}, fmt.Errorf("query order: %w", err)
	}

	if err := m.loadLines(ctx, &o); err != nil {
		return domain.Order{}, err
	}
	return o, nil
}

// UpdateOrderStatus is a compare-and-swap on status.
func (m *MySQLAdapter) UpdateOrderStatus(ctx context.Context, id string, from, to domain.OrderStatus) (domain.Order, error) {
	result, err := m.conn(ctx).ExecContext(ctx, `
		UPDATE orders SET status = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		to, m.now(), id, from,
	)
	if err != nil {
		return domain.Order{}, fmt.Errorf("update order status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return domain.Order{}, fmt.Errorf("update order status: %w", err)
	}
	current, err := m.GetOrder(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}
	if rows == 0 {
		return domain.Order{}, &domain.TransitionError{From: current.Status, To: to}
	}
	return current, nil
}

func (m *MySQLAdapter) queryOrders(ctx context.Context, suffix string, args ...any) ([]domain.Order, error) {
	rows, err := m.conn(ctx).QueryContext(ctx, orderSelect+suffix, args...)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}

	var out []domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan order: %w", err)
		}
		out = append(out, o)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// lines are loaded after the cursor is closed; a transaction connection
	// cannot run a second query while rows are pending
	for i := range out {
		if err := m.loadLines(ctx, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (m *MySQLAdapter) ListOrders(ctx context.Context) ([]domain.Order, error) {
	return m.queryOrders(ctx, ` ORDER BY o.created_at, o.id`)
}

func (m *MySQLAdapter) ListOrdersByCustomer(ctx context.Context, customerID int64) ([]domain.Order, error) {
	return m.queryOrders(ctx, ` WHERE o.customer_id = ? ORDER BY o.created_at DESC, o.id DESC`, customerID)
}

func (m *MySQLAdapter) ListOrdersByStatus(ctx context.Context, status domain.OrderStatus) ([]domain.Order, error) {
	return m.queryOrders(ctx, ` WHERE o.status = ? ORDER BY o.created_at, o.id`, status)
}
