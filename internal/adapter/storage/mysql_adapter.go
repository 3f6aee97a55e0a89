package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/rl1809/mini-oms/internal/core/domain"
	"github.com/rl1809/mini-oms/internal/port"
)

//go:embed schema.sql
var schema string

const mysqlDuplicateEntry = 1062

type txKey struct{}

type MySQLAdapter struct {
	db *sqlx.DB
}

func NewMySQLAdapter(db *sqlx.DB) *MySQLAdapter {
	return &MySQLAdapter{db: db}
}

// Migrate creates any missing tables.
func (m *MySQLAdapter) Migrate(ctx context.Context) error {
	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := m.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (m *MySQLAdapter) Transact(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if _, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return fn(ctx)
	}

	tx, err := m.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// ext returns the transaction bound to ctx, or the pool when there is none.
func (m *MySQLAdapter) ext(ctx context.Context) sqlx.ExtContext {
	if tx, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return tx
	}
	return m.db
}

func (m *MySQLAdapter) CreateUser(ctx context.Context, user domain.User) error {
	_, err := sqlx.NamedExecContext(ctx, m.ext(ctx), `
		INSERT INTO users (id, username, email, password_hash, role, created_at)
		VALUES (:id, :username, :email, :password_hash, :role, :created_at)`, user)
	if isDuplicate(err) {
		return port.ErrDuplicateKey
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

const selectUser = `SELECT id, username, email, password_hash, role, created_at FROM users`

func (m *MySQLAdapter) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	return getOne[domain.User](ctx, m.ext(ctx), selectUser+` WHERE email = ?`, email)
}

func (m *MySQLAdapter) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	return getOne[domain.User](ctx, m.ext(ctx), selectUser+` WHERE username = ?`, username)
}

const selectProduct = `SELECT id, name, description, price_per_unit, base_uom_id, supplier_id, created_at, updated_at FROM products`

func (m *MySQLAdapter) ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.ProductListing, error) {
	var (
		where []string
		args  []any
	)
	if filter.SupplierID != "" {
		where = append(where, "p.supplier_id = ?")
		args = append(args, filter.SupplierID)
	}
	if filter.Query != "" {
		where = append(where, "LOWER(p.name) LIKE ?")
		args = append(args, "%"+escapeLike(strings.ToLower(filter.Query))+"%")
	}

	query := `
		SELECT p.id, p.name, p.description, p.price_per_unit, p.base_uom_id, p.supplier_id,
		       p.created_at, p.updated_at, u.symbol AS base_uom_symbol,
		       i.current_stock_quantity, s.username AS supplier_username
		FROM products p
		JOIN units_of_measure u ON u.id = p.base_uom_id
		JOIN users s ON s.id = p.supplier_id
		LEFT JOIN inventory i ON i.product_id = p.id`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY p.created_at DESC LIMIT ? OFFSET ?"
	args = append(args, filter.Take, filter.Skip)

	listings := []domain.ProductListing{}
	if err := sqlx.SelectContext(ctx, m.ext(ctx), &listings, query, args...); err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	return listings, nil
}

func (m *MySQLAdapter) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	return getOne[domain.Product](ctx, m.ext(ctx), selectProduct+` WHERE id = ?`, id)
}

func (m *MySQLAdapter) GetProducts(ctx context.Context, ids []string) ([]domain.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(selectProduct+` WHERE id IN (?)`, ids)
	if err != nil {
		return nil, err
	}

	var products []domain.Product
	if err := sqlx.SelectContext(ctx, m.ext(ctx), &products, m.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	return products, nil
}

func (m *MySQLAdapter) CreateProduct(ctx context.Context, product domain.Product) error {
	_, err := sqlx.NamedExecContext(ctx, m.ext(ctx), `
		INSERT INTO products (id, name, description, price_per_unit, base_uom_id, supplier_id, created_at, updated_at)
		VALUES (:id, :name, :description, :price_per_unit, :base_uom_id, :supplier_id, :created_at, :updated_at)`,
		product,
	)
	if err != nil {
		return fmt.Errorf("insert product: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) UpdateProduct(ctx context.Context, product domain.Product) error {
	result, err := sqlx.NamedExecContext(ctx, m.ext(ctx), `
		UPDATE products
		SET name = :name, description = :description, price_per_unit = :price_per_unit,
		    base_uom_id = :base_uom_id, updated_at = :updated_at
		WHERE id = :id`,
		product,
	)
	if err != nil {
		return fmt.Errorf("update product: %w", err)
	}
	return requireRow(result)
}

const selectInventory = `SELECT product_id, current_stock_quantity, updated_at FROM inventory`

func (m *MySQLAdapter) GetInventory(ctx context.Context, productID string) (*domain.Inventory, error) {
	return getOne[domain.Inventory](ctx, m.ext(ctx), selectInventory+` WHERE product_id = ?`, productID)
}

func (m *MySQLAdapter) LockInventories(ctx context.Context, productIDs []string) (map[string]domain.Inventory, error) {
	out := make(map[string]domain.Inventory, len(productIDs))
	if len(productIDs) == 0 {
		return out, nil
	}
	query, args, err := sqlx.In(selectInventory+` WHERE product_id IN (?) LOCK IN SHARE MODE`, productIDs)
	if err != nil {
		return nil, err
	}

	var rows []domain.Inventory
	if err := sqlx.SelectContext(ctx, m.ext(ctx), &rows, m.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("query inventory: %w", err)
	}
	for _, inv := range rows {
		out[inv.ProductID] = inv
	}
	return out, nil
}

func (m *MySQLAdapter) LockInventory(ctx context.Context, productID string) (*domain.Inventory, error) {
	return getOne[domain.Inventory](ctx, m.ext(ctx), selectInventory+` WHERE product_id = ? FOR UPDATE`, productID)
}

func (m *MySQLAdapter) SetStock(ctx context.Context, productID string, quantity decimal.Decimal) error {
	if quantity.IsNegative() {
		return port.ErrStockConflict
	}
	_, err := m.ext(ctx).ExecContext(ctx, `
		INSERT INTO inventory (product_id, current_stock_quantity, updated_at)
		VALUES (?, ?, UTC_TIMESTAMP(6))
		ON DUPLICATE KEY UPDATE current_stock_quantity = VALUES(current_stock_quantity), updated_at = UTC_TIMESTAMP(6)`,
		productID, quantity,
	)
	if err != nil {
		return fmt.Errorf("upsert inventory: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) DeductStock(ctx context.Context, productID string, quantity decimal.Decimal) error {
	result, err := m.ext(ctx).ExecContext(ctx, `
		UPDATE inventory
		SET current_stock_quantity = current_stock_quantity - ?, updated_at = UTC_TIMESTAMP(6)
		WHERE product_id = ? AND current_stock_quantity >= ?`,
		quantity, productID, quantity,
	)
	if err != nil {
		return fmt.Errorf("update inventory: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return port.ErrStockConflict
	}
	return nil
}

const (
	selectUnit       = `SELECT id, name, symbol, is_base FROM units_of_measure`
	selectConversion = `SELECT id, from_uom_id, to_uom_id, conversion_factor FROM uom_conversions`
)

func (m *MySQLAdapter) ListUnits(ctx context.Context) ([]domain.UnitOfMeasure, error) {
	units := []domain.UnitOfMeasure{}
	if err := sqlx.SelectContext(ctx, m.ext(ctx), &units, selectUnit+` ORDER BY symbol`); err != nil {
		return nil, fmt.Errorf("query units: %w", err)
	}
	return units, nil
}

func (m *MySQLAdapter) ListConversions(ctx context.Context) ([]domain.UomConversion, error) {
	convs := []domain.UomConversion{}
	if err := sqlx.SelectContext(ctx, m.ext(ctx), &convs, selectConversion); err != nil {
		return nil, fmt.Errorf("query conversions: %w", err)
	}
	return convs, nil
}

func (m *MySQLAdapter) GetUnit(ctx context.Context, id string) (*domain.UnitOfMeasure, error) {
	return getOne[domain.UnitOfMeasure](ctx, m.ext(ctx), selectUnit+` WHERE id = ?`, id)
}

func (m *MySQLAdapter) GetConversion(ctx context.Context, fromUomID, toUomID string) (*domain.UomConversion, error) {
	return getOne[domain.UomConversion](ctx, m.ext(ctx), selectConversion+` WHERE from_uom_id = ? AND to_uom_id = ?`, fromUomID, toUomID)
}

func (m *MySQLAdapter) UpsertUnit(ctx context.Context, unit domain.UnitOfMeasure) (domain.UnitOfMeasure, error) {
	_, err := sqlx.NamedExecContext(ctx, m.ext(ctx), `
		INSERT INTO units_of_measure (id, name, symbol, is_base)
		VALUES (:id, :name, :symbol, :is_base)
		ON DUPLICATE KEY UPDATE id = id`, unit)
	if err != nil {
		return domain.UnitOfMeasure{}, fmt.Errorf("upsert unit: %w", err)
	}

	stored, err := getOne[domain.UnitOfMeasure](ctx, m.ext(ctx), selectUnit+` WHERE symbol = ?`, unit.Symbol)
	if err != nil {
		return domain.UnitOfMeasure{}, err
	}
	if stored == nil {
		return domain.UnitOfMeasure{}, port.ErrNotFound
	}
	return *stored, nil
}

func (m *MySQLAdapter) UpsertConversion(ctx context.Context, conv domain.UomConversion) error {
	_, err := sqlx.NamedExecContext(ctx, m.ext(ctx), `
		INSERT INTO uom_conversions (id, from_uom_id, to_uom_id, conversion_factor)
		VALUES (:id, :from_uom_id, :to_uom_id, :conversion_factor)
		ON DUPLICATE KEY UPDATE conversion_factor = VALUES(conversion_factor)`, conv)
	if err != nil {
		return fmt.Errorf("upsert conversion: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) CreateOrder(ctx context.Context, order domain.Order) error {
	ext := m.ext(ctx)

	_, err := sqlx.NamedExecContext(ctx, ext, `
		INSERT INTO orders (id, buyer_id, total_amount, current_status, created_at, updated_at)
		VALUES (:id, :buyer_id, :total_amount, :current_status, :created_at, :updated_at)`, order)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	if len(order.Items) > 0 {
		_, err = sqlx.NamedExecContext(ctx, ext, `
			INSERT INTO order_items (id, order_id, product_id, supplier_id, quantity, uom_id, price_at_order, line_item_total)
			VALUES (:id, :order_id, :product_id, :supplier_id, :quantity, :uom_id, :price_at_order, :line_item_total)`,
			order.Items,
		)
		if err != nil {
			return fmt.Errorf("insert order items: %w", err)
		}
	}

	for _, entry := range order.StatusHistory {
		if err := m.AppendStatusHistory(ctx, entry); err != nil {
			return err
		}
	}
	return nil
}

const selectOrder = `SELECT o.id, o.buyer_id, o.total_amount, o.current_status, o.created_at, o.updated_at FROM orders o`

func (m *MySQLAdapter) LockOrder(ctx context.Context, id string) (*domain.Order, error) {
	order, err := getOne[domain.Order](ctx, m.ext(ctx), selectOrder+` WHERE o.id = ? FOR UPDATE`, id)
	if err != nil || order == nil {
		return order, err
	}

	orders := []domain.Order{*order}
	if err := m.attachDetails(ctx, orders, ""); err != nil {
		return nil, err
	}
	return &orders[0], nil
}

func (m *MySQLAdapter) UpdateOrderStatus(ctx context.Context, id string, status domain.OrderStatus) error {
	_, err := m.ext(ctx).ExecContext(ctx, `
		UPDATE orders SET current_status = ?, updated_at = UTC_TIMESTAMP(6) WHERE id = ?`, status, id)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) AppendStatusHistory(ctx context.Context, entry domain.OrderStatusHistory) error {
	_, err := sqlx.NamedExecContext(ctx, m.ext(ctx), `
		INSERT INTO order_status_history (id, order_id, old_status, new_status, changed_by_user_id, change_timestamp)
		VALUES (:id, :order_id, :old_status, :new_status, :changed_by_user_id, :change_timestamp)`, entry)
	if err != nil {
		return fmt.Errorf("insert status history: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) ListBuyerOrders(ctx context.Context, buyerID string) ([]domain.Order, error) {
	orders := []domain.Order{}
	err := sqlx.SelectContext(ctx, m.ext(ctx), &orders,
		selectOrder+` WHERE o.buyer_id = ? ORDER BY o.created_at DESC`, buyerID)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	return orders, m.attachDetails(ctx, orders, "")
}

func (m *MySQLAdapter) ListSupplierOrders(ctx context.Context, supplierID string) ([]domain.Order, error) {
	orders := []domain.Order{}
	err := sqlx.SelectContext(ctx, m.ext(ctx), &orders, selectOrder+`
		WHERE EXISTS (SELECT 1 FROM order_items oi WHERE oi.order_id = o.id AND oi.supplier_id = ?)
		ORDER BY o.created_at DESC`, supplierID)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	return orders, m.attachDetails(ctx, orders, supplierID)
}

func (m *MySQLAdapter) CountOrdersByStatus(ctx context.Context) ([]domain.StatusCount, error) {
	counts := []domain.StatusCount{}
	err := sqlx.SelectContext(ctx, m.ext(ctx), &counts, `
		SELECT current_status, COUNT(*) AS count FROM orders GROUP BY current_status ORDER BY current_status`)
	if err != nil {
		return nil, fmt.Errorf("count orders: %w", err)
	}
	return counts, nil
}

func (m *MySQLAdapter) RevenueBySupplier(ctx context.Context) ([]domain.SupplierRevenue, error) {
	revenue := []domain.SupplierRevenue{}
	err := sqlx.SelectContext(ctx, m.ext(ctx), &revenue, `
		SELECT supplier_id, SUM(line_item_total) AS revenue FROM order_items GROUP BY supplier_id ORDER BY supplier_id`)
	if err != nil {
		return nil, fmt.Errorf("sum revenue: %w", err)
	}
	return revenue, nil
}

// attachDetails loads items and ascending status history for orders. A non-empty supplierID
// restricts items to that supplier.
func (m *MySQLAdapter) attachDetails(ctx context.Context, orders []domain.Order, supplierID string) error {
	if len(orders) == 0 {
		return nil
	}
	ids := make([]string, len(orders))
	index := make(map[string]int, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
		index[o.ID] = i
		orders[i].Items = []domain.OrderItem{}
		orders[i].StatusHistory = []domain.OrderStatusHistory{}
	}

	itemQuery := `
		SELECT oi.id, oi.order_id, oi.product_id, p.name AS product_name, oi.supplier_id,
		       oi.quantity, oi.uom_id, oi.price_at_order, oi.line_item_total
		FROM order_items oi
		JOIN products p ON p.id = oi.product_id
		WHERE oi.order_id IN (?)`
	itemArgs := []any{ids}
	if supplierID != "" {
		itemQuery += ` AND oi.supplier_id = ?`
		itemArgs = append(itemArgs, supplierID)
	}
	query, args, err := sqlx.In(itemQuery+` ORDER BY oi.id`, itemArgs...)
	if err != nil {
		return err
	}
	var items []domain.OrderItem
	if err := sqlx.SelectContext(ctx, m.ext(ctx), &items, m.db.Rebind(query), args...); err != nil {
		return fmt.Errorf("query order items: %w", err)
	}
	for _, item := range items {
		o := &orders[index[item.OrderID]]
		o.Items = append(o.Items, item)
	}

	query, args, err = sqlx.In(`
		SELECT id, order_id, old_status, new_status, changed_by_user_id, change_timestamp
		FROM order_status_history
		WHERE order_id IN (?)
		ORDER BY seq`, ids)
	if err != nil {
		return err
	}
	var history []domain.OrderStatusHistory
	if err := sqlx.SelectContext(ctx, m.ext(ctx), &history, m.db.Rebind(query), args...); err != nil {
		return fmt.Errorf("query status history: %w", err)
	}
	for _, entry := range history {
		o := &orders[index[entry.OrderID]]
		o.StatusHistory = append(o.StatusHistory, entry)
	}
	return nil
}

func getOne[T any](ctx context.Context, q sqlx.QueryerContext, query string, args ...any) (*T, error) {
	var out T
	err := sqlx.GetContext(ctx, q, &out, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	return &out, nil
}

func requireRow(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return port.ErrNotFound
	}
	return nil
}

func isDuplicate(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == mysqlDuplicateEntry
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
