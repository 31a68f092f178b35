package orders

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/agency-erp/internal/platform/db"
	"github.com/odyssey-erp/agency-erp/internal/shared"
)

// TxRepository exposes transactional operations.
type TxRepository interface {
	LockOrder(ctx context.Context, id int64) (SupplierOrder, error)
	CreateOrder(ctx context.Context, order SupplierOrder) (int64, error)
	UpdateOrder(ctx context.Context, order SupplierOrder) error
	UpdatePaymentStatus(ctx context.Context, id int64, status PaymentStatus) error
	UpdateOrderStatus(ctx context.Context, id int64, status OrderStatus) error
	DeleteOrder(ctx context.Context, id int64) error
	ListExpensesByOrder(ctx context.Context, orderID int64) ([]VariableExpense, error)
	InsertExpense(ctx context.Context, expense VariableExpense) (int64, error)
	DetachExpenses(ctx context.Context, orderID int64) (int64, error)
	GetSupplier(ctx context.Context, id int64) (Supplier, error)
	GetProject(ctx context.Context, id int64) (Project, error)
	GetQuote(ctx context.Context, id int64) (Quote, error)
	LockQuoteItem(ctx context.Context, id int64) (QuoteItem, error)
	MarkQuoteItemOrdered(ctx context.Context, itemID, orderID int64) error
	ReleaseQuoteItem(ctx context.Context, itemID int64) error
	SyncQuoteItemCost(ctx context.Context, productCode string, cost decimal.Decimal, statuses []QuoteStatus) (int64, error)
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx wraps callback in repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

const orderColumns = `id, supplier_id, project_id, quote_id, quote_item_id, task_id, items,
	expected_date, status, payment_status, created_at, updated_at`

func scanOrder(row pgx.Row) (SupplierOrder, error) {
	var order SupplierOrder
	err := row.Scan(&order.ID, &order.SupplierID, &order.ProjectID, &order.QuoteID, &order.QuoteItemID,
		&order.TaskID, &order.Items, &order.ExpectedDate, &order.Status, &order.PaymentStatus,
		&order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return SupplierOrder{}, ErrOrderNotFound
		}
		return SupplierOrder{}, err
	}
	return order, nil
}

// GetOrder returns a supplier order.
func (r *Repository) GetOrder(ctx context.Context, id int64) (SupplierOrder, error) {
	return scanOrder(r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM supplier_orders WHERE id=$1`, id))
}

// ListOrders returns a filtered page of orders and the matching count.
func (r *Repository) ListOrders(ctx context.Context, filters ListFilters) ([]SupplierOrder, int, error) {
	where := ` WHERE 1=1`
	args := []any{}
	if filters.SupplierID > 0 {
		args = append(args, filters.SupplierID)
		where += ` AND supplier_id = $` + strconv.Itoa(len(args))
	}
	if filters.ProjectID > 0 {
		args = append(args, filters.ProjectID)
		where += ` AND project_id = $` + strconv.Itoa(len(args))
	}
	if filters.PaymentStatus != "" {
		args = append(args, string(filters.PaymentStatus))
		where += ` AND payment_status = $` + strconv.Itoa(len(args))
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM supplier_orders`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limitArg := strconv.Itoa(len(args) + 1)
	offsetArg := strconv.Itoa(len(args) + 2)
	args = append(args, filters.Limit, filters.Offset)
	rows, err := r.pool.Query(ctx, `SELECT `+orderColumns+` FROM supplier_orders`+where+
		` ORDER BY id DESC LIMIT $`+limitArg+` OFFSET $`+offsetArg, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var orders []SupplierOrder
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		orders = append(orders, order)
	}
	return orders, total, rows.Err()
}

// ListExpensesByOrder returns the ledger entries of an order.
func (r *Repository) ListExpensesByOrder(ctx context.Context, orderID int64) ([]VariableExpense, error) {
	return listExpenses(ctx, r.pool, orderID)
}

// ListPaidTotals sums ledger amounts per order.
func (r *Repository) ListPaidTotals(ctx context.Context) (map[int64]decimal.Decimal, error) {
	rows, err := r.pool.Query(ctx, `SELECT supplier_order_id, SUM(amount) FROM variable_expenses
		WHERE supplier_order_id IS NOT NULL GROUP BY supplier_order_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	totals := make(map[int64]decimal.Decimal)
	for rows.Next() {
		var id int64
		var sum decimal.Decimal
		if err := rows.Scan(&id, &sum); err != nil {
			return nil, err
		}
		totals[id] = sum
	}
	return totals, rows.Err()
}

func listExpenses(ctx context.Context, q querier, orderID int64) ([]VariableExpense, error) {
	const sql = `SELECT id, reference, supplier_id, supplier_order_id, project_id, quote_id, amount, iva,
		category, date, payment_method, description
		FROM variable_expenses WHERE supplier_order_id=$1 ORDER BY id`
	rows, err := q.Query(ctx, sql, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var expenses []VariableExpense
	for rows.Next() {
		var e VariableExpense
		if err := rows.Scan(&e.ID, &e.Reference, &e.SupplierID, &e.SupplierOrderID, &e.ProjectID, &e.QuoteID,
			&e.Amount, &e.IVA, &e.Category, &e.Date, &e.PaymentMethod, &e.Description); err != nil {
			return nil, err
		}
		expenses = append(expenses, e)
	}
	return expenses, rows.Err()
}

func (t *txRepo) LockOrder(ctx context.Context, id int64) (SupplierOrder, error) {
	return scanOrder(t.tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM supplier_orders WHERE id=$1 FOR UPDATE`, id))
}

func (t *txRepo) CreateOrder(ctx context.Context, order SupplierOrder) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO supplier_orders
		(supplier_id, project_id, quote_id, quote_item_id, task_id, items, expected_date, status, payment_status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11) RETURNING id`,
		order.SupplierID, order.ProjectID, order.QuoteID, order.QuoteItemID, order.TaskID, order.Items,
		order.ExpectedDate, string(order.Status), string(order.PaymentStatus), defaultTime(order.CreatedAt), defaultTime(order.UpdatedAt),
	).Scan(&id)
	if err != nil {
		if shared.IsUniqueViolation(err) {
			return 0, ErrOrderAlreadyExists
		}
		return 0, fmt.Errorf("orders: insert order: %w", err)
	}
	return id, nil
}

func (t *txRepo) UpdateOrder(ctx context.Context, order SupplierOrder) error {
	tag, err := t.tx.Exec(ctx, `UPDATE supplier_orders SET supplier_id=$2, project_id=$3, quote_id=$4, task_id=$5,
		items=$6, expected_date=$7, payment_status=$8, updated_at=$9 WHERE id=$1`,
		order.ID, order.SupplierID, order.ProjectID, order.QuoteID, order.TaskID, order.Items, order.ExpectedDate,
		string(order.PaymentStatus), defaultTime(order.UpdatedAt))
	if err != nil {
		return fmt.Errorf("orders: update order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

func (t *txRepo) UpdatePaymentStatus(ctx context.Context, id int64, status PaymentStatus) error {
	tag, err := t.tx.Exec(ctx, `UPDATE supplier_orders SET payment_status=$2, updated_at=NOW() WHERE id=$1`, id, string(status))
	if err != nil {
		return fmt.Errorf("orders: update payment status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

func (t *txRepo) UpdateOrderStatus(ctx context.Context, id int64, status OrderStatus) error {
	tag, err := t.tx.Exec(ctx, `UPDATE supplier_orders SET status=$2, updated_at=NOW() WHERE id=$1`, id, string(status))
	if err != nil {
		return fmt.Errorf("orders: update order status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

func (t *txRepo) DeleteOrder(ctx context.Context, id int64) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM supplier_orders WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("orders: delete order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

func (t *txRepo) ListExpensesByOrder(ctx context.Context, orderID int64) ([]VariableExpense, error) {
	return listExpenses(ctx, t.tx, orderID)
}

func (t *txRepo) InsertExpense(ctx context.Context, e VariableExpense) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO variable_expenses
		(reference, supplier_id, supplier_order_id, project_id, quote_id, amount, iva, category, date, payment_method, description)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11) RETURNING id`,
		e.Reference, e.SupplierID, e.SupplierOrderID, e.ProjectID, e.QuoteID, e.Amount, e.IVA, e.Category,
		defaultTime(e.Date), e.PaymentMethod, e.Description,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("orders: insert expense: %w", err)
	}
	return id, nil
}

func (t *txRepo) DetachExpenses(ctx context.Context, orderID int64) (int64, error) {
	tag, err := t.tx.Exec(ctx, `UPDATE variable_expenses SET supplier_order_id=NULL WHERE supplier_order_id=$1`, orderID)
	if err != nil {
		return 0, fmt.Errorf("orders: detach expenses: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (t *txRepo) GetSupplier(ctx context.Context, id int64) (Supplier, error) {
	var s Supplier
	err := t.tx.QueryRow(ctx, `SELECT id, name FROM suppliers WHERE id=$1`, id).Scan(&s.ID, &s.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Supplier{}, ErrSupplierNotFound
		}
		return Supplier{}, err
	}
	return s, nil
}

func (t *txRepo) GetProject(ctx context.Context, id int64) (Project, error) {
	var p Project
	err := t.tx.QueryRow(ctx, `SELECT id, name, status FROM projects WHERE id=$1`, id).Scan(&p.ID, &p.Name, &p.Status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Project{}, ErrNoProject
		}
		return Project{}, err
	}
	return p, nil
}

func (t *txRepo) GetQuote(ctx context.Context, id int64) (Quote, error) {
	var q Quote
	err := t.tx.QueryRow(ctx, `SELECT id, project_id, status FROM quotes WHERE id=$1`, id).Scan(&q.ID, &q.ProjectID, &q.Status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Quote{}, ErrItemNotFound
		}
		return Quote{}, err
	}
	return q, nil
}

func (t *txRepo) LockQuoteItem(ctx context.Context, id int64) (QuoteItem, error) {
	var item QuoteItem
	err := t.tx.QueryRow(ctx, `SELECT id, quote_id, product_code, concept, quantity, cost_article, order_created, supplier_order_id
		FROM quote_items WHERE id=$1 FOR UPDATE`, id).
		Scan(&item.ID, &item.QuoteID, &item.ProductCode, &item.Concept, &item.Quantity, &item.CostArticle,
			&item.OrderCreated, &item.SupplierOrderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return QuoteItem{}, ErrItemNotFound
		}
		return QuoteItem{}, err
	}
	return item, nil
}

func (t *txRepo) MarkQuoteItemOrdered(ctx context.Context, itemID, orderID int64) error {
	tag, err := t.tx.Exec(ctx, `UPDATE quote_items SET order_created=TRUE, supplier_order_id=$2 WHERE id=$1 AND order_created=FALSE`, itemID, orderID)
	if err != nil {
		return fmt.Errorf("orders: mark quote item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrOrderAlreadyExists
	}
	return nil
}

func (t *txRepo) ReleaseQuoteItem(ctx context.Context, itemID int64) error {
	_, err := t.tx.Exec(ctx, `UPDATE quote_items SET order_created=FALSE, supplier_order_id=NULL WHERE id=$1`, itemID)
	if err != nil {
		return fmt.Errorf("orders: release quote item: %w", err)
	}
	return nil
}

func (t *txRepo) SyncQuoteItemCost(ctx context.Context, productCode string, cost decimal.Decimal, statuses []QuoteStatus) (int64, error) {
	names := make([]string, 0, len(statuses))
	for _, st := range statuses {
		names = append(names, string(st))
	}
	tag, err := t.tx.Exec(ctx, `UPDATE quote_items qi SET cost_article=$2
		FROM quotes q WHERE qi.quote_id = q.id AND qi.product_code = $1 AND q.status = ANY($3)`,
		productCode, cost, names)
	if err != nil {
		return 0, fmt.Errorf("orders: sync quote cost: %w", err)
	}
	return tag.RowsAffected(), nil
}

func defaultTime(value time.Time) time.Time {
	if value.IsZero() {
		return time.Now()
	}
	return value
}
