package orders

import (
	"context"
	"errors"
	"maps"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/agency-erp/internal/shared"
)

// memRepo is an in-memory RepositoryPort. A transaction holds the mutex for
// its whole duration, which mirrors the order row lock.
type memRepo struct {
	mu         sync.Mutex
	nextID     int64
	orders     map[int64]SupplierOrder
	expenses   map[int64]VariableExpense
	suppliers  map[int64]Supplier
	projects   map[int64]Project
	quotes     map[int64]Quote
	quoteItems map[int64]QuoteItem

	syncErr error
}

func newMemRepo() *memRepo {
	return &memRepo{
		nextID:     100,
		orders:     map[int64]SupplierOrder{},
		expenses:   map[int64]VariableExpense{},
		suppliers:  map[int64]Supplier{},
		projects:   map[int64]Project{},
		quotes:     map[int64]Quote{},
		quoteItems: map[int64]QuoteItem{},
	}
}

func (r *memRepo) id() int64 {
	r.nextID++
	return r.nextID
}

func (r *memRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	orders := maps.Clone(r.orders)
	expenses := maps.Clone(r.expenses)
	quoteItems := maps.Clone(r.quoteItems)
	if err := fn(ctx, &memTx{r: r}); err != nil {
		r.orders = orders
		r.expenses = expenses
		r.quoteItems = quoteItems
		return err
	}
	return nil
}

func (r *memRepo) GetOrder(ctx context.Context, id int64) (SupplierOrder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[id]
	if !ok {
		return SupplierOrder{}, ErrOrderNotFound
	}
	return order, nil
}

func (r *memRepo) ListOrders(ctx context.Context, filters ListFilters) ([]SupplierOrder, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var matched []SupplierOrder
	for _, order := range r.orders {
		if filters.SupplierID > 0 && order.SupplierID != filters.SupplierID {
			continue
		}
		if filters.ProjectID > 0 && (order.ProjectID == nil || *order.ProjectID != filters.ProjectID) {
			continue
		}
		if filters.PaymentStatus != "" && order.PaymentStatus != filters.PaymentStatus {
			continue
		}
		matched = append(matched, order)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID > matched[j].ID })
	total := len(matched)
	if filters.Offset >= total {
		return nil, total, nil
	}
	end := filters.Offset + filters.Limit
	if end > total {
		end = total
	}
	return matched[filters.Offset:end], total, nil
}

func (r *memRepo) ListExpensesByOrder(ctx context.Context, orderID int64) ([]VariableExpense, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.expensesFor(orderID), nil
}

func (r *memRepo) ListPaidTotals(ctx context.Context) (map[int64]decimal.Decimal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	totals := map[int64]decimal.Decimal{}
	for _, e := range r.expenses {
		if e.SupplierOrderID == nil {
			continue
		}
		totals[*e.SupplierOrderID] = totals[*e.SupplierOrderID].Add(e.Amount)
	}
	return totals, nil
}

func (r *memRepo) expensesFor(orderID int64) []VariableExpense {
	var out []VariableExpense
	for _, e := range r.expenses {
		if e.SupplierOrderID != nil && *e.SupplierOrderID == orderID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// seed helpers, called outside transactions.

func (r *memRepo) addSupplier(name string) int64 {
	id := r.id()
	r.suppliers[id] = Supplier{ID: id, Name: name}
	return id
}

func (r *memRepo) addProject(status ProjectStatus) int64 {
	id := r.id()
	r.projects[id] = Project{ID: id, Name: "Proyecto", Status: status}
	return id
}

func (r *memRepo) addQuote(projectID *int64, status QuoteStatus) int64 {
	id := r.id()
	r.quotes[id] = Quote{ID: id, ProjectID: projectID, Status: status}
	return id
}

func (r *memRepo) addQuoteItem(item QuoteItem) int64 {
	item.ID = r.id()
	r.quoteItems[item.ID] = item
	return item.ID
}

func (r *memRepo) addOrder(order SupplierOrder) int64 {
	order.ID = r.id()
	if order.Status == "" {
		order.Status = OrderStatusPending
	}
	if order.PaymentStatus == "" {
		order.PaymentStatus = PaymentStatusPending
	}
	r.orders[order.ID] = order
	return order.ID
}

func (r *memRepo) addExpense(orderID int64, amount string) int64 {
	id := r.id()
	r.expenses[id] = VariableExpense{ID: id, SupplierOrderID: &orderID, Amount: decimal.RequireFromString(amount)}
	return id
}

type memTx struct {
	r *memRepo
}

func (t *memTx) LockOrder(ctx context.Context, id int64) (SupplierOrder, error) {
	order, ok := t.r.orders[id]
	if !ok {
		return SupplierOrder{}, ErrOrderNotFound
	}
	return order, nil
}

func (t *memTx) CreateOrder(ctx context.Context, order SupplierOrder) (int64, error) {
	if order.QuoteItemID != nil {
		for _, existing := range t.r.orders {
			if existing.QuoteItemID != nil && *existing.QuoteItemID == *order.QuoteItemID {
				return 0, ErrOrderAlreadyExists
			}
		}
	}
	order.ID = t.r.id()
	t.r.orders[order.ID] = order
	return order.ID, nil
}

func (t *memTx) UpdateOrder(ctx context.Context, order SupplierOrder) error {
	if _, ok := t.r.orders[order.ID]; !ok {
		return ErrOrderNotFound
	}
	t.r.orders[order.ID] = order
	return nil
}

func (t *memTx) UpdatePaymentStatus(ctx context.Context, id int64, status PaymentStatus) error {
	order, ok := t.r.orders[id]
	if !ok {
		return ErrOrderNotFound
	}
	order.PaymentStatus = status
	t.r.orders[id] = order
	return nil
}

func (t *memTx) UpdateOrderStatus(ctx context.Context, id int64, status OrderStatus) error {
	order, ok := t.r.orders[id]
	if !ok {
		return ErrOrderNotFound
	}
	order.Status = status
	t.r.orders[id] = order
	return nil
}

func (t *memTx) DeleteOrder(ctx context.Context, id int64) error {
	if _, ok := t.r.orders[id]; !ok {
		return ErrOrderNotFound
	}
	delete(t.r.orders, id)
	return nil
}

func (t *memTx) ListExpensesByOrder(ctx context.Context, orderID int64) ([]VariableExpense, error) {
	return t.r.expensesFor(orderID), nil
}

func (t *memTx) InsertExpense(ctx context.Context, expense VariableExpense) (int64, error) {
	expense.ID = t.r.id()
	t.r.expenses[expense.ID] = expense
	return expense.ID, nil
}

func (t *memTx) DetachExpenses(ctx context.Context, orderID int64) (int64, error) {
	var n int64
	for id, e := range t.r.expenses {
		if e.SupplierOrderID != nil && *e.SupplierOrderID == orderID {
			e.SupplierOrderID = nil
			t.r.expenses[id] = e
			n++
		}
	}
	return n, nil
}

func (t *memTx) GetSupplier(ctx context.Context, id int64) (Supplier, error) {
	s, ok := t.r.suppliers[id]
	if !ok {
		return Supplier{}, ErrSupplierNotFound
	}
	return s, nil
}

func (t *memTx) GetProject(ctx context.Context, id int64) (Project, error) {
	p, ok := t.r.projects[id]
	if !ok {
		return Project{}, ErrNoProject
	}
	return p, nil
}

func (t *memTx) GetQuote(ctx context.Context, id int64) (Quote, error) {
	q, ok := t.r.quotes[id]
	if !ok {
		return Quote{}, ErrItemNotFound
	}
	return q, nil
}

func (t *memTx) LockQuoteItem(ctx context.Context, id int64) (QuoteItem, error) {
	item, ok := t.r.quoteItems[id]
	if !ok {
		return QuoteItem{}, ErrItemNotFound
	}
	return item, nil
}

func (t *memTx) MarkQuoteItemOrdered(ctx context.Context, itemID, orderID int64) error {
	item, ok := t.r.quoteItems[itemID]
	if !ok {
		return ErrItemNotFound
	}
	if item.OrderCreated {
		return ErrOrderAlreadyExists
	}
	item.OrderCreated = true
	item.SupplierOrderID = &orderID
	t.r.quoteItems[itemID] = item
	return nil
}

func (t *memTx) ReleaseQuoteItem(ctx context.Context, itemID int64) error {
	item, ok := t.r.quoteItems[itemID]
	if !ok {
		return nil
	}
	item.OrderCreated = false
	item.SupplierOrderID = nil
	t.r.quoteItems[itemID] = item
	return nil
}

func (t *memTx) SyncQuoteItemCost(ctx context.Context, productCode string, cost decimal.Decimal, statuses []QuoteStatus) (int64, error) {
	if t.r.syncErr != nil {
		return 0, t.r.syncErr
	}
	var n int64
	for id, item := range t.r.quoteItems {
		if item.ProductCode == nil || *item.ProductCode != productCode {
			continue
		}
		quote := t.r.quotes[item.QuoteID]
		for _, st := range statuses {
			if quote.Status == st {
				item.CostArticle = cost
				t.r.quoteItems[id] = item
				n++
				break
			}
		}
	}
	return n, nil
}

type memAudit struct {
	mu   sync.Mutex
	logs []shared.AuditLog
}

func (a *memAudit) Record(ctx context.Context, log shared.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.logs = append(a.logs, log)
	return nil
}

func (a *memAudit) actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.logs))
	for _, l := range a.logs {
		out = append(out, l.Action)
	}
	return out
}

type memIdempotency struct {
	mu   sync.Mutex
	keys map[string]string
}

func (m *memIdempotency) CheckAndInsert(ctx context.Context, key, module string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.keys == nil {
		m.keys = map[string]string{}
	}
	if _, ok := m.keys[key]; ok {
		return shared.ErrIdempotencyConflict
	}
	m.keys[key] = module
	return nil
}

func (m *memIdempotency) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, key)
	return nil
}

type memViews struct {
	mu    sync.Mutex
	paths []string
	err   error
}

func (v *memViews) Invalidate(ctx context.Context, paths ...string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.paths = append(v.paths, paths...)
	return v.err
}

type memMetrics struct {
	mu       sync.Mutex
	outcomes map[string]int
}

func (m *memMetrics) ObservePayment(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.outcomes == nil {
		m.outcomes = map[string]int{}
	}
	m.outcomes[outcome]++
}

var errSyncDown = errors.New("sync unavailable")
