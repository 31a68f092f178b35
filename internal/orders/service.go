package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/agency-erp/internal/shared"
)

// PlaceholderCode is used for order lines generated from quote items without a product code.
const PlaceholderCode = "N/A"

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetOrder(ctx context.Context, id int64) (SupplierOrder, error)
	ListOrders(ctx context.Context, filters ListFilters) ([]SupplierOrder, int, error)
	ListExpensesByOrder(ctx context.Context, orderID int64) ([]VariableExpense, error)
	ListPaidTotals(ctx context.Context) (map[int64]decimal.Decimal, error)
}

// AuditPort records audit trail entries.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// IdempotencyPort guards against double submission of payments.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// Invalidator marks cached views stale after a mutation.
type Invalidator interface {
	Invalidate(ctx context.Context, paths ...string) error
}

// MetricsPort observes payment outcomes.
type MetricsPort interface {
	ObservePayment(outcome string)
}

// Service is the order lifecycle manager.
type Service struct {
	repo        RepositoryPort
	policy      Policy
	audit       AuditPort
	idempotency IdempotencyPort
	views       Invalidator
	metrics     MetricsPort
	logger      *slog.Logger
	now         func() time.Time
}

// NewService constructs the order lifecycle manager. audit, idem and views may be nil.
func NewService(repo RepositoryPort, policy Policy, audit AuditPort, idem IdempotencyPort, views Invalidator, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:        repo,
		policy:      policy.normalised(),
		audit:       audit,
		idempotency: idem,
		views:       views,
		logger:      logger,
		now:         time.Now,
	}
}

// SetMetrics injects the payment metrics collector.
func (s *Service) SetMetrics(m MetricsPort) {
	s.metrics = m
}

// Policy exposes the active financial policy.
func (s *Service) Policy() Policy {
	return s.policy
}

// RegisterPaymentInput describes a payment against an order.
type RegisterPaymentInput struct {
	OrderID        int64
	Amount         decimal.Decimal
	Description    string
	PaymentMethod  string
	IdempotencyKey string
}

// PaymentResult is returned after a payment is recorded.
type PaymentResult struct {
	Order   SupplierOrder   `json:"order"`
	Expense VariableExpense `json:"expense"`
	Total   decimal.Decimal `json:"total"`
	Paid    decimal.Decimal `json:"paid"`
	Pending decimal.Decimal `json:"pending"`
}

// RegisterOrderPayment records a ledger entry for the order and moves its
// payment status accordingly. The balance is validated under the order row
// lock so concurrent payments cannot overpay. Not idempotent unless an
// idempotency key is supplied.
func (s *Service) RegisterOrderPayment(ctx context.Context, input RegisterPaymentInput) (PaymentResult, error) {
	key := ""
	if input.IdempotencyKey != "" && s.idempotency != nil {
		key = fmt.Sprintf("ORDER_PAYMENT:%d:%s", input.OrderID, input.IdempotencyKey)
		if err := s.idempotency.CheckAndInsert(ctx, key, "orders.payment"); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				s.observePayment(ErrDuplicateSubmission)
				return PaymentResult{}, ErrDuplicateSubmission
			}
			return PaymentResult{}, fmt.Errorf("orders: idempotency check: %w", err)
		}
	}

	var result PaymentResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.LockOrder(ctx, input.OrderID)
		if err != nil {
			return err
		}
		if err := s.ensureProjectOpen(ctx, tx, order.ProjectID); err != nil {
			return err
		}
		if !input.Amount.IsPositive() {
			return ErrInvalidAmount
		}
		entries, err := tx.ListExpensesByOrder(ctx, order.ID)
		if err != nil {
			return err
		}
		total := order.Total()
		paid := TotalPaid(entries)
		pending := PendingBalance(total, paid)
		if !pending.IsPositive() || input.Amount.GreaterThan(pending.Add(s.policy.Epsilon)) {
			return &BalanceError{Amount: input.Amount, Pending: decimal.Max(pending, decimal.Zero)}
		}
		supplier, err := tx.GetSupplier(ctx, order.SupplierID)
		if err != nil {
			return err
		}

		expense := VariableExpense{
			Reference:       uuid.New(),
			SupplierID:      order.SupplierID,
			SupplierOrderID: &order.ID,
			ProjectID:       order.ProjectID,
			QuoteID:         order.QuoteID,
			Amount:          input.Amount,
			IVA:             s.policy.Tax(input.Amount),
			Category:        s.policy.DefaultCategory,
			Date:            s.now(),
			PaymentMethod:   defaultString(input.PaymentMethod, s.policy.DefaultPaymentMethod),
			Description:     defaultString(input.Description, "Pago Orden: "+supplier.Name),
		}
		id, err := tx.InsertExpense(ctx, expense)
		if err != nil {
			return err
		}
		expense.ID = id

		newPaid := paid.Add(input.Amount)
		status, err := NextPaymentStatus(SourceLedger, "", newPaid, total, s.policy.Epsilon)
		if err != nil {
			return err
		}
		if err := tx.UpdatePaymentStatus(ctx, order.ID, status); err != nil {
			return err
		}
		order.PaymentStatus = status
		result = PaymentResult{
			Order:   order,
			Expense: expense,
			Total:   total,
			Paid:    newPaid,
			Pending: PendingBalance(total, newPaid),
		}
		return nil
	})
	if err != nil {
		if key != "" {
			_ = s.idempotency.Delete(ctx, key)
		}
		s.observePayment(err)
		return PaymentResult{}, err
	}
	s.observePayment(nil)
	s.recordAudit(ctx, "ORDER_PAYMENT", result.Order.ID, map[string]any{
		"expense_id":     result.Expense.ID,
		"reference":      result.Expense.Reference.String(),
		"amount":         result.Expense.Amount.StringFixed(2),
		"payment_status": string(result.Order.PaymentStatus),
	})
	s.invalidate(ctx, result.Order.ProjectID)
	return result, nil
}

// OverrideResult is returned by UpdatePaymentStatus.
type OverrideResult struct {
	Order       SupplierOrder    `json:"order"`
	Previous    PaymentStatus    `json:"previous"`
	Synthesized *VariableExpense `json:"synthesized,omitempty"`
}

// UpdatePaymentStatus sets the payment status directly. Marking an order PAID
// when it has no ledger entries synthesises one entry for the full total so
// accounting reflects the payment. Every override is audit-logged.
func (s *Service) UpdatePaymentStatus(ctx context.Context, orderID int64, status PaymentStatus) (OverrideResult, error) {
	var result OverrideResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if err := s.ensureProjectOpen(ctx, tx, order.ProjectID); err != nil {
			return err
		}
		entries, err := tx.ListExpensesByOrder(ctx, order.ID)
		if err != nil {
			return err
		}
		total := order.Total()
		next, err := NextPaymentStatus(SourceManualOverride, status, TotalPaid(entries), total, s.policy.Epsilon)
		if err != nil {
			return err
		}
		result.Previous = order.PaymentStatus

		if next == PaymentStatusPaid && len(entries) == 0 && total.IsPositive() {
			supplier, err := tx.GetSupplier(ctx, order.SupplierID)
			if err != nil {
				return err
			}
			expense := VariableExpense{
				Reference:       uuid.New(),
				SupplierID:      order.SupplierID,
				SupplierOrderID: &order.ID,
				ProjectID:       order.ProjectID,
				QuoteID:         order.QuoteID,
				Amount:          total,
				IVA:             s.policy.Tax(total),
				Category:        s.policy.DefaultCategory,
				Date:            s.now(),
				PaymentMethod:   s.policy.DefaultPaymentMethod,
				Description:     "Orden de Compra: " + supplier.Name,
			}
			id, err := tx.InsertExpense(ctx, expense)
			if err != nil {
				return err
			}
			expense.ID = id
			result.Synthesized = &expense
		}

		if err := tx.UpdatePaymentStatus(ctx, order.ID, next); err != nil {
			return err
		}
		order.PaymentStatus = next
		result.Order = order
		return nil
	})
	if err != nil {
		return OverrideResult{}, err
	}
	meta := map[string]any{
		"source":   SourceManualOverride.String(),
		"previous": string(result.Previous),
		"status":   string(result.Order.PaymentStatus),
	}
	if result.Synthesized != nil {
		meta["synthesized_expense_id"] = result.Synthesized.ID
		meta["synthesized_amount"] = result.Synthesized.Amount.StringFixed(2)
	}
	s.recordAudit(ctx, "ORDER_PAYMENT_OVERRIDE", result.Order.ID, meta)
	s.invalidate(ctx, result.Order.ProjectID)
	return result, nil
}

// UpdateOrderStatus moves the fulfillment status forward.
func (s *Service) UpdateOrderStatus(ctx context.Context, orderID int64, status OrderStatus) (SupplierOrder, error) {
	var updated SupplierOrder
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if err := s.ensureProjectOpen(ctx, tx, order.ProjectID); err != nil {
			return err
		}
		next, err := NextOrderStatus(order.Status, status)
		if err != nil {
			return err
		}
		if err := tx.UpdateOrderStatus(ctx, order.ID, next); err != nil {
			return err
		}
		order.Status = next
		updated = order
		return nil
	})
	if err != nil {
		return SupplierOrder{}, err
	}
	s.recordAudit(ctx, "ORDER_STATUS", updated.ID, map[string]any{"status": string(updated.Status)})
	s.invalidate(ctx, updated.ProjectID)
	return updated, nil
}

// CreateOrderFromQuoteItem generates the single supplier order allowed for a quote item.
func (s *Service) CreateOrderFromQuoteItem(ctx context.Context, quoteItemID, supplierID int64) (SupplierOrder, error) {
	var created SupplierOrder
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		item, err := tx.LockQuoteItem(ctx, quoteItemID)
		if err != nil {
			return err
		}
		quote, err := tx.GetQuote(ctx, item.QuoteID)
		if err != nil {
			return err
		}
		if quote.ProjectID == nil {
			return ErrNoProject
		}
		project, err := tx.GetProject(ctx, *quote.ProjectID)
		if err != nil {
			return err
		}
		if project.Closed() {
			return ErrProjectClosed
		}
		if project.Status == ProjectStatusQuoting {
			return ErrProjectNotApproved
		}
		if item.OrderCreated {
			return ErrOrderAlreadyExists
		}
		if _, err := tx.GetSupplier(ctx, supplierID); err != nil {
			return err
		}

		code := PlaceholderCode
		if item.ProductCode != nil && *item.ProductCode != "" {
			code = *item.ProductCode
		}
		now := s.now()
		order := SupplierOrder{
			SupplierID:    supplierID,
			ProjectID:     quote.ProjectID,
			QuoteID:       &quote.ID,
			QuoteItemID:   &item.ID,
			Items:         Items{{Code: code, Name: item.Concept, Quantity: item.Quantity, UnitCost: item.CostArticle}},
			Status:        OrderStatusPending,
			PaymentStatus: PaymentStatusPending,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		id, err := tx.CreateOrder(ctx, order)
		if err != nil {
			return err
		}
		order.ID = id
		if err := tx.MarkQuoteItemOrdered(ctx, item.ID, id); err != nil {
			return err
		}
		created = order
		return nil
	})
	if err != nil {
		return SupplierOrder{}, err
	}
	s.recordAudit(ctx, "ORDER_FROM_QUOTE_ITEM", created.ID, map[string]any{"quote_item_id": quoteItemID})
	s.invalidate(ctx, created.ProjectID)
	return created, nil
}

// OrderInput carries editable order fields.
type OrderInput struct {
	SupplierID   int64
	ProjectID    *int64
	QuoteID      *int64
	TaskID       *int64
	Items        Items
	ExpectedDate *time.Time
}

// CreateSupplierOrder persists a new PENDING order and syncs quote costs.
func (s *Service) CreateSupplierOrder(ctx context.Context, input OrderInput) (SupplierOrder, error) {
	if err := input.Items.Validate(); err != nil {
		return SupplierOrder{}, err
	}
	now := s.now()
	order := SupplierOrder{
		SupplierID:    input.SupplierID,
		ProjectID:     input.ProjectID,
		QuoteID:       input.QuoteID,
		TaskID:        input.TaskID,
		Items:         input.Items.Clone(),
		ExpectedDate:  input.ExpectedDate,
		Status:        OrderStatusPending,
		PaymentStatus: PaymentStatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.GetSupplier(ctx, input.SupplierID); err != nil {
			return err
		}
		if err := s.ensureProjectOpen(ctx, tx, input.ProjectID); err != nil {
			return err
		}
		id, err := tx.CreateOrder(ctx, order)
		if err != nil {
			return err
		}
		order.ID = id
		return nil
	})
	if err != nil {
		return SupplierOrder{}, err
	}
	s.syncQuoteCosts(ctx, order.Items)
	s.recordAudit(ctx, "ORDER_CREATE", order.ID, map[string]any{"supplier_id": order.SupplierID, "total": order.Total().StringFixed(2)})
	s.invalidate(ctx, order.ProjectID)
	return order, nil
}

// UpdateSupplierOrder edits an order and syncs quote costs. The payment
// status is re-derived when the order already has ledger entries.
func (s *Service) UpdateSupplierOrder(ctx context.Context, orderID int64, input OrderInput) (SupplierOrder, error) {
	if err := input.Items.Validate(); err != nil {
		return SupplierOrder{}, err
	}
	var updated SupplierOrder
	var previousProject *int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if err := s.ensureProjectOpen(ctx, tx, order.ProjectID); err != nil {
			return err
		}
		if _, err := tx.GetSupplier(ctx, input.SupplierID); err != nil {
			return err
		}
		if err := s.ensureProjectOpen(ctx, tx, input.ProjectID); err != nil {
			return err
		}
		previousProject = order.ProjectID

		order.SupplierID = input.SupplierID
		order.ProjectID = input.ProjectID
		order.QuoteID = input.QuoteID
		order.TaskID = input.TaskID
		order.Items = input.Items.Clone()
		order.ExpectedDate = input.ExpectedDate
		order.UpdatedAt = s.now()

		entries, err := tx.ListExpensesByOrder(ctx, order.ID)
		if err != nil {
			return err
		}
		if len(entries) > 0 {
			paid := TotalPaid(entries)
			total := order.Total()
			if paid.GreaterThan(total.Add(s.policy.Epsilon)) {
				return ErrTotalBelowPaid
			}
			status, err := NextPaymentStatus(SourceLedger, "", paid, total, s.policy.Epsilon)
			if err != nil {
				return err
			}
			order.PaymentStatus = status
		}
		if err := tx.UpdateOrder(ctx, order); err != nil {
			return err
		}
		updated = order
		return nil
	})
	if err != nil {
		return SupplierOrder{}, err
	}
	s.syncQuoteCosts(ctx, updated.Items)
	s.recordAudit(ctx, "ORDER_UPDATE", updated.ID, map[string]any{"total": updated.Total().StringFixed(2)})
	s.invalidate(ctx, updated.ProjectID)
	if previousProject != nil && (updated.ProjectID == nil || *previousProject != *updated.ProjectID) {
		s.invalidate(ctx, previousProject)
	}
	return updated, nil
}

// DuplicateSupplierOrder copies an order into a new unpaid PENDING order.
// Project, quote item and ledger entries are not carried over.
func (s *Service) DuplicateSupplierOrder(ctx context.Context, orderID int64) (SupplierOrder, error) {
	source, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return SupplierOrder{}, err
	}
	now := s.now()
	dup := SupplierOrder{
		SupplierID:    source.SupplierID,
		QuoteID:       source.QuoteID,
		TaskID:        source.TaskID,
		Items:         source.Items.Clone(),
		ExpectedDate:  source.ExpectedDate,
		Status:        OrderStatusPending,
		PaymentStatus: PaymentStatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.CreateOrder(ctx, dup)
		if err != nil {
			return err
		}
		dup.ID = id
		return nil
	})
	if err != nil {
		return SupplierOrder{}, err
	}
	s.recordAudit(ctx, "ORDER_DUPLICATE", dup.ID, map[string]any{"source_id": orderID})
	s.invalidate(ctx, nil)
	return dup, nil
}

// DeleteResult reports what a deletion touched.
type DeleteResult struct {
	OrderID          int64 `json:"order_id"`
	DetachedExpenses int64 `json:"detached_expenses"`
}

// DeleteSupplierOrder removes an order. Its ledger entries are kept as
// accounting history and detached from the order; a quote item that
// generated it becomes available again.
func (s *Service) DeleteSupplierOrder(ctx context.Context, orderID int64) (DeleteResult, error) {
	var result DeleteResult
	var projectID *int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if err := s.ensureProjectOpen(ctx, tx, order.ProjectID); err != nil {
			return err
		}
		detached, err := tx.DetachExpenses(ctx, order.ID)
		if err != nil {
			return err
		}
		if order.QuoteItemID != nil {
			if err := tx.ReleaseQuoteItem(ctx, *order.QuoteItemID); err != nil {
				return err
			}
		}
		if err := tx.DeleteOrder(ctx, order.ID); err != nil {
			return err
		}
		projectID = order.ProjectID
		result = DeleteResult{OrderID: order.ID, DetachedExpenses: detached}
		return nil
	})
	if err != nil {
		return DeleteResult{}, err
	}
	s.recordAudit(ctx, "ORDER_DELETE", orderID, map[string]any{"detached_expenses": result.DetachedExpenses})
	s.invalidate(ctx, projectID)
	return result, nil
}

// GetOrder returns a single order.
func (s *Service) GetOrder(ctx context.Context, orderID int64) (SupplierOrder, error) {
	return s.repo.GetOrder(ctx, orderID)
}

// ListOrders returns a page of orders and the total count.
func (s *Service) ListOrders(ctx context.Context, filters ListFilters) ([]SupplierOrder, int, error) {
	if filters.Limit <= 0 || filters.Limit > 200 {
		filters.Limit = 50
	}
	if filters.Offset < 0 {
		filters.Offset = 0
	}
	return s.repo.ListOrders(ctx, filters)
}

// OrderBalance loads the order and its ledger concurrently and summarises the position.
func (s *Service) OrderBalance(ctx context.Context, orderID int64) (Balance, error) {
	var (
		order   SupplierOrder
		entries []VariableExpense
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		order, err = s.repo.GetOrder(gctx, orderID)
		return err
	})
	g.Go(func() error {
		var err error
		entries, err = s.repo.ListExpensesByOrder(gctx, orderID)
		return err
	})
	if err := g.Wait(); err != nil {
		return Balance{}, err
	}
	total := order.Total()
	paid := TotalPaid(entries)
	if entries == nil {
		entries = []VariableExpense{}
	}
	return Balance{
		OrderID:       order.ID,
		Total:         total,
		Paid:          paid,
		Pending:       PendingBalance(total, paid),
		PaymentStatus: order.PaymentStatus,
		Entries:       entries,
	}, nil
}

// Reconcile compares every order's stored payment status with its ledger.
func (s *Service) Reconcile(ctx context.Context) ([]Drift, error) {
	paidTotals, err := s.repo.ListPaidTotals(ctx)
	if err != nil {
		return nil, err
	}
	var drifts []Drift
	const pageSize = 200
	for offset := 0; ; offset += pageSize {
		page, total, err := s.repo.ListOrders(ctx, ListFilters{Limit: pageSize, Offset: offset})
		if err != nil {
			return nil, err
		}
		for _, order := range page {
			paid := paidTotals[order.ID]
			orderTotal := order.Total()
			derived := DerivePaymentStatus(paid, orderTotal, s.policy.Epsilon)
			overpaid := paid.GreaterThan(orderTotal.Add(s.policy.Epsilon))
			if derived != order.PaymentStatus || overpaid {
				drifts = append(drifts, Drift{
					OrderID:  order.ID,
					Stored:   order.PaymentStatus,
					Derived:  derived,
					Total:    orderTotal,
					Paid:     paid,
					Overpaid: overpaid,
				})
			}
		}
		if len(page) < pageSize || offset+len(page) >= total {
			break
		}
	}
	return drifts, nil
}

func (s *Service) ensureProjectOpen(ctx context.Context, tx TxRepository, projectID *int64) error {
	if projectID == nil {
		return nil
	}
	project, err := tx.GetProject(ctx, *projectID)
	if err != nil {
		return err
	}
	if project.Closed() {
		return ErrProjectClosed
	}
	return nil
}

func (s *Service) syncQuoteCosts(ctx context.Context, items Items) {
	for _, item := range items {
		code := strings.TrimSpace(item.Code)
		if !item.UnitCost.IsPositive() || code == "" || code == PlaceholderCode {
			continue
		}
		var affected int64
		err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			var err error
			affected, err = tx.SyncQuoteItemCost(ctx, code, item.UnitCost, CostSyncQuoteStatuses)
			return err
		})
		if err != nil {
			s.logger.Warn("quote cost sync failed", slog.String("product_code", code), slog.Any("error", err))
			continue
		}
		if affected > 0 {
			s.logger.Debug("quote cost synced", slog.String("product_code", code), slog.Int64("items", affected))
		}
	}
}

func (s *Service) invalidate(ctx context.Context, projectID *int64) {
	if s.views == nil {
		return
	}
	if err := s.views.Invalidate(ctx, InvalidationPaths(projectID)...); err != nil {
		s.logger.Warn("view invalidation failed", slog.Any("error", err))
	}
}

// InvalidationPaths lists the views that go stale after an order mutation.
func InvalidationPaths(projectID *int64) []string {
	paths := []string{"/suppliers", "/supplier-orders", "/accounting", "/dashboard"}
	if projectID != nil {
		paths = append(paths, fmt.Sprintf("/projects/%d", *projectID))
	}
	return paths
}

func (s *Service) observePayment(err error) {
	if s.metrics == nil {
		return
	}
	if err == nil {
		s.metrics.ObservePayment("registered")
		return
	}
	s.metrics.ObservePayment(Code(err))
}

func (s *Service) recordAudit(ctx context.Context, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{Action: action, Entity: "supplier_order", EntityID: fmt.Sprintf("%d", entityID), Meta: meta}); err != nil {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}

func defaultString(value string, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
