package orders

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/agency-erp/internal/platform/httpx"
	"github.com/odyssey-erp/agency-erp/internal/views"
)

const invalidRequest = "Solicitud no válida"

// Handler exposes supplier order endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	cache     *views.Cache
	validator *validator.Validate
}

// NewHandler builds Handler instance. cache may be nil.
func NewHandler(logger *slog.Logger, service *Service, cache *views.Cache) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, cache: cache, validator: validator.New()}
}

// MountRoutes registers supplier order routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.listOrders)
	r.Post("/", h.createOrder)
	r.Post("/from-quote-item", h.createFromQuoteItem)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.getOrder)
		r.Put("/", h.updateOrder)
		r.Delete("/", h.deleteOrder)
		r.Post("/duplicate", h.duplicateOrder)
		r.Get("/balance", h.orderBalance)
		r.Post("/payments", h.registerPayment)
		r.Put("/payment-status", h.updatePaymentStatus)
		r.Put("/status", h.updateOrderStatus)
	})
}

type itemRequest struct {
	Code     string          `json:"code" validate:"max=64"`
	Name     string          `json:"name" validate:"required"`
	Quantity decimal.Decimal `json:"quantity"`
	UnitCost decimal.Decimal `json:"unitCost"`
}

type orderRequest struct {
	SupplierID   int64         `json:"supplier_id" validate:"required,gt=0"`
	ProjectID    *int64        `json:"project_id" validate:"omitempty,gt=0"`
	QuoteID      *int64        `json:"quote_id" validate:"omitempty,gt=0"`
	TaskID       *int64        `json:"task_id" validate:"omitempty,gt=0"`
	Items        []itemRequest `json:"items" validate:"required,min=1,dive"`
	ExpectedDate string        `json:"expected_date" validate:"omitempty,datetime=2006-01-02"`
}

func (req orderRequest) input() OrderInput {
	items := make(Items, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, Item{Code: it.Code, Name: it.Name, Quantity: it.Quantity, UnitCost: it.UnitCost})
	}
	in := OrderInput{
		SupplierID: req.SupplierID,
		ProjectID:  req.ProjectID,
		QuoteID:    req.QuoteID,
		TaskID:     req.TaskID,
		Items:      items,
	}
	if req.ExpectedDate != "" {
		if date, err := time.Parse("2006-01-02", req.ExpectedDate); err == nil {
			in.ExpectedDate = &date
		}
	}
	return in
}

type paymentRequest struct {
	Amount        decimal.Decimal `json:"amount"`
	Description   string          `json:"description" validate:"max=255"`
	PaymentMethod string          `json:"payment_method" validate:"max=32"`
}

type statusRequest struct {
	Status string `json:"status" validate:"required"`
}

type fromQuoteItemRequest struct {
	QuoteItemID int64 `json:"quote_item_id" validate:"required,gt=0"`
	SupplierID  int64 `json:"supplier_id" validate:"required,gt=0"`
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	supplierID, _ := strconv.ParseInt(q.Get("supplier_id"), 10, 64)
	projectID, _ := strconv.ParseInt(q.Get("project_id"), 10, 64)
	filters := ListFilters{
		SupplierID:    supplierID,
		ProjectID:     projectID,
		PaymentStatus: PaymentStatus(q.Get("payment_status")),
		Limit:         limit,
		Offset:        offset,
	}
	if filters.PaymentStatus != "" && !filters.PaymentStatus.Valid() {
		h.respondError(w, r, ErrInvalidStatus)
		return
	}
	items, total, err := h.service.ListOrders(r.Context(), filters)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if items == nil {
		items = []SupplierOrder{}
	}
	httpx.Success(w, http.StatusOK, httpx.Fields{"orders": items, "total": total})
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orderID(w, r)
	if !ok {
		return
	}
	order, err := h.service.GetOrder(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.Success(w, http.StatusOK, httpx.Fields{"order": order, "total": order.Total()})
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req orderRequest
	if !h.decode(w, r, &req) {
		return
	}
	order, err := h.service.CreateSupplierOrder(r.Context(), req.input())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.Success(w, http.StatusCreated, httpx.Fields{"order": order})
}

func (h *Handler) updateOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orderID(w, r)
	if !ok {
		return
	}
	var req orderRequest
	if !h.decode(w, r, &req) {
		return
	}
	order, err := h.service.UpdateSupplierOrder(r.Context(), id, req.input())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.Success(w, http.StatusOK, httpx.Fields{"order": order})
}

func (h *Handler) deleteOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orderID(w, r)
	if !ok {
		return
	}
	result, err := h.service.DeleteSupplierOrder(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.Success(w, http.StatusOK, httpx.Fields{"order_id": result.OrderID, "detached_expenses": result.DetachedExpenses})
}

func (h *Handler) duplicateOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orderID(w, r)
	if !ok {
		return
	}
	order, err := h.service.DuplicateSupplierOrder(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.Success(w, http.StatusCreated, httpx.Fields{"order": order})
}

func (h *Handler) orderBalance(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orderID(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	key, err := h.cache.BuildKey(ctx, "/supplier-orders", "balance", strconv.FormatInt(id, 10))
	if err != nil {
		h.logger.Warn("balance cache key", slog.Any("error", err))
		key = ""
	}
	var balance Balance
	if key == "" {
		balance, err = h.service.OrderBalance(ctx, id)
	} else {
		err = h.cache.FetchJSON(ctx, key, &balance, func(ctx context.Context) (any, error) {
			return h.service.OrderBalance(ctx, id)
		})
	}
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.Success(w, http.StatusOK, httpx.Fields{"balance": balance})
}

func (h *Handler) registerPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orderID(w, r)
	if !ok {
		return
	}
	var req paymentRequest
	if !h.decode(w, r, &req) {
		return
	}
	result, err := h.service.RegisterOrderPayment(r.Context(), RegisterPaymentInput{
		OrderID:        id,
		Amount:         req.Amount,
		Description:    req.Description,
		PaymentMethod:  req.PaymentMethod,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.Success(w, http.StatusCreated, httpx.Fields{
		"order":   result.Order,
		"expense": result.Expense,
		"total":   result.Total,
		"paid":    result.Paid,
		"pending": result.Pending,
	})
}

func (h *Handler) updatePaymentStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orderID(w, r)
	if !ok {
		return
	}
	var req statusRequest
	if !h.decode(w, r, &req) {
		return
	}
	result, err := h.service.UpdatePaymentStatus(r.Context(), id, PaymentStatus(req.Status))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	fields := httpx.Fields{"order": result.Order, "previous": result.Previous}
	if result.Synthesized != nil {
		fields["synthesized"] = result.Synthesized
	}
	httpx.Success(w, http.StatusOK, fields)
}

func (h *Handler) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orderID(w, r)
	if !ok {
		return
	}
	var req statusRequest
	if !h.decode(w, r, &req) {
		return
	}
	order, err := h.service.UpdateOrderStatus(r.Context(), id, OrderStatus(req.Status))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.Success(w, http.StatusOK, httpx.Fields{"order": order})
}

func (h *Handler) createFromQuoteItem(w http.ResponseWriter, r *http.Request) {
	var req fromQuoteItemRequest
	if !h.decode(w, r, &req) {
		return
	}
	order, err := h.service.CreateOrderFromQuoteItem(r.Context(), req.QuoteItemID, req.SupplierID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.Success(w, http.StatusCreated, httpx.Fields{"order": order})
}

func (h *Handler) orderID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Failure(w, http.StatusBadRequest, invalidRequest, nil)
		return 0, false
	}
	return id, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(r, target); err != nil {
		h.logger.Debug("decode request", slog.String("path", r.URL.Path), slog.Any("error", err))
		httpx.Failure(w, http.StatusBadRequest, invalidRequest, nil)
		return false
	}
	if err := h.validator.Struct(target); err != nil {
		fields := httpx.Fields{}
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			invalid := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				invalid = append(invalid, fe.Namespace())
			}
			fields["fields"] = invalid
		}
		httpx.Failure(w, http.StatusBadRequest, invalidRequest, fields)
		return false
	}
	return true
}

// StatusFor maps a failure to its HTTP status code.
func StatusFor(err error) int {
	switch KindOf(err) {
	case KindNotFound:
		return http.StatusNotFound
	case KindInvalidInput:
		return http.StatusBadRequest
	case KindBusinessRule:
		if errors.Is(err, ErrDuplicateSubmission) || errors.Is(err, ErrOrderAlreadyExists) {
			return http.StatusConflict
		}
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	extra := httpx.Fields{"code": Code(err)}
	var balanceErr *BalanceError
	if errors.As(err, &balanceErr) {
		extra["pending_balance"] = balanceErr.Pending.StringFixed(2)
	}
	if status == http.StatusInternalServerError {
		h.logger.Error("supplier order request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.Failure(w, status, UserMessage(err), extra)
}
