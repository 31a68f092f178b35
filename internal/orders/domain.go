package orders

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderStatus tracks fulfillment of a supplier order.
type OrderStatus string

const (
	OrderStatusPending  OrderStatus = "PENDING"
	OrderStatusOrdered  OrderStatus = "ORDERED"
	OrderStatusReceived OrderStatus = "RECEIVED"
)

// PaymentStatus is derived from the ledger entries linked to an order.
type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "PENDING"
	PaymentStatusPartial PaymentStatus = "PARTIAL"
	PaymentStatusPaid    PaymentStatus = "PAID"
)

// Valid reports whether the status is one of the known payment states.
func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusPartial, PaymentStatusPaid:
		return true
	}
	return false
}

// ProjectStatus mirrors the project lifecycle.
type ProjectStatus string

const (
	ProjectStatusQuoting    ProjectStatus = "COTIZANDO"
	ProjectStatusApproved   ProjectStatus = "APROBADO"
	ProjectStatusProduction ProjectStatus = "EN_PRODUCCION"
	ProjectStatusDelivered  ProjectStatus = "ENTREGADO"
	ProjectStatusClosed     ProjectStatus = "CERRADO"
)

// QuoteStatus mirrors the client quote lifecycle.
type QuoteStatus string

const (
	QuoteStatusDraft    QuoteStatus = "DRAFT"
	QuoteStatusSaved    QuoteStatus = "SAVED"
	QuoteStatusSent     QuoteStatus = "SENT"
	QuoteStatusApproved QuoteStatus = "APPROVED"
	QuoteStatusRejected QuoteStatus = "REJECTED"
)

// CostSyncQuoteStatuses lists quote states whose items follow ordered costs.
var CostSyncQuoteStatuses = []QuoteStatus{QuoteStatusDraft, QuoteStatusSaved}

// SupplierOrder is a purchase order placed with a supplier.
type SupplierOrder struct {
	ID            int64         `json:"id"`
	SupplierID    int64         `json:"supplier_id"`
	ProjectID     *int64        `json:"project_id,omitempty"`
	QuoteID       *int64        `json:"quote_id,omitempty"`
	QuoteItemID   *int64        `json:"quote_item_id,omitempty"`
	TaskID        *int64        `json:"task_id,omitempty"`
	Items         Items         `json:"items"`
	ExpectedDate  *time.Time    `json:"expected_date,omitempty"`
	Status        OrderStatus   `json:"status"`
	PaymentStatus PaymentStatus `json:"payment_status"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// Total returns the computed order cost.
func (o SupplierOrder) Total() decimal.Decimal {
	return TotalCost(o.Items)
}

// VariableExpense is a ledger entry backing a real cash outflow.
type VariableExpense struct {
	ID              int64           `json:"id"`
	Reference       uuid.UUID       `json:"reference"`
	SupplierID      int64           `json:"supplier_id"`
	SupplierOrderID *int64          `json:"supplier_order_id,omitempty"`
	ProjectID       *int64          `json:"project_id,omitempty"`
	QuoteID         *int64          `json:"quote_id,omitempty"`
	Amount          decimal.Decimal `json:"amount"`
	IVA             decimal.Decimal `json:"iva"`
	Category        string          `json:"category"`
	Date            time.Time       `json:"date"`
	PaymentMethod   string          `json:"payment_method"`
	Description     string          `json:"description"`
}

// QuoteItem is a priced line of a client quote.
type QuoteItem struct {
	ID              int64           `json:"id"`
	QuoteID         int64           `json:"quote_id"`
	ProductCode     *string         `json:"product_code,omitempty"`
	Concept         string          `json:"concept"`
	Quantity        decimal.Decimal `json:"quantity"`
	CostArticle     decimal.Decimal `json:"cost_article"`
	OrderCreated    bool            `json:"order_created"`
	SupplierOrderID *int64          `json:"supplier_order_id,omitempty"`
}

// Quote groups quote items and links them to a project.
type Quote struct {
	ID        int64       `json:"id"`
	ProjectID *int64      `json:"project_id,omitempty"`
	Status    QuoteStatus `json:"status"`
}

// Project is the client engagement orders are charged against.
type Project struct {
	ID     int64         `json:"id"`
	Name   string        `json:"name"`
	Status ProjectStatus `json:"status"`
}

// Closed reports whether the project rejects further financial mutations.
func (p Project) Closed() bool {
	return p.Status == ProjectStatusClosed
}

// Supplier is the vendor an order is placed with.
type Supplier struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// ListFilters narrows order listings.
type ListFilters struct {
	SupplierID    int64
	ProjectID     int64
	PaymentStatus PaymentStatus
	Limit         int
	Offset        int
}

// Balance summarises the payment position of an order.
type Balance struct {
	OrderID       int64             `json:"order_id"`
	Total         decimal.Decimal   `json:"total"`
	Paid          decimal.Decimal   `json:"paid"`
	Pending       decimal.Decimal   `json:"pending"`
	PaymentStatus PaymentStatus     `json:"payment_status"`
	Entries       []VariableExpense `json:"entries"`
}

// Drift describes an order whose stored payment status disagrees with its ledger.
type Drift struct {
	OrderID  int64           `json:"order_id"`
	Stored   PaymentStatus   `json:"stored"`
	Derived  PaymentStatus   `json:"derived"`
	Total    decimal.Decimal `json:"total"`
	Paid     decimal.Decimal `json:"paid"`
	Overpaid bool            `json:"overpaid"`
}
