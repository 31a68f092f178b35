package orders

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// ErrOrderNotFound indicates the supplier order does not exist.
	ErrOrderNotFound = errors.New("orders: order not found")
	// ErrItemNotFound indicates the quote item does not exist.
	ErrItemNotFound = errors.New("orders: quote item not found")
	// ErrSupplierNotFound indicates the supplier does not exist.
	ErrSupplierNotFound = errors.New("orders: supplier not found")
	// ErrNoProject indicates the quote item has no project to charge against.
	ErrNoProject = errors.New("orders: quote has no project")
	// ErrProjectClosed indicates the project rejects financial mutations.
	ErrProjectClosed = errors.New("orders: project closed")
	// ErrProjectNotApproved indicates the project is still being quoted.
	ErrProjectNotApproved = errors.New("orders: project not approved")
	// ErrOrderAlreadyExists indicates the quote item already produced an order.
	ErrOrderAlreadyExists = errors.New("orders: order already generated for quote item")
	// ErrInvalidAmount indicates a non-positive payment amount.
	ErrInvalidAmount = errors.New("orders: payment amount must be positive")
	// ErrAmountExceedsBalance indicates the payment is larger than what is owed.
	ErrAmountExceedsBalance = errors.New("orders: payment exceeds pending balance")
	// ErrInvalidItems indicates a malformed item list.
	ErrInvalidItems = errors.New("orders: invalid items")
	// ErrInvalidStatus indicates an unknown status value.
	ErrInvalidStatus = errors.New("orders: invalid status")
	// ErrInvalidTransition indicates a backwards fulfillment move.
	ErrInvalidTransition = errors.New("orders: invalid status transition")
	// ErrDuplicateSubmission indicates the idempotency key was already used.
	ErrDuplicateSubmission = errors.New("orders: duplicate submission")
	// ErrTotalBelowPaid indicates an edit would drop the total under what was already paid.
	ErrTotalBelowPaid = errors.New("orders: order total below amount paid")
)

// BalanceError carries the pending balance of a rejected payment.
type BalanceError struct {
	Amount  decimal.Decimal
	Pending decimal.Decimal
}

func (e *BalanceError) Error() string {
	return fmt.Sprintf("%s: amount %s, pending %s", ErrAmountExceedsBalance, e.Amount.StringFixed(2), e.Pending.StringFixed(2))
}

func (e *BalanceError) Unwrap() error {
	return ErrAmountExceedsBalance
}

// Kind classifies failures for callers.
type Kind string

const (
	KindNotFound     Kind = "not_found"
	KindInvalidInput Kind = "invalid_input"
	KindBusinessRule Kind = "business_rule"
	KindTransient    Kind = "transient"
)

// KindOf maps an error to its taxonomy kind. Unknown errors are transient.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrOrderNotFound), errors.Is(err, ErrItemNotFound), errors.Is(err, ErrSupplierNotFound):
		return KindNotFound
	case errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrInvalidItems), errors.Is(err, ErrInvalidStatus):
		return KindInvalidInput
	case errors.Is(err, ErrNoProject),
		errors.Is(err, ErrProjectClosed),
		errors.Is(err, ErrProjectNotApproved),
		errors.Is(err, ErrOrderAlreadyExists),
		errors.Is(err, ErrAmountExceedsBalance),
		errors.Is(err, ErrInvalidTransition),
		errors.Is(err, ErrDuplicateSubmission),
		errors.Is(err, ErrTotalBelowPaid):
		return KindBusinessRule
	default:
		return KindTransient
	}
}

var codes = []struct {
	err  error
	code string
}{
	{ErrOrderNotFound, "OrderNotFound"},
	{ErrItemNotFound, "ItemNotFound"},
	{ErrSupplierNotFound, "SupplierNotFound"},
	{ErrNoProject, "NoProject"},
	{ErrProjectClosed, "ProjectClosed"},
	{ErrProjectNotApproved, "ProjectNotApproved"},
	{ErrOrderAlreadyExists, "OrderAlreadyExists"},
	{ErrInvalidAmount, "InvalidAmount"},
	{ErrAmountExceedsBalance, "AmountExceedsBalance"},
	{ErrInvalidItems, "InvalidItems"},
	{ErrInvalidStatus, "InvalidStatus"},
	{ErrInvalidTransition, "InvalidTransition"},
	{ErrDuplicateSubmission, "DuplicateSubmission"},
	{ErrTotalBelowPaid, "TotalBelowPaid"},
}

// Code returns a stable identifier for a failure, or "Unexpected".
func Code(err error) string {
	if err == nil {
		return ""
	}
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return "Unexpected"
}
