package orders

import (
	"github.com/shopspring/decimal"
)

// TotalPaid sums the amounts of the ledger entries linked to an order.
func TotalPaid(entries []VariableExpense) decimal.Decimal {
	paid := decimal.Zero
	for _, entry := range entries {
		paid = paid.Add(entry.Amount)
	}
	return paid
}

// PendingBalance returns what is still owed. A negative result means the
// order is overpaid and accepts no further payments.
func PendingBalance(total, paid decimal.Decimal) decimal.Decimal {
	return total.Sub(paid)
}

// DerivePaymentStatus maps the ledger position of an order to a payment status.
func DerivePaymentStatus(paid, total, epsilon decimal.Decimal) PaymentStatus {
	if !paid.IsPositive() {
		return PaymentStatusPending
	}
	if paid.GreaterThanOrEqual(total.Sub(epsilon)) {
		return PaymentStatusPaid
	}
	return PaymentStatusPartial
}

// TransitionSource identifies who is allowed to move a payment status.
type TransitionSource int

const (
	// SourceLedger derives the status from the ledger sum.
	SourceLedger TransitionSource = iota
	// SourceManualOverride sets the requested status as-is.
	SourceManualOverride
)

func (s TransitionSource) String() string {
	if s == SourceManualOverride {
		return "manual_override"
	}
	return "ledger"
}

// NextPaymentStatus is the single transition function for PaymentStatus.
// Ledger transitions ignore target and follow paid vs total; manual
// overrides accept any known status.
func NextPaymentStatus(source TransitionSource, target PaymentStatus, paid, total, epsilon decimal.Decimal) (PaymentStatus, error) {
	switch source {
	case SourceLedger:
		return DerivePaymentStatus(paid, total, epsilon), nil
	case SourceManualOverride:
		if !target.Valid() {
			return "", ErrInvalidStatus
		}
		return target, nil
	default:
		return "", ErrInvalidStatus
	}
}

// NextOrderStatus validates a fulfillment move. Only forward moves along
// PENDING -> ORDERED -> RECEIVED, or staying put, are allowed.
func NextOrderStatus(current, target OrderStatus) (OrderStatus, error) {
	rank := map[OrderStatus]int{
		OrderStatusPending:  0,
		OrderStatusOrdered:  1,
		OrderStatusReceived: 2,
	}
	to, ok := rank[target]
	if !ok {
		return "", ErrInvalidStatus
	}
	from, ok := rank[current]
	if !ok {
		from = 0
	}
	if to < from {
		return "", ErrInvalidTransition
	}
	return target, nil
}
