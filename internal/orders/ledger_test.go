package orders

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDerivePaymentStatus(t *testing.T) {
	eps := dec("0.01")
	cases := []struct {
		name  string
		paid  string
		total string
		want  PaymentStatus
	}{
		{"nothing paid", "0", "200", PaymentStatusPending},
		{"negative ledger", "-5", "200", PaymentStatusPending},
		{"partial", "50", "200", PaymentStatusPartial},
		{"within a cent", "199.99", "200", PaymentStatusPaid},
		{"two cents short", "199.98", "200", PaymentStatusPartial},
		{"exact", "200", "200", PaymentStatusPaid},
		{"zero total paid", "0.5", "0", PaymentStatusPaid},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, DerivePaymentStatus(dec(tc.paid), dec(tc.total), eps))
		})
	}
}

func TestNextPaymentStatus(t *testing.T) {
	eps := dec("0.01")

	got, err := NextPaymentStatus(SourceLedger, PaymentStatusPending, dec("200"), dec("200"), eps)
	require.NoError(t, err)
	require.Equal(t, PaymentStatusPaid, got, "ledger ignores the requested target")

	got, err = NextPaymentStatus(SourceManualOverride, PaymentStatusPartial, dec("0"), dec("200"), eps)
	require.NoError(t, err)
	require.Equal(t, PaymentStatusPartial, got)

	_, err = NextPaymentStatus(SourceManualOverride, PaymentStatus("VOID"), dec("0"), dec("200"), eps)
	require.ErrorIs(t, err, ErrInvalidStatus)

	_, err = NextPaymentStatus(TransitionSource(9), PaymentStatusPaid, dec("0"), dec("200"), eps)
	require.ErrorIs(t, err, ErrInvalidStatus)

	require.Equal(t, "ledger", SourceLedger.String())
	require.Equal(t, "manual_override", SourceManualOverride.String())
}

func TestNextOrderStatus(t *testing.T) {
	cases := []struct {
		from, to OrderStatus
		err      error
	}{
		{OrderStatusPending, OrderStatusPending, nil},
		{OrderStatusPending, OrderStatusOrdered, nil},
		{OrderStatusPending, OrderStatusReceived, nil},
		{OrderStatusOrdered, OrderStatusReceived, nil},
		{OrderStatusReceived, OrderStatusOrdered, ErrInvalidTransition},
		{OrderStatusOrdered, OrderStatusPending, ErrInvalidTransition},
		{OrderStatusPending, OrderStatus("CANCELLED"), ErrInvalidStatus},
	}
	for _, tc := range cases {
		got, err := NextOrderStatus(tc.from, tc.to)
		if tc.err != nil {
			require.ErrorIs(t, err, tc.err, "%s -> %s", tc.from, tc.to)
			continue
		}
		require.NoError(t, err)
		require.Equal(t, tc.to, got)
	}
}

func TestPendingBalanceAndTotalPaid(t *testing.T) {
	entries := []VariableExpense{{Amount: dec("50")}, {Amount: dec("25.5")}}
	requireMoney(t, "75.5", TotalPaid(entries))
	requireMoney(t, "124.5", PendingBalance(dec("200"), TotalPaid(entries)))
	requireMoney(t, "-10", PendingBalance(dec("100"), dec("110")))
	requireMoney(t, "0", TotalPaid(nil))
}
