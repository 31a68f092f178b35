package orders

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTotalCost(t *testing.T) {
	items := Items{
		{Name: "Tarjetas", Quantity: dec("500"), UnitCost: dec("0.8")},
		{Name: "Lona", Quantity: dec("2"), UnitCost: dec("150.25")},
		{Name: "Sin costo"},
	}
	requireMoney(t, "700.5", TotalCost(items))
	requireMoney(t, "0", TotalCost(nil))
}

func TestParseItems(t *testing.T) {
	items := ParseItems([]byte(`[{"code":"A","name":"Lona","quantity":2,"unitCost":"10.5"}]`))
	require.Len(t, items, 1)
	require.Equal(t, "A", items[0].Code)
	requireMoney(t, "21", TotalCost(items))

	wrapped := ParseItems([]byte(`"[{\"name\":\"Vinil\",\"quantity\":3,\"unitCost\":4}]"`))
	require.Len(t, wrapped, 1)
	requireMoney(t, "12", TotalCost(wrapped))

	for _, raw := range []string{``, `null`, `{}`, `"not json"`, `[1,2`, `42`} {
		got := ParseItems([]byte(raw))
		require.NotNil(t, got, raw)
		require.Empty(t, got, raw)
		requireMoney(t, "0", TotalCost(got))
	}
}

func TestItemsScanAndValue(t *testing.T) {
	var items Items
	require.NoError(t, items.Scan([]byte(`[{"name":"Lona","quantity":1,"unitCost":5}]`)))
	require.Len(t, items, 1)

	require.NoError(t, items.Scan(nil))
	require.Empty(t, items)

	require.NoError(t, items.Scan(12))
	require.Empty(t, items)

	v, err := Items(nil).Value()
	require.NoError(t, err)
	require.Equal(t, "[]", v)

	v, err = Items{{Code: "A", Name: "Lona", Quantity: dec("1"), UnitCost: dec("5")}}.Value()
	require.NoError(t, err)
	var back Items
	require.NoError(t, back.Scan(v))
	require.Equal(t, "Lona", back[0].Name)
	requireMoney(t, "5", back[0].UnitCost)
}

func TestItemsValidate(t *testing.T) {
	require.ErrorIs(t, Items{}.Validate(), ErrInvalidItems)
	require.ErrorIs(t, Items{{Name: " ", Quantity: dec("1")}}.Validate(), ErrInvalidItems)
	require.ErrorIs(t, Items{{Name: "Lona", Quantity: dec("1"), UnitCost: dec("-1")}}.Validate(), ErrInvalidItems)
	require.NoError(t, Items{{Name: "Lona", Quantity: dec("0"), UnitCost: dec("0")}}.Validate())
}

func TestPolicyTaxAndDefaults(t *testing.T) {
	p := DefaultPolicy()
	requireMoney(t, "16", p.Tax(dec("100")))
	requireMoney(t, "0.16", p.Tax(dec("1")))

	n := Policy{VATRate: dec("-1")}.normalised()
	requireMoney(t, "0.16", n.VATRate)
	requireMoney(t, "0.01", n.Epsilon)
	require.Equal(t, "Material", n.DefaultCategory)
	require.Equal(t, "TRANSFER", n.DefaultPaymentMethod)
}
