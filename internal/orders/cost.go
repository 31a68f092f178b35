package orders

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Item is a single priced line of a supplier order.
type Item struct {
	Code     string          `json:"code"`
	Name     string          `json:"name"`
	Quantity decimal.Decimal `json:"quantity"`
	UnitCost decimal.Decimal `json:"unitCost"`
}

// Subtotal returns quantity times unit cost.
func (i Item) Subtotal() decimal.Decimal {
	return i.UnitCost.Mul(i.Quantity)
}

// Items is the ordered line list stored as JSONB on supplier_orders.
type Items []Item

// TotalCost sums unit cost times quantity across all items. Missing values count as zero.
func TotalCost(items Items) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Subtotal())
	}
	return total
}

// ParseItems decodes a stored item payload. Payloads that are not a JSON
// array, including JSON strings wrapping an array, fall back to the decoded
// inner array or to an empty list.
func ParseItems(raw []byte) Items {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return Items{}
	}
	if raw[0] == '"' {
		var inner string
		if err := json.Unmarshal(raw, &inner); err != nil {
			return Items{}
		}
		return ParseItems([]byte(inner))
	}
	var items Items
	if err := json.Unmarshal(raw, &items); err != nil || items == nil {
		return Items{}
	}
	return items
}

// Scan implements sql.Scanner.
func (it *Items) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*it = Items{}
	case []byte:
		*it = ParseItems(v)
	case string:
		*it = ParseItems([]byte(v))
	default:
		*it = Items{}
	}
	return nil
}

// Value implements driver.Valuer.
func (it Items) Value() (driver.Value, error) {
	if it == nil {
		return "[]", nil
	}
	raw, err := json.Marshal([]Item(it))
	if err != nil {
		return nil, fmt.Errorf("orders: encode items: %w", err)
	}
	return string(raw), nil
}

// Validate rejects empty lists, unnamed lines and negative quantities or costs.
func (it Items) Validate() error {
	if len(it) == 0 {
		return ErrInvalidItems
	}
	for _, item := range it {
		if strings.TrimSpace(item.Name) == "" || item.Quantity.IsNegative() || item.UnitCost.IsNegative() {
			return ErrInvalidItems
		}
	}
	return nil
}

// Clone returns an independent copy of the list.
func (it Items) Clone() Items {
	out := make(Items, len(it))
	copy(out, it)
	return out
}
