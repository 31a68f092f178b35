package orders

import "github.com/shopspring/decimal"

// Policy holds the financial constants applied by the lifecycle manager.
type Policy struct {
	VATRate              decimal.Decimal `envconfig:"VAT_RATE" default:"0.16"`
	Epsilon              decimal.Decimal `envconfig:"EPSILON" default:"0.01"`
	DefaultCategory      string          `envconfig:"DEFAULT_CATEGORY" default:"Material"`
	DefaultPaymentMethod string          `envconfig:"DEFAULT_PAYMENT_METHOD" default:"TRANSFER"`
}

// DefaultPolicy returns the Mexican VAT policy with a one-cent tolerance.
func DefaultPolicy() Policy {
	return Policy{
		VATRate:              decimal.RequireFromString("0.16"),
		Epsilon:              decimal.RequireFromString("0.01"),
		DefaultCategory:      "Material",
		DefaultPaymentMethod: "TRANSFER",
	}
}

func (p Policy) normalised() Policy {
	def := DefaultPolicy()
	if p.VATRate.IsNegative() {
		p.VATRate = def.VATRate
	}
	if !p.Epsilon.IsPositive() {
		p.Epsilon = def.Epsilon
	}
	if p.DefaultCategory == "" {
		p.DefaultCategory = def.DefaultCategory
	}
	if p.DefaultPaymentMethod == "" {
		p.DefaultPaymentMethod = def.DefaultPaymentMethod
	}
	return p
}

// Tax returns the VAT portion for a pre-tax amount.
func (p Policy) Tax(amount decimal.Decimal) decimal.Decimal {
	return amount.Mul(p.VATRate).Round(2)
}
