package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

type PricingRules struct {
	FreeShippingThreshold decimal.Decimal
	FlatShippingFee       decimal.Decimal
	PromoCode             string
	PromoRate             decimal.Decimal
}

func DefaultPricingRules() PricingRules {
	return PricingRules{
		FreeShippingThreshold: decimal.NewFromInt(500),
		FlatShippingFee:       decimal.NewFromInt(50),
		PromoCode:             "RAVOLUX10",
		PromoRate:             decimal.NewFromFloat(0.1),
	}
}

func NewPricingRules(threshold, fee float64, promoCode string, promoRate float64) PricingRules {
	return PricingRules{
		FreeShippingThreshold: decimal.NewFromFloat(threshold),
		FlatShippingFee:       decimal.NewFromFloat(fee),
		PromoCode:             promoCode,
		PromoRate:             decimal.NewFromFloat(promoRate),
	}
}

type Totals struct {
	Subtotal     decimal.Decimal `json:"subtotal"`
	ShippingCost decimal.Decimal `json:"shipping_cost"`
	Discount     decimal.Decimal `json:"discount"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
}

// ShippingCost is free strictly above the threshold.
func (r PricingRules) ShippingCost(subtotal decimal.Decimal) decimal.Decimal {
	if subtotal.GreaterThan(r.FreeShippingThreshold) {
		return decimal.Zero
	}
	return r.FlatShippingFee
}

func (r PricingRules) PromoApplies(code string) bool {
	code = strings.TrimSpace(code)
	return code != "" && r.PromoCode != "" && strings.EqualFold(code, r.PromoCode)
}

func (r PricingRules) Discount(subtotal decimal.Decimal, promoCode string) decimal.Decimal {
	if !r.PromoApplies(promoCode) {
		return decimal.Zero
	}
	return subtotal.Mul(r.PromoRate).Round(2)
}

// CalculateTotals guarantees TotalAmount == Subtotal + ShippingCost - Discount.
func (r PricingRules) CalculateTotals(subtotal decimal.Decimal, promoCode string) Totals {
	subtotal = subtotal.Round(2)
	shipping := r.ShippingCost(subtotal)
	discount := r.Discount(subtotal, promoCode)

	return Totals{
		Subtotal:     subtotal,
		ShippingCost: shipping,
		Discount:     discount,
		TotalAmount:  subtotal.Add(shipping).Sub(discount),
	}
}
