// Package pricing does the storefront's money arithmetic in decimal so
// that discounted prices and order totals do not drift.
package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/Skotchmaster/shiken_shop/internal/models"
)

const places = 2

var hundred = decimal.NewFromInt(100)

// FinalPrice is price * (1 - discount/100), rounded to cents.
func FinalPrice(price, discount float64) float64 {
	p := decimal.NewFromFloat(price)
	d := decimal.NewFromFloat(discount)
	f := p.Mul(hundred.Sub(d)).Div(hundred).Round(places)
	return f.InexactFloat64()
}

func ProductPrice(p models.Product) float64 {
	return FinalPrice(p.Price, p.Discount)
}

func LineTotal(unit float64, qty int) float64 {
	return decimal.NewFromFloat(unit).Mul(decimal.NewFromInt(int64(qty))).Round(places).InexactFloat64()
}

func CartTotal(items []models.CartItem) float64 {
	sum := decimal.Zero
	for _, it := range items {
		sum = sum.Add(decimal.NewFromFloat(it.Price).Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	return sum.Round(places).InexactFloat64()
}

func OrderTotal(items []models.OrderItem) float64 {
	sum := decimal.Zero
	for _, it := range items {
		sum = sum.Add(decimal.NewFromFloat(it.LineTotal))
	}
	return sum.Round(places).InexactFloat64()
}

// Sum adds already rounded amounts such as order totals.
func Sum(amounts ...float64) float64 {
	sum := decimal.Zero
	for _, a := range amounts {
		sum = sum.Add(decimal.NewFromFloat(a))
	}
	return sum.Round(places).InexactFloat64()
}
