package pricing

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Skotchmaster/shiken_shop/internal/models"
)

func TestFinalPrice(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		price    float64
		discount float64
		want     float64
	}{
		{name: "no discount", price: 59.99, discount: 0, want: 59.99},
		{name: "ten percent", price: 59.99, discount: 10, want: 53.99},
		{name: "half", price: 41990, discount: 50, want: 20995},
		{name: "free", price: 20, discount: 100, want: 0},
		{name: "fractional", price: 0.1, discount: 33, want: 0.07},
		{name: "zero price", price: 0, discount: 25, want: 0},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, FinalPrice(tt.price, tt.discount))
		})
	}
}

func TestFinalPrice_MatchesFormulaForAllDiscounts(t *testing.T) {
	t.Parallel()

	for d := 0; d <= 100; d++ {
		got := FinalPrice(200, float64(d))
		assert.InDelta(t, 200*(1-float64(d)/100), got, 0.005, "discount %d", d)
	}
}

func TestTotals(t *testing.T) {
	t.Parallel()

	cart := []models.CartItem{
		{Price: 0.1, Quantity: 3},
		{Price: 0.2, Quantity: 1},
	}
	assert.Equal(t, 0.5, CartTotal(cart))
	assert.Equal(t, 0.0, CartTotal(nil))

	assert.Equal(t, 59.97, LineTotal(19.99, 3))

	items := []models.OrderItem{{LineTotal: 10.1}, {LineTotal: 20.2}}
	assert.Equal(t, 30.3, OrderTotal(items))

	assert.Equal(t, 0.3, Sum(0.1, 0.2))
}
