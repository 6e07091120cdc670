package service

import (
	"context"
	"sort"

	"github.com/Skotchmaster/shiken_shop/internal/models"
	"github.com/Skotchmaster/shiken_shop/internal/pricing"
)

const topProductsLimit = 5

type ProductSales struct {
	ProductID string  `json:"productId"`
	Name      string  `json:"name"`
	Units     int     `json:"units"`
	Revenue   float64 `json:"revenue"`
}

type SalesSummary struct {
	Orders      int                        `json:"orders"`
	ByStatus    map[models.OrderStatus]int `json:"byStatus"`
	Revenue     float64                    `json:"revenue"`
	UnitsSold   int                        `json:"unitsSold"`
	TopProducts []ProductSales             `json:"topProducts"`
}

// SalesSummary aggregates the order collection. Cancelled orders are counted
// per status but excluded from revenue and units.
func (s *OrderService) SalesSummary(ctx context.Context) (SalesSummary, error) {
	if _, err := s.requireAdmin(ctx); err != nil {
		return SalesSummary{}, err
	}
	orders, err := s.Repo.Orders(ctx)
	if err != nil {
		return SalesSummary{}, err
	}
	return summarize(orders), nil
}

func summarize(orders []models.Order) SalesSummary {
	sum := SalesSummary{
		Orders:      len(orders),
		ByStatus:    make(map[models.OrderStatus]int, len(models.Statuses())),
		TopProducts: []ProductSales{},
	}
	for _, st := range models.Statuses() {
		sum.ByStatus[st] = 0
	}

	totals := make([]float64, 0, len(orders))
	byProduct := map[string]*ProductSales{}
	var order []string
	for _, o := range orders {
		sum.ByStatus[o.Status]++
		if o.Status == models.StatusCancelled {
			continue
		}
		totals = append(totals, o.Total)
		for _, it := range o.Items {
			sum.UnitsSold += it.Quantity
			ps, ok := byProduct[it.ProductID]
			if !ok {
				ps = &ProductSales{ProductID: it.ProductID, Name: it.Name}
				byProduct[it.ProductID] = ps
				order = append(order, it.ProductID)
			}
			ps.Units += it.Quantity
			ps.Revenue = pricing.Sum(ps.Revenue, it.LineTotal)
		}
	}
	sum.Revenue = pricing.Sum(totals...)

	for _, id := range order {
		sum.TopProducts = append(sum.TopProducts, *byProduct[id])
	}
	sort.SliceStable(sum.TopProducts, func(i, j int) bool {
		return sum.TopProducts[i].Units > sum.TopProducts[j].Units
	})
	if len(sum.TopProducts) > topProductsLimit {
		sum.TopProducts = sum.TopProducts[:topProductsLimit]
	}
	return sum
}
