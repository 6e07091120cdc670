package service

import (
	"context"
	"fmt"

	"github.com/Skotchmaster/shiken_shop/internal/events"
	"github.com/Skotchmaster/shiken_shop/internal/models"
	"github.com/Skotchmaster/shiken_shop/internal/notify"
	"github.com/Skotchmaster/shiken_shop/internal/pricing"
	"github.com/Skotchmaster/shiken_shop/pkg/logging"
)

type CartService struct {
	Deps
}

type CartView struct {
	Items []models.CartItem `json:"items"`
	Count int               `json:"count"`
	Total float64           `json:"total"`
}

type AddResult struct {
	Item   models.CartItem `json:"item"`
	Added  int             `json:"added"`
	Capped bool            `json:"capped"`
}

func viewOfCart(items []models.CartItem) CartView {
	count := 0
	for _, it := range items {
		count += it.Quantity
	}
	if items == nil {
		items = []models.CartItem{}
	}
	return CartView{Items: items, Count: count, Total: pricing.CartTotal(items)}
}

func (s *CartService) Cart(ctx context.Context) (CartView, error) {
	items, err := s.Repo.Cart(ctx)
	if err != nil {
		return CartView{}, err
	}
	return viewOfCart(items), nil
}

func (s *CartService) cartKey(ctx context.Context) string {
	if u, _ := s.Repo.CurrentUser(ctx); u != nil {
		return u.Email
	}
	return "guest"
}

// AddToCart adds qty units (at least one) of a product. A request above the
// available stock is clamped and reported through Capped, never as an error.
func (s *CartService) AddToCart(ctx context.Context, productID string, qty int) (AddResult, error) {
	l := logging.FromContext(ctx).With("svc", "cart.add", "product", productID)

	if qty < 1 {
		qty = 1
	}

	products, err := s.Repo.Products(ctx)
	if err != nil {
		l.Error("add_to_cart_error", "status", 500, "error", err)
		return AddResult{}, err
	}
	pi := findProduct(products, productID)
	if pi < 0 || !products[pi].Active() {
		l.Warn("add_to_cart_error", "status", 404, "reason", "product not found")
		return AddResult{}, fmt.Errorf("product %s: %w", productID, ErrNotFound)
	}
	p := products[pi]

	cart, err := s.Repo.Cart(ctx)
	if err != nil {
		l.Error("add_to_cart_error", "status", 500, "error", err)
		return AddResult{}, err
	}

	idx := -1
	for i := range cart {
		if cart[i].ProductID == productID {
			idx = i
			break
		}
	}

	if p.Stock <= 0 {
		if idx >= 0 {
			cart = append(cart[:idx], cart[idx+1:]...)
			if err := s.Repo.SaveCart(ctx, cart); err != nil {
				l.Error("add_to_cart_error", "status", 500, "error", err)
				return AddResult{}, err
			}
		}
		l.Warn("add_to_cart_error", "status", 409, "reason", "out of stock")
		s.toast(notify.Warning, p.Name+" is out of stock")
		return AddResult{}, fmt.Errorf("product %s: %w", productID, ErrOutOfStock)
	}

	have := 0
	if idx >= 0 {
		have = cart[idx].Quantity
	}
	want := have + qty
	newQty := want
	if newQty > p.Stock {
		newQty = p.Stock
	}
	res := AddResult{Added: newQty - have, Capped: want > p.Stock}

	if res.Added <= 0 {
		res.Added = 0
		res.Capped = true
		if have > p.Stock {
			// stock shrank below the line since it was added
			cart[idx].Quantity = p.Stock
			cart[idx].Stock = p.Stock
			if err := s.Repo.SaveCart(ctx, cart); err != nil {
				l.Error("add_to_cart_error", "status", 500, "error", err)
				return AddResult{}, err
			}
		}
		res.Item = cart[idx]
		s.toast(notify.Warning, fmt.Sprintf("Only %d units of %s available", p.Stock, p.Name))
		l.Info("add_to_cart_capped", "stock", p.Stock)
		return res, nil
	}

	item := models.CartItem{
		ProductID: p.ID,
		Name:      p.Name,
		Image:     p.Image,
		Price:     pricing.ProductPrice(p),
		Stock:     p.Stock,
		Quantity:  newQty,
	}
	if idx >= 0 {
		cart[idx] = item
	} else {
		cart = append(cart, item)
	}
	if err := s.Repo.SaveCart(ctx, cart); err != nil {
		l.Error("add_to_cart_error", "status", 500, "error", err)
		return AddResult{}, err
	}
	res.Item = item

	s.publish(ctx, events.TopicCart, s.cartKey(ctx), map[string]any{
		"type":      "cart_item_added",
		"productId": p.ID,
		"quantity":  res.Added,
	})
	if res.Capped {
		s.toast(notify.Warning, fmt.Sprintf("Only %d units of %s available", p.Stock, p.Name))
	} else {
		s.toast(notify.Success, p.Name+" added to cart")
	}
	l.Info("add_to_cart_success", "quantity", item.Quantity, "capped", res.Capped)
	return res, nil
}

func (s *CartService) loadLine(ctx context.Context, index int) ([]models.CartItem, error) {
	cart, err := s.Repo.Cart(ctx)
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(cart) {
		return nil, fmt.Errorf("cart line %d: %w", index, ErrNotFound)
	}
	return cart, nil
}

// liveStock prefers the catalog's current stock over the snapshot in the line.
func (s *CartService) liveStock(ctx context.Context, it models.CartItem) (int, error) {
	products, err := s.Repo.Products(ctx)
	if err != nil {
		return 0, err
	}
	if i := findProduct(products, it.ProductID); i >= 0 {
		return products[i].Stock, nil
	}
	return it.Stock, nil
}

func (s *CartService) IncreaseQuantity(ctx context.Context, index int) (CartView, error) {
	l := logging.FromContext(ctx).With("svc", "cart.increase", "index", index)

	cart, err := s.loadLine(ctx, index)
	if err != nil {
		l.Warn("increase_quantity_error", "status", 404, "error", err)
		return CartView{}, err
	}
	stock, err := s.liveStock(ctx, cart[index])
	if err != nil {
		l.Error("increase_quantity_error", "status", 500, "error", err)
		return CartView{}, err
	}
	if stock <= 0 {
		s.toast(notify.Warning, cart[index].Name+" is out of stock")
		cart = append(cart[:index], cart[index+1:]...)
		if err := s.Repo.SaveCart(ctx, cart); err != nil {
			l.Error("increase_quantity_error", "status", 500, "error", err)
			return CartView{}, err
		}
		return viewOfCart(cart), nil
	}
	if cart[index].Quantity >= stock {
		s.toast(notify.Warning, fmt.Sprintf("Only %d units of %s available", stock, cart[index].Name))
		if cart[index].Quantity == stock {
			return viewOfCart(cart), nil
		}
		cart[index].Quantity = stock
		cart[index].Stock = stock
		if err := s.Repo.SaveCart(ctx, cart); err != nil {
			l.Error("increase_quantity_error", "status", 500, "error", err)
			return CartView{}, err
		}
		return viewOfCart(cart), nil
	}

	cart[index].Quantity++
	cart[index].Stock = stock
	if err := s.Repo.SaveCart(ctx, cart); err != nil {
		l.Error("increase_quantity_error", "status", 500, "error", err)
		return CartView{}, err
	}
	s.publish(ctx, events.TopicCart, s.cartKey(ctx), map[string]any{
		"type":      "cart_quantity_changed",
		"productId": cart[index].ProductID,
		"quantity":  cart[index].Quantity,
	})
	return viewOfCart(cart), nil
}

// DecreaseQuantity removes the line instead of leaving it at zero.
func (s *CartService) DecreaseQuantity(ctx context.Context, index int) (CartView, error) {
	l := logging.FromContext(ctx).With("svc", "cart.decrease", "index", index)

	cart, err := s.loadLine(ctx, index)
	if err != nil {
		l.Warn("decrease_quantity_error", "status", 404, "error", err)
		return CartView{}, err
	}
	if cart[index].Quantity <= 1 {
		return s.RemoveItem(ctx, index)
	}

	cart[index].Quantity--
	if err := s.Repo.SaveCart(ctx, cart); err != nil {
		l.Error("decrease_quantity_error", "status", 500, "error", err)
		return CartView{}, err
	}
	s.publish(ctx, events.TopicCart, s.cartKey(ctx), map[string]any{
		"type":      "cart_quantity_changed",
		"productId": cart[index].ProductID,
		"quantity":  cart[index].Quantity,
	})
	return viewOfCart(cart), nil
}

func (s *CartService) RemoveItem(ctx context.Context, index int) (CartView, error) {
	l := logging.FromContext(ctx).With("svc", "cart.remove", "index", index)

	cart, err := s.loadLine(ctx, index)
	if err != nil {
		l.Warn("remove_item_error", "status", 404, "error", err)
		return CartView{}, err
	}
	removed := cart[index]
	cart = append(cart[:index], cart[index+1:]...)
	if err := s.Repo.SaveCart(ctx, cart); err != nil {
		l.Error("remove_item_error", "status", 500, "error", err)
		return CartView{}, err
	}
	s.publish(ctx, events.TopicCart, s.cartKey(ctx), map[string]any{
		"type":      "cart_item_removed",
		"productId": removed.ProductID,
	})
	s.toast(notify.Info, removed.Name+" removed from cart")
	return viewOfCart(cart), nil
}

func (s *CartService) ClearCart(ctx context.Context) error {
	l := logging.FromContext(ctx).With("svc", "cart.clear")

	if err := s.Repo.SaveCart(ctx, nil); err != nil {
		l.Error("clear_cart_error", "status", 500, "error", err)
		return err
	}
	s.publish(ctx, events.TopicCart, s.cartKey(ctx), map[string]any{"type": "cart_cleared"})
	s.toast(notify.Info, "Cart cleared")
	l.Info("clear_cart_success")
	return nil
}
