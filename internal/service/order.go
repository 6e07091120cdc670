package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Skotchmaster/shiken_shop/internal/events"
	"github.com/Skotchmaster/shiken_shop/internal/models"
	"github.com/Skotchmaster/shiken_shop/internal/notify"
	"github.com/Skotchmaster/shiken_shop/internal/pricing"
	"github.com/Skotchmaster/shiken_shop/pkg/logging"
)

const orderPrefix = "ORD-"

type OrderService struct {
	Deps
	Cart          *CartService
	CheckoutDelay time.Duration
}

type ReorderResult struct {
	Added   []AddResult `json:"added"`
	Skipped []string    `json:"skipped"`
	Capped  []string    `json:"capped"`
	Cart    CartView    `json:"cart"`
}

func nextOrderID(orders []models.Order) string {
	highest := 0
	for _, o := range orders {
		if n, err := strconv.Atoi(strings.TrimPrefix(o.ID, orderPrefix)); err == nil && n > highest {
			highest = n
		}
	}
	return orderPrefix + strconv.Itoa(highest+1)
}

func findOrder(orders []models.Order, id string) int {
	for i := range orders {
		if orders[i].ID == id {
			return i
		}
	}
	return -1
}

func restock(products []models.Product, o models.Order) {
	for _, it := range o.Items {
		if i := findProduct(products, it.ProductID); i >= 0 {
			products[i].Stock += it.Quantity
		}
	}
}

func (s *OrderService) wait(ctx context.Context) error {
	if s.CheckoutDelay <= 0 {
		return nil
	}
	t := time.NewTimer(s.CheckoutDelay)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Checkout turns the session cart into a pending order. Stock is checked
// against the live catalog and decremented; orders are written before
// products, and the cart is emptied last.
func (s *OrderService) Checkout(ctx context.Context) (models.Order, error) {
	l := logging.FromContext(ctx).With("svc", "order.checkout")

	cart, err := s.Repo.Cart(ctx)
	if err != nil {
		l.Error("checkout_error", "status", 500, "error", err)
		return models.Order{}, err
	}
	if len(cart) == 0 {
		l.Warn("checkout_error", "status", 422, "reason", "empty cart")
		s.toast(notify.Warning, "Your cart is empty")
		return models.Order{}, ErrEmptyCart
	}

	user, err := s.requireUser(ctx)
	if err != nil {
		l.Warn("checkout_error", "status", 401, "reason", "login required")
		s.toast(notify.Warning, "Please log in to complete your purchase")
		return models.Order{}, err
	}
	l = l.With("email", user.Email)

	if err := s.wait(ctx); err != nil {
		l.Warn("checkout_error", "reason", "cancelled", "error", err)
		return models.Order{}, err
	}

	products, err := s.Repo.Products(ctx)
	if err != nil {
		l.Error("checkout_error", "status", 500, "error", err)
		return models.Order{}, err
	}

	items := make([]models.OrderItem, 0, len(cart))
	for _, line := range cart {
		i := findProduct(products, line.ProductID)
		if i < 0 || !products[i].Active() || products[i].Stock < line.Quantity {
			l.Warn("checkout_error", "status", 409, "reason", "out of stock", "product", line.ProductID)
			s.toast(notify.Warning, line.Name+" no longer has enough stock")
			return models.Order{}, fmt.Errorf("%s: %w", line.Name, ErrOutOfStock)
		}
		p := products[i]
		unit := pricing.ProductPrice(p)
		items = append(items, models.OrderItem{
			ProductID: p.ID,
			Name:      p.Name,
			Image:     p.Image,
			Price:     unit,
			Quantity:  line.Quantity,
			LineTotal: pricing.LineTotal(unit, line.Quantity),
		})
		products[i].Stock -= line.Quantity
	}

	orders, err := s.Repo.Orders(ctx)
	if err != nil {
		l.Error("checkout_error", "status", 500, "error", err)
		return models.Order{}, err
	}

	now := s.now()
	order := models.Order{
		ID:        nextOrderID(orders),
		UserEmail: user.Email,
		Items:     items,
		Total:     pricing.OrderTotal(items),
		Status:    models.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	orders = append(orders, order)

	if err := s.Repo.SaveOrders(ctx, orders); err != nil {
		l.Error("checkout_error", "status", 500, "error", err)
		return models.Order{}, err
	}
	if err := s.Repo.SaveProducts(ctx, products); err != nil {
		l.Error("checkout_error", "status", 500, "reason", "order saved, stock not updated", "error", err)
		return models.Order{}, err
	}
	if err := s.Repo.SaveCart(ctx, nil); err != nil {
		l.Error("checkout_error", "status", 500, "reason", "order saved, cart not cleared", "error", err)
		return models.Order{}, err
	}

	s.publish(ctx, events.TopicOrder, user.Email, map[string]any{
		"type":    "order_created",
		"orderId": order.ID,
		"total":   order.Total,
		"items":   len(order.Items),
	})
	s.toast(notify.Success, "Order "+order.ID+" placed")
	l.Info("checkout_success", "order", order.ID, "total", order.Total)
	return order, nil
}

func (s *OrderService) UpdateStatus(ctx context.Context, orderID string, status models.OrderStatus) (models.Order, error) {
	l := logging.FromContext(ctx).With("svc", "order.update_status", "order", orderID)

	admin, err := s.requireAdmin(ctx)
	if err != nil {
		l.Warn("update_status_error", "status", 403, "reason", err.Error())
		return models.Order{}, err
	}
	if !status.Valid() {
		return models.Order{}, fmt.Errorf("unknown status %q: %w", status, ErrValidation)
	}

	orders, err := s.Repo.Orders(ctx)
	if err != nil {
		l.Error("update_status_error", "status", 500, "error", err)
		return models.Order{}, err
	}
	i := findOrder(orders, orderID)
	if i < 0 {
		return models.Order{}, fmt.Errorf("order %s: %w", orderID, ErrNotFound)
	}

	from := orders[i].Status
	if !from.CanTransitionTo(status) {
		reason := "illegal transition"
		if from.Terminal() {
			reason = "terminal status"
		}
		l.Warn("update_status_error", "status", 409, "reason", reason, "from", from, "to", status)
		return models.Order{}, &TransitionError{OrderID: orderID, From: from, To: status}
	}

	if err := s.setStatus(ctx, orders, i, status); err != nil {
		l.Error("update_status_error", "status", 500, "error", err)
		return models.Order{}, err
	}

	s.publish(ctx, events.TopicOrder, orders[i].UserEmail, map[string]any{
		"type":    "order_status_changed",
		"orderId": orderID,
		"from":    string(from),
		"to":      string(status),
		"by":      admin.Email,
	})
	s.toast(notify.Success, "Order "+orderID+" is now "+string(status))
	l.Info("update_status_success", "from", from, "to", status)
	return orders[i], nil
}

// setStatus persists the new status; a move to cancelled returns the units
// to stock.
func (s *OrderService) setStatus(ctx context.Context, orders []models.Order, i int, status models.OrderStatus) error {
	orders[i].Status = status
	orders[i].UpdatedAt = s.now()
	if err := s.Repo.SaveOrders(ctx, orders); err != nil {
		return err
	}
	if status != models.StatusCancelled {
		return nil
	}
	products, err := s.Repo.Products(ctx)
	if err != nil {
		return err
	}
	restock(products, orders[i])
	return s.Repo.SaveProducts(ctx, products)
}

func canSee(u *models.User, o models.Order) bool {
	return u.Role == models.RoleAdmin || u.Email == o.UserEmail
}

func (s *OrderService) CancelOrder(ctx context.Context, orderID string) (models.Order, error) {
	l := logging.FromContext(ctx).With("svc", "order.cancel", "order", orderID)

	u, err := s.requireUser(ctx)
	if err != nil {
		return models.Order{}, err
	}
	orders, err := s.Repo.Orders(ctx)
	if err != nil {
		l.Error("cancel_order_error", "status", 500, "error", err)
		return models.Order{}, err
	}
	i := findOrder(orders, orderID)
	if i < 0 {
		return models.Order{}, fmt.Errorf("order %s: %w", orderID, ErrNotFound)
	}
	if !canSee(u, orders[i]) {
		l.Warn("cancel_order_error", "status", 403, "reason", "not the owner")
		return models.Order{}, fmt.Errorf("order %s: %w", orderID, ErrAuthorization)
	}
	if orders[i].Status != models.StatusPending {
		reason := "not pending"
		if orders[i].Status.Terminal() {
			reason = "terminal status"
		}
		l.Warn("cancel_order_error", "status", 409, "reason", reason, "current", orders[i].Status)
		s.toast(notify.Warning, "Only pending orders can be cancelled")
		return models.Order{}, &TransitionError{OrderID: orderID, From: orders[i].Status, To: models.StatusCancelled}
	}

	if err := s.setStatus(ctx, orders, i, models.StatusCancelled); err != nil {
		l.Error("cancel_order_error", "status", 500, "error", err)
		return models.Order{}, err
	}

	s.publish(ctx, events.TopicOrder, orders[i].UserEmail, map[string]any{
		"type":    "order_cancelled",
		"orderId": orderID,
		"by":      u.Email,
	})
	s.toast(notify.Info, "Order "+orderID+" cancelled")
	l.Info("cancel_order_success")
	return orders[i], nil
}

// Reorder refills the cart from a delivered order. Lines whose product is
// gone or out of stock are skipped; lines limited by stock are capped.
func (s *OrderService) Reorder(ctx context.Context, orderID string) (ReorderResult, error) {
	l := logging.FromContext(ctx).With("svc", "order.reorder", "order", orderID)

	u, err := s.requireUser(ctx)
	if err != nil {
		return ReorderResult{}, err
	}
	orders, err := s.Repo.Orders(ctx)
	if err != nil {
		l.Error("reorder_error", "status", 500, "error", err)
		return ReorderResult{}, err
	}
	i := findOrder(orders, orderID)
	if i < 0 {
		return ReorderResult{}, fmt.Errorf("order %s: %w", orderID, ErrNotFound)
	}
	o := orders[i]
	if o.UserEmail != u.Email {
		return ReorderResult{}, fmt.Errorf("order %s: %w", orderID, ErrAuthorization)
	}
	if o.Status != models.StatusDelivered {
		l.Warn("reorder_error", "status", 409, "reason", "not delivered", "current", o.Status)
		return ReorderResult{}, fmt.Errorf("only delivered orders can be reordered: %w", ErrConflict)
	}

	res := ReorderResult{Added: []AddResult{}, Skipped: []string{}, Capped: []string{}}
	for _, it := range o.Items {
		added, err := s.Cart.AddToCart(ctx, it.ProductID, it.Quantity)
		switch {
		case errors.Is(err, ErrNotFound), errors.Is(err, ErrOutOfStock):
			res.Skipped = append(res.Skipped, it.ProductID)
			continue
		case err != nil:
			l.Error("reorder_error", "status", 500, "error", err)
			return ReorderResult{}, err
		}
		if added.Capped {
			res.Capped = append(res.Capped, it.ProductID)
		}
		res.Added = append(res.Added, added)
	}

	view, err := s.Cart.Cart(ctx)
	if err != nil {
		return ReorderResult{}, err
	}
	res.Cart = view

	s.publish(ctx, events.TopicOrder, u.Email, map[string]any{
		"type":    "order_reordered",
		"orderId": orderID,
		"skipped": len(res.Skipped),
	})
	l.Info("reorder_success", "added", len(res.Added), "skipped", len(res.Skipped), "capped", len(res.Capped))
	return res, nil
}

func (s *OrderService) MyOrders(ctx context.Context) ([]models.Order, error) {
	u, err := s.requireUser(ctx)
	if err != nil {
		return nil, err
	}
	orders, err := s.Repo.Orders(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.Order, 0)
	for _, o := range orders {
		if o.UserEmail == u.Email {
			out = append(out, o)
		}
	}
	return out, nil
}

// AllOrders lists every order, optionally only those in status.
func (s *OrderService) AllOrders(ctx context.Context, status models.OrderStatus) ([]models.Order, error) {
	if _, err := s.requireAdmin(ctx); err != nil {
		return nil, err
	}
	if status != "" && !status.Valid() {
		return nil, fmt.Errorf("unknown status %q: %w", status, ErrValidation)
	}
	orders, err := s.Repo.Orders(ctx)
	if err != nil {
		return nil, err
	}
	if status == "" {
		return orders, nil
	}
	out := make([]models.Order, 0)
	for _, o := range orders {
		if o.Status == status {
			out = append(out, o)
		}
	}
	return out, nil
}

func (s *OrderService) GetOrder(ctx context.Context, orderID string) (models.Order, error) {
	u, err := s.requireUser(ctx)
	if err != nil {
		return models.Order{}, err
	}
	orders, err := s.Repo.Orders(ctx)
	if err != nil {
		return models.Order{}, err
	}
	i := findOrder(orders, orderID)
	if i < 0 {
		return models.Order{}, fmt.Errorf("order %s: %w", orderID, ErrNotFound)
	}
	if !canSee(u, orders[i]) {
		return models.Order{}, fmt.Errorf("order %s: %w", orderID, ErrAuthorization)
	}
	return orders[i], nil
}
