package httpserver

import (
	"context"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/shiken_shop/internal/app"
	"github.com/Skotchmaster/shiken_shop/internal/service"
)

type addToCartRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

func lineIndex(c echo.Context) (int, error) {
	i, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		return 0, bad("index must be an integer")
	}
	return i, nil
}

func (h *Handler) GetCart(c echo.Context) error {
	var view service.CartView
	err := h.do(c, func(ctx context.Context, s *app.Session) (err error) {
		view, err = s.Cart.Cart(ctx)
		return err
	})
	if err != nil {
		return h.fail(c, "get_cart", err)
	}
	return c.JSON(http.StatusOK, view)
}

func (h *Handler) AddToCart(c echo.Context) error {
	var req addToCartRequest
	if err := c.Bind(&req); err != nil {
		return bad("invalid request body")
	}
	if req.ProductID == "" {
		return bad("productId required")
	}

	var res service.AddResult
	err := h.do(c, func(ctx context.Context, s *app.Session) (err error) {
		res, err = s.Cart.AddToCart(ctx, req.ProductID, req.Quantity)
		return err
	})
	if err != nil {
		return h.fail(c, "add_to_cart", err)
	}
	return c.JSON(http.StatusOK, res)
}

// cartLine wraps the index-addressed cart operations.
func (h *Handler) cartLine(op string, fn func(ctx context.Context, s *app.Session, index int) (service.CartView, error)) echo.HandlerFunc {
	return func(c echo.Context) error {
		i, err := lineIndex(c)
		if err != nil {
			return err
		}
		var view service.CartView
		err = h.do(c, func(ctx context.Context, s *app.Session) (err error) {
			view, err = fn(ctx, s, i)
			return err
		})
		if err != nil {
			return h.fail(c, op, err)
		}
		return c.JSON(http.StatusOK, view)
	}
}

func (h *Handler) IncreaseQuantity() echo.HandlerFunc {
	return h.cartLine("increase_quantity", func(ctx context.Context, s *app.Session, i int) (service.CartView, error) {
		return s.Cart.IncreaseQuantity(ctx, i)
	})
}

func (h *Handler) DecreaseQuantity() echo.HandlerFunc {
	return h.cartLine("decrease_quantity", func(ctx context.Context, s *app.Session, i int) (service.CartView, error) {
		return s.Cart.DecreaseQuantity(ctx, i)
	})
}

func (h *Handler) RemoveItem() echo.HandlerFunc {
	return h.cartLine("remove_item", func(ctx context.Context, s *app.Session, i int) (service.CartView, error) {
		return s.Cart.RemoveItem(ctx, i)
	})
}

func (h *Handler) ClearCart(c echo.Context) error {
	err := h.do(c, func(ctx context.Context, s *app.Session) error {
		return s.Cart.ClearCart(ctx)
	})
	if err != nil {
		return h.fail(c, "clear_cart", err)
	}
	return c.NoContent(http.StatusNoContent)
}
