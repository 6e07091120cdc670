package httpserver

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/shiken_shop/internal/app"
	"github.com/Skotchmaster/shiken_shop/internal/models"
	"github.com/Skotchmaster/shiken_shop/internal/service"
)

func (h *Handler) Checkout(c echo.Context) error {
	var order models.Order
	err := h.do(c, func(ctx context.Context, s *app.Session) (err error) {
		order, err = s.Orders.Checkout(ctx)
		return err
	})
	if err != nil {
		return h.fail(c, "checkout", err)
	}
	return c.JSON(http.StatusCreated, order)
}

func (h *Handler) MyOrders(c echo.Context) error {
	var orders []models.Order
	err := h.do(c, func(ctx context.Context, s *app.Session) (err error) {
		orders, err = s.Orders.MyOrders(ctx)
		return err
	})
	if err != nil {
		return h.fail(c, "my_orders", err)
	}
	return c.JSON(http.StatusOK, map[string]any{"data": orders})
}

func (h *Handler) GetOrder(c echo.Context) error {
	var order models.Order
	err := h.do(c, func(ctx context.Context, s *app.Session) (err error) {
		order, err = s.Orders.GetOrder(ctx, c.Param("id"))
		return err
	})
	if err != nil {
		return h.fail(c, "get_order", err)
	}
	return c.JSON(http.StatusOK, order)
}

func (h *Handler) CancelOrder(c echo.Context) error {
	var order models.Order
	err := h.do(c, func(ctx context.Context, s *app.Session) (err error) {
		order, err = s.Orders.CancelOrder(ctx, c.Param("id"))
		return err
	})
	if err != nil {
		return h.fail(c, "cancel_order", err)
	}
	return c.JSON(http.StatusOK, order)
}

func (h *Handler) Reorder(c echo.Context) error {
	var res service.ReorderResult
	err := h.do(c, func(ctx context.Context, s *app.Session) (err error) {
		res, err = s.Orders.Reorder(ctx, c.Param("id"))
		return err
	})
	if err != nil {
		return h.fail(c, "reorder", err)
	}
	return c.JSON(http.StatusOK, res)
}
