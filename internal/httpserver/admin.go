package httpserver

import (
	"context"
	"net/http"
	"net/url"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/shiken_shop/internal/app"
	"github.com/Skotchmaster/shiken_shop/internal/models"
	"github.com/Skotchmaster/shiken_shop/internal/service"
)

type statusRequest struct {
	Status models.OrderStatus `json:"status"`
}

type roleRequest struct {
	Role string `json:"role"`
}

func (h *Handler) CreateProduct(c echo.Context) error {
	var req service.ProductInput
	if err := c.Bind(&req); err != nil {
		return bad("invalid request body")
	}

	var p service.ProductView
	err := h.do(c, func(ctx context.Context, s *app.Session) (err error) {
		p, err = s.Catalog.CreateProduct(ctx, req)
		return err
	})
	if err != nil {
		return h.fail(c, "create_product", err)
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) PatchProduct(c echo.Context) error {
	var req service.ProductPatch
	if err := c.Bind(&req); err != nil {
		return bad("invalid request body")
	}

	var p service.ProductView
	err := h.do(c, func(ctx context.Context, s *app.Session) (err error) {
		p, err = s.Catalog.UpdateProduct(ctx, c.Param("id"), req)
		return err
	})
	if err != nil {
		return h.fail(c, "patch_product", err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) DeleteProduct(c echo.Context) error {
	err := h.do(c, func(ctx context.Context, s *app.Session) error {
		return s.Catalog.DeleteProduct(ctx, c.Param("id"))
	})
	if err != nil {
		return h.fail(c, "delete_product", err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) AllOrders(c echo.Context) error {
	status := models.OrderStatus(c.QueryParam("status"))

	var orders []models.Order
	err := h.do(c, func(ctx context.Context, s *app.Session) (err error) {
		orders, err = s.Orders.AllOrders(ctx, status)
		return err
	})
	if err != nil {
		return h.fail(c, "all_orders", err)
	}
	return c.JSON(http.StatusOK, map[string]any{"data": orders})
}

func (h *Handler) UpdateOrderStatus(c echo.Context) error {
	var req statusRequest
	if err := c.Bind(&req); err != nil {
		return bad("invalid request body")
	}

	var order models.Order
	err := h.do(c, func(ctx context.Context, s *app.Session) (err error) {
		order, err = s.Orders.UpdateStatus(ctx, c.Param("id"), req.Status)
		return err
	})
	if err != nil {
		return h.fail(c, "update_order_status", err)
	}
	return c.JSON(http.StatusOK, order)
}

func (h *Handler) ListUsers(c echo.Context) error {
	var users []models.User
	err := h.do(c, func(ctx context.Context, s *app.Session) (err error) {
		users, err = s.Auth.ListUsers(ctx)
		return err
	})
	if err != nil {
		return h.fail(c, "list_users", err)
	}
	return c.JSON(http.StatusOK, map[string]any{"data": users})
}

func (h *Handler) ChangeRole(c echo.Context) error {
	var req roleRequest
	if err := c.Bind(&req); err != nil {
		return bad("invalid request body")
	}

	email, err := url.PathUnescape(c.Param("email"))
	if err != nil {
		return bad("invalid email")
	}

	var user models.User
	err = h.do(c, func(ctx context.Context, s *app.Session) (err error) {
		user, err = s.Auth.ChangeRole(ctx, email, req.Role)
		return err
	})
	if err != nil {
		return h.fail(c, "change_role", err)
	}
	return c.JSON(http.StatusOK, user)
}

func (h *Handler) Sales(c echo.Context) error {
	var sum service.SalesSummary
	err := h.do(c, func(ctx context.Context, s *app.Session) (err error) {
		sum, err = s.Orders.SalesSummary(ctx)
		return err
	})
	if err != nil {
		return h.fail(c, "sales", err)
	}
	return c.JSON(http.StatusOK, sum)
}
