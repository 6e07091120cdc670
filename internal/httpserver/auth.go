package httpserver

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/shiken_shop/internal/app"
	"github.com/Skotchmaster/shiken_shop/internal/models"
	"github.com/Skotchmaster/shiken_shop/internal/service"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) Register(c echo.Context) error {
	var req service.RegisterInput
	if err := c.Bind(&req); err != nil {
		return bad("invalid request body")
	}

	var user models.User
	err := h.do(c, func(ctx context.Context, s *app.Session) (err error) {
		user, err = s.Auth.Register(ctx, req)
		return err
	})
	if err != nil {
		return h.fail(c, "register", err)
	}
	return c.JSON(http.StatusCreated, user)
}

func (h *Handler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return bad("invalid request body")
	}

	var user models.User
	err := h.do(c, func(ctx context.Context, s *app.Session) (err error) {
		user, err = s.Auth.Login(ctx, req.Email, req.Password)
		return err
	})
	if err != nil {
		return h.fail(c, "login", err)
	}
	return c.JSON(http.StatusOK, user)
}

func (h *Handler) Logout(c echo.Context) error {
	err := h.do(c, func(ctx context.Context, s *app.Session) error {
		return s.Auth.Logout(ctx)
	})
	if err != nil {
		return h.fail(c, "logout", err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) Me(c echo.Context) error {
	var user *models.User
	err := h.do(c, func(ctx context.Context, s *app.Session) (err error) {
		user, err = s.Auth.CurrentUser(ctx)
		return err
	})
	if err != nil {
		return h.fail(c, "me", err)
	}
	if user == nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "not logged in")
	}
	return c.JSON(http.StatusOK, user)
}

func (h *Handler) UpdateProfile(c echo.Context) error {
	var req service.ProfileInput
	if err := c.Bind(&req); err != nil {
		return bad("invalid request body")
	}

	var user models.User
	err := h.do(c, func(ctx context.Context, s *app.Session) (err error) {
		user, err = s.Auth.UpdateProfile(ctx, req)
		return err
	})
	if err != nil {
		return h.fail(c, "update_profile", err)
	}
	return c.JSON(http.StatusOK, user)
}
