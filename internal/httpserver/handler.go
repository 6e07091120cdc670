package httpserver

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/shiken_shop/internal/app"
	"github.com/Skotchmaster/shiken_shop/internal/service"
	"github.com/Skotchmaster/shiken_shop/pkg/logging"
	authmw "github.com/Skotchmaster/shiken_shop/pkg/middleware/auth"
)

type Handler struct {
	Manager  *app.Manager
	Sessions *authmw.SessionMiddleware
	// Ready reports whether the storage backend answers. Nil means always ready.
	Ready func(ctx context.Context) error
}

// do runs fn against the caller's session. Afterwards the session cookie is
// re-signed whenever the logged-in user or role no longer matches it.
func (h *Handler) do(c echo.Context, fn func(ctx context.Context, s *app.Session) error) error {
	ctx := c.Request().Context()
	return h.Manager.Do(ctx, authmw.SessionID(c), func(ctx context.Context, s *app.Session) error {
		err := fn(ctx, s)
		if serr := h.syncCookie(ctx, c, s); serr != nil && err == nil {
			err = serr
		}
		return err
	})
}

func (h *Handler) syncCookie(ctx context.Context, c echo.Context, s *app.Session) error {
	email, role := "", ""
	cur, err := s.Repo.CurrentUser(ctx)
	if err != nil {
		return err
	}
	if cur != nil {
		email, role = cur.Email, cur.Role
	}
	if email == authmw.UserID(c) && role == authmw.Role(c) {
		return nil
	}
	return h.Sessions.Issue(c, s.ID, email, role)
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, service.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrUnauthenticated), errors.Is(err, service.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrAuthorization):
		return http.StatusForbidden
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrDuplicateUser),
		errors.Is(err, service.ErrConflict),
		errors.Is(err, service.ErrInvalidTransition),
		errors.Is(err, service.ErrOutOfStock):
		return http.StatusConflict
	case errors.Is(err, service.ErrEmptyCart):
		return http.StatusUnprocessableEntity
	case errors.Is(err, service.ErrLockedOut):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// fail converts a service error into the HTTP error echo renders.
func (h *Handler) fail(c echo.Context, op string, err error) error {
	l := logging.FromContext(c.Request().Context()).With("handler", op)
	status := statusOf(err)

	if le, ok := service.IsLockedOut(err); ok {
		secs := int(le.RetryAfter.Seconds())
		if secs < 1 {
			secs = 1
		}
		c.Response().Header().Set("Retry-After", strconv.Itoa(secs))
	}

	if status == http.StatusInternalServerError {
		l.Error(op+"_error", "status", status, "error", err)
		return echo.NewHTTPError(status, "internal error")
	}
	l.Warn(op+"_error", "status", status, "reason", err.Error())
	return echo.NewHTTPError(status, err.Error())
}

func bad(msg string) error {
	return echo.NewHTTPError(http.StatusBadRequest, msg)
}

func (h *Handler) Live(c echo.Context) error { return c.NoContent(http.StatusOK) }

func (h *Handler) ReadyCheck(c echo.Context) error {
	if h.Ready != nil {
		if err := h.Ready(c.Request().Context()); err != nil {
			logging.FromContext(c.Request().Context()).Error("ready_error", "status", 503, "error", err)
			return c.NoContent(http.StatusServiceUnavailable)
		}
	}
	return c.NoContent(http.StatusOK)
}

// EndSession forgets the session: the current user is logged out and the
// cookie is expired, so the next request starts a fresh session.
func (h *Handler) EndSession(c echo.Context) error {
	if err := h.Manager.End(c.Request().Context(), authmw.SessionID(c)); err != nil {
		return h.fail(c, "end_session", err)
	}
	h.Sessions.Clear(c)
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) Notifications(c echo.Context) error {
	var out any
	err := h.do(c, func(_ context.Context, s *app.Session) error {
		out = s.Notifier.Drain()
		return nil
	})
	if err != nil {
		return h.fail(c, "notifications", err)
	}
	return c.JSON(http.StatusOK, map[string]any{"data": out})
}
