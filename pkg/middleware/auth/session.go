package middleware

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/shiken_shop/pkg/logging"
	"github.com/Skotchmaster/shiken_shop/pkg/tokens"
)

const (
	CookieName = "session"

	ctxSessionID = "sid"
	ctxUserID    = "user_id"
	ctxRole      = "role"
)

// SessionMiddleware binds every request to a storefront session carried in a
// signed cookie. Requests without a valid cookie get a fresh anonymous one.
type SessionMiddleware struct {
	Secret []byte
	TTL    time.Duration
	Path   string
}

func NewSessionMiddleware(secret []byte, ttl time.Duration) *SessionMiddleware {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &SessionMiddleware{Secret: secret, TTL: ttl, Path: "/"}
}

func (m *SessionMiddleware) Attach(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		l := logging.FromContext(c.Request().Context()).With("mw", "session")

		if ck, err := c.Cookie(CookieName); err == nil && ck.Value != "" {
			claims, err := tokens.SessionClaimsFromToken(ck.Value, m.Secret)
			if err == nil {
				setSessionContext(c, claims.ID, claims.Subject, claims.Role)
				return next(c)
			}
			l.Debug("session_cookie_rejected", "reason", err.Error())
		}

		sid := tokens.NewSessionID()
		if err := m.Issue(c, sid, "", ""); err != nil {
			l.Error("session_issue_error", "status", 500, "error", err)
			return echo.NewHTTPError(http.StatusInternalServerError, "could not start session")
		}
		return next(c)
	}
}

// Issue signs a cookie for sid with the given user and role and updates the
// request context to match.
func (m *SessionMiddleware) Issue(c echo.Context, sid, email, role string) error {
	tok, exp, err := tokens.SignSession(sid, email, role, m.Secret, m.TTL)
	if err != nil {
		return err
	}
	c.SetCookie(tokens.CreateCookie(CookieName, tok, m.Path, exp))
	setSessionContext(c, sid, email, role)
	return nil
}

// Clear expires the session cookie on the client.
func (m *SessionMiddleware) Clear(c echo.Context) {
	c.SetCookie(tokens.DeleteCookie(CookieName, m.Path))
	setSessionContext(c, "", "", "")
}

func (m *SessionMiddleware) RequireLogin(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if UserID(c) == "" {
			return echo.NewHTTPError(http.StatusUnauthorized, "login required")
		}
		return next(c)
	}
}

func (m *SessionMiddleware) RequireAdmin(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if UserID(c) == "" {
			return echo.NewHTTPError(http.StatusUnauthorized, "login required")
		}
		if Role(c) != "admin" {
			return echo.NewHTTPError(http.StatusForbidden, "admin access required")
		}
		return next(c)
	}
}

func setSessionContext(c echo.Context, sid, email, role string) {
	c.Set(ctxSessionID, sid)
	c.Set(ctxUserID, email)
	c.Set(ctxRole, role)
}

func SessionID(c echo.Context) string { return str(c, ctxSessionID) }

func UserID(c echo.Context) string { return str(c, ctxUserID) }

func Role(c echo.Context) string { return str(c, ctxRole) }

func str(c echo.Context, key string) string {
	v, _ := c.Get(key).(string)
	return v
}
