package app

import (
	"context"
	"time"

	"github.com/Skotchmaster/shiken_shop/internal/notify"
	"github.com/Skotchmaster/shiken_shop/internal/repo"
	"github.com/Skotchmaster/shiken_shop/internal/service"
	"github.com/Skotchmaster/shiken_shop/pkg/logging"
)

// Session is the application state of one browser session: its repo view,
// its toasts and the services bound to them.
type Session struct {
	ID       string
	Repo     *repo.Repo
	Notifier *notify.Notifier
	Auth     *service.AuthService
	Catalog  *service.CatalogService
	Cart     *service.CartService
	Orders   *service.OrderService

	lastSeen time.Time
}

// Open restores the persisted current user and drops it if the account no
// longer exists.
func (s *Session) Open(ctx context.Context) error {
	l := logging.FromContext(ctx).With("svc", "session.open", "sid", s.ID)

	cur, err := s.Repo.CurrentUser(ctx)
	if err != nil {
		l.Error("session_open_error", "error", err)
		return err
	}
	if cur == nil {
		return nil
	}
	users, err := s.Repo.Users(ctx)
	if err != nil {
		l.Error("session_open_error", "error", err)
		return err
	}
	for _, u := range users {
		if u.Email == cur.Email {
			return nil
		}
	}
	l.Warn("session_user_gone", "email", cur.Email)
	return s.Repo.ClearCurrentUser(ctx)
}

// Close ends the session: the current user is forgotten, the cart stays.
func (s *Session) Close(ctx context.Context) error {
	return s.Repo.ClearCurrentUser(ctx)
}
