package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Skotchmaster/shiken_shop/internal/events"
	"github.com/Skotchmaster/shiken_shop/internal/models"
	"github.com/Skotchmaster/shiken_shop/internal/notify"
	"github.com/Skotchmaster/shiken_shop/internal/repo"
)

// Deps is what every service of one session shares.
type Deps struct {
	Repo     *repo.Repo
	Notifier *notify.Notifier
	Events   events.Publisher
	Now      func() time.Time
}

func (d Deps) now() time.Time {
	if d.Now != nil {
		return d.Now().UTC()
	}
	return time.Now().UTC()
}

func (d Deps) toast(level notify.Level, msg string) {
	if d.Notifier != nil {
		d.Notifier.Push(level, msg)
	}
}

func (d Deps) publish(ctx context.Context, topic, key string, event map[string]any) {
	events.Publish(ctx, d.Events, topic, key, event)
}

// currentUser resolves the logged-in user against the users collection so
// that role changes made by an admin apply immediately.
func (d Deps) currentUser(ctx context.Context) (*models.User, error) {
	cur, err := d.Repo.CurrentUser(ctx)
	if err != nil {
		return nil, err
	}
	if cur == nil {
		return nil, nil
	}
	users, err := d.Repo.Users(ctx)
	if err != nil {
		return nil, err
	}
	for i := range users {
		if users[i].Email == cur.Email {
			u := users[i]
			return &u, nil
		}
	}
	return nil, nil
}

func (d Deps) requireUser(ctx context.Context) (*models.User, error) {
	u, err := d.currentUser(ctx)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, fmt.Errorf("login required: %w", ErrUnauthenticated)
	}
	return u, nil
}

func (d Deps) requireRole(ctx context.Context, role string) (*models.User, error) {
	u, err := d.requireUser(ctx)
	if err != nil {
		return nil, err
	}
	if u.Role != role {
		return nil, fmt.Errorf("%s role required: %w", role, ErrAuthorization)
	}
	return u, nil
}

func (d Deps) requireAdmin(ctx context.Context) (*models.User, error) {
	return d.requireRole(ctx, models.RoleAdmin)
}

func findProduct(products []models.Product, id string) int {
	for i := range products {
		if products[i].ID == id {
			return i
		}
	}
	return -1
}

func normalizeCategory(c string) string { return strings.ToLower(strings.TrimSpace(c)) }
