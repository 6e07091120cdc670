package repo

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Skotchmaster/shiken_shop/internal/models"
	"github.com/Skotchmaster/shiken_shop/internal/storage"
	"github.com/Skotchmaster/shiken_shop/pkg/hash"
	"github.com/Skotchmaster/shiken_shop/pkg/logging"
)

const (
	KeyUsers       = "users"
	KeyProducts    = "products"
	KeyOrders      = "orders"
	KeyCart        = "cart"
	KeyCurrentUser = "currentUser"
)

// Repo gives typed access to the persisted collections. Shared holds users,
// products and orders; Local holds the per-session cart and current user.
type Repo struct {
	Shared storage.Store
	Local  storage.Store
}

func New(shared, local storage.Store) *Repo {
	return &Repo{Shared: shared, Local: local}
}

// legacyUser accepts every user shape that has been written to the users key.
type legacyUser struct {
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	FullName     string    `json:"fullName"`
	Username     string    `json:"username"`
	Password     string    `json:"password"`
	PasswordHash string    `json:"passwordHash"`
	Role         string    `json:"role"`
	BirthDate    string    `json:"birthDate"`
	RegisteredAt time.Time `json:"registeredAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

func (l legacyUser) normalize() (models.User, bool, error) {
	changed := false
	u := models.User{
		Email:        strings.ToLower(strings.TrimSpace(l.Email)),
		Name:         l.Name,
		PasswordHash: l.PasswordHash,
		Role:         l.Role,
		BirthDate:    l.BirthDate,
		RegisteredAt: l.RegisteredAt,
		UpdatedAt:    l.UpdatedAt,
	}
	if u.Email != l.Email {
		changed = true
	}
	if u.Name == "" {
		switch {
		case l.FullName != "":
			u.Name = l.FullName
		case l.Username != "":
			u.Name = l.Username
		}
		changed = changed || u.Name != ""
	}
	if u.PasswordHash == "" && l.Password != "" {
		if hash.IsHash(l.Password) {
			u.PasswordHash = l.Password
		} else {
			h, err := hash.HashPassword(l.Password)
			if err != nil {
				return u, false, fmt.Errorf("hash legacy password for %s: %w", u.Email, err)
			}
			u.PasswordHash = h
		}
	}
	if l.Password != "" {
		changed = true
	}
	if !models.ValidRole(u.Role) {
		u.Role = models.RoleBuyer
		changed = true
	}
	return u, changed, nil
}

func (r *Repo) Users(ctx context.Context) ([]models.User, error) {
	raw, err := storage.Load(ctx, r.Shared, KeyUsers, []legacyUser{})
	if err != nil {
		return nil, err
	}

	users := make([]models.User, 0, len(raw))
	migrated := 0
	for _, l := range raw {
		u, changed, err := l.normalize()
		if err != nil {
			return nil, err
		}
		if changed {
			migrated++
		}
		users = append(users, u)
	}

	if migrated > 0 {
		logging.FromContext(ctx).Info("users_normalized", "count", migrated)
		if err := r.SaveUsers(ctx, users); err != nil {
			return nil, err
		}
	}
	return users, nil
}

func (r *Repo) SaveUsers(ctx context.Context, users []models.User) error {
	return storage.Save(ctx, r.Shared, KeyUsers, users)
}

func (r *Repo) Products(ctx context.Context) ([]models.Product, error) {
	return storage.Load(ctx, r.Shared, KeyProducts, []models.Product{})
}

func (r *Repo) SaveProducts(ctx context.Context, products []models.Product) error {
	return storage.Save(ctx, r.Shared, KeyProducts, products)
}

func (r *Repo) Orders(ctx context.Context) ([]models.Order, error) {
	return storage.Load(ctx, r.Shared, KeyOrders, []models.Order{})
}

func (r *Repo) SaveOrders(ctx context.Context, orders []models.Order) error {
	return storage.Save(ctx, r.Shared, KeyOrders, orders)
}

func (r *Repo) Cart(ctx context.Context) ([]models.CartItem, error) {
	return storage.Load(ctx, r.Local, KeyCart, []models.CartItem{})
}

func (r *Repo) SaveCart(ctx context.Context, cart []models.CartItem) error {
	if cart == nil {
		cart = []models.CartItem{}
	}
	return storage.Save(ctx, r.Local, KeyCart, cart)
}

// CurrentUser returns nil when nobody is logged in on this session.
func (r *Repo) CurrentUser(ctx context.Context) (*models.User, error) {
	return storage.Load[*models.User](ctx, r.Local, KeyCurrentUser, nil)
}

func (r *Repo) SaveCurrentUser(ctx context.Context, u models.User) error {
	pub := u.Public()
	return storage.Save(ctx, r.Local, KeyCurrentUser, &pub)
}

func (r *Repo) ClearCurrentUser(ctx context.Context) error {
	return r.Local.Delete(ctx, KeyCurrentUser)
}
