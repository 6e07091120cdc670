package models

import (
	"time"
)

const (
	RoleAdmin = "admin"
	RoleBuyer = "buyer"
)

func ValidRole(r string) bool { return r == RoleAdmin || r == RoleBuyer }

type User struct {
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"passwordHash"`
	Role         string    `json:"role"`
	BirthDate    string    `json:"birthDate,omitempty"`
	RegisteredAt time.Time `json:"registeredAt"`
	UpdatedAt    time.Time `json:"updatedAt,omitempty"`
}

// Public is what leaves the process: the password hash is stripped.
func (u User) Public() User {
	u.PasswordHash = ""
	return u
}

type Product struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Category    string    `json:"category"`
	Price       float64   `json:"price"`
	Discount    float64   `json:"discount,omitempty"`
	Stock       int       `json:"stock"`
	Description string    `json:"description,omitempty"`
	Image       string    `json:"image,omitempty"`
	Rating      float64   `json:"rating,omitempty"`
	Disabled    bool      `json:"disabled,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt,omitempty"`
}

func (p Product) Active() bool { return !p.Disabled }

type CartItem struct {
	ProductID string  `json:"productId"`
	Name      string  `json:"name"`
	Image     string  `json:"image,omitempty"`
	Price     float64 `json:"price"`
	Stock     int     `json:"stock"`
	Quantity  int     `json:"quantity"`
}

type OrderItem struct {
	ProductID string  `json:"productId"`
	Name      string  `json:"name"`
	Image     string  `json:"image,omitempty"`
	Price     float64 `json:"price"`
	Quantity  int     `json:"quantity"`
	LineTotal float64 `json:"lineTotal"`
}

type Order struct {
	ID        string      `json:"id"`
	UserEmail string      `json:"userEmail"`
	Items     []OrderItem `json:"items"`
	Total     float64     `json:"total"`
	Status    OrderStatus `json:"status"`
	CreatedAt time.Time   `json:"createdAt"`
	UpdatedAt time.Time   `json:"updatedAt"`
}
