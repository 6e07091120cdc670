package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/Skotchmaster/shiken_shop/internal/models"
)

var (
	ErrValidation         = errors.New("validation")
	ErrDuplicateUser      = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrLockedOut          = errors.New("too many failed login attempts")
	ErrAuthorization      = errors.New("forbidden")
	ErrUnauthenticated    = errors.New("not authenticated")
	ErrEmptyCart          = errors.New("cart is empty")
	ErrOutOfStock         = errors.New("out of stock")
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("conflict")
	ErrInvalidTransition  = errors.New("invalid status transition")
)

type LockedOutError struct {
	Identifier string
	RetryAfter time.Duration
}

func (e *LockedOutError) Error() string {
	return fmt.Sprintf("%s: retry in %s", ErrLockedOut, e.RetryAfter.Round(time.Second))
}

func (e *LockedOutError) Is(target error) bool { return target == ErrLockedOut }

type TransitionError struct {
	OrderID string
	From    models.OrderStatus
	To      models.OrderStatus
}

func (e *TransitionError) Error() string {
	if e.From.Terminal() {
		return fmt.Sprintf("%s: order %s is already %s", ErrInvalidTransition, e.OrderID, e.From)
	}
	return fmt.Sprintf("%s: order %s %s -> %s", ErrInvalidTransition, e.OrderID, e.From, e.To)
}

func (e *TransitionError) Is(target error) bool { return target == ErrInvalidTransition }
