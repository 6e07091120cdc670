package service

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

const minAge = 13

type RegisterInput struct {
	Email     string `json:"email"     validate:"required,email"`
	Name      string `json:"name"      validate:"required,min=2,max=50"`
	Password  string `json:"password"  validate:"required,min=6,max=18"`
	BirthDate string `json:"birthDate" validate:"required,datetime=2006-01-02"`
}

// ProfileInput patches the current user; empty fields are left as they are.
type ProfileInput struct {
	Name     string `json:"name"     validate:"omitempty,min=2,max=50"`
	Password string `json:"password" validate:"omitempty,min=6,max=18"`
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		f := verrs[0]
		switch f.Field() {
		case "Email":
			return fmt.Errorf("invalid email format: %w", ErrValidation)
		case "Name":
			return fmt.Errorf("name must be 2-50 characters: %w", ErrValidation)
		case "Password":
			return fmt.Errorf("password must be 6-18 characters: %w", ErrValidation)
		case "BirthDate":
			return fmt.Errorf("birth date must be YYYY-MM-DD: %w", ErrValidation)
		}
		return fmt.Errorf("%s is invalid: %w", f.Field(), ErrValidation)
	}
	return fmt.Errorf("%v: %w", err, ErrValidation)
}

// checkPasswordStrength requires an upper-case letter, a lower-case letter and
// a digit.
func checkPasswordStrength(pw string) error {
	var upper, lower, digit bool
	for _, r := range pw {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	if !upper || !lower || !digit {
		return fmt.Errorf("password needs upper-case, lower-case and a digit: %w", ErrValidation)
	}
	return nil
}

func checkAge(birthDate string, now time.Time) error {
	bd, err := time.Parse("2006-01-02", birthDate)
	if err != nil {
		return fmt.Errorf("birth date must be YYYY-MM-DD: %w", ErrValidation)
	}
	if bd.After(now) {
		return fmt.Errorf("birth date is in the future: %w", ErrValidation)
	}
	if ageAt(bd, now) < minAge {
		return fmt.Errorf("must be at least %d years old: %w", minAge, ErrValidation)
	}
	return nil
}

func ageAt(bd, now time.Time) int {
	years := now.Year() - bd.Year()
	if now.Month() < bd.Month() || (now.Month() == bd.Month() && now.Day() < bd.Day()) {
		years--
	}
	return years
}

func normalizeEmail(s string) string { return strings.ToLower(strings.TrimSpace(s)) }
