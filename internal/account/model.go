package account

import (
	"time"

	"github.com/google/uuid"
)

type Account struct {
	ID           uuid.UUID
	LastName     string
	FirstName    string
	Email        string
	Phone        *string
	PasswordHash string
	CreatedAt    time.Time
}

// Registration is the signup payload embedded in an anonymous booking
// intent or posted directly to the inscription endpoint.
type Registration struct {
	LastName  string `json:"nom" validate:"required"`
	FirstName string `json:"prenom" validate:"required"`
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=8"`
	Phone     string `json:"telephone" validate:"omitempty,min=6"`
}
