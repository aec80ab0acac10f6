package account

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrAccountNotFound = errors.New("account not found")
	ErrEmailTaken      = errors.New("an account with this email already exists")
)

type Repository interface {
	CreateAccount(ctx context.Context, acct *Account) (*Account, error)
	GetAccountByID(ctx context.Context, id uuid.UUID) (*Account, error)
	GetAccountByEmail(ctx context.Context, email string) (*Account, error)
}
