package account

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrBadCredentials = errors.New("invalid email or password")
)

// ErrInvalidRegistration wraps validator failures on the signup payload.
var ErrInvalidRegistration = errors.New("invalid registration payload")

type Service struct {
	repo     Repository
	validate *validator.Validate
	log      *zap.Logger
}

func NewService(repo Repository, log *zap.Logger) *Service {
	return &Service{
		repo:     repo,
		validate: validator.New(),
		log:      log,
	}
}

// Register creates a patient account from the signup payload. A duplicate
// email surfaces as ErrEmailTaken so the caller can re-prompt without
// losing whatever else it was holding.
func (s *Service) Register(ctx context.Context, reg Registration) (*Account, error) {
	if err := s.validate.Struct(reg); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidRegistration, err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(reg.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	var phone *string
	if reg.Phone != "" {
		phone = &reg.Phone
	}

	created, err := s.repo.CreateAccount(ctx, &Account{
		LastName:     reg.LastName,
		FirstName:    reg.FirstName,
		Email:        reg.Email,
		Phone:        phone,
		PasswordHash: string(hash),
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("patient account created",
		zap.String("account_id", created.ID.String()),
	)
	return created, nil
}

// Authenticate checks an email/password pair against the stored hash.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*Account, error) {
	acct, err := s.repo.GetAccountByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil, ErrBadCredentials
		}
		return nil, fmt.Errorf("load account: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(password)); err != nil {
		return nil, ErrBadCredentials
	}
	return acct, nil
}
