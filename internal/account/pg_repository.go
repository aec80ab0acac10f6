package account

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func scanAccount(row pgx.Row) (*Account, error) {
	var a Account
	var phone *string

	err := row.Scan(
		&a.ID,
		&a.LastName,
		&a.FirstName,
		&a.Email,
		&phone,
		&a.PasswordHash,
		&a.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}

	a.Phone = phone
	return &a, nil
}

func (r *PgRepository) CreateAccount(ctx context.Context, acct *Account) (*Account, error) {
	id := acct.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	var phone *string
	if acct.Phone != nil && *acct.Phone != "" {
		phone = acct.Phone
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO patients (id, nom, prenom, email, telephone, password_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		RETURNING id, nom, prenom, email, telephone, password_hash, created_at
	`, id, acct.LastName, acct.FirstName, strings.ToLower(acct.Email), phone, acct.PasswordHash)

	created, err := scanAccount(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrEmailTaken
		}
		return nil, err
	}
	return created, nil
}

func (r *PgRepository) GetAccountByID(ctx context.Context, id uuid.UUID) (*Account, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, nom, prenom, email, telephone, password_hash, created_at
		FROM patients
		WHERE id = $1
	`, id)
	return scanAccount(row)
}

func (r *PgRepository) GetAccountByEmail(ctx context.Context, email string) (*Account, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, nom, prenom, email, telephone, password_hash, created_at
		FROM patients
		WHERE email = $1
	`, strings.ToLower(email))
	return scanAccount(row)
}
