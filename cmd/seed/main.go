package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"

	"github.com/clinicore/clinic-scheduling/internal/db"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	if err := seedMedecins(context.Background(), pool, 12); err != nil {
		log.Fatalf("seed medecins: %v", err)
	}
	if err := seedPatients(context.Background(), pool, 200); err != nil {
		log.Fatalf("seed patients: %v", err)
	}

	log.Println("seed complete")
}

func seedMedecins(ctx context.Context, pool *pgxpool.Pool, count int) error {
	log.Printf("seeding %d medecins", count)

	specialties := []string{
		"Médecine générale",
		"Cardiologie",
		"Dermatologie",
		"Pédiatrie",
		"Ophtalmologie",
		"ORL",
		"Rhumatologie",
		"Gynécologie",
	}

	for i := 0; i < count; i++ {
		specialty := specialties[i%len(specialties)]
		_, err := pool.Exec(ctx, `
			INSERT INTO medecins (id, nom, prenom, specialite, created_at, updated_at)
			VALUES ($1, $2, $3, $4, now(), now())
		`, uuid.New(), gofakeit.LastName(), gofakeit.FirstName(), specialty)
		if err != nil {
			return fmt.Errorf("insert medecin: %w", err)
		}
	}
	return nil
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, count int) error {
	log.Printf("seeding %d patients", count)

	// One shared hash keeps seeding fast; every seeded account logs in
	// with "motdepasse".
	hash, err := bcrypt.GenerateFromPassword([]byte("motdepasse"), bcrypt.MinCost)
	if err != nil {
		return fmt.Errorf("hash seed password: %w", err)
	}

	for i := 0; i < count; i++ {
		email := strings.ToLower(fmt.Sprintf("%s.%d@%s", gofakeit.Username(), i, gofakeit.DomainName()))
		_, err := pool.Exec(ctx, `
			INSERT INTO patients (id, nom, prenom, email, telephone, password_hash, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, now())
			ON CONFLICT (email) DO NOTHING
		`, uuid.New(), gofakeit.LastName(), gofakeit.FirstName(), email, gofakeit.Phone(), string(hash))
		if err != nil {
			return fmt.Errorf("insert patient: %w", err)
		}
	}
	return nil
}
