package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/clinicore/clinic-scheduling/internal/auth"
	"github.com/clinicore/clinic-scheduling/internal/scheduling"
)

type RouterConfig struct {
	Scheduling  SchedulingService
	Bookings    BookingService
	Accounts    AccountService
	Sessions    *auth.SessionManager
	Location    *time.Location
	Logger      *zap.Logger
	PgPool      *pgxpool.Pool
	Redis       *redis.Client
	Env         string
	Version     string
	CORSOrigins []string
	RateLimit   int
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))
	if len(cfg.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}
	if cfg.RateLimit > 0 {
		r.Use(httprate.LimitByIP(cfg.RateLimit, time.Minute))
	}
	r.Use(IdentityMiddleware(cfg.Sessions))

	// Health endpoints
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/sante", health.Liveness)
	r.Get("/sante/pret", health.Readiness)

	// Public surface
	r.Route("/public", func(r chi.Router) {
		r.Get("/medecins", listMedecinsHandler(cfg.Scheduling))
		r.Get("/medecins/{id}/disponibilite", disponibiliteHandler(cfg.Scheduling, cfg.Location))
	})

	// Session endpoints
	r.Route("/auth", func(r chi.Router) {
		r.Post("/connexion", connexionHandler(cfg.Accounts, cfg.Sessions))
		r.Post("/deconnexion", deconnexionHandler())
		r.Get("/moi", moiHandler())
	})

	// Patient surface. Inscription and the booking submit accept anonymous
	// callers: the orchestrator creates the account before the intent is
	// submitted.
	r.Route("/patient", func(r chi.Router) {
		r.Post("/inscription", inscriptionHandler(cfg.Accounts, cfg.Sessions))
		r.Post("/rendezvous", createRendezVousHandler(cfg.Bookings, cfg.Sessions, cfg.Location))

		r.Group(func(r chi.Router) {
			r.Use(RequireRole(scheduling.RolePatient))
			r.Get("/rendezvous", listRendezVousHandler(cfg.Scheduling))
			r.Get("/rendezvous/{id}", getRendezVousHandler(cfg.Scheduling))
			r.Delete("/rendezvous/{id}", cancelRendezVousHandler(cfg.Scheduling))
		})
	})

	r.Route("/medecin", func(r chi.Router) {
		r.Use(RequireRole(scheduling.RolePractitioner))
		r.Get("/rendezvous", listRendezVousHandler(cfg.Scheduling))
		r.Get("/rendezvous/{id}", getRendezVousHandler(cfg.Scheduling))
		r.Post("/rendezvous/{id}/accepter", accepterRendezVousHandler(cfg.Scheduling))
		r.Post("/rendezvous/{id}/refuser", refuserRendezVousHandler(cfg.Scheduling))
		r.Post("/rendezvous/{id}/terminer", terminerRendezVousHandler(cfg.Scheduling))
	})

	r.Route("/secretaire", func(r chi.Router) {
		r.Use(RequireRole(scheduling.RoleSecretary))
		r.Get("/rendezvous", listRendezVousHandler(cfg.Scheduling))
		r.Get("/rendezvous/{id}", getRendezVousHandler(cfg.Scheduling))
		r.Post("/rendezvous", secretaireCreateHandler(cfg.Scheduling, cfg.Location))
		r.Delete("/rendezvous/{id}", cancelRendezVousHandler(cfg.Scheduling))
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(RequireRole(scheduling.RoleAdmin))
		r.Get("/rendezvous", listRendezVousHandler(cfg.Scheduling))
		r.Get("/rendezvous/{id}", getRendezVousHandler(cfg.Scheduling))
		r.Delete("/rendezvous/{id}", cancelRendezVousHandler(cfg.Scheduling))
	})

	return r
}
