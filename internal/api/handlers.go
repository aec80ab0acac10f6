package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/clinicore/clinic-scheduling/internal/account"
	"github.com/clinicore/clinic-scheduling/internal/auth"
	"github.com/clinicore/clinic-scheduling/internal/booking"
	"github.com/clinicore/clinic-scheduling/internal/scheduling"
)

// SchedulingService is the slice of the scheduling core the handlers use.
type SchedulingService interface {
	ListPractitioners(ctx context.Context) ([]scheduling.Practitioner, error)
	Availability(ctx context.Context, practitionerID uuid.UUID, date time.Time) (scheduling.Availability, error)
	CreateConfirmed(ctx context.Context, actor scheduling.Actor, req scheduling.CreateRequest) (*scheduling.Appointment, error)
	Accept(ctx context.Context, actor scheduling.Actor, id uuid.UUID) (*scheduling.Appointment, error)
	Refuse(ctx context.Context, actor scheduling.Actor, id uuid.UUID, reason string) (*scheduling.Appointment, error)
	Cancel(ctx context.Context, actor scheduling.Actor, id uuid.UUID) (*scheduling.Appointment, error)
	Complete(ctx context.Context, actor scheduling.Actor, id uuid.UUID) (*scheduling.Appointment, error)
	Get(ctx context.Context, actor scheduling.Actor, id uuid.UUID) (*scheduling.Appointment, error)
	ListForActor(ctx context.Context, actor scheduling.Actor) ([]scheduling.Appointment, error)
}

// BookingService drives patient bookings through the orchestrator.
type BookingService interface {
	Submit(ctx context.Context, intent *booking.Intent, identity *auth.Identity) (*scheduling.Appointment, error)
}

// AccountService backs inscription and connexion.
type AccountService interface {
	Register(ctx context.Context, reg account.Registration) (*account.Account, error)
	Authenticate(ctx context.Context, email, password string) (*account.Account, error)
}

func listMedecinsHandler(svc SchedulingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pracs, err := svc.ListPractitioners(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		resp := MedecinListResponse{Medecins: make([]MedecinResponse, 0, len(pracs))}
		for _, p := range pracs {
			resp.Medecins = append(resp.Medecins, toMedecinResponse(p))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func disponibiliteHandler(svc SchedulingService, loc *time.Location) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		medecinID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_medecin_id", "id must be a valid UUID")
			return
		}

		date, err := scheduling.ParseDate(r.URL.Query().Get("date"), loc)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}

		avail, err := svc.Availability(r.Context(), medecinID, date)
		if err != nil {
			handleScheduleError(w, err)
			return
		}

		creneaux := make([]string, 0, len(avail.Slots))
		for _, s := range avail.Slots {
			creneaux = append(creneaux, s.String())
		}
		writeJSON(w, http.StatusOK, DisponibiliteResponse{
			Date:     avail.Date.Format(scheduling.DateLayout),
			Creneaux: creneaux,
			Degrade:  avail.Degraded,
		})
	}
}

func inscriptionHandler(accounts AccountService, sessions *auth.SessionManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var reg account.Registration
		if err := json.NewDecoder(r.Body).Decode(&reg); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		acct, err := accounts.Register(r.Context(), reg)
		if err != nil {
			handleAccountError(w, err)
			return
		}

		identity := auth.Identity{UserID: acct.ID, Role: scheduling.RolePatient}
		if err := setSessionCookie(w, sessions, identity); err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		writeJSON(w, http.StatusCreated, CompteResponse{
			ID:     acct.ID,
			Nom:    acct.LastName,
			Prenom: acct.FirstName,
			Email:  acct.Email,
			Role:   string(scheduling.RolePatient),
		})
	}
}

func connexionHandler(accounts AccountService, sessions *auth.SessionManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ConnexionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		acct, err := accounts.Authenticate(r.Context(), req.Email, req.Password)
		if err != nil {
			handleAccountError(w, err)
			return
		}

		identity := auth.Identity{UserID: acct.ID, Role: scheduling.RolePatient}
		if err := setSessionCookie(w, sessions, identity); err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		writeJSON(w, http.StatusOK, CompteResponse{
			ID:     acct.ID,
			Nom:    acct.LastName,
			Prenom: acct.FirstName,
			Email:  acct.Email,
			Role:   string(scheduling.RolePatient),
		})
	}
}

func deconnexionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{
			Name:     auth.CookieName,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
		})
		w.WriteHeader(http.StatusNoContent)
	}
}

func moiHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := IdentityFrom(r.Context())
		if identity == nil {
			writeError(w, http.StatusUnauthorized, "unauthorized", "no valid session")
			return
		}
		writeJSON(w, http.StatusOK, IdentityResponse{
			UserID: identity.UserID,
			Role:   string(identity.Role),
		})
	}
}

// createRendezVousHandler is the orchestrator entrypoint. Anonymous callers
// may embed an inscription payload: the account is created first and the
// same intent submitted once, never twice.
func createRendezVousHandler(bookings BookingService, sessions *auth.SessionManager, loc *time.Location) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateRendezVousRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		medecinID, err := uuid.Parse(req.MedecinID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_medecin_id", "medecin_id must be a valid UUID")
			return
		}
		date, err := scheduling.ParseDate(req.DateRdv, loc)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date_rdv must be YYYY-MM-DD")
			return
		}
		slot, err := scheduling.ParseSlot(req.HeureRdv)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_slot", err.Error())
			return
		}

		intent := booking.NewIntent(medecinID, date, slot, req.Motif)
		if req.IntentID != "" {
			intentID, err := uuid.Parse(req.IntentID)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_intent_id", "intent_id must be a valid UUID")
				return
			}
			intent.ID = intentID
		}
		intent.Registration = req.Inscription

		identity := IdentityFrom(r.Context())
		appt, err := bookings.Submit(r.Context(), intent, identity)
		if err != nil {
			// Registration may have succeeded even though the booking did
			// not; keep the minted session so the retry runs authenticated.
			if identity == nil {
				if resolved := intent.ResolvedIdentity(); resolved != nil {
					_ = setSessionCookie(w, sessions, *resolved)
				}
			}
			handleBookingError(w, err)
			return
		}

		// An anonymous booking minted an account; reflect it in the session.
		if identity == nil {
			newIdentity := auth.Identity{UserID: appt.PatientID, Role: scheduling.RolePatient}
			if err := setSessionCookie(w, sessions, newIdentity); err != nil {
				writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
				return
			}
		}

		writeJSON(w, http.StatusCreated, toRendezVousResponse(appt))
	}
}

func listRendezVousHandler(svc SchedulingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := IdentityFrom(r.Context())
		appts, err := svc.ListForActor(r.Context(), scheduling.Actor{ID: identity.UserID, Role: identity.Role})
		if err != nil {
			handleScheduleError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toRendezVousListResponse(appts))
	}
}

func getRendezVousHandler(svc SchedulingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_rendezvous_id", "id must be a valid UUID")
			return
		}

		identity := IdentityFrom(r.Context())
		appt, err := svc.Get(r.Context(), scheduling.Actor{ID: identity.UserID, Role: identity.Role}, id)
		if err != nil {
			handleScheduleError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toRendezVousResponse(appt))
	}
}

func cancelRendezVousHandler(svc SchedulingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_rendezvous_id", "id must be a valid UUID")
			return
		}

		identity := IdentityFrom(r.Context())
		appt, err := svc.Cancel(r.Context(), scheduling.Actor{ID: identity.UserID, Role: identity.Role}, id)
		if err != nil {
			handleScheduleError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toRendezVousResponse(appt))
	}
}

func accepterRendezVousHandler(svc SchedulingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_rendezvous_id", "id must be a valid UUID")
			return
		}

		identity := IdentityFrom(r.Context())
		appt, err := svc.Accept(r.Context(), scheduling.Actor{ID: identity.UserID, Role: identity.Role}, id)
		if err != nil {
			handleScheduleError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toRendezVousResponse(appt))
	}
}

func refuserRendezVousHandler(svc SchedulingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_rendezvous_id", "id must be a valid UUID")
			return
		}

		// Body is optional: refusing without a motif gets the default.
		var req RefuseRendezVousRequest
		_ = json.NewDecoder(r.Body).Decode(&req)

		identity := IdentityFrom(r.Context())
		appt, err := svc.Refuse(r.Context(), scheduling.Actor{ID: identity.UserID, Role: identity.Role}, id, req.MotifRefus)
		if err != nil {
			handleScheduleError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toRendezVousResponse(appt))
	}
}

func terminerRendezVousHandler(svc SchedulingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_rendezvous_id", "id must be a valid UUID")
			return
		}

		identity := IdentityFrom(r.Context())
		appt, err := svc.Complete(r.Context(), scheduling.Actor{ID: identity.UserID, Role: identity.Role}, id)
		if err != nil {
			handleScheduleError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toRendezVousResponse(appt))
	}
}

// secretaireCreateHandler is the direct flow: the appointment is opened and
// immediately confirmed by the creating role.
func secretaireCreateHandler(svc SchedulingService, loc *time.Location) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SecretaireRendezVousRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		medecinID, err := uuid.Parse(req.MedecinID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_medecin_id", "medecin_id must be a valid UUID")
			return
		}
		patientID, err := uuid.Parse(req.PatientID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
			return
		}
		date, err := scheduling.ParseDate(req.DateRdv, loc)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date_rdv must be YYYY-MM-DD")
			return
		}
		slot, err := scheduling.ParseSlot(req.HeureRdv)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_slot", err.Error())
			return
		}

		identity := IdentityFrom(r.Context())
		appt, err := svc.CreateConfirmed(r.Context(), scheduling.Actor{ID: identity.UserID, Role: identity.Role}, scheduling.CreateRequest{
			PractitionerID: medecinID,
			PatientID:      patientID,
			Date:           date,
			Slot:           slot,
			Reason:         req.Motif,
		})
		if err != nil {
			handleScheduleError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, toRendezVousResponse(appt))
	}
}

func setSessionCookie(w http.ResponseWriter, sessions *auth.SessionManager, identity auth.Identity) error {
	token, err := sessions.Issue(identity)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(sessions.TTL().Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

func handleScheduleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, scheduling.ErrPractitionerNotFound):
		writeError(w, http.StatusNotFound, "medecin_not_found", err.Error())
	case errors.Is(err, scheduling.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "rendezvous_not_found", err.Error())
	case errors.Is(err, scheduling.ErrSlotTaken):
		writeError(w, http.StatusConflict, "slot_conflict", "this slot was just taken, please pick another one")
	case errors.Is(err, scheduling.ErrSlotContended):
		writeError(w, http.StatusConflict, "slot_contended", "slot is currently being booked, please retry shortly")
	case errors.Is(err, scheduling.ErrSlotNotBookable):
		writeError(w, http.StatusBadRequest, "slot_not_bookable", err.Error())
	case errors.Is(err, scheduling.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "invalid_transition", err.Error())
	case errors.Is(err, scheduling.ErrCompletionEarly):
		writeError(w, http.StatusConflict, "completion_too_early", err.Error())
	case errors.Is(err, scheduling.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func handleBookingError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, booking.ErrValidation), errors.Is(err, booking.ErrIdentityRequired):
		writeError(w, http.StatusBadRequest, "validation_error", err.Error())
	case errors.Is(err, booking.ErrIdentityResolution):
		writeError(w, http.StatusConflict, "email_taken", err.Error())
	case errors.Is(err, booking.ErrSubmitInFlight):
		writeError(w, http.StatusConflict, "submit_in_flight", err.Error())
	default:
		handleScheduleError(w, err)
	}
}

func handleAccountError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, account.ErrInvalidRegistration):
		writeError(w, http.StatusBadRequest, "validation_error", err.Error())
	case errors.Is(err, account.ErrEmailTaken):
		writeError(w, http.StatusConflict, "email_taken", err.Error())
	case errors.Is(err, account.ErrBadCredentials):
		writeError(w, http.StatusUnauthorized, "bad_credentials", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
