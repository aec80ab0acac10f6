package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/clinicore/clinic-scheduling/internal/account"
	"github.com/clinicore/clinic-scheduling/internal/scheduling"
)

type MedecinResponse struct {
	ID         uuid.UUID `json:"id"`
	Nom        string    `json:"nom"`
	Prenom     string    `json:"prenom"`
	Specialite string    `json:"specialite"`
}

type MedecinListResponse struct {
	Medecins []MedecinResponse `json:"medecins"`
}

type DisponibiliteResponse struct {
	Date     string   `json:"date"`
	Creneaux []string `json:"creneaux_disponibles"`
	Degrade  bool     `json:"degrade"`
}

type CreateRendezVousRequest struct {
	IntentID    string                `json:"intent_id,omitempty"`
	MedecinID   string                `json:"medecin_id"`
	DateRdv     string                `json:"date_rdv"`
	HeureRdv    string                `json:"heure_rdv"`
	Motif       string                `json:"motif,omitempty"`
	Inscription *account.Registration `json:"inscription,omitempty"`
}

type SecretaireRendezVousRequest struct {
	MedecinID string `json:"medecin_id"`
	PatientID string `json:"patient_id"`
	DateRdv   string `json:"date_rdv"`
	HeureRdv  string `json:"heure_rdv"`
	Motif     string `json:"motif,omitempty"`
}

type RefuseRendezVousRequest struct {
	MotifRefus string `json:"motif_refus,omitempty"`
}

type ConnexionRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RendezVousResponse struct {
	ID         uuid.UUID `json:"id"`
	MedecinID  uuid.UUID `json:"medecin_id"`
	PatientID  uuid.UUID `json:"patient_id"`
	DateRdv    string    `json:"date_rdv"`
	HeureRdv   string    `json:"heure_rdv"`
	Motif      string    `json:"motif"`
	Statut     string    `json:"statut"`
	MotifRefus *string   `json:"motif_refus,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

type RendezVousListResponse struct {
	RendezVous []RendezVousResponse `json:"rendezvous"`
}

type IdentityResponse struct {
	UserID uuid.UUID `json:"user_id"`
	Role   string    `json:"role"`
}

type CompteResponse struct {
	ID     uuid.UUID `json:"id"`
	Nom    string    `json:"nom"`
	Prenom string    `json:"prenom"`
	Email  string    `json:"email"`
	Role   string    `json:"role"`
}

func toMedecinResponse(p scheduling.Practitioner) MedecinResponse {
	specialty := "Médecine générale"
	if p.Specialty != nil && *p.Specialty != "" {
		specialty = *p.Specialty
	}
	return MedecinResponse{
		ID:         p.ID,
		Nom:        p.LastName,
		Prenom:     p.FirstName,
		Specialite: specialty,
	}
}

func toRendezVousResponse(a *scheduling.Appointment) RendezVousResponse {
	return RendezVousResponse{
		ID:         a.ID,
		MedecinID:  a.PractitionerID,
		PatientID:  a.PatientID,
		DateRdv:    a.Date.Format(scheduling.DateLayout),
		HeureRdv:   a.Slot.String(),
		Motif:      a.Reason,
		Statut:     string(a.Status),
		MotifRefus: a.RefusalReason,
		CreatedAt:  a.CreatedAt,
	}
}

func toRendezVousListResponse(appts []scheduling.Appointment) RendezVousListResponse {
	out := RendezVousListResponse{RendezVous: make([]RendezVousResponse, 0, len(appts))}
	for i := range appts {
		out.RendezVous = append(out.RendezVous, toRendezVousResponse(&appts[i]))
	}
	return out
}
