package scheduling

import "github.com/google/uuid"

type transition struct {
	From Status
	To   Status
}

// transitionActors is the single source of truth for who may drive which
// status change. Creation is modeled as a transition out of StatusNone.
var transitionActors = map[transition][]Role{
	{StatusNone, StatusRequested}:      {RolePatient, RoleSecretary},
	{StatusRequested, StatusConfirmed}: {RolePractitioner, RoleSecretary},
	{StatusRequested, StatusRefused}:   {RolePractitioner},
	{StatusRequested, StatusCancelled}: {RolePatient, RoleSecretary, RoleAdmin},
	{StatusConfirmed, StatusCancelled}: {RolePatient, RoleSecretary, RoleAdmin},
	{StatusConfirmed, StatusCompleted}: {RolePractitioner, RoleSystem},
}

// Guard maps a caller's role to the transitions and views it may invoke.
// It is consulted before a transition is attempted and re-enforced in the
// service before any store write.
type Guard struct{}

func (Guard) CanTransition(role Role, from, to Status) bool {
	actors, ok := transitionActors[transition{from, to}]
	if !ok {
		return false
	}
	for _, r := range actors {
		if r == role {
			return true
		}
	}
	return false
}

// CanView applies the visibility rules: patients see their own appointments,
// practitioners the ones they hold, secretaries and admins everything.
func (Guard) CanView(role Role, userID uuid.UUID, appt *Appointment) bool {
	switch role {
	case RoleSecretary, RoleAdmin, RoleSystem:
		return true
	case RolePatient:
		return appt.PatientID == userID
	case RolePractitioner:
		return appt.PractitionerID == userID
	}
	return false
}
