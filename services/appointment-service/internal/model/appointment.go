package model

import "time"

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCanceled  Status = "canceled"
	StatusCompleted Status = "completed"
)

func ParseStatus(raw string) (Status, bool) {
	switch Status(raw) {
	case StatusPending, StatusConfirmed, StatusCanceled, StatusCompleted:
		return Status(raw), true
	default:
		return "", false
	}
}

// Terminal reports whether the status ends the appointment lifecycle.
func (s Status) Terminal() bool {
	return s == StatusCanceled || s == StatusCompleted
}

// CanTransition reports whether an appointment may move from one status to
// another. Re-setting the current status is always allowed; a terminal status
// accepts nothing else.
func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}
	switch from {
	case StatusPending:
		return true
	case StatusConfirmed:
		return to == StatusCanceled || to == StatusCompleted
	default:
		return false
	}
}

// ServiceType determines which specialist role acts on the appointment.
type ServiceType string

const (
	TypeTraining          ServiceType = "training"
	TypeNutrition         ServiceType = "nutrition"
	TypeTherapy           ServiceType = "therapy"
	TypeMentalPerformance ServiceType = "mental_performance"
)

func ParseServiceType(raw string) (ServiceType, bool) {
	switch ServiceType(raw) {
	case TypeTraining, TypeNutrition, TypeTherapy, TypeMentalPerformance:
		return ServiceType(raw), true
	default:
		return "", false
	}
}

type Appointment struct {
	ID              string
	UserID          string
	SpecialistID    string
	AppointmentDate time.Time
	Status          Status
	Type            ServiceType
	Notes           string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Patch is the allow-listed set of mutable appointment fields.
// A nil field means "leave unchanged"; everything else a caller sends is dropped.
type Patch struct {
	Status          *Status
	Notes           *string
	AppointmentDate *time.Time
}

func (p Patch) IsZero() bool {
	return p.Status == nil && p.Notes == nil && p.AppointmentDate == nil
}

// Detail is an appointment plus the denormalized client/specialist fields
// needed for notification bodies. Fetched with a second read after updates.
type Detail struct {
	Appointment
	ClientFirstName     string
	ClientLastName      string
	ClientEmail         string
	SpecialistFirstName string
	SpecialistLastName  string
	SpecialistEmail     string
	SpecialistRole      string
}

func (d Detail) SpecialistName() string {
	return d.SpecialistFirstName + " " + d.SpecialistLastName
}
