package model

import (
	"time"

	"github.com/google/uuid"
)

// Alert is a clinical history entry. IsResolved only moves from false to true.
type Alert struct {
	Base
	PatientID   uuid.UUID `db:"patient_id" json:"patientId"`
	Title       string    `db:"title" json:"title"`
	Date        time.Time `db:"date" json:"date"`
	Description string    `db:"description" json:"description"`
	Type        string    `db:"type" json:"type"`
	ClinicianID uuid.UUID `db:"clinician_id" json:"clinicianId"`
	IsResolved  bool      `db:"is_resolved" json:"isResolved"`
}
