package model

import (
	"time"

	"github.com/google/uuid"
)

type PatientStatus string

const (
	PatientStatusStable    PatientStatus = "stable"
	PatientStatusImproving PatientStatus = "improving"
	PatientStatusWorsening PatientStatus = "worsening"
	PatientStatusCritical  PatientStatus = "critical"
)

// MedicalInfo is the current metrics snapshot of a patient. Previous values
// are captured when the current value is overwritten, never recomputed.
type MedicalInfo struct {
	PatientID           uuid.UUID     `db:"patient_id" json:"patientId"`
	OwnerID             uuid.UUID     `db:"owner_id" json:"ownerId"`
	PatientName         string        `db:"patient_name" json:"patientName"`
	Status              PatientStatus `db:"status" json:"status"`
	DFG                 int           `db:"dfg" json:"dfg"`
	PreviousDFG         *int          `db:"previous_dfg" json:"previousDfg,omitempty"`
	Proteinurie         float64       `db:"proteinurie" json:"proteinurie"`
	PreviousProteinurie *float64      `db:"previous_proteinurie" json:"previousProteinurie,omitempty"`
	UpdatedAt           time.Time     `db:"updated_at" json:"updatedAt"`
	// EvaluatedAt is the updated_at of the last snapshot the rules ran against
	// inline. Rows with EvaluatedAt before UpdatedAt are left to the sweep.
	EvaluatedAt *time.Time `db:"evaluated_at" json:"-"`
}

// UpdateMedicalInfoRequest carries the metric fields a clinician or lab import
// may change. Nil fields are left untouched.
type UpdateMedicalInfoRequest struct {
	Status      *PatientStatus `json:"status" binding:"omitempty,oneof=stable improving worsening critical"`
	DFG         *int           `json:"dfg" binding:"omitempty,gte=0,lte=200"`
	Proteinurie *float64       `json:"proteinurie" binding:"omitempty,gte=0"`
}

func (r UpdateMedicalInfoRequest) Empty() bool {
	return r.Status == nil && r.DFG == nil && r.Proteinurie == nil
}
