package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/ckd-api/internal/model"
	"github.com/jwalitptl/ckd-api/internal/repository"
)

const medicalInfoSelect = `
	SELECT m.patient_id, p.clinician_id AS owner_id, p.name AS patient_name,
		m.status, m.dfg, m.previous_dfg, m.proteinurie, m.previous_proteinurie, m.updated_at, m.evaluated_at
	FROM medical_info m
	JOIN patients p ON p.id = m.patient_id`

type patientRepository struct {
	*BaseRepository
}

func NewPatientRepository(base *BaseRepository) repository.PatientRepository {
	return &patientRepository{BaseRepository: base}
}

func (r *patientRepository) GetMedicalInfo(ctx context.Context, patientID uuid.UUID) (*model.MedicalInfo, error) {
	var info model.MedicalInfo
	if err := r.GetDB().GetContext(ctx, &info, medicalInfoSelect+` WHERE m.patient_id = $1`, patientID); err != nil {
		return nil, mapError("get medical info", err)
	}
	return &info, nil
}

func (r *patientRepository) UpdateMedicalInfo(ctx context.Context, info *model.MedicalInfo) error {
	info.UpdatedAt = time.Now().UTC().Truncate(time.Microsecond)
	query := `
		UPDATE medical_info
		SET status = $2, dfg = $3, previous_dfg = $4, proteinurie = $5,
			previous_proteinurie = $6, updated_at = $7
		WHERE patient_id = $1
	`
	res, err := r.GetDB().ExecContext(ctx, query,
		info.PatientID,
		info.Status,
		info.DFG,
		info.PreviousDFG,
		info.Proteinurie,
		info.PreviousProteinurie,
		info.UpdatedAt,
	)
	if err != nil {
		return mapError("update medical info", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("update medical info: %w", repository.ErrNotFound)
	}
	return nil
}

func (r *patientRepository) ListUpdatedSince(ctx context.Context, since time.Time, limit, offset int) ([]*model.MedicalInfo, error) {
	query := medicalInfoSelect + `
		WHERE m.updated_at > $1
			AND (m.evaluated_at IS NULL OR m.evaluated_at < m.updated_at)
		ORDER BY m.updated_at, m.patient_id
		LIMIT $2 OFFSET $3`

	infos := []*model.MedicalInfo{}
	if err := r.GetDB().SelectContext(ctx, &infos, query, since, limit, offset); err != nil {
		return nil, fmt.Errorf("failed to list medical info: %w", err)
	}
	return infos, nil
}

func (r *patientRepository) MarkEvaluated(ctx context.Context, patientID uuid.UUID, updatedAt time.Time) error {
	// a newer write in between keeps its row visible to the sweep
	query := `
		UPDATE medical_info
		SET evaluated_at = $2
		WHERE patient_id = $1 AND updated_at = $2
	`
	if _, err := r.GetDB().ExecContext(ctx, query, patientID, updatedAt); err != nil {
		return mapError("mark medical info evaluated", err)
	}
	return nil
}
