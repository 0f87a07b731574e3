package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/ckd-api/internal/model"
	"github.com/jwalitptl/ckd-api/internal/repository"
)

const alertColumns = `id, patient_id, title, date, description, type, clinician_id, is_resolved, created_at, updated_at`

type alertRepository struct {
	*BaseRepository
}

func NewAlertRepository(base *BaseRepository) repository.AlertRepository {
	return &alertRepository{BaseRepository: base}
}

func (r *alertRepository) Get(ctx context.Context, id uuid.UUID) (*model.Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM alerts WHERE id = $1`

	var alert model.Alert
	if err := r.GetDB().GetContext(ctx, &alert, query, id); err != nil {
		return nil, mapError("get alert", err)
	}
	return &alert, nil
}

func (r *alertRepository) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*model.Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM alerts WHERE patient_id = $1 ORDER BY date DESC, id DESC`

	alerts := []*model.Alert{}
	if err := r.GetDB().SelectContext(ctx, &alerts, query, patientID); err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	return alerts, nil
}

func (r *alertRepository) Resolve(ctx context.Context, id uuid.UUID) (bool, error) {
	var changed bool
	err := r.WithTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE alerts SET is_resolved = true, updated_at = $2 WHERE id = $1 AND is_resolved = false`,
			id, time.Now().UTC(),
		)
		if err != nil {
			return fmt.Errorf("failed to resolve alert: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to read affected rows: %w", err)
		}
		changed = n == 1
		return nil
	})
	return changed, err
}
