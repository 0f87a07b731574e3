package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/ckd-api/internal/repository"
)

const resolveSQL = "UPDATE alerts SET is_resolved = true, updated_at = $2 WHERE id = $1 AND is_resolved = false"

func TestAlertResolveCommits(t *testing.T) {
	base, mock := newMock(t)
	repo := NewAlertRepository(base)
	id := uuid.New()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(resolveSQL)).
		WithArgs(id, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	changed, err := repo.Resolve(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, changed)
}

func TestAlertResolveAlreadyResolved(t *testing.T) {
	base, mock := newMock(t)
	repo := NewAlertRepository(base)
	id := uuid.New()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(resolveSQL)).
		WithArgs(id, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	changed, err := repo.Resolve(context.Background(), id)
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestAlertResolveRollsBackOnError(t *testing.T) {
	base, mock := newMock(t)
	repo := NewAlertRepository(base)
	id := uuid.New()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(resolveSQL)).
		WithArgs(id, sqlmock.AnyArg()).
		WillReturnError(errors.New("deadlock detected"))
	mock.ExpectRollback()

	_, err := repo.Resolve(context.Background(), id)
	assert.Error(t, err)
}

func TestAlertGet(t *testing.T) {
	base, mock := newMock(t)
	repo := NewAlertRepository(base)
	id, patientID, clinicianID := uuid.New(), uuid.New(), uuid.New()
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("FROM alerts WHERE id = $1")).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "patient_id", "title", "date", "description", "type", "clinician_id", "is_resolved", "created_at", "updated_at",
		}).AddRow(id.String(), patientID.String(), "Hyperkaliemie", now, "K+ 6.1", "alert", clinicianID.String(), false, now, now))

	alert, err := repo.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, patientID, alert.PatientID)
	assert.False(t, alert.IsResolved)

	mock.ExpectQuery(regexp.QuoteMeta("FROM alerts WHERE id = $1")).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	_, err = repo.Get(context.Background(), id)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}
