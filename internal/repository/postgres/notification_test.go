package postgres

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/ckd-api/internal/model"
	"github.com/jwalitptl/ckd-api/internal/repository"
)

var notificationRowColumns = []string{
	"id", "user_id", "patient_id", "title", "message", "type", "category", "priority", "status",
	"read", "action_required", "action_type", "action_url", "scheduled_for", "expires_at", "metadata",
	"created_at", "updated_at",
}

func notificationRow(rows *sqlmock.Rows, id, userID uuid.UUID, read bool) *sqlmock.Rows {
	now := time.Now()
	return rows.AddRow(id.String(), userID.String(), nil, "DFG drop", "DFG fell to 85", "warning", "lab_results", "high", "pending",
		read, true, nil, nil, nil, nil, []byte(`{"dfg":85}`), now, now)
}

func TestNotificationCreate(t *testing.T) {
	base, mock := newMock(t)
	repo := NewNotificationRepository(base)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO notifications")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	n := &model.Notification{UserID: uuid.New(), Title: "t", Message: "m", Type: "info", Category: "c"}
	require.NoError(t, repo.Create(context.Background(), n))
	assert.NotEqual(t, uuid.Nil, n.ID)
	assert.False(t, n.CreatedAt.IsZero())
}

func TestNotificationGetForUserNotFound(t *testing.T) {
	base, mock := newMock(t)
	repo := NewNotificationRepository(base)

	id, userID := uuid.New(), uuid.New()
	mock.ExpectQuery(regexp.QuoteMeta("FROM notifications WHERE id = $1 AND user_id = $2")).
		WithArgs(id, userID).
		WillReturnRows(sqlmock.NewRows(notificationRowColumns))

	_, err := repo.GetForUser(context.Background(), id, userID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestNotificationListBuildsFilters(t *testing.T) {
	base, mock := newMock(t)
	repo := NewNotificationRepository(base)

	userID := uuid.New()
	unread := false
	filter := model.NotificationFilter{
		UserID:    userID,
		Type:      "warning",
		Read:      &unread,
		Search:    "50%",
		Page:      2,
		Limit:     10,
		SortBy:    "priority",
		SortOrder: "asc",
	}

	mock.ExpectQuery(regexp.QuoteMeta(
		"SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND type = $2 AND read = $3 AND (title ILIKE $4 OR message ILIKE $4)")).
		WithArgs(userID, "warning", false, `%50\%%`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(11))

	mock.ExpectQuery(`ORDER BY CASE priority .* END ASC, id ASC LIMIT \$5 OFFSET \$6`).
		WithArgs(userID, "warning", false, `%50\%%`, 10, 10).
		WillReturnRows(notificationRow(sqlmock.NewRows(notificationRowColumns), uuid.New(), userID, false))

	items, total, err := repo.List(context.Background(), filter)
	require.NoError(t, err)
	assert.Equal(t, 11, total)
	require.Len(t, items, 1)
	assert.Equal(t, float64(85), items[0].Metadata["dfg"])
}

func TestNotificationListDefaultsToNewestFirst(t *testing.T) {
	base, mock := newMock(t)
	repo := NewNotificationRepository(base)

	userID := uuid.New()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM notifications WHERE user_id = $1")).
		WithArgs(userID).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3")).
		WithArgs(userID, model.DefaultNotificationLimit, 0).
		WillReturnRows(sqlmock.NewRows(notificationRowColumns))

	items, total, err := repo.List(context.Background(), model.NotificationFilter{UserID: userID})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.NotNil(t, items)
	assert.Empty(t, items)
}

func TestNotificationMarkRead(t *testing.T) {
	base, mock := newMock(t)
	repo := NewNotificationRepository(base)

	id, userID := uuid.New(), uuid.New()
	mock.ExpectExec(regexp.QuoteMeta("WHERE id = $1 AND user_id = $2 AND read = false")).
		WithArgs(id, userID, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("WHERE id = $1 AND user_id = $2 AND read = false")).
		WithArgs(id, userID, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	changed, err := repo.MarkRead(context.Background(), id, userID)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = repo.MarkRead(context.Background(), id, userID)
	require.NoError(t, err)
	assert.False(t, changed)
}
