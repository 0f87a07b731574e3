package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/ckd-api/internal/model"
	"github.com/jwalitptl/ckd-api/internal/repository"
)

const notificationColumns = `id, user_id, patient_id, title, message, type, category, priority, status,
	read, action_required, action_type, action_url, scheduled_for, expires_at, metadata,
	created_at, updated_at`

// sortColumns whitelists the orderable fields. Priority orders by severity.
var sortColumns = map[string]string{
	"createdAt": "created_at",
	"priority":  "CASE priority WHEN 'low' THEN 0 WHEN 'normal' THEN 1 WHEN 'high' THEN 2 WHEN 'urgent' THEN 3 END",
	"title":     "title",
	"type":      "type",
	"category":  "category",
	"status":    "status",
}

type notificationRepository struct {
	*BaseRepository
}

func NewNotificationRepository(base *BaseRepository) repository.NotificationRepository {
	return &notificationRepository{
		BaseRepository: base,
	}
}

func (r *notificationRepository) Create(ctx context.Context, n *model.Notification) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	now := time.Now().UTC()
	n.CreatedAt = now
	n.UpdatedAt = now

	query := `
		INSERT INTO notifications (` + notificationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`
	_, err := r.GetDB().ExecContext(ctx, query,
		n.ID,
		n.UserID,
		n.PatientID,
		n.Title,
		n.Message,
		n.Type,
		n.Category,
		n.Priority,
		n.Status,
		n.Read,
		n.ActionRequired,
		n.ActionType,
		n.ActionURL,
		n.ScheduledFor,
		n.ExpiresAt,
		n.Metadata,
		n.CreatedAt,
		n.UpdatedAt,
	)
	return mapError("create notification", err)
}

func (r *notificationRepository) GetForUser(ctx context.Context, id, userID uuid.UUID) (*model.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE id = $1 AND user_id = $2`

	var n model.Notification
	if err := r.GetDB().GetContext(ctx, &n, query, id, userID); err != nil {
		return nil, mapError("get notification", err)
	}
	return &n, nil
}

func (r *notificationRepository) List(ctx context.Context, filter model.NotificationFilter) ([]*model.Notification, int, error) {
	filter.Normalize()

	baseQuery := ` FROM notifications WHERE user_id = $1`
	args := []interface{}{filter.UserID}
	where := func(cond string, v interface{}) {
		args = append(args, v)
		baseQuery += " AND " + fmt.Sprintf(cond, len(args))
	}

	if filter.Type != "" {
		where("type = $%d", filter.Type)
	}
	if filter.Category != "" {
		where("category = $%d", filter.Category)
	}
	if filter.Priority != "" {
		where("priority = $%d", filter.Priority)
	}
	if filter.Status != "" {
		where("status = $%d", filter.Status)
	}
	if filter.Read != nil {
		where("read = $%d", *filter.Read)
	}
	if filter.ActionRequired != nil {
		where("action_required = $%d", *filter.ActionRequired)
	}
	if filter.Search != "" {
		where("(title ILIKE $%[1]d OR message ILIKE $%[1]d)", "%"+escapeLike(filter.Search)+"%")
	}

	var total int
	if err := r.GetDB().GetContext(ctx, &total, "SELECT COUNT(*)"+baseQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count notifications: %w", err)
	}

	column, ok := sortColumns[filter.SortBy]
	if !ok {
		column = sortColumns["createdAt"]
	}
	dir := "DESC"
	if filter.SortOrder == "asc" {
		dir = "ASC"
	}

	args = append(args, filter.Limit, filter.Offset())
	query := "SELECT " + notificationColumns + baseQuery +
		fmt.Sprintf(" ORDER BY %s %s, id %s LIMIT $%d OFFSET $%d", column, dir, dir, len(args)-1, len(args))

	items := []*model.Notification{}
	if err := r.GetDB().SelectContext(ctx, &items, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list notifications: %w", err)
	}

	return items, total, nil
}

func (r *notificationRepository) MarkRead(ctx context.Context, id, userID uuid.UUID) (bool, error) {
	query := `
		UPDATE notifications
		SET read = true, updated_at = $3
		WHERE id = $1 AND user_id = $2 AND read = false
	`
	res, err := r.GetDB().ExecContext(ctx, query, id, userID, time.Now().UTC())
	if err != nil {
		return false, mapError("mark notification read", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n == 1, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
