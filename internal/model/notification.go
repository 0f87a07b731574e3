package model

import (
	"time"

	"github.com/google/uuid"
)

const (
	NotificationTypeInfo     = "info"
	NotificationTypeWarning  = "warning"
	NotificationTypeCritical = "critical"
)

const (
	NotificationPriorityLow    = "low"
	NotificationPriorityNormal = "normal"
	NotificationPriorityHigh   = "high"
	NotificationPriorityUrgent = "urgent"
)

const (
	NotificationStatusPending    = "pending"
	NotificationStatusInProgress = "in_progress"
	NotificationStatusCompleted  = "completed"
	NotificationStatusDismissed  = "dismissed"
)

const (
	NotificationCategoryPatientStatus = "patient_status"
	NotificationCategoryLabResults    = "lab_results"
)

type Notification struct {
	Base
	UserID         uuid.UUID  `db:"user_id" json:"userId"`
	PatientID      *uuid.UUID `db:"patient_id" json:"patientId,omitempty"`
	Title          string     `db:"title" json:"title"`
	Message        string     `db:"message" json:"message"`
	Type           string     `db:"type" json:"type"`
	Category       string     `db:"category" json:"category"`
	Priority       string     `db:"priority" json:"priority"`
	Status         string     `db:"status" json:"status"`
	Read           bool       `db:"read" json:"read"`
	ActionRequired bool       `db:"action_required" json:"actionRequired"`
	ActionType     *string    `db:"action_type" json:"actionType,omitempty"`
	ActionURL      *string    `db:"action_url" json:"actionUrl,omitempty"`
	ScheduledFor   *time.Time `db:"scheduled_for" json:"scheduledFor,omitempty"`
	ExpiresAt      *time.Time `db:"expires_at" json:"expiresAt,omitempty"`
	Metadata       JSONMap    `db:"metadata" json:"metadata,omitempty"`
}

// CreateNotificationInput is validated by the notification service, not at
// binding time, so rule-generated and API-created notifications share rules.
type CreateNotificationInput struct {
	UserID         uuid.UUID  `json:"-"`
	PatientID      *uuid.UUID `json:"patientId"`
	Title          string     `json:"title" validate:"required,notblank,max=255"`
	Message        string     `json:"message" validate:"required,notblank"`
	Type           string     `json:"type" validate:"required,oneof=info warning critical"`
	Category       string     `json:"category" validate:"required,notblank,max=64"`
	Priority       string     `json:"priority" validate:"omitempty,oneof=low normal high urgent"`
	Status         string     `json:"status" validate:"omitempty,oneof=pending in_progress completed dismissed"`
	ActionRequired bool       `json:"actionRequired"`
	ActionType     *string    `json:"actionType" validate:"omitempty,max=64"`
	ActionURL      *string    `json:"actionUrl" validate:"omitempty,max=2048"`
	ScheduledFor   *time.Time `json:"scheduledFor"`
	ExpiresAt      *time.Time `json:"expiresAt"`
	Metadata       JSONMap    `json:"metadata"`
}

const (
	DefaultNotificationLimit = 20
	MaxNotificationLimit     = 100
)

// NotificationFilter holds the inbox query. UserID always comes from the
// session, never from the query string.
type NotificationFilter struct {
	UserID         uuid.UUID `form:"-" json:"userId"`
	Type           string    `form:"type" json:"type,omitempty" validate:"omitempty,oneof=info warning critical"`
	Category       string    `form:"category" json:"category,omitempty"`
	Priority       string    `form:"priority" json:"priority,omitempty" validate:"omitempty,oneof=low normal high urgent"`
	Status         string    `form:"status" json:"status,omitempty" validate:"omitempty,oneof=pending in_progress completed dismissed"`
	Read           *bool     `form:"read" json:"read,omitempty"`
	ActionRequired *bool     `form:"actionRequired" json:"actionRequired,omitempty"`
	Search         string    `form:"search" json:"search,omitempty" validate:"omitempty,max=255"`
	Page           int       `form:"page" json:"page" validate:"omitempty,gte=1"`
	Limit          int       `form:"limit" json:"limit" validate:"omitempty,gte=1,lte=100"`
	SortBy         string    `form:"sortBy" json:"sortBy" validate:"omitempty,oneof=createdAt priority title type category status"`
	SortOrder      string    `form:"sortOrder" json:"sortOrder" validate:"omitempty,oneof=asc desc"`
}

// Normalize fills in paging and sort defaults.
func (f *NotificationFilter) Normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 {
		f.Limit = DefaultNotificationLimit
	}
	if f.Limit > MaxNotificationLimit {
		f.Limit = MaxNotificationLimit
	}
	if f.SortBy == "" {
		f.SortBy = "createdAt"
	}
	if f.SortOrder == "" {
		f.SortOrder = "desc"
	}
}

func (f NotificationFilter) Offset() int {
	return (f.Page - 1) * f.Limit
}

type NotificationPage struct {
	Items      []*Notification `json:"items"`
	Total      int             `json:"total"`
	Page       int             `json:"page"`
	Limit      int             `json:"limit"`
	TotalPages int             `json:"totalPages"`
}
