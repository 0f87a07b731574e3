package model

import (
	"time"
)

const (
	UserRoleClinician = "clinician"
	UserRoleAdmin     = "admin"
)

// User is a clinician account
type User struct {
	Base
	Email         string     `json:"email" db:"email"`
	Name          string     `json:"name" db:"name"`
	PasswordHash  string     `json:"-" db:"password_hash"`
	Role          string     `json:"role" db:"role"`
	EmailVerified bool       `json:"emailVerified" db:"email_verified"`
	LastLoginAt   *time.Time `json:"lastLoginAt,omitempty" db:"last_login_at"`
}
