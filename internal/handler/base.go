package handler

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/ckd-api/pkg/auth"
	apperrors "github.com/jwalitptl/ckd-api/pkg/errors"
	"github.com/jwalitptl/ckd-api/pkg/validator"
)

// ParamUUID parses a path parameter. A malformed id is a validation error
// naming the parameter.
func ParamUUID(c *gin.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, apperrors.Validation("validation failed",
			apperrors.FieldError{Field: name, Message: "value must be a UUID"})
	}
	return id, nil
}

// BindJSON decodes and validates the request body into obj
func BindJSON(c *gin.Context, obj interface{}) error {
	if err := c.ShouldBindJSON(obj); err != nil {
		return validator.Translate(err)
	}
	return nil
}

// BindQuery decodes and validates the query string into obj
func BindQuery(c *gin.Context, obj interface{}) error {
	if err := c.ShouldBindQuery(obj); err != nil {
		return validator.Translate(err)
	}
	return nil
}

// CurrentUserID returns the authenticated caller set by the auth middleware
func CurrentUserID(c *gin.Context) (uuid.UUID, error) {
	claims, err := auth.ClaimsFromContext(c.Request.Context())
	if err != nil {
		if errors.Is(err, auth.ErrNoSession) {
			return uuid.Nil, apperrors.Unauthorized(err)
		}
		return uuid.Nil, apperrors.Internal(err)
	}
	return claims.UserID, nil
}

// Fail hands err to the error middleware and stops the chain
func Fail(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}
