package httputil

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	apperrors "github.com/jwalitptl/ckd-api/pkg/errors"
)

// Response wraps all API responses
type Response struct {
	Status  string                 `json:"status"`
	Message string                 `json:"message,omitempty"`
	Data    interface{}            `json:"data,omitempty"`
	Details []apperrors.FieldError `json:"details,omitempty"`
	Meta    *Pagination            `json:"meta,omitempty"`
}

// Pagination represents pagination metadata
type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

func NewPagination(page, limit, total int) *Pagination {
	totalPages := 0
	if limit > 0 {
		totalPages = (total + limit - 1) / limit
	}
	return &Pagination{
		Page:       page,
		Limit:      limit,
		Total:      total,
		TotalPages: totalPages,
	}
}

// RespondWithSuccess sends a 200 success response
func RespondWithSuccess(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{Status: "success", Data: data})
}

// RespondCreated sends a 201 success response
func RespondCreated(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{Status: "success", Data: data})
}

// RespondWithPagination sends a paginated response
func RespondWithPagination(c *gin.Context, data interface{}, page, limit, total int) {
	c.JSON(http.StatusOK, Response{
		Status: "success",
		Data:   data,
		Meta:   NewPagination(page, limit, total),
	})
}

// RespondWithError maps err to its HTTP status and aborts the chain. Internal
// errors are logged with their cause and answered with a generic message.
func RespondWithError(c *gin.Context, err error) {
	var appErr *apperrors.AppError
	if !apperrors.As(err, &appErr) {
		appErr = apperrors.Internal(err)
	}

	status := appErr.StatusCode()
	if status >= http.StatusInternalServerError {
		log.Error().
			Err(err).
			Str("request_id", c.GetString("request_id")).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Msg("request failed")
	}

	if rl := appErr.RateLimit; rl != nil {
		SetRateLimitHeaders(c, rl.Limit, rl.Remaining, rl.ResetAt.Unix())
		retry := rl.ResetAt.Unix() - nowUnix()
		if retry < 1 {
			retry = 1
		}
		c.Header("Retry-After", strconv.FormatInt(retry, 10))
	}

	message := appErr.Message
	if status >= http.StatusInternalServerError {
		message = "internal server error"
	}

	c.AbortWithStatusJSON(status, Response{
		Status:  "error",
		Message: message,
		Details: appErr.Fields,
	})
}

// SetRateLimitHeaders writes the X-RateLimit-* headers
func SetRateLimitHeaders(c *gin.Context, limit, remaining int, resetUnix int64) {
	c.Header("X-RateLimit-Limit", strconv.Itoa(limit))
	c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
	c.Header("X-RateLimit-Reset", strconv.FormatInt(resetUnix, 10))
}
