package middleware

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/ckd-api/pkg/auth"
	apperrors "github.com/jwalitptl/ckd-api/pkg/errors"
)

const ContextUserID = "user_id"

var (
	errMissingAuthHeader = errors.New("missing authorization header")
	errAuthFormat        = errors.New("invalid authorization format")
)

// Authenticate verifies the bearer token and stores the caller's claims in the
// request context.
func Authenticate(jwtSvc auth.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			unauthorized(c, errMissingAuthHeader)
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
			unauthorized(c, errAuthFormat)
			return
		}

		claims, err := jwtSvc.ValidateToken(parts[1])
		if err != nil {
			unauthorized(c, err)
			return
		}

		c.Set(ContextUserID, claims.UserID.String())
		c.Request = c.Request.WithContext(auth.WithClaims(c.Request.Context(), claims))
		c.Next()
	}
}

func unauthorized(c *gin.Context, err error) {
	_ = c.Error(apperrors.Unauthorized(err))
	c.Abort()
}
