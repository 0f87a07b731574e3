package auth

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/jwalitptl/ckd-api/internal/middleware"
	"github.com/jwalitptl/ckd-api/pkg/httputil"
)

// Bodies that fail binding never reach the service, so a nil service is enough.
func TestRejectsInvalidBodies(t *testing.T) {
	gin.SetMode(gin.TestMode)
	middleware.ConfigureBinding()

	r := gin.New()
	r.Use(middleware.RequestID(), middleware.ErrorHandler())
	NewHandler(nil).RegisterRoutes(r.Group("/api/v1"))

	tests := []struct {
		path  string
		body  string
		field string
	}{
		{"/api/v1/auth/register", `{"email":"not-an-email","password":"longenough","name":"Dr A"}`, "email"},
		{"/api/v1/auth/register", `{"email":"a@b.co","password":"short","name":"Dr A"}`, "password"},
		{"/api/v1/auth/register", `{"email":"a@b.co","password":"longenough","name":"  "}`, "name"},
		{"/api/v1/auth/login", `{"email":"a@b.co"}`, "password"},
		{"/api/v1/auth/verify", `{}`, "token"},
		{"/api/v1/auth/forgot-password", `{"email":""}`, "email"},
		{"/api/v1/auth/reset-password", `{"token":"t","password":"x"}`, "password"},
	}

	for _, tt := range tests {
		t.Run(tt.path+" "+tt.field, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, tt.path, bytes.NewBufferString(tt.body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, http.StatusBadRequest, w.Code)

			var resp httputil.Response
			assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			fields := make([]string, 0, len(resp.Details))
			for _, d := range resp.Details {
				fields = append(fields, d.Field)
			}
			assert.Contains(t, fields, tt.field)
		})
	}
}
