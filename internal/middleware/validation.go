package middleware

import (
	"github.com/gin-gonic/gin/binding"
	govalidator "github.com/go-playground/validator/v10"

	"github.com/jwalitptl/ckd-api/pkg/validator"
)

// ConfigureBinding makes gin's binding validator report json field names and
// know the custom rules used by request structs. Call once at startup.
func ConfigureBinding() {
	if v, ok := binding.Validator.Engine().(*govalidator.Validate); ok {
		validator.Configure(v)
	}
}
