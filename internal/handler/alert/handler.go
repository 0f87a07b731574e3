package alert

import (
	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/ckd-api/internal/handler"
	"github.com/jwalitptl/ckd-api/internal/service/alert"
	"github.com/jwalitptl/ckd-api/pkg/httputil"
)

type Handler struct {
	svc alert.Service
}

func NewHandler(svc alert.Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	// GET resolves for compatibility with existing clients
	r.GET("/alerts/:id", h.Resolve)
	r.POST("/alerts/:id/resolve", h.Resolve)
	r.GET("/patients/:id/alerts", h.ListByPatient)
}

func (h *Handler) Resolve(c *gin.Context) {
	id, err := handler.ParamUUID(c, "id")
	if err != nil {
		handler.Fail(c, err)
		return
	}

	a, err := h.svc.Resolve(c.Request.Context(), id)
	if err != nil {
		handler.Fail(c, err)
		return
	}

	httputil.RespondWithSuccess(c, a)
}

func (h *Handler) ListByPatient(c *gin.Context) {
	patientID, err := handler.ParamUUID(c, "id")
	if err != nil {
		handler.Fail(c, err)
		return
	}

	alerts, err := h.svc.ListByPatient(c.Request.Context(), patientID)
	if err != nil {
		handler.Fail(c, err)
		return
	}

	httputil.RespondWithSuccess(c, alerts)
}
