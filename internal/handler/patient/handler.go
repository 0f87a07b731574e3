package patient

import (
	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/ckd-api/internal/handler"
	"github.com/jwalitptl/ckd-api/internal/model"
	"github.com/jwalitptl/ckd-api/internal/service/patient"
	"github.com/jwalitptl/ckd-api/internal/service/rules"
	"github.com/jwalitptl/ckd-api/pkg/httputil"
)

type Handler struct {
	service patient.PatientService
}

func NewHandler(service patient.PatientService) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	patients := r.Group("/patients")
	{
		patients.GET("/:id/medical-info", h.GetMedicalInfo)
		patients.PUT("/:id/medical-info", h.UpdateMedicalInfo)
		patients.POST("/:id/evaluate", h.Evaluate)
	}
}

// OutcomeView is the wire form of a rule outcome
type OutcomeView struct {
	Rule         string              `json:"rule"`
	Key          string              `json:"key"`
	Delivered    bool                `json:"delivered"`
	Notification *model.Notification `json:"notification,omitempty"`
	Error        string              `json:"error,omitempty"`
}

type updateResponse struct {
	MedicalInfo *model.MedicalInfo `json:"medicalInfo"`
	Alerts      []OutcomeView      `json:"alerts"`
}

func (h *Handler) GetMedicalInfo(c *gin.Context) {
	id, err := handler.ParamUUID(c, "id")
	if err != nil {
		handler.Fail(c, err)
		return
	}

	info, err := h.service.GetMedicalInfo(c.Request.Context(), id)
	if err != nil {
		handler.Fail(c, err)
		return
	}

	httputil.RespondWithSuccess(c, info)
}

func (h *Handler) UpdateMedicalInfo(c *gin.Context) {
	id, err := handler.ParamUUID(c, "id")
	if err != nil {
		handler.Fail(c, err)
		return
	}

	var req model.UpdateMedicalInfoRequest
	if err := handler.BindJSON(c, &req); err != nil {
		handler.Fail(c, err)
		return
	}

	res, err := h.service.UpdateMetrics(c.Request.Context(), id, req)
	if err != nil {
		handler.Fail(c, err)
		return
	}

	httputil.RespondWithSuccess(c, updateResponse{
		MedicalInfo: res.MedicalInfo,
		Alerts:      outcomeViews(res.Outcomes),
	})
}

func (h *Handler) Evaluate(c *gin.Context) {
	id, err := handler.ParamUUID(c, "id")
	if err != nil {
		handler.Fail(c, err)
		return
	}

	outcomes, err := h.service.Evaluate(c.Request.Context(), id)
	if err != nil {
		handler.Fail(c, err)
		return
	}

	httputil.RespondWithSuccess(c, outcomeViews(outcomes))
}

// outcomeViews keeps delivery errors as plain messages; they are per-rule
// results, not request failures.
func outcomeViews(outcomes []rules.Outcome) []OutcomeView {
	views := make([]OutcomeView, 0, len(outcomes))
	for _, o := range outcomes {
		v := OutcomeView{
			Rule:         string(o.Rule),
			Key:          o.Key,
			Delivered:    o.Delivered(),
			Notification: o.Notification,
		}
		if o.Err != nil {
			v.Error = "notification delivery failed"
		}
		views = append(views, v)
	}
	return views
}
