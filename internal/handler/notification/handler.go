package notification

import (
	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/ckd-api/internal/handler"
	"github.com/jwalitptl/ckd-api/internal/model"
	"github.com/jwalitptl/ckd-api/internal/service/notification"
	"github.com/jwalitptl/ckd-api/pkg/httputil"
)

type Handler struct {
	svc notification.Service
}

func NewHandler(svc notification.Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	notifications := r.Group("/notifications")
	{
		notifications.GET("", h.List)
		notifications.POST("", h.Create)
		notifications.POST("/:id/read", h.MarkRead)
	}
}

// List returns the caller's inbox page. The owner always comes from the
// session, never from the query.
func (h *Handler) List(c *gin.Context) {
	userID, err := handler.CurrentUserID(c)
	if err != nil {
		handler.Fail(c, err)
		return
	}

	var filter model.NotificationFilter
	if err := handler.BindQuery(c, &filter); err != nil {
		handler.Fail(c, err)
		return
	}
	filter.UserID = userID

	page, err := h.svc.List(c.Request.Context(), filter)
	if err != nil {
		handler.Fail(c, err)
		return
	}

	httputil.RespondWithPagination(c, page.Items, page.Page, page.Limit, page.Total)
}

func (h *Handler) Create(c *gin.Context) {
	userID, err := handler.CurrentUserID(c)
	if err != nil {
		handler.Fail(c, err)
		return
	}

	var input model.CreateNotificationInput
	if err := handler.BindJSON(c, &input); err != nil {
		handler.Fail(c, err)
		return
	}
	input.UserID = userID

	n, err := h.svc.Create(c.Request.Context(), input)
	if err != nil {
		handler.Fail(c, err)
		return
	}

	httputil.RespondCreated(c, n)
}

func (h *Handler) MarkRead(c *gin.Context) {
	userID, err := handler.CurrentUserID(c)
	if err != nil {
		handler.Fail(c, err)
		return
	}

	id, err := handler.ParamUUID(c, "id")
	if err != nil {
		handler.Fail(c, err)
		return
	}

	n, err := h.svc.MarkRead(c.Request.Context(), id, userID)
	if err != nil {
		handler.Fail(c, err)
		return
	}

	httputil.RespondWithSuccess(c, n)
}
