package handler

import (
	"net/http"

	"marketplace/internal/i18n"
	"marketplace/internal/middleware"
	"marketplace/internal/repository"
	"marketplace/internal/response"
	"marketplace/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type NotificationHandler struct {
	svc   *service.NotificationService
	users *repository.UserRepository
	log   *zap.Logger
}

func NewNotificationHandler(svc *service.NotificationService, users *repository.UserRepository, log *zap.Logger) *NotificationHandler {
	return &NotificationHandler{svc: svc, users: users, log: log}
}

func (h *NotificationHandler) List(c *gin.Context) {
	list, err := h.svc.List(c.Request.Context(), middleware.GetUserID(c), queryInt(c, "limit", 20), queryInt(c, "offset", 0))
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, "notifications.listed", list)
}

func (h *NotificationHandler) MarkRead(c *gin.Context) {
	id, ok := paramUint(c, "id")
	if !ok {
		return
	}
	if err := h.svc.MarkRead(c.Request.Context(), id, middleware.GetUserID(c)); err != nil {
		writeError(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, "notification.read", nil)
}

func (h *NotificationHandler) RegisterFCMToken(c *gin.Context) {
	var req struct {
		Token    string `json:"token" binding:"required,max=512"`
		Language string `json:"language" binding:"max=16"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, http.StatusBadRequest, "error.validation", err.Error())
		return
	}
	lang := response.Lang(c)
	if req.Language != "" {
		lang = i18n.Match(req.Language)
	}
	if err := h.users.UpdateDevice(c.Request.Context(), middleware.GetUserID(c), req.Token, lang.String()); err != nil {
		writeError(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, "fcm.registered", nil)
}
