package handler

import (
	"net/http"

	"marketplace/internal/response"
	"marketplace/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type PayoutHandler struct {
	svc *service.TransactionService
	log *zap.Logger
}

func NewPayoutHandler(svc *service.TransactionService, log *zap.Logger) *PayoutHandler {
	return &PayoutHandler{svc: svc, log: log}
}

// Create pays out a worker's earnings, or a driver's or store's wallet balance.
func (h *PayoutHandler) Create(c *gin.Context) {
	var req payoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, http.StatusBadRequest, "error.validation", err.Error())
		return
	}
	userID, err := actorOf(c).Target(req.UserID)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	txn, err := h.svc.RequestWorkerPayout(c.Request.Context(), req.input(userID))
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	response.Success(c, http.StatusCreated, "payout.initiated", gin.H{"transaction": txn})
}

// Status refreshes a payout from its provider before returning it.
func (h *PayoutHandler) Status(c *gin.Context) {
	txn, err := h.svc.ReconcileByExternalRef(c.Request.Context(), actorOf(c), c.Param("payoutId"))
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, "transaction.fetched", gin.H{"transaction": txn})
}
