package handler

import (
	"net/http"
	"time"

	"marketplace/internal/domain"
	"marketplace/internal/repository"
	"marketplace/internal/response"
	"marketplace/internal/service"
	"marketplace/pkg/payment"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type AdminHandler struct {
	svc       *service.TransactionService
	providers *payment.Registry
	settings  *service.ProviderSettings
	repo      *repository.AdminRepository
	log       *zap.Logger
}

func NewAdminHandler(
	svc *service.TransactionService,
	providers *payment.Registry,
	settings *service.ProviderSettings,
	repo *repository.AdminRepository,
	log *zap.Logger,
) *AdminHandler {
	return &AdminHandler{svc: svc, providers: providers, settings: settings, repo: repo, log: log}
}

func (h *AdminHandler) Stats(c *gin.Context) {
	stats, err := h.repo.GetDashboardStats(c.Request.Context())
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, "stats.fetched", stats)
}

func (h *AdminHandler) Transactions(c *gin.Context) {
	f := repository.TransactionFilter{
		Kind:     domain.TransactionKind(c.Query("kind")),
		Status:   domain.TransactionStatus(c.Query("status")),
		Provider: c.Query("provider"),
	}
	if v := c.Query("since"); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			response.Fail(c, http.StatusBadRequest, "error.validation", "since")
			return
		}
		f.Since = since
	}
	limit := queryInt(c, "limit", 50)
	if limit < 1 || limit > 200 {
		limit = 50
	}
	list, total, err := h.repo.ListTransactions(c.Request.Context(), f, queryInt(c, "page", 1), limit)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, "transactions.listed", gin.H{"transactions": list, "total": total})
}

func (h *AdminHandler) Reconcile(c *gin.Context) {
	id, ok := paramUint(c, "id")
	if !ok {
		return
	}
	txn, err := h.svc.Reconcile(c.Request.Context(), id)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, "transaction.reconciled", gin.H{"transaction": txn})
}

func (h *AdminHandler) Refund(c *gin.Context) {
	id, ok := paramUint(c, "id")
	if !ok {
		return
	}
	var req struct {
		Amount decimal.Decimal `json:"amount"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, http.StatusBadRequest, "error.validation", err.Error())
		return
	}
	txn, err := h.svc.Refund(c.Request.Context(), id, req.Amount)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	h.log.Info("refund issued",
		zap.Uint("admin_id", actorOf(c).UserID),
		zap.Uint("deposit_id", id),
		zap.String("amount", req.Amount.String()))
	response.Success(c, http.StatusCreated, "refund.initiated", gin.H{"transaction": txn})
}

// Providers lists registered adapters and what each can do.
func (h *AdminHandler) Providers(c *gin.Context) {
	out := make([]gin.H, 0)
	for _, name := range h.providers.Names() {
		a, err := h.providers.Get(name)
		if err != nil {
			continue
		}
		out = append(out, gin.H{"name": name, "capabilities": payment.Capabilities(a)})
	}
	response.Success(c, http.StatusOK, "providers.listed", gin.H{"providers": out, "defaults": h.settings.Defaults()})
}

// SetDefaultProvider switches which provider serves a purpose.
func (h *AdminHandler) SetDefaultProvider(c *gin.Context) {
	var req struct {
		Purpose  string `json:"purpose" binding:"required"`
		Provider string `json:"provider" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, http.StatusBadRequest, "error.validation", err.Error())
		return
	}
	if err := h.settings.SetDefault(c.Request.Context(), payment.Purpose(req.Purpose), req.Provider); err != nil {
		writeError(c, h.log, err)
		return
	}
	h.log.Info("default provider changed",
		zap.Uint("admin_id", actorOf(c).UserID),
		zap.String("purpose", req.Purpose),
		zap.String("provider", req.Provider))
	response.Success(c, http.StatusOK, "providers.updated", h.settings.Defaults())
}
