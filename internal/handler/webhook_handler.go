package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"marketplace/internal/domain"
	"marketplace/internal/models"
	"marketplace/internal/repository"
	"marketplace/internal/response"
	"marketplace/internal/service"
	"marketplace/pkg/payment"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const maxCallbackBody = 1 << 20

// WebhookHandler receives provider callbacks. Once the signature checks out
// the provider always gets a 200, so a delivery is never retried for a
// failure on our side; unresolved callbacks are left to reconciliation.
type WebhookHandler struct {
	providers *payment.Registry
	svc       *service.TransactionService
	audit     *repository.AuditLogRepository
	log       *zap.Logger
}

func NewWebhookHandler(providers *payment.Registry, svc *service.TransactionService, audit *repository.AuditLogRepository, log *zap.Logger) *WebhookHandler {
	return &WebhookHandler{providers: providers, svc: svc, audit: audit, log: log}
}

// ForPurpose serves the fixed callback paths. The purpose's default provider
// handles the callback unless ?provider= names another one.
func (h *WebhookHandler) ForPurpose(purpose payment.Purpose) gin.HandlerFunc {
	return func(c *gin.Context) {
		var (
			adapter payment.Adapter
			err     error
		)
		if name := c.Query("provider"); name != "" {
			adapter, err = h.providers.Get(name)
		} else {
			adapter, err = h.providers.Default(purpose)
		}
		if err != nil {
			response.Fail(c, http.StatusNotFound, "error.unknown_provider")
			return
		}
		h.handle(c, adapter)
	}
}

// ByName serves /webhooks/:provider.
func (h *WebhookHandler) ByName(c *gin.Context) {
	adapter, err := h.providers.Get(c.Param("provider"))
	if err != nil {
		response.Fail(c, http.StatusNotFound, "error.unknown_provider")
		return
	}
	h.handle(c, adapter)
}

func (h *WebhookHandler) handle(c *gin.Context, adapter payment.Adapter) {
	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxCallbackBody))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, "error.validation", "body")
		return
	}
	log := h.log.With(
		zap.String("provider", adapter.Name()),
		zap.String("request_id", c.GetString("request_id")))

	if err := adapter.VerifyCallback(raw, c.Request.Header, c.Request.URL.Query()); err != nil {
		log.Warn("callback signature rejected", zap.String("ip", c.ClientIP()), zap.Error(err))
		response.Fail(c, http.StatusUnauthorized, "error.invalid_signature")
		return
	}

	cb, err := adapter.ParseCallback(raw)
	if err != nil {
		log.Warn("callback not understood", zap.Error(err), zap.ByteString("body", truncateBody(raw)))
		h.ack(c)
		return
	}
	log = log.With(zap.String("external_ref", cb.ExternalRef), zap.String("outcome", string(cb.Outcome)))

	// the provider's delivery must not cancel a half-applied finalize
	ctx := context.WithoutCancel(c.Request.Context())
	txn, err := h.svc.Finalize(ctx, adapter.Name(), cb.ExternalRef, cb.Outcome, service.FinalizeDetail{
		Message:       cb.Message,
		ProviderTxnID: cb.ProviderTxnID,
	})
	switch {
	case errors.Is(err, domain.ErrNotFound):
		log.Warn("callback for unknown reference; needs reconciliation")
	case errors.Is(err, domain.ErrDuplicateCallback):
		log.Info("duplicate callback ignored", zap.String("status", string(txn.Status)))
	case err != nil:
		log.Error("finalize callback", zap.Error(err))
	case txn.Status.Terminal():
		log.Info("callback applied", zap.Uint("transaction_id", txn.ID), zap.String("status", string(txn.Status)))
		h.record(ctx, c, adapter.Name(), cb, txn)
	default:
		log.Debug("callback without decision")
	}
	h.ack(c)
}

func (h *WebhookHandler) ack(c *gin.Context) {
	response.Success(c, http.StatusOK, "webhook.received", gin.H{"received": true})
}

func (h *WebhookHandler) record(ctx context.Context, c *gin.Context, provider string, cb *payment.CallbackResult, txn *models.Transaction) {
	if h.audit == nil {
		return
	}
	meta, _ := json.Marshal(map[string]string{
		"provider":        provider,
		"event":           cb.Event,
		"outcome":         string(cb.Outcome),
		"external_ref":    cb.ExternalRef,
		"provider_txn_id": cb.ProviderTxnID,
	})
	entry := &models.AuditLog{
		Action:     "callback." + string(txn.Kind) + "." + string(txn.Status),
		Resource:   "transaction",
		ResourceID: txn.Reference,
		IP:         c.ClientIP(),
		UserAgent:  c.Request.UserAgent(),
		Metadata:   string(meta),
	}
	if err := h.audit.Create(ctx, entry); err != nil {
		h.log.Error("write audit log", zap.String("reference", txn.Reference), zap.Error(err))
	}
}

func truncateBody(raw []byte) []byte {
	if len(raw) > 512 {
		return raw[:512]
	}
	return raw
}
