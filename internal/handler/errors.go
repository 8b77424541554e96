package handler

import (
	"errors"
	"net/http"
	"strconv"

	"marketplace/internal/domain"
	"marketplace/internal/middleware"
	"marketplace/internal/response"
	"marketplace/internal/service"
	"marketplace/pkg/payment"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// writeError maps service and provider errors onto the envelope.
func writeError(c *gin.Context, log *zap.Logger, err error) {
	var verr *domain.ValidationError
	var perr *payment.ProviderError
	switch {
	case errors.As(err, &verr):
		response.Fail(c, http.StatusBadRequest, "error.validation", verr.Error())
	case errors.Is(err, domain.ErrValidation):
		response.Fail(c, http.StatusBadRequest, "error.validation", err.Error())
	case errors.Is(err, domain.ErrInsufficientBalance):
		response.Fail(c, http.StatusBadRequest, "error.insufficient")
	case errors.Is(err, payment.ErrInsufficientRemoteBalance):
		response.Fail(c, http.StatusBadRequest, "error.remote_funds")
	case errors.Is(err, payment.ErrUnknownProvider):
		response.Fail(c, http.StatusBadRequest, "error.unknown_provider")
	case errors.Is(err, payment.ErrUnsupported):
		response.Fail(c, http.StatusBadRequest, "error.unsupported")
	case errors.Is(err, domain.ErrWalletExists):
		response.Fail(c, http.StatusConflict, "error.wallet_exists")
	case errors.Is(err, domain.ErrNotFound):
		response.Fail(c, http.StatusNotFound, "error.not_found", err.Error())
	case errors.Is(err, domain.ErrForbidden):
		response.Fail(c, http.StatusForbidden, "error.forbidden")
	case errors.Is(err, domain.ErrNotReconcilable):
		response.Fail(c, http.StatusConflict, "error.not_reconcilable")
	case errors.Is(err, domain.ErrProviderTimeout):
		response.Fail(c, http.StatusGatewayTimeout, "error.timeout")
	case errors.As(err, &perr):
		response.Fail(c, http.StatusBadGateway, "error.provider", perr.Message)
	case errors.Is(err, payment.ErrAuth), errors.Is(err, payment.ErrRejected):
		response.Fail(c, http.StatusBadGateway, "error.provider", err.Error())
	default:
		log.Error("request failed",
			zap.String("request_id", c.GetString("request_id")),
			zap.String("path", c.FullPath()),
			zap.Error(err))
		response.Fail(c, http.StatusInternalServerError, "error.internal")
	}
}

func actorOf(c *gin.Context) service.Actor {
	return service.Actor{UserID: middleware.GetUserID(c), Role: middleware.GetRole(c)}
}

func paramUint(c *gin.Context, name string) (uint, bool) {
	v, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || v == 0 {
		response.Fail(c, http.StatusBadRequest, "error.validation", name)
		return 0, false
	}
	return uint(v), true
}

func queryInt(c *gin.Context, name string, def int) int {
	v, err := strconv.Atoi(c.DefaultQuery(name, strconv.Itoa(def)))
	if err != nil {
		return def
	}
	return v
}
