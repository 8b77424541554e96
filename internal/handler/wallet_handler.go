package handler

import (
	"net/http"
	"strconv"

	"marketplace/internal/domain"
	"marketplace/internal/response"
	"marketplace/internal/service"
	"marketplace/pkg/payment"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type WalletHandler struct {
	svc *service.TransactionService
	log *zap.Logger
}

func NewWalletHandler(svc *service.TransactionService, log *zap.Logger) *WalletHandler {
	return &WalletHandler{svc: svc, log: log}
}

type createWalletRequest struct {
	UserID   uint   `json:"userId"`
	Currency string `json:"currency" binding:"omitempty,len=3"`
}

func (h *WalletHandler) Create(c *gin.Context) {
	var req createWalletRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		response.Fail(c, http.StatusBadRequest, "error.validation", err.Error())
		return
	}
	userID, err := actorOf(c).Target(req.UserID)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	w, err := h.svc.CreateWallet(c.Request.Context(), userID, req.Currency)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	response.Success(c, http.StatusCreated, "wallet.created", w)
}

// Get returns the caller's wallet; admins may pass ?userId=.
func (h *WalletHandler) Get(c *gin.Context) {
	userID, err := h.target(c)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	view, err := h.svc.GetWallet(c.Request.Context(), userID)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, "wallet.fetched", view)
}

func (h *WalletHandler) Transactions(c *gin.Context) {
	userID, err := h.target(c)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	list, err := h.svc.ListTransactions(c.Request.Context(), userID, queryInt(c, "limit", 20), queryInt(c, "offset", 0))
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, "transactions.listed", list)
}

type depositRequest struct {
	UserID    uint            `json:"userId"`
	Amount    decimal.Decimal `json:"amount"`
	Provider  string          `json:"provider"`
	Billing   payment.Billing `json:"billing"`
	ReturnURL string          `json:"returnUrl" binding:"omitempty,url"`
}

func (h *WalletHandler) Deposit(c *gin.Context) {
	var req depositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, http.StatusBadRequest, "error.validation", err.Error())
		return
	}
	userID, err := actorOf(c).Target(req.UserID)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	out, err := h.svc.RequestDeposit(c.Request.Context(), service.DepositInput{
		UserID:    userID,
		Amount:    req.Amount,
		Provider:  req.Provider,
		Billing:   req.Billing,
		ReturnURL: req.ReturnURL,
	})
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	response.Success(c, http.StatusCreated, "deposit.initiated", out)
}

type payoutRequest struct {
	UserID      uint                `json:"userId"`
	Amount      decimal.Decimal     `json:"amount"`
	Provider    string              `json:"provider"`
	BankDetails payment.Destination `json:"bankDetails"`
	Note        string              `json:"note" binding:"max=255"`
}

func (r payoutRequest) input(userID uint) service.PayoutInput {
	return service.PayoutInput{
		UserID:      userID,
		Amount:      r.Amount,
		Provider:    r.Provider,
		Destination: r.BankDetails,
		Note:        r.Note,
	}
}

func (h *WalletHandler) Withdraw(c *gin.Context) {
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
	txn, err := h.svc.RequestWithdrawal(c.Request.Context(), req.input(userID))
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	response.Success(c, http.StatusCreated, "withdrawal.initiated", gin.H{"transaction": txn})
}

func (h *WalletHandler) target(c *gin.Context) (uint, error) {
	var requested uint
	if v := c.Query("userId"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return 0, &domain.ValidationError{Field: "userId", Reason: "must be a number"}
		}
		requested = uint(n)
	}
	return actorOf(c).Target(requested)
}
