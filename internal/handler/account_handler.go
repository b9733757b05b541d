package handler

import (
	"net/http"

	"github.com/blues/fundvault/internal/chain"
	"github.com/blues/fundvault/internal/logger"
	"github.com/blues/fundvault/internal/wallet"
	"github.com/gin-gonic/gin"
)

type AccountHandler struct {
	bank   wallet.Bank
	faucet bool
}

func NewAccountHandler(bank wallet.Bank, faucet bool) *AccountHandler {
	return &AccountHandler{bank: bank, faucet: faucet}
}

// GetAccount 查询账户余额
func (h *AccountHandler) GetAccount(c *gin.Context) {
	address := chain.NormalizeIdentity(c.Param("address"))
	balance, err := h.bank.Balance(c.Request.Context(), address)
	if err != nil {
		handleError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "ok", AccountResponse{Address: address, Balance: balance})
}

// Deposit 测试网充值
func (h *AccountHandler) Deposit(c *gin.Context) {
	if !h.faucet {
		ErrorResponse(c, http.StatusForbidden, "充值接口未开放")
		return
	}

	var req AmountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}
	if req.Amount > wallet.MaxAmount {
		ErrorResponse(c, http.StatusBadRequest, "充值金额超出上限")
		return
	}

	address := chain.NormalizeIdentity(c.Param("address"))
	if err := h.bank.Credit(c.Request.Context(), address, req.Amount); err != nil {
		handleError(c, err)
		return
	}
	balance, err := h.bank.Balance(c.Request.Context(), address)
	if err != nil {
		handleError(c, err)
		return
	}

	logger.Info("Faucet credited %d to %s", req.Amount, address)
	SuccessResponse(c, http.StatusOK, "充值成功", AccountResponse{Address: address, Balance: balance})
}
