package handler

import (
	"net/http"
	"strconv"

	"github.com/blues/fundvault/internal/ledger"
	"github.com/blues/fundvault/internal/logic"
	"github.com/gin-gonic/gin"
)

type FundHandler struct {
	fundLogic *logic.FundLogic
}

func NewFundHandler(fundLogic *logic.FundLogic) *FundHandler {
	return &FundHandler{fundLogic: fundLogic}
}

// CreateFund 创建资金, 请求身份为创建者
func (h *FundHandler) CreateFund(c *gin.Context) {
	var req CreateFundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	fund, err := h.fundLogic.Create(c.Request.Context(), currentAccount(c), logic.CreateFundRequest{
		Name:        req.Name,
		Description: req.Description,
		DueDate:     req.DueDate,
		GoalAmount:  req.GoalAmount,
		IsLocked:    req.IsLocked,
	})
	if err != nil {
		handleError(c, err)
		return
	}

	SuccessResponse(c, http.StatusCreated, "资金创建成功", GetFundResponse{Fund: ToFundResponse(fund)})
}

// GetFunds 获取资金列表
func (h *FundHandler) GetFunds(c *gin.Context) {
	page, pageSize := pageParams(c)

	query := ledger.ListQuery{
		Creator:  c.Query("creator"),
		Page:     page,
		PageSize: pageSize,
	}
	if v := c.Query("active"); v != "" {
		active, err := strconv.ParseBool(v)
		if err != nil {
			ErrorResponse(c, http.StatusBadRequest, "无效的 active 参数")
			return
		}
		query.Active = &active
	}

	funds, total, err := h.fundLogic.GetFunds(c.Request.Context(), query)
	if err != nil {
		handleError(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, "ok", GetFundsResponse{
		Funds:      ToFundResponses(funds),
		Pagination: NewPagination(page, pageSize, total),
	})
}

// GetFund 获取资金详情
func (h *FundHandler) GetFund(c *gin.Context) {
	fund, err := h.fundLogic.GetFund(c.Request.Context(), c.Param("address"))
	if err != nil {
		handleError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "ok", GetFundResponse{Fund: ToFundResponse(fund)})
}

// GetFundStats 获取资金统计
func (h *FundHandler) GetFundStats(c *gin.Context) {
	stats, err := h.fundLogic.GetFundStats(c.Request.Context(), c.Param("address"))
	if err != nil {
		handleError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "ok", stats)
}

// GetFundRecords 获取资金变动记录
func (h *FundHandler) GetFundRecords(c *gin.Context) {
	page, pageSize := pageParams(c)

	records, total, err := h.fundLogic.GetFundRecords(c.Request.Context(), c.Param("address"), page, pageSize)
	if err != nil {
		handleError(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, "ok", GetFundRecordsResponse{
		Records:    ToFundRecordResponses(records),
		Pagination: NewPagination(page, pageSize, total),
	})
}

// pageParams 读取分页参数, 与存储层使用相同的规范化结果
func pageParams(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "10"))
	return ledger.NormalizePage(page, pageSize)
}

// Donate 捐赠
func (h *FundHandler) Donate(c *gin.Context) {
	var req AmountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	fund, err := h.fundLogic.Donate(c.Request.Context(), c.Param("address"), currentAccount(c), req.Amount)
	if err != nil {
		handleError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "捐赠成功", GetFundResponse{Fund: ToFundResponse(fund)})
}

// Withdraw 创建者提取指定金额
func (h *FundHandler) Withdraw(c *gin.Context) {
	var req AmountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	fund, err := h.fundLogic.Withdraw(c.Request.Context(), c.Param("address"), currentAccount(c), req.Amount)
	if err != nil {
		handleError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "提取成功", GetFundResponse{Fund: ToFundResponse(fund)})
}

// CloseFund 提取全部余额并关闭资金
func (h *FundHandler) CloseFund(c *gin.Context) {
	fund, err := h.fundLogic.WithdrawAll(c.Request.Context(), c.Param("address"), currentAccount(c))
	if err != nil {
		handleError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "资金已关闭", GetFundResponse{Fund: ToFundResponse(fund)})
}
