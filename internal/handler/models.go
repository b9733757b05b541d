package handler

import (
	"time"

	"github.com/blues/fundvault/internal/model"
)

// 通用响应结构
type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

// 分页信息结构
type Pagination struct {
	Page      int   `json:"page"`
	PageSize  int   `json:"pageSize"`
	Total     int64 `json:"total"`
	TotalPage int64 `json:"totalPage"`
}

// NewPagination 计算分页信息
func NewPagination(page, pageSize int, total int64) Pagination {
	p := Pagination{Page: page, PageSize: pageSize, Total: total}
	if pageSize > 0 {
		p.TotalPage = (total + int64(pageSize) - 1) / int64(pageSize)
	}
	return p
}

// 资金相关请求模型

// CreateFundRequest 创建资金请求
type CreateFundRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
	DueDate     string `json:"dueDate" binding:"required"`
	GoalAmount  uint64 `json:"goalAmount"`
	IsLocked    bool   `json:"isLocked"`
}

// AmountRequest 捐赠、提取、充值请求
type AmountRequest struct {
	Amount uint64 `json:"amount" binding:"required"`
}

// 资金相关响应模型

// FundResponse 资金响应模型
type FundResponse struct {
	Address        string    `json:"address"`
	Creator        string    `json:"creator"`
	Name           string    `json:"name"`
	Description    string    `json:"description"`
	DueDate        string    `json:"dueDate"`
	DateCreated    time.Time `json:"dateCreated"`
	GoalAmount     uint64    `json:"goalAmount"`
	TotalDonated   uint64    `json:"totalDonated"`
	CurrentBalance uint64    `json:"currentBalance"`
	ReserveAmount  uint64    `json:"reserveAmount"`
	IsActive       bool      `json:"isActive"`
	IsLocked       bool      `json:"isLocked"`
}

// GetFundResponse 获取资金详情响应
type GetFundResponse struct {
	Fund FundResponse `json:"fund"`
}

// GetFundsResponse 获取资金列表响应
type GetFundsResponse struct {
	Funds      []FundResponse `json:"funds"`
	Pagination Pagination     `json:"pagination"`
}

// FundRecordResponse 资金变动记录响应模型
type FundRecordResponse struct {
	ID           string    `json:"id"`
	Kind         string    `json:"kind"`
	Actor        string    `json:"actor"`
	Amount       uint64    `json:"amount"`
	BalanceAfter uint64    `json:"balanceAfter"`
	CreatedAt    time.Time `json:"createdAt"`
}

// GetFundRecordsResponse 获取资金变动记录响应
type GetFundRecordsResponse struct {
	Records    []FundRecordResponse `json:"records"`
	Pagination Pagination           `json:"pagination"`
}

// AccountResponse 账户余额响应
type AccountResponse struct {
	Address string `json:"address"`
	Balance uint64 `json:"balance"`
}

// 转换函数

// ToFundResponse 将数据库模型转换为响应模型
func ToFundResponse(fund *model.FundModel) FundResponse {
	return FundResponse{
		Address:        fund.Address,
		Creator:        fund.Creator,
		Name:           fund.Name,
		Description:    fund.Description,
		DueDate:        fund.DueDate.Format("2006-01-02"),
		DateCreated:    fund.DateCreated,
		GoalAmount:     fund.GoalAmount,
		TotalDonated:   fund.TotalDonated,
		CurrentBalance: fund.CurrentBalance,
		ReserveAmount:  fund.ReserveAmount,
		IsActive:       fund.IsActive,
		IsLocked:       fund.IsLocked,
	}
}

// ToFundResponses 批量转换资金模型
func ToFundResponses(funds []model.FundModel) []FundResponse {
	out := make([]FundResponse, len(funds))
	for i := range funds {
		out[i] = ToFundResponse(&funds[i])
	}
	return out
}

// ToFundRecordResponses 批量转换资金变动记录
func ToFundRecordResponses(records []model.FundRecordModel) []FundRecordResponse {
	out := make([]FundRecordResponse, len(records))
	for i, r := range records {
		out[i] = FundRecordResponse{
			ID:           r.Id,
			Kind:         string(r.Kind),
			Actor:        r.Actor,
			Amount:       r.Amount,
			BalanceAfter: r.BalanceAfter,
			CreatedAt:    r.CreatedAt,
		}
	}
	return out
}
