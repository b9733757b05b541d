package model

import (
	"time"
)

// FundRecordModel 资金变动记录
type FundRecordModel struct {
	Id        string    `json:"id" gorm:"primaryKey;size:36"`
	CreatedAt time.Time `json:"created_at" gorm:"index"`

	FundAddress  string         `json:"fund_address" gorm:"not null;index"`
	Kind         FundRecordKind `json:"kind" gorm:"not null;size:16"`
	Actor        string         `json:"actor" gorm:"not null"`
	Amount       uint64         `json:"amount" gorm:"not null"`
	BalanceAfter uint64         `json:"balance_after" gorm:"not null"`
}

// FundRecordKind 记录类型
type FundRecordKind string

const (
	FundRecordCreate   FundRecordKind = "create"   // 创建并存入保留金
	FundRecordDonate   FundRecordKind = "donate"   // 捐赠
	FundRecordWithdraw FundRecordKind = "withdraw" // 部分提取
	FundRecordClose    FundRecordKind = "close"    // 全额提取并关闭
)

// TableName 自定义表名
func (FundRecordModel) TableName() string {
	return "fund_record"
}
