package model

import (
	"time"
)

// FundModel 众筹资金账户
type FundModel struct {
	Address   string    `json:"address" gorm:"primaryKey;size:42"`
	UpdatedAt time.Time `json:"updated_at"`

	// 基本信息
	Creator     string `json:"creator" gorm:"not null;index"`
	Name        string `json:"name" gorm:"not null"`
	Description string `json:"description" gorm:"type:text"`

	// 时间信息
	DueDate     time.Time `json:"due_date" gorm:"type:date;not null"`
	DateCreated time.Time `json:"date_created" gorm:"not null"`

	// 资金信息
	GoalAmount     uint64 `json:"goal_amount" gorm:"not null"`
	TotalDonated   uint64 `json:"total_donated" gorm:"not null;default:0"`
	CurrentBalance uint64 `json:"current_balance" gorm:"not null;default:0"`
	ReserveAmount  uint64 `json:"reserve_amount" gorm:"not null;default:0"` // 创建时存入的最低保留金额

	// 状态
	IsActive bool `json:"is_active" gorm:"not null;index"`
	IsLocked bool `json:"is_locked" gorm:"not null"`
}

// TableName 自定义表名
func (FundModel) TableName() string {
	return "fund"
}

// Holding 账户地址上应持有的全部金额
func (f *FundModel) Holding() uint64 {
	return f.CurrentBalance + f.ReserveAmount
}

// Withdrawn 已提取金额
func (f *FundModel) Withdrawn() uint64 {
	if f.TotalDonated < f.CurrentBalance {
		return 0
	}
	return f.TotalDonated - f.CurrentBalance
}
