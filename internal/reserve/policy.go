package reserve

import (
	"github.com/blues/fundvault/internal/config"
	"github.com/shopspring/decimal"
)

// Policy 最低保留金额策略: 记录存在期间账户余额不得低于该值
type Policy interface {
	Minimum(recordSize int) uint64
}

// RentPolicy 按存储租金计算: (固定开销 + 记录大小) * 每字节每年租金 * 免租年数
type RentPolicy struct {
	StorageOverhead     int
	LamportsPerByteYear uint64
	ExemptionThreshold  float64
}

// NewRentPolicy 从配置创建租金策略
func NewRentPolicy(cfg config.ReserveConfig) RentPolicy {
	return RentPolicy{
		StorageOverhead:     cfg.StorageOverhead,
		LamportsPerByteYear: cfg.LamportsPerByteYear,
		ExemptionThreshold:  cfg.ExemptionThreshold,
	}
}

func (p RentPolicy) Minimum(recordSize int) uint64 {
	if recordSize < 0 {
		recordSize = 0
	}
	bytes := decimal.NewFromInt(int64(p.StorageOverhead + recordSize))
	rent := bytes.
		Mul(decimal.NewFromInt(int64(p.LamportsPerByteYear))).
		Mul(decimal.NewFromFloat(p.ExemptionThreshold)).
		Floor()
	if rent.Sign() <= 0 {
		return 0
	}
	return uint64(rent.IntPart())
}

// Fixed 固定保留金额
type Fixed uint64

func (f Fixed) Minimum(int) uint64 {
	return uint64(f)
}
