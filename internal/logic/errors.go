package logic

import (
	"errors"

	"github.com/blues/fundvault/internal/ledger"
	"github.com/blues/fundvault/internal/wallet"
)

var (
	ErrInvalidDate     = errors.New("invalid due date")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrUnauthorized    = errors.New("requester is not the fund creator")
	ErrLocked          = errors.New("fund is locked until its due date")
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrBelowReserve    = errors.New("withdrawal would leave balance below reserved minimum")
	ErrFundInactive    = errors.New("fund is closed")

	ErrAlreadyExists     = ledger.ErrAlreadyExists
	ErrNotFound          = ledger.ErrNotFound
	ErrInvariantViolated = ledger.ErrInvariantViolated
	ErrInsufficientFunds = wallet.ErrInsufficientFunds
	ErrAmountOverflow    = wallet.ErrAmountOverflow
)

// ErrorKind 错误类型标签, 用于指标和日志
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrAlreadyExists):
		return "already_exists"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrFundInactive):
		return "inactive"
	case errors.Is(err, ErrInvalidDate):
		return "invalid_date"
	case errors.Is(err, ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrLocked):
		return "locked"
	case errors.Is(err, ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, ErrBelowReserve):
		return "below_reserve"
	case errors.Is(err, ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ErrAmountOverflow):
		return "amount_overflow"
	case errors.Is(err, ErrInvariantViolated):
		return "invariant_violated"
	default:
		return "internal"
	}
}
