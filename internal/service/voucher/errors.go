// Package voucher 提供代金券服务
package voucher

import "errors"

// 代金券模块错误定义
var (
	ErrVoucherNotFound     = errors.New("代金券不存在")
	ErrVoucherNotActive    = errors.New("代金券未启用")
	ErrVoucherNotStarted   = errors.New("代金券活动未开始")
	ErrVoucherExpired      = errors.New("代金券已过期")
	ErrVoucherExhausted    = errors.New("代金券已领完")
	ErrAlreadyClaimed      = errors.New("代金券已领取")
	ErrUserVoucherNotFound = errors.New("用户代金券不存在")
	ErrNotOwned            = errors.New("代金券不属于当前用户")
	ErrAlreadyUsed         = errors.New("代金券已使用")
	ErrUserVoucherExpired  = errors.New("用户代金券已过期")
	ErrScopeMismatch       = errors.New("代金券不适用于该供应商")
	ErrBelowMinimum        = errors.New("未达到代金券使用门槛")
	ErrUnknownKind         = errors.New("未知的代金券类型")
)
