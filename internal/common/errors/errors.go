// Package errors 定义业务错误码和错误处理
package errors

import (
	"fmt"
	"strings"
)

// AppError 应用错误
type AppError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

// Error 实现 error 接口
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%d] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

// Unwrap 实现 errors.Unwrap
func (e *AppError) Unwrap() error {
	return e.Err
}

// New 创建新的应用错误
func New(code int, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap 包装错误
func Wrap(code int, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// WithMessage 修改错误消息
func (e *AppError) WithMessage(message string) *AppError {
	return &AppError{
		Code:    e.Code,
		Message: message,
		Err:     e.Err,
	}
}

// WithError 添加原始错误
func (e *AppError) WithError(err error) *AppError {
	return &AppError{
		Code:    e.Code,
		Message: e.Message,
		Err:     err,
	}
}

// 通用错误码 (1000-1999)
var (
	ErrUnknown         = New(1000, "未知错误")
	ErrInvalidParams   = New(1001, "参数错误")
	ErrNotFound        = New(1002, "资源不存在")
	ErrAlreadyExists   = New(1003, "资源已存在")
	ErrDatabaseError   = New(1004, "数据库错误")
	ErrCacheError      = New(1005, "缓存错误")
	ErrInternalError   = New(1006, "内部错误")
	ErrRateLimitExceed = New(1008, "请求过于频繁")
	ErrOperationFailed = New(1009, "操作失败")
)

// 认证错误码 (2000-2999)
var (
	ErrUnauthorized     = New(2000, "未登录")
	ErrTokenExpired     = New(2001, "登录已过期")
	ErrTokenInvalid     = New(2002, "无效的令牌")
	ErrPermissionDenied = New(2004, "权限不足")
	ErrAccountDisabled  = New(2005, "账号已禁用")
)

// 账户错误码 (3000-3999)
var (
	ErrAccountNotFound     = New(3000, "账户不存在")
	ErrBalanceInsufficient = New(3001, "余额不足")
	ErrFrozenInsufficient  = New(3002, "冻结余额不足")
	ErrAmountInvalid       = New(3003, "无效的金额")
	ErrTransactionNotFound = New(3004, "交易记录不存在")
	ErrRechargeNotFound    = New(3005, "充值单不存在")
	ErrRechargeClosed      = New(3006, "充值单已关闭")
)

// 资源目录错误码 (4000-4999)
var (
	ErrResourceNotFound  = New(4000, "资源不存在")
	ErrResourceOffline   = New(4001, "资源已下架")
	ErrStockInsufficient = New(4002, "库存不足")
	ErrDurationInvalid   = New(4003, "无效的租用时长")
	ErrQuantityInvalid   = New(4004, "无效的数量")
)

// 订单错误码 (5000-5999)
var (
	ErrOrderNotFound     = New(5000, "订单不存在")
	ErrOrderStatusError  = New(5001, "订单状态异常")
	ErrOrderExpired      = New(5002, "订单已过期")
	ErrOrderCancelled    = New(5003, "订单已取消")
	ErrOrderPaid         = New(5004, "订单已支付")
	ErrOrderCannotCancel = New(5005, "订单无法取消")
	ErrSettlementInvalid = New(5006, "结算金额异常")
)

// 支付错误码 (6000-6999)
var (
	ErrPaymentFailed        = New(6001, "支付失败")
	ErrPaymentExpired       = New(6002, "支付已过期")
	ErrRefundFailed         = New(6004, "退款失败")
	ErrPaymentMethodError   = New(6006, "支付方式错误")
	ErrPaymentCallbackError = New(6007, "支付回调错误")
)

// 营销错误码 (9000-9999)
var (
	ErrVoucherNotFound      = New(9000, "代金券不存在")
	ErrVoucherExpired       = New(9001, "代金券已过期")
	ErrVoucherUsed          = New(9002, "代金券已使用")
	ErrVoucherNotApplicable = New(9003, "代金券不适用")
	ErrVoucherClaimed       = New(9004, "代金券已领取")
	ErrVoucherNotEnough     = New(9005, "代金券已领完")
	ErrVoucherBelowMinimum  = New(9006, "未达到代金券使用门槛")
	ErrDiscountNotFound     = New(9007, "折扣规则不存在")
)

// IsAppError 判断是否为应用错误
func IsAppError(err error) bool {
	_, ok := err.(*AppError)
	return ok
}

// GetAppError 获取应用错误
func GetAppError(err error) *AppError {
	if appErr, ok := err.(*AppError); ok {
		return appErr
	}
	return ErrUnknown.WithError(err)
}

// IsTransient 判断错误是否可重试
// 序列化冲突、死锁和锁等待超时在重试后大概率成功
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{
		"deadlock detected",
		"could not serialize access",
		"lock timeout",
		"database is locked",
	} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
