package billing

import "errors"

// 结算模块错误定义
var (
	ErrResourceUnavailable = errors.New("资源不可租用")
	ErrOutOfStock          = errors.New("资源库存不足")
	ErrOrderNotFound       = errors.New("订单不存在")
	ErrOrderNotOwned       = errors.New("无权操作该订单")
	ErrInvalidState        = errors.New("订单状态不允许该操作")
	ErrSettlementInvalid   = errors.New("结算金额校验失败")
	ErrRechargeNotFound    = errors.New("充值单不存在")
	ErrRechargeAmount      = errors.New("充值金额无效")
)
