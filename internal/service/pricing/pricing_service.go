// Package pricing 提供计价基础服务
package pricing

import (
	"errors"

	"github.com/nebulink/gpu-market-backend/internal/common/utils"
	"github.com/nebulink/gpu-market-backend/internal/models"
)

// 计价模块错误定义
var (
	ErrInvalidDuration = errors.New("无效的租用时长")
	ErrInvalidQuantity = errors.New("无效的数量")
	ErrInvalidPrice    = errors.New("无效的单价")
	ErrInvalidUnit     = errors.New("无效的时长单位")
)

// 时长单位到小时的换算
var unitHours = map[string]int{
	models.DurationUnitHour:  1,
	models.DurationUnitDay:   24,
	models.DurationUnitMonth: 720,
	models.DurationUnitYear:  8760,
}

// PricingService 计价服务
type PricingService struct{}

// NewPricingService 创建计价服务
func NewPricingService() *PricingService {
	return &PricingService{}
}

// NormalizeHours 将时长归一化为小时数
func (s *PricingService) NormalizeHours(duration int, unit string) (int, error) {
	if duration <= 0 {
		return 0, ErrInvalidDuration
	}
	hours, ok := unitHours[unit]
	if !ok {
		return 0, ErrInvalidUnit
	}
	return duration * hours, nil
}

// BasePrice 计算原价
// 单价按小时计，结果四舍五入保留两位小数
func (s *PricingService) BasePrice(unitPrice float64, duration int, unit string, quantity int) (float64, error) {
	if unitPrice < 0 {
		return 0, ErrInvalidPrice
	}
	if quantity < 1 {
		return 0, ErrInvalidQuantity
	}

	hours, err := s.NormalizeHours(duration, unit)
	if err != nil {
		return 0, err
	}

	return utils.Round2(unitPrice * float64(hours) * float64(quantity)), nil
}

// HourlyRate 返回资源的小时单价
// 非小时计价的资源折算到小时
func (s *PricingService) HourlyRate(unitPrice float64, unitDuration string) (float64, error) {
	hours, ok := unitHours[unitDuration]
	if !ok {
		return 0, ErrInvalidUnit
	}
	return unitPrice / float64(hours), nil
}
