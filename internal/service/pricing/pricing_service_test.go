// Package pricing_test 计价服务单元测试
package pricing_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nebulink/gpu-market-backend/internal/models"
	"github.com/nebulink/gpu-market-backend/internal/service/pricing"
)

// TestPricingService_NormalizeHours 测试时长归一化
func TestPricingService_NormalizeHours(t *testing.T) {
	svc := pricing.NewPricingService()

	t.Run("小时单位", func(t *testing.T) {
		hours, err := svc.NormalizeHours(3, models.DurationUnitHour)
		require.NoError(t, err)
		assert.Equal(t, 3, hours)
	})

	t.Run("天单位", func(t *testing.T) {
		hours, err := svc.NormalizeHours(2, models.DurationUnitDay)
		require.NoError(t, err)
		assert.Equal(t, 48, hours)
	})

	t.Run("月单位", func(t *testing.T) {
		hours, err := svc.NormalizeHours(1, models.DurationUnitMonth)
		require.NoError(t, err)
		assert.Equal(t, 720, hours)
	})

	t.Run("年单位", func(t *testing.T) {
		hours, err := svc.NormalizeHours(1, models.DurationUnitYear)
		require.NoError(t, err)
		assert.Equal(t, 8760, hours)
	})

	t.Run("时长为零", func(t *testing.T) {
		_, err := svc.NormalizeHours(0, models.DurationUnitHour)
		assert.ErrorIs(t, err, pricing.ErrInvalidDuration)
	})

	t.Run("时长为负", func(t *testing.T) {
		_, err := svc.NormalizeHours(-1, models.DurationUnitDay)
		assert.ErrorIs(t, err, pricing.ErrInvalidDuration)
	})

	t.Run("未知单位", func(t *testing.T) {
		_, err := svc.NormalizeHours(1, "week")
		assert.ErrorIs(t, err, pricing.ErrInvalidUnit)
	})
}

// TestPricingService_BasePrice 测试原价计算
func TestPricingService_BasePrice(t *testing.T) {
	svc := pricing.NewPricingService()

	t.Run("按小时计价", func(t *testing.T) {
		price, err := svc.BasePrice(1.8, 24, models.DurationUnitHour, 1)
		require.NoError(t, err)
		assert.Equal(t, 43.20, price)
	})

	t.Run("按天计价", func(t *testing.T) {
		price, err := svc.BasePrice(1.8, 1, models.DurationUnitDay, 1)
		require.NoError(t, err)
		assert.Equal(t, 43.20, price)
	})

	t.Run("多数量", func(t *testing.T) {
		price, err := svc.BasePrice(2.5, 10, models.DurationUnitHour, 4)
		require.NoError(t, err)
		assert.Equal(t, 100.0, price)
	})

	t.Run("结果保留两位小数", func(t *testing.T) {
		price, err := svc.BasePrice(0.333, 10, models.DurationUnitHour, 1)
		require.NoError(t, err)
		assert.Equal(t, 3.33, price)
	})

	t.Run("零单价合法", func(t *testing.T) {
		price, err := svc.BasePrice(0, 24, models.DurationUnitHour, 1)
		require.NoError(t, err)
		assert.Equal(t, 0.0, price)
	})

	t.Run("负单价", func(t *testing.T) {
		_, err := svc.BasePrice(-1, 24, models.DurationUnitHour, 1)
		assert.ErrorIs(t, err, pricing.ErrInvalidPrice)
	})

	t.Run("数量小于一", func(t *testing.T) {
		_, err := svc.BasePrice(1.8, 24, models.DurationUnitHour, 0)
		assert.ErrorIs(t, err, pricing.ErrInvalidQuantity)
	})

	t.Run("无效时长", func(t *testing.T) {
		_, err := svc.BasePrice(1.8, 0, models.DurationUnitHour, 1)
		assert.ErrorIs(t, err, pricing.ErrInvalidDuration)
	})
}

// TestPricingService_HourlyRate 测试小时单价折算
func TestPricingService_HourlyRate(t *testing.T) {
	svc := pricing.NewPricingService()

	t.Run("小时计价资源", func(t *testing.T) {
		rate, err := svc.HourlyRate(1.8, models.DurationUnitHour)
		require.NoError(t, err)
		assert.Equal(t, 1.8, rate)
	})

	t.Run("天计价资源折算到小时", func(t *testing.T) {
		rate, err := svc.HourlyRate(48, models.DurationUnitDay)
		require.NoError(t, err)
		assert.Equal(t, 2.0, rate)
	})

	t.Run("未知单位", func(t *testing.T) {
		_, err := svc.HourlyRate(1.8, "minute")
		assert.ErrorIs(t, err, pricing.ErrInvalidUnit)
	})
}
