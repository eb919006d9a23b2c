//go:build integration

package integration

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/nebulink/gpu-market-backend/internal/common/errors"
	"github.com/nebulink/gpu-market-backend/internal/models"
	"github.com/nebulink/gpu-market-backend/internal/service/billing"
	"github.com/nebulink/gpu-market-backend/internal/service/voucher"
)

// TestConcurrentSettlement 并发守恒性质
// 同一订单并发支付只扣款一次；同一账户并发扣款不透支；
// 同一券码并发领取只发一张；库存竞争不超卖
func TestConcurrentSettlement(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	tc := NewTestContainers(ctx)
	require.NoError(t, tc.StartPostgres(), "failed to start postgres")
	t.Cleanup(func() {
		_ = tc.Cleanup()
	})

	db, err := tc.GetPostgresDB()
	require.NoError(t, err)
	svcs := setupBillingServices(t, db)

	newResource := func(name string, stock int) *models.Resource {
		r := &models.Resource{
			Name:         name,
			Category:     models.ResourceCategoryGPU,
			ProviderCode: "aliyun",
			Model:        "A100",
			UnitPrice:    1.8,
			UnitDuration: models.DurationUnitHour,
			Stock:        stock,
			Status:       models.ResourceStatusActive,
		}
		require.NoError(t, svcs.catalog.CreateResource(ctx, r))
		return r
	}

	t.Run("同一订单并发支付只扣款一次", func(t *testing.T) {
		const userID int64 = 101
		resource := newResource("并发支付", 10)
		require.NoError(t, svcs.account.Recharge(ctx, userID, 100, 1, models.RelatedTypeRecharge))

		order, err := svcs.settlement.Quote(ctx, userID, &billing.QuoteRequest{
			ResourceID:   resource.ID,
			Duration:     24,
			DurationUnit: models.DurationUnitHour,
			Quantity:     1,
		})
		require.NoError(t, err)

		var wg sync.WaitGroup
		errs := make([]error, 2)
		for i := 0; i < 2; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				errs[i] = svcs.order.Pay(ctx, userID, order.ID)
			}(i)
		}
		wg.Wait()

		// 落后方在状态翻转处让路，幂等返回成功
		require.NoError(t, errs[0])
		require.NoError(t, errs[1])

		balance, err := svcs.account.GetBalance(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, 56.80, balance)

		var debits int64
		require.NoError(t, db.Model(&models.AccountTransaction{}).
			Where("user_id = ? AND type = ?", userID, models.AccountTxTypeConsumption).
			Count(&debits).Error)
		assert.Equal(t, int64(1), debits)

		var res models.Resource
		require.NoError(t, db.First(&res, resource.ID).Error)
		assert.Equal(t, 9, res.Stock)

		ok, err := svcs.account.Reconcile(ctx, userID)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("同一账户并发扣款不透支", func(t *testing.T) {
		const userID int64 = 102
		resource := newResource("并发扣款", 10)
		require.NoError(t, svcs.account.Recharge(ctx, userID, 50, 1, models.RelatedTypeRecharge))

		orders := make([]*models.Order, 2)
		for i := range orders {
			o, err := svcs.settlement.Quote(ctx, userID, &billing.QuoteRequest{
				ResourceID:   resource.ID,
				Duration:     24,
				DurationUnit: models.DurationUnitHour,
				Quantity:     1,
			})
			require.NoError(t, err)
			orders[i] = o
		}

		var wg sync.WaitGroup
		errs := make([]error, 2)
		for i := 0; i < 2; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				errs[i] = svcs.order.Pay(ctx, userID, orders[i].ID)
			}(i)
		}
		wg.Wait()

		// 两单合计 86.40 超出余额 50，只有一单支付成功
		succeeded := 0
		for _, err := range errs {
			if err == nil {
				succeeded++
			} else {
				assert.ErrorIs(t, err, apperrors.ErrBalanceInsufficient)
			}
		}
		assert.Equal(t, 1, succeeded)

		balance, err := svcs.account.GetBalance(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, 6.80, balance)

		ok, err := svcs.account.Reconcile(ctx, userID)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("同一券码并发领取只发一张", func(t *testing.T) {
		const userID int64 = 103
		require.NoError(t, svcs.voucher.CreateVoucher(ctx, &models.Voucher{
			Code:          "RACE10",
			Name:          "并发领取券",
			Kind:          models.VoucherKindAmount,
			Value:         10,
			TotalQuantity: 100,
			Status:        models.VoucherStatusActive,
		}))

		var wg sync.WaitGroup
		errs := make([]error, 2)
		for i := 0; i < 2; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, errs[i] = svcs.voucher.Claim(ctx, userID, "RACE10")
			}(i)
		}
		wg.Wait()

		succeeded := 0
		for _, err := range errs {
			if err == nil {
				succeeded++
			} else {
				assert.ErrorIs(t, err, voucher.ErrAlreadyClaimed)
			}
		}
		assert.Equal(t, 1, succeeded)

		var claimed int64
		require.NoError(t, db.Model(&models.UserVoucher{}).
			Where("user_id = ? AND voucher_code = ?", userID, "RACE10").
			Count(&claimed).Error)
		assert.Equal(t, int64(1), claimed)

		var tpl models.Voucher
		require.NoError(t, db.Where("code = ?", "RACE10").First(&tpl).Error)
		assert.Equal(t, 1, tpl.ConsumedQuantity)
	})

	t.Run("库存竞争不超卖", func(t *testing.T) {
		userIDs := []int64{104, 105}
		resource := newResource("末件竞争", 1)

		orders := make([]*models.Order, 2)
		for i, uid := range userIDs {
			require.NoError(t, svcs.account.Recharge(ctx, uid, 100, 1, models.RelatedTypeRecharge))
			o, err := svcs.settlement.Quote(ctx, uid, &billing.QuoteRequest{
				ResourceID:   resource.ID,
				Duration:     24,
				DurationUnit: models.DurationUnitHour,
				Quantity:     1,
			})
			require.NoError(t, err)
			orders[i] = o
		}

		var wg sync.WaitGroup
		errs := make([]error, 2)
		for i := 0; i < 2; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				errs[i] = svcs.order.Pay(ctx, userIDs[i], orders[i].ID)
			}(i)
		}
		wg.Wait()

		succeeded := 0
		for i, err := range errs {
			if err == nil {
				succeeded++
				continue
			}
			assert.ErrorIs(t, err, billing.ErrOutOfStock)

			// 失败方扣款整体回滚
			balance, berr := svcs.account.GetBalance(ctx, userIDs[i])
			require.NoError(t, berr)
			assert.Equal(t, 100.0, balance)

			var got models.Order
			require.NoError(t, db.First(&got, orders[i].ID).Error)
			assert.Equal(t, int8(models.OrderStatusPending), got.Status)
		}
		assert.Equal(t, 1, succeeded)

		var res models.Resource
		require.NoError(t, db.First(&res, resource.ID).Error)
		assert.Equal(t, 0, res.Stock)

		for _, uid := range userIDs {
			ok, err := svcs.account.Reconcile(ctx, uid)
			require.NoError(t, err)
			assert.True(t, ok)
		}
	})
}
