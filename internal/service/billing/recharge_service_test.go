package billing_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nebulink/gpu-market-backend/internal/models"
	"github.com/nebulink/gpu-market-backend/internal/service/billing"
)

// TestRechargeService_CreateRecharge 测试创建充值单
func TestRechargeService_CreateRecharge(t *testing.T) {
	ctx := context.Background()
	env := setupBillingTestEnv(t)

	t.Run("创建成功", func(t *testing.T) {
		recharge, err := env.recharge.CreateRecharge(ctx, 1, 100)
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(recharge.RechargeNo, "RC"))
		assert.Equal(t, 100.0, recharge.Amount)
		assert.Equal(t, "mock", recharge.Channel)
		assert.Equal(t, int8(models.RechargeStatusPending), recharge.Status)

		// 未回调前不入账
		balance, err := env.account.GetBalance(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, 0.0, balance)
	})

	t.Run("金额保留两位小数", func(t *testing.T) {
		recharge, err := env.recharge.CreateRecharge(ctx, 1, 9.999)
		require.NoError(t, err)
		assert.Equal(t, 10.0, recharge.Amount)
	})

	t.Run("金额非法", func(t *testing.T) {
		_, err := env.recharge.CreateRecharge(ctx, 1, 0)
		assert.ErrorIs(t, err, billing.ErrRechargeAmount)

		_, err = env.recharge.CreateRecharge(ctx, 1, -1)
		assert.ErrorIs(t, err, billing.ErrRechargeAmount)
	})
}

// TestRechargeService_HandleCallback 测试支付回调
func TestRechargeService_HandleCallback(t *testing.T) {
	ctx := context.Background()

	t.Run("回调入账", func(t *testing.T) {
		env := setupBillingTestEnv(t)
		recharge, err := env.recharge.CreateRecharge(ctx, 1, 100)
		require.NoError(t, err)

		require.NoError(t, env.recharge.HandleCallback(ctx, recharge.RechargeNo))

		balance, err := env.account.GetBalance(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, 100.0, balance)

		var got models.RechargeOrder
		require.NoError(t, env.db.First(&got, recharge.ID).Error)
		assert.Equal(t, int8(models.RechargeStatusPaid), got.Status)
		assert.NotNil(t, got.PaidAt)

		// 入账产生充值流水
		var txn models.AccountTransaction
		require.NoError(t, env.db.Where("user_id = ? AND type = ?", 1, models.AccountTxTypeRecharge).First(&txn).Error)
		assert.Equal(t, 100.0, txn.Amount)
	})

	t.Run("重复回调幂等", func(t *testing.T) {
		env := setupBillingTestEnv(t)
		recharge, err := env.recharge.CreateRecharge(ctx, 1, 100)
		require.NoError(t, err)

		require.NoError(t, env.recharge.HandleCallback(ctx, recharge.RechargeNo))
		require.NoError(t, env.recharge.HandleCallback(ctx, recharge.RechargeNo))

		// 只入账一次
		balance, err := env.account.GetBalance(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, 100.0, balance)
	})

	t.Run("充值单不存在", func(t *testing.T) {
		env := setupBillingTestEnv(t)

		err := env.recharge.HandleCallback(ctx, "RC-NOTEXIST")
		assert.ErrorIs(t, err, billing.ErrRechargeNotFound)
	})

	t.Run("已关闭充值单", func(t *testing.T) {
		env := setupBillingTestEnv(t)
		recharge, err := env.recharge.CreateRecharge(ctx, 1, 100)
		require.NoError(t, err)
		require.NoError(t, env.db.Model(&models.RechargeOrder{}).
			Where("id = ?", recharge.ID).Update("status", models.RechargeStatusClosed).Error)

		err = env.recharge.HandleCallback(ctx, recharge.RechargeNo)
		assert.ErrorIs(t, err, billing.ErrInvalidState)
	})
}
