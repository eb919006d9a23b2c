// Package voucher_test 代金券 Handler 测试
package voucher_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/nebulink/gpu-market-backend/internal/common/response"
	voucherHandler "github.com/nebulink/gpu-market-backend/internal/handler/voucher"
	"github.com/nebulink/gpu-market-backend/internal/middleware"
	"github.com/nebulink/gpu-market-backend/internal/models"
	"github.com/nebulink/gpu-market-backend/internal/repository"
	voucherService "github.com/nebulink/gpu-market-backend/internal/service/voucher"
)

// setupVoucherHandlerTest 装配测试路由，authUserID 模拟已登录用户
func setupVoucherHandlerTest(t *testing.T, authUserID int64) (*gin.Engine, *gorm.DB) {
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	require.NoError(t, db.AutoMigrate(&models.Voucher{}, &models.UserVoucher{}))

	svc := voucherService.NewVoucherService(db,
		repository.NewVoucherRepository(db),
		repository.NewUserVoucherRepository(db),
	)
	h := voucherHandler.NewHandler(svc)

	r := gin.New()
	r.POST("/vouchers/preview", func(c *gin.Context) {
		if authUserID > 0 {
			c.Set(middleware.ContextKeyUserID, authUserID)
		}
		c.Next()
	}, h.Preview)
	return r, db
}

// seedUserVoucher 写入模板与用户券
func seedUserVoucher(t *testing.T, db *gorm.DB, userID int64) *models.UserVoucher {
	voucher := &models.Voucher{
		Code:           "WELCOME10",
		Name:           "新人券",
		Kind:           models.VoucherKindAmount,
		Value:          10,
		MinOrderAmount: 20,
		TotalQuantity:  100,
		Status:         models.VoucherStatusActive,
	}
	require.NoError(t, db.Create(voucher).Error)

	uv := &models.UserVoucher{
		UserID:      userID,
		VoucherID:   voucher.ID,
		VoucherCode: voucher.Code,
		Status:      models.UserVoucherStatusUnused,
		ClaimedAt:   time.Now(),
	}
	require.NoError(t, db.Create(uv).Error)
	return uv
}

// TestVoucherHandler_Preview 测试核销试算接口
func TestVoucherHandler_Preview(t *testing.T) {
	doPreview := func(r *gin.Engine, body map[string]interface{}) *httptest.ResponseRecorder {
		raw, _ := json.Marshal(body)
		req := httptest.NewRequest(http.MethodPost, "/vouchers/preview", bytes.NewReader(raw))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	t.Run("试算返回抵扣金额", func(t *testing.T) {
		r, db := setupVoucherHandlerTest(t, 1)
		uv := seedUserVoucher(t, db, 1)

		w := doPreview(r, map[string]interface{}{
			"user_voucher_id": uv.ID,
			"order_amount":    43.20,
		})
		require.Equal(t, http.StatusOK, w.Code)

		var resp response.Response
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, 0, resp.Code)

		data := resp.Data.(map[string]interface{})
		assert.Equal(t, 10.0, data["amount"])

		// 试算不落库
		var got models.UserVoucher
		require.NoError(t, db.First(&got, uv.ID).Error)
		assert.Equal(t, int8(models.UserVoucherStatusUnused), got.Status)
	})

	t.Run("他人代金券返回403", func(t *testing.T) {
		r, db := setupVoucherHandlerTest(t, 2)
		uv := seedUserVoucher(t, db, 1)

		w := doPreview(r, map[string]interface{}{
			"user_voucher_id": uv.ID,
			"order_amount":    43.20,
		})
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("未达门槛返回400", func(t *testing.T) {
		r, db := setupVoucherHandlerTest(t, 1)
		uv := seedUserVoucher(t, db, 1)

		w := doPreview(r, map[string]interface{}{
			"user_voucher_id": uv.ID,
			"order_amount":    10.0,
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("代金券不存在返回404", func(t *testing.T) {
		r, _ := setupVoucherHandlerTest(t, 1)

		w := doPreview(r, map[string]interface{}{
			"user_voucher_id": 999,
			"order_amount":    43.20,
		})
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("未登录返回401", func(t *testing.T) {
		r, _ := setupVoucherHandlerTest(t, 0)

		w := doPreview(r, map[string]interface{}{
			"user_voucher_id": 1,
			"order_amount":    43.20,
		})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}
