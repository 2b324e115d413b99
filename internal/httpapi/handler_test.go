package httpapi_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"restock-notify/internal/httpapi"
	"restock-notify/internal/notify"
	"restock-notify/internal/queue"
	"restock-notify/internal/stream"
)

// ---- 测试桩 ----

type stubEngine struct {
	err         error
	freshCalls  []int64
	manualCalls []int64
}

func (s *stubEngine) ProcessRestockNotification(ctx context.Context, productID int64) error {
	s.freshCalls = append(s.freshCalls, productID)
	return s.err
}

func (s *stubEngine) ProcessRestockNotificationManual(ctx context.Context, productID int64) error {
	s.manualCalls = append(s.manualCalls, productID)
	return s.err
}

type stubEnqueuer struct {
	payloads [][]byte
	err      error
}

func (s *stubEnqueuer) Enqueue(ctx context.Context, payload []byte) error {
	if s.err != nil {
		return s.err
	}
	s.payloads = append(s.payloads, payload)
	return nil
}

func (s *stubEnqueuer) Close() {}

// ---- 路由装配 ----

func newTestRouter(handler *httpapi.Handler, limiter *rate.Limiter) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()

	trigger := router.Group("/")
	if limiter != nil {
		trigger.Use(httpapi.RateLimitMiddleware(limiter))
	}
	trigger.POST("/products/:productId/notifications/re-stock", handler.TriggerRestock)
	trigger.POST("/admin/products/:productId/notifications/re-stock", handler.TriggerRestockManual)

	return router
}

func newTriggerFixture(engine *stubEngine, enqueuer queue.Enqueuer) *gin.Engine {
	hub := stream.NewHub(4)
	handler := httpapi.NewHandler(engine, hub, enqueuer, nil, nil, nil, nil)
	return newTestRouter(handler, nil)
}

func performRequest(router *gin.Engine, method, path string) *httptest.ResponseRecorder {
	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(method, path, nil)
	router.ServeHTTP(recorder, request)
	return recorder
}

// ---- 触发接口 ----

func TestTriggerRestockSuccess(t *testing.T) {
	engine := &stubEngine{}
	router := newTriggerFixture(engine, nil)

	recorder := performRequest(router, http.MethodPost, "/products/1/notifications/re-stock")

	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, []int64{1}, engine.freshCalls)
	assert.Empty(t, engine.manualCalls)
}

func TestTriggerRestockManualSuccess(t *testing.T) {
	engine := &stubEngine{}
	router := newTriggerFixture(engine, nil)

	recorder := performRequest(router, http.MethodPost, "/admin/products/7/notifications/re-stock")

	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, []int64{7}, engine.manualCalls)
	assert.Empty(t, engine.freshCalls)
}

func TestTriggerRestockErrorMapping(t *testing.T) {
	testCases := []struct {
		name       string
		engineErr  error
		wantStatus int
	}{
		{name: "商品不存在", engineErr: notify.ErrProductNotFound, wantStatus: http.StatusNotFound},
		{name: "入口库存为零", engineErr: notify.ErrOutOfStock, wantStatus: http.StatusNotFound},
		{name: "无收件人", engineErr: notify.ErrNoRecipients, wantStatus: http.StatusNotFound},
		{name: "发送中售罄", engineErr: notify.ErrStockExhausted, wantStatus: http.StatusBadRequest},
		{name: "无可续传回次", engineErr: notify.ErrNothingToResume, wantStatus: http.StatusConflict},
		{name: "存储故障", engineErr: errors.New("connection reset"), wantStatus: http.StatusInternalServerError},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			router := newTriggerFixture(&stubEngine{err: testCase.engineErr}, nil)

			recorder := performRequest(router, http.MethodPost, "/products/1/notifications/re-stock")

			assert.Equal(t, testCase.wantStatus, recorder.Code)
			assert.Contains(t, recorder.Body.String(), `"status":`)
		})
	}
}

func TestTriggerRestockInvalidProductID(t *testing.T) {
	engine := &stubEngine{}
	router := newTriggerFixture(engine, nil)

	for _, path := range []string{
		"/products/abc/notifications/re-stock",
		"/products/0/notifications/re-stock",
		"/products/-3/notifications/re-stock",
	} {
		recorder := performRequest(router, http.MethodPost, path)
		assert.Equal(t, http.StatusBadRequest, recorder.Code, path)
	}
	assert.Empty(t, engine.freshCalls)
}

func TestTriggerRestockRateLimited(t *testing.T) {
	engine := &stubEngine{}
	hub := stream.NewHub(4)
	handler := httpapi.NewHandler(engine, hub, nil, nil, nil, nil, nil)
	// 突发容量 1:第一发放行,第二发限流
	router := newTestRouter(handler, rate.NewLimiter(rate.Limit(1), 1))

	first := performRequest(router, http.MethodPost, "/products/1/notifications/re-stock")
	second := performRequest(router, http.MethodPost, "/products/1/notifications/re-stock")

	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Len(t, engine.freshCalls, 1)
}

// ---- 异步触发 ----

func TestTriggerRestockAsyncDisabled(t *testing.T) {
	engine := &stubEngine{}
	router := newTriggerFixture(engine, nil)

	recorder := performRequest(router, http.MethodPost, "/products/1/notifications/re-stock?mode=async")

	assert.Equal(t, http.StatusServiceUnavailable, recorder.Code)
	assert.Empty(t, engine.freshCalls)
}

func TestTriggerRestockAsyncEnqueues(t *testing.T) {
	engine := &stubEngine{}
	enqueuer := &stubEnqueuer{}
	router := newTriggerFixture(engine, enqueuer)

	recorder := performRequest(router, http.MethodPost, "/admin/products/5/notifications/re-stock?mode=async")

	assert.Equal(t, http.StatusAccepted, recorder.Code)
	assert.Contains(t, recorder.Body.String(), "job_id")
	// 异步模式下不直接调用引擎
	assert.Empty(t, engine.freshCalls)
	assert.Empty(t, engine.manualCalls)

	require.Len(t, enqueuer.payloads, 1)
	job, err := queue.DecodeJob(enqueuer.payloads[0])
	require.NoError(t, err)
	assert.Equal(t, int64(5), job.ProductID)
	assert.True(t, job.Manual)
	assert.NotEmpty(t, job.JobID)
}

func TestTriggerRestockAsyncEnqueueFailure(t *testing.T) {
	engine := &stubEngine{}
	enqueuer := &stubEnqueuer{err: errors.New("nsqd unreachable")}
	router := newTriggerFixture(engine, enqueuer)

	recorder := performRequest(router, http.MethodPost, "/products/1/notifications/re-stock?mode=async")

	assert.Equal(t, http.StatusInternalServerError, recorder.Code)
}
