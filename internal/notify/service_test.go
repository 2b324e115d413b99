package notify_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"restock-notify/internal/notify"
	"restock-notify/internal/notify/test"
)

// serviceFixture 用真实的解析器/跟踪器/调度器加存储 Mock 组装完整服务
type serviceFixture struct {
	cache       *test.MockCache
	products    *test.MockProductStore
	subs        *test.MockSubscriptionStore
	rounds      *test.MockRoundStore
	deliveries  *test.MockDeliveryStore
	broadcaster *test.MockBroadcaster
	service     *notify.Service
}

func newServiceFixture(products ...notify.Product) *serviceFixture {
	fixture := &serviceFixture{
		cache:       test.NewMockCache(),
		products:    test.NewMockProductStore(products...),
		subs:        test.NewMockSubscriptionStore(),
		rounds:      &test.MockRoundStore{},
		deliveries:  &test.MockDeliveryStore{},
		broadcaster: &test.MockBroadcaster{},
	}

	resolver := notify.NewResolver(fixture.cache, fixture.products, fixture.subs, 30*time.Second)
	tracker := notify.NewTracker(fixture.rounds)
	dispatcher := notify.NewDispatcher(resolver, fixture.deliveries, tracker, fixture.broadcaster)
	fixture.service = notify.NewService(resolver, tracker, dispatcher, fixture.products)
	return fixture
}

func TestProcessRestockNotification(t *testing.T) {
	fixture := newServiceFixture(notify.Product{ID: 1, Name: "机械键盘", Stock: 10, RestockRound: 0})
	fixture.subs.Subs[1] = []int64{1, 2, 3}

	err := fixture.service.ProcessRestockNotification(context.Background(), 1)
	require.NoError(t, err)

	// 补货回次 0 -> 1 并持久化
	assert.Equal(t, []int{1}, fixture.products.RoundUpdates)

	require.Len(t, fixture.rounds.Rounds, 1)
	round := fixture.rounds.Rounds[0]
	assert.Equal(t, 1, round.RestockRound)
	assert.Equal(t, notify.StatusCompleted, round.Status)
	assert.Equal(t, int64(3), round.LastNotifiedUserID)

	require.Len(t, fixture.deliveries.Records, 3)
	for i, record := range fixture.deliveries.Records {
		assert.Equal(t, int64(i+1), record.UserID)
		assert.Equal(t, 1, record.RestockRound)
	}

	require.Len(t, fixture.broadcaster.Messages, 1)
	assert.Equal(t, "restock notification - product [机械键盘]", fixture.broadcaster.Messages[0])
}

func TestProcessRestockNotificationProductNotFound(t *testing.T) {
	fixture := newServiceFixture()

	err := fixture.service.ProcessRestockNotification(context.Background(), 99)

	require.ErrorIs(t, err, notify.ErrProductNotFound)
	// 校验类失败不产生任何回次记录
	assert.Empty(t, fixture.rounds.Rounds)
}

func TestProcessRestockNotificationOutOfStock(t *testing.T) {
	fixture := newServiceFixture(notify.Product{ID: 1, Name: "机械键盘", Stock: 0, RestockRound: 0})
	fixture.subs.Subs[1] = []int64{1, 2}

	err := fixture.service.ProcessRestockNotification(context.Background(), 1)

	require.ErrorIs(t, err, notify.ErrOutOfStock)
	assert.Empty(t, fixture.rounds.Rounds)
	assert.Empty(t, fixture.products.RoundUpdates)
}

func TestProcessRestockNotificationNoRecipients(t *testing.T) {
	fixture := newServiceFixture(notify.Product{ID: 1, Name: "机械键盘", Stock: 10, RestockRound: 0})

	err := fixture.service.ProcessRestockNotification(context.Background(), 1)

	require.ErrorIs(t, err, notify.ErrNoRecipients)
	// 无收件人:不开回次、不递增补货回次、不写审计回次
	assert.Empty(t, fixture.rounds.Rounds)
	assert.Empty(t, fixture.products.RoundUpdates)
}

func TestProcessRestockNotificationSoldOutMidDispatch(t *testing.T) {
	fixture := newServiceFixture(notify.Product{ID: 1, Name: "机械键盘", Stock: 2, RestockRound: 0})
	fixture.subs.Subs[1] = []int64{1, 2, 3, 4}

	// 模拟外部购买:第二次成功发送后库存被扣减到 0
	fixture.deliveries.AfterSave = func(record notify.DeliveryRecord) {
		if record.UserID == 2 {
			fixture.cache.Put("productStock:1", "0")
		}
	}

	err := fixture.service.ProcessRestockNotification(context.Background(), 1)

	require.ErrorIs(t, err, notify.ErrStockExhausted)

	// 售罄中断只留一条 CANCELED_BY_SOLD_OUT 回次,不再追加异常审计回次
	require.Len(t, fixture.rounds.Rounds, 1)
	round := fixture.rounds.Rounds[0]
	assert.Equal(t, notify.StatusCanceledBySoldOut, round.Status)
	assert.Equal(t, int64(2), round.LastNotifiedUserID)
	assert.Len(t, fixture.deliveries.Records, 2)
}

func TestProcessRestockNotificationUnexpectedFailureAppendsErrorRound(t *testing.T) {
	fixture := newServiceFixture(notify.Product{ID: 1, Name: "机械键盘", Stock: 10, RestockRound: 0})
	fixture.subs.Subs[1] = []int64{1, 2, 3, 4, 5}
	fixture.deliveries.FailAt = 3
	fixture.deliveries.Err = errors.New("connection reset")

	err := fixture.service.ProcessRestockNotification(context.Background(), 1)

	require.Error(t, err)
	assert.ErrorContains(t, err, "connection reset")

	// 中断回次保持 IN_PROGRESS,随后追加一条复用回次号与断点的审计回次
	require.Len(t, fixture.rounds.Rounds, 2)

	interrupted := fixture.rounds.Rounds[0]
	assert.Equal(t, notify.StatusInProgress, interrupted.Status)
	assert.Equal(t, int64(2), interrupted.LastNotifiedUserID)
	assert.Equal(t, 1, interrupted.RestockRound)

	audit := fixture.rounds.Rounds[1]
	assert.Equal(t, notify.StatusCanceledByError, audit.Status)
	assert.Equal(t, int64(2), audit.LastNotifiedUserID)
	assert.Equal(t, 1, audit.RestockRound)
}

func TestProcessRestockNotificationManualResume(t *testing.T) {
	fixture := newServiceFixture(notify.Product{ID: 1, Name: "机械键盘", Stock: 5, RestockRound: 3})
	fixture.subs.Subs[1] = []int64{1, 2, 3}
	fixture.rounds.Seed(notify.Round{
		ProductID:          1,
		RestockRound:       3,
		LastNotifiedUserID: 1,
		Status:             notify.StatusCanceledBySoldOut,
	})

	err := fixture.service.ProcessRestockNotificationManual(context.Background(), 1)
	require.NoError(t, err)

	// 续传不递增补货回次
	assert.Empty(t, fixture.products.RoundUpdates)

	require.Len(t, fixture.rounds.Rounds, 2)
	resumed := fixture.rounds.Rounds[1]
	assert.Equal(t, 3, resumed.RestockRound)
	assert.Equal(t, notify.StatusCompleted, resumed.Status)
	assert.Equal(t, int64(3), resumed.LastNotifiedUserID)

	// 只补发断点之后的用户
	require.Len(t, fixture.deliveries.Records, 2)
	assert.Equal(t, int64(2), fixture.deliveries.Records[0].UserID)
	assert.Equal(t, int64(3), fixture.deliveries.Records[1].UserID)
}

func TestProcessRestockNotificationManualNothingToResume(t *testing.T) {
	testCases := []struct {
		name string
		seed *notify.Round
	}{
		{name: "无历史回次", seed: nil},
		{
			name: "最近回次已完成",
			seed: &notify.Round{
				ProductID:          1,
				RestockRound:       2,
				LastNotifiedUserID: 3,
				Status:             notify.StatusCompleted,
			},
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			fixture := newServiceFixture(notify.Product{ID: 1, Name: "机械键盘", Stock: 5, RestockRound: 2})
			fixture.subs.Subs[1] = []int64{1, 2, 3}
			if testCase.seed != nil {
				fixture.rounds.Seed(*testCase.seed)
			}

			err := fixture.service.ProcessRestockNotificationManual(context.Background(), 1)

			require.ErrorIs(t, err, notify.ErrNothingToResume)
			assert.Empty(t, fixture.deliveries.Records)
		})
	}
}

func TestProcessRestockNotificationManualAllAlreadyNotified(t *testing.T) {
	fixture := newServiceFixture(notify.Product{ID: 1, Name: "机械键盘", Stock: 5, RestockRound: 2})
	fixture.subs.Subs[1] = []int64{1, 2, 3}
	fixture.rounds.Seed(notify.Round{
		ProductID:          1,
		RestockRound:       2,
		LastNotifiedUserID: 3,
		Status:             notify.StatusCanceledBySoldOut,
	})

	err := fixture.service.ProcessRestockNotificationManual(context.Background(), 1)

	require.ErrorIs(t, err, notify.ErrNoRecipients)
	require.Len(t, fixture.rounds.Rounds, 1)
}

func TestProcessRestockNotificationRoundCounter(t *testing.T) {
	fixture := newServiceFixture(notify.Product{ID: 1, Name: "机械键盘", Stock: 100, RestockRound: 0})
	fixture.subs.Subs[1] = []int64{1, 2}

	for dispatch := 1; dispatch <= 2; dispatch++ {
		err := fixture.service.ProcessRestockNotification(context.Background(), 1)
		require.NoError(t, err, fmt.Sprintf("第 %d 次调度失败", dispatch))
	}

	// 连续两次全新调度,补货回次依次为 1、2
	assert.Equal(t, []int{1, 2}, fixture.products.RoundUpdates)
	require.Len(t, fixture.rounds.Rounds, 2)
	assert.Equal(t, 1, fixture.rounds.Rounds[0].RestockRound)
	assert.Equal(t, 2, fixture.rounds.Rounds[1].RestockRound)
}

func TestProcessRestockNotificationRestockRoundPersistFailure(t *testing.T) {
	fixture := newServiceFixture(notify.Product{ID: 1, Name: "机械键盘", Stock: 10, RestockRound: 0})
	fixture.subs.Subs[1] = []int64{1, 2}
	fixture.products.UpdateErr = errors.New("deadlock found")

	err := fixture.service.ProcessRestockNotification(context.Background(), 1)

	require.Error(t, err)
	assert.ErrorContains(t, err, "deadlock found")

	// 非预期存储错误追加一条审计回次
	require.Len(t, fixture.rounds.Rounds, 1)
	assert.Equal(t, notify.StatusCanceledByError, fixture.rounds.Rounds[0].Status)
	assert.Empty(t, fixture.deliveries.Records)
}
