package test

import (
	"context"
	"sync"
	"time"

	"restock-notify/internal/notify"
)

// ---- Cache Mock ----

// MockCache 进程内的键值缓存实现
type MockCache struct {
	mu      sync.Mutex
	Values  map[string]string
	TTLs    map[string]time.Duration
	GetErr  error
	SetErr  error
	GetHits int
}

func NewMockCache() *MockCache {
	return &MockCache{
		Values: make(map[string]string),
		TTLs:   make(map[string]time.Duration),
	}
}

func (m *MockCache) Get(ctx context.Context, key string) (string, bool, error) {
	if m.GetErr != nil {
		return "", false, m.GetErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.GetHits++
	value, ok := m.Values[key]
	return value, ok, nil
}

func (m *MockCache) Set(ctx context.Context, key string, value string) error {
	if m.SetErr != nil {
		return m.SetErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Values[key] = value
	return nil
}

func (m *MockCache) SetWithTTL(ctx context.Context, key string, value string, ttl time.Duration) error {
	if m.SetErr != nil {
		return m.SetErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Values[key] = value
	m.TTLs[key] = ttl
	return nil
}

func (m *MockCache) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.Values, key)
	delete(m.TTLs, key)
	return nil
}

// Put 测试侧直接写入缓存内容
func (m *MockCache) Put(key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Values[key] = value
}

// ---- ProductStore Mock ----

type MockProductStore struct {
	mu           sync.Mutex
	Products     map[int64]notify.Product
	GetErr       error
	UpdateErr    error
	GetCalls     int
	RoundUpdates []int
}

func NewMockProductStore(products ...notify.Product) *MockProductStore {
	store := &MockProductStore{Products: make(map[int64]notify.Product)}
	for _, product := range products {
		store.Products[product.ID] = product
	}
	return store
}

func (m *MockProductStore) GetProduct(ctx context.Context, productID int64) (notify.Product, bool, error) {
	if m.GetErr != nil {
		return notify.Product{}, false, m.GetErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.GetCalls++
	product, ok := m.Products[productID]
	return product, ok, nil
}

func (m *MockProductStore) UpdateRestockRound(ctx context.Context, productID int64, restockRound int) error {
	if m.UpdateErr != nil {
		return m.UpdateErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	product := m.Products[productID]
	product.RestockRound = restockRound
	m.Products[productID] = product
	m.RoundUpdates = append(m.RoundUpdates, restockRound)
	return nil
}

// ---- SubscriptionStore Mock ----

type MockSubscriptionStore struct {
	Subs  map[int64][]int64
	Err   error
	Calls int
}

func NewMockSubscriptionStore() *MockSubscriptionStore {
	return &MockSubscriptionStore{Subs: make(map[int64][]int64)}
}

func (m *MockSubscriptionStore) SubscriberIDs(ctx context.Context, productID int64) ([]int64, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	m.Calls++
	return m.Subs[productID], nil
}

// ---- RoundStore Mock ----

type MockRoundStore struct {
	mu        sync.Mutex
	Rounds    []notify.Round
	CreateErr error
	UpdateErr error
	RecentErr error
	Updates   int
	// MarkerHistory 按更新顺序记录每次写入的断点值
	MarkerHistory []int64
	nextID        int64
}

func (m *MockRoundStore) CreateRound(ctx context.Context, round notify.Round) (notify.Round, error) {
	if m.CreateErr != nil {
		return notify.Round{}, m.CreateErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	round.ID = m.nextID
	m.Rounds = append(m.Rounds, round)
	return round, nil
}

func (m *MockRoundStore) UpdateRound(ctx context.Context, round notify.Round) error {
	if m.UpdateErr != nil {
		return m.UpdateErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Updates++
	m.MarkerHistory = append(m.MarkerHistory, round.LastNotifiedUserID)
	for i := range m.Rounds {
		if m.Rounds[i].ID == round.ID {
			m.Rounds[i] = round
			return nil
		}
	}
	return nil
}

func (m *MockRoundStore) MostRecentRound(ctx context.Context, productID int64) (notify.Round, bool, error) {
	if m.RecentErr != nil {
		return notify.Round{}, false, m.RecentErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.Rounds) - 1; i >= 0; i-- {
		if m.Rounds[i].ProductID == productID {
			return m.Rounds[i], true, nil
		}
	}
	return notify.Round{}, false, nil
}

// Seed 测试侧预置一条回次记录
func (m *MockRoundStore) Seed(round notify.Round) notify.Round {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	round.ID = m.nextID
	m.Rounds = append(m.Rounds, round)
	return round
}

// ---- DeliveryStore Mock ----

type MockDeliveryStore struct {
	mu      sync.Mutex
	Records []notify.DeliveryRecord
	// FailAt 为 n 时,第 n 次写入返回 Err(从 1 开始计数)
	FailAt int
	Err    error
	// AfterSave 每次成功写入后回调,供测试模拟外部库存扣减
	AfterSave func(record notify.DeliveryRecord)
	attempts  int
}

func (m *MockDeliveryStore) SaveDelivery(ctx context.Context, record notify.DeliveryRecord) error {
	m.mu.Lock()
	m.attempts++
	if m.FailAt > 0 && m.attempts == m.FailAt {
		m.mu.Unlock()
		return m.Err
	}
	m.Records = append(m.Records, record)
	m.mu.Unlock()

	if m.AfterSave != nil {
		m.AfterSave(record)
	}
	return nil
}

// ---- Broadcaster Mock ----

type MockBroadcaster struct {
	mu       sync.Mutex
	Messages []string
}

func (m *MockBroadcaster) Publish(message string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Messages = append(m.Messages, message)
}

// ---- LiveStockReader Stub ----

// StockReading 一次实时库存读取的结果
type StockReading struct {
	Stock   int
	Present bool
}

// ScriptedStock 按脚本返回实时库存,读完后重复最后一条
type ScriptedStock struct {
	Readings []StockReading
	Err      error
	index    int
}

func (s *ScriptedStock) LiveStock(ctx context.Context, productID int64) (int, bool, error) {
	if s.Err != nil {
		return 0, false, s.Err
	}
	if len(s.Readings) == 0 {
		return 0, false, nil
	}
	reading := s.Readings[s.index]
	if s.index < len(s.Readings)-1 {
		s.index++
	}
	return reading.Stock, reading.Present, nil
}
