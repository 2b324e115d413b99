package stream

import (
	"log"
	"sync"
)

// Hub 进程级广播中心
// 把一条消息扇出给所有在线订阅者;发布永不阻塞,订阅者缓冲区满时
// 丢弃该订阅者的这条消息。迟到的订阅者收不到之前发布的消息,
// 这是有意的设计:只做在线扇出,不做持久化消息日志。
// 进程启动时创建一次,进程退出时 Close。
type Hub struct {
	mu     sync.Mutex
	subs   map[int64]chan string
	nextID int64
	buffer int
	closed bool
}

// NewHub 创建广播中心
// buffer 为每个订阅者的消息缓冲区大小
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 1
	}
	return &Hub{
		subs:   make(map[int64]chan string),
		buffer: buffer,
	}
}

// Publish 向所有在线订阅者发布一条消息
// 无订阅者时静默成功
func (hub *Hub) Publish(message string) {
	hub.mu.Lock()
	defer hub.mu.Unlock()

	if hub.closed {
		return
	}

	for id, subscriber := range hub.subs {
		select {
		case subscriber <- message:
		default:
			// 订阅者消费过慢,丢弃这条消息
			log.Printf("[STREAM] 订阅者 %d 缓冲区已满,消息被丢弃", id)
		}
	}
}

// Subscribe 注册一个订阅者
// 返回只读消息通道与取消函数;取消后通道被关闭
func (hub *Hub) Subscribe() (<-chan string, func()) {
	hub.mu.Lock()
	defer hub.mu.Unlock()

	subscriber := make(chan string, hub.buffer)
	if hub.closed {
		close(subscriber)
		return subscriber, func() {}
	}

	id := hub.nextID
	hub.nextID++
	hub.subs[id] = subscriber

	cancel := func() {
		hub.mu.Lock()
		defer hub.mu.Unlock()
		if _, ok := hub.subs[id]; ok {
			delete(hub.subs, id)
			close(subscriber)
		}
	}
	return subscriber, cancel
}

// Close 关闭广播中心并断开所有订阅者
func (hub *Hub) Close() {
	hub.mu.Lock()
	defer hub.mu.Unlock()

	if hub.closed {
		return
	}
	hub.closed = true

	for id, subscriber := range hub.subs {
		delete(hub.subs, id)
		close(subscriber)
	}
}
