package tracker

import (
	"sync"
	"time"

	"xfolio/internal/domain"
)

// FeedStatus 行情连接状态（供展示层判断数据新鲜度）
type FeedStatus struct {
	State      State
	Generation uint64
	Topics     int
	Attempts   int
	Degraded   bool // 重试耗尽：价格停留在最后已知值
	LastError  string
	Since      time.Time
}

// Snapshot 展示层读取的只读快照
type Snapshot struct {
	Assets     []domain.Asset `json:"assets"`
	TotalValue float64        `json:"total_value"`
	Feed       FeedStatus     `json:"-"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// Store 组合状态容器（PortfolioStore）
// 引擎在路由循环内写入，展示层可在任意 goroutine 读取
type Store struct {
	mu   sync.RWMutex
	snap Snapshot
	subs []chan struct{}
}

func NewStore() *Store {
	return &Store{snap: Snapshot{Feed: FeedStatus{State: StateIdle}}}
}

// Snapshot 返回当前快照副本
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := s.snap
	out.Assets = append([]domain.Asset(nil), s.snap.Assets...)
	return out
}

// Feed 当前连接状态
func (s *Store) Feed() FeedStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.Feed
}

// Subscribe 返回一个合并通知的 channel：快照变化时至多缓存一个信号
func (s *Store) Subscribe() <-chan struct{} {
	ch := make(chan struct{}, 1)
	s.mu.Lock()
	s.subs = append(s.subs, ch)
	s.mu.Unlock()
	return ch
}

func (s *Store) publish(assets []domain.Asset, total float64, ts time.Time) {
	s.mu.Lock()
	s.snap.Assets = assets
	s.snap.TotalValue = total
	s.snap.UpdatedAt = ts
	s.mu.Unlock()
	s.notify()
}

func (s *Store) setFeed(st FeedStatus) {
	s.mu.Lock()
	s.snap.Feed = st
	s.mu.Unlock()
	s.notify()
}

func (s *Store) notify() {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
