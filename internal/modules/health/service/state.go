package service

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/xentristech/tradingpro-sub001/internal/models"
)

const recentSignals = 32

// State — наблюдаемое состояние движка для HTTP-ручек. Пишут его фид и
// хаб сигналов, читают readiness-пробы и /statez; торговый путь он не
// блокирует.
type State struct {
	ready     atomic.Bool
	startedAt time.Time

	feedConnected atomic.Bool
	lastBarUnix   atomic.Int64 // unix seconds, End последней принятой свечи

	mu      sync.Mutex
	signals []models.Signal // кольцо последних сигналов, свежие в конце
}

func NewState() *State {
	s := &State{startedAt: time.Now()}
	s.ready.Store(false)
	return s
}

func (s *State) SetReady(v bool) { s.ready.Store(v) }
func (s *State) Ready() bool     { return s.ready.Load() }

func (s *State) SetFeedConnected(v bool) { s.feedConnected.Store(v) }
func (s *State) FeedConnected() bool     { return s.feedConnected.Load() }

func (s *State) TouchBar(t time.Time) { s.lastBarUnix.Store(t.Unix()) }
func (s *State) LastBar() time.Time {
	u := s.lastBarUnix.Load()
	if u == 0 {
		return time.Time{}
	}
	return time.Unix(u, 0)
}

func (s *State) PushSignal(sig models.Signal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.signals = append(s.signals, sig)
	if len(s.signals) > recentSignals {
		s.signals = s.signals[len(s.signals)-recentSignals:]
	}
}

func (s *State) RecentSignals() []models.Signal {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Signal, len(s.signals))
	copy(out, s.signals)
	return out
}

func (s *State) Uptime() time.Duration { return time.Since(s.startedAt) }
