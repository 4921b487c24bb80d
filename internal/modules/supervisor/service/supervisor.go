package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xentristech/tradingpro-sub001/internal/metrics"
	"github.com/xentristech/tradingpro-sub001/internal/models"
	"github.com/xentristech/tradingpro-sub001/pkg/backoff"
	"github.com/xentristech/tradingpro-sub001/pkg/logger"
)

type ServiceNotifier interface {
	Sendf(format string, args ...any)
}

// Pinger — проверка связи с брокером. Обрыв связи это DEGRADED
// (ордера на паузе, сигналы считаются), не CRASHED.
type Pinger interface {
	Connect(ctx context.Context) error
}

// Liquidator — аварийное закрытие всех позиций. Реализуется монитором,
// подвязывается после сборки графа.
type Liquidator interface {
	ForceCloseAll(ctx context.Context, reason string) int
}

type Settings struct {
	RestartBase  time.Duration
	RestartMax   time.Duration
	MaxRestarts  int // в окне Window, дальше алерт и halt
	Window       time.Duration
	PingInterval time.Duration
}

// Supervisor владеет жизнью воркеров: запуск, перехват паники, рестарт
// с backoff, подсчёт рестартов в окне. Повторные падения сверх лимита
// останавливают воркер до ручного вмешательства.
type Supervisor struct {
	st Settings
	n  ServiceNotifier
	pg Pinger

	mu      sync.Mutex
	workers []*worker
	started bool

	paused     atomic.Bool // операторская пауза: /pause // /resume
	brokerDown atomic.Bool

	lqMu sync.Mutex
	lq   Liquidator

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type worker struct {
	name string
	run  func(ctx context.Context) error

	mu       sync.Mutex
	health   models.WorkerHealth
	restarts []time.Time // только внутри окна
}

func New(st Settings, n ServiceNotifier, pg Pinger) *Supervisor {
	if st.RestartBase <= 0 {
		st.RestartBase = time.Second
	}
	if st.RestartMax <= 0 {
		st.RestartMax = 30 * time.Second
	}
	if st.MaxRestarts <= 0 {
		st.MaxRestarts = 5
	}
	if st.Window <= 0 {
		st.Window = 10 * time.Minute
	}
	if st.PingInterval <= 0 {
		st.PingInterval = 15 * time.Second
	}
	return &Supervisor{st: st, n: n, pg: pg}
}

// AttachLiquidator подвязывает аварийное закрытие позиций. Монитор
// создаётся позже супервизора, поэтому не через конструктор.
func (s *Supervisor) AttachLiquidator(l Liquidator) {
	s.lqMu.Lock()
	s.lq = l
	s.lqMu.Unlock()
}

func (s *Supervisor) liquidator() Liquidator {
	s.lqMu.Lock()
	defer s.lqMu.Unlock()
	return s.lq
}

// Register добавляет воркер. Все регистрации до Start.
func (s *Supervisor) Register(name string, run func(ctx context.Context) error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		panic(fmt.Sprintf("supervisor: Register(%s) after Start", name))
	}
	s.workers = append(s.workers, &worker{
		name: name,
		run:  run,
		health: models.WorkerHealth{
			Name:      name,
			State:     models.WorkerStarting,
			UpdatedAt: time.Now(),
		},
	})
}

func (s *Supervisor) Start(parent context.Context) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	ctx, cancel := context.WithCancel(parent)
	s.cancel = cancel
	workers := s.workers
	s.mu.Unlock()

	for _, w := range workers {
		s.wg.Add(1)
		go s.supervise(ctx, w)
	}

	if s.pg != nil {
		s.wg.Add(1)
		go s.watchBroker(ctx)
	}
	logger.Info("[SUP] started %d workers", len(workers))
}

// Stop отменяет контекст воркеров и ждёт их завершения: брокерские вызовы
// в полёте доживают свои таймауты, раньше их шатдаун не считается чистым.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
	logger.Info("[SUP] all workers stopped")
}

func (s *Supervisor) supervise(ctx context.Context, w *worker) {
	defer s.wg.Done()

	bo := backoff.Backoff{Base: s.st.RestartBase, Max: s.st.RestartMax, Factor: 2, Jitter: 0.2}
	for {
		w.setState(models.WorkerRunning, "")
		err := s.safeRun(ctx, w)

		if ctx.Err() != nil {
			w.setState(models.WorkerStopped, "")
			return
		}
		if err == nil {
			// воркер вышел сам без ошибки — это его право
			w.setState(models.WorkerStopped, "")
			return
		}

		n := w.recordRestart(time.Now(), s.st.Window)
		metrics.WorkerRestarts.WithLabelValues(w.name).Inc()
		w.setState(models.WorkerCrashed, err.Error())
		logger.Error("[SUP] worker %s crashed (%d in window): %v", w.name, n, err)

		if n > s.st.MaxRestarts {
			if s.n != nil {
				s.n.Sendf("🆘 Воркер %s упал %d раз за %s, остановлен до ручного вмешательства.\nПоследняя ошибка: %v",
					w.name, n, s.st.Window, err)
			}
			// движок неисправен: позиции без присмотра не оставляем
			if lq := s.liquidator(); lq != nil {
				if closed := lq.ForceCloseAll(ctx, models.CloseEmergency); closed > 0 {
					logger.Error("[SUP] emergency close after %s halt: %d positions", w.name, closed)
				}
			}
			return
		}

		if err := bo.Sleep(ctx, n); err != nil {
			w.setState(models.WorkerStopped, "")
			return
		}
		logger.Info("[SUP] restarting worker %s", w.name)
	}
}

func (s *Supervisor) safeRun(ctx context.Context, w *worker) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return w.run(ctx)
}

// watchBroker — связь с брокером проверяется на интервале. Потеря связи
// переводит торговлю в DEGRADED: исполнение ордеров на паузе, сигналы
// продолжают считаться.
func (s *Supervisor) watchBroker(ctx context.Context) {
	defer s.wg.Done()

	t := time.NewTicker(s.st.PingInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			pingCtx, cancel := context.WithTimeout(ctx, s.st.PingInterval)
			err := s.pg.Connect(pingCtx)
			cancel()

			was := s.brokerDown.Load()
			if err != nil {
				s.brokerDown.Store(true)
				if !was {
					logger.Warn("[SUP] broker link lost, order ops paused: %v", err)
					if s.n != nil {
						s.n.Sendf("⚠️ Связь с брокером потеряна, ордера на паузе. Сигналы продолжают считаться.")
					}
				}
				continue
			}
			s.brokerDown.Store(false)
			if was {
				logger.Info("[SUP] broker link restored")
				if s.n != nil {
					s.n.Sendf("✅ Связь с брокером восстановлена, торговля продолжается.")
				}
			}
		}
	}
}

// OrderOpsAllowed — можно ли сейчас трогать ордера. Ложь при операторской
// паузе и при потере связи с брокером.
func (s *Supervisor) OrderOpsAllowed() bool {
	return !s.paused.Load() && !s.brokerDown.Load()
}

func (s *Supervisor) Pause()       { s.paused.Store(true) }
func (s *Supervisor) Resume()      { s.paused.Store(false) }
func (s *Supervisor) Paused() bool { return s.paused.Load() }

func (s *Supervisor) BrokerDown() bool { return s.brokerDown.Load() }

// Health — копия состояния всех воркеров плюс виртуальная запись про
// связь с брокером. Читается хелсчеком без блокировки торгового пути.
func (s *Supervisor) Health() []models.WorkerHealth {
	s.mu.Lock()
	workers := make([]*worker, len(s.workers))
	copy(workers, s.workers)
	s.mu.Unlock()

	out := make([]models.WorkerHealth, 0, len(workers)+1)
	for _, w := range workers {
		w.mu.Lock()
		out = append(out, w.health)
		w.mu.Unlock()
	}

	link := models.WorkerHealth{
		Name:      "broker_link",
		State:     models.WorkerRunning,
		UpdatedAt: time.Now(),
	}
	if s.brokerDown.Load() {
		link.State = models.WorkerDegraded
		link.LastError = "broker unreachable"
	}
	out = append(out, link)

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (w *worker) setState(st models.WorkerState, lastErr string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.health.State = st
	w.health.UpdatedAt = time.Now()
	if lastErr != "" {
		w.health.LastError = lastErr
	}
}

// recordRestart добавляет рестарт и возвращает их число в окне.
func (w *worker) recordRestart(now time.Time, window time.Duration) int {
	w.mu.Lock()
	defer w.mu.Unlock()

	keep := w.restarts[:0]
	for _, t := range w.restarts {
		if now.Sub(t) < window {
			keep = append(keep, t)
		}
	}
	w.restarts = append(keep, now)
	w.health.Restarts++
	w.health.LastRestart = now
	return len(w.restarts)
}
