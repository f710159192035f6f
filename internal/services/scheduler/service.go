package scheduler

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lesny8/supla-cloud/internal/config"
	"github.com/lesny8/supla-cloud/internal/dispatch"
	"github.com/lesny8/supla-cloud/internal/manager"
	"github.com/lesny8/supla-cloud/internal/schedule"
	"github.com/lesny8/supla-cloud/internal/storage"
	logx "github.com/lesny8/supla-cloud/pkg/logx"
)

// Config holds the parsed engine settings.
type Config struct {
	Enabled bool

	TickInterval time.Duration // default 10s
	Workers      int           // default 4
	QueueSize    int           // default 64

	// ClaimTTL is how long an in-flight claim is honored before a crashed
	// instance's executions become reclaimable.
	ClaimTTL time.Duration // default 5m

	RefillInterval time.Duration // default 10m
	RefillWindow   time.Duration // default 24h

	SweepInterval time.Duration // default 1h
}

func (c Config) withDefaults() Config {
	if c.TickInterval <= 0 {
		c.TickInterval = 10 * time.Second
	}
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 64
	}
	if c.ClaimTTL <= 0 {
		c.ClaimTTL = 5 * time.Minute
	}
	if c.RefillInterval <= 0 {
		c.RefillInterval = 10 * time.Minute
	}
	if c.RefillWindow <= 0 {
		c.RefillWindow = 24 * time.Hour
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = time.Hour
	}
	return c
}

// ParseConfig converts the raw config file section into engine settings.
func ParseConfig(sc config.SchedulerConfig) (Config, error) {
	out := Config{
		Enabled:   sc.Enabled,
		Workers:   sc.Workers,
		QueueSize: sc.QueueSize,
	}
	var err error
	if out.TickInterval, err = config.ParseDurationField("scheduler.tick_interval", sc.TickInterval); err != nil {
		return Config{}, err
	}
	if out.ClaimTTL, err = config.ParseDurationField("scheduler.claim_ttl", sc.ClaimTTL); err != nil {
		return Config{}, err
	}
	if out.RefillInterval, err = config.ParseDurationField("scheduler.refill_interval", sc.RefillInterval); err != nil {
		return Config{}, err
	}
	if out.RefillWindow, err = config.ParseDurationField("scheduler.refill_window", sc.RefillWindow); err != nil {
		return Config{}, err
	}
	if out.SweepInterval, err = config.ParseDurationField("scheduler.sweep_interval", sc.SweepInterval); err != nil {
		return Config{}, err
	}
	return out, nil
}

// claimed is one execution handed from the tick loop to a worker.
type claimed struct {
	exec *schedule.Execution
	sch  *schedule.Schedule
}

type Service struct {
	store      *storage.Store
	dispatcher *dispatch.Dispatcher
	mgr        *manager.Manager
	log        logx.Logger

	// instanceID identifies this engine instance's claims in the store.
	instanceID string

	mu       sync.Mutex
	cfg      Config
	stopCh   chan struct{}
	stopDone chan struct{}
	runCtx   context.Context
	cancel   context.CancelFunc
	queue    chan claimed
	wg       sync.WaitGroup
}

func New(cfg Config, store *storage.Store, dispatcher *dispatch.Dispatcher, mgr *manager.Manager, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		store:      store,
		dispatcher: dispatcher,
		mgr:        mgr,
		log:        log,
		instanceID: uuid.NewString(),
		cfg:        cfg.withDefaults(),
	}
}

// Enabled reports the current config flag. (Thread-safe; Apply() may run
// concurrently.)
func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled
}

// Apply swaps tunables at runtime. Claim TTL and windows take effect on the
// next tick; interval and pool-size changes take effect on the next start.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg.withDefaults()
}

func (s *Service) snapshot() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

func (s *Service) Start(ctx context.Context) {
	// If a Stop() is in progress, wait for it to complete (prevents double
	// worker pools).
	for {
		s.mu.Lock()
		if s.stopCh == nil {
			break
		}
		done := s.stopDone
		if done == nil {
			// already running
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return
		}
	}
	defer s.mu.Unlock()

	cfg := s.cfg
	s.stopCh = make(chan struct{})
	s.runCtx, s.cancel = context.WithCancel(ctx)
	// Fresh queue per run so a stop/start toggle never dispatches stale work.
	s.queue = make(chan claimed, cfg.QueueSize)

	runCtx := s.runCtx
	stopCh := s.stopCh
	queue := s.queue

	s.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		idx := i
		go func() {
			defer s.wg.Done()
			defer func() {
				if r := recover(); r != nil {
					s.log.Error("panic in dispatch worker",
						logx.Int("worker", idx),
						logx.Any("panic", r),
						logx.String("stack", string(debug.Stack())))
				}
			}()
			s.worker(runCtx, stopCh, queue, idx)
		}()
	}

	s.wg.Add(3)
	go s.loop(runCtx, stopCh, cfg.TickInterval, func(ctx context.Context) { s.claimDue(ctx, stopCh, queue) })
	go s.loop(runCtx, stopCh, cfg.RefillInterval, s.refill)
	go s.loop(runCtx, stopCh, cfg.SweepInterval, s.sweep)

	s.log.Info("engine started",
		logx.String("instance", s.instanceID),
		logx.Int("workers", cfg.Workers),
		logx.Duration("tick", cfg.TickInterval))
}

func (s *Service) Stop(ctx context.Context) {
	start := time.Now()
	s.mu.Lock()
	if s.stopCh == nil {
		s.mu.Unlock()
		return
	}
	if s.stopDone != nil {
		done := s.stopDone
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
		}
		return
	}
	done := make(chan struct{})
	s.stopDone = done
	stopCh := s.stopCh
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	close(stopCh)
	if cancel != nil {
		cancel()
	}

	// Finalize cleanup in background so Stop() can return on timeout safely.
	go func() {
		s.wg.Wait()
		s.mu.Lock()
		s.stopCh = nil
		s.runCtx = nil
		s.queue = nil
		s.stopDone = nil
		s.mu.Unlock()
		close(done)
		s.log.Info("engine stopped", logx.Duration("took", time.Since(start)))
	}()

	select {
	case <-done:
	case <-ctx.Done():
		// stop continues in background
	}
}
