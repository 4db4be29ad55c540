// Package controller runs periodic reconciliation loops in the background.
//
// Each controller owns one concern, runs on its own ticker and may fail
// without affecting the others. Reconcile must be safe to repeat.
package controller

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/openctemio/reposcan/pkg/logger"
)

// ErrAlreadyRunning is returned by Start when the manager is running.
var ErrAlreadyRunning = errors.New("controller manager already running")

// Controller is a single reconciliation loop.
type Controller interface {
	// Name identifies the controller in logs and metrics.
	Name() string

	// Interval is the time between two reconciliations.
	Interval() time.Duration

	// Reconcile performs one pass and reports how many items it touched.
	Reconcile(ctx context.Context) (int, error)
}

// Metrics collects controller run statistics.
type Metrics interface {
	RecordReconcile(controller string, itemsProcessed int, duration time.Duration, err error)
	SetControllerRunning(controller string, running bool)
	SetLastReconcileTime(controller string, t time.Time)
}

// Manager runs registered controllers, one goroutine each.
type Manager struct {
	controllers []Controller
	metrics     Metrics
	logger      *logger.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	// Metrics is optional.
	Metrics Metrics
	Logger  *logger.Logger
}

// NewManager creates a Manager.
func NewManager(cfg ManagerConfig) *Manager {
	log := cfg.Logger
	if log == nil {
		log = logger.NewNop()
	}
	return &Manager{
		metrics: cfg.Metrics,
		logger:  log.With("component", "controller-manager"),
		stopCh:  make(chan struct{}),
	}
}

// Register adds a controller. It panics when called after Start.
func (m *Manager) Register(c Controller) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		panic("controller: Register called on a running manager")
	}
	m.controllers = append(m.controllers, c)
	m.logger.Info("controller registered", "name", c.Name(), "interval", c.Interval().String())
}

// Start launches every registered controller. Controllers stop when ctx is
// canceled or Stop is called.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return ErrAlreadyRunning
	}
	m.running = true
	m.stopCh = make(chan struct{})
	controllers := append([]Controller(nil), m.controllers...)
	m.mu.Unlock()

	m.logger.Info("starting controllers", "count", len(controllers))
	for _, c := range controllers {
		m.wg.Add(1)
		go m.run(ctx, c)
	}
	return nil
}

// Stop signals every controller and waits for in-flight reconciliations.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	close(m.stopCh)
	m.mu.Unlock()

	m.wg.Wait()
	m.logger.Info("controllers stopped")
}

func (m *Manager) run(ctx context.Context, c Controller) {
	defer m.wg.Done()

	name := c.Name()
	m.setRunning(name, true)
	defer m.setRunning(name, false)

	m.reconcileOnce(ctx, c)

	ticker := time.NewTicker(c.Interval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Debug("controller stopping", "name", name, "reason", "context done")
			return
		case <-m.stopCh:
			m.logger.Debug("controller stopping", "name", name, "reason", "manager stopped")
			return
		case <-ticker.C:
			m.reconcileOnce(ctx, c)
		}
	}
}

// reconcileOnce bounds a pass by the controller's interval so a stuck pass
// cannot overlap the next tick.
func (m *Manager) reconcileOnce(ctx context.Context, c Controller) {
	name := c.Name()
	start := time.Now()

	rctx, cancel := context.WithTimeout(ctx, c.Interval())
	defer cancel()

	count, err := c.Reconcile(rctx)
	duration := time.Since(start)

	switch {
	case err != nil:
		m.logger.Error("reconcile failed", "name", name, "duration", duration, "error", err)
	case count > 0:
		m.logger.Info("reconcile completed", "name", name, "items", count, "duration", duration)
	default:
		m.logger.Debug("reconcile completed", "name", name, "duration", duration)
	}

	if m.metrics != nil {
		m.metrics.RecordReconcile(name, count, duration, err)
		m.metrics.SetLastReconcileTime(name, time.Now())
	}
}

func (m *Manager) setRunning(name string, running bool) {
	if m.metrics != nil {
		m.metrics.SetControllerRunning(name, running)
	}
}

// IsRunning reports whether Start has been called without a matching Stop.
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Names returns the registered controller names in registration order.
func (m *Manager) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	names := make([]string, len(m.controllers))
	for i, c := range m.controllers {
		names[i] = c.Name()
	}
	return names
}
