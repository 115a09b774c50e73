// Package monitor runs periodic background work while a session is watched:
// re-probing connectors and following the account balance.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	// MinInterval keeps tasks from hammering wallet endpoints
	MinInterval = time.Second
	// MaxInterval keeps watch output responsive
	MaxInterval = 5 * time.Minute
)

// Task is a unit of periodic work.
type Task interface {
	Name() string
	Run(ctx context.Context) error
	Stop()
}

// Monitor runs tasks concurrently until the context ends or one fails.
type Monitor struct {
	logger *logrus.Logger

	tasksMu sync.RWMutex
	tasks   map[string]Task
}

// New creates a monitor running tasks.
func New(logger *logrus.Logger, tasks ...Task) (*Monitor, error) {
	if logger == nil {
		logger = logrus.New()
	}
	m := &Monitor{
		logger: logger,
		tasks:  make(map[string]Task),
	}
	for _, t := range tasks {
		if err := m.AddTask(t); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// AddTask registers a task under its name.
func (m *Monitor) AddTask(task Task) error {
	m.tasksMu.Lock()
	defer m.tasksMu.Unlock()

	if _, exists := m.tasks[task.Name()]; exists {
		return fmt.Errorf("task %s already exists", task.Name())
	}
	m.tasks[task.Name()] = task
	return nil
}

// Run starts every task and blocks until the context is cancelled, a task
// fails, or all tasks return.
func (m *Monitor) Run(ctx context.Context) error {
	var wg sync.WaitGroup

	m.tasksMu.RLock()
	errChan := make(chan error, len(m.tasks))
	for name, task := range m.tasks {
		wg.Add(1)
		go func(t Task, name string) {
			defer wg.Done()
			m.logger.WithField("task", name).Debug("Starting task")

			if err := t.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				m.logger.WithError(err).WithField("task", name).Error("Task failed")
				errChan <- fmt.Errorf("task %s failed: %w", name, err)
			}
		}(task, name)
	}
	m.tasksMu.RUnlock()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		m.Stop()
		<-done
		return ctx.Err()
	case err := <-errChan:
		m.Stop()
		<-done
		return err
	case <-done:
		return nil
	}
}

// Stop stops every task.
func (m *Monitor) Stop() {
	m.tasksMu.RLock()
	defer m.tasksMu.RUnlock()

	for name, task := range m.tasks {
		m.logger.WithField("task", name).Debug("Stopping task")
		task.Stop()
	}
}

// ticker is the shared loop of the periodic tasks.
type ticker struct {
	interval time.Duration
	stopOnce sync.Once
	stopped  chan struct{}
}

func newTicker(interval time.Duration) (*ticker, error) {
	if interval < MinInterval || interval > MaxInterval {
		return nil, fmt.Errorf("interval must be between %v and %v", MinInterval, MaxInterval)
	}
	return &ticker{interval: interval, stopped: make(chan struct{})}, nil
}

func (t *ticker) loop(ctx context.Context, tick func(context.Context)) error {
	tk := time.NewTicker(t.interval)
	defer tk.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.stopped:
			return nil
		case <-tk.C:
			tick(ctx)
		}
	}
}

func (t *ticker) Stop() {
	t.stopOnce.Do(func() { close(t.stopped) })
}
