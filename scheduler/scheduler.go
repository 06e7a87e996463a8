package scheduler

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// TaskFn is the function signature for scheduled tasks. The context is
// cancelled when the task is removed or the scheduler stops.
type TaskFn func(ctx context.Context) error

// TaskInfo describes a registered ticker task.
type TaskInfo struct {
	Name      string        `json:"name"`
	Interval  time.Duration `json:"interval"`
	Runs      uint64        `json:"runs"`
	Failures  uint64        `json:"failures"`
	LastError string        `json:"last_error,omitempty"`
}

// Scheduler runs periodic tasks.
type Scheduler struct {
	mu      sync.Mutex
	tickers map[string]*tickerEntry
	logger  *zap.Logger
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

type tickerEntry struct {
	interval time.Duration
	cancel   context.CancelFunc

	mu        sync.Mutex
	runs      uint64
	failures  uint64
	lastError string
}

// New creates a new Scheduler.
func New(logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		tickers: make(map[string]*tickerEntry),
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// AddTicker registers a task to run on a fixed interval.
// If a task with the same name exists, it is replaced.
func (s *Scheduler) AddTicker(name string, interval time.Duration, fn TaskFn) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctx.Err() != nil {
		return
	}
	if old, ok := s.tickers[name]; ok {
		old.cancel()
		delete(s.tickers, name)
	}

	ctx, cancel := context.WithCancel(s.ctx)
	entry := &tickerEntry{interval: interval, cancel: cancel}
	s.tickers[name] = entry

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				entry.record(s.run(ctx, name, fn))
			case <-ctx.Done():
				return
			}
		}
	}()
	s.logger.Info("scheduler task registered", zap.String("name", name), zap.Duration("interval", interval))
}

func (s *Scheduler) run(ctx context.Context, name string, fn TaskFn) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scheduler task panicked",
				zap.String("task", name),
				zap.Any("recover", r))
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	if err = fn(ctx); err != nil {
		s.logger.Warn("scheduler task failed", zap.String("task", name), zap.Error(err))
	}
	return err
}

func (e *tickerEntry) record(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.runs++
	if err != nil {
		e.failures++
		e.lastError = err.Error()
	}
}

// Stop cancels all tasks and waits for running ones to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.cancel()
	s.tickers = make(map[string]*tickerEntry)
	s.mu.Unlock()
	s.wg.Wait()
}

// Tasks returns the registered ticker tasks sorted by name.
func (s *Scheduler) Tasks() []TaskInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]TaskInfo, 0, len(s.tickers))
	for name, e := range s.tickers {
		e.mu.Lock()
		out = append(out, TaskInfo{
			Name:      name,
			Interval:  e.interval,
			Runs:      e.runs,
			Failures:  e.failures,
			LastError: e.lastError,
		})
		e.mu.Unlock()
	}
	slices.SortFunc(out, func(a, b TaskInfo) int { return strings.Compare(a.Name, b.Name) })
	return out
}
