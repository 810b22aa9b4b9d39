// internal/scheduler/scheduler.go
package scheduler

import (
	"context"
	"sync"
	"time"

	"application-sync/internal/common/logger"
	"application-sync/internal/common/metrics"
)

// Runner is the engine surface the scheduler drives. RunArchive and
// ReconcileOnce both take the per-topic mutation lock internally, so the
// scheduler never holds business state of its own.
type Runner interface {
	RunArchive(ctx context.Context, topicID int64) error
	ReconcileOnce(ctx context.Context) error
}

// Scheduler keeps one cancellable timer per topic plus the periodic
// manual-deletion reconciliation loop.
type Scheduler struct {
	runner            Runner
	reconcileInterval time.Duration
	log               logger.Logger

	mu     sync.Mutex
	timers map[int64]*time.Timer

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a scheduler. Timers armed with Schedule fire on their own;
// Start additionally runs the periodic reconciliation loop.
func New(runner Runner, reconcileInterval time.Duration, log logger.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		runner:            runner,
		reconcileInterval: reconcileInterval,
		log:               log,
		timers:            make(map[int64]*time.Timer),
		ctx:               ctx,
		cancel:            cancel,
	}
}

// Schedule arms (or re-arms) the archive timer for a topic. An at in the
// past fires immediately.
func (s *Scheduler) Schedule(topicID int64, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.timers[topicID]; ok {
		t.Stop()
		delete(s.timers, topicID)
		metrics.ArchiveTimersPending.Dec()
	}

	delay := time.Until(at)
	if delay < 0 {
		delay = 0
	}

	s.timers[topicID] = time.AfterFunc(delay, func() {
		s.fire(topicID)
	})
	metrics.ArchiveTimersPending.Inc()

	s.log.Info("Archive timer armed", map[string]interface{}{
		"topic_id": topicID,
		"delay":    delay.String(),
	})
}

// Cancel stops the pending timer for a topic. Returns whether one existed.
func (s *Scheduler) Cancel(topicID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.timers[topicID]
	if !ok {
		return false
	}
	t.Stop()
	delete(s.timers, topicID)
	metrics.ArchiveTimersPending.Dec()

	s.log.Info("Archive timer cancelled", map[string]interface{}{
		"topic_id": topicID,
	})
	return true
}

func (s *Scheduler) fire(topicID int64) {
	s.mu.Lock()
	if _, ok := s.timers[topicID]; ok {
		delete(s.timers, topicID)
		metrics.ArchiveTimersPending.Dec()
	} else {
		// Cancelled between the timer firing and this goroutine running.
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	if err := s.runner.RunArchive(s.ctx, topicID); err != nil {
		s.log.Error("Archive run failed", map[string]interface{}{
			"topic_id": topicID,
			"error":    err.Error(),
		})
	}
}

// Start launches the reconciliation loop. A non-positive interval disables it.
func (s *Scheduler) Start() {
	if s.reconcileInterval <= 0 {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.reconcileInterval)
		defer ticker.Stop()
		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				if err := s.runner.ReconcileOnce(s.ctx); err != nil {
					s.log.Error("Reconciliation sweep failed", map[string]interface{}{
						"error": err.Error(),
					})
				}
			}
		}
	}()
}

// Stop cancels all pending timers and the reconciliation loop, and waits for
// in-flight work started by this scheduler to observe cancellation.
func (s *Scheduler) Stop() {
	s.cancel()

	s.mu.Lock()
	for topicID, t := range s.timers {
		t.Stop()
		delete(s.timers, topicID)
		metrics.ArchiveTimersPending.Dec()
	}
	s.mu.Unlock()

	s.wg.Wait()
}

// Pending returns the number of armed timers.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}
