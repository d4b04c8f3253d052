package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"rainbow-register/internal/services"
)

// ReviewRunner executes one AI review
type ReviewRunner interface {
	RunAIReview(ctx context.Context, profileID uint, trigger services.AIReviewTrigger) (*services.AIReviewResult, error)
}

type reviewTask struct {
	id        string
	profileID uint
	queuedAt  time.Time
}

// ReviewQueue runs background AI reviews on a fixed pool of workers fed by a
// buffered channel. Tasks are never retried; failures are logged and
// dropped. Each task gets its own context so it outlives the request that
// scheduled it.
type ReviewQueue struct {
	runner   ReviewRunner
	tasks    chan reviewTask
	workers  int
	timeout  time.Duration
	logger   *zap.Logger
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewReviewQueue creates a queue; call Start to launch the workers
func NewReviewQueue(runner ReviewRunner, workers, size int, timeout time.Duration, logger *zap.Logger) *ReviewQueue {
	if workers < 1 {
		workers = 1
	}
	if size < 1 {
		size = 1
	}
	return &ReviewQueue{
		runner:   runner,
		tasks:    make(chan reviewTask, size),
		workers:  workers,
		timeout:  timeout,
		logger:   logger.Named("review-queue"),
		stopChan: make(chan struct{}),
	}
}

// Start launches the workers
func (q *ReviewQueue) Start() {
	q.logger.Info("Starting AI review workers", zap.Int("workers", q.workers), zap.Int("capacity", cap(q.tasks)))
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.work(i)
	}
}

// Stop signals the workers and waits for in-flight reviews to finish.
// Queued tasks that have not started are discarded.
func (q *ReviewQueue) Stop() {
	q.stopOnce.Do(func() {
		close(q.stopChan)
		q.wg.Wait()
		if n := len(q.tasks); n > 0 {
			q.logger.Warn("Discarding queued AI reviews on shutdown", zap.Int("count", n))
		}
		q.logger.Info("AI review workers stopped")
	})
}

// Schedule enqueues a review without blocking. It returns false when the
// queue is full or stopped.
func (q *ReviewQueue) Schedule(profileID uint) bool {
	select {
	case <-q.stopChan:
		return false
	default:
	}

	task := reviewTask{id: uuid.NewString(), profileID: profileID, queuedAt: time.Now()}
	select {
	case q.tasks <- task:
		q.logger.Debug("AI review queued", zap.String("task_id", task.id), zap.Uint("profile_id", profileID))
		return true
	default:
		q.logger.Warn("AI review queue full, dropping task", zap.Uint("profile_id", profileID))
		return false
	}
}

// Pending returns the number of queued tasks not yet picked up
func (q *ReviewQueue) Pending() int {
	return len(q.tasks)
}

func (q *ReviewQueue) work(n int) {
	defer q.wg.Done()
	for {
		select {
		case <-q.stopChan:
			return
		case task := <-q.tasks:
			q.run(n, task)
		}
	}
}

func (q *ReviewQueue) run(worker int, task reviewTask) {
	log := q.logger.With(
		zap.String("task_id", task.id),
		zap.Uint("profile_id", task.profileID),
		zap.Int("worker", worker),
	)
	defer func() {
		if r := recover(); r != nil {
			log.Error("AI review panicked", zap.Any("panic", r))
		}
	}()

	ctx := context.Background()
	if q.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, q.timeout)
		defer cancel()
	}

	start := time.Now()
	result, err := q.runner.RunAIReview(ctx, task.profileID, services.TriggerAuto)
	if err != nil {
		log.Error("AI review failed", zap.Duration("waited", start.Sub(task.queuedAt)), zap.Error(err))
		return
	}
	log.Info("AI review done",
		zap.String("outcome", string(result.Outcome)),
		zap.Duration("took", time.Since(start)),
	)
}
