package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"provision-svc/app/domains"
	"provision-svc/app/metrics"
	"provision-svc/app/utils"

	"github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog"
)

// ErrSchedulerStopped is returned by AddTask after Stop
var ErrSchedulerStopped = errors.New("task scheduler stopped")

// Task is a unit of database work. Tasks sharing a Key run one at a time in submission order.
type Task struct {
	Key  string
	Name string
	Run  func(ctx context.Context) error
}

// TaskAdder accepts tasks for asynchronous execution
type TaskAdder interface {
	AddTask(task Task) error
}

// TaskScheduler runs tasks on a fixed set of workers. A key always hashes to
// the same worker, so tasks for one key never overlap. Each attempt gets a
// fresh context that carries nothing from the submitter.
type TaskScheduler struct {
	shards  []*taskShard
	policy  *utils.RetryPolicy
	timeout time.Duration
	logger  zerolog.Logger

	mu      sync.Mutex
	idle    *sync.Cond
	pending int
	stopped bool
	wg      sync.WaitGroup
}

type taskShard struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []Task
	closed bool
}

// NewTaskScheduler creates a scheduler with the given number of workers
func NewTaskScheduler(workers int, policy *utils.RetryPolicy, timeout time.Duration, logger zerolog.Logger) *TaskScheduler {
	if workers < 1 {
		workers = 1
	}
	if policy == nil {
		policy = utils.DefaultRetryPolicy()
	}
	s := &TaskScheduler{
		shards:  make([]*taskShard, workers),
		policy:  policy,
		timeout: timeout,
		logger:  logger,
	}
	s.idle = sync.NewCond(&s.mu)
	for i := range s.shards {
		sh := &taskShard{}
		sh.cond = sync.NewCond(&sh.mu)
		s.shards[i] = sh
	}
	return s
}

// Start launches the workers
func (s *TaskScheduler) Start() {
	for _, sh := range s.shards {
		s.wg.Add(1)
		go s.work(sh)
	}
}

// AddTask queues a task without blocking
func (s *TaskScheduler) AddTask(task Task) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return ErrSchedulerStopped
	}
	s.pending++
	s.mu.Unlock()

	sh := s.shards[xxhash.Sum64String(task.Key)%uint64(len(s.shards))]
	sh.mu.Lock()
	sh.queue = append(sh.queue, task)
	sh.mu.Unlock()
	sh.cond.Signal()
	return nil
}

// Pending returns the number of queued or running tasks
func (s *TaskScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

// WaitIdle blocks until every submitted task has finished
func (s *TaskScheduler) WaitIdle() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.pending > 0 {
		s.idle.Wait()
	}
}

// Stop refuses new tasks, runs what is already queued, and waits for the workers
func (s *TaskScheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()

	for _, sh := range s.shards {
		sh.mu.Lock()
		sh.closed = true
		sh.mu.Unlock()
		sh.cond.Broadcast()
	}
	s.wg.Wait()
}

func (s *TaskScheduler) work(sh *taskShard) {
	defer s.wg.Done()
	for {
		sh.mu.Lock()
		for len(sh.queue) == 0 && !sh.closed {
			sh.cond.Wait()
		}
		if len(sh.queue) == 0 {
			sh.mu.Unlock()
			return
		}
		task := sh.queue[0]
		sh.queue[0] = Task{}
		sh.queue = sh.queue[1:]
		sh.mu.Unlock()

		s.run(task)

		s.mu.Lock()
		s.pending--
		if s.pending == 0 {
			s.idle.Broadcast()
		}
		s.mu.Unlock()
	}
}

func (s *TaskScheduler) run(task Task) {
	attempt := 0
	err := s.policy.Execute(context.Background(), func() error {
		if attempt > 0 {
			metrics.TaskRetries.Inc()
		}
		attempt++
		ctx, cancel := s.attemptContext()
		defer cancel()
		return task.Run(ctx)
	}, isRetryable)

	if err != nil {
		s.logger.Error().
			Err(err).
			Str("task", task.Name).
			Str("key", task.Key).
			Int("attempts", attempt).
			Msg("task failed")
	}
}

func (s *TaskScheduler) attemptContext() (context.Context, context.CancelFunc) {
	if s.timeout > 0 {
		return context.WithTimeout(context.Background(), s.timeout)
	}
	return context.WithCancel(context.Background())
}

// isRetryable reports whether a failed task may succeed if run again
func isRetryable(err error) bool {
	switch {
	case errors.Is(err, domains.ErrValidation),
		errors.Is(err, domains.ErrNodeNotFound),
		errors.Is(err, domains.ErrInTransaction):
		return false
	}
	return true
}
