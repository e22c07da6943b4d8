package eventloop

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const defaultQueueSize = 256

type interval struct {
	name   string
	period time.Duration
	task   func()
}

// Loop runs every component callback on one goroutine. Work arrives through
// Post from any goroutine and runs in turns: a turn takes every task queued
// at its start, runs them in order, then runs each deferred callback once.
type Loop struct {
	logger *zap.Logger
	tasks  chan func()

	done     chan struct{}
	stopOnce sync.Once

	// touched only from the loop goroutine
	deferred      map[string]func()
	deferredOrder []string

	intervals []interval
}

func New(logger *zap.Logger, queueSize int) *Loop {
	if logger == nil {
		logger = zap.NewNop()
	}
	if queueSize < 1 {
		queueSize = defaultQueueSize
	}
	return &Loop{
		logger:   logger,
		tasks:    make(chan func(), queueSize),
		done:     make(chan struct{}),
		deferred: make(map[string]func()),
	}
}

// Post queues task for the next turn. It blocks while the queue is full and
// returns false once the loop has stopped.
func (loop *Loop) Post(task func()) bool {
	select {
	case <-loop.done:
		return false
	default:
	}

	select {
	case loop.tasks <- task:
		return true
	case <-loop.done:
		return false
	}
}

// Defer schedules task to run once at the end of the current turn. Later
// registrations under the same key replace the task but keep its place.
// Defer must be called on the loop goroutine.
func (loop *Loop) Defer(key string, task func()) {
	if _, ok := loop.deferred[key]; !ok {
		loop.deferredOrder = append(loop.deferredOrder, key)
	}
	loop.deferred[key] = task
}

// Every posts task once per period while Run is active. Intervals must be
// registered before Run.
func (loop *Loop) Every(name string, period time.Duration, task func()) {
	loop.intervals = append(loop.intervals, interval{name: name, period: period, task: task})
}

// RunTurn runs the tasks queued right now without waiting for more, then
// the deferred callbacks. It returns the number of tasks run.
func (loop *Loop) RunTurn() int {
	n := len(loop.tasks)
	for i := 0; i < n; i++ {
		(<-loop.tasks)()
	}
	loop.runDeferred()
	return n
}

func (loop *Loop) runDeferred() {
	if len(loop.deferredOrder) == 0 {
		return
	}
	order := loop.deferredOrder
	tasks := loop.deferred
	loop.deferredOrder = nil
	loop.deferred = make(map[string]func(), len(tasks))

	// anything deferred from here on waits for the next turn
	for _, key := range order {
		tasks[key]()
	}
}

// Run processes turns until ctx is done and returns ctx.Err(). After Run
// returns, Post reports false.
func (loop *Loop) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	defer wg.Wait()
	defer loop.stop()

	for _, iv := range loop.intervals {
		wg.Add(1)
		go loop.runInterval(ctx, &wg, iv)
	}

	loop.logger.Debug("Event loop started", zap.Int("intervals", len(loop.intervals)))
	for {
		select {
		case <-ctx.Done():
			loop.logger.Debug("Event loop stopping", zap.Error(ctx.Err()))
			return ctx.Err()
		case task := <-loop.tasks:
			task()
			loop.RunTurn()
		}
	}
}

func (loop *Loop) runInterval(ctx context.Context, wg *sync.WaitGroup, iv interval) {
	defer wg.Done()

	ticker := time.NewTicker(iv.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !loop.Post(iv.task) {
				return
			}
			loop.logger.Debug("Interval fired", zap.String("interval", iv.name))
		}
	}
}

func (loop *Loop) stop() {
	loop.stopOnce.Do(func() { close(loop.done) })
}
