package dispatch

import (
	"sync"

	"go.uber.org/zap"

	"qrprocess-pi/pkg/utils"
)

var logger *zap.SugaredLogger

func init() {
	logger = utils.GetLogger()
}

// Queue runs submitted tasks one at a time, in submission order, on a single goroutine.
// Submission never blocks: pending tasks are kept in an unbounded list.
type Queue struct {
	label string

	mu     sync.Mutex
	tasks  []func()
	closed bool

	wake chan struct{}
	done chan struct{}
}

func New(label string) *Queue {
	q := &Queue{
		label: label,
		wake:  make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
	go q.loop()

	return q
}

func (q *Queue) Label() string {
	return q.label
}

// Async enqueues task and returns immediately. It reports false once the queue is closed.
func (q *Queue) Async(task func()) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.tasks = append(q.tasks, task)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return true
}

// Sync enqueues task and waits for it to finish.
// Calling Sync from a task already running on q deadlocks.
func (q *Queue) Sync(task func()) bool {
	finished := make(chan struct{})
	ok := q.Async(func() {
		defer close(finished)
		task()
	})
	if !ok {
		return false
	}
	<-finished

	return true
}

// Flush waits until every task submitted before the call has run.
func (q *Queue) Flush() {
	q.Sync(func() {})
}

// Close stops accepting tasks. Tasks already queued still run; Done is closed after the last one.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *Queue) Done() <-chan struct{} {
	return q.done
}

func (q *Queue) loop() {
	defer close(q.done)
	for {
		q.mu.Lock()
		if len(q.tasks) == 0 {
			closed := q.closed
			q.mu.Unlock()
			if closed {
				return
			}
			<-q.wake
			continue
		}
		task := q.tasks[0]
		q.tasks[0] = nil
		q.tasks = q.tasks[1:]
		q.mu.Unlock()

		q.run(task)
	}
}

func (q *Queue) run(task func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("queue(%s): task panicked: %v", q.label, r)
		}
	}()
	task()
}
