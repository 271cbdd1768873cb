package worker

import (
	"container/list"
	"context"
	"errors"
	"sync"
	"time"

	"codepilot/internal/logger"
)

var (
	// ErrDispatcherBusy is returned when the submission queue is full.
	ErrDispatcherBusy = errors.New("server is busy, please retry")
	// ErrDispatcherClosed is returned for work submitted to, or pending in, a closed dispatcher.
	ErrDispatcherClosed = errors.New("dispatcher closed")
)

type DispatcherConfig struct {
	MinWorkers  int
	MaxWorkers  int
	QueueSize   int
	IdleTimeout time.Duration
}

// Job is a unit of work owned by a user.
type Job struct {
	UserID string
	Run    func()

	stop bool
}

type userQueue struct {
	jobs     []Job
	enqueued bool
}

// Dispatcher keeps a FIFO queue per user and hands jobs to a worker pool,
// round-robin over users, never running two jobs of the same user at once.
type Dispatcher struct {
	pool     *jobChannelPool
	JobQueue chan Job // interface for outer jobs get in the dispatcher

	mu        sync.Mutex
	queues    map[string]*userQueue // job queue for each user
	ready     *list.List            // round-robin order of user IDs with queued jobs
	positions map[string]*list.Element
	running   map[string]bool

	wake      chan struct{}
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 128
	}
	d := &Dispatcher{
		pool:      newJobChannelPool(cfg.MinWorkers, cfg.MaxWorkers, cfg.IdleTimeout),
		JobQueue:  make(chan Job, cfg.QueueSize),
		queues:    make(map[string]*userQueue),
		ready:     list.New(),
		positions: make(map[string]*list.Element),
		running:   make(map[string]bool),
		wake:      make(chan struct{}, 1),
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
	}

	for i := 0; i < cfg.MinWorkers; i++ {
		d.pool.spawnWorker()
	}

	go d.run()
	return d
}

// Submit enqueues job without waiting for it to run.
func (d *Dispatcher) Submit(job Job) error {
	select {
	case <-d.quit:
		return ErrDispatcherClosed
	default:
	}
	select {
	case d.JobQueue <- job:
		return nil
	default:
		return ErrDispatcherBusy
	}
}

// Do runs fn on a worker after the user's earlier jobs and waits for it to
// finish. fn is skipped when ctx is done before it starts. Anything fn
// writes is only safe to read when Do returns nil.
func (d *Dispatcher) Do(ctx context.Context, userID string, fn func(ctx context.Context)) error {
	finished := make(chan struct{})
	err := d.Submit(Job{UserID: userID, Run: func() {
		defer close(finished)
		if ctx.Err() != nil {
			return
		}
		fn(ctx)
	}})
	if err != nil {
		return err
	}
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-d.quit:
		select {
		case <-finished:
			return nil
		default:
			return ErrDispatcherClosed
		}
	}
}

// Close stops the dispatcher and every worker. Jobs still queued are dropped;
// running jobs are allowed to finish.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() {
		close(d.quit)
		d.pool.close()
		<-d.done
	})
}

// Workers reports the number of live workers.
func (d *Dispatcher) Workers() int {
	return d.pool.size()
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for {
		if d.dispatchOne() {
			// pick up one new job so fresh users join the rotation
			select {
			case job := <-d.JobQueue:
				d.enqueueJob(job)
			case <-d.quit:
				return
			default:
			}
			continue
		}
		select {
		case job := <-d.JobQueue:
			d.enqueueJob(job)
		case <-d.wake:
		case <-d.quit:
			return
		}
	}
}

func (d *Dispatcher) enqueueJob(job Job) {
	userID := job.UserID

	d.mu.Lock()
	defer d.mu.Unlock()

	q := d.queues[userID]
	if q == nil {
		q = &userQueue{}
		d.queues[userID] = q
	}
	q.jobs = append(q.jobs, job)
	if q.enqueued {
		// user already enqueued, skip
		return
	}
	q.enqueued = true
	d.positions[userID] = d.ready.PushBack(userID)
}

// dispatchOne hands the next job of the first idle user in the rotation to a worker
func (d *Dispatcher) dispatchOne() bool {
	d.mu.Lock()
	var (
		job   Job
		found bool
	)
	for elem := d.ready.Front(); elem != nil; elem = elem.Next() {
		userID := elem.Value.(string)
		if d.running[userID] {
			continue
		}
		q := d.queues[userID]
		job = q.jobs[0]
		q.jobs = q.jobs[1:]
		if len(q.jobs) == 0 {
			// last job of this user, leave the rotation
			d.ready.Remove(elem)
			delete(d.positions, userID)
			delete(d.queues, userID)
		} else {
			d.ready.MoveToBack(elem)
		}
		d.running[userID] = true
		found = true
		break
	}
	d.mu.Unlock()
	if !found {
		return false
	}

	workerChan, ok := d.pool.acquire()
	if !ok {
		return false
	}
	userID, run := job.UserID, job.Run
	job.Run = func() {
		defer d.complete(userID)
		run()
	}
	select {
	case workerChan <- job:
	case <-d.quit:
		return false
	}
	logger.DebugWithFields("job dispatched", logger.Fields{
		"user_id":   userID,
		"worker_id": d.pool.workerID(workerChan),
	})
	return true
}

func (d *Dispatcher) complete(userID string) {
	d.mu.Lock()
	delete(d.running, userID)
	d.mu.Unlock()
	select {
	case d.wake <- struct{}{}:
	default:
	}
}
