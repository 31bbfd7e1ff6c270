package worker

import (
	"container/list"
	"context"
	"errors"
	"sync"
	"time"
)

var (
	// ErrDispatcherBusy is returned when the pending queue is full.
	ErrDispatcherBusy = errors.New("dispatcher queue full")
	// ErrDispatcherClosed is returned for jobs submitted or pending at Close.
	ErrDispatcherClosed = errors.New("dispatcher closed")
)

type keyQueue struct {
	jobs     []Job
	enqueued bool // key is in the ready list
	running  bool // a job of this key is executing
}

// Dispatcher runs keyed jobs on an elastic worker pool. Keys are served
// round-robin and at most one job per key runs at a time.
type Dispatcher struct {
	pool     *jobChannelPool
	jobQueue chan Job
	wake     chan struct{}
	quit     chan struct{}
	capacity int

	mu        sync.Mutex
	closed    bool
	pending   int
	queues    map[string]*keyQueue
	ready     *list.List // round-robin queue of keys
	positions map[string]*list.Element

	closeOnce sync.Once
}

func NewDispatcher(minWorkers, maxWorkers, queueSize int, idleTimeout time.Duration) *Dispatcher {
	if queueSize < 1 {
		queueSize = 1
	}
	d := &Dispatcher{
		jobQueue:  make(chan Job, queueSize),
		wake:      make(chan struct{}, 1),
		quit:      make(chan struct{}),
		capacity:  queueSize,
		queues:    make(map[string]*keyQueue),
		ready:     list.New(),
		positions: make(map[string]*list.Element),
	}
	d.pool = newJobChannelPool(minWorkers, maxWorkers, idleTimeout, d.finish)

	for i := 0; i < d.pool.min; i++ {
		d.pool.spawnIdle()
	}

	go d.run()
	return d
}

// Submit queues task under key and waits for it to finish or for ctx to end.
func (d *Dispatcher) Submit(ctx context.Context, key string, task Task) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrDispatcherClosed
	}
	if d.pending >= d.capacity {
		d.mu.Unlock()
		return ErrDispatcherBusy
	}
	job := Job{Key: key, Ctx: ctx, Task: task, done: make(chan error, 1)}
	d.pending++
	// pending never exceeds the channel capacity, so this send does not block
	d.jobQueue <- job
	d.mu.Unlock()

	select {
	case err := <-job.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats reports queued jobs and live workers.
func (d *Dispatcher) Stats() (pending, workers int) {
	d.mu.Lock()
	pending = d.pending
	d.mu.Unlock()
	return pending, d.pool.size()
}

// Close stops accepting jobs and fails everything still queued.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() {
		d.mu.Lock()
		d.closed = true
		d.mu.Unlock()
		close(d.quit)
		d.pool.close()
	})
}

func (d *Dispatcher) run() {
	for {
		// dispatch one job of the key in front of the ready list
		if d.dispatchOne() {
			select {
			case job := <-d.jobQueue:
				d.enqueueJob(job)
			default:
			}
			continue
		}
		select {
		case job := <-d.jobQueue:
			d.enqueueJob(job)
		case <-d.wake:
		case <-d.quit:
			d.drain()
			return
		}
	}
}

func (d *Dispatcher) enqueueJob(job Job) {
	d.mu.Lock()
	defer d.mu.Unlock()

	q := d.queues[job.Key]
	if q == nil {
		q = &keyQueue{}
		d.queues[job.Key] = q
	}
	q.jobs = append(q.jobs, job)
	d.markReadyLocked(job.Key, q)
}

func (d *Dispatcher) markReadyLocked(key string, q *keyQueue) {
	if q.enqueued || q.running || len(q.jobs) == 0 {
		return
	}
	q.enqueued = true
	d.positions[key] = d.ready.PushBack(key)
}

// dispatchOne hands the first ready key's oldest job to a worker.
func (d *Dispatcher) dispatchOne() bool {
	d.mu.Lock()
	elem := d.ready.Front()
	if elem == nil {
		d.mu.Unlock()
		return false
	}
	key := elem.Value.(string)
	q := d.queues[key]
	job := q.jobs[0]
	q.jobs = q.jobs[1:]
	q.enqueued = false
	q.running = true
	d.ready.Remove(elem)
	delete(d.positions, key)
	d.mu.Unlock()

	workerChan := d.pool.acquire()
	d.mu.Lock()
	d.pending--
	d.mu.Unlock()
	if workerChan == nil {
		d.finish(job, ErrDispatcherClosed)
		return false
	}
	debugLog("dispatcher assigned job", map[string]any{"key": key})
	workerChan <- job
	return true
}

// finish runs on the worker goroutine once a job is over.
func (d *Dispatcher) finish(job Job, err error) {
	job.done <- err

	d.mu.Lock()
	q := d.queues[job.Key]
	if q != nil {
		q.running = false
		if len(q.jobs) == 0 {
			delete(d.queues, job.Key)
		} else if !d.closed {
			d.markReadyLocked(job.Key, q)
		}
	}
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// drain fails every job not yet handed to a worker.
func (d *Dispatcher) drain() {
	d.mu.Lock()
	var jobs []Job
	for key, q := range d.queues {
		jobs = append(jobs, q.jobs...)
		q.jobs = nil
		if !q.running {
			delete(d.queues, key)
		}
	}
	d.ready.Init()
	d.positions = make(map[string]*list.Element)
	d.mu.Unlock()

	for {
		select {
		case job := <-d.jobQueue:
			jobs = append(jobs, job)
		default:
			d.mu.Lock()
			d.pending -= len(jobs)
			d.mu.Unlock()
			for _, job := range jobs {
				job.done <- ErrDispatcherClosed
			}
			return
		}
	}
}
