package worker

import "context"

// Task is a unit of work executed by a pool worker.
type Task func(ctx context.Context) error

// Job carries a task through the dispatcher.
type Job struct {
	Key  string
	Ctx  context.Context
	Task Task

	done chan error
	stop bool
}

type Worker struct {
	id         int
	pool       *jobChannelPool
	jobChannel chan Job
}

func NewWorker(id int, pool *jobChannelPool) *Worker {
	return &Worker{
		id:         id,
		pool:       pool,
		jobChannel: make(chan Job, 1),
	}
}

func (w *Worker) Start() {
	go func() {
		for job := range w.jobChannel {
			if job.stop {
				w.pool.retire(w.jobChannel)
				return
			}
			debugLog("worker running job", map[string]any{"worker": w.id, "key": job.Key})
			w.run(job)
			if !w.pool.Release(w.jobChannel) {
				w.pool.retire(w.jobChannel)
				return
			}
		}
	}()
}

func (w *Worker) run(job Job) {
	var err error
	if err = job.Ctx.Err(); err == nil {
		err = job.Task(job.Ctx)
	}
	w.pool.onDone(job, err)
}
