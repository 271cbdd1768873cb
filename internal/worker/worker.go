package worker

import (
	"fmt"

	"codepilot/internal/logger"
)

type Worker struct {
	id         int
	pool       *jobChannelPool
	jobChannel chan Job
}

func newWorker(id int, pool *jobChannelPool) *Worker {
	return &Worker{
		id:         id,
		pool:       pool,
		jobChannel: make(chan Job),
	}
}

func (w *Worker) Start() {
	go func() {
		defer w.pool.wg.Done()
		for {
			w.pool.Release(w.jobChannel)
			select {
			case job := <-w.jobChannel:
				if job.stop {
					w.pool.retire(w.jobChannel)
					logger.DebugWithFields("worker retired", logger.Fields{"worker_id": w.id})
					return
				}
				w.run(job)
			case <-w.pool.quit:
				w.pool.retire(w.jobChannel)
				return
			}
		}
	}()
}

func (w *Worker) run(job Job) {
	defer func() {
		if r := recover(); r != nil {
			logger.ErrorWithFields("worker job panicked", logger.Fields{
				"worker_id": w.id,
				"user_id":   job.UserID,
				"panic":     fmt.Sprint(r),
			})
		}
	}()
	job.Run()
}
