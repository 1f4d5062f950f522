// Package workerpool implements a fixed-size pool of worker goroutines,
// each owning its own job queue. A job is assigned to one worker, chosen
// by uniform random selection, at the moment it is enqueued: there is
// no shared queue and no work stealing.
package workerpool

import (
	"math/rand"
	"runtime"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Task is a unit of work the pool executes. TaskFunc adapts a plain
// function to the interface.
type Task interface {
	Execute()
}

// TaskFunc adapts a func() to Task.
type TaskFunc func()

// Execute calls f.
func (f TaskFunc) Execute() { f() }

// Config controls pool construction.
type Config struct {
	// NumWorkers is the number of worker goroutines to start. Zero or
	// negative selects runtime.NumCPU().
	NumWorkers int

	// Logger receives structured pool lifecycle logs. A no-op logger is
	// used when nil.
	Logger *zap.SugaredLogger
}

// Pool is a started set of worker goroutines. The zero value is not
// usable; construct one with New.
type Pool struct {
	workers []*worker
	rngMu   sync.Mutex
	rng     *rand.Rand
	log     *zap.SugaredLogger

	tasksTotal atomic.Int64
	tasksDone  atomic.Int64

	closeOnce sync.Once
	wg        sync.WaitGroup
}

type worker struct {
	mu    sync.Mutex
	cond  *sync.Cond
	queue []Task
	done  bool
}

// New starts cfg.NumWorkers workers and returns the running pool.
func New(cfg Config) *Pool {
	n := cfg.NumWorkers
	if n <= 0 {
		n = runtime.NumCPU()
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	p := &Pool{
		workers: make([]*worker, n),
		rng:     rand.New(rand.NewSource(1)),
		log:     log,
	}
	for i := range p.workers {
		w := &worker{}
		w.cond = sync.NewCond(&w.mu)
		p.workers[i] = w

		p.wg.Add(1)
		go p.toil(w)
	}
	log.Infow("worker pool started", "num_workers", n)
	return p
}

// Enqueue hands job to a uniformly-chosen worker's queue. It never
// blocks on queue capacity; queues grow as needed.
func (p *Pool) Enqueue(job func()) {
	p.EnqueueTask(TaskFunc(job))
}

// EnqueueTask is the Task-typed form of Enqueue.
func (p *Pool) EnqueueTask(task Task) {
	w := p.selectWorker()

	w.mu.Lock()
	if w.done {
		// Shutdown has begun: drop the job, so a job that re-enqueues
		// itself cannot keep the pool from ever draining.
		w.mu.Unlock()
		return
	}
	w.queue = append(w.queue, task)
	w.mu.Unlock()
	w.cond.Signal()

	p.tasksTotal.Add(1)
}

func (p *Pool) selectWorker() *worker {
	p.rngMu.Lock()
	idx := p.rng.Intn(len(p.workers))
	p.rngMu.Unlock()
	return p.workers[idx]
}

func (p *Pool) toil(w *worker) {
	defer p.wg.Done()

	for {
		w.mu.Lock()
		for len(w.queue) == 0 && !w.done {
			w.cond.Wait()
		}
		if len(w.queue) == 0 && w.done {
			w.mu.Unlock()
			return
		}

		job := w.queue[0]
		w.queue = w.queue[1:]
		w.mu.Unlock()

		job.Execute()
		p.tasksDone.Add(1)
	}
}

// Stats reports pool-wide counters.
type Stats struct {
	NumWorkers int
	TasksTotal int64
	TasksDone  int64
	Queued     int64
}

// Stats returns a snapshot of the pool's counters.
func (p *Pool) Stats() Stats {
	var queued int64
	for _, w := range p.workers {
		w.mu.Lock()
		queued += int64(len(w.queue))
		w.mu.Unlock()
	}
	return Stats{
		NumWorkers: len(p.workers),
		TasksTotal: p.tasksTotal.Load(),
		TasksDone:  p.tasksDone.Load(),
		Queued:     queued,
	}
}

// Shutdown signals every worker to drain its remaining queue and exit,
// then waits for all of them to stop. A job enqueued on a worker that has
// already been told to stop, including one enqueued by a running job, is
// dropped without running.
func (p *Pool) Shutdown() {
	p.closeOnce.Do(func() {
		p.log.Info("worker pool shutting down")
		for _, w := range p.workers {
			w.mu.Lock()
			w.done = true
			w.mu.Unlock()
			w.cond.Signal()
		}
	})
	p.wg.Wait()
}
