package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrPoolStopped is returned by Do after Stop.
var ErrPoolStopped = errors.New("worker pool stopped")

// job represents a unit of work to be executed on a worker goroutine.
type job struct {
	fn   func() (any, error)
	done chan jobResult
}

// jobResult holds the return value from a job.
type jobResult struct {
	value any
	err   error
}

// WorkerPool runs jobs on a fixed number of goroutines. Every run builds
// its own VM inside the job, so the pool only bounds how many programs
// execute at once.
type WorkerPool struct {
	jobs chan job
	quit chan struct{}
	wg   sync.WaitGroup

	stopOnce sync.Once
}

// NewWorkerPool creates a pool and starts n worker goroutines (at least one).
func NewWorkerPool(n int) *WorkerPool {
	if n < 1 {
		n = 1
	}
	p := &WorkerPool{
		jobs: make(chan job, 64),
		quit: make(chan struct{}),
	}
	p.wg.Add(n)
	for i := 0; i < n; i++ {
		go p.loop()
	}
	return p
}

// loop processes jobs until the pool is stopped.
func (p *WorkerPool) loop() {
	defer p.wg.Done()
	for {
		select {
		case j := <-p.jobs:
			j.done <- p.execute(j.fn)
		case <-p.quit:
			return
		}
	}
}

// execute runs a job, recovering from panics.
func (p *WorkerPool) execute(fn func() (any, error)) (result jobResult) {
	defer func() {
		if r := recover(); r != nil {
			result = jobResult{err: fmt.Errorf("worker panic: %v", r)}
		}
	}()
	v, err := fn()
	return jobResult{value: v, err: err}
}

// Do submits fn to the pool and blocks until it completes or ctx is done.
// A job that already started keeps running after ctx is done; fn should
// watch ctx itself.
func (p *WorkerPool) Do(ctx context.Context, fn func() (any, error)) (any, error) {
	j := job{
		fn:   fn,
		done: make(chan jobResult, 1),
	}
	select {
	case p.jobs <- j:
	case <-p.quit:
		return nil, ErrPoolStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case r := <-j.done:
		return r.value, r.err
	case <-p.quit:
		return nil, ErrPoolStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Stop shuts down the worker goroutines and waits for running jobs.
func (p *WorkerPool) Stop() {
	p.stopOnce.Do(func() {
		close(p.quit)
	})
	p.wg.Wait()
}
