package thumbnail

import (
	"context"
	"sync"
)

// Job is the handle of one background run for an image.
type Job struct {
	ImageID string

	ctx    context.Context
	cancel context.CancelCauseFunc
	done   chan struct{}
}

// Done is closed when the job has finished, including its final record updates.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Wait blocks until the job finishes or ctx is done.
func (j *Job) Wait(ctx context.Context) error {
	select {
	case <-j.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Registry tracks in-flight jobs, at most one per image and at most limit overall.
type Registry struct {
	mu     sync.Mutex
	limit  int
	jobs   map[string]*Job
	closed bool
	wg     sync.WaitGroup

	base       context.Context
	cancelBase context.CancelCauseFunc
}

// NewRegistry creates a registry admitting up to limit concurrent jobs.
func NewRegistry(limit int) *Registry {
	if limit < 1 {
		limit = 1
	}
	base, cancel := context.WithCancelCause(context.Background())
	return &Registry{
		limit:      limit,
		jobs:       make(map[string]*Job),
		base:       base,
		cancelBase: cancel,
	}
}

// reserve claims a slot for imageID. The returned context belongs to the job,
// not to the caller, so it outlives the request that created it.
func (r *Registry) reserve(imageID string) (*Job, context.Context, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch {
	case r.closed:
		return nil, nil, ErrShuttingDown
	case r.jobs[imageID] != nil:
		return nil, nil, ErrJobActive
	case len(r.jobs) >= r.limit:
		return nil, nil, ErrRegistryFull
	}

	ctx, cancel := context.WithCancelCause(r.base)
	job := &Job{ImageID: imageID, ctx: ctx, cancel: cancel, done: make(chan struct{})}
	r.jobs[imageID] = job
	r.wg.Add(1)
	return job, ctx, nil
}

// launch runs fn for a reserved job and releases the slot when fn returns.
func (r *Registry) launch(job *Job, fn func()) {
	go func() {
		defer r.release(job)
		fn()
	}()
}

// release frees the slot of a job that finished or was never launched.
func (r *Registry) release(job *Job) {
	r.mu.Lock()
	if r.jobs[job.ImageID] == job {
		delete(r.jobs, job.ImageID)
	}
	r.mu.Unlock()

	job.cancel(nil)
	close(job.done)
	r.wg.Done()
}

// Get returns the running job of an image, if any.
func (r *Registry) Get(imageID string) (*Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[imageID]
	return job, ok
}

// Len reports the number of in-flight jobs.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.jobs)
}

// Cancel cancels the image's job, if one is running, and waits for it.
func (r *Registry) Cancel(ctx context.Context, imageID string) error {
	job, ok := r.Get(imageID)
	if !ok {
		return nil
	}
	job.cancel(errJobCancelled)
	return job.Wait(ctx)
}

// Shutdown stops admitting jobs and waits for running ones. When ctx expires
// first, the remaining jobs are cancelled and awaited, and ctx.Err() is returned.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	drained := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		return nil
	case <-ctx.Done():
	}

	r.cancelBase(ErrShuttingDown)
	<-drained
	return ctx.Err()
}
