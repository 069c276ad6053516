package thumbnail

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_Reserve(t *testing.T) {
	r := NewRegistry(2)

	a, _, err := r.reserve("a")
	require.NoError(t, err)

	_, _, err = r.reserve("a")
	assert.ErrorIs(t, err, ErrJobActive)

	b, _, err := r.reserve("b")
	require.NoError(t, err)

	_, _, err = r.reserve("c")
	assert.ErrorIs(t, err, ErrRegistryFull)
	assert.Equal(t, 2, r.Len())

	r.release(a)
	r.release(b)
	assert.Equal(t, 0, r.Len())

	select {
	case <-a.Done():
	default:
		t.Fatal("released job not done")
	}
}

func TestRegistry_CancelWaitsForJob(t *testing.T) {
	r := NewRegistry(1)
	job, ctx, err := r.reserve("img")
	require.NoError(t, err)

	finished := make(chan struct{})
	r.launch(job, func() {
		<-ctx.Done()
		time.Sleep(10 * time.Millisecond)
		close(finished)
	})

	require.NoError(t, r.Cancel(context.Background(), "img"))
	select {
	case <-finished:
	default:
		t.Fatal("Cancel returned before the job finished")
	}
	assert.ErrorIs(t, context.Cause(ctx), errJobCancelled)

	// Nothing to cancel.
	assert.NoError(t, r.Cancel(context.Background(), "img"))
}

func TestRegistry_ShutdownRejectsNewJobs(t *testing.T) {
	r := NewRegistry(1)
	require.NoError(t, r.Shutdown(context.Background()))

	_, _, err := r.reserve("img")
	assert.ErrorIs(t, err, ErrShuttingDown)
}

func TestJob_WaitHonoursContext(t *testing.T) {
	r := NewRegistry(1)
	job, _, err := r.reserve("img")
	require.NoError(t, err)
	defer r.release(job)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, job.Wait(ctx), context.DeadlineExceeded)
}
