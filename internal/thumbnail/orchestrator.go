// Package thumbnail runs background generation of resized variants and keeps
// one status record per (image, size) consistent with what is on storage.
package thumbnail

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"thumbapi/internal/logging"
	"thumbapi/internal/model"
	"thumbapi/internal/repository"
	"thumbapi/internal/resize"
	"thumbapi/internal/storage"
)

const (
	defaultFinalizeTimeout = 5 * time.Second
	restartDetail          = "interrupted: server restarted before completion"
)

// UploadEvent describes an original that is durably stored and recorded.
type UploadEvent struct {
	ImageID     string
	OwnerID     string
	SourcePath  string
	ContentType string
}

// Scheduler is the intake of background generation. The in-process
// Orchestrator implements it; a queue-backed producer could as well.
type Scheduler interface {
	// Accept creates one pending record per configured size and starts the job.
	Accept(ctx context.Context, ev UploadEvent) ([]model.Thumbnail, error)
	// Retry replaces a failed record with a fresh pending one and regenerates it.
	Retry(ctx context.Context, ev UploadEvent, size model.Size) (*model.Thumbnail, error)
	// Cancel stops the image's running job and waits for it to finish.
	Cancel(ctx context.Context, imageID string) error
}

// Options configures an Orchestrator.
type Options struct {
	Sizes   []model.Size
	Workers int
	// Resize defaults to resize.Fit.
	Resize resize.Func
	// FinalizeTimeout bounds record updates made after the job context ended.
	FinalizeTimeout time.Duration
}

// Orchestrator is the in-process Scheduler.
type Orchestrator struct {
	records  repository.ThumbnailRepository
	source   storage.Storage
	writer   *storage.VariantWriter
	registry *Registry
	metrics  *Metrics
	tracer   trace.Tracer
	log      *logrus.Entry

	sizes           []model.Size
	workers         int
	resize          resize.Func
	finalizeTimeout time.Duration
}

var _ Scheduler = (*Orchestrator)(nil)

// New wires an Orchestrator. Originals are read from and variants written to store.
// A nil metrics value registers a private set that nothing scrapes.
func New(records repository.ThumbnailRepository, store storage.Storage, registry *Registry, metrics *Metrics, opts Options) (*Orchestrator, error) {
	if len(opts.Sizes) == 0 {
		return nil, errors.New("thumbnail: at least one size is required")
	}
	for _, s := range opts.Sizes {
		if !s.Valid() {
			return nil, fmt.Errorf("thumbnail: invalid size %s", s)
		}
	}
	if metrics == nil {
		m, err := NewMetrics(prometheus.NewRegistry())
		if err != nil {
			return nil, err
		}
		metrics = m
	}

	o := &Orchestrator{
		records:         records,
		source:          store,
		writer:          storage.NewVariantWriter(store),
		registry:        registry,
		metrics:         metrics,
		tracer:          otel.Tracer("thumbapi/internal/thumbnail"),
		log:             logging.Component("thumbnail"),
		sizes:           append([]model.Size(nil), opts.Sizes...),
		workers:         opts.Workers,
		resize:          opts.Resize,
		finalizeTimeout: opts.FinalizeTimeout,
	}
	if o.workers < 1 {
		o.workers = len(o.sizes)
	}
	if o.resize == nil {
		o.resize = resize.Fit
	}
	if o.finalizeTimeout <= 0 {
		o.finalizeTimeout = defaultFinalizeTimeout
	}
	return o, nil
}

// Sizes returns the configured sizes.
func (o *Orchestrator) Sizes() []model.Size {
	return append([]model.Size(nil), o.sizes...)
}

// Accept reserves a job slot, creates the pending records and starts the job.
// It returns once every record exists; generation continues in the background.
func (o *Orchestrator) Accept(ctx context.Context, ev UploadEvent) ([]model.Thumbnail, error) {
	job, jobCtx, err := o.registry.reserve(ev.ImageID)
	if err != nil {
		return nil, err
	}

	records := make([]model.Thumbnail, 0, len(o.sizes))
	for _, size := range o.sizes {
		rec, err := o.records.CreatePending(ctx, ev.ImageID, size)
		if err != nil {
			o.registry.release(job)
			o.abandon(ctx, records, err)
			return nil, fmt.Errorf("create pending %s: %w", size, err)
		}
		records = append(records, *rec)
	}

	o.registry.launch(job, func() { o.run(jobCtx, ev, records) })
	return records, nil
}

// Retry regenerates one failed variant under a fresh record.
func (o *Orchestrator) Retry(ctx context.Context, ev UploadEvent, size model.Size) (*model.Thumbnail, error) {
	job, jobCtx, err := o.registry.reserve(ev.ImageID)
	if err != nil {
		return nil, err
	}

	rec, err := o.records.ReplaceFailed(ctx, ev.ImageID, size)
	if err != nil {
		o.registry.release(job)
		return nil, err
	}

	records := []model.Thumbnail{*rec}
	o.registry.launch(job, func() { o.run(jobCtx, ev, records) })
	return rec, nil
}

// Cancel stops the image's running job, if any, and waits until it has
// recorded its final statuses.
func (o *Orchestrator) Cancel(ctx context.Context, imageID string) error {
	return o.registry.Cancel(ctx, imageID)
}

// Recover fails every record a previous process left pending. It must run
// before the first Accept.
func (o *Orchestrator) Recover(ctx context.Context) error {
	n, err := o.records.FailPending(ctx, restartDetail)
	if err != nil {
		return fmt.Errorf("recover pending thumbnails: %w", err)
	}
	if n > 0 {
		o.log.WithField("records", n).Warn("marked interrupted thumbnails failed")
	}
	return nil
}

// Shutdown stops intake and waits for running jobs until ctx expires; the
// rest are cancelled and their open variants recorded as interrupted.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	err := o.registry.Shutdown(ctx)
	if err != nil {
		o.log.WithError(err).Warn("thumbnail jobs interrupted by shutdown")
	}
	return err
}

// abandon fails records created by an Accept that could not complete, so none
// stays pending without a job.
func (o *Orchestrator) abandon(ctx context.Context, records []model.Thumbnail, cause error) {
	for _, rec := range records {
		o.fail(ctx, rec, fmt.Errorf("accept aborted: %w", cause), time.Now())
	}
}

func (o *Orchestrator) run(ctx context.Context, ev UploadEvent, records []model.Thumbnail) {
	start := time.Now()
	ctx, span := o.tracer.Start(ctx, "thumbnail.job", trace.WithAttributes(
		attribute.String("image.id", ev.ImageID),
		attribute.Int("thumbnail.sizes", len(records)),
	))
	defer span.End()

	o.metrics.inFlight.Inc()
	defer o.metrics.inFlight.Dec()

	log := o.log.WithField("image_id", ev.ImageID)

	src, err := o.readSource(ctx, ev.SourcePath)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "source unavailable")
		log.WithError(err).Error("thumbnail source unreadable")
		for _, rec := range records {
			o.fail(ctx, rec, err, start)
		}
		return
	}

	var g errgroup.Group
	g.SetLimit(o.workers)
	for _, rec := range records {
		g.Go(func() error {
			o.generate(ctx, ev.ImageID, rec, src, start)
			return nil
		})
	}
	_ = g.Wait()

	log.WithField("duration_ms", time.Since(start).Milliseconds()).Info("thumbnail job finished")
}

func (o *Orchestrator) readSource(ctx context.Context, key string) ([]byte, error) {
	rc, _, err := o.source.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	return data, nil
}

// generate takes one record from pending to a terminal status. Its failures
// never reach the other sizes of the job.
func (o *Orchestrator) generate(ctx context.Context, imageID string, rec model.Thumbnail, src []byte, start time.Time) {
	ctx, span := o.tracer.Start(ctx, "thumbnail.variant", trace.WithAttributes(
		attribute.String("thumbnail.id", rec.ID),
		attribute.String("thumbnail.size", rec.Size.String()),
	))
	defer span.End()

	if ctx.Err() != nil {
		o.fail(ctx, rec, ctx.Err(), start)
		return
	}

	data, err := o.resize(src, rec.Size.Width, rec.Size.Height)
	if err != nil {
		span.RecordError(err)
		o.fail(ctx, rec, err, start)
		return
	}
	if ctx.Err() != nil {
		o.fail(ctx, rec, ctx.Err(), start)
		return
	}

	path, err := o.writer.Write(ctx, imageID, rec.Size, data)
	if err != nil {
		span.RecordError(err)
		o.fail(ctx, rec, fmt.Errorf("%w: %v", ErrStorage, err), start)
		return
	}

	fctx, cancel := o.finalizeContext(ctx)
	defer cancel()

	log := o.log.WithFields(logrus.Fields{
		"image_id":     imageID,
		"thumbnail_id": rec.ID,
		"size":         rec.Size.String(),
	})

	err = o.records.MarkReady(fctx, rec.ID, path)
	switch {
	case err == nil:
		o.metrics.observe(rec.Size, model.StatusReady, time.Since(start).Seconds())
	case errors.Is(err, repository.ErrNotFound):
		// The image was deleted while this variant was in flight.
		if derr := o.writer.Delete(fctx, path); derr != nil {
			log.WithError(derr).Error("failed to remove orphaned variant")
		}
		log.Info("thumbnail record gone, variant discarded")
	case errors.Is(err, repository.ErrRecordConflict):
		log.WithError(err).Error("refused second completion of thumbnail")
	default:
		span.RecordError(err)
		log.WithError(err).Error("failed to mark thumbnail ready")
		// The update may still have committed; keep the file unless the record is
		// known to be failed or gone.
		ferr := o.fail(ctx, rec, fmt.Errorf("record ready: %w", err), start)
		if ferr == nil || errors.Is(ferr, repository.ErrNotFound) {
			if derr := o.writer.Delete(fctx, path); derr != nil {
				log.WithError(derr).Error("failed to remove unrecorded variant")
			}
		}
	}
}

// fail records cause on a pending record and returns the store's answer. A
// cancelled job is reported as interrupted with the cancellation cause.
func (o *Orchestrator) fail(ctx context.Context, rec model.Thumbnail, cause error, start time.Time) error {
	detail := cause.Error()
	if ctx.Err() != nil {
		detail = "interrupted: " + context.Cause(ctx).Error()
	}

	fctx, cancel := o.finalizeContext(ctx)
	defer cancel()

	log := o.log.WithFields(logrus.Fields{
		"image_id":     rec.ImageID,
		"thumbnail_id": rec.ID,
		"size":         rec.Size.String(),
	})

	err := o.records.MarkFailed(fctx, rec.ID, detail)
	switch {
	case err == nil:
		o.metrics.observe(rec.Size, model.StatusFailed, time.Since(start).Seconds())
		log.WithField("error_detail", detail).Warn("thumbnail failed")
	case errors.Is(err, repository.ErrNotFound):
		log.Debug("thumbnail record gone before failure was recorded")
	case errors.Is(err, repository.ErrRecordConflict):
		log.WithError(err).Error("refused second completion of thumbnail")
	default:
		log.WithError(err).Error("failed to mark thumbnail failed")
	}
	return err
}

func (o *Orchestrator) finalizeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), o.finalizeTimeout)
}
