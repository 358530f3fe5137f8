// Package orchestrator drives one upload, submit, poll and download cycle at a
// time against the generation service and records each job in the ledger.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"tensorjobs/internal/infra"
	"tensorjobs/internal/ledger"
	"tensorjobs/internal/providers/tensorart"
	"tensorjobs/internal/storage"
	"tensorjobs/internal/workflow"
)

var (
	// ErrNoInputs is returned by ListInputImages when a directory holds no
	// usable images.
	ErrNoInputs = errors.New("orchestrator: no input images found")
	// ErrNoImage means a job succeeded without any output URL.
	ErrNoImage = errors.New("orchestrator: job succeeded without an image")
)

// ServiceClient is the subset of the service API the orchestrator needs.
type ServiceClient interface {
	UploadImage(ctx context.Context, path string) (tensorart.ResourceHandle, error)
	Submit(ctx context.Context, spec tensorart.JobSpec) (*tensorart.Job, error)
	Download(ctx context.Context, imageURL string) ([]byte, string, error)
}

// Waiter blocks until a job is terminal.
type Waiter interface {
	Wait(ctx context.Context, jobID string) (*tensorart.Job, error)
}

// Mirror receives a copy of every persisted output.
type Mirror interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

type Options struct {
	Client  ServiceClient
	Poller  Waiter
	Store   *storage.FileStore
	Profile *workflow.Profile
	// Optional.
	Mirror Mirror
	Ledger ledger.Recorder
	Logger *infra.Logger
	// Pause is slept after every batch job. Zero disables it.
	Pause time.Duration
	RunID string
}

type Orchestrator struct {
	client  ServiceClient
	poller  Waiter
	store   *storage.FileStore
	profile *workflow.Profile
	mirror  Mirror
	ledger  ledger.Recorder
	logger  *infra.Logger
	pause   time.Duration
	runID   string
	sleep   func(ctx context.Context, d time.Duration) error
}

func New(opts Options) (*Orchestrator, error) {
	if opts.Client == nil {
		return nil, errors.New("orchestrator: client is required")
	}
	if opts.Poller == nil {
		return nil, errors.New("orchestrator: poller is required")
	}
	if opts.Store == nil {
		return nil, errors.New("orchestrator: file store is required")
	}
	rec := opts.Ledger
	if rec == nil {
		rec = ledger.Nop{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = infra.NopLogger()
	}
	runID := strings.TrimSpace(opts.RunID)
	if runID == "" {
		runID = uuid.NewString()
	}
	return &Orchestrator{
		client:  opts.Client,
		poller:  opts.Poller,
		store:   opts.Store,
		profile: opts.Profile,
		mirror:  opts.Mirror,
		ledger:  rec,
		logger:  logger,
		pause:   opts.Pause,
		runID:   runID,
		sleep:   sleepContext,
	}, nil
}

// RunID identifies every job recorded by this orchestrator.
func (o *Orchestrator) RunID() string { return o.runID }

// OutputDir is where downloaded images are written.
func (o *Orchestrator) OutputDir() string { return o.store.BasePath() }

// OutputImage is a downloaded result. LocalPath is empty when the download
// failed.
type OutputImage struct {
	SourceURL string
	LocalPath string
}

// Meta describes a job for logging and the ledger.
type Meta struct {
	InputPath  string
	Style      string
	TemplateID string
}

// Outcome is the result of one Run.
type Outcome struct {
	JobID       string
	RequestID   string
	Status      tensorart.JobStatus
	Output      OutputImage
	ExtraImages int
}

func (o *Orchestrator) Upload(ctx context.Context, path string) (tensorart.ResourceHandle, error) {
	handle, err := o.client.UploadImage(ctx, path)
	if err != nil {
		return tensorart.ResourceHandle{}, err
	}
	o.logger.Info().Str("input", path).Str("resource_id", handle.ResourceID).Msg("image uploaded")
	return handle, nil
}

// Run submits spec, waits for it and saves the first output image. The
// returned Outcome is non-nil whenever the job was accepted, including when
// it later failed.
func (o *Orchestrator) Run(ctx context.Context, spec tensorart.JobSpec, meta Meta) (*Outcome, error) {
	job, err := o.client.Submit(ctx, spec)
	if err != nil {
		return nil, err
	}
	out := &Outcome{JobID: job.ID, RequestID: job.RequestID, Status: job.Status}
	log := o.logger.With().Str("job_id", job.ID).Str("style", meta.Style).Str("input", meta.InputPath).Logger()

	if err := o.ledger.Submitted(ctx, ledger.Submission{
		RunID:      o.runID,
		RequestID:  job.RequestID,
		JobID:      job.ID,
		Kind:       spec.Kind(),
		TemplateID: meta.TemplateID,
		InputPath:  meta.InputPath,
		Style:      meta.Style,
		Status:     string(job.Status),
	}); err != nil {
		log.Warn().Err(err).Msg("ledger: record submission failed")
	}

	final, err := o.poller.Wait(ctx, job.ID)
	if final != nil {
		out.Status = final.Status
	}
	if err != nil {
		o.finish(ctx, &log, out, err)
		return out, err
	}

	imageURL, total := final.FirstImageURL()
	if total > 1 {
		out.ExtraImages = total - 1
		log.Warn().Int("images", total).Msg("job returned several images; keeping the first")
	}
	if imageURL == "" {
		o.finish(ctx, &log, out, ErrNoImage)
		return out, ErrNoImage
	}

	out.Output, err = o.SaveImage(ctx, imageURL)
	o.finish(ctx, &log, out, err)
	if err != nil {
		return out, err
	}
	log.Info().Str("path", out.Output.LocalPath).Msg("job completed")
	return out, nil
}

func (o *Orchestrator) finish(ctx context.Context, log *infra.Logger, out *Outcome, runErr error) {
	res := ledger.Result{
		JobID:      out.JobID,
		Status:     string(out.Status),
		ImageURL:   out.Output.SourceURL,
		OutputPath: out.Output.LocalPath,
	}
	if runErr != nil {
		res.Error = runErr.Error()
		log.Error().Err(runErr).Str("status", res.Status).Msg("job did not produce an output")
	}
	// The ledger write must survive a cancelled run.
	if err := o.ledger.Finished(context.WithoutCancel(ctx), res); err != nil {
		log.Warn().Err(err).Msg("ledger: record result failed")
	}
}

// SaveImage downloads imageURL into the output directory as
// <md5(url)>.png. On a *tensorart.DownloadError the returned OutputImage still
// carries the source URL but no local path.
func (o *Orchestrator) SaveImage(ctx context.Context, imageURL string) (OutputImage, error) {
	img := OutputImage{SourceURL: imageURL}
	data, contentType, err := o.client.Download(ctx, imageURL)
	if err != nil {
		return img, err
	}
	key := storage.OutputKey(imageURL)
	path, err := o.store.Write(ctx, key, data)
	if err != nil {
		return img, err
	}
	img.LocalPath = path
	o.logger.Info().Str("url", imageURL).Str("path", path).Msg("image saved")

	if o.mirror != nil {
		location, err := o.mirror.Put(ctx, key, data, contentType)
		if err != nil {
			o.logger.Warn().Err(err).Str("key", key).Msg("mirror upload failed")
		} else {
			o.logger.Debug().Str("location", location).Msg("image mirrored")
		}
	}
	return img, nil
}

// Img2Img uploads inputPath and runs the profile's template with style.
func (o *Orchestrator) Img2Img(ctx context.Context, inputPath, style, prompt string) (*Outcome, error) {
	if o.profile == nil {
		return nil, errors.New("orchestrator: workflow profile is required")
	}
	handle, err := o.Upload(ctx, inputPath)
	if err != nil {
		return nil, err
	}
	return o.runTemplate(ctx, handle, inputPath, style, prompt, "")
}

// Txt2Img runs the profile's staged text-to-image pipeline.
func (o *Orchestrator) Txt2Img(ctx context.Context, prompt string) (*Outcome, error) {
	if o.profile == nil {
		return nil, errors.New("orchestrator: workflow profile is required")
	}
	spec, err := o.profile.StagedJob(prompt)
	if err != nil {
		return nil, err
	}
	return o.Run(ctx, spec, Meta{})
}

func (o *Orchestrator) runTemplate(ctx context.Context, handle tensorart.ResourceHandle, inputPath, style, prompt, negative string) (*Outcome, error) {
	spec, err := o.profile.TemplateJob(workflow.TemplateInput{
		ResourceID:     handle.ResourceID,
		Style:          style,
		Prompt:         prompt,
		NegativePrompt: negative,
	})
	if err != nil {
		return nil, err
	}
	if style == "" {
		style = o.profile.DefaultStyle
	}
	return o.Run(ctx, spec, Meta{InputPath: inputPath, Style: style, TemplateID: spec.TemplateID})
}

// BatchRequest runs every input against every style.
type BatchRequest struct {
	Inputs         []string
	Styles         []string
	Prompt         string
	NegativePrompt string
}

// BatchItem is one (input, style) pair of a batch. Err is set when the pair
// produced no output; Output.LocalPath is then empty.
type BatchItem struct {
	InputPath string
	Style     string
	JobID     string
	Output    OutputImage
	Err       error
}

// Batch processes inputs in order, uploading each once and submitting one job
// per style. Jobs run strictly one after another with the configured pause
// after each. Per-job failures are recorded on the item and do not stop the
// batch; cancellation does, returning the items completed so far.
func (o *Orchestrator) Batch(ctx context.Context, req BatchRequest) ([]BatchItem, error) {
	if o.profile == nil {
		return nil, errors.New("orchestrator: workflow profile is required")
	}
	if len(req.Inputs) == 0 {
		return nil, ErrNoInputs
	}
	styles := o.profile.ResolveStyles(req.Styles)
	if len(styles) == 0 {
		styles = []string{o.profile.DefaultStyle}
	}

	items := make([]BatchItem, 0, len(req.Inputs)*len(styles))
	for _, input := range req.Inputs {
		if err := ctx.Err(); err != nil {
			return items, err
		}
		log := o.logger.With().Str("input", input).Logger()
		handle, err := o.Upload(ctx, input)
		if err != nil {
			if ctx.Err() != nil {
				return items, ctx.Err()
			}
			log.Error().Err(err).Msg("upload failed; skipping input")
			for _, style := range styles {
				items = append(items, BatchItem{InputPath: input, Style: style, Err: err})
			}
			continue
		}

		for _, style := range styles {
			log.Info().Str("style", style).Msg("processing style")
			item := BatchItem{InputPath: input, Style: style}
			outcome, err := o.runTemplate(ctx, handle, input, style, req.Prompt, req.NegativePrompt)
			if outcome != nil {
				item.JobID = outcome.JobID
				item.Output = outcome.Output
			}
			item.Err = err
			items = append(items, item)

			if ctx.Err() != nil {
				return items, ctx.Err()
			}
			var dlErr *tensorart.DownloadError
			if errors.As(err, &dlErr) {
				log.Warn().Err(err).Str("style", style).Msg("download failed; row kept without output")
			}
			if err := o.sleep(ctx, o.pause); err != nil {
				return items, err
			}
		}
	}
	return items, nil
}

// ListInputImages returns the .png, .jpg and .jpeg files directly inside dir,
// sorted by name.
func ListInputImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w in %s", ErrNoInputs, dir)
		}
		return nil, fmt.Errorf("orchestrator: read inputs: %w", err)
	}
	var paths []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".png", ".jpg", ".jpeg":
			paths = append(paths, filepath.Join(dir, entry.Name()))
		}
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoInputs, dir)
	}
	sort.Strings(paths)
	return paths, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
