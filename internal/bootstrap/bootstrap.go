// Package bootstrap assembles the orchestrator and its collaborators from
// configuration for the command-line binaries.
package bootstrap

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"tensorjobs/internal/infra"
	"tensorjobs/internal/infra/credentials"
	"tensorjobs/internal/ledger"
	"tensorjobs/internal/orchestrator"
	"tensorjobs/internal/providers/tensorart"
	"tensorjobs/internal/storage"
	"tensorjobs/internal/workflow"
)

// Runtime owns everything a run needs. Close releases the database pool.
type Runtime struct {
	Config       *infra.Config
	Logger       infra.Logger
	Profile      *workflow.Profile
	Client       *tensorart.Client
	Orchestrator *orchestrator.Orchestrator
	Ledger       *ledger.Store

	pool *pgxpool.Pool
}

func (r *Runtime) Close() {
	if r.pool != nil {
		r.pool.Close()
	}
}

// New loads the workflow profile, connects the optional database, resolves
// the API key and builds the orchestrator. The database is optional: without
// DATABASE_URL the ledger is disabled and the key must come from the
// environment.
func New(ctx context.Context, cfg *infra.Config, logger infra.Logger) (*Runtime, error) {
	profile, err := workflow.LoadProfile(cfg.WorkflowFile)
	if err != nil {
		return nil, err
	}
	rt := &Runtime{Config: cfg, Logger: logger, Profile: profile}

	var recorder ledger.Recorder = ledger.Nop{}
	apiKey := cfg.APIKey
	pool, err := infra.NewDBPool(ctx, cfg)
	switch {
	case errors.Is(err, infra.ErrNoDatabase):
		logger.Debug().Msg("no database configured; ledger disabled")
	case err != nil:
		return nil, err
	default:
		rt.pool = pool
		runner := infra.NewSQLRunner(pool, logger)
		store := ledger.NewStore(runner)
		if err := store.EnsureSchema(ctx); err != nil {
			rt.Close()
			return nil, fmt.Errorf("ledger schema: %w", err)
		}
		rt.Ledger = store
		recorder = store
		if apiKey == "" {
			apiKey, err = credentials.NewStore(runner).APIKey(ctx)
			if err != nil {
				rt.Close()
				return nil, fmt.Errorf("load stored api key: %w", err)
			}
		}
	}
	if apiKey == "" {
		rt.Close()
		return nil, tensorart.ErrMissingAPIKey
	}

	rt.Client = tensorart.NewClient(tensorart.Options{
		BaseURL:        cfg.BaseURL,
		APIKey:         apiKey,
		UploadExpire:   cfg.UploadExpire,
		RequestTimeout: cfg.HTTPTimeout,
		Logger:         &rt.Logger,
	})
	poller := tensorart.NewPoller(rt.Client, tensorart.PollPolicy{
		Interval:    cfg.PollInterval,
		MaxInterval: cfg.PollMaxInterval,
		MaxAttempts: cfg.PollMaxAttempts,
		Timeout:     cfg.PollTimeout,
	}, &rt.Logger)

	files, err := storage.NewFileStore(cfg.OutputDir)
	if err != nil {
		rt.Close()
		return nil, err
	}

	var mirror orchestrator.Mirror
	if cfg.MinIO.Enabled() {
		m, err := storage.NewObjectMirror(storage.ObjectConfig{
			Endpoint:  cfg.MinIO.Endpoint,
			AccessKey: cfg.MinIO.AccessKey,
			SecretKey: cfg.MinIO.SecretKey,
			Region:    cfg.MinIO.Region,
			Bucket:    cfg.MinIO.Bucket,
			UseSSL:    cfg.MinIO.UseSSL,
		})
		if err != nil {
			rt.Close()
			return nil, err
		}
		bucketCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		err = m.EnsureBucket(bucketCtx)
		cancel()
		if err != nil {
			logger.Warn().Err(err).Msg("object mirror unavailable; outputs stay local")
		} else {
			mirror = m
		}
	}

	rt.Orchestrator, err = orchestrator.New(orchestrator.Options{
		Client:  rt.Client,
		Poller:  poller,
		Store:   files,
		Profile: profile,
		Mirror:  mirror,
		Ledger:  recorder,
		Logger:  &rt.Logger,
		Pause:   cfg.JobPause,
	})
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.Logger = logger.With().Str("run_id", rt.Orchestrator.RunID()).Logger()
	return rt, nil
}

// Prompter asks for values that were not given as flags.
type Prompter struct {
	in  *bufio.Reader
	out io.Writer
}

func NewPrompter(in io.Reader, out io.Writer) *Prompter {
	return &Prompter{in: bufio.NewReader(in), out: out}
}

// Ask prints label and reads one trimmed line. A final line without a
// newline is accepted.
func (p *Prompter) Ask(label string) (string, error) {
	fmt.Fprint(p.out, label)
	line, err := p.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// AskIfEmpty returns value when set and otherwise asks for it.
func (p *Prompter) AskIfEmpty(value, label string) (string, error) {
	if v := strings.TrimSpace(value); v != "" {
		return v, nil
	}
	return p.Ask(label)
}

// AskStyle returns style when set. Otherwise it asks, naming the profile
// default, and an empty answer selects that default.
func (p *Prompter) AskStyle(style string, profile *workflow.Profile) (string, error) {
	if v := strings.TrimSpace(style); v != "" {
		return v, nil
	}
	def := ""
	if profile != nil {
		def = profile.DefaultStyle
	}
	label := "Enter the style for the image: "
	if def != "" {
		label = fmt.Sprintf("Enter the style for the image (default: %s): ", def)
	}
	answer, err := p.Ask(label)
	if err != nil {
		return "", err
	}
	if answer == "" {
		return def, nil
	}
	return answer, nil
}
