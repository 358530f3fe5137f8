// Package ledger keeps a Postgres record of every submitted job and how it
// ended, so runs can be inspected after the fact.
package ledger

import (
	"context"
	"errors"
	"strings"
	"time"

	"tensorjobs/internal/infra"
	"tensorjobs/internal/sqlinline"
)

var ErrNotFound = errors.New("ledger: job not found")

const (
	DefaultListLimit = 50
	MaxListLimit     = 200
)

// Entry is one row of the ledger.
type Entry struct {
	RunID      string    `json:"run_id"`
	RequestID  string    `json:"request_id"`
	JobID      string    `json:"job_id"`
	Kind       string    `json:"kind"`
	TemplateID string    `json:"template_id,omitempty"`
	InputPath  string    `json:"input_path,omitempty"`
	Style      string    `json:"style,omitempty"`
	Status     string    `json:"status"`
	ImageURL   string    `json:"image_url,omitempty"`
	OutputPath string    `json:"output_path,omitempty"`
	Error      string    `json:"error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Submission describes a job right after the service accepted it.
type Submission struct {
	RunID      string
	RequestID  string
	JobID      string
	Kind       string
	TemplateID string
	InputPath  string
	Style      string
	Status     string
}

// Result describes how a job ended.
type Result struct {
	JobID      string
	Status     string
	ImageURL   string
	OutputPath string
	Error      string
}

// Recorder receives job lifecycle events from the orchestrator.
type Recorder interface {
	Submitted(ctx context.Context, sub Submission) error
	Finished(ctx context.Context, res Result) error
}

// Reader serves the ledger API.
type Reader interface {
	List(ctx context.Context, limit int) ([]Entry, error)
	Get(ctx context.Context, jobID string) (*Entry, error)
}

// Nop discards every event. It is used when no database is configured.
type Nop struct{}

func (Nop) Submitted(context.Context, Submission) error { return nil }
func (Nop) Finished(context.Context, Result) error      { return nil }

// Store persists the ledger through marker-tagged SQL.
type Store struct {
	sql infra.SQLExecutor
}

func NewStore(sql infra.SQLExecutor) *Store {
	return &Store{sql: sql}
}

// EnsureSchema creates the ledger table when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.sql.Exec(ctx, sqlinline.QEnsureTensorJobs)
	return err
}

func (s *Store) Submitted(ctx context.Context, sub Submission) error {
	if strings.TrimSpace(sub.JobID) == "" {
		return errors.New("ledger: job id is required")
	}
	_, err := s.sql.Exec(ctx, sqlinline.QInsertTensorJob,
		sub.RunID,
		sub.RequestID,
		sub.JobID,
		sub.Kind,
		sub.TemplateID,
		sub.InputPath,
		sub.Style,
		sub.Status,
	)
	return err
}

func (s *Store) Finished(ctx context.Context, res Result) error {
	if strings.TrimSpace(res.JobID) == "" {
		return errors.New("ledger: job id is required")
	}
	_, err := s.sql.Exec(ctx, sqlinline.QFinishTensorJob,
		res.JobID,
		res.Status,
		res.ImageURL,
		res.OutputPath,
		res.Error,
	)
	return err
}

// List returns the newest entries first. Limits outside 1..MaxListLimit are
// clamped; zero selects DefaultListLimit.
func (s *Store) List(ctx context.Context, limit int) ([]Entry, error) {
	limit = ClampLimit(limit)
	rows, err := s.sql.Query(ctx, sqlinline.QListTensorJobs, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]Entry, 0, limit)
	for rows.Next() {
		var e Entry
		if err := rows.Scan(scanTargets(&e)...); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *Store) Get(ctx context.Context, jobID string) (*Entry, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return nil, ErrNotFound
	}
	var e Entry
	if err := s.sql.QueryRow(ctx, sqlinline.QSelectTensorJob, jobID).Scan(scanTargets(&e)...); err != nil {
		if infra.IsNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &e, nil
}

func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultListLimit
	case limit > MaxListLimit:
		return MaxListLimit
	default:
		return limit
	}
}

func scanTargets(e *Entry) []any {
	return []any{
		&e.RunID,
		&e.RequestID,
		&e.JobID,
		&e.Kind,
		&e.TemplateID,
		&e.InputPath,
		&e.Style,
		&e.Status,
		&e.ImageURL,
		&e.OutputPath,
		&e.Error,
		&e.CreatedAt,
		&e.UpdatedAt,
	}
}

var (
	_ Recorder = Nop{}
	_ Recorder = (*Store)(nil)
	_ Reader   = (*Store)(nil)
)
