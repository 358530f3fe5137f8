package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"tensorjobs/internal/infra"
	"tensorjobs/internal/sqlinline"
)

type execCall struct {
	query string
	args  []any
}

type stubExecutor struct {
	execs    []execCall
	rowErr   error
	rows     [][]any
	queryArg []any
	err      error
}

func (s *stubExecutor) Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	s.execs = append(s.execs, execCall{query: query, args: args})
	return pgconn.CommandTag{}, s.err
}

func (s *stubExecutor) QueryRow(ctx context.Context, query string, args ...any) pgx.Row {
	if s.rowErr != nil {
		return stubRow{err: s.rowErr}
	}
	if len(s.rows) == 0 {
		return stubRow{err: pgx.ErrNoRows}
	}
	return stubRow{values: s.rows[0]}
}

func (s *stubExecutor) Query(ctx context.Context, query string, args ...any) (pgx.Rows, error) {
	s.queryArg = args
	if s.err != nil {
		return nil, s.err
	}
	return &stubRows{values: s.rows, idx: -1}, nil
}

type stubRow struct {
	values []any
	err    error
}

func (r stubRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	return assign(r.values, dest)
}

type stubRows struct {
	values [][]any
	idx    int
}

func (r *stubRows) Close()                                       {}
func (r *stubRows) Err() error                                   { return nil }
func (r *stubRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *stubRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *stubRows) Values() ([]any, error)                       { return nil, errors.New("not supported") }
func (r *stubRows) RawValues() [][]byte                          { return nil }
func (r *stubRows) Conn() *pgx.Conn                              { return nil }

func (r *stubRows) Next() bool {
	r.idx++
	return r.idx < len(r.values)
}

func (r *stubRows) Scan(dest ...any) error {
	return assign(r.values[r.idx], dest)
}

func assign(values []any, dest []any) error {
	if len(values) != len(dest) {
		return fmt.Errorf("expected %d targets, got %d", len(values), len(dest))
	}
	for i, v := range values {
		switch d := dest[i].(type) {
		case *string:
			*d = v.(string)
		case *time.Time:
			*d = v.(time.Time)
		default:
			return fmt.Errorf("unsupported target %T", dest[i])
		}
	}
	return nil
}

func row(jobID, status string) []any {
	ts := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	return []any{"run-1", "req", jobID, "template", "688", "Inputs/face.png", "sai-comic book",
		status, "https://x/out.png", "outputs/a.png", "", ts, ts}
}

func TestSubmittedUsesMarkedInsert(t *testing.T) {
	exec := &stubExecutor{}
	store := NewStore(exec)
	err := store.Submitted(context.Background(), Submission{RunID: "r", JobID: "J1", Kind: "template", Status: "PENDING"})
	if err != nil {
		t.Fatalf("Submitted error: %v", err)
	}
	if len(exec.execs) != 1 {
		t.Fatalf("expected one exec, got %d", len(exec.execs))
	}
	call := exec.execs[0]
	if call.query != sqlinline.QInsertTensorJob {
		t.Fatalf("unexpected query: %s", call.query)
	}
	if len(call.args) != 8 || call.args[2] != "J1" {
		t.Fatalf("unexpected args: %v", call.args)
	}
	if _, _, err := infra.SplitMarker(call.query); err != nil {
		t.Fatalf("query is missing its marker: %v", err)
	}
}

func TestSubmittedRequiresJobID(t *testing.T) {
	store := NewStore(&stubExecutor{})
	if err := store.Submitted(context.Background(), Submission{}); err == nil {
		t.Fatal("expected error for empty job id")
	}
}

func TestFinishedPassesResult(t *testing.T) {
	exec := &stubExecutor{}
	store := NewStore(exec)
	err := store.Finished(context.Background(), Result{JobID: "J1", Status: "SUCCESS", ImageURL: "u", OutputPath: "p"})
	if err != nil {
		t.Fatalf("Finished error: %v", err)
	}
	args := exec.execs[0].args
	if args[0] != "J1" || args[1] != "SUCCESS" || args[3] != "p" {
		t.Fatalf("unexpected args: %v", args)
	}
}

func TestListScansRowsAndClampsLimit(t *testing.T) {
	exec := &stubExecutor{rows: [][]any{row("J2", "SUCCESS"), row("J1", "FAILED")}}
	store := NewStore(exec)
	entries, err := store.List(context.Background(), 1000)
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].JobID != "J2" || entries[1].Status != "FAILED" {
		t.Fatalf("unexpected entries: %+v", entries)
	}
	if exec.queryArg[0] != MaxListLimit {
		t.Fatalf("expected clamped limit %d, got %v", MaxListLimit, exec.queryArg[0])
	}
}

func TestGetNotFound(t *testing.T) {
	store := NewStore(&stubExecutor{})
	if _, err := store.Get(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := store.Get(context.Background(), " "); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for blank id, got %v", err)
	}
}

func TestGetReturnsEntry(t *testing.T) {
	store := NewStore(&stubExecutor{rows: [][]any{row("J1", "SUCCESS")}})
	entry, err := store.Get(context.Background(), "J1")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if entry.OutputPath != "outputs/a.png" || entry.Style != "sai-comic book" {
		t.Fatalf("unexpected entry: %+v", entry)
	}
}

func TestEnsureSchema(t *testing.T) {
	exec := &stubExecutor{}
	if err := NewStore(exec).EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema error: %v", err)
	}
	if !strings.Contains(exec.execs[0].query, "create table if not exists tensor_jobs") {
		t.Fatalf("unexpected schema query: %s", exec.execs[0].query)
	}
}

func TestClampLimit(t *testing.T) {
	cases := map[int]int{0: DefaultListLimit, -3: DefaultListLimit, 10: 10, MaxListLimit + 1: MaxListLimit}
	for in, want := range cases {
		if got := ClampLimit(in); got != want {
			t.Fatalf("ClampLimit(%d) = %d, want %d", in, got, want)
		}
	}
}
