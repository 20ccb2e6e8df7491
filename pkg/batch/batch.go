// Package batch writes match results to numbered JSON files in fixed-size batches.
package batch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/codeGROOVE-dev/cohortmatch/pkg/cohort"
)

// Writer accumulates results and flushes them to <dir>/<prefix>_batch_<n>.json
// every size results. It is not safe for concurrent use.
type Writer struct {
	logger  *slog.Logger
	dir     string
	prefix  string
	pending []cohort.MatchResult
	files   []string
	size    int
	index   int
	closed  bool
}

// Option configures a Writer.
type Option func(*Writer)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Writer) { w.logger = logger }
}

// WithStartIndex continues numbering after n, e.g. when resuming a run.
func WithStartIndex(n int) Option {
	return func(w *Writer) { w.index = n }
}

// NewWriter creates dir if needed and returns a Writer flushing every size results.
func NewWriter(dir, prefix string, size int, opts ...Option) (*Writer, error) {
	if size < 1 {
		return nil, fmt.Errorf("batch size must be positive, got %d", size)
	}
	if prefix == "" {
		return nil, errors.New("batch prefix is empty")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	w := &Writer{logger: slog.Default(), dir: dir, prefix: prefix, size: size}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Add queues a result, flushing when the batch is full.
func (w *Writer) Add(ctx context.Context, result cohort.MatchResult) error {
	if w.closed {
		return errors.New("batch writer is closed")
	}
	w.pending = append(w.pending, result)
	if len(w.pending) >= w.size {
		return w.flush(ctx)
	}
	return nil
}

// Close flushes any pending results. It is safe to call more than once.
func (w *Writer) Close(ctx context.Context) error {
	if w.closed {
		return nil
	}
	w.closed = true
	if len(w.pending) == 0 {
		return nil
	}
	return w.flush(ctx)
}

// Files returns the paths written so far, in order.
func (w *Writer) Files() []string {
	return append([]string(nil), w.files...)
}

// Path returns the file name for batch n.
func (w *Writer) Path(n int) string {
	return filepath.Join(w.dir, fmt.Sprintf("%s_batch_%d.json", w.prefix, n))
}

func (w *Writer) flush(ctx context.Context) error {
	n := w.index + 1
	path := w.Path(n)
	if err := WriteJSON(path, w.pending); err != nil {
		return fmt.Errorf("write batch %d: %w", n, err)
	}

	w.index = n
	w.files = append(w.files, path)
	w.logger.InfoContext(ctx, "batch saved", "batch", n, "results", len(w.pending), "path", path)
	w.pending = nil
	return nil
}

// WriteJSON writes v as 4-space indented JSON. The data lands in a temporary
// file first and is renamed into place, so path is either complete or absent.
func WriteJSON(path string, v any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "    ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-"+filepath.Base(path)+"-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // no-op after a successful rename

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		_ = tmp.Close() //nolint:errcheck // already failing
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// ReadResults loads the results stored in one batch file.
func ReadResults(path string) ([]cohort.MatchResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var results []cohort.MatchResult
	if err := json.Unmarshal(data, &results); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return results, nil
}
