package mapreduce

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/atomic"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	SuccessMarker = "_SUCCESS"
	temporaryDir  = "_temporary"

	DefaultMaxAttempts   = 4
	DefaultRetryInterval = time.Second

	writeBufferSize = 1024 * 1024 // 1MB buffer
)

// ErrOutputExists is returned when the output path is already present.
// Callers replacing previous results delete it before running the job.
var ErrOutputExists = errors.New("output path already exists")

// SetupFunc prepares per-task state. It runs exactly once per task attempt,
// before the first record of the attempt is mapped.
type SetupFunc[S any] func(ctx context.Context, fsys FileSystem) (S, error)

// MapFunc transforms one record. Returning an error fails the attempt.
type MapFunc[S any] func(state S, record string) (string, error)

// Config describes a map-only job.
type Config struct {
	Input  string
	Output string

	// Workers bounds the number of tasks running at once.
	Workers   int
	SplitSize int64
	// MaxAttempts is the number of times a task is tried before the job
	// fails. Errors wrapped with Permanent are never retried.
	MaxAttempts       int
	RetryInterval     time.Duration
	OutputCompression string
}

// Result summarizes a finished job.
type Result struct {
	JobID    string
	Splits   int
	Attempts int64
	Records  int64
	Duration time.Duration
}

// TaskError reports a task that failed all of its attempts.
type TaskError struct {
	Split    Split
	Attempts int
	Err      error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("task %d (%s) failed after %d attempt(s): %v", e.Split.Index, e.Split, e.Attempts, e.Err)
}

func (e *TaskError) Unwrap() error {
	return e.Err
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// PartName returns the output file name of the task with the given index.
func PartName(index int, ext string) string {
	return fmt.Sprintf("part-m-%05d%s", index, ext)
}

// Job runs a map-only transformation over line-oriented input files.
type Job[S any] struct {
	fs     FileSystem
	config Config
	logger *zap.Logger
	id     string
	codec  codec

	attempts atomic.Int64
	records  atomic.Int64
}

func NewJob[S any](fsys FileSystem, config Config, logger *zap.Logger) (*Job[S], error) {
	if config.Input == "" || config.Output == "" {
		return nil, fmt.Errorf("input and output paths are required")
	}
	if config.Workers <= 0 {
		config.Workers = 1
	}
	if config.SplitSize <= 0 {
		config.SplitSize = DefaultSplitSize
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = DefaultMaxAttempts
	}
	if config.RetryInterval <= 0 {
		config.RetryInterval = DefaultRetryInterval
	}

	c, err := parseCodec(config.OutputCompression)
	if err != nil {
		return nil, err
	}

	id := uuid.New().String()
	return &Job[S]{
		fs:     fsys,
		config: config,
		logger: logger.With(zap.String("job_id", id)),
		id:     id,
		codec:  c,
	}, nil
}

// ID returns the unique identifier of this job run.
func (j *Job[S]) ID() string {
	return j.id
}

// Run splits the input, maps every split in parallel and commits one part
// file per split. The success marker is written only when every task
// committed.
func (j *Job[S]) Run(ctx context.Context, setup SetupFunc[S], mapFn MapFunc[S]) (*Result, error) {
	started := time.Now()

	exists, err := j.fs.Exists(j.config.Output)
	if err != nil {
		return nil, fmt.Errorf("failed to check output %s: %w", j.config.Output, err)
	}
	if exists {
		return nil, fmt.Errorf("%w: %s", ErrOutputExists, j.config.Output)
	}

	splits, err := ComputeSplits(j.fs, j.config.Input, j.config.SplitSize)
	if err != nil {
		return nil, err
	}
	if err := j.fs.MkdirAll(j.config.Output); err != nil {
		return nil, fmt.Errorf("failed to create output %s: %w", j.config.Output, err)
	}

	j.logger.Info("Starting job",
		zap.String("input", j.config.Input),
		zap.String("output", j.config.Output),
		zap.Int("splits", len(splits)),
		zap.Int("workers", j.config.Workers))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(j.config.Workers)
	for _, s := range splits {
		if gctx.Err() != nil {
			break
		}
		s := s
		g.Go(func() error {
			return j.runTask(gctx, s, setup, mapFn)
		})
	}
	runErr := g.Wait()
	if runErr == nil && ctx.Err() != nil {
		runErr = ctx.Err()
	}

	if _, err := j.fs.Delete(filepath.Join(j.config.Output, temporaryDir), true); err != nil {
		j.logger.Warn("Failed to clean up temporary output", zap.Error(err))
	}

	result := &Result{
		JobID:    j.id,
		Splits:   len(splits),
		Attempts: j.attempts.Load(),
		Records:  j.records.Load(),
		Duration: time.Since(started),
	}
	if runErr != nil {
		return result, runErr
	}

	if err := j.writeSuccessMarker(); err != nil {
		return result, err
	}

	j.logger.Info("Job finished",
		zap.Int64("records", result.Records),
		zap.Int64("attempts", result.Attempts),
		zap.Duration("duration", result.Duration))
	return result, nil
}

func (j *Job[S]) runTask(ctx context.Context, s Split, setup SetupFunc[S], mapFn MapFunc[S]) error {
	logger := j.logger.With(zap.Int("task", s.Index), zap.Stringer("split", s))

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = j.config.RetryInterval
	b.MaxInterval = 30 * j.config.RetryInterval
	b.MaxElapsedTime = 0

	attempt := 0
	err := backoff.RetryNotify(func() error {
		attempt++
		j.attempts.Inc()

		records, err := j.runAttempt(ctx, s, attempt, setup, mapFn)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return err
		}

		j.records.Add(records)
		logger.Debug("Task committed", zap.Int("attempt", attempt), zap.Int64("records", records))
		return nil
	}, backoff.WithContext(backoff.WithMaxRetries(b, uint64(j.config.MaxAttempts-1)), ctx),
		func(err error, next time.Duration) {
			logger.Warn("Task attempt failed, will retry",
				zap.Int("attempt", attempt), zap.Error(err), zap.Duration("backoff", next))
		})
	if err != nil {
		logger.Error("Task failed", zap.Int("attempts", attempt), zap.Error(err))
		return &TaskError{Split: s, Attempts: attempt, Err: err}
	}
	return nil
}

// runAttempt maps a whole split into a private attempt file and renames it
// into the output directory only after every record was written.
func (j *Job[S]) runAttempt(ctx context.Context, s Split, attempt int, setup SetupFunc[S], mapFn MapFunc[S]) (int64, error) {
	state, err := setup(ctx, j.fs)
	if err != nil {
		return 0, fmt.Errorf("setup failed: %w", err)
	}

	reader, err := OpenSplit(j.fs, s)
	if err != nil {
		return 0, err
	}
	defer reader.Close()

	part := PartName(s.Index, j.codec.extension())
	attemptPath := filepath.Join(j.config.Output, temporaryDir, j.id,
		fmt.Sprintf("attempt_%05d_%d", s.Index, attempt), part)

	out, err := j.fs.Create(attemptPath)
	if err != nil {
		return 0, fmt.Errorf("failed to create %s: %w", attemptPath, err)
	}
	buf := bufio.NewWriterSize(out, writeBufferSize)
	w, err := j.codec.newWriter(buf)
	if err != nil {
		_ = out.Close()
		return 0, err
	}

	records, err := copyRecords(ctx, reader, w, state, mapFn)
	if err != nil {
		_ = multierr.Append(w.Close(), out.Close())
		return records, err
	}

	if err := w.Close(); err != nil {
		_ = out.Close()
		return records, fmt.Errorf("failed to finalize output: %w", err)
	}
	if err := buf.Flush(); err != nil {
		_ = out.Close()
		return records, fmt.Errorf("failed to flush output: %w", err)
	}
	if err := out.Close(); err != nil {
		return records, fmt.Errorf("failed to close %s: %w", attemptPath, err)
	}

	if err := j.fs.Rename(attemptPath, filepath.Join(j.config.Output, part)); err != nil {
		return records, fmt.Errorf("failed to commit %s: %w", part, err)
	}
	return records, nil
}

func copyRecords[S any](ctx context.Context, reader *LineReader, w io.Writer, state S, mapFn MapFunc[S]) (int64, error) {
	var n int64
	for {
		if n%1024 == 0 && ctx.Err() != nil {
			return n, ctx.Err()
		}

		line, ok, err := reader.Next()
		if err != nil {
			return n, fmt.Errorf("failed to read record %d: %w", n, err)
		}
		if !ok {
			return n, nil
		}

		mapped, err := mapFn(state, line)
		if err != nil {
			return n, fmt.Errorf("failed to map record %d: %w", n, err)
		}
		if _, err := io.WriteString(w, mapped); err != nil {
			return n, fmt.Errorf("failed to write record %d: %w", n, err)
		}
		if _, err := io.WriteString(w, "\n"); err != nil {
			return n, fmt.Errorf("failed to write record %d: %w", n, err)
		}
		n++
	}
}

func (j *Job[S]) writeSuccessMarker() error {
	path := filepath.Join(j.config.Output, SuccessMarker)
	w, err := j.fs.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	return nil
}
