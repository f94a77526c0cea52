package obfuscate

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"obfuscate/internal/hashing"
	"obfuscate/internal/mapreduce"
)

// Options configures one obfuscation run.
type Options struct {
	SecretsPath string
	SaltPath    string
	InputPath   string
	OutputPath  string

	// Job tunes the runtime; its Input and Output are taken from above.
	Job mapreduce.Config
}

// Report is the outcome of a run.
type Report struct {
	*mapreduce.Result
	SaltsGenerated bool
	Replaced       int64
}

// Run ensures the salt store, replaces any previous output and runs the
// map-only obfuscation job. Salt store errors abort before any task starts.
func Run(ctx context.Context, fsys mapreduce.FileSystem, opts Options, hasher hashing.Hasher, logger *zap.Logger) (*Report, error) {
	generated, err := EnsureSalts(ctx, fsys, opts.SaltPath, opts.SecretsPath, hasher, logger)
	if err != nil {
		return nil, err
	}

	removed, err := fsys.Delete(opts.OutputPath, true)
	if err != nil {
		return nil, fmt.Errorf("failed to delete previous output %s: %w", opts.OutputPath, err)
	}
	if removed {
		logger.Info("Deleted previous output", zap.String("path", opts.OutputPath))
	}

	cfg := opts.Job
	cfg.Input = opts.InputPath
	cfg.Output = opts.OutputPath

	job, err := mapreduce.NewJob[*HashTable](fsys, cfg, logger)
	if err != nil {
		return nil, err
	}

	mapper := &Mapper{
		SecretsPath: opts.SecretsPath,
		SaltPath:    opts.SaltPath,
		Hasher:      hasher,
		Logger:      logger.With(zap.String("job_id", job.ID())),
	}

	result, err := job.Run(ctx, mapper.Setup, mapper.Map)
	return &Report{Result: result, SaltsGenerated: generated, Replaced: mapper.Replaced()}, err
}
