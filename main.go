package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"obfuscate/internal/mapreduce"
	"obfuscate/internal/obfuscate"
)

const Version = "1.0.0"

// Exit codes
const (
	exitOK        = 0
	exitUsage     = 1
	exitJobFailed = 2
)

// usageError marks errors caused by the invocation rather than the job.
type usageError struct {
	err error
}

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd := newRootCmd(stdout, stderr)
	cmd.SetArgs(args)

	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return exitOK
	}

	var usageErr *usageError
	if errors.As(err, &usageErr) {
		printUsage(stderr)
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitUsage
	}

	fmt.Fprintf(stderr, "Job finished with errors: %v\n", err)
	return exitJobFailed
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:     "obfuscate <secretsPath> <saltFilePath> <inputPath> <outputPath>",
		Short:   "Replace known secrets in text corpora with salted hashes",
		Version: Version,
		Args: func(_ *cobra.Command, args []string) error {
			if len(args) < 4 {
				return &usageError{fmt.Errorf("expected 4 arguments, got %d", len(args))}
			}
			return nil
		},
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := loadOptions(v)
			if err != nil {
				return &usageError{err}
			}

			logger := newLogger(stderr, opts.Verbose)
			defer func() { _ = logger.Sync() }()

			return obfuscateCorpus(cmd.Context(), args, opts, logger, stdout)
		},
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &usageError{err}
	})
	cmd.SetHelpFunc(func(*cobra.Command, []string) {
		printUsage(stdout)
	})

	if err := bindFlags(cmd, v); err != nil {
		panic(err)
	}
	return cmd
}

func obfuscateCorpus(ctx context.Context, args []string, opts Options, logger *zap.Logger, stdout io.Writer) error {
	started := time.Now()

	report, err := obfuscate.Run(ctx, mapreduce.LocalFS{}, obfuscate.Options{
		SecretsPath: args[0],
		SaltPath:    args[1],
		InputPath:   args[2],
		OutputPath:  args[3],
		Job:         opts.jobConfig(),
	}, opts.hasher(), logger)
	if err != nil {
		return err
	}

	logger.Info("Obfuscation finished",
		zap.String("job_id", report.JobID),
		zap.Bool("salts_generated", report.SaltsGenerated),
		zap.Int("splits", report.Splits),
		zap.Int64("records", report.Records),
		zap.Int64("replaced", report.Replaced))
	fmt.Fprintf(stdout, "Done obfuscating - took %d seconds.\n", int(time.Since(started).Seconds()))
	return nil
}

func printUsage(w io.Writer) {
	usage := `obfuscate - Replace known secrets in text corpora with salted hashes

USAGE:
    obfuscate [options] <secretsPath> <saltFilePath> <inputPath> <outputPath>

ARGUMENTS:
    secretsPath     Secret vocabulary, one secret per line
    saltFilePath    Salt store, one salt per line; generated if missing
    inputPath       Input file or directory of files (.gz and .zst are decompressed)
    outputPath      Output directory; replaced if it exists

OPTIONS:
    --workers=N, -w N             Tasks running in parallel (default: number of CPUs)
    --split-size=SIZE             Maximum input split size (default: 128M)
    --max-attempts=N              Attempts per task (default: 4)
    --retry-interval=DURATION     Initial delay between attempts (default: 1s)
    --output-compression=CODEC    none, gzip or zstd (default: none)
    --argon2-memory=SIZE, -m      Argon2 memory cost of new salts (default: 64M)
    --argon2-iterations=N, -i     Argon2 iterations of new salts (default: 3)
    --argon2-threads=N            Argon2 parallelism of new salts (default: 4)
    --config=FILE                 YAML file with the same keys as the options
    --verbose, -v                 Enable debug logging
    --help, -h                    Show this help message
    --version                     Show version information

ENVIRONMENT:
    Every option can be set as OBFUSCATE_<OPTION>, e.g. OBFUSCATE_SPLIT_SIZE=64M.

EXIT STATUS:
    0  success
    1  usage error
    2  job failure

NOTES:
    - Existing salt stores are never regenerated; keep them to get the same
      hashes across runs.
    - Secrets are replaced in vocabulary order, so a secret that is part of
      a later secret is replaced first.

`
	fmt.Fprint(w, usage)
}
