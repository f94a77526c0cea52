package main

import (
	"fmt"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"obfuscate/internal/hashing"
	"obfuscate/internal/mapreduce"
)

// EnvPrefix prefixes environment variables overriding flags,
// e.g. OBFUSCATE_WORKERS or OBFUSCATE_SPLIT_SIZE.
const EnvPrefix = "OBFUSCATE"

// Options holds the tunables of a run.
type Options struct {
	Workers           int
	SplitSize         int64
	MaxAttempts       int
	RetryInterval     time.Duration
	OutputCompression string

	Argon2Memory  uint32 // in KB
	Argon2Time    uint32
	Argon2Threads uint8

	Verbose bool
}

func bindFlags(cmd *cobra.Command, v *viper.Viper) error {
	flags := cmd.Flags()
	flags.String("config", "", "YAML config file with the same keys as the flags")
	flags.IntP("workers", "w", runtime.NumCPU(), "number of tasks running in parallel")
	flags.String("split-size", "128M", "maximum input split size (e.g. 64M, 1G)")
	flags.Int("max-attempts", mapreduce.DefaultMaxAttempts, "attempts per task before the job fails")
	flags.Duration("retry-interval", mapreduce.DefaultRetryInterval, "initial delay between task attempts")
	flags.String("output-compression", mapreduce.CodecNone, "output codec: none, gzip or zstd")
	flags.StringP("argon2-memory", "m", "64M", "Argon2 memory cost of newly generated salts")
	flags.Uint32P("argon2-iterations", "i", hashing.DefaultArgon2Time, "Argon2 iterations of newly generated salts")
	flags.Uint8("argon2-threads", hashing.DefaultArgon2Threads, "Argon2 parallelism of newly generated salts")
	flags.BoolP("verbose", "v", false, "enable debug logging")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v.BindPFlags(flags)
}

// loadOptions reads the optional config file and resolves every option
// from flags, environment and file, in that order of precedence.
func loadOptions(v *viper.Viper) (Options, error) {
	if file := v.GetString("config"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return Options{}, fmt.Errorf("failed to read config %s: %w", file, err)
		}
	}

	splitSize, err := parseSize(v.GetString("split-size"))
	if err != nil {
		return Options{}, fmt.Errorf("invalid split size: %w", err)
	}
	memory, err := parseMemory(v.GetString("argon2-memory"))
	if err != nil {
		return Options{}, fmt.Errorf("invalid memory value: %w", err)
	}

	opts := Options{
		Workers:           v.GetInt("workers"),
		SplitSize:         int64(splitSize),
		MaxAttempts:       v.GetInt("max-attempts"),
		RetryInterval:     v.GetDuration("retry-interval"),
		OutputCompression: v.GetString("output-compression"),
		Argon2Memory:      memory,
		Argon2Time:        v.GetUint32("argon2-iterations"),
		Argon2Threads:     uint8(v.GetUint("argon2-threads")),
		Verbose:           v.GetBool("verbose"),
	}

	if opts.Workers < 1 {
		return Options{}, fmt.Errorf("workers must be at least 1")
	}
	if opts.MaxAttempts < 1 {
		return Options{}, fmt.Errorf("max attempts must be at least 1")
	}
	if opts.Argon2Time < 1 {
		return Options{}, fmt.Errorf("iterations must be at least 1")
	}
	if opts.Argon2Threads < 1 {
		return Options{}, fmt.Errorf("threads must be at least 1")
	}
	switch opts.OutputCompression {
	case mapreduce.CodecNone, mapreduce.CodecGzip, mapreduce.CodecZstd:
	default:
		return Options{}, fmt.Errorf("unsupported output compression: %s", opts.OutputCompression)
	}

	return opts, nil
}

func (o Options) hasher() *hashing.Argon2 {
	return &hashing.Argon2{
		Time:    o.Argon2Time,
		Memory:  o.Argon2Memory,
		Threads: o.Argon2Threads,
	}
}

func (o Options) jobConfig() mapreduce.Config {
	return mapreduce.Config{
		Workers:           o.Workers,
		SplitSize:         o.SplitSize,
		MaxAttempts:       o.MaxAttempts,
		RetryInterval:     o.RetryInterval,
		OutputCompression: o.OutputCompression,
	}
}

// parseSize parses size strings like "64", "64K", "64M", "64MB", "1G" into
// bytes. Bare numbers are treated as MB.
func parseSize(s string) (uint64, error) {
	s = strings.ToUpper(strings.TrimSpace(s))

	multiplier := uint64(1 << 20) // default MB

	if strings.HasSuffix(s, "GB") || strings.HasSuffix(s, "G") {
		multiplier = 1 << 30
		s = strings.TrimSuffix(strings.TrimSuffix(s, "GB"), "G")
	} else if strings.HasSuffix(s, "MB") || strings.HasSuffix(s, "M") {
		multiplier = 1 << 20
		s = strings.TrimSuffix(strings.TrimSuffix(s, "MB"), "M")
	} else if strings.HasSuffix(s, "KB") || strings.HasSuffix(s, "K") {
		multiplier = 1 << 10
		s = strings.TrimSuffix(strings.TrimSuffix(s, "KB"), "K")
	}

	val, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, err
	}
	if val == 0 {
		return 0, fmt.Errorf("size must be positive")
	}

	return val * multiplier, nil
}

// parseMemory parses an Argon2 memory cost and returns it in KB.
func parseMemory(s string) (uint32, error) {
	size, err := parseSize(s)
	if err != nil {
		return 0, err
	}

	result := size / 1024
	if result > 0xFFFFFFFF {
		return 0, fmt.Errorf("memory value too large")
	}

	if result < 1024 {
		return 0, fmt.Errorf("memory must be at least 1MB")
	}

	return uint32(result), nil
}
