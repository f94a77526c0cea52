package obfuscate

import (
	"bufio"
	"context"
	"fmt"

	"go.uber.org/zap"

	"obfuscate/internal/hashing"
	"obfuscate/internal/mapreduce"
)

// EnsureSalts makes sure a salt store exists at saltPath. An existing store
// is authoritative and left untouched: regenerating it would change every
// hash ever emitted. Otherwise one salt per non-empty line of secretsPath
// is generated and written in order. It reports whether salts were
// generated.
func EnsureSalts(ctx context.Context, fsys mapreduce.FileSystem, saltPath, secretsPath string, hasher hashing.Hasher, logger *zap.Logger) (bool, error) {
	exists, err := fsys.Exists(saltPath)
	if err != nil {
		return false, fmt.Errorf("failed to check salt store %s: %w", saltPath, err)
	}
	if exists {
		logger.Debug("Reusing existing salt store", zap.String("path", saltPath))
		return false, nil
	}

	count, err := CountLines(fsys, secretsPath)
	if err != nil {
		return false, fmt.Errorf("failed to count secrets: %w", err)
	}

	logger.Info("Generating salts", zap.Int("count", count), zap.String("path", saltPath))

	// Written aside and renamed so an interrupted run never leaves a
	// truncated store behind.
	tmpPath := saltPath + ".tmp"
	if err := writeSalts(ctx, fsys, tmpPath, count, hasher); err != nil {
		_, _ = fsys.Delete(tmpPath, false)
		return false, err
	}
	if err := fsys.Rename(tmpPath, saltPath); err != nil {
		return false, fmt.Errorf("failed to move salt store into place: %w", err)
	}
	return true, nil
}

func writeSalts(ctx context.Context, fsys mapreduce.FileSystem, path string, count int, hasher hashing.Hasher) error {
	out, err := fsys.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create salt store %s: %w", path, err)
	}
	w := bufio.NewWriter(out)

	for i := 0; i < count; i++ {
		if err := ctx.Err(); err != nil {
			_ = out.Close()
			return err
		}
		salt, err := hasher.GenerateSalt()
		if err != nil {
			_ = out.Close()
			return fmt.Errorf("failed to generate salt %d: %w", i, err)
		}
		if _, err := w.WriteString(salt + "\n"); err != nil {
			_ = out.Close()
			return fmt.Errorf("failed to write salt %d: %w", i, err)
		}
	}

	if err := w.Flush(); err != nil {
		_ = out.Close()
		return fmt.Errorf("failed to flush salt store: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to close salt store: %w", err)
	}
	return nil
}
