package obfuscate

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"obfuscate/internal/hashing"
	"obfuscate/internal/mapreduce"
)

// Mapper provides the per-task hooks of the obfuscation job. It holds no
// per-task state: Setup returns the task's HashTable and the runtime hands
// it back to every Map call.
type Mapper struct {
	SecretsPath string
	SaltPath    string
	Hasher      hashing.Hasher
	Logger      *zap.Logger

	replaced atomic.Int64
}

// Setup reads the vocabulary and the salt store and builds the hash table.
// Integrity problems with the artifacts are not retried.
func (m *Mapper) Setup(_ context.Context, fsys mapreduce.FileSystem) (*HashTable, error) {
	salts, err := ReadLines(fsys, m.SaltPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read salts: %w", err)
	}
	secrets, err := ReadLines(fsys, m.SecretsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read secrets: %w", err)
	}

	table, err := BuildTable(secrets, salts, m.Hasher)
	if err != nil {
		if errors.Is(err, ErrSaltsExhausted) || errors.Is(err, hashing.ErrMalformedSalt) {
			return nil, mapreduce.Permanent(err)
		}
		return nil, err
	}

	if table.Duplicates() > 0 {
		m.Logger.Warn("Secret vocabulary contains duplicates, each one consumed a salt",
			zap.Int("duplicates", table.Duplicates()))
	}
	if table.UnusedSalts() > 0 {
		m.Logger.Debug("Salt store has unused trailing salts", zap.Int("unused", table.UnusedSalts()))
	}
	return table, nil
}

// Map obfuscates a single record.
func (m *Mapper) Map(table *HashTable, record string) (string, error) {
	out, n := table.ReplaceCount(record)
	if n > 0 {
		m.replaced.Add(int64(n))
	}
	return out, nil
}

// Replaced returns the number of substitutions made so far, including
// those of attempts that were later retried.
func (m *Mapper) Replaced() int64 {
	return m.replaced.Load()
}
