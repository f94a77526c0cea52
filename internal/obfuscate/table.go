package obfuscate

import (
	"errors"
	"fmt"
	"strings"

	"obfuscate/internal/hashing"
)

// ErrSaltsExhausted is returned when the salt store has fewer entries than
// the secret vocabulary.
var ErrSaltsExhausted = errors.New("salt store has fewer entries than the secret vocabulary")

type entry struct {
	secret string
	hash   string
}

// HashTable maps secrets to their salted hashes. It is immutable once
// built and safe for concurrent use.
//
// Entries are kept in vocabulary order of first occurrence, which is the
// order Replace applies them in.
type HashTable struct {
	entries    []entry
	duplicates int
	unusedSalt int
}

// BuildTable pairs secrets[i] with salts[i] and hashes each secret. Both
// slices must already be filtered of empty lines. A duplicate secret
// consumes its own salt; its later hash replaces the earlier one without
// moving the entry. Extra salts are ignored.
func BuildTable(secrets, salts []string, hasher hashing.Hasher) (*HashTable, error) {
	t := &HashTable{entries: make([]entry, 0, len(secrets))}
	index := make(map[string]int, len(secrets))

	for i, secret := range secrets {
		if i >= len(salts) {
			return nil, fmt.Errorf("%w: secret %d of %d has no salt (%d salts)", ErrSaltsExhausted, i+1, len(secrets), len(salts))
		}

		hash, err := hasher.Hash(secret, salts[i])
		if err != nil {
			return nil, fmt.Errorf("failed to hash secret %d: %w", i+1, err)
		}

		if pos, ok := index[secret]; ok {
			t.entries[pos].hash = hash
			t.duplicates++
			continue
		}
		index[secret] = len(t.entries)
		t.entries = append(t.entries, entry{secret: secret, hash: hash})
	}

	if len(salts) > len(secrets) {
		t.unusedSalt = len(salts) - len(secrets)
	}
	return t, nil
}

// Len returns the number of distinct secrets.
func (t *HashTable) Len() int {
	return len(t.entries)
}

// Duplicates returns how many vocabulary lines repeated an earlier secret.
func (t *HashTable) Duplicates() int {
	return t.duplicates
}

// UnusedSalts returns how many trailing salts had no matching secret.
func (t *HashTable) UnusedSalts() int {
	return t.unusedSalt
}

// Lookup returns the hash of secret.
func (t *HashTable) Lookup(secret string) (string, bool) {
	for _, e := range t.entries {
		if e.secret == secret {
			return e.hash, true
		}
	}
	return "", false
}

// Replace substitutes every literal occurrence of every secret in record
// with its hash. Secrets are applied one after another in table order, each
// on the output of the previous one, so a secret that is a substring of a
// later secret wins over it.
func (t *HashTable) Replace(record string) string {
	out, _ := t.ReplaceCount(record)
	return out
}

// ReplaceCount is Replace that also reports the number of substitutions.
func (t *HashTable) ReplaceCount(record string) (string, int) {
	total := 0
	for _, e := range t.entries {
		n := strings.Count(record, e.secret)
		if n == 0 {
			continue
		}
		record = strings.ReplaceAll(record, e.secret, e.hash)
		total += n
	}
	return record, total
}
