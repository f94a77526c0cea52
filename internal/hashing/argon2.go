package hashing

import (
	"encoding/base64"
	"errors"
	"fmt"
	"runtime"
	"strings"

	"github.com/tink-crypto/tink-go/v2/subtle/random"
	"golang.org/x/crypto/argon2"
)

const (
	// Argon2id fixed parameters
	Argon2KeyLen = 32
	SaltLen      = 16

	DefaultArgon2Time    = 3
	DefaultArgon2Memory  = 64 * 1024 // 64 MB in KB
	DefaultArgon2Threads = 4

	algorithm = "argon2id"
)

// ErrMalformedSalt is returned when a salt line cannot be parsed.
var ErrMalformedSalt = errors.New("malformed salt")

// Hasher generates salts and derives salted hashes of secrets.
// Hash must be deterministic for a given (secret, salt) pair and its
// output must not contain a newline.
type Hasher interface {
	GenerateSalt() (string, error)
	Hash(secret, salt string) (string, error)
}

// Argon2 is a Hasher backed by Argon2id.
//
// Salts are self-describing: every salt line carries the cost parameters it
// was generated with, so hashing never depends on the current configuration.
//
//	$argon2id$v=19$m=65536,t=3,p=4$<base64 salt>
//
// Hashes are the salt line followed by "$<base64 key>".
type Argon2 struct {
	Time    uint32
	Memory  uint32 // in KB
	Threads uint8
}

// NewArgon2 returns an Argon2 hasher with default cost parameters.
func NewArgon2() *Argon2 {
	return &Argon2{
		Time:    DefaultArgon2Time,
		Memory:  DefaultArgon2Memory,
		Threads: DefaultArgon2Threads,
	}
}

func (a *Argon2) GenerateSalt() (string, error) {
	if a.Time < 1 {
		return "", fmt.Errorf("iterations must be at least 1")
	}
	if a.Threads < 1 {
		return "", fmt.Errorf("threads must be at least 1")
	}
	if a.Memory < 8*uint32(a.Threads) {
		return "", fmt.Errorf("memory must be at least %d KB for %d threads", 8*uint32(a.Threads), a.Threads)
	}

	p := params{time: a.Time, memory: a.Memory, threads: a.Threads}
	salt := random.GetRandomBytes(SaltLen)
	return p.encode(salt), nil
}

func (a *Argon2) Hash(secret, salt string) (string, error) {
	p, rawSalt, err := parseSalt(salt)
	if err != nil {
		return "", err
	}

	key := deriveKey([]byte(secret), rawSalt, p.time, p.memory, p.threads, Argon2KeyLen)
	defer zeroBytes(key)

	return salt + "$" + base64.RawStdEncoding.EncodeToString(key), nil
}

// deriveKey derives a key from a secret using Argon2id
func deriveKey(secret, salt []byte, time, memory uint32, threads uint8, keyLen uint32) []byte {
	return argon2.IDKey(secret, salt, time, memory, threads, keyLen)
}

type params struct {
	time    uint32
	memory  uint32
	threads uint8
}

func (p params) encode(salt []byte) string {
	return fmt.Sprintf("$%s$v=%d$m=%d,t=%d,p=%d$%s",
		algorithm, argon2.Version, p.memory, p.time, p.threads,
		base64.RawStdEncoding.EncodeToString(salt))
}

func parseSalt(s string) (params, []byte, error) {
	// "", "argon2id", "v=19", "m=..,t=..,p=..", "<salt>"
	parts := strings.Split(s, "$")
	if len(parts) != 5 || parts[0] != "" {
		return params{}, nil, fmt.Errorf("%w: expected 4 '$'-separated fields", ErrMalformedSalt)
	}
	if parts[1] != algorithm {
		return params{}, nil, fmt.Errorf("%w: unsupported algorithm %q", ErrMalformedSalt, parts[1])
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return params{}, nil, fmt.Errorf("%w: invalid version field %q", ErrMalformedSalt, parts[2])
	}
	if version != argon2.Version {
		return params{}, nil, fmt.Errorf("%w: unsupported argon2 version %d", ErrMalformedSalt, version)
	}

	var p params
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.memory, &p.time, &p.threads); err != nil {
		return params{}, nil, fmt.Errorf("%w: invalid parameters %q", ErrMalformedSalt, parts[3])
	}
	if p.time < 1 || p.threads < 1 || p.memory < 8*uint32(p.threads) {
		return params{}, nil, fmt.Errorf("%w: out of range parameters %q", ErrMalformedSalt, parts[3])
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return params{}, nil, fmt.Errorf("%w: invalid salt encoding: %v", ErrMalformedSalt, err)
	}
	if len(salt) == 0 {
		return params{}, nil, fmt.Errorf("%w: empty salt", ErrMalformedSalt)
	}

	return p, salt, nil
}

// zeroBytes overwrites a byte slice with zeros
func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
	runtime.KeepAlive(b)
}
