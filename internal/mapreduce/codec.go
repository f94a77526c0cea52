package mapreduce

import (
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Codec names accepted by Config.OutputCompression.
const (
	CodecNone = "none"
	CodecGzip = "gzip"
	CodecZstd = "zstd"
)

type codec int

const (
	codecNone codec = iota
	codecGzip
	codecZstd
)

func codecFor(path string) codec {
	switch {
	case strings.HasSuffix(path, ".gz"):
		return codecGzip
	case strings.HasSuffix(path, ".zst"):
		return codecZstd
	default:
		return codecNone
	}
}

func parseCodec(name string) (codec, error) {
	switch name {
	case "", CodecNone:
		return codecNone, nil
	case CodecGzip:
		return codecGzip, nil
	case CodecZstd:
		return codecZstd, nil
	default:
		return codecNone, fmt.Errorf("unsupported compression codec: %s", name)
	}
}

func (c codec) extension() string {
	switch c {
	case codecGzip:
		return ".gz"
	case codecZstd:
		return ".zst"
	default:
		return ""
	}
}

func (c codec) newReader(r io.Reader) (io.ReadCloser, error) {
	switch c {
	case codecGzip:
		gr, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("failed to create gzip reader: %w", err)
		}
		return gr, nil
	case codecZstd:
		zr, err := zstd.NewReader(r,
			zstd.WithDecoderMaxMemory(1<<30),
			zstd.WithDecoderConcurrency(1),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd.Decoder: %w", err)
		}
		return zr.IOReadCloser(), nil
	default:
		return io.NopCloser(r), nil
	}
}

func (c codec) newWriter(w io.Writer) (io.WriteCloser, error) {
	switch c {
	case codecGzip:
		return gzip.NewWriter(w), nil
	case codecZstd:
		zw, err := zstd.NewWriter(w,
			zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(3)),
			zstd.WithEncoderConcurrency(1),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd.Encoder: %w", err)
		}
		return zw, nil
	default:
		return &nopCloser{w}, nil
	}
}

// nopCloser wraps a Writer to provide a no-op Close method
type nopCloser struct {
	io.Writer
}

func (n *nopCloser) Close() error {
	return nil
}
