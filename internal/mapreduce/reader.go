package mapreduce

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/multierr"
)

const readBufferSize = 1024 * 1024 // 1MB buffer

// LineReader yields the records (lines) owned by one split.
type LineReader struct {
	file File
	body io.ReadCloser
	r    *bufio.Reader

	pos  int64
	end  int64
	done bool
}

// OpenSplit positions a reader at the first line owned by s.
func OpenSplit(fsys FileSystem, s Split) (*LineReader, error) {
	f, err := fsys.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", s.Path, err)
	}

	body, err := codecFor(s.Path).newReader(f)
	if err != nil {
		_ = f.Close()
		return nil, err
	}

	lr := &LineReader{file: f, body: body, end: s.End}

	if s.Start > 0 {
		// Back up one byte so a line beginning exactly at Start is kept:
		// the discarded fragment is then just the preceding newline.
		if _, err := f.Seek(s.Start-1, io.SeekStart); err != nil {
			_ = lr.Close()
			return nil, fmt.Errorf("failed to seek %s to %d: %w", s.Path, s.Start-1, err)
		}
		lr.pos = s.Start - 1
	}
	lr.r = bufio.NewReaderSize(body, readBufferSize)

	if s.Start > 0 {
		fragment, err := lr.r.ReadString('\n')
		lr.pos += int64(len(fragment))
		if errors.Is(err, io.EOF) {
			lr.done = true
		} else if err != nil {
			_ = lr.Close()
			return nil, fmt.Errorf("failed to read %s: %w", s.Path, err)
		}
	}

	return lr, nil
}

// Next returns the next record without its line terminator. ok is false
// once the split is exhausted.
func (l *LineReader) Next() (line string, ok bool, err error) {
	if l.done || (l.end >= 0 && l.pos >= l.end) {
		return "", false, nil
	}

	line, err = l.r.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", false, err
	}
	if errors.Is(err, io.EOF) {
		l.done = true
		if line == "" {
			return "", false, nil
		}
	}
	l.pos += int64(len(line))

	line = strings.TrimSuffix(line, "\n")
	line = strings.TrimSuffix(line, "\r")
	return line, true, nil
}

func (l *LineReader) Close() error {
	return multierr.Append(l.body.Close(), l.file.Close())
}
