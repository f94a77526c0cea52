package mapreduce

import (
	"fmt"
	"path/filepath"
	"strings"
)

// DefaultSplitSize matches a typical distributed filesystem block.
const DefaultSplitSize = 128 << 20

// Split is a contiguous byte range of one input file. A split owns every
// line whose first byte lies in [Start, End). Compressed files are never
// split; their single split has End == -1 and is read to EOF.
type Split struct {
	Index int
	Path  string
	Start int64
	End   int64
}

func (s Split) String() string {
	return fmt.Sprintf("%s:%d+%d", s.Path, s.Start, s.Length())
}

// Length returns the byte length of the split, or -1 when unbounded.
func (s Split) Length() int64 {
	if s.End < 0 {
		return -1
	}
	return s.End - s.Start
}

// isHidden filters out bookkeeping files such as _SUCCESS or .crc files.
func isHidden(path string) bool {
	base := filepath.Base(path)
	return strings.HasPrefix(base, "_") || strings.HasPrefix(base, ".")
}

// ComputeSplits lists the input (a file or a directory of files) and cuts
// every plain file into ranges of at most splitSize bytes. Splits are
// numbered in path order.
func ComputeSplits(fsys FileSystem, input string, splitSize int64) ([]Split, error) {
	if splitSize <= 0 {
		return nil, fmt.Errorf("split size must be positive, got %d", splitSize)
	}

	info, err := fsys.Stat(input)
	if err != nil {
		return nil, fmt.Errorf("failed to stat input %s: %w", input, err)
	}

	files := []FileInfo{info}
	if info.IsDir {
		children, err := fsys.List(input)
		if err != nil {
			return nil, fmt.Errorf("failed to list input %s: %w", input, err)
		}
		files = files[:0]
		for _, c := range children {
			if c.IsDir || isHidden(c.Path) {
				continue
			}
			files = append(files, c)
		}
	}

	var splits []Split
	for _, f := range files {
		if codecFor(f.Path) != codecNone || f.Size == 0 {
			splits = append(splits, Split{Index: len(splits), Path: f.Path, Start: 0, End: unbounded(f)})
			continue
		}
		for start := int64(0); start < f.Size; start += splitSize {
			end := min(start+splitSize, f.Size)
			splits = append(splits, Split{Index: len(splits), Path: f.Path, Start: start, End: end})
		}
	}
	return splits, nil
}

func unbounded(f FileInfo) int64 {
	if codecFor(f.Path) != codecNone {
		return -1
	}
	return f.Size
}
