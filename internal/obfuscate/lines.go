package obfuscate

import (
	"bufio"
	"fmt"
	"io"

	"obfuscate/internal/mapreduce"
)

// ReadLines returns the non-empty lines of path in file order. Only
// zero-length lines are dropped; whitespace is significant.
func ReadLines(fsys mapreduce.FileSystem, path string) ([]string, error) {
	var lines []string
	err := scanLines(fsys, path, func(line string) {
		lines = append(lines, line)
	})
	if err != nil {
		return nil, err
	}
	return lines, nil
}

// CountLines returns the number of non-empty lines of path.
func CountLines(fsys mapreduce.FileSystem, path string) (int, error) {
	n := 0
	err := scanLines(fsys, path, func(string) { n++ })
	return n, err
}

func scanLines(fsys mapreduce.FileSystem, path string, fn func(line string)) error {
	f, err := fsys.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	if err := forEachLine(f, fn); err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	return nil
}

func forEachLine(r io.Reader, fn func(line string)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		if line := scanner.Text(); line != "" {
			fn(line)
		}
	}
	return scanner.Err()
}
