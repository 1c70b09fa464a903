// Package samples reads and reshapes lists of redbiom sample identifiers.
package samples

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/kris-hansen/redbiomctl/utils/fileutil"
)

// Transform rewrites an extracted identifier
type Transform string

const (
	TransformNone Transform = "none"
	// TransformShorten keeps the first two dot-separated fields:
	// 10317.000000001.1 becomes 10317.000000001
	TransformShorten Transform = "shorten"
	// TransformPrefix keeps everything before the first dot, i.e. the study
	TransformPrefix Transform = "prefix"
)

var ErrInvalidOptions = errors.New("invalid extract options")

// Options controls ExtractIDs
type Options struct {
	Column     int    // 1-based, default 1
	Delimiter  string // default tab
	Transform  Transform
	SkipHeader bool
	Unique     bool // drop repeats, keeping the first occurrence
}

// DefaultOptions matches a redbiom metadata TSV: first column, header skipped
func DefaultOptions() Options {
	return Options{Column: 1, Delimiter: "\t", Transform: TransformNone, SkipHeader: true}
}

// ParseTransform accepts "", none, shorten and prefix
func ParseTransform(s string) (Transform, error) {
	switch t := Transform(strings.ToLower(strings.TrimSpace(s))); t {
	case "", TransformNone:
		return TransformNone, nil
	case TransformShorten, TransformPrefix:
		return t, nil
	default:
		return "", fmt.Errorf("%w: unknown transform %q (use none, shorten or prefix)", ErrInvalidOptions, s)
	}
}

// Apply rewrites a single id
func (t Transform) Apply(id string) string {
	switch t {
	case TransformShorten:
		parts := strings.SplitN(id, ".", 3)
		if len(parts) >= 2 {
			return parts[0] + "." + parts[1]
		}
	case TransformPrefix:
		prefix, _, _ := strings.Cut(id, ".")
		return prefix
	}
	return id
}

// ExtractIDs pulls one column out of delimited text. Lines with too few
// fields are skipped.
func ExtractIDs(r io.Reader, opts Options) ([]string, error) {
	if opts.Column == 0 {
		opts.Column = 1
	}
	if opts.Column < 1 {
		return nil, fmt.Errorf("%w: column must be >= 1, got %d", ErrInvalidOptions, opts.Column)
	}
	if opts.Delimiter == "" {
		opts.Delimiter = "\t"
	}
	if _, err := ParseTransform(string(opts.Transform)); err != nil {
		return nil, err
	}

	var ids []string
	sc := newScanner(r)
	first := true
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if first {
			first = false
			if opts.SkipHeader {
				continue
			}
		}
		if line == "" {
			continue
		}
		fields := strings.Split(line, opts.Delimiter)
		if len(fields) < opts.Column {
			continue
		}
		ids = append(ids, opts.Transform.Apply(strings.TrimSpace(fields[opts.Column-1])))
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if opts.Unique {
		ids = Unique(ids)
	}
	return ids, nil
}

// ExtractFile runs ExtractIDs over a file and, when out is set, writes the ids
// one per line.
func ExtractFile(in, out string, opts Options) ([]string, error) {
	data, err := fileutil.SafeReadFile(in)
	if err != nil {
		return nil, err
	}
	ids, err := ExtractIDs(bytes.NewReader(data), opts)
	if err != nil {
		return nil, fmt.Errorf("extracting from %s: %w", in, err)
	}
	if out != "" {
		if err := fileutil.WriteLines(out, ids); err != nil {
			return nil, err
		}
	}
	return ids, nil
}

// ReadList reads a one-id-per-line file, ignoring blank lines and # comments
func ReadList(path string) ([]string, error) {
	data, err := fileutil.SafeReadFile(path)
	if err != nil {
		return nil, err
	}
	var ids []string
	sc := newScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		ids = append(ids, line)
	}
	return ids, sc.Err()
}

// Count returns the number of ids in a list file
func Count(path string) (int, error) {
	ids, err := ReadList(path)
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}

// Unique drops repeated ids, keeping first occurrences
func Unique(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := ids[:0:0]
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func newScanner(r io.Reader) *bufio.Scanner {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	return sc
}
