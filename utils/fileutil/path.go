package fileutil

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// MaxReadSize bounds files read through SafeReadFile (sample lists, metadata)
const MaxReadSize = 64 << 20

// ExpandPath expands ~ and environment variables and returns a clean absolute path.
func ExpandPath(path string) (string, error) {
	if path == "" {
		return path, nil
	}

	path = os.ExpandEnv(path)

	if strings.HasPrefix(path, "~") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		if path == "~" {
			return homeDir, nil
		}
		if strings.HasPrefix(path, "~/") {
			return filepath.Join(homeDir, path[2:]), nil
		}
		// ~user is left alone
		return filepath.Clean(path), nil
	}

	if path == "-" {
		return path, nil
	}
	return filepath.Abs(path)
}

// SafeReadFile reads a whole file after expanding its path, refusing
// directories and files larger than MaxReadSize.
func SafeReadFile(path string) ([]byte, error) {
	expanded, err := ExpandPath(path)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(expanded)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}
	if info.Size() > MaxReadSize {
		return nil, fmt.Errorf("%s is too large (%d bytes, limit %d)", path, info.Size(), MaxReadSize)
	}
	return os.ReadFile(expanded)
}

// WriteLines writes one item per line, creating parent directories as needed
func WriteLines(path string, lines []string) error {
	expanded, err := ExpandPath(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0755); err != nil {
		return err
	}
	f, err := os.Create(expanded)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	for _, l := range lines {
		if _, err := io.WriteString(w, l+"\n"); err != nil {
			f.Close()
			return err
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
