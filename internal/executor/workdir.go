package executor

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	workDirName = "tmp"
	runPrefix   = "run-"
)

// WorkRoot returns the work directory for sourcePath: a "tmp" directory
// next to the source file.
func WorkRoot(sourcePath string) string {
	return filepath.Join(filepath.Dir(sourcePath), workDirName)
}

// DefaultOutputPath returns where the result for sourcePath goes when no
// output is configured: <WorkRoot>/<stem>_fast<ext>.
func DefaultOutputPath(sourcePath string) string {
	base := filepath.Base(sourcePath)
	ext := filepath.Ext(base)
	return filepath.Join(WorkRoot(sourcePath), strings.TrimSuffix(base, ext)+"_fast"+ext)
}

// PrepareWorkDir creates root if needed. It succeeds when root already
// exists as a directory.
func PrepareWorkDir(root string) error {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return fmt.Errorf("executor: prepare work dir: %w", err)
	}
	return nil
}

// NewRunDir creates a uniquely named directory for one run under root, so
// concurrent runs on sources in the same directory never share segment
// files.
func NewRunDir(root string) (string, error) {
	if err := PrepareWorkDir(root); err != nil {
		return "", err
	}
	dir := RunDirPath(root)
	if err := os.Mkdir(dir, 0o755); err != nil {
		return "", fmt.Errorf("executor: create run dir: %w", err)
	}
	return dir, nil
}

// RunDirPath returns a fresh run directory path under root without creating
// it.
func RunDirPath(root string) string {
	return filepath.Join(root, runPrefix+uuid.NewString())
}

// CleanOrphans removes run directories under root whose modification time
// is older than maxAge. They are left behind by runs that were killed
// before cleanup. It returns how many were removed.
func CleanOrphans(root string, maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("executor: scan work dir: %w", err)
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), runPrefix) {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(root, e.Name())
		if err := os.RemoveAll(path); err != nil {
			slog.Warn("executor: failed to remove orphaned run dir", "path", path, "err", err)
			continue
		}
		removed++
	}
	return removed, nil
}
