package export

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// FileSink persists scheduled report snapshots as timestamped JSON files
// under a single directory.
type FileSink struct {
	dir string
}

// NewFileSink ensures dir exists and returns a sink writing into it.
func NewFileSink(dir string) (*FileSink, error) {
	if dir == "" {
		return nil, fmt.Errorf("report directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create report directory: %w", err)
	}
	return &FileSink{dir: dir}, nil
}

// WriteReport writes payload to <dir>/<slug>-<timestamp>.json via a
// temporary file and rename, so readers never observe a partial report.
func (s *FileSink) WriteReport(slug string, generatedAt time.Time, payload []byte) (string, error) {
	name := fmt.Sprintf("%s-%s.json", slug, generatedAt.UTC().Format("20060102T150405Z"))
	path := filepath.Join(s.dir, name)

	tmp, err := os.CreateTemp(s.dir, name+".tmp-*")
	if err != nil {
		return "", fmt.Errorf("create report file: %w", err)
	}
	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("write report file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("close report file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("publish report file: %w", err)
	}
	return path, nil
}
