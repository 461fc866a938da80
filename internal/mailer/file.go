package mailer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const defaultOutputDir = "./mail_output"

// File writes every email as a .eml file in an output directory.
type File struct {
	outputDir string
}

// NewFile creates a File transport rooted at dir, or ./mail_output when empty.
func NewFile(dir string) *File {
	if dir == "" {
		dir = defaultOutputDir
	}
	return &File{outputDir: dir}
}

func (f *File) Name() string { return "file" }

// Send writes the message to <timestamp>_<message-id>.eml.
func (f *File) Send(_ context.Context, e *Email) (string, error) {
	if err := os.MkdirAll(f.outputDir, 0o750); err != nil {
		return "", fmt.Errorf("file: create output dir: %w", err)
	}

	raw, msgID := buildMessage(e, "file.local")

	ts := time.Now().Format("20060102_150405")
	path := filepath.Join(f.outputDir, fmt.Sprintf("%s_%d.eml", ts, e.MessageID))
	if err := os.WriteFile(path, raw, 0o640); err != nil {
		return "", fmt.Errorf("file: write %s: %w", path, err)
	}
	return msgID, nil
}

// HealthCheck verifies the output directory is writable.
func (f *File) HealthCheck(_ context.Context) error {
	if err := os.MkdirAll(f.outputDir, 0o750); err != nil {
		return fmt.Errorf("file: output dir not writable: %w", err)
	}
	marker := filepath.Join(f.outputDir, ".healthcheck")
	if err := os.WriteFile(marker, nil, 0o640); err != nil {
		return fmt.Errorf("file: output dir not writable: %w", err)
	}
	return os.Remove(marker)
}
