package logger

import (
	"io"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

// DefaultLogDir holds per-process log files when no explicit path is set.
const DefaultLogDir = "logs"

// FileConfig holds rotation settings for one process's log file. The
// binaries share a config file, so each one rotates its own file unless a
// path is forced.
type FileConfig struct {
	// Path overrides the per-process file under DefaultLogDir.
	Path string
	// Process names the binary, e.g. "dispatcher" or "queue-worker".
	Process   string
	MaxSizeMB int
	MaxFiles  int
}

// FilePath returns the file the config writes to.
func (c FileConfig) FilePath() string {
	if c.Path != "" {
		return c.Path
	}
	name := c.Process
	if name == "" {
		name = "campaign-dispatch"
	}
	return filepath.Join(DefaultLogDir, name+".log")
}

// NewFileWriter returns a size-rotated writer. Rotated files are gzipped.
func NewFileWriter(cfg FileConfig) io.Writer {
	return &lumberjack.Logger{
		Filename:   cfg.FilePath(),
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxFiles,
		Compress:   true,
	}
}
