package log

import (
	"io"

	"gopkg.in/natefinch/lumberjack.v2"
)

// FileConfig configures a size-rotated log file.
type FileConfig struct {
	Path string
	// MaxSize is the size in megabytes at which the file is rotated.
	MaxSize    int
	MaxBackups int
	// MaxAge is the number of days rotated files are kept. Zero keeps them.
	MaxAge   int
	Compress bool
}

// NewFileOutput returns a writer appending to cfg.Path and rotating it.
// The file is opened on the first write.
func NewFileOutput(cfg FileConfig) io.WriteCloser {
	return &lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   cfg.Compress,
		LocalTime:  true,
	}
}
