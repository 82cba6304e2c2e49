// Package logging builds the process loggers: every component gets a
// *log.Logger with its own bracketed prefix, all writing to stderr and,
// when configured, to a size-rotated log file.
package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures log output. The zero value logs to stderr only.
type Options struct {
	// File is the rotated log file. Empty disables file output.
	File string

	// MaxSizeMB is the size at which the file is rotated (default 10)
	MaxSizeMB int

	// MaxBackups is the number of rotated files kept (default 3)
	MaxBackups int

	// MaxAgeDays removes rotated files older than this (0 keeps them)
	MaxAgeDays int

	// Quiet drops stderr output, keeping only the file.
	Quiet bool

	// Stderr overrides the console writer.
	Stderr io.Writer
}

// Logging owns the shared writer behind every component logger.
type Logging struct {
	out  io.Writer
	file *lumberjack.Logger
}

// Setup opens the log outputs described by opts.
func Setup(opts Options) (*Logging, error) {
	var writers []io.Writer
	if !opts.Quiet {
		stderr := opts.Stderr
		if stderr == nil {
			stderr = os.Stderr
		}
		writers = append(writers, stderr)
	}

	l := &Logging{}
	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		l.file = &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    orDefault(opts.MaxSizeMB, 10),
			MaxBackups: orDefault(opts.MaxBackups, 3),
			MaxAge:     opts.MaxAgeDays,
		}
		writers = append(writers, l.file)
	}

	switch len(writers) {
	case 0:
		l.out = io.Discard
	case 1:
		l.out = writers[0]
	default:
		l.out = io.MultiWriter(writers...)
	}
	return l, nil
}

// Logger returns a logger tagged "[name] ".
func (l *Logging) Logger(name string) *log.Logger {
	return log.New(l.out, "["+name+"] ", log.LstdFlags)
}

// Writer returns the shared output.
func (l *Logging) Writer() io.Writer {
	return l.out
}

// Rotate closes the current log file and starts a new one.
func (l *Logging) Rotate() error {
	if l.file == nil {
		return nil
	}
	return l.file.Rotate()
}

// Close flushes and closes the log file, if any.
func (l *Logging) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
