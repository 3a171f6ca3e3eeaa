package file

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/crimson-sun/mailclass/internal/output"
)

const (
	defaultBufSize = 64 * 1024
	defaultBackups = 9
)

// Option configures a file Output.
type Option func(*Output)

// WithMaxSize sets the file size (bytes) at which rotation triggers.
// 0 (default) disables rotation.
func WithMaxSize(bytes int64) Option {
	return func(o *Output) { o.maxSize = bytes }
}

// WithBackups sets how many rotated files ({path}.1 .. {path}.n) are kept.
// Default: 9.
func WithBackups(n int) Option {
	return func(o *Output) { o.backups = n }
}

// WithBufSize sets the bufio.Writer buffer size. Default: 64KB.
func WithBufSize(bytes int) Option {
	return func(o *Output) { o.bufSize = bytes }
}

// Output appends NDJSON records to a file with buffered I/O and optional
// size-based rotation.
type Output struct {
	mu        sync.Mutex
	w         *bufio.Writer
	f         *os.File
	path      string
	verbosity output.Verbosity
	maxSize   int64 // 0 = no rotation
	written   int64
	backups   int
	bufSize   int
}

// New opens (or creates) path for appending, creating parent directories.
func New(path string, verbosity output.Verbosity, opts ...Option) (*Output, error) {
	o := &Output{
		path:      path,
		verbosity: verbosity,
		backups:   defaultBackups,
		bufSize:   defaultBufSize,
	}
	for _, opt := range opts {
		opt(o)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("file output: %w", err)
	}
	if err := o.openFile(); err != nil {
		return nil, err
	}
	return o, nil
}

// Write appends rec as one JSON line, rotating first if the line would push
// the file past its size limit.
func (o *Output) Write(_ context.Context, rec output.Record) error {
	data, err := json.Marshal(output.FormatRecord(rec, o.verbosity))
	if err != nil {
		return fmt.Errorf("file output: marshal: %w", err)
	}
	data = append(data, '\n')

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.maxSize > 0 && o.written > 0 && o.written+int64(len(data)) > o.maxSize {
		if err := o.rotate(); err != nil {
			return fmt.Errorf("file output: rotate: %w", err)
		}
	}

	n, err := o.w.Write(data)
	o.written += int64(n)
	if err != nil {
		return fmt.Errorf("file output: write: %w", err)
	}
	return nil
}

// Close flushes the buffer and closes the file.
func (o *Output) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.w.Flush(); err != nil {
		o.f.Close()
		return fmt.Errorf("file output: flush: %w", err)
	}
	return o.f.Close()
}

func (o *Output) openFile() error {
	f, err := os.OpenFile(o.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("file output: open %s: %w", o.path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("file output: stat %s: %w", o.path, err)
	}
	o.f = f
	o.w = bufio.NewWriterSize(f, o.bufSize)
	o.written = info.Size()
	return nil
}

// rotate shifts {path}.n-1 to {path}.n down to {path} to {path}.1, dropping
// the oldest, and reopens an empty file.
func (o *Output) rotate() error {
	if err := o.w.Flush(); err != nil {
		return err
	}
	if err := o.f.Close(); err != nil {
		return err
	}

	if o.backups > 0 {
		os.Remove(fmt.Sprintf("%s.%d", o.path, o.backups))
		for i := o.backups - 1; i >= 1; i-- {
			os.Rename(fmt.Sprintf("%s.%d", o.path, i), fmt.Sprintf("%s.%d", o.path, i+1)) // may not exist
		}
		if err := os.Rename(o.path, o.path+".1"); err != nil {
			return err
		}
	} else if err := os.Truncate(o.path, 0); err != nil {
		return err
	}

	return o.openFile()
}
