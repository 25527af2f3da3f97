package exporting

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"InstrCount/pkg/intercept"
)

// LaunchLog writes one row per launch exit. It implements intercept.Recorder.
type LaunchLog struct {
	path    string
	format  string
	session string
	writer  Writer
	now     func() time.Time
	rows    int
}

// LaunchLogOption configures a LaunchLog.
type LaunchLogOption func(*LaunchLog)

// WithSession overrides the generated session id.
func WithSession(id string) LaunchLogOption {
	return func(l *LaunchLog) {
		l.session = id
	}
}

// WithClock overrides the row timestamp source.
func WithClock(now func() time.Time) LaunchLogOption {
	return func(l *LaunchLog) {
		l.now = now
	}
}

// NewLaunchLog creates the log file; the format follows the extension.
func NewLaunchLog(path string, opts ...LaunchLogOption) (*LaunchLog, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	f, ok := GetByPath(path)
	if !ok {
		return nil, fmt.Errorf("unsupported format for file: %s", path)
	}

	writer := f.Writer()
	if err := writer.Init(path); err != nil {
		return nil, fmt.Errorf("failed to initialize writer: %w", err)
	}

	l := &LaunchLog{
		path:    path,
		format:  f.Name(),
		session: uuid.NewString(),
		writer:  writer,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Record implements intercept.Recorder.
func (l *LaunchLog) Record(r intercept.Record) error {
	if err := l.writer.Write(NewLaunchRow(l.session, l.now(), r)); err != nil {
		return err
	}
	l.rows++
	return nil
}

// Session returns the session id stamped on every row.
func (l *LaunchLog) Session() string { return l.session }

// Path returns the output file path.
func (l *LaunchLog) Path() string { return l.path }

// Format returns the output format.
func (l *LaunchLog) Format() string { return l.format }

// Rows returns the number of rows written.
func (l *LaunchLog) Rows() int { return l.rows }

// Close flushes and closes the file.
func (l *LaunchLog) Close() error {
	return l.writer.Close()
}
