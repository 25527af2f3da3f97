package exporting

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/parquet-go/parquet-go"
)

const ParquetBatchSize = 1000

func init() {
	Register(&ParquetFormat{})
}

// ParquetFormat handles Parquet launch logs. The schema is derived from the
// LaunchRow struct tags.
type ParquetFormat struct{}

func (f *ParquetFormat) Name() string         { return "parquet" }
func (f *ParquetFormat) Extensions() []string { return []string{".parquet"} }
func (f *ParquetFormat) Reader() Reader       { return &ParquetReader{} }
func (f *ParquetFormat) Writer() Writer       { return &ParquetWriter{} }

// ParquetReader reads Parquet files.
type ParquetReader struct {
	file   *os.File
	reader *parquet.GenericReader[LaunchRow]
}

func (r *ParquetReader) Open(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	r.file = file
	r.reader = parquet.NewGenericReader[LaunchRow](file)
	return nil
}

func (r *ParquetReader) Read() ([]LaunchRow, error) {
	if r.reader == nil {
		return nil, fmt.Errorf("reader not initialized")
	}

	rows := make([]LaunchRow, 0, r.reader.NumRows())
	buf := make([]LaunchRow, 100)
	for {
		n, err := r.reader.Read(buf)
		rows = append(rows, buf[:n]...)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return rows, fmt.Errorf("failed to read rows: %w", err)
		}
		if n == 0 {
			break
		}
	}
	return rows, nil
}

func (r *ParquetReader) Close() error {
	if r.reader != nil {
		r.reader.Close()
	}
	if r.file != nil {
		return r.file.Close()
	}
	return nil
}

// ParquetWriter buffers rows and writes them in batches.
type ParquetWriter struct {
	path   string
	file   *os.File
	writer *parquet.GenericWriter[LaunchRow]
	buffer []LaunchRow
	mu     sync.Mutex
}

func (w *ParquetWriter) Init(path string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	w.path = path
	w.file = file
	w.writer = parquet.NewGenericWriter[LaunchRow](file, parquet.Compression(&parquet.Snappy))
	w.buffer = make([]LaunchRow, 0, ParquetBatchSize)
	return nil
}

func (w *ParquetWriter) Write(row LaunchRow) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buffer = append(w.buffer, row)
	if len(w.buffer) >= ParquetBatchSize {
		return w.flushBuffer()
	}
	return nil
}

func (w *ParquetWriter) flushBuffer() error {
	if len(w.buffer) == 0 || w.writer == nil {
		return nil
	}
	if _, err := w.writer.Write(w.buffer); err != nil {
		return fmt.Errorf("failed to write parquet rows: %w", err)
	}
	w.buffer = w.buffer[:0]
	return nil
}

func (w *ParquetWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.flushBuffer(); err != nil {
		return err
	}
	if w.writer != nil {
		return w.writer.Flush()
	}
	return nil
}

// Close writes the remaining rows and the footer, then closes the file. The
// file is closed even when writing fails.
func (w *ParquetWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	var errs []error
	if err := w.flushBuffer(); err != nil {
		errs = append(errs, err)
	}
	if w.writer != nil {
		if err := w.writer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close parquet writer: %w", err))
		}
		w.writer = nil
	}
	if w.file != nil {
		if err := w.file.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close file: %w", err))
		}
		w.file = nil
	}
	return errors.Join(errs...)
}

func (w *ParquetWriter) Path() string {
	return w.path
}
