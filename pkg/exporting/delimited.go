package exporting

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
)

func init() {
	Register(&CSVFormat{})
	Register(&TSVFormat{})
}

// CSVFormat handles CSV files.
type CSVFormat struct{}

func (f *CSVFormat) Name() string         { return "csv" }
func (f *CSVFormat) Extensions() []string { return []string{".csv"} }
func (f *CSVFormat) Reader() Reader       { return &DelimitedReader{delimiter: ','} }
func (f *CSVFormat) Writer() Writer       { return &DelimitedWriter{delimiter: ','} }

// TSVFormat handles TSV files.
type TSVFormat struct{}

func (f *TSVFormat) Name() string         { return "tsv" }
func (f *TSVFormat) Extensions() []string { return []string{".tsv"} }
func (f *TSVFormat) Reader() Reader       { return &DelimitedReader{delimiter: '\t'} }
func (f *TSVFormat) Writer() Writer       { return &DelimitedWriter{delimiter: '\t'} }

// DelimitedReader reads CSV/TSV files.
type DelimitedReader struct {
	file      *os.File
	reader    *csv.Reader
	header    []string
	delimiter rune
}

// Open opens the file and reads the header row.
func (r *DelimitedReader) Open(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	r.file = file
	r.reader = csv.NewReader(file)
	r.reader.Comma = r.delimiter
	r.reader.FieldsPerRecord = -1

	header, err := r.reader.Read()
	if err != nil {
		_ = r.file.Close()
		return fmt.Errorf("failed to read header: %w", err)
	}
	r.header = header
	return nil
}

// Read parses all rows from the file.
func (r *DelimitedReader) Read() ([]LaunchRow, error) {
	var rows []LaunchRow
	for {
		values, err := r.reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return rows, err
		}
		row, err := parseFields(r.header, values)
		if err != nil {
			return rows, fmt.Errorf("row %d: %w", len(rows)+1, err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// Close closes the underlying file handle.
func (r *DelimitedReader) Close() error {
	if r.file != nil {
		return r.file.Close()
	}
	return nil
}

// DelimitedWriter writes CSV/TSV files with a fixed header.
type DelimitedWriter struct {
	path      string
	file      *os.File
	writer    *csv.Writer
	headerSet bool
	delimiter rune
	mu        sync.Mutex
}

// Init creates the file and prepares the writer.
func (w *DelimitedWriter) Init(path string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}

	w.path = path
	w.file = file
	w.writer = csv.NewWriter(file)
	w.writer.Comma = w.delimiter
	return nil
}

// Write writes a single row, emitting the header first.
func (w *DelimitedWriter) Write(row LaunchRow) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.headerSet {
		if err := w.writer.Write(Columns); err != nil {
			return fmt.Errorf("failed to write header: %w", err)
		}
		w.headerSet = true
	}
	if err := w.writer.Write(row.fields()); err != nil {
		return fmt.Errorf("failed to write row: %w", err)
	}
	return nil
}

// Flush writes any buffered data to the file.
func (w *DelimitedWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.writer != nil {
		w.writer.Flush()
		return w.writer.Error()
	}
	return nil
}

// Close flushes the buffer and closes the file.
func (w *DelimitedWriter) Close() error {
	if err := w.Flush(); err != nil {
		if w.file != nil {
			_ = w.file.Close()
		}
		return err
	}
	if w.file != nil {
		return w.file.Close()
	}
	return nil
}

// Path returns the file path.
func (w *DelimitedWriter) Path() string {
	return w.path
}
