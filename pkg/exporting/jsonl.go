package exporting

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

const (
	DefaultBufferSize = 64 * 1024
	MaxLineSize       = 1024 * 1024
)

func init() {
	Register(&JSONLFormat{})
}

// JSONLFormat handles JSON Lines launch logs.
type JSONLFormat struct{}

func (f *JSONLFormat) Name() string         { return "jsonl" }
func (f *JSONLFormat) Extensions() []string { return []string{".jsonl", ".json"} }
func (f *JSONLFormat) Reader() Reader       { return &JSONLReader{} }
func (f *JSONLFormat) Writer() Writer       { return &JSONLWriter{} }

// JSONLReader reads JSONL files.
type JSONLReader struct {
	file    *os.File
	scanner *bufio.Scanner
}

func (r *JSONLReader) Open(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	r.file = file
	r.scanner = bufio.NewScanner(file)
	r.scanner.Buffer(make([]byte, DefaultBufferSize), MaxLineSize)
	return nil
}

func (r *JSONLReader) Read() ([]LaunchRow, error) {
	var rows []LaunchRow
	lineNum := 0
	for r.scanner.Scan() {
		lineNum++
		line := r.scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var row LaunchRow
		if err := json.Unmarshal(line, &row); err != nil {
			return rows, fmt.Errorf("line %d: %w", lineNum, err)
		}
		rows = append(rows, row)
	}

	if err := r.scanner.Err(); err != nil {
		return rows, fmt.Errorf("scanner error: %w", err)
	}
	return rows, nil
}

func (r *JSONLReader) Close() error {
	if r.file != nil {
		return r.file.Close()
	}
	return nil
}

// JSONLWriter writes JSONL files.
type JSONLWriter struct {
	path   string
	file   *os.File
	writer *bufio.Writer
	enc    *json.Encoder
	mu     sync.Mutex
}

func (w *JSONLWriter) Init(path string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	w.path = path
	w.file = file
	w.writer = bufio.NewWriterSize(file, DefaultBufferSize)
	w.enc = json.NewEncoder(w.writer)
	return nil
}

func (w *JSONLWriter) Write(row LaunchRow) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.enc.Encode(row); err != nil {
		return fmt.Errorf("failed to encode row: %w", err)
	}
	return nil
}

func (w *JSONLWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.writer != nil {
		return w.writer.Flush()
	}
	return nil
}

func (w *JSONLWriter) Close() error {
	if err := w.Flush(); err != nil {
		return err
	}
	if w.file != nil {
		return w.file.Close()
	}
	return nil
}

func (w *JSONLWriter) Path() string {
	return w.path
}
