// Package exporting persists per-launch records in jsonl, parquet, csv or tsv.
package exporting

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Format defines the interface for a launch log format.
type Format interface {
	Name() string
	Extensions() []string
	Reader() Reader
	Writer() Writer
}

// Reader reads launch rows from a file.
type Reader interface {
	Open(path string) error
	Read() ([]LaunchRow, error)
	Close() error
}

// Writer writes launch rows to a file.
type Writer interface {
	Init(path string) error
	Write(row LaunchRow) error
	Flush() error
	Close() error
	Path() string
}

var (
	registry    = make(map[string]Format)
	extRegistry = make(map[string]Format)
)

// Register adds a format to the registry.
func Register(f Format) {
	name := strings.ToLower(f.Name())
	registry[name] = f
	for _, ext := range f.Extensions() {
		extRegistry[strings.ToLower(ext)] = f
	}
}

// Get returns a format by name.
func Get(name string) (Format, bool) {
	f, ok := registry[strings.ToLower(name)]
	return f, ok
}

// GetByExtension returns a format by file extension.
func GetByExtension(ext string) (Format, bool) {
	ext = strings.ToLower(ext)
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	f, ok := extRegistry[ext]
	return f, ok
}

// GetByPath returns a format based on the file's extension.
func GetByPath(path string) (Format, bool) {
	return GetByExtension(filepath.Ext(path))
}

// LoadRows loads every launch row from a file.
func LoadRows(path string) ([]LaunchRow, error) {
	f, ok := GetByPath(path)
	if !ok {
		return nil, fmt.Errorf("unsupported format for file: %s", path)
	}

	reader := f.Reader()
	if err := reader.Open(path); err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer reader.Close()

	rows, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}
	return rows, nil
}

// SaveRows writes rows to a file, picking the format from its extension.
func SaveRows(path string, rows []LaunchRow) error {
	f, ok := GetByPath(path)
	if !ok {
		return fmt.Errorf("unsupported format for file: %s", path)
	}

	writer := f.Writer()
	if err := writer.Init(path); err != nil {
		return fmt.Errorf("failed to initialize writer: %w", err)
	}

	for i, row := range rows {
		if err := writer.Write(row); err != nil {
			writer.Close()
			return fmt.Errorf("failed to write row %d: %w", i, err)
		}
	}

	return writer.Close()
}
