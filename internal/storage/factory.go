package storage

import (
	"fmt"
	"path/filepath"
	"strings"
)

// NewSeries creates a series backend. path is the target file for the csv
// and sqlite backends; name identifies the series inside a sqlite database.
func NewSeries(kind, path, name string, width int) (Series, error) {
	switch kind {
	case "", "memory":
		return NewMemorySeries(name, width), nil
	case "csv":
		return NewCSVSeries(path, width), nil
	case "sqlite":
		return newSQLiteSeries(path, name, width)
	default:
		return nil, fmt.Errorf("unsupported series backend: %s", kind)
	}
}

// Kinds lists the series backends compiled into this build.
func Kinds() []string {
	kinds := []string{"memory", "csv"}
	if sqliteAvailable {
		kinds = append(kinds, "sqlite")
	}
	return kinds
}

// OpenReader opens an existing series for reading.
func OpenReader(kind, path, name string) (RangeReader, error) {
	switch kind {
	case "sqlite":
		return openSQLiteReader(path, name)
	default:
		return nil, fmt.Errorf("unsupported reader backend: %s", kind)
	}
}

// Ext returns the file extension used by a backend.
func Ext(kind string) string {
	switch kind {
	case "csv":
		return ".csv"
	case "sqlite":
		return ".db"
	default:
		return ""
	}
}

// FileName builds <base>_<suffix><ext>, keeping base's directory.
func FileName(base, suffix, kind string) string {
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return base + "_" + suffix + Ext(kind)
}

func CloseIfSupported(s any) error {
	closer, ok := s.(interface{ Close() error })
	if !ok {
		return nil
	}
	return closer.Close()
}
