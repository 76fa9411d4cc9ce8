// Package storage persists raw items, processed topics and reports under the data directory.
package storage

import "time"

// FileInfo describes one stored file.
type FileInfo struct {
	Path      string // relative to the data root, slash separated
	Size      int64
	UpdatedAt time.Time
}

// Provider is the interface for data-directory file operations.
type Provider interface {
	// List returns metadata for every file directly in dir (relative to the data root)
	// whose name ends with suffix. An empty suffix matches all files.
	List(dir, suffix string) ([]FileInfo, error)
	// Read returns the raw bytes of the file at path (relative to the data root).
	Read(path string) ([]byte, error)
	// Write atomically writes content to path (relative to the data root).
	Write(path string, content []byte) error
	// Abs resolves path against the data root.
	Abs(path string) (string, error)
}
