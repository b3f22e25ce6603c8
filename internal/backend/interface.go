package backend

import (
	"context"
	"time"

	"committee/internal/directory"
)

// CleanupFunc releases resources held by a directory backend.
type CleanupFunc func() error

// Result contains the directory and an optional cleanup function.
type Result struct {
	Directory directory.Directory
	Cleanup   CleanupFunc
}

// Factory creates member directories based on configuration
type Factory interface {
	CreateDirectory(ctx context.Context, config Config) (*Result, error)
}

// Config holds configuration for directory creation
type Config struct {
	Type BackendType

	// Remote directory service
	DirectoryURL     string
	DirectoryTimeout time.Duration

	// Memory backend seed files
	DataDirectory string
}

// BackendType represents the type of backend
type BackendType string

const (
	RemoteBackend BackendType = "remote"
	MemoryBackend BackendType = "memory"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case RemoteBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
