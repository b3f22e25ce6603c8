package backend

import (
	"context"
	"fmt"

	"committee/internal/directory/memory"
	"committee/internal/directory/remote"
	"committee/internal/log"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
}

// NewFactory creates a new directory factory
func NewFactory(logger *log.Logger) Factory {
	if logger == nil {
		logger = log.Default(log.ComponentDirectory)
	}
	return &DefaultFactory{logger: logger}
}

// CreateDirectory implements Factory.CreateDirectory
func (f *DefaultFactory) CreateDirectory(ctx context.Context, config Config) (*Result, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case RemoteBackend:
		return f.createRemote(config)
	case MemoryBackend:
		return f.createMemory(config)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) createRemote(config Config) (*Result, error) {
	opts := []remote.Option{remote.WithLogger(f.logger)}
	if config.DirectoryTimeout > 0 {
		opts = append(opts, remote.WithTimeout(config.DirectoryTimeout))
	}
	client, err := remote.New(config.DirectoryURL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize directory client: %w", err)
	}

	f.logger.Info("Initialized remote directory",
		"url", config.DirectoryURL,
		"timeout", config.DirectoryTimeout)

	return &Result{Directory: client}, nil
}

func (f *DefaultFactory) createMemory(config Config) (*Result, error) {
	dataDir := config.DataDirectory
	if dataDir == "" {
		dataDir = "data"
	}

	store := memory.NewFromFiles(dataDir)

	f.logger.Info("Initialized memory directory", "data_dir", dataDir)

	return &Result{Directory: store}, nil
}
