package backend

import (
	"fmt"

	"committee/internal/config"
)

// FromAppConfig converts the application config to backend config
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}

	backendType := BackendType(appConfig.DataBackend)
	if !backendType.IsValid() {
		return Config{}, fmt.Errorf("invalid backend type in config: %s", appConfig.DataBackend)
	}

	return Config{
		Type:             backendType,
		DirectoryURL:     appConfig.DirectoryURL,
		DirectoryTimeout: appConfig.DirectoryTimeout,
		DataDirectory:    appConfig.DataDir,
	}, nil
}

// Validate validates the backend configuration
func (c Config) Validate() error {
	if !c.Type.IsValid() {
		return fmt.Errorf("invalid backend type: %s", c.Type)
	}

	switch c.Type {
	case RemoteBackend:
		if c.DirectoryURL == "" {
			return fmt.Errorf("directory URL is required for remote backend")
		}
	case MemoryBackend:
		// DataDirectory defaults to "data" when empty
	}

	return nil
}
