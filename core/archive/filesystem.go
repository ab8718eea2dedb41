package archive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/relabs-tech/agrigate/core/logger"
)

// LocalFilesystem is the archive backed by a local folder
type LocalFilesystem struct {
	baseFolder string
}

// NewLocalFilesystem returns a new LocalFilesystem. The base folder is created if needed.
func NewLocalFilesystem(config LocalConfiguration) (*LocalFilesystem, error) {
	if config.BasePath == "" {
		return nil, fmt.Errorf("BasePath must not be empty")
	}
	if err := os.MkdirAll(config.BasePath, 0o700); err != nil {
		return nil, fmt.Errorf("cannot create archive folder %s: %w", config.BasePath, err)
	}
	logger.Default().Infoln("archive in local folder", config.BasePath)
	return &LocalFilesystem{baseFolder: config.BasePath}, nil
}

// Put writes data under key, replacing previous content
func (f *LocalFilesystem) Put(ctx context.Context, key string, data []byte) error {
	if err := validateKey(key); err != nil {
		return err
	}
	filePath := filepath.Join(f.baseFolder, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(filePath), 0o700); err != nil {
		return fmt.Errorf("cannot create folder for key '%s': %w", key, err)
	}
	tmp := filePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("cannot write key '%s': %w", key, err)
	}
	return os.Rename(tmp, filePath)
}

// Get reads the data stored under key
func (f *LocalFilesystem) Get(ctx context.Context, key string) ([]byte, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	return os.ReadFile(filepath.Join(f.baseFolder, filepath.FromSlash(key)))
}
