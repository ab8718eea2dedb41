// Package archive stores raw documents outside of the database.
//
// There are currently two possible backends: a local file system and AWS S3. The
// synchronization archives every batch it fetched from the external registry.
package archive

import (
	"context"
	"fmt"
	"strings"

	"github.com/relabs-tech/agrigate/core/logger"
)

// Driver defines the interface of an archive backend
type Driver interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
}

// DriverType represents the different type of archive drivers
type DriverType string

// DriverTypeLocal is the local filesystem implementation
const DriverTypeLocal DriverType = "Local"

// DriverTypeAWSS3 is the AWS S3 implementation
const DriverTypeAWSS3 DriverType = "AWSS3"

// None is used when there is no archive
const None DriverType = ""

// Configuration contains the configuration of the archive
type Configuration struct {
	DriverType         DriverType
	LocalConfiguration *LocalConfiguration
	S3Configuration    *S3Configuration
}

// LocalConfiguration contains the configuration for the local filesystem archive
type LocalConfiguration struct {
	BasePath string
}

// S3Configuration contains the configuration for the S3 archive. Without AccessID the
// default AWS credential chain is used.
type S3Configuration struct {
	AccessID      string
	AccessKey     string
	AWSBucketName string
	AWSRegion     string
	KeyPrefix     string
}

// New returns the driver for config, or nil when the archive is disabled
func New(ctx context.Context, config Configuration) (Driver, error) {
	switch config.DriverType {
	case None:
		logger.Default().Info("archive not in use")
		return nil, nil
	case DriverTypeLocal:
		if config.LocalConfiguration == nil {
			return nil, fmt.Errorf("archive expecting a configuration for local archive, but got nothing")
		}
		drv, err := NewLocalFilesystem(*config.LocalConfiguration)
		if err != nil {
			return nil, err
		}
		return drv, nil
	case DriverTypeAWSS3:
		if config.S3Configuration == nil {
			return nil, fmt.Errorf("archive expecting a configuration for S3 archive, but got nothing")
		}
		drv, err := NewS3(ctx, *config.S3Configuration)
		if err != nil {
			return nil, err
		}
		return drv, nil
	default:
		return nil, fmt.Errorf("unknown archive driver type %q", config.DriverType)
	}
}

func validateKey(key string) error {
	if key == "" {
		return fmt.Errorf("empty key")
	}
	if strings.Contains(key, "..") {
		return fmt.Errorf("'..' is not allowed in a key")
	}
	return nil
}
