package blob

import (
	"context"
	"fmt"
	"os"
	"strings"

	"pedigreecore/internal/infra/blob/fs"
	memorystore "pedigreecore/internal/infra/blob/memory"
	infraS3 "pedigreecore/internal/infra/blob/s3"
)

// S3Config re-exports the infra S3 configuration type.
type S3Config = infraS3.Config

// Config selects and configures a backend.
type Config struct {
	Driver Driver
	FSRoot string
	S3     S3Config
}

// Environment variables read by ConfigFromEnv:
//
//	PEDIGREE_BLOB_DRIVER: fs|s3|memory (default fs)
//	PEDIGREE_BLOB_FS_ROOT: directory root when driver=fs (default ./blobdata)
//	PEDIGREE_BLOB_S3_BUCKET, PEDIGREE_BLOB_S3_REGION, PEDIGREE_BLOB_S3_ENDPOINT,
//	PEDIGREE_BLOB_S3_PATH_STYLE=true|false
//	AWS_ACCESS_KEY_ID / AWS_SECRET_ACCESS_KEY / AWS_SESSION_TOKEN (optional)

// ConfigFromEnv reads backend selection from the process environment.
func ConfigFromEnv() Config {
	return Config{
		Driver: Driver(os.Getenv("PEDIGREE_BLOB_DRIVER")),
		FSRoot: os.Getenv("PEDIGREE_BLOB_FS_ROOT"),
		S3: S3Config{
			Bucket:          os.Getenv("PEDIGREE_BLOB_S3_BUCKET"),
			Region:          os.Getenv("PEDIGREE_BLOB_S3_REGION"),
			Endpoint:        os.Getenv("PEDIGREE_BLOB_S3_ENDPOINT"),
			PathStyle:       strings.EqualFold(os.Getenv("PEDIGREE_BLOB_S3_PATH_STYLE"), "true"),
			AccessKeyID:     os.Getenv("AWS_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
			SessionToken:    os.Getenv("AWS_SESSION_TOKEN"),
		},
	}
}

// Open constructs the backend named by cfg.Driver (default fs).
func Open(ctx context.Context, cfg Config) (Store, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = DriverFilesystem
	}
	switch driver {
	case DriverFilesystem:
		return fs.New(cfg.FSRoot)
	case DriverS3:
		if cfg.S3.Bucket == "" {
			return nil, fmt.Errorf("PEDIGREE_BLOB_S3_BUCKET required for s3 driver")
		}
		return infraS3.New(ctx, cfg.S3)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %s", driver)
	}
}

// NewMemory returns an in-memory Store suitable for tests and dry runs.
func NewMemory() Store { return memorystore.New() }
