// Package config loads runtime settings for the pedigree tools. Values come
// from built-in defaults, then an optional YAML file, then the environment
// (a .env file in the working directory is loaded first), and are validated
// before use.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"pedigreecore/internal/blob"
	"pedigreecore/internal/core"
	"pedigreecore/internal/pedigree"
	"pedigreecore/internal/recompute"
)

// Config is the full runtime configuration.
type Config struct {
	Storage StorageConfig `yaml:"storage"`
	Engine  EngineConfig  `yaml:"engine"`
	Batch   BatchConfig   `yaml:"batch"`
	Rules   RulesConfig   `yaml:"rules"`
	Log     LogConfig     `yaml:"log"`
	Blob    BlobConfig    `yaml:"blob"`
}

// StorageConfig selects the record store.
type StorageConfig struct {
	Driver      string `yaml:"driver" validate:"oneof=memory sqlite postgres"`
	SQLitePath  string `yaml:"sqlite_path"`
	PostgresDSN string `yaml:"postgres_dsn" validate:"required_if=Driver postgres"`
}

// EngineConfig holds the coefficient query defaults. The two depths are
// independent.
type EngineConfig struct {
	IndividualDepth int `yaml:"individual_depth" validate:"gte=1"`
	PairingDepth    int `yaml:"pairing_depth" validate:"gte=1"`
	CacheSize       int `yaml:"cache_size" validate:"gte=0"`
}

// BatchConfig tunes the recompute run.
type BatchConfig struct {
	ItemTimeout   time.Duration `yaml:"item_timeout" validate:"gt=0"`
	ProgressEvery int           `yaml:"progress_every" validate:"gte=1"`
	// FetchRate caps record lookups per second; 0 is unlimited.
	FetchRate float64 `yaml:"fetch_rate" validate:"gte=0"`
}

// RulesConfig tunes commit-time rules.
type RulesConfig struct {
	PairingWarnThreshold float64 `yaml:"pairing_warn_threshold" validate:"gte=0,lte=100"`
}

// LogConfig selects logger level and output format.
type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=trace debug info warn warning error fatal panic"`
	Format string `yaml:"format" validate:"oneof=text json"`
}

// BlobConfig selects the report archive store. Credentials are read from the
// standard AWS environment variables only.
type BlobConfig struct {
	Driver string   `yaml:"driver" validate:"omitempty,oneof=fs s3 memory"`
	FSRoot string   `yaml:"fs_root"`
	S3     S3Config `yaml:"s3"`
}

// S3Config locates the report bucket.
type S3Config struct {
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	PathStyle bool   `yaml:"path_style"`

	accessKeyID     string
	secretAccessKey string
	sessionToken    string
}

var validate = validator.New()

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Storage: StorageConfig{Driver: string(core.StorageSQLite), SQLitePath: "pedigree.db"},
		Engine: EngineConfig{
			IndividualDepth: pedigree.DefaultIndividualDepth,
			PairingDepth:    pedigree.DefaultPairingDepth,
			CacheSize:       4096,
		},
		Batch: BatchConfig{
			ItemTimeout:   recompute.DefaultItemTimeout,
			ProgressEvery: recompute.DefaultProgressEvery,
		},
		Rules: RulesConfig{PairingWarnThreshold: core.DefaultPairingWarnThreshold},
		Log:   LogConfig{Level: "info", Format: "text"},
		Blob:  BlobConfig{Driver: string(blob.DriverFilesystem), FSRoot: "blobdata"},
	}
}

// Load builds the configuration. path names an optional YAML file; an empty
// path skips it. A missing .env file is not an error.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		if err := cfg.readFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) readFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	defer func() { _ = f.Close() }()
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil {
		return fmt.Errorf("config: decode %s: %w", path, err)
	}
	return nil
}

// Validate checks field constraints and reports every failing field.
func (c Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("config: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("config: invalid: %s", strings.Join(msgs, "; "))
}

func (c *Config) applyEnv() error {
	setString(&c.Storage.Driver, "PEDIGREE_STORAGE_DRIVER")
	setString(&c.Storage.SQLitePath, "PEDIGREE_SQLITE_PATH")
	setString(&c.Storage.PostgresDSN, "PEDIGREE_POSTGRES_DSN")
	setString(&c.Log.Level, "PEDIGREE_LOG_LEVEL")
	setString(&c.Log.Format, "PEDIGREE_LOG_FORMAT")
	setString(&c.Blob.Driver, "PEDIGREE_BLOB_DRIVER")
	setString(&c.Blob.FSRoot, "PEDIGREE_BLOB_FS_ROOT")
	setString(&c.Blob.S3.Bucket, "PEDIGREE_BLOB_S3_BUCKET")
	setString(&c.Blob.S3.Region, "PEDIGREE_BLOB_S3_REGION")
	setString(&c.Blob.S3.Endpoint, "PEDIGREE_BLOB_S3_ENDPOINT")
	setString(&c.Blob.S3.accessKeyID, "AWS_ACCESS_KEY_ID")
	setString(&c.Blob.S3.secretAccessKey, "AWS_SECRET_ACCESS_KEY")
	setString(&c.Blob.S3.sessionToken, "AWS_SESSION_TOKEN")

	return errors.Join(
		setInt(&c.Engine.IndividualDepth, "PEDIGREE_INDIVIDUAL_DEPTH"),
		setInt(&c.Engine.PairingDepth, "PEDIGREE_PAIRING_DEPTH"),
		setInt(&c.Engine.CacheSize, "PEDIGREE_CACHE_SIZE"),
		setInt(&c.Batch.ProgressEvery, "PEDIGREE_PROGRESS_EVERY"),
		setDuration(&c.Batch.ItemTimeout, "PEDIGREE_ITEM_TIMEOUT"),
		setFloat(&c.Batch.FetchRate, "PEDIGREE_FETCH_RATE"),
		setFloat(&c.Rules.PairingWarnThreshold, "PEDIGREE_PAIRING_WARN_THRESHOLD"),
		setBool(&c.Blob.S3.PathStyle, "PEDIGREE_BLOB_S3_PATH_STYLE"),
	)
}

func lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func setString(dst *string, key string) {
	if v, ok := lookup(key); ok {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v, ok := lookup(key)
	if !ok {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("config: %s: %w", key, err)
	}
	*dst = n
	return nil
}

func setFloat(dst *float64, key string) error {
	v, ok := lookup(key)
	if !ok {
		return nil
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("config: %s: %w", key, err)
	}
	*dst = n
	return nil
}

func setDuration(dst *time.Duration, key string) error {
	v, ok := lookup(key)
	if !ok {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("config: %s: %w", key, err)
	}
	*dst = d
	return nil
}

func setBool(dst *bool, key string) error {
	v, ok := lookup(key)
	if !ok {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("config: %s: %w", key, err)
	}
	*dst = b
	return nil
}

// StorageSettings converts the storage section for core.OpenPersistentStore.
func (c Config) StorageSettings() core.StorageConfig {
	return core.StorageConfig{
		Driver:      core.StorageDriver(c.Storage.Driver),
		SQLitePath:  c.Storage.SQLitePath,
		PostgresDSN: c.Storage.PostgresDSN,
	}
}

// BlobSettings converts the blob section for blob.Open.
func (c Config) BlobSettings() blob.Config {
	return blob.Config{
		Driver: blob.Driver(c.Blob.Driver),
		FSRoot: c.Blob.FSRoot,
		S3: blob.S3Config{
			Bucket:          c.Blob.S3.Bucket,
			Region:          c.Blob.S3.Region,
			Endpoint:        c.Blob.S3.Endpoint,
			PathStyle:       c.Blob.S3.PathStyle,
			AccessKeyID:     c.Blob.S3.accessKeyID,
			SecretAccessKey: c.Blob.S3.secretAccessKey,
			SessionToken:    c.Blob.S3.sessionToken,
		},
	}
}

// PairingPolicy converts the rules section for core.NewPolicyRulesEngine.
func (c Config) PairingPolicy() core.PairingPolicy {
	return core.PairingPolicy{WarnThreshold: c.Rules.PairingWarnThreshold, Depth: c.Engine.PairingDepth}
}
