// Package configuration loads trustcore's own library tunables — cache
// sizing, KMS backend selection, status-list defaults, decay rate,
// audit store location, driver timeouts — from a YAML file named by
// an environment variable. It configures no transport and no CLI, per
// spec §1's Non-goals.
package configuration

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"trustcore/pkg/errkind"
	"trustcore/pkg/logger"
)

type envVars struct {
	ConfigYAML string `envconfig:"TRUSTCORE_CONFIG_YAML" required:"true"`
}

// KMSConfig selects and configures one of the three kms.Backend
// implementations, per SPEC_FULL.md §A.3.
type KMSConfig struct {
	Backend string `yaml:"backend" default:"local" validate:"oneof=local aws gcp"`

	// Local backend.
	LocalBaseDir      string `yaml:"local_base_dir" default:"./kms-data"`
	LocalMasterKeyEnv string `yaml:"local_master_key_env" default:"TRUSTCORE_KMS_MASTER_KEY"`

	// AWS backend.
	AWSRegion string `yaml:"aws_region"`
	AWSKeyARN string `yaml:"aws_key_arn"`

	// GCP backend.
	GCPProject  string `yaml:"gcp_project"`
	GCPLocation string `yaml:"gcp_location"`
	GCPKeyRing  string `yaml:"gcp_key_ring"`
}

// ResolverConfig tunes the universal resolver's cache and per-method
// driver timeouts, per C5.
type ResolverConfig struct {
	CacheTTL         time.Duration `yaml:"cache_ttl" default:"15m"`
	CacheCapacity    int           `yaml:"cache_capacity" default:"10000" validate:"min=1"`
	DriverTimeout    time.Duration `yaml:"driver_timeout" default:"10s" validate:"min=0"`
	RedisAddr        string        `yaml:"redis_addr"`
	DistributedCache bool          `yaml:"distributed_cache" default:"false"`
}

// StatusListConfig tunes the default StatusList2021 bitstring length
// new lists are created with, per C3/C8.
type StatusListConfig struct {
	DefaultLength int `yaml:"default_length" default:"131072" validate:"min=8"`
}

// TrustScoreConfig tunes the Trust Scoring Engine's temporal decay
// rate, per C7.
type TrustScoreConfig struct {
	DecayLambda float64 `yaml:"decay_lambda" default:"0.1" validate:"gt=0"`
}

// AuditConfig names where the hash-chained audit log persists its
// entries. The DSN's scheme is opaque to this package — spec's
// storage-is-an-interface Non-goal means trustcore never dials it
// itself, only passes it to whatever audit.Store the embedding
// application constructs.
type AuditConfig struct {
	StoreDSN string `yaml:"store_dsn" validate:"required"`
	KeyID    string `yaml:"key_id" validate:"required"`
}

// Config is the top-level library configuration an embedding
// application loads once at startup, through New or Load.
type Config struct {
	Production bool             `yaml:"production" default:"false"`
	KMS        KMSConfig        `yaml:"kms"`
	Resolver   ResolverConfig   `yaml:"resolver"`
	StatusList StatusListConfig `yaml:"status_list"`
	TrustScore TrustScoreConfig `yaml:"trust_score"`
	Audit      AuditConfig      `yaml:"audit"`
}

// NewValidator returns a validator that reports errors under each
// field's yaml tag name rather than its Go field name.
func NewValidator() *validator.Validate {
	validate := validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return validate
}

// New reads the YAML file named by TRUSTCORE_CONFIG_YAML, seeds
// defaults, unmarshals over them, and validates the result.
func New() (*Config, error) {
	log := logger.NewSimple("configuration")
	log.Info("reading environment variable")

	env := envVars{}
	if err := envconfig.Process("", &env); err != nil {
		return nil, errkind.Wrap(errkind.ErrInvalidInput, err, "configuration: read environment")
	}

	return Load(env.ConfigYAML)
}

// Load reads, defaults, unmarshals, and validates the config file at
// path directly, bypassing the environment-variable lookup — the path
// New and tests share.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		return nil, errkind.Wrap(errkind.ErrInternal, err, "configuration: set defaults")
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, errkind.Wrap(errkind.ErrInvalidInput, err, "configuration: stat config file")
	}
	if info.IsDir() {
		return nil, errkind.New(errkind.ErrInvalidInput, "configuration: %q is a directory", path)
	}

	raw, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, errkind.Wrap(errkind.ErrInvalidInput, err, "configuration: read config file")
	}

	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, errkind.Wrap(errkind.ErrInvalidInput, err, "configuration: parse config file")
	}

	if err := NewValidator().Struct(cfg); err != nil {
		return nil, errkind.Wrap(errkind.ErrInvalidInput, err, "configuration: validate config")
	}

	return cfg, nil
}
