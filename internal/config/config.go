package config

import (
	"errors"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// ErrDataRootUnset is returned when H2T_DATADIR is missing.
var ErrDataRootUnset = errors.New("H2T_DATADIR is not set")

type Config struct {
	Data     DataConfig
	Database DatabaseConfig
	Storage  StorageConfig
	Mix      MixConfig
	Workers  WorkersConfig
}

type DataConfig struct {
	Root        string
	ManifestDir string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
}

type StorageConfig struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	UseSSL          bool
}

type MixConfig struct {
	Seed uint64
}

type WorkersConfig struct {
	Catalog int
}

// Load reads the optional .env file and then the process environment.
// A missing .env file is not an error.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		godotenv.Load(envFile)
	}

	return &Config{
		Data: DataConfig{
			Root:        getEnv("H2T_DATADIR", ""),
			ManifestDir: getEnv("MANIFEST_DIR", "manifests"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "127.0.0.1"),
			Port:     getEnvInt("DB_PORT", 3306),
			User:     getEnv("DB_USER", "root"),
			Password: getEnv("DB_PASSWORD", ""),
			Name:     getEnv("DB_NAME", "manifests"),
		},
		Storage: StorageConfig{
			Endpoint:        getEnv("MINIO_ENDPOINT", ""),
			AccessKeyID:     getEnv("MINIO_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("MINIO_SECRET_ACCESS_KEY", ""),
			Bucket:          getEnv("MINIO_BUCKET_NAME", ""),
			UseSSL:          getEnvBool("MINIO_USE_SSL", false),
		},
		Mix: MixConfig{
			Seed: uint64(getEnvInt("MIX_SEED", 42)),
		},
		Workers: WorkersConfig{
			Catalog: getEnvInt("CATALOG_WORKERS", 8),
		},
	}, nil
}

// RequireDataRoot returns the data root or ErrDataRootUnset.
// Generators call it before touching the filesystem.
func (c *Config) RequireDataRoot() (string, error) {
	if c.Data.Root == "" {
		return "", ErrDataRootUnset
	}
	return c.Data.Root, nil
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}
