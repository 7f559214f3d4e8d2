package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("H2T_DATADIR", "")
	t.Setenv("DB_PORT", "")
	t.Setenv("MIX_SEED", "")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Database.Port != 3306 {
		t.Errorf("DB port = %d, want 3306", cfg.Database.Port)
	}
	if cfg.Mix.Seed != 42 {
		t.Errorf("seed = %d, want 42", cfg.Mix.Seed)
	}
	if _, err := cfg.RequireDataRoot(); !errors.Is(err, ErrDataRootUnset) {
		t.Errorf("RequireDataRoot err = %v, want ErrDataRootUnset", err)
	}
}

func TestLoadEnvFile(t *testing.T) {
	for _, key := range []string{"H2T_DATADIR", "CATALOG_WORKERS", "MINIO_USE_SSL"} {
		unsetEnv(t, key)
	}

	envFile := filepath.Join(t.TempDir(), ".env")
	content := "H2T_DATADIR=/data/h2t\nCATALOG_WORKERS=3\nMINIO_USE_SSL=true\n"
	if err := os.WriteFile(envFile, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(envFile)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	root, err := cfg.RequireDataRoot()
	if err != nil {
		t.Fatalf("RequireDataRoot: %v", err)
	}
	if root != "/data/h2t" {
		t.Errorf("root = %q", root)
	}
	if cfg.Workers.Catalog != 3 {
		t.Errorf("catalog workers = %d, want 3", cfg.Workers.Catalog)
	}
	if !cfg.Storage.UseSSL {
		t.Error("UseSSL = false, want true")
	}
}

// unsetEnv removes key for the duration of the test so godotenv can set it.
func unsetEnv(t *testing.T, key string) {
	t.Helper()
	t.Setenv(key, "")
	os.Unsetenv(key)
}
