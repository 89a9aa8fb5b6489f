package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/arbiterlabs/arbiter/internal/config"
)

const baseConfig = `
shutdown_timeout = "30s"
version = "0.1.0"

[server]
host = "0.0.0.0"
port = 8080
read_timeout = "1m"
write_timeout = "2m"
shutdown_timeout = "30s"

[database]
host = "localhost"
port = 5432
name = "arbiter"
user = "arbiter"
password = "arbiter"
ssl_mode = "disable"

[storage]
container_name = "assessment-documents"
connection_string = "DefaultEndpointsProtocol=http;AccountName=arbiterstore;AccountKey=key;BlobEndpoint=http://127.0.0.1:10000/arbiterstore;"

[inference]
base_url = "http://localhost:8000"
model = "validator-large"

[engine]
workers = 4
lease_duration = "2m"

[events]
enabled = false

[api]
base_path = "/api"

[api.pagination]
default_page_size = 25
max_page_size = 50
`

const overlayConfig = `
[server]
port = 9090

[database]
host = "prodhost"

[engine]
workers = 8
`

func writeConfig(t *testing.T, dir, filename, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, filename), []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", filename, err)
	}
}

func chdir(t *testing.T, dir string) {
	t.Helper()
	orig, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { os.Chdir(orig) })
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "config.toml", baseConfig)
	chdir(t, dir)

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("server port: got %d, want 8080", cfg.Server.Port)
	}
	if cfg.Database.Host != "localhost" {
		t.Errorf("db host: got %s, want localhost", cfg.Database.Host)
	}
	if cfg.Storage.ContainerName != "assessment-documents" {
		t.Errorf("storage container: got %s", cfg.Storage.ContainerName)
	}
	if cfg.Inference.Model != "validator-large" {
		t.Errorf("inference model: got %s", cfg.Inference.Model)
	}
	if cfg.API.Pagination.DefaultPageSize != 25 {
		t.Errorf("pagination default_page_size: got %d, want 25", cfg.API.Pagination.DefaultPageSize)
	}
	if cfg.ShutdownTimeoutDuration() != 30*time.Second {
		t.Errorf("shutdown timeout: got %v, want 30s", cfg.ShutdownTimeoutDuration())
	}
	if cfg.Engine.Workers != 4 {
		t.Errorf("engine workers: got %d, want 4", cfg.Engine.Workers)
	}
}

func TestLoadWithOverlay(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "config.toml", baseConfig)
	writeConfig(t, dir, "config.staging.toml", overlayConfig)
	chdir(t, dir)

	t.Setenv("ARBITER_ENV", "staging")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("server port: got %d, want 9090 (from overlay)", cfg.Server.Port)
	}
	if cfg.Database.Host != "prodhost" {
		t.Errorf("db host: got %s, want prodhost (from overlay)", cfg.Database.Host)
	}
	if cfg.Database.Port != 5432 {
		t.Errorf("db port: got %d, want 5432 (from base)", cfg.Database.Port)
	}
	if cfg.Engine.Workers != 8 {
		t.Errorf("engine workers: got %d, want 8 (from overlay)", cfg.Engine.Workers)
	}
}

func TestLoadEnvVarOverrides(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "config.toml", baseConfig)
	chdir(t, dir)

	t.Setenv("ARBITER_VERSION", "2.0.0")
	t.Setenv("ARBITER_SERVER_PORT", "3000")
	t.Setenv("ARBITER_ENGINE_WORKERS", "12")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Version != "2.0.0" {
		t.Errorf("version: got %s, want 2.0.0", cfg.Version)
	}
	if cfg.Server.Port != 3000 {
		t.Errorf("server port: got %d, want 3000", cfg.Server.Port)
	}
	if cfg.Engine.Workers != 12 {
		t.Errorf("engine workers: got %d, want 12", cfg.Engine.Workers)
	}
}

func TestLoadNoConfigFile(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	t.Setenv("ARBITER_DB_NAME", "testdb")
	t.Setenv("ARBITER_DB_USER", "testuser")
	t.Setenv("ARBITER_STORAGE_CONNECTION_STRING", "conn")
	t.Setenv("ARBITER_INFERENCE_BASE_URL", "http://localhost:8000")
	t.Setenv("ARBITER_INFERENCE_MODEL", "validator-large")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("load without config.toml failed: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("server port default: got %d, want 8080", cfg.Server.Port)
	}
	if cfg.Database.Name != "testdb" {
		t.Errorf("db name: got %s, want testdb", cfg.Database.Name)
	}
	if cfg.Engine.Workers != 4 {
		t.Errorf("engine workers default: got %d, want 4", cfg.Engine.Workers)
	}
	if cfg.Events.Topic != "arbiter.assessments" {
		t.Errorf("events topic default: got %s", cfg.Events.Topic)
	}
}
