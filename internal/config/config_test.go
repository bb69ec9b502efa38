package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/shaiso/beeflow/internal/scheduler"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "beeflow.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

// clearEnv убирает переопределения окружения на время теста.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"DB_URL", "RABBITMQ_URL", "WFM_URL", "TM_URL"} {
		t.Setenv(key, "")
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if diff := cmp.Diff(Default(), cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_File(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
wfm:
  listen: ":9001"
  archive_dir: /data/archives
tm:
  interval: 2s
  build_timeout: 1m30s
  max_cancel_attempts: 5
  update_sink: amqp
  worker:
    log_dir: /data/logs
  container:
    pull_command: [ch-image, pull, "{image}"]
scheduler:
  resources:
    - {id: cluster, cores: 64}
    - {id: login, cores: 4}
amqp:
  url: amqp://guest:guest@mq:5672/
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	want := Default()
	want.WFM.Listen = ":9001"
	want.WFM.ArchiveDir = "/data/archives"
	want.TM.Interval = 2 * time.Second
	want.TM.BuildTimeout = 90 * time.Second
	want.TM.MaxCancelAttempts = 5
	want.TM.UpdateSink = SinkAMQP
	want.TM.Worker.LogDir = "/data/logs"
	want.TM.Container.PullCommand = []string{"ch-image", "pull", "{image}"}
	want.Scheduler.Resources = []scheduler.Resource{{ID: "cluster", Cores: 64}, {ID: "login", Cores: 4}}
	want.AMQP.URL = "amqp://guest:guest@mq:5672/"

	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_EmptyFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.TM.Interval != 5*time.Second {
		t.Errorf("interval = %s, want default", cfg.TM.Interval)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("DB_URL", "postgresql://db/beeflow")
	t.Setenv("RABBITMQ_URL", "amqp://mq/")
	t.Setenv("WFM_URL", "http://wfm:8081")
	t.Setenv("TM_URL", "http://tm:8082")

	cfg, err := Load(writeConfig(t, "wfm:\n  db_url: postgresql://file/beeflow\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.WFM.DBURL != "postgresql://db/beeflow" {
		t.Errorf("db url = %s", cfg.WFM.DBURL)
	}
	if cfg.AMQP.URL != "amqp://mq/" {
		t.Errorf("amqp url = %s", cfg.AMQP.URL)
	}
	if cfg.WFM.URL != "http://wfm:8081" || cfg.TM.URL != "http://tm:8082" {
		t.Errorf("urls = %s, %s", cfg.WFM.URL, cfg.TM.URL)
	}
}

func TestLoadDefault_ConfigEnv(t *testing.T) {
	t.Setenv("BEEFLOW_CONFIG", writeConfig(t, "tm:\n  listen: \":7000\"\n"))

	cfg, err := LoadDefault()
	if err != nil {
		t.Fatalf("LoadDefault: %v", err)
	}
	if cfg.TM.Listen != ":7000" {
		t.Errorf("listen = %s, want :7000", cfg.TM.Listen)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"unknown sink", "tm:\n  update_sink: kafka\n"},
		{"amqp without url", "tm:\n  update_sink: amqp\n"},
		{"negative cancel attempts", "tm:\n  max_cancel_attempts: -1\n"},
		{"resource without cores", "scheduler:\n  resources:\n    - {id: a}\n"},
		{"duplicate resource", "scheduler:\n  resources:\n    - {id: a, cores: 1}\n    - {id: a, cores: 2}\n"},
	}

	clearEnv(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("error = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestLoad_ParseErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"unknown field", "wfm:\n  lisen: \":1\"\n"},
		{"bad duration", "tm:\n  interval: soon\n"},
		{"malformed", "wfm: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tt.content)); err == nil {
				t.Error("expected error")
			}
		})
	}
}
