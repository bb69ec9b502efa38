package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"

	"github.com/shaiso/beeflow/internal/scheduler"
	"gopkg.in/yaml.v3"
)

// DefaultPath — файл конфигурации, если BEEFLOW_CONFIG не задан.
const DefaultPath = "beeflow.yaml"

// Способы доставки updates из Task Manager'а.
const (
	SinkHTTP = "http"
	SinkAMQP = "amqp"
)

// Config — конфигурация всех процессов beeflow.
type Config struct {
	WFM       WFMConfig       `yaml:"wfm"`
	TM        TMConfig        `yaml:"tm"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	AMQP      AMQPConfig      `yaml:"amqp"`
}

// WFMConfig — Workflow Manager.
type WFMConfig struct {
	// Listen — адрес HTTP API.
	Listen string `yaml:"listen"`

	// URL — адрес, по которому WFM видят CLI и TM.
	URL string `yaml:"url"`

	// DBURL — DSN Postgres. Пусто — repo.DefaultDSN.
	DBURL string `yaml:"db_url"`

	// WorkDirRoot — корень рабочих директорий workflows.
	WorkDirRoot string `yaml:"workdir_root"`

	// ArchiveDir — каталог архивов.
	ArchiveDir string `yaml:"archive_dir"`

	// RequestTimeout — таймаут вызовов TM.
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// TMConfig — Task Manager.
type TMConfig struct {
	Listen string `yaml:"listen"`
	URL    string `yaml:"url"`

	// QueuePath — файл SQLite с очередями.
	QueuePath string `yaml:"queue_path"`

	// UpdateSink — http или amqp.
	UpdateSink string `yaml:"update_sink"`

	Interval          time.Duration `yaml:"interval"`
	WorkerTimeout     time.Duration `yaml:"worker_timeout"`
	BuildTimeout      time.Duration `yaml:"build_timeout"`
	DeliveryTimeout   time.Duration `yaml:"delivery_timeout"`
	MaxCancelAttempts int           `yaml:"max_cancel_attempts"`

	Worker    WorkerConfig    `yaml:"worker"`
	Container ContainerConfig `yaml:"container"`
}

// WorkerConfig — backend batch-планировщика.
type WorkerConfig struct {
	Backend string `yaml:"backend"`
	LogDir  string `yaml:"log_dir"`
}

// ContainerConfig — подготовка образов контейнеров.
type ContainerConfig struct {
	ArchiveDir   string   `yaml:"archive_dir"`
	PullCommand  []string `yaml:"pull_command"`
	BuildCommand []string `yaml:"build_command"`
}

// SchedulerConfig — ресурсы FCFS-планировщика.
type SchedulerConfig struct {
	Resources []scheduler.Resource `yaml:"resources"`
}

// AMQPConfig — RabbitMQ.
type AMQPConfig struct {
	// URL — пусто означает, что RabbitMQ не используется.
	URL string `yaml:"url"`
}

// Default возвращает конфигурацию по умолчанию.
func Default() *Config {
	return &Config{
		WFM: WFMConfig{
			Listen:         ":8081",
			URL:            "http://localhost:8081",
			WorkDirRoot:    "var/workflows",
			ArchiveDir:     "var/archives",
			RequestTimeout: 30 * time.Second,
		},
		TM: TMConfig{
			Listen:            ":8082",
			URL:               "http://localhost:8082",
			QueuePath:         "var/tm/queues.db",
			UpdateSink:        SinkHTTP,
			Interval:          5 * time.Second,
			WorkerTimeout:     30 * time.Second,
			BuildTimeout:      10 * time.Minute,
			DeliveryTimeout:   30 * time.Second,
			MaxCancelAttempts: 3,
			Worker: WorkerConfig{
				Backend: "local",
				LogDir:  "var/tm/logs",
			},
			Container: ContainerConfig{
				ArchiveDir: "var/containers",
			},
		},
	}
}

// Load читает конфигурацию из path поверх значений по умолчанию
// и применяет переменные окружения. Отсутствующий файл не ошибка.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDefault читает файл из BEEFLOW_CONFIG или DefaultPath.
func LoadDefault() (*Config, error) {
	path := os.Getenv("BEEFLOW_CONFIG")
	if path == "" {
		path = DefaultPath
	}
	return Load(path)
}

// applyEnv применяет переопределения из окружения.
func (c *Config) applyEnv() {
	if v := os.Getenv("DB_URL"); v != "" {
		c.WFM.DBURL = v
	}
	if v := os.Getenv("RABBITMQ_URL"); v != "" {
		c.AMQP.URL = v
	}
	if v := os.Getenv("WFM_URL"); v != "" {
		c.WFM.URL = v
	}
	if v := os.Getenv("TM_URL"); v != "" {
		c.TM.URL = v
	}
}

// Validate проверяет согласованность конфигурации.
func (c *Config) Validate() error {
	switch c.TM.UpdateSink {
	case SinkHTTP:
	case SinkAMQP:
		if c.AMQP.URL == "" {
			return fmt.Errorf("%w: update_sink amqp requires amqp.url", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown update_sink %q", ErrInvalidConfig, c.TM.UpdateSink)
	}

	if c.TM.QueuePath == "" {
		return fmt.Errorf("%w: tm.queue_path is empty", ErrInvalidConfig)
	}
	if c.TM.MaxCancelAttempts < 0 {
		return fmt.Errorf("%w: tm.max_cancel_attempts is negative", ErrInvalidConfig)
	}

	seen := make(map[string]struct{}, len(c.Scheduler.Resources))
	for _, r := range c.Scheduler.Resources {
		if r.ID == "" || r.Cores <= 0 {
			return fmt.Errorf("%w: resource %q needs id and positive cores", ErrInvalidConfig, r.ID)
		}
		if _, dup := seen[r.ID]; dup {
			return fmt.Errorf("%w: duplicate resource %q", ErrInvalidConfig, r.ID)
		}
		seen[r.ID] = struct{}{}
	}
	return nil
}
