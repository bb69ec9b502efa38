package container

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/shaiso/beeflow/internal/domain"
)

// ErrNoImage — DockerRequirement без dockerPull и dockerFile.
var ErrNoImage = errors.New("docker requirement has no image")

// Плейсхолдеры в командах pull/build.
const (
	PlaceholderImage   = "{image}"
	PlaceholderArchive = "{archive}"
	PlaceholderFile    = "{file}"
)

// Config — конфигурация Resolver.
type Config struct {
	// ArchiveDir — каталог с архивами образов.
	ArchiveDir string

	// PullCommand — argv для скачивания образа, например
	// ["ch-image", "pull", "{image}"]. Пусто — только проверка архива.
	PullCommand []string

	// BuildCommand — argv для сборки из dockerFile.
	BuildCommand []string

	// Logger
	Logger *slog.Logger
}

// Resolver — Container Environment коллаборатор.
type Resolver struct {
	archiveDir   string
	pullCommand  []string
	buildCommand []string
	logger       *slog.Logger

	resolved map[string]struct{}
	mu       sync.Mutex
}

// NewResolver создаёт Resolver.
func NewResolver(cfg Config) *Resolver {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		archiveDir:   cfg.ArchiveDir,
		pullCommand:  cfg.PullCommand,
		buildCommand: cfg.BuildCommand,
		logger:       logger.With("component", "container"),
		resolved:     make(map[string]struct{}),
	}
}

// Resolve гарантирует, что образ task доступен.
func (r *Resolver) Resolve(ctx context.Context, task *domain.Task) error {
	req, ok := task.Requirement(domain.ClassDocker)
	if !ok {
		return nil
	}
	spec := req.Docker()
	if spec.Pull == "" && spec.File == "" {
		return ErrNoImage
	}

	name := ArchiveName(spec)
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, done := r.resolved[name]; done {
		return nil
	}

	archive := filepath.Join(r.archiveDir, name+".tar.gz")
	if _, err := os.Stat(archive); err == nil {
		r.resolved[name] = struct{}{}
		return nil
	}

	// 1. Выбираем команду: build для dockerFile, иначе pull
	argv := r.pullCommand
	if spec.File != "" {
		argv = r.buildCommand
	}
	if len(argv) == 0 {
		return fmt.Errorf("container archive %s missing and no command configured", archive)
	}

	// 2. Подставляем плейсхолдеры
	replacer := strings.NewReplacer(
		PlaceholderImage, spec.Pull,
		PlaceholderArchive, archive,
		PlaceholderFile, spec.File,
	)
	args := make([]string, len(argv))
	for i, a := range argv {
		args[i] = replacer.Replace(a)
	}

	if err := os.MkdirAll(r.archiveDir, 0o750); err != nil {
		return fmt.Errorf("create archive dir: %w", err)
	}

	// 3. Запускаем
	r.logger.Info("preparing container", "name", name, "command", args)
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("prepare container %s: %w: %s", name, err, strings.TrimSpace(string(out)))
	}

	r.resolved[name] = struct{}{}
	return nil
}

// ArchiveName возвращает имя архива образа:
// beeflow:containerName либо dockerPull с заменой / и : на _.
func ArchiveName(spec domain.DockerSpec) string {
	if spec.ContainerName != "" {
		return spec.ContainerName
	}
	if spec.Pull == "" {
		return strings.TrimSuffix(filepath.Base(spec.File), filepath.Ext(spec.File))
	}
	return strings.NewReplacer("/", "_", ":", "_").Replace(spec.Pull)
}
