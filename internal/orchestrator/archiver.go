package orchestrator

import (
	"archive/tar"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"
	"github.com/shaiso/beeflow/internal/domain"
	"github.com/shaiso/beeflow/internal/repo"
)

// ArchiveStore — журнал архивирования (repo.ArchiveRepo).
type ArchiveStore interface {
	CreateArchive(ctx context.Context, rec *repo.ArchiveRecord) error
	GetArchive(ctx context.Context, wfID uuid.UUID) (*repo.ArchiveRecord, error)
}

// FileArchiver пишет архив workflow в каталог:
//
//	<dir>/<wf_id>/graph.json          — снимок графа
//	<dir>/<wf_id>/<name>-<wf_id>.tgz  — рабочая директория
//
// Повторный Archive того же workflow ничего не делает.
type FileArchiver struct {
	dir    string
	store  ArchiveStore
	logger *slog.Logger

	done map[uuid.UUID]struct{}
	mu   sync.Mutex
}

// FileArchiverConfig — конфигурация FileArchiver.
type FileArchiverConfig struct {
	Dir    string
	Store  ArchiveStore // опционально
	Logger *slog.Logger
}

// NewFileArchiver создаёт FileArchiver.
func NewFileArchiver(cfg FileArchiverConfig) *FileArchiver {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &FileArchiver{
		dir:    cfg.Dir,
		store:  cfg.Store,
		logger: logger.With("component", "archiver"),
		done:   make(map[uuid.UUID]struct{}),
	}
}

// Archive экспортирует граф, сжимает workdir и записывает журнал.
func (a *FileArchiver) Archive(ctx context.Context, bundle *domain.Bundle, final domain.ArchiveFinal) error {
	id := bundle.Workflow.ID

	a.mu.Lock()
	defer a.mu.Unlock()

	// 1. Идемпотентность: память процесса, затем журнал
	if _, ok := a.done[id]; ok {
		return nil
	}
	if a.store != nil {
		_, err := a.store.GetArchive(ctx, id)
		if err == nil {
			a.done[id] = struct{}{}
			return nil
		}
		if !errors.Is(err, repo.ErrNotFound) {
			return fmt.Errorf("check archive record: %w", err)
		}
	}

	dest := filepath.Join(a.dir, id.String())
	if err := os.MkdirAll(dest, 0o750); err != nil {
		return fmt.Errorf("create archive dir: %w", err)
	}

	// 2. Граф
	graphPath := filepath.Join(dest, "graph.json")
	if err := writeJSON(graphPath, bundle); err != nil {
		return fmt.Errorf("export graph: %w", err)
	}

	// 3. Рабочая директория
	var archivePath string
	if wd := bundle.Workflow.WorkDir; wd != "" {
		archivePath = filepath.Join(dest, fmt.Sprintf("%s-%s.tgz", bundle.Workflow.Name, id))
		if err := compressDir(ctx, wd, archivePath); err != nil {
			return fmt.Errorf("compress workdir: %w", err)
		}
	}

	// 4. Журнал
	if a.store != nil {
		rec := &repo.ArchiveRecord{
			WorkflowID:  id,
			FinalState:  string(final),
			GraphPath:   graphPath,
			ArchivePath: archivePath,
			ArchivedAt:  time.Now().UTC(),
		}
		if err := a.store.CreateArchive(ctx, rec); err != nil && !errors.Is(err, repo.ErrAlreadyExists) {
			return fmt.Errorf("record archive: %w", err)
		}
	}

	a.done[id] = struct{}{}
	a.logger.Info("workflow archive written",
		"wf_id", id,
		"final", final,
		"graph", graphPath,
		"archive", archivePath,
	)
	return nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o640)
}

// compressDir пишет tar.gz содержимого src. Несуществующая src даёт пустой архив.
func compressDir(ctx context.Context, src, dst string) (err error) {
	f, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	gz := gzip.NewWriter(f)
	tw := tar.NewWriter(gz)

	walkErr := filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && path == src {
				return filepath.SkipAll
			}
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(src, path)
		if err != nil || rel == "." {
			return err
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() && !info.IsDir() {
			return nil
		}

		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		return copyFile(tw, path)
	})
	if walkErr != nil {
		return walkErr
	}

	if err := tw.Close(); err != nil {
		return err
	}
	return gz.Close()
}

func copyFile(w io.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(w, f)
	return err
}
