package dispatch

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/shaiso/beeflow/internal/domain"
	"github.com/shaiso/beeflow/internal/telemetry"
)

// checkpointUpdate формирует update для упавшего job.
// Если у task есть checkpoint-требование и найден файл, update просит restart.
func (d *Dispatcher) checkpointUpdate(task *domain.Task, jobID string, state domain.TaskState) *domain.TaskUpdate {
	update := jobUpdate(task, jobID, state)

	req, ok := task.Requirement(domain.ClassCheckpoint)
	if !ok {
		return update
	}

	file, err := FindCheckpoint(task, req.Checkpoint())
	if err != nil {
		d.logger.Warn("checkpoint not available",
			"task_id", task.ID,
			"task_name", task.Name,
			"error", err,
		)
		return update
	}

	telemetry.JobEvents.WithLabelValues(telemetry.EventCheckpoint).Inc()
	update.TaskInfo = &domain.TaskInfo{CheckpointFile: file, Restart: true}
	return update
}

// FindCheckpoint ищет самый свежий (по mtime) файл в cp.FilePath,
// имя которого совпадает с cp.FileRegex. Относительный путь
// считается от рабочей директории task.
func FindCheckpoint(task *domain.Task, cp domain.CheckpointSpec) (string, error) {
	if cp.FilePath == "" {
		return "", fmt.Errorf("checkpoint requirement has no %s", domain.ParamFilePath)
	}

	dir := cp.FilePath
	if !filepath.IsAbs(dir) && task.WorkDir != "" {
		dir = filepath.Join(task.WorkDir, dir)
	}

	var pattern *regexp.Regexp
	if cp.FileRegex != "" {
		re, err := regexp.Compile(cp.FileRegex)
		if err != nil {
			return "", fmt.Errorf("compile %s: %w", domain.ParamFileRegex, err)
		}
		pattern = re
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("read checkpoint dir: %w", err)
	}

	var (
		newest     string
		newestTime time.Time
	)
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		if pattern != nil && !pattern.MatchString(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if newest == "" || info.ModTime().After(newestTime) {
			newest = filepath.Join(dir, entry.Name())
			newestTime = info.ModTime()
		}
	}

	if newest == "" {
		return "", fmt.Errorf("no checkpoint files in %s", dir)
	}
	return newest, nil
}
