package container

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/shaiso/beeflow/internal/domain"
)

func dockerTask(params ...domain.Param) *domain.Task {
	return &domain.Task{
		Name:         "sim",
		Requirements: []domain.Requirement{{Class: domain.ClassDocker, Params: params}},
	}
}

func TestResolve_NoRequirement(t *testing.T) {
	r := NewResolver(Config{})
	if err := r.Resolve(context.Background(), &domain.Task{Name: "plain"}); err != nil {
		t.Errorf("expected no-op, got %v", err)
	}
}

func TestResolve_NoImage(t *testing.T) {
	r := NewResolver(Config{})
	err := r.Resolve(context.Background(), dockerTask())
	if !errors.Is(err, ErrNoImage) {
		t.Errorf("expected ErrNoImage, got %v", err)
	}
}

func TestResolve_ExistingArchive(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "lammps.tar.gz"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	r := NewResolver(Config{ArchiveDir: dir})
	task := dockerTask(
		domain.Param{Key: "dockerPull", Value: "lanl/lammps:latest"},
		domain.Param{Key: "beeflow:containerName", Value: "lammps"},
	)
	if err := r.Resolve(context.Background(), task); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestResolve_PullCommand(t *testing.T) {
	dir := t.TempDir()
	marker := filepath.Join(t.TempDir(), "pulls")

	// Команда pull создаёт архив и дописывает строку в marker
	r := NewResolver(Config{
		ArchiveDir:  dir,
		PullCommand: []string{"sh", "-c", "echo {image} >> " + marker + " && touch {archive}"},
	})
	task := dockerTask(domain.Param{Key: "dockerPull", Value: "alpine:3"})

	for i := 0; i < 2; i++ {
		if err := r.Resolve(context.Background(), task); err != nil {
			t.Fatalf("resolve %d: %v", i, err)
		}
	}

	if _, err := os.Stat(filepath.Join(dir, "alpine_3.tar.gz")); err != nil {
		t.Errorf("archive not created: %v", err)
	}
	data, err := os.ReadFile(marker)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "alpine:3\n" {
		t.Errorf("pull must run once, marker: %q", data)
	}
}

func TestResolve_PullFails(t *testing.T) {
	r := NewResolver(Config{
		ArchiveDir:  t.TempDir(),
		PullCommand: []string{"sh", "-c", "exit 3"},
	})
	task := dockerTask(domain.Param{Key: "dockerPull", Value: "broken"})

	if err := r.Resolve(context.Background(), task); err == nil {
		t.Error("expected error")
	}
}

func TestArchiveName(t *testing.T) {
	tests := []struct {
		spec domain.DockerSpec
		want string
	}{
		{domain.DockerSpec{Pull: "lanl/lammps:2023"}, "lanl_lammps_2023"},
		{domain.DockerSpec{Pull: "x", ContainerName: "custom"}, "custom"},
		{domain.DockerSpec{File: "/src/Dockerfile.sim"}, "Dockerfile"},
	}
	for _, tt := range tests {
		if got := ArchiveName(tt.spec); got != tt.want {
			t.Errorf("ArchiveName(%+v) = %s, want %s", tt.spec, got, tt.want)
		}
	}
}
