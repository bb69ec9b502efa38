package domain

import (
	"fmt"
	"strconv"
)

// Классы требований, которые понимает система.
const (
	ClassCheckpoint = "beeflow:CheckpointRequirement"
	ClassDocker     = "DockerRequirement"
	ClassResource   = "ResourceRequirement"
)

// Ключи параметров checkpoint-требования.
const (
	ParamFilePath          = "file_path"
	ParamFileRegex         = "file_regex"
	ParamRestartParameters = "restart_parameters"
	ParamNumTries          = "num_tries"
	ParamRestartCount      = "restart_count"
	ParamCheckpointFile    = "checkpoint_file"
	ParamRestart           = "restart"
)

// Requirement — hint или requirement: имя класса + упорядоченные параметры.
//
// Потребители (checkpoint, контейнеры, scheduler) выбирают требование
// по Class и читают его через типизированные представления
// Checkpoint(), Docker(), Resources().
type Requirement struct {
	Class  string  `json:"class" yaml:"class"`
	Params []Param `json:"params,omitempty" yaml:"params,omitempty"`
}

// Param — пара ключ/значение требования.
type Param struct {
	Key   string `json:"key" yaml:"key"`
	Value any    `json:"value" yaml:"value"`
}

// Get возвращает значение параметра.
func (r *Requirement) Get(key string) (any, bool) {
	for _, p := range r.Params {
		if p.Key == key {
			return p.Value, true
		}
	}
	return nil, false
}

// Set устанавливает параметр, сохраняя порядок существующих.
func (r *Requirement) Set(key string, value any) {
	for i := range r.Params {
		if r.Params[i].Key == key {
			r.Params[i].Value = value
			return
		}
	}
	r.Params = append(r.Params, Param{Key: key, Value: value})
}

// String возвращает параметр как строку ("" если нет).
func (r *Requirement) String(key string) string {
	v, ok := r.Get(key)
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Int возвращает параметр как целое число.
// Понимает int, int64, float64 (после JSON) и строки.
func (r *Requirement) Int(key string) (int, bool) {
	v, ok := r.Get(key)
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	case string:
		i, err := strconv.Atoi(n)
		if err != nil {
			return 0, false
		}
		return i, true
	default:
		return 0, false
	}
}

// Bool возвращает параметр как bool.
func (r *Requirement) Bool(key string) bool {
	v, ok := r.Get(key)
	if !ok {
		return false
	}
	switch b := v.(type) {
	case bool:
		return b
	case string:
		parsed, _ := strconv.ParseBool(b)
		return parsed
	default:
		return false
	}
}

// CheckpointSpec — представление beeflow:CheckpointRequirement.
type CheckpointSpec struct {
	FilePath          string
	FileRegex         string
	RestartParameters string
	NumTries          int
	RestartCount      int
	CheckpointFile    string
	Restart           bool
}

// Checkpoint читает параметры checkpoint-требования.
func (r *Requirement) Checkpoint() CheckpointSpec {
	numTries, _ := r.Int(ParamNumTries)
	count, _ := r.Int(ParamRestartCount)
	return CheckpointSpec{
		FilePath:          r.String(ParamFilePath),
		FileRegex:         r.String(ParamFileRegex),
		RestartParameters: r.String(ParamRestartParameters),
		NumTries:          numTries,
		RestartCount:      count,
		CheckpointFile:    r.String(ParamCheckpointFile),
		Restart:           r.Bool(ParamRestart),
	}
}

// DockerSpec — представление DockerRequirement.
type DockerSpec struct {
	Pull          string
	File          string
	ContainerName string
}

// Docker читает параметры DockerRequirement.
func (r *Requirement) Docker() DockerSpec {
	return DockerSpec{
		Pull:          r.String("dockerPull"),
		File:          r.String("dockerFile"),
		ContainerName: r.String("beeflow:containerName"),
	}
}

// ResourceSpec — представление ResourceRequirement.
type ResourceSpec struct {
	CoresMin int
}

// Resources читает параметры ResourceRequirement. По умолчанию одно ядро.
func (r *Requirement) Resources() ResourceSpec {
	cores, ok := r.Int("coresMin")
	if !ok || cores <= 0 {
		cores = 1
	}
	return ResourceSpec{CoresMin: cores}
}

func cloneRequirements(reqs []Requirement) []Requirement {
	if reqs == nil {
		return nil
	}
	out := make([]Requirement, len(reqs))
	for i, r := range reqs {
		out[i] = Requirement{Class: r.Class, Params: make([]Param, len(r.Params))}
		for j, p := range r.Params {
			out[i].Params[j] = Param{Key: p.Key, Value: cloneValue(p.Value)}
		}
	}
	return out
}
