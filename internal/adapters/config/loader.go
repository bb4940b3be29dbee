// Package config loads the task manifest and the runtime settings of memo.
package config

import (
	"errors"
	"os"
	"path/filepath"
	"slices"

	"go.trai.ch/memo/internal/core/domain"
	"go.trai.ch/memo/internal/core/ports"
	"go.trai.ch/zerr"
	"gopkg.in/yaml.v3"
)

// reservedTaskName selects every task on the command line.
const reservedTaskName = "all"

// Loader implements ports.ConfigLoader using a YAML file.
type Loader struct {
	Logger ports.Logger
}

// NewLoader creates a new Loader with the given logger.
func NewLoader(logger ports.Logger) *Loader {
	return &Loader{Logger: logger}
}

// FindManifest returns the path of the nearest memo.yaml at or above cwd.
func FindManifest(cwd string) (string, error) {
	dir := filepath.Clean(cwd)
	for {
		path := filepath.Join(dir, domain.ManifestFileName)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", zerr.With(zerr.Wrap(domain.ErrConfigNotFound, "manifest lookup failed"), "cwd", cwd)
		}
		dir = parent
	}
}

// Load finds the manifest for cwd and returns its task graph.
func (l *Loader) Load(cwd string) (*domain.Graph, error) {
	path, err := FindManifest(cwd)
	if err != nil {
		return nil, err
	}
	return l.LoadFile(path)
}

// LoadFile reads the manifest at path and returns its task graph.
func (l *Loader) LoadFile(path string) (*domain.Graph, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is the discovered manifest
	if err != nil {
		return nil, zerr.With(zerr.Wrap(errors.Join(domain.ErrConfigReadFailed, err), "failed to load manifest"), "path", path)
	}

	var manifest Manifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, zerr.With(zerr.Wrap(errors.Join(domain.ErrConfigParseFailed, err), "failed to load manifest"), "path", path)
	}

	g := domain.NewGraph()
	g.SetRoot(resolveRoot(path, manifest.Root))

	names := make([]string, 0, len(manifest.Tasks))
	for name := range manifest.Tasks {
		names = append(names, name)
	}
	slices.Sort(names)

	for _, name := range names {
		dto := manifest.Tasks[name]
		if dto == nil {
			dto = &TaskDTO{}
		}
		task, err := l.buildTask(name, dto, manifest.Tasks, g.Root())
		if err != nil {
			return nil, err
		}
		if err := g.AddTask(task); err != nil {
			return nil, err
		}
	}

	return g, nil
}

func (l *Loader) buildTask(name string, dto *TaskDTO, all map[string]*TaskDTO, root string) (*domain.Task, error) {
	if name == reservedTaskName {
		return nil, zerr.With(zerr.Wrap(domain.ErrReservedTaskName, "invalid task name"), "task_name", name)
	}
	for _, dep := range dto.DependsOn {
		if _, ok := all[dep]; !ok {
			return nil, zerr.With(zerr.With(zerr.Wrap(domain.ErrMissingDependency, "unknown dependency"), "task", name), "missing_dependency", dep)
		}
	}

	inputs, err := buildInputs(name, dto.Inputs)
	if err != nil {
		return nil, err
	}
	outputs, err := buildOutputs(name, dto.Outputs)
	if err != nil {
		return nil, err
	}

	cacheable := dto.Cacheable == nil || *dto.Cacheable
	if cacheable && len(outputs) == 0 {
		l.Logger.Warn("task " + name + " declares no outputs, caching only records history")
	}

	return &domain.Task{
		Name:         name,
		Command:      dto.Cmd,
		Inputs:       inputs,
		Outputs:      outputs,
		Dependencies: canonicalizeStrings(dto.DependsOn),
		Environment:  dto.Environment,
		WorkingDir:   resolveWorkingDir(root, dto.WorkingDir),
		Cacheable:    cacheable,
	}, nil
}

func buildInputs(task string, dtos []InputDTO) ([]domain.InputSpec, error) {
	if len(dtos) == 0 {
		return nil, nil
	}
	seen := make(map[string]bool, len(dtos))
	specs := make([]domain.InputSpec, 0, len(dtos))
	for _, in := range dtos {
		if err := checkPropertyName(task, in.Name, seen); err != nil {
			return nil, err
		}
		kind, err := parseKind(in.Kind)
		if err != nil {
			return nil, zerr.With(zerr.With(err, "task", task), "input", in.Name)
		}
		paths := in.Paths
		if kind == domain.Unordered {
			paths = canonicalizeStrings(paths)
		}
		specs = append(specs, domain.InputSpec{Name: in.Name, Paths: paths, Kind: kind})
	}
	return specs, nil
}

func buildOutputs(task string, dtos []OutputDTO) ([]domain.OutputSpec, error) {
	if len(dtos) == 0 {
		return nil, nil
	}
	seen := make(map[string]bool, len(dtos))
	specs := make([]domain.OutputSpec, 0, len(dtos))
	for _, out := range dtos {
		if err := checkPropertyName(task, out.Name, seen); err != nil {
			return nil, err
		}
		specs = append(specs, domain.OutputSpec{Name: out.Name, Paths: canonicalizeStrings(out.Paths)})
	}
	return specs, nil
}

func checkPropertyName(task, name string, seen map[string]bool) error {
	if name == "" {
		return zerr.With(zerr.Wrap(domain.ErrInvalidTask, "property without a name"), "task", task)
	}
	if seen[name] {
		return zerr.With(zerr.With(zerr.Wrap(domain.ErrInvalidTask, "duplicate property name"), "task", task), "property", name)
	}
	seen[name] = true
	return nil
}

func parseKind(s string) (domain.FingerprintKind, error) {
	switch s {
	case "", "unordered":
		return domain.Unordered, nil
	case "ordered":
		return domain.Ordered, nil
	default:
		return 0, zerr.With(zerr.Wrap(domain.ErrInvalidTask, "unknown input kind"), "kind", s)
	}
}

// canonicalizeStrings sorts and deduplicates strs.
func canonicalizeStrings(strs []string) []string {
	if len(strs) == 0 {
		return nil
	}
	sorted := slices.Clone(strs)
	slices.Sort(sorted)
	return slices.Compact(sorted)
}

func resolveRoot(configPath, configuredRoot string) string {
	configDir := filepath.Dir(configPath)
	if configuredRoot == "" {
		return filepath.Clean(configDir)
	}
	if filepath.IsAbs(configuredRoot) {
		return filepath.Clean(configuredRoot)
	}
	return filepath.Clean(filepath.Join(configDir, configuredRoot))
}

func resolveWorkingDir(root, workingDir string) string {
	if workingDir == "" {
		return root
	}
	if filepath.IsAbs(workingDir) {
		return filepath.Clean(workingDir)
	}
	return filepath.Join(root, workingDir)
}
