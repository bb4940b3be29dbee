package config

// Manifest represents the structure of the memo.yaml configuration file.
// Settings keys (state, cache, remote, ...) live in the same file and are read
// separately by LoadSettings.
type Manifest struct {
	Version string              `yaml:"version"`
	Root    string              `yaml:"root"`
	Tasks   map[string]*TaskDTO `yaml:"tasks"`
}

// TaskDTO represents a task definition in the configuration.
type TaskDTO struct {
	Cmd         []string          `yaml:"cmd"`
	Inputs      []InputDTO        `yaml:"inputs"`
	Outputs     []OutputDTO       `yaml:"outputs"`
	DependsOn   []string          `yaml:"dependsOn"`
	Environment map[string]string `yaml:"environment"`
	WorkingDir  string            `yaml:"workingDir"`
	Cacheable   *bool             `yaml:"cacheable"`
}

// InputDTO declares a named input property. Kind is "ordered" or "unordered"
// and defaults to unordered.
type InputDTO struct {
	Name  string   `yaml:"name"`
	Paths []string `yaml:"paths"`
	Kind  string   `yaml:"kind"`
}

// OutputDTO declares a named output property.
type OutputDTO struct {
	Name  string   `yaml:"name"`
	Paths []string `yaml:"paths"`
}
