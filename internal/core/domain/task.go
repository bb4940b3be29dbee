package domain

// Task represents a unit of work in the build.
type Task struct {
	Name         string
	Command      []string
	Inputs       []InputSpec
	Outputs      []OutputSpec
	Dependencies []string
	Environment  map[string]string
	WorkingDir   string
	Cacheable    bool
}

// InputSpec declares a named group of input paths and how their order matters.
type InputSpec struct {
	Name  string
	Paths []string
	Kind  FingerprintKind
}

// OutputSpec declares a named group of output paths.
type OutputSpec struct {
	Name  string
	Paths []string
}

// OutputNames returns the declared output property names in order.
func (t *Task) OutputNames() []string {
	if len(t.Outputs) == 0 {
		return nil
	}
	names := make([]string, len(t.Outputs))
	for i, out := range t.Outputs {
		names[i] = out.Name
	}
	return names
}

// OutputPaths returns every declared output path in declaration order.
func (t *Task) OutputPaths() []string {
	var paths []string
	for _, out := range t.Outputs {
		paths = append(paths, out.Paths...)
	}
	return paths
}
