// Package domain contains the core value types of the incremental-execution cache
// and the task graph it is driven by.
package domain

import (
	"iter"
	"path/filepath"
	"slices"
	"strings"

	"go.trai.ch/zerr"
)

// Graph represents a dependency graph of tasks.
type Graph struct {
	root           string
	tasks          map[string]Task
	dependents     map[string][]string
	executionOrder []string
}

// NewGraph creates a new empty Graph.
func NewGraph() *Graph {
	return &Graph{
		tasks:      make(map[string]Task),
		dependents: make(map[string][]string),
	}
}

// SetRoot sets the directory task paths are relative to.
func (g *Graph) SetRoot(root string) {
	g.root = root
}

// Root returns the directory task paths are relative to.
func (g *Graph) Root() string {
	return g.root
}

// AddTask adds a task to the graph.
// It returns an error if a task with the same name already exists.
func (g *Graph) AddTask(t *Task) error {
	if _, exists := g.tasks[t.Name]; exists {
		return zerr.With(zerr.Wrap(ErrTaskAlreadyExists, "duplicate task"), "task_name", t.Name)
	}
	g.tasks[t.Name] = *t
	for _, dep := range t.Dependencies {
		g.dependents[dep] = append(g.dependents[dep], t.Name)
	}
	return nil
}

// GetTask returns the task with the given name.
func (g *Graph) GetTask(name string) (Task, bool) {
	t, ok := g.tasks[name]
	return t, ok
}

// TaskCount returns the number of tasks in the graph.
func (g *Graph) TaskCount() int {
	return len(g.tasks)
}

// Dependents returns the names of tasks that depend on the given task.
func (g *Graph) Dependents(name string) []string {
	return g.dependents[name]
}

// Validate checks for cycles and missing dependencies using a topological sort.
// It populates the execution order used by Walk. Tasks are visited by name so
// the order is deterministic.
func (g *Graph) Validate() error {
	g.executionOrder = make([]string, 0, len(g.tasks))
	visited := make(map[string]int) // 0: unvisited, 1: visiting, 2: visited
	var path []string

	var visit func(u string) error
	visit = func(u string) error {
		visited[u] = 1
		path = append(path, u)

		task, exists := g.tasks[u]
		if !exists {
			return zerr.With(zerr.Wrap(ErrMissingDependency, "unknown dependency"), "dependency", u)
		}

		for _, dep := range task.Dependencies {
			if visited[dep] == 1 {
				return buildCycleError(path, dep)
			}
			if visited[dep] == 0 {
				if err := visit(dep); err != nil {
					return err
				}
			}
		}

		visited[u] = 2
		path = path[:len(path)-1]
		g.executionOrder = append(g.executionOrder, u)
		return nil
	}

	names := make([]string, 0, len(g.tasks))
	for name := range g.tasks {
		names = append(names, name)
	}
	slices.Sort(names)

	for _, name := range names {
		if visited[name] == 0 {
			if err := visit(name); err != nil {
				return err
			}
		}
	}

	return nil
}

func buildCycleError(path []string, dep string) error {
	start := slices.Index(path, dep)
	cycle := append(slices.Clone(path[start:]), dep)
	return zerr.With(zerr.Wrap(ErrCycleDetected, "invalid task graph"), "cycle", strings.Join(cycle, " -> "))
}

// Walk returns an iterator that yields tasks in execution order.
// It assumes Validate() has been called and returned nil.
func (g *Graph) Walk() iter.Seq[Task] {
	return func(yield func(Task) bool) {
		for _, name := range g.executionOrder {
			if !yield(g.tasks[name]) {
				return
			}
		}
	}
}

// OverlappingOutputs reports, per task, the output property names whose paths are
// also claimed by another task. Paths are compared after cleaning, and a path
// nested inside another task's output counts as overlapping.
func (g *Graph) OverlappingOutputs() map[string][]string {
	type claim struct {
		task     string
		property string
		path     string
	}
	var claims []claim
	for name, t := range g.tasks {
		for _, out := range t.Outputs {
			for _, p := range out.Paths {
				claims = append(claims, claim{task: name, property: out.Name, path: filepath.Clean(p)})
			}
		}
	}

	overlaps := make(map[string][]string)
	mark := func(c claim) {
		if !slices.Contains(overlaps[c.task], c.property) {
			overlaps[c.task] = append(overlaps[c.task], c.property)
		}
	}
	for i := range claims {
		for j := i + 1; j < len(claims); j++ {
			a, b := claims[i], claims[j]
			if a.task == b.task {
				continue
			}
			if pathsOverlap(a.path, b.path) {
				mark(a)
				mark(b)
			}
		}
	}
	for task := range overlaps {
		slices.Sort(overlaps[task])
	}
	return overlaps
}

func pathsOverlap(a, b string) bool {
	if a == b {
		return true
	}
	sep := string(filepath.Separator)
	return strings.HasPrefix(a, b+sep) || strings.HasPrefix(b, a+sep)
}
