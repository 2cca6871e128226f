package split

import (
	"slices"
	"strings"

	"github.com/Iron-Ham/replan/internal/errors"
	"github.com/Iron-Ham/replan/internal/replan"
)

// Class orders subtasks in the dependency chain.
type Class int

const (
	ClassFoundation Class = iota
	ClassImplementation
	ClassTest
)

// String returns a human-readable name for a class.
func (c Class) String() string {
	switch c {
	case ClassFoundation:
		return "foundation"
	case ClassImplementation:
		return "implementation"
	case ClassTest:
		return "test"
	default:
		return "unknown"
	}
}

// Classify derives a subtask's class from the focus in its name (the text
// after the last ": ").
func Classify(name string) Class {
	focus := name
	if i := strings.LastIndex(name, ": "); i >= 0 {
		focus = name[i+2:]
	}
	switch {
	case strings.Contains(focus, "Types"), strings.Contains(focus, "Setup"), strings.Contains(focus, "Interface"):
		return ClassFoundation
	case strings.Contains(focus, "Tests"):
		return ClassTest
	default:
		return ClassImplementation
	}
}

// linkDependencies makes implementation and test subtasks depend on every
// foundation subtask, and test subtasks on every implementation subtask.
func linkDependencies(subtasks []replan.Task) {
	var foundation, impl []string
	for _, st := range subtasks {
		switch Classify(st.Name) {
		case ClassFoundation:
			foundation = append(foundation, st.ID)
		case ClassImplementation:
			impl = append(impl, st.ID)
		}
	}

	for i := range subtasks {
		var deps []string
		switch Classify(subtasks[i].Name) {
		case ClassImplementation:
			deps = foundation
		case ClassTest:
			deps = append(slices.Clone(foundation), impl...)
		}
		for _, d := range deps {
			if !slices.Contains(subtasks[i].Dependencies, d) {
				subtasks[i].Dependencies = append(subtasks[i].Dependencies, d)
			}
		}
	}
}

// ExecutionOrder groups tasks into levels that can run in parallel: every
// task in level N depends only on tasks in earlier levels. Dependencies on
// IDs outside the set are ignored. Returns ErrDependencyCycle if the tasks
// cannot be ordered.
func ExecutionOrder(tasks []replan.Task) ([][]string, error) {
	index := make(map[string]int, len(tasks))
	for i, t := range tasks {
		index[t.ID] = i
	}

	inDegree := make(map[string]int, len(tasks))
	dependents := make(map[string][]string, len(tasks))
	for _, t := range tasks {
		inDegree[t.ID] += 0
		for _, dep := range t.Dependencies {
			if _, ok := index[dep]; ok {
				inDegree[t.ID]++
				dependents[dep] = append(dependents[dep], t.ID)
			}
		}
	}

	// Kahn's algorithm level by level; within a level keep input order.
	var level []string
	for _, t := range tasks {
		if inDegree[t.ID] == 0 {
			level = append(level, t.ID)
		}
	}

	var levels [][]string
	placed := 0
	for len(level) > 0 {
		levels = append(levels, level)
		placed += len(level)

		var next []string
		for _, id := range level {
			for _, dep := range dependents[id] {
				inDegree[dep]--
				if inDegree[dep] == 0 {
					next = append(next, dep)
				}
			}
		}
		slices.SortFunc(next, func(a, b string) int { return index[a] - index[b] })
		level = next
	}

	if placed != len(tasks) {
		return levels, errors.ErrDependencyCycle
	}
	return levels, nil
}
