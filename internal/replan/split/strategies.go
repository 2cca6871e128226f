package split

import (
	"fmt"
	"path"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Focus labels. The dependency chain classifies subtasks by these words.
const (
	focusTests      = "Tests"
	focusTypes      = "Types & Interfaces"
	focusComponents = "Components"
	focusServices   = "Services"
	focusUtilities  = "Utilities"
	focusCore       = "Core"
	focusSetup      = "Setup & Types"
	focusImpl       = "Implementation"
	focusBatch      = "Batch"
)

// group is a set of files destined for one subtask.
type group struct {
	focus string
	files []string
}

// fileRole is one of the by-files categories, matched in declaration order.
type fileRole struct {
	focus    string
	patterns []string
}

var fileRoles = []fileRole{
	{focusTests, []string{
		"**/*.{test,spec}.*",
		"**/*_test.*",
		"**/{test,tests,__tests__}/**",
	}},
	{focusTypes, []string{
		"**/{type,types,interface,interfaces}.*",
		"**/*.{types,d}.*",
		"**/{types,interfaces}/**",
	}},
	{focusComponents, []string{
		"**/{component,components}/**",
		"**/*.{jsx,tsx,vue,svelte}",
	}},
	{focusServices, []string{
		"**/{service,services}/**",
		"**/*{service,Service}.*",
	}},
	{focusUtilities, []string{
		"**/{util,utils,helper,helpers,lib}/**",
		"**/*{util,utils,helper,helpers}.*",
	}},
}

// roleOf returns the focus of the first role whose patterns match file, or
// focusCore if none match.
func roleOf(file string) string {
	p := normalize(file)
	for _, role := range fileRoles {
		for _, pattern := range role.patterns {
			if ok, _ := doublestar.Match(pattern, p); ok {
				return role.focus
			}
		}
	}
	return focusCore
}

// normalize converts a path to slash form without a leading "./" or "/", so
// "**/" prefixes also match files at the root.
func normalize(file string) string {
	p := strings.ReplaceAll(file, "\\", "/")
	p = strings.TrimPrefix(p, "./")
	return strings.TrimPrefix(p, "/")
}

// byFiles groups files by role. A single resulting group is halved so the
// split always yields at least two subtasks.
func byFiles(files []string) []group {
	order := make([]string, 0, len(fileRoles)+1)
	for _, r := range fileRoles {
		order = append(order, r.focus)
	}
	order = append(order, focusCore)

	buckets := make(map[string][]string, len(order))
	for _, f := range files {
		role := roleOf(f)
		buckets[role] = append(buckets[role], f)
	}

	var groups []group
	for _, focus := range order {
		if len(buckets[focus]) > 0 {
			groups = append(groups, group{focus: focus, files: buckets[focus]})
		}
	}
	if len(groups) == 1 {
		return halve(groups[0])
	}
	return groups
}

// byFunctionality separates setup/type files, implementation, and tests.
// Implementation is halved when it holds more than three files. Falls back
// to byFiles when fewer than two groups result.
func byFunctionality(files []string) []group {
	var setup, impl, tests []string
	for _, f := range files {
		name := strings.ToLower(normalize(f))
		switch {
		case containsAnyOf(name, "test", "spec"):
			tests = append(tests, f)
		case containsAnyOf(name, "type", "interface", "config", "constant"):
			setup = append(setup, f)
		default:
			impl = append(impl, f)
		}
	}

	var groups []group
	if len(setup) > 0 {
		groups = append(groups, group{focus: focusSetup, files: setup})
	}
	if len(impl) > 3 {
		groups = append(groups, halve(group{focus: focusImpl, files: impl})...)
	} else if len(impl) > 0 {
		groups = append(groups, group{focus: focusImpl, files: impl})
	}
	if len(tests) > 0 {
		groups = append(groups, group{focus: focusTests, files: tests})
	}
	// A single category would make a one-subtask split, so byFiles gets a
	// chance to separate it further.
	if len(groups) < 2 {
		return byFiles(files)
	}
	return groups
}

// byTime chunks files evenly into n batches.
func byTime(files []string, n int) []group {
	chunks := chunk(files, n)
	groups := make([]group, 0, len(chunks))
	for i, c := range chunks {
		groups = append(groups, group{
			focus: fmt.Sprintf("%s %d/%d", focusBatch, i+1, len(chunks)),
			files: c,
		})
	}
	return groups
}

// halve splits one group into two, keeping its focus with a (1/2), (2/2)
// qualifier.
func halve(g group) []group {
	chunks := chunk(g.files, 2)
	if len(chunks) < 2 {
		return []group{g}
	}
	return []group{
		{focus: fmt.Sprintf("%s (1/2)", g.focus), files: chunks[0]},
		{focus: fmt.Sprintf("%s (2/2)", g.focus), files: chunks[1]},
	}
}

// chunk splits files into at most n contiguous chunks whose sizes differ by
// at most one. Earlier chunks get the extra files.
func chunk(files []string, n int) [][]string {
	if n > len(files) {
		n = len(files)
	}
	if n <= 0 {
		return nil
	}
	size, extra := len(files)/n, len(files)%n
	out := make([][]string, 0, n)
	start := 0
	for i := 0; i < n; i++ {
		end := start + size
		if i < extra {
			end++
		}
		out = append(out, append([]string(nil), files[start:end]...))
		start = end
	}
	return out
}

func containsAnyOf(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// stem returns the lowercase base name of a file without its last extension.
func stem(file string) string {
	base := path.Base(normalize(file))
	return strings.ToLower(strings.TrimSuffix(base, path.Ext(base)))
}
