package split

import (
	"fmt"
	"strings"

	"github.com/Iron-Ham/replan/internal/replan"
)

// distributeCriteria assigns each acceptance criterion to the first subtask
// owning a file whose stem appears in the criterion text. When several
// subtasks match, the earliest one wins. Unmatched criteria go to the first
// subtask, and subtasks left without criteria get one naming their files.
func distributeCriteria(criteria []string, subtasks []replan.Task) {
	if len(subtasks) == 0 {
		return
	}

	for _, c := range criteria {
		idx := matchCriterion(c, subtasks)
		if idx < 0 {
			idx = 0
		}
		subtasks[idx].AcceptanceCriteria = append(subtasks[idx].AcceptanceCriteria, c)
	}

	for i := range subtasks {
		if len(subtasks[i].AcceptanceCriteria) == 0 {
			subtasks[i].AcceptanceCriteria = []string{
				fmt.Sprintf("Changes to %s are complete and working", strings.Join(subtasks[i].Files, ", ")),
			}
		}
	}
}

// matchCriterion returns the index of the first subtask with a file stem
// contained in criterion, or -1.
func matchCriterion(criterion string, subtasks []replan.Task) int {
	text := strings.ToLower(criterion)
	for i, st := range subtasks {
		for _, f := range st.Files {
			if s := stem(f); s != "" && strings.Contains(text, s) {
				return i
			}
		}
	}
	return -1
}
