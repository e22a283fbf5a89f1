package tally

import "tasktally/internal/taskapi"

// Summary is the aggregate computed per project per run.
type Summary struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
}

// Count reduces a combined task sequence to its totals. Pure; a nil sequence
// counts as empty and order does not matter.
func Count(tasks []taskapi.Task) Summary {
	s := Summary{Total: len(tasks)}
	for _, t := range tasks {
		if t.Completed {
			s.Completed++
		}
	}
	return s
}
