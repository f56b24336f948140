package jobs

import (
	"strings"

	"github.com/kiranshivaraju/automlpro/pkg/models"
)

// Filter narrows a job list for the dashboard. Zero values match everything.
type Filter struct {
	Status models.JobStatus
	Search string
}

// ApplyFilter returns the jobs whose status equals f.Status and whose prompt
// contains f.Search, ignoring case. Order is preserved.
func ApplyFilter(jobs []*models.Job, f Filter) []*models.Job {
	search := strings.ToLower(strings.TrimSpace(f.Search))
	out := make([]*models.Job, 0, len(jobs))
	for _, j := range jobs {
		if f.Status != "" && j.Status != f.Status {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(j.Prompt), search) {
			continue
		}
		out = append(out, j)
	}
	return out
}

// Stats counts jobs by status.
type Stats struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

func Summarize(jobs []*models.Job) Stats {
	st := Stats{Total: len(jobs)}
	for _, j := range jobs {
		switch j.Status {
		case models.JobStatusPending:
			st.Pending++
		case models.JobStatusRunning:
			st.Running++
		case models.JobStatusCompleted:
			st.Completed++
		case models.JobStatusFailed:
			st.Failed++
		}
	}
	return st
}
