package jobs_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/automlpro/internal/jobs"
	"github.com/kiranshivaraju/automlpro/pkg/models"
	"github.com/stretchr/testify/assert"
)

func sampleJobs() []*models.Job {
	mk := func(prompt string, status models.JobStatus) *models.Job {
		return &models.Job{ID: uuid.New(), Prompt: prompt, Status: status}
	}
	return []*models.Job{
		mk("Predict customer churn", models.JobStatusCompleted),
		mk("Classify product images", models.JobStatusRunning),
		mk("Forecast CHURN risk by region", models.JobStatusFailed),
		mk("Detect fraud", models.JobStatusPending),
		mk("Segment customers", models.JobStatusCompleted),
	}
}

func TestApplyFilter(t *testing.T) {
	all := sampleJobs()

	tests := []struct {
		name   string
		filter jobs.Filter
		want   []int
	}{
		{"zero filter keeps everything", jobs.Filter{}, []int{0, 1, 2, 3, 4}},
		{"status only", jobs.Filter{Status: models.JobStatusCompleted}, []int{0, 4}},
		{"search is case insensitive", jobs.Filter{Search: "churn"}, []int{0, 2}},
		{"search trims whitespace", jobs.Filter{Search: "  fraud "}, []int{3}},
		{"status and search", jobs.Filter{Status: models.JobStatusFailed, Search: "churn"}, []int{2}},
		{"no match", jobs.Filter{Search: "regression"}, []int{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := jobs.ApplyFilter(all, tt.filter)
			want := make([]*models.Job, 0, len(tt.want))
			for _, i := range tt.want {
				want = append(want, all[i])
			}
			assert.Equal(t, want, got)
		})
	}
}

func TestSummarize(t *testing.T) {
	st := jobs.Summarize(sampleJobs())
	assert.Equal(t, jobs.Stats{Total: 5, Pending: 1, Running: 1, Completed: 2, Failed: 1}, st)

	assert.Equal(t, jobs.Stats{}, jobs.Summarize(nil))
}
