package model_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"jobmate/dashboard-service/internal/model"
	"jobmate/dashboard-service/internal/pipeline"
)

func TestMatchesQuery(t *testing.T) {
	job := model.JobRecord{Title: "Backend Developer", Company: "Acme", Location: "Lyon", Description: "Go and Postgres"}

	assert.True(t, model.MatchesQuery(job, ""))
	assert.True(t, model.MatchesQuery(job, "backend"))
	assert.True(t, model.MatchesQuery(job, "ACME"))
	assert.True(t, model.MatchesQuery(job, "lyon"))
	assert.True(t, model.MatchesQuery(job, "postgres"))
	assert.False(t, model.MatchesQuery(job, "paris"))
}

func TestFilter_ByStatusAndQuery(t *testing.T) {
	jobs := []model.JobRecord{
		{ID: "1", Title: "Go dev", Status: pipeline.StatusNew},
		{ID: "2", Title: "Go lead", Status: pipeline.StatusSent},
		{ID: "3", Title: "Java dev", Status: pipeline.StatusNew},
		{ID: "4", Title: "Go ops", Status: pipeline.StatusOffer},
	}

	got := model.Filter(jobs, "go", model.Views["dashboard"]...)
	assert.Equal(t, []string{"2", "4"}, ids(got))

	got = model.Filter(jobs, "", pipeline.StatusNew)
	assert.Equal(t, []string{"1", "3"}, ids(got))

	got = model.Filter(jobs, "dev")
	assert.Equal(t, []string{"1", "3"}, ids(got))
}

func ids(jobs []model.JobRecord) []string {
	out := make([]string, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, j.ID)
	}
	return out
}
