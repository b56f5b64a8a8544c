package model

import (
	"strings"

	"jobmate/dashboard-service/internal/pipeline"
)

// MatchesQuery returns true if query appears (case-insensitive) in the
// title, description, company or location of the job. An empty query
// matches everything.
func MatchesQuery(job JobRecord, query string) bool {
	if query == "" {
		return true
	}
	q := strings.ToLower(query)
	for _, field := range []string{job.Title, job.Description, job.Company, job.Location} {
		if strings.Contains(strings.ToLower(field), q) {
			return true
		}
	}
	return false
}

// Filter returns the jobs matching query whose status is one of statuses.
// No statuses means any status.
func Filter(jobs []JobRecord, query string, statuses ...pipeline.Status) []JobRecord {
	out := make([]JobRecord, 0, len(jobs))
	for _, j := range jobs {
		if len(statuses) > 0 && !hasStatus(statuses, j.Status) {
			continue
		}
		if !MatchesQuery(j, query) {
			continue
		}
		out = append(out, j)
	}
	return out
}

func hasStatus(statuses []pipeline.Status, s pipeline.Status) bool {
	for _, st := range statuses {
		if st == s {
			return true
		}
	}
	return false
}

// Views groups statuses the way the dashboard screens consume them.
var Views = map[string][]pipeline.Status{
	"triage":     {pipeline.StatusNew},
	"editor":     {pipeline.StatusToVerify},
	"submission": {pipeline.StatusReady},
	"dashboard":  {pipeline.StatusSent, pipeline.StatusInterview, pipeline.StatusOffer, pipeline.StatusRejected},
}
