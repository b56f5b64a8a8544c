package jobs

import (
	"maps"
	"time"

	"jobmate/dashboard-service/internal/model"
	"jobmate/dashboard-service/internal/pipeline"
)

// patch is one optimistic local mutation. seq orders patches against
// fetches: a fetch whose read started after seq supersedes the patch.
type patch struct {
	seq    uint64
	at     time.Time
	status pipeline.Status // empty: status untouched
	fields map[string]string
	draft  []string // serialized cv, cover letter, message; nil: untouched
}

func (p patch) apply(rec *model.JobRecord) {
	if p.status != "" {
		rec.Status = p.status
	}
	if len(p.fields) > 0 {
		rec.ApplyFields(p.fields)
	}
	if p.draft != nil {
		rec.CVText, rec.CoverText, rec.MessageText = p.draft[0], p.draft[1], p.draft[2]
	}
}

// patchSet is the pending tier of the repository state, keyed by job id.
type patchSet map[string][]patch

func (ps patchSet) add(id string, p patch) {
	if p.fields != nil {
		p.fields = maps.Clone(p.fields)
	}
	ps[id] = append(ps[id], p)
}

// supersede drops every patch issued at or before seq.
func (ps patchSet) supersede(seq uint64) {
	for id, list := range ps {
		kept := list[:0]
		for _, p := range list {
			if p.seq > seq {
				kept = append(kept, p)
			}
		}
		if len(kept) == 0 {
			delete(ps, id)
		} else {
			ps[id] = kept
		}
	}
}

// expire drops patches older than ttl. A zero ttl keeps everything.
func (ps patchSet) expire(now time.Time, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	for id, list := range ps {
		kept := list[:0]
		for _, p := range list {
			if now.Sub(p.at) < ttl {
				kept = append(kept, p)
			}
		}
		if len(kept) == 0 {
			delete(ps, id)
		} else {
			ps[id] = kept
		}
	}
}

// overlay returns rec with its live patches applied in issue order.
func (ps patchSet) overlay(rec model.JobRecord, now time.Time, ttl time.Duration) model.JobRecord {
	list := ps[rec.ID]
	if len(list) == 0 {
		return rec
	}
	rec = rec.Clone()
	for _, p := range list {
		if ttl > 0 && now.Sub(p.at) >= ttl {
			continue
		}
		p.apply(&rec)
	}
	return rec
}
