// Package model defines the typed views of spreadsheet rows used across the
// dashboard service.
package model

import (
	"encoding/json"
	"maps"

	"jobmate/dashboard-service/internal/pipeline"
)

// JobRecord is one job application candidate, parsed from a row of the
// Annonces table.
type JobRecord struct {
	ID          string          `json:"id"`
	Status      pipeline.Status `json:"status"`
	RowPosition int             `json:"rowPosition"`

	ScoreKeyword int `json:"scoreKeyword"`
	ScoreAI      int `json:"scoreAI"`

	Title          string `json:"title"`
	Company        string `json:"company"`
	CompanyURL     string `json:"companyUrl,omitempty"`
	Location       string `json:"location"`
	Salary         string `json:"salary,omitempty"`
	OfferURL       string `json:"offerUrl,omitempty"`
	Description    string `json:"description,omitempty"`
	ContractType   string `json:"contractType,omitempty"`
	Source         string `json:"source,omitempty"`
	PublishedAt    string `json:"publishedAt,omitempty"`
	ATSRemark      string `json:"atsRemark,omitempty"`
	Analysis       string `json:"analysis,omitempty"`
	ScoreDetails   string `json:"scoreDetails,omitempty"`
	CVDocURL       string `json:"cvDocUrl,omitempty"`
	CoverDocURL    string `json:"coverDocUrl,omitempty"`
	CombinedPDFURL string `json:"combinedPdfUrl,omitempty"`

	Recruiter Recruiter `json:"recruiter"`

	// Serialized draft sub-documents, exactly as stored in the sheet.
	CVText      string `json:"cvText,omitempty"`
	CoverText   string `json:"coverText,omitempty"`
	MessageText string `json:"messageText,omitempty"`

	SentAt string            `json:"sentAt,omitempty"`
	Extra  map[string]string `json:"extra,omitempty"`
}

// Recruiter holds the contact columns of a job row.
type Recruiter struct {
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	Role      string `json:"role,omitempty"`
	Email     string `json:"email,omitempty"`
	LinkedIn  string `json:"linkedin,omitempty"`
}

// Clone returns a copy that shares no mutable state with r.
func (r JobRecord) Clone() JobRecord {
	r.Extra = maps.Clone(r.Extra)
	return r
}

// FieldSentAt is the patch field carrying the sent timestamp.
const FieldSentAt = "sentAt"

// ApplyFields copies patch fields onto the record. Known fields land on
// their typed member, anything else goes to Extra.
func (r *JobRecord) ApplyFields(fields map[string]string) {
	for k, v := range fields {
		switch k {
		case FieldSentAt:
			r.SentAt = v
		default:
			if r.Extra == nil {
				r.Extra = make(map[string]string, len(fields))
			}
			r.Extra[k] = v
		}
	}
}

// DraftContent bundles the three generated sub-documents. Their shape is
// owned by the document templates; here they are opaque JSON values.
type DraftContent struct {
	CV             json.RawMessage `json:"cv"`
	CoverLetter    json.RawMessage `json:"lm"`
	ContactMessage json.RawMessage `json:"message"`
}

// Cells serializes the draft to the three sheet cells, in column order.
// An absent sub-document is stored as the JSON literal null.
func (d DraftContent) Cells() []string {
	return []string{serialize(d.CV), serialize(d.CoverLetter), serialize(d.ContactMessage)}
}

func serialize(v json.RawMessage) string {
	if len(v) == 0 {
		return "null"
	}
	return string(v)
}

// FilterRule is one scoring rule of the Config_Filtres table.
type FilterRule struct {
	Index    int    `json:"index"`
	Type     string `json:"type"`
	Category string `json:"category" validate:"required"`
	Value    string `json:"value" validate:"required"`
	Active   bool   `json:"active"`
	Score    int    `json:"score" validate:"min=-100,max=100"`
	Reason   string `json:"reason"`
	Created  string `json:"created,omitempty"`
}

const (
	RuleTypePenalty = "PENALTY"
	RuleTypeBonus   = "BONUS"
)

// RuleType derives the rule type from the sign of its score.
func RuleType(score int) string {
	if score < 0 {
		return RuleTypePenalty
	}
	return RuleTypeBonus
}

// Settings is the snapshot of the four configuration tables.
type Settings struct {
	System  [][]string   `json:"system"`
	Filters []FilterRule `json:"filters"`
	Search  [][]string   `json:"search"`
	Rome    [][]string   `json:"rome"`

	// FilterRows keeps the raw Config_Filtres rows (header included) so a
	// delete can rewrite the table without re-reading it.
	FilterRows [][]string `json:"-"`
}
