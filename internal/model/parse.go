package model

import (
	"strconv"
	"strings"
	"unicode"

	"jobmate/dashboard-service/internal/pipeline"
)

// filterHeader is the first cell of the optional Config_Filtres header row.
const filterHeader = "Type"

// ParseJobRow maps one Annonces row onto a JobRecord. index is the row's
// position within the fetched range. Short rows yield empty fields.
func ParseJobRow(row []string, index int) JobRecord {
	c := JobColumns
	return JobRecord{
		ID:             cell(row, c.ID),
		Status:         pipeline.Normalize(cell(row, c.Status)),
		RowPosition:    index + FirstDataRow,
		ScoreKeyword:   parseLeadingInt(cell(row, c.ScoreKeyword)),
		ScoreAI:        parseLeadingInt(cell(row, c.ScoreAI)),
		Title:          cell(row, c.Title),
		Company:        cell(row, c.Company),
		CompanyURL:     cell(row, c.CompanyURL),
		Location:       cell(row, c.Location),
		Salary:         cell(row, c.Salary),
		OfferURL:       cell(row, c.OfferURL),
		Description:    cell(row, c.Description),
		ContractType:   cell(row, c.ContractType),
		Source:         cell(row, c.Source),
		PublishedAt:    cell(row, c.PublishedAt),
		ATSRemark:      cell(row, c.ATSRemark),
		Analysis:       cell(row, c.Analysis),
		ScoreDetails:   cell(row, c.ScoreKeyword),
		CVDocURL:       cell(row, c.CVDocURL),
		CoverDocURL:    cell(row, c.CoverDocURL),
		CombinedPDFURL: cell(row, c.CombinedPDFURL),
		Recruiter: Recruiter{
			FirstName: cell(row, c.RecruiterFirst),
			LastName:  cell(row, c.RecruiterLast),
			Role:      cell(row, c.RecruiterRole),
			Email:     cell(row, c.RecruiterEmail),
			LinkedIn:  cell(row, c.RecruiterLinkedIn),
		},
		CVText:      cell(row, c.CVText),
		CoverText:   cell(row, c.CoverText),
		MessageText: cell(row, c.MessageText),
	}
}

// ParseJobRows parses a fetched Annonces range. Rows without an id are
// dropped; when an id repeats, the later row wins and keeps its own position.
func ParseJobRows(rows [][]string) []JobRecord {
	out := make([]JobRecord, 0, len(rows))
	seen := make(map[string]int, len(rows))
	for i, row := range rows {
		rec := ParseJobRow(row, i)
		if rec.ID == "" {
			continue
		}
		if at, dup := seen[rec.ID]; dup {
			out[at] = rec
			continue
		}
		seen[rec.ID] = len(out)
		out = append(out, rec)
	}
	return out
}

// ParseFilterRules parses the Config_Filtres range. A leading header row is
// skipped but still counted in each rule's Index so that Index maps back to
// the sheet row through FilterRowRange.
func ParseFilterRules(rows [][]string) []FilterRule {
	start := 0
	if len(rows) > 0 && cell(rows[0], 0) == filterHeader {
		start = 1
	}
	out := make([]FilterRule, 0, len(rows)-start)
	for i := start; i < len(rows); i++ {
		r := rows[i]
		category := cell(r, 1)
		if category == "" {
			category = "Uncategorized"
		}
		out = append(out, FilterRule{
			Index:    i,
			Type:     cell(r, 0),
			Category: category,
			Value:    cell(r, 2),
			Active:   strings.EqualFold(cell(r, 3), "TRUE"),
			Score:    parseLeadingInt(cell(r, 4)),
			Reason:   cell(r, 5),
			Created:  cell(r, 6),
		})
	}
	return out
}

// FilterRuleRow serializes a rule to its A..G row. The type is always
// re-derived from the score sign.
func FilterRuleRow(r FilterRule) []string {
	row := []string{
		RuleType(r.Score),
		r.Category,
		r.Value,
		strings.ToUpper(strconv.FormatBool(r.Active)),
		strconv.Itoa(r.Score),
		r.Reason,
	}
	if r.Created != "" {
		row = append(row, r.Created)
	}
	return row
}

// ParseSettings assembles the settings snapshot from the four config ranges.
func ParseSettings(system, filters, search, rome [][]string) Settings {
	return Settings{
		System:     nonNil(system),
		Filters:    ParseFilterRules(filters),
		Search:     nonNil(search),
		Rome:       nonNil(rome),
		FilterRows: nonNil(filters),
	}
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return row[i]
}

// parseLeadingInt reads an optional sign and the leading digits of s,
// ignoring anything after them ("72 pts" → 72). Unparsable input is 0.
func parseLeadingInt(s string) int {
	s = strings.TrimSpace(s)
	end := 0
	if end < len(s) && (s[end] == '-' || s[end] == '+') {
		end++
	}
	digits := end
	for end < len(s) && unicode.IsDigit(rune(s[end])) {
		end++
	}
	if end == digits {
		return 0
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0
	}
	return n
}

func nonNil(rows [][]string) [][]string {
	if rows == nil {
		return [][]string{}
	}
	return rows
}
