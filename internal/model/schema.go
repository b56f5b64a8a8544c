package model

import "fmt"

// SchemaVersion identifies the column layout of the Annonces table. The
// column order is part of the contract with the sheet and the external
// worker; bump the version when it changes.
const SchemaVersion = 1

// Sheet names and the ranges read on every fetch.
const (
	JobsTable    = "Annonces"
	SystemTable  = "Config_Systeme"
	FiltersTable = "Config_Filtres"
	SearchTable  = "Config_Recherche"
	RomeTable    = "ROME"
)

// FetchRanges lists the batch-read ranges in the order Parse expects them.
var FetchRanges = []string{
	JobsTable + "!A2:AZ1000",
	SystemTable + "!A2:E100",
	FiltersTable + "!A2:G500",
	SearchTable + "!A2:E100",
	RomeTable + "!A2:D2000",
}

// FirstDataRow is the sheet row of the first data row (row 1 holds headers).
const FirstDataRow = 2

// jobColumns maps each JobRecord field to its zero-based column index.
type jobColumns struct {
	ID                int
	Title             int
	Company           int
	CompanyURL        int
	Location          int
	Salary            int
	OfferURL          int
	Description       int
	ContractType      int
	Source            int
	PublishedAt       int
	RecruiterLinkedIn int
	RecruiterFirst    int
	RecruiterLast     int
	RecruiterRole     int
	RecruiterEmail    int
	CVDocURL          int
	CoverDocURL       int
	Status            int
	ScoreAI           int
	ATSRemark         int
	Analysis          int
	ScoreKeyword      int
	CVText            int
	CoverText         int
	MessageText       int
	CombinedPDFURL    int
}

// JobColumns is the version 1 layout of the Annonces table.
var JobColumns = jobColumns{
	ID:                0,
	Title:             1,
	Company:           2,
	CompanyURL:        3,
	Location:          4,
	Salary:            5,
	OfferURL:          6,
	Description:       7,
	ContractType:      8,
	Source:            9,
	PublishedAt:       10,
	RecruiterLinkedIn: 12,
	RecruiterFirst:    13,
	RecruiterLast:     14,
	RecruiterRole:     15,
	RecruiterEmail:    16,
	CVDocURL:          22,
	CoverDocURL:       23,
	Status:            27,
	ScoreAI:           31,
	ATSRemark:         32,
	Analysis:          33,
	ScoreKeyword:      36,
	CVText:            38,
	CoverText:         39,
	MessageText:       40,
	CombinedPDFURL:    41,
}

// ColumnLetter converts a zero-based column index to its A1 letters
// (0 → A, 25 → Z, 26 → AA).
func ColumnLetter(index int) string {
	if index < 0 {
		return ""
	}
	var b []byte
	for n := index + 1; n > 0; n = (n - 1) / 26 {
		b = append([]byte{byte('A' + (n-1)%26)}, b...)
	}
	return string(b)
}

// StatusCell returns the A1 range of the status cell of a job row.
func StatusCell(row int) string {
	return fmt.Sprintf("%s!%s%d", JobsTable, ColumnLetter(JobColumns.Status), row)
}

// DraftRange returns the A1 range of the three draft cells of a job row.
func DraftRange(row int) string {
	return fmt.Sprintf("%s!%s%d:%s%d", JobsTable,
		ColumnLetter(JobColumns.CVText), row,
		ColumnLetter(JobColumns.MessageText), row)
}

// FilterRowRange returns the A1 anchor of a Config_Filtres data row, where
// index counts from the first data row (header row included when present).
func FilterRowRange(index int) string {
	return fmt.Sprintf("%s!A%d", FiltersTable, index+FirstDataRow)
}

// FilterTableStart is the anchor used when rewriting the whole filter table.
var FilterTableStart = fmt.Sprintf("%s!A%d", FiltersTable, FirstDataRow)
