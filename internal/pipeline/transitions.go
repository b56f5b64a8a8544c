// Package pipeline defines the job pipeline state machine: the canonical
// status set, legacy label normalization and the expected transitions.
//
// Expected status graph:
//
//	NEW ──► AWAITING_REVIEW ──► TO_VERIFY ──► READY ──► SENT ──► INTERVIEW ──► OFFER
//	 │            │                 │                     │           │           │
//	 │            └──────► READY    │                     └───────────┴───────────┴──► REJECTED
//	 └──────────────────────────────┴──► DECLINED
//
// DECLINED, REJECTED and FILTERED are terminal states. AWAITING_REVIEW means
// the external worker owns the record until it writes the next status.
package pipeline

import "fmt"

// Status values are the exact labels stored in the spreadsheet status column.
type Status string

const (
	StatusNew            Status = "Nouvelle"
	StatusToProcess      Status = "A traiter"
	StatusAwaitingReview Status = "Traitement"
	StatusToVerify       Status = "A vérifier"
	StatusReady          Status = "Prête"
	StatusSent           Status = "Envoyée"
	StatusInterview      Status = "Entretien"
	StatusOffer          Status = "Offre"
	StatusRejected       Status = "Refusée"
	StatusDeclined       Status = "Non validée"
	StatusFiltered       Status = "Filtrée"
)

// Statuses lists every canonical status in pipeline order.
var Statuses = []Status{
	StatusNew,
	StatusToProcess,
	StatusAwaitingReview,
	StatusToVerify,
	StatusReady,
	StatusSent,
	StatusInterview,
	StatusOffer,
	StatusRejected,
	StatusDeclined,
	StatusFiltered,
}

// legacyAliases maps labels written by older sheet versions or by the
// screening workflow onto canonical statuses.
var legacyAliases = map[string]Status{
	"Filtre ATS":      StatusFiltered,
	"Type":            StatusNew,
	"Linkedin":        StatusNew,
	"CV réalisé":      StatusReady,
	"LM réalisé":      StatusReady,
	"LM & CV envoyés": StatusSent,
}

// validTransitions lists every expected (from → to) pair for manual moves.
var validTransitions = map[Status][]Status{
	StatusNew:            {StatusAwaitingReview, StatusDeclined},
	StatusToProcess:      {StatusAwaitingReview, StatusDeclined},
	StatusAwaitingReview: {StatusToVerify, StatusReady},
	StatusToVerify:       {StatusAwaitingReview, StatusReady, StatusDeclined},
	StatusReady:          {StatusSent},
	StatusSent:           {StatusInterview, StatusOffer, StatusRejected},
	StatusInterview:      {StatusOffer, StatusRejected},
	StatusOffer:          {StatusRejected},
	// DECLINED, REJECTED and FILTERED are terminal
}

// Normalize maps a raw status cell onto the canonical set. It never fails:
// empty and unknown values become StatusNew.
func Normalize(raw string) Status {
	if raw == "" {
		return StatusNew
	}
	if st, ok := legacyAliases[raw]; ok {
		return st
	}
	if IsCanonical(Status(raw)) {
		return Status(raw)
	}
	return StatusNew
}

// IsCanonical reports whether s is a member of the canonical status set.
func IsCanonical(s Status) bool {
	for _, c := range Statuses {
		if c == s {
			return true
		}
	}
	return false
}

// ParseStatus converts a raw string to a Status, returning an error for
// values outside the canonical set. Unlike Normalize it does not accept
// legacy aliases; it validates user input.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if IsCanonical(st) {
		return st, nil
	}
	return "", fmt.Errorf("unknown job status %q", s)
}

// IsTransitionAllowed returns true when moving from → to is an expected
// progression of the pipeline.
func IsTransitionAllowed(from, to Status) bool {
	allowed, ok := validTransitions[from]
	if !ok {
		return false // terminal: no outgoing transitions
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal returns true when s has no outgoing transitions.
func IsTerminal(s Status) bool {
	_, ok := validTransitions[s]
	return !ok
}

// IsInFlight returns true when the external worker is processing the record.
// It drives the adaptive polling interval.
func IsInFlight(s Status) bool { return s == StatusAwaitingReview }
