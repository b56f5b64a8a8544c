package pipeline_test

// ── Additional edge-case tests ────────────────────────────────────────────
//
// Labels as they actually appear in exported sheets: casing, padding and
// accents matter because the status column is compared byte for byte.

import (
	"testing"

	"jobmate/dashboard-service/internal/pipeline"
)

// Normalize must be case-sensitive: a lowercase label is not the canonical one.
func TestNormalize_CaseSensitive(t *testing.T) {
	for _, s := range []string{"nouvelle", "traitement", "prête", "ENVOYÉE"} {
		if got := pipeline.Normalize(s); got != pipeline.StatusNew {
			t.Errorf("Normalize(%q) = %q, want %q", s, got, pipeline.StatusNew)
		}
	}
}

// Unaccented variants are unknown values, not aliases.
func TestNormalize_AccentsMatter(t *testing.T) {
	for _, s := range []string{"Prete", "A verifier", "Envoyee", "Refusee"} {
		if got := pipeline.Normalize(s); got != pipeline.StatusNew {
			t.Errorf("Normalize(%q) = %q, want %q", s, got, pipeline.StatusNew)
		}
	}
}

// A padded alias does not match the alias table.
func TestNormalize_PaddedAlias(t *testing.T) {
	if got := pipeline.Normalize(" CV réalisé"); got != pipeline.StatusNew {
		t.Errorf("Normalize(\" CV réalisé\") = %q, want %q", got, pipeline.StatusNew)
	}
}

// Canonical labels are not trimmed either.
func TestNormalize_PaddedCanonical(t *testing.T) {
	for _, s := range []string{"Prête ", " Envoyée", "\tA vérifier"} {
		if got := pipeline.Normalize(s); got != pipeline.StatusNew {
			t.Errorf("Normalize(%q) = %q, want %q", s, got, pipeline.StatusNew)
		}
	}
}

// Alias targets are themselves canonical, so a second pass is a no-op.
func TestNormalize_AliasTargetsAreFixedPoints(t *testing.T) {
	for _, raw := range []string{"Filtre ATS", "CV réalisé", "LM & CV envoyés"} {
		first := pipeline.Normalize(raw)
		if pipeline.Normalize(string(first)) != first {
			t.Errorf("alias %q target %q is not a fixed point", raw, first)
		}
	}
}

// NEW is the initial state for any ingested row and is never re-entered.
func TestIsTransitionAllowed_NewIsNeverReachable(t *testing.T) {
	for _, from := range pipeline.Statuses {
		if pipeline.IsTransitionAllowed(from, pipeline.StatusNew) {
			t.Errorf("IsTransitionAllowed(%s → Nouvelle) must be false: Nouvelle is only an initial state", from)
		}
	}
}

// Only the external worker moves a record out of AWAITING_REVIEW, and only
// forward.
func TestIsTransitionAllowed_AwaitingReviewExits(t *testing.T) {
	for _, to := range pipeline.Statuses {
		want := to == pipeline.StatusToVerify || to == pipeline.StatusReady
		if got := pipeline.IsTransitionAllowed(pipeline.StatusAwaitingReview, to); got != want {
			t.Errorf("IsTransitionAllowed(Traitement → %s) = %v, want %v", to, got, want)
		}
	}
}
