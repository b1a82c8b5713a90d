package insight

import (
	"fmt"

	"siterisk/domain/metrics"
)

// CategoryTheme groups issue categories by the operational workstream they
// belong to. Themes drive the static interpretation-tag and
// contributing-factor lookups; both tables must stay total over the closed
// category set (see CheckTagTables).
type CategoryTheme string

const (
	ThemeSafety         CategoryTheme = "safety"
	ThemeCoding         CategoryTheme = "coding"
	ThemeCompleteness   CategoryTheme = "completeness"
	ThemeReconciliation CategoryTheme = "reconciliation"
	ThemeTimeliness     CategoryTheme = "timeliness"
)

var categoryThemes = map[metrics.IssueCategory]CategoryTheme{
	metrics.CategorySAEPending:         ThemeSafety,
	metrics.CategoryUncodedMedDRA:      ThemeCoding,
	metrics.CategoryUncodedWHODD:       ThemeCoding,
	metrics.CategoryMissingVisit:       ThemeCompleteness,
	metrics.CategoryMissingPages:       ThemeCompleteness,
	metrics.CategoryInactivatedForms:   ThemeCompleteness,
	metrics.CategoryLabIssues:          ThemeReconciliation,
	metrics.CategoryEDRROpen:           ThemeReconciliation,
	metrics.CategoryMaxDaysOutstanding: ThemeTimeliness,
	metrics.CategoryMaxDaysPageMissing: ThemeTimeliness,
}

// ThemeOf returns the theme of a category. Panics are avoided: unknown
// categories map to the empty theme, which CheckTagTables rejects up front.
func ThemeOf(c metrics.IssueCategory) CategoryTheme {
	return categoryThemes[c]
}

// InterpretationTag labels a co-occurrence pair. Chosen from a fixed rule
// set keyed on the categories involved, never computed from the numbers.
type InterpretationTag string

const (
	TagSafetyWorkflow      InterpretationTag = "Safety workflow"
	TagCodingBacklog       InterpretationTag = "Coding backlog"
	TagDataCompleteness    InterpretationTag = "Data completeness"
	TagReconciliationGap   InterpretationTag = "Reconciliation gap"
	TagTimeliness          InterpretationTag = "Timeliness correlation"
	TagGenericCoOccurrence InterpretationTag = "Co-occurrence"
)

var themeTags = map[CategoryTheme]InterpretationTag{
	ThemeSafety:         TagSafetyWorkflow,
	ThemeCoding:         TagCodingBacklog,
	ThemeCompleteness:   TagDataCompleteness,
	ThemeReconciliation: TagReconciliationGap,
	ThemeTimeliness:     TagTimeliness,
}

// InterpretPair returns the interpretation tag for a category pair. Pairs
// within one theme get the theme's tag; cross-theme pairs fall back to the
// generic tag.
func InterpretPair(a, b metrics.IssueCategory) InterpretationTag {
	ta, tb := ThemeOf(a), ThemeOf(b)
	if ta != "" && ta == tb {
		return themeTags[ta]
	}
	return TagGenericCoOccurrence
}

// contributingFactors maps every category to its qualitative tags. The table
// is total over the closed category set; CheckTagTables enforces that in
// tests so an unmapped category fails loudly instead of silently falling
// back.
var contributingFactors = map[metrics.IssueCategory][]string{
	metrics.CategorySAEPending: {
		"insufficient safety data management resources",
		"SAE review workflow bottleneck",
	},
	metrics.CategoryUncodedMedDRA: {
		"medical coding backlog",
		"coder staffing gap",
	},
	metrics.CategoryUncodedWHODD: {
		"drug dictionary coding backlog",
		"coder staffing gap",
	},
	metrics.CategoryMissingVisit: {
		"site data entry delays",
		"subject retention or scheduling gaps",
	},
	metrics.CategoryMissingPages: {
		"CRF completion backlog",
		"site data entry delays",
	},
	metrics.CategoryLabIssues: {
		"central lab reconciliation gap",
		"sample handling or transmission errors",
	},
	metrics.CategoryEDRROpen: {
		"external data reconciliation backlog",
		"vendor data transfer delays",
	},
	metrics.CategoryInactivatedForms: {
		"form versioning churn",
		"database build instability",
	},
	metrics.CategoryMaxDaysOutstanding: {
		"query resolution delays",
		"site responsiveness gap",
	},
	metrics.CategoryMaxDaysPageMissing: {
		"prolonged CRF entry delays",
		"site monitoring gap",
	},
}

// ContributingFactorsFor returns the deduplicated, order-stable qualitative
// tags for a category set.
func ContributingFactorsFor(categories []metrics.IssueCategory) []string {
	seen := make(map[string]bool)
	var out []string
	for _, c := range categories {
		for _, f := range contributingFactors[c] {
			if !seen[f] {
				seen[f] = true
				out = append(out, f)
			}
		}
	}
	return out
}

// CheckTagTables verifies that every closed-set category has a theme and at
// least one contributing factor. Called from tests as the completeness check
// for the static lookups.
func CheckTagTables() error {
	for _, c := range metrics.AllCategories() {
		if _, ok := categoryThemes[c]; !ok {
			return fmt.Errorf("category %s has no theme mapping", c)
		}
		if factors, ok := contributingFactors[c]; !ok || len(factors) == 0 {
			return fmt.Errorf("category %s has no contributing factors", c)
		}
	}
	for theme := range themeTags {
		if theme == "" {
			return fmt.Errorf("empty theme in interpretation tag table")
		}
	}
	return nil
}
