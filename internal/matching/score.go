package matching

import (
	"strings"

	"github.com/reunitehq/reunite-api/internal/models"
)

// Score thresholds. A possible match records a link and notifies the
// counterpart's owner; a confirmed match additionally promotes status.
const (
	PossibleMatchThreshold  = 60
	ConfirmedMatchThreshold = 80
)

// Additive score contributions. The rule set is fixed policy: changing
// a weight changes which reports pair up.
const (
	oppositeCategoryBonus = 30
	itemTypeBonus         = 20
	locationBonus         = 15
	dateProximityMax      = 10
	keywordBonus          = 5
	colorBonus            = 10
	brandBonus            = 10

	maxScore         = 100
	dateProximityCap = 7 // days apart beyond which dates contribute nothing
)

// Score computes the 0-100 compatibility score between two reports.
// Every contribution is a symmetric predicate, so Score(a, b) ==
// Score(b, a). Absent optional fields contribute zero.
func Score(a, b *models.Item) int {
	score := 0

	if a.Category != b.Category {
		score += oppositeCategoryBonus
	}

	if a.ItemType == b.ItemType {
		score += itemTypeBonus
	}

	if a.Location == b.Location {
		score += locationBonus
	}

	// Same-day contributes 10, seven days apart contributes 3; the
	// subtraction never uses more than 10 days.
	days := daysBetween(a, b)
	if days <= dateProximityCap {
		score += dateProximityMax - min(days, dateProximityMax)
	}

	score += keywordBonus * sharedKeywords(a.Keywords, b.Keywords)

	if a.Color != "" && b.Color != "" && strings.EqualFold(a.Color, b.Color) {
		score += colorBonus
	}

	if a.Brand != "" && b.Brand != "" && strings.EqualFold(a.Brand, b.Brand) {
		score += brandBonus
	}

	if score > maxScore {
		score = maxScore
	}
	return score
}

func daysBetween(a, b *models.Item) int {
	diff := a.Date.Sub(b.Date)
	if diff < 0 {
		diff = -diff
	}
	return int(diff.Hours() / 24)
}

func sharedKeywords(a, b []string) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	// Keywords are sets by construction; counting via a set keeps the
	// contribution symmetric even for callers that skip Extract.
	set := make(map[string]struct{}, len(a))
	for _, k := range a {
		set[k] = struct{}{}
	}
	shared := 0
	counted := make(map[string]struct{}, len(b))
	for _, k := range b {
		if _, dup := counted[k]; dup {
			continue
		}
		counted[k] = struct{}{}
		if _, ok := set[k]; ok {
			shared++
		}
	}
	return shared
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
