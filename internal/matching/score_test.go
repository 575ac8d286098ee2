package matching

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/reunitehq/reunite-api/internal/models"
)

func report(category models.ItemCategory, mutate func(*models.Item)) *models.Item {
	item := &models.Item{
		Category: category,
		ItemType: "Wallet",
		Location: "Library",
		Date:     time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
	}
	if mutate != nil {
		mutate(item)
	}
	return item
}

func TestScoreFullAttributeMatch(t *testing.T) {
	// Opposite category + type + location + same day + color, no
	// shared keywords: 30+20+15+10+10 = 85. Color comparison is
	// case-insensitive.
	a := report(models.CategoryLost, func(i *models.Item) { i.Color = "Black" })
	b := report(models.CategoryFound, func(i *models.Item) { i.Color = "black" })

	assert.Equal(t, 85, Score(a, b))
}

func TestScoreDateProximityDecay(t *testing.T) {
	base := report(models.CategoryLost, nil)
	for _, tc := range []struct {
		days int
		want int
	}{
		{0, 75}, {1, 74}, {3, 72}, {7, 68}, {8, 65}, {30, 65},
	} {
		other := report(models.CategoryFound, func(i *models.Item) {
			i.Date = base.Date.AddDate(0, 0, tc.days)
		})
		assert.Equalf(t, tc.want, Score(base, other), "days apart: %d", tc.days)
	}
}

func TestScoreKeywordOverlap(t *testing.T) {
	a := report(models.CategoryLost, func(i *models.Item) {
		i.Keywords = []string{"black", "leather", "wallet"}
	})
	b := report(models.CategoryFound, func(i *models.Item) {
		i.Keywords = []string{"wallet", "brown", "leather"}
	})

	// 30+20+15+10 base plus 2 shared keywords at 5 each.
	assert.Equal(t, 85, Score(a, b))
}

func TestScoreAbsentOptionalFieldsContributeNothing(t *testing.T) {
	a := report(models.CategoryLost, func(i *models.Item) { i.Color = "Blue" })
	b := report(models.CategoryFound, nil)

	// Color set on only one side must not count.
	assert.Equal(t, 75, Score(a, b))
}

func TestScoreClampsAtHundred(t *testing.T) {
	shared := []string{"black", "leather", "wallet", "zipper", "cards", "photo"}
	a := report(models.CategoryLost, func(i *models.Item) {
		i.Keywords = shared
		i.Color = "Black"
		i.Brand = "Fossil"
	})
	b := report(models.CategoryFound, func(i *models.Item) {
		i.Keywords = shared
		i.Color = "Black"
		i.Brand = "Fossil"
	})

	// 30+20+15+10+30+10+10 would be 125 before clamping.
	assert.Equal(t, 100, Score(a, b))
}

func TestScoreSameCategoryGetsNoPairBonus(t *testing.T) {
	a := report(models.CategoryLost, nil)
	b := report(models.CategoryLost, nil)

	assert.Equal(t, 45, Score(a, b))
}

func TestScoreScenarioMatrix(t *testing.T) {
	// Scenario A from the product brief: identical wallet reports on
	// the same day with matching color.
	scenarioA := Score(
		report(models.CategoryLost, func(i *models.Item) { i.Color = "Black" }),
		report(models.CategoryFound, func(i *models.Item) { i.Color = "Black" }),
	)
	assert.Equal(t, 85, scenarioA)
	assert.GreaterOrEqual(t, scenarioA, ConfirmedMatchThreshold)

	// Scenario B: five days apart, no color on either side.
	scenarioB := Score(
		report(models.CategoryLost, nil),
		report(models.CategoryFound, func(i *models.Item) {
			i.Date = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
		}),
	)
	assert.Equal(t, 70, scenarioB)
	assert.GreaterOrEqual(t, scenarioB, PossibleMatchThreshold)
	assert.Less(t, scenarioB, ConfirmedMatchThreshold)
}
