// Package assess implements assessment scoring, countersign reviews, and
// criteria templates.
package assess

import (
	"math"

	"github.com/d9705996/granthub/internal/model"
)

// Aggregate computes the weighted mean of the criteria scores, rounded to
// two decimals: Σ(score×weight) / Σ(weight). Returns nil when the
// assessment has no criteria.
func Aggregate(criteria []model.AssessmentCriteria) *float64 {
	if len(criteria) == 0 {
		return nil
	}
	var weighted, weights float64
	for _, c := range criteria {
		weighted += c.WeightedScore()
		weights += c.Weight
	}
	if weights == 0 {
		return nil
	}
	v := math.Round(weighted/weights*100) / 100
	return &v
}
