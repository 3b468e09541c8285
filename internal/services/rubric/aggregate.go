package rubric

import (
	"fmt"

	"dicer/internal/runstate"
)

// Aggregation rules.
const (
	AggregationMajority = "majority"
	AggregationMean     = "mean"
)

// Thresholds holds the classification cutoffs: score >= Accept is
// accepted, score >= Review is review, anything lower rejected.
type Thresholds struct {
	Accept float64
	Review float64
}

// Classify buckets one score against the thresholds.
func (t Thresholds) Classify(score float64) runstate.Decision {
	switch {
	case score >= t.Accept:
		return runstate.DecisionAccepted
	case score >= t.Review:
		return runstate.DecisionReview
	default:
		return runstate.DecisionRejected
	}
}

// Aggregate combines ensemble member scores into the task's final score and
// decision.
//
// mean: the final score is the arithmetic mean and the decision follows
// from the thresholds. majority: each member votes by classifying its own
// score, the decision with the most votes wins, and the mean score is
// recorded alongside for reporting; with no strict winner (possible with a
// three-way split) the mean-score classification breaks the tie.
func Aggregate(scores []float64, rule string, thresholds Thresholds) (float64, runstate.Decision, error) {
	if len(scores) == 0 {
		return 0, "", fmt.Errorf("aggregate: no ensemble scores")
	}

	sum := 0.0
	for _, score := range scores {
		sum += score
	}
	mean := sum / float64(len(scores))

	switch rule {
	case AggregationMean, "":
		return mean, thresholds.Classify(mean), nil
	case AggregationMajority:
		votes := make(map[runstate.Decision]int, 3)
		for _, score := range scores {
			votes[thresholds.Classify(score)]++
		}
		var (
			winner runstate.Decision
			best   int
			tied   bool
		)
		for decision, count := range votes {
			switch {
			case count > best:
				winner, best, tied = decision, count, false
			case count == best:
				tied = true
			}
		}
		if tied {
			winner = thresholds.Classify(mean)
		}
		return mean, winner, nil
	default:
		return 0, "", fmt.Errorf("aggregate: unknown rule %q", rule)
	}
}
