package rubric

import (
	"math"
	"testing"

	"dicer/internal/runstate"
)

var defaultThresholds = Thresholds{Accept: 0.80, Review: 0.60}

func TestClassifyBoundaries(t *testing.T) {
	cases := []struct {
		score float64
		want  runstate.Decision
	}{
		{0.95, runstate.DecisionAccepted},
		{0.80, runstate.DecisionAccepted},
		{0.79, runstate.DecisionReview},
		{0.60, runstate.DecisionReview},
		{0.59, runstate.DecisionRejected},
		{0.0, runstate.DecisionRejected},
	}
	for _, tc := range cases {
		if got := defaultThresholds.Classify(tc.score); got != tc.want {
			t.Errorf("Classify(%.2f) = %s, want %s", tc.score, got, tc.want)
		}
	}
}

func TestAggregateMean(t *testing.T) {
	score, decision, err := Aggregate([]float64{0.9, 0.7, 0.8}, AggregationMean, defaultThresholds)
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if math.Abs(score-0.8) > 1e-9 {
		t.Fatalf("score = %v, want 0.8", score)
	}
	if decision != runstate.DecisionAccepted {
		t.Fatalf("decision = %s", decision)
	}
}

func TestAggregateEmptyRuleDefaultsToMean(t *testing.T) {
	score, decision, err := Aggregate([]float64{0.5, 0.7}, "", defaultThresholds)
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if math.Abs(score-0.6) > 1e-9 || decision != runstate.DecisionReview {
		t.Fatalf("score=%v decision=%s", score, decision)
	}
}

func TestAggregateMajorityPluralityWins(t *testing.T) {
	// Two accept votes beat one reject, even though the mean (0.66) would
	// only land in review.
	score, decision, err := Aggregate([]float64{0.9, 0.85, 0.25}, AggregationMajority, defaultThresholds)
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if decision != runstate.DecisionAccepted {
		t.Fatalf("decision = %s, want accepted", decision)
	}
	wantMean := (0.9 + 0.85 + 0.25) / 3
	if math.Abs(score-wantMean) > 1e-9 {
		t.Fatalf("recorded score = %v, want mean %v", score, wantMean)
	}
}

func TestAggregateMajorityThreeWaySplitFallsBackToMean(t *testing.T) {
	// accept/review/reject one vote each; the mean classification decides.
	score, decision, err := Aggregate([]float64{0.9, 0.7, 0.1}, AggregationMajority, defaultThresholds)
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	mean := (0.9 + 0.7 + 0.1) / 3
	if math.Abs(score-mean) > 1e-9 {
		t.Fatalf("score = %v, want %v", score, mean)
	}
	if decision != defaultThresholds.Classify(mean) {
		t.Fatalf("decision = %s, want %s", decision, defaultThresholds.Classify(mean))
	}
}

func TestAggregateSingleMember(t *testing.T) {
	score, decision, err := Aggregate([]float64{0.65}, AggregationMajority, defaultThresholds)
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if score != 0.65 || decision != runstate.DecisionReview {
		t.Fatalf("score=%v decision=%s", score, decision)
	}
}

func TestAggregateRejectsUnknownRule(t *testing.T) {
	if _, _, err := Aggregate([]float64{0.9}, "median", defaultThresholds); err == nil {
		t.Fatal("unknown rule should error")
	}
}

func TestAggregateRejectsEmptyScores(t *testing.T) {
	if _, _, err := Aggregate(nil, AggregationMean, defaultThresholds); err == nil {
		t.Fatal("empty ensemble should error")
	}
}
