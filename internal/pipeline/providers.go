package pipeline

import (
	"context"

	"dicer/internal/services/composition"
	"dicer/internal/services/synthesis"
)

// ScriptGenerator produces reworded script variants.
type ScriptGenerator interface {
	GenerateVariant(ctx context.Context, referenceScript string, maxDivergence float64) (string, error)
}

// Synthesizer renders an actor performing a script.
type Synthesizer interface {
	Synthesize(ctx context.Context, req synthesis.Request) (string, error)
}

// Composer overlays b-roll and captions to produce the final video.
type Composer interface {
	Compose(ctx context.Context, req composition.Request) (string, error)
}

// Evaluator scores one video against the rubric.
type Evaluator interface {
	Evaluate(ctx context.Context, videoHandle string) (float64, error)
}

// Providers bundles the four external collaborators a task needs.
type Providers struct {
	ScriptGen ScriptGenerator
	Synthesis Synthesizer
	Composer  Composer
	Rubric    Evaluator
}

// Provider names used for cost attribution and logging.
const (
	ProviderScriptGen   = "scriptgen"
	ProviderSynthesis   = "synthesis"
	ProviderComposition = "composition"
	ProviderRubric      = "rubric"
)
