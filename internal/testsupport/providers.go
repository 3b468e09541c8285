package testsupport

import (
	"context"
	"fmt"
	"sync"

	"dicer/internal/pipeline"
	"dicer/internal/services"
	"dicer/internal/services/composition"
	"dicer/internal/services/synthesis"
)

// FakeScriptGen returns scripted rewordings in order, then repeats the
// last one. An Err, when set, is returned on every call.
type FakeScriptGen struct {
	mu      sync.Mutex
	Scripts []string
	Err     error
	Calls   int
}

func (f *FakeScriptGen) GenerateVariant(_ context.Context, referenceScript string, _ float64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls++
	if f.Err != nil {
		return "", f.Err
	}
	if len(f.Scripts) == 0 {
		return referenceScript, nil
	}
	idx := f.Calls - 1
	if idx >= len(f.Scripts) {
		idx = len(f.Scripts) - 1
	}
	return f.Scripts[idx], nil
}

// FakeSynthesizer returns deterministic media handles. Errs maps the
// 1-based call number to an error for that specific call; Err applies to
// every call. RequestIDs records the correlation identifier carried by
// each call's context.
type FakeSynthesizer struct {
	mu         sync.Mutex
	Err        error
	Errs       map[int]error
	Calls      int
	RequestIDs []string
}

func (f *FakeSynthesizer) Synthesize(ctx context.Context, req synthesis.Request) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls++
	id, _ := services.RequestIDFromContext(ctx)
	f.RequestIDs = append(f.RequestIDs, id)
	if f.Err != nil {
		return "", f.Err
	}
	if err, ok := f.Errs[f.Calls]; ok {
		return "", err
	}
	return fmt.Sprintf("media-%s-%d", req.Actor, f.Calls), nil
}

// FakeComposer returns deterministic video handles.
type FakeComposer struct {
	mu    sync.Mutex
	Err   error
	Calls int
}

func (f *FakeComposer) Compose(_ context.Context, req composition.Request) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls++
	if f.Err != nil {
		return "", f.Err
	}
	return fmt.Sprintf("video-%s-%d", req.MediaHandle, f.Calls), nil
}

// FakeEvaluator returns scripted scores in call order, then repeats the
// last one.
type FakeEvaluator struct {
	mu     sync.Mutex
	Scores []float64
	Err    error
	Calls  int
}

func (f *FakeEvaluator) Evaluate(_ context.Context, _ string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls++
	if f.Err != nil {
		return 0, f.Err
	}
	if len(f.Scores) == 0 {
		return 0.9, nil
	}
	idx := f.Calls - 1
	if idx >= len(f.Scores) {
		idx = len(f.Scores) - 1
	}
	return f.Scores[idx], nil
}

// NewProviders bundles fresh fakes into a pipeline.Providers.
func NewProviders() (pipeline.Providers, *FakeScriptGen, *FakeSynthesizer, *FakeComposer, *FakeEvaluator) {
	scriptGen := &FakeScriptGen{}
	synth := &FakeSynthesizer{}
	composer := &FakeComposer{}
	evaluator := &FakeEvaluator{}
	return pipeline.Providers{
		ScriptGen: scriptGen,
		Synthesis: synth,
		Composer:  composer,
		Rubric:    evaluator,
	}, scriptGen, synth, composer, evaluator
}
