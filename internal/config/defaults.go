package config

const (
	defaultDataDir              = "~/.local/share/dicer"
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
	defaultLLMBaseURL           = "https://openrouter.ai/api/v1/chat/completions"
	defaultLLMModel             = "google/gemini-3-flash-preview"
	defaultLLMTimeoutSeconds    = 60
	defaultSynthesisTimeout     = 300
	defaultCompositionTimeout   = 300
	defaultBRollStyle           = "product_demo"
	defaultMaxDivergence        = 0.20
	defaultScriptGenAttempts    = 3
	defaultEnsemble             = 3
	defaultRubricTemperature    = 0.1
	defaultAggregation          = "majority"
	defaultAcceptThreshold      = 0.80
	defaultReviewThreshold      = 0.60
	defaultCostCap              = 30.0
	defaultScriptGenPerCall     = 0.01
	defaultSynthesisPerChar     = 0.00015
	defaultCompositionPerVideo  = 0.60
	defaultRubricPerCall        = 0.02
	defaultMaxParallel          = 3
	defaultStageTimeoutSeconds  = 600
	defaultRetryMaxAttempts     = 3
	defaultRetryBaseDelay       = 1
	defaultRetryMaxDelay        = 30
	defaultNotifyRequestTimeout = 10
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Variants: Variants{
			IdenticalScript: true,
			RewordedCount:   0,
		},
		LLM: LLM{
			BaseURL:        defaultLLMBaseURL,
			Model:          defaultLLMModel,
			TimeoutSeconds: defaultLLMTimeoutSeconds,
		},
		ScriptGen: ScriptGen{
			MaxDivergence: defaultMaxDivergence,
			MaxAttempts:   defaultScriptGenAttempts,
		},
		Synthesis: Synthesis{
			TimeoutSeconds: defaultSynthesisTimeout,
		},
		Composition: Composition{
			TimeoutSeconds: defaultCompositionTimeout,
			BRollStyle:     defaultBRollStyle,
			Captions:       true,
		},
		Rubric: Rubric{
			Ensemble:        defaultEnsemble,
			Temperature:     defaultRubricTemperature,
			Aggregation:     defaultAggregation,
			AcceptThreshold: defaultAcceptThreshold,
			ReviewThreshold: defaultReviewThreshold,
		},
		Cost: Cost{
			Cap: defaultCostCap,
			Rates: Rates{
				ScriptGenPerCall:      defaultScriptGenPerCall,
				SynthesisPerCharacter: defaultSynthesisPerChar,
				CompositionPerVideo:   defaultCompositionPerVideo,
				RubricPerCall:         defaultRubricPerCall,
			},
		},
		Workflow: Workflow{
			MaxParallel:           defaultMaxParallel,
			StageTimeoutSeconds:   defaultStageTimeoutSeconds,
			RetryMaxAttempts:      defaultRetryMaxAttempts,
			RetryBaseDelaySeconds: defaultRetryBaseDelay,
			RetryMaxDelaySeconds:  defaultRetryMaxDelay,
		},
		Paths: Paths{
			DataDir: defaultDataDir,
		},
		Logging: Logging{
			Level:  defaultLogLevel,
			Format: defaultLogFormat,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			Completion:     true,
			Errors:         true,
		},
	}
}
