package config

// PipelineConfig tunes the generation pipeline and few-shot compilation.
type PipelineConfig struct {
	// Bootstrapped demos kept per compiled module
	MaxBootstrappedDemos int `yaml:"max_bootstrapped_demos"`

	// Upper bound on total demos (bootstrapped + labeled) per module
	MaxLabeledDemos int `yaml:"max_labeled_demos"`

	// Code fixes attempted before giving up
	MaxFixAttempts int `yaml:"max_fix_attempts"`

	// Extra LLM calls allowed when a reply misses an output field
	ParseRetries int `yaml:"parse_retries"`

	// Optional YAML trainset replacing the built-in examples
	ExamplesPath string `yaml:"examples_path"`
}
