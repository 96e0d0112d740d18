package forge

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"codesmith/internal/predict"

	"gopkg.in/yaml.v3"
)

//go:embed trainset.yaml
var defaultTrainset []byte

// Example is one fully worked training case. Every field is required.
type Example struct {
	Task          string `yaml:"task"`
	CodeSignature string `yaml:"code_signature"`
	Code          string `yaml:"code"`
	Test1         string `yaml:"test_1"`
	Test2         string `yaml:"test_2"`
	EdgeCaseTest1 string `yaml:"edge_case_test_1"`
}

func (e Example) fields() map[string]string {
	return map[string]string{
		"task":             e.Task,
		"code_signature":   e.CodeSignature,
		"code":             e.Code,
		"test_1":           e.Test1,
		"test_2":           e.Test2,
		"edge_case_test_1": e.EdgeCaseTest1,
	}
}

func (e Example) validate() error {
	var missing []string
	for _, name := range []string{"task", "code_signature", "code", "test_1", "test_2", "edge_case_test_1"} {
		if strings.TrimSpace(e.fields()[name]) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing %s", strings.Join(missing, ", "))
	}
	return nil
}

// DefaultExamples returns the built-in trainset.
func DefaultExamples() []Example {
	examples, err := ParseExamples(defaultTrainset)
	if err != nil {
		panic(fmt.Sprintf("embedded trainset is invalid: %v", err))
	}
	return examples
}

// LoadExamples reads a YAML trainset from path.
func LoadExamples(path string) ([]Example, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read examples: %w", err)
	}
	examples, err := ParseExamples(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return examples, nil
}

// ParseExamples decodes and validates a YAML list of examples.
func ParseExamples(data []byte) ([]Example, error) {
	var examples []Example
	if err := yaml.Unmarshal(data, &examples); err != nil {
		return nil, fmt.Errorf("failed to parse examples: %w", err)
	}
	if len(examples) == 0 {
		return nil, fmt.Errorf("no examples found")
	}
	for i, e := range examples {
		if err := e.validate(); err != nil {
			return nil, fmt.Errorf("example %d: %w", i+1, err)
		}
	}
	return examples, nil
}

// toTrainset converts examples into predict examples with the given input keys.
func toTrainset(examples []Example, inputs ...string) []predict.Example {
	out := make([]predict.Example, len(examples))
	for i, e := range examples {
		out[i] = predict.NewExample(e.fields()).WithInputs(inputs...)
	}
	return out
}
