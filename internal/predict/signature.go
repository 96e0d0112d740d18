// Package predict is a small declarative prompting layer: typed signatures
// ("task, code_signature -> code"), a chat adapter that renders them with
// field markers, chain-of-thought predictors, and a bootstrap few-shot
// compiler that turns training examples into prompt demonstrations.
package predict

import (
	"fmt"
	"regexp"
	"strings"
)

var fieldNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Field is one named slot of a signature.
type Field struct {
	Name string
	// Desc is shown next to the field in the system prompt.
	Desc string
}

// Signature declares the input and output fields of a prediction.
type Signature struct {
	Inputs       []Field
	Outputs      []Field
	Instructions string
}

// ParseSignature parses the shorthand "in1, in2 -> out1, out2".
func ParseSignature(shorthand string) (Signature, error) {
	left, right, ok := strings.Cut(shorthand, "->")
	if !ok {
		return Signature{}, fmt.Errorf("invalid signature %q: missing '->'", shorthand)
	}
	if strings.Contains(right, "->") {
		return Signature{}, fmt.Errorf("invalid signature %q: more than one '->'", shorthand)
	}

	inputs, err := parseFields(left)
	if err != nil {
		return Signature{}, fmt.Errorf("invalid signature %q: inputs: %w", shorthand, err)
	}
	outputs, err := parseFields(right)
	if err != nil {
		return Signature{}, fmt.Errorf("invalid signature %q: outputs: %w", shorthand, err)
	}

	seen := make(map[string]bool)
	for _, f := range append(append([]Field{}, inputs...), outputs...) {
		if seen[f.Name] {
			return Signature{}, fmt.Errorf("invalid signature %q: duplicate field %q", shorthand, f.Name)
		}
		seen[f.Name] = true
	}

	sig := Signature{Inputs: inputs, Outputs: outputs}
	sig.Instructions = sig.defaultInstructions()
	return sig, nil
}

// MustParseSignature is ParseSignature for package-level literals.
func MustParseSignature(shorthand string) Signature {
	sig, err := ParseSignature(shorthand)
	if err != nil {
		panic(err)
	}
	return sig
}

func parseFields(s string) ([]Field, error) {
	var fields []Field
	for _, part := range strings.Split(s, ",") {
		name := strings.TrimSpace(part)
		if name == "" {
			return nil, fmt.Errorf("empty field name")
		}
		if !fieldNamePattern.MatchString(name) {
			return nil, fmt.Errorf("bad field name %q", name)
		}
		fields = append(fields, Field{Name: name})
	}
	return fields, nil
}

func (s Signature) defaultInstructions() string {
	return fmt.Sprintf("Given the fields %s, produce the fields %s.",
		quoteNames(s.InputNames()), quoteNames(s.OutputNames()))
}

func quoteNames(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = "`" + n + "`"
	}
	return strings.Join(quoted, ", ")
}

// InputNames returns the input field names in declaration order.
func (s Signature) InputNames() []string {
	return names(s.Inputs)
}

// OutputNames returns the output field names in declaration order.
func (s Signature) OutputNames() []string {
	return names(s.Outputs)
}

func names(fields []Field) []string {
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = f.Name
	}
	return out
}

// WithInstructions returns a copy with the objective replaced.
func (s Signature) WithInstructions(instructions string) Signature {
	s.Instructions = instructions
	return s
}

// PrependOutput returns a copy with f as the first output field.
func (s Signature) PrependOutput(f Field) Signature {
	outputs := make([]Field, 0, len(s.Outputs)+1)
	outputs = append(outputs, f)
	outputs = append(outputs, s.Outputs...)
	s.Outputs = outputs
	return s
}

// String renders the shorthand form.
func (s Signature) String() string {
	return strings.Join(s.InputNames(), ", ") + " -> " + strings.Join(s.OutputNames(), ", ")
}
