package predict

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"codesmith/internal/perception"
)

// ErrParse is returned when a reply is missing output fields.
var ErrParse = errors.New("failed to parse LLM reply")

const (
	completedMarker = "completed"
	notSupplied     = "Not supplied for this particular example."
	incompleteNote  = "This is an example of the task, though some input or output fields are not supplied."
)

var headerPattern = regexp.MustCompile(`\[\[ ## (\w+) ## \]\]`)

// ChatAdapter renders signatures into chat messages with [[ ## field ## ]]
// markers and parses replies written in the same structure.
type ChatAdapter struct{}

func marker(name string) string {
	return "[[ ## " + name + " ## ]]"
}

// Format builds the message list for one call: system prompt, demo pairs,
// then the live inputs.
func (a ChatAdapter) Format(sig Signature, demos []Example, inputs map[string]string) []perception.Message {
	messages := []perception.Message{{Role: perception.RoleSystem, Content: a.systemPrompt(sig)}}

	var complete, incomplete []Example
	for _, d := range demos {
		switch {
		case hasAll(d, sig.Inputs) && hasAll(d, sig.Outputs):
			complete = append(complete, d)
		case hasAny(d, sig.Inputs) && hasAny(d, sig.Outputs):
			incomplete = append(incomplete, d)
		}
	}

	for _, d := range incomplete {
		messages = append(messages,
			perception.Message{Role: perception.RoleUser, Content: incompleteNote + "\n\n" + formatFields(sig.Inputs, d.fields, true)},
			perception.Message{Role: perception.RoleAssistant, Content: formatFields(sig.Outputs, d.fields, true) + "\n\n" + marker(completedMarker)},
		)
	}
	for _, d := range complete {
		messages = append(messages,
			perception.Message{Role: perception.RoleUser, Content: formatFields(sig.Inputs, d.fields, false)},
			perception.Message{Role: perception.RoleAssistant, Content: formatFields(sig.Outputs, d.fields, false) + "\n\n" + marker(completedMarker)},
		)
	}

	messages = append(messages, perception.Message{
		Role:    perception.RoleUser,
		Content: formatFields(sig.Inputs, inputs, false) + "\n\n" + a.outputRequirements(sig),
	})
	return messages
}

func (a ChatAdapter) systemPrompt(sig Signature) string {
	var b strings.Builder

	b.WriteString("Your input fields are:\n")
	writeFieldList(&b, sig.Inputs)
	b.WriteString("Your output fields are:\n")
	writeFieldList(&b, sig.Outputs)

	b.WriteString("All interactions will be structured in the following way, with the appropriate values filled in.\n\n")
	for _, f := range sig.Inputs {
		fmt.Fprintf(&b, "%s\n{%s}\n\n", marker(f.Name), f.Name)
	}
	for _, f := range sig.Outputs {
		fmt.Fprintf(&b, "%s\n{%s}\n\n", marker(f.Name), f.Name)
	}
	b.WriteString(marker(completedMarker))
	b.WriteString("\nIn adhering to this structure, your objective is: \n        ")
	b.WriteString(sig.Instructions)

	return b.String()
}

func writeFieldList(b *strings.Builder, fields []Field) {
	for i, f := range fields {
		fmt.Fprintf(b, "%d. `%s` (str)", i+1, f.Name)
		if f.Desc != "" {
			fmt.Fprintf(b, ": %s", f.Desc)
		}
		b.WriteString("\n")
	}
}

func (a ChatAdapter) outputRequirements(sig Signature) string {
	outputs := sig.OutputNames()
	var b strings.Builder
	b.WriteString("Respond with the corresponding output fields, starting with the field ")
	for i, name := range outputs {
		switch {
		case i == 0:
			fmt.Fprintf(&b, "`%s`", marker(name))
		default:
			fmt.Fprintf(&b, ", then `%s`", marker(name))
		}
	}
	fmt.Fprintf(&b, ", and then ending with the marker for `%s`.", marker(completedMarker))
	return b.String()
}

func formatFields(fields []Field, values map[string]string, fillMissing bool) string {
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		v, ok := values[f.Name]
		if !ok {
			if !fillMissing {
				continue
			}
			v = notSupplied
		}
		parts = append(parts, marker(f.Name)+"\n"+v)
	}
	return strings.Join(parts, "\n\n")
}

func hasAll(e Example, fields []Field) bool {
	for _, f := range fields {
		if _, ok := e.fields[f.Name]; !ok {
			return false
		}
	}
	return true
}

func hasAny(e Example, fields []Field) bool {
	for _, f := range fields {
		if _, ok := e.fields[f.Name]; ok {
			return true
		}
	}
	return false
}

// Parse extracts the signature's output fields from a reply. Unknown sections
// are ignored; the first occurrence of a field wins.
func (a ChatAdapter) Parse(sig Signature, reply string) (Prediction, error) {
	wanted := make(map[string]bool, len(sig.Outputs))
	for _, f := range sig.Outputs {
		wanted[f.Name] = true
	}

	pred := make(Prediction, len(sig.Outputs))
	locs := headerPattern.FindAllStringSubmatchIndex(reply, -1)
	for i, loc := range locs {
		name := reply[loc[2]:loc[3]]
		end := len(reply)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		if !wanted[name] {
			continue
		}
		if _, dup := pred[name]; dup {
			continue
		}
		pred[name] = strings.TrimSpace(reply[loc[1]:end])
	}

	var missing []string
	for _, f := range sig.Outputs {
		if _, ok := pred[f.Name]; !ok {
			missing = append(missing, f.Name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing fields %v", ErrParse, missing)
	}
	return pred, nil
}
