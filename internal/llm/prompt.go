package llm

import (
	"fmt"
	"strings"
)

// Example is one input/output demonstration shown to the model.
type Example struct {
	Input  string
	Output string
}

// Window describes the application the dictated text is destined for.
type Window struct {
	Title   string
	AppName string
}

// ModelConfig selects a language model and the prompt it runs with.
type ModelConfig struct {
	Name         string
	SystemPrompt string
	Examples     []Example
	Window       *Window
	Clipboard    string
}

// BuildSystemPrompt assembles the system prompt sent with every request:
// the mode's instructions, numbered examples, optional desktop context and a
// trailing input marker.
func BuildSystemPrompt(cfg ModelConfig) string {
	items := []string{cfg.SystemPrompt}

	if len(cfg.Examples) > 0 {
		examples := make([]string, 0, len(cfg.Examples))
		for i, ex := range cfg.Examples {
			examples = append(examples, fmt.Sprintf("EXAMPLE %d:\n# \"%s\"\n\"%s\"", i+1, ex.Input, ex.Output))
		}
		items = append(items, strings.Join(examples, "\n"))
	}

	if w := cfg.Window; w != nil && (w.AppName != "" || w.Title != "") {
		app := strings.TrimSuffix(w.AppName, ".exe")
		items = append(items, fmt.Sprintf("# CONTEXT:\nThe text will be used in the application %s. The current window title is %s.", app, w.Title))
	}

	if clip := strings.TrimSpace(cfg.Clipboard); clip != "" {
		items = append(items, "# CLIPBOARD:\n"+clip)
	}

	items = append(items, "# INPUT:")
	return strings.Join(items, "\n\n")
}

// PostProcess strips the quotes models like to wrap their answer in.
func PostProcess(result string) string {
	return strings.TrimSpace(strings.Trim(strings.TrimSpace(result), `"`))
}
