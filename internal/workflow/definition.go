// Package workflow runs declarative multi-step guest flows: slot filling,
// validation, branching and side effects, defined in JSON and editable
// without a rebuild.
package workflow

import (
	"fmt"
	"regexp"
)

// Definition is one workflow, triggered by an intent.
type Definition struct {
	ID         string            `json:"id"`
	Intent     string            `json:"intent"`
	Emergency  bool              `json:"emergency,omitempty"`
	Steps      []Step            `json:"steps"`
	Completion map[string]string `json:"completion"` // lang -> closing message
}

// Step is one prompt-and-collect stage.
type Step struct {
	ID                string            `json:"id"`
	Prompt            map[string]string `json:"prompt"` // lang -> text
	Slot              string            `json:"slot,omitempty"`
	Validation        string            `json:"validation,omitempty"` // regex the answer must satisfy
	ValidationMessage map[string]string `json:"validationMessage,omitempty"`
	Branches          []Branch          `json:"branches,omitempty"`
	SideEffects       []string          `json:"sideEffects,omitempty"`
	Next              string            `json:"next,omitempty"` // empty = workflow completes after this step
}

// Branch routes on the collected slot value. Matching is exact after
// trimming; the first match wins, Next is the fallback.
type Branch struct {
	Equals string `json:"equals"`
	Next   string `json:"next"`
}

// Validate checks a definition for dangling references and missing
// prompts before it is accepted.
func (d *Definition) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("workflow missing id")
	}
	if len(d.Steps) == 0 {
		return fmt.Errorf("workflow %s has no steps", d.ID)
	}

	stepIDs := make(map[string]bool, len(d.Steps))
	for _, s := range d.Steps {
		if s.ID == "" {
			return fmt.Errorf("workflow %s has a step without id", d.ID)
		}
		if stepIDs[s.ID] {
			return fmt.Errorf("workflow %s has duplicate step %s", d.ID, s.ID)
		}
		stepIDs[s.ID] = true
	}

	for _, s := range d.Steps {
		if len(s.Prompt) == 0 {
			return fmt.Errorf("workflow %s step %s has no prompt", d.ID, s.ID)
		}
		if s.Validation != "" {
			if _, err := regexp.Compile(s.Validation); err != nil {
				return fmt.Errorf("workflow %s step %s validation: %w", d.ID, s.ID, err)
			}
		}
		if s.Next != "" && !stepIDs[s.Next] {
			return fmt.Errorf("workflow %s step %s points at missing step %s", d.ID, s.ID, s.Next)
		}
		for _, b := range s.Branches {
			if !stepIDs[b.Next] {
				return fmt.Errorf("workflow %s step %s branch points at missing step %s", d.ID, s.ID, b.Next)
			}
		}
	}
	return nil
}

func (d *Definition) step(id string) *Step {
	for i := range d.Steps {
		if d.Steps[i].ID == id {
			return &d.Steps[i]
		}
	}
	return nil
}

// promptIn picks the step text for a language, falling back to English.
func promptIn(texts map[string]string, lang string) string {
	if t, ok := texts[lang]; ok && t != "" {
		return t
	}
	return texts["en"]
}
