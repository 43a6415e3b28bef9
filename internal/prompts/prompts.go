// Package prompts contains the LLM prompt templates used by Weaver.
//
// Prompt text is Go code rather than config files because it is program
// logic: templates use fmt.Sprintf interpolation, benefit from
// compile-time embedding, and can be validated by tests.
package prompts

import "fmt"

// continuationsTemplate asks the model for three story continuations in
// the numbered-list format the choice parser expects. The single format
// verb is the story so far. The three style directives are fixed: the
// variety between options is part of the game, not a tuning knob.
const continuationsTemplate = `Given the story so far: '%s'. ` +
	`Provide three distinct continuations for the story, each 1-2 sentences long. ` +
	`Make option 1 romantic or daring, option 2 comedic, and option 3 an unexpected plot twist. ` +
	`Format them as a numbered list (e.g., '1. ...\n2. ...\n3. ...').`

// Continuations returns the prompt requesting three candidate
// continuations for the given narrative.
func Continuations(narrative string) string {
	return fmt.Sprintf(continuationsTemplate, narrative)
}
