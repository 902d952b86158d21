// Package prompt assembles the message sequence sent to the model.
package prompt

import (
	"fmt"
	"strings"

	"ragchat/internal/domain"
)

// Mode selects a system prompt and a sampling temperature.
type Mode int

const (
	General Mode = iota
	Factual
	Creative
)

const factualPrompt = "Answer the user questions truthfully. " +
	"Answer exclusively to what you have been requested. " +
	"Only use the information in the CONTEXT to elaborate your answer or answer 'I dont know'. " +
	"Quote verbatim the text relevant to the user's query. " +
	"Quote only the necessary text. " +
	"Use the minimum amount of text necessary to answer the user's query. " +
	"Use ellipsis '(...)' to omit unnecessary parts of a quote. " +
	"Minimize non quote text. " +
	"If you don't know the answer to something, say 'I dont know'."

const creativePrompt = "Answer the user questions truthfully and complete the task. " +
	"Use the information in the CONTEXT as much as possible to elaborate your answer. " +
	"You may reason your answer and summarize the CONTEXT if needed. " +
	"You may complete information or add context if necessary. " +
	"You may quote non-literally and connect ideas from the context if needed to complete the task."

// Profile is the data a mode carries.
type Profile struct {
	Name         string
	SystemPrompt string
	Temperature  float64
}

var profiles = map[Mode]Profile{
	General:  {Name: "general", Temperature: 0.4},
	Factual:  {Name: "factual", SystemPrompt: factualPrompt, Temperature: 0},
	Creative: {Name: "creative", SystemPrompt: creativePrompt, Temperature: 0.3},
}

// Profile returns the mode's system prompt and temperature. Unknown values
// fall back to General.
func (m Mode) Profile() Profile {
	if p, ok := profiles[m]; ok {
		return p
	}
	return profiles[General]
}

func (m Mode) String() string { return m.Profile().Name }

// Modes lists every mode in display order.
func Modes() []Mode { return []Mode{General, Factual, Creative} }

// ParseMode maps a mode name onto a Mode.
func ParseMode(name string) (Mode, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	for _, m := range Modes() {
		if profiles[m].Name == n {
			return m, nil
		}
	}
	return General, fmt.Errorf("%w: unknown mode %q", domain.ErrInvalidConfiguration, name)
}
