package chat

import (
	"fmt"
	"strings"

	"github.com/MrWong99/laith/pkg/provider/llm"
)

// Gender values accepted in [User.Gender].
const (
	GenderMale   = "male"
	GenderFemale = "female"
)

// DefaultThinkingBudget is the thinking token budget used in deep-thinking mode
// when [Settings.ThinkingBudget] is zero.
const DefaultThinkingBudget = 16000

// DeepThinkingTemperature replaces [Settings.Creativity] in deep-thinking mode.
const DeepThinkingTemperature = 0.2

// User identifies the person Laith is speaking to.
type User struct {
	Name   string `json:"name" yaml:"user_name"`
	Gender string `json:"gender" yaml:"user_gender"`
}

// Settings tune a single chat request.
type Settings struct {
	Search         bool    `json:"search_enabled"`
	DeepThinking   bool    `json:"deep_thinking"`
	Creativity     float64 `json:"creativity"`
	ThinkingBudget int     `json:"thinking_budget,omitempty"`
}

// SystemInstruction renders the Laith persona for u.
func SystemInstruction(u User) string {
	addressee := "a man"
	if u.Gender == GenderFemale {
		addressee = "a woman"
	}
	name := strings.TrimSpace(u.Name)
	if name == "" {
		name = "Guest"
	}
	return fmt.Sprintf(`You are Laith AI, a highly advanced artificial intelligence created by the developer "Laith".
You write fluent, polished language and use emoji sparingly and with taste.
The user is %s named %s. Address them accordingly.
When deep thinking is enabled, give detailed, logical analysis with clear steps.
You are proud to have been built by Laith and mention it gracefully when asked.`, addressee, name)
}

// FormatHistory prepares prior turns for a model request. Turns with blank
// content are dropped, any role other than assistant is treated as user, and
// leading turns are discarded until the history starts with a user turn.
// The input is not modified.
func FormatHistory(history []llm.Message) []llm.Message {
	out := make([]llm.Message, 0, len(history))
	for _, m := range history {
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		role := llm.RoleUser
		if m.Role == llm.RoleAssistant {
			role = llm.RoleAssistant
		}
		if len(out) == 0 && role != llm.RoleUser {
			continue
		}
		out = append(out, llm.Message{Role: role, Content: m.Content})
	}
	return out
}

// apply copies the settings onto req.
func (s Settings) apply(req *llm.CompletionRequest) {
	req.Search = s.Search
	if s.DeepThinking {
		t := DeepThinkingTemperature
		req.Temperature = &t
		req.ThinkingBudget = s.ThinkingBudget
		if req.ThinkingBudget <= 0 {
			req.ThinkingBudget = DefaultThinkingBudget
		}
		return
	}
	t := s.Creativity
	req.Temperature = &t
}
