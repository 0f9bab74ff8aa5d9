package model

import "strings"

// Shortcut is a named prompt alias that expands to a fixed instruction prefix
type Shortcut struct {
	Name   string `json:"name"`
	Prompt string `json:"prompt"`
}

var shortcuts = []Shortcut{
	{Name: "Summarize", Prompt: "Summarize the following text:\n\n"},
	{Name: "Explain", Prompt: "Explain the following text:\n\n"},
	{Name: "Translate", Prompt: "Translate the following text to English:\n\n"},
	{Name: "Code Review", Prompt: "Review the following code and provide feedback:\n\n"},
	{Name: "Debug", Prompt: "Identify potential issues in the following code:\n\n"},
	{Name: "Optimize", Prompt: "Suggest optimizations for the following code:\n\n"},
	{Name: "Document", Prompt: "Generate documentation for the following code:\n\n"},
	{Name: "Refactor", Prompt: "Refactor the following code for better readability and performance:\n\n"},
}

// Shortcuts returns the built-in shortcut table in display order
func Shortcuts() []Shortcut {
	result := make([]Shortcut, len(shortcuts))
	copy(result, shortcuts)
	return result
}

// ExpandShortcut replaces a prompt that names a shortcut (case-insensitive) with its
// expansion. Any other prompt is returned unchanged.
func ExpandShortcut(prompt string) string {
	name := strings.TrimSpace(prompt)
	for _, s := range shortcuts {
		if strings.EqualFold(s.Name, name) {
			return s.Prompt
		}
	}
	return prompt
}
