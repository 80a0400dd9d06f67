package entities

import (
	"fmt"
	"sort"
	"strings"
)

// Subject describes a tutoring persona
type Subject struct {
	Key          string `json:"key"`
	Name         string `json:"name"`
	Welcome      string `json:"welcome"`
	Goodbye      string `json:"goodbye"`
	Instructions string `json:"instructions"`
}

const baseInstructions = "You are a friendly, patient tutor speaking with a student over voice. " +
	"Keep answers short enough to say aloud, ask one question at a time, and check understanding often."

var subjects = map[string]Subject{
	"english": {
		Key:          "english",
		Name:         "English",
		Welcome:      "Hi! I'm your English tutor. Do you want to practice conversation, grammar, or vocabulary today?",
		Goodbye:      "Great work on your English today. See you next time!",
		Instructions: baseInstructions + " You teach English. Correct mistakes gently and give one example sentence per correction.",
	},
	"math": {
		Key:          "math",
		Name:         "Math",
		Welcome:      "Hello! I'm your math tutor. Tell me the problem you're working on and we'll solve it step by step.",
		Goodbye:      "Nice job working through those problems. Keep practicing!",
		Instructions: baseInstructions + " You teach mathematics. Never give the final answer first; guide with hints.",
	},
	"science": {
		Key:          "science",
		Name:         "Science",
		Welcome:      "Hi there! I'm your science tutor. What topic are you curious about today?",
		Goodbye:      "Thanks for exploring science with me. Stay curious!",
		Instructions: baseInstructions + " You teach science. Use everyday examples and simple experiments.",
	},
	"history": {
		Key:          "history",
		Name:         "History",
		Welcome:      "Welcome! I'm your history tutor. Which period or event would you like to talk about?",
		Goodbye:      "That was a great trip through history. Until next time!",
		Instructions: baseInstructions + " You teach history. Tell short stories and connect events to causes and effects.",
	},
	"coding": {
		Key:          "coding",
		Name:         "Coding",
		Welcome:      "Hey! I'm your coding tutor. What are you building or stuck on right now?",
		Goodbye:      "Good session! Keep writing code every day.",
		Instructions: baseInstructions + " You teach programming. Describe code verbally and keep snippets tiny.",
	},
}

// LookupSubject returns the persona for key. Unknown keys get a generic tutor.
func LookupSubject(key string) Subject {
	key = strings.ToLower(strings.TrimSpace(key))
	if s, ok := subjects[key]; ok {
		return s
	}
	name := key
	if name == "" {
		name = "general"
	}
	return Subject{
		Key:          name,
		Name:         strings.ToUpper(name[:1]) + name[1:],
		Welcome:      fmt.Sprintf("Hi! I'm your %s tutor. What would you like to learn today?", name),
		Goodbye:      "Thanks for learning with me today. Goodbye!",
		Instructions: baseInstructions + fmt.Sprintf(" You teach %s.", name),
	}
}

// IsKnownSubject reports whether key is one of the built-in subjects
func IsKnownSubject(key string) bool {
	_, ok := subjects[strings.ToLower(strings.TrimSpace(key))]
	return ok
}

// SubjectKeys lists the built-in subjects in stable order
func SubjectKeys() []string {
	keys := make([]string, 0, len(subjects))
	for k := range subjects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// SwitchPrompt is offered to the student after every few completed responses
func (s Subject) SwitchPrompt() string {
	others := make([]string, 0, len(subjects))
	for _, k := range SubjectKeys() {
		if k != s.Key {
			others = append(others, subjects[k].Name)
		}
	}
	return fmt.Sprintf("We've done a few rounds of %s. Would you like to keep going, or switch subjects? I can also help with %s.",
		s.Name, strings.Join(others, ", "))
}
