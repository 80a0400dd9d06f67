package entities

import (
	"strings"
	"testing"
	"time"
)

func TestSessionCreation(t *testing.T) {
	session := NewSession("english")

	if session.ID == "" {
		t.Error("Expected generated id")
	}
	if session.Subject != "english" {
		t.Errorf("Expected subject english, got %s", session.Subject)
	}
	if session.Status != SessionStatusActive {
		t.Errorf("Expected status %s, got %s", SessionStatusActive, session.Status)
	}
	if session.EndTime != nil {
		t.Error("New session should have no end time")
	}
	if len(session.Messages) != 0 || session.Interactions != 0 {
		t.Errorf("Expected empty session, got %d messages and %d interactions", len(session.Messages), session.Interactions)
	}
	if err := session.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestAppendMessage(t *testing.T) {
	session := NewSession("math")
	before := session.UpdatedAt

	first := session.AppendMessage(MessageRoleAssistant, "Welcome!")
	session.AppendMessage(MessageRoleUser, "Hi")

	if len(session.Messages) != 2 {
		t.Fatalf("Expected 2 messages, got %d", len(session.Messages))
	}
	if session.Messages[0] != first {
		t.Error("Appended message should be returned unchanged")
	}
	if session.Messages[1].Role != MessageRoleUser || session.Messages[1].Content != "Hi" {
		t.Errorf("Unexpected second message %+v", session.Messages[1])
	}
	if session.UpdatedAt.Before(before) {
		t.Error("UpdatedAt should move forward")
	}
}

func TestRecordInteraction(t *testing.T) {
	session := NewSession("science")

	var prompts []int
	for i := 1; i <= 7; i++ {
		count, prompt := session.RecordInteraction()
		if count != i {
			t.Fatalf("Expected count %d, got %d", i, count)
		}
		if prompt {
			prompts = append(prompts, count)
		}
	}
	if len(prompts) != 2 || prompts[0] != 3 || prompts[1] != 6 {
		t.Errorf("Expected switch prompts at 3 and 6, got %v", prompts)
	}

	session.End()
	count, prompt := session.RecordInteraction()
	if count != 7 || prompt {
		t.Errorf("Ended session must not count, got %d %v", count, prompt)
	}
}

func TestSwitchSubject(t *testing.T) {
	session := NewSession("english")
	session.AppendMessage(MessageRoleAssistant, "Welcome")
	session.RecordInteraction()
	id := session.ID

	session.SwitchSubject("math")

	if session.ID != id {
		t.Error("Switching subject keeps the session")
	}
	if session.Subject != "math" || len(session.Messages) != 0 {
		t.Errorf("Expected cleared math session, got %s with %d messages", session.Subject, len(session.Messages))
	}
	if session.Interactions != 1 {
		t.Errorf("Interactions must survive a switch, got %d", session.Interactions)
	}
}

func TestEndIsIdempotent(t *testing.T) {
	session := NewSession("history")

	if !session.End() {
		t.Fatal("First End should report true")
	}
	end := *session.EndTime
	if session.End() {
		t.Error("Second End should report false")
	}
	if !session.EndTime.Equal(end) {
		t.Error("End time must not move on a second End")
	}
	if session.IsActive() {
		t.Error("Ended session is not active")
	}
}

func TestExceededCeiling(t *testing.T) {
	session := NewSession("coding")
	if session.ExceededCeiling(DefaultSessionCeiling) {
		t.Error("Fresh session cannot exceed the ceiling")
	}
	session.StartTime = time.Now().Add(-31 * time.Minute)
	if !session.ExceededCeiling(DefaultSessionCeiling) {
		t.Error("31 minute old session should exceed 30 minute ceiling")
	}
}

func TestSnapshotIsDeep(t *testing.T) {
	session := NewSession("math")
	session.AppendMessage(MessageRoleUser, "one")
	session.End()

	snap := session.Snapshot()
	session.AppendMessage(MessageRoleUser, "two")
	*session.EndTime = session.EndTime.Add(time.Hour)

	if len(snap.Messages) != 1 {
		t.Errorf("Snapshot shares the message slice")
	}
	if snap.EndTime.Equal(*session.EndTime) {
		t.Errorf("Snapshot shares the end time")
	}
}

func TestSessionValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Session)
		wantErr bool
	}{
		{"valid", func(*Session) {}, false},
		{"missing id", func(s *Session) { s.ID = "" }, true},
		{"missing subject", func(s *Session) { s.Subject = "" }, true},
		{"bad status", func(s *Session) { s.Status = "paused" }, true},
		{"negative interactions", func(s *Session) { s.Interactions = -1 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSession("english")
			tt.mutate(s)
			if err := s.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLookupSubject(t *testing.T) {
	math := LookupSubject("  Math ")
	if math.Key != "math" || math.Welcome == "" || math.Goodbye == "" {
		t.Errorf("Unexpected built-in subject %+v", math)
	}
	if !IsKnownSubject("MATH") {
		t.Error("IsKnownSubject should ignore case")
	}

	art := LookupSubject("art")
	if art.Key != "art" || art.Name != "Art" || !strings.Contains(art.Instructions, "art") {
		t.Errorf("Unknown subjects get a generic persona, got %+v", art)
	}
	if LookupSubject("").Key != "general" {
		t.Error("Empty subject should map to general")
	}

	prompt := math.SwitchPrompt()
	if strings.Contains(prompt, "I can also help with Math") || !strings.Contains(prompt, "English") {
		t.Errorf("Switch prompt should list the other subjects: %q", prompt)
	}
}
