package realtime

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestParseEvent(t *testing.T) {
	ev, err := ParseEvent([]byte(`{"type":"response.done","response":{"id":"r1","status":"completed","metadata":{"purpose":"welcome"}}}`))
	if err != nil {
		t.Fatalf("ParseEvent: %v", err)
	}
	if ev.Type != EventResponseDone || ev.Response.Purpose() != PurposeWelcome {
		t.Errorf("unexpected event %+v", ev)
	}

	if _, err := ParseEvent([]byte(`{"event_id":"x"}`)); err == nil {
		t.Error("expected error for missing type")
	}
	if _, err := ParseEvent([]byte(`not json`)); err == nil {
		t.Error("expected error for invalid json")
	}
}

func TestScriptedResponse(t *testing.T) {
	ev := ScriptedResponse(PurposeGoodbye, "bye!")
	data, err := json.Marshal(ev)
	if err != nil {
		t.Fatal(err)
	}
	s := string(data)
	for _, want := range []string{`"type":"response.create"`, `"script":"bye!"`, `"purpose":"goodbye"`} {
		if !strings.Contains(s, want) {
			t.Errorf("encoded event %s missing %s", s, want)
		}
	}
	if strings.Contains(s, `"state"`) {
		t.Error("local state field leaked onto the wire")
	}
}

func TestItemText(t *testing.T) {
	var nilItem *Item
	if nilItem.Text() != "" {
		t.Error("nil item should have empty text")
	}
	item := &Item{Content: []ContentPart{{Type: "input_text", Text: "a"}, {Type: "audio", Transcript: "b"}}}
	if item.Text() != "ab" {
		t.Errorf("Text() = %q", item.Text())
	}
	if UserTextItem("hi").Text() != "hi" {
		t.Error("UserTextItem text mismatch")
	}
}

func TestErrorDetail(t *testing.T) {
	ev := NewErrorEvent(ErrorTypeServer, "llm_failed", "model unavailable")
	if ev.Type != EventError || ev.EventID == "" {
		t.Errorf("unexpected error event %+v", ev)
	}
	if got := ev.Error.Error(); got != "server_error (llm_failed): model unavailable" {
		t.Errorf("Error() = %q", got)
	}
}
