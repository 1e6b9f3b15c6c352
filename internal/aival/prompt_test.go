package aival

import (
	"strings"
	"testing"
)

func TestParseScoresJoinsByID(t *testing.T) {
	resp := `{"secrets":[
		{"id":1,"is_valid":true,"confidence":90,"reasoning":"looks real"},
		{"id":0,"is_valid":false,"confidence":10,"reasoning":"placeholder"}
	]}`
	scores, err := parseScores(resp, 2)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !scores[0].Scored || scores[0].Confidence != 10 {
		t.Fatalf("id 0 mismatch: %+v", scores[0])
	}
	if !scores[1].Scored || scores[1].Confidence != 90 {
		t.Fatalf("id 1 mismatch: %+v", scores[1])
	}
}

func TestParseScoresMarkdownFence(t *testing.T) {
	resp := "Here you go:\n```json\n{\"secrets\":[{\"id\":0,\"confidence\":55,\"reasoning\":\"x\"}]}\n```\nanything else?"
	scores, err := parseScores(resp, 1)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !scores[0].Scored || scores[0].Confidence != 55 {
		t.Fatalf("fenced JSON not extracted: %+v", scores[0])
	}
}

func TestParseScoresEmbeddedObject(t *testing.T) {
	resp := `Sure. {"secrets":[{"id":0,"confidence":42,"reasoning":"maybe"}]} Hope that helps!`
	scores, err := parseScores(resp, 1)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if scores[0].Confidence != 42 {
		t.Fatalf("embedded JSON not extracted: %+v", scores[0])
	}
}

func TestParseScoresMalformed(t *testing.T) {
	if _, err := parseScores("I cannot help with that.", 1); err == nil {
		t.Fatalf("prose response must be a malformed-response error")
	}
	if _, err := parseScores(`{"wrong":"shape"}`, 1); err == nil {
		t.Fatalf("missing secrets array must be an error")
	}
}

func TestParseScoresClampsAndSkipsUnknownIDs(t *testing.T) {
	resp := `{"secrets":[
		{"id":0,"confidence":250,"reasoning":"over"},
		{"id":7,"confidence":50,"reasoning":"out of range"}
	]}`
	scores, err := parseScores(resp, 2)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if scores[0].Confidence != 100 {
		t.Fatalf("confidence must clamp to 100, got %v", scores[0].Confidence)
	}
	if scores[1].Scored {
		t.Fatalf("unanswered candidate must stay unscored")
	}
}

func TestBatchPromptTruncatesValues(t *testing.T) {
	long := strings.Repeat("s", 400)
	p := batchPrompt([]Candidate{{Type: "generic_secret", Value: long, Context: long}})
	if strings.Contains(p, long) {
		t.Fatalf("prompt must not carry full secret values")
	}
	if !strings.Contains(p, `"id": 0`) {
		t.Fatalf("prompt must index candidates by id")
	}
}
