package aival

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sensit/sensit/internal/types"
	"github.com/tidwall/gjson"
)

const systemPrompt = "You are a security expert analyzing potential secrets. Respond only with valid JSON."

// batchPrompt renders the scoring request for one batch. Candidates are
// identified by their index so the response can be joined back regardless
// of the order the model emits them in.
func batchPrompt(batch []Candidate) string {
	type item struct {
		ID      int     `json:"id"`
		Type    string  `json:"type"`
		Value   string  `json:"value"`
		Entropy float64 `json:"entropy"`
		Context string  `json:"context"`
	}
	items := make([]item, len(batch))
	for i, c := range batch {
		items[i] = item{
			ID:      i,
			Type:    c.Type,
			Value:   types.Truncate(c.Value, 50),
			Entropy: c.Entropy,
			Context: types.Truncate(c.Context, 200),
		}
	}
	data, _ := json.MarshalIndent(items, "", "  ")

	var b strings.Builder
	fmt.Fprintf(&b, "Analyze these %d potential secrets and determine which are real credentials vs false positives.\n\n", len(batch))
	fmt.Fprintf(&b, "Secrets to analyze:\n%s\n\n", data)
	b.WriteString(`For each secret, determine:
1. Is it a real secret or a test/example/placeholder?
2. Confidence level (0-100) that it is a genuine, currently sensitive credential
3. Brief reasoning

IMPORTANT: Respond ONLY with valid JSON in this exact format:
{
  "secrets": [
    {"id": 0, "is_valid": true, "confidence": 85, "reasoning": "brief explanation"}
  ]
}

Do not include any other text, only the JSON object.
`)
	return b.String()
}

// parseScores joins a model response back to the batch by id. Models wrap
// JSON in markdown fences or chatter around it often enough that we
// extract the first JSON object rather than insisting on a clean body.
// A response with no usable secrets array is a malformed-response error.
func parseScores(text string, n int) ([]Score, error) {
	body := extractJSON(text)
	if body == "" {
		return nil, fmt.Errorf("no JSON object in backend response")
	}
	arr := gjson.Get(body, "secrets")
	if !arr.IsArray() {
		return nil, fmt.Errorf("backend response missing secrets array")
	}
	scores := make([]Score, n)
	for _, el := range arr.Array() {
		id := el.Get("id")
		if !id.Exists() {
			continue
		}
		i := int(id.Int())
		if i < 0 || i >= n {
			continue
		}
		conf := el.Get("confidence").Float()
		if conf < 0 {
			conf = 0
		}
		if conf > 100 {
			conf = 100
		}
		scores[i] = Score{
			Scored:     true,
			Confidence: conf,
			Reasoning:  el.Get("reasoning").String(),
		}
	}
	return scores, nil
}

// extractJSON pulls the first balanced JSON object out of free-form model
// output, handling ```json fences and leading prose.
func extractJSON(text string) string {
	if i := strings.Index(text, "```json"); i >= 0 {
		rest := text[i+len("```json"):]
		if j := strings.Index(rest, "```"); j >= 0 {
			text = rest[:j]
		} else {
			text = rest
		}
	} else if i := strings.Index(text, "```"); i >= 0 {
		rest := text[i+3:]
		if j := strings.Index(rest, "```"); j >= 0 {
			text = rest[:j]
		} else {
			text = rest
		}
	}
	text = strings.TrimSpace(text)
	if gjson.Valid(text) && strings.HasPrefix(text, "{") {
		return text
	}
	start := strings.Index(text, "{")
	if start < 0 {
		return ""
	}
	depth := 0
	inStr := false
	escape := false
	for i := start; i < len(text); i++ {
		ch := text[i]
		if escape {
			escape = false
			continue
		}
		switch ch {
		case '\\':
			if inStr {
				escape = true
			}
		case '"':
			inStr = !inStr
		case '{':
			if !inStr {
				depth++
			}
		case '}':
			if !inStr {
				depth--
				if depth == 0 {
					cand := text[start : i+1]
					if gjson.Valid(cand) {
						return cand
					}
					return ""
				}
			}
		}
	}
	return ""
}
