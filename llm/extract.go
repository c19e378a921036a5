package llm

import (
	"encoding/json"
	"strings"
)

// extractors are tried in order; the first one that matches the payload's
// shape wins. New provider shapes get a new entry, not a deeper conditional.
var extractors = []func(map[string]interface{}) (string, bool){
	extractCandidateParts,
	extractChoices,
	extractFlatText,
}

// ExtractReply walks the provider response defensively and returns the reply
// text, or "" when no known shape matches.
func ExtractReply(raw []byte) string {
	var payload map[string]interface{}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return ""
	}
	for _, extract := range extractors {
		if text, ok := extract(payload); ok {
			return text
		}
	}
	return ""
}

// extractCandidateParts handles {candidates:[{content:{parts:[{text}]}}]}.
func extractCandidateParts(payload map[string]interface{}) (string, bool) {
	candidates, ok := payload["candidates"].([]interface{})
	if !ok || len(candidates) == 0 {
		return "", false
	}
	first, ok := candidates[0].(map[string]interface{})
	if !ok {
		return "", false
	}
	content, ok := first["content"].(map[string]interface{})
	if !ok {
		return "", false
	}
	parts, ok := content["parts"].([]interface{})
	if !ok || len(parts) == 0 {
		return "", false
	}

	var texts []string
	for _, p := range parts {
		part, ok := p.(map[string]interface{})
		if !ok {
			continue
		}
		if text, ok := part["text"].(string); ok && text != "" {
			texts = append(texts, text)
		}
	}
	if len(texts) == 0 {
		return "", false
	}
	return strings.Join(texts, ""), true
}

// extractChoices handles {choices:[{message:{content}}]} and {choices:[{text}]}.
func extractChoices(payload map[string]interface{}) (string, bool) {
	choices, ok := payload["choices"].([]interface{})
	if !ok || len(choices) == 0 {
		return "", false
	}
	first, ok := choices[0].(map[string]interface{})
	if !ok {
		return "", false
	}
	if message, ok := first["message"].(map[string]interface{}); ok {
		if content, ok := message["content"].(string); ok && content != "" {
			return content, true
		}
	}
	if text, ok := first["text"].(string); ok && text != "" {
		return text, true
	}
	return "", false
}

// extractFlatText handles single-field shapes like {text} or {reply}.
func extractFlatText(payload map[string]interface{}) (string, bool) {
	for _, key := range []string{"output_text", "text", "reply", "response"} {
		if text, ok := payload[key].(string); ok && text != "" {
			return text, true
		}
	}
	return "", false
}
