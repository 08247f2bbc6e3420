package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Text normalizes any reply shape a provider may return into plain text.
// Supported shapes: string, []byte, Response / *Response, an object with "content"
// (string or a list of text parts), an object with "message", an object with "choices"
// ([{message:{content}}] or [{text}]), and fmt.Stringer. Unknown shapes yield "".
func Text(reply any) string {
	switch v := reply.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	case *Response:
		if v == nil {
			return ""
		}
		if v.Content != "" || v.Raw == nil {
			return v.Content
		}
		return Text(v.Raw)
	case Response:
		return Text(&v)
	case json.RawMessage:
		var decoded any
		if err := json.Unmarshal(v, &decoded); err != nil {
			return string(v)
		}
		if s, ok := decoded.(string); ok {
			return s
		}
		return Text(decoded)
	case map[string]any:
		return textFromObject(v)
	case []any:
		return textFromParts(v)
	case fmt.Stringer:
		return v.String()
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		var decoded map[string]any
		if err := json.Unmarshal(raw, &decoded); err != nil {
			return ""
		}
		return textFromObject(decoded)
	}
}

func textFromObject(obj map[string]any) string {
	if content, ok := obj["content"]; ok {
		switch c := content.(type) {
		case string:
			return c
		case []any:
			return textFromParts(c)
		case map[string]any:
			return textFromObject(c)
		}
	}
	if msg, ok := obj["message"].(map[string]any); ok {
		return textFromObject(msg)
	}
	if choices, ok := obj["choices"].([]any); ok && len(choices) > 0 {
		if first, ok := choices[0].(map[string]any); ok {
			if msg, ok := first["message"].(map[string]any); ok {
				return textFromObject(msg)
			}
			if s, ok := first["text"].(string); ok {
				return s
			}
			if delta, ok := first["delta"].(map[string]any); ok {
				return textFromObject(delta)
			}
		}
	}
	if s, ok := obj["text"].(string); ok {
		return s
	}
	if s, ok := obj["response"].(string); ok {
		return s
	}
	return ""
}

func textFromParts(parts []any) string {
	var b strings.Builder
	for _, p := range parts {
		switch part := p.(type) {
		case string:
			b.WriteString(part)
		case map[string]any:
			if s, ok := part["text"].(string); ok {
				b.WriteString(s)
			}
		}
	}
	return b.String()
}
