package upstream

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/aimerfeng/ReviewDesk/internal/models"
)

// Candidate keys in priority order
var (
	replyKeys            = []string{"reply", "response", "text", "message"}
	envelopeKeys         = []string{"data", "result"}
	replyOriginalKeys    = []string{"replyOriginal", "originalReply"}
	replyTranslatedKeys  = []string{"replyTranslated", "translatedReply", "translation"}
	reviewTranslatedKeys = []string{"reviewTranslated", "translatedReview"}
	preferredFlagKeys    = []string{"inPreferredLanguage", "isPreferredLanguage"}
)

// maxErrorMessage bounds messages relayed from upstream bodies
const maxErrorMessage = 300

// DecodeBody decodes a response body as JSON, falling back to its text
func DecodeBody(body []byte) any {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err == nil && !dec.More() {
		return v
	}
	return string(trimmed)
}

// ParseReply searches a decoded response for reply text and its translations
func ParseReply(payload any) (*models.GeneratedReply, bool) {
	switch v := payload.(type) {
	case string:
		return parseReplyString(v)
	case []any:
		for _, item := range v {
			if reply, ok := ParseReply(item); ok {
				return reply, true
			}
		}
	case map[string]any:
		return parseReplyObject(v)
	}
	return nil, false
}

func parseReplyString(s string) (*models.GeneratedReply, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, false
	}
	// Generators sometimes return their JSON answer as a string
	if strings.HasPrefix(s, "{") || strings.HasPrefix(s, "[") {
		if decoded := DecodeBody([]byte(s)); decoded != nil {
			if _, isString := decoded.(string); !isString {
				if reply, ok := ParseReply(decoded); ok {
					return reply, true
				}
			}
		}
	}
	return &models.GeneratedReply{Reply: s}, true
}

func parseReplyObject(obj map[string]any) (*models.GeneratedReply, bool) {
	if text := outputText(obj); text != "" {
		return parseReplyString(text)
	}

	original := firstText(obj, replyOriginalKeys)
	translated := firstText(obj, replyTranslatedKeys)
	reviewTranslated := firstText(obj, reviewTranslatedKeys)

	var primary *string
	for _, key := range replyKeys {
		switch val := obj[key].(type) {
		case string:
			if nested, ok := parseReplyString(val); ok {
				if nested.ReplyOriginal != nil || nested.ReplyTranslated != nil {
					return withReviewTranslation(nested, reviewTranslated), true
				}
				primary = &nested.Reply
			}
		case map[string]any, []any:
			if nested, ok := ParseReply(val); ok {
				return withReviewTranslation(nested, reviewTranslated), true
			}
		}
		if primary != nil {
			break
		}
	}

	if primary == nil && original == nil && translated == nil {
		for _, key := range envelopeKeys {
			if nested, ok := ParseReply(obj[key]); ok {
				return withReviewTranslation(nested, reviewTranslated), true
			}
		}
		return nil, false
	}

	if original == nil {
		original = primary
	}
	reply := resolveReply(primary, original, translated, preferredFlag(obj))
	if reply == nil {
		return nil, false
	}

	return &models.GeneratedReply{
		Reply:            *reply,
		ReplyOriginal:    original,
		ReplyTranslated:  translated,
		ReviewTranslated: reviewTranslated,
	}, true
}

// resolveReply picks the effective reply. A false flag with a translation
// prefers the translation, a true flag prefers the original, and without a
// flag the original wins when present.
func resolveReply(primary, original, translated *string, inPreferred *bool) *string {
	if translated == nil {
		if primary != nil {
			return primary
		}
		return original
	}
	if inPreferred != nil && !*inPreferred {
		return translated
	}
	if original != nil {
		return original
	}
	return translated
}

// outputText returns the first output_text block of an output[].content[] envelope
func outputText(obj map[string]any) string {
	output, ok := obj["output"].([]any)
	if !ok {
		return ""
	}
	for _, item := range output {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}
		content, ok := entry["content"].([]any)
		if !ok {
			continue
		}
		for _, block := range content {
			b, ok := block.(map[string]any)
			if !ok || b["type"] != "output_text" {
				continue
			}
			if text, ok := b["text"].(string); ok && strings.TrimSpace(text) != "" {
				return text
			}
		}
	}
	return ""
}

func firstText(obj map[string]any, keys []string) *string {
	for _, key := range keys {
		if s, ok := obj[key].(string); ok {
			if trimmed := strings.TrimSpace(s); trimmed != "" {
				return &trimmed
			}
		}
	}
	return nil
}

func preferredFlag(obj map[string]any) *bool {
	for _, key := range preferredFlagKeys {
		switch v := obj[key].(type) {
		case bool:
			return &v
		case string:
			switch strings.ToLower(strings.TrimSpace(v)) {
			case "true":
				t := true
				return &t
			case "false":
				f := false
				return &f
			}
		}
	}
	return nil
}

func withReviewTranslation(reply *models.GeneratedReply, reviewTranslated *string) *models.GeneratedReply {
	if reply.ReviewTranslated == nil {
		reply.ReviewTranslated = reviewTranslated
	}
	return reply
}

// ParseError extracts an error message from a decoded error body
func ParseError(payload any) string {
	var msg string
	switch v := payload.(type) {
	case string:
		msg = v
	case map[string]any:
		switch e := v["error"].(type) {
		case string:
			msg = e
		case map[string]any:
			msg, _ = e["message"].(string)
		}
		if strings.TrimSpace(msg) == "" {
			msg, _ = v["message"].(string)
		}
	}
	msg = strings.TrimSpace(msg)
	if len(msg) > maxErrorMessage {
		msg = msg[:maxErrorMessage]
	}
	return msg
}
