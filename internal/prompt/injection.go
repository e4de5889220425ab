package prompt

import (
	"regexp"

	"github.com/aimerfeng/ReviewDesk/internal/extract"
)

// Patterns that suggest guest text is trying to steer the generator
var injectionPatterns = compileInjectionPatterns()

func compileInjectionPatterns() []*regexp.Regexp {
	patterns := []string{
		`(?i)ignore\s+(all\s+)?(previous|prior|above)\s+(instructions?|prompts?)`,
		`(?i)disregard\s+(all\s+)?(previous|prior|above)\s+`,
		`(?i)forget\s+(all\s+)?(previous|prior)\s+`,
		`(?i)(reveal|show|print|repeat|output)\s+(me\s+)?(your|the)\s+(system\s+)?(prompt|instructions?)`,
		`(?i)what\s+(is|are)\s+(your|the)\s+(system\s+)?(prompt|instructions)`,
		`(?i)you\s+are\s+now\s+`,
		`(?i)(reply|respond|answer)\s+(only\s+)?with\s+(exactly|the\s+following)`,
	}

	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		compiled = append(compiled, regexp.MustCompile(p))
	}
	return compiled
}

// LooksLikeInjection reports whether guest-authored fields appear to carry
// instructions aimed at the reply generator
func LooksLikeInjection(input *extract.PromptInput) bool {
	if input == nil {
		return false
	}
	for _, field := range []*string{input.ReviewText, input.Title, input.AuthorName} {
		if field == nil {
			continue
		}
		for _, pattern := range injectionPatterns {
			if pattern.MatchString(*field) {
				return true
			}
		}
	}
	return false
}
