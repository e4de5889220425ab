// Package prompt renders reply generation prompts from review fields.
package prompt

import (
	"strconv"
	"strings"

	"github.com/aimerfeng/ReviewDesk/internal/extract"
)

// DefaultInstruction is used when no custom prompt is configured
const DefaultInstruction = "Write a warm, concise reply. Mention the guest by name when available, " +
	"thank them, and reference one detail from the review. Keep under 60 words. " +
	"If the rating is 3 or lower, acknowledge the issue and invite them to contact support."

// ReviseInstruction opens every revision prompt
const ReviseInstruction = "You are revising a reply that was already drafted for this review. " +
	"Do not write a new reply from scratch. Apply the change request to the previous reply " +
	"and keep everything else the same."

// Options parameterizes prompt rendering. Empty fields are omitted.
type Options struct {
	Instruction       string
	Tone              string
	PreferredLanguage string
}

// Build renders the prompt for a new draft
func Build(input *extract.PromptInput, opts Options) string {
	var b strings.Builder
	writeInstructions(&b, opts)
	b.WriteString("\n\n")
	writeDetails(&b, input)
	b.WriteString("\n\nReply:")
	return b.String()
}

// BuildChange renders the prompt for revising an existing draft
func BuildChange(input *extract.PromptInput, opts Options, previousReply, changeRequest string) string {
	var b strings.Builder
	b.WriteString(ReviseInstruction)
	b.WriteString("\n\nOriginal instructions:\n")
	writeInstructions(&b, opts)
	b.WriteString("\n\n")
	writeDetails(&b, input)
	b.WriteString("\n\nPrevious reply:\n")
	b.WriteString(strings.TrimSpace(previousReply))
	b.WriteString("\n\nChange request:\n")
	b.WriteString(strings.TrimSpace(changeRequest))
	b.WriteString("\n\nRevised reply:")
	return b.String()
}

func writeInstructions(b *strings.Builder, opts Options) {
	instruction := strings.TrimSpace(opts.Instruction)
	if instruction == "" {
		instruction = DefaultInstruction
	}
	b.WriteString(instruction)
	if tone := strings.TrimSpace(opts.Tone); tone != "" {
		b.WriteString("\nTone: ")
		b.WriteString(tone)
	}
	if lang := strings.TrimSpace(opts.PreferredLanguage); lang != "" {
		b.WriteString("\nPreferred language: ")
		b.WriteString(lang)
	}
}

func writeDetails(b *strings.Builder, input *extract.PromptInput) {
	if input == nil {
		input = &extract.PromptInput{}
	}
	b.WriteString("Review details:")
	b.WriteString("\nSource: " + orDefault(input.Source, "Unknown"))
	b.WriteString("\nReviewer: " + orDefault(input.AuthorName, "Guest"))
	rating := "N/A"
	if input.Rating != nil {
		rating = strconv.FormatFloat(*input.Rating, 'f', -1, 64)
	}
	b.WriteString("\nRating: " + rating)
	b.WriteString("\nTitle: " + orDefault(input.Title, "N/A"))
	b.WriteString("\nReview: " + orDefault(input.ReviewText, "(no text provided)"))
}

func orDefault(s *string, def string) string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return def
	}
	return *s
}
