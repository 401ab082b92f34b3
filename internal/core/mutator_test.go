package core_test

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/ardada2468/ImageBreak/internal/core"
)

func TestMutatorParsesResponses(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     string
	}{
		{"json altered_prompt", `{"altered_prompt": "a softer scene"}`, "a softer scene"},
		{"json prompt key", `{"prompt": "an alternative"}`, "an alternative"},
		{"markdown fenced", "```json\n{\"altered_prompt\": \"fenced rewrite\"}\n```", "fenced rewrite"},
		{"plain text fallback", "just a rewritten prompt", "just a rewritten prompt"},
		{"whitespace trimmed", "  padded rewrite \n", "padded rewrite"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			textGen := &mockTextGen{}
			textGen.generateFunc = func(ctx context.Context, system, user string) (string, error) {
				return tt.response, nil
			}
			mutator := core.NewMutator(textGen, slog.Default())

			got, err := mutator.Mutate(context.Background(), "original", core.VerdictRejectedContent)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Mutate() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMutatorRejectsUnchangedPrompt(t *testing.T) {
	textGen := &mockTextGen{}
	textGen.generateFunc = func(ctx context.Context, system, user string) (string, error) {
		return `{"altered_prompt": "original"}`, nil
	}
	mutator := core.NewMutator(textGen, slog.Default())

	if _, err := mutator.Mutate(context.Background(), "original", core.VerdictRejectedQuality); err == nil {
		t.Fatal("expected error for identical rewrite")
	}
}

func TestMutatorRejectsEmptyRewrite(t *testing.T) {
	tests := []struct {
		name     string
		response string
	}{
		{"empty json value", `{"altered_prompt": ""}`},
		{"blank response", "   "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			textGen := &mockTextGen{}
			textGen.generateFunc = func(ctx context.Context, system, user string) (string, error) {
				return tt.response, nil
			}
			mutator := core.NewMutator(textGen, slog.Default())

			if _, err := mutator.Mutate(context.Background(), "original", core.VerdictRejectedQuality); err == nil {
				t.Fatal("expected error for empty rewrite")
			}
		})
	}
}

func TestMutatorPropagatesProviderFailure(t *testing.T) {
	textGen := &mockTextGen{}
	textGen.generateFunc = func(ctx context.Context, system, user string) (string, error) {
		return "", errors.New("provider down")
	}
	mutator := core.NewMutator(textGen, slog.Default())

	if _, err := mutator.Mutate(context.Background(), "original", core.VerdictRejectedContent); err == nil {
		t.Fatal("expected provider failure to propagate")
	}
}

func TestMutatorPassesVerdictGuidance(t *testing.T) {
	var seenUser string
	textGen := &mockTextGen{}
	textGen.generateFunc = func(ctx context.Context, system, user string) (string, error) {
		seenUser = user
		return `{"altered_prompt": "rewrite"}`, nil
	}
	mutator := core.NewMutator(textGen, slog.Default())

	if _, err := mutator.Mutate(context.Background(), "original", core.VerdictRejectedContent); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(seenUser, "original") {
		t.Error("user context should contain the original prompt")
	}
	if !strings.Contains(seenUser, "content moderation") {
		t.Error("user context should describe the content rejection")
	}
}
