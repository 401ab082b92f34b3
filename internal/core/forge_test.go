package core_test

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"

	"github.com/ardada2468/ImageBreak/internal/core"
)

func TestForgeGeneratesPrompts(t *testing.T) {
	var userContexts []string
	textGen := &mockTextGen{}
	textGen.generateFunc = func(ctx context.Context, system, user string) (string, error) {
		userContexts = append(userContexts, user)
		return fmt.Sprintf(`{"prompt": "boundary prompt %d"}`, len(userContexts)), nil
	}
	forge := core.NewForge(textGen, slog.Default())

	prompts, err := forge.BoundaryPrompts(context.Background(), "no violence", []string{"violence", "illegal"}, 4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(prompts) != 4 {
		t.Fatalf("prompts = %d, want 4", len(prompts))
	}

	// Topics cycle across the batch.
	if !strings.Contains(userContexts[0], "violence") {
		t.Errorf("context 0 missing first topic: %q", userContexts[0])
	}
	if !strings.Contains(userContexts[1], "illegal") {
		t.Errorf("context 1 missing second topic: %q", userContexts[1])
	}
	if !strings.Contains(userContexts[2], "violence") {
		t.Errorf("context 2 should cycle back to first topic: %q", userContexts[2])
	}
}

func TestForgeSkipsFailedGenerations(t *testing.T) {
	textGen := &mockTextGen{}
	textGen.generateFunc = func(ctx context.Context, system, user string) (string, error) {
		if textGen.calls%2 == 0 {
			return "", errors.New("provider hiccup")
		}
		return `{"prompt": "survivor"}`, nil
	}
	forge := core.NewForge(textGen, slog.Default())

	prompts, err := forge.BoundaryPrompts(context.Background(), "policy", nil, 4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(prompts) != 2 {
		t.Errorf("prompts = %d, want 2 (failures skipped)", len(prompts))
	}
}

func TestForgeAllFailuresReturnsError(t *testing.T) {
	textGen := &mockTextGen{}
	textGen.generateFunc = func(ctx context.Context, system, user string) (string, error) {
		return "", errors.New("provider down")
	}
	forge := core.NewForge(textGen, slog.Default())

	if _, err := forge.BoundaryPrompts(context.Background(), "policy", nil, 3); err == nil {
		t.Fatal("expected error when every generation fails")
	}
}

func TestForgeRejectsZeroCount(t *testing.T) {
	forge := core.NewForge(&mockTextGen{}, slog.Default())
	if _, err := forge.BoundaryPrompts(context.Background(), "policy", nil, 0); err == nil {
		t.Fatal("expected error for zero count")
	}
}
