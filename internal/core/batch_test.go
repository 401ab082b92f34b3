package core_test

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/ardada2468/ImageBreak/internal/core"
)

// threadSafeImageGen is a concurrency-safe generator for batch tests.
type threadSafeImageGen struct {
	mu       sync.Mutex
	inFlight int32
	peak     int32
}

func (g *threadSafeImageGen) GenerateImage(ctx context.Context, prompt string) (string, error) {
	current := atomic.AddInt32(&g.inFlight, 1)
	defer atomic.AddInt32(&g.inFlight, -1)

	g.mu.Lock()
	if current > g.peak {
		g.peak = current
	}
	g.mu.Unlock()

	return "img-" + prompt, nil
}

type threadSafeAnalyzer struct{}

func (threadSafeAnalyzer) AnalyzeImage(ctx context.Context, imageRef, prompt string) (core.Analysis, error) {
	// Prompts containing "fail" never reach the threshold.
	if strings.Contains(prompt, "fail") {
		return core.Analysis{Score: 0.1}, nil
	}
	return core.Analysis{Score: 0.9}, nil
}

func newBatchRunner(concurrency int) *core.BatchRunner {
	logger := slog.Default()
	gen := &threadSafeImageGen{}
	evaluator := core.NewEvaluator(threadSafeAnalyzer{}, nil, logger)
	textGen := &mockTextGen{}
	textGen.generateFunc = func(ctx context.Context, system, user string) (string, error) {
		return `{"altered_prompt": "still failing rewrite"}`, nil
	}
	mutator := core.NewMutator(textGen, logger)
	ctrl := core.NewController(gen, evaluator, mutator, logger)
	return core.NewBatchRunner(ctrl, concurrency, logger)
}

func TestBatchRunnerAggregatesResults(t *testing.T) {
	prompts := []string{"alpha", "will fail one", "beta", "will fail two"}
	runner := newBatchRunner(2)

	batch, err := runner.Run(context.Background(), prompts, core.RegenConfig{
		MaxAttempts:      2,
		QualityThreshold: 0.7,
		CyclicEnabled:    true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if batch.Stats.Total != 4 {
		t.Errorf("total = %d, want 4", batch.Stats.Total)
	}
	if batch.Stats.Succeeded != 2 {
		t.Errorf("succeeded = %d, want 2", batch.Stats.Succeeded)
	}
	if batch.Stats.Exhausted != 2 {
		t.Errorf("exhausted = %d, want 2", batch.Stats.Exhausted)
	}
	if got := batch.Stats.SuccessRate; got != 0.5 {
		t.Errorf("success rate = %v, want 0.5", got)
	}

	// Results keep prompt order.
	for i, session := range batch.Sessions {
		if session == nil {
			t.Fatalf("session %d missing", i)
		}
		if session.OriginalPrompt != prompts[i] {
			t.Errorf("session %d prompt = %q, want %q", i, session.OriginalPrompt, prompts[i])
		}
	}
}

func TestBatchRunnerSessionsAreIndependent(t *testing.T) {
	prompts := make([]string, 8)
	for i := range prompts {
		prompts[i] = fmt.Sprintf("prompt-%d", i)
	}
	runner := newBatchRunner(4)

	batch, err := runner.Run(context.Background(), prompts, core.RegenConfig{
		MaxAttempts:      1,
		QualityThreshold: 0.5,
		CyclicEnabled:    true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	seen := make(map[string]bool)
	for _, session := range batch.Sessions {
		if seen[session.ID] {
			t.Errorf("duplicate session id %s", session.ID)
		}
		seen[session.ID] = true
		if len(session.Attempts) != 1 {
			t.Errorf("session %s attempts = %d, want 1", session.ID, len(session.Attempts))
		}
	}
}

func TestBatchRunnerPropagatesConfigurationError(t *testing.T) {
	runner := newBatchRunner(2)

	_, err := runner.Run(context.Background(), []string{"ok", ""}, core.RegenConfig{
		MaxAttempts:      1,
		QualityThreshold: 0.5,
		CyclicEnabled:    true,
	})
	if err == nil {
		t.Fatal("expected configuration error for empty prompt")
	}
}
