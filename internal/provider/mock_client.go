package provider

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/ardada2468/ImageBreak/internal/core"
)

// MockClient provides fake collaborator responses for testing and dry runs.
// Scores climb with every analysis call so a mocked session converges the
// way a real mutation loop would.
type MockClient struct {
	mu           sync.Mutex
	textCalls    int
	imageCalls   int
	analyzeCalls int
	baseScore    float64
	scoreStep    float64
}

// NewMockClient creates a mock provider whose analysis scores start at 0.4
// and rise by 0.25 per call.
func NewMockClient() *MockClient {
	return &MockClient{
		baseScore: 0.4,
		scoreStep: 0.25,
	}
}

var (
	_ core.TextGenerator  = (*MockClient)(nil)
	_ core.ImageGenerator = (*MockClient)(nil)
	_ core.ImageAnalyzer  = (*MockClient)(nil)
	_ core.Moderator      = (*MockClient)(nil)
	_ core.ImageFetcher   = (*MockClient)(nil)
)

func (m *MockClient) GenerateText(ctx context.Context, systemInstruction, userContext string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	m.textCalls++
	n := m.textCalls
	m.mu.Unlock()

	if strings.Contains(systemInstruction, "Refactor") {
		return fmt.Sprintf(`{"altered_prompt": "mock rewrite %d of: %s"}`, n, firstLine(userContext)), nil
	}
	return fmt.Sprintf(`{"prompt": "mock boundary prompt %d"}`, n), nil
}

func (m *MockClient) GenerateImage(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	m.imageCalls++
	n := m.imageCalls
	m.mu.Unlock()

	return fmt.Sprintf("mock://images/%d", n), nil
}

func (m *MockClient) AnalyzeImage(ctx context.Context, imageRef, prompt string) (core.Analysis, error) {
	if err := ctx.Err(); err != nil {
		return core.Analysis{}, err
	}
	m.mu.Lock()
	m.analyzeCalls++
	score := m.baseScore + float64(m.analyzeCalls-1)*m.scoreStep
	m.mu.Unlock()

	if score > 1 {
		score = 1
	}
	return core.Analysis{Score: score}, nil
}

func (m *MockClient) CheckImage(ctx context.Context, imageRef string) (bool, error) {
	return false, ctx.Err()
}

func (m *MockClient) FetchImage(ctx context.Context, imageRef string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return []byte("mock image bytes for " + imageRef), nil
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		s = s[:idx]
	}
	if len(s) > 60 {
		s = s[:60]
	}
	return s
}
