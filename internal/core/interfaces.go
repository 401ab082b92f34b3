package core

import "context"

// TextGenerator produces text from a system instruction plus user context.
// Used by the prompt mutator and the boundary prompt forge.
type TextGenerator interface {
	GenerateText(ctx context.Context, systemInstruction, userContext string) (string, error)
}

// ImageGenerator turns a prompt into an opaque image reference.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, prompt string) (string, error)
}

// Analysis is the raw output of the image-analysis collaborator.
type Analysis struct {
	Score        float64  `json:"score"`
	ContentFlags []string `json:"content_flags,omitempty"`
	// Unparseable marks an analyzer reply that produced no usable score.
	// The evaluator rejects it on quality regardless of threshold, so a
	// garbled reply can never pass as a genuine zero score.
	Unparseable bool `json:"-"`
}

// ImageAnalyzer scores a generated image against its prompt and reports any
// content flags it detected.
type ImageAnalyzer interface {
	AnalyzeImage(ctx context.Context, imageRef, prompt string) (Analysis, error)
}

// Moderator is an optional pass/fail content classifier. A nil Moderator is
// treated as "never flagged".
type Moderator interface {
	CheckImage(ctx context.Context, imageRef string) (flagged bool, err error)
}

// ImageFetcher retrieves the bytes behind an opaque image reference so
// accepted images can be archived next to their session report. Providers
// whose references are not retrievable simply don't implement it.
type ImageFetcher interface {
	FetchImage(ctx context.Context, imageRef string) ([]byte, error)
}

// Storage persists session artifacts (reports, archived images). The loop
// itself has no persistence obligation; storage is consumed by the report
// layer, and List exists so tooling can enumerate past reports.
type Storage interface {
	Save(ctx context.Context, path string, data []byte) error
	Load(ctx context.Context, path string) ([]byte, error)
	List(ctx context.Context, pattern string) ([]string, error)
}
