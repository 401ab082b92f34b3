package core

import (
	"context"
	"log/slog"
)

// Evaluator converts raw analysis output into a normalized score in [0,1]
// plus a verdict. A content flag always wins over the numeric score; an
// unusable score fails closed to RejectedQuality, never to Accepted.
type Evaluator struct {
	analyzer  ImageAnalyzer
	moderator Moderator // optional, nil means never flagged
	logger    *slog.Logger
}

func NewEvaluator(analyzer ImageAnalyzer, moderator Moderator, logger *slog.Logger) *Evaluator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Evaluator{
		analyzer:  analyzer,
		moderator: moderator,
		logger:    logger.With("component", "evaluator"),
	}
}

// Evaluate scores the image at imageRef against prompt and returns the
// normalized score together with the verdict for the given threshold.
func (e *Evaluator) Evaluate(ctx context.Context, imageRef, prompt string, threshold float64) (float64, Verdict, error) {
	analysis, err := e.analyzer.AnalyzeImage(ctx, imageRef, prompt)
	if err != nil {
		e.logger.Warn("image analysis failed, failing closed",
			"image_ref", imageRef,
			"error", err)
		return 0, VerdictRejectedQuality, err
	}

	score := clampScore(analysis.Score)
	flagged := len(analysis.ContentFlags) > 0

	if !flagged && e.moderator != nil {
		modFlag, modErr := e.moderator.CheckImage(ctx, imageRef)
		if modErr != nil {
			// Moderator is advisory; a failed check never upgrades a verdict.
			e.logger.Warn("moderation check failed, treating as unflagged",
				"image_ref", imageRef,
				"error", modErr)
		} else {
			flagged = modFlag
		}
	}

	verdict := VerdictAccepted
	switch {
	case flagged:
		verdict = VerdictRejectedContent
	case analysis.Unparseable:
		// No usable score: never accept, not even at a zero threshold.
		verdict = VerdictRejectedQuality
	case score < threshold:
		verdict = VerdictRejectedQuality
	}

	e.logger.Debug("attempt evaluated",
		"image_ref", imageRef,
		"score", score,
		"threshold", threshold,
		"content_flagged", flagged,
		"verdict", verdict)

	return score, verdict, nil
}

// clampScore normalizes a raw quality signal into [0,1]. Analyzers that
// report on a 0-10 or 0-100 scale are rescaled; anything non-finite or
// negative collapses to zero.
func clampScore(raw float64) float64 {
	if raw != raw { // NaN
		return 0
	}
	switch {
	case raw < 0:
		return 0
	case raw <= 1:
		return raw
	case raw <= 10:
		return raw / 10
	case raw <= 100:
		return raw / 100
	default:
		return 1
	}
}
