package core

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	iberrors "github.com/ardada2468/ImageBreak/pkg/imagebreak/errors"
)

// Controller drives the cyclic regeneration loop: generate an image for the
// current prompt, evaluate it, record the attempt, then stop on acceptance or
// mutate the prompt and retry until the budget runs out.
//
// Attempts within a session are strictly sequential; independent sessions may
// run concurrently because each Run invocation owns its Session.
type Controller struct {
	generator ImageGenerator
	evaluator *Evaluator
	mutator   *Mutator
	recorder  Recorder
	logger    *slog.Logger
}

func NewController(generator ImageGenerator, evaluator *Evaluator, mutator *Mutator, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		generator: generator,
		evaluator: evaluator,
		mutator:   mutator,
		logger:    logger.With("component", "controller"),
	}
}

// Run executes one regeneration session for originalPrompt. The returned
// Session always reflects the true attempt history and terminal status; a
// failed attempt never surfaces as an error. The only error case is an
// invalid configuration, checked before any attempt is made.
//
// Cancellation policy: if the session context is canceled during a
// collaborator call, the in-flight attempt is dropped and the session is
// marked Aborted. Non-context provider failures become GenerationFailed
// attempts and consume retry budget.
func (c *Controller) Run(ctx context.Context, originalPrompt string, cfg RegenConfig) (*Session, error) {
	if err := validateRegenConfig(originalPrompt, cfg); err != nil {
		return nil, err
	}

	session := &Session{
		ID:             uuid.New().String(),
		OriginalPrompt: originalPrompt,
		Attempts:       make([]Attempt, 0, cfg.MaxAttempts),
		Status:         StatusInProgress,
		Config:         cfg,
		StartTime:      time.Now(),
	}

	logger := c.logger.With("session_id", session.ID)
	logger.Info("starting regeneration session",
		"max_attempts", cfg.MaxAttempts,
		"quality_threshold", cfg.QualityThreshold,
		"cyclic_enabled", cfg.CyclicEnabled)

	current := originalPrompt

	for len(session.Attempts) < cfg.MaxAttempts && session.Status == StatusInProgress {
		imageRef, genErr := c.generator.GenerateImage(ctx, current)
		if genErr != nil {
			if canceled(ctx, session, logger) {
				break
			}
			logger.Warn("image generation failed",
				"retryable", iberrors.IsRetryable(genErr),
				"error", genErr)
			c.record(session, Attempt{Prompt: current, Verdict: VerdictGenerationFailed, Err: genErr.Error()}, logger)
			if !cfg.CyclicEnabled {
				session.Status = StatusExhaustedRetries
			}
			// Generation failures retry the same prompt: there is no
			// analysis verdict to guide a mutation.
			continue
		}

		score, verdict, evalErr := c.evaluator.Evaluate(ctx, imageRef, current, cfg.QualityThreshold)
		if evalErr != nil {
			if canceled(ctx, session, logger) {
				break
			}
			// Analyzer outage, not a content judgement. Absorb it like a
			// generation failure and keep the prompt unchanged.
			c.record(session, Attempt{Prompt: current, ImageRef: imageRef, Verdict: VerdictGenerationFailed, Err: evalErr.Error()}, logger)
			if !cfg.CyclicEnabled {
				session.Status = StatusExhaustedRetries
			}
			continue
		}

		c.record(session, Attempt{Prompt: current, ImageRef: imageRef, Score: &score, Verdict: verdict}, logger)

		if verdict == VerdictAccepted {
			session.Status = StatusSucceeded
			continue
		}
		if !cfg.CyclicEnabled {
			// Single-shot mode: exactly one attempt regardless of budget.
			session.Status = StatusExhaustedRetries
			continue
		}
		if len(session.Attempts) >= cfg.MaxAttempts {
			// Last slot used; a mutation result would never be tried.
			continue
		}

		next, mutErr := c.mutator.Mutate(ctx, current, verdict)
		if mutErr != nil {
			if canceled(ctx, session, logger) {
				break
			}
			// A failed mutation consumes one unit of budget rather than
			// being retried indefinitely; the prompt stays unchanged.
			logger.Warn("prompt mutation failed", "error", mutErr)
			c.record(session, Attempt{Prompt: current, Verdict: VerdictGenerationFailed, Err: mutErr.Error()}, logger)
			continue
		}
		current = next
	}

	if session.Status == StatusInProgress {
		session.Status = StatusExhaustedRetries
	}
	session.EndTime = time.Now()

	logger.Info("regeneration session finished",
		"status", session.Status,
		"attempts", len(session.Attempts),
		"duration_ms", session.EndTime.Sub(session.StartTime).Milliseconds())

	return session, nil
}

func (c *Controller) record(session *Session, attempt Attempt, logger *slog.Logger) {
	if err := c.recorder.Append(session, attempt); err != nil {
		// Unreachable while the loop condition holds; fail safe anyway.
		logger.Error("attempt append rejected", "error", err)
		return
	}
	logger.Info("attempt recorded",
		"seq", session.LastAttempt().Seq,
		"verdict", attempt.Verdict,
		"score", scoreForLog(attempt.Score))
}

// canceled checks whether the session context was canceled mid-attempt and,
// if so, aborts the session. The in-flight attempt is dropped.
func canceled(ctx context.Context, session *Session, logger *slog.Logger) bool {
	if ctx.Err() == nil {
		return false
	}
	session.Status = StatusAborted
	logger.Warn("session aborted by cancellation",
		"attempts_recorded", len(session.Attempts))
	return true
}

func validateRegenConfig(prompt string, cfg RegenConfig) error {
	if strings.TrimSpace(prompt) == "" {
		return iberrors.NewConfigurationError("original_prompt", "must not be empty")
	}
	if cfg.MaxAttempts < 1 {
		return iberrors.NewConfigurationError("max_attempts", "must be at least 1")
	}
	if cfg.QualityThreshold < 0 || cfg.QualityThreshold > 1 {
		return iberrors.NewConfigurationError("quality_threshold", "must be within [0,1]")
	}
	return nil
}

func scoreForLog(score *float64) any {
	if score == nil {
		return "none"
	}
	return *score
}
