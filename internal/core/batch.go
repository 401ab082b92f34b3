package core

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// BatchResult aggregates the outcome of running one session per prompt.
type BatchResult struct {
	Sessions  []*Session `json:"sessions"`
	Stats     BatchStats `json:"stats"`
	StartTime time.Time  `json:"start_time"`
	EndTime   time.Time  `json:"end_time"`
}

// BatchStats summarizes a batch run in the shape callers use for reporting.
type BatchStats struct {
	Total            int     `json:"total"`
	Succeeded        int     `json:"succeeded"`
	Exhausted        int     `json:"exhausted"`
	Aborted          int     `json:"aborted"`
	TotalAttempts    int     `json:"total_attempts"`
	ContentRejected  int     `json:"content_rejected"`
	SuccessRate      float64 `json:"success_rate"`
	FilterBypassRate float64 `json:"filter_bypass_rate"`
}

// BatchRunner runs independent regeneration sessions concurrently. Sessions
// share no mutable state, so the only coordination needed is the concurrency
// cap and the result slice.
type BatchRunner struct {
	controller  *Controller
	concurrency int
	logger      *slog.Logger
}

func NewBatchRunner(controller *Controller, concurrency int, logger *slog.Logger) *BatchRunner {
	if concurrency < 1 {
		concurrency = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BatchRunner{
		controller:  controller,
		concurrency: concurrency,
		logger:      logger.With("component", "batch_runner"),
	}
}

// Run executes one session per prompt, at most `concurrency` at a time.
// Results keep prompt order. Configuration errors fail the whole batch;
// everything else ends up in the per-session status.
func (b *BatchRunner) Run(ctx context.Context, prompts []string, cfg RegenConfig) (*BatchResult, error) {
	result := &BatchResult{
		Sessions:  make([]*Session, len(prompts)),
		StartTime: time.Now(),
	}

	b.logger.Info("starting batch run",
		"prompts", len(prompts),
		"concurrency", b.concurrency)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.concurrency)

	for i, prompt := range prompts {
		i, prompt := i, prompt
		g.Go(func() error {
			session, err := b.controller.Run(gctx, prompt, cfg)
			if err != nil {
				return err
			}
			mu.Lock()
			result.Sessions[i] = session
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	result.EndTime = time.Now()
	result.Stats = summarize(result.Sessions)

	b.logger.Info("batch run finished",
		"total", result.Stats.Total,
		"succeeded", result.Stats.Succeeded,
		"exhausted", result.Stats.Exhausted,
		"aborted", result.Stats.Aborted,
		"duration_ms", result.EndTime.Sub(result.StartTime).Milliseconds())

	return result, nil
}

func summarize(sessions []*Session) BatchStats {
	stats := BatchStats{Total: len(sessions)}

	for _, session := range sessions {
		if session == nil {
			continue
		}
		stats.TotalAttempts += len(session.Attempts)

		switch session.Status {
		case StatusSucceeded:
			stats.Succeeded++
		case StatusExhaustedRetries:
			stats.Exhausted++
		case StatusAborted:
			stats.Aborted++
		}

		for _, attempt := range session.Attempts {
			if attempt.Verdict == VerdictRejectedContent {
				stats.ContentRejected++
			}
		}
	}

	if stats.Total > 0 {
		stats.SuccessRate = float64(stats.Succeeded) / float64(stats.Total)
	}
	// A bypass is a session that was content-rejected at least once but
	// eventually produced an accepted image.
	bypasses := 0
	for _, session := range sessions {
		if session == nil || session.Status != StatusSucceeded {
			continue
		}
		for _, attempt := range session.Attempts {
			if attempt.Verdict == VerdictRejectedContent {
				bypasses++
				break
			}
		}
	}
	if stats.Total > 0 {
		stats.FilterBypassRate = float64(bypasses) / float64(stats.Total)
	}

	return stats
}
