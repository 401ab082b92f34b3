package core

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path"
	"strings"
)

// Reporter persists session and batch results through the storage layer.
// It builds on the Session record only; the regeneration loop never sees it.
type Reporter struct {
	storage Storage
	logger  *slog.Logger
}

func NewReporter(storage Storage, logger *slog.Logger) *Reporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reporter{
		storage: storage,
		logger:  logger.With("component", "reporter"),
	}
}

// WriteSession saves the full session record as JSON under the session's
// directory and returns the relative report path.
func (r *Reporter) WriteSession(ctx context.Context, dir string, session *Session) (string, error) {
	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshaling session report: %w", err)
	}

	reportPath := path.Join(dir, "session.json")
	if err := r.storage.Save(ctx, reportPath, data); err != nil {
		return "", fmt.Errorf("saving session report: %w", err)
	}

	r.logger.Info("session report written",
		"session_id", session.ID,
		"path", reportPath,
		"attempts", len(session.Attempts))

	return reportPath, nil
}

// SaveAcceptedImage archives the accepted image of a succeeded session next
// to its report. Sessions that did not succeed, and providers without a
// fetchable image reference, are a no-op with an empty path.
func (r *Reporter) SaveAcceptedImage(ctx context.Context, dir string, session *Session, fetcher ImageFetcher) (string, error) {
	if fetcher == nil || session == nil || !session.Succeeded() {
		return "", nil
	}
	last := session.LastAttempt()
	if last == nil || last.ImageRef == "" {
		return "", nil
	}

	data, err := fetcher.FetchImage(ctx, last.ImageRef)
	if err != nil {
		return "", fmt.Errorf("fetching accepted image: %w", err)
	}

	imagePath := path.Join(dir, "image.png")
	if err := r.storage.Save(ctx, imagePath, data); err != nil {
		return "", fmt.Errorf("saving accepted image: %w", err)
	}

	r.logger.Info("accepted image archived",
		"session_id", session.ID,
		"path", imagePath,
		"bytes", len(data))

	return imagePath, nil
}

// WriteBatch saves the aggregate result JSON plus a markdown summary.
func (r *Reporter) WriteBatch(ctx context.Context, dir string, batch *BatchResult) (string, error) {
	data, err := json.MarshalIndent(batch, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshaling batch report: %w", err)
	}

	jsonPath := path.Join(dir, "batch.json")
	if err := r.storage.Save(ctx, jsonPath, data); err != nil {
		return "", fmt.Errorf("saving batch report: %w", err)
	}

	summaryPath := path.Join(dir, "summary.md")
	if err := r.storage.Save(ctx, summaryPath, []byte(batchSummary(batch))); err != nil {
		return "", fmt.Errorf("saving batch summary: %w", err)
	}

	r.logger.Info("batch report written",
		"path", jsonPath,
		"sessions", len(batch.Sessions))

	return jsonPath, nil
}

func batchSummary(batch *BatchResult) string {
	var sb strings.Builder

	sb.WriteString("# Safety Test Summary\n\n")
	fmt.Fprintf(&sb, "- Total sessions: %d\n", batch.Stats.Total)
	fmt.Fprintf(&sb, "- Succeeded: %d\n", batch.Stats.Succeeded)
	fmt.Fprintf(&sb, "- Exhausted retries: %d\n", batch.Stats.Exhausted)
	fmt.Fprintf(&sb, "- Aborted: %d\n", batch.Stats.Aborted)
	fmt.Fprintf(&sb, "- Total attempts: %d\n", batch.Stats.TotalAttempts)
	fmt.Fprintf(&sb, "- Content rejections: %d\n", batch.Stats.ContentRejected)
	fmt.Fprintf(&sb, "- Success rate: %.1f%%\n", batch.Stats.SuccessRate*100)
	fmt.Fprintf(&sb, "- Filter bypass rate: %.1f%%\n", batch.Stats.FilterBypassRate*100)
	sb.WriteString("\n## Sessions\n\n")

	for _, session := range batch.Sessions {
		if session == nil {
			continue
		}
		fmt.Fprintf(&sb, "### %s (%s)\n\n", session.ID, session.Status)
		fmt.Fprintf(&sb, "Original prompt: %s\n\n", session.OriginalPrompt)
		for _, attempt := range session.Attempts {
			score := "-"
			if attempt.Score != nil {
				score = fmt.Sprintf("%.2f", *attempt.Score)
			}
			fmt.Fprintf(&sb, "- attempt %d: %s (score %s)\n", attempt.Seq, attempt.Verdict, score)
		}
		sb.WriteString("\n")
	}

	return sb.String()
}
