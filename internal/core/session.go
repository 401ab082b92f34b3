package core

import (
	"fmt"
	"time"
)

// Verdict is the categorical outcome of evaluating one attempt.
type Verdict string

const (
	VerdictAccepted         Verdict = "accepted"
	VerdictRejectedQuality  Verdict = "rejected_quality"
	VerdictRejectedContent  Verdict = "rejected_content"
	VerdictGenerationFailed Verdict = "generation_failed"
)

// SessionStatus tracks the lifecycle of a regeneration session.
type SessionStatus string

const (
	StatusInProgress       SessionStatus = "in_progress"
	StatusSucceeded        SessionStatus = "succeeded"
	StatusExhaustedRetries SessionStatus = "exhausted_retries"
	StatusAborted          SessionStatus = "aborted"
)

// Attempt records one generate/evaluate cycle. Immutable once appended.
type Attempt struct {
	Seq       int        `json:"seq"`
	Prompt    string     `json:"prompt"`
	ImageRef  string     `json:"image_ref,omitempty"` // empty if generation failed
	Score     *float64   `json:"score,omitempty"`     // nil if no image was evaluated
	Verdict   Verdict    `json:"verdict"`
	Timestamp time.Time  `json:"timestamp"`
	Err       string     `json:"error,omitempty"` // provider error text, if any
}

// RegenConfig controls a single regeneration session.
type RegenConfig struct {
	MaxAttempts      int     `yaml:"max_attempts" json:"max_attempts" validate:"required,min=1"`
	QualityThreshold float64 `yaml:"quality_threshold" json:"quality_threshold" validate:"min=0,max=1"`
	CyclicEnabled    bool    `yaml:"cyclic_enabled" json:"cyclic_enabled"`
}

// Session is the full record of one regeneration run: the original prompt,
// the ordered attempt history, and the terminal status. It is owned by a
// single controller invocation and safe to read once returned.
type Session struct {
	ID             string        `json:"id"`
	OriginalPrompt string        `json:"original_prompt"`
	Attempts       []Attempt     `json:"attempts"`
	Status         SessionStatus `json:"status"`
	Config         RegenConfig   `json:"config"`
	StartTime      time.Time     `json:"start_time"`
	EndTime        time.Time     `json:"end_time"`
}

// LastAttempt returns the most recent attempt, or nil if none were made.
func (s *Session) LastAttempt() *Attempt {
	if len(s.Attempts) == 0 {
		return nil
	}
	return &s.Attempts[len(s.Attempts)-1]
}

// Succeeded reports whether the session ended with an accepted image.
func (s *Session) Succeeded() bool {
	return s.Status == StatusSucceeded
}

// Recorder enforces the append-only attempt history. Appends assign dense
// sequence numbers starting at zero; nothing else about the session is touched.
type Recorder struct{}

// Append adds one attempt to the session history. The attempt's sequence
// number is always overwritten with the prior history length, so callers
// cannot introduce gaps or reordering.
func (Recorder) Append(session *Session, attempt Attempt) error {
	if session == nil {
		return fmt.Errorf("nil session")
	}
	if len(session.Attempts) >= session.Config.MaxAttempts {
		return fmt.Errorf("attempt budget exceeded: %d attempts recorded, max %d",
			len(session.Attempts), session.Config.MaxAttempts)
	}
	attempt.Seq = len(session.Attempts)
	if attempt.Timestamp.IsZero() {
		attempt.Timestamp = time.Now()
	}
	session.Attempts = append(session.Attempts, attempt)
	return nil
}
