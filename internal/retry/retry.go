// Package retry implements the generic bounded-retry loop shared by both
// pipeline stages: invoke a producer, gate its output through a validator,
// and feed the previous attempt's error findings back into the next attempt
// until the output is accepted or the budget is exhausted.
package retry

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dshills/agentforge/internal/schema"
)

// TerminalState is the final state of a retry session.
type TerminalState string

const (
	StateAccepted  TerminalState = "accepted"
	StateExhausted TerminalState = "exhausted"
)

// Producer generates one candidate artifact. The feedback argument is empty
// on the first attempt; on retries it carries the error findings of the
// immediately preceding outcome and nothing else. Prior raw outputs are
// never replayed, so prompt size stays bounded.
type Producer func(ctx context.Context, feedback string) (string, error)

// Validator judges one candidate artifact. It must be deterministic.
type Validator func(raw string) schema.Outcome

// Attempt records a single producer invocation within a session.
// Attempts are immutable once appended.
type Attempt struct {
	Index     int           `json:"index"`
	Feedback  string        `json:"feedback,omitempty"`
	RawOutput string        `json:"raw_output"`
	Elapsed   time.Duration `json:"elapsed"`
}

// Session is the audit record of one stage invocation. Attempts and Outcomes
// are aligned by index and always have equal length: an attempt is only
// recorded together with its validation outcome. The session is owned by the
// coordinator during Run and by the caller afterwards.
type Session struct {
	ID          string           `json:"id"`
	MaxAttempts int              `json:"max_attempts"`
	Attempts    []Attempt        `json:"attempts"`
	Outcomes    []schema.Outcome `json:"outcomes"`
	Terminal    TerminalState    `json:"terminal_state,omitempty"`
}

// LastOutcome returns the most recent outcome, or a zero Outcome when no
// attempt has completed.
func (s *Session) LastOutcome() schema.Outcome {
	if len(s.Outcomes) == 0 {
		return schema.Outcome{}
	}
	return s.Outcomes[len(s.Outcomes)-1]
}

// ExhaustedError is returned when the attempt budget is consumed without an
// accepted outcome. It carries the full session for diagnosis.
type ExhaustedError struct {
	Session *Session
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("retry: budget exhausted after %d attempts", len(e.Session.Attempts))
}

// GenerationError is returned when the producer itself fails. The coordinator
// does not consume retry budget on backend failures: a backend that is down
// stays down, and burning attempts on it hides the real problem.
type GenerationError struct {
	Session *Session
	Err     error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("retry: producer failed on attempt %d: %v", len(e.Session.Attempts), e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// Run drives the retry loop. On acceptance it returns the accepted raw
// output and the session; on budget exhaustion it returns *ExhaustedError;
// on producer failure it returns *GenerationError immediately. The returned
// session is never nil.
func Run(ctx context.Context, maxAttempts int, producer Producer, validator Validator, logger *zap.Logger) (string, *Session, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	session := &Session{
		ID:          uuid.NewString(),
		MaxAttempts: maxAttempts,
	}
	if maxAttempts < 1 {
		return "", session, fmt.Errorf("retry: max attempts must be >= 1, got %d", maxAttempts)
	}

	for index := 0; index < maxAttempts; index++ {
		feedback := ""
		if index > 0 {
			feedback = BuildFeedback(session.Outcomes[index-1])
		}

		start := time.Now()
		raw, err := producer(ctx, feedback)
		if err != nil {
			// The failed invocation is not recorded as an attempt: attempts
			// and outcomes stay aligned, and the session shows only the
			// validation history up to the failure.
			return "", session, &GenerationError{Session: session, Err: err}
		}

		outcome := validator(raw)
		session.Attempts = append(session.Attempts, Attempt{
			Index:     index,
			Feedback:  feedback,
			RawOutput: raw,
			Elapsed:   time.Since(start),
		})
		session.Outcomes = append(session.Outcomes, outcome)

		if outcome.Accepted {
			session.Terminal = StateAccepted
			logger.Debug("attempt accepted",
				zap.String("session", session.ID),
				zap.Int("attempt", index))
			return raw, session, nil
		}

		logger.Debug("attempt rejected",
			zap.String("session", session.ID),
			zap.Int("attempt", index),
			zap.Int("error_findings", len(outcome.ErrorFindings())),
			zap.Int("risk_score", outcome.RiskScore))
	}

	session.Terminal = StateExhausted
	return "", session, &ExhaustedError{Session: session}
}

// BuildFeedback renders an outcome's error findings into the feedback text
// for the next attempt. Only the most recent outcome ever contributes; a
// finding's location is included when known.
func BuildFeedback(outcome schema.Outcome) string {
	errs := outcome.ErrorFindings()
	if len(errs) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, f := range errs {
		if f.Line > 0 {
			fmt.Fprintf(&sb, "- line %d: %s\n", f.Line, f.Message)
		} else {
			fmt.Fprintf(&sb, "- %s\n", f.Message)
		}
	}
	return sb.String()
}
