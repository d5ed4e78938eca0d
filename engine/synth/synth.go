package synth

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/CarnegieLearningWeb/upgrade-agent/engine/core"
	"github.com/CarnegieLearningWeb/upgrade-agent/engine/llm"
	"github.com/CarnegieLearningWeb/upgrade-agent/engine/session"
	"github.com/CarnegieLearningWeb/upgrade-agent/pkg/logger"
)

// Service turns dispatch outcomes into the turn's user-visible text. The
// model is used as a summarizer only; when it fails, a deterministic plain
// rendering stands in so a dispatch outcome is never lost.
type Service struct {
	client llm.Client
}

// NewService builds a synthesizer over the given model client.
func NewService(client llm.Client) *Service {
	return &Service{client: client}
}

// RenderResult produces the reply for a single completed dispatch.
func (s *Service) RenderResult(ctx context.Context, sess *session.Session, entry *session.LogEntry) string {
	if entry.Status == core.StatusError {
		return renderError(entry)
	}

	prompt := fmt.Sprintf(
		"The action %s completed successfully. Summarize the result below for the user "+
			"in a short, friendly reply. Mention identifiers and counts they would care "+
			"about. Do not invent information that is not in the result.\n\nResult:\n%s",
		entry.Action, renderJSON(entry.Result.AsMap()),
	)
	if reply, ok := s.summarize(ctx, sess, prompt); ok {
		return reply
	}
	return plainResult(entry)
}

// TaskSummary closes out a multi-step task from its full execution log.
// The caller clears Task Progress after consuming the summary.
func (s *Service) TaskSummary(ctx context.Context, sess *session.Session, completion string) string {
	entries := sess.TaskLog()
	var b strings.Builder
	if sess.Progress != nil {
		fmt.Fprintf(&b, "Task: %s\n", sess.Progress.Type)
	}
	fmt.Fprintf(&b, "Planner's completion note: %s\n\nSteps executed:\n", completion)
	for i, entry := range entries {
		fmt.Fprintf(&b, "%d. %s (%s)\n", i+1, entry.Action, entry.Status)
		if entry.Error != nil {
			fmt.Fprintf(&b, "   error: %s\n", entry.Error.Message)
		} else if len(entry.Result) > 0 {
			fmt.Fprintf(&b, "   result: %s\n", renderJSON(entry.Result.AsMap()))
		}
	}

	prompt := "A multi-step task just finished. Write one coherent summary of what was " +
		"done and what the outcome was, based only on the record below. Keep it short " +
		"and concrete.\n\n" + b.String()
	if reply, ok := s.summarize(ctx, sess, prompt); ok {
		return reply
	}
	return plainTaskSummary(completion, entries)
}

// summarize runs one summarization call. Failures are logged and reported
// as not-ok; callers fall back to deterministic rendering.
func (s *Service) summarize(ctx context.Context, sess *session.Session, prompt string) (string, bool) {
	resp, err := s.client.GenerateContent(ctx, &llm.Request{
		SystemPrompt: "You are the voice of an assistant that manages A/B experiments " +
			"on the UpGrade platform. Reply with plain text for the user, no JSON.",
		Messages: []llm.Message{{Role: llm.RoleUser, Content: prompt}},
	})
	if err != nil {
		logger.FromContext(ctx).Warn("summarization failed, using plain rendering",
			"session", sess.ID, "error", err)
		return "", false
	}
	reply := strings.TrimSpace(resp.Content)
	return reply, reply != ""
}

// -----------------------------------------------------------------------------
// Deterministic fallbacks
// -----------------------------------------------------------------------------

func plainResult(entry *session.LogEntry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s completed successfully.", entry.Action)
	for _, key := range []string{"id", "name", "state", "user_id", "count"} {
		if value := entry.Result.Prop(key); value != nil {
			fmt.Fprintf(&b, " %s: %v.", key, value)
		}
	}
	return b.String()
}

func plainTaskSummary(completion string, entries []session.LogEntry) string {
	var b strings.Builder
	if completion != "" {
		b.WriteString(completion + "\n")
	}
	fmt.Fprintf(&b, "Task finished after %d step(s):\n", len(entries))
	for i, entry := range entries {
		fmt.Fprintf(&b, "%d. %s: %s\n", i+1, entry.Action, strings.ToLower(entry.Status.String()))
	}
	return b.String()
}

// renderError maps a failed dispatch to user-facing text by error kind.
func renderError(entry *session.LogEntry) string {
	if entry.Error == nil {
		return fmt.Sprintf("%s failed.", entry.Action)
	}
	switch core.KindFromError(entry.Error) {
	case core.KindAuth:
		return fmt.Sprintf("I couldn't authenticate with the platform while running %s: %s",
			entry.Action, entry.Error.Message)
	case core.KindNotFound:
		return fmt.Sprintf("The platform couldn't find what %s referred to: %s",
			entry.Action, entry.Error.Message)
	case core.KindValidation:
		return fmt.Sprintf("The platform rejected %s: %s", entry.Action, entry.Error.Message)
	case core.KindAPI:
		return fmt.Sprintf("The platform returned an error while running %s: %s",
			entry.Action, entry.Error.Message)
	default:
		return fmt.Sprintf("Something unexpected went wrong while running %s. "+
			"The session is still usable — you can try again or ask for something else.",
			entry.Action)
	}
}

func renderJSON(value any) string {
	raw, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", value)
	}
	return string(raw)
}
