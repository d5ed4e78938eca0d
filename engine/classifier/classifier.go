package classifier

import (
	"context"
	"fmt"
	"strings"

	"github.com/CarnegieLearningWeb/upgrade-agent/engine/action"
	"github.com/CarnegieLearningWeb/upgrade-agent/engine/core"
	"github.com/CarnegieLearningWeb/upgrade-agent/engine/knowledge"
	"github.com/CarnegieLearningWeb/upgrade-agent/engine/llm"
	"github.com/CarnegieLearningWeb/upgrade-agent/engine/metadata"
	"github.com/CarnegieLearningWeb/upgrade-agent/engine/session"
	"github.com/CarnegieLearningWeb/upgrade-agent/pkg/config"
	"github.com/CarnegieLearningWeb/upgrade-agent/pkg/logger"
	"github.com/tidwall/gjson"
)

// IntentType is the classifier's verdict on a user turn.
type IntentType string

const (
	IntentDirectAnswer IntentType = "direct_answer"
	IntentNeedsTool    IntentType = "needs_tool"
	IntentAmbiguous    IntentType = "ambiguous"
)

// Decision is the typed classification record for one user turn. Every
// engine decision downstream is a deterministic function of this record
// plus session state; the model's text never drives control flow directly.
type Decision struct {
	Intent     IntentType
	Confidence float64
	Summary    string
	// Answer is the direct reply (for direct_answer) or the clarifying
	// question (for ambiguous).
	Answer string
	// Action and Params are set for needs_tool.
	Action action.Name
	Params core.Input
	// TaskType marks multi-step tasks; Planned holds the advisory step
	// descriptions for the session's task progress.
	TaskType string
	Planned  []string
}

// Continuation is the classifier's re-plan after one dispatch of a
// multi-step task: either the next step or a completion signal.
type Continuation struct {
	Done    bool
	Summary string
	Step    string
	Action  action.Name
	Params  core.Input
	Planned []string
}

// Service classifies user turns and re-plans running tasks through the
// language model.
type Service struct {
	client        llm.Client
	meta          *metadata.Service
	glossary      *knowledge.Base
	threshold     float64
	historyWindow int
}

// NewService builds a classifier over the given model client.
func NewService(client llm.Client, meta *metadata.Service, glossary *knowledge.Base, cfg *config.Config) *Service {
	return &Service{
		client:        client,
		meta:          meta,
		glossary:      glossary,
		threshold:     cfg.Engine.ConfidenceThreshold,
		historyWindow: cfg.Engine.HistoryWindow,
	}
}

// Classify decides how to handle a fresh user utterance. Low confidence and
// malformed model replies both force an ambiguous decision; classification
// never fails a turn on its own.
func (s *Service) Classify(ctx context.Context, sess *session.Session, utterance string) (*Decision, error) {
	log := logger.FromContext(ctx)

	req := &llm.Request{
		SystemPrompt: s.classifySystemPrompt(ctx),
		Messages:     s.historyMessages(sess, utterance),
		Options:      llm.CallOptions{UseJSONMode: true},
	}
	resp, err := s.client.GenerateContent(ctx, req)
	if err != nil {
		return nil, core.NewError(err, core.CodeAPIError, map[string]any{
			"stage": "classification",
		})
	}

	decision := parseDecision(resp)
	if decision.Intent == IntentNeedsTool && decision.Action == "" {
		decision.Intent = IntentAmbiguous
	}
	if decision.Confidence < s.threshold && decision.Intent != IntentAmbiguous {
		log.Debug("forcing ambiguous intent",
			"declared", decision.Intent, "confidence", decision.Confidence)
		decision.Intent = IntentAmbiguous
	}
	if decision.Intent == IntentAmbiguous && decision.Answer == "" {
		decision.Answer = "I'm not sure what you'd like to do. Could you rephrase, or tell me which experiment or action you have in mind?"
	}
	log.Debug("classified turn",
		"intent", decision.Intent, "action", decision.Action,
		"confidence", decision.Confidence, "task", decision.TaskType)
	return decision, nil
}

// Continue re-plans a running multi-step task from the last execution log
// entry. A malformed reply is an error here, not an ambiguous fallback: the
// orchestrator must know whether the task goes on.
func (s *Service) Continue(ctx context.Context, sess *session.Session) (*Continuation, error) {
	if sess.Progress == nil {
		return nil, core.NewError(fmt.Errorf("no task in progress"), core.CodeInternal, nil)
	}

	req := &llm.Request{
		SystemPrompt: s.continueSystemPrompt(ctx),
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: renderTaskState(sess)}},
		Options:      llm.CallOptions{UseJSONMode: true},
	}
	resp, err := s.client.GenerateContent(ctx, req)
	if err != nil {
		return nil, core.NewError(err, core.CodeAPIError, map[string]any{
			"stage": "continuation",
			"task":  sess.Progress.Type,
		})
	}

	doc, ok := llm.ExtractJSONObject(resp.Content)
	if !ok {
		return nil, core.NewError(
			fmt.Errorf("continuation reply carried no JSON object"),
			core.CodeAPIError,
			map[string]any{"task": sess.Progress.Type},
		)
	}
	cont := &Continuation{
		Done:    gjson.Get(doc, "done").Bool(),
		Summary: gjson.Get(doc, "summary").String(),
		Step:    gjson.Get(doc, "step").String(),
		Planned: stringList(gjson.Get(doc, "planned_steps")),
	}
	if cont.Done {
		return cont, nil
	}
	name, err := action.Parse(gjson.Get(doc, "action").String())
	if err != nil {
		return nil, core.NewError(
			fmt.Errorf("continuation named an unsupported action"),
			core.CodeAPIError,
			map[string]any{"task": sess.Progress.Type, "raw": gjson.Get(doc, "action").String()},
		)
	}
	cont.Action = name
	cont.Params = inputValue(gjson.Get(doc, "params"))
	if cont.Step == "" {
		cont.Step = name.String()
	}
	return cont, nil
}

// -----------------------------------------------------------------------------
// Prompt construction
// -----------------------------------------------------------------------------

func (s *Service) classifySystemPrompt(ctx context.Context) string {
	var b strings.Builder
	b.WriteString("You are the intent classifier of an assistant that manages A/B experiments ")
	b.WriteString("on the UpGrade platform. Classify the user's latest message.\n\n")
	b.WriteString("Reply with a single JSON object:\n")
	b.WriteString(`{"intent": "direct_answer" | "needs_tool" | "ambiguous",` + "\n")
	b.WriteString(` "confidence": 0.0-1.0,` + "\n")
	b.WriteString(` "summary": "one sentence restating the request",` + "\n")
	b.WriteString(` "answer": "the direct reply or clarifying question, when applicable",` + "\n")
	b.WriteString(` "action": "one of the supported actions, for needs_tool",` + "\n")
	b.WriteString(` "params": {"field": "value extracted from the message"},` + "\n")
	b.WriteString(` "task_type": "short label, only when the request needs several actions",` + "\n")
	b.WriteString(` "planned_steps": ["ordered step descriptions, only with task_type"]}` + "\n\n")
	b.WriteString("Rules:\n")
	b.WriteString("- direct_answer is only for questions answerable from the glossary below; it must never require an API call.\n")
	b.WriteString("- needs_tool requires naming exactly one supported action. Extract any parameter values the message already contains.\n")
	b.WriteString("- Requests like testing condition balance need several actions in sequence; set task_type and plan the steps, then name the first action.\n")
	b.WriteString("- When unsure, use ambiguous and put a clarifying question in answer.\n\n")
	b.WriteString("Supported actions:\n")
	for _, spec := range action.All() {
		fmt.Fprintf(&b, "- %s: %s\n", spec.Name, spec.Description)
	}
	b.WriteString("\n")
	s.writeVocabulary(ctx, &b)
	b.WriteString("\nGlossary:\n")
	b.WriteString(s.glossary.Render())
	return b.String()
}

func (s *Service) continueSystemPrompt(ctx context.Context) string {
	var b strings.Builder
	b.WriteString("You are planning the next step of a multi-step task against the UpGrade ")
	b.WriteString("A/B experimentation platform. You are given the task so far and the result ")
	b.WriteString("of the last executed action. Decide the single next action, or finish.\n\n")
	b.WriteString("Reply with a single JSON object, either:\n")
	b.WriteString(`{"done": false, "action": "...", "params": {...}, "step": "what this step does", "planned_steps": ["remaining steps"]}` + "\n")
	b.WriteString("or:\n")
	b.WriteString(`{"done": true, "summary": "what was accomplished across all steps"}` + "\n\n")
	b.WriteString("Rules:\n")
	b.WriteString("- Plan exactly one action at a time; you will be called again after it runs.\n")
	b.WriteString("- If the last action failed, decide whether an alternative step recovers the task; otherwise finish with done=true and say what failed.\n")
	b.WriteString("- If you changed an experiment's status to run the task, change it back before finishing.\n\n")
	b.WriteString("Supported actions:\n")
	for _, spec := range action.All() {
		fmt.Fprintf(&b, "- %s: %s\n", spec.Name, spec.Description)
	}
	b.WriteString("\n")
	s.writeContextNames(ctx, &b)
	return b.String()
}

// writeVocabulary inlines the platform vocabulary summary so the model can
// extract context names, condition codes and experiment references directly
// from the user's wording. Both reads come from the metadata cache.
func (s *Service) writeVocabulary(ctx context.Context, b *strings.Builder) {
	summary, err := s.meta.PromptSummary(ctx)
	if err != nil {
		logger.FromContext(ctx).Warn("platform vocabulary unavailable for prompt", "error", err)
		return
	}
	b.WriteString(summary)
}

// writeContextNames adds the available context names only. Continuation
// prompts already carry the task's executed results, so the compact form
// keeps re-planning calls small.
func (s *Service) writeContextNames(ctx context.Context, b *strings.Builder) {
	names, err := s.meta.Contexts(ctx)
	if err != nil {
		logger.FromContext(ctx).Warn("context names unavailable for prompt", "error", err)
		return
	}
	b.WriteString("Available app contexts: " + strings.Join(names, ", ") + "\n")
}

func (s *Service) historyMessages(sess *session.Session, utterance string) []llm.Message {
	turns := sess.RecentTurns(s.historyWindow)
	messages := make([]llm.Message, 0, len(turns)*2+1)
	for _, turn := range turns {
		messages = append(messages,
			llm.Message{Role: llm.RoleUser, Content: turn.User},
			llm.Message{Role: llm.RoleAssistant, Content: turn.Assistant},
		)
	}
	return append(messages, llm.Message{Role: llm.RoleUser, Content: utterance})
}

// renderTaskState serializes the running task and its last result for the
// continuation prompt.
func renderTaskState(sess *session.Session) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Task: %s\n", sess.Progress.Type)
	b.WriteString("Steps executed:\n")
	if len(sess.Progress.Executed) == 0 {
		b.WriteString("- none yet\n")
	}
	for _, step := range sess.Progress.Executed {
		fmt.Fprintf(&b, "- %s\n", step)
	}
	if len(sess.Progress.Planned) > 0 {
		b.WriteString("Previously planned next steps (advisory):\n")
		for _, step := range sess.Progress.Planned {
			fmt.Fprintf(&b, "- %s\n", step)
		}
	}
	if last := sess.LastLog(); last != nil {
		fmt.Fprintf(&b, "\nLast action: %s (%s)\n", last.Action, last.Status)
		if last.Error != nil {
			fmt.Fprintf(&b, "Error: %s\n", last.Error.Message)
		} else if len(last.Result) > 0 {
			fmt.Fprintf(&b, "Result: %v\n", last.Result.AsMap())
		}
	}
	return b.String()
}

// -----------------------------------------------------------------------------
// Response parsing
// -----------------------------------------------------------------------------

// parseDecision turns a model reply into a Decision. Anything unparseable
// collapses to ambiguous with zero confidence.
func parseDecision(resp *llm.Response) *Decision {
	doc, ok := llm.ExtractJSONObject(resp.Content)
	if !ok {
		return &Decision{Intent: IntentAmbiguous}
	}
	decision := &Decision{
		Intent:     IntentType(gjson.Get(doc, "intent").String()),
		Confidence: gjson.Get(doc, "confidence").Float(),
		Summary:    gjson.Get(doc, "summary").String(),
		Answer:     gjson.Get(doc, "answer").String(),
		TaskType:   gjson.Get(doc, "task_type").String(),
		Planned:    stringList(gjson.Get(doc, "planned_steps")),
	}
	switch decision.Intent {
	case IntentDirectAnswer, IntentNeedsTool, IntentAmbiguous:
	default:
		decision.Intent = IntentAmbiguous
		decision.Confidence = 0
	}
	if raw := gjson.Get(doc, "action").String(); raw != "" {
		if name, err := action.Parse(raw); err == nil {
			decision.Action = name
		}
	}
	decision.Params = inputValue(gjson.Get(doc, "params"))
	return decision
}

func stringList(result gjson.Result) []string {
	if !result.IsArray() {
		return nil
	}
	items := result.Array()
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s := item.String(); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func inputValue(result gjson.Result) core.Input {
	if !result.IsObject() {
		return core.Input{}
	}
	raw, ok := result.Value().(map[string]any)
	if !ok {
		return core.Input{}
	}
	return core.NewInput(raw)
}
