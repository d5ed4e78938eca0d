package collector

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/CarnegieLearningWeb/upgrade-agent/engine/action"
	"github.com/CarnegieLearningWeb/upgrade-agent/engine/core"
	"github.com/CarnegieLearningWeb/upgrade-agent/engine/llm"
	"github.com/CarnegieLearningWeb/upgrade-agent/engine/metadata"
	"github.com/CarnegieLearningWeb/upgrade-agent/engine/session"
	"github.com/CarnegieLearningWeb/upgrade-agent/pkg/logger"
	"github.com/tidwall/gjson"
)

// Status is the collector's verdict after one gathering pass.
type Status int

const (
	// StatusPrompt means at least one field is still missing or invalid;
	// Prompt carries the question to ask.
	StatusPrompt Status = iota
	// StatusReady means every required field is gathered and validated.
	StatusReady
	// StatusCancelled means the utterance matched the cancellation
	// vocabulary and the pending action must be discarded.
	StatusCancelled
)

// Outcome is the result of one Collect pass.
type Outcome struct {
	Status Status
	Prompt string
}

var cancellationVocabulary = map[string]struct{}{
	"cancel": {}, "stop": {}, "abort": {}, "quit": {}, "exit": {},
	"never mind": {}, "nevermind": {}, "forget it": {}, "forget about it": {},
}

// IsCancellation reports whether an utterance asks to abandon the pending
// action. Matching is exact against a fixed vocabulary after trimming.
func IsCancellation(utterance string) bool {
	normalized := strings.TrimRight(strings.ToLower(strings.TrimSpace(utterance)), ".!?")
	_, ok := cancellationVocabulary[normalized]
	return ok
}

// Service fills an action's parameter set across turns: extracting values
// from utterances, validating them against platform metadata, and asking
// for whatever is still missing.
type Service struct {
	client llm.Client
	meta   *metadata.Service
}

// NewService builds a collector over the given model client and metadata
// cache.
func NewService(client llm.Client, meta *metadata.Service) *Service {
	return &Service{client: client, meta: meta}
}

// Collect runs one gathering pass for the session's pending action. The
// utterance may be empty on the first pass of a turn whose parameters all
// came from the classifier. Validation failures downgrade fields back to
// missing and come back as prompts, not errors.
func (s *Service) Collect(ctx context.Context, sess *session.Session, utterance string) (*Outcome, error) {
	if sess.Pending == nil {
		return nil, core.NewError(fmt.Errorf("no pending action to gather for"), core.CodeInternal, nil)
	}
	if IsCancellation(utterance) {
		return &Outcome{Status: StatusCancelled}, nil
	}
	spec, ok := action.Get(sess.Pending.Name)
	if !ok {
		return nil, core.NewError(
			fmt.Errorf("pending action %q is not registered", sess.Pending.Name),
			core.CodeInternal, nil,
		)
	}

	missing := action.MissingParams(spec, sess.Pending.Gathered)
	if utterance != "" && len(missing) > 0 {
		s.extractFields(ctx, sess, spec, missing, utterance)
	}
	s.resolveFields(ctx, sess, spec, true)

	sess.Pending.Missing = action.MissingParams(spec, sess.Pending.Gathered)
	if len(sess.Pending.Missing) > 0 {
		prompt, err := s.NextPrompt(ctx, sess)
		if err != nil {
			return nil, err
		}
		return &Outcome{Status: StatusPrompt, Prompt: prompt}, nil
	}

	s.applyDefaults(ctx, sess, spec)
	if err := action.Validate(ctx, spec, sess.Pending.Gathered); err != nil {
		s.downgrade(ctx, sess, err)
		sess.Pending.Missing = action.MissingParams(spec, sess.Pending.Gathered)
		prompt, perr := s.NextPrompt(ctx, sess)
		if perr != nil {
			return nil, perr
		}
		return &Outcome{Status: StatusPrompt, Prompt: prompt}, nil
	}
	return &Outcome{Status: StatusReady}, nil
}

// Revalidate rechecks a ready parameter set against the current metadata
// snapshot immediately before dispatch. Metadata can change between
// gathering and execution; a field that no longer validates is downgraded
// and the returned error sends the turn back to gathering.
func (s *Service) Revalidate(ctx context.Context, sess *session.Session) error {
	if sess.Pending == nil || !sess.Pending.Ready() {
		return core.NewError(fmt.Errorf("no ready action to revalidate"), core.CodeInternal, nil)
	}
	spec, ok := action.Get(sess.Pending.Name)
	if !ok {
		return core.NewError(
			fmt.Errorf("pending action %q is not registered", sess.Pending.Name),
			core.CodeInternal, nil,
		)
	}
	s.resolveFields(ctx, sess, spec, false)
	if missing := action.MissingParams(spec, sess.Pending.Gathered); len(missing) > 0 {
		sess.Pending.Missing = missing
		return core.NewError(
			fmt.Errorf("parameters went stale before dispatch: %s", strings.Join(missing, ", ")),
			core.CodeValidationFailed,
			map[string]any{"fields": missing},
		)
	}
	if err := action.Validate(ctx, spec, sess.Pending.Gathered); err != nil {
		s.downgrade(ctx, sess, err)
		sess.Pending.Missing = action.MissingParams(spec, sess.Pending.Gathered)
		return err
	}
	return nil
}

// -----------------------------------------------------------------------------
// Extraction
// -----------------------------------------------------------------------------

// extractFields asks the model to pull values for the missing fields out of
// the raw utterance. Extraction is best-effort: a failed call or an empty
// reply just leaves the fields missing and the user gets a direct question.
func (s *Service) extractFields(
	ctx context.Context,
	sess *session.Session,
	spec action.Spec,
	missing []string,
	utterance string,
) {
	log := logger.FromContext(ctx)

	resp, err := s.client.GenerateContent(ctx, &llm.Request{
		SystemPrompt: s.extractionSystemPrompt(ctx, sess, spec, missing),
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: utterance}},
		Options:      llm.CallOptions{UseJSONMode: true},
	})
	if err != nil {
		log.Warn("field extraction call failed", "action", spec.Name, "error", err)
		return
	}
	doc, ok := llm.ExtractJSONObject(resp.Content)
	if !ok {
		log.Debug("field extraction reply carried no JSON", "action", spec.Name)
		return
	}

	properties := schemaProperties(spec)
	gjson.Parse(doc).ForEach(func(key, value gjson.Result) bool {
		field := key.String()
		if _, known := properties[field]; !known {
			return true
		}
		if value.Type == gjson.Null {
			return true
		}
		if value.Type == gjson.String && strings.TrimSpace(value.String()) == "" {
			return true
		}
		sess.Pending.Gathered.Set(field, value.Value())
		log.Debug("extracted parameter", "action", spec.Name, "field", field)
		return true
	})
}

func (s *Service) extractionSystemPrompt(
	ctx context.Context,
	sess *session.Session,
	spec action.Spec,
	missing []string,
) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Extract parameter values for the action %q from the user's message.\n", spec.Name)
	fmt.Fprintf(&b, "Action: %s.\n\n", spec.Description)
	b.WriteString("Fields still needed: " + strings.Join(missing, ", ") + "\n")
	if len(sess.Pending.Gathered) > 0 {
		fmt.Fprintf(&b, "Already known: %v\n", sess.Pending.Gathered.AsMap())
	}
	if vocab := s.contextVocabulary(ctx, sess); vocab != "" {
		b.WriteString("\n" + vocab)
	}
	b.WriteString("\nReply with a single JSON object mapping field names to extracted values. ")
	b.WriteString("Use null for anything the message does not state. Never invent values.\n")
	b.WriteString("Field shapes: decision_points is a list of {\"site\", \"target\"} objects; ")
	b.WriteString("conditions is a list of {\"code\", \"weight\"} objects with weights as percentages; ")
	b.WriteString("group is an object mapping group type to a list of group ids.\n")
	return b.String()
}

// contextVocabulary inlines the gathered context's full metadata so the
// model extracts values that actually exist on the platform.
func (s *Service) contextVocabulary(ctx context.Context, sess *session.Session) string {
	name, _ := sess.Pending.Gathered["context"].(string)
	if name == "" {
		return ""
	}
	info, err := s.meta.ContextInfo(ctx, name)
	if err != nil {
		return ""
	}
	return fmt.Sprintf("Context %q vocabulary: conditions=%s; group_types=%s; sites=%s; targets=%s\n",
		info.Name,
		strings.Join(info.Conditions, ", "),
		strings.Join(info.GroupTypes, ", "),
		strings.Join(info.Sites, ", "),
		strings.Join(info.Targets, ", "),
	)
}

// -----------------------------------------------------------------------------
// Metadata resolution
// -----------------------------------------------------------------------------

// resolveFields validates and normalizes metadata-bound fields in place.
// With refresh true, a value that fails against the cached vocabulary gets
// one retry against refreshed metadata before it is rejected — the cache
// may simply be stale.
func (s *Service) resolveFields(ctx context.Context, sess *session.Session, spec action.Spec, refresh bool) {
	s.resolveExperimentRef(ctx, sess, refresh)
	s.resolveContext(ctx, sess, refresh)
	s.resolveContextBound(ctx, sess, spec)
}

// resolveExperimentRef turns a name or partial reference in experiment_id
// into the platform id, keeping the original reference under name for
// confirmation display.
func (s *Service) resolveExperimentRef(ctx context.Context, sess *session.Session, refresh bool) {
	ref, _ := sess.Pending.Gathered["experiment_id"].(string)
	if ref == "" {
		return
	}
	id, err := s.meta.ResolveExperimentID(ctx, ref)
	if err != nil && refresh {
		s.meta.Invalidate()
		id, err = s.meta.ResolveExperimentID(ctx, ref)
	}
	if err != nil {
		s.rejectField(ctx, sess, "experiment_id", err)
		return
	}
	if id != ref {
		sess.Pending.Gathered.Set("experiment_id", id)
		if _, hasName := sess.Pending.Gathered["name"]; !hasName {
			sess.Pending.Gathered.Set("name", ref)
		}
	}
}

func (s *Service) resolveContext(ctx context.Context, sess *session.Session, refresh bool) {
	name, _ := sess.Pending.Gathered["context"].(string)
	if name == "" {
		return
	}
	_, err := s.meta.ContextInfo(ctx, name)
	if err != nil && refresh {
		s.meta.Invalidate()
		_, err = s.meta.ContextInfo(ctx, name)
	}
	if err != nil {
		s.rejectField(ctx, sess, "context", err)
	}
}

// resolveContextBound checks condition codes, sites and targets against the
// gathered context's vocabulary. Contexts that publish no vocabulary for a
// slot accept any value.
func (s *Service) resolveContextBound(ctx context.Context, sess *session.Session, spec action.Spec) {
	if spec.Name != action.CreateExperiment && spec.Name != action.UpdateExperiment &&
		spec.Name != action.MarkDecisionPoint {
		return
	}
	contextName, _ := sess.Pending.Gathered["context"].(string)
	if contextName == "" {
		return
	}
	info, err := s.meta.ContextInfo(ctx, contextName)
	if err != nil {
		return
	}

	if conditions, ok := sess.Pending.Gathered["conditions"].([]any); ok && len(info.Conditions) > 0 {
		for _, raw := range conditions {
			condition, _ := raw.(map[string]any)
			code, _ := condition["code"].(string)
			if code != "" && !contains(info.Conditions, code) {
				s.rejectField(ctx, sess, "conditions", core.NewError(
					fmt.Errorf("condition %q is not valid in context %q", code, contextName),
					core.CodeValidationFailed,
					map[string]any{"allowed": info.Conditions},
				))
				return
			}
		}
	}
	if points, ok := sess.Pending.Gathered["decision_points"].([]any); ok {
		for _, raw := range points {
			point, _ := raw.(map[string]any)
			site, _ := point["site"].(string)
			target, _ := point["target"].(string)
			if len(info.Sites) > 0 && site != "" && !contains(info.Sites, site) {
				s.rejectField(ctx, sess, "decision_points", core.NewError(
					fmt.Errorf("site %q is not valid in context %q", site, contextName),
					core.CodeValidationFailed,
					map[string]any{"allowed": info.Sites},
				))
				return
			}
			if len(info.Targets) > 0 && target != "" && !contains(info.Targets, target) {
				s.rejectField(ctx, sess, "decision_points", core.NewError(
					fmt.Errorf("target %q is not valid in context %q", target, contextName),
					core.CodeValidationFailed,
					map[string]any{"allowed": info.Targets},
				))
				return
			}
		}
	}
}

// rejectField downgrades a gathered field back to missing and records why.
func (s *Service) rejectField(ctx context.Context, sess *session.Session, field string, err error) {
	delete(sess.Pending.Gathered, field)
	kind := core.KindFromError(err)
	if !kind.Recoverable() {
		kind = core.KindValidation
	}
	sess.RecordError(kind, err.Error())
	logger.FromContext(ctx).Debug("field downgraded to missing",
		"action", sess.Pending.Name, "field", field, "kind", kind)
}

// downgrade maps a validation error back onto the field it names, or onto
// nothing when the error carries no field hint.
func (s *Service) downgrade(ctx context.Context, sess *session.Session, err error) {
	sess.RecordError(core.KindValidation, err.Error())
	cerr := &core.Error{}
	if !errors.As(err, &cerr) {
		return
	}
	if field, ok := cerr.Details["field"].(string); ok {
		root := strings.SplitN(field, ".", 2)[0]
		delete(sess.Pending.Gathered, root)
		logger.FromContext(ctx).Debug("field downgraded by validation",
			"action", sess.Pending.Name, "field", root)
	}
}

// applyDefaults fills optional fields once every required one is present.
// Gathered values always win over defaults.
func (s *Service) applyDefaults(ctx context.Context, sess *session.Session, spec action.Spec) {
	if len(spec.Defaults) == 0 {
		return
	}
	defaults, err := spec.Defaults.Clone()
	if err != nil {
		logger.FromContext(ctx).Warn("defaults not applied", "action", spec.Name, "error", err)
		return
	}
	for key, value := range *defaults {
		if _, present := sess.Pending.Gathered[key]; !present {
			sess.Pending.Gathered.Set(key, value)
		}
	}
}

// -----------------------------------------------------------------------------
// Prompts
// -----------------------------------------------------------------------------

// NextPrompt builds the question for the first missing field, enumerating
// legal values when metadata provides them. Any pending error records are
// surfaced first so the user learns why a value was rejected.
func (s *Service) NextPrompt(ctx context.Context, sess *session.Session) (string, error) {
	if sess.Pending == nil || len(sess.Pending.Missing) == 0 {
		return "", core.NewError(fmt.Errorf("nothing left to ask for"), core.CodeInternal, nil)
	}
	var b strings.Builder
	for _, record := range sess.Errors {
		if record.Kind.Recoverable() {
			b.WriteString(record.Message + "\n")
		}
	}
	field := sess.Pending.Missing[0]
	b.WriteString(s.promptFor(ctx, sess, field))
	return b.String(), nil
}

func (s *Service) promptFor(ctx context.Context, sess *session.Session, field string) string {
	switch field {
	case "context":
		if names, err := s.meta.Contexts(ctx); err == nil && len(names) > 0 {
			return fmt.Sprintf("Which app context should this apply to? Available contexts: %s.",
				strings.Join(names, ", "))
		}
		return "Which app context should this apply to?"
	case "experiment_id":
		if names, err := s.meta.ExperimentNames(ctx); err == nil && len(names) > 0 {
			listed := make([]string, 0, len(names))
			for _, n := range names {
				listed = append(listed, n.Name)
			}
			return fmt.Sprintf("Which experiment do you mean? Existing experiments: %s.",
				strings.Join(listed, ", "))
		}
		return "Which experiment do you mean? You can give its name or id."
	case "name":
		return "What should the experiment be called?"
	case "status":
		return "Which status should the experiment move to? Settable statuses: inactive, enrolling, enrollmentComplete, cancelled."
	case "decision_points":
		if vocab := s.contextVocabulary(ctx, sess); vocab != "" {
			return "Which decision points (site and target pairs) should the experiment cover?\n" + vocab
		}
		return "Which decision points (site and target pairs) should the experiment cover?"
	case "conditions":
		if vocab := s.contextVocabulary(ctx, sess); vocab != "" {
			return "Which conditions should the experiment have? Give each a code and a percentage weight; weights must sum to 100.\n" + vocab
		}
		return "Which conditions should the experiment have? Give each a code and a percentage weight; weights must sum to 100."
	case "user_id":
		return "Which user id should I use for this?"
	case "site":
		return "Which site (decision point location) is this for?"
	case "target":
		return "Which target at that site is this for?"
	case "group_type":
		if vocab := s.contextVocabulary(ctx, sess); vocab != "" {
			return "Group assignment needs a group type.\n" + vocab
		}
		return "Group assignment needs a group type (for example schoolId or classId). Which one should I use?"
	default:
		return fmt.Sprintf("I still need a value for %s. What should it be?", field)
	}
}

func schemaProperties(spec action.Spec) map[string]any {
	if spec.Params == nil {
		return nil
	}
	properties, _ := (*spec.Params)["properties"].(map[string]any)
	return properties
}

func contains(values []string, needle string) bool {
	for _, value := range values {
		if value == needle {
			return true
		}
	}
	return false
}
