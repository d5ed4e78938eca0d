package confirm

import (
	"fmt"
	"sort"
	"strings"

	"github.com/CarnegieLearningWeb/upgrade-agent/engine/action"
	"github.com/CarnegieLearningWeb/upgrade-agent/engine/core"
	"github.com/CarnegieLearningWeb/upgrade-agent/engine/upgrade"
)

// DeleteToken is the literal reply required to confirm a destructive
// action. Matching is exact and case-sensitive: "yes" is never enough to
// delete something.
const DeleteToken = "DELETE"

// Reply is the outcome of evaluating the user's answer to a confirmation
// prompt.
type Reply int

const (
	// ReplyUnclear means the answer matched neither vocabulary; the gate
	// re-prompts without advancing.
	ReplyUnclear Reply = iota
	ReplyAffirm
	ReplyDeny
)

var affirmVocabulary = map[string]struct{}{
	"yes": {}, "y": {}, "yeah": {}, "yep": {}, "sure": {}, "ok": {},
	"okay": {}, "confirm": {}, "proceed": {}, "go ahead": {}, "do it": {},
}

var denyVocabulary = map[string]struct{}{
	"no": {}, "n": {}, "nope": {}, "cancel": {}, "stop": {}, "abort": {},
	"never mind": {}, "nevermind": {}, "quit": {},
}

// Evaluate decides whether a reply confirms or rejects the pending action.
// Destructive actions accept only the exact literal token; a plain "yes"
// (or anything else that is not a denial) re-prompts. Everything here is
// exact-string matching: confirmation is never delegated to a model.
func Evaluate(spec action.Spec, reply string) Reply {
	trimmed := strings.TrimSpace(reply)
	if spec.Destructive {
		if trimmed == DeleteToken {
			return ReplyAffirm
		}
		if _, ok := denyVocabulary[normalize(trimmed)]; ok {
			return ReplyDeny
		}
		return ReplyUnclear
	}
	normalized := normalize(trimmed)
	if _, ok := affirmVocabulary[normalized]; ok {
		return ReplyAffirm
	}
	if _, ok := denyVocabulary[normalized]; ok {
		return ReplyDeny
	}
	return ReplyUnclear
}

func normalize(reply string) string {
	lowered := strings.ToLower(strings.TrimSpace(reply))
	return strings.TrimRight(lowered, ".!?")
}

// Render builds the deterministic confirmation prompt for a
// fully-parameterized action. The text is a pure function of the action
// name and its parameter set.
func Render(name action.Name, params core.Input) string {
	var b strings.Builder
	switch name {
	case action.CreateExperiment:
		renderCreate(&b, params)
	case action.UpdateExperiment:
		fmt.Fprintf(&b, "You are about to update experiment %s.\n",
			displayRef(params))
		renderChangedFields(&b, params)
	case action.UpdateExperimentStatus:
		status, _ := params["status"].(string)
		fmt.Fprintf(&b, "You are about to change experiment %s to status %q.\n",
			displayRef(params), status)
		if meaning := upgrade.Describe(upgrade.ExperimentState(status)); meaning != "" {
			fmt.Fprintf(&b, "Effect: %s.\n", meaning)
		}
	case action.DeleteExperiment:
		fmt.Fprintf(&b, "WARNING: you are about to PERMANENTLY DELETE experiment %s "+
			"along with all of its enrollment data. This cannot be undone!\n",
			displayRef(params))
		fmt.Fprintf(&b, "Type %s (exactly, in uppercase) to proceed, or anything else to keep the experiment.", DeleteToken)
		return b.String()
	case action.InitExperimentUser:
		fmt.Fprintf(&b, "You are about to register test user %q", params.Prop("user_id"))
		if group, ok := params["group"].(map[string]any); ok && len(group) > 0 {
			fmt.Fprintf(&b, " with group memberships %s", renderGroups(group))
		}
		b.WriteString(" on the platform.\n")
	case action.GetDecisionPointAssignments:
		fmt.Fprintf(&b, "You are about to fetch the condition assignments user %q "+
			"would receive in context %q. This counts as real user activity on the platform.\n",
			params.Prop("user_id"), params.Prop("context"))
	case action.MarkDecisionPoint:
		fmt.Fprintf(&b, "You are about to record a visit by user %q at decision point "+
			"site=%q target=%q. Marked visits affect enrollment.\n",
			params.Prop("user_id"), params.Prop("site"), params.Prop("target"))
	default:
		fmt.Fprintf(&b, "You are about to run %s with:\n", name)
		renderParams(&b, params)
	}
	b.WriteString("Proceed? (yes/no)")
	return b.String()
}

func renderCreate(b *strings.Builder, params core.Input) {
	fmt.Fprintf(b, "You are about to create experiment %q in context %q.\n",
		params.Prop("name"), params.Prop("context"))
	if points, ok := params["decision_points"].([]any); ok {
		b.WriteString("Decision points:\n")
		for _, raw := range points {
			point, _ := raw.(map[string]any)
			fmt.Fprintf(b, "  - site=%q target=%q\n", point["site"], point["target"])
		}
	}
	if conditions, ok := params["conditions"].([]any); ok {
		b.WriteString("Conditions:\n")
		for _, raw := range conditions {
			condition, _ := raw.(map[string]any)
			fmt.Fprintf(b, "  - %v (weight %v%%)\n", condition["code"], condition["weight"])
		}
	}
	if unit, ok := params["assignment_unit"].(string); ok && unit != "" {
		fmt.Fprintf(b, "Assignment unit: %s\n", unit)
	}
}

// renderChangedFields lists the definition fields present in the update,
// skipping identity and display keys.
func renderChangedFields(b *strings.Builder, params core.Input) {
	keys := make([]string, 0, len(params))
	for key := range params {
		switch key {
		case "experiment_id", "name":
			continue
		}
		keys = append(keys, key)
	}
	if len(keys) == 0 {
		return
	}
	sort.Strings(keys)
	b.WriteString("Fields to change: " + strings.Join(keys, ", ") + "\n")
}

func renderParams(b *strings.Builder, params core.Input) {
	keys := make([]string, 0, len(params))
	for key := range params {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		fmt.Fprintf(b, "  - %s: %v\n", key, params[key])
	}
}

func renderGroups(groups map[string]any) string {
	keys := make([]string, 0, len(groups))
	for key := range groups {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", key, groups[key]))
	}
	return strings.Join(parts, ", ")
}

// displayRef prefers the human name the user gave over the raw id.
func displayRef(params core.Input) string {
	if name, ok := params["name"].(string); ok && name != "" {
		return fmt.Sprintf("%q (id: %v)", name, params.Prop("experiment_id"))
	}
	return fmt.Sprintf("%v", params.Prop("experiment_id"))
}

// Reprompt is the message shown when a reply matched neither vocabulary.
func Reprompt(spec action.Spec) string {
	if spec.Destructive {
		return fmt.Sprintf("That did not confirm the deletion. Type %s (exactly) to proceed, or \"no\" to keep the experiment.", DeleteToken)
	}
	return "Please answer \"yes\" to proceed or \"no\" to cancel."
}

// Cancelled is the acknowledgement shown when the user rejects the action.
func Cancelled(name action.Name) string {
	return fmt.Sprintf("Okay, I won't run %s. The request has been discarded — what would you like to do instead?", name)
}
