package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/CarnegieLearningWeb/upgrade-agent/engine/action"
	"github.com/CarnegieLearningWeb/upgrade-agent/engine/core"
	"github.com/CarnegieLearningWeb/upgrade-agent/engine/metadata"
	"github.com/CarnegieLearningWeb/upgrade-agent/engine/session"
	"github.com/CarnegieLearningWeb/upgrade-agent/engine/upgrade"
	"github.com/CarnegieLearningWeb/upgrade-agent/pkg/logger"
	"github.com/sethvargo/go-retry"
)

// Retry policy for transient action failures. The HTTP client already
// retries at the transport level; this layer only replays actions whose
// failure is classified transient after that, and never destructive ones.
const (
	maxTransientRetries = 2
	retryBackoffBase    = 250 * time.Millisecond
)

// API is the slice of the platform client the dispatcher drives. One
// method per supported action keeps the dispatch switch exhaustive and
// lets tests substitute a fake platform.
type API interface {
	Health(ctx context.Context) (*upgrade.HealthInfo, error)
	GetContextMetadata(ctx context.Context) (*upgrade.ContextMetadata, error)
	ListExperimentNames(ctx context.Context) ([]upgrade.ExperimentName, error)
	ListExperiments(ctx context.Context) ([]upgrade.Experiment, error)
	GetExperiment(ctx context.Context, id string) (*upgrade.Experiment, error)
	CreateExperiment(ctx context.Context, req *upgrade.ExperimentRequest) (*upgrade.Experiment, error)
	UpdateExperiment(ctx context.Context, id string, req *upgrade.ExperimentRequest) (*upgrade.Experiment, error)
	UpdateExperimentState(ctx context.Context, req *upgrade.StateUpdateRequest) (*upgrade.Experiment, error)
	DeleteExperiment(ctx context.Context, id string) error
	InitUser(ctx context.Context, userID string, req *upgrade.InitRequest) (*upgrade.InitResponse, error)
	GetAssignments(ctx context.Context, userID, appContext string) ([]upgrade.AssignmentResult, error)
	MarkDecisionPoint(ctx context.Context, userID string, req *upgrade.MarkRequest) (*upgrade.MarkResponse, error)
}

// Dispatcher executes exactly one platform action per invocation and
// records the outcome. Sequencing across actions belongs to the
// classifier's task planning, never here.
type Dispatcher struct {
	api  API
	meta *metadata.Service
}

// New builds a dispatcher over the given platform client.
func New(api API, meta *metadata.Service) *Dispatcher {
	return &Dispatcher{api: api, meta: meta}
}

// Dispatch runs the action and returns its append-only log entry. The
// entry always comes back, success or failure; callers append it to the
// session log as-is.
func (d *Dispatcher) Dispatch(ctx context.Context, name action.Name, params core.Input) session.LogEntry {
	log := logger.FromContext(ctx)
	entry := session.LogEntry{
		ID:        core.MustNewID(),
		Timestamp: time.Now().UTC(),
		Action:    name,
		Params:    snapshotParams(params),
	}

	spec, ok := action.Get(name)
	if !ok {
		entry.Status = core.StatusError
		entry.Error = core.NewError(
			fmt.Errorf("action %q is not registered", name),
			core.CodeInternal, nil,
		)
		return entry
	}

	result, err := d.executeWithRetry(ctx, spec, params)
	if err != nil {
		entry.Status = core.StatusError
		entry.Error = asCoreError(err)
		log.Warn("action failed",
			"action", name, "kind", core.KindFromError(entry.Error), "error", err)
		return entry
	}

	entry.Status = core.StatusSuccess
	entry.Result = result
	log.Info("action executed", "action", name)
	return entry
}

// executeWithRetry replays transient failures with exponential backoff.
// Destructive actions run exactly once: a delete that timed out may still
// have been applied, and replaying it cannot make that knowable.
func (d *Dispatcher) executeWithRetry(
	ctx context.Context,
	spec action.Spec,
	params core.Input,
) (core.Output, error) {
	if spec.Destructive {
		return d.execute(ctx, spec.Name, params)
	}

	var result core.Output
	backoff := retry.WithMaxRetries(maxTransientRetries, retry.NewExponential(retryBackoffBase))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var execErr error
		result, execErr = d.execute(ctx, spec.Name, params)
		if execErr != nil && isTransient(execErr) {
			return retry.RetryableError(execErr)
		}
		return execErr
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// execute is the exhaustive action switch. Adding an action to the enum
// without a case here is a compile-visible omission in tests, not a
// runtime string lookup.
func (d *Dispatcher) execute(ctx context.Context, name action.Name, params core.Input) (core.Output, error) {
	switch name {
	case action.CheckUpgradeHealth:
		return toOutput(d.api.Health(ctx))
	case action.GetContextMetadata:
		return toOutput(d.api.GetContextMetadata(ctx))
	case action.GetExperimentNames:
		return d.executeNames(ctx)
	case action.GetAllExperiments:
		return d.executeList(ctx, params)
	case action.GetExperimentDetails:
		return toOutput(d.api.GetExperiment(ctx, stringParam(params, "experiment_id")))
	case action.CreateExperiment:
		return d.executeCreate(ctx, params)
	case action.UpdateExperiment:
		return d.executeUpdate(ctx, params)
	case action.UpdateExperimentStatus:
		return d.executeStatusChange(ctx, params)
	case action.DeleteExperiment:
		return d.executeDelete(ctx, params)
	case action.InitExperimentUser:
		return d.executeInitUser(ctx, params)
	case action.GetDecisionPointAssignments:
		return d.executeAssignments(ctx, params)
	case action.MarkDecisionPoint:
		return d.executeMark(ctx, params)
	default:
		return nil, core.NewError(
			fmt.Errorf("action %q has no dispatch handler", name),
			core.CodeInternal, nil,
		)
	}
}

// -----------------------------------------------------------------------------
// Read actions
// -----------------------------------------------------------------------------

func (d *Dispatcher) executeNames(ctx context.Context) (core.Output, error) {
	names, err := d.api.ListExperimentNames(ctx)
	if err != nil {
		return nil, err
	}
	return core.Output{"experiments": toValue(names), "count": len(names)}, nil
}

func (d *Dispatcher) executeList(ctx context.Context, params core.Input) (core.Output, error) {
	experiments, err := d.api.ListExperiments(ctx)
	if err != nil {
		return nil, err
	}
	contextFilter := stringParam(params, "context_filter")
	statusFilter := stringParam(params, "status_filter")
	filtered := make([]upgrade.Experiment, 0, len(experiments))
	for _, exp := range experiments {
		if contextFilter != "" && !containsString(exp.Context, contextFilter) {
			continue
		}
		if statusFilter != "" && string(exp.State) != statusFilter {
			continue
		}
		filtered = append(filtered, exp)
	}
	return core.Output{"experiments": toValue(filtered), "count": len(filtered)}, nil
}

// -----------------------------------------------------------------------------
// Experiment mutations
// -----------------------------------------------------------------------------

func (d *Dispatcher) executeCreate(ctx context.Context, params core.Input) (core.Output, error) {
	simplified, err := upgrade.DecodeExperimentParams(params)
	if err != nil {
		return nil, err
	}
	req, err := upgrade.BuildExperimentRequest(simplified)
	if err != nil {
		return nil, err
	}
	created, err := d.api.CreateExperiment(ctx, req)
	if err != nil {
		return nil, err
	}
	d.meta.Invalidate()
	return core.Output{
		"id":     created.ID,
		"name":   created.Name,
		"state":  string(created.State),
		"result": toValue(created),
	}, nil
}

// executeUpdate replaces the full definition: fields the user did not
// mention are backfilled from the current experiment before the request
// is built.
func (d *Dispatcher) executeUpdate(ctx context.Context, params core.Input) (core.Output, error) {
	id := stringParam(params, "experiment_id")
	current, err := d.api.GetExperiment(ctx, id)
	if err != nil {
		return nil, err
	}
	merged := upgrade.SimplifiedInput(current)
	for key, value := range params {
		if key == "experiment_id" {
			continue
		}
		merged[key] = value
	}
	simplified, err := upgrade.DecodeExperimentParams(merged)
	if err != nil {
		return nil, err
	}
	req, err := upgrade.BuildExperimentRequest(simplified)
	if err != nil {
		return nil, err
	}
	updated, err := d.api.UpdateExperiment(ctx, id, req)
	if err != nil {
		return nil, err
	}
	d.meta.Invalidate()
	return core.Output{
		"id":     updated.ID,
		"name":   updated.Name,
		"state":  string(updated.State),
		"result": toValue(updated),
	}, nil
}

// executeStatusChange validates the lifecycle transition against the
// experiment's current state before asking the platform to move it.
func (d *Dispatcher) executeStatusChange(ctx context.Context, params core.Input) (core.Output, error) {
	id := stringParam(params, "experiment_id")
	target, err := upgrade.ParseState(stringParam(params, "status"))
	if err != nil {
		return nil, core.NewError(err, core.CodeValidationFailed, map[string]any{
			"field": "status",
		})
	}
	current, err := d.api.GetExperiment(ctx, id)
	if err != nil {
		return nil, err
	}
	if !upgrade.CanTransition(current.State, target) {
		return nil, core.NewError(
			fmt.Errorf("experiment %q cannot move from %s to %s", current.Name, current.State, target),
			core.CodeValidationFailed,
			map[string]any{
				"field":   "status",
				"current": string(current.State),
				"allowed": toValue(upgrade.AllowedTransitions(current.State)),
			},
		)
	}
	updated, err := d.api.UpdateExperimentState(ctx, &upgrade.StateUpdateRequest{
		ExperimentID: id,
		State:        target,
	})
	if err != nil {
		return nil, err
	}
	d.meta.Invalidate()
	return core.Output{
		"id":             id,
		"name":           current.Name,
		"previous_state": string(current.State),
		"state":          string(updated.State),
	}, nil
}

func (d *Dispatcher) executeDelete(ctx context.Context, params core.Input) (core.Output, error) {
	id := stringParam(params, "experiment_id")
	if err := d.api.DeleteExperiment(ctx, id); err != nil {
		return nil, err
	}
	d.meta.Invalidate()
	return core.Output{"deleted": true, "experiment_id": id}, nil
}

// -----------------------------------------------------------------------------
// User simulation
// -----------------------------------------------------------------------------

func (d *Dispatcher) executeInitUser(ctx context.Context, params core.Input) (core.Output, error) {
	userID := stringParam(params, "user_id")
	req, err := core.FromMap[upgrade.InitRequest](params.AsMap())
	if err != nil {
		return nil, core.NewError(err, core.CodeValidationFailed, map[string]any{
			"reason": "group memberships have the wrong shape",
		})
	}
	registered, err := d.api.InitUser(ctx, userID, &req)
	if err != nil {
		return nil, err
	}
	return core.Output{"user_id": registered.ID, "result": toValue(registered)}, nil
}

func (d *Dispatcher) executeAssignments(ctx context.Context, params core.Input) (core.Output, error) {
	assignments, err := d.api.GetAssignments(
		ctx, stringParam(params, "user_id"), stringParam(params, "context"))
	if err != nil {
		return nil, err
	}
	return core.Output{"assignments": toValue(assignments), "count": len(assignments)}, nil
}

func (d *Dispatcher) executeMark(ctx context.Context, params core.Input) (core.Output, error) {
	userID := stringParam(params, "user_id")
	req := &upgrade.MarkRequest{
		Data: upgrade.MarkData{
			Site:   stringParam(params, "site"),
			Target: stringParam(params, "target"),
		},
		Status: stringParam(params, "status"),
	}
	if req.Status == "" {
		req.Status = upgrade.MarkStatusApplied
	}
	if raw, ok := params["assigned_condition"]; ok && raw != nil {
		condition, err := core.FromMap[upgrade.AssignedCondition](raw)
		if err != nil {
			return nil, core.NewError(err, core.CodeValidationFailed, map[string]any{
				"field": "assigned_condition",
			})
		}
		req.Data.AssignedCondition = &condition
	}
	marked, err := d.api.MarkDecisionPoint(ctx, userID, req)
	if err != nil {
		return nil, err
	}
	return core.Output{"user_id": marked.UserID, "result": toValue(marked)}, nil
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

// toOutput converts a typed API response into the loose output map stored
// in the execution log, via its JSON form.
func toOutput[T any](value T, err error) (core.Output, error) {
	if err != nil {
		return nil, err
	}
	raw, marshalErr := json.Marshal(value)
	if marshalErr != nil {
		return nil, core.NewError(marshalErr, core.CodeInternal, nil)
	}
	out := core.Output{}
	if unmarshalErr := json.Unmarshal(raw, &out); unmarshalErr != nil {
		// Non-object payloads land under a single key.
		var anyValue any
		if e := json.Unmarshal(raw, &anyValue); e != nil {
			return nil, core.NewError(e, core.CodeInternal, nil)
		}
		return core.Output{"result": anyValue}, nil
	}
	return out, nil
}

// toValue converts any payload to its JSON-shaped value for log storage.
func toValue(value any) any {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Sprintf("%v", value)
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Sprintf("%v", value)
	}
	return out
}

func snapshotParams(params core.Input) core.Input {
	if len(params) == 0 {
		return nil
	}
	cloned, err := params.Clone()
	if err != nil || cloned == nil {
		return params
	}
	return *cloned
}

func asCoreError(err error) *core.Error {
	cerr := &core.Error{}
	if errors.As(err, &cerr) {
		return cerr
	}
	return core.NewError(err, core.CodeInternal, nil)
}

func isTransient(err error) bool {
	cerr := &core.Error{}
	if !errors.As(err, &cerr) {
		return false
	}
	switch cerr.Code {
	case core.CodeTimeout, core.CodeUnavailable:
		return true
	default:
		return false
	}
}

func stringParam(params core.Input, key string) string {
	value, _ := params[key].(string)
	return value
}

func containsString(values []string, needle string) bool {
	for _, value := range values {
		if value == needle {
			return true
		}
	}
	return false
}
