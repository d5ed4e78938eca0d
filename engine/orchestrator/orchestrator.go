package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/CarnegieLearningWeb/upgrade-agent/engine/action"
	"github.com/CarnegieLearningWeb/upgrade-agent/engine/classifier"
	"github.com/CarnegieLearningWeb/upgrade-agent/engine/collector"
	"github.com/CarnegieLearningWeb/upgrade-agent/engine/confirm"
	"github.com/CarnegieLearningWeb/upgrade-agent/engine/core"
	"github.com/CarnegieLearningWeb/upgrade-agent/engine/dispatch"
	"github.com/CarnegieLearningWeb/upgrade-agent/engine/session"
	"github.com/CarnegieLearningWeb/upgrade-agent/engine/synth"
	"github.com/CarnegieLearningWeb/upgrade-agent/pkg/config"
	"github.com/CarnegieLearningWeb/upgrade-agent/pkg/logger"
)

// Result is what one processed turn hands back to the front end.
type Result struct {
	SessionID core.ID
	Reply     string
	Phase     core.Phase
}

// Engine is the turn state machine: it wires classifier, collector,
// confirmation gate, dispatcher and synthesizer around the session store,
// processing one turn at a time per session.
type Engine struct {
	store        session.Store
	classifier   *classifier.Service
	collector    *collector.Service
	dispatcher   *dispatch.Dispatcher
	synth        *synth.Service
	maxTaskSteps int

	mu    sync.Mutex
	locks map[core.ID]*sync.Mutex
}

// New wires an engine from its components.
func New(
	store session.Store,
	cls *classifier.Service,
	col *collector.Service,
	disp *dispatch.Dispatcher,
	syn *synth.Service,
	cfg *config.Config,
) *Engine {
	return &Engine{
		store:        store,
		classifier:   cls,
		collector:    col,
		dispatcher:   disp,
		synth:        syn,
		maxTaskSteps: cfg.Engine.MaxTaskSteps,
		locks:        make(map[core.ID]*sync.Mutex),
	}
}

// HandleTurn processes one user input against one session and returns the
// turn's reply. Turns for the same session are serialized; different
// sessions proceed concurrently.
func (e *Engine) HandleTurn(ctx context.Context, sessionID core.ID, input string) (*Result, error) {
	unlock := e.lockSession(sessionID)
	defer unlock()

	sess, err := e.loadOrCreate(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	ctx = logger.ContextWithLogger(ctx, logger.FromContext(ctx).With("session", sess.ID))
	sess.ClearErrors()

	reply, err := e.processTurn(ctx, sess, input)
	if err != nil {
		reply = e.failTurn(ctx, sess, err)
	}

	switch sess.Phase {
	case core.PhaseGathering, core.PhaseConfirming:
		// The turn suspended waiting for user input; the stored phase is
		// where the next turn resumes.
	default:
		sess.SetPhase(core.PhaseResponding)
	}
	sess.AppendTurn(input, reply)
	if putErr := e.store.Put(ctx, sess); putErr != nil {
		logger.FromContext(ctx).Error("session not persisted", "error", putErr)
	}
	return &Result{SessionID: sess.ID, Reply: reply, Phase: sess.Phase}, nil
}

// processTurn routes the input by the phase the previous turn suspended in.
// EXECUTING is never a resting phase; a session loaded there crashed
// mid-turn and resumes from analysis.
func (e *Engine) processTurn(ctx context.Context, sess *session.Session, input string) (string, error) {
	switch sess.Phase {
	case core.PhaseGathering:
		return e.gatherTurn(ctx, sess, input)
	case core.PhaseConfirming:
		return e.confirmTurn(ctx, sess, input)
	default:
		return e.analyzeTurn(ctx, sess, input)
	}
}

// -----------------------------------------------------------------------------
// Phase entry points
// -----------------------------------------------------------------------------

func (e *Engine) analyzeTurn(ctx context.Context, sess *session.Session, input string) (string, error) {
	sess.SetPhase(core.PhaseAnalyzing)
	e.persist(ctx, sess)

	// A live task short-circuits classification: the planner re-plans from
	// the execution log instead of reinterpreting the raw utterance.
	if sess.Progress != nil && !sess.Progress.Done && sess.Pending == nil {
		return e.drive(ctx, sess)
	}

	decision, err := e.classifier.Classify(ctx, sess, input)
	if err != nil {
		return "", err
	}
	switch decision.Intent {
	case classifier.IntentDirectAnswer:
		// Direct answers end the turn with no side effects.
		if decision.Answer != "" {
			return decision.Answer, nil
		}
		return decision.Summary, nil
	case classifier.IntentAmbiguous:
		return decision.Answer, nil
	}

	if decision.TaskType != "" {
		sess.BeginTask(decision.TaskType, decision.Planned)
	}
	spec := action.MustGet(decision.Action)
	sess.BeginPending(decision.Action, decision.Params, action.MissingParams(spec, decision.Params))
	return e.drive(ctx, sess)
}

func (e *Engine) gatherTurn(ctx context.Context, sess *session.Session, input string) (string, error) {
	if sess.Pending == nil {
		return e.analyzeTurn(ctx, sess, input)
	}
	outcome, err := e.collector.Collect(ctx, sess, input)
	if err != nil {
		return "", err
	}
	switch outcome.Status {
	case collector.StatusCancelled:
		return e.cancelPending(ctx, sess), nil
	case collector.StatusPrompt:
		sess.SetPhase(core.PhaseGathering)
		e.persist(ctx, sess)
		return outcome.Prompt, nil
	}
	return e.drive(ctx, sess)
}

func (e *Engine) confirmTurn(ctx context.Context, sess *session.Session, input string) (string, error) {
	if sess.Pending == nil {
		return e.analyzeTurn(ctx, sess, input)
	}
	if collector.IsCancellation(input) {
		return e.cancelPending(ctx, sess), nil
	}
	spec := action.MustGet(sess.Pending.Name)
	switch confirm.Evaluate(spec, input) {
	case confirm.ReplyAffirm:
		sess.Pending.Confirmed = true
		return e.drive(ctx, sess)
	case confirm.ReplyDeny:
		name := sess.Pending.Name
		sess.ClearPending()
		sess.ClearProgress()
		sess.SetPhase(core.PhaseAnalyzing)
		return confirm.Cancelled(name), nil
	default:
		// Neither vocabulary matched: stay at the gate.
		sess.SetPhase(core.PhaseConfirming)
		e.persist(ctx, sess)
		return confirm.Reprompt(spec), nil
	}
}

// -----------------------------------------------------------------------------
// Drive loop
// -----------------------------------------------------------------------------

// drive advances the pending action and any surrounding task until the
// turn needs user input, produces a reply, or hits the task step bound.
// Multi-step continuation is this explicit loop, never recursion.
func (e *Engine) drive(ctx context.Context, sess *session.Session) (string, error) {
	// Each task step costs up to three iterations here (prepare, dispatch,
	// re-plan). The executed-step bound checked before each dispatch is the
	// real task limit; this loop bound is a backstop against livelock.
	for iteration := 0; iteration < 3*e.maxTaskSteps+2; iteration++ {
		switch {
		case sess.Pending != nil && sess.Pending.Confirmed:
			reply, done, err := e.dispatchPending(ctx, sess)
			if err != nil || done {
				return reply, err
			}
		case sess.Pending != nil:
			reply, done, err := e.preparePending(ctx, sess)
			if err != nil || done {
				return reply, err
			}
		case sess.Progress != nil && !sess.Progress.Done:
			reply, done, err := e.planNext(ctx, sess)
			if err != nil || done {
				return reply, err
			}
		default:
			return "", core.NewError(
				fmt.Errorf("nothing to drive: no pending action or task"),
				core.CodeInternal, nil,
			)
		}
	}
	return e.failTask(ctx, sess), nil
}

// preparePending validates and completes the pending action's parameters,
// then routes it to gathering, the confirmation gate, or straight onward.
func (e *Engine) preparePending(ctx context.Context, sess *session.Session) (string, bool, error) {
	outcome, err := e.collector.Collect(ctx, sess, "")
	if err != nil {
		return "", false, err
	}
	switch outcome.Status {
	case collector.StatusCancelled:
		return e.cancelPending(ctx, sess), true, nil
	case collector.StatusPrompt:
		sess.SetPhase(core.PhaseGathering)
		e.persist(ctx, sess)
		return outcome.Prompt, true, nil
	}

	spec := action.MustGet(sess.Pending.Name)
	if spec.Confirm {
		sess.SetPhase(core.PhaseConfirming)
		e.persist(ctx, sess)
		return confirm.Render(sess.Pending.Name, sess.Pending.Gathered), true, nil
	}
	sess.Pending.Confirmed = true
	return "", false, nil
}

// dispatchPending executes the confirmed action. done=false means a live
// task should plan its next step.
func (e *Engine) dispatchPending(ctx context.Context, sess *session.Session) (string, bool, error) {
	if sess.Progress != nil && len(sess.Progress.Executed) >= e.maxTaskSteps {
		return e.failTask(ctx, sess), true, nil
	}

	// Metadata may have changed since gathering; recheck against the
	// current snapshot before anything irreversible happens.
	if err := e.collector.Revalidate(ctx, sess); err != nil {
		if !core.KindFromError(err).Recoverable() {
			return "", false, err
		}
		sess.SetPhase(core.PhaseGathering)
		e.persist(ctx, sess)
		prompt, perr := e.collector.NextPrompt(ctx, sess)
		if perr != nil {
			return "", false, perr
		}
		return prompt, true, nil
	}

	sess.SetPhase(core.PhaseExecuting)
	e.persist(ctx, sess)

	name := sess.Pending.Name
	spec := action.MustGet(name)
	entry := e.dispatcher.Dispatch(ctx, name, sess.Pending.Gathered)
	sess.AppendLog(entry)
	sess.ClearPending()
	e.persist(ctx, sess)

	if entry.Error != nil {
		sess.RecordError(core.KindFromError(entry.Error), entry.Error.Message)
	}

	if sess.Progress == nil {
		return e.synth.RenderResult(ctx, sess, &entry), true, nil
	}

	sess.RecordStep(fmt.Sprintf("%s (%s)", entry.Action, entry.Status))
	if entry.Error != nil {
		switch kind := core.KindFromError(entry.Error); {
		case spec.Destructive:
			// A failed destructive step ends the task; nothing may assume
			// it partially applied.
			sess.ClearProgress()
			return e.synth.RenderResult(ctx, sess, &entry), true, nil
		case kind == core.KindAuth:
			// Not locally recoverable; surface verbatim, keep the task for
			// a later turn.
			return e.synth.RenderResult(ctx, sess, &entry), true, nil
		}
		// Everything else goes back to the planner, which decides whether
		// an alternative step recovers the task.
	}
	return "", false, nil
}

// planNext asks the classifier for the task's next step or its completion.
func (e *Engine) planNext(ctx context.Context, sess *session.Session) (string, bool, error) {
	sess.SetPhase(core.PhaseAnalyzing)
	e.persist(ctx, sess)

	cont, err := e.classifier.Continue(ctx, sess)
	if err != nil {
		return "", false, err
	}
	if cont.Done {
		sess.CompleteTask()
		reply := e.synth.TaskSummary(ctx, sess, cont.Summary)
		sess.ClearProgress()
		return reply, true, nil
	}

	sess.ReplanTask(cont.Planned)
	spec := action.MustGet(cont.Action)
	sess.BeginPending(cont.Action, cont.Params, action.MissingParams(spec, cont.Params))
	return "", false, nil
}

// -----------------------------------------------------------------------------
// Failure paths
// -----------------------------------------------------------------------------

// cancelPending discards all partial task state and acknowledges.
func (e *Engine) cancelPending(ctx context.Context, sess *session.Session) string {
	logger.FromContext(ctx).Info("pending action cancelled",
		"action", sess.Pending.Name)
	sess.ClearPending()
	sess.ClearProgress()
	sess.SetPhase(core.PhaseAnalyzing)
	return "Okay, I've cancelled that. Nothing was changed — what would you like to do instead?"
}

// failTask stops a task that hit the step bound.
func (e *Engine) failTask(ctx context.Context, sess *session.Session) string {
	logger.FromContext(ctx).Warn("task exceeded step bound", "max_steps", e.maxTaskSteps)
	sess.RecordError(core.KindAPI,
		fmt.Sprintf("task stopped after reaching the %d-step limit", e.maxTaskSteps))
	steps := 0
	if sess.Progress != nil {
		steps = len(sess.Progress.Executed)
	}
	sess.ClearPending()
	sess.ClearProgress()
	return fmt.Sprintf(
		"I stopped the task after %d step(s) — it reached the configured safety limit "+
			"without finishing. The execution log has everything run so far.", steps)
}

// failTurn converts an escaped error into the turn's reply. The session
// stays usable regardless of what failed.
func (e *Engine) failTurn(ctx context.Context, sess *session.Session, err error) string {
	kind := core.KindFromError(err)
	sess.RecordError(kind, err.Error())
	logger.FromContext(ctx).Error("turn failed", "kind", kind, "error", err)
	switch kind {
	case core.KindAuth:
		return fmt.Sprintf("I couldn't authenticate with the platform: %s", err.Error())
	case core.KindAPI:
		return fmt.Sprintf("The platform call failed: %s. You can try again or ask for something else.", err.Error())
	case core.KindValidation, core.KindGathering, core.KindNotFound:
		return err.Error()
	default:
		return "Something unexpected went wrong processing that. The session is still usable — please try again."
	}
}

// -----------------------------------------------------------------------------
// Plumbing
// -----------------------------------------------------------------------------

func (e *Engine) loadOrCreate(ctx context.Context, id core.ID) (*session.Session, error) {
	if id.IsZero() {
		return session.New(core.MustNewID()), nil
	}
	sess, err := e.store.Get(ctx, id)
	if err == nil {
		return sess, nil
	}
	if errors.Is(err, session.ErrNotFound) {
		return session.New(id), nil
	}
	return nil, err
}

// persist commits the session after a phase transition. Mid-turn persist
// failures are logged, not fatal: the turn still completes and the final
// write retries.
func (e *Engine) persist(ctx context.Context, sess *session.Session) {
	if err := e.store.Put(ctx, sess); err != nil {
		logger.FromContext(ctx).Warn("phase transition not persisted",
			"phase", sess.Phase, "error", err)
	}
}

func (e *Engine) lockSession(id core.ID) func() {
	e.mu.Lock()
	lock, ok := e.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		e.locks[id] = lock
	}
	e.mu.Unlock()
	lock.Lock()
	return lock.Unlock
}
