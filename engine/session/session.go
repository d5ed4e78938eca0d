package session

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/CarnegieLearningWeb/upgrade-agent/engine/action"
	"github.com/CarnegieLearningWeb/upgrade-agent/engine/core"
)

// -----------------------------------------------------------------------------
// Session model
// -----------------------------------------------------------------------------

// Turn is one completed user/assistant exchange.
type Turn struct {
	User      string    `json:"user"`
	Assistant string    `json:"assistant"`
	At        time.Time `json:"at"`
}

// PendingAction is the action currently being gathered or confirmed.
// Gathered holds every extracted parameter plus applied defaults; Missing
// lists the required fields still unknown, in schema order.
type PendingAction struct {
	Name     action.Name `json:"name"`
	Gathered core.Input  `json:"gathered"`
	Missing  []string    `json:"missing"`
	// Confirmed is set once the confirmation gate has passed (or the
	// action needs no confirmation). Only confirmed actions dispatch.
	Confirmed bool `json:"confirmed"`
}

// Ready reports whether the action can move to confirmation.
func (p *PendingAction) Ready() bool {
	return p != nil && len(p.Missing) == 0
}

// TaskProgress tracks a multi-step task across dispatch cycles. Planned is
// advisory: the classifier re-plans after every dispatch. LogStart indexes
// the first execution log entry belonging to this task.
type TaskProgress struct {
	Type     string   `json:"type"`
	Executed []string `json:"executed"`
	Planned  []string `json:"planned,omitempty"`
	Done     bool     `json:"done"`
	LogStart int      `json:"log_start"`
}

// LogEntry records one dispatcher invocation. Entries are append-only and
// never mutated after creation.
type LogEntry struct {
	ID        core.ID         `json:"id"`
	Timestamp time.Time       `json:"timestamp"`
	Action    action.Name     `json:"action"`
	Params    core.Input      `json:"params,omitempty"`
	Result    core.Output     `json:"result,omitempty"`
	Error     *core.Error     `json:"error,omitempty"`
	Status    core.StatusType `json:"status"`
}

// ErrorRecord is a turn-scoped failure note attached to the session and
// cleared at the start of the turn that resolves it.
type ErrorRecord struct {
	Kind    core.ErrorKind `json:"kind"`
	Message string         `json:"message"`
}

// Session is the complete conversational state for one thread. It is
// serialized as a single JSON document into the keyed store after each
// phase transition.
type Session struct {
	ID         core.ID        `json:"id"`
	Phase      core.Phase     `json:"phase"`
	History    []Turn         `json:"history"`
	Pending    *PendingAction `json:"pending,omitempty"`
	Progress   *TaskProgress  `json:"progress,omitempty"`
	Log        []LogEntry     `json:"log"`
	Errors     []ErrorRecord  `json:"errors,omitempty"`
	MetadataAt time.Time      `json:"metadata_at"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// New creates an empty session in the analyzing phase.
func New(id core.ID) *Session {
	now := time.Now().UTC()
	return &Session{
		ID:        id,
		Phase:     core.PhaseAnalyzing,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// SetPhase moves the session to the given phase and touches UpdatedAt.
func (s *Session) SetPhase(phase core.Phase) {
	s.Phase = phase
	s.UpdatedAt = time.Now().UTC()
}

// AppendTurn records a completed exchange.
func (s *Session) AppendTurn(user, assistant string) {
	now := time.Now().UTC()
	s.History = append(s.History, Turn{User: user, Assistant: assistant, At: now})
	s.UpdatedAt = now
}

// RecentTurns returns up to n most recent exchanges, oldest first.
func (s *Session) RecentTurns(n int) []Turn {
	if n <= 0 || len(s.History) == 0 {
		return nil
	}
	if len(s.History) <= n {
		return s.History
	}
	return s.History[len(s.History)-n:]
}

// -----------------------------------------------------------------------------
// Pending action
// -----------------------------------------------------------------------------

// BeginPending installs a new pending action, replacing any previous one.
func (s *Session) BeginPending(name action.Name, gathered core.Input, missing []string) {
	if gathered == nil {
		gathered = core.Input{}
	}
	s.Pending = &PendingAction{Name: name, Gathered: gathered, Missing: missing}
	s.UpdatedAt = time.Now().UTC()
}

// ClearPending drops the pending action and its gathered parameters.
func (s *Session) ClearPending() {
	s.Pending = nil
	s.UpdatedAt = time.Now().UTC()
}

// -----------------------------------------------------------------------------
// Task progress
// -----------------------------------------------------------------------------

// BeginTask starts tracking a multi-step task.
func (s *Session) BeginTask(taskType string, planned []string) {
	s.Progress = &TaskProgress{Type: taskType, Planned: planned, LogStart: len(s.Log)}
	s.UpdatedAt = time.Now().UTC()
}

// RecordStep appends a completed step description and drops it from the
// planned list when it matches the head.
func (s *Session) RecordStep(step string) {
	if s.Progress == nil {
		return
	}
	s.Progress.Executed = append(s.Progress.Executed, step)
	if len(s.Progress.Planned) > 0 && s.Progress.Planned[0] == step {
		s.Progress.Planned = s.Progress.Planned[1:]
	}
	s.UpdatedAt = time.Now().UTC()
}

// ReplanTask replaces the planned steps after a continuation decision.
func (s *Session) ReplanTask(planned []string) {
	if s.Progress == nil {
		return
	}
	s.Progress.Planned = planned
	s.UpdatedAt = time.Now().UTC()
}

// CompleteTask marks the task done. The record stays attached until the
// synthesizer consumes it for the completion summary.
func (s *Session) CompleteTask() {
	if s.Progress == nil {
		return
	}
	s.Progress.Done = true
	s.UpdatedAt = time.Now().UTC()
}

// ClearProgress drops the task record entirely.
func (s *Session) ClearProgress() {
	s.Progress = nil
	s.UpdatedAt = time.Now().UTC()
}

// TaskLog returns the execution log entries belonging to the current task.
func (s *Session) TaskLog() []LogEntry {
	if s.Progress == nil {
		return nil
	}
	start := s.Progress.LogStart
	if start < 0 || start > len(s.Log) {
		return nil
	}
	return s.Log[start:]
}

// -----------------------------------------------------------------------------
// Execution log
// -----------------------------------------------------------------------------

// AppendLog appends one dispatch record.
func (s *Session) AppendLog(entry LogEntry) {
	s.Log = append(s.Log, entry)
	s.UpdatedAt = time.Now().UTC()
}

// LastLog returns the most recent log entry, or nil for a fresh session.
func (s *Session) LastLog() *LogEntry {
	if len(s.Log) == 0 {
		return nil
	}
	return &s.Log[len(s.Log)-1]
}

// -----------------------------------------------------------------------------
// Error records
// -----------------------------------------------------------------------------

// RecordError attaches a turn-scoped failure note.
func (s *Session) RecordError(kind core.ErrorKind, message string) {
	s.Errors = append(s.Errors, ErrorRecord{Kind: kind, Message: message})
	s.UpdatedAt = time.Now().UTC()
}

// ClearErrors drops all attached error records.
func (s *Session) ClearErrors() {
	s.Errors = nil
	s.UpdatedAt = time.Now().UTC()
}

// -----------------------------------------------------------------------------
// Serialization
// -----------------------------------------------------------------------------

// Encode serializes the session for the keyed store.
func Encode(s *Session) ([]byte, error) {
	doc, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode session %s: %w", s.ID, err)
	}
	return doc, nil
}

// Decode restores a session from its stored document.
func Decode(doc []byte) (*Session, error) {
	s := &Session{}
	if err := json.Unmarshal(doc, s); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	if _, err := core.ParsePhase(s.Phase.String()); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", s.ID, err)
	}
	return s, nil
}
