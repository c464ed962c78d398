package cinequery

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"cinequery/internal/eventbus"
)

// State represents the current phase of a session execution.
type State string

const (
	// StateIntrospect is the initial state: schema discovery against the store.
	StateIntrospect State = "introspect"
	// StateDescribe turns the raw schema profile into a narrative.
	StateDescribe State = "describe"
	// StatePlan is a planner turn: one reasoning-engine call with bound tools.
	StatePlan State = "plan"
	// StateDispatch executes the tool calls requested by the latest planner turn.
	StateDispatch State = "dispatch_tools"
	// StateComplete represents the completed (terminal) state.
	StateComplete State = "complete"
	// StateError represents a failed (terminal) state.
	StateError State = "error"
	// StateCancelled represents a cancelled (terminal) state.
	StateCancelled State = "cancelled"
	// StateUnknown is used when the status of an async session cannot be determined.
	StateUnknown State = "unknown"
)

// Session is the single mutable record threaded through one question's
// execution. It owns the schema value and the append-only conversation.
// Only the executing state machine mutates a session; concurrent
// observers read through Snapshot and the locked accessors.
type Session struct {
	// mu guards the bookkeeping fields read by async observers while
	// the state machine is still running.
	mu sync.RWMutex

	// Input
	Question string

	// Schema holds the raw SchemaProfile after introspection and is
	// overwritten exactly once with the narrative string by the
	// describe step. Never mutated after planning begins.
	Schema interface{}

	// Messages is the append-only conversation. Use Append; entries are
	// never removed or reordered.
	Messages []Message

	// FinalAnswer is set when the planner terminates without tool calls.
	FinalAnswer string

	// PlannerTurns counts completed engine calls in the plan state,
	// checked against Config.MaxPlannerTurns.
	PlannerTurns int

	// Error handling
	LastError  error
	ErrorStage string

	// State management
	CurrentState State
	StateData    map[string]interface{}

	// Timestamp tracking
	StartTime       time.Time
	EndTime         time.Time
	StateStartTimes map[State]time.Time
}

// NewSession creates a session for the given question. The conversation
// is seeded with the question as its first user entry.
func NewSession(question string) *Session {
	return &Session{
		Question:        question,
		Messages:        []Message{NewUserMessage(question)},
		CurrentState:    StateIntrospect,
		StateData:       make(map[string]interface{}),
		StartTime:       time.Now(),
		StateStartTimes: map[State]time.Time{StateIntrospect: time.Now()},
	}
}

// Append adds entries to the conversation. This is the only sanctioned
// mutation of the message log: append, never replace.
func (s *Session) Append(msgs ...Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Messages = append(s.Messages, msgs...)
}

// LastMessage returns the most recent conversation entry.
func (s *Session) LastMessage() (Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.Messages) == 0 {
		return Message{}, false
	}
	return s.Messages[len(s.Messages)-1], true
}

// IsTerminal checks if the current state is a terminal state (Complete, Error, Cancelled).
func (s *Session) IsTerminal() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return isTerminalState(s.CurrentState)
}

func isTerminalState(state State) bool {
	return state == StateComplete || state == StateError || state == StateCancelled
}

// SetError records the failure and stage, transitioning to StateError.
func (s *Session) SetError(err error, stage string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.LastError = err
	s.ErrorStage = stage
	s.CurrentState = StateError
	s.StateStartTimes[StateError] = time.Now()
}

// SetCancelled sets the state to Cancelled and records the cancellation error.
func (s *Session) SetCancelled(err error, stage string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.LastError = err
	s.ErrorStage = stage
	s.CurrentState = StateCancelled
	s.StateStartTimes[StateCancelled] = time.Now()
}

// Complete marks the session as complete and sets the end time.
func (s *Session) Complete() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completeLocked()
}

func (s *Session) completeLocked() {
	s.CurrentState = StateComplete
	s.EndTime = time.Now()
	s.StateStartTimes[StateComplete] = s.EndTime
}

// completeWithAnswer records the final answer and marks the session
// complete in one step.
func (s *Session) completeWithAnswer(answer string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.FinalAnswer = answer
	s.completeLocked()
}

// advance moves the session into the next non-terminal state.
func (s *Session) advance(next State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CurrentState = next
	s.StateStartTimes[next] = time.Now()
}

// recordPlannerTurn counts one completed engine call in the plan state.
func (s *Session) recordPlannerTurn() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.PlannerTurns++
}

// TotalDuration returns the total duration of the session so far.
func (s *Session) TotalDuration() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.totalDurationLocked()
}

func (s *Session) totalDurationLocked() time.Duration {
	if s.CurrentState == StateComplete {
		return s.EndTime.Sub(s.StartTime)
	}
	return time.Since(s.StartTime)
}

// Snapshot is a point-in-time copy of the session's bookkeeping, safe
// to read while the state machine is still running.
type Snapshot struct {
	Question     string
	CurrentState State
	PlannerTurns int
	StartTime    time.Time
	StateSince   time.Time
	Duration     time.Duration
	FinalAnswer  string
	LastError    error
	ErrorStage   string
}

// IsTerminal reports whether the snapshot was taken after the session
// finished.
func (sn Snapshot) IsTerminal() bool {
	return isTerminalState(sn.CurrentState)
}

// Snapshot copies the session's bookkeeping fields under the lock.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		Question:     s.Question,
		CurrentState: s.CurrentState,
		PlannerTurns: s.PlannerTurns,
		StartTime:    s.StartTime,
		StateSince:   s.StateStartTimes[s.CurrentState],
		Duration:     s.totalDurationLocked(),
		FinalAnswer:  s.FinalAnswer,
		LastError:    s.LastError,
		ErrorStage:   s.ErrorStage,
	}
}

// SchemaNarrative returns the schema value if the describe step has
// replaced it with narrative text.
func (s *Session) SchemaNarrative() (string, bool) {
	narrative, ok := s.Schema.(string)
	return narrative, ok
}

// Transition is one step of the state machine: it acts on the session
// and names the next state.
type Transition func(ctx context.Context, eventBus eventbus.EventBus, s *Session) (State, error)

// StateMachine drives a session through its states until a terminal one.
type StateMachine struct {
	transitions map[State]Transition
	eventBus    eventbus.EventBus
}

// NewStateMachine creates a state machine with no registered transitions.
func NewStateMachine(eventBus eventbus.EventBus) *StateMachine {
	return &StateMachine{
		transitions: make(map[State]Transition),
		eventBus:    eventBus,
	}
}

// RegisterTransition registers a state transition function.
func (sm *StateMachine) RegisterTransition(state State, transition Transition) {
	sm.transitions[state] = transition
}

// Execute runs the state machine until completion, error or cancellation.
func (sm *StateMachine) Execute(ctx context.Context, s *Session) (string, error) {
	for !s.IsTerminal() {
		// Check for context cancellation before executing the next state
		select {
		case <-ctx.Done():
			err := ctx.Err()
			s.SetCancelled(err, string(s.CurrentState))
			return "", err
		default:
		}

		transition, exists := sm.transitions[s.CurrentState]
		if !exists {
			err := fmt.Errorf("no transition defined for state: %s", s.CurrentState)
			s.SetError(err, string(s.CurrentState))
			return "", err
		}

		nextState, err := transition(ctx, sm.eventBus, s)
		if err != nil {
			currentStage := string(s.CurrentState)
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				s.SetCancelled(err, currentStage)
			} else if !s.IsTerminal() {
				// Transitions normally record their own failures; catch
				// any that returned an error without setting state.
				s.SetError(err, currentStage)
			}
			continue
		}

		if !s.IsTerminal() {
			s.advance(nextState)
		}
	}

	return s.FinalAnswer, s.LastError
}
