package cinequery

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"cinequery/internal/eventbus"
)

// asyncSession tracks one background session and its cancel handle.
type asyncSession struct {
	session *Session
	cancel  context.CancelFunc
}

// SessionStatus is a snapshot of an async session.
type SessionStatus struct {
	SessionID    string        `json:"session_id"`
	Question     string        `json:"question"`
	CurrentState State         `json:"current_state"`
	PlannerTurns int           `json:"planner_turns"`
	StartTime    time.Time     `json:"start_time"`
	Duration     time.Duration `json:"duration"`
	IsComplete   bool          `json:"is_complete"`
	HasError     bool          `json:"has_error"`
	ErrorMessage string        `json:"error_message,omitempty"`
	ErrorStage   string        `json:"error_stage,omitempty"`
}

// AskAsync starts a background session for the question and returns a
// session ID for polling.
func (a *Agent) AskAsync(ctx context.Context, question string) (string, error) {
	if question == "" {
		return "", NewConfigurationError("question cannot be empty", nil)
	}

	sessionID := uuid.New().String()

	s := NewSession(question)

	a.asyncMu.Lock()
	// Detached from the caller's context: the session outlives the call
	// and is stopped through CancelAsync or Close.
	asyncCtx, cancel := context.WithCancel(context.Background())
	s.StateData["cancel"] = cancel
	a.asyncSessions[sessionID] = &asyncSession{session: s, cancel: cancel}
	a.asyncMu.Unlock()

	publish(ctx, a.eventBus, eventbus.NewEvent(eventbus.EventAsyncSessionStarted, question, "agent.AskAsync",
		map[string]interface{}{"session_id": sessionID}))

	sm := a.createStateMachine()

	go func() {
		defer cancel()

		_, err := sm.Execute(asyncCtx, s)

		eventType := eventbus.EventAsyncSessionSuccess
		metadata := map[string]interface{}{
			"session_id":  sessionID,
			"duration_ms": s.TotalDuration().Milliseconds(),
		}
		if err != nil {
			eventType = eventbus.EventAsyncSessionFailure
			metadata["error"] = err.Error()
			metadata["error_stage"] = s.ErrorStage
		}

		// The caller's context may be gone by now.
		publish(context.Background(), a.eventBus, eventbus.NewEvent(eventType, question, "agent.AskAsync", metadata))
	}()

	return sessionID, nil
}

// AsyncStatus retrieves the current status of an async session.
func (a *Agent) AsyncStatus(sessionID string) (*SessionStatus, error) {
	a.asyncMu.RLock()
	defer a.asyncMu.RUnlock()

	as, exists := a.asyncSessions[sessionID]
	if !exists {
		return nil, fmt.Errorf("session with ID '%s' not found", sessionID)
	}

	sn := as.session.Snapshot()
	status := &SessionStatus{
		SessionID:    sessionID,
		Question:     sn.Question,
		CurrentState: sn.CurrentState,
		PlannerTurns: sn.PlannerTurns,
		StartTime:    sn.StartTime,
		Duration:     sn.Duration,
		IsComplete:   sn.CurrentState == StateComplete,
		HasError:     sn.CurrentState == StateError,
	}
	if sn.LastError != nil {
		status.ErrorMessage = sn.LastError.Error()
		status.ErrorStage = sn.ErrorStage
	}

	return status, nil
}

// AsyncResult retrieves the final answer of a completed async session.
// Returns an error while the session is still running or if it failed.
func (a *Agent) AsyncResult(sessionID string) (string, error) {
	a.asyncMu.RLock()
	defer a.asyncMu.RUnlock()

	as, exists := a.asyncSessions[sessionID]
	if !exists {
		return "", fmt.Errorf("session with ID '%s' not found", sessionID)
	}

	sn := as.session.Snapshot()
	switch sn.CurrentState {
	case StateComplete:
		return sn.FinalAnswer, nil
	case StateError:
		return "", fmt.Errorf("session failed during stage '%s': %w", sn.ErrorStage, sn.LastError)
	case StateCancelled:
		return "", fmt.Errorf("session was cancelled during stage '%s'", sn.ErrorStage)
	default:
		return "", fmt.Errorf("session is still in progress (current state: %s)", sn.CurrentState)
	}
}

// CancelAsync cancels a running async session. Returns true when the
// session was cancelled, false when it had already finished.
func (a *Agent) CancelAsync(sessionID string) (bool, error) {
	a.asyncMu.Lock()
	defer a.asyncMu.Unlock()

	as, exists := a.asyncSessions[sessionID]
	if !exists {
		return false, fmt.Errorf("session with ID '%s' not found", sessionID)
	}

	sn := as.session.Snapshot()
	if sn.IsTerminal() {
		return false, nil
	}

	// The running state machine observes the cancellation and records
	// the terminal state itself.
	as.cancel()

	publish(context.Background(), a.eventBus, eventbus.NewEvent(eventbus.EventAsyncSessionCancelled, sn.Question, "agent.CancelAsync",
		map[string]interface{}{
			"session_id":  sessionID,
			"duration_ms": sn.Duration.Milliseconds(),
		}))

	return true, nil
}

// ListAsyncSessions returns the IDs and current states of all tracked
// async sessions.
func (a *Agent) ListAsyncSessions() map[string]State {
	a.asyncMu.RLock()
	defer a.asyncMu.RUnlock()

	result := make(map[string]State, len(a.asyncSessions))
	for id, as := range a.asyncSessions {
		result[id] = as.session.Snapshot().CurrentState
	}
	return result
}

// CleanupCompletedSessions drops terminal sessions older than the given
// age and returns how many were removed.
func (a *Agent) CleanupCompletedSessions(olderThan time.Duration) int {
	a.asyncMu.Lock()
	defer a.asyncMu.Unlock()

	now := time.Now()
	count := 0
	for id, as := range a.asyncSessions {
		sn := as.session.Snapshot()
		if !sn.IsTerminal() {
			continue
		}
		if now.Sub(sn.StateSince) > olderThan {
			delete(a.asyncSessions, id)
			count++
		}
	}
	return count
}
