package cinequery

import (
	"context"
	"errors"
	"testing"

	"cinequery/internal/eventbus"
)

func TestNewSession_SeedsConversationWithQuestion(t *testing.T) {
	s := NewSession("what was the budget of Example Film?")

	if s.CurrentState != StateIntrospect {
		t.Errorf("expected initial state %s, got %s", StateIntrospect, s.CurrentState)
	}
	if len(s.Messages) != 1 {
		t.Fatalf("expected 1 seeded message, got %d", len(s.Messages))
	}
	if s.Messages[0].Role != RoleUser || s.Messages[0].Content != s.Question {
		t.Errorf("first entry should restate the question, got %+v", s.Messages[0])
	}
}

func TestSession_AppendOnlyGrowth(t *testing.T) {
	s := NewSession("q")

	s.Append(NewSystemMessage("a"))
	s.Append(NewToolMessage("call_1", "b"), Message{Role: RoleAssistant, Content: "c"})

	if len(s.Messages) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(s.Messages))
	}
	if s.Messages[0].Content != "q" {
		t.Error("appends must not displace earlier entries")
	}

	last, ok := s.LastMessage()
	if !ok || last.Content != "c" {
		t.Errorf("unexpected last message: %+v", last)
	}
}

func TestSession_TerminalStates(t *testing.T) {
	cases := []struct {
		state    State
		terminal bool
	}{
		{StateIntrospect, false},
		{StateDescribe, false},
		{StatePlan, false},
		{StateDispatch, false},
		{StateComplete, true},
		{StateError, true},
		{StateCancelled, true},
	}
	for _, tc := range cases {
		s := NewSession("q")
		s.CurrentState = tc.state
		if s.IsTerminal() != tc.terminal {
			t.Errorf("IsTerminal for %s: expected %v", tc.state, tc.terminal)
		}
	}
}

func TestSession_SchemaNarrative(t *testing.T) {
	s := NewSession("q")

	if _, ok := s.SchemaNarrative(); ok {
		t.Error("no narrative before the describe step")
	}

	s.Schema = SchemaProfile{{Name: "title", Type: "TEXT"}}
	if _, ok := s.SchemaNarrative(); ok {
		t.Error("raw profile is not a narrative")
	}

	s.Schema = "The movies table has three columns."
	narrative, ok := s.SchemaNarrative()
	if !ok || narrative == "" {
		t.Error("narrative should be visible once describe overwrites the schema")
	}
}

func TestSession_SnapshotDuringMutation(t *testing.T) {
	s := NewSession("q")
	done := make(chan struct{})

	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			s.Append(NewToolMessage("call", "result"))
			s.recordPlannerTurn()
			s.advance(StatePlan)
		}
		s.completeWithAnswer("answer")
	}()

	for {
		sn := s.Snapshot()
		if sn.IsTerminal() {
			if sn.CurrentState != StateComplete || sn.FinalAnswer != "answer" {
				t.Errorf("unexpected terminal snapshot: %+v", sn)
			}
			break
		}
	}
	<-done

	sn := s.Snapshot()
	if sn.PlannerTurns != 200 {
		t.Errorf("expected 200 recorded turns, got %d", sn.PlannerTurns)
	}
	if sn.Duration < 0 {
		t.Errorf("terminal snapshot should carry the session duration, got %s", sn.Duration)
	}
}

func TestStateMachine_MissingTransition(t *testing.T) {
	sm := NewStateMachine(nil)
	s := NewSession("q")

	_, err := sm.Execute(context.Background(), s)
	if err == nil {
		t.Fatal("expected error for unregistered state")
	}
	if s.CurrentState != StateError {
		t.Errorf("session should end in error state, got %s", s.CurrentState)
	}
}

func TestStateMachine_ContextCancellation(t *testing.T) {
	sm := NewStateMachine(nil)
	sm.RegisterTransition(StateIntrospect, func(ctx context.Context, eb eventbus.EventBus, s *Session) (State, error) {
		return StateIntrospect, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := NewSession("q")
	_, err := sm.Execute(ctx, s)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if s.CurrentState != StateCancelled {
		t.Errorf("session should end cancelled, got %s", s.CurrentState)
	}
}
