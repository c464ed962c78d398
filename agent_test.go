package cinequery

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

var errUpstream = errors.New("upstream unavailable")

func newTestAgent(t *testing.T, engine Engine, tools map[string]Tool) *Agent {
	t.Helper()
	agent, err := New(
		WithConfig(testConfig()),
		WithEngine(engine),
		WithIntrospector(&fakeIntrospector{profile: SchemaProfile{{Name: "title", Type: "TEXT"}}}),
		WithTools(tools),
	)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { agent.Close() })
	return agent
}

func TestNew_ValidatesComponents(t *testing.T) {
	engine := &scriptedEngine{}
	introspector := &fakeIntrospector{}
	tools := map[string]Tool{"sql_query": &echoTool{name: "sql_query"}}

	cases := []struct {
		name    string
		options []AgentOption
	}{
		{"missing engine", []AgentOption{WithIntrospector(introspector), WithTools(tools)}},
		{"missing introspector", []AgentOption{WithEngine(engine), WithTools(tools)}},
		{"no tools", []AgentOption{WithEngine(engine), WithIntrospector(introspector)}},
		{"misregistered tool", []AgentOption{
			WithEngine(engine), WithIntrospector(introspector),
			WithTools(map[string]Tool{"wrong_key": &echoTool{name: "sql_query"}}),
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := New(tc.options...); err == nil {
				t.Error("expected configuration error")
			}
		})
	}
}

func TestAgent_Ask(t *testing.T) {
	engine := &scriptedEngine{responses: []*EngineResponse{
		textResponse("narrative"),
		toolResponse(ToolCall{ID: "call_1", Name: "sql_query", Arguments: `{"query":"SELECT 1"}`}),
		textResponse("final answer"),
	}}
	agent := newTestAgent(t, engine, map[string]Tool{"sql_query": &echoTool{name: "sql_query", result: "rows"}})

	s, err := agent.Ask(context.Background(), "q")
	if err != nil {
		t.Fatalf("Ask failed: %v", err)
	}
	if s.FinalAnswer != "final answer" {
		t.Errorf("unexpected answer: %q", s.FinalAnswer)
	}
	if s.CurrentState != StateComplete {
		t.Errorf("expected complete session, got %s", s.CurrentState)
	}
}

func TestAgent_AskReturnsSessionOnFailure(t *testing.T) {
	engine := &scriptedEngine{err: errUpstream}
	agent := newTestAgent(t, engine, map[string]Tool{"sql_query": &echoTool{name: "sql_query"}})

	s, err := agent.Ask(context.Background(), "q")
	if err == nil {
		t.Fatal("expected failure")
	}
	if s == nil {
		t.Fatal("failed sessions should still be returned for inspection")
	}
	if s.ErrorStage == "" {
		t.Error("error stage should be recorded")
	}
}

func TestAgent_AskRejectsEmptyQuestion(t *testing.T) {
	agent := newTestAgent(t, &scriptedEngine{}, map[string]Tool{"sql_query": &echoTool{name: "sql_query"}})

	if _, err := agent.Ask(context.Background(), ""); err == nil {
		t.Error("expected error for empty question")
	}
}

func TestAgent_ToolRegistry(t *testing.T) {
	agent := newTestAgent(t, &scriptedEngine{}, map[string]Tool{"sql_query": &echoTool{name: "sql_query"}})

	if err := agent.RegisterTool(&echoTool{name: "web_search"}); err != nil {
		t.Fatalf("RegisterTool failed: %v", err)
	}
	if err := agent.RegisterTool(&echoTool{name: "web_search"}); err == nil {
		t.Error("duplicate registration should fail")
	}
	if err := agent.RegisterTool(nil); err == nil {
		t.Error("nil tool should be rejected")
	}

	if _, ok := agent.ToolByName("web_search"); !ok {
		t.Error("registered tool should be retrievable")
	}
	if _, ok := agent.ToolByName("missing"); ok {
		t.Error("unknown tool lookup should fail")
	}

	defs := agent.ListTools()
	if len(defs) != 2 || defs[0].Name != "sql_query" || defs[1].Name != "web_search" {
		t.Errorf("definitions should be sorted by name, got %v", defs)
	}
}

func TestAgent_AskAsync(t *testing.T) {
	engine := &scriptedEngine{responses: []*EngineResponse{
		textResponse("narrative"),
		textResponse("async answer"),
	}}
	agent := newTestAgent(t, engine, map[string]Tool{"sql_query": &echoTool{name: "sql_query"}})

	id, err := agent.AskAsync(context.Background(), "q")
	if err != nil {
		t.Fatalf("AskAsync failed: %v", err)
	}

	deadline := time.After(5 * time.Second)
	for {
		answer, err := agent.AsyncResult(id)
		if err == nil {
			if answer != "async answer" {
				t.Errorf("unexpected answer: %q", answer)
			}
			break
		}
		if !strings.Contains(err.Error(), "in progress") {
			t.Fatalf("unexpected result error: %v", err)
		}
		select {
		case <-deadline:
			t.Fatal("async session did not finish in time")
		case <-time.After(10 * time.Millisecond):
		}
	}

	status, err := agent.AsyncStatus(id)
	if err != nil {
		t.Fatalf("AsyncStatus failed: %v", err)
	}
	if !status.IsComplete || status.HasError {
		t.Errorf("unexpected status: %+v", status)
	}

	sessions := agent.ListAsyncSessions()
	if sessions[id] != StateComplete {
		t.Errorf("session should be listed as complete, got %v", sessions)
	}

	if removed := agent.CleanupCompletedSessions(0); removed != 1 {
		t.Errorf("expected 1 cleaned session, got %d", removed)
	}
	if _, err := agent.AsyncStatus(id); err == nil {
		t.Error("cleaned session should no longer be tracked")
	}
}

func TestAgent_CancelAsync(t *testing.T) {
	// Engine blocks until the context is cancelled.
	engine := &blockingEngine{started: make(chan struct{}, 1)}
	agent := newTestAgent(t, engine, map[string]Tool{"sql_query": &echoTool{name: "sql_query"}})

	id, err := agent.AskAsync(context.Background(), "q")
	if err != nil {
		t.Fatalf("AskAsync failed: %v", err)
	}

	select {
	case <-engine.started:
	case <-time.After(5 * time.Second):
		t.Fatal("engine call never started")
	}

	cancelled, err := agent.CancelAsync(id)
	if err != nil {
		t.Fatalf("CancelAsync failed: %v", err)
	}
	if !cancelled {
		t.Fatal("expected the running session to be cancelled")
	}

	// The background goroutine records the terminal state.
	deadline := time.After(5 * time.Second)
	for {
		status, err := agent.AsyncStatus(id)
		if err != nil {
			t.Fatalf("AsyncStatus failed: %v", err)
		}
		if status.CurrentState == StateCancelled {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("session never reached the cancelled state, got %s", status.CurrentState)
		case <-time.After(10 * time.Millisecond):
		}
	}

	// Cancelling again reports the session already finished.
	again, err := agent.CancelAsync(id)
	if err != nil {
		t.Fatalf("second CancelAsync failed: %v", err)
	}
	if again {
		t.Error("terminal session should not be cancelled twice")
	}

	if _, err := agent.AsyncResult(id); err == nil {
		t.Error("cancelled session should not yield a result")
	}
}

func TestAgent_RegisterToolDuringSession(t *testing.T) {
	engine := &gatedEngine{gate: make(chan struct{}), entered: make(chan struct{}, 1)}
	agent := newTestAgent(t, engine, map[string]Tool{"sql_query": &echoTool{name: "sql_query"}})

	id, err := agent.AskAsync(context.Background(), "q")
	if err != nil {
		t.Fatalf("AskAsync failed: %v", err)
	}

	select {
	case <-engine.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("engine call never started")
	}

	// Mutate and read the registry while the session is mid-flight.
	if err := agent.RegisterTool(&echoTool{name: "web_search"}); err != nil {
		t.Fatalf("RegisterTool failed: %v", err)
	}
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				agent.ToolByName("web_search")
				agent.ListTools()
			}
		}()
	}
	wg.Wait()
	close(engine.gate)

	deadline := time.After(5 * time.Second)
	for {
		if answer, err := agent.AsyncResult(id); err == nil {
			if answer != "answer" {
				t.Errorf("unexpected answer: %q", answer)
			}
			break
		}
		select {
		case <-deadline:
			t.Fatal("async session did not finish in time")
		case <-time.After(10 * time.Millisecond):
		}
	}

	// The running session kept the registry it started with.
	planReq := engine.request(1)
	if len(planReq.Tools) != 1 || planReq.Tools[0].Name != "sql_query" {
		t.Errorf("mid-flight registration must not reach the running session, got %v", planReq.Tools)
	}

	defs := agent.ListTools()
	if len(defs) != 2 {
		t.Errorf("future sessions should see the new tool, got %v", defs)
	}
}

// gatedEngine parks its first call until the gate opens and records
// every request it received.
type gatedEngine struct {
	gate    chan struct{}
	entered chan struct{}

	mu       sync.Mutex
	requests []*EngineRequest
}

func (e *gatedEngine) Complete(ctx context.Context, req *EngineRequest) (*EngineResponse, error) {
	e.mu.Lock()
	e.requests = append(e.requests, req)
	n := len(e.requests)
	e.mu.Unlock()

	if n == 1 {
		select {
		case e.entered <- struct{}{}:
		default:
		}
		select {
		case <-e.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return textResponse("narrative"), nil
	}
	return textResponse("answer"), nil
}

func (e *gatedEngine) request(i int) *EngineRequest {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.requests[i]
}

func TestAgent_AsyncObserversDuringExecution(t *testing.T) {
	engine := &blockingEngine{started: make(chan struct{}, 1)}
	agent := newTestAgent(t, engine, map[string]Tool{"sql_query": &echoTool{name: "sql_query"}})

	id, err := agent.AskAsync(context.Background(), "q")
	if err != nil {
		t.Fatalf("AskAsync failed: %v", err)
	}

	select {
	case <-engine.started:
	case <-time.After(5 * time.Second):
		t.Fatal("engine call never started")
	}

	// Hammer the observer surface while the state machine is running
	// and while cancellation flips the session terminal.
	stop := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				if _, err := agent.AsyncStatus(id); err != nil {
					t.Errorf("AsyncStatus failed: %v", err)
					return
				}
				_, _ = agent.AsyncResult(id)
				agent.ListAsyncSessions()
			}
		}()
	}

	time.Sleep(20 * time.Millisecond)
	if _, err := agent.CancelAsync(id); err != nil {
		t.Fatalf("CancelAsync failed: %v", err)
	}

	deadline := time.After(5 * time.Second)
	for {
		status, err := agent.AsyncStatus(id)
		if err != nil {
			t.Fatalf("AsyncStatus failed: %v", err)
		}
		if status.CurrentState == StateCancelled {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("session never reached the cancelled state, got %s", status.CurrentState)
		case <-time.After(10 * time.Millisecond):
		}
	}

	close(stop)
	wg.Wait()
}

// blockingEngine parks every call until its context is cancelled.
type blockingEngine struct {
	started chan struct{}
}

func (e *blockingEngine) Complete(ctx context.Context, req *EngineRequest) (*EngineResponse, error) {
	select {
	case e.started <- struct{}{}:
	default:
	}
	<-ctx.Done()
	return nil, ctx.Err()
}
