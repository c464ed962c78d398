package cinequery

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"cinequery/internal/eventbus"
)

// Components bundles the injected capabilities the transitions act on.
type Components struct {
	Engine       Engine
	Introspector Introspector
	Tools        map[string]Tool
	Cache        Cache
	Config       Config
}

// CreateSessionStateMachine wires the session flow:
// introspect -> describe -> plan -> {dispatch_tools -> plan | complete}.
func CreateSessionStateMachine(components *Components, eventBus eventbus.EventBus) *StateMachine {
	sm := NewStateMachine(eventBus)

	sm.RegisterTransition(StateIntrospect, createIntrospectTransition(components))
	sm.RegisterTransition(StateDescribe, createDescribeTransition(components))
	sm.RegisterTransition(StatePlan, createPlanTransition(components))
	sm.RegisterTransition(StateDispatch, createDispatchTransition(components))

	return sm
}

// publish sends an event when a bus is attached; event delivery never
// affects session flow.
func publish(ctx context.Context, eventBus eventbus.EventBus, event eventbus.Event) {
	if eventBus == nil {
		return
	}
	if err := eventBus.Publish(ctx, event); err != nil {
		log.Printf("WARN: failed to publish %s event: %v", event.Type(), err)
	}
}

// createIntrospectTransition discovers the structure of the backing
// store and records the raw profile on the session.
func createIntrospectTransition(components *Components) Transition {
	return func(ctx context.Context, eventBus eventbus.EventBus, s *Session) (State, error) {
		publish(ctx, eventBus, eventbus.NewEvent(eventbus.EventIntrospectionStarted, s.Question, "transition.introspect", nil))

		introspectCtx := ctx
		if components.Config.ToolTimeout > 0 {
			var cancel context.CancelFunc
			introspectCtx, cancel = context.WithTimeout(ctx, components.Config.ToolTimeout.Std())
			defer cancel()
		}

		profile, err := components.Introspector.Introspect(introspectCtx)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return StateIntrospect, ctxErr
			}
			agentErr := NewIntrospectionError(err)
			publish(ctx, eventBus, eventbus.NewEvent(eventbus.EventIntrospectionFailure, agentErr, "transition.introspect", nil))
			s.SetError(agentErr, "introspect")
			return StateError, agentErr
		}

		s.Schema = profile
		publish(ctx, eventBus, eventbus.NewEvent(eventbus.EventIntrospectionSuccess, profile, "transition.introspect",
			map[string]interface{}{"columns": len(profile)}))

		return StateDescribe, nil
	}
}

// createDescribeTransition turns the raw schema profile into a natural
// language narrative, consulting the cache first so unchanged stores
// skip the engine call. The narrative overwrites Session.Schema exactly
// once; planning never sees the raw profile.
func createDescribeTransition(components *Components) Transition {
	return func(ctx context.Context, eventBus eventbus.EventBus, s *Session) (State, error) {
		publish(ctx, eventBus, eventbus.NewEvent(eventbus.EventDescriptionStarted, nil, "transition.describe", nil))

		cacheKey := ""
		if components.Config.EnableNarrativeCache && components.Cache != nil {
			cacheKey = components.Introspector.Fingerprint()
			if narrative, err := components.Cache.Get(ctx, cacheKey); err == nil && narrative != "" {
				s.Schema = narrative
				publish(ctx, eventBus, eventbus.NewEvent(eventbus.EventDescriptionCached, nil, "transition.describe",
					map[string]interface{}{"key": cacheKey}))
				return StatePlan, nil
			}
		}

		temperature := 0.0
		req := &EngineRequest{
			SystemPrompt: schemaDetailsPrompt,
			Messages: []Message{
				NewUserMessage(fmt.Sprintf("%v", s.Schema)),
			},
			Temperature: &temperature,
		}

		resp, err := completeWithRetry(ctx, components, req)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return StateDescribe, ctxErr
			}
			agentErr := NewDescriptionError(err)
			publish(ctx, eventBus, eventbus.NewEvent(eventbus.EventDescriptionFailure, agentErr, "transition.describe", nil))
			s.SetError(agentErr, "describe")
			return StateError, agentErr
		}

		narrative := resp.Message.Content
		s.Schema = narrative

		if cacheKey != "" {
			if err := components.Cache.Set(ctx, cacheKey, narrative); err != nil {
				log.Printf("WARN: failed to cache schema narrative: %v", err)
			}
		}

		publish(ctx, eventBus, eventbus.NewEvent(eventbus.EventDescriptionSuccess, nil, "transition.describe",
			map[string]interface{}{"length": len(narrative)}))

		return StatePlan, nil
	}
}

// createPlanTransition performs one planner turn: a single engine call
// with the full conversation and the bound tools. A response carrying
// tool calls routes to dispatch; plain text is the final answer.
func createPlanTransition(components *Components) Transition {
	return func(ctx context.Context, eventBus eventbus.EventBus, s *Session) (State, error) {
		if components.Config.MaxPlannerTurns > 0 && s.PlannerTurns >= components.Config.MaxPlannerTurns {
			agentErr := NewLoopLimitError(s.PlannerTurns)
			publish(ctx, eventBus, eventbus.NewEvent(eventbus.EventPlannerTurnFailure, agentErr, "transition.plan", nil))
			s.SetError(agentErr, "plan")
			return StateError, agentErr
		}

		publish(ctx, eventBus, eventbus.NewEvent(eventbus.EventPlannerTurnStarted, nil, "transition.plan",
			map[string]interface{}{"turn": s.PlannerTurns + 1}))

		narrative, _ := s.SchemaNarrative()
		messages := make([]Message, 0, len(s.Messages)+1)
		messages = append(messages, NewUserMessage(fmt.Sprintf("Schema Details: %s", narrative)))
		messages = append(messages, s.Messages...)

		temperature := 0.0
		req := &EngineRequest{
			SystemPrompt: plannerSystemPrompt,
			Messages:     messages,
			Tools:        toolDefinitions(components.Tools),
			Temperature:  &temperature,
		}

		resp, err := completeWithRetry(ctx, components, req)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return StatePlan, ctxErr
			}
			agentErr := NewEngineError("plan", err)
			publish(ctx, eventBus, eventbus.NewEvent(eventbus.EventPlannerTurnFailure, agentErr, "transition.plan", nil))
			s.SetError(agentErr, "plan")
			return StateError, agentErr
		}

		s.Append(resp.Message)
		s.recordPlannerTurn()

		publish(ctx, eventBus, eventbus.NewEvent(eventbus.EventPlannerTurnSuccess, nil, "transition.plan",
			map[string]interface{}{"turn": s.PlannerTurns, "tool_calls": len(resp.Message.ToolCalls)}))

		if resp.Message.IsToolRequest() {
			return StateDispatch, nil
		}

		s.completeWithAnswer(resp.Message.Content)
		return StateComplete, nil
	}
}

// createDispatchTransition executes every tool call requested by the
// latest planner turn. Sibling calls run concurrently; results are
// appended in request order, one tool entry per call, before control
// returns to the planner. Failures become result text so the planner
// observes them as ordinary output.
func createDispatchTransition(components *Components) Transition {
	return func(ctx context.Context, eventBus eventbus.EventBus, s *Session) (State, error) {
		last, ok := s.LastMessage()
		if !ok || !last.IsToolRequest() {
			agentErr := NewInternalError("dispatch_tools", "dispatch reached without a pending tool request", nil)
			s.SetError(agentErr, "dispatch_tools")
			return StateError, agentErr
		}

		publish(ctx, eventBus, eventbus.NewEvent(eventbus.EventToolDispatchStarted, nil, "transition.dispatch",
			map[string]interface{}{"calls": len(last.ToolCalls)}))

		results := make([]string, len(last.ToolCalls))

		g, groupCtx := errgroup.WithContext(ctx)
		if components.Config.MaxConcurrentToolCalls > 0 {
			g.SetLimit(components.Config.MaxConcurrentToolCalls)
		}

		for i, call := range last.ToolCalls {
			g.Go(func() error {
				results[i] = executeToolCall(groupCtx, components, eventBus, call)
				return nil
			})
		}

		// Workers never return errors; Wait only observes cancellation.
		_ = g.Wait()
		if err := ctx.Err(); err != nil {
			return StateDispatch, err
		}

		for i, call := range last.ToolCalls {
			s.Append(NewToolMessage(call.ID, results[i]))
		}

		publish(ctx, eventBus, eventbus.NewEvent(eventbus.EventToolDispatchFinished, nil, "transition.dispatch",
			map[string]interface{}{"calls": len(last.ToolCalls)}))

		return StatePlan, nil
	}
}

// executeToolCall resolves and runs one requested tool call, rendering
// every failure mode as result text.
func executeToolCall(ctx context.Context, components *Components, eventBus eventbus.EventBus, call ToolCall) string {
	publish(ctx, eventBus, eventbus.NewEvent(eventbus.EventToolCallStarted, call.Name, "transition.dispatch",
		map[string]interface{}{"call_id": call.ID}))

	tool, ok := components.Tools[call.Name]
	if !ok {
		publish(ctx, eventBus, eventbus.NewEvent(eventbus.EventToolCallFailure, call.Name, "transition.dispatch",
			map[string]interface{}{"call_id": call.ID, "reason": "not_found"}))
		return fmt.Sprintf("Error: tool '%s' is not available", call.Name)
	}

	args := make(map[string]any)
	if call.Arguments != "" {
		if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
			publish(ctx, eventBus, eventbus.NewEvent(eventbus.EventToolCallFailure, call.Name, "transition.dispatch",
				map[string]interface{}{"call_id": call.ID, "reason": "bad_arguments"}))
			return fmt.Sprintf("Error: arguments for tool '%s' are not a valid JSON object: %v", call.Name, err)
		}
	}

	toolCtx := ctx
	if components.Config.ToolTimeout > 0 {
		var cancel context.CancelFunc
		toolCtx, cancel = context.WithTimeout(ctx, components.Config.ToolTimeout.Std())
		defer cancel()
	}

	result, err := tool.Execute(toolCtx, args)
	if err != nil {
		publish(ctx, eventBus, eventbus.NewEvent(eventbus.EventToolCallFailure, call.Name, "transition.dispatch",
			map[string]interface{}{"call_id": call.ID, "reason": "execution"}))
		return fmt.Sprintf("Error occurred during execution of tool '%s': %v", call.Name, err)
	}

	publish(ctx, eventBus, eventbus.NewEvent(eventbus.EventToolCallSuccess, call.Name, "transition.dispatch",
		map[string]interface{}{"call_id": call.ID}))
	return result
}

// completeWithRetry performs one engine call with the configured
// per-call deadline and bounded retries.
func completeWithRetry(ctx context.Context, components *Components, req *EngineRequest) (*EngineResponse, error) {
	attempts := components.Config.MaxRetries + 1
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(components.Config.RetryDelay.Std()):
			}
			log.Printf("WARN: retrying engine call (attempt %d/%d) after: %v", attempt+1, attempts, lastErr)
		}

		callCtx := ctx
		if components.Config.EngineTimeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, components.Config.EngineTimeout.Std())
			resp, err := components.Engine.Complete(callCtx, req)
			cancel()
			if err == nil {
				return resp, nil
			}
			lastErr = err
		} else {
			resp, err := components.Engine.Complete(callCtx, req)
			if err == nil {
				return resp, nil
			}
			lastErr = err
		}

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	return nil, lastErr
}

// toolDefinitions renders the registry in stable name order.
func toolDefinitions(tools map[string]Tool) []ToolDefinition {
	names := make([]string, 0, len(tools))
	for name := range tools {
		names = append(names, name)
	}
	sort.Strings(names)

	defs := make([]ToolDefinition, 0, len(names))
	for _, name := range names {
		defs = append(defs, tools[name].Definition())
	}
	return defs
}
