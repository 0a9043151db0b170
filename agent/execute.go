// SPDX-License-Identifier: AGPL-3.0-only
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nexroo-ai/anthropic-rooms-pkg/internal/logging"
	"github.com/nexroo-ai/anthropic-rooms-pkg/tools"
)

// Event describes one tool execution for observer reporting.
type Event struct {
	ToolName        string
	AddonID         string
	InputParameters map[string]interface{}
	OutputData      interface{}
	ExecutionTime   time.Duration
	Success         bool
	ErrorMessage    string
	RetryAttempt    int
	MaxRetries      int
}

// Observer receives tool execution events. Observers are fire-and-forget: a
// panicking observer is suppressed and never aborts the run.
type Observer func(Event)

// Classifier decides whether a tool result represents success, and extracts
// the error message when it does not.
type Classifier func(result interface{}) (ok bool, message string)

// coded lets typed tool results expose a status code.
type coded interface {
	Code() int
}

// messaged lets typed tool results expose an error message.
type messaged interface {
	Message() string
}

// DefaultClassifier treats a result carrying a numeric "code" of 400 or above
// as a failure, with the message taken from its "message" field. Results
// without any code are successes.
func DefaultClassifier(result interface{}) (bool, string) {
	code, hasCode := resultCode(result)
	if !hasCode || code < 400 {
		return true, ""
	}
	return false, resultMessage(result)
}

func resultCode(result interface{}) (int, bool) {
	switch r := result.(type) {
	case coded:
		return r.Code(), true
	case map[string]interface{}:
		switch c := r["code"].(type) {
		case int:
			return c, true
		case int64:
			return int(c), true
		case float64:
			return int(c), true
		case json.Number:
			if n, err := c.Int64(); err == nil {
				return int(n), true
			}
		}
	}
	return 0, false
}

func resultMessage(result interface{}) string {
	switch r := result.(type) {
	case messaged:
		if msg := r.Message(); msg != "" {
			return msg
		}
	case map[string]interface{}:
		if msg, ok := r["message"].(string); ok && msg != "" {
			return msg
		}
	}
	return "Tool execution completed with errors"
}

// outcomeKind tags the three possible results of dispatching one tool_use
// block.
type outcomeKind int

const (
	outcomeSuccess outcomeKind = iota
	outcomeRetry
	outcomeTerminal
)

// outcome is the tagged result of one tool dispatch.
type outcome struct {
	kind       outcomeKind
	result     interface{}
	errMessage string
}

// runContext owns the mutable state of a single completion run: the growing
// conversation, per-tool retry counters, and accumulated usage. It is created
// per call and discarded on return.
type runContext struct {
	conversation []Message
	retryCounts  map[string]int
	inputTokens  int
	outputTokens int
	rounds       int
}

func newRunContext(conversation []Message) *runContext {
	return &runContext{
		conversation: conversation,
		retryCounts:  make(map[string]int),
	}
}

func (rc *runContext) addUsage(inputTokens, outputTokens int) {
	rc.inputTokens += inputTokens
	rc.outputTokens += outputTokens
	rc.rounds++
}

// appendRetryGuidance injects a corrective user message after a retriable
// tool failure. The guidance goes directly into the conversation; the
// orchestrator then resends without an assistant/tool-result pair for that
// round.
func (rc *runContext) appendRetryGuidance(toolName, errMessage string) {
	guidance := fmt.Sprintf(
		"The %s tool failed with error: %s. Please try again with corrected parameters.",
		toolName, errMessage,
	)
	rc.conversation = append(rc.conversation, TextMessage("user", guidance))
}

// executor dispatches tool_use blocks against the registry.
type executor struct {
	registry *tools.Registry
	defs     map[string]tools.Definition
	classify Classifier
	observer Observer
	addonID  string
	logger   *logging.Logger
}

// execute runs one tool_use request to an outcome, honoring the tool's retry
// budget against the run's counters.
func (e *executor) execute(ctx context.Context, name string, input map[string]interface{}, run *runContext) outcome {
	fn, found := e.registry.Function(name)
	if !found {
		// Nothing to retry; terminal for this block, run continues.
		return outcome{kind: outcomeTerminal, errMessage: fmt.Sprintf("Tool %s not found", name)}
	}

	maxRetries := e.registry.MaxRetries(name)
	currentRetry := run.retryCounts[name]

	parsed := CoerceInput(input, e.defs[name])

	start := time.Now()
	result, err := invokeTool(ctx, fn, parsed)
	elapsed := time.Since(start)

	if err != nil {
		e.notify(Event{
			ToolName:        name,
			AddonID:         e.addonID,
			InputParameters: parsed,
			ExecutionTime:   elapsed,
			Success:         false,
			ErrorMessage:    err.Error(),
			RetryAttempt:    currentRetry,
			MaxRetries:      maxRetries,
		})

		if currentRetry >= maxRetries {
			return outcome{kind: outcomeTerminal, errMessage: err.Error()}
		}
		run.retryCounts[name] = currentRetry + 1
		run.appendRetryGuidance(name, err.Error())
		return outcome{kind: outcomeRetry, errMessage: err.Error()}
	}

	ok, errMessage := e.classify(result)

	e.notify(Event{
		ToolName:        name,
		AddonID:         e.addonID,
		InputParameters: parsed,
		OutputData:      result,
		ExecutionTime:   elapsed,
		Success:         ok,
		ErrorMessage:    errMessage,
		RetryAttempt:    currentRetry,
		MaxRetries:      maxRetries,
	})

	if ok {
		return outcome{kind: outcomeSuccess, result: result}
	}
	if currentRetry >= maxRetries {
		return outcome{kind: outcomeTerminal, errMessage: errMessage}
	}
	run.retryCounts[name] = currentRetry + 1
	run.appendRetryGuidance(name, errMessage)
	return outcome{kind: outcomeRetry, errMessage: errMessage}
}

// invokeTool calls the tool function, converting a panic into an error so a
// misbehaving tool degrades to a normal failure.
func invokeTool(ctx context.Context, fn tools.Func, input map[string]interface{}) (result interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tool panicked: %v", r)
		}
	}()
	return fn(ctx, input)
}

// notify reports an event to the observer. Reporting only happens when both
// an observer and an addon ID are configured, and observer panics are
// swallowed so observability can never break execution.
func (e *executor) notify(ev Event) {
	if e.observer == nil || ev.AddonID == "" {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			e.logger.Warnf("Observer callback panicked for tool %s: %v", ev.ToolName, r)
		}
	}()
	e.observer(ev)
}

// stringifyResult renders a tool result for a tool_result content block.
func stringifyResult(result interface{}) string {
	switch r := result.(type) {
	case nil:
		return ""
	case string:
		return r
	default:
		if b, err := json.Marshal(r); err == nil {
			return string(b)
		}
		return fmt.Sprintf("%v", r)
	}
}
