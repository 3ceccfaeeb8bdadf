package agent

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/mentorly/mentor/internal/observability"
	"github.com/mentorly/mentor/internal/sessions"
	"github.com/mentorly/mentor/pkg/models"
)

// Turn termination messages. These are final answers, not errors: the
// turn always ends with non-empty assistant text.
const (
	// roundCapMessage ends a turn that used up its dispatch rounds.
	roundCapMessage = "I've reached the limit of steps I can take for this request. Please try rephrasing or simplifying your question."

	// loopSignalMessage ends a turn after the same capability was
	// requested repeatedly.
	loopSignalMessage = "I'm having trouble with that request. Let me try a different approach or please rephrase your question."
)

// TurnConfig configures turn processing.
type TurnConfig struct {
	// MaxRounds caps tool-dispatch cycles per turn.
	// Default: 5
	MaxRounds int

	// WindowSize caps the conversation window sent to the model.
	// Default: sessions.DefaultWindowSize
	WindowSize int

	// SystemPrompt is prepended to every invocation.
	SystemPrompt string

	// Model selects the model for the configured invoker.
	Model string

	// MaxTokens bounds completion length. Zero lets the provider choose.
	MaxTokens int

	// Temperature for sampling.
	Temperature float32
}

// sanitizeTurnConfig fills in defaults for zero values.
func sanitizeTurnConfig(config *TurnConfig) *TurnConfig {
	if config == nil {
		config = &TurnConfig{}
	}
	out := *config
	if out.MaxRounds <= 0 {
		out.MaxRounds = 5
	}
	if out.WindowSize <= 0 {
		out.WindowSize = sessions.DefaultWindowSize
	}
	return &out
}

// TurnResult is the outcome of one processed turn.
type TurnResult struct {
	// Message is the final assistant message, already persisted.
	Message *models.Message

	// ToolsUsed lists each capability actually executed, once, in
	// first-use order.
	ToolsUsed []string

	// Rounds is the number of tool-dispatch cycles the turn used.
	Rounds int

	// DuplicateBlocks counts tool calls blocked by the guard.
	DuplicateBlocks int

	// Outcome describes how the turn ended: done, round_cap,
	// loop_signal, or model_error.
	Outcome string

	Duration time.Duration
}

// TurnLoop orchestrates one turn at a time per session: persist the user
// message, invoke the model, dispatch requested capabilities, and repeat
// until the model answers in plain text or a structural limit ends the
// turn. Turns for the same session are serialized by the locker; turns
// for different sessions run concurrently.
type TurnLoop struct {
	invoker  ModelInvoker
	registry *Registry
	executor *Executor
	store    sessions.Store
	locker   sessions.Locker
	config   *TurnConfig
	logger   *observability.Logger
	metrics  *observability.Metrics
	tracer   *observability.Tracer
}

// TurnLoopOptions wires a TurnLoop's dependencies.
type TurnLoopOptions struct {
	Invoker  ModelInvoker
	Registry *Registry
	Executor *Executor
	Store    sessions.Store
	Locker   sessions.Locker
	Config   *TurnConfig
	Logger   *observability.Logger
	Metrics  *observability.Metrics
	Tracer   *observability.Tracer
}

// NewTurnLoop creates a TurnLoop. Registry, Store, and Invoker are
// required; Executor defaults to one over the registry; Locker defaults
// to an in-process locker.
func NewTurnLoop(opts TurnLoopOptions) (*TurnLoop, error) {
	if opts.Invoker == nil {
		return nil, ErrNoInvoker
	}
	if opts.Executor == nil {
		opts.Executor = NewExecutor(opts.Registry, nil)
	}
	if opts.Locker == nil {
		opts.Locker = sessions.NewLocalLocker(0)
	}
	if opts.Logger == nil {
		opts.Logger = observability.NewLogger(observability.LogConfig{})
	}
	if opts.Tracer != nil {
		opts.Executor.SetTracer(opts.Tracer)
	}
	return &TurnLoop{
		invoker:  opts.Invoker,
		registry: opts.Registry,
		executor: opts.Executor,
		store:    opts.Store,
		locker:   opts.Locker,
		config:   sanitizeTurnConfig(opts.Config),
		logger:   opts.Logger,
		metrics:  opts.Metrics,
		tracer:   opts.Tracer,
	}, nil
}

// Run processes one user message for the session and returns the final
// assistant reply. It blocks until any in-flight turn for the same
// session finishes.
func (l *TurnLoop) Run(ctx context.Context, sessionID, userText string) (*TurnResult, error) {
	if err := l.locker.Lock(ctx, sessionID); err != nil {
		return nil, &TurnError{Phase: PhaseInit, Message: "acquire session lock", Cause: err}
	}
	defer l.locker.Unlock(sessionID)

	start := time.Now()
	ctx = observability.AddSessionID(ctx, sessionID)
	if l.tracer != nil {
		var span trace.Span
		ctx, span = l.tracer.TraceTurn(ctx, sessionID)
		defer span.End()
	}
	if l.metrics != nil {
		l.metrics.TurnStarted()
		defer l.metrics.TurnEnded()
	}

	userMsg := &models.Message{
		ID:      uuid.NewString(),
		Role:    models.RoleUser,
		Content: userText,
	}
	if err := l.store.AppendMessage(ctx, sessionID, userMsg); err != nil {
		return nil, &TurnError{Phase: PhaseInit, Message: "persist user message", Cause: err}
	}

	// The guard's table lives exactly as long as the turn scope.
	guard := NewGuard(l.registry.IsIdempotent)

	result := &TurnResult{}
	specs := l.registry.Specs()

	for round := 0; ; round++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		window, err := l.store.GetHistory(ctx, sessionID, l.config.WindowSize)
		if err != nil {
			return nil, &TurnError{Phase: PhaseInvoke, Round: round, Message: "load history", Cause: err}
		}

		assistantMsg, err := l.invoke(ctx, window, specs)
		if err != nil {
			return l.finishModelError(ctx, sessionID, result, err, start)
		}

		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if len(assistantMsg.ToolCalls) == 0 {
			text := assistantMsg.Content
			if IsDegenerate(text) {
				text = l.recover(ctx, derefWindow(window))
			}
			return l.finish(ctx, sessionID, result, text, "done", start)
		}

		if round >= l.config.MaxRounds {
			l.logger.Warn(ctx, "turn hit round cap", "rounds", round)
			return l.finish(ctx, sessionID, result, roundCapMessage, "round_cap", start)
		}

		verdicts := make([]Verdict, len(assistantMsg.ToolCalls))
		keys := make([]string, len(assistantMsg.ToolCalls))
		for i, call := range assistantMsg.ToolCalls {
			keys[i] = CallKey(call.Name, call.Input)
			verdicts[i] = guard.Check(call.Name, keys[i])
		}

		// The signal check runs before the assistant message is persisted.
		// A stored tool call must always be followed by its results; a
		// dangling one poisons every later invocation over this window.
		if name, repeated := guard.RepeatedCapability(); repeated {
			l.logger.Warn(ctx, "repeated capability in turn scope", "tool", name)
			return l.finish(ctx, sessionID, result, loopSignalMessage, "loop_signal", start)
		}

		if err := l.store.AppendMessage(ctx, sessionID, assistantMsg); err != nil {
			return nil, &TurnError{Phase: PhaseDispatch, Round: round, Message: "persist assistant message", Cause: err}
		}

		toolMsg := l.dispatch(ctx, assistantMsg.ToolCalls, verdicts, keys, guard, result)
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := l.store.AppendMessage(ctx, sessionID, toolMsg); err != nil {
			return nil, &TurnError{Phase: PhaseDispatch, Round: round, Message: "persist tool results", Cause: err}
		}
		result.Rounds++
	}
}

// invoke runs one model invocation over the current window.
func (l *TurnLoop) invoke(ctx context.Context, window []*models.Message, specs []CapabilitySpec) (*models.Message, error) {
	req := &InvokeRequest{
		Model:        l.config.Model,
		SystemPrompt: l.config.SystemPrompt,
		Messages:     derefWindow(window),
		Capabilities: specs,
		MaxTokens:    l.config.MaxTokens,
		Temperature:  l.config.Temperature,
	}

	start := time.Now()
	var span trace.Span
	if l.tracer != nil {
		ctx, span = l.tracer.TraceLLMRequest(ctx, l.invoker.Name(), l.config.Model)
	}
	msg, err := l.invoker.Invoke(ctx, req)
	if span != nil {
		if err != nil {
			l.tracer.RecordError(span, err)
		}
		span.End()
	}

	status := "success"
	if err != nil {
		status = "error"
	}
	var promptTokens, completionTokens int
	if msg != nil {
		promptTokens = metaInt(msg.Metadata, "prompt_tokens")
		completionTokens = metaInt(msg.Metadata, "completion_tokens")
	}
	if l.metrics != nil {
		l.metrics.RecordLLMRequest(l.invoker.Name(), l.config.Model, status,
			time.Since(start).Seconds(), promptTokens, completionTokens)
	}
	if err != nil {
		return nil, err
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	msg.Role = models.RoleAssistant
	return msg, nil
}

// dispatch resolves one batch of tool calls: blocked duplicates replay
// their prior result, everything else executes concurrently. The returned
// tool message carries one result per call, in request order.
func (l *TurnLoop) dispatch(ctx context.Context, calls []models.ToolCall, verdicts []Verdict, keys []string, guard *Guard, result *TurnResult) *models.Message {
	if l.tracer != nil {
		var span trace.Span
		ctx, span = l.tracer.TraceToolBatch(ctx, len(calls))
		defer span.End()
	}

	results := make([]models.ToolResult, len(calls))

	var allowed []models.ToolCall
	allowedIdx := make([]int, 0, len(calls))
	for i, call := range calls {
		if verdicts[i] == VerdictBlock {
			result.DuplicateBlocks++
			if l.metrics != nil {
				l.metrics.RecordDuplicateBlock(call.Name)
			}
			content, ok := guard.Replay(keys[i])
			if !ok {
				content = RedirectContent(call.Name)
			}
			l.logger.Debug(ctx, "duplicate tool call blocked", "tool", call.Name)
			results[i] = models.ToolResult{
				ToolCallID: call.ID,
				Name:       call.Name,
				Content:    content,
			}
			continue
		}
		allowed = append(allowed, call)
		allowedIdx = append(allowedIdx, i)
	}

	execResults := l.executor.ExecuteAll(ctx, allowed)
	for j, er := range execResults {
		i := allowedIdx[j]
		call := calls[i]

		raw := models.ToolResult{ToolCallID: call.ID, Name: call.Name}
		status := "success"
		switch {
		case er.Error != nil:
			raw.Content = errorText(er.Error)
			raw.IsError = true
			status = "error"
		case er.Result != nil:
			raw.Content = er.Result.Content
			raw.IsError = er.Result.IsError
			if raw.IsError {
				status = "error"
			}
		}

		formatted := FormatResult(call.Name, raw)
		results[i] = models.ToolResult{
			ToolCallID: call.ID,
			Name:       call.Name,
			Content:    formatted,
			IsError:    raw.IsError,
		}
		guard.Record(keys[i], formatted)

		if !raw.IsError {
			appendUnique(&result.ToolsUsed, call.Name)
		}
		if l.metrics != nil {
			l.metrics.RecordToolExecution(call.Name, status, er.Duration.Seconds())
		}
	}

	return &models.Message{
		ID:          uuid.NewString(),
		Role:        models.RoleTool,
		ToolResults: results,
	}
}

// finish persists the final assistant message and seals the result.
func (l *TurnLoop) finish(ctx context.Context, sessionID string, result *TurnResult, text, outcome string, start time.Time) (*TurnResult, error) {
	final := &models.Message{
		ID:      uuid.NewString(),
		Role:    models.RoleAssistant,
		Content: text,
	}
	if err := l.store.AppendMessage(ctx, sessionID, final); err != nil {
		return nil, &TurnError{Phase: PhaseComplete, Message: "persist final message", Cause: err}
	}

	result.Message = final
	result.Outcome = outcome
	result.Duration = time.Since(start)
	if l.metrics != nil {
		l.metrics.RecordTurn(outcome, result.Duration.Seconds())
	}
	l.logger.Info(ctx, "turn complete",
		"outcome", outcome,
		"rounds", result.Rounds,
		"tools_used", result.ToolsUsed,
		"duplicate_blocks", result.DuplicateBlocks,
		"duration_ms", result.Duration.Milliseconds(),
	)
	return result, nil
}

// finishModelError maps a provider failure to its user-safe message and
// ends the turn. The raw error is logged, never returned to the user.
func (l *TurnLoop) finishModelError(ctx context.Context, sessionID string, result *TurnResult, err error, start time.Time) (*TurnResult, error) {
	var modelErr *ModelError
	if !errors.As(err, &modelErr) {
		modelErr = NewModelError(err)
	}
	l.logger.Error(ctx, "model invocation failed", "category", string(modelErr.Category), "error", err)
	if l.metrics != nil {
		l.metrics.RecordError("provider", string(modelErr.Category))
	}
	return l.finish(ctx, sessionID, result, modelErr.UserMessage(), "model_error", start)
}

// recover replaces degenerate model output, counting where the
// replacement came from.
func (l *TurnLoop) recover(ctx context.Context, window []models.Message) string {
	text := Recover(window)
	source := "tool_result"
	if text == fallbackApology {
		source = "apology"
	}
	if l.metrics != nil {
		l.metrics.RecordFallback(source)
	}
	l.logger.Warn(ctx, "degenerate model output recovered", "source", source)
	return text
}

func derefWindow(window []*models.Message) []models.Message {
	out := make([]models.Message, 0, len(window))
	for _, msg := range window {
		if msg != nil {
			out = append(out, *msg)
		}
	}
	return out
}

// errorText renders an execution failure for the transcript.
func errorText(err error) string {
	if toolErr, ok := GetToolError(err); ok && toolErr.Message != "" {
		return toolErr.Message
	}
	return err.Error()
}

// metaInt reads an integer metadata value, tolerating the numeric types a
// JSON round trip produces.
func metaInt(meta map[string]any, key string) int {
	switch v := meta[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

func appendUnique(list *[]string, name string) {
	for _, existing := range *list {
		if existing == name {
			return
		}
	}
	*list = append(*list, name)
}
