package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/Koi-west/claude-code-pet/internal/llm"
)

// ResultSeparator joins sibling tool results for the synthesis prompt.
const ResultSeparator = " | "

// Dispatch routes one model tool call to its handler and converts
// every failure mode into a result string. It never returns an error:
// unknown names, malformed arguments, handler failures, and handler
// panics all surface as text so one bad call cannot abort a batch.
func (r *Registry) Dispatch(ctx context.Context, call llm.ToolCall) (result string) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("tool handler panicked", "tool", call.Name, "panic", rec)
			result = fmt.Sprintf("❌ 工具执行失败 (%s): %v", call.Name, rec)
		}
	}()

	tool := r.Get(call.Name)
	if tool == nil {
		r.logger.Warn("unknown tool requested", "tool", call.Name)
		return fmt.Sprintf("❌ 未知的工具: %s", call.Name)
	}

	if call.Malformed() {
		r.logger.Warn("malformed tool arguments", "tool", call.Name, "raw", call.ArgsJSON)
		return fmt.Sprintf("❌ 工具参数解析失败 (%s)", call.Name)
	}

	timeout := r.timeout
	if tool.Timeout > 0 {
		timeout = tool.Timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	r.logger.Info("dispatching tool",
		"tool", call.Name,
		"identity", IdentityFromContext(ctx),
		"timeout", timeout,
	)
	out, err := tool.Handler(ctx, call.Arguments)
	if err != nil {
		r.logger.Warn("tool execution failed", "tool", call.Name, "error", err)
		return fmt.Sprintf("❌ 工具执行失败 (%s): %v", call.Name, err)
	}
	return out
}

// DispatchAll executes every call in order and joins the results.
// Sibling calls always run to completion regardless of earlier
// failures in the batch.
func (r *Registry) DispatchAll(ctx context.Context, calls []llm.ToolCall) string {
	results := make([]string, len(calls))
	for i, call := range calls {
		results[i] = r.Dispatch(ctx, call)
	}
	return strings.Join(results, ResultSeparator)
}
