// Package agent implements the turn loop: one user utterance in, one
// assistant answer out, with model-directed tool dispatch in between.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Koi-west/claude-code-pet/internal/events"
	"github.com/Koi-west/claude-code-pet/internal/llm"
	"github.com/Koi-west/claude-code-pet/internal/session"
	"github.com/Koi-west/claude-code-pet/internal/tools"
)

const systemDirective = `你是Miko，一个可爱的桌面助手，可以帮用户控制Mac电脑。你的回复要简洁友好，像个贴心的伙伴。

%s工具选择指南：
1. **文件管理工具 (manage_files)** - 当用户要求：
   - 整理文件/文件夹 (如："整理桌面"、"整理测试文件夹"、"分类文件")
   - 扫描目录 (如："看看桌面有什么文件")
   - 清理文件 (如："清理临时文件")

2. **应用控制工具 (control_application)** - 当用户要求：
   - 打开/关闭应用程序 (如："打开Chrome"、"关闭音乐")
   - 音乐播放控制 (如："播放音乐"、"暂停音乐"、"下一首"、"上一首") - 必须使用AppleScript控制Music应用
   - 系统功能 (如："设置闹钟"、"调节音量"、"截屏")
   - 时间查询 (如："现在几点了"、"今天几号"、"星期几")

3. **Python执行工具 (execute_python)** - 当用户要求：
   - 获取天气信息 (如："今天天气怎么样"、"杭州天气")
   - 数据处理 (如："计算"、"分析数据")
   - 系统信息 (如："查看系统状态"、"内存使用情况")
   - 统计数据查询 (如："北京人口"、"GDP数据") - 注意数据准确性

4. **Gmail工具 (gmail_operation)** - 当用户要求：
   - 读取邮件 (如："查看最新邮件"、"读取邮件")
   - 发送邮件 (如："发送邮件给xxx"、"给xxx发邮件")
   - AI起草邮件 (如："给xxx写一封关于xxx的邮件")

重要：
- 文件操作用 manage_files，不要用 control_application
- 音乐控制（播放、暂停、切歌）必须用 control_application 调用AppleScript控制Music应用，每次都要调用工具，不能直接回复
- 时间查询用 control_application (AppleScript)
- 天气查询用 execute_python
- 统计数据查询用 execute_python，但要提醒用户数据可能不够准确
- 邮件操作用 gmail_operation

根据用户需求选择正确的工具。`

const synthesisDirective = "你是Miko，根据工具执行结果，用简洁友好的语言告诉用户操作结果。如果是统计数据查询，要提醒用户数据来源和可能的准确性限制。"

// recentHistoryLimit bounds how many past exchanges ride along in the
// first completion request.
const recentHistoryLimit = 3

// Loop drives one user turn end to end.
type Loop struct {
	llm       llm.Client
	registry  *tools.Registry
	store     session.Store
	extractor *session.Extractor
	bus       *events.Bus
	logger    *slog.Logger
}

// New creates the turn loop. The extractor and bus may be nil.
func New(llmClient llm.Client, registry *tools.Registry, store session.Store, extractor *session.Extractor, bus *events.Bus, logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		llm:       llmClient,
		registry:  registry,
		store:     store,
		extractor: extractor,
		bus:       bus,
		logger:    logger,
	}
}

// Greeting returns the personalized greeting for an identity.
func (l *Loop) Greeting(identity string) string {
	return l.store.Greeting(identity)
}

// HandleTurn processes one user utterance and returns the final
// answer. Only a model invocation failure is allowed to fail the turn;
// every tool-level problem has already been folded into result text.
func (l *Loop) HandleTurn(ctx context.Context, identity, userText string) (string, error) {
	requestID, _ := uuid.NewV7()
	rid := requestID.String()
	started := time.Now()

	l.logger.Info("turn started", "request_id", rid, "identity", identity, "len", len(userText))
	l.bus.Publish(events.Event{
		Source: events.SourceAgent,
		Kind:   events.KindRequestStart,
		Data:   map[string]any{"request_id": rid, "identity": identity},
	})

	messages := l.buildMessages(identity, userText)

	resp, err := l.llm.Chat(ctx, messages, llm.ChatOptions{
		Tools:       l.registry.List(),
		Temperature: 0.3,
	})
	if err != nil {
		l.logger.Error("turn model call failed", "request_id", rid, "error", err)
		l.bus.Publish(events.Event{
			Source: events.SourceAgent,
			Kind:   events.KindRequestFailed,
			Data:   map[string]any{"request_id": rid, "identity": identity, "error": err.Error()},
		})
		return "", fmt.Errorf("model call: %w", err)
	}

	var final string
	calls := resp.Message.ToolCalls
	if len(calls) == 0 {
		final = resp.Message.Content
	} else {
		// Tool calls take precedence: accompanying text is only
		// observed, the synthesis pass owns the final message.
		if text := strings.TrimSpace(resp.Message.Content); text != "" {
			l.logger.Debug("model text alongside tool calls", "request_id", rid, "text", text)
		}

		names := make([]string, len(calls))
		for i, call := range calls {
			names[i] = call.Name
		}
		l.logger.Info("dispatching tool batch", "request_id", rid, "tools", names)
		l.bus.Publish(events.Event{
			Source: events.SourceAgent,
			Kind:   events.KindToolCall,
			Data:   map[string]any{"request_id": rid, "tools": strings.Join(names, ",")},
		})

		results := l.registry.DispatchAll(tools.WithIdentity(ctx, identity), calls)

		final, err = l.synthesize(ctx, userText, results)
		if err != nil {
			l.logger.Error("synthesis call failed", "request_id", rid, "error", err)
			l.bus.Publish(events.Event{
				Source: events.SourceAgent,
				Kind:   events.KindRequestFailed,
				Data:   map[string]any{"request_id": rid, "identity": identity, "error": err.Error()},
			})
			return "", fmt.Errorf("synthesize: %w", err)
		}
	}

	if err := l.store.RecordInteraction(identity, session.Interaction{
		User:      userText,
		Assistant: final,
		Timestamp: time.Now(),
		ToolCalls: invocationRecords(calls),
	}); err != nil {
		l.logger.Warn("record interaction failed", "request_id", rid, "error", err)
	}

	l.scheduleExtraction(identity, userText, final)

	l.bus.Publish(events.Event{
		Source: events.SourceAgent,
		Kind:   events.KindRequestComplete,
		Data: map[string]any{
			"request_id": rid,
			"identity":   identity,
			"tool_calls": len(calls),
			"elapsed_ms": time.Since(started).Milliseconds(),
		},
	})
	l.logger.Info("turn complete", "request_id", rid, "tool_calls", len(calls),
		"elapsed", time.Since(started).Round(time.Millisecond))
	return final, nil
}

// buildMessages assembles the first completion request: directive with
// memory context, recent history, then the user text.
func (l *Loop) buildMessages(identity, userText string) []llm.Message {
	contextBlock := l.store.Context(identity)
	if contextBlock != "" {
		contextBlock += "\n\n"
	}

	messages := []llm.Message{
		{Role: "system", Content: fmt.Sprintf(systemDirective, contextBlock)},
	}
	for _, msg := range l.store.RecentMessages(identity, recentHistoryLimit) {
		messages = append(messages, llm.Message{Role: msg.Role, Content: msg.Content})
	}
	return append(messages, llm.Message{Role: "user", Content: userText})
}

// synthesize turns raw tool output into a user-facing sentence. No
// tools are offered; the call runs at deterministic temperature.
func (l *Loop) synthesize(ctx context.Context, userText, results string) (string, error) {
	resp, err := l.llm.Chat(ctx, []llm.Message{
		{Role: "system", Content: synthesisDirective},
		{Role: "user", Content: fmt.Sprintf("用户请求：%s\n执行结果：%s\n请简洁地告诉用户结果。", userText, results)},
	}, llm.ChatOptions{Temperature: 0})
	if err != nil {
		return "", err
	}
	return resp.Message.Content, nil
}

// scheduleExtraction detaches the memory pass from the turn's critical
// path. Failures are published for observability and never reach the
// caller.
func (l *Loop) scheduleExtraction(identity, userText, assistantText string) {
	if l.extractor == nil {
		return
	}
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				l.logger.Error("extraction panicked", "identity", identity, "panic", rec)
			}
		}()

		if err := l.extractor.Process(context.Background(), identity, userText, assistantText); err != nil {
			l.bus.Publish(events.Event{
				Source: events.SourceExtractor,
				Kind:   events.KindExtractFailed,
				Data:   map[string]any{"identity": identity, "error": err.Error()},
			})
			return
		}
		l.bus.Publish(events.Event{
			Source: events.SourceExtractor,
			Kind:   events.KindExtractComplete,
			Data:   map[string]any{"identity": identity},
		})
	}()
}

func invocationRecords(calls []llm.ToolCall) []session.ToolInvocationRecord {
	if len(calls) == 0 {
		return nil
	}
	records := make([]session.ToolInvocationRecord, len(calls))
	for i, call := range calls {
		records[i] = session.ToolInvocationRecord{
			Tool:      call.Name,
			Arguments: call.Arguments,
		}
	}
	return records
}
