// Package organizer runs the multi-step file organization loop: the
// model plans and executes directory cleanup through a restricted
// toolset across several rounds.
package organizer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/Koi-west/claude-code-pet/internal/events"
	"github.com/Koi-west/claude-code-pet/internal/llm"
	"github.com/Koi-west/claude-code-pet/internal/tools"
)

// DefaultMaxRounds bounds the model-driven round loop.
const DefaultMaxRounds = 10

const systemPrompt = `你是一个智能文件管理助手。你可以：
1. 扫描目录查看文件信息
2. 使用shell命令进行文件操作（移动、删除、创建文件夹等）

当用户要求整理文件时，你应该：
1. 先扫描目录了解文件情况
2. 根据文件类型、大小、名称等信息制定整理策略
3. 使用适当的shell命令执行整理操作
4. 如果需要多步操作，请逐步执行

常用的文件分类：
- 图片：jpg, png, gif, jpeg, tiff等 -> 图片文件夹
- 文档：pdf, doc, docx, txt, rtf, pages, md等 -> 文档文件夹
- 表格：xls, xlsx, csv, numbers等 -> 表格文件夹
- 演示：ppt, pptx, key等 -> 演示文件夹
- 代码：py, js, html, css, swift, sql等 -> 代码文件夹
- 音视频：mp3, mp4, wav, mov, avi, mkv, m4a等 -> 音视频文件夹
- 压缩包：zip, rar, 7z, tar, gz等 -> 压缩文件夹
- 配置：json, env, gitignore等 -> 配置文件夹
- 安装包：dmg, pkg等 -> 安装包文件夹
- 临时文件：tmp, cache, bak, log等 -> 临时文件夹

重要提示：
- 执行每个操作前要确保目标文件夹存在
- 处理文件名包含空格或特殊字符时要正确转义
- 如果发现重复文件，创建"重复文件"文件夹进行管理
- 总是告诉用户你在做什么，并在完成后给出总结

请根据具体情况智能决定如何操作，并主动执行多步整理流程。`

// continuePrompt nudges the model forward when it stops calling tools
// without declaring the task finished.
const continuePrompt = "请继续执行文件整理操作。如果需要扫描、创建文件夹或移动文件，请直接使用相应的工具命令执行。"

// completionKeywords terminate the loop when the model's free text
// declares the work done.
var completionKeywords = []string{"完成", "整理结束", "已完成", "整理完毕"}

// Organizer drives the organization loop over a restricted registry of
// scan_directory and execute_shell_command.
type Organizer struct {
	llm       llm.Client
	registry  *tools.Registry
	bus       *events.Bus
	logger    *slog.Logger
	maxRounds int
}

// New creates an organizer backed by the given shell runner. bus may
// be nil.
func New(llmClient llm.Client, runner *tools.ShellRunner, bus *events.Bus, logger *slog.Logger, maxRounds int) *Organizer {
	if logger == nil {
		logger = slog.Default()
	}
	if maxRounds <= 0 {
		maxRounds = DefaultMaxRounds
	}

	registry := tools.NewRegistry(logger)
	registry.RegisterScanDirectory()
	registry.RegisterShellExec(runner)

	return &Organizer{
		llm:       llmClient,
		registry:  registry,
		bus:       bus,
		logger:    logger,
		maxRounds: maxRounds,
	}
}

// Organize runs the loop for one directory and always returns a result
// string: completion summary, partial summary at the round budget, or
// a failure message. Errors and panics never escape.
func (o *Organizer) Organize(ctx context.Context, path string) (result string) {
	defer func() {
		if rec := recover(); rec != nil {
			o.logger.Error("organize panicked", "path", path, "panic", rec)
			result = fmt.Sprintf("❌ 智能文件整理失败: %v", rec)
		}
	}()

	taskID, _ := uuid.NewV7()
	tid := taskID.String()

	o.logger.Info("organize started", "task_id", tid, "path", path)
	o.bus.Publish(events.Event{
		Source: events.SourceOrganizer,
		Kind:   events.KindOrganizeStart,
		Data:   map[string]any{"task_id": tid, "path": path},
	})

	rounds := 0
	defer func() {
		o.bus.Publish(events.Event{
			Source: events.SourceOrganizer,
			Kind:   events.KindOrganizeComplete,
			Data:   map[string]any{"task_id": tid, "path": path, "rounds": rounds},
		})
	}()

	toolDefs := o.registry.List()
	messages := []llm.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: fmt.Sprintf("请帮我整理 %s 目录的文件", path)},
	}

	var steps []string

	for round := 0; round < o.maxRounds; round++ {
		rounds = round + 1
		if err := ctx.Err(); err != nil {
			o.logger.Warn("organize cancelled", "task_id", tid, "round", round)
			return fmt.Sprintf("❌ 智能文件整理失败: %v", err)
		}

		o.logger.Info("organize round", "task_id", tid, "round", round, "msgs", len(messages))

		resp, err := o.llm.Chat(ctx, messages, llm.ChatOptions{
			Tools:       toolDefs,
			Temperature: 0.3,
		})
		if err != nil {
			o.logger.Error("organize llm call failed", "task_id", tid, "round", round, "error", err)
			return fmt.Sprintf("❌ 智能文件整理失败: %v", err)
		}

		messages = append(messages, resp.Message)
		if text := strings.TrimSpace(resp.Message.Content); text != "" {
			steps = append(steps, text)
		}

		if len(resp.Message.ToolCalls) > 0 {
			for _, call := range resp.Message.ToolCalls {
				out := o.registry.Dispatch(ctx, call)
				messages = append(messages, llm.Message{
					Role:       "tool",
					Content:    out,
					ToolCallID: call.ID,
				})
			}
			// Next round analyzes the tool results; no termination
			// check while the model is still acting.
			continue
		}

		if containsCompletionKeyword(resp.Message.Content) {
			o.logger.Info("organize finished", "task_id", tid, "rounds", rounds)
			break
		}

		messages = append(messages, llm.Message{Role: "user", Content: continuePrompt})
	}

	return formatSummary(steps, rounds)
}

// containsCompletionKeyword reports whether the model's free text
// declares the task finished.
func containsCompletionKeyword(text string) bool {
	lowered := strings.ToLower(text)
	for _, kw := range completionKeywords {
		if strings.Contains(lowered, kw) {
			return true
		}
	}
	return false
}

func formatSummary(steps []string, rounds int) string {
	var b strings.Builder
	b.WriteString("✅ 智能文件整理完成！\n\n")
	b.WriteString("📋 整理过程:\n")
	for i, step := range steps {
		fmt.Fprintf(&b, "%d. %s\n", i+1, step)
	}
	fmt.Fprintf(&b, "\n🔄 总共进行了 %d 轮AI调用", rounds)
	return b.String()
}
