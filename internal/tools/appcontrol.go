package tools

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/Koi-west/claude-code-pet/internal/llm"
)

const appleScriptSystemPrompt = `你是macOS自动化专家。根据用户的任务描述生成AppleScript代码。
要求：
- 只输出AppleScript代码本身，不要任何解释
- 代码要简洁可靠，优先使用 tell application 语法
- 打开应用用 activate，关闭应用用 quit`

// RegisterControlApplication adds the application-control tool. The
// model writes an AppleScript for the requested task and the handler
// runs it through osascript.
func (r *Registry) RegisterControlApplication(client llm.Client) {
	r.Register(&Tool{
		Name:        "control_application",
		Description: "控制macOS应用程序：打开、关闭、切换应用，或执行应用内操作。",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"task_description": map[string]any{
					"type":        "string",
					"description": "要执行的操作描述，如'打开Chrome'、'关闭音乐'",
				},
				"target_app": map[string]any{
					"type":        "string",
					"description": "目标应用名称（可选）",
				},
			},
			"required": []string{"task_description"},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			in, err := DecodeAppControlArgs(args)
			if err != nil {
				return "", err
			}

			task := in.TaskDescription
			if in.TargetApp != "" {
				task = fmt.Sprintf("%s（目标应用：%s）", task, in.TargetApp)
			}

			script, err := generateCode(ctx, client, appleScriptSystemPrompt, task, "applescript")
			if err != nil {
				return "", err
			}

			out, err := runAppleScript(ctx, script)
			if err != nil {
				return "", fmt.Errorf("应用控制失败: %w", err)
			}
			if out == "" {
				out = "完成"
			}
			return fmt.Sprintf("⚡ %s: %s", in.TaskDescription, out), nil
		},
	})
}

// runAppleScript executes a script via osascript. Arguments are passed
// directly, never through a shell.
func runAppleScript(ctx context.Context, script string) (string, error) {
	cmd := exec.CommandContext(ctx, "osascript", "-e", script)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return "", fmt.Errorf("osascript: %s", msg)
	}
	return strings.TrimSpace(stdout.String()), nil
}
