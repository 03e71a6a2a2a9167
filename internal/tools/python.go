package tools

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/Koi-west/claude-code-pet/internal/llm"
)

const pythonSystemPrompt = `你是Python专家。根据用户的任务描述生成可以直接运行的Python代码。
要求：
- 只输出Python代码本身，不要任何解释
- 结果用print输出
- 只使用标准库`

const pythonTimeout = 30 * time.Second

// RegisterExecutePython adds the code-execution tool. Provided code is
// run as-is; otherwise the model generates a script from the task
// description first.
func (r *Registry) RegisterExecutePython(client llm.Client) {
	r.Register(&Tool{
		Name:        "execute_python",
		Description: "执行Python代码完成计算、数据处理等任务。可以直接给代码，也可以只描述任务。",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"task": map[string]any{
					"type":        "string",
					"description": "要完成的任务描述",
				},
				"code": map[string]any{
					"type":        "string",
					"description": "要直接执行的Python代码（可选）",
				},
			},
			"required": []string{"task"},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			in, err := DecodePythonArgs(args)
			if err != nil {
				return "", err
			}

			code := stripCodeFence(in.Code, "python")
			if code == "" {
				code, err = generateCode(ctx, client, pythonSystemPrompt, in.Task, "python")
				if err != nil {
					return "", err
				}
			}

			out, err := runPython(ctx, code)
			if err != nil {
				return "", fmt.Errorf("Python执行失败: %w", err)
			}
			if out == "" {
				out = "(无输出)"
			}
			return fmt.Sprintf("⚡ Python执行结果: %s", out), nil
		},
	})
}

// runPython writes the script to a temp file and runs it with
// python3, falling back to python.
func runPython(ctx context.Context, code string) (string, error) {
	dir, err := os.MkdirTemp("", "miko-python-*")
	if err != nil {
		return "", fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	script := filepath.Join(dir, "task.py")
	if err := os.WriteFile(script, []byte(code), 0o600); err != nil {
		return "", fmt.Errorf("write script: %w", err)
	}

	interpreter, err := exec.LookPath("python3")
	if err != nil {
		interpreter, err = exec.LookPath("python")
		if err != nil {
			return "", fmt.Errorf("no python interpreter found")
		}
	}

	ctx, cancel := context.WithTimeout(ctx, pythonTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, interpreter, script)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err = cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		return "", fmt.Errorf("script timed out after %s", pythonTimeout)
	}
	if err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return "", fmt.Errorf("%s", msg)
	}
	return strings.TrimSpace(stdout.String()), nil
}
