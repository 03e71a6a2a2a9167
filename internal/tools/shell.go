package tools

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// ShellRunner executes shell commands on behalf of tool handlers.
type ShellRunner struct {
	workingDir     string
	deniedPatterns []string
	defaultTimeout time.Duration
	maxOutputBytes int
}

// ShellRunnerConfig configures the shell runner.
type ShellRunnerConfig struct {
	WorkingDir     string
	DeniedPatterns []string
	DefaultTimeout time.Duration
	MaxOutputBytes int
}

// DefaultShellRunnerConfig returns safe defaults.
func DefaultShellRunnerConfig() ShellRunnerConfig {
	return ShellRunnerConfig{
		DeniedPatterns: []string{
			"rm -rf /",
			"rm -rf /*",
			"mkfs",
			"dd if=",
			"> /dev/sd",
			"chmod -R 777 /",
			":(){ :|:& };:", // Fork bomb
		},
		DefaultTimeout: 30 * time.Second,
		MaxOutputBytes: 100 * 1024,
	}
}

// NewShellRunner creates a shell runner.
func NewShellRunner(cfg ShellRunnerConfig) *ShellRunner {
	if cfg.DefaultTimeout == 0 {
		cfg.DefaultTimeout = 30 * time.Second
	}
	if cfg.MaxOutputBytes == 0 {
		cfg.MaxOutputBytes = 100 * 1024
	}
	if cfg.DeniedPatterns == nil {
		cfg.DeniedPatterns = DefaultShellRunnerConfig().DeniedPatterns
	}
	return &ShellRunner{
		workingDir:     cfg.WorkingDir,
		deniedPatterns: cfg.DeniedPatterns,
		defaultTimeout: cfg.DefaultTimeout,
		maxOutputBytes: cfg.MaxOutputBytes,
	}
}

// Run executes a command via the shell, returning combined output.
// Denied patterns are rejected before execution and a failing exit
// status becomes an error carrying stderr.
func (s *ShellRunner) Run(ctx context.Context, command string) (string, error) {
	cmdLower := strings.ToLower(command)
	for _, denied := range s.deniedPatterns {
		if strings.Contains(cmdLower, strings.ToLower(denied)) {
			return "", fmt.Errorf("command blocked by security policy: matches denied pattern %q", denied)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, s.defaultTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	if s.workingDir != "" {
		cmd.Dir = s.workingDir
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		return "", fmt.Errorf("command timed out after %s", s.defaultTimeout)
	}
	if err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return "", fmt.Errorf("command failed: %s", truncateOutput(msg, s.maxOutputBytes))
	}

	out := stdout.String()
	if strings.TrimSpace(out) == "" {
		out = "(无输出)"
	}
	return truncateOutput(out, s.maxOutputBytes), nil
}

// RegisterShellExec adds the raw command tool used by multi-step file
// organization.
func (r *Registry) RegisterShellExec(runner *ShellRunner) {
	r.Register(&Tool{
		Name:        "execute_shell_command",
		Description: "执行shell命令来移动、复制或整理文件。如 mkdir、mv、cp 等。",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"command": map[string]any{
					"type":        "string",
					"description": "要执行的shell命令",
				},
			},
			"required": []string{"command"},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			command := stringArg(args, "command")
			if command == "" {
				return "", fmt.Errorf("command is required")
			}
			out, err := runner.Run(ctx, command)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("✅ 命令执行成功:\n%s", out), nil
		},
	})
}

// truncateOutput truncates output to maxBytes, adding a note if truncated.
func truncateOutput(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	return s[:maxBytes] + "\n\n[... output truncated ...]"
}
