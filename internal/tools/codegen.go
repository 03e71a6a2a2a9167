package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/Koi-west/claude-code-pet/internal/llm"
)

// generateCode asks the model for a script body at deterministic
// temperature and strips any markdown fencing it wraps around it.
func generateCode(ctx context.Context, client llm.Client, system, task, lang string) (string, error) {
	resp, err := client.Chat(ctx, []llm.Message{
		{Role: "system", Content: system},
		{Role: "user", Content: task},
	}, llm.ChatOptions{Temperature: 0})
	if err != nil {
		return "", fmt.Errorf("generate %s: %w", lang, err)
	}

	code := stripCodeFence(resp.Message.Content, lang)
	if code == "" {
		return "", fmt.Errorf("model returned no %s code", lang)
	}
	return code, nil
}

// stripCodeFence removes a surrounding markdown code fence, with or
// without a language tag.
func stripCodeFence(text, lang string) string {
	code := strings.TrimSpace(text)
	code = strings.TrimPrefix(code, "```"+lang)
	code = strings.TrimPrefix(code, "```")
	code = strings.TrimSuffix(code, "```")
	return strings.TrimSpace(code)
}
