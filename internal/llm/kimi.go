package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/Koi-west/claude-code-pet/internal/config"
)

// KimiClient talks to a Moonshot (OpenAI-compatible) chat completion
// endpoint.
type KimiClient struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewKimiClient creates a client for the given API settings.
func NewKimiClient(cfg config.KimiConfig, logger *slog.Logger) *KimiClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.moonshot.cn/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "kimi-k2-0711-preview"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &KimiClient{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		httpClient: &http.Client{
			Timeout: 2 * time.Minute,
		},
		logger: logger,
	}
}

// Model returns the configured model name.
func (c *KimiClient) Model() string {
	return c.model
}

// Wire types for the OpenAI-compatible chat API. Tool call arguments
// travel as a JSON string on the wire; conversion to and from the
// neutral map form happens only in this file.

type wireToolCall struct {
	ID       string `json:"id,omitempty"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type wireMessage struct {
	Role       string         `json:"role"`
	Content    string         `json:"content"`
	ToolCalls  []wireToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
}

type chatRequest struct {
	Model       string           `json:"model"`
	Messages    []wireMessage    `json:"messages"`
	Tools       []map[string]any `json:"tools,omitempty"`
	Temperature float64          `json:"temperature"`
}

type chatCompletion struct {
	Model   string `json:"model"`
	Choices []struct {
		Message      wireMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// Chat sends a chat completion request.
func (c *KimiClient) Chat(ctx context.Context, messages []Message, opts ChatOptions) (*ChatResponse, error) {
	req := chatRequest{
		Model:       c.model,
		Messages:    encodeMessages(messages),
		Tools:       opts.Tools,
		Temperature: opts.Temperature,
	}

	jsonData, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	c.logger.Log(ctx, config.LevelTrace, "chat request", "body", string(jsonData))

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/chat/completions", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error %d: %s", resp.StatusCode, string(body))
	}

	c.logger.Log(ctx, config.LevelTrace, "chat response", "body", string(body))

	var completion chatCompletion
	if err := json.Unmarshal(body, &completion); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("empty response: no choices")
	}

	choice := completion.Choices[0]
	return &ChatResponse{
		Model:        completion.Model,
		Message:      decodeMessage(choice.Message),
		FinishReason: choice.FinishReason,
		InputTokens:  completion.Usage.PromptTokens,
		OutputTokens: completion.Usage.CompletionTokens,
	}, nil
}

// Ping checks if the API is reachable.
func (c *KimiClient) Ping(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/models", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("API error %d", resp.StatusCode)
	}
	return nil
}

// encodeMessages converts neutral messages to the wire format,
// re-serializing tool call arguments to JSON strings.
func encodeMessages(messages []Message) []wireMessage {
	wire := make([]wireMessage, len(messages))
	for i, m := range messages {
		wm := wireMessage{
			Role:       m.Role,
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
		}
		for _, tc := range m.ToolCalls {
			wtc := wireToolCall{ID: tc.ID, Type: "function"}
			wtc.Function.Name = tc.Name
			if tc.ArgsJSON != "" {
				wtc.Function.Arguments = tc.ArgsJSON
			} else {
				argsBytes, err := json.Marshal(tc.Arguments)
				if err != nil || tc.Arguments == nil {
					argsBytes = []byte("{}")
				}
				wtc.Function.Arguments = string(argsBytes)
			}
			wm.ToolCalls = append(wm.ToolCalls, wtc)
		}
		wire[i] = wm
	}
	return wire
}

// decodeMessage converts a wire message to the neutral form. Argument
// payloads that fail to parse keep their raw JSON so the dispatcher can
// report them as malformed instead of dropping the call.
func decodeMessage(wm wireMessage) Message {
	m := Message{
		Role:    wm.Role,
		Content: wm.Content,
	}
	for _, wtc := range wm.ToolCalls {
		tc := ToolCall{
			ID:       wtc.ID,
			Name:     wtc.Function.Name,
			ArgsJSON: wtc.Function.Arguments,
		}
		if wtc.Function.Arguments != "" {
			var args map[string]any
			if err := json.Unmarshal([]byte(wtc.Function.Arguments), &args); err == nil {
				tc.Arguments = args
			}
		}
		m.ToolCalls = append(m.ToolCalls, tc)
	}
	return m
}
