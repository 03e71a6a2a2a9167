package mail

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Koi-west/claude-code-pet/internal/config"
	"github.com/Koi-west/claude-code-pet/internal/llm"
)

const draftSystemPrompt = `你是邮件写作助手。根据用户描述的写信目的，起草一封得体的中文邮件。
只输出JSON，格式为 {"subject": "主题", "body": "正文（可用Markdown）"}，不要其他内容。`

// Service implements the mail operations exposed through the tool
// registry.
type Service struct {
	cfg    config.MailConfig
	client *Client
	llm    llm.Client
	logger *slog.Logger
}

// NewService creates the mail service. The LLM client is used only by
// ComposeAndSend for drafting.
func NewService(cfg config.MailConfig, llmClient llm.Client, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		cfg:    cfg,
		client: NewClient(cfg.IMAP, logger),
		llm:    llmClient,
		logger: logger,
	}
}

// Close releases the IMAP connection.
func (s *Service) Close() error {
	return s.client.Close()
}

// Read renders the most recent messages as a listing the model can
// summarize for the user.
func (s *Service) Read(ctx context.Context, count int, unreadOnly bool) (string, error) {
	envelopes, err := s.client.ListRecent(ctx, count, unreadOnly)
	if err != nil {
		return "", fmt.Errorf("读取邮件失败: %w", err)
	}

	if len(envelopes) == 0 {
		if unreadOnly {
			return "📭 没有未读邮件", nil
		}
		return "📭 收件箱是空的", nil
	}

	var b strings.Builder
	if unreadOnly {
		fmt.Fprintf(&b, "📬 有 %d 封未读邮件:\n", len(envelopes))
	} else {
		fmt.Fprintf(&b, "📬 最近 %d 封邮件:\n", len(envelopes))
	}
	for i, env := range envelopes {
		marker := "✉️"
		if !env.Seen {
			marker = "🆕"
		}
		subject := env.Subject
		if subject == "" {
			subject = "(无主题)"
		}
		fmt.Fprintf(&b, "%d. %s %s — %s (%s)\n",
			i+1, marker, subject, env.From, env.Date.Format("01-02 15:04"))
	}
	return strings.TrimSpace(b.String()), nil
}

// Send delivers a message with the given subject and markdown body.
func (s *Service) Send(ctx context.Context, to, subject, body string) (string, error) {
	msg, err := ComposeMessage(s.cfg.From, to, subject, body)
	if err != nil {
		return "", fmt.Errorf("构建邮件失败: %w", err)
	}
	if err := SendMail(ctx, s.cfg.SMTP, s.cfg.From, to, msg); err != nil {
		return "", fmt.Errorf("发送邮件失败: %w", err)
	}
	s.logger.Info("mail sent", "to", to, "subject", subject)
	return fmt.Sprintf("📤 邮件已发送给 %s：%s", to, subject), nil
}

// ComposeAndSend drafts subject and body for the given purpose via one
// model call, then delivers the result.
func (s *Service) ComposeAndSend(ctx context.Context, recipient, purpose string) (string, error) {
	if purpose == "" {
		purpose = "向对方问好"
	}

	resp, err := s.llm.Chat(ctx, []llm.Message{
		{Role: "system", Content: draftSystemPrompt},
		{Role: "user", Content: purpose},
	}, llm.ChatOptions{Temperature: 0})
	if err != nil {
		return "", fmt.Errorf("起草邮件失败: %w", err)
	}

	subject, body, err := parseDraft(resp.Message.Content)
	if err != nil {
		return "", err
	}
	return s.Send(ctx, recipient, subject, body)
}

// parseDraft decodes the drafting model's JSON output.
func parseDraft(raw string) (subject, body string, err error) {
	text := strings.TrimSpace(raw)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	var draft struct {
		Subject string `json:"subject"`
		Body    string `json:"body"`
	}
	if err := json.Unmarshal([]byte(text), &draft); err != nil {
		return "", "", fmt.Errorf("解析邮件草稿失败: %w", err)
	}
	if draft.Subject == "" || draft.Body == "" {
		return "", "", fmt.Errorf("邮件草稿缺少主题或正文")
	}
	return draft.Subject, draft.Body, nil
}
