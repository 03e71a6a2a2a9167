package tools

import (
	"context"
	"fmt"
)

// MailService is the narrow surface the mail tool needs. Implemented
// by internal/mail so this package stays free of IMAP/SMTP concerns.
type MailService interface {
	// Read returns a rendering of the most recent messages. When
	// unreadOnly is set, only unseen messages are listed.
	Read(ctx context.Context, count int, unreadOnly bool) (string, error)

	// Send delivers a message to the recipient.
	Send(ctx context.Context, to, subject, body string) (string, error)

	// ComposeAndSend drafts subject and body for the given purpose,
	// then delivers the result.
	ComposeAndSend(ctx context.Context, recipient, purpose string) (string, error)
}

// RegisterMailOperations adds the mail tool backed by the given
// service.
func (r *Registry) RegisterMailOperations(svc MailService) {
	r.Register(&Tool{
		Name:        "gmail_operation",
		Description: "邮件操作：读取最新邮件、读取未读邮件、发送邮件，或根据目的自动起草并发送邮件。",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"action": map[string]any{
					"type":        "string",
					"enum":        []string{"read", "read_unread", "send", "compose"},
					"description": "要执行的邮件操作",
				},
				"count": map[string]any{
					"type":        "integer",
					"description": "读取的邮件数量，默认3",
				},
				"to_email": map[string]any{
					"type":        "string",
					"description": "收件人地址（send时必填）",
				},
				"subject": map[string]any{
					"type":        "string",
					"description": "邮件主题（send时必填）",
				},
				"body": map[string]any{
					"type":        "string",
					"description": "邮件正文，支持Markdown",
				},
				"recipient": map[string]any{
					"type":        "string",
					"description": "收件人地址（compose时必填）",
				},
				"purpose": map[string]any{
					"type":        "string",
					"description": "写信目的，compose时用于起草内容",
				},
			},
			"required": []string{"action"},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			in, err := DecodeMailArgs(args)
			if err != nil {
				return "", err
			}

			switch in.Action {
			case "read":
				return svc.Read(ctx, in.Count, false)
			case "read_unread":
				return svc.Read(ctx, in.Count, true)
			case "send":
				return svc.Send(ctx, in.ToEmail, in.Subject, in.Body)
			case "compose":
				return svc.ComposeAndSend(ctx, in.Recipient, in.Purpose)
			}
			return "", fmt.Errorf("unsupported action %q", in.Action)
		},
	})
}
