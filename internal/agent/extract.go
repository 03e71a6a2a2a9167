package agent

import (
	"context"
	"fmt"

	"github.com/Koi-west/claude-code-pet/internal/llm"
	"github.com/Koi-west/claude-code-pet/internal/session"
)

const extractionPromptFormat = `从以下对话中提取有用的用户信息，返回JSON格式：

用户: %s
AI: %s

请提取以下类型的信息（如果有的话）：
- name: 用户姓名
- age: 用户年龄（数字）
- occupation: 用户职业
- birthday: 用户生日
- favorite_apps: 用户喜欢或常用的应用程序列表
- work_habits: 用户的工作习惯描述
- preferences: 用户的个人偏好设置
- recent_activities: 最近的活动或任务

如果没有有用信息，返回 null。
只返回JSON，不要其他解释。

示例格式：
{
  "name": "小明",
  "age": 25,
  "occupation": "程序员",
  "birthday": "3月15日",
  "favorite_apps": ["Chrome", "Music"],
  "work_habits": "喜欢在晚上工作",
  "preferences": {"music_genre": "蓝调"},
  "recent_activities": ["设置提醒"]
}`

// ExtractFunc builds the session.ExtractFunc that turns one exchange
// into structured facts via a single model call.
func ExtractFunc(client llm.Client) session.ExtractFunc {
	return func(ctx context.Context, userText, assistantText string) (*session.MemoryRecord, error) {
		prompt := fmt.Sprintf(extractionPromptFormat, userText, assistantText)

		resp, err := client.Chat(ctx, []llm.Message{
			{Role: "user", Content: prompt},
		}, llm.ChatOptions{Temperature: 0.3})
		if err != nil {
			return nil, err
		}
		return session.ParseExtraction(resp.Message.Content)
	}
}
