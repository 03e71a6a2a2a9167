package session

import (
	"fmt"
	"strings"
)

// defaultGreeting is shown when nothing is known about the identity.
const defaultGreeting = "嗨！我是 Miko 🐾\n你的专属桌面智能伙伴\n\n我能帮你：\n• 控制应用 - '打开Chrome'\n• 整理文件 - '整理桌面'\n• 查看邮件 - '读取最新邮件'\n• 获取信息 - '今天天气怎么样'\n\n一句话就能搞定，试试看吧！"

// FormatContext renders a memory record as the prompt context block:
// a basic-info section and a preference section, omitting absent
// fields. Returns the empty string for an empty record.
func FormatContext(rec MemoryRecord) string {
	var basic []string
	if rec.Name != "" {
		basic = append(basic, "姓名: "+rec.Name)
	}
	if rec.Age != 0 {
		basic = append(basic, fmt.Sprintf("年龄: %d", rec.Age))
	}
	if rec.Occupation != "" {
		basic = append(basic, "职业: "+rec.Occupation)
	}
	if rec.Birthday != "" {
		basic = append(basic, "生日: "+rec.Birthday)
	}

	var prefs []string
	if len(rec.FavoriteApps) > 0 {
		prefs = append(prefs, "常用应用: "+strings.Join(rec.FavoriteApps, ", "))
	}
	if rec.WorkHabits != "" {
		prefs = append(prefs, "工作习惯: "+rec.WorkHabits)
	}
	if len(rec.Preferences) > 0 {
		var pairs []string
		for _, k := range sortedKeys(rec.Preferences) {
			pairs = append(pairs, k+": "+rec.Preferences[k])
		}
		prefs = append(prefs, "个人设置: "+strings.Join(pairs, ", "))
	}
	if len(rec.RecentActivities) > 0 {
		prefs = append(prefs, "最近活动: "+strings.Join(rec.RecentActivities, ", "))
	}

	var sections []string
	if len(basic) > 0 {
		sections = append(sections, "用户基本信息：\n- "+strings.Join(basic, "\n- "))
	}
	if len(prefs) > 0 {
		sections = append(sections, "用户偏好信息：\n- "+strings.Join(prefs, "\n- "))
	}

	return strings.Join(sections, "\n\n")
}

// FormatGreeting builds the personalized greeting sent in response to
// a greeting request. Unknown identities get the capability intro.
func FormatGreeting(rec MemoryRecord) string {
	if rec.IsZero() {
		return defaultGreeting
	}

	var parts []string
	if rec.Name != "" {
		parts = append(parts, fmt.Sprintf("Hi, %s！我是 Miko🐾", rec.Name))
	} else {
		parts = append(parts, "Hi！我是 Miko 🐾 你的桌面伙伴")
	}
	parts = append(parts, "作为你的桌面伙伴，我可以随时帮忙！")

	var suggestions []string
	for i, app := range rec.FavoriteApps {
		if i >= 2 {
			break
		}
		suggestions = append(suggestions, "• 打开"+app)
	}
	defaults := []string{
		"• 提醒我明天下午四点开会",
		"• 给Alexa发邮件",
		"• 用Chrome搜索AdventureX",
		"• 帮我整理桌面",
		"• 进入工作模式",
	}
	for _, s := range defaults {
		if len(suggestions) >= 6 {
			break
		}
		suggestions = append(suggestions, s)
	}
	parts = append(parts, "\n试试说：\n"+strings.Join(suggestions, "\n"))

	return strings.Join(parts, "\n")
}
