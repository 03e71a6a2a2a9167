package session

import (
	"fmt"
	"reflect"
	"strings"
	"testing"
)

func TestMergeScalarsLastNonEmptyWins(t *testing.T) {
	rec := MemoryRecord{Name: "小明", Age: 25, Occupation: "程序员"}

	rec.Merge(MemoryRecord{Occupation: "设计师", Birthday: "1999-01-01"})

	if rec.Name != "小明" {
		t.Errorf("Name = %q, want 小明", rec.Name)
	}
	if rec.Age != 25 {
		t.Errorf("Age = %d, want 25", rec.Age)
	}
	if rec.Occupation != "设计师" {
		t.Errorf("Occupation = %q, want 设计师", rec.Occupation)
	}
	if rec.Birthday != "1999-01-01" {
		t.Errorf("Birthday = %q, want 1999-01-01", rec.Birthday)
	}
}

func TestMergeIdempotent(t *testing.T) {
	facts := MemoryRecord{
		Name:         "小明",
		Age:          25,
		FavoriteApps: []string{"Chrome", "VSCode"},
		Preferences:  map[string]string{"编程语言": "Python"},
	}

	var rec MemoryRecord
	rec.Merge(facts)
	once := rec.Clone()
	rec.Merge(facts)

	if !reflect.DeepEqual(rec, once) {
		t.Errorf("second merge changed record:\n got %+v\nwant %+v", rec, once)
	}
}

func TestMergeCollectionsUnion(t *testing.T) {
	rec := MemoryRecord{FavoriteApps: []string{"Chrome", "VSCode"}}

	rec.Merge(MemoryRecord{FavoriteApps: []string{"VSCode", "Slack"}})

	want := []string{"Chrome", "VSCode", "Slack"}
	if !reflect.DeepEqual(rec.FavoriteApps, want) {
		t.Errorf("FavoriteApps = %v, want %v", rec.FavoriteApps, want)
	}
}

func TestMergePreferencesKeyWise(t *testing.T) {
	rec := MemoryRecord{Preferences: map[string]string{"编程语言": "Python", "主题": "深色"}}

	rec.Merge(MemoryRecord{Preferences: map[string]string{"编程语言": "Go", "编辑器": "VSCode"}})

	want := map[string]string{"编程语言": "Go", "主题": "深色", "编辑器": "VSCode"}
	if !reflect.DeepEqual(rec.Preferences, want) {
		t.Errorf("Preferences = %v, want %v", rec.Preferences, want)
	}
}

func TestMergeIntoZeroRecord(t *testing.T) {
	var rec MemoryRecord
	if !rec.IsZero() {
		t.Fatal("fresh record should be zero")
	}

	rec.Merge(MemoryRecord{Name: "小明", Age: 25, FavoriteApps: []string{"Chrome"}})

	if rec.IsZero() {
		t.Fatal("record should carry facts after merge")
	}
	if rec.Name != "小明" || rec.Age != 25 {
		t.Errorf("got %+v, want name 小明 age 25", rec)
	}
}

func TestCloneDoesNotAlias(t *testing.T) {
	rec := MemoryRecord{
		FavoriteApps: []string{"Chrome"},
		Preferences:  map[string]string{"主题": "深色"},
	}

	cp := rec.Clone()
	cp.FavoriteApps[0] = "Safari"
	cp.Preferences["主题"] = "浅色"

	if rec.FavoriteApps[0] != "Chrome" {
		t.Error("clone shares FavoriteApps backing array")
	}
	if rec.Preferences["主题"] != "深色" {
		t.Error("clone shares Preferences map")
	}
}

func TestHistoryBound(t *testing.T) {
	store := NewMemStore(10)
	for i := 0; i < 15; i++ {
		err := store.RecordInteraction("alex", Interaction{
			User:      fmt.Sprintf("消息 %d", i),
			Assistant: fmt.Sprintf("回复 %d", i),
		})
		if err != nil {
			t.Fatalf("RecordInteraction: %v", err)
		}
	}

	history := store.History("alex")
	if len(history) != 10 {
		t.Fatalf("history length = %d, want 10", len(history))
	}
	if history[0].User != "消息 5" {
		t.Errorf("oldest kept entry = %q, want 消息 5", history[0].User)
	}
	if history[9].User != "消息 14" {
		t.Errorf("newest entry = %q, want 消息 14", history[9].User)
	}
}

func TestRecentMessagesAnnotatesToolUse(t *testing.T) {
	store := NewMemStore(10)
	store.RecordInteraction("alex", Interaction{
		User:      "打开Chrome",
		Assistant: "已经帮你打开Chrome了",
		ToolCalls: []ToolInvocationRecord{{Tool: "app_control"}},
	})

	msgs := store.RecentMessages("alex", 3)
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	if msgs[0].Role != "user" || msgs[1].Role != "assistant" {
		t.Errorf("roles = %s/%s, want user/assistant", msgs[0].Role, msgs[1].Role)
	}
	if !strings.Contains(msgs[1].Content, "调用了app_control工具") {
		t.Errorf("assistant content missing tool annotation: %q", msgs[1].Content)
	}
}

func TestMemoryUnknownIdentityIsZero(t *testing.T) {
	store := NewMemStore(10)
	if !store.Memory("nobody").IsZero() {
		t.Error("unknown identity should have a zero record")
	}
	if store.Context("nobody") != "" {
		t.Error("unknown identity should render an empty context")
	}
}

func TestFormatContextSections(t *testing.T) {
	rec := MemoryRecord{
		Name:         "小明",
		Age:          25,
		FavoriteApps: []string{"Chrome", "VSCode"},
		Preferences:  map[string]string{"编程语言": "Python"},
	}

	got := FormatContext(rec)
	for _, want := range []string{
		"用户基本信息：",
		"- 姓名: 小明",
		"- 年龄: 25",
		"用户偏好信息：",
		"- 常用应用: Chrome, VSCode",
		"个人设置: 编程语言: Python",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("context missing %q:\n%s", want, got)
		}
	}
}

func TestFormatContextOmitsAbsentSections(t *testing.T) {
	got := FormatContext(MemoryRecord{Name: "小明"})
	if strings.Contains(got, "用户偏好信息") {
		t.Errorf("context should omit empty preference section:\n%s", got)
	}
	if strings.Contains(got, "职业") || strings.Contains(got, "生日") {
		t.Errorf("context should omit absent fields:\n%s", got)
	}
}

func TestFormatGreeting(t *testing.T) {
	rec := MemoryRecord{Name: "Alex", FavoriteApps: []string{"Chrome", "VSCode", "Slack"}}

	got := FormatGreeting(rec)
	if !strings.Contains(got, "Hi, Alex！我是 Miko🐾") {
		t.Errorf("greeting missing personalized opener:\n%s", got)
	}
	if !strings.Contains(got, "• 打开Chrome") || !strings.Contains(got, "• 打开VSCode") {
		t.Errorf("greeting missing favorite-app suggestions:\n%s", got)
	}
	if strings.Contains(got, "• 打开Slack") {
		t.Errorf("greeting should cap favorite-app suggestions at two:\n%s", got)
	}
}

func TestFormatGreetingUnknownIdentity(t *testing.T) {
	got := FormatGreeting(MemoryRecord{})
	if got != defaultGreeting {
		t.Errorf("zero record should yield capability intro, got:\n%s", got)
	}
}
