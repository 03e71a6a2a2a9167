package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

// extractionTriggers is the fixed keyword set signaling that the user
// disclosed personal or preference information worth remembering.
var extractionTriggers = []string{
	"喜欢", "常用", "习惯", "偏好", "设置", "记住", "经常", "总是", "平时",
	"我叫", "我是", "我的名字", "年龄", "岁", "生日", "职业", "工作", "学生",
}

// ExtractFunc performs the LLM call that turns a completed exchange
// into structured facts. Wired from main with the actual client so the
// store stays free of model concerns. A nil result means the exchange
// contained nothing durable.
type ExtractFunc func(ctx context.Context, userText, assistantText string) (*MemoryRecord, error)

// Extractor runs fact extraction after each interaction. It is
// best-effort: every failure is logged and swallowed, never reaching
// the user-facing path.
type Extractor struct {
	store   Store
	extract ExtractFunc
	logger  *slog.Logger
	timeout time.Duration
}

// NewExtractor creates an extractor bound to a session store.
func NewExtractor(store Store, extract ExtractFunc, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{
		store:   store,
		extract: extract,
		logger:  logger,
		timeout: 30 * time.Second,
	}
}

// SetTimeout configures the LLM call timeout for extraction.
func (e *Extractor) SetTimeout(d time.Duration) {
	e.timeout = d
}

// ShouldExtract is the keyword gate: only exchanges whose user text
// matches a trigger word are sent to the model.
func (e *Extractor) ShouldExtract(userText string) bool {
	for _, kw := range extractionTriggers {
		if strings.Contains(userText, kw) {
			return true
		}
	}
	return false
}

// Process runs the gate, the extraction call, and the merge. The
// returned error is for observability only; callers must not let it
// affect the turn's answer.
func (e *Extractor) Process(ctx context.Context, identity, userText, assistantText string) error {
	if e.extract == nil || !e.ShouldExtract(userText) {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	rec, err := e.extract(ctx, userText, assistantText)
	if err != nil {
		e.logger.Warn("fact extraction failed", "identity", identity, "error", err)
		return fmt.Errorf("extract: %w", err)
	}
	if rec == nil || rec.IsZero() {
		e.logger.Debug("extraction found nothing to persist", "identity", identity)
		return nil
	}

	if err := e.store.MergeMemory(identity, *rec); err != nil {
		e.logger.Warn("memory merge failed", "identity", identity, "error", err)
		return fmt.Errorf("merge: %w", err)
	}

	e.logger.Info("memory updated", "identity", identity)
	return nil
}

// ParseExtraction decodes the model's extraction output into a record.
// Markdown fences are stripped and a literal "null" means no facts.
// The model is asked for a constrained schema but numbers sometimes
// arrive as strings; age tolerates both.
func ParseExtraction(raw string) (*MemoryRecord, error) {
	text := strings.TrimSpace(raw)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	if text == "" || strings.EqualFold(text, "null") {
		return nil, nil
	}

	var aux struct {
		Name             string         `json:"name"`
		Age              any            `json:"age"`
		Occupation       string         `json:"occupation"`
		Birthday         string         `json:"birthday"`
		WorkHabits       string         `json:"work_habits"`
		FavoriteApps     []string       `json:"favorite_apps"`
		RecentActivities []string       `json:"recent_activities"`
		Preferences      map[string]any `json:"preferences"`
	}
	if err := json.Unmarshal([]byte(text), &aux); err != nil {
		return nil, fmt.Errorf("parse extraction result: %w", err)
	}

	rec := &MemoryRecord{
		Name:             aux.Name,
		Occupation:       aux.Occupation,
		Birthday:         aux.Birthday,
		WorkHabits:       aux.WorkHabits,
		FavoriteApps:     aux.FavoriteApps,
		RecentActivities: aux.RecentActivities,
	}

	switch v := aux.Age.(type) {
	case float64:
		rec.Age = int(v)
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			rec.Age = n
		}
	}

	if len(aux.Preferences) > 0 {
		rec.Preferences = make(map[string]string, len(aux.Preferences))
		for k, v := range aux.Preferences {
			if s, ok := v.(string); ok {
				rec.Preferences[k] = s
			}
		}
	}

	return rec, nil
}
