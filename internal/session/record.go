// Package session provides per-identity conversation history and
// durable user memory.
package session

import (
	"slices"
	"sort"
	"time"
)

// ToolInvocationRecord captures one tool call for audit and history
// rendering. It is never re-executed.
type ToolInvocationRecord struct {
	Tool      string         `json:"tool"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// Interaction is one completed user/assistant exchange. Immutable once
// recorded.
type Interaction struct {
	User      string                 `json:"user"`
	Assistant string                 `json:"assistant"`
	Timestamp time.Time              `json:"timestamp"`
	ToolCalls []ToolInvocationRecord `json:"tool_calls,omitempty"`
}

// MemoryRecord holds accumulated durable facts about one identity.
type MemoryRecord struct {
	Name             string            `json:"name,omitempty"`
	Age              int               `json:"age,omitempty"`
	Occupation       string            `json:"occupation,omitempty"`
	Birthday         string            `json:"birthday,omitempty"`
	WorkHabits       string            `json:"work_habits,omitempty"`
	FavoriteApps     []string          `json:"favorite_apps,omitempty"`
	RecentActivities []string          `json:"recent_activities,omitempty"`
	Preferences      map[string]string `json:"preferences,omitempty"`
}

// IsZero reports whether the record carries no facts at all.
func (r MemoryRecord) IsZero() bool {
	return r.Name == "" && r.Age == 0 && r.Occupation == "" && r.Birthday == "" &&
		r.WorkHabits == "" && len(r.FavoriteApps) == 0 &&
		len(r.RecentActivities) == 0 && len(r.Preferences) == 0
}

// Merge folds in into r. Scalar fields keep the most recent non-empty
// value; collection fields are a deduplicated union; the preferences
// map merges key-wise with new values overwriting existing keys.
// Merging the same facts twice is a no-op.
func (r *MemoryRecord) Merge(in MemoryRecord) {
	if in.Name != "" {
		r.Name = in.Name
	}
	if in.Age != 0 {
		r.Age = in.Age
	}
	if in.Occupation != "" {
		r.Occupation = in.Occupation
	}
	if in.Birthday != "" {
		r.Birthday = in.Birthday
	}
	if in.WorkHabits != "" {
		r.WorkHabits = in.WorkHabits
	}

	r.FavoriteApps = mergeSet(r.FavoriteApps, in.FavoriteApps)
	r.RecentActivities = mergeSet(r.RecentActivities, in.RecentActivities)

	if len(in.Preferences) > 0 {
		if r.Preferences == nil {
			r.Preferences = make(map[string]string, len(in.Preferences))
		}
		for k, v := range in.Preferences {
			r.Preferences[k] = v
		}
	}
}

// Clone returns a deep copy so callers can hold records without
// aliasing store internals.
func (r MemoryRecord) Clone() MemoryRecord {
	out := r
	out.FavoriteApps = slices.Clone(r.FavoriteApps)
	out.RecentActivities = slices.Clone(r.RecentActivities)
	if r.Preferences != nil {
		out.Preferences = make(map[string]string, len(r.Preferences))
		for k, v := range r.Preferences {
			out.Preferences[k] = v
		}
	}
	return out
}

// mergeSet unions b into a, dropping duplicates. Existing order is
// preserved; new distinct elements are appended.
func mergeSet(a, b []string) []string {
	for _, v := range b {
		if v == "" || slices.Contains(a, v) {
			continue
		}
		a = append(a, v)
	}
	return a
}

// sortedKeys returns map keys in stable order for rendering.
func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
