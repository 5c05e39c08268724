package domain

import (
	"strings"
	"time"
)

// Priority ranks a task. The zero value is PriorityNone.
type Priority string

const (
	PriorityNone   Priority = "none"
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Ordinal maps priorities onto a total order: none < low < medium < high.
func (p Priority) Ordinal() int {
	switch p {
	case PriorityLow:
		return 1
	case PriorityMedium:
		return 2
	case PriorityHigh:
		return 3
	default:
		return 0
	}
}

func (p Priority) Valid() bool {
	switch p {
	case PriorityNone, PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// Recurrence describes how a task repeats. It is stored and returned as-is;
// scheduling repeated instances is a collaborator concern.
type Recurrence string

const (
	RecurrenceNone    Recurrence = "none"
	RecurrenceDaily   Recurrence = "daily"
	RecurrenceWeekly  Recurrence = "weekly"
	RecurrenceMonthly Recurrence = "monthly"
	RecurrenceYearly  Recurrence = "yearly"
)

func (r Recurrence) Valid() bool {
	switch r {
	case RecurrenceNone, RecurrenceDaily, RecurrenceWeekly, RecurrenceMonthly, RecurrenceYearly:
		return true
	}
	return false
}

const (
	maxTitleLen       = 200
	maxDescriptionLen = 1000
	maxTagLen         = 20
)

// Task is the sole durable entity. OwnerID is bound once at creation and is
// never patchable; CompletedAt is non-nil exactly while Completed is true.
type Task struct {
	ID          string     `json:"id"`
	OwnerID     string     `json:"ownerId"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Completed   bool       `json:"completed"`
	Priority    Priority   `json:"priority"`
	Tags        []string   `json:"tags"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
	Recurrence  Recurrence `json:"recurrence"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// Clone returns a deep copy so callers can mutate the result freely.
func (t Task) Clone() Task {
	out := t
	if t.Tags != nil {
		out.Tags = append([]string(nil), t.Tags...)
	}
	if t.DueDate != nil {
		d := *t.DueDate
		out.DueDate = &d
	}
	if t.CompletedAt != nil {
		c := *t.CompletedAt
		out.CompletedAt = &c
	}
	return out
}

// SetCompleted moves the task between the incomplete and complete states and
// maintains CompletedAt across the transition. It reports whether the state
// actually changed.
func (t *Task) SetCompleted(done bool, now time.Time) bool {
	if t.Completed == done {
		return false
	}
	t.Completed = done
	if done {
		at := now
		t.CompletedAt = &at
	} else {
		t.CompletedAt = nil
	}
	return true
}

// NormalizeTitle trims surrounding whitespace and validates length bounds.
func NormalizeTitle(raw string) (string, string) {
	title := strings.TrimSpace(raw)
	if title == "" {
		return "", "title must not be empty"
	}
	if len([]rune(title)) > maxTitleLen {
		return "", "title must be at most 200 characters"
	}
	return title, ""
}

// ValidateDescription checks the optional description length.
func ValidateDescription(desc string) string {
	if len([]rune(desc)) > maxDescriptionLen {
		return "description must be at most 1000 characters"
	}
	return ""
}

// NormalizeTags trims, lowercases and deduplicates tags, preserving first
// occurrence order. The second return value names the first offending tag
// when one fails validation.
func NormalizeTags(raw []string) ([]string, string) {
	if len(raw) == 0 {
		return []string{}, ""
	}
	seen := make(map[string]struct{}, len(raw))
	tags := make([]string, 0, len(raw))
	for _, r := range raw {
		tag := strings.ToLower(strings.TrimSpace(r))
		if tag == "" {
			return nil, "tags must not be empty"
		}
		if len([]rune(tag)) > maxTagLen {
			return nil, "tags must be at most 20 characters"
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		tags = append(tags, tag)
	}
	return tags, ""
}

// HasTag reports whether the task carries the given tag. Stored tags are
// already lowercase, so only the needle is folded.
func (t Task) HasTag(tag string) bool {
	needle := strings.ToLower(strings.TrimSpace(tag))
	for _, have := range t.Tags {
		if have == needle {
			return true
		}
	}
	return false
}
