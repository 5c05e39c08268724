package domain

import (
	"sort"
	"strings"
	"time"
)

// SortKey selects the primary ordering of a task listing.
type SortKey string

const (
	SortByCreatedAt SortKey = "created_at"
	SortByPriority  SortKey = "priority"
	SortByTitle     SortKey = "title"
	SortByDueDate   SortKey = "due_date"
)

func (k SortKey) Valid() bool {
	switch k {
	case SortByCreatedAt, SortByPriority, SortByTitle, SortByDueDate:
		return true
	}
	return false
}

// Sort combines a key with a direction. Every ordering breaks ties on task
// ID ascending so repeated listings are deterministic.
type Sort struct {
	Key  SortKey
	Desc bool
}

// Filter narrows a listing. All set conditions apply as a logical AND; Tags
// matches when the task carries any of the given tags.
type Filter struct {
	Completed *bool
	Priority  *Priority
	Tags      []string
	DueFrom   *time.Time
	DueTo     *time.Time
	Search    string
}

// Page is an offset+limit window over the sorted result. Limit <= 0 means
// no limit. Ordering by a stable composite key keeps the window consistent
// when unrelated records change between requests.
type Page struct {
	Offset int
	Limit  int
}

// Matches reports whether the task satisfies every set condition.
func (f Filter) Matches(t Task) bool {
	if f.Completed != nil && t.Completed != *f.Completed {
		return false
	}
	if f.Priority != nil && t.Priority != *f.Priority {
		return false
	}
	if len(f.Tags) > 0 {
		any := false
		for _, tag := range f.Tags {
			if t.HasTag(tag) {
				any = true
				break
			}
		}
		if !any {
			return false
		}
	}
	if f.DueFrom != nil && (t.DueDate == nil || t.DueDate.Before(*f.DueFrom)) {
		return false
	}
	if f.DueTo != nil && (t.DueDate == nil || t.DueDate.After(*f.DueTo)) {
		return false
	}
	if f.Search != "" {
		needle := strings.ToLower(f.Search)
		if !strings.Contains(strings.ToLower(t.Title), needle) &&
			!strings.Contains(strings.ToLower(t.Description), needle) {
			return false
		}
	}
	return true
}

// SortTasks orders tasks in place per s with the ID tie-break.
func SortTasks(tasks []Task, s Sort) {
	sort.Slice(tasks, func(i, j int) bool {
		return lessTask(tasks[i], tasks[j], s)
	})
}

func lessTask(a, b Task, s Sort) bool {
	cmp := 0
	switch s.Key {
	case SortByPriority:
		cmp = a.Priority.Ordinal() - b.Priority.Ordinal()
	case SortByTitle:
		cmp = strings.Compare(a.Title, b.Title)
	case SortByDueDate:
		// Tasks without a due date sort after dated ones in either direction.
		switch {
		case a.DueDate == nil && b.DueDate == nil:
			cmp = 0
		case a.DueDate == nil:
			return false
		case b.DueDate == nil:
			return true
		default:
			cmp = compareTimes(*a.DueDate, *b.DueDate)
		}
	default:
		cmp = compareTimes(a.CreatedAt, b.CreatedAt)
	}
	if s.Desc {
		cmp = -cmp
	}
	if cmp != 0 {
		return cmp < 0
	}
	return a.ID < b.ID
}

func compareTimes(a, b time.Time) int {
	switch {
	case a.Before(b):
		return -1
	case a.After(b):
		return 1
	default:
		return 0
	}
}

// Paginate returns the window of tasks selected by p.
func Paginate(tasks []Task, p Page) []Task {
	if p.Offset < 0 {
		p.Offset = 0
	}
	if p.Offset >= len(tasks) {
		return []Task{}
	}
	end := len(tasks)
	if p.Limit > 0 && p.Offset+p.Limit < end {
		end = p.Offset + p.Limit
	}
	return tasks[p.Offset:end]
}
