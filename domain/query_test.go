package domain

import (
	"testing"
	"time"
)

func ts(day int) time.Time {
	return time.Date(2026, 1, day, 0, 0, 0, 0, time.UTC)
}

func tsp(day int) *time.Time {
	v := ts(day)
	return &v
}

func TestFilterMatchesAllConditionsAnd(t *testing.T) {
	completed := true
	prio := PriorityHigh
	f := Filter{
		Completed: &completed,
		Priority:  &prio,
		Tags:      []string{"work"},
		DueFrom:   tsp(1),
		DueTo:     tsp(31),
		Search:    "report",
	}

	match := Task{
		Title:     "Quarterly REPORT",
		Completed: true,
		Priority:  PriorityHigh,
		Tags:      []string{"work"},
		DueDate:   tsp(15),
	}
	if !f.Matches(match) {
		t.Fatal("expected task to match compound filter")
	}

	noTag := match.Clone()
	noTag.Tags = []string{"home"}
	if f.Matches(noTag) {
		t.Fatal("tag mismatch must fail the whole filter")
	}

	outOfRange := match.Clone()
	outOfRange.DueDate = tsp(15)
	*outOfRange.DueDate = ts(15).AddDate(0, 2, 0)
	if f.Matches(outOfRange) {
		t.Fatal("due date outside range must fail the filter")
	}
}

func TestFilterTagsMatchAny(t *testing.T) {
	f := Filter{Tags: []string{"work", "urgent"}}
	if !f.Matches(Task{Tags: []string{"urgent"}}) {
		t.Fatal("expected any-of tag semantics")
	}
	if f.Matches(Task{Tags: []string{"home"}}) {
		t.Fatal("unexpected tag match")
	}
}

func TestFilterSearchIsCaseInsensitive(t *testing.T) {
	f := Filter{Search: "MILK"}
	if !f.Matches(Task{Title: "buy milk"}) {
		t.Fatal("expected title substring match")
	}
	if !f.Matches(Task{Title: "errands", Description: "Milk and eggs"}) {
		t.Fatal("expected description substring match")
	}
	if f.Matches(Task{Title: "errands"}) {
		t.Fatal("unexpected search match")
	}
}

func TestFilterDueRangeExcludesUndated(t *testing.T) {
	f := Filter{DueFrom: tsp(1)}
	if f.Matches(Task{}) {
		t.Fatal("task without a due date must not match a due range")
	}
}

func TestSortTasksTieBreakOnID(t *testing.T) {
	created := ts(1)
	tasks := []Task{
		{ID: "b", CreatedAt: created},
		{ID: "a", CreatedAt: created},
		{ID: "c", CreatedAt: created},
	}
	SortTasks(tasks, Sort{Key: SortByCreatedAt})
	if tasks[0].ID != "a" || tasks[1].ID != "b" || tasks[2].ID != "c" {
		t.Fatalf("expected id-ascending tie break, got %s %s %s", tasks[0].ID, tasks[1].ID, tasks[2].ID)
	}

	// Equal keys keep id ascending even when the direction flips.
	SortTasks(tasks, Sort{Key: SortByCreatedAt, Desc: true})
	if tasks[0].ID != "a" || tasks[1].ID != "b" || tasks[2].ID != "c" {
		t.Fatalf("descending tie break changed id order: %s %s %s", tasks[0].ID, tasks[1].ID, tasks[2].ID)
	}
}

func TestSortTasksByPriority(t *testing.T) {
	tasks := []Task{
		{ID: "a", Priority: PriorityLow},
		{ID: "b", Priority: PriorityHigh},
		{ID: "c", Priority: PriorityNone},
	}
	SortTasks(tasks, Sort{Key: SortByPriority, Desc: true})
	if tasks[0].ID != "b" || tasks[1].ID != "a" || tasks[2].ID != "c" {
		t.Fatalf("unexpected priority order: %s %s %s", tasks[0].ID, tasks[1].ID, tasks[2].ID)
	}
}

func TestSortTasksNilDueDatesAlwaysLast(t *testing.T) {
	tasks := []Task{
		{ID: "undated"},
		{ID: "early", DueDate: tsp(1)},
		{ID: "late", DueDate: tsp(20)},
	}

	SortTasks(tasks, Sort{Key: SortByDueDate})
	if tasks[2].ID != "undated" {
		t.Fatalf("ascending: expected undated last, got %s", tasks[2].ID)
	}
	if tasks[0].ID != "early" {
		t.Fatalf("ascending: expected early first, got %s", tasks[0].ID)
	}

	SortTasks(tasks, Sort{Key: SortByDueDate, Desc: true})
	if tasks[2].ID != "undated" {
		t.Fatalf("descending: expected undated last, got %s", tasks[2].ID)
	}
	if tasks[0].ID != "late" {
		t.Fatalf("descending: expected late first, got %s", tasks[0].ID)
	}
}

func TestSortTasksIsDeterministic(t *testing.T) {
	build := func() []Task {
		return []Task{
			{ID: "3", Title: "b", CreatedAt: ts(2)},
			{ID: "1", Title: "b", CreatedAt: ts(2)},
			{ID: "2", Title: "a", CreatedAt: ts(1)},
		}
	}
	first := build()
	second := build()
	SortTasks(first, Sort{Key: SortByTitle})
	SortTasks(second, Sort{Key: SortByTitle})
	for i := range first {
		if first[i].ID != second[i].ID {
			t.Fatalf("orders diverged at %d: %s vs %s", i, first[i].ID, second[i].ID)
		}
	}
}

func TestPaginate(t *testing.T) {
	tasks := []Task{{ID: "1"}, {ID: "2"}, {ID: "3"}, {ID: "4"}}

	window := Paginate(tasks, Page{Offset: 1, Limit: 2})
	if len(window) != 2 || window[0].ID != "2" || window[1].ID != "3" {
		t.Fatalf("unexpected window: %v", window)
	}

	if got := Paginate(tasks, Page{Offset: 10, Limit: 2}); len(got) != 0 {
		t.Fatalf("expected empty window past the end, got %v", got)
	}

	if got := Paginate(tasks, Page{Offset: 2}); len(got) != 2 {
		t.Fatalf("expected remainder with no limit, got %v", got)
	}

	if got := Paginate(tasks, Page{Offset: -5, Limit: 1}); len(got) != 1 || got[0].ID != "1" {
		t.Fatalf("expected negative offset clamped to start, got %v", got)
	}
}
