package domain

import (
	"strings"
	"testing"
	"time"
)

func TestNormalizeTitle(t *testing.T) {
	title, problem := NormalizeTitle("  Buy milk  ")
	if problem != "" {
		t.Fatalf("unexpected problem: %s", problem)
	}
	if title != "Buy milk" {
		t.Fatalf("expected trimmed title, got %q", title)
	}

	if _, problem := NormalizeTitle("   "); problem == "" {
		t.Fatal("expected whitespace-only title to be rejected")
	}
	if _, problem := NormalizeTitle(""); problem == "" {
		t.Fatal("expected empty title to be rejected")
	}

	atLimit := strings.Repeat("x", 200)
	if _, problem := NormalizeTitle(atLimit); problem != "" {
		t.Fatalf("expected 200-char title to pass, got: %s", problem)
	}
	if _, problem := NormalizeTitle(atLimit + "x"); problem == "" {
		t.Fatal("expected 201-char title to be rejected")
	}
}

func TestNormalizeTitleCountsRunes(t *testing.T) {
	// 200 multibyte runes are within bounds even though the byte length is not.
	title := strings.Repeat("日", 200)
	if _, problem := NormalizeTitle(title); problem != "" {
		t.Fatalf("expected 200-rune title to pass, got: %s", problem)
	}
}

func TestValidateDescription(t *testing.T) {
	if problem := ValidateDescription(""); problem != "" {
		t.Fatalf("empty description should pass, got: %s", problem)
	}
	if problem := ValidateDescription(strings.Repeat("d", 1000)); problem != "" {
		t.Fatalf("1000-char description should pass, got: %s", problem)
	}
	if problem := ValidateDescription(strings.Repeat("d", 1001)); problem == "" {
		t.Fatal("expected 1001-char description to be rejected")
	}
}

func TestNormalizeTags(t *testing.T) {
	tags, problem := NormalizeTags([]string{"Work", "work", " URGENT ", "home"})
	if problem != "" {
		t.Fatalf("unexpected problem: %s", problem)
	}
	want := []string{"work", "urgent", "home"}
	if len(tags) != len(want) {
		t.Fatalf("expected %v, got %v", want, tags)
	}
	for i := range want {
		if tags[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, tags)
		}
	}

	if _, problem := NormalizeTags([]string{"ok", "  "}); problem == "" {
		t.Fatal("expected blank tag to be rejected")
	}
	if _, problem := NormalizeTags([]string{strings.Repeat("t", 21)}); problem == "" {
		t.Fatal("expected oversize tag to be rejected")
	}

	tags, problem = NormalizeTags(nil)
	if problem != "" || tags == nil || len(tags) != 0 {
		t.Fatalf("expected empty slice for nil input, got %v (%s)", tags, problem)
	}
}

func TestSetCompletedMaintainsCompletedAt(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	task := Task{ID: "t1"}

	if !task.SetCompleted(true, now) {
		t.Fatal("expected transition to completed")
	}
	if task.CompletedAt == nil || !task.CompletedAt.Equal(now) {
		t.Fatalf("expected completedAt %v, got %v", now, task.CompletedAt)
	}

	if task.SetCompleted(true, now.Add(time.Hour)) {
		t.Fatal("expected no transition when already completed")
	}
	if !task.CompletedAt.Equal(now) {
		t.Fatal("completedAt must not move on a no-op")
	}

	if !task.SetCompleted(false, now.Add(2*time.Hour)) {
		t.Fatal("expected transition back to incomplete")
	}
	if task.CompletedAt != nil {
		t.Fatal("expected completedAt cleared on reopen")
	}
}

func TestCloneIsDeep(t *testing.T) {
	due := time.Now().UTC()
	orig := Task{ID: "t1", Tags: []string{"a"}, DueDate: &due}
	clone := orig.Clone()

	clone.Tags[0] = "b"
	*clone.DueDate = due.Add(time.Hour)

	if orig.Tags[0] != "a" {
		t.Fatal("clone shares tags slice with original")
	}
	if !orig.DueDate.Equal(due) {
		t.Fatal("clone shares due date pointer with original")
	}
}

func TestPriorityOrdinal(t *testing.T) {
	if PriorityNone.Ordinal() >= PriorityLow.Ordinal() ||
		PriorityLow.Ordinal() >= PriorityMedium.Ordinal() ||
		PriorityMedium.Ordinal() >= PriorityHigh.Ordinal() {
		t.Fatal("priority ordinals are not strictly increasing")
	}
	if Priority("bogus").Valid() {
		t.Fatal("unknown priority must not validate")
	}
}

func TestHasTagFoldsNeedle(t *testing.T) {
	task := Task{Tags: []string{"work"}}
	if !task.HasTag(" WORK ") {
		t.Fatal("expected folded needle to match stored tag")
	}
	if task.HasTag("home") {
		t.Fatal("unexpected match")
	}
}
