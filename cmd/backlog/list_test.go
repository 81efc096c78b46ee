package main

import (
	"testing"
	"unicode/utf8"

	"github.com/Wilson-G/Backlog.md/internal/types"
)

func TestTruncateLine(t *testing.T) {
	tests := []struct {
		name  string
		line  string
		width int
		want  string
	}{
		{"no width", "task-1  Fix login", 0, "task-1  Fix login"},
		{"fits", "task-1", 10, "task-1"},
		{"exact fit", "abcde", 5, "abcde"},
		{"truncated", "abcdefgh", 5, "abcd…"},
		{"multibyte at boundary", "task-1  Résumé überprüfen", 10, "task-1  R…"},
		{"all multibyte", "ありがとうございます", 4, "ありが…"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := truncateLine(tt.line, tt.width)
			if got != tt.want {
				t.Errorf("truncateLine(%q, %d) = %q, want %q", tt.line, tt.width, got, tt.want)
			}
			if !utf8.ValidString(got) {
				t.Errorf("truncateLine(%q, %d) produced invalid UTF-8", tt.line, tt.width)
			}
		})
	}
}

func TestFormatTaskLine(t *testing.T) {
	task := &types.Task{
		ID:        "task-7",
		Title:     "Ship it",
		Priority:  types.PriorityHigh,
		Milestone: "m-2",
	}
	got := formatTaskLine(task, true)
	want := "task-7  Ship it  [high]  (m-2)"
	if got != want {
		t.Errorf("formatTaskLine plain = %q, want %q", got, want)
	}

	task.Branch = "feature/x"
	got = formatTaskLine(task, false)
	want = "  task-7  Ship it  [high]  (m-2)  @feature/x"
	if got != want {
		t.Errorf("formatTaskLine = %q, want %q", got, want)
	}
}
