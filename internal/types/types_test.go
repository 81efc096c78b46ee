package types

import (
	"errors"
	"testing"
)

func TestStripIDPrefix(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"task-12", "12"},
		{"task-12.3", "12.3"},
		{"m-4", "4"},
		{"12", "12"},
		{"12.3", "12.3"},
		{"-5", "-5"},
		{"a1-5", "a1-5"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := StripIDPrefix(tt.in); got != tt.want {
			t.Errorf("StripIDPrefix(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNumericSegments(t *testing.T) {
	tests := []struct {
		in   string
		want []int
		ok   bool
	}{
		{"12", []int{12}, true},
		{"12.3", []int{12, 3}, true},
		{"1.2.3", []int{1, 2, 3}, true},
		{"abc", nil, false},
		{"12.x", nil, false},
		{"", nil, false},
	}
	for _, tt := range tests {
		got, ok := NumericSegments(tt.in)
		if ok != tt.ok {
			t.Errorf("NumericSegments(%q) ok = %v, want %v", tt.in, ok, tt.ok)
			continue
		}
		if !ok {
			continue
		}
		if len(got) != len(tt.want) {
			t.Errorf("NumericSegments(%q) = %v, want %v", tt.in, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("NumericSegments(%q)[%d] = %d, want %d", tt.in, i, got[i], tt.want[i])
			}
		}
	}
}

func TestCompareIDsDesc(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{"task-2", "task-1", true},
		{"task-1", "task-2", false},
		{"task-10", "task-9", true},
		{"task-1.2", "task-1.1", true},
		{"task-1", "task-1", false},
	}
	for _, tt := range tests {
		if got := CompareIDsDesc(tt.a, tt.b); got != tt.want {
			t.Errorf("CompareIDsDesc(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestSortTasksDescByID(t *testing.T) {
	tasks := []*Task{
		{ID: "task-1"},
		{ID: "task-10"},
		{ID: "task-2"},
	}
	SortTasksDescByID(tasks)
	want := []string{"task-10", "task-2", "task-1"}
	for i, id := range want {
		if tasks[i].ID != id {
			t.Errorf("position %d: got %s, want %s", i, tasks[i].ID, id)
		}
	}
}

func TestTaskValidate(t *testing.T) {
	statuses := []string{"To Do", "Done"}
	tests := []struct {
		name    string
		task    Task
		wantErr bool
	}{
		{"valid", Task{ID: "task-1", Title: "x", Status: "To Do"}, false},
		{"missing id", Task{Title: "x"}, true},
		{"missing title", Task{ID: "task-1"}, true},
		{"bad status", Task{ID: "task-1", Title: "x", Status: "Blocked"}, true},
		{"bad priority", Task{ID: "task-1", Title: "x", Priority: "urgent"}, true},
		{"empty status ok", Task{ID: "task-1", Title: "x"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.task.Validate(statuses)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !IsValidationError(err) {
				t.Errorf("Validate() returned non-validation error %T", err)
			}
		})
	}
}

func TestIsCrossBranch(t *testing.T) {
	if (&Task{}).IsCrossBranch() {
		t.Error("task without branch reported cross-branch")
	}
	if !(&Task{Branch: "feature/x"}).IsCrossBranch() {
		t.Error("task with branch not reported cross-branch")
	}
}

func TestErrorTaxonomy(t *testing.T) {
	ve := &ValidationError{Msg: "bad"}
	if !IsValidationError(ve) {
		t.Error("ValidationError not detected")
	}
	if IsValidationError(errors.New("plain")) {
		t.Error("plain error misdetected as validation error")
	}

	pe := &ParseError{Path: "x.md", Err: errors.New("bad yaml")}
	if pe.Unwrap() == nil {
		t.Error("ParseError should unwrap its cause")
	}
}
