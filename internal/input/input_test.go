package input

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestIsBulkSource(t *testing.T) {
	tests := []struct {
		arg  string
		want bool
	}{
		{"-", true},
		{"@monday.txt", true},
		{"@/abs/path.txt", true},
		{"bench press", false},
		{"", false},
		{"5", false},
	}
	for _, tt := range tests {
		if got := IsBulkSource(tt.arg); got != tt.want {
			t.Errorf("IsBulkSource(%q) = %v, want %v", tt.arg, got, tt.want)
		}
	}
}

func TestReadLinesFromReader(t *testing.T) {
	in := strings.NewReader(`# monday upper body
bench press 5 100

  overhead press 8 60
# accessory work
barbell row 10 80
`)
	lines := ReadLinesFromReader(in)

	want := []string{"bench press 5 100", "overhead press 8 60", "barbell row 10 80"}
	if len(lines) != len(want) {
		t.Fatalf("got %d lines, want %d: %v", len(lines), len(want), lines)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, lines[i], want[i])
		}
	}
}

func TestLinesFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sets.txt")
	content := "squat 5 140\nsquat 5 140\n# done\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	lines, err := Lines("@" + path)
	if err != nil {
		t.Fatalf("Lines: %v", err)
	}
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2: %v", len(lines), lines)
	}
}

func TestLinesErrors(t *testing.T) {
	if _, err := Lines("@" + filepath.Join(t.TempDir(), "missing.txt")); err == nil {
		t.Error("Lines should fail for a missing file")
	}
	if _, err := Lines("bench press"); err == nil {
		t.Error("Lines should fail for a non-bulk argument")
	}
}

func TestParseSetLine(t *testing.T) {
	tests := []struct {
		line    string
		want    SetLine
		wantErr bool
	}{
		{line: "squat 5 140", want: SetLine{Exercise: "squat", Reps: 5, Weight: 140}},
		{line: "bench press 8 72.5", want: SetLine{Exercise: "bench press", Reps: 8, Weight: 72.5}},
		{line: "close grip bench press 12 50", want: SetLine{Exercise: "close grip bench press", Reps: 12, Weight: 50}},
		{line: "chin up 10 0", want: SetLine{Exercise: "chin up", Reps: 10, Weight: 0}},

		{line: "squat 5", wantErr: true},
		{line: "squat", wantErr: true},
		{line: "", wantErr: true},
		{line: "squat five 140", wantErr: true},
		{line: "squat 5 heavy", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, err := ParseSetLine(tt.line)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseSetLine(%q) = %+v, want error", tt.line, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseSetLine(%q): %v", tt.line, err)
			}
			if got != tt.want {
				t.Errorf("ParseSetLine(%q) = %+v, want %+v", tt.line, got, tt.want)
			}
		})
	}
}
