package editing

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFixture(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestEditFile(t *testing.T) {
	tests := []struct {
		name       string
		file       string
		content    string
		oldString  string
		newString  string
		replaceAll bool
		want       string
		wantErr    string
	}{
		{
			name:      "Unique replacement",
			file:      "main.go",
			content:   "package main\n\nfunc a() int { return 1 }\n",
			oldString: "return 1",
			newString: "return 2",
			want:      "package main\n\nfunc a() int { return 2 }\n",
		},
		{
			name:      "Ambiguous match",
			file:      "main.go",
			content:   "x := 1\nx := 1\n",
			oldString: "x := 1",
			newString: "x := 2",
			wantErr:   "appears 2 times (lines [1 2])",
		},
		{
			name:       "Replace all",
			file:       "main.go",
			content:    "x := 1\nx := 1\n",
			oldString:  "x := 1",
			newString:  "x := 2",
			replaceAll: true,
			want:       "x := 2\nx := 2\n",
		},
		{
			name:      "Whitespace mismatch",
			file:      "main.go",
			content:   "func a() {\n\treturn\n}\n",
			oldString: "func a() {\n    return\n}",
			newString: "func a() {}",
			wantErr:   "different whitespace",
		},
		{
			name:      "Generated file",
			file:      "gen.go",
			content:   "// Code generated by stringer. DO NOT EDIT.\npackage x\n",
			oldString: "package x",
			newString: "package y",
			wantErr:   "looks generated",
		},
		{
			name:      "Binary file",
			file:      "logo.png",
			content:   "png",
			oldString: "png",
			newString: "gif",
			wantErr:   "not a text file",
		},
		{
			name:      "Identical strings",
			file:      "a.txt",
			content:   "same",
			oldString: "same",
			newString: "same",
			wantErr:   "identical",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeFixture(t, dir, tt.file, tt.content)

			_, err := editFileImpl(dir, tt.file, tt.oldString, tt.newString, tt.replaceAll)
			got, readErr := os.ReadFile(filepath.Join(dir, tt.file))
			if readErr != nil {
				t.Fatal(readErr)
			}
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("error = %v, want it to contain %q", err, tt.wantErr)
				}
				if string(got) != tt.content {
					t.Errorf("file changed despite the error: %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("content = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEditFileStaysInsideRoot(t *testing.T) {
	if _, err := editFileImpl(t.TempDir(), "../outside.go", "a", "b", false); err == nil {
		t.Fatal("expected an error for a path outside the root")
	}
}

func TestEditToolIsTracked(t *testing.T) {
	tool := NewEditFileTool("/repo")
	if !tool.Modifies || tool.PathArg != "path" || tool.Retryable {
		t.Errorf("edit_file must be tracked and not retried: %+v", tool)
	}
}
