package fs

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestWalkerIncludeExclude(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "hr", "leave.md"), "vacation")
	writeFile(t, filepath.Join(root, "eng", "deploy.txt"), "deploy")
	writeFile(t, filepath.Join(root, "eng", "build.go"), "package main")
	writeFile(t, filepath.Join(root, ".git", "notes.txt"), "ignored")

	w := NewWalker([]string{"**/*.md", "**/*.txt"}, []string{"**/.git/**", ".git/**"})
	files, err := w.Walk(root)
	if err != nil {
		t.Fatal(err)
	}

	if len(files) != 2 {
		t.Fatalf("expected 2 files, got %d: %+v", len(files), files)
	}
	if files[0].RelPath != "eng/deploy.txt" || files[1].RelPath != "hr/leave.md" {
		t.Errorf("unexpected order: %s, %s", files[0].RelPath, files[1].RelPath)
	}
	if !filepath.IsAbs(files[0].Path) {
		t.Errorf("expected absolute path, got %s", files[0].Path)
	}
}

func TestWalkerSingleFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "one.txt")
	writeFile(t, path, "hello")

	files, err := NewWalker(nil, nil).Walk(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 1 || files[0].RelPath != "one.txt" {
		t.Fatalf("unexpected result %+v", files)
	}
}

func TestReadText(t *testing.T) {
	dir := t.TempDir()
	textPath := filepath.Join(dir, "a.txt")
	writeFile(t, textPath, "plain words here\n")

	got, err := ReadText(textPath)
	if err != nil {
		t.Fatal(err)
	}
	if got != "plain words here\n" {
		t.Errorf("unexpected content %q", got)
	}

	binPath := filepath.Join(dir, "b.bin")
	if err := os.WriteFile(binPath, []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a, 0, 0, 0, 0x0d}, 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadText(binPath); !errors.Is(err, ErrNotText) {
		t.Errorf("expected ErrNotText, got %v", err)
	}
}
