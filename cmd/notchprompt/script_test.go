package main

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestReadScriptFile_Extensions(t *testing.T) {
	dir := t.TempDir()

	for _, name := range []string{"talk", "talk.txt", "talk.MD", "notes.markdown", "data.csv", "cfg.yml"} {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte("hello"), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
		got, err := readScriptFile(path)
		if err != nil || got != "hello" {
			t.Fatalf("readScriptFile(%s) = %q, %v", name, got, err)
		}
	}

	path := filepath.Join(dir, "slides.pdf")
	if err := os.WriteFile(path, []byte("%PDF"), 0o644); err != nil {
		t.Fatalf("write pdf: %v", err)
	}
	if _, err := readScriptFile(path); !errors.Is(err, ErrUnsupportedImportFormat) {
		t.Fatalf("err = %v, want ErrUnsupportedImportFormat", err)
	}
}

func TestDecodeScript(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want string
	}{
		{"utf8", []byte("héllo wörld"), "héllo wörld"},
		{"utf8 bom", append([]byte{0xEF, 0xBB, 0xBF}, "hi"...), "hi"},
		{"utf16le bom", []byte{0xFF, 0xFE, 'h', 0, 'i', 0}, "hi"},
		{"utf16be bom", []byte{0xFE, 0xFF, 0, 'h', 0, 'i'}, "hi"},
		{"latin1", []byte{'c', 'a', 'f', 0xE9}, "café"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeScript(tt.data)
			if err != nil {
				t.Fatalf("decodeScript: %v", err)
			}
			if got != tt.want {
				t.Fatalf("decodeScript = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDecodeScript_WhitespaceOnly(t *testing.T) {
	for _, data := range [][]byte{nil, []byte("   \n\t\n"), {0xEF, 0xBB, 0xBF, ' '}} {
		if _, err := decodeScript(data); !errors.Is(err, ErrUnableToDecode) {
			t.Fatalf("decodeScript(%q) err = %v, want ErrUnableToDecode", data, err)
		}
	}
}

func TestWriteScriptFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.md")

	if err := os.WriteFile(path, []byte("old contents that are longer"), 0o600); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := writeScriptFile(path, "new script"); err != nil {
		t.Fatalf("writeScriptFile: %v", err)
	}

	b, err := os.ReadFile(path)
	if err != nil || string(b) != "new script" {
		t.Fatalf("contents = %q, %v", b, err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0o644 {
		t.Fatalf("mode = %v, want 0644", info.Mode().Perm())
	}

	// No temp files left behind.
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".notchprompt-") {
			t.Fatalf("temp file left behind: %s", e.Name())
		}
	}

	// Round trip through the reader.
	got, err := readScriptFile(path)
	if err != nil || got != "new script" {
		t.Fatalf("readScriptFile = %q, %v", got, err)
	}
}

func TestWriteScriptFile_RejectsFormats(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	if err := writeScriptFile(path, "x"); !errors.Is(err, ErrUnsupportedExportFormat) {
		t.Fatalf("err = %v, want ErrUnsupportedExportFormat", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("file created for rejected format")
	}
}
