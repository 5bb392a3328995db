package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

// ============================================================================
// Script files
// ============================================================================
// Scripts are plain text. Import accepts the text-like formats people keep
// notes in; export writes UTF-8 only.
// ============================================================================

var (
	ErrUnsupportedImportFormat = errors.New("unsupported import format")
	ErrUnsupportedExportFormat = errors.New("unsupported export format")
	ErrUnableToDecode          = errors.New("unable to decode text")
)

var importExtensions = map[string]bool{
	"": true, "txt": true, "text": true, "md": true, "markdown": true,
	"csv": true, "json": true, "xml": true, "yaml": true, "yml": true, "log": true,
}

var exportExtensions = map[string]bool{
	"": true, "txt": true, "text": true, "md": true, "markdown": true,
}

// scriptExt returns the lowercased extension of path without the dot.
func scriptExt(path string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
}

// readScriptFile loads a script from disk.
func readScriptFile(path string) (string, error) {
	path = ExpandPath(path)
	ext := scriptExt(path)
	if !importExtensions[ext] {
		return "", fmt.Errorf("%w: .%s", ErrUnsupportedImportFormat, ext)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read script: %w", err)
	}

	text, err := decodeScript(data)
	if err != nil {
		return "", fmt.Errorf("%s: %w", path, err)
	}
	return text, nil
}

// decodeScript picks the encoding from the data: a UTF-8 BOM or valid UTF-8,
// BOM-marked UTF-16, and Latin-1 for anything else. Text that decodes to
// whitespace only is rejected.
func decodeScript(data []byte) (string, error) {
	var text string

	switch {
	case bytes.HasPrefix(data, []byte{0xEF, 0xBB, 0xBF}):
		text = string(data[3:])
	case looksUTF16(data):
		dec := unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM).NewDecoder()
		out, err := dec.Bytes(data)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrUnableToDecode, err)
		}
		text = string(out)
	case utf8.Valid(data):
		text = string(data)
	default:
		out, err := charmap.ISO8859_1.NewDecoder().Bytes(data)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrUnableToDecode, err)
		}
		text = string(out)
	}

	if strings.TrimSpace(text) == "" {
		return "", ErrUnableToDecode
	}
	return text, nil
}

// looksUTF16 reports whether data starts with a UTF-16 byte order mark.
func looksUTF16(data []byte) bool {
	return bytes.HasPrefix(data, []byte{0xFF, 0xFE}) || bytes.HasPrefix(data, []byte{0xFE, 0xFF})
}

// writeScriptFile writes text as UTF-8, replacing the file atomically.
func writeScriptFile(path, text string) error {
	path = ExpandPath(path)
	ext := scriptExt(path)
	if !exportExtensions[ext] {
		return fmt.Errorf("%w: .%s", ErrUnsupportedExportFormat, ext)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".notchprompt-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.WriteString(text); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write script: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close script: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("chmod script: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace script: %w", err)
	}
	return nil
}
