// Package extract turns journal files into entry text.
package extract

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrUnsupported is returned for file types the inbox does not import.
var ErrUnsupported = errors.New("unsupported file type")

// DefaultExtensions are the file types imported when none are configured.
var DefaultExtensions = []string{".txt", ".md", ".pdf", ".docx"}

// Extractor extracts plain text from journal files.
type Extractor struct{}

// NewExtractor returns a new Extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Supported reports whether files with extension ext can be extracted.
func Supported(ext string) bool {
	switch normalizeExt(ext) {
	case ".txt", ".md", ".markdown", ".pdf", ".docx":
		return true
	}
	return false
}

// Extract reads the file at path and returns its text with surrounding whitespace trimmed.
func (e *Extractor) Extract(path string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}
	return e.ExtractBytes(content, filepath.Ext(path))
}

// ExtractBytes extracts text from content based on the file extension (with leading dot).
func (e *Extractor) ExtractBytes(content []byte, ext string) (string, error) {
	var (
		text string
		err  error
	)
	switch normalizeExt(ext) {
	case ".pdf":
		text, err = extractPDF(content)
	case ".docx":
		text, err = extractDOCX(content)
	case ".txt", ".md", ".markdown":
		text = extractPlain(content)
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupported, ext)
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(ext)
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}
