package extract

import (
	"archive/zip"
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

const wordNS = `xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"`

// docxBody wraps paragraphs (already-marked-up <w:p> elements) in a document.
func docxBody(paragraphs string) string {
	return `<w:document ` + wordNS + `><w:body>` + paragraphs + `</w:body></w:document>`
}

// minimalDocx builds a .docx zip with the given parts.
func minimalDocx(t *testing.T, parts map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, body := range parts {
		fw, err := w.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := fw.Write([]byte(body)); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestExtractBytes_Plain(t *testing.T) {
	e := NewExtractor()
	tests := []struct {
		name    string
		content []byte
		ext     string
		want    string
	}{
		{"txt", []byte("Hello world\nLine 2\n"), ".txt", "Hello world\nLine 2"},
		{"markdown utf8", []byte("# Caf\xc3\xa9"), ".md", "# Café"},
		{"uppercase ext", []byte("shout"), ".TXT", "shout"},
		{"invalid utf8", []byte("hello\x80world"), ".txt", "hello\ufffdworld"},
		{"byte order mark", []byte("\xef\xbb\xbfdream"), ".txt", "dream"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.ExtractBytes(tt.content, tt.ext)
			if err != nil {
				t.Fatalf("ExtractBytes: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExtractBytes_Unsupported(t *testing.T) {
	e := NewExtractor()
	for _, ext := range []string{".xlsx", ".exe", ""} {
		if _, err := e.ExtractBytes([]byte("x"), ext); !errors.Is(err, ErrUnsupported) {
			t.Errorf("%q: expected ErrUnsupported, got %v", ext, err)
		}
	}
}

func TestSupported(t *testing.T) {
	tests := map[string]bool{
		".txt": true, "md": true, ".PDF": true, ".docx": true,
		".pptx": false, ".xlsx": false, "": false,
	}
	for ext, want := range tests {
		if got := Supported(ext); got != want {
			t.Errorf("Supported(%q) = %v, want %v", ext, got, want)
		}
	}
}

func TestExtractBytes_DOCX(t *testing.T) {
	e := NewExtractor()
	content := minimalDocx(t, map[string]string{
		"word/document.xml": docxBody(
			`<w:p w:rsidR="00AB"><w:r><w:t>I was in</w:t></w:r><w:r><w:t xml:space="preserve"> a house</w:t></w:r></w:p>` +
				`<w:p><w:r><w:t>with no doors.</w:t></w:r></w:p>` +
				`<w:p></w:p>`),
	})
	got, err := e.ExtractBytes(content, ".docx")
	if err != nil {
		t.Fatalf("ExtractBytes: %v", err)
	}
	if want := "I was in a house\nwith no doors."; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestExtractBytes_DOCXContentTypes(t *testing.T) {
	e := NewExtractor()
	tests := []struct {
		name     string
		override string
	}{
		{"part name first", `<Override PartName="/word/document2.xml" ContentType="` + mainDocumentType + `"/>`},
		{"content type first", `<Override ContentType="` + mainDocumentType + `" PartName="/word/document2.xml"/>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			content := minimalDocx(t, map[string]string{
				contentTypesPart: `<?xml version="1.0" encoding="UTF-8"?>` +
					`<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">` + tt.override + `</Types>`,
				"word/document2.xml": docxBody(`<w:p><w:r><w:t>from document2</w:t></w:r></w:p>`),
			})
			got, err := e.ExtractBytes(content, ".docx")
			if err != nil {
				t.Fatalf("ExtractBytes: %v", err)
			}
			if got != "from document2" {
				t.Errorf("got %q", got)
			}
		})
	}
}

func TestExtractBytes_DOCXErrors(t *testing.T) {
	e := NewExtractor()
	if _, err := e.ExtractBytes([]byte("not a zip"), ".docx"); err == nil {
		t.Error("expected error for non-zip content")
	}
	missing := minimalDocx(t, map[string]string{"other.xml": "<x/>"})
	if _, err := e.ExtractBytes(missing, ".docx"); err == nil {
		t.Error("expected error when the document part is missing")
	}
}

func TestExtract_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dream.md")
	if err := os.WriteFile(path, []byte("  flying again  \n"), 0644); err != nil {
		t.Fatal(err)
	}
	got, err := NewExtractor().Extract(path)
	if err != nil {
		t.Fatal(err)
	}
	if got != "flying again" {
		t.Errorf("got %q", got)
	}
}

func TestExtract_Nonexistent(t *testing.T) {
	if _, err := NewExtractor().Extract(filepath.Join(t.TempDir(), "missing.txt")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestExtractBytes_PDFInvalid(t *testing.T) {
	if _, err := NewExtractor().ExtractBytes([]byte("%PDF-garbage"), ".pdf"); err == nil {
		t.Error("expected error for malformed PDF")
	}
}
