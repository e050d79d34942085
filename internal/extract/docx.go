package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	defaultDocumentPart = "word/document.xml"
	contentTypesPart    = "[Content_Types].xml"
	mainDocumentType    = "application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"
)

type contentTypes struct {
	Overrides []struct {
		PartName    string `xml:"PartName,attr"`
		ContentType string `xml:"ContentType,attr"`
	} `xml:"Override"`
}

// extractDOCX returns the text runs of a .docx body, one line per paragraph.
func extractDOCX(content []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("extract DOCX: not a zip: %w", err)
	}

	part := mainDocumentPart(zr)
	f := findPart(zr, part)
	if f == nil {
		return "", fmt.Errorf("extract DOCX: %s not found", part)
	}
	rc, err := f.Open()
	if err != nil {
		return "", fmt.Errorf("extract DOCX: open %s: %w", part, err)
	}
	defer rc.Close()

	text, err := paragraphText(rc)
	if err != nil {
		return "", fmt.Errorf("extract DOCX: parse %s: %w", part, err)
	}
	return text, nil
}

// mainDocumentPart resolves the body part from [Content_Types].xml, falling back to word/document.xml.
func mainDocumentPart(zr *zip.Reader) string {
	f := findPart(zr, contentTypesPart)
	if f == nil {
		return defaultDocumentPart
	}
	rc, err := f.Open()
	if err != nil {
		return defaultDocumentPart
	}
	defer rc.Close()

	var ct contentTypes
	if err := xml.NewDecoder(rc).Decode(&ct); err != nil {
		return defaultDocumentPart
	}
	for _, o := range ct.Overrides {
		if o.ContentType == mainDocumentType {
			return strings.TrimPrefix(o.PartName, "/")
		}
	}
	return defaultDocumentPart
}

func findPart(zr *zip.Reader, name string) *zip.File {
	for _, f := range zr.File {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// paragraphText streams WordprocessingML, collecting <w:t> runs and breaking lines at </w:p>.
func paragraphText(r io.Reader) (string, error) {
	dec := xml.NewDecoder(r)
	var (
		out    strings.Builder
		line   strings.Builder
		inText bool
	)
	flush := func() {
		if s := strings.TrimSpace(line.String()); s != "" {
			if out.Len() > 0 {
				out.WriteByte('\n')
			}
			out.WriteString(s)
		}
		line.Reset()
	}
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				line.WriteByte(' ')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				flush()
			}
		case xml.CharData:
			if inText {
				line.Write(t)
			}
		}
	}
	flush()
	return out.String(), nil
}
