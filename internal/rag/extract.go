package rag

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dslipak/pdf"
	readability "github.com/go-shiori/go-readability"
)

// mimeByExtension implements §6's MIME inference table.
func mimeByExtension(ext string) string {
	switch ext {
	case ".md":
		return "text/markdown"
	case ".txt":
		return "text/plain"
	case ".json":
		return "application/json"
	case ".pdf":
		return "application/pdf"
	case ".docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case ".csv":
		return "text/csv"
	case ".yaml", ".yml":
		return "application/x-yaml"
	case ".html", ".htm":
		return "text/html"
	default:
		return "application/octet-stream"
	}
}

// extractText pulls plain text from a file on disk, dispatching on
// extension. PDF and DOCX go through dedicated parsers; HTML goes
// through readability; everything else is UTF-8 decoded as-is.
func extractText(path, ext string) (string, error) {
	switch ext {
	case ".pdf":
		return extractPDF(path)
	case ".docx":
		return extractDOCX(path)
	case ".html", ".htm":
		return extractHTMLFile(path)
	default:
		data, err := os.ReadFile(path)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
}

func extractPDF(path string) (string, error) {
	r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening PDF: %w", err)
	}

	reader, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("reading PDF text: %w", err)
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(reader); err != nil {
		return "", fmt.Errorf("draining PDF text: %w", err)
	}
	return buf.String(), nil
}

// extractDOCX unzips a DOCX and strips XML markup from word/document.xml,
// inserting a newline per paragraph and a tab per <w:tab/>.
func extractDOCX(path string) (string, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return "", fmt.Errorf("opening DOCX zip: %w", err)
	}
	defer zr.Close()

	var documentXML *zip.File
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			documentXML = f
			break
		}
	}
	if documentXML == nil {
		return "", fmt.Errorf("invalid docx: missing word/document.xml")
	}

	rc, err := documentXML.Open()
	if err != nil {
		return "", err
	}
	defer rc.Close()

	decoder := xml.NewDecoder(rc)
	var text strings.Builder
	for {
		token, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
		switch t := token.(type) {
		case xml.StartElement:
			if t.Name.Local == "p" {
				text.WriteString("\n")
			}
			if t.Name.Local == "tab" {
				text.WriteString("\t")
			}
		case xml.CharData:
			text.Write(t)
		}
	}
	return text.String(), nil
}

func extractHTMLFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	article, err := readability.FromReader(f, nil)
	if err != nil {
		return "", fmt.Errorf("parsing HTML: %w", err)
	}
	return article.TextContent, nil
}
