// Package loader reads files from disk into documents.
package loader

import (
	"archive/zip"
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dslipak/pdf"

	"ragchat/internal/domain"
)

// MaxFileSize is the default size limit for a single document.
const MaxFileSize = 50 * 1024 * 1024

type kind int

const (
	kindUnknown kind = iota
	kindText
	kindPDF
	kindDOCX
)

var kinds = map[string]kind{
	".txt":      kindText,
	".md":       kindText,
	".markdown": kindText,
	".pdf":      kindPDF,
	".docx":     kindDOCX,
}

// Extensions lists the supported file extensions.
func Extensions() []string {
	return []string{".txt", ".md", ".markdown", ".pdf", ".docx"}
}

// FileLoader implements domain.Loader for plain text, PDF and DOCX files.
type FileLoader struct {
	// MaxSize bounds the file size in bytes. Zero means MaxFileSize.
	MaxSize int64
}

// New returns a FileLoader with the default size limit.
func New() *FileLoader { return &FileLoader{MaxSize: MaxFileSize} }

func kindOf(path string) kind {
	return kinds[strings.ToLower(filepath.Ext(path))]
}

// Supports reports whether path has a supported extension.
func (l *FileLoader) Supports(path string) bool { return kindOf(path) != kindUnknown }

// Load reads path and extracts its text. Every failure wraps ErrLoadFailure.
func (l *FileLoader) Load(ctx context.Context, path string) (domain.Document, error) {
	if err := ctx.Err(); err != nil {
		return domain.Document{}, fmt.Errorf("%w: %w", domain.ErrLoadFailure, err)
	}
	k := kindOf(path)
	if k == kindUnknown {
		return domain.Document{}, fmt.Errorf("%w: unsupported file type %q", domain.ErrLoadFailure, filepath.Ext(path))
	}
	info, err := os.Stat(path)
	if err != nil {
		return domain.Document{}, fmt.Errorf("%w: %w", domain.ErrLoadFailure, err)
	}
	if info.IsDir() {
		return domain.Document{}, fmt.Errorf("%w: %s is a directory", domain.ErrLoadFailure, path)
	}
	limit := l.MaxSize
	if limit <= 0 {
		limit = MaxFileSize
	}
	if info.Size() > limit {
		return domain.Document{}, fmt.Errorf("%w: %s exceeds the %d byte limit", domain.ErrLoadFailure, filepath.Base(path), limit)
	}

	var text string
	switch k {
	case kindText:
		text, err = extractText(path)
	case kindPDF:
		text, err = extractPDF(path)
	case kindDOCX:
		text, err = extractDOCX(path)
	}
	if err != nil {
		return domain.Document{}, fmt.Errorf("%w: %s: %w", domain.ErrLoadFailure, filepath.Base(path), err)
	}
	if strings.TrimSpace(text) == "" {
		return domain.Document{}, fmt.Errorf("%w: %s has no text", domain.ErrLoadFailure, filepath.Base(path))
	}
	return domain.Document{
		ID:      documentID(path),
		Path:    path,
		Name:    filepath.Base(path),
		Content: text,
	}, nil
}

func documentID(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	h := sha1.Sum([]byte(path))
	return hex.EncodeToString(h[:8])
}

func extractText(path string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(content), nil
}

func extractPDF(path string) (string, error) {
	r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	b, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(b); err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	return buf.String(), nil
}

// extractDOCX pulls the text runs out of word/document.xml. Paragraphs
// become newlines and tabs stay tabs.
func extractDOCX(path string) (string, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return "", fmt.Errorf("open docx: %w", err)
	}
	defer r.Close()

	var body *zip.File
	for _, f := range r.File {
		if f.Name == "word/document.xml" {
			body = f
			break
		}
	}
	if body == nil {
		return "", errors.New("invalid docx: missing word/document.xml")
	}
	rc, err := body.Open()
	if err != nil {
		return "", err
	}
	defer rc.Close()

	dec := xml.NewDecoder(rc)
	var sb strings.Builder
	inText := false
	paragraphs := 0
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "p":
				if paragraphs > 0 {
					sb.WriteString("\n")
				}
				paragraphs++
			case "tab":
				sb.WriteString("\t")
			case "t":
				inText = true
			}
		case xml.EndElement:
			if t.Name.Local == "t" {
				inText = false
			}
		case xml.CharData:
			if inText {
				sb.Write(t)
			}
		}
	}
	return sb.String(), nil
}
